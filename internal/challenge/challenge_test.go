package challenge

import (
	"context"
	"testing"
)

type testState int

const (
	stateFirst testState = iota
	stateSecond
	stateThird
)

func TestTriggerWithoutCallbackFails(t *testing.T) {
	m := New(stateFirst)
	if err := m.Trigger(context.Background()); err == nil {
		t.Fatal("expected error for unregistered state")
	}
}

func TestTriggerInvokesCurrentStateCallback(t *testing.T) {
	m := New(stateFirst)
	calls := 0
	m.Register(stateFirst, func(ctx context.Context) error {
		calls++
		return nil
	})

	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if err := m.Trigger(context.Background()); err != nil {
		t.Fatalf("re-trigger: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if m.State() != stateFirst {
		t.Fatalf("trigger must not change state, got %d", m.State())
	}
}

func TestAdvanceNotifiesObserversThenTriggers(t *testing.T) {
	m := New(stateFirst)
	var order []string
	m.Register(stateSecond, func(ctx context.Context) error {
		order = append(order, "callback")
		return nil
	})
	m.Observe(func(old, next testState) {
		if old != stateFirst || next != stateSecond {
			t.Fatalf("unexpected transition %d -> %d", old, next)
		}
		order = append(order, "observer")
	})

	if err := m.Advance(context.Background(), stateSecond); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if m.State() != stateSecond {
		t.Fatalf("expected state %d, got %d", stateSecond, m.State())
	}
	if len(order) != 2 || order[0] != "observer" || order[1] != "callback" {
		t.Fatalf("expected observer before callback, got %v", order)
	}
}

func TestAdvanceToUnregisteredStateFails(t *testing.T) {
	m := New(stateFirst)
	if err := m.Advance(context.Background(), stateThird); err == nil {
		t.Fatal("expected error advancing to unregistered state")
	}
	if m.State() != stateThird {
		t.Fatalf("state records the transition even when the callback is missing, got %d", m.State())
	}
}
