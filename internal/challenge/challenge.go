// Package challenge implements the small numbered-state dialogue machines
// driving support requesters and supporters through fixed prompt sequences,
// plus the per-supporter queue that keeps at most one dialogue active.
package challenge

import (
	"context"
	"fmt"
)

// State constrains the enumerations usable as machine states.
type State interface {
	~int
}

// Callback runs when the machine enters (or re-enters) a state.
type Callback func(ctx context.Context) error

// Observer is notified synchronously on every transition, before the new
// state's callback runs.
type Observer[S State] func(old, next S)

// Machine is a single-actor state machine over a closed set of states.
// Instances must only be advanced from the single event goroutine; they
// carry no locking.
type Machine[S State] struct {
	state     S
	callbacks map[S]Callback
	observers []Observer[S]
}

// New creates a machine resting in the initial state. The initial state's
// callback is not invoked until Trigger or Advance is called.
func New[S State](initial S) *Machine[S] {
	return &Machine[S]{
		state:     initial,
		callbacks: make(map[S]Callback),
	}
}

// Register binds a callback to a state. Registering every reachable state is
// part of machine construction; a missing registration is a programmer error
// surfaced by Trigger.
func (m *Machine[S]) Register(state S, fn Callback) {
	m.callbacks[state] = fn
}

// Observe adds a transition observer.
func (m *Machine[S]) Observe(fn Observer[S]) {
	m.observers = append(m.observers, fn)
}

// State returns the current state.
func (m *Machine[S]) State() S {
	return m.state
}

// Trigger invokes the callback for the current state. Re-triggering the same
// state is how callers re-issue a prompt after invalid input.
func (m *Machine[S]) Trigger(ctx context.Context) error {
	fn, ok := m.callbacks[m.state]
	if !ok {
		return fmt.Errorf("challenge: no callback registered for state %d", int(m.state))
	}
	return fn(ctx)
}

// Advance records the transition, notifies observers, then triggers the new
// state's callback. Transitions are one-way advances driven by external
// input; nothing reverts a machine to an earlier state.
func (m *Machine[S]) Advance(ctx context.Context, next S) error {
	old := m.state
	m.state = next
	for _, fn := range m.observers {
		fn(old, next)
	}
	return m.Trigger(ctx)
}
