package challenge

import "context"

// Startable is the contract queue items satisfy: starting an item begins its
// dialogue with the supporter.
type Startable interface {
	Start(ctx context.Context) error
}

// Queue is a per-supporter FIFO of pending dialogues with at most one active
// entry. Items are only removed by shift-on-start or by Cancel.
type Queue[T Startable] struct {
	items     []T
	active    T
	hasActive bool
}

// NewQueue creates an empty queue.
func NewQueue[T Startable]() *Queue[T] {
	return &Queue[T]{}
}

// Add appends the item. When nothing is active the item starts immediately.
func (q *Queue[T]) Add(ctx context.Context, item T) error {
	if !q.hasActive {
		q.active = item
		q.hasActive = true
		return item.Start(ctx)
	}
	q.items = append(q.items, item)
	return nil
}

// StopActive clears the active slot and starts the next queued item, if any.
// No-op when nothing is active.
func (q *Queue[T]) StopActive(ctx context.Context) error {
	if !q.hasActive {
		return nil
	}
	var zero T
	q.active = zero
	q.hasActive = false
	if len(q.items) == 0 {
		return nil
	}
	next := q.items[0]
	q.items = q.items[1:]
	q.active = next
	q.hasActive = true
	return next.Start(ctx)
}

// Active returns the currently active item.
func (q *Queue[T]) Active() (T, bool) {
	return q.active, q.hasActive
}

// Len counts queued items, the active one included.
func (q *Queue[T]) Len() int {
	n := len(q.items)
	if q.hasActive {
		n++
	}
	return n
}

// Cancel removes every queued item matching the predicate. When the active
// item matches it is stopped and the next queued item starts; the cancelled
// items are returned so the caller can notify their owners.
func (q *Queue[T]) Cancel(ctx context.Context, match func(T) bool) ([]T, error) {
	var cancelled []T
	kept := q.items[:0]
	for _, item := range q.items {
		if match(item) {
			cancelled = append(cancelled, item)
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept
	if q.hasActive && match(q.active) {
		cancelled = append(cancelled, q.active)
		return cancelled, q.StopActive(ctx)
	}
	return cancelled, nil
}
