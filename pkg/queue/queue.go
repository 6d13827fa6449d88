// Package queue provides the bounded FIFO handles shared between relay loops
// and application code. A queue is the only state loops share.
package queue

import (
	"context"
	"errors"
)

// DefaultCapacity matches the receiver buffer default used elsewhere in steeze.
const DefaultCapacity = 1024

var (
	ErrFull  = errors.New("queue: full")
	ErrEmpty = errors.New("queue: empty")
)

// Queue is a bounded, goroutine-safe FIFO.
type Queue[T any] struct {
	name string
	ch   chan T
}

// New returns a queue holding at most capacity items (DefaultCapacity if <= 0).
func New[T any](name string, capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{name: name, ch: make(chan T, capacity)}
}

func (q *Queue[T]) Name() string { return q.name }
func (q *Queue[T]) Len() int     { return len(q.ch) }
func (q *Queue[T]) Cap() int     { return cap(q.ch) }

// Get blocks until an item is available or ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet pops without blocking; ErrEmpty when nothing is queued.
func (q *Queue[T]) TryGet() (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	default:
		var zero T
		return zero, ErrEmpty
	}
}

// Put blocks until there is room or ctx is done.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	select {
	case q.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPut pushes without blocking; ErrFull when at capacity.
func (q *Queue[T]) TryPut(v T) error {
	select {
	case q.ch <- v:
		return nil
	default:
		return ErrFull
	}
}

// Drain pops everything currently queued and returns the newest item.
// n is the number of items popped; ok is false when the queue was empty.
func (q *Queue[T]) Drain() (last T, n int, ok bool) {
	for {
		v, err := q.TryGet()
		if err != nil {
			return last, n, ok
		}
		last, n, ok = v, n+1, true
	}
}
