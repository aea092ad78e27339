// Package queue provides the unbounded FIFO queues feeding the worker pools.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned once a closed queue has no items left.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO with context-aware operations. Dequeue blocks
// without polling until an item arrives, the context ends, or the queue closes.
type Queue[T any] struct {
	name string

	mu     sync.Mutex
	items  []T
	closed bool

	notify chan struct{}
	done   chan struct{}
}

// New constructs an empty queue.
func New[T any](name string) *Queue[T] {
	return &Queue[T]{
		name:   name,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Name returns the queue label used in logs and metrics.
func (q *Queue[T]) Name() string { return q.name }

// Enqueue appends an item. It never blocks on capacity.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Dequeue pops the oldest item, respecting context cancellation.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("dequeue canceled: %w", err)
		}

		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// Pass the wakeup on to the next waiting consumer.
				q.signal()
			}
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-q.done:
		case <-q.notify:
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting items and wakes every blocked consumer. Remaining items
// can still be dequeued. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
