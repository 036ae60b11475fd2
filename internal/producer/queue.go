package producer

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Push and Pop once the queue is closed and, for
// Pop, drained.
var ErrQueueClosed = errors.New("queue closed")

// Queue is a FIFO between exactly one producer goroutine and one consumer.
//
// A capacity of zero makes the queue unbounded. With a positive capacity a
// Push onto a full queue discards the oldest item and counts it as dropped;
// items are otherwise only removed by the consumer.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	dropped  uint64
	closed   bool

	notify    chan struct{} // at most one pending wakeup for Pop
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue with the given capacity (0 = unbounded).
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push appends v, dropping the oldest item when the queue is full.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes and returns the oldest item, blocking until one is available,
// ctx is done, or the queue is closed and empty.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, nil
		}
		closed := q.closed
		q.mu.Unlock()

		var zero T
		if closed {
			return zero, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.done:
		case <-q.notify:
		}
	}
}

// TakeNewest returns the most recent item and discards everything queued, so
// the next call reports no data until the producer pushes again. It never
// blocks.
func (q *Queue[T]) TakeNewest() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[len(q.items)-1]
	clear(q.items)
	q.items = q.items[:0]
	return v, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the configured capacity (0 = unbounded).
func (q *Queue[T]) Cap() int { return q.capacity }

// Dropped returns how many items were discarded by drop-oldest.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close rejects further pushes and wakes a blocked Pop. Items already queued
// can still be popped. Close is idempotent.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
	})
}
