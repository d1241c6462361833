// Package buffer provides an unbounded, thread-safe FIFO queue with a
// blocking, context-aware Pop and close-then-drain semantics.
package buffer

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Push after Close and by Pop once a closed queue
// is empty.
var ErrClosed = errors.New("buffer: queue closed")

// Queue is an unbounded FIFO. Push never blocks and never drops. Pop blocks
// until an item is available, the queue is closed and drained, or ctx ends.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int
	closed  bool
	waiters int
	wake    chan struct{}

	stats   *Statistics
	metrics *queueMetrics
	onPush  func(T)
}

// NewQueue creates an empty queue.
func NewQueue[T any](options ...Option[T]) *Queue[T] {
	opts := applyOptions(options...)
	q := &Queue[T]{
		items:  make([]T, 0, opts.initialCapacity),
		wake:   make(chan struct{}),
		stats:  NewStatistics(),
		onPush: opts.onPush,
	}
	if opts.metricsReg != nil {
		q.metrics = newQueueMetrics(opts.metricsReg, opts.metricsName)
	}
	return q
}

// Push appends item. It returns ErrClosed if the queue has been closed.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	n := q.lenLocked()
	q.signalLocked()
	q.mu.Unlock()

	q.stats.push(int64(n))
	q.metrics.observe(n)
	if q.onPush != nil {
		q.onPush(item)
	}
	return nil
}

// Pop removes the oldest item, waiting for one if the queue is empty.
// It returns ErrClosed once the queue is closed and empty, or ctx.Err().
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if item, ok := q.takeLocked(); ok {
			n := q.lenLocked()
			q.mu.Unlock()
			q.stats.pop(int64(n))
			q.metrics.observe(n)
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrClosed
		}
		q.waiters++
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			q.mu.Lock()
			if wake == q.wake {
				q.waiters--
			}
			q.mu.Unlock()
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryPop removes the oldest item without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	item, ok := q.takeLocked()
	n := q.lenLocked()
	q.mu.Unlock()
	if ok {
		q.stats.pop(int64(n))
		q.metrics.observe(n)
	}
	return item, ok
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Close stops accepting pushes. Items already queued remain poppable.
// Closing twice is a no-op.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.signalLocked()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Stats returns the queue's statistics.
func (q *Queue[T]) Stats() *Statistics {
	return q.stats
}

func (q *Queue[T]) lenLocked() int {
	return len(q.items) - q.head
}

func (q *Queue[T]) takeLocked() (T, bool) {
	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 1024 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

// signalLocked wakes every goroutine blocked in Pop.
func (q *Queue[T]) signalLocked() {
	if q.waiters == 0 {
		return
	}
	close(q.wake)
	q.wake = make(chan struct{})
	q.waiters = 0
}
