package buffer

import (
	"github.com/c360/splice/metric"
)

// Option configures a Queue.
type Option[T any] func(*queueOptions[T])

type queueOptions[T any] struct {
	initialCapacity int
	onPush          func(T)
	metricsReg      *metric.MetricsRegistry
	metricsName     string
}

// WithInitialCapacity preallocates room for n items.
func WithInitialCapacity[T any](n int) Option[T] {
	return func(opts *queueOptions[T]) {
		if n > 0 {
			opts.initialCapacity = n
		}
	}
}

// WithPushHook calls fn after every successful Push, outside the lock.
func WithPushHook[T any](fn func(T)) Option[T] {
	return func(opts *queueOptions[T]) {
		opts.onPush = fn
	}
}

// WithMetrics exports the queue depth as splice_queue_depth{queue=name}.
// A nil registry or empty name is ignored.
func WithMetrics[T any](registry *metric.MetricsRegistry, name string) Option[T] {
	return func(opts *queueOptions[T]) {
		if registry != nil && name != "" {
			opts.metricsReg = registry
			opts.metricsName = name
		}
	}
}

func applyOptions[T any](options ...Option[T]) *queueOptions[T] {
	opts := &queueOptions[T]{initialCapacity: 16}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
