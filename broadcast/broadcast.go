// Package broadcast fans published items out to every current subscriber.
//
// Each subscription owns an unbounded FIFO queue, so Publish never blocks
// and never drops; a slow subscriber only grows its own backlog. There is
// no replay: a subscriber only sees items published after it attached.
package broadcast

import (
	"context"
	"sync"

	"github.com/c360/splice/metric"
	"github.com/c360/splice/pkg/buffer"
)

// Channel is an in-process, ordered, multi-subscriber fan-out.
type Channel[T any] struct {
	name   string
	core   *metric.Metrics
	sizeOf func(T) int

	mu     sync.Mutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
	closed bool
}

// Option configures a Channel.
type Option[T any] func(*Channel[T])

// WithMetrics counts publishes in splice_chunks_published_total and
// splice_bytes_published_total under the channel's name.
func WithMetrics[T any](registry *metric.MetricsRegistry) Option[T] {
	return func(c *Channel[T]) {
		c.core = registry.CoreMetrics()
	}
}

// WithSizer reports the byte size of an item for metrics.
func WithSizer[T any](fn func(T) int) Option[T] {
	return func(c *Channel[T]) {
		c.sizeOf = fn
	}
}

// New creates a channel with no subscribers.
func New[T any](name string, opts ...Option[T]) *Channel[T] {
	c := &Channel[T]{
		name:   name,
		subs:   make(map[uint64]*Subscription[T]),
		sizeOf: func(T) int { return 0 },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the channel's name.
func (c *Channel[T]) Name() string {
	return c.name
}

// SubscribeOption configures a Subscription.
type SubscribeOption[T any] func(*subscribeOptions[T])

type subscribeOptions[T any] struct {
	queueName string
	registry  *metric.MetricsRegistry
	onEnqueue func(T)
}

// WithQueueMetrics exports the subscription's backlog as
// splice_queue_depth{queue=name}.
func WithQueueMetrics[T any](registry *metric.MetricsRegistry, name string) SubscribeOption[T] {
	return func(o *subscribeOptions[T]) {
		o.registry = registry
		o.queueName = name
	}
}

// WithEnqueueHook calls fn for every item enqueued into the subscription.
func WithEnqueueHook[T any](fn func(T)) SubscribeOption[T] {
	return func(o *subscribeOptions[T]) {
		o.onEnqueue = fn
	}
}

// Subscribe attaches a new subscriber. Subscribing to a closed channel
// returns a subscription that is already closed.
func (c *Channel[T]) Subscribe(opts ...SubscribeOption[T]) *Subscription[T] {
	o := &subscribeOptions[T]{}
	for _, opt := range opts {
		opt(o)
	}

	qopts := []buffer.Option[T]{buffer.WithMetrics[T](o.registry, o.queueName)}
	if o.onEnqueue != nil {
		qopts = append(qopts, buffer.WithPushHook(o.onEnqueue))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	sub := &Subscription[T]{
		id:      c.nextID,
		channel: c,
		queue:   buffer.NewQueue(qopts...),
	}
	if c.closed {
		sub.queue.Close()
		return sub
	}
	c.subs[sub.id] = sub
	return sub
}

// Publish enqueues item into every subscription that exists at call time
// and returns how many received it. It never blocks on consumers.
func (c *Channel[T]) Publish(item T) int {
	c.mu.Lock()
	n := 0
	for _, sub := range c.subs {
		if sub.queue.Push(item) == nil {
			n++
		}
	}
	c.mu.Unlock()

	c.core.RecordPublish(c.name, c.sizeOf(item))
	return n
}

// Unsubscribe detaches sub and closes its queue. Items already queued stay
// readable.
func (c *Channel[T]) Unsubscribe(sub *Subscription[T]) {
	c.mu.Lock()
	delete(c.subs, sub.id)
	c.mu.Unlock()
	sub.queue.Close()
}

// Subscribers returns the number of attached subscriptions.
func (c *Channel[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close detaches and closes every subscription. Later Subscribe calls get
// closed subscriptions and Publish reaches no one.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[uint64]*Subscription[T])
	c.closed = true
	c.mu.Unlock()

	for _, sub := range subs {
		sub.queue.Close()
	}
}

// Subscription is one subscriber's view of a Channel.
type Subscription[T any] struct {
	id      uint64
	channel *Channel[T]
	queue   *buffer.Queue[T]
}

// Next returns the next item in publish order. ok is false once the
// subscription is closed and drained, or when ctx ends.
func (s *Subscription[T]) Next(ctx context.Context) (item T, ok bool) {
	item, err := s.queue.Pop(ctx)
	return item, err == nil
}

// TryNext returns the next item without waiting.
func (s *Subscription[T]) TryNext() (T, bool) {
	return s.queue.TryPop()
}

// Len returns the number of items waiting.
func (s *Subscription[T]) Len() int {
	return s.queue.Len()
}

// Close detaches the subscription from its channel. Queued items remain
// readable through Next.
func (s *Subscription[T]) Close() {
	s.channel.Unsubscribe(s)
}

// Stats returns the subscription queue's statistics.
func (s *Subscription[T]) Stats() buffer.StatsSummary {
	return s.queue.Stats().Summary()
}
