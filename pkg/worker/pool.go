// Package worker provides a bounded pool of goroutines that run submitted
// work items.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/splice/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Pool runs work items of type T on a fixed number of goroutines.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error

	workChan chan T
	metrics  *poolMetrics
	wg       sync.WaitGroup
	cancel   context.CancelFunc

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	busy      atomic.Int64

	metricsRegistry *metric.MetricsRegistry
	metricsPrefix   string
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	busy       prometheus.Gauge
	processed  *prometheus.CounterVec
	rejected   prometheus.Counter
	duration   prometheus.Histogram
}

// Option represents a configuration option for the worker pool
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers pool metrics under the given prefix.
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.metricsRegistry = registry
		p.metricsPrefix = prefix
	}
}

// NewPool creates a pool. Non-positive sizes fall back to 4 workers and a
// queue of 64.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	pool := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(pool)
	}
	if pool.metricsRegistry != nil && pool.metricsPrefix != "" {
		pool.initializeMetrics()
	}
	return pool
}

func (p *Pool[T]) initializeMetrics() {
	prefix := p.metricsPrefix
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "splice",
			Name:      prefix + "_queue_depth",
			Help:      "Work items waiting for a worker",
		}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "splice",
			Name:      prefix + "_busy_workers",
			Help:      "Workers currently running an item",
		}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splice",
			Name:      prefix + "_processed_total",
			Help:      "Work items processed by outcome",
		}, []string{"status"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "splice",
			Name:      prefix + "_rejected_total",
			Help:      "Submissions rejected because the queue was full",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "splice",
			Name:      prefix + "_duration_seconds",
			Help:      "Time spent running a work item",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	const service = "worker_pool"
	_ = p.metricsRegistry.RegisterGauge(service, prefix+"_queue_depth", m.queueDepth)
	_ = p.metricsRegistry.RegisterGauge(service, prefix+"_busy_workers", m.busy)
	_ = p.metricsRegistry.RegisterCounterVec(service, prefix+"_processed_total", m.processed)
	_ = p.metricsRegistry.RegisterCounter(service, prefix+"_rejected_total", m.rejected)
	_ = p.metricsRegistry.RegisterHistogram(service, prefix+"_duration_seconds", m.duration)
	p.metrics = m
}

// Submit queues work without blocking. It returns ErrQueueFull when every
// slot is taken.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.workChan <- work:
		p.submitted.Add(1)
		p.observeDepth()
		return nil
	default:
		p.rejected.Add(1)
		if p.metrics != nil {
			p.metrics.rejected.Inc()
		}
		return ErrQueueFull
	}
}

// Start launches the workers. Items run with a context derived from ctx that
// is cancelled when the pool stops.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(runCtx)
	}
	p.started = true
	return nil
}

// Stop closes the queue and waits for queued items to finish. If ctx ends
// first the workers' context is cancelled and ErrStopTimeout is returned.
func (p *Pool[T]) Stop(ctx context.Context) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.workChan)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ErrStopTimeout
	}
}

// Running reports whether the pool accepts work.
func (p *Pool[T]) Running() bool {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	return p.started && !p.stopped
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Busy:       p.busy.Load(),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Rejected:   p.rejected.Load(),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Busy       int64 `json:"busy"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Rejected   int64 `json:"rejected"`
}

func (p *Pool[T]) observeDepth() {
	if p.metrics != nil {
		p.metrics.queueDepth.Set(float64(len(p.workChan)))
	}
}

// worker drains the queue until it is closed. Items already queued still run
// after ctx is cancelled so their submitters are always answered.
func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for work := range p.workChan {
		p.observeDepth()
		p.run(ctx, work)
	}
}

func (p *Pool[T]) run(ctx context.Context, work T) {
	n := p.busy.Add(1)
	if p.metrics != nil {
		p.metrics.busy.Set(float64(n))
	}
	start := time.Now()

	err := p.processor(ctx, work)

	n = p.busy.Add(-1)
	p.processed.Add(1)
	status := "success"
	if err != nil {
		p.failed.Add(1)
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.busy.Set(float64(n))
		p.metrics.processed.WithLabelValues(status).Inc()
		p.metrics.duration.Observe(time.Since(start).Seconds())
	}
}
