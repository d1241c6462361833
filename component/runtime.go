package component

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
	"github.com/c360/splice/pkg/retry"
	"github.com/c360/splice/pkg/worker"
)

// Runtime runs blocking operations (file opens, socket binds, process
// spawns) on a bounded worker pool so lifecycle transitions never block on
// the goroutine that requested them. A stopped Runtime can be started again.
type Runtime struct {
	workers   int
	queueSize int
	logger    *slog.Logger
	registry  *metric.MetricsRegistry

	mu   sync.Mutex
	pool *worker.Pool[offloadTask]
}

type offloadTask struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// NewRuntime creates a stopped runtime.
func NewRuntime(workers, queueSize int, logger *slog.Logger, registry *metric.MetricsRegistry) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		workers:   workers,
		queueSize: queueSize,
		logger:    logger.With("component", "runtime"),
		registry:  registry,
	}
}

// Start launches the worker pool. Starting a running runtime is a no-op.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pool != nil && r.pool.Running() {
		return nil
	}
	var opts []worker.Option[offloadTask]
	if r.registry != nil {
		opts = append(opts, worker.WithMetricsRegistry[offloadTask](r.registry, "runtime"))
	}
	pool := worker.NewPool(r.workers, r.queueSize, runOffload, opts...)
	if err := pool.Start(context.WithoutCancel(ctx)); err != nil {
		return errors.WrapFatal(err, "Runtime", "Start", "start worker pool")
	}
	r.pool = pool
	r.logger.Debug("Runtime started", "workers", pool.Stats().Workers)
	return nil
}

// Stop drains queued work and stops the pool. Stopping a stopped runtime is
// a no-op.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	pool := r.pool
	r.mu.Unlock()

	if pool == nil || !pool.Running() {
		return nil
	}
	if err := pool.Stop(ctx); err != nil {
		return errors.WrapTransient(err, "Runtime", "Stop", "stop worker pool")
	}
	r.logger.Debug("Runtime stopped", "processed", pool.Stats().Processed)
	return nil
}

// Running reports whether the runtime accepts work.
func (r *Runtime) Running() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool != nil && r.pool.Running()
}

// Stats returns the current pool statistics.
func (r *Runtime) Stats() worker.PoolStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool == nil {
		return worker.PoolStats{}
	}
	return r.pool.Stats()
}

// Offload runs fn on the pool and waits for it to return. A nil or stopped
// runtime runs fn on the calling goroutine. A full queue is retried briefly
// before falling back to running inline.
func (r *Runtime) Offload(ctx context.Context, fn func(context.Context) error) error {
	if !r.Running() {
		return fn(ctx)
	}
	r.mu.Lock()
	pool := r.pool
	r.mu.Unlock()

	task := offloadTask{ctx: ctx, fn: fn, result: make(chan error, 1)}

	cfg := retry.Quick()
	cfg.Retryable = func(err error) bool { return errors.Is(err, worker.ErrQueueFull) }
	if err := retry.Do(ctx, cfg, func() error { return pool.Submit(task) }); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Debug("Offload fell back to caller goroutine", "error", err)
		return fn(ctx)
	}

	select {
	case err := <-task.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runOffload(_ context.Context, t offloadTask) error {
	err := t.fn(t.ctx)
	t.result <- err
	return err
}
