package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
	"github.com/c360/splice/pipeline"
)

// Orchestrator owns the top-level readers of a process. It starts them
// together, tracks how many are still running and stops the runtime once
// none are.
type Orchestrator struct {
	registry *pipeline.Registry
	deps     component.Dependencies
	logger   *slog.Logger
	metrics  *engineMetrics
	core     *metric.Metrics

	mu      sync.Mutex
	readers []*pipeline.Reader
	current *run
}

// run is the bookkeeping of one Run call. Callbacks from an earlier run
// only ever touch their own run.
type run struct {
	mu        sync.Mutex
	remaining int
	done      chan struct{}
}

// New creates an orchestrator that builds endpoints through registry.
func New(registry *pipeline.Registry, deps component.Dependencies) *Orchestrator {
	logger := deps.GetLoggerWithComponent("engine")

	metrics, err := newEngineMetrics(deps.MetricsRegistry)
	if err != nil {
		logger.Error("Failed to initialize engine metrics", "error", err)
		metrics = nil // Continue without metrics
	}

	return &Orchestrator{
		registry: registry,
		deps:     deps,
		logger:   logger,
		metrics:  metrics,
		core:     deps.MetricsRegistry.CoreMetrics(),
	}
}

// AddReader builds an Idle reader for spec and registers it. Readers can
// only be added before Run.
func (o *Orchestrator) AddReader(spec pipeline.EndpointSpec) (*pipeline.Reader, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil {
		return nil, errors.WrapInvalid(errors.ErrAlreadyStarted, "Orchestrator", "AddReader",
			"add reader "+spec.String())
	}
	r, err := pipeline.NewReader(spec, o.registry, o.deps)
	if err != nil {
		return nil, err
	}
	o.readers = append(o.readers, r)
	return r, nil
}

// AddReaderURI parses uri and registers a reader for it.
func (o *Orchestrator) AddReaderURI(uri string) (*pipeline.Reader, error) {
	spec, err := pipeline.ParseEndpoint(uri)
	if err != nil {
		return nil, err
	}
	return o.AddReader(spec)
}

// AddTopology builds a reader with all its endpoints from a tree and
// registers it.
func (o *Orchestrator) AddTopology(root pipeline.Node) (*pipeline.Reader, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil {
		return nil, errors.WrapInvalid(errors.ErrAlreadyStarted, "Orchestrator", "AddTopology",
			"add reader "+root.Endpoint.String())
	}
	r, err := pipeline.Build(root, o.registry, o.deps)
	if err != nil {
		return nil, err
	}
	o.readers = append(o.readers, r)
	return r, nil
}

// Readers returns the registered readers in the order they were added.
func (o *Orchestrator) Readers() []*pipeline.Reader {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*pipeline.Reader(nil), o.readers...)
}

// Run starts the runtime when it is not running, then starts every reader
// concurrently and returns once each has either reached Running or failed.
// A reader that fails to start is logged and does not fail Run unless every
// reader failed.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.current != nil {
		o.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Orchestrator", "Run", "run readers")
	}
	if len(o.readers) == 0 {
		o.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNoReaders, "Orchestrator", "Run", "run readers")
	}
	readers := append([]*pipeline.Reader(nil), o.readers...)
	rn := &run{remaining: len(readers), done: make(chan struct{})}
	o.current = rn
	o.mu.Unlock()

	if rt := o.deps.Runtime; rt != nil && !rt.Running() {
		if err := rt.Start(ctx); err != nil {
			o.mu.Lock()
			o.current = nil
			o.mu.Unlock()
			return err
		}
	}

	o.core.RecordReadersRunning(len(readers))
	for _, r := range readers {
		r.OnStopped(func() { o.readerStopped(rn) })
	}

	begin := time.Now()
	errs := make([]error, len(readers))
	var g errgroup.Group
	for i, r := range readers {
		g.Go(func() error {
			errs[i] = r.Start(ctx)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			o.logger.Error("Reader failed to start", "reader", readers[i].Description(), "error", err)
		}
	}
	o.metrics.recordRun(len(readers)-failed, failed, time.Since(begin).Seconds())

	if failed == len(readers) {
		return errors.WrapFatal(errors.Join(errs...), "Orchestrator", "Run", "start readers")
	}
	o.logger.Info("Readers running", "started", len(readers)-failed, "failed", failed)
	return nil
}

// readerStopped counts one reader of rn down. The last one stops the
// runtime and closes rn.done.
func (o *Orchestrator) readerStopped(rn *run) {
	rn.mu.Lock()
	rn.remaining--
	n := rn.remaining
	rn.mu.Unlock()

	o.core.RecordReadersRunning(n)
	if n > 0 {
		return
	}

	if rt := o.deps.Runtime; rt != nil {
		if err := rt.Stop(context.Background()); err != nil {
			o.logger.Warn("Runtime did not stop cleanly", "error", err)
		}
	}
	o.logger.Info("All readers stopped")
	close(rn.done)
}

// Stop stops every running reader and waits until each has drained and
// reports Stopped, or ctx ends. Stopping twice is harmless.
func (o *Orchestrator) Stop(ctx context.Context) error {
	readers := o.Readers()
	comps := make([]component.LifecycleComponent, len(readers))
	for i, r := range readers {
		comps[i] = r
	}

	o.logger.Info("Stopping readers", "count", len(comps))
	component.StopAll(ctx, comps)
	o.metrics.recordStop()
	return ctx.Err()
}

// Restart stops the current readers, builds fresh ones from their
// topology and runs them. Endpoints come back with the same specs but new
// identities.
func (o *Orchestrator) Restart(ctx context.Context) error {
	err := o.restart(ctx)
	o.metrics.recordRestart(err == nil)
	return err
}

func (o *Orchestrator) restart(ctx context.Context) error {
	if err := o.Stop(ctx); err != nil {
		return err
	}
	if err := o.Wait(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	fresh := make([]*pipeline.Reader, 0, len(o.readers))
	for _, r := range o.readers {
		nr, err := pipeline.Build(r.Topology(), o.registry, o.deps)
		if err != nil {
			o.mu.Unlock()
			return err
		}
		fresh = append(fresh, nr)
	}
	o.readers = fresh
	o.current = nil
	o.mu.Unlock()

	o.logger.Info("Restarting readers", "count", len(fresh))
	return o.Run(ctx)
}

// Done is closed once no reader of the current run is running. Before the
// first Run nothing is running, so the returned channel is already closed.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return o.current.done
}

// Wait blocks until Done is closed or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	select {
	case <-o.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
