package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
)

// Reader publishes every chunk of its Source to the writers and seams
// attached to it. It reaches Running only after every endpoint is Running
// and reports Stopped only after every endpoint has drained and Stopped.
type Reader struct {
	fanout

	id      string
	spec    EndpointSpec
	source  Source
	logger  *slog.Logger
	machine *component.Machine

	mu       sync.Mutex
	cancel   context.CancelFunc
	pumpDone chan struct{}

	lastErr   atomic.Pointer[error]
	published atomic.Int64
}

var _ component.LifecycleComponent = (*Reader)(nil)

// NewReader builds the source for spec through registry and returns an Idle
// reader.
func NewReader(spec EndpointSpec, registry *Registry, deps component.Dependencies) (*Reader, error) {
	src, err := registry.NewSource(spec, deps)
	if err != nil {
		return nil, err
	}
	return NewReaderWithSource(spec, src, registry, deps), nil
}

// NewReaderFromURI parses uri and builds a reader for it.
func NewReaderFromURI(uri string, registry *Registry, deps component.Dependencies) (*Reader, error) {
	spec, err := ParseEndpoint(uri)
	if err != nil {
		return nil, err
	}
	return NewReader(spec, registry, deps)
}

// NewReaderWithSource returns an Idle reader around an already built source.
// registry is used for endpoints attached later.
func NewReaderWithSource(spec EndpointSpec, src Source, registry *Registry, deps component.Dependencies) *Reader {
	id := newID(RoleReader)
	logger := deps.GetLoggerWithComponent("reader").With("id", id, "endpoint", src.Description())
	machine := component.NewMachine(id, string(RoleReader), logger, deps.MetricsRegistry)
	return &Reader{
		fanout:  newFanout(id, registry, deps, machine),
		id:      id,
		spec:    spec,
		source:  src,
		logger:  logger,
		machine: machine,
	}
}

// ID returns the reader's unique id.
func (r *Reader) ID() string { return r.id }

// Spec returns the spec the reader was built from.
func (r *Reader) Spec() EndpointSpec { return r.spec }

// Description names the source.
func (r *Reader) Description() string { return r.source.Description() }

// State returns the lifecycle state.
func (r *Reader) State() component.State { return r.machine.State() }

// Running reports whether the reader is publishing.
func (r *Reader) Running() bool { return r.machine.Running() }

// Done is closed once the reader and all its endpoints are Stopped.
func (r *Reader) Done() <-chan struct{} { return r.machine.Done() }

// OnStopped registers fn to run once the reader is Stopped.
func (r *Reader) OnStopped(fn func()) { r.machine.OnStopped(fn) }

// Err returns the error that ended the reader, if any. A source reaching
// its natural end is not an error.
func (r *Reader) Err() error {
	if p := r.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Published returns the number of chunks published so far.
func (r *Reader) Published() int64 { return r.published.Load() }

// Topology returns the tree of specs the reader was built from.
func (r *Reader) Topology() Node {
	return Node{Role: RoleReader, Endpoint: r.spec, Children: r.children()}
}

// Start starts every endpoint, waits until all of them are Running, then
// opens the source and starts publishing. A source that fails to open stops
// the endpoints again and fails Start with errors.ErrSourceOpen.
func (r *Reader) Start(ctx context.Context) error {
	return r.machine.Start(ctx, r.hooks())
}

// Stop stops the source, even an endless one, then stops and waits for
// every endpoint. Chunks already published are still written.
func (r *Reader) Stop(ctx context.Context) error {
	return r.machine.Stop(ctx, r.hooks())
}

func (r *Reader) hooks() component.Hooks {
	return component.Hooks{
		Dependents: r.Endpoints,
		Open:       r.open,
		Close:      r.close,
	}
}

func (r *Reader) open(ctx context.Context) error {
	if err := r.deps.Runtime.Offload(ctx, r.source.Open); err != nil {
		r.channel.Close()
		err = errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrSourceOpen, err),
			"Reader", "Start", "open "+r.source.Description())
		r.lastErr.Store(&err)
		return err
	}

	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	r.mu.Lock()
	r.cancel = cancel
	r.pumpDone = done
	r.mu.Unlock()

	go r.pump(pctx, done)
	r.logger.Info("Reader started", "endpoints", len(r.Endpoints()))
	return nil
}

func (r *Reader) close(_ context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.pumpDone
	r.mu.Unlock()

	cancel()
	err := r.source.Close()
	<-done
	r.channel.Close()

	if err != nil {
		return errors.WrapTransient(err, "Reader", "Stop", "close "+r.source.Description())
	}
	return nil
}

// pump publishes until the source ends or ctx is cancelled. A natural end
// stops the reader.
func (r *Reader) pump(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		chunk, err := r.source.Read(ctx)
		if len(chunk) > 0 {
			r.channel.Publish(chunk)
			r.published.Add(1)
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) {
			r.logger.Info("Source finished", "chunks", r.published.Load())
		} else {
			r.logger.Warn("Source failed, stopping reader", "error", err, "chunks", r.published.Load())
			err = errors.WrapFatal(err, "Reader", "pump", "read "+r.source.Description())
			r.lastErr.Store(&err)
		}
		break
	}
	go func() { _ = r.Stop(context.Background()) }()
}
