package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/c360/splice/broadcast"
	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
)

// Writer drains one subscription of an upstream channel into a Sink.
type Writer struct {
	id       string
	spec     EndpointSpec
	sink     Sink
	upstream *broadcast.Channel[Chunk]
	deps     component.Dependencies
	logger   *slog.Logger
	core     *metric.Metrics
	machine  *component.Machine

	sub      *broadcast.Subscription[Chunk]
	loopDone chan struct{}

	chunks  atomic.Int64
	bytes   atomic.Int64
	lastErr atomic.Pointer[error]
}

var _ component.LifecycleComponent = (*Writer)(nil)

func newID(role Role) string {
	return string(role) + "-" + uuid.NewString()[:8]
}

// NewWriter creates an Idle writer for sink. It subscribes to upstream when
// started.
func NewWriter(spec EndpointSpec, sink Sink, upstream *broadcast.Channel[Chunk], deps component.Dependencies) *Writer {
	id := newID(RoleWriter)
	logger := deps.GetLoggerWithComponent("writer").With("id", id, "endpoint", sink.Description())
	return &Writer{
		id:       id,
		spec:     spec,
		sink:     sink,
		upstream: upstream,
		deps:     deps,
		logger:   logger,
		core:     deps.MetricsRegistry.CoreMetrics(),
		machine:  component.NewMachine(id, string(RoleWriter), logger, deps.MetricsRegistry),
	}
}

// ID returns the writer's unique id.
func (w *Writer) ID() string { return w.id }

// Spec returns the spec the writer was built from.
func (w *Writer) Spec() EndpointSpec { return w.spec }

// Description names the sink.
func (w *Writer) Description() string { return w.sink.Description() }

// State returns the lifecycle state.
func (w *Writer) State() component.State { return w.machine.State() }

// Running reports whether the writer is consuming.
func (w *Writer) Running() bool { return w.machine.Running() }

// Done is closed once the writer is Stopped.
func (w *Writer) Done() <-chan struct{} { return w.machine.Done() }

// OnStopped registers fn to run once the writer is Stopped.
func (w *Writer) OnStopped(fn func()) { w.machine.OnStopped(fn) }

// Err returns the error that ended the writer's branch, if any.
func (w *Writer) Err() error {
	if p := w.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Written returns the number of chunks and bytes handed to the sink.
func (w *Writer) Written() (chunks, bytes int64) {
	return w.chunks.Load(), w.bytes.Load()
}

// Start opens the sink and subscribes to the upstream channel. A sink that
// fails to open is fatal for this writer and leaves it Stopped.
func (w *Writer) Start(ctx context.Context) error {
	return w.machine.Start(ctx, w.hooks())
}

// Stop closes the subscription, writes everything already queued, then
// closes the sink.
func (w *Writer) Stop(ctx context.Context) error {
	return w.machine.Stop(ctx, w.hooks())
}

func (w *Writer) hooks() component.Hooks {
	return component.Hooks{Open: w.open, Close: w.close}
}

func (w *Writer) open(ctx context.Context) error {
	if err := w.deps.Runtime.Offload(ctx, w.sink.Open); err != nil {
		err = errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrSinkOpen, err),
			"Writer", "Start", "open "+w.sink.Description())
		w.lastErr.Store(&err)
		return err
	}

	w.sub = w.upstream.Subscribe(broadcast.WithQueueMetrics[Chunk](w.deps.MetricsRegistry, w.id))
	w.loopDone = make(chan struct{})
	go w.consume(w.sub)
	return nil
}

func (w *Writer) close(_ context.Context) error {
	w.sub.Close()
	<-w.loopDone

	if err := w.sink.Close(); err != nil {
		return errors.WrapTransient(err, "Writer", "Stop", "close "+w.sink.Description())
	}
	chunks, bytes := w.Written()
	w.logger.Debug("Writer drained", "chunks", chunks, "bytes", bytes)
	return nil
}

func (w *Writer) consume(sub *broadcast.Subscription[Chunk]) {
	defer close(w.loopDone)

	ctx := context.Background()
	for {
		chunk, ok := sub.Next(ctx)
		if !ok {
			return
		}
		if err := w.sink.Write(ctx, chunk); err != nil {
			w.fail(sub, err)
			return
		}
		w.chunks.Add(1)
		w.bytes.Add(int64(len(chunk)))
		w.core.RecordWrite(w.id, len(chunk))
	}
}

// fail aborts this writer's branch. The subscription is detached first so
// the upstream stops queueing for it.
func (w *Writer) fail(sub *broadcast.Subscription[Chunk], err error) {
	sub.Close()
	err = errors.Wrap(err, "Writer", "consume", "write to "+w.sink.Description())
	w.lastErr.Store(&err)
	w.core.RecordWriteError(w.id, errors.Classify(err).String())
	w.logger.Error("Writer failed, branch aborted", "error", err, "dropped", sub.Len())
	go func() { _ = w.Stop(context.Background()) }()
}
