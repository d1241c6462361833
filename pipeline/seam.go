package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/c360/splice/broadcast"
	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
	"github.com/c360/splice/pkg/buffer"
)

// SeamStats are the byte counters of a seam.
type SeamStats struct {
	Received int64 `json:"received"` // enqueued from upstream
	Read     int64 `json:"read"`     // handed to the processor
	Written  int64 `json:"written"`  // pushed by the processor
	Sent     int64 `json:"sent"`     // published downstream
}

// Seam sits between a parent channel and its own writers and seams. Chunks
// flow upstream subscription (read queue) → processor → write queue → own
// channel. Each queue has a single consumer, so order is kept end to end.
type Seam struct {
	fanout

	id        string
	spec      SeamSpec
	processor Processor
	upstream  *broadcast.Channel[Chunk]
	logger    *slog.Logger
	core      *metric.Metrics
	machine   *component.Machine

	sub    atomic.Pointer[broadcast.Subscription[Chunk]]
	writeQ atomic.Pointer[buffer.Queue[Chunk]]
	group  *errgroup.Group

	pulled   chan struct{}
	pullOnce sync.Once
	lastErr  atomic.Pointer[error]

	received atomic.Int64
	read     atomic.Int64
	written  atomic.Int64
	sent     atomic.Int64
}

var (
	_ component.LifecycleComponent = (*Seam)(nil)
	_ Pusher                       = (*Seam)(nil)
)

// NewSeam returns an Idle seam reading from upstream. A nil processor
// leaves consumption to the caller through Pull.
func NewSeam(spec SeamSpec, proc Processor, upstream *broadcast.Channel[Chunk], registry *Registry, deps component.Dependencies) *Seam {
	id := newID(RoleSeam)
	logger := deps.GetLoggerWithComponent("seam").With("id", id, "kind", spec.Kind)
	machine := component.NewMachine(id, string(RoleSeam), logger, deps.MetricsRegistry)
	return &Seam{
		fanout:    newFanout(id, registry, deps, machine),
		id:        id,
		spec:      spec,
		processor: proc,
		upstream:  upstream,
		logger:    logger,
		core:      deps.MetricsRegistry.CoreMetrics(),
		machine:   machine,
		pulled:    make(chan struct{}),
	}
}

// ID returns the seam's unique id.
func (s *Seam) ID() string { return s.id }

// Spec returns the spec the seam was built from.
func (s *Seam) Spec() SeamSpec { return s.spec }

// Description names the seam.
func (s *Seam) Description() string { return s.spec.String() }

// State returns the lifecycle state.
func (s *Seam) State() component.State { return s.machine.State() }

// Running reports whether the seam is moving data.
func (s *Seam) Running() bool { return s.machine.Running() }

// Done is closed once the seam and all its endpoints are Stopped.
func (s *Seam) Done() <-chan struct{} { return s.machine.Done() }

// OnStopped registers fn to run once the seam is Stopped.
func (s *Seam) OnStopped(fn func()) { s.machine.OnStopped(fn) }

// Topology returns the subtree rooted at this seam.
func (s *Seam) Topology() Node {
	return Node{Role: RoleSeam, Seam: s.spec, Children: s.children()}
}

// Err returns the processor error that ended the seam's branch, if any.
func (s *Seam) Err() error {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Stats returns the seam's byte counters.
func (s *Seam) Stats() SeamStats {
	return SeamStats{
		Received: s.received.Load(),
		Read:     s.read.Load(),
		Written:  s.written.Load(),
		Sent:     s.sent.Load(),
	}
}

// Start starts the seam's own endpoints, then subscribes upstream and
// starts the processing and sending loops.
func (s *Seam) Start(ctx context.Context) error {
	return s.machine.Start(ctx, s.hooks())
}

// Stop detaches from upstream and returns once both queues are empty and
// every endpoint below the seam is Stopped.
func (s *Seam) Stop(ctx context.Context) error {
	return s.machine.Stop(ctx, s.hooks())
}

func (s *Seam) hooks() component.Hooks {
	return component.Hooks{
		Dependents: s.Endpoints,
		Open:       s.open,
		Close:      s.close,
	}
}

// Push queues chunk for the seam's endpoints.
func (s *Seam) Push(chunk Chunk) error {
	q := s.writeQ.Load()
	if q == nil {
		return errors.WrapInvalid(errors.ErrNotRunning, "Seam", "Push", "push to "+s.id)
	}
	if err := q.Push(chunk); err != nil {
		return errors.WrapTransient(errors.ErrQueueClosed, "Seam", "Push", "push to "+s.id)
	}
	s.count(&s.written, "written", len(chunk))
	return nil
}

// Pull returns the next chunk from the read queue. It is for seams built
// without a processor; ok is false once the seam is stopping and the read
// queue is drained, or when ctx ends. Stop waits until Pull has reported
// the end.
func (s *Seam) Pull(ctx context.Context) (Chunk, bool) {
	sub := s.sub.Load()
	if sub == nil || s.processor != nil {
		return nil, false
	}
	chunk, ok := sub.Next(ctx)
	if !ok {
		if ctx.Err() == nil {
			s.pullOnce.Do(func() { close(s.pulled) })
		}
		return nil, false
	}
	s.count(&s.read, "read", len(chunk))
	return chunk, true
}

func (s *Seam) count(c *atomic.Int64, stage string, n int) {
	c.Add(int64(n))
	s.core.RecordSeamBytes(s.id, stage, n)
}

func (s *Seam) open(ctx context.Context) error {
	reg := s.deps.MetricsRegistry
	s.writeQ.Store(buffer.NewQueue(buffer.WithMetrics[Chunk](reg, s.id+"-write")))
	s.sub.Store(s.upstream.Subscribe(
		broadcast.WithEnqueueHook(func(c Chunk) { s.count(&s.received, "received", len(c)) }),
		broadcast.WithQueueMetrics[Chunk](reg, s.id+"-read"),
	))

	// send drains the write queue even after a processor failure.
	runCtx := context.WithoutCancel(ctx)
	g := &errgroup.Group{}
	if s.processor != nil {
		g.Go(func() error { return s.process(runCtx) })
	} else {
		g.Go(s.awaitPulled)
	}
	g.Go(func() error { return s.send(runCtx) })
	s.group = g
	return nil
}

func (s *Seam) close(_ context.Context) error {
	s.sub.Load().Close()
	err := s.group.Wait()

	st := s.Stats()
	s.logger.Info("Seam drained",
		"received", st.Received, "read", st.Read, "written", st.Written, "sent", st.Sent)
	return err
}

// process feeds the read queue through the processor, one chunk at a time.
func (s *Seam) process(ctx context.Context) error {
	q := s.writeQ.Load()
	defer q.Close()

	sub := s.sub.Load()
	for {
		chunk, ok := sub.Next(ctx)
		if !ok {
			return nil
		}
		s.count(&s.read, "read", len(chunk))
		if err := s.processor.Process(ctx, chunk, s); err != nil {
			sub.Close()
			err = errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrProcess, err),
				"Seam", "process", "process chunk in "+s.spec.Kind)
			s.lastErr.Store(&err)
			s.logger.Error("Processor failed, branch aborted", "error", err)
			go func() { _ = s.Stop(context.Background()) }()
			return err
		}
	}
}

func (s *Seam) awaitPulled() error {
	defer s.writeQ.Load().Close()
	<-s.pulled
	return nil
}

// send publishes the write queue to the seam's channel. It ends once the
// write queue is closed and drained.
func (s *Seam) send(ctx context.Context) error {
	defer s.channel.Close()

	q := s.writeQ.Load()
	for {
		chunk, err := q.Pop(ctx)
		if err != nil {
			return nil
		}
		s.channel.Publish(chunk)
		s.count(&s.sent, "sent", len(chunk))
	}
}
