package component

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
)

// State represents the lifecycle state of a reader, writer or seam.
// Transitions are strictly linear and Stopped is terminal.
type State int32

const (
	// StateIdle indicates the entity was built but not started
	StateIdle State = iota
	// StateStarting indicates dependents are starting and the entity is opening
	StateStarting
	// StateRunning indicates the entity is moving data
	StateRunning
	// StateStopping indicates the entity is draining and waiting for dependents
	StateStopping
	// StateStopped indicates the entity and all of its dependents have stopped
	StateStopped
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// LifecycleComponent is anything that can sit below a reader or seam:
// writers and seams. Readers satisfy it too.
type LifecycleComponent interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
	State() State
	Done() <-chan struct{}
	Description() string
}

// Hooks are the entity-specific steps the Machine runs around its
// dependents. Any field may be nil.
type Hooks struct {
	// Dependents returns the endpoints that must be Running before Open and
	// Stopped before the entity reports Stopped.
	Dependents func() []LifecycleComponent
	// Open acquires resources and starts producing. Runs after every
	// dependent has been started.
	Open func(ctx context.Context) error
	// Close stops producing and drains. Runs before dependents are stopped.
	Close func(ctx context.Context) error
}

// Machine implements the shared Idle, Starting, Running, Stopping, Stopped
// state machine with start and stop barriers over dependents.
type Machine struct {
	name   string
	role   string
	logger *slog.Logger
	core   *metric.Metrics

	state         atomic.Int32
	stopRequested atomic.Bool
	done          chan struct{}
	stopErr       error

	cbMu      sync.Mutex
	callbacks []func()
	fired     bool
}

// NewMachine creates an Idle machine. name labels logs and metrics, role is
// "reader", "writer" or "seam".
func NewMachine(name, role string, logger *slog.Logger, registry *metric.MetricsRegistry) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{
		name:   name,
		role:   role,
		logger: logger,
		core:   registry.CoreMetrics(),
		done:   make(chan struct{}),
	}
	m.core.RecordEntityState(name, role, int(StateIdle))
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Running reports whether the machine is in StateRunning.
func (m *Machine) Running() bool {
	return m.State() == StateRunning
}

// Done is closed when the machine reaches StateStopped.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// OnStopped registers fn to run once when the machine reaches StateStopped.
// If it already has, fn runs immediately.
func (m *Machine) OnStopped(fn func()) {
	m.cbMu.Lock()
	if !m.fired {
		m.callbacks = append(m.callbacks, fn)
		m.cbMu.Unlock()
		return
	}
	m.cbMu.Unlock()
	fn()
}

func (m *Machine) set(s State) {
	m.state.Store(int32(s))
	m.core.RecordEntityState(m.name, m.role, int(s))
}

// Start moves Idle to Running. Every dependent is started concurrently and
// the machine waits for all of them before calling hooks.Open. A dependent
// that fails to start is logged and left Stopped; only an Open failure fails
// Start, in which case started dependents are stopped and the machine ends
// in StateStopped.
func (m *Machine) Start(ctx context.Context, hooks Hooks) error {
	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, m.role, "Start",
			"start "+m.name+" in state "+m.State().String())
	}
	m.core.RecordEntityState(m.name, m.role, int(StateStarting))

	var deps []LifecycleComponent
	if hooks.Dependents != nil {
		deps = hooks.Dependents()
	}
	for i, err := range StartAll(ctx, deps) {
		if err != nil {
			m.logger.Warn("Dependent failed to start, branch aborted",
				"component", m.name, "dependent", deps[i].Description(), "error", err)
		}
	}

	if hooks.Open != nil {
		if err := hooks.Open(ctx); err != nil {
			m.set(StateStopping)
			StopAll(context.WithoutCancel(ctx), deps)
			m.finish(err)
			return err
		}
	}

	m.set(StateRunning)
	m.logger.Debug("Started", "component", m.name, "role", m.role, "dependents", len(deps))

	if m.stopRequested.Load() {
		go func() { _ = m.Stop(context.Background(), hooks) }()
	}
	return nil
}

// Stop moves Running to Stopped: hooks.Close, then every dependent is
// stopped and waited for, then Done is closed and OnStopped callbacks fire.
// Stop on an Idle, Stopping or Stopped machine is a no-op. Stop during
// Starting is deferred until Start completes. If ctx ends first Stop returns
// ctx.Err() and the shutdown continues in the background.
func (m *Machine) Stop(ctx context.Context, hooks Hooks) error {
	for !m.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		switch m.State() {
		case StateRunning:
			continue
		case StateStarting:
			// Start checks the flag after entering Running; if it got
			// there before the flag was set, take the stop over here.
			m.stopRequested.Store(true)
			if m.State() != StateRunning {
				return nil
			}
		default:
			return nil
		}
	}
	m.core.RecordEntityState(m.name, m.role, int(StateStopping))

	go m.stopSequence(hooks)

	select {
	case <-m.done:
		return m.stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) stopSequence(hooks Hooks) {
	ctx := context.Background()
	var err error
	if hooks.Close != nil {
		err = hooks.Close(ctx)
		if err != nil {
			m.logger.Warn("Close failed", "component", m.name, "error", err)
		}
	}
	if hooks.Dependents != nil {
		StopAll(ctx, hooks.Dependents())
	}
	m.finish(err)
	m.logger.Debug("Stopped", "component", m.name, "role", m.role)
}

func (m *Machine) finish(err error) {
	m.stopErr = err
	m.set(StateStopped)
	close(m.done)

	m.cbMu.Lock()
	cbs := m.callbacks
	m.callbacks = nil
	m.fired = true
	m.cbMu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}

// StartAll starts every component concurrently and returns once all Start
// calls have returned. errs[i] belongs to comps[i].
func StartAll(ctx context.Context, comps []LifecycleComponent) []error {
	errs := make([]error, len(comps))
	var wg sync.WaitGroup
	for i, c := range comps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Start(ctx)
		}()
	}
	wg.Wait()
	return errs
}

// StopAll signals every component to stop and blocks until each one that
// was ever started reports Stopped, or ctx ends.
func StopAll(ctx context.Context, comps []LifecycleComponent) {
	var wg sync.WaitGroup
	for _, c := range comps {
		if c.State() == StateIdle {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Stop(ctx)
			select {
			case <-c.Done():
			case <-ctx.Done():
			}
		}()
	}
	wg.Wait()
}
