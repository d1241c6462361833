package websocket

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
	"github.com/c360/splice/pipeline"
	"github.com/c360/splice/pkg/buffer"
	"github.com/c360/splice/pkg/retry"
)

// Config holds configuration for WebSocket readers
type Config struct {
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
	ReadLimit        int64         `json:"read_limit" yaml:"read_limit"`         // Largest message accepted
	MaxReconnects    int           `json:"max_reconnects" yaml:"max_reconnects"` // 0 disables reconnection
	ReconnectWait    time.Duration `json:"reconnect_wait" yaml:"reconnect_wait"` // First backoff delay
	MaxReconnectWait time.Duration `json:"max_reconnect_wait" yaml:"max_reconnect_wait"`
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.HandshakeTimeout <= 0 {
		return errors.Configf("websocket-input", "handshake_timeout must be positive")
	}
	if c.ReadLimit <= 0 {
		return errors.Configf("websocket-input", "read_limit must be positive")
	}
	if c.MaxReconnects < 0 {
		return errors.Configf("websocket-input", "max_reconnects cannot be negative")
	}
	if c.ReconnectWait < 0 || c.MaxReconnectWait < c.ReconnectWait {
		return errors.Configf("websocket-input", "reconnect_wait must be between 0 and max_reconnect_wait")
	}
	return nil
}

// DefaultConfig returns default configuration for WebSocket readers
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		ReadLimit:        16 << 20,
		MaxReconnects:    5,
		ReconnectWait:    500 * time.Millisecond,
		MaxReconnectWait: 10 * time.Second,
	}
}

func (c Config) backoff() retry.Config {
	return retry.Config{
		MaxAttempts:  c.MaxReconnects,
		InitialDelay: c.ReconnectWait,
		MaxDelay:     c.MaxReconnectWait,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

type inputMetrics struct {
	messages   prometheus.Counter
	reconnects prometheus.Counter
}

func newInputMetrics(registry *metric.MetricsRegistry, endpoint string) *inputMetrics {
	if registry == nil {
		return nil
	}
	labels := prometheus.Labels{"endpoint": endpoint}
	m := &inputMetrics{
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "splice", Subsystem: "websocket_in", Name: "messages_total",
			Help: "Messages received", ConstLabels: labels,
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "splice", Subsystem: "websocket_in", Name: "reconnects_total",
			Help: "Successful reconnections after a dropped connection", ConstLabels: labels,
		}),
	}
	service := metricService(endpoint)
	_ = registry.RegisterCounter(service, "messages", m.messages)
	_ = registry.RegisterCounter(service, "reconnects", m.reconnects)
	return m
}

func metricService(endpoint string) string { return "websocket-input:" + endpoint }

func (m *inputMetrics) received() {
	if m != nil {
		m.messages.Inc()
	}
}

func (m *inputMetrics) reconnected() {
	if m != nil {
		m.reconnects.Inc()
	}
}

// Input is a WebSocket client reader.
type Input struct {
	spec    pipeline.EndpointSpec
	config  Config
	deps    component.Dependencies
	logger  *slog.Logger
	metrics *inputMetrics
	dialer  websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	queue  *buffer.Queue[[]byte]
	cancel context.CancelFunc
	err    error
	wg     sync.WaitGroup
}

var _ pipeline.Source = (*Input)(nil)

// NewInput creates a WebSocket reader for spec.URL.
func NewInput(spec pipeline.EndpointSpec, config Config, deps component.Dependencies) *Input {
	return &Input{
		spec:   spec,
		config: config,
		deps:   deps,
		logger: deps.GetLoggerWithComponent("websocket-input").With("url", spec.URL),
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}
}

// Description implements pipeline.Source.
func (i *Input) Description() string { return i.spec.String() }

// Open dials the server once and starts receiving.
func (i *Input) Open(ctx context.Context) error {
	conn, err := i.dial(ctx)
	if err != nil {
		return errors.Wrap(err, "Input", "Open", "dial "+i.spec.URL)
	}

	i.metrics = newInputMetrics(i.deps.MetricsRegistry, i.spec.String())
	queue := buffer.NewQueue[[]byte](
		buffer.WithMetrics[[]byte](i.deps.MetricsRegistry, "websocket_in_"+i.spec.Host))
	loopCtx, cancel := context.WithCancel(context.Background())

	i.mu.Lock()
	i.conn, i.queue, i.cancel, i.err = conn, queue, cancel, nil
	i.mu.Unlock()

	i.wg.Add(1)
	go i.receiveLoop(loopCtx, conn, queue)
	i.logger.Debug("Connected")
	return nil
}

func (i *Input) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := i.dialer.DialContext(ctx, i.spec.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(i.config.ReadLimit)
	return conn, nil
}

// receiveLoop pushes messages until the stream ends, reconnecting after
// abnormal disconnects. The queue is closed on the way out.
func (i *Input) receiveLoop(ctx context.Context, conn *websocket.Conn, queue *buffer.Queue[[]byte]) {
	defer i.wg.Done()
	defer queue.Close()

	for {
		err := i.drain(conn, queue)
		if ctx.Err() != nil {
			return
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			i.logger.Debug("Server closed the stream")
			return
		}
		i.logger.Warn("Connection lost", "error", err)

		conn, err = i.reconnect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				i.fail(errors.WrapTransient(err, "Input", "Read", "reconnect "+i.spec.URL))
			}
			return
		}
		i.mu.Lock()
		if ctx.Err() != nil {
			i.mu.Unlock()
			_ = conn.Close()
			return
		}
		i.conn = conn
		i.mu.Unlock()
		i.metrics.reconnected()
		i.logger.Info("Reconnected")
	}
}

func (i *Input) drain(conn *websocket.Conn, queue *buffer.Queue[[]byte]) error {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := queue.Push(data); err != nil {
			return err
		}
		i.metrics.received()
	}
}

func (i *Input) reconnect(ctx context.Context) (*websocket.Conn, error) {
	if i.config.MaxReconnects == 0 {
		return nil, errors.New("reconnection disabled")
	}
	return retry.DoWithResult(ctx, i.config.backoff(), func() (*websocket.Conn, error) {
		return i.dial(ctx)
	})
}

func (i *Input) fail(err error) {
	i.mu.Lock()
	i.err = err
	i.mu.Unlock()
}

// Read blocks for the next message. It returns io.EOF once the server ends
// the stream or the reader is closed, and the reconnect error when the
// connection could not be restored.
func (i *Input) Read(ctx context.Context) (pipeline.Chunk, error) {
	i.mu.Lock()
	queue := i.queue
	i.mu.Unlock()
	if queue == nil {
		return nil, io.ErrClosedPipe
	}

	data, err := queue.Pop(ctx)
	if errors.Is(err, buffer.ErrClosed) {
		i.mu.Lock()
		defer i.mu.Unlock()
		if i.err != nil {
			return nil, i.err
		}
		return nil, io.EOF
	}
	return data, err
}

// Close sends a close frame and stops receiving.
func (i *Input) Close() error {
	i.mu.Lock()
	conn, cancel := i.conn, i.cancel
	i.conn, i.cancel = nil, nil
	if cancel != nil {
		cancel()
	}
	i.mu.Unlock()
	if cancel == nil {
		return nil
	}

	// The connection may already be gone mid-reconnect; errors here are moot.
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
	i.wg.Wait()

	if i.deps.MetricsRegistry != nil {
		for _, name := range []string{"messages", "reconnects"} {
			i.deps.MetricsRegistry.Unregister(metricService(i.spec.String()), name)
		}
	}
	return nil
}

// Register registers the WebSocket reader with the given registry
func Register(registry *pipeline.Registry) error {
	return RegisterWithConfig(registry, DefaultConfig())
}

// RegisterWithConfig registers the WebSocket reader using config for every
// instance.
func RegisterWithConfig(registry *pipeline.Registry, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return registry.RegisterWithConfig(pipeline.RegistrationConfig{
		Kind:        string(pipeline.KindWebSocket),
		Description: "Connects to a WebSocket server, one chunk per message",
		Source: func(spec pipeline.EndpointSpec, deps component.Dependencies) (pipeline.Source, error) {
			return NewInput(spec, config, deps), nil
		},
	})
}
