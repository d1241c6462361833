package nats

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
	"github.com/c360/splice/natsclient"
	"github.com/c360/splice/pipeline"
	"github.com/c360/splice/pkg/buffer"
)

// Config holds configuration for NATS readers
type Config struct {
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReconnectWait  time.Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	MaxReconnects  int           `json:"max_reconnects" yaml:"max_reconnects"` // -1 for unlimited
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return errors.Configf("nats-input", "connect_timeout must be positive")
	}
	if c.ReconnectWait < 0 {
		return errors.Configf("nats-input", "reconnect_wait cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for NATS readers
func DefaultConfig() Config {
	return Config{ConnectTimeout: 5 * time.Second, ReconnectWait: 2 * time.Second, MaxReconnects: -1}
}

func (c Config) clientOptions(logger *slog.Logger, registry *metric.MetricsRegistry) []natsclient.ClientOption {
	return []natsclient.ClientOption{
		natsclient.WithTimeout(c.ConnectTimeout),
		natsclient.WithReconnectWait(c.ReconnectWait),
		natsclient.WithMaxReconnects(c.MaxReconnects),
		natsclient.WithName("splice-reader"),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry),
	}
}

// Input subscribes to a subject and yields each message as one chunk.
// Messages arriving before the reader opens are not seen.
type Input struct {
	spec   pipeline.EndpointSpec
	config Config
	deps   component.Dependencies
	logger *slog.Logger

	mu    sync.Mutex
	lease *natsclient.Lease
	sub   natsclient.Subscription
	queue *buffer.Queue[[]byte]
}

var _ pipeline.Source = (*Input)(nil)

// NewInput creates a NATS reader. A shared connection in
// deps.NATSClient is used when present, otherwise Open dials spec.URL.
func NewInput(spec pipeline.EndpointSpec, config Config, deps component.Dependencies) *Input {
	return &Input{
		spec:   spec,
		config: config,
		deps:   deps,
		logger: deps.GetLoggerWithComponent("nats-input").With("subject", spec.Subject),
	}
}

// Description implements pipeline.Source.
func (n *Input) Description() string { return n.spec.String() }

// Open connects and subscribes.
func (n *Input) Open(ctx context.Context) error {
	lease, err := natsclient.Acquire(ctx, n.deps.NATSClient, n.spec.URL,
		n.config.clientOptions(n.logger, n.deps.MetricsRegistry)...)
	if err != nil {
		return errors.Wrap(err, "Input", "Open", "connect "+n.spec.URL)
	}

	queue := buffer.NewQueue[[]byte](
		buffer.WithMetrics[[]byte](n.deps.MetricsRegistry, "nats_in_"+n.spec.Subject))
	sub, err := lease.Subscribe(ctx, n.spec.Subject, func(_ context.Context, data []byte) {
		if err := queue.Push(data); err != nil {
			n.logger.Debug("Message after close dropped", "bytes", len(data))
		}
	})
	if err != nil {
		_ = lease.Release(ctx)
		return errors.Wrap(err, "Input", "Open", "subscribe "+n.spec.Subject)
	}

	n.mu.Lock()
	n.lease, n.sub, n.queue = lease, sub, queue
	n.mu.Unlock()
	n.logger.Debug("Subscribed", "shared_connection", !lease.Owned())
	return nil
}

// Read blocks for the next message. It returns io.EOF after Close once
// buffered messages are consumed.
func (n *Input) Read(ctx context.Context) (pipeline.Chunk, error) {
	n.mu.Lock()
	queue := n.queue
	n.mu.Unlock()
	if queue == nil {
		return nil, io.ErrClosedPipe
	}

	data, err := queue.Pop(ctx)
	if errors.Is(err, buffer.ErrClosed) {
		return nil, io.EOF
	}
	return data, err
}

// Close unsubscribes and releases the connection.
func (n *Input) Close() error {
	n.mu.Lock()
	lease, sub, queue := n.lease, n.sub, n.queue
	n.lease, n.sub = nil, nil
	n.mu.Unlock()
	if lease == nil {
		return nil
	}

	var errs []error
	if err := sub.Unsubscribe(); err != nil {
		errs = append(errs, err)
	}
	queue.Close()

	ctx, cancel := context.WithTimeout(context.Background(), n.config.ConnectTimeout)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Register registers the NATS reader with the given registry
func Register(registry *pipeline.Registry) error {
	return RegisterWithConfig(registry, DefaultConfig())
}

// RegisterWithConfig registers the NATS reader using config for every
// instance.
func RegisterWithConfig(registry *pipeline.Registry, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return registry.RegisterWithConfig(pipeline.RegistrationConfig{
		Kind:        string(pipeline.KindNATS),
		Args:        []string{"subject"},
		Description: "Subscribes to a NATS subject, one chunk per message",
		Source: func(spec pipeline.EndpointSpec, deps component.Dependencies) (pipeline.Source, error) {
			return NewInput(spec, config, deps), nil
		},
	})
}
