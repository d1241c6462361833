package nats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/natsclient"
	"github.com/c360/splice/pipeline"
)

// Config holds configuration for NATS writers
type Config struct {
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReconnectWait  time.Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	MaxReconnects  int           `json:"max_reconnects" yaml:"max_reconnects"` // -1 for unlimited
	MaxPayload     int           `json:"max_payload" yaml:"max_payload"`       // 0 disables the check
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return errors.Configf("nats-output", "connect_timeout must be positive")
	}
	if c.ReconnectWait < 0 {
		return errors.Configf("nats-output", "reconnect_wait cannot be negative")
	}
	if c.MaxPayload < 0 {
		return errors.Configf("nats-output", "max_payload cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for NATS writers. MaxPayload
// matches the server's default limit.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		MaxPayload:     1024 * 1024,
	}
}

// Output publishes every chunk as one message on a subject.
type Output struct {
	spec   pipeline.EndpointSpec
	config Config
	deps   component.Dependencies
	logger *slog.Logger

	mu    sync.Mutex
	lease *natsclient.Lease
}

var _ pipeline.Sink = (*Output)(nil)

// NewOutput creates a NATS writer. A shared connection in
// deps.NATSClient is used when present, otherwise Open dials spec.URL.
func NewOutput(spec pipeline.EndpointSpec, config Config, deps component.Dependencies) *Output {
	return &Output{
		spec:   spec,
		config: config,
		deps:   deps,
		logger: deps.GetLoggerWithComponent("nats-output").With("subject", spec.Subject),
	}
}

// Description implements pipeline.Sink.
func (n *Output) Description() string { return n.spec.String() }

// Open connects to the server.
func (n *Output) Open(ctx context.Context) error {
	lease, err := natsclient.Acquire(ctx, n.deps.NATSClient, n.spec.URL,
		natsclient.WithTimeout(n.config.ConnectTimeout),
		natsclient.WithReconnectWait(n.config.ReconnectWait),
		natsclient.WithMaxReconnects(n.config.MaxReconnects),
		natsclient.WithName("splice-writer"),
		natsclient.WithLogger(n.logger),
		natsclient.WithMetrics(n.deps.MetricsRegistry))
	if err != nil {
		return errors.Wrap(err, "Output", "Open", "connect "+n.spec.URL)
	}
	n.mu.Lock()
	n.lease = lease
	n.mu.Unlock()
	return nil
}

// Write publishes chunk. A chunk over MaxPayload is a fatal error; a
// disconnected client is transient.
func (n *Output) Write(ctx context.Context, chunk pipeline.Chunk) error {
	n.mu.Lock()
	lease := n.lease
	n.mu.Unlock()
	if lease == nil {
		return errors.WrapFatal(errors.ErrNotRunning, "Output", "Write", "publish "+n.spec.Subject)
	}
	if n.config.MaxPayload > 0 && len(chunk) > n.config.MaxPayload {
		return errors.WrapFatal(errors.ErrWriteFailed, "Output", "Write",
			"publish oversized chunk to "+n.spec.Subject)
	}
	if err := lease.Publish(ctx, n.spec.Subject, chunk); err != nil {
		return errors.WrapTransient(errors.Join(errors.ErrWriteFailed, err), "Output", "Write",
			"publish "+n.spec.Subject)
	}
	return nil
}

// Close flushes pending messages and releases the connection.
func (n *Output) Close() error {
	n.mu.Lock()
	lease := n.lease
	n.lease = nil
	n.mu.Unlock()
	if lease == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.config.ConnectTimeout)
	defer cancel()
	if c, ok := lease.PubSub.(*natsclient.Client); ok {
		if err := c.Flush(ctx); err != nil {
			n.logger.Warn("Flush before close failed", "error", err)
		}
	}
	return lease.Release(ctx)
}

// Register registers the NATS writer with the given registry
func Register(registry *pipeline.Registry) error {
	return RegisterWithConfig(registry, DefaultConfig())
}

// RegisterWithConfig registers the NATS writer using config for every
// instance.
func RegisterWithConfig(registry *pipeline.Registry, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return registry.RegisterWithConfig(pipeline.RegistrationConfig{
		Kind:        string(pipeline.KindNATS),
		Args:        []string{"subject"},
		Description: "Publishes each chunk as a NATS message",
		Sink: func(spec pipeline.EndpointSpec, deps component.Dependencies) (pipeline.Sink, error) {
			return NewOutput(spec, config, deps), nil
		},
	})
}
