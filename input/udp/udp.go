// Package udp provides the UDP reader: every datagram received on a bound
// socket becomes one chunk.
package udp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
	"github.com/c360/splice/pipeline"
	"github.com/c360/splice/pkg/udputil"
)

// Metrics holds Prometheus metrics for one UDP reader
type Metrics struct {
	packetsReceived prometheus.Counter
	bytesReceived   prometheus.Counter
	socketErrors    prometheus.Counter
	lastActivity    prometheus.Gauge
}

var metricNames = []string{"packets_received", "bytes_received", "socket_errors", "last_activity"}

// newMetrics creates and registers UDP reader metrics under udp_<port>.
func newMetrics(registry *metric.MetricsRegistry, port int) *Metrics {
	if registry == nil {
		return nil
	}

	labels := prometheus.Labels{"port": fmt.Sprint(port)}
	m := &Metrics{
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "splice",
			Subsystem:   "udp_input",
			Name:        "packets_received_total",
			Help:        "Total UDP datagrams received",
			ConstLabels: labels,
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "splice",
			Subsystem:   "udp_input",
			Name:        "bytes_received_total",
			Help:        "Total bytes received over UDP",
			ConstLabels: labels,
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "splice",
			Subsystem:   "udp_input",
			Name:        "socket_errors_total",
			Help:        "Socket read errors encountered",
			ConstLabels: labels,
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "splice",
			Subsystem:   "udp_input",
			Name:        "last_activity_timestamp",
			Help:        "Unix timestamp of the last received datagram",
			ConstLabels: labels,
		}),
	}

	service := serviceName(port)
	_ = registry.RegisterCounter(service, "packets_received", m.packetsReceived)
	_ = registry.RegisterCounter(service, "bytes_received", m.bytesReceived)
	_ = registry.RegisterCounter(service, "socket_errors", m.socketErrors)
	_ = registry.RegisterGauge(service, "last_activity", m.lastActivity)
	return m
}

func serviceName(port int) string { return fmt.Sprintf("udp_%d", port) }

// Config holds configuration for UDP readers
type Config struct {
	MaxDatagramSize int `json:"max_datagram_size" yaml:"max_datagram_size"` // Receive buffer per datagram
	SocketBuffer    int `json:"socket_buffer" yaml:"socket_buffer"`         // SO_RCVBUF request
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.MaxDatagramSize <= 0 || c.MaxDatagramSize > 65536 {
		return errors.Configf("udp-input", "max_datagram_size must be in 1..65536, got %d", c.MaxDatagramSize)
	}
	if c.SocketBuffer < 0 {
		return errors.Configf("udp-input", "socket_buffer cannot be negative")
	}
	return nil
}

// DefaultConfig returns sensible defaults for UDP readers
func DefaultConfig() Config {
	return Config{
		MaxDatagramSize: 65536,
		SocketBuffer:    2 * 1024 * 1024,
	}
}

// Input receives datagrams on host:port. A multicast host is joined on the
// system-chosen interface. The source has no natural end.
type Input struct {
	host     string
	port     int
	config   Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *Metrics

	mu   sync.Mutex
	conn *net.UDPConn
	buf  []byte

	messagesReceived atomic.Int64
	bytesReceived    atomic.Int64
	errors           atomic.Int64
}

var _ pipeline.Source = (*Input)(nil)

// NewInput creates a UDP reader. Nothing is bound until Open.
func NewInput(host string, port int, config Config, deps component.Dependencies) *Input {
	return &Input{
		host:     host,
		port:     port,
		config:   config,
		logger:   deps.GetLoggerWithComponent("udp-input").With("host", host, "port", port),
		registry: deps.MetricsRegistry,
	}
}

// Description implements pipeline.Source.
func (u *Input) Description() string {
	return "udp://" + net.JoinHostPort(u.host, fmt.Sprint(u.port))
}

// LocalAddr returns the bound address, or nil before Open.
func (u *Input) LocalAddr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Open binds the socket and joins the multicast group when host is one.
func (u *Input) Open(_ context.Context) error {
	multicast := udputil.IsMulticast(u.host)

	bind := u.host
	if multicast {
		bind = ""
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(bind, fmt.Sprint(u.port)))
	if err != nil {
		return errors.WrapInvalid(err, "Input", "Open", "resolve "+u.Description())
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return errors.Wrap(err, "Input", "Open", "listen on "+u.Description())
	}

	if multicast {
		if err := udputil.JoinGroup(conn, u.host); err != nil {
			_ = conn.Close()
			return err
		}
		u.logger.Info("Joined multicast group")
	}

	if u.config.SocketBuffer > 0 {
		if err := conn.SetReadBuffer(u.config.SocketBuffer); err != nil {
			u.logger.Warn("Could not set UDP buffer size", "buffer_size", u.config.SocketBuffer, "error", err)
		}
	}

	u.mu.Lock()
	u.conn = conn
	u.buf = make([]byte, u.config.MaxDatagramSize)
	u.metrics = newMetrics(u.registry, u.port)
	u.mu.Unlock()
	return nil
}

// Read blocks for the next datagram. Transient socket errors are counted
// and skipped.
func (u *Input) Read(ctx context.Context) (pipeline.Chunk, error) {
	u.mu.Lock()
	conn, buf := u.conn, u.buf
	u.mu.Unlock()
	if conn == nil {
		return nil, net.ErrClosed
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !errors.IsTransient(err) {
				return nil, err
			}
			u.errors.Add(1)
			if u.metrics != nil {
				u.metrics.socketErrors.Inc()
			}
			continue
		}

		u.messagesReceived.Add(1)
		u.bytesReceived.Add(int64(n))
		if u.metrics != nil {
			u.metrics.packetsReceived.Inc()
			u.metrics.bytesReceived.Add(float64(n))
			u.metrics.lastActivity.Set(float64(time.Now().Unix()))
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		return data, nil
	}
}

// Close closes the socket, unblocking a pending Read.
func (u *Input) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil

	if u.metrics != nil {
		for _, name := range metricNames {
			u.registry.Unregister(serviceName(u.port), name)
		}
	}
	u.logger.Debug("UDP input closed",
		"datagrams", u.messagesReceived.Load(),
		"bytes", u.bytesReceived.Load(),
		"errors", u.errors.Load())
	return errors.Wrap(err, "Input", "Close", "close "+u.Description())
}

// Register registers the UDP reader with the given registry
func Register(registry *pipeline.Registry) error {
	return RegisterWithConfig(registry, DefaultConfig())
}

// RegisterWithConfig registers the UDP reader using config for every
// instance.
func RegisterWithConfig(registry *pipeline.Registry, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return registry.RegisterWithConfig(pipeline.RegistrationConfig{
		Kind:        string(pipeline.KindUDP),
		Args:        []string{"host", "port"},
		Description: "Receives UDP datagrams, joining multicast groups when needed",
		Source: func(spec pipeline.EndpointSpec, deps component.Dependencies) (pipeline.Source, error) {
			return NewInput(spec.Host, spec.Port, config, deps), nil
		},
	})
}
