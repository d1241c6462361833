// Package udp provides the UDP writer: chunks are sent as datagrams,
// split into fixed-size segments when they are too large for one.
package udp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
	"github.com/c360/splice/pipeline"
	"github.com/c360/splice/pkg/udputil"
)

// Config holds configuration for UDP writers
type Config struct {
	Threshold   int `json:"threshold" yaml:"threshold"`       // Largest chunk sent unsplit
	SegmentSize int `json:"segment_size" yaml:"segment_size"` // Datagram size for split chunks
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	return c.fragmenter().Validate()
}

func (c Config) fragmenter() udputil.Fragmenter {
	return udputil.Fragmenter{Threshold: c.Threshold, SegmentSize: c.SegmentSize}
}

// DefaultConfig returns the 1400/1300 split used by default
func DefaultConfig() Config {
	return Config{Threshold: udputil.DefaultThreshold, SegmentSize: udputil.DefaultSegmentSize}
}

// Output sends chunks to host:port from an ephemeral local socket.
type Output struct {
	host   string
	port   int
	frag   udputil.Fragmenter
	logger *slog.Logger
	core   *metric.Metrics

	mu   sync.Mutex
	conn *net.UDPConn
	dest *net.UDPAddr

	datagrams atomic.Int64
	bytesSent atomic.Int64
}

var _ pipeline.Sink = (*Output)(nil)

// NewOutput creates a UDP writer. Nothing is bound until Open.
func NewOutput(host string, port int, config Config, deps component.Dependencies) *Output {
	return &Output{
		host:   host,
		port:   port,
		frag:   config.fragmenter(),
		logger: deps.GetLoggerWithComponent("udp-output").With("host", host, "port", port),
		core:   deps.MetricsRegistry.CoreMetrics(),
	}
}

// Description implements pipeline.Sink.
func (o *Output) Description() string {
	return "udp://" + net.JoinHostPort(o.host, fmt.Sprint(o.port))
}

// Open resolves the destination and binds a local socket of the same
// family. A multicast destination also gets group membership on that socket.
func (o *Output) Open(_ context.Context) error {
	dest, err := net.ResolveUDPAddr("udp", net.JoinHostPort(o.host, fmt.Sprint(o.port)))
	if err != nil {
		return errors.WrapInvalid(err, "Output", "Open", "resolve "+o.Description())
	}

	network, local := "udp6", &net.UDPAddr{IP: net.IPv6unspecified}
	if dest.IP.To4() != nil {
		network, local = "udp4", &net.UDPAddr{IP: net.IPv4zero}
	}
	conn, err := net.ListenUDP(network, local)
	if err != nil {
		return errors.Wrap(err, "Output", "Open", "bind local socket for "+o.Description())
	}

	if udputil.IsMulticast(o.host) {
		o.logger.Debug("Multicast destination")
		if err := udputil.JoinGroup(conn, o.host); err != nil {
			o.logger.Warn("Multicast membership failed, sending anyway", "error", err)
		}
	}

	o.mu.Lock()
	o.conn, o.dest = conn, dest
	o.mu.Unlock()
	return nil
}

// Write sends chunk as one datagram, or as consecutive segments when it is
// larger than the threshold.
func (o *Output) Write(_ context.Context, chunk pipeline.Chunk) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	parts := o.frag.Split(chunk)
	for i, part := range parts {
		if _, err := o.conn.WriteToUDP(part, o.dest); err != nil {
			return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrWriteFailed, err),
				"Output", "Write", fmt.Sprintf("send datagram %d/%d to %s", i+1, len(parts), o.dest))
		}
		o.datagrams.Add(1)
		o.bytesSent.Add(int64(len(part)))
	}
	o.core.RecordDatagrams(o.Description(), len(parts))
	return nil
}

// Close closes the socket. Writes are synchronous, so nothing is in flight.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn == nil {
		return nil
	}
	err := o.conn.Close()
	o.conn = nil
	o.logger.Debug("UDP output closed", "datagrams", o.datagrams.Load(), "bytes", o.bytesSent.Load())
	return errors.Wrap(err, "Output", "Close", "close "+o.Description())
}

// Register registers the UDP writer with the given registry
func Register(registry *pipeline.Registry) error {
	return RegisterWithConfig(registry, DefaultConfig())
}

// RegisterWithConfig registers the UDP writer using config for every
// instance.
func RegisterWithConfig(registry *pipeline.Registry, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return registry.RegisterWithConfig(pipeline.RegistrationConfig{
		Kind:        string(pipeline.KindUDP),
		Args:        []string{"host", "port"},
		Description: "Sends chunks as UDP datagrams, splitting large chunks",
		Sink: func(spec pipeline.EndpointSpec, deps component.Dependencies) (pipeline.Sink, error) {
			return NewOutput(spec.Host, spec.Port, config, deps), nil
		},
	})
}
