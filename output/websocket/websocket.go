// Package websocket provides the WebSocket writer: a server on host:port
// that broadcasts every chunk to its connected clients.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
	"github.com/c360/splice/pipeline"
)

// Config holds configuration for WebSocket writers
type Config struct {
	ClientQueue  int           `json:"client_queue" yaml:"client_queue"`   // Chunks buffered per client
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"` // Per-message write deadline
	PingInterval time.Duration `json:"ping_interval" yaml:"ping_interval"` // Keepalive period
	ReadLimit    int64         `json:"read_limit" yaml:"read_limit"`       // Largest client message accepted
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.ClientQueue <= 0 {
		return errors.Configf("websocket-output", "client_queue must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.Configf("websocket-output", "write_timeout must be positive")
	}
	if c.PingInterval <= 0 {
		return errors.Configf("websocket-output", "ping_interval must be positive")
	}
	return nil
}

// DefaultConfig returns default configuration for WebSocket writers
func DefaultConfig() Config {
	return Config{
		ClientQueue:  256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadLimit:    4096,
	}
}

// Metrics holds Prometheus metrics for one WebSocket writer
type Metrics struct {
	clientsConnected   prometheus.Gauge
	connectionTotal    prometheus.Counter
	disconnectionTotal *prometheus.CounterVec
	messagesSent       prometheus.Counter
	bytesSent          prometheus.Counter
	messagesDropped    prometheus.Counter
}

var metricNames = []string{"clients_connected", "connections", "disconnections", "messages_sent", "bytes_sent", "messages_dropped"}

func newMetrics(registry *metric.MetricsRegistry, service, endpoint string) *Metrics {
	if registry == nil {
		return nil
	}
	labels := prometheus.Labels{"endpoint": endpoint}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: "splice", Subsystem: "websocket", Name: name, Help: help, ConstLabels: labels}
	}
	m := &Metrics{
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts(opts("clients_connected",
			"Number of currently connected clients"))),
		connectionTotal: prometheus.NewCounter(prometheus.CounterOpts(opts("client_connections_total",
			"Total client connections (including disconnected)"))),
		disconnectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts(opts("client_disconnections_total",
			"Total client disconnections")), []string{"disconnect_reason"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts(opts("messages_sent_total",
			"Total messages sent to clients"))),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts(opts("bytes_sent_total",
			"Total bytes sent to clients"))),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts(opts("messages_dropped_total",
			"Chunks dropped because a client queue was full"))),
	}
	_ = registry.RegisterGauge(service, "clients_connected", m.clientsConnected)
	_ = registry.RegisterCounter(service, "connections", m.connectionTotal)
	_ = registry.RegisterCounterVec(service, "disconnections", m.disconnectionTotal)
	_ = registry.RegisterCounter(service, "messages_sent", m.messagesSent)
	_ = registry.RegisterCounter(service, "bytes_sent", m.bytesSent)
	_ = registry.RegisterCounter(service, "messages_dropped", m.messagesDropped)
	return m
}

// Output serves a WebSocket endpoint and sends each chunk to every client
// as one binary message. A client that cannot keep up loses chunks; other
// clients and the writer itself are unaffected.
type Output struct {
	spec     pipeline.EndpointSpec
	config   Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *Metrics
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
	clients  map[*client]struct{}
	closed   bool
	wg       sync.WaitGroup
}

type client struct {
	conn        *websocket.Conn
	send        chan pipeline.Chunk
	done        chan struct{}
	once        sync.Once
	connectedAt time.Time
	reason      string
}

func (c *client) close(reason string) bool {
	closed := false
	c.once.Do(func() {
		c.reason = reason
		close(c.done)
		closed = true
	})
	return closed
}

var _ pipeline.Sink = (*Output)(nil)

// NewOutput creates a WebSocket writer for spec (Host, Port, Path).
func NewOutput(spec pipeline.EndpointSpec, config Config, deps component.Dependencies) *Output {
	if spec.Path == "" {
		spec.Path = "/"
	}
	return &Output{
		spec:     spec,
		config:   config,
		logger:   deps.GetLoggerWithComponent("websocket-output").With("endpoint", spec.String()),
		registry: deps.MetricsRegistry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Description implements pipeline.Sink.
func (w *Output) Description() string { return w.spec.String() }

// Addr returns the listening address once open.
func (w *Output) Addr() net.Addr {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.listener == nil {
		return nil
	}
	return w.listener.Addr()
}

// Clients returns the number of connected clients.
func (w *Output) Clients() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.clients)
}

func (w *Output) serviceName() string { return fmt.Sprintf("ws_%d", w.spec.Port) }

// Open binds the listener and starts serving.
func (w *Output) Open(_ context.Context) error {
	ln, err := net.Listen("tcp", w.spec.Address())
	if err != nil {
		return errors.Wrap(err, "Output", "Open", "listen on "+w.spec.Address())
	}

	mux := http.NewServeMux()
	mux.HandleFunc(w.spec.Path, w.handleWebSocket)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	w.mu.Lock()
	w.listener = ln
	w.server = server
	w.clients = make(map[*client]struct{})
	w.closed = false
	w.metrics = newMetrics(w.registry, w.serviceName(), w.spec.String())
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			w.logger.Error("WebSocket server failed", "error", err)
		}
	}()
	w.logger.Info("WebSocket writer listening", "addr", ln.Addr().String(), "path", w.spec.Path)
	return nil
}

func (w *Output) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Debug("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		conn:        conn,
		send:        make(chan pipeline.Chunk, w.config.ClientQueue),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = conn.Close()
		return
	}
	w.clients[c] = struct{}{}
	count := len(w.clients)
	w.wg.Add(2)
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.connectionTotal.Inc()
		w.metrics.clientsConnected.Set(float64(count))
	}
	w.logger.Debug("Client connected", "remote", conn.RemoteAddr().String(), "clients", count)

	go w.writePump(c)
	go w.readPump(c)
}

// readPump discards client messages and notices disconnects.
func (w *Output) readPump(c *client) {
	defer w.wg.Done()
	c.conn.SetReadLimit(w.config.ReadLimit)
	deadline := 2 * w.config.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.close("client_closed")
			return
		}
	}
}

func (w *Output) writePump(c *client) {
	defer w.wg.Done()
	defer w.removeClient(c)

	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case chunk := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				c.close("write_error")
				return
			}
			if w.metrics != nil {
				w.metrics.messagesSent.Inc()
				w.metrics.bytesSent.Add(float64(len(chunk)))
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close("ping_failed")
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (w *Output) removeClient(c *client) {
	w.mu.Lock()
	delete(w.clients, c)
	count := len(w.clients)
	w.mu.Unlock()

	_ = c.conn.Close()
	if w.metrics != nil {
		w.metrics.clientsConnected.Set(float64(count))
		w.metrics.disconnectionTotal.WithLabelValues(c.reason).Inc()
	}
	w.logger.Debug("Client disconnected", "reason", c.reason,
		"connected_for", time.Since(c.connectedAt).String(), "clients", count)
}

// Write queues chunk for every connected client. It never blocks on a
// client and never fails; with no clients the chunk is discarded.
func (w *Output) Write(_ context.Context, chunk pipeline.Chunk) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for c := range w.clients {
		select {
		case c.send <- chunk:
		default:
			if w.metrics != nil {
				w.metrics.messagesDropped.Inc()
			}
		}
	}
	return nil
}

// Close disconnects every client and stops the server.
func (w *Output) Close() error {
	w.mu.Lock()
	if w.server == nil || w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	server := w.server
	clients := make([]*client, 0, len(w.clients))
	for c := range w.clients {
		clients = append(clients, c)
	}
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(ctx)
	for _, c := range clients {
		c.close("server_shutdown")
	}
	w.wg.Wait()

	if w.metrics != nil {
		for _, name := range metricNames {
			w.registry.Unregister(w.serviceName(), name)
		}
	}
	return errors.Wrap(err, "Output", "Close", "shutdown server")
}

// Register registers the WebSocket writer with the given registry
func Register(registry *pipeline.Registry) error {
	return RegisterWithConfig(registry, DefaultConfig())
}

// RegisterWithConfig registers the WebSocket writer using config for every
// instance.
func RegisterWithConfig(registry *pipeline.Registry, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return registry.RegisterWithConfig(pipeline.RegistrationConfig{
		Kind:        string(pipeline.KindWebSocket),
		Args:        []string{"port"},
		Description: "Serves a WebSocket endpoint and broadcasts chunks as binary messages",
		Sink: func(spec pipeline.EndpointSpec, deps component.Dependencies) (pipeline.Sink, error) {
			return NewOutput(spec, config, deps), nil
		},
	})
}
