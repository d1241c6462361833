package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the splice-wide metrics shared by every entity. All
// Record methods are safe on a nil receiver so callers without a registry
// can call them unconditionally.
type Metrics struct {
	EntityState     *prometheus.GaugeVec
	ReadersRunning  prometheus.Gauge
	ChunksPublished *prometheus.CounterVec
	BytesPublished  *prometheus.CounterVec
	ChunksWritten   *prometheus.CounterVec
	BytesWritten    *prometheus.CounterVec
	WriteErrors     *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	SeamBytes       *prometheus.CounterVec
	DatagramsSent   *prometheus.CounterVec

	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates the splice core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EntityState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "splice",
				Name:      "entity_state",
				Help:      "Lifecycle state (0=idle, 1=starting, 2=running, 3=stopping, 4=stopped)",
			},
			[]string{"entity", "role"},
		),

		ReadersRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "splice",
				Name:      "readers_running",
				Help:      "Top-level readers currently running",
			},
		),

		ChunksPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "splice",
				Name:      "chunks_published_total",
				Help:      "Chunks published on a broadcast channel",
			},
			[]string{"channel"},
		),

		BytesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "splice",
				Name:      "bytes_published_total",
				Help:      "Bytes published on a broadcast channel",
			},
			[]string{"channel"},
		),

		ChunksWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "splice",
				Name:      "chunks_written_total",
				Help:      "Chunks delivered to a sink",
			},
			[]string{"writer"},
		),

		BytesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "splice",
				Name:      "bytes_written_total",
				Help:      "Bytes delivered to a sink",
			},
			[]string{"writer"},
		),

		WriteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "splice",
				Name:      "write_errors_total",
				Help:      "Sink write failures by error class",
			},
			[]string{"writer", "class"},
		),

		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "splice",
				Name:      "queue_depth",
				Help:      "Chunks waiting in a subscriber or seam queue",
			},
			[]string{"queue"},
		),

		SeamBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "splice",
				Name:      "seam_bytes_total",
				Help:      "Bytes moved through a seam by stage",
			},
			[]string{"seam", "stage"},
		),

		DatagramsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "splice",
				Name:      "datagrams_sent_total",
				Help:      "UDP datagrams sent after fragmentation",
			},
			[]string{"writer"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "splice",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "splice",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "NATS reconnections",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.EntityState,
		c.ReadersRunning,
		c.ChunksPublished,
		c.BytesPublished,
		c.ChunksWritten,
		c.BytesWritten,
		c.WriteErrors,
		c.QueueDepth,
		c.SeamBytes,
		c.DatagramsSent,
		c.NATSConnected,
		c.NATSReconnects,
	}
}

// RecordEntityState sets the lifecycle state gauge for an entity
func (c *Metrics) RecordEntityState(entity, role string, state int) {
	if c == nil {
		return
	}
	c.EntityState.WithLabelValues(entity, role).Set(float64(state))
}

// RecordReadersRunning sets the number of running top-level readers
func (c *Metrics) RecordReadersRunning(n int) {
	if c == nil {
		return
	}
	c.ReadersRunning.Set(float64(n))
}

// RecordPublish counts one chunk published on a channel
func (c *Metrics) RecordPublish(channel string, size int) {
	if c == nil {
		return
	}
	c.ChunksPublished.WithLabelValues(channel).Inc()
	c.BytesPublished.WithLabelValues(channel).Add(float64(size))
}

// RecordWrite counts one chunk delivered to a sink
func (c *Metrics) RecordWrite(writer string, size int) {
	if c == nil {
		return
	}
	c.ChunksWritten.WithLabelValues(writer).Inc()
	c.BytesWritten.WithLabelValues(writer).Add(float64(size))
}

// RecordWriteError counts a failed sink write
func (c *Metrics) RecordWriteError(writer, class string) {
	if c == nil {
		return
	}
	c.WriteErrors.WithLabelValues(writer, class).Inc()
}

// RecordQueueDepth sets the backlog of a queue
func (c *Metrics) RecordQueueDepth(queue string, depth int) {
	if c == nil {
		return
	}
	c.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordSeamBytes adds bytes to one of a seam's stage counters
func (c *Metrics) RecordSeamBytes(seam, stage string, n int) {
	if c == nil {
		return
	}
	c.SeamBytes.WithLabelValues(seam, stage).Add(float64(n))
}

// RecordDatagrams counts datagrams sent by a UDP writer
func (c *Metrics) RecordDatagrams(writer string, n int) {
	if c == nil {
		return
	}
	c.DatagramsSent.WithLabelValues(writer).Add(float64(n))
}

// RecordNATSStatus records the NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

// RecordNATSReconnect counts a NATS reconnection
func (c *Metrics) RecordNATSReconnect() {
	if c == nil {
		return
	}
	c.NATSReconnects.Inc()
}
