package buffer

import (
	"github.com/c360/splice/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// queueMetrics publishes depth through the shared core gauge so queues that
// come and go with restarts never collide on registration.
type queueMetrics struct {
	depth prometheus.Gauge
}

func newQueueMetrics(registry *metric.MetricsRegistry, name string) *queueMetrics {
	core := registry.CoreMetrics()
	if core == nil {
		return nil
	}
	return &queueMetrics{depth: core.QueueDepth.WithLabelValues(name)}
}

func (m *queueMetrics) observe(depth int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(depth))
}
