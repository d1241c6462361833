package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/splice/metric"
)

// engineMetrics holds Prometheus metrics for orchestrator operations.
type engineMetrics struct {
	// Lifecycle operations
	runs     *prometheus.CounterVec // By status (success/partial/failure)
	stops    prometheus.Counter
	restarts *prometheus.CounterVec // By status

	// Start latency across every reader's start barrier
	startDuration prometheus.Histogram

	// Readers that failed to start
	readerFailures prometheus.Counter
}

// newEngineMetrics creates and registers orchestrator metrics with the
// provided registry.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &engineMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splice",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total number of Run calls",
		}, []string{"status"}), // status: success, partial, failure

		stops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "splice",
			Subsystem: "engine",
			Name:      "stops_total",
			Help:      "Total number of Stop calls",
		}),

		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splice",
			Subsystem: "engine",
			Name:      "restarts_total",
			Help:      "Total number of Restart calls",
		}, []string{"status"}),

		startDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "splice",
			Subsystem: "engine",
			Name:      "start_duration_seconds",
			Help:      "Time from Run until every reader finished starting",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),

		readerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "splice",
			Subsystem: "engine",
			Name:      "reader_start_failures_total",
			Help:      "Readers whose source could not be opened",
		}),
	}

	if err := registry.RegisterCounterVec("engine", "runs", m.runs); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("engine", "stops", m.stops); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "restarts", m.restarts); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("engine", "start_duration", m.startDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("engine", "reader_start_failures", m.readerFailures); err != nil {
		return nil, err
	}

	return m, nil
}

// recordRun records one Run call.
func (m *engineMetrics) recordRun(started, failed int, seconds float64) {
	if m == nil {
		return
	}

	status := "success"
	switch {
	case started == 0:
		status = "failure"
	case failed > 0:
		status = "partial"
	}

	m.runs.WithLabelValues(status).Inc()
	m.startDuration.Observe(seconds)
	m.readerFailures.Add(float64(failed))
}

// recordStop records one Stop call.
func (m *engineMetrics) recordStop() {
	if m != nil {
		m.stops.Inc()
	}
}

// recordRestart records one Restart call.
func (m *engineMetrics) recordRestart(success bool) {
	if m == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}
	m.restarts.WithLabelValues(status).Inc()
}
