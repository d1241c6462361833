// Package metric provides Prometheus metrics for splice.
//
// MetricsRegistry owns a private Prometheus registry with the core metrics
// (entity lifecycle state, chunks and bytes published and written, write
// errors, queue depth, seam stage counters, datagrams sent, NATS status)
// and lets packages register their own collectors under a service name.
//
// Every component treats the registry as optional. Core metric recorders
// are nil-safe, so the usual call site is:
//
//	deps.Metrics.CoreMetrics().RecordWrite(w.Description(), len(chunk))
//
// Server exposes the registry on /metrics and a health endpoint on /health:
//
//	srv := metric.NewServer(":9090", "/metrics", registry)
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop(ctx)
package metric
