package component

import (
	"log/slog"

	"github.com/c360/splice/metric"
	"github.com/c360/splice/natsclient"
)

// Dependencies provides the shared collaborators every reader, writer and
// seam may use. All fields are optional.
type Dependencies struct {
	NATSClient      natsclient.PubSub       // NATS connection for nats:// endpoints
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus
	Logger          *slog.Logger            // Structured logger, defaults to slog.Default()
	Runtime         *Runtime                // Pool for blocking opens, nil runs them inline
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
