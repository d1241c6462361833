// Package health reports the state of running readers, writers and seams as
// a tree of Status values.
package health

import (
	"regexp"
	"strings"
	"time"

	"github.com/c360/splice/component"
)

// Status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

var (
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}@]+`)
	userinfoRegex   = regexp.MustCompile(`://[^/\s@]+@`)
)

// Status represents the health state of an entity and, through
// SubStatuses, of everything attached to it
type Status struct {
	Component   string    `json:"component"`
	Role        string    `json:"role,omitempty"`
	State       string    `json:"state,omitempty"`
	Healthy     bool      `json:"healthy"` // true if status is "healthy"
	Status      string    `json:"status"`  // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains the data counters of one entity
type Metrics struct {
	Chunks     int64 `json:"chunks,omitempty"`
	Bytes      int64 `json:"bytes,omitempty"`
	QueueDepth int   `json:"queue_depth,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	newSubStatuses := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(newSubStatuses, s.SubStatuses)
	s.SubStatuses = append(newSubStatuses, subStatus)
	return s
}

// Count returns the number of statuses in the tree rooted at s.
func (s Status) Count() int {
	n := 1
	for _, sub := range s.SubStatuses {
		n += sub.Count()
	}
	return n
}

// sanitizeErrorMessage strips credentials from error text before it is
// served. Paths and addresses are kept; operators need them to act.
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}
	sanitized := userinfoRegex.ReplaceAllString(err, "://[REDACTED]@")
	lower := strings.ToLower(sanitized)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret") || strings.Contains(lower, "credential") {
		sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
	}
	return sanitized
}

// Entity is a point-in-time view of a reader, writer or seam.
type Entity struct {
	Name    string
	Role    string
	State   component.State
	Err     error
	Metrics *Metrics
}

// FromEntity maps lifecycle state to health:
//
//	Running                  healthy
//	Idle, Starting, Stopping degraded
//	Stopped with an error    unhealthy
//	Stopped cleanly          healthy, the work is done
func FromEntity(e Entity) Status {
	s := Status{
		Component: e.Name,
		Role:      e.Role,
		State:     e.State.String(),
		Timestamp: time.Now(),
		Metrics:   e.Metrics,
	}

	switch {
	case e.State == component.StateRunning:
		s.Status, s.Message = StatusHealthy, "Running"
	case e.State == component.StateStopped && e.Err != nil:
		s.Status, s.Message = StatusUnhealthy, sanitizeErrorMessage(e.Err.Error())
	case e.State == component.StateStopped:
		s.Status, s.Message = StatusHealthy, "Finished"
	default:
		s.Status, s.Message = StatusDegraded, "Not running: "+e.State.String()
	}
	s.Healthy = s.Status == StatusHealthy
	return s
}
