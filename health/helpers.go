package health

import "time"

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StatusHealthy, message)
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, message)
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StatusDegraded, message)
}

func newStatus(component, status, message string) Status {
	return Status{
		Component: component,
		Healthy:   status == StatusHealthy,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Worst returns the most severe status value in the tree rooted at s.
func Worst(s Status) string {
	worst := s.Status
	for _, sub := range s.SubStatuses {
		switch w := Worst(sub); {
		case w == StatusUnhealthy:
			return StatusUnhealthy
		case w == StatusDegraded:
			worst = StatusDegraded
		}
	}
	return worst
}

// Aggregate creates a status by aggregating sub-statuses
// The aggregation rules are:
// - If all sub-statuses are healthy, the aggregate is healthy
// - If every sub-status is unhealthy, the aggregate is unhealthy
// - Anything in between is degraded; one failed branch does not take the
// whole process down
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewDegraded(component, "No readers")
	}

	unhealthy, degraded := 0, 0
	for _, sub := range subStatuses {
		switch Worst(sub) {
		case StatusUnhealthy:
			unhealthy++
		case StatusDegraded:
			degraded++
		}
	}

	var status Status
	switch {
	case unhealthy == len(subStatuses):
		status = NewUnhealthy(component, "All readers are unhealthy")
	case unhealthy > 0 || degraded > 0:
		status = NewDegraded(component, "One or more branches are degraded or failed")
	default:
		status = NewHealthy(component, "All branches are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}
