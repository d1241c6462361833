package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the Status returned by report as JSON. Unhealthy maps to
// 503, anything else to 200.
func Handler(report func() Status) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s := report()
		w.Header().Set("Content-Type", "application/json")
		if s.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(s)
	})
}
