package metric

import (
	"strings"

	dto "github.com/prometheus/client_model/go"

	"github.com/c360/splice/errors"
)

// Totals sums every counter family whose name starts with prefix across all
// label values. Nil-safe: a nil registry has no totals.
func (r *MetricsRegistry) Totals(prefix string) (map[string]float64, error) {
	out := make(map[string]float64)
	if r == nil {
		return out, nil
	}
	families, err := r.prometheusRegistry.Gather()
	if err != nil {
		return nil, errors.WrapTransient(err, "MetricsRegistry", "Totals", "gather metrics")
	}
	for _, family := range families {
		if family.GetType() != dto.MetricType_COUNTER || !strings.HasPrefix(family.GetName(), prefix) {
			continue
		}
		var sum float64
		for _, m := range family.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		out[family.GetName()] = sum
	}
	return out, nil
}
