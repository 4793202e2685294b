package metrics

import (
	"product-entitlements/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(membershipsTotal) }

var membershipsTotal = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "memberships_total",
		Help: "Current number of unexpired memberships by level.",
	},
	[]string{"level"},
)

// SetMembershipsTotal sets every level, zeroing the ones absent from counts.
func SetMembershipsTotal(counts map[model.Level]int) {
	for _, level := range model.Levels() {
		if level == model.LevelNone {
			continue
		}
		membershipsTotal.WithLabelValues(string(level)).Set(float64(counts[level]))
	}
}

// MembershipsGauge exposes the gauge for one level; used by tests.
func MembershipsGauge(level model.Level) prometheus.Gauge {
	return membershipsTotal.WithLabelValues(string(level))
}
