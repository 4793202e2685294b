// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		codesGeneratedTotal,
		redemptionsTotal,
		trialConsumptionsTotal,
		accessDecisionsTotal,
	)
}

var (
	codesGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activation_codes_generated_total",
			Help: "Activation codes persisted, by grant kind.",
		},
		[]string{"kind"},
	)

	redemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activation_redemptions_total",
			Help: "Redemption attempts by result (ok/not_found/expired/already_used/rejected/error).",
		},
		[]string{"result"},
	)

	trialConsumptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trial_consumptions_total",
			Help: "Trial consume calls per product and result.",
		},
		[]string{"product", "result"},
	)

	accessDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Resolved access decisions per product and access type.",
		},
		[]string{"product", "access_type"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// -------- Activation helpers --------

func AddCodesGenerated(kind string, n int) {
	codesGeneratedTotal.WithLabelValues(norm(kind)).Add(float64(n))
}

func IncRedemption(result string) {
	redemptionsTotal.WithLabelValues(norm(result)).Inc()
}

// -------- Trial / access helpers --------

func IncTrialConsumption(product, result string) {
	trialConsumptionsTotal.WithLabelValues(norm(product), norm(result)).Inc()
}

func IncAccessDecision(product, accessType string) {
	accessDecisionsTotal.WithLabelValues(norm(product), norm(accessType)).Inc()
}
