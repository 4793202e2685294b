package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		rateLimitBlocksTotal,
		rateLimitStoreErrorsTotal,
	)
}

var (
	rateLimitBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_blocks_total",
			Help: "Requests rejected by the attempt limiter, per action.",
		},
		[]string{"action"},
	)

	rateLimitStoreErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_store_errors_total",
			Help: "Attempt store failures; the limiter fails open on these.",
		},
	)
)

func IncRateLimitBlock(action string) {
	rateLimitBlocksTotal.WithLabelValues(norm(action)).Inc()
}

func IncRateLimitStoreError() {
	rateLimitStoreErrorsTotal.Inc()
}
