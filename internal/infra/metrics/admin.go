package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminOperationTotal) }

var adminOperationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_operation_total",
		Help: "Tracks attempts to use admin operations.",
	},
	[]string{"operation", "status"}, // status: 'ok', 'failed', 'unauthorized'
)

func IncAdminOperation(operation, status string) {
	adminOperationTotal.WithLabelValues(norm(operation), norm(status)).Inc()
}
