package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(auditEventsTotal) }

var auditEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "audit_events_total",
		Help: "Audit events handled by the sink, labeled by status.",
	},
	[]string{"status"}, // 'written', 'dropped'
)

func IncAuditEvent(status string) {
	auditEventsTotal.WithLabelValues(norm(status)).Inc()
}
