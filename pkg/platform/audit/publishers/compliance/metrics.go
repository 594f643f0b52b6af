package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for compliance audit emission.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers the compliance audit metrics on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgov_audit_compliance_emitted_total",
			Help: "Total number of compliance audit events persisted, by action",
		}, []string{"action"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auditgov_audit_compliance_persist_failures_total",
			Help: "Total number of compliance audit events that failed to persist",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditgov_audit_compliance_persist_duration_seconds",
			Help:    "Time spent writing a compliance audit event to the outbox",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) incEventsEmitted(action string) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(action).Inc()
}

func (m *Metrics) incPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) observePersistDuration(seconds float64) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(seconds)
}
