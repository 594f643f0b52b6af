package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the governance engine.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	VersionConflicts   *prometheus.CounterVec
	Escalations        *prometheus.CounterVec
	RepeatDecisions    *prometheus.CounterVec
	CandidatesReturned prometheus.Histogram
	EvidenceRejected   prometheus.Counter
	NotifyFailures     *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgov_observation_transitions_total",
			Help: "Observation transitions by edge and outcome",
		}, []string{"from", "to", "outcome"}),
		VersionConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgov_observation_version_conflicts_total",
			Help: "Writes rejected because the expected version was stale",
		}, []string{"operation"}),
		Escalations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgov_observation_severity_escalations_total",
			Help: "Severity escalations applied by repeat confirmation",
		}, []string{"from", "to"}),
		RepeatDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgov_observation_repeat_decisions_total",
			Help: "Repeat-finding confirmations and dismissals",
		}, []string{"decision"}),
		CandidatesReturned: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditgov_observation_repeat_candidates",
			Help:    "Number of repeat candidates returned per detection",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		}),
		EvidenceRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auditgov_observation_evidence_limit_rejections_total",
			Help: "Evidence uploads rejected at the per-observation cap",
		}),
		NotifyFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgov_observation_notify_failures_total",
			Help: "Best-effort notification hand-offs that failed after commit",
		}, []string{"type"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditgov_observation_operation_duration_seconds",
			Help:    "Latency of governance operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveTransition(from, to, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to, outcome).Inc()
}

func (m *Metrics) IncConflict(operation string) {
	if m == nil {
		return
	}
	m.VersionConflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncEscalation(from, to string) {
	if m == nil {
		return
	}
	m.Escalations.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncRepeatDecision(decision string) {
	if m == nil {
		return
	}
	m.RepeatDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveCandidates(n int) {
	if m == nil {
		return
	}
	m.CandidatesReturned.Observe(float64(n))
}

func (m *Metrics) IncEvidenceRejected() {
	if m == nil {
		return
	}
	m.EvidenceRejected.Inc()
}

func (m *Metrics) IncNotifyFailure(kind string) {
	if m == nil {
		return
	}
	m.NotifyFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDuration(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
