package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the notification queue.
type Metrics struct {
	Enqueued         *prometheus.CounterVec
	Deduplicated     *prometheus.CounterVec
	Claimed          prometheus.Counter
	Deliveries       *prometheus.CounterVec
	Retries          *prometheus.CounterVec
	PermanentFailure *prometheus.CounterVec
	Reclaimed        prometheus.Counter
	DeliveryLatency  prometheus.Histogram
	BatchSize        prometheus.Histogram
	ScanDuration     *prometheus.HistogramVec
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgov_notification_intents_enqueued_total",
			Help: "Notification intents written to the queue",
		}, []string{"type"}),
		Deduplicated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgov_notification_intents_deduplicated_total",
			Help: "Scheduled intents skipped by the per-day duplicate check",
		}, []string{"type", "layer"}),
		Claimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "auditgov_notification_intents_claimed_total",
			Help: "Intents moved from pending to processing",
		}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgov_notification_deliveries_total",
			Help: "Delivery attempts by outcome",
		}, []string{"type", "outcome"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgov_notification_retries_total",
			Help: "Intents rescheduled with backoff",
		}, []string{"type"}),
		PermanentFailure: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditgov_notification_permanent_failures_total",
			Help: "Intents marked failed after exhausting attempts",
		}, []string{"type"}),
		Reclaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "auditgov_notification_reclaimed_total",
			Help: "Processing intents returned to pending after their lease expired",
		}),
		DeliveryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditgov_notification_delivery_duration_seconds",
			Help:    "Latency of a single send attempt",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditgov_notification_batch_size",
			Help:    "Intents coalesced into one delivered message",
			Buckets: []float64{1, 2, 5, 10, 25, 50},
		}),
		ScanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditgov_notification_scan_duration_seconds",
			Help:    "Duration of scheduled scan producers",
			Buckets: prometheus.DefBuckets,
		}, []string{"scan"}),
	}
}

func (m *Metrics) IncEnqueued(typ string) {
	if m == nil {
		return
	}
	m.Enqueued.WithLabelValues(typ).Inc()
}

func (m *Metrics) IncDeduplicated(typ, layer string) {
	if m == nil {
		return
	}
	m.Deduplicated.WithLabelValues(typ, layer).Inc()
}

func (m *Metrics) AddClaimed(n int) {
	if m == nil {
		return
	}
	m.Claimed.Add(float64(n))
}

func (m *Metrics) ObserveDelivery(typ, outcome string, intents int, start time.Time) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(typ, outcome).Inc()
	m.DeliveryLatency.Observe(time.Since(start).Seconds())
	m.BatchSize.Observe(float64(intents))
}

func (m *Metrics) IncRetry(typ string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(typ).Inc()
}

func (m *Metrics) IncPermanentFailure(typ string) {
	if m == nil {
		return
	}
	m.PermanentFailure.WithLabelValues(typ).Inc()
}

func (m *Metrics) AddReclaimed(n int) {
	if m == nil {
		return
	}
	m.Reclaimed.Add(float64(n))
}

func (m *Metrics) ObserveScan(scan string, start time.Time) {
	if m == nil {
		return
	}
	m.ScanDuration.WithLabelValues(scan).Observe(time.Since(start).Seconds())
}
