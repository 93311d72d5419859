package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the catalog core services.
// A nil *Metrics is valid and records nothing, so components can be wired
// without observability in tests.
type Metrics struct {
	// Resolver: store queries by resource and pass (filtered / unfiltered).
	ResolverQueries *prometheus.CounterVec
	ResolverLatency *prometheus.HistogramVec

	// Audit trail.
	AuditRecords      *prometheus.CounterVec // outcome: written / buffered / dropped
	AuditFlushes      *prometheus.CounterVec // outcome: ok / failed / overflow
	AuditOpenBatches  prometheus.Gauge
	AuditFlushLatency prometheus.Histogram

	// Event bus.
	EventsNotified     *prometheus.CounterVec // outcome: ok / invalid
	SubscriberFailures *prometheus.CounterVec // by event id
	SideChannelErrors  *prometheus.CounterVec // by channel: audit / event / forwarder
}

// New creates and registers all catalog metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		ResolverQueries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_resolver_queries_total",
			Help: "Entity store queries issued by the identifier resolver",
		}, []string{"resource", "pass"}),

		ResolverLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_resolver_duration_seconds",
			Help:    "Duration of identifier resolution by resource",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"resource"}),

		AuditRecords: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_audit_records_total",
			Help: "Audit records by outcome",
		}, []string{"outcome"}),

		AuditFlushes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_audit_flushes_total",
			Help: "Audit batch flushes by outcome",
		}, []string{"outcome"}),

		AuditOpenBatches: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_audit_open_batches",
			Help: "Currently open audit operation buffers",
		}),

		AuditFlushLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_audit_flush_duration_seconds",
			Help:    "Duration of audit batch flushes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		EventsNotified: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_events_notified_total",
			Help: "Event bus notifications by event id",
		}, []string{"event_id"}),

		SubscriberFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_event_subscriber_failures_total",
			Help: "Observer delivery failures by event id",
		}, []string{"event_id"}),

		SideChannelErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_side_channel_errors_total",
			Help: "Swallowed persistence errors on best-effort side channels",
		}, []string{"channel"}),
	}
}

// IncResolverQuery records one resolver store query.
func (m *Metrics) IncResolverQuery(resource, pass string) {
	if m != nil {
		m.ResolverQueries.WithLabelValues(resource, pass).Inc()
	}
}

// ObserveResolve records the duration of a full resolution.
func (m *Metrics) ObserveResolve(resource string, d time.Duration) {
	if m != nil {
		m.ResolverLatency.WithLabelValues(resource).Observe(d.Seconds())
	}
}

// IncAuditRecord counts one audit record by outcome.
func (m *Metrics) IncAuditRecord(outcome string) {
	if m != nil {
		m.AuditRecords.WithLabelValues(outcome).Inc()
	}
}

// IncAuditFlush counts one batch flush by outcome.
func (m *Metrics) IncAuditFlush(outcome string) {
	if m != nil {
		m.AuditFlushes.WithLabelValues(outcome).Inc()
	}
}

// SetOpenBatches records the number of open operation buffers.
func (m *Metrics) SetOpenBatches(n int) {
	if m != nil {
		m.AuditOpenBatches.Set(float64(n))
	}
}

// ObserveAuditFlush records a flush duration.
func (m *Metrics) ObserveAuditFlush(d time.Duration) {
	if m != nil {
		m.AuditFlushLatency.Observe(d.Seconds())
	}
}

// IncEventNotified counts one Notify call by event id.
func (m *Metrics) IncEventNotified(eventID string) {
	if m != nil {
		m.EventsNotified.WithLabelValues(eventID).Inc()
	}
}

// IncSubscriberFailure counts one failed observer delivery.
func (m *Metrics) IncSubscriberFailure(eventID string) {
	if m != nil {
		m.SubscriberFailures.WithLabelValues(eventID).Inc()
	}
}

// IncSideChannelError counts one swallowed side-channel persistence error.
func (m *Metrics) IncSideChannelError(channel string) {
	if m != nil {
		m.SideChannelErrors.WithLabelValues(channel).Inc()
	}
}
