package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QuoteMetrics counts lifecycle transitions and authorization outcomes.
type QuoteMetrics struct {
	transitions    *prometheus.CounterVec
	authorizations *prometheus.CounterVec
}

func NewQuoteMetrics(reg prometheus.Registerer) *QuoteMetrics {
	if reg == nil {
		return &QuoteMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_transitions_total",
		Help: "Committed quote status transitions.",
	}, []string{"from", "to"})
	authorizations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_authorizations_total",
		Help: "Authorization attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(transitions, authorizations)
	return &QuoteMetrics{transitions: transitions, authorizations: authorizations}
}

// IncTransition records a committed move; from is empty for creation.
func (m *QuoteMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	if from == "" {
		from = "none"
	}
	m.transitions.WithLabelValues(from, normalizeLabel(to)).Inc()
}

// IncAuthorization records the outcome of one Authorize call.
func (m *QuoteMetrics) IncAuthorization(outcome string) {
	if m == nil || m.authorizations == nil {
		return
	}
	m.authorizations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// NotificationMetrics tracks outbound delivery per channel.
type NotificationMetrics struct {
	deliveries *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Notification deliveries by channel and outcome.",
	}, []string{"channel", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notification_delivery_seconds",
		Help:    "Latency of outbound notification calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})
	reg.MustRegister(deliveries, latency)
	return &NotificationMetrics{deliveries: deliveries, latency: latency}
}

// Observe records one delivery attempt.
func (m *NotificationMetrics) Observe(channel, outcome string, took time.Duration) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(channel), normalizeLabel(outcome)).Inc()
	if took > 0 {
		m.latency.WithLabelValues(normalizeLabel(channel)).Observe(took.Seconds())
	}
}
