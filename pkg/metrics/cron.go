package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics tracks maintenance job runs by outcome.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_job_duration_seconds",
		Help:    "Wall time of cron job runs.",
		Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_runs_total",
		Help: "Cron job runs by outcome.",
	}, []string{"job", "outcome"})
	reg.MustRegister(duration, runs)
	return &CronJobMetrics{duration: duration, runs: runs}
}

// Observe records one finished run.
func (c *CronJobMetrics) Observe(job string, succeeded bool, took time.Duration) {
	if c == nil || c.runs == nil {
		return
	}
	outcome := "success"
	if !succeeded {
		outcome = "failure"
	}
	job = normalizeLabel(job)
	c.runs.WithLabelValues(job, outcome).Inc()
	c.duration.WithLabelValues(job).Observe(took.Seconds())
}

// OutboxBacklogMetrics exposes how much notification work is waiting.
type OutboxBacklogMetrics struct {
	pending      prometheus.Gauge
	exhausted    prometheus.Gauge
	deadLettered prometheus.Gauge
	oldestAge    prometheus.Gauge
}

func NewOutboxBacklogMetrics(reg prometheus.Registerer) *OutboxBacklogMetrics {
	if reg == nil {
		return &OutboxBacklogMetrics{}
	}
	m := &OutboxBacklogMetrics{
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_events",
			Help: "Undelivered outbox rows still eligible for dispatch.",
		}),
		exhausted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_exhausted_events",
			Help: "Undelivered outbox rows that reached the attempt ceiling.",
		}),
		deadLettered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_dead_letters",
			Help: "Rows recorded in the outbox dead-letter table.",
		}),
		oldestAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest dispatchable outbox row, 0 when empty.",
		}),
	}
	reg.MustRegister(m.pending, m.exhausted, m.deadLettered, m.oldestAge)
	return m
}

// Set replaces every gauge with the latest snapshot.
func (m *OutboxBacklogMetrics) Set(pending, exhausted, deadLettered int64, oldestAge time.Duration) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.exhausted.Set(float64(exhausted))
	m.deadLettered.Set(float64(deadLettered))
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.oldestAge.Set(oldestAge.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
