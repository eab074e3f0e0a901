package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxOutcome labels what happened to one outbox row in a publish pass.
type OutboxOutcome string

const (
	OutboxPublished    OutboxOutcome = "published"
	OutboxRetry        OutboxOutcome = "retry"
	OutboxDeadLettered OutboxOutcome = "dead_lettered"
)

type OutboxMetrics struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	batches prometheus.Counter
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyshop_outbox_events_total",
			Help: "Outbox rows handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keyshop_outbox_publish_seconds",
			Help:    "Broker publish latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"broker"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyshop_outbox_batches_total",
			Help: "Non-empty batches claimed by the publisher.",
		}),
	}
	reg.MustRegister(m.events, m.latency, m.batches)
	return m
}

func (m *OutboxMetrics) Event(eventType string, outcome OutboxOutcome) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(eventType, string(outcome)).Inc()
}

func (m *OutboxMetrics) PublishLatency(broker string, took time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.WithLabelValues(broker).Observe(took.Seconds())
}

func (m *OutboxMetrics) Batch() {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Inc()
}
