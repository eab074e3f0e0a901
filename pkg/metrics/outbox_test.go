package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.Batch()
	m.Event("order.created", OutboxPublished)
	m.Event("order.created", OutboxPublished)
	m.Event("order.expired", OutboxDeadLettered)
	m.PublishLatency("kafka", 500*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "keyshop_outbox_events_total", "event_type", "order.created", "outcome", "published"); err != nil || got != 2 {
		t.Fatalf("expected 2 published, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "keyshop_outbox_events_total", "event_type", "order.expired", "outcome", "dead_lettered"); err != nil || got != 1 {
		t.Fatalf("expected 1 dead lettered, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "keyshop_outbox_batches_total"); err != nil || got != 1 {
		t.Fatalf("expected 1 batch, got %f (%v)", got, err)
	}
	if sum, err := fetchHistogramSum(mfs, "keyshop_outbox_publish_seconds", "broker", "kafka"); err != nil || sum != 0.5 {
		t.Fatalf("expected latency sum 0.5, got %f (%v)", sum, err)
	}
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.Event("order.created", OutboxRetry)
	m.Batch()
	NewOutboxMetrics(nil).PublishLatency("pubsub", time.Second)
}
