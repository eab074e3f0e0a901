package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOrderMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.IncFinalized("webhook")
	m.IncFinalized("webhook")
	m.IncFinalizeNoop("poller")
	m.IncAllocationMismatch()
	m.IncDetection("poller", "matched")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "keyshop_orders_finalized_total", "source", "webhook"); err != nil || got != 2 {
		t.Fatalf("expected finalized=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "keyshop_finalize_noop_total", "source", "poller"); err != nil || got != 1 {
		t.Fatalf("expected noop=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "keyshop_payment_detections_total", "result", "matched"); err != nil || got != 1 {
		t.Fatalf("expected detection=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "keyshop_allocation_mismatch_total"); err != nil || got != 1 {
		t.Fatalf("expected allocation mismatch=1, got %f (%v)", got, err)
	}
}

func TestOrderMetricsNilSafe(t *testing.T) {
	var m *OrderMetrics
	m.IncFinalized("webhook")
	m.IncAllocationMismatch()
	NewOrderMetrics(nil).IncExpired()
}

func TestOrderMetricsBlankLabelsBecomeUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.IncFinalized("")
	m.IncDetection(" ", "")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "keyshop_orders_finalized_total", "source", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected finalized{source=unknown}=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "keyshop_payment_detections_total", "source", "unknown", "result", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected detection{unknown,unknown}=1, got %f (%v)", got, err)
	}
}
