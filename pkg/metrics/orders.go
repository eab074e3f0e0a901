package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics tracks the finalize transition and payment detection.
type OrderMetrics struct {
	finalized  *prometheus.CounterVec
	noop       *prometheus.CounterVec
	mismatch   prometheus.Counter
	expired    prometheus.Counter
	placed     prometheus.Counter
	detections *prometheus.CounterVec
}

// NewOrderMetrics registers order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	finalized := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyshop_orders_finalized_total",
		Help: "Orders moved to fulfilled, by trigger.",
	}, []string{"source"})
	noop := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyshop_finalize_noop_total",
		Help: "Finalize calls that found the order no longer pending.",
	}, []string{"source"})
	mismatch := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keyshop_allocation_mismatch_total",
		Help: "Finalize attempts aborted because reserved units did not match line quantities.",
	})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keyshop_orders_expired_total",
		Help: "Orders expired by the reaper.",
	})
	placed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keyshop_orders_placed_total",
		Help: "Orders created by intake.",
	})
	detections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keyshop_payment_detections_total",
		Help: "Payment detector evaluations, by trigger and result.",
	}, []string{"source", "result"})
	reg.MustRegister(finalized, noop, mismatch, expired, placed, detections)
	return &OrderMetrics{
		finalized:  finalized,
		noop:       noop,
		mismatch:   mismatch,
		expired:    expired,
		placed:     placed,
		detections: detections,
	}
}

func (m *OrderMetrics) IncFinalized(source string) {
	if m == nil || m.finalized == nil {
		return
	}
	m.finalized.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *OrderMetrics) IncFinalizeNoop(source string) {
	if m == nil || m.noop == nil {
		return
	}
	m.noop.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *OrderMetrics) IncAllocationMismatch() {
	if m == nil || m.mismatch == nil {
		return
	}
	m.mismatch.Inc()
}

func (m *OrderMetrics) IncExpired() {
	if m == nil || m.expired == nil {
		return
	}
	m.expired.Inc()
}

func (m *OrderMetrics) IncPlaced() {
	if m == nil || m.placed == nil {
		return
	}
	m.placed.Inc()
}

// IncDetection records one detector outcome such as "matched" or "no_match".
func (m *OrderMetrics) IncDetection(source, result string) {
	if m == nil || m.detections == nil {
		return
	}
	m.detections.WithLabelValues(normalizeLabel(source), normalizeLabel(result)).Inc()
}
