package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.Observe("expire-reservations", CronSucceeded, 250*time.Millisecond)
	m.Observe("expire-reservations", CronFailed, time.Second)
	m.Observe("expire-reservations", CronSkipped, 0)
	m.Observe("reconcile-payments", CronSkipped, 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, outcome := range []CronOutcome{CronSucceeded, CronFailed, CronSkipped} {
		got, err := fetchCounterValue(mfs, "keyshop_cron_runs_total", "job", "expire-reservations", "outcome", string(outcome))
		if err != nil || got != 1 {
			t.Fatalf("%s: expected 1, got %f (%v)", outcome, got, err)
		}
	}
	if sum, err := fetchHistogramSum(mfs, "keyshop_cron_duration_seconds", "job", "expire-reservations"); err != nil || sum != 1.25 {
		t.Fatalf("expected duration sum 1.25, got %f (%v)", sum, err)
	}
	if _, err := fetchHistogramSum(mfs, "keyshop_cron_duration_seconds", "job", "reconcile-payments"); err == nil {
		t.Fatal("skipped runs must not record a duration")
	}
	if ts, err := fetchGaugeValue(mfs, "keyshop_cron_last_success_timestamp_seconds", "job", "expire-reservations"); err != nil || ts <= 0 {
		t.Fatalf("expected last success timestamp, got %f (%v)", ts, err)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.Observe("x", CronSucceeded, time.Second)
	NewCronJobMetrics(nil).Observe("x", CronFailed, time.Second)
}

// labels are name/value pairs that must all be present on the series.
func findSeries(mfs []*dto.MetricFamily, name string, labels ...string) (*dto.Metric, error) {
	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf.GetName() == name {
			family = mf
			break
		}
	}
	if family == nil {
		return nil, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range family.GetMetric() {
		if hasLabels(metric.GetLabel(), labels) {
			return metric, nil
		}
	}
	return nil, fmt.Errorf("metric %q has no series %v", name, labels)
}

func hasLabels(pairs []*dto.LabelPair, want []string) bool {
	for i := 0; i+1 < len(want); i += 2 {
		found := false
		for _, pair := range pairs {
			if pair.GetName() == want[i] && pair.GetValue() == want[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels ...string) (float64, error) {
	metric, err := findSeries(mfs, name, labels...)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name string, labels ...string) (float64, error) {
	metric, err := findSeries(mfs, name, labels...)
	if err != nil {
		return 0, err
	}
	return metric.GetGauge().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels ...string) (float64, error) {
	metric, err := findSeries(mfs, name, labels...)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}
