package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronOutcome labels how a scheduled job run ended.
type CronOutcome string

const (
	CronSucceeded CronOutcome = "success"
	CronFailed    CronOutcome = "failure"
	// CronSkipped means another worker held the job's lock.
	CronSkipped CronOutcome = "skipped"
)

// CronJobMetrics exports per-job run counts, durations and the time of the
// last success, which is what alerts key on when the reconciler stalls.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyshop_cron_runs_total",
			Help: "Scheduled job runs by outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keyshop_cron_duration_seconds",
			Help:    "Wall time of scheduled job runs.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keyshop_cron_last_success_timestamp_seconds",
			Help: "Unix time of each job's most recent successful run.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess)
	return m
}

// Observe records a finished run. Duration is ignored for skipped runs.
func (m *CronJobMetrics) Observe(job string, outcome CronOutcome, took time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, string(outcome)).Inc()
	if outcome == CronSkipped {
		return
	}
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if outcome == CronSucceeded {
		m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

// normalizeLabel keeps an empty label value from collapsing series together.
func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
