package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// queue scans and one promotions fetch; sub-second in practice
var housekeepingBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

// HousekeepingMetrics tracks the terminal's periodic jobs: the queue audit and
// the promotions refresh.
type HousekeepingMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

// NewHousekeepingMetrics registers the job metrics on reg. A nil registerer
// yields a recorder that drops everything.
func NewHousekeepingMetrics(reg prometheus.Registerer) *HousekeepingMetrics {
	if reg == nil {
		return &HousekeepingMetrics{}
	}
	m := &HousekeepingMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_housekeeping_runs_total",
			Help: "Housekeeping job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos_housekeeping_duration_seconds",
			Help:    "Wall time of a housekeeping job run.",
			Buckets: housekeepingBuckets,
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pos_housekeeping_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		now: time.Now,
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess)
	return m
}

func (m *HousekeepingMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

// IncSuccess counts a clean run and stamps the job's last success time.
func (m *HousekeepingMetrics) IncSuccess(job string) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, outcomeSuccess).Inc()
	m.lastSuccess.WithLabelValues(job).Set(float64(m.now().Unix()))
}

func (m *HousekeepingMetrics) IncFailure(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), outcomeFailure).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
