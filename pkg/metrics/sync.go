package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics tracks the local sale queue and its drain against the Sales API.
type SyncMetrics struct {
	queueDepth     prometheus.Gauge
	attentionDepth prometheus.Gauge
	oldestAge      prometheus.Gauge
	breakerOpen    prometheus.Gauge
	submissions    *prometheus.CounterVec
	drains         *prometheus.CounterVec
	drainDuration  prometheus.Histogram
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	m := &SyncMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos_sync_queue_depth",
			Help: "Sales waiting in the durable queue.",
		}),
		attentionDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos_sync_attention_depth",
			Help: "Queued sales excluded from retry after a permanent rejection.",
		}),
		oldestAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos_sync_oldest_pending_age_seconds",
			Help: "Age of the oldest pending sale.",
		}),
		breakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pos_sales_api_breaker_open",
			Help: "1 while the Sales API circuit breaker is open.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sale_submissions_total",
			Help: "Finalized sales by submission mode.",
		}, []string{"mode"}),
		drains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sync_drain_attempts_total",
			Help: "Queued sale submissions by outcome.",
		}, []string{"outcome"}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pos_sync_drain_duration_seconds",
			Help:    "Duration of a full drain pass.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.queueDepth, m.attentionDepth, m.oldestAge, m.breakerOpen, m.submissions, m.drains, m.drainDuration)
	return m
}

func (m *SyncMetrics) SetQueueDepth(n int) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *SyncMetrics) SetAttentionDepth(n int) {
	if m == nil || m.attentionDepth == nil {
		return
	}
	m.attentionDepth.Set(float64(n))
}

func (m *SyncMetrics) SetOldestPendingAge(age time.Duration) {
	if m == nil || m.oldestAge == nil {
		return
	}
	if age < 0 {
		age = 0
	}
	m.oldestAge.Set(age.Seconds())
}

func (m *SyncMetrics) SetBreakerOpen(open bool) {
	if m == nil || m.breakerOpen == nil {
		return
	}
	if open {
		m.breakerOpen.Set(1)
		return
	}
	m.breakerOpen.Set(0)
}

// IncSubmission counts a finalized sale by mode (online, queued).
func (m *SyncMetrics) IncSubmission(mode string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(mode)).Inc()
}

// IncDrain counts a single queued-sale submission by outcome.
func (m *SyncMetrics) IncDrain(outcome string) {
	if m == nil || m.drains == nil {
		return
	}
	m.drains.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *SyncMetrics) ObserveDrain(d time.Duration) {
	if m == nil || m.drainDuration == nil {
		return
	}
	m.drainDuration.Observe(d.Seconds())
}
