package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSyncMetricsExportsGaugesAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)

	m.SetQueueDepth(3)
	m.SetAttentionDepth(1)
	m.SetOldestPendingAge(90 * time.Second)
	m.SetBreakerOpen(true)
	m.IncSubmission("queued")
	m.IncSubmission("queued")
	m.IncDrain("succeeded")
	m.ObserveDrain(20 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	gauges := map[string]float64{
		"pos_sync_queue_depth":                3,
		"pos_sync_attention_depth":            1,
		"pos_sync_oldest_pending_age_seconds": 90,
		"pos_sales_api_breaker_open":          1,
	}
	for name, want := range gauges {
		mf := findMetricFamily(mfs, name)
		if mf == nil {
			t.Fatalf("metric %q not found", name)
		}
		if got := mf.GetMetric()[0].GetGauge().GetValue(); got != want {
			t.Fatalf("%s expected %f got %f", name, want, got)
		}
	}

	if got, err := fetchCounterValue(mfs, "pos_sale_submissions_total", "mode", "queued"); err != nil {
		t.Fatalf("fetch submissions: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 queued submissions, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "pos_sync_drain_attempts_total", "outcome", "succeeded"); err != nil {
		t.Fatalf("fetch drains: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 drain, got %f", got)
	}
}

func TestSyncMetricsClampsNegativeAge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)
	m.SetOldestPendingAge(-time.Minute)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "pos_sync_oldest_pending_age_seconds")
	if mf == nil || mf.GetMetric()[0].GetGauge().GetValue() != 0 {
		t.Fatalf("expected clamped age of 0")
	}
}

func TestSyncMetricsNilSafe(t *testing.T) {
	var m *SyncMetrics
	m.SetQueueDepth(1)
	m.IncDrain("x")
	m.ObserveDrain(time.Second)
	NewSyncMetrics(nil).SetBreakerOpen(false)
}
