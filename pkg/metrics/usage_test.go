package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestUsageMetricsCountsVerdictsAndConsumption(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewUsageMetrics(reg)

	m.ObserveVerdict("free", true, "conversations")
	m.ObserveVerdict("free", false, "conversations")
	m.ObserveVerdict("free", false, "conversations")
	m.AddConsumption("pro", "characters", 1200)
	m.AddConsumption("pro", "characters", 0)
	m.IncLimitReached("free")
	m.IncBillingSync("synced")

	if got := testutil.ToFloat64(m.verdicts.WithLabelValues("free", "allowed", "")); got != 1 {
		t.Fatalf("expected 1 allowed verdict, got %f", got)
	}
	if got := testutil.ToFloat64(m.verdicts.WithLabelValues("free", "denied", "conversations")); got != 2 {
		t.Fatalf("expected 2 denied verdicts, got %f", got)
	}
	if got := testutil.ToFloat64(m.consumed.WithLabelValues("pro", "characters")); got != 1200 {
		t.Fatalf("expected 1200 characters consumed, got %f", got)
	}
	if got := testutil.ToFloat64(m.limitReached.WithLabelValues("free")); got != 1 {
		t.Fatalf("expected 1 limit reached, got %f", got)
	}
	if got := testutil.ToFloat64(m.billingSyncs.WithLabelValues("synced")); got != 1 {
		t.Fatalf("expected 1 billing sync, got %f", got)
	}
}

func TestUsageMetricsNilSafe(t *testing.T) {
	var m *UsageMetrics
	m.ObserveVerdict("free", true, "")
	m.AddConsumption("free", "minutes", 3)
	m.IncLimitReached("free")
	m.IncBillingSync("failed")

	empty := NewUsageMetrics(nil)
	empty.ObserveVerdict("free", false, "minutes")
}
