package metrics

import "github.com/prometheus/client_golang/prometheus"

// UsageMetrics records quota decisions and consumption.
type UsageMetrics struct {
	verdicts     *prometheus.CounterVec
	consumed     *prometheus.CounterVec
	limitReached *prometheus.CounterVec
	billingSyncs *prometheus.CounterVec
}

// NewUsageMetrics registers the usage metrics on the provided registerer.
func NewUsageMetrics(reg prometheus.Registerer) *UsageMetrics {
	if reg == nil {
		return &UsageMetrics{}
	}
	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usage_verdicts_total",
		Help: "Usage limit checks by tier, outcome and denying dimension.",
	}, []string{"tier", "outcome", "dimension"})
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usage_consumed_total",
		Help: "Recorded consumption per tier and dimension.",
	}, []string{"tier", "dimension"})
	limitReached := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usage_limit_reached_total",
		Help: "Daily records that crossed a quota.",
	}, []string{"tier"})
	billingSyncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_sync_total",
		Help: "Billing entitlement projections by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(verdicts, consumed, limitReached, billingSyncs)
	return &UsageMetrics{
		verdicts:     verdicts,
		consumed:     consumed,
		limitReached: limitReached,
		billingSyncs: billingSyncs,
	}
}

// ObserveVerdict counts one limit check.
func (m *UsageMetrics) ObserveVerdict(tier string, allowed bool, dimension string) {
	if m == nil || m.verdicts == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
		dimension = ""
	}
	m.verdicts.WithLabelValues(normalizeLabel(tier), outcome, dimension).Inc()
}

// AddConsumption adds amount to the consumed counter. Zero and negative
// amounts are ignored.
func (m *UsageMetrics) AddConsumption(tier, dimension string, amount int64) {
	if m == nil || m.consumed == nil || amount <= 0 {
		return
	}
	m.consumed.WithLabelValues(normalizeLabel(tier), dimension).Add(float64(amount))
}

func (m *UsageMetrics) IncLimitReached(tier string) {
	if m == nil || m.limitReached == nil {
		return
	}
	m.limitReached.WithLabelValues(normalizeLabel(tier)).Inc()
}

func (m *UsageMetrics) IncBillingSync(outcome string) {
	if m == nil || m.billingSyncs == nil {
		return
	}
	m.billingSyncs.WithLabelValues(normalizeLabel(outcome)).Inc()
}
