// Package observability provides a metrics extension for valueflow that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnValueRolledUp       = (*MetricsExtension)(nil)
	_ plugin.OnTraversalSkipped    = (*MetricsExtension)(nil)
	_ plugin.OnClaimCreated        = (*MetricsExtension)(nil)
	_ plugin.OnClaimDischarged     = (*MetricsExtension)(nil)
	_ plugin.OnDistributionCreated = (*MetricsExtension)(nil)
	_ plugin.OnRoundingAdjusted    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a valueflow plugin to track valuation and distribution activity.
type MetricsExtension struct {
	factory MetricFactory

	// Traversal metrics
	ValueRolledUp    Counter
	RollupDepth      Histogram
	TraversalSkipped Counter

	// Claim metrics
	ClaimCreated      Counter
	ClaimDischarged   Counter
	ClaimDischargeAmt Histogram

	// Distribution metrics
	DistributionCreated  Counter
	DistributedAmount    Histogram
	UndistributedAmount  Histogram
	DistributionRecips   Histogram
	RoundingAdjustments  Counter
	RoundingAdjustAmount Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory outside forge, or app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		ValueRolledUp:    factory.Counter("valueflow.rollup.computed"),
		RollupDepth:      factory.Histogram("valueflow.rollup.depth"),
		TraversalSkipped: factory.Counter("valueflow.traversal.skipped"),

		ClaimCreated:      factory.Counter("valueflow.claim.created"),
		ClaimDischarged:   factory.Counter("valueflow.claim.discharged"),
		ClaimDischargeAmt: factory.Histogram("valueflow.claim.discharge_amount"),

		DistributionCreated:  factory.Counter("valueflow.distribution.created"),
		DistributedAmount:    factory.Histogram("valueflow.distribution.distributed_amount"),
		UndistributedAmount:  factory.Histogram("valueflow.distribution.undistributed_amount"),
		DistributionRecips:   factory.Histogram("valueflow.distribution.recipients"),
		RoundingAdjustments:  factory.Counter("valueflow.rounding.adjusted"),
		RoundingAdjustAmount: factory.Histogram("valueflow.rounding.delta"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Traversal hooks
// ──────────────────────────────────────────────────

// OnValueRolledUp implements plugin.OnValueRolledUp.
func (m *MetricsExtension) OnValueRolledUp(_ context.Context, _ id.ResourceID, _ decimal.Decimal, depth int) error {
	m.ValueRolledUp.Inc()
	m.RollupDepth.Observe(float64(depth))
	return nil
}

// OnTraversalSkipped implements plugin.OnTraversalSkipped.
func (m *MetricsExtension) OnTraversalSkipped(_ context.Context, _, _, _ string) error {
	m.TraversalSkipped.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// OnClaimCreated implements plugin.OnClaimCreated.
func (m *MetricsExtension) OnClaimCreated(_ context.Context, _ *claim.Claim) error {
	m.ClaimCreated.Inc()
	return nil
}

// OnClaimDischarged implements plugin.OnClaimDischarged.
func (m *MetricsExtension) OnClaimDischarged(_ context.Context, _ *claim.Claim, line *claim.Event) error {
	m.ClaimDischarged.Inc()
	m.ClaimDischargeAmt.Observe(line.Value.InexactFloat64())
	return nil
}

// ──────────────────────────────────────────────────
// Distribution hooks
// ──────────────────────────────────────────────────

// OnDistributionCreated implements plugin.OnDistributionCreated.
func (m *MetricsExtension) OnDistributionCreated(_ context.Context, d *distribution.Distribution) error {
	m.DistributionCreated.Inc()
	m.DistributedAmount.Observe(d.Distributed.InexactFloat64())
	m.UndistributedAmount.Observe(d.Undistributed.InexactFloat64())
	m.DistributionRecips.Observe(float64(len(d.Events)))
	return nil
}

// OnRoundingAdjusted implements plugin.OnRoundingAdjusted.
func (m *MetricsExtension) OnRoundingAdjusted(_ context.Context, _ id.DistributionID, _ id.AgentID, delta decimal.Decimal) error {
	m.RoundingAdjustments.Inc()
	m.RoundingAdjustAmount.Observe(delta.Abs().InexactFloat64())
	return nil
}
