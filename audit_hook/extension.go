// Package audithook bridges valueflow lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnInit                = (*Extension)(nil)
	_ plugin.OnShutdown            = (*Extension)(nil)
	_ plugin.OnValueRolledUp       = (*Extension)(nil)
	_ plugin.OnTraversalSkipped    = (*Extension)(nil)
	_ plugin.OnClaimCreated        = (*Extension)(nil)
	_ plugin.OnClaimDischarged     = (*Extension)(nil)
	_ plugin.OnDistributionCreated = (*Extension)(nil)
	_ plugin.OnRoundingAdjusted    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// Callers inject a concrete backend at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges valueflow lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionEngineStarted, SeverityInfo, OutcomeSuccess,
		ResourceEngine, "", CategoryLifecycle, nil,
	)
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionEngineStopped, SeverityInfo, OutcomeSuccess,
		ResourceEngine, "", CategoryLifecycle, nil,
	)
}

// ──────────────────────────────────────────────────
// Traversal hooks
// ──────────────────────────────────────────────────

// OnValueRolledUp implements plugin.OnValueRolledUp.
func (e *Extension) OnValueRolledUp(ctx context.Context, resourceID id.ResourceID, valuePerUnit decimal.Decimal, depth int) error {
	return e.record(ctx, ActionValueRolledUp, SeverityInfo, OutcomeSuccess,
		ResourceResource, resourceID.String(), CategoryValuation, nil,
		"value_per_unit", valuePerUnit.String(),
		"depth", depth,
	)
}

// OnTraversalSkipped implements plugin.OnTraversalSkipped.
func (e *Extension) OnTraversalSkipped(ctx context.Context, kind, nodeID, reason string) error {
	return e.record(ctx, ActionTraversalSkipped, SeverityWarning, OutcomePartial,
		kind, nodeID, CategoryValuation, nil,
		"reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// OnClaimCreated implements plugin.OnClaimCreated.
func (e *Extension) OnClaimCreated(ctx context.Context, c *claim.Claim) error {
	return e.record(ctx, ActionClaimCreated, SeverityInfo, OutcomeSuccess,
		ResourceClaim, c.ID.String(), CategoryClaims, nil,
		"event_id", c.EventID.String(),
		"has_agent", c.HasAgent.String(),
		"against_agent", c.AgainstAgent.String(),
		"rule_type", string(c.RuleType),
		"value", c.OriginalValue.String(),
	)
}

// OnClaimDischarged implements plugin.OnClaimDischarged.
func (e *Extension) OnClaimDischarged(ctx context.Context, c *claim.Claim, line *claim.Event) error {
	return e.record(ctx, ActionClaimDischarged, SeverityInfo, OutcomeSuccess,
		ResourceClaim, c.ID.String(), CategoryClaims, nil,
		"distribution_event_id", line.DistributionEventID.String(),
		"amount", line.Value.String(),
		"remaining", c.Value.String(),
	)
}

// ──────────────────────────────────────────────────
// Distribution hooks
// ──────────────────────────────────────────────────

// OnDistributionCreated implements plugin.OnDistributionCreated.
func (e *Extension) OnDistributionCreated(ctx context.Context, d *distribution.Distribution) error {
	outcome := OutcomeSuccess
	if d.Undistributed.IsPositive() {
		outcome = OutcomePartial
	}
	return e.record(ctx, ActionDistributionCreated, SeverityInfo, outcome,
		ResourceDistribution, d.ID.String(), CategoryDistribution, nil,
		"value_equation_id", d.ValueEquationID.String(),
		"amount", d.Amount.String(),
		"distributed", d.Distributed.String(),
		"undistributed", d.Undistributed.String(),
		"recipients", len(d.Events),
	)
}

// OnRoundingAdjusted implements plugin.OnRoundingAdjusted.
func (e *Extension) OnRoundingAdjusted(ctx context.Context, distID id.DistributionID, agent id.AgentID, delta decimal.Decimal) error {
	return e.record(ctx, ActionRoundingAdjusted, SeverityInfo, OutcomeSuccess,
		ResourceDistribution, distID.String(), CategoryDistribution, nil,
		"agent", agent.String(),
		"delta", delta.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
