// Package plugin provides an extensible plugin system for valueflow.
// Plugins can hook into engine lifecycle events to extend functionality.
package plugin

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/id"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Traversal hooks
// ──────────────────────────────────────────────────

// OnValueRolledUp is called after a resource's value per unit is resolved.
type OnValueRolledUp interface {
	Plugin
	OnValueRolledUp(ctx context.Context, resourceID id.ResourceID, valuePerUnit decimal.Decimal, depth int) error
}

// OnTraversalSkipped is called when the cycle guard skips a node that was
// already expanded in the same traversal.
type OnTraversalSkipped interface {
	Plugin
	OnTraversalSkipped(ctx context.Context, kind, nodeID, reason string) error
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// OnClaimCreated is called when a contribution first raises a claim.
type OnClaimCreated interface {
	Plugin
	OnClaimCreated(ctx context.Context, c *claim.Claim) error
}

// OnClaimDischarged is called when a distribution pays against a claim.
type OnClaimDischarged interface {
	Plugin
	OnClaimDischarged(ctx context.Context, c *claim.Claim, line *claim.Event) error
}

// ──────────────────────────────────────────────────
// Distribution hooks
// ──────────────────────────────────────────────────

// OnDistributionCreated is called after a distribution run is persisted.
type OnDistributionCreated interface {
	Plugin
	OnDistributionCreated(ctx context.Context, d *distribution.Distribution) error
}

// OnRoundingAdjusted is called when reconciliation moves a rounding
// remainder onto a recipient.
type OnRoundingAdjusted interface {
	Plugin
	OnRoundingAdjusted(ctx context.Context, distID id.DistributionID, agent id.AgentID, delta decimal.Decimal) error
}
