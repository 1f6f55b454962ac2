package claim

import (
	"context"

	"github.com/xraph/valueflow/id"
)

// Store persists claims and their ledger lines. Claim events are append-only.
type Store interface {
	CreateClaim(ctx context.Context, c *Claim) error
	GetClaim(ctx context.Context, claimID id.ClaimID) (*Claim, error)
	// FindClaim returns the claim raised for a contribution event by a rule.
	FindClaim(ctx context.Context, eventID id.EventID, ruleID id.BucketRuleID) (*Claim, error)
	UpdateClaim(ctx context.Context, c *Claim) error
	ListClaims(ctx context.Context, opts ListOpts) ([]*Claim, error)

	AppendClaimEvents(ctx context.Context, events []*Event) error
	ListClaimEvents(ctx context.Context, claimID id.ClaimID) ([]*Event, error)
}
