// Package claim records what contributors are owed and the ledger lines that
// raise and discharge it.
package claim

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/types"
)

// RuleType is the lifecycle policy of a claim.
type RuleType string

const (
	// DebtLike claims decrease by each distributed amount until extinguished.
	DebtLike RuleType = "debt-like"
	// EquityLike claims are a perpetual entitlement; distribution does not reduce them.
	EquityLike RuleType = "equity-like"
	// Once claims are extinguished by the first distribution that touches them.
	Once RuleType = "once"
)

// Valid reports whether t is a known policy.
func (t RuleType) Valid() bool {
	switch t {
	case DebtLike, EquityLike, Once:
		return true
	}
	return false
}

// Capped reports whether a distribution may pay at most the outstanding value.
func (t RuleType) Capped() bool {
	return t == DebtLike || t == Once
}

// Direction of a claim event.
type Direction string

const (
	Raised     Direction = "+"
	Discharged Direction = "-"
)

// Claim is owed to HasAgent by AgainstAgent for the contribution EventID,
// raised by the bucket rule BucketRuleID.
type Claim struct {
	types.Entity
	ID              id.ClaimID         `json:"id"`
	ValueEquationID id.ValueEquationID `json:"value_equation_id"`
	BucketRuleID    id.BucketRuleID    `json:"bucket_rule_id"`
	EventID         id.EventID         `json:"event_id"`
	RuleType        RuleType           `json:"rule_type"`
	HasAgent        id.AgentID         `json:"has_agent"`
	AgainstAgent    id.AgentID         `json:"against_agent"`
	ContextAgent    id.AgentID         `json:"context_agent"`
	Value           decimal.Decimal    `json:"value"`
	OriginalValue   decimal.Decimal    `json:"original_value"`
	ClaimDate       time.Time          `json:"claim_date"`
}

// Event is an append-only ledger line against a claim.
type Event struct {
	types.Entity
	ID                  id.ClaimEventID        `json:"id"`
	ClaimID             id.ClaimID             `json:"claim_id"`
	EventID             id.EventID             `json:"event_id"`
	DistributionEventID id.DistributionEventID `json:"distribution_event_id"`
	Direction           Direction              `json:"direction"`
	Value               decimal.Decimal        `json:"value"`
	Date                time.Time              `json:"date"`
}

// ListOpts filters claim listings. Zero fields do not filter.
type ListOpts struct {
	HasAgent        id.AgentID
	ContextAgent    id.AgentID
	ValueEquationID id.ValueEquationID
	BucketRuleID    id.BucketRuleID
	OutstandingOnly bool
	Limit           int
	Offset          int
}
