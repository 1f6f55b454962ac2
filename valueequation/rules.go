package valueequation

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/equation"
	"github.com/xraph/valueflow/graph"
)

// Candidate is an event under evaluation together with the graph context
// a rule needs to match and price it.
type Candidate struct {
	Event       *graph.Event
	ProcessType string
	Resource    *graph.Resource
}

// ResourceType is the resource type of the event, or of its resource.
func (c Candidate) ResourceType() string {
	if c.Event.ResourceTypeID != "" {
		return c.Event.ResourceTypeID
	}
	if c.Resource != nil {
		return c.Resource.ResourceTypeID
	}
	return ""
}

// Matches reports whether the rule selects the candidate: the event type
// must be equal, and each non-empty allow-list must contain the candidate's
// process type or resource type.
func (r *BucketRule) Matches(c Candidate) bool {
	if c.Event == nil || c.Event.Type != r.EventType {
		return false
	}
	if len(r.ProcessTypes) > 0 && !contains(r.ProcessTypes, c.ProcessType) {
		return false
	}
	if len(r.ResourceTypes) > 0 && !contains(r.ResourceTypes, c.ResourceType()) {
		return false
	}
	return true
}

// Specificity ranks how narrowly the rule is filtered.
func (r *BucketRule) Specificity() float64 {
	switch {
	case len(r.ProcessTypes) > 0 && len(r.ResourceTypes) > 0:
		return 2
	case len(r.ProcessTypes) > 0:
		return 1.5
	case len(r.ResourceTypes) > 0:
		return 1
	}
	return 0
}

// BestRule returns the most specific rule matching c. Among equally
// specific rules the earliest in rules wins, so callers control ties
// through ordering.
func BestRule(rules []*BucketRule, c Candidate) *BucketRule {
	var best *BucketRule
	for _, r := range rules {
		if !r.Matches(c) {
			continue
		}
		if best == nil || r.Specificity() > best.Specificity() {
			best = r
		}
	}
	return best
}

// Symbols builds the equation symbol table for a candidate.
func (c Candidate) Symbols() equation.Symbols {
	e := c.Event
	sym := equation.Symbols{
		Quantity:     e.Quantity,
		Value:        e.MonetaryValue(),
		ValuePerUnit: e.UnitValue,
		PricePerUnit: e.PricePerUnit(),
	}
	if c.Resource != nil {
		if sym.ValuePerUnit.IsZero() {
			sym.ValuePerUnit = c.Resource.ValuePerUnit
		}
		sym.ValuePerUnitOfUse = c.Resource.ValuePerUnitOfUse
	}
	return sym
}

// ComputeClaimValue evaluates the rule's claim creation equation for c.
// A rule without an equation values the event at its recorded value.
func (r *BucketRule) ComputeClaimValue(c Candidate) (decimal.Decimal, error) {
	if r.ClaimCreationEquation == "" {
		return c.Event.MonetaryValue(), nil
	}
	return equation.Eval(r.ClaimCreationEquation, c.Symbols())
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
