// Package valueequation holds the configuration that decides how income is
// split: ordered buckets, each either paying a fixed agent or apportioning
// its slice across contributors selected by bucket rules.
package valueequation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/types"
)

// PercentageBehavior selects what a bucket percentage is a percentage of.
type PercentageBehavior string

const (
	// Straight percentages apply to the total amount.
	Straight PercentageBehavior = "straight"
	// Remaining percentages apply to what earlier buckets left undistributed.
	Remaining PercentageBehavior = "remaining"
)

// FilterMethod names the gatherer that locates a bucket's events.
type FilterMethod string

const (
	FilterOrder    FilterMethod = "order"
	FilterShipment FilterMethod = "shipment"
	FilterProcess  FilterMethod = "process"
	FilterDates    FilterMethod = "dates"
)

type ValueEquation struct {
	types.Entity
	ID                 id.ValueEquationID `json:"id"`
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	ContextAgent       id.AgentID         `json:"context_agent"`
	PercentageBehavior PercentageBehavior `json:"percentage_behavior"`
	Live               bool               `json:"live"`
	Buckets            []Bucket           `json:"buckets"`
}

// Bucket is one slice of a distribution.
type Bucket struct {
	ID                id.BucketID     `json:"id"`
	Name              string          `json:"name"`
	Sequence          int             `json:"sequence"`
	Percentage        decimal.Decimal `json:"percentage"`
	DistributionAgent id.AgentID      `json:"distribution_agent"`
	FilterMethod      FilterMethod    `json:"filter_method,omitempty"`
	Rules             []BucketRule    `json:"rules,omitempty"`
}

// BucketRule selects events by type, process type and resource type, and
// prices the claim each selected event raises.
type BucketRule struct {
	ID                    id.BucketRuleID `json:"id"`
	EventType             graph.EventType `json:"event_type"`
	ProcessTypes          []string        `json:"process_types,omitempty"`
	ResourceTypes         []string        `json:"resource_types,omitempty"`
	ClaimCreationEquation string          `json:"claim_creation_equation"`
	ClaimRuleType         claim.RuleType  `json:"claim_rule_type"`
}

// Filter is the gatherer input for one bucket of one run.
type Filter struct {
	ExchangeIDs      []id.ExchangeID `json:"exchange_ids,omitempty"`
	ShipmentEventIDs []id.EventID    `json:"shipment_event_ids,omitempty"`
	ProcessIDs       []id.ProcessID  `json:"process_ids,omitempty"`
	Start            time.Time       `json:"start,omitzero"`
	End              time.Time       `json:"end,omitzero"`
}

// HasFixedAgent reports whether the bucket pays one agent its whole slice.
func (b *Bucket) HasFixedAgent() bool { return !b.DistributionAgent.IsNil() }

// SortedBuckets returns the buckets ordered by sequence. Equal sequences
// keep their configured order.
func (ve *ValueEquation) SortedBuckets() []*Bucket {
	out := make([]*Bucket, len(ve.Buckets))
	for i := range ve.Buckets {
		out[i] = &ve.Buckets[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// Rules returns every bucket rule, in bucket sequence then rule order.
func (ve *ValueEquation) Rules() []*BucketRule {
	var out []*BucketRule
	for _, b := range ve.SortedBuckets() {
		out = append(out, b.RulePointers()...)
	}
	return out
}

// RulePointers returns pointers to the bucket's rules in order.
func (b *Bucket) RulePointers() []*BucketRule {
	out := make([]*BucketRule, len(b.Rules))
	for i := range b.Rules {
		out[i] = &b.Rules[i]
	}
	return out
}

// Bucket returns the bucket with the given ID, or nil.
func (ve *ValueEquation) Bucket(bucketID id.BucketID) *Bucket {
	for i := range ve.Buckets {
		if ve.Buckets[i].ID.String() == bucketID.String() {
			return &ve.Buckets[i]
		}
	}
	return nil
}

// Rule returns the bucket rule with the given ID, or nil.
func (ve *ValueEquation) Rule(ruleID id.BucketRuleID) *BucketRule {
	for _, r := range ve.Rules() {
		if r.ID.String() == ruleID.String() {
			return r
		}
	}
	return nil
}

// ListOpts filters value equation listings.
type ListOpts struct {
	ContextAgent id.AgentID
	LiveOnly     bool
	Limit        int
	Offset       int
}
