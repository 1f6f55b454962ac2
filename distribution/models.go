// Package distribution records distribution runs: the money each agent
// receives, the claim lines that funded it and the configuration used.
package distribution

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/types"
	"github.com/xraph/valueflow/valueequation"
)

// Distribution is one run of a value equation.
type Distribution struct {
	types.Entity
	ID              id.DistributionID  `json:"id"`
	ValueEquationID id.ValueEquationID `json:"value_equation_id"`
	ContextAgent    id.AgentID         `json:"context_agent"`
	Date            time.Time          `json:"date"`
	Currency        string             `json:"currency"`
	// Amount is the amount offered for distribution.
	Amount decimal.Decimal `json:"amount"`
	// Distributed is the sum of the distribution events.
	Distributed decimal.Decimal `json:"distributed"`
	// Undistributed is what no bucket allocated.
	Undistributed  decimal.Decimal `json:"undistributed"`
	IncomeEventIDs []id.EventID    `json:"income_event_ids,omitempty"`
	Snapshot       Snapshot        `json:"snapshot"`
	Events         []*Event        `json:"events"`
	Disbursement   *Disbursement   `json:"disbursement,omitempty"`
}

// Event is the money one agent receives from a run.
type Event struct {
	types.Entity
	ID             id.DistributionEventID `json:"id"`
	DistributionID id.DistributionID      `json:"distribution_id"`
	FromAgent      id.AgentID             `json:"from_agent"`
	ToAgent        id.AgentID             `json:"to_agent"`
	Quantity       decimal.Decimal        `json:"quantity"`
	Date           time.Time              `json:"date"`
	ClaimEventIDs  []id.ClaimEventID      `json:"claim_event_ids,omitempty"`
}

// Disbursement debits the funding resource for a run.
type Disbursement struct {
	types.Entity
	ID             id.DisbursementID `json:"id"`
	DistributionID id.DistributionID `json:"distribution_id"`
	ResourceID     id.ResourceID     `json:"resource_id"`
	FromAgent      id.AgentID        `json:"from_agent"`
	Quantity       decimal.Decimal   `json:"quantity"`
	Date           time.Time         `json:"date"`
}

// Snapshot freezes the configuration a run used so it can be reproduced
// after the live value equation changes.
type Snapshot struct {
	ValueEquation valueequation.ValueEquation   `json:"value_equation"`
	Filters       map[string]valueequation.Filter `json:"filters,omitempty"`
}

// NewSnapshot deep-copies ve and filters.
func NewSnapshot(ve *valueequation.ValueEquation, filters map[string]valueequation.Filter) (Snapshot, error) {
	var s Snapshot
	raw, err := json.Marshal(Snapshot{ValueEquation: *ve, Filters: filters})
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(raw, &s)
	return s, err
}

// Marshal encodes the snapshot for storage.
func (s Snapshot) Marshal() ([]byte, error) { return json.Marshal(s) }

// UnmarshalSnapshot decodes a stored snapshot.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if len(data) == 0 {
		return s, nil
	}
	err := json.Unmarshal(data, &s)
	return s, err
}

// Total sums the quantities of the distribution events.
func (d *Distribution) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range d.Events {
		total = total.Add(e.Quantity)
	}
	return total
}

// EventFor returns the distribution event paying agent, or nil.
func (d *Distribution) EventFor(agent id.AgentID) *Event {
	for _, e := range d.Events {
		if e.ToAgent.String() == agent.String() {
			return e
		}
	}
	return nil
}

// ListOpts filters distribution listings.
type ListOpts struct {
	ValueEquationID id.ValueEquationID
	ContextAgent    id.AgentID
	Limit           int
	Offset          int
}
