// Package graph defines the economic network the engine traverses: resources,
// processes, exchanges and the typed events that connect them.
package graph

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/types"
)

// EventType is the relationship an event records between an agent and a
// resource, process or exchange.
type EventType string

const (
	// Process inputs.
	EventWork    EventType = "work"
	EventUse     EventType = "use"
	EventConsume EventType = "consume"
	EventCite    EventType = "cite"

	// Process output.
	EventProduce EventType = "produce"

	// Exchange events.
	EventReceive EventType = "receive"
	EventGive    EventType = "give"
	EventPay     EventType = "pay"
	EventExpense EventType = "expense"

	// Direct contribution of a resource into the system.
	EventContribute EventType = "contribute"

	// Distribution bookkeeping.
	EventDistribute EventType = "distribute"
	EventDisburse   EventType = "disburse"
)

// UnitPercent marks a citation whose quantity is a percentage of the other
// process inputs rather than an amount.
const UnitPercent = "percent"

// IsInput reports whether the type is consumed as a process input.
func (t EventType) IsInput() bool {
	switch t {
	case EventWork, EventUse, EventConsume, EventCite:
		return true
	}
	return false
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventWork, EventUse, EventConsume, EventCite, EventProduce,
		EventReceive, EventGive, EventPay, EventExpense, EventContribute,
		EventDistribute, EventDisburse:
		return true
	}
	return false
}

// Event is an atomic economic fact. IsContribution and IsToDistribute are
// set when the event is recorded and never changed by the engine.
type Event struct {
	types.Entity
	ID             id.EventID      `json:"id"`
	Type           EventType       `json:"type"`
	Date           time.Time       `json:"date"`
	FromAgent      id.AgentID      `json:"from_agent"`
	ToAgent        id.AgentID      `json:"to_agent"`
	ContextAgent   id.AgentID      `json:"context_agent"`
	ResourceID     id.ResourceID   `json:"resource_id"`
	ResourceTypeID string          `json:"resource_type_id,omitempty"`
	ProcessID      id.ProcessID    `json:"process_id"`
	ExchangeID     id.ExchangeID   `json:"exchange_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	Unit           string          `json:"unit,omitempty"`
	Value          decimal.Decimal `json:"value"`
	UnitValue      decimal.Decimal `json:"unit_value"`
	Price          decimal.Decimal `json:"price"`
	StageID        string          `json:"stage_id,omitempty"`
	IsContribution bool            `json:"is_contribution"`
	IsToDistribute bool            `json:"is_to_distribute"`
	Note           string          `json:"note,omitempty"`
}

// MonetaryValue is the recorded value of the event, falling back to
// quantity times the unit rate when no value was recorded.
func (e *Event) MonetaryValue() decimal.Decimal {
	if !e.Value.IsZero() {
		return e.Value
	}
	return e.Quantity.Mul(e.UnitValue)
}

// PricePerUnit returns Price divided by Quantity, or zero.
func (e *Event) PricePerUnit() decimal.Decimal {
	p, _ := types.Div(e.Price, e.Quantity)
	return p
}

// IsDirectContribution reports whether the event contributes value straight
// into a resource, outside of any process or exchange.
func (e *Event) IsDirectContribution() bool {
	return e.IsContribution && e.ProcessID.IsNil() && e.ExchangeID.IsNil() && !e.ResourceID.IsNil()
}

// IsPurchase reports whether the event receives a resource through an exchange.
func (e *Event) IsPurchase() bool {
	return e.Type == EventReceive && !e.ExchangeID.IsNil() && !e.ResourceID.IsNil()
}

// IsPercentCitation reports whether the event cites a percentage of the
// other process inputs.
func (e *Event) IsPercentCitation() bool {
	return e.Type == EventCite && e.Unit == UnitPercent
}

// Resource is a quantity-bearing thing. ValuePerUnit is a derived cache
// recomputed by every rollup.
type Resource struct {
	types.Entity
	ID                id.ResourceID   `json:"id"`
	Name              string          `json:"name"`
	ResourceTypeID    string          `json:"resource_type_id"`
	ContextAgent      id.AgentID      `json:"context_agent"`
	Quantity          decimal.Decimal `json:"quantity"`
	Unit              string          `json:"unit,omitempty"`
	ValuePerUnit      decimal.Decimal `json:"value_per_unit"`
	ValuePerUnitOfUse decimal.Decimal `json:"value_per_unit_of_use"`
	// StageID is the process type of the recipe step that produced it.
	StageID string `json:"stage_id,omitempty"`
	// ExchangeStageID is the exchange type it was acquired under.
	ExchangeStageID string `json:"exchange_stage_id,omitempty"`
}

// Process converts a set of input events into output events.
type Process struct {
	types.Entity
	ID            id.ProcessID `json:"id"`
	Name          string       `json:"name"`
	ProcessTypeID string       `json:"process_type_id"`
	ContextAgent  id.AgentID   `json:"context_agent"`
	Start         time.Time    `json:"start"`
	End           time.Time    `json:"end"`
}

// Exchange groups resource receipts with their reciprocal payments.
type Exchange struct {
	types.Entity
	ID             id.ExchangeID `json:"id"`
	Name           string        `json:"name"`
	ExchangeTypeID string        `json:"exchange_type_id"`
	ContextAgent   id.AgentID    `json:"context_agent"`
	Date           time.Time     `json:"date"`
}
