package graph

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/id"
)

// Provider is the read side of the economic graph, plus the one write the
// engine performs: caching a resource's resolved value per unit.
//
// Event lists are returned ordered by date, then by creation.
type Provider interface {
	GetResource(ctx context.Context, resourceID id.ResourceID) (*Resource, error)
	GetProcess(ctx context.Context, processID id.ProcessID) (*Process, error)
	GetExchange(ctx context.Context, exchangeID id.ExchangeID) (*Exchange, error)
	GetEvent(ctx context.Context, eventID id.EventID) (*Event, error)

	// ResourceEvents returns every event that references the resource.
	ResourceEvents(ctx context.Context, resourceID id.ResourceID) ([]*Event, error)
	// ProcessEvents returns the inputs and outputs of the process.
	ProcessEvents(ctx context.Context, processID id.ProcessID) ([]*Event, error)
	// ExchangeEvents returns receipts, shipments, payments and expenses of the exchange.
	ExchangeEvents(ctx context.Context, exchangeID id.ExchangeID) ([]*Event, error)
	ListEvents(ctx context.Context, q EventQuery) ([]*Event, error)

	UpdateResourceValue(ctx context.Context, resourceID id.ResourceID, valuePerUnit decimal.Decimal) error
}

// Writer records graph nodes.
type Writer interface {
	CreateResource(ctx context.Context, r *Resource) error
	CreateProcess(ctx context.Context, p *Process) error
	CreateExchange(ctx context.Context, x *Exchange) error
	CreateEvent(ctx context.Context, e *Event) error
}

// EventQuery filters ListEvents. Zero fields do not filter.
type EventQuery struct {
	ContextAgent      id.AgentID
	Types             []EventType
	Start             time.Time
	End               time.Time
	ContributionsOnly bool
	Limit             int
	Offset            int
}

// Matches reports whether e satisfies every set field of the query.
func (q EventQuery) Matches(e *Event) bool {
	if !q.ContextAgent.IsNil() && e.ContextAgent.String() != q.ContextAgent.String() {
		return false
	}
	if len(q.Types) > 0 {
		found := false
		for _, t := range q.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !q.Start.IsZero() && e.Date.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && e.Date.After(q.End) {
		return false
	}
	if q.ContributionsOnly && !e.IsContribution {
		return false
	}
	return true
}
