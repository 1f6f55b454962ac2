package valueflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/valueequation"
)

// Gatherer locates the contributions a bucket distributes to. It adds
// them to the scope as income shares or as bare events.
type Gatherer interface {
	Gather(ctx context.Context, scope *Scope) error
}

// GatherFunc adapts a function to Gatherer.
type GatherFunc func(ctx context.Context, scope *Scope) error

// Gather calls f.
func (f GatherFunc) Gather(ctx context.Context, scope *Scope) error { return f(ctx, scope) }

// Scope is one bucket's view of a run. Shares added through it accumulate
// per event.
type Scope struct {
	ValueEquation *valueequation.ValueEquation
	Bucket        *valueequation.Bucket
	Filter        valueequation.Filter
	Graph         graph.Provider

	engine *Engine
	rules  []*valueequation.BucketRule
	acc    *shareSet
}

func (e *Engine) newScope(ve *valueequation.ValueEquation, b *valueequation.Bucket, f valueequation.Filter) *Scope {
	return &Scope{
		ValueEquation: ve,
		Bucket:        b,
		Filter:        f,
		Graph:         e.store,
		engine:        e,
		rules:         b.RulePointers(),
		acc:           newShareSet(),
	}
}

// AddResourceShares attributes qty units of a resource to its contributors.
// Each call walks the graph afresh.
func (s *Scope) AddResourceShares(ctx context.Context, resourceID id.ResourceID, qty decimal.Decimal) error {
	res, err := s.Graph.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}
	t := s.engine.newTraversal(ctx, s.rules)
	return t.computeShares(res, "", qty, 0, s.acc)
}

// AddProcessShares attributes the full output of a process to its
// contributors.
func (s *Scope) AddProcessShares(ctx context.Context, processID id.ProcessID) error {
	p, err := s.Graph.GetProcess(ctx, processID)
	if err != nil {
		return err
	}
	events, err := s.Graph.ProcessEvents(ctx, p.ID)
	if err != nil {
		return err
	}
	t := s.engine.newTraversal(ctx, s.rules)
	t.enter(p, 0)
	return t.processShares(p, events, decimal.NewFromInt(1), 0, s.acc)
}

// AddEvent adds an event with no income share. The planner weights such
// events by their claim value.
func (s *Scope) AddEvent(ctx context.Context, ev *graph.Event) error {
	t := s.engine.newTraversal(ctx, s.rules)
	cand, err := t.candidate(ev)
	if err != nil {
		return err
	}
	s.acc.add(cand, valueequation.BestRule(s.rules, cand), decimal.Zero)
	return nil
}

// Shares returns what was gathered, in first-seen order.
func (s *Scope) Shares() []*Share { return s.acc.list() }

func defaultGatherers() map[valueequation.FilterMethod]Gatherer {
	return map[valueequation.FilterMethod]Gatherer{
		valueequation.FilterOrder:    GatherFunc(gatherOrders),
		valueequation.FilterShipment: GatherFunc(gatherShipments),
		valueequation.FilterProcess:  GatherFunc(gatherProcesses),
		valueequation.FilterDates:    GatherFunc(gatherDates),
	}
}

// gatherOrders attributes everything each order exchange shipped.
func gatherOrders(ctx context.Context, s *Scope) error {
	for _, xid := range s.Filter.ExchangeIDs {
		events, err := s.Graph.ExchangeEvents(ctx, xid)
		if err != nil {
			return fmt.Errorf("order %s: %w", xid, err)
		}
		for _, ev := range graph.OfType(events, graph.EventGive) {
			if ev.ResourceID.IsNil() {
				continue
			}
			if err := s.AddResourceShares(ctx, ev.ResourceID, ev.Quantity); err != nil {
				return err
			}
		}
	}
	return nil
}

func gatherShipments(ctx context.Context, s *Scope) error {
	for _, eid := range s.Filter.ShipmentEventIDs {
		ev, err := s.Graph.GetEvent(ctx, eid)
		if err != nil {
			return fmt.Errorf("shipment %s: %w", eid, err)
		}
		if ev.ResourceID.IsNil() {
			return fmt.Errorf("%w: shipment %s names no resource", ErrInvalidInput, eid)
		}
		if err := s.AddResourceShares(ctx, ev.ResourceID, ev.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func gatherProcesses(ctx context.Context, s *Scope) error {
	for _, pid := range s.Filter.ProcessIDs {
		if err := s.AddProcessShares(ctx, pid); err != nil {
			return fmt.Errorf("process %s: %w", pid, err)
		}
	}
	return nil
}

// gatherDates collects the context agent's contributions in the filter's
// date range.
func gatherDates(ctx context.Context, s *Scope) error {
	events, err := s.Graph.ListEvents(ctx, graph.EventQuery{
		ContextAgent:      s.ValueEquation.ContextAgent,
		Start:             s.Filter.Start,
		End:               s.Filter.End,
		ContributionsOnly: true,
	})
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := s.AddEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
