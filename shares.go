package valueflow

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/types"
	"github.com/xraph/valueflow/valueequation"
)

// Share is the part of a delivered quantity's value attributed to one
// contributing event. Rule is the bucket rule that priced the event, if any.
type Share struct {
	Event       *graph.Event              `json:"event"`
	ProcessType string                    `json:"process_type,omitempty"`
	Resource    *graph.Resource           `json:"resource,omitempty"`
	Rule        *valueequation.BucketRule `json:"rule,omitempty"`
	Amount      decimal.Decimal           `json:"amount"`
}

// Candidate returns the share's event with its matching context.
func (s *Share) Candidate() valueequation.Candidate {
	return valueequation.Candidate{Event: s.Event, ProcessType: s.ProcessType, Resource: s.Resource}
}

// shareSet accumulates shares per event in first-seen order.
type shareSet struct {
	order []string
	byID  map[string]*Share
}

func newShareSet() *shareSet {
	return &shareSet{byID: make(map[string]*Share)}
}

func (s *shareSet) add(c valueequation.Candidate, rule *valueequation.BucketRule, amount decimal.Decimal) {
	key := c.Event.ID.String()
	if sh, ok := s.byID[key]; ok {
		sh.Amount = sh.Amount.Add(amount)
		if sh.Rule == nil {
			sh.Rule = rule
		}
		return
	}
	s.byID[key] = &Share{
		Event:       c.Event,
		ProcessType: c.ProcessType,
		Resource:    c.Resource,
		Rule:        rule,
		Amount:      amount,
	}
	s.order = append(s.order, key)
}

func (s *shareSet) list() []*Share {
	out := make([]*Share, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byID[k])
	}
	return out
}

func (s *shareSet) total() decimal.Decimal {
	total := decimal.Zero
	for _, sh := range s.byID {
		total = total.Add(sh.Amount)
	}
	return total
}

// ComputeIncomeShares attributes the value of quantity units of a resource
// back to the contributing events that produced or acquired them.
func (e *Engine) ComputeIncomeShares(ctx context.Context, ve *valueequation.ValueEquation, resourceID id.ResourceID, quantity decimal.Decimal) (_ []*Share, err error) {
	ctx, span := e.tracer.Start(ctx, "valueflow.income_shares")
	span.SetAttributes(
		attribute.String("resource.id", resourceID.String()),
		attribute.String("quantity", quantity.String()),
	)
	defer func() { endSpan(span, err) }()

	res, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	acc := newShareSet()
	t := e.newTraversal(ctx, rulesOf(ve))
	if err := t.computeShares(res, "", quantity, 0, acc); err != nil {
		return nil, err
	}
	return acc.list(), nil
}

// computeShares walks back from qty units of res. Sources are drawn in
// order (contributions, purchases, then producing processes) until the
// requested quantity is covered; what no source covers is not attributed.
func (t *traversal) computeShares(res *graph.Resource, stage string, qty decimal.Decimal, depth int, acc *shareSet) error {
	if err := t.deeper(NodeResource, res.ID.String(), depth); err != nil {
		return err
	}
	if !qty.IsPositive() {
		return nil
	}

	events, err := t.graph.ResourceEvents(t.ctx, res.ID)
	if err != nil {
		return err
	}
	remaining := qty

	for _, ev := range graph.Contributions(events) {
		if !remaining.IsPositive() {
			return nil
		}
		if !ev.Quantity.IsPositive() {
			continue
		}
		take := types.MinDecimal(remaining, ev.Quantity)
		if err := t.shareEvent(ev, take.Div(ev.Quantity), acc); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}

	for _, ev := range graph.Purchases(events) {
		if !remaining.IsPositive() {
			return nil
		}
		if !ev.Quantity.IsPositive() {
			continue
		}
		x, err := t.graph.GetExchange(t.ctx, ev.ExchangeID)
		if err != nil {
			return err
		}
		if res.ExchangeStageID != "" && x.ExchangeTypeID != res.ExchangeStageID {
			continue
		}
		take := types.MinDecimal(remaining, ev.Quantity)
		if err := t.exchangeShares(x, ev, take.Div(ev.Quantity), depth+1, acc); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}

	scope := stageOf(res, stage)
	for _, produce := range graph.Productions(events) {
		if !remaining.IsPositive() {
			return nil
		}
		p, err := t.graph.GetProcess(t.ctx, produce.ProcessID)
		if err != nil {
			return err
		}
		if !inStage(p, scope) {
			continue
		}
		procEvents, err := t.graph.ProcessEvents(t.ctx, p.ID)
		if err != nil {
			return err
		}
		produced := graph.ProducedQuantity(procEvents)
		ofRes := graph.ProducedQuantityOf(procEvents, res.ID)
		if !ofRes.IsPositive() || !t.enter(p, depth+1) {
			continue
		}
		take := types.MinDecimal(remaining, ofRes)
		if err := t.processShares(p, procEvents, take.Div(produced), depth+1, acc); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		t.record(PathNode{Kind: NodeResource, ID: res.ID.String(), Stage: scope, Depth: depth, Value: remaining, Note: "unattributed quantity"})
	}
	return nil
}

// processShares attributes fraction of a process's input value. Work is
// credited directly, consumed resources are walked by quantity, and used
// or cited resources by value ratio.
func (t *traversal) processShares(p *graph.Process, events []*graph.Event, fraction decimal.Decimal, depth int, acc *shareSet) error {
	if err := t.deeper(NodeProcess, p.ID.String(), depth); err != nil {
		return err
	}

	inputs, err := t.valuer(p).inputValues(events, depth)
	if err != nil {
		return err
	}

	for _, in := range inputs {
		ev := in.event
		switch ev.Type {
		case graph.EventWork:
			if ev.IsContribution {
				acc.add(in.cand, in.rule, in.value.Mul(fraction))
			}

		case graph.EventConsume:
			if in.cand.Resource == nil {
				continue
			}
			if err := t.computeShares(in.cand.Resource, ev.StageID, ev.Quantity.Mul(fraction), depth+1, acc); err != nil {
				return err
			}

		case graph.EventUse, graph.EventCite:
			amount := in.value.Mul(fraction)
			if in.cand.Resource == nil {
				if ev.IsContribution {
					acc.add(in.cand, in.rule, amount)
				}
				continue
			}
			if err := t.sharesByValue(in.cand.Resource, amount, depth+1, acc); err != nil {
				return err
			}
		}
	}
	return nil
}

// valuer returns a traversal that values p's inputs with only p on the
// rollup path. Valuations are not blocked by processes the share walk
// already attributed, and they reuse values memoized by earlier ones.
func (t *traversal) valuer(p *graph.Process) *traversal {
	v := *t
	v.active = map[string]struct{}{string(NodeProcess) + ":" + p.ID.String(): {}}
	return &v
}

// subwalk returns a traversal for a nested share walk. It attributes
// processes afresh but shares the stack of resources being apportioned.
func (t *traversal) subwalk() *traversal {
	w := *t
	w.visited = make(map[string]struct{})
	return &w
}

// sharesByValue spreads amount over the contributors of res in proportion
// to each one's part of the resource's total value. A resource used in its
// own production is apportioned once; the inner use is skipped.
func (t *traversal) sharesByValue(res *graph.Resource, amount decimal.Decimal, depth int, acc *shareSet) error {
	if !amount.IsPositive() {
		return nil
	}
	key := res.ID.String()
	if _, busy := t.apportioning[key]; busy {
		t.skip(NodeResource, key, res.StageID, depth, amount)
		return nil
	}
	qty, err := t.sourceQuantity(res)
	if err != nil {
		return err
	}

	t.apportioning[key] = struct{}{}
	defer delete(t.apportioning, key)

	chain := newShareSet()
	if err := t.subwalk().computeShares(res, "", qty, depth, chain); err != nil {
		return err
	}
	total := chain.total()
	if !total.IsPositive() {
		return nil
	}
	for _, sh := range chain.list() {
		acc.add(sh.Candidate(), sh.Rule, amount.Mul(sh.Amount).Div(total))
	}
	return nil
}

// sourceQuantity is the resource's on-hand quantity, or when none is
// recorded, the quantity its sources brought in.
func (t *traversal) sourceQuantity(res *graph.Resource) (decimal.Decimal, error) {
	if res.Quantity.IsPositive() {
		return res.Quantity, nil
	}
	events, err := t.graph.ResourceEvents(t.ctx, res.ID)
	if err != nil {
		return decimal.Zero, err
	}
	qty := graph.TotalQuantity(graph.Contributions(events)).
		Add(graph.TotalQuantity(graph.Purchases(events))).
		Add(graph.ProducedQuantityOf(events, res.ID))
	return qty, nil
}
