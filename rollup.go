package valueflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/types"
	"github.com/xraph/valueflow/valueequation"
)

// RollupResult is a resolved value per unit with the path that produced it.
type RollupResult struct {
	ResourceID   id.ResourceID   `json:"resource_id"`
	ValuePerUnit decimal.Decimal `json:"value_per_unit"`
	Path         []PathNode      `json:"path"`
}

// RollUpValue resolves a resource's value per unit from everything that went
// into producing or acquiring it, and caches it on the resource. When ve is
// not nil its bucket rules reprice matching events.
func (e *Engine) RollUpValue(ctx context.Context, resourceID id.ResourceID, ve *valueequation.ValueEquation) (_ *RollupResult, err error) {
	ctx, span := e.tracer.Start(ctx, "valueflow.rollup")
	span.SetAttributes(attribute.String("resource.id", resourceID.String()))
	defer func() { endSpan(span, err) }()

	res, err := e.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	t := e.newTraversal(ctx, rulesOf(ve))
	vpu, err := t.rollUpResource(res, "", 0)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("value_per_unit", vpu.String()))
	return &RollupResult{ResourceID: resourceID, ValuePerUnit: vpu, Path: *t.path}, nil
}

func rulesOf(ve *valueequation.ValueEquation) []*valueequation.BucketRule {
	if ve == nil {
		return nil
	}
	return ve.Rules()
}

// valueSource is one way a resource came to exist, valued per unit.
type valueSource struct {
	vpu decimal.Decimal
	qty decimal.Decimal
}

// weightedAverage combines sources by quantity. Zero-quantity sources carry
// no weight, and no weight at all resolves to zero.
func weightedAverage(sources []valueSource) decimal.Decimal {
	num, den := decimal.Zero, decimal.Zero
	for _, s := range sources {
		if !s.qty.IsPositive() {
			continue
		}
		num = num.Add(s.vpu.Mul(s.qty))
		den = den.Add(s.qty)
	}
	avg, _ := types.Div(num, den)
	return avg
}

// rollUpResource values res from its direct contributions, its purchases and
// the processes that produced it. stage, when set, overrides the resource's
// own stage for selecting producing processes; such a scoped value is not
// cached on the resource. Each (resource, stage) is valued once per
// traversal and each producing process expanded once, so shared inputs cost
// nothing after their first valuation.
func (t *traversal) rollUpResource(res *graph.Resource, stage string, depth int) (decimal.Decimal, error) {
	scope := stageOf(res, stage)
	key := string(NodeResource) + ":" + res.ID.String() + "|" + scope
	if vpu, ok := t.values[key]; ok {
		t.record(PathNode{Kind: NodeResource, ID: res.ID.String(), Stage: scope, Depth: depth, Value: vpu, Note: "memoized"})
		return vpu, nil
	}
	if err := t.deeper(NodeResource, res.ID.String(), depth); err != nil {
		return decimal.Zero, err
	}

	events, err := t.graph.ResourceEvents(t.ctx, res.ID)
	if err != nil {
		return decimal.Zero, err
	}

	var sources []valueSource

	for _, ev := range graph.Contributions(events) {
		if !ev.Quantity.IsPositive() {
			continue
		}
		v, _, _, err := t.claimValue(ev)
		if err != nil {
			return decimal.Zero, err
		}
		sources = append(sources, valueSource{vpu: v.Div(ev.Quantity), qty: ev.Quantity})
		t.record(PathNode{Kind: NodeEvent, ID: ev.ID.String(), Depth: depth + 1, Value: v, Note: "contribution"})
	}

	for _, ev := range graph.Purchases(events) {
		if !ev.Quantity.IsPositive() {
			continue
		}
		x, err := t.graph.GetExchange(t.ctx, ev.ExchangeID)
		if err != nil {
			return decimal.Zero, err
		}
		if res.ExchangeStageID != "" && x.ExchangeTypeID != res.ExchangeStageID {
			continue
		}
		v, err := t.rollUpExchange(x, ev, depth+1)
		if err != nil {
			return decimal.Zero, err
		}
		sources = append(sources, valueSource{vpu: v.Div(ev.Quantity), qty: ev.Quantity})
	}

	for _, produce := range graph.Productions(events) {
		p, err := t.graph.GetProcess(t.ctx, produce.ProcessID)
		if err != nil {
			return decimal.Zero, err
		}
		if !inStage(p, scope) {
			continue
		}
		pv, ok, err := t.valueProcess(p, depth+1)
		if err != nil {
			return decimal.Zero, err
		}
		if !ok {
			continue
		}
		produced := graph.ProducedQuantity(pv.events)
		qty := graph.ProducedQuantityOf(pv.events, res.ID)
		if !produced.IsPositive() || !qty.IsPositive() {
			continue
		}
		sources = append(sources, valueSource{vpu: pv.value.Div(produced), qty: qty})
	}

	vpu := types.RoundUp(weightedAverage(sources))
	if scope == res.StageID {
		if err := t.graph.UpdateResourceValue(t.ctx, res.ID, vpu); err != nil {
			return decimal.Zero, fmt.Errorf("cache value of %s: %w", res.ID, err)
		}
		res.ValuePerUnit = vpu
	}
	t.values[key] = vpu

	t.record(PathNode{Kind: NodeResource, ID: res.ID.String(), Stage: scope, Depth: depth, Value: vpu})
	t.engine.plugins.EmitValueRolledUp(t.ctx, res.ID, vpu, depth)
	return vpu, nil
}

// valueProcess returns p's input value, expanding p at most once per
// traversal. It reports false when p is already being expanded further up
// the path.
func (t *traversal) valueProcess(p *graph.Process, depth int) (processValue, bool, error) {
	key := string(NodeProcess) + ":" + p.ID.String()
	if pv, ok := t.processes[key]; ok {
		return pv, true, nil
	}
	if _, onPath := t.active[key]; onPath {
		t.skip(NodeProcess, p.ID.String(), p.ProcessTypeID, depth, decimal.Zero)
		return processValue{}, false, nil
	}

	t.active[key] = struct{}{}
	defer delete(t.active, key)

	value, events, err := t.rollUpProcess(p, depth)
	if err != nil {
		return processValue{}, false, err
	}
	pv := processValue{value: value, events: events}
	t.processes[key] = pv
	return pv, true, nil
}

// inputValue is the value one process input contributes.
type inputValue struct {
	event *graph.Event
	value decimal.Decimal
	rule  *valueequation.BucketRule
	cand  valueequation.Candidate
}

// rollUpProcess sums the values of a process's inputs.
func (t *traversal) rollUpProcess(p *graph.Process, depth int) (decimal.Decimal, []*graph.Event, error) {
	if err := t.deeper(NodeProcess, p.ID.String(), depth); err != nil {
		return decimal.Zero, nil, err
	}

	events, err := t.graph.ProcessEvents(t.ctx, p.ID)
	if err != nil {
		return decimal.Zero, nil, err
	}
	inputs, err := t.inputValues(events, depth)
	if err != nil {
		return decimal.Zero, nil, err
	}

	total := decimal.Zero
	for _, in := range inputs {
		total = total.Add(in.value)
	}
	t.record(PathNode{Kind: NodeProcess, ID: p.ID.String(), Stage: p.ProcessTypeID, Depth: depth, Value: total})
	return total, events, nil
}

// inputValues values each input of a process. Citations are valued last:
// a percent citation is that percentage of the other inputs combined.
func (t *traversal) inputValues(events []*graph.Event, depth int) ([]inputValue, error) {
	var (
		out   []inputValue
		cites []*graph.Event
		base  = decimal.Zero
	)

	for _, ev := range graph.Inputs(events) {
		in := inputValue{event: ev}
		switch ev.Type {
		case graph.EventWork:
			v, rule, cand, err := t.claimValue(ev)
			if err != nil {
				return nil, err
			}
			in.value, in.rule, in.cand = v, rule, cand

		case graph.EventUse:
			v, cand, err := t.useValue(ev, depth)
			if err != nil {
				return nil, err
			}
			in.value, in.cand = v, cand

		case graph.EventConsume:
			r, err := t.graph.GetResource(t.ctx, ev.ResourceID)
			if err != nil {
				return nil, fmt.Errorf("consumed resource of %s: %w", ev.ID, err)
			}
			vpu, err := t.rollUpResource(r, ev.StageID, depth+1)
			if err != nil {
				return nil, err
			}
			in.value = ev.Quantity.Mul(vpu)
			in.cand = valueequation.Candidate{Event: ev, Resource: r}

		case graph.EventCite:
			cites = append(cites, ev)
			continue
		}
		base = base.Add(in.value)
		out = append(out, in)
	}

	for _, ev := range cites {
		cand, err := t.candidate(ev)
		if err != nil {
			return nil, err
		}
		v := ev.Quantity
		if ev.IsPercentCitation() {
			v = types.Percent(ev.Quantity).Mul(base)
		}
		out = append(out, inputValue{event: ev, value: v, cand: cand})
	}
	return out, nil
}

// useValue is the explicit price of a use, or its quantity at the used
// resource's value per unit of use. The used resource is rolled up for the
// audit path; its own value does not feed the process.
func (t *traversal) useValue(ev *graph.Event, depth int) (decimal.Decimal, valueequation.Candidate, error) {
	cand := valueequation.Candidate{Event: ev}
	if ev.ResourceID.IsNil() {
		return ev.Price, cand, nil
	}
	r, err := t.graph.GetResource(t.ctx, ev.ResourceID)
	if err != nil {
		return decimal.Zero, cand, fmt.Errorf("used resource of %s: %w", ev.ID, err)
	}
	cand.Resource = r

	if _, err := t.rollUpResource(r, "", depth+1); err != nil {
		return decimal.Zero, cand, err
	}

	if !ev.Price.IsZero() {
		return ev.Price, cand, nil
	}
	return ev.Quantity.Mul(r.ValuePerUnitOfUse), cand, nil
}
