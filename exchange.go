package valueflow

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/types"
)

// triggerFraction is the part of an exchange's funding that belongs to the
// trigger receipt. Receipts share the funding by value, or equally when
// none of them carries a value.
func triggerFraction(trigger *graph.Event, events []*graph.Event) decimal.Decimal {
	receipts := graph.Purchases(events)
	if len(receipts) <= 1 {
		return decimal.NewFromInt(1)
	}
	total := graph.TotalValue(receipts)
	if f, ok := types.Div(trigger.MonetaryValue(), total); ok {
		return f
	}
	return decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(receipts))))
}

// payments returns the exchange's payments made to the agent the trigger
// receipt came from. A trigger without a counterpart takes every payment.
func payments(trigger *graph.Event, events []*graph.Event) []*graph.Event {
	var out []*graph.Event
	for _, ev := range graph.OfType(events, graph.EventPay) {
		if trigger.FromAgent.IsNil() || graph.SameID(ev.ToAgent, trigger.FromAgent) {
			out = append(out, ev)
		}
	}
	return out
}

// fundingResource returns the resource a payment was made from when that
// resource was itself contributed into the system. Such payments are valued
// through the resource so the funding chain is credited once.
func (t *traversal) fundingResource(p *graph.Event) (*graph.Resource, error) {
	if p.ResourceID.IsNil() {
		return nil, nil
	}
	events, err := t.graph.ResourceEvents(t.ctx, p.ResourceID)
	if err != nil {
		return nil, err
	}
	if len(graph.Contributions(events)) == 0 {
		return nil, nil
	}
	r, err := t.graph.GetResource(t.ctx, p.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("funding resource of %s: %w", p.ID, err)
	}
	return r, nil
}

// rollUpExchange values the trigger receipt from the exchange's payments,
// expenses and work, each scaled by the trigger's fraction. An exchange met
// again while its own funding is being valued contributes nothing.
func (t *traversal) rollUpExchange(x *graph.Exchange, trigger *graph.Event, depth int) (decimal.Decimal, error) {
	key := string(NodeExchange) + ":" + x.ID.String() + "|" + trigger.ID.String()
	if _, onPath := t.active[key]; onPath {
		t.skip(NodeExchange, x.ID.String(), x.ExchangeTypeID, depth, decimal.Zero)
		return decimal.Zero, nil
	}
	if err := t.deeper(NodeExchange, x.ID.String(), depth); err != nil {
		return decimal.Zero, err
	}
	t.active[key] = struct{}{}
	defer delete(t.active, key)

	events, err := t.graph.ExchangeEvents(t.ctx, x.ID)
	if err != nil {
		return decimal.Zero, err
	}
	fraction := triggerFraction(trigger, events)

	total := decimal.Zero
	for _, p := range payments(trigger, events) {
		v, err := t.paymentValue(p, depth)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v.Mul(fraction))
	}

	for _, ev := range graph.OfType(events, graph.EventExpense) {
		total = total.Add(ev.MonetaryValue().Mul(fraction))
	}

	for _, ev := range graph.OfType(events, graph.EventWork) {
		v, _, _, err := t.claimValue(ev)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v.Mul(fraction))
	}

	t.record(PathNode{Kind: NodeExchange, ID: x.ID.String(), Stage: x.ExchangeTypeID, Depth: depth, Value: total})
	return total, nil
}

func (t *traversal) paymentValue(p *graph.Event, depth int) (decimal.Decimal, error) {
	cash, err := t.fundingResource(p)
	if err != nil {
		return decimal.Zero, err
	}
	if cash != nil {
		vpu, err := t.rollUpResource(cash, "", depth+1)
		if err != nil {
			return decimal.Zero, err
		}
		return p.Quantity.Mul(vpu), nil
	}
	v, _, _, err := t.claimValue(p)
	return v, err
}

// exchangeShares attributes portion of the trigger receipt's funding to the
// contributing events behind it.
func (t *traversal) exchangeShares(x *graph.Exchange, trigger *graph.Event, portion decimal.Decimal, depth int, acc *shareSet) error {
	if err := t.deeper(NodeExchange, x.ID.String(), depth); err != nil {
		return err
	}

	events, err := t.graph.ExchangeEvents(t.ctx, x.ID)
	if err != nil {
		return err
	}
	fraction := triggerFraction(trigger, events).Mul(portion)

	for _, p := range payments(trigger, events) {
		cash, err := t.fundingResource(p)
		if err != nil {
			return err
		}
		if cash != nil {
			if err := t.computeShares(cash, "", p.Quantity.Mul(fraction), depth+1, acc); err != nil {
				return err
			}
			continue
		}
		if err := t.shareEvent(p, fraction, acc); err != nil {
			return err
		}
	}

	for _, ev := range graph.OfType(events, graph.EventExpense) {
		if !ev.IsContribution {
			continue
		}
		cand, err := t.candidate(ev)
		if err != nil {
			return err
		}
		acc.add(cand, nil, ev.MonetaryValue().Mul(fraction))
	}

	for _, ev := range graph.OfType(events, graph.EventWork) {
		if err := t.shareEvent(ev, fraction, acc); err != nil {
			return err
		}
	}
	return nil
}

// shareEvent credits fraction of a contributing event's claim value.
func (t *traversal) shareEvent(ev *graph.Event, fraction decimal.Decimal, acc *shareSet) error {
	if !ev.IsContribution {
		return nil
	}
	v, rule, cand, err := t.claimValue(ev)
	if err != nil {
		return err
	}
	acc.add(cand, rule, v.Mul(fraction))
	return nil
}
