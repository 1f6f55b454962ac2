package valueflow

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/types"
)

// reconcile makes the distribution events sum exactly to the allocated
// amount. The rounding delta goes to the largest recipient, first on ties,
// and to the largest claim line that funded it. What no bucket allocated
// is reported as undistributed.
func (p *plan) reconcile() {
	target := types.RoundCents(p.in.Amount.Sub(p.undistributed))
	sum := p.dist.Total()
	delta := target.Sub(sum)

	if !delta.IsZero() {
		if ev := largestRecipient(p.dist.Events); ev != nil {
			ev.Quantity = ev.Quantity.Add(delta)
			p.adjustment = delta
			p.adjusted = ev.ToAgent
			p.adjustLine(ev, delta)

			p.engine.logger.Debug("rounding adjusted",
				"distribution", p.dist.ID.String(),
				"agent", ev.ToAgent.String(),
				"delta", delta.String(),
			)
		}
	}

	p.dist.Distributed = p.dist.Total()
	p.dist.Undistributed = p.in.Amount.Sub(p.dist.Distributed)
}

// adjustLine moves the largest claim line of ev by delta. A debt-like claim
// owes correspondingly less, or more.
func (p *plan) adjustLine(ev *distribution.Event, delta decimal.Decimal) {
	var largest *claim.Event
	for _, line := range p.lines {
		if !line.DistributionEventID.IsNil() && line.DistributionEventID.String() == ev.ID.String() {
			if largest == nil || line.Value.GreaterThan(largest.Value) {
				largest = line
			}
		}
	}
	if largest == nil {
		return
	}

	largest.Value = largest.Value.Add(delta)
	if c := p.claimsByID[largest.ClaimID.String()]; c != nil {
		c.Adjust(delta.Neg())
	}
	for _, con := range p.contributions {
		if con.Line == largest {
			con.Amount = largest.Value
		}
	}
}

func largestRecipient(events []*distribution.Event) *distribution.Event {
	var largest *distribution.Event
	for _, ev := range events {
		if largest == nil || ev.Quantity.GreaterThan(largest.Quantity) {
			largest = ev
		}
	}
	return largest
}
