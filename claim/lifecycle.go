package claim

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/types"
)

// New raises a claim worth value and returns it with its "+" ledger line.
func New(value decimal.Decimal, rule RuleType, contribution id.EventID, date time.Time) (*Claim, *Event) {
	c := &Claim{
		Entity:        types.NewEntity(),
		ID:            id.NewClaimID(),
		EventID:       contribution,
		RuleType:      rule,
		Value:         value,
		OriginalValue: value,
		ClaimDate:     date,
	}
	return c, &Event{
		Entity:    types.NewEntity(),
		ID:        id.NewClaimEventID(),
		ClaimID:   c.ID,
		EventID:   contribution,
		Direction: Raised,
		Value:     value,
		Date:      date,
	}
}

// Outstanding reports whether a distribution can still pay against the claim.
func (c *Claim) Outstanding() bool {
	return c.Value.IsPositive()
}

// Payable caps weight at what the claim still allows a distribution to pay.
func (c *Claim) Payable(weight decimal.Decimal) decimal.Decimal {
	if c.RuleType.Capped() {
		return types.MinDecimal(weight, c.Value)
	}
	return weight
}

// Discharge records amount distributed against the claim and applies its
// lifecycle policy. The returned line carries the distributed amount.
func (c *Claim) Discharge(amount decimal.Decimal, date time.Time) *Event {
	switch c.RuleType {
	case DebtLike:
		c.Value = decimal.Max(c.Value.Sub(amount), decimal.Zero)
	case Once:
		c.Value = decimal.Zero
	case EquityLike:
	}
	c.Touch()
	return &Event{
		Entity:    types.NewEntity(),
		ID:        id.NewClaimEventID(),
		ClaimID:   c.ID,
		Direction: Discharged,
		Value:     amount,
		Date:      date,
	}
}

// Adjust moves a debt-like claim's outstanding value by delta, bounded by
// zero and the original value. Other policies are left untouched.
func (c *Claim) Adjust(delta decimal.Decimal) {
	if c.RuleType != DebtLike {
		return
	}
	c.Value = types.Clamp(c.Value.Add(delta), decimal.Zero, c.OriginalValue)
	c.Touch()
}

// Reconciles reports whether the claim's state agrees with its ledger lines:
// raised lines sum to the original value and the remaining value follows
// from the discharged lines under the claim's policy.
func (c *Claim) Reconciles(events []*Event) bool {
	raised, discharged := decimal.Zero, decimal.Zero
	touched := false
	for _, e := range events {
		if !sameID(e.ClaimID, c.ID) {
			continue
		}
		switch e.Direction {
		case Raised:
			raised = raised.Add(e.Value)
		case Discharged:
			discharged = discharged.Add(e.Value)
			touched = true
		}
	}
	if !raised.Equal(c.OriginalValue) {
		return false
	}

	switch c.RuleType {
	case DebtLike:
		want := decimal.Max(c.OriginalValue.Sub(discharged), decimal.Zero)
		return c.Value.Equal(want)
	case Once:
		if touched {
			return c.Value.IsZero()
		}
		return c.Value.Equal(c.OriginalValue)
	case EquityLike:
		return c.Value.Equal(c.OriginalValue)
	}
	return false
}

func sameID(a, b id.ID) bool { return a.String() == b.String() }
