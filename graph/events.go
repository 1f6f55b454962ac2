package graph

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/id"
)

// SameID reports whether two IDs are equal. Two nil IDs are equal.
func SameID(a, b id.ID) bool {
	return a.String() == b.String()
}

// Contributions returns the direct contribution events on a resource.
func Contributions(events []*Event) []*Event {
	var out []*Event
	for _, e := range events {
		if e.IsDirectContribution() {
			out = append(out, e)
		}
	}
	return out
}

// Purchases returns the exchange receipts among events.
func Purchases(events []*Event) []*Event {
	var out []*Event
	for _, e := range events {
		if e.IsPurchase() {
			out = append(out, e)
		}
	}
	return out
}

// Productions returns the produce events among events, one per process,
// in first-seen order.
func Productions(events []*Event) []*Event {
	seen := make(map[string]struct{})
	var out []*Event
	for _, e := range events {
		if e.Type != EventProduce || e.ProcessID.IsNil() {
			continue
		}
		if _, ok := seen[e.ProcessID.String()]; ok {
			continue
		}
		seen[e.ProcessID.String()] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Inputs returns the work, use, consume and cite events among events.
func Inputs(events []*Event) []*Event {
	var out []*Event
	for _, e := range events {
		if e.Type.IsInput() {
			out = append(out, e)
		}
	}
	return out
}

// OfType returns the events of type t.
func OfType(events []*Event, t EventType) []*Event {
	var out []*Event
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// ProducedQuantity sums the quantity of every produce event.
func ProducedQuantity(events []*Event) decimal.Decimal {
	total := decimal.Zero
	for _, e := range events {
		if e.Type == EventProduce {
			total = total.Add(e.Quantity)
		}
	}
	return total
}

// ProducedQuantityOf sums the produce events for one resource.
func ProducedQuantityOf(events []*Event, resourceID id.ResourceID) decimal.Decimal {
	total := decimal.Zero
	for _, e := range events {
		if e.Type == EventProduce && SameID(e.ResourceID, resourceID) {
			total = total.Add(e.Quantity)
		}
	}
	return total
}

// TotalQuantity sums the quantity of events.
func TotalQuantity(events []*Event) decimal.Decimal {
	total := decimal.Zero
	for _, e := range events {
		total = total.Add(e.Quantity)
	}
	return total
}

// TotalValue sums the monetary value of events.
func TotalValue(events []*Event) decimal.Decimal {
	total := decimal.Zero
	for _, e := range events {
		total = total.Add(e.MonetaryValue())
	}
	return total
}
