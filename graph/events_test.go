package graph

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/id"
)

func TestEventClassification(t *testing.T) {
	res := id.NewResourceID()
	proc := id.NewProcessID()
	xchg := id.NewExchangeID()

	contribution := &Event{Type: EventContribute, ResourceID: res, IsContribution: true}
	work := &Event{Type: EventWork, ProcessID: proc, IsContribution: true}
	purchase := &Event{Type: EventReceive, ResourceID: res, ExchangeID: xchg}
	income := &Event{Type: EventReceive, IsToDistribute: true}
	produce := &Event{Type: EventProduce, ProcessID: proc, ResourceID: res, Quantity: decimal.NewFromInt(2)}
	produceAgain := &Event{Type: EventProduce, ProcessID: proc, ResourceID: res, Quantity: decimal.NewFromInt(3)}
	cite := &Event{Type: EventCite, ProcessID: proc, Unit: UnitPercent}

	events := []*Event{contribution, work, purchase, income, produce, produceAgain, cite}

	if got := Contributions(events); len(got) != 1 || got[0] != contribution {
		t.Errorf("Contributions: got %d events", len(got))
	}
	if got := Purchases(events); len(got) != 1 || got[0] != purchase {
		t.Errorf("Purchases: got %d events", len(got))
	}
	if got := Productions(events); len(got) != 1 || got[0] != produce {
		t.Errorf("Productions should dedupe by process, got %d", len(got))
	}
	if got := Inputs(events); len(got) != 2 {
		t.Errorf("Inputs: got %d, want 2", len(got))
	}
	if got := ProducedQuantity(events); !got.Equal(decimal.NewFromInt(5)) {
		t.Errorf("ProducedQuantity: got %s", got)
	}
	if got := ProducedQuantityOf(events, id.NewResourceID()); !got.IsZero() {
		t.Errorf("ProducedQuantityOf other resource: got %s", got)
	}
	if !cite.IsPercentCitation() {
		t.Error("cite should be a percent citation")
	}
}

func TestMonetaryValue(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"recorded value", Event{Value: decimal.NewFromInt(7), Quantity: decimal.NewFromInt(2), UnitValue: decimal.NewFromInt(10)}, "7"},
		{"rate fallback", Event{Quantity: decimal.NewFromInt(2), UnitValue: decimal.NewFromInt(10)}, "20"},
		{"nothing", Event{}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.MonetaryValue(); !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	if got := (&Event{Price: decimal.NewFromInt(9)}).PricePerUnit(); !got.IsZero() {
		t.Errorf("PricePerUnit with zero quantity: got %s", got)
	}
}

func TestEventQueryMatches(t *testing.T) {
	ctxAgent := id.NewAgentID()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	e := &Event{Type: EventWork, ContextAgent: ctxAgent, Date: day, IsContribution: true}

	tests := []struct {
		name string
		q    EventQuery
		want bool
	}{
		{"empty", EventQuery{}, true},
		{"context", EventQuery{ContextAgent: ctxAgent}, true},
		{"other context", EventQuery{ContextAgent: id.NewAgentID()}, false},
		{"type", EventQuery{Types: []EventType{EventUse, EventWork}}, true},
		{"wrong type", EventQuery{Types: []EventType{EventUse}}, false},
		{"in range", EventQuery{Start: day.Add(-time.Hour), End: day.Add(time.Hour)}, true},
		{"before start", EventQuery{Start: day.Add(time.Hour)}, false},
		{"after end", EventQuery{End: day.Add(-time.Hour)}, false},
		{"contributions", EventQuery{ContributionsOnly: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Matches(e); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
