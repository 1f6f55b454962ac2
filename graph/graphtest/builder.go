// Package graphtest builds economic graphs for tests and scenario files.
package graphtest

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/types"
)

// D parses a decimal literal and panics on malformed input.
func D(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Builder writes graph nodes and remembers the first error. Events get
// strictly increasing dates so their order is stable across stores.
type Builder struct {
	ctx     context.Context
	w       graph.Writer
	err     error
	clock   time.Time
	agents  map[string]id.AgentID
	Context id.AgentID
}

// New returns a Builder writing to w under a fresh context agent.
func New(ctx context.Context, w graph.Writer) *Builder {
	return &Builder{
		ctx:     ctx,
		w:       w,
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		agents:  make(map[string]id.AgentID),
		Context: id.NewAgentID(),
	}
}

// Err returns the first write error.
func (b *Builder) Err() error { return b.err }

// Agent returns the ID for a named agent, creating it on first use.
func (b *Builder) Agent(name string) id.AgentID {
	if a, ok := b.agents[name]; ok {
		return a
	}
	a := id.NewAgentID()
	b.agents[name] = a
	return a
}

// Agents returns the named agents created so far.
func (b *Builder) Agents() map[string]id.AgentID { return b.agents }

func (b *Builder) tick() time.Time {
	b.clock = b.clock.Add(time.Minute)
	return b.clock
}

// Resource records r, assigning an ID when it has none.
func (b *Builder) Resource(r graph.Resource) *graph.Resource {
	if r.ID.IsNil() {
		r.ID = id.NewResourceID()
	}
	if r.ContextAgent.IsNil() {
		r.ContextAgent = b.Context
	}
	r.Entity = types.NewEntity()
	b.record(b.w.CreateResource(b.ctx, &r))
	return &r
}

// Process records p, assigning an ID when it has none.
func (b *Builder) Process(p graph.Process) *graph.Process {
	if p.ID.IsNil() {
		p.ID = id.NewProcessID()
	}
	if p.ContextAgent.IsNil() {
		p.ContextAgent = b.Context
	}
	p.Entity = types.NewEntity()
	b.record(b.w.CreateProcess(b.ctx, &p))
	return &p
}

// Exchange records x, assigning an ID when it has none.
func (b *Builder) Exchange(x graph.Exchange) *graph.Exchange {
	if x.ID.IsNil() {
		x.ID = id.NewExchangeID()
	}
	if x.ContextAgent.IsNil() {
		x.ContextAgent = b.Context
	}
	if x.Date.IsZero() {
		x.Date = b.tick()
	}
	x.Entity = types.NewEntity()
	b.record(b.w.CreateExchange(b.ctx, &x))
	return &x
}

// Event records e, assigning an ID, date and context agent when missing.
func (b *Builder) Event(e graph.Event) *graph.Event {
	if e.ID.IsNil() {
		e.ID = id.NewEventID()
	}
	if e.ContextAgent.IsNil() {
		e.ContextAgent = b.Context
	}
	if e.Date.IsZero() {
		e.Date = b.tick()
	}
	e.Entity = types.NewEntity()
	b.record(b.w.CreateEvent(b.ctx, &e))
	return &e
}

func (b *Builder) record(err error) {
	if err != nil && b.err == nil {
		b.err = err
	}
}

// Work records hours of contributed work on p at rate per hour.
func (b *Builder) Work(p *graph.Process, agent id.AgentID, hours, rate string) *graph.Event {
	return b.Event(graph.Event{
		Type: graph.EventWork, ProcessID: p.ID, FromAgent: agent, ToAgent: b.Context,
		Quantity: D(hours), UnitValue: D(rate), ResourceTypeID: "labor", IsContribution: true,
	})
}

// Produce records qty of r produced by p.
func (b *Builder) Produce(p *graph.Process, r *graph.Resource, qty string) *graph.Event {
	return b.Event(graph.Event{
		Type: graph.EventProduce, ProcessID: p.ID, ResourceID: r.ID,
		ResourceTypeID: r.ResourceTypeID, Quantity: D(qty),
	})
}

// Consume records qty of r consumed by p. A non-empty stage scopes the
// consumed resource to the recipe step that produced it.
func (b *Builder) Consume(p *graph.Process, r *graph.Resource, qty, stage string) *graph.Event {
	return b.Event(graph.Event{
		Type: graph.EventConsume, ProcessID: p.ID, ResourceID: r.ID,
		ResourceTypeID: r.ResourceTypeID, Quantity: D(qty), StageID: stage,
	})
}

// Use records qty units of use of r by p; price may be empty.
func (b *Builder) Use(p *graph.Process, r *graph.Resource, qty, price string) *graph.Event {
	e := graph.Event{
		Type: graph.EventUse, ProcessID: p.ID, ResourceID: r.ID,
		ResourceTypeID: r.ResourceTypeID, Quantity: D(qty),
	}
	if price != "" {
		e.Price = D(price)
	}
	return b.Event(e)
}

// Cite records a citation of r by p in the given unit.
func (b *Builder) Cite(p *graph.Process, r *graph.Resource, qty, unit string) *graph.Event {
	return b.Event(graph.Event{
		Type: graph.EventCite, ProcessID: p.ID, ResourceID: r.ID,
		ResourceTypeID: r.ResourceTypeID, Quantity: D(qty), Unit: unit,
	})
}

// Contribute records agent contributing qty of r worth value.
func (b *Builder) Contribute(r *graph.Resource, agent id.AgentID, qty, value string) *graph.Event {
	return b.Event(graph.Event{
		Type: graph.EventContribute, ResourceID: r.ID, ResourceTypeID: r.ResourceTypeID,
		FromAgent: agent, ToAgent: b.Context, Quantity: D(qty), Value: D(value), IsContribution: true,
	})
}

// Receive records qty of r received from agent through x, worth value.
func (b *Builder) Receive(x *graph.Exchange, r *graph.Resource, from id.AgentID, qty, value string) *graph.Event {
	return b.Event(graph.Event{
		Type: graph.EventReceive, ExchangeID: x.ID, ResourceID: r.ID, ResourceTypeID: r.ResourceTypeID,
		FromAgent: from, ToAgent: b.Context, Quantity: D(qty), Value: D(value),
	})
}

// Pay records payer paying value to payee through x. cash may be nil.
func (b *Builder) Pay(x *graph.Exchange, cash *graph.Resource, payer, payee id.AgentID, qty, value string) *graph.Event {
	e := graph.Event{
		Type: graph.EventPay, ExchangeID: x.ID, FromAgent: payer, ToAgent: payee,
		Quantity: D(qty), Value: D(value), IsContribution: true,
	}
	if cash != nil {
		e.ResourceID = cash.ID
		e.ResourceTypeID = cash.ResourceTypeID
	}
	return b.Event(e)
}

// Expense records an expense of value paid by agent within x.
func (b *Builder) Expense(x *graph.Exchange, agent id.AgentID, value string) *graph.Event {
	return b.Event(graph.Event{
		Type: graph.EventExpense, ExchangeID: x.ID, FromAgent: agent, ToAgent: b.Context,
		Quantity: D("1"), Value: D(value), IsContribution: true,
	})
}

// Give records qty of r shipped to agent through x.
func (b *Builder) Give(x *graph.Exchange, r *graph.Resource, to id.AgentID, qty string) *graph.Event {
	return b.Event(graph.Event{
		Type: graph.EventGive, ExchangeID: x.ID, ResourceID: r.ID, ResourceTypeID: r.ResourceTypeID,
		FromAgent: b.Context, ToAgent: to, Quantity: D(qty),
	})
}

// Income records cash received that is waiting to be distributed.
func (b *Builder) Income(from id.AgentID, value string) *graph.Event {
	return b.Event(graph.Event{
		Type: graph.EventReceive, FromAgent: from, ToAgent: b.Context,
		Quantity: D(value), Value: D(value), IsToDistribute: true,
	})
}
