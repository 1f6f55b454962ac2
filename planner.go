package valueflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/lock"
	"github.com/xraph/valueflow/store"
	"github.com/xraph/valueflow/types"
	"github.com/xraph/valueflow/valueequation"
)

// RunInput describes one distribution of income through a value equation.
type RunInput struct {
	// ValueEquationID names a stored value equation. ValueEquation, when
	// set, is used instead.
	ValueEquationID id.ValueEquationID
	ValueEquation   *valueequation.ValueEquation

	Amount   decimal.Decimal
	Currency string
	Date     time.Time

	// Filters holds each bucket's gatherer input, keyed by bucket ID.
	Filters map[string]valueequation.Filter

	// IncomeEventIDs are the to-distribute events the amount comes from.
	IncomeEventIDs []id.EventID

	// FundingResourceID is debited by a disbursement for the distributed
	// amount. RequireDisbursement makes it mandatory.
	FundingResourceID   id.ResourceID
	RequireDisbursement bool
}

// Contribution is one claim's part of a run. Fixed-agent buckets produce
// contributions without a claim.
type Contribution struct {
	Claim    *claim.Claim    `json:"claim,omitempty"`
	Share    *Share          `json:"share,omitempty"`
	BucketID id.BucketID     `json:"bucket_id"`
	Agent    id.AgentID      `json:"agent"`
	Amount   decimal.Decimal `json:"amount"`
	Line     *claim.Event    `json:"line,omitempty"`
}

// RunResult is the outcome of a distribution run.
type RunResult struct {
	Distribution  *distribution.Distribution `json:"distribution"`
	Contributions []*Contribution            `json:"contributions"`
	Undistributed decimal.Decimal            `json:"undistributed"`
	// Adjustment is the rounding delta applied to the largest recipient.
	Adjustment decimal.Decimal `json:"adjustment"`
}

// Distributed returns the total paid out, in the run's currency.
func (r *RunResult) Distributed() types.Money {
	return types.New(r.Distribution.Distributed, r.Distribution.Currency)
}

// RunValueEquation distributes an amount through a value equation and
// persists the distribution and every claim it raised or discharged. Runs
// for the same context agent are serialized.
func (e *Engine) RunValueEquation(ctx context.Context, in RunInput) (_ *RunResult, err error) {
	ctx, span := e.tracer.Start(ctx, "valueflow.distribute")
	span.SetAttributes(attribute.String("amount", in.Amount.String()))
	defer func() { endSpan(span, err) }()

	ve, err := e.resolveEquation(ctx, in)
	if err != nil {
		return nil, err
	}

	release, err := e.locker.Lock(ctx, lock.Key(ve.ContextAgent.String()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			e.logger.Warn("distribution lock release failed",
				"context_agent", ve.ContextAgent.String(),
				"error", rerr,
			)
		}
	}()

	p, err := e.plan(ctx, ve, in)
	if err != nil {
		return nil, err
	}
	if err := p.save(); err != nil {
		return nil, err
	}
	return p.result(), nil
}

// PreviewValueEquation computes what RunValueEquation would distribute
// without persisting anything. Claims are read but not changed.
func (e *Engine) PreviewValueEquation(ctx context.Context, in RunInput) (_ *RunResult, err error) {
	ctx, span := e.tracer.Start(ctx, "valueflow.distribute")
	span.SetAttributes(
		attribute.String("amount", in.Amount.String()),
		attribute.Bool("preview", true),
	)
	defer func() { endSpan(span, err) }()

	ve, err := e.resolveEquation(ctx, in)
	if err != nil {
		return nil, err
	}
	p, err := e.plan(ctx, ve, in)
	if err != nil {
		return nil, err
	}
	return p.result(), nil
}

func (e *Engine) resolveEquation(ctx context.Context, in RunInput) (*valueequation.ValueEquation, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount %s", ErrNothingToDistribute, in.Amount)
	}

	ve := in.ValueEquation
	if ve == nil {
		if in.ValueEquationID.IsNil() {
			return nil, ValidationError{Field: "value_equation_id", Message: "required"}
		}
		stored, err := e.store.GetValueEquation(ctx, in.ValueEquationID)
		if err != nil {
			return nil, err
		}
		ve = stored
	} else {
		assignIDs(ve)
	}

	if err := validateEquation(ve); err != nil {
		return nil, err
	}
	return ve, nil
}

// plan is the working state of one distribution run.
type plan struct {
	ctx    context.Context
	engine *Engine
	ve     *valueequation.ValueEquation
	in     RunInput
	date   time.Time

	dist          *distribution.Distribution
	undistributed decimal.Decimal
	adjustment    decimal.Decimal
	adjusted      id.AgentID

	agents        map[string]*distribution.Event
	claims        map[string]*claim.Claim
	claimsByID    map[string]*claim.Claim
	created       map[string]bool
	raised        []*claim.Event
	lines         []*claim.Event
	contributions []*Contribution
}

func (e *Engine) plan(ctx context.Context, ve *valueequation.ValueEquation, in RunInput) (*plan, error) {
	date := in.Date
	if date.IsZero() {
		date = e.now()
	}

	if err := e.checkIncome(ctx, in.IncomeEventIDs); err != nil {
		return nil, err
	}

	snapshot, err := distribution.NewSnapshot(ve, in.Filters)
	if err != nil {
		return nil, fmt.Errorf("snapshot value equation: %w", err)
	}

	p := &plan{
		ctx:    ctx,
		engine: e,
		ve:     ve,
		in:     in,
		date:   date,
		dist: &distribution.Distribution{
			Entity:          types.NewEntity(),
			ID:              id.NewDistributionID(),
			ValueEquationID: ve.ID,
			ContextAgent:    ve.ContextAgent,
			Date:            date,
			Currency:        in.Currency,
			Amount:          in.Amount,
			IncomeEventIDs:  in.IncomeEventIDs,
			Snapshot:        snapshot,
		},
		undistributed: in.Amount,
		agents:        make(map[string]*distribution.Event),
		claims:        make(map[string]*claim.Claim),
		claimsByID:    make(map[string]*claim.Claim),
		created:       make(map[string]bool),
	}

	if err := p.disbursement(); err != nil {
		return nil, err
	}

	for _, b := range ve.SortedBuckets() {
		if err := p.runBucket(b); err != nil {
			return nil, err
		}
	}

	p.reconcile()

	if p.dist.Disbursement != nil {
		p.dist.Disbursement.Quantity = p.dist.Distributed
	}
	return p, nil
}

// checkIncome rejects income events that are not waiting to be distributed.
func (e *Engine) checkIncome(ctx context.Context, eventIDs []id.EventID) error {
	for _, eid := range eventIDs {
		ev, err := e.store.GetEvent(ctx, eid)
		if err != nil {
			return fmt.Errorf("income event %s: %w", eid, err)
		}
		if !ev.IsToDistribute {
			return ValidationError{Field: "income_event_ids", Message: fmt.Sprintf("event %s is not income to distribute", eid)}
		}
	}
	return nil
}

func (p *plan) disbursement() error {
	if p.in.FundingResourceID.IsNil() {
		if p.in.RequireDisbursement {
			return ValidationError{Field: "funding_resource_id", Message: "a disbursement needs a funding resource"}
		}
		return nil
	}

	res, err := p.engine.store.GetResource(p.ctx, p.in.FundingResourceID)
	if err != nil {
		if IsNotFound(err) {
			return ValidationError{Field: "funding_resource_id", Message: fmt.Sprintf("resource %s not found", p.in.FundingResourceID)}
		}
		return err
	}

	p.dist.Disbursement = &distribution.Disbursement{
		Entity:         types.NewEntity(),
		ID:             id.NewDisbursementID(),
		DistributionID: p.dist.ID,
		ResourceID:     res.ID,
		FromAgent:      p.ve.ContextAgent,
		Date:           p.date,
	}
	return nil
}

// runBucket allocates one bucket's slice.
func (p *plan) runBucket(b *valueequation.Bucket) error {
	base := p.in.Amount
	if p.ve.PercentageBehavior == valueequation.Remaining {
		base = p.undistributed
	}
	slice := types.MinDecimal(types.RoundCents(types.Percent(b.Percentage).Mul(base)), p.undistributed)
	if !slice.IsPositive() {
		return nil
	}

	if b.HasFixedAgent() {
		ev := p.credit(b.DistributionAgent, slice)
		p.contributions = append(p.contributions, &Contribution{
			BucketID: b.ID,
			Agent:    b.DistributionAgent,
			Amount:   slice,
		})
		p.undistributed = p.undistributed.Sub(slice)
		p.engine.logger.Debug("bucket paid to fixed agent",
			"bucket", b.ID.String(),
			"agent", ev.ToAgent.String(),
			"amount", slice.String(),
		)
		return nil
	}

	g, ok := p.engine.gatherers[b.FilterMethod]
	if !ok {
		return fmt.Errorf("%w: %q for bucket %s", ErrNoGatherer, b.FilterMethod, b.ID)
	}
	scope := p.engine.newScope(p.ve, b, p.in.Filters[b.ID.String()])
	if err := g.Gather(p.ctx, scope); err != nil {
		return fmt.Errorf("gather bucket %s: %w", b.ID, err)
	}

	type weighted struct {
		claim  *claim.Claim
		share  *Share
		weight decimal.Decimal
	}
	var (
		entries []weighted
		matched int
		total   = decimal.Zero
	)
	rules := b.RulePointers()
	for _, sh := range scope.Shares() {
		if !sh.Event.IsContribution {
			continue
		}
		rule := valueequation.BestRule(rules, sh.Candidate())
		if rule == nil {
			continue
		}
		matched++

		c, err := p.claimFor(sh, rule)
		if err != nil {
			return err
		}
		if c.HasAgent.IsNil() {
			continue
		}
		w := sh.Amount
		if !w.IsPositive() {
			w = c.Value
		}
		w = c.Payable(w)
		if !w.IsPositive() {
			continue
		}
		entries = append(entries, weighted{claim: c, share: sh, weight: w})
		total = total.Add(w)
	}

	if matched == 0 {
		return ValidationError{
			Field:   fmt.Sprintf("buckets[%s].rules", b.ID),
			Message: "no contribution matched any rule of the bucket",
		}
	}
	if !total.IsPositive() {
		p.engine.logger.Info("bucket has no outstanding claims",
			"bucket", b.ID.String(),
			"slice", slice.String(),
		)
		return nil
	}

	portion := slice.Div(total)
	used := slice
	if p.ve.PercentageBehavior == valueequation.Remaining && portion.GreaterThan(decimal.NewFromInt(1)) {
		portion = decimal.NewFromInt(1)
		used = total
	}

	// Amounts round down, so reconciliation only ever adds to a recipient.
	for _, en := range entries {
		amount := types.FloorCents(en.weight.Mul(portion))
		if !amount.IsPositive() {
			continue
		}
		line := en.claim.Discharge(amount, p.date)
		ev := p.credit(en.claim.HasAgent, amount)
		line.DistributionEventID = ev.ID
		ev.ClaimEventIDs = append(ev.ClaimEventIDs, line.ID)
		p.lines = append(p.lines, line)
		p.contributions = append(p.contributions, &Contribution{
			Claim:    en.claim,
			Share:    en.share,
			BucketID: b.ID,
			Agent:    en.claim.HasAgent,
			Amount:   amount,
			Line:     line,
		})
	}

	p.undistributed = p.undistributed.Sub(used)
	return nil
}

// claimFor returns the claim the contribution holds under rule, raising it
// on first use.
func (p *plan) claimFor(sh *Share, rule *valueequation.BucketRule) (*claim.Claim, error) {
	key := sh.Event.ID.String() + "|" + rule.ID.String()
	if c, ok := p.claims[key]; ok {
		return c, nil
	}

	c, err := p.engine.store.FindClaim(p.ctx, sh.Event.ID, rule.ID)
	switch {
	case err == nil:
	case errors.Is(err, ErrClaimNotFound):
		value, verr := rule.ComputeClaimValue(sh.Candidate())
		if verr != nil {
			return nil, fmt.Errorf("claim value of event %s: %w", sh.Event.ID, verr)
		}
		var raised *claim.Event
		c, raised = claim.New(value, rule.ClaimRuleType, sh.Event.ID, p.date)
		c.ValueEquationID = p.ve.ID
		c.BucketRuleID = rule.ID
		c.HasAgent = sh.Event.FromAgent
		c.ContextAgent = p.ve.ContextAgent
		c.AgainstAgent = p.againstAgent(sh.Event)
		p.created[c.ID.String()] = true
		p.raised = append(p.raised, raised)
	default:
		return nil, err
	}

	p.claims[key] = c
	p.claimsByID[c.ID.String()] = c
	return c, nil
}

// againstAgent is who owes the claim. Contributions made under another
// context are owed by the value equation's context agent as intermediary.
func (p *plan) againstAgent(ev *graph.Event) id.AgentID {
	if ev.ToAgent.IsNil() || !graph.SameID(ev.ContextAgent, p.ve.ContextAgent) {
		return p.ve.ContextAgent
	}
	return ev.ToAgent
}

// credit adds amount to the agent's distribution event.
func (p *plan) credit(agent id.AgentID, amount decimal.Decimal) *distribution.Event {
	key := agent.String()
	ev, ok := p.agents[key]
	if !ok {
		ev = &distribution.Event{
			Entity:         types.NewEntity(),
			ID:             id.NewDistributionEventID(),
			DistributionID: p.dist.ID,
			FromAgent:      p.ve.ContextAgent,
			ToAgent:        agent,
			Date:           p.date,
		}
		p.agents[key] = ev
		p.dist.Events = append(p.dist.Events, ev)
	}
	ev.Quantity = ev.Quantity.Add(amount)
	return ev
}

// save persists the run.
func (p *plan) save() error {
	ctx := p.ctx

	run := &store.Run{
		ClaimEvents:  append(append([]*claim.Event{}, p.raised...), p.lines...),
		Distribution: p.dist,
	}
	for _, c := range p.orderedClaims() {
		if p.created[c.ID.String()] {
			run.NewClaims = append(run.NewClaims, c)
			continue
		}
		run.Claims = append(run.Claims, c)
	}
	if err := p.engine.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save distribution run: %w", err)
	}

	for _, c := range run.NewClaims {
		p.engine.plugins.EmitClaimCreated(ctx, c)
	}
	for _, line := range p.lines {
		p.engine.plugins.EmitClaimDischarged(ctx, p.claimsByID[line.ClaimID.String()], line)
	}
	if !p.adjustment.IsZero() {
		p.engine.plugins.EmitRoundingAdjusted(ctx, p.dist.ID, p.adjusted, p.adjustment)
	}
	p.engine.plugins.EmitDistributionCreated(ctx, p.dist)

	p.engine.logger.Info("distribution created",
		"distribution", p.dist.ID.String(),
		"value_equation", p.ve.ID.String(),
		"amount", p.dist.Amount.String(),
		"distributed", p.dist.Distributed.String(),
		"undistributed", p.dist.Undistributed.String(),
		"recipients", len(p.dist.Events),
	)
	return nil
}

// orderedClaims returns the claims the run raised or touched in first-use order.
func (p *plan) orderedClaims() []*claim.Claim {
	seen := make(map[string]bool)
	var out []*claim.Claim
	for _, c := range p.contributions {
		if c.Claim == nil || seen[c.Claim.ID.String()] {
			continue
		}
		seen[c.Claim.ID.String()] = true
		out = append(out, c.Claim)
	}
	for _, line := range p.raised {
		if !seen[line.ClaimID.String()] {
			seen[line.ClaimID.String()] = true
			out = append(out, p.claimsByID[line.ClaimID.String()])
		}
	}
	return out
}

func (p *plan) result() *RunResult {
	return &RunResult{
		Distribution:  p.dist,
		Contributions: p.contributions,
		Undistributed: p.dist.Undistributed,
		Adjustment:    p.adjustment,
	}
}
