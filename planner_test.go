package valueflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/valueflow"
	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/store"
	"github.com/xraph/valueflow/store/memory"
	"github.com/xraph/valueflow/valueequation"
)

func TestDistributeEndToEnd(t *testing.T) {
	f := newFixture(t)
	a := f.assembly(t)

	rollup, err := f.engine.RollUpValue(f.ctx, a.widget.ID, nil)
	require.NoError(t, err)
	requireDecimal(t, "10", rollup.ValuePerUnit)

	ve := f.equation(t, valueequation.Straight, valueequation.FilterProcess, workRule(claim.DebtLike))
	res, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{
		ValueEquationID: ve.ID,
		Amount:          d("100"),
		Currency:        "usd",
		Filters:         filters(ve, valueequation.Filter{ProcessIDs: []id.ProcessID{a.process.ID}}),
	})
	require.NoError(t, err)

	got := amountsByAgent(res)
	require.Len(t, got, 2)
	requireDecimal(t, "60", got[a.alice.String()])
	requireDecimal(t, "40", got[a.bob.String()])
	requireDecimal(t, "100", res.Distribution.Distributed)
	assert.True(t, res.Undistributed.IsZero())
	assert.Equal(t, "usd", res.Distributed().Currency)

	stored, err := f.engine.GetDistribution(f.ctx, res.Distribution.ID)
	require.NoError(t, err)
	requireDecimal(t, "100", stored.Total())
	assert.Equal(t, ve.ID.String(), stored.Snapshot.ValueEquation.ID.String())

	claims, err := f.engine.ListClaims(f.ctx, claim.ListOpts{ContextAgent: f.b.Context})
	require.NoError(t, err)
	require.Len(t, claims, 2)
	for _, c := range claims {
		assert.True(t, c.Value.IsZero(), "debt-like claims are paid off")
		ok, err := f.engine.ReconcileClaim(f.ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestDistributeByOrder(t *testing.T) {
	f := newFixture(t)
	a := f.assembly(t)
	x := f.b.Exchange(graph.Exchange{Name: "order 17", ExchangeTypeID: "sale"})
	f.b.Give(x, a.widget, f.b.Agent("customer"), "5")
	require.NoError(t, f.b.Err())

	ve := f.equation(t, valueequation.Straight, valueequation.FilterOrder, workRule(claim.EquityLike))
	res, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{
		ValueEquationID: ve.ID,
		Amount:          d("50"),
		Filters:         filters(ve, valueequation.Filter{ExchangeIDs: []id.ExchangeID{x.ID}}),
	})
	require.NoError(t, err)

	got := amountsByAgent(res)
	requireDecimal(t, "30", got[a.alice.String()])
	requireDecimal(t, "20", got[a.bob.String()])
}

// contributors records n equal contributions valued at value each and
// returns the contributing agents.
func (f *fixture) contributors(t *testing.T, n int, value string) []id.AgentID {
	t.Helper()
	pool := f.b.Resource(graph.Resource{Name: "pool", ResourceTypeID: "cash"})
	agents := make([]id.AgentID, n)
	for i := range agents {
		agents[i] = id.NewAgentID()
		f.b.Contribute(pool, agents[i], value, value)
	}
	require.NoError(t, f.b.Err())
	return agents
}

func contributeRule(rt claim.RuleType) valueequation.BucketRule {
	return valueequation.BucketRule{EventType: graph.EventContribute, ClaimRuleType: rt}
}

func TestDistributeSumsExactly(t *testing.T) {
	f := newFixture(t)
	agents := f.contributors(t, 3, "10")
	ve := f.equation(t, valueequation.Straight, valueequation.FilterDates, contributeRule(claim.EquityLike))

	res, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{ValueEquationID: ve.ID, Amount: d("100")})
	require.NoError(t, err)

	got := amountsByAgent(res)
	requireDecimal(t, "33.34", got[agents[0].String()], "the first of the tied largest absorbs the remainder")
	requireDecimal(t, "33.33", got[agents[1].String()])
	requireDecimal(t, "33.33", got[agents[2].String()])
	requireDecimal(t, "100", res.Distribution.Total())
	requireDecimal(t, "0.01", res.Adjustment)
}

func TestRoundingAdjustsDebtLikeClaim(t *testing.T) {
	f := newFixture(t)
	agents := f.contributors(t, 3, "40")
	ve := f.equation(t, valueequation.Straight, valueequation.FilterDates, contributeRule(claim.DebtLike))

	res, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{ValueEquationID: ve.ID, Amount: d("100")})
	require.NoError(t, err)
	requireDecimal(t, "100", res.Distribution.Total())

	claims, err := f.engine.ListClaims(f.ctx, claim.ListOpts{HasAgent: agents[0]})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	requireDecimal(t, "6.66", claims[0].Value, "40 - 33.33 less the rounding cent")

	for _, c := range res.Contributions {
		ok, err := f.engine.ReconcileClaim(f.ctx, c.Claim.ID)
		require.NoError(t, err)
		assert.True(t, ok, "claim %s reconciles", c.Claim.ID)
	}
}

func TestPercentageBehavior(t *testing.T) {
	tests := []struct {
		behavior      valueequation.PercentageBehavior
		first, second string
		undistributed string
	}{
		{valueequation.Remaining, "30", "21", "49"},
		{valueequation.Straight, "30", "30", "40"},
	}
	for _, tt := range tests {
		t.Run(string(tt.behavior), func(t *testing.T) {
			f := newFixture(t)
			first, second := f.b.Agent("first"), f.b.Agent("second")
			ve := &valueequation.ValueEquation{
				Name:               "fixed",
				ContextAgent:       f.b.Context,
				PercentageBehavior: tt.behavior,
				Buckets: []valueequation.Bucket{
					{Name: "second", Sequence: 2, Percentage: d("30"), DistributionAgent: second},
					{Name: "first", Sequence: 1, Percentage: d("30"), DistributionAgent: first},
				},
			}

			res, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{ValueEquation: ve, Amount: d("100")})
			require.NoError(t, err)

			got := amountsByAgent(res)
			requireDecimal(t, tt.first, got[first.String()])
			requireDecimal(t, tt.second, got[second.String()])
			requireDecimal(t, tt.undistributed, res.Undistributed)
			requireDecimal(t, tt.undistributed, res.Distribution.Undistributed)
		})
	}
}

func TestClaimLifecycleAcrossRuns(t *testing.T) {
	run := func(t *testing.T, f *fixture, ve *valueequation.ValueEquation, amount string) *valueflow.RunResult {
		t.Helper()
		res, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{ValueEquationID: ve.ID, Amount: d(amount)})
		require.NoError(t, err)
		return res
	}
	claimOf := func(t *testing.T, f *fixture, agent id.AgentID) *claim.Claim {
		t.Helper()
		claims, err := f.engine.ListClaims(f.ctx, claim.ListOpts{HasAgent: agent})
		require.NoError(t, err)
		require.Len(t, claims, 1)
		return claims[0]
	}

	t.Run("debt-like is floored at zero", func(t *testing.T) {
		f := newFixture(t)
		agent := f.contributors(t, 1, "100")[0]
		ve := f.equation(t, valueequation.Remaining, valueequation.FilterDates, contributeRule(claim.DebtLike))

		run(t, f, ve, "40")
		requireDecimal(t, "60", claimOf(t, f, agent).Value)

		res := run(t, f, ve, "70")
		requireDecimal(t, "60", res.Distribution.Distributed, "remaining behavior pays no more than is owed")
		requireDecimal(t, "10", res.Undistributed)
		requireDecimal(t, "0", claimOf(t, f, agent).Value)

		res = run(t, f, ve, "25")
		assert.Empty(t, res.Distribution.Events)
		requireDecimal(t, "25", res.Undistributed)
	})

	t.Run("once is spent by its first payment", func(t *testing.T) {
		f := newFixture(t)
		agent := f.contributors(t, 1, "100")[0]
		ve := f.equation(t, valueequation.Straight, valueequation.FilterDates, contributeRule(claim.Once))

		run(t, f, ve, "10")
		requireDecimal(t, "0", claimOf(t, f, agent).Value)

		res := run(t, f, ve, "10")
		assert.Empty(t, res.Distribution.Events)
	})

	t.Run("equity-like is never decremented", func(t *testing.T) {
		f := newFixture(t)
		agent := f.contributors(t, 1, "100")[0]
		ve := f.equation(t, valueequation.Straight, valueequation.FilterDates, contributeRule(claim.EquityLike))

		for range 3 {
			res := run(t, f, ve, "10")
			requireDecimal(t, "10", amountsByAgent(res)[agent.String()])
		}
		c := claimOf(t, f, agent)
		requireDecimal(t, "100", c.Value)

		lines, err := f.engine.ListClaimEvents(f.ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, lines, 4, "one raise and three discharges")
	})
}

func TestPreviewDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	f.contributors(t, 2, "50")
	ve := f.equation(t, valueequation.Straight, valueequation.FilterDates, contributeRule(claim.DebtLike))

	res, err := f.engine.PreviewValueEquation(f.ctx, valueflow.RunInput{ValueEquationID: ve.ID, Amount: d("80")})
	require.NoError(t, err)
	requireDecimal(t, "80", res.Distribution.Total())

	dists, err := f.engine.ListDistributions(f.ctx, distribution.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, dists)

	claims, err := f.engine.ListClaims(f.ctx, claim.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestAgainstAgentForForeignContext(t *testing.T) {
	f := newFixture(t)
	b := f.b
	sub := b.Agent("subproject")
	p := b.Process(graph.Process{Name: "build", ProcessTypeID: "build"})
	workshop := b.Agent("workshop")
	local := b.Event(graph.Event{
		Type: graph.EventWork, ProcessID: p.ID, FromAgent: b.Agent("alice"), ToAgent: workshop,
		Quantity: d("1"), UnitValue: d("10"), IsContribution: true,
	})
	foreign := b.Event(graph.Event{
		Type: graph.EventWork, ProcessID: p.ID, FromAgent: b.Agent("bob"), ToAgent: sub,
		ContextAgent: sub, Quantity: d("1"), UnitValue: d("10"), IsContribution: true,
	})
	require.NoError(t, b.Err())

	ve := f.equation(t, valueequation.Straight, valueequation.FilterProcess, workRule(claim.EquityLike))
	res, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{
		ValueEquationID: ve.ID,
		Amount:          d("20"),
		Filters:         filters(ve, valueequation.Filter{ProcessIDs: []id.ProcessID{p.ID}}),
	})
	require.NoError(t, err)
	require.Len(t, res.Contributions, 2)

	against := make(map[string]string)
	for _, c := range res.Contributions {
		against[c.Claim.EventID.String()] = c.Claim.AgainstAgent.String()
	}
	assert.Equal(t, workshop.String(), against[local.ID.String()])
	assert.Equal(t, b.Context.String(), against[foreign.ID.String()], "foreign contributions are owed by the context agent")
}

func TestDisbursement(t *testing.T) {
	f := newFixture(t)
	f.contributors(t, 2, "50")
	cash := f.b.Resource(graph.Resource{Name: "bank", ResourceTypeID: "cash"})
	ve := f.equation(t, valueequation.Straight, valueequation.FilterDates, contributeRule(claim.DebtLike))

	res, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{
		ValueEquationID:     ve.ID,
		Amount:              d("60"),
		FundingResourceID:   cash.ID,
		RequireDisbursement: true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Distribution.Disbursement)
	assert.Equal(t, cash.ID.String(), res.Distribution.Disbursement.ResourceID.String())
	requireDecimal(t, "60", res.Distribution.Disbursement.Quantity)
}

func TestDistributionConfigErrors(t *testing.T) {
	f := newFixture(t)
	a := f.assembly(t)
	notIncome := a.aliceWork
	income := f.b.Income(f.b.Agent("customer"), "100")
	require.NoError(t, f.b.Err())

	ve := f.equation(t, valueequation.Straight, valueequation.FilterProcess, workRule(claim.DebtLike))
	processFilter := filters(ve, valueequation.Filter{ProcessIDs: []id.ProcessID{a.process.ID}})

	tests := []struct {
		name string
		in   valueflow.RunInput
	}{
		{"disbursement without funding", valueflow.RunInput{
			ValueEquationID: ve.ID, Amount: d("10"), Filters: processFilter, RequireDisbursement: true,
		}},
		{"unknown funding resource", valueflow.RunInput{
			ValueEquationID: ve.ID, Amount: d("10"), Filters: processFilter, FundingResourceID: id.NewResourceID(),
		}},
		{"income event not to distribute", valueflow.RunInput{
			ValueEquationID: ve.ID, Amount: d("10"), Filters: processFilter, IncomeEventIDs: []id.EventID{income.ID, notIncome.ID},
		}},
		{"bucket without matching contributions", valueflow.RunInput{
			ValueEquationID: ve.ID, Amount: d("10"),
		}},
		{"invalid inline equation", valueflow.RunInput{
			Amount: d("10"),
			ValueEquation: &valueequation.ValueEquation{
				ContextAgent: f.b.Context, PercentageBehavior: valueequation.Straight,
				Buckets: []valueequation.Bucket{{Percentage: d("150"), DistributionAgent: a.alice}},
			},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.RunValueEquation(f.ctx, tt.in)
			require.Error(t, err)
			assert.True(t, valueflow.IsConfigError(err), "got %v", err)
		})
	}

	t.Run("nothing to distribute", func(t *testing.T) {
		_, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{ValueEquationID: ve.ID, Amount: decimal.Zero})
		assert.True(t, errors.Is(err, valueflow.ErrNothingToDistribute))
	})

	t.Run("income is recorded and left untouched", func(t *testing.T) {
		res, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{
			ValueEquationID: ve.ID, Amount: d("100"), Filters: processFilter, IncomeEventIDs: []id.EventID{income.ID},
		})
		require.NoError(t, err)
		require.Len(t, res.Distribution.IncomeEventIDs, 1)

		ev, err := f.store.GetEvent(f.ctx, income.ID)
		require.NoError(t, err)
		assert.True(t, ev.IsToDistribute)
	})
}

func TestCreateValueEquationValidates(t *testing.T) {
	f := newFixture(t)
	ve := &valueequation.ValueEquation{
		ContextAgent:       f.b.Context,
		PercentageBehavior: valueequation.Straight,
		Buckets: []valueequation.Bucket{{
			Percentage:   d("50"),
			FilterMethod: valueequation.FilterProcess,
			Rules: []valueequation.BucketRule{{
				EventType:             graph.EventWork,
				ClaimCreationEquation: "quantity * rate",
				ClaimRuleType:         claim.DebtLike,
			}},
		}},
	}
	err := f.engine.CreateValueEquation(f.ctx, ve)
	require.Error(t, err)
	assert.True(t, valueflow.IsConfigError(err))

	var multi valueflow.MultiError
	require.True(t, errors.As(err, &multi))
	assert.Len(t, multi.Errors, 1)
}

func TestCustomGatherer(t *testing.T) {
	var calls int
	f := newFixture(t, valueflow.WithGatherer(valueequation.FilterShipment, valueflow.GatherFunc(
		func(ctx context.Context, s *valueflow.Scope) error {
			calls++
			events, err := s.Graph.ListEvents(ctx, graph.EventQuery{ContextAgent: s.ValueEquation.ContextAgent, ContributionsOnly: true})
			if err != nil {
				return err
			}
			for _, ev := range events {
				if err := s.AddEvent(ctx, ev); err != nil {
					return err
				}
			}
			return nil
		})))
	agents := f.contributors(t, 2, "30")
	ve := f.equation(t, valueequation.Straight, valueequation.FilterShipment, contributeRule(claim.EquityLike))

	res, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{ValueEquationID: ve.ID, Amount: d("10")})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	got := amountsByAgent(res)
	requireDecimal(t, "5", got[agents[0].String()])
	requireDecimal(t, "5", got[agents[1].String()])
}

func TestConcurrentRunsAreSerialized(t *testing.T) {
	f := newFixture(t)
	agent := f.contributors(t, 1, "100")[0]
	ve := f.equation(t, valueequation.Remaining, valueequation.FilterDates, contributeRule(claim.DebtLike))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{ValueEquationID: ve.ID, Amount: d("30")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	claims, err := f.engine.ListClaims(f.ctx, claim.ListOpts{HasAgent: agent})
	require.NoError(t, err)
	require.Len(t, claims, 1, "serialized runs raise the claim once")
	requireDecimal(t, "0", claims[0].Value)

	dists, err := f.engine.ListDistributions(f.ctx, distribution.ListOpts{})
	require.NoError(t, err)
	total := decimal.Zero
	for _, dist := range dists {
		total = total.Add(dist.Distributed)
	}
	requireDecimal(t, "100", total, "never more than the claim is owed")
}

var errDiskFull = errors.New("disk full")

// unsavable refuses to persist distribution runs.
type unsavable struct {
	*memory.Store
}

func (unsavable) SaveRun(context.Context, *store.Run) error { return errDiskFull }

func TestFailedSaveLeavesClaimsUntouched(t *testing.T) {
	f := newFixture(t)
	agent := f.contributors(t, 1, "100")[0]
	ve := f.equation(t, valueequation.Straight, valueequation.FilterDates, contributeRule(claim.DebtLike))

	_, err := f.engine.RunValueEquation(f.ctx, valueflow.RunInput{ValueEquationID: ve.ID, Amount: d("40")})
	require.NoError(t, err)

	broken := valueflow.New(unsavable{f.store})
	_, err = broken.RunValueEquation(f.ctx, valueflow.RunInput{ValueEquationID: ve.ID, Amount: d("30")})
	require.ErrorIs(t, err, errDiskFull)

	claims, err := f.engine.ListClaims(f.ctx, claim.ListOpts{HasAgent: agent})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	requireDecimal(t, "60", claims[0].Value, "the failed run discharged nothing")

	lines, err := f.engine.ListClaimEvents(f.ctx, claims[0].ID)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	runs, err := f.engine.ListDistributions(f.ctx, distribution.ListOpts{ValueEquationID: ve.ID})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
