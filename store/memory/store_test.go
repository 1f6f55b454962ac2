package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/valueflow"
	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	vfstore "github.com/xraph/valueflow/store"
	"github.com/xraph/valueflow/valueequation"
)

func TestGraphRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	res := &graph.Resource{ID: id.NewResourceID(), Name: "loaf", Quantity: decimal.NewFromInt(10)}
	require.NoError(t, s.CreateResource(ctx, res))
	assert.ErrorIs(t, s.CreateResource(ctx, res), valueflow.ErrAlreadyExists)

	res.Name = "mutated after create"
	got, err := s.GetResource(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "loaf", got.Name, "store keeps its own copy")

	require.NoError(t, s.UpdateResourceValue(ctx, res.ID, decimal.RequireFromString("4.25")))
	got, err = s.GetResource(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, got.ValuePerUnit.Equal(decimal.RequireFromString("4.25")))

	_, err = s.GetResource(ctx, id.NewResourceID())
	assert.True(t, valueflow.IsNotFound(err))
	assert.ErrorIs(t, s.UpdateResourceValue(ctx, id.NewResourceID(), decimal.Zero), valueflow.ErrResourceNotFound)
}

func TestEventOrderingAndQueries(t *testing.T) {
	ctx := context.Background()
	s := New()

	proc := id.NewProcessID()
	ctxAgent := id.NewAgentID()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	late := &graph.Event{ID: id.NewEventID(), Type: graph.EventWork, ProcessID: proc, ContextAgent: ctxAgent, Date: base.Add(2 * time.Hour), IsContribution: true}
	early := &graph.Event{ID: id.NewEventID(), Type: graph.EventUse, ProcessID: proc, ContextAgent: ctxAgent, Date: base}
	sameAsEarly := &graph.Event{ID: id.NewEventID(), Type: graph.EventWork, ProcessID: proc, ContextAgent: ctxAgent, Date: base, IsContribution: true}
	for _, e := range []*graph.Event{late, early, sameAsEarly} {
		require.NoError(t, s.CreateEvent(ctx, e))
	}

	evs, err := s.ProcessEvents(ctx, proc)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, early.ID.String(), evs[0].ID.String())
	assert.Equal(t, sameAsEarly.ID.String(), evs[1].ID.String(), "equal dates keep insertion order")
	assert.Equal(t, late.ID.String(), evs[2].ID.String())

	contributions, err := s.ListEvents(ctx, graph.EventQuery{ContextAgent: ctxAgent, ContributionsOnly: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, contributions, 1)
	assert.Equal(t, sameAsEarly.ID.String(), contributions[0].ID.String())
}

func TestClaims(t *testing.T) {
	ctx := context.Background()
	s := New()

	agent := id.NewAgentID()
	rule := id.NewBucketRuleID()
	evt := id.NewEventID()

	c, raised := claim.New(decimal.NewFromInt(100), claim.DebtLike, evt, time.Now())
	c.BucketRuleID = rule
	c.HasAgent = agent
	require.NoError(t, s.CreateClaim(ctx, c))
	require.NoError(t, s.AppendClaimEvents(ctx, []*claim.Event{raised}))

	found, err := s.FindClaim(ctx, evt, rule)
	require.NoError(t, err)
	assert.Equal(t, c.ID.String(), found.ID.String())

	_, err = s.FindClaim(ctx, evt, id.NewBucketRuleID())
	assert.ErrorIs(t, err, valueflow.ErrClaimNotFound)

	paid := found.Discharge(decimal.NewFromInt(100), time.Now())
	require.NoError(t, s.UpdateClaim(ctx, found))
	require.NoError(t, s.AppendClaimEvents(ctx, []*claim.Event{paid}))

	outstanding, err := s.ListClaims(ctx, claim.ListOpts{HasAgent: agent, OutstandingOnly: true})
	require.NoError(t, err)
	assert.Empty(t, outstanding)

	all, err := s.ListClaims(ctx, claim.ListOpts{BucketRuleID: rule})
	require.NoError(t, err)
	require.Len(t, all, 1)

	lines, err := s.ListClaimEvents(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.True(t, all[0].Reconciles(lines))

	orphan := &claim.Event{ID: id.NewClaimEventID(), ClaimID: id.NewClaimID()}
	assert.ErrorIs(t, s.AppendClaimEvents(ctx, []*claim.Event{orphan}), valueflow.ErrClaimNotFound)
}

func TestValueEquationsAndDistributions(t *testing.T) {
	ctx := context.Background()
	s := New()

	ve := &valueequation.ValueEquation{
		ID:                 id.NewValueEquationID(),
		ContextAgent:       id.NewAgentID(),
		PercentageBehavior: valueequation.Straight,
		Buckets: []valueequation.Bucket{{
			ID: id.NewBucketID(), Sequence: 1, Percentage: decimal.NewFromInt(100),
			Rules: []valueequation.BucketRule{{ID: id.NewBucketRuleID(), EventType: graph.EventWork}},
		}},
	}
	require.NoError(t, s.CreateValueEquation(ctx, ve))

	ve.Buckets[0].Rules[0].EventType = graph.EventUse
	got, err := s.GetValueEquation(ctx, ve.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.EventWork, got.Buckets[0].Rules[0].EventType, "rules are copied")

	listed, err := s.ListValueEquations(ctx, valueequation.ListOpts{ContextAgent: ve.ContextAgent})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	d := &distribution.Distribution{
		ID:              id.NewDistributionID(),
		ValueEquationID: ve.ID,
		Events:          []*distribution.Event{{ID: id.NewDistributionEventID(), Quantity: decimal.NewFromInt(5)}},
	}
	require.NoError(t, s.CreateDistribution(ctx, d))
	d.Events[0].Quantity = decimal.NewFromInt(6)

	stored, err := s.GetDistribution(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total().Equal(decimal.NewFromInt(5)))

	runs, err := s.ListDistributions(ctx, distribution.ListOpts{ValueEquationID: ve.ID})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.NoError(t, s.DeleteValueEquation(ctx, ve.ID))
	_, err = s.GetValueEquation(ctx, ve.ID)
	assert.ErrorIs(t, err, valueflow.ErrValueEquationNotFound)
}

func TestSaveRunIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	owed, raised := claim.New(decimal.NewFromInt(100), claim.DebtLike, id.NewEventID(), now)
	require.NoError(t, s.SaveRun(ctx, &vfstore.Run{
		NewClaims:   []*claim.Claim{owed},
		ClaimEvents: []*claim.Event{raised},
	}))

	taken := &distribution.Distribution{ID: id.NewDistributionID()}
	require.NoError(t, s.CreateDistribution(ctx, taken))

	paid := owed.Discharge(decimal.NewFromInt(40), now)
	fresh, freshRaised := claim.New(decimal.NewFromInt(10), claim.Once, id.NewEventID(), now)
	err := s.SaveRun(ctx, &vfstore.Run{
		NewClaims:    []*claim.Claim{fresh},
		Claims:       []*claim.Claim{owed},
		ClaimEvents:  []*claim.Event{freshRaised, paid},
		Distribution: taken,
	})
	require.ErrorIs(t, err, valueflow.ErrAlreadyExists)

	stored, err := s.GetClaim(ctx, owed.ID)
	require.NoError(t, err)
	assert.True(t, stored.Value.Equal(decimal.NewFromInt(100)), "the discharge is not applied")
	_, err = s.GetClaim(ctx, fresh.ID)
	assert.ErrorIs(t, err, valueflow.ErrClaimNotFound)
	lines, err := s.ListClaimEvents(ctx, owed.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	run := &vfstore.Run{
		NewClaims:    []*claim.Claim{fresh},
		Claims:       []*claim.Claim{owed},
		ClaimEvents:  []*claim.Event{freshRaised, paid},
		Distribution: &distribution.Distribution{ID: id.NewDistributionID()},
	}
	require.NoError(t, s.SaveRun(ctx, run))
	stored, err = s.GetClaim(ctx, owed.ID)
	require.NoError(t, err)
	assert.True(t, stored.Value.Equal(decimal.NewFromInt(60)))
	_, err = s.GetDistribution(ctx, run.Distribution.ID)
	require.NoError(t, err)
}
