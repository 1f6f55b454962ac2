package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/valueflow"
	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/id"
	vfstore "github.com/xraph/valueflow/store"
	"github.com/xraph/valueflow/store/sqlite"
	"github.com/xraph/valueflow/types"
)

var day = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	sdb := sqlitedriver.New()
	require.NoError(t, sdb.Open(ctx, filepath.Join(t.TempDir(), "valueflow.db")))
	db, err := grove.Open(sdb)
	require.NoError(t, err)
	s := sqlite.New(db)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

// thirds does not fit a float64 exactly.
var thirds = decimal.RequireFromString("33.333333333333333333")

func TestClaimRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	c, raised := claim.New(thirds, claim.DebtLike, id.NewEventID(), day)
	c.HasAgent = id.NewAgentID()
	require.NoError(t, s.CreateClaim(ctx, c))
	require.NoError(t, s.AppendClaimEvents(ctx, []*claim.Event{raised}))

	got, err := s.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Value.Equal(thirds), got.Value.String())
	assert.True(t, got.OriginalValue.Equal(thirds))
	assert.Equal(t, claim.DebtLike, got.RuleType)
	assert.True(t, got.ClaimDate.Equal(day))
	assert.Equal(t, c.HasAgent.String(), got.HasAgent.String())

	paid := c.Discharge(thirds, day)
	require.NoError(t, s.UpdateClaim(ctx, c))
	require.NoError(t, s.AppendClaimEvents(ctx, []*claim.Event{paid}))

	outstanding, err := s.ListClaims(ctx, claim.ListOpts{HasAgent: c.HasAgent, OutstandingOnly: true})
	require.NoError(t, err)
	assert.Empty(t, outstanding)

	lines, err := s.ListClaimEvents(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	got, err = s.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Reconciles(lines))

	_, err = s.GetClaim(ctx, id.NewClaimID())
	assert.ErrorIs(t, err, valueflow.ErrClaimNotFound)
}

func testDistribution(veID id.ValueEquationID, agent id.AgentID, amount decimal.Decimal) *distribution.Distribution {
	d := &distribution.Distribution{
		Entity:          types.NewEntity(),
		ID:              id.NewDistributionID(),
		ValueEquationID: veID,
		Date:            day,
		Currency:        "usd",
		Amount:          amount,
		Distributed:     amount,
		Undistributed:   decimal.Zero,
	}
	d.Events = []*distribution.Event{{
		Entity:         types.NewEntity(),
		ID:             id.NewDistributionEventID(),
		DistributionID: d.ID,
		ToAgent:        agent,
		Quantity:       amount,
		Date:           day,
	}}
	return d
}

func TestSaveRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	agent := id.NewAgentID()
	veID := id.NewValueEquationID()

	c, raised := claim.New(decimal.NewFromInt(100), claim.DebtLike, id.NewEventID(), day)
	c.HasAgent = agent
	c.ValueEquationID = veID
	paid := c.Discharge(thirds, day)

	d := testDistribution(veID, agent, thirds)
	paid.DistributionEventID = d.Events[0].ID
	d.Events[0].ClaimEventIDs = []id.ClaimEventID{paid.ID}

	require.NoError(t, s.SaveRun(ctx, &vfstore.Run{
		NewClaims:    []*claim.Claim{c},
		ClaimEvents:  []*claim.Event{raised, paid},
		Distribution: d,
	}))

	got, err := s.GetDistribution(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(thirds), got.Amount.String())
	assert.True(t, got.Total().Equal(thirds))
	assert.Nil(t, got.Disbursement)
	require.Len(t, got.Events, 1)
	require.Len(t, got.Events[0].ClaimEventIDs, 1)
	assert.Equal(t, paid.ID.String(), got.Events[0].ClaimEventIDs[0].String())

	stored, err := s.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "66.666666666666666667", stored.Value.String())

	runs, err := s.ListDistributions(ctx, distribution.ListOpts{ValueEquationID: veID})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSaveRunRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	agent := id.NewAgentID()

	owed, raised := claim.New(decimal.NewFromInt(100), claim.DebtLike, id.NewEventID(), day)
	owed.HasAgent = agent
	require.NoError(t, s.CreateClaim(ctx, owed))
	require.NoError(t, s.AppendClaimEvents(ctx, []*claim.Event{raised}))

	taken := testDistribution(id.NewValueEquationID(), agent, decimal.NewFromInt(10))
	require.NoError(t, s.CreateDistribution(ctx, taken))

	fresh, freshRaised := claim.New(decimal.NewFromInt(5), claim.EquityLike, id.NewEventID(), day)
	paid := owed.Discharge(decimal.NewFromInt(40), day)
	err := s.SaveRun(ctx, &vfstore.Run{
		NewClaims:    []*claim.Claim{fresh},
		Claims:       []*claim.Claim{owed},
		ClaimEvents:  []*claim.Event{freshRaised, paid},
		Distribution: taken,
	})
	require.Error(t, err)

	stored, err := s.GetClaim(ctx, owed.ID)
	require.NoError(t, err)
	assert.True(t, stored.Value.Equal(decimal.NewFromInt(100)), "the discharge is rolled back")
	_, err = s.GetClaim(ctx, fresh.ID)
	assert.ErrorIs(t, err, valueflow.ErrClaimNotFound)
	lines, err := s.ListClaimEvents(ctx, owed.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}
