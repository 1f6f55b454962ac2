package mongo

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/valueequation"
)

func TestDistributionModelKeepsEventsAndSnapshot(t *testing.T) {
	ve := &valueequation.ValueEquation{
		ID:                 id.NewValueEquationID(),
		Name:               "default",
		PercentageBehavior: valueequation.Straight,
	}
	snapshot, err := distribution.NewSnapshot(ve, nil)
	require.NoError(t, err)

	distID := id.NewDistributionID()
	agent := id.NewAgentID()
	d := &distribution.Distribution{
		ID:              distID,
		ValueEquationID: ve.ID,
		Date:            time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Amount:          decimal.RequireFromString("100.00"),
		Distributed:     decimal.RequireFromString("99.99"),
		Undistributed:   decimal.RequireFromString("0.01"),
		Snapshot:        snapshot,
		Events: []*distribution.Event{{
			ID:             id.NewDistributionEventID(),
			DistributionID: distID,
			ToAgent:        agent,
			Quantity:       decimal.RequireFromString("99.99"),
			ClaimEventIDs:  []id.ClaimEventID{id.NewClaimEventID()},
		}},
	}

	m, err := toDistributionModel(d)
	require.NoError(t, err)
	got, err := fromDistributionModel(m)
	require.NoError(t, err)

	assert.True(t, got.Undistributed.Equal(d.Undistributed))
	require.Len(t, got.Events, 1)
	assert.Equal(t, agent, got.Events[0].ToAgent)
	assert.Equal(t, distID, got.Events[0].DistributionID)
	assert.Equal(t, d.Events[0].ClaimEventIDs, got.Events[0].ClaimEventIDs)
	assert.Equal(t, "default", got.Snapshot.ValueEquation.Name)
	assert.Nil(t, got.Disbursement)
}

func TestClaimModelRejectsForeignPrefix(t *testing.T) {
	m, err := toClaimModel(&claim.Claim{
		ID:       id.NewClaimID(),
		EventID:  id.NewEventID(),
		RuleType: claim.DebtLike,
		Value:    decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	m.EventID = id.NewAgentID().String()
	_, err = fromClaimModel(m)
	assert.Error(t, err)
}

func TestClaimsIndexIsUniquePerEventAndRule(t *testing.T) {
	idx := migrationIndexes()[colClaims]
	require.NotEmpty(t, idx)
	assert.NotNil(t, idx[0].Options)
}
