package distribution

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/valueequation"
)

func TestSnapshotIsDetached(t *testing.T) {
	ve := &valueequation.ValueEquation{
		ID:                 id.NewValueEquationID(),
		Name:               "shop",
		PercentageBehavior: valueequation.Remaining,
		Buckets: []valueequation.Bucket{
			{ID: id.NewBucketID(), Sequence: 1, Percentage: decimal.NewFromInt(30), FilterMethod: valueequation.FilterProcess},
		},
	}
	filters := map[string]valueequation.Filter{
		ve.Buckets[0].ID.String(): {ProcessIDs: []id.ProcessID{id.NewProcessID()}},
	}

	snap, err := NewSnapshot(ve, filters)
	require.NoError(t, err)

	ve.Buckets[0].Percentage = decimal.NewFromInt(80)
	ve.Name = "changed"

	assert.Equal(t, "shop", snap.ValueEquation.Name)
	assert.True(t, snap.ValueEquation.Buckets[0].Percentage.Equal(decimal.NewFromInt(30)))
	assert.Len(t, snap.Filters[ve.Buckets[0].ID.String()].ProcessIDs, 1)

	raw, err := snap.Marshal()
	require.NoError(t, err)
	back, err := UnmarshalSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, snap.ValueEquation.ID.String(), back.ValueEquation.ID.String())

	empty, err := UnmarshalSnapshot(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.ValueEquation.Buckets)
}

func TestTotalAndEventFor(t *testing.T) {
	alice, bob := id.NewAgentID(), id.NewAgentID()
	d := &Distribution{Events: []*Event{
		{ToAgent: alice, Quantity: decimal.RequireFromString("33.33")},
		{ToAgent: bob, Quantity: decimal.RequireFromString("66.67")},
	}}
	assert.True(t, d.Total().Equal(decimal.NewFromInt(100)))
	assert.Same(t, d.Events[1], d.EventFor(bob))
	assert.Nil(t, d.EventFor(id.NewAgentID()))
}
