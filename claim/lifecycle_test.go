package claim

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/valueflow/id"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var day = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestNewRaisesClaim(t *testing.T) {
	evt := id.NewEventID()
	c, raised := New(d("100"), DebtLike, evt, day)

	assert.True(t, c.Value.Equal(d("100")))
	assert.True(t, c.OriginalValue.Equal(d("100")))
	assert.Equal(t, Raised, raised.Direction)
	assert.Equal(t, c.ID.String(), raised.ClaimID.String())
	assert.Equal(t, evt.String(), raised.EventID.String())
	assert.True(t, c.Reconciles([]*Event{raised}))
}

func TestDischargePolicies(t *testing.T) {
	tests := []struct {
		name      string
		rule      RuleType
		discharge []string
		want      string
	}{
		{"debt-like partial", DebtLike, []string{"40"}, "60"},
		{"debt-like floors at zero", DebtLike, []string{"40", "70"}, "0"},
		{"once extinguished by small amount", Once, []string{"0.01"}, "0"},
		{"equity-like unchanged", EquityLike, []string{"40", "70", "500"}, "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, raised := New(d("100"), tt.rule, id.NewEventID(), day)
			lines := []*Event{raised}
			for _, amt := range tt.discharge {
				e := c.Discharge(d(amt), day)
				assert.Equal(t, Discharged, e.Direction)
				assert.True(t, e.Value.Equal(d(amt)), "line carries the distributed amount")
				lines = append(lines, e)
			}
			assert.True(t, c.Value.Equal(d(tt.want)), "got %s, want %s", c.Value, tt.want)
			assert.True(t, c.Reconciles(lines))
		})
	}
}

func TestPayable(t *testing.T) {
	debt, _ := New(d("30"), DebtLike, id.NewEventID(), day)
	once, _ := New(d("30"), Once, id.NewEventID(), day)
	equity, _ := New(d("30"), EquityLike, id.NewEventID(), day)

	assert.True(t, debt.Payable(d("50")).Equal(d("30")))
	assert.True(t, once.Payable(d("50")).Equal(d("30")))
	assert.True(t, equity.Payable(d("50")).Equal(d("50")))
	assert.True(t, debt.Payable(d("10")).Equal(d("10")))
}

func TestAdjust(t *testing.T) {
	c, _ := New(d("100"), DebtLike, id.NewEventID(), day)
	c.Discharge(d("33.33"), day)

	c.Adjust(d("-0.01"))
	assert.True(t, c.Value.Equal(d("66.66")))

	c.Adjust(d("500"))
	assert.True(t, c.Value.Equal(d("100")), "bounded by original value")

	c.Adjust(d("-500"))
	assert.True(t, c.Value.IsZero(), "bounded by zero")

	eq, _ := New(d("100"), EquityLike, id.NewEventID(), day)
	eq.Adjust(d("-1"))
	assert.True(t, eq.Value.Equal(d("100")), "equity-like claims are never adjusted")
}

func TestReconcilesDetectsDrift(t *testing.T) {
	c, raised := New(d("100"), DebtLike, id.NewEventID(), day)
	paid := c.Discharge(d("40"), day)
	require.True(t, c.Reconciles([]*Event{raised, paid}))

	c.Value = d("55")
	assert.False(t, c.Reconciles([]*Event{raised, paid}))

	other, otherRaised := New(d("7"), Once, id.NewEventID(), day)
	assert.False(t, c.Reconciles([]*Event{otherRaised}), "lines of another claim are ignored")
	assert.True(t, other.Reconciles([]*Event{otherRaised, raised}))
}

func TestRuleType(t *testing.T) {
	assert.True(t, DebtLike.Valid())
	assert.False(t, RuleType("loan").Valid())
	assert.False(t, EquityLike.Capped())
}
