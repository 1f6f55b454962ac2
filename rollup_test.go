package valueflow_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/valueflow"
	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/valueequation"
)

func TestRollUpSingleProcess(t *testing.T) {
	f := newFixture(t)
	a := f.assembly(t)

	res, err := f.engine.RollUpValue(f.ctx, a.widget.ID, nil)
	require.NoError(t, err)
	requireDecimal(t, "10", res.ValuePerUnit)

	stored, err := f.store.GetResource(f.ctx, a.widget.ID)
	require.NoError(t, err)
	requireDecimal(t, "10", stored.ValuePerUnit, "value per unit is cached on the resource")
	assert.NotEmpty(t, res.Path)
}

func TestRollUpIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.assembly(t)

	first, err := f.engine.RollUpValue(f.ctx, a.widget.ID, nil)
	require.NoError(t, err)
	second, err := f.engine.RollUpValue(f.ctx, a.widget.ID, nil)
	require.NoError(t, err)

	requireDecimal(t, first.ValuePerUnit.String(), second.ValuePerUnit)
	assert.Equal(t, len(first.Path), len(second.Path))
}

func TestRollUpWeightedAverage(t *testing.T) {
	f := newFixture(t)
	b := f.b
	r := b.Resource(graph.Resource{Name: "part", ResourceTypeID: "part"})

	p1 := b.Process(graph.Process{Name: "batch one", ProcessTypeID: "machining"})
	b.Work(p1, b.Agent("alice"), "2", "10")
	b.Produce(p1, r, "2")

	p2 := b.Process(graph.Process{Name: "batch two", ProcessTypeID: "machining"})
	b.Work(p2, b.Agent("bob"), "1", "20")
	b.Produce(p2, r, "1")
	require.NoError(t, b.Err())

	res, err := f.engine.RollUpValue(f.ctx, r.ID, nil)
	require.NoError(t, err)
	// (10*2 + 20*1) / 3 = 13.333..., rounded up.
	requireDecimal(t, "13.34", res.ValuePerUnit)
}

func TestRollUpCycleTerminates(t *testing.T) {
	f := newFixture(t)
	b := f.b
	starter := b.Resource(graph.Resource{Name: "starter", ResourceTypeID: "culture"})
	p := b.Process(graph.Process{Name: "ferment", ProcessTypeID: "ferment"})
	b.Consume(p, starter, "1", "")
	b.Work(p, b.Agent("alice"), "1", "10")
	b.Produce(p, starter, "1")
	require.NoError(t, b.Err())

	res, err := f.engine.RollUpValue(f.ctx, starter.ID, nil)
	require.NoError(t, err)
	requireDecimal(t, "10", res.ValuePerUnit)

	var skipped bool
	for _, n := range res.Path {
		if n.Kind == valueflow.NodeProcess && n.Note != "" {
			skipped = true
		}
	}
	assert.True(t, skipped, "the revisited process is recorded as skipped")
}

func TestRollUpStagedResource(t *testing.T) {
	f := newFixture(t)
	b := f.b
	dough := b.Resource(graph.Resource{Name: "dough", ResourceTypeID: "dough"})

	mix := b.Process(graph.Process{Name: "mix", ProcessTypeID: "mix"})
	b.Work(mix, b.Agent("alice"), "1", "10")
	b.Produce(mix, dough, "1")

	proof := b.Process(graph.Process{Name: "proof", ProcessTypeID: "proof"})
	b.Consume(proof, dough, "1", "mix")
	b.Work(proof, b.Agent("bob"), "1", "5")
	b.Produce(proof, dough, "1")
	require.NoError(t, b.Err())

	// Mixed dough is worth 10; proofing consumes it and adds 5. Both
	// recipe steps produce the same resource, so the unscoped value is
	// their average.
	res, err := f.engine.RollUpValue(f.ctx, dough.ID, nil)
	require.NoError(t, err)
	requireDecimal(t, "12.5", res.ValuePerUnit)
}

func TestRollUpUseAndCite(t *testing.T) {
	f := newFixture(t)
	b := f.b
	tool := b.Resource(graph.Resource{Name: "lathe", ResourceTypeID: "tool", Quantity: d("1"), ValuePerUnitOfUse: d("2")})
	b.Contribute(tool, b.Agent("carol"), "1", "500")
	design := b.Resource(graph.Resource{Name: "design", ResourceTypeID: "design"})

	p := b.Process(graph.Process{Name: "turn", ProcessTypeID: "turning"})
	b.Work(p, b.Agent("alice"), "10", "10")
	b.Use(p, tool, "3", "")
	b.Cite(p, design, "10", graph.UnitPercent)
	gadget := b.Resource(graph.Resource{Name: "gadget", ResourceTypeID: "gadget"})
	b.Produce(p, gadget, "10")
	require.NoError(t, b.Err())

	res, err := f.engine.RollUpValue(f.ctx, gadget.ID, nil)
	require.NoError(t, err)
	// work 100 + use 3*2 + cite 10% of 106 = 116.6 over 10 units.
	requireDecimal(t, "11.66", res.ValuePerUnit)

	lathe, err := f.store.GetResource(f.ctx, tool.ID)
	require.NoError(t, err)
	requireDecimal(t, "500", lathe.ValuePerUnit, "the used resource is rolled up alongside")
}

func TestRollUpPurchase(t *testing.T) {
	f := newFixture(t)
	b := f.b
	supplier := b.Agent("supplier")
	lumber := b.Resource(graph.Resource{Name: "lumber", ResourceTypeID: "lumber"})
	nails := b.Resource(graph.Resource{Name: "nails", ResourceTypeID: "nails"})

	x := b.Exchange(graph.Exchange{Name: "hardware order", ExchangeTypeID: "purchase"})
	b.Receive(x, lumber, supplier, "10", "100")
	b.Receive(x, nails, supplier, "5", "50")
	b.Pay(x, nil, b.Agent("alice"), supplier, "150", "150")
	b.Expense(x, b.Agent("bob"), "30")
	require.NoError(t, b.Err())

	res, err := f.engine.RollUpValue(f.ctx, lumber.ID, nil)
	require.NoError(t, err)
	// Lumber is two thirds of the receipts: (150 + 30) * 2/3 = 120.
	requireDecimal(t, "12", res.ValuePerUnit)
}

func TestRollUpPaymentFromContributedCash(t *testing.T) {
	f := newFixture(t)
	b := f.b
	supplier := b.Agent("supplier")
	cash := b.Resource(graph.Resource{Name: "project cash", ResourceTypeID: "cash"})
	b.Contribute(cash, b.Agent("investor"), "200", "200")

	seed := b.Resource(graph.Resource{Name: "seed", ResourceTypeID: "seed"})
	x := b.Exchange(graph.Exchange{Name: "seed order", ExchangeTypeID: "purchase"})
	b.Receive(x, seed, supplier, "4", "80")
	b.Pay(x, cash, b.Context, supplier, "80", "80")
	require.NoError(t, b.Err())

	res, err := f.engine.RollUpValue(f.ctx, seed.ID, nil)
	require.NoError(t, err)
	requireDecimal(t, "20", res.ValuePerUnit)
}

func TestRollUpRulesRepriceEvents(t *testing.T) {
	f := newFixture(t)
	a := f.assembly(t)

	ve := &valueequation.ValueEquation{Buckets: []valueequation.Bucket{{
		Percentage:   d("100"),
		FilterMethod: valueequation.FilterProcess,
		Rules: []valueequation.BucketRule{{
			EventType:             graph.EventWork,
			ClaimCreationEquation: "quantity * 20",
			ClaimRuleType:         claim.DebtLike,
		}},
	}}}

	res, err := f.engine.RollUpValue(f.ctx, a.widget.ID, ve)
	require.NoError(t, err)
	requireDecimal(t, "20", res.ValuePerUnit)
}

func TestRollUpNoSourcesIsZero(t *testing.T) {
	f := newFixture(t)
	r := f.b.Resource(graph.Resource{Name: "orphan", ResourceTypeID: "thing"})
	require.NoError(t, f.b.Err())

	res, err := f.engine.RollUpValue(f.ctx, r.ID, nil)
	require.NoError(t, err)
	assert.True(t, res.ValuePerUnit.IsZero())
}

func TestRollUpDepthBound(t *testing.T) {
	f := newFixture(t, valueflow.WithMaxDepth(2))
	b := f.b
	raw := b.Resource(graph.Resource{Name: "ore", ResourceTypeID: "ore"})
	b.Contribute(raw, b.Agent("miner"), "1", "5")
	mid := b.Resource(graph.Resource{Name: "ingot", ResourceTypeID: "ingot"})
	top := b.Resource(graph.Resource{Name: "blade", ResourceTypeID: "blade"})

	smelt := b.Process(graph.Process{Name: "smelt", ProcessTypeID: "smelt"})
	b.Consume(smelt, raw, "1", "")
	b.Produce(smelt, mid, "1")
	forge := b.Process(graph.Process{Name: "forge", ProcessTypeID: "forge"})
	b.Consume(forge, mid, "1", "")
	b.Produce(forge, top, "1")
	require.NoError(t, b.Err())

	_, err := f.engine.RollUpValue(f.ctx, top.ID, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, valueflow.ErrTraversalTooDeep))

	unbounded := valueflow.New(f.store)
	res, err := unbounded.RollUpValue(f.ctx, top.ID, nil)
	require.NoError(t, err)
	requireDecimal(t, "5", res.ValuePerUnit)
}

func TestRollUpUnknownResource(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RollUpValue(f.ctx, id.NewResourceID(), nil)
	require.Error(t, err)
	assert.True(t, valueflow.IsNotFound(err))
}

func TestRollUpExchangeApportionment(t *testing.T) {
	tests := []struct {
		name        string
		lumberValue string
		nailsValue  string
		payments    []string
		want        string
	}{
		{"payments split by receipt value", "100", "50", []string{"90", "60"}, "10"},
		{"receipts without value split equally", "0", "0", []string{"90", "60"}, "7.5"},
		{"single payment", "100", "50", []string{"150"}, "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := f.b
			supplier := b.Agent("supplier")
			lumber := b.Resource(graph.Resource{Name: "lumber", ResourceTypeID: "lumber"})
			nails := b.Resource(graph.Resource{Name: "nails", ResourceTypeID: "nails"})

			x := b.Exchange(graph.Exchange{Name: "hardware order", ExchangeTypeID: "purchase"})
			b.Receive(x, lumber, supplier, "10", tt.lumberValue)
			b.Receive(x, nails, supplier, "5", tt.nailsValue)
			for i, amount := range tt.payments {
				b.Pay(x, nil, b.Agent(fmt.Sprintf("payer-%d", i)), supplier, amount, amount)
			}
			require.NoError(t, b.Err())

			res, err := f.engine.RollUpValue(f.ctx, lumber.ID, nil)
			require.NoError(t, err)
			requireDecimal(t, tt.want, res.ValuePerUnit)
		})
	}
}

// doublingChain builds levels processes, each consuming two units of the
// previous level's output to make one unit of its own. Every level is
// reached along 2^level paths.
func doublingChain(t *testing.T, f *fixture, levels int) *graph.Resource {
	t.Helper()
	b := f.b
	prev := b.Resource(graph.Resource{Name: "ore", ResourceTypeID: "ore"})
	b.Contribute(prev, b.Agent("miner"), "1", "1")
	for i := 1; i <= levels; i++ {
		next := b.Resource(graph.Resource{Name: fmt.Sprintf("part-%d", i), ResourceTypeID: fmt.Sprintf("part-%d", i)})
		p := b.Process(graph.Process{Name: fmt.Sprintf("stage-%d", i), ProcessTypeID: fmt.Sprintf("stage-%d", i)})
		b.Consume(p, prev, "1", "")
		b.Consume(p, prev, "1", "")
		b.Produce(p, next, "1")
		prev = next
	}
	require.NoError(t, b.Err())
	return prev
}

func TestRollUpSharedInputsExpandOnce(t *testing.T) {
	const levels = 24
	f := newFixture(t)
	top := doublingChain(t, f, levels)

	res, err := f.engine.RollUpValue(f.ctx, top.ID, nil)
	require.NoError(t, err)
	requireDecimal(t, decimal.NewFromInt(1<<levels).String(), res.ValuePerUnit)

	expanded := 0
	for _, n := range res.Path {
		if n.Kind == valueflow.NodeProcess {
			assert.Empty(t, n.Note, "no process is skipped in an acyclic graph")
			expanded++
		}
	}
	assert.Equal(t, levels, expanded, "each process is expanded once")
	assert.Less(t, len(res.Path), 5*levels, "the path grows with the graph, not with the paths through it")
}

func TestRollUpNodeBound(t *testing.T) {
	f := newFixture(t, valueflow.WithMaxNodes(10))
	top := doublingChain(t, f, 8)

	_, err := f.engine.RollUpValue(f.ctx, top.ID, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, valueflow.ErrTraversalTooLarge))
}
