package valueflow_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xraph/valueflow"
	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/graph/graphtest"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/store/memory"
	"github.com/xraph/valueflow/valueequation"
)

var d = graphtest.D

type fixture struct {
	ctx    context.Context
	engine *valueflow.Engine
	store  *memory.Store
	b      *graphtest.Builder
}

func newFixture(t *testing.T, opts ...valueflow.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	opts = append([]valueflow.Option{
		valueflow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		valueflow.WithClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }),
	}, opts...)
	e := valueflow.New(s, opts...)
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })
	return &fixture{ctx: ctx, engine: e, store: s, b: graphtest.New(ctx, s)}
}

// assembly is one process with work worth 60 and 40 producing ten widgets.
type assembly struct {
	process     *graph.Process
	widget      *graph.Resource
	alice, bob  id.AgentID
	aliceWork   *graph.Event
	bobWork     *graph.Event
	produceWork *graph.Event
}

func (f *fixture) assembly(t *testing.T) assembly {
	t.Helper()
	a := assembly{alice: f.b.Agent("alice"), bob: f.b.Agent("bob")}
	a.widget = f.b.Resource(graph.Resource{Name: "widget", ResourceTypeID: "widget", Quantity: d("10")})
	a.process = f.b.Process(graph.Process{Name: "assemble", ProcessTypeID: "assembly"})
	a.aliceWork = f.b.Work(a.process, a.alice, "6", "10")
	a.bobWork = f.b.Work(a.process, a.bob, "4", "10")
	a.produceWork = f.b.Produce(a.process, a.widget, "10")
	require.NoError(t, f.b.Err())
	return a
}

// equation stores a single-bucket value equation paying rule's matches.
func (f *fixture) equation(t *testing.T, behavior valueequation.PercentageBehavior, method valueequation.FilterMethod, rules ...valueequation.BucketRule) *valueequation.ValueEquation {
	t.Helper()
	ve := &valueequation.ValueEquation{
		Name:               "income",
		ContextAgent:       f.b.Context,
		PercentageBehavior: behavior,
		Live:               true,
		Buckets: []valueequation.Bucket{{
			Name:         "contributors",
			Sequence:     1,
			Percentage:   d("100"),
			FilterMethod: method,
			Rules:        rules,
		}},
	}
	require.NoError(t, f.engine.CreateValueEquation(f.ctx, ve))
	return ve
}

func workRule(rt claim.RuleType) valueequation.BucketRule {
	return valueequation.BucketRule{EventType: graph.EventWork, ClaimRuleType: rt}
}

func filters(ve *valueequation.ValueEquation, f valueequation.Filter) map[string]valueequation.Filter {
	return map[string]valueequation.Filter{ve.Buckets[0].ID.String(): f}
}

func amountsByAgent(r *valueflow.RunResult) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, ev := range r.Distribution.Events {
		out[ev.ToAgent.String()] = ev.Quantity
	}
	return out
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
