package valueflow_test

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow"
	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/graph/graphtest"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/store/memory"
	"github.com/xraph/valueflow/valueequation"
)

func quietEngine() (*valueflow.Engine, *graphtest.Builder) {
	s := memory.New()
	e := valueflow.New(s, valueflow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return e, graphtest.New(context.Background(), s)
}

// TestDistributionSumsExactlyProperty verifies rounding reconciliation.
// Property: distributed + undistributed == amount, and the distribution
// events sum to what the buckets allocated, for any split.
func TestDistributionSumsExactlyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("distribution events sum to the allocated amount", prop.ForAll(
		func(cents int64, values []int, fixedPct int, remaining bool) bool {
			if len(values) == 0 {
				return true
			}
			ctx := context.Background()
			e, b := quietEngine()

			pool := b.Resource(graph.Resource{Name: "pool", ResourceTypeID: "cash"})
			for _, v := range values {
				s := strconv.Itoa(v)
				b.Contribute(pool, id.NewAgentID(), s, s)
			}
			if b.Err() != nil {
				return false
			}

			behavior := valueequation.Straight
			if remaining {
				behavior = valueequation.Remaining
			}
			ve := &valueequation.ValueEquation{
				ContextAgent:       b.Context,
				PercentageBehavior: behavior,
				Buckets: []valueequation.Bucket{
					{Sequence: 1, Percentage: decimal.NewFromInt(int64(fixedPct)), DistributionAgent: b.Agent("treasury")},
					{
						Sequence:     2,
						Percentage:   decimal.NewFromInt(int64(100 - fixedPct)),
						FilterMethod: valueequation.FilterDates,
						Rules: []valueequation.BucketRule{{
							EventType:     graph.EventContribute,
							ClaimRuleType: claim.EquityLike,
						}},
					},
				},
			}

			amount := decimal.New(cents, -2)
			res, err := e.RunValueEquation(ctx, valueflow.RunInput{ValueEquation: ve, Amount: amount})
			if err != nil {
				return false
			}

			dist := res.Distribution
			if !dist.Distributed.Add(dist.Undistributed).Equal(amount) {
				return false
			}
			if !dist.Total().Equal(dist.Distributed) {
				return false
			}
			for _, ev := range dist.Events {
				if ev.Quantity.IsNegative() || !ev.Quantity.Equal(ev.Quantity.Round(2)) {
					return false
				}
			}
			// Equity-like claims absorb whatever they are offered, unless
			// the amount is too small to reach anyone.
			return behavior == valueequation.Remaining || dist.Undistributed.IsZero() || len(dist.Events) == 0
		},
		gen.Int64Range(1, 10_000_000),
		gen.SliceOfN(5, gen.IntRange(1, 1000)),
		gen.IntRange(0, 60),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestRollUpIdempotenceProperty verifies the cached value is a fixed point.
// Property: RollUpValue(r) == RollUpValue(r) on an unchanged graph.
func TestRollUpIdempotenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("rollup is a fixed point", prop.ForAll(
		func(hours []int, produced int) bool {
			ctx := context.Background()
			e, b := quietEngine()

			out := b.Resource(graph.Resource{Name: "output", ResourceTypeID: "thing"})
			p := b.Process(graph.Process{Name: "make", ProcessTypeID: "make"})
			for _, h := range hours {
				b.Work(p, id.NewAgentID(), strconv.Itoa(h), "7.5")
			}
			b.Consume(p, out, "1", "")
			b.Produce(p, out, strconv.Itoa(produced))
			if b.Err() != nil {
				return false
			}

			first, err := e.RollUpValue(ctx, out.ID, nil)
			if err != nil {
				return false
			}
			second, err := e.RollUpValue(ctx, out.ID, nil)
			if err != nil {
				return false
			}
			return first.ValuePerUnit.Equal(second.ValuePerUnit) && !first.ValuePerUnit.IsNegative()
		},
		gen.SliceOf(gen.IntRange(0, 40)),
		gen.IntRange(1, 25),
	))

	properties.TestingRun(t)
}
