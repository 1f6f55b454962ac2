package valueequation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func work(resourceType string) *graph.Event {
	return &graph.Event{
		Type:           graph.EventWork,
		ResourceTypeID: resourceType,
		Quantity:       d("4"),
		UnitValue:      d("25"),
		IsContribution: true,
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name string
		rule BucketRule
		cand Candidate
		want bool
	}{
		{"type only", BucketRule{EventType: graph.EventWork}, Candidate{Event: work("design")}, true},
		{"wrong type", BucketRule{EventType: graph.EventUse}, Candidate{Event: work("design")}, false},
		{"process listed", BucketRule{EventType: graph.EventWork, ProcessTypes: []string{"cut", "sew"}}, Candidate{Event: work("design"), ProcessType: "sew"}, true},
		{"process not listed", BucketRule{EventType: graph.EventWork, ProcessTypes: []string{"cut"}}, Candidate{Event: work("design"), ProcessType: "sew"}, false},
		{"resource listed", BucketRule{EventType: graph.EventWork, ResourceTypes: []string{"design"}}, Candidate{Event: work("design")}, true},
		{"resource from resource", BucketRule{EventType: graph.EventWork, ResourceTypes: []string{"fabric"}}, Candidate{Event: work(""), Resource: &graph.Resource{ResourceTypeID: "fabric"}}, true},
		{"both must hold", BucketRule{EventType: graph.EventWork, ProcessTypes: []string{"sew"}, ResourceTypes: []string{"fabric"}}, Candidate{Event: work("design"), ProcessType: "sew"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Matches(tt.cand))
		})
	}
}

func TestBestRuleSpecificity(t *testing.T) {
	plain := &BucketRule{ID: id.NewBucketRuleID(), EventType: graph.EventWork}
	byResource := &BucketRule{ID: id.NewBucketRuleID(), EventType: graph.EventWork, ResourceTypes: []string{"design"}}
	byProcess := &BucketRule{ID: id.NewBucketRuleID(), EventType: graph.EventWork, ProcessTypes: []string{"sew"}}
	byBoth := &BucketRule{ID: id.NewBucketRuleID(), EventType: graph.EventWork, ProcessTypes: []string{"sew"}, ResourceTypes: []string{"design"}}

	cand := Candidate{Event: work("design"), ProcessType: "sew"}

	assert.Same(t, byBoth, BestRule([]*BucketRule{plain, byResource, byProcess, byBoth}, cand))
	assert.Same(t, byProcess, BestRule([]*BucketRule{plain, byResource, byProcess}, cand))
	assert.Same(t, byResource, BestRule([]*BucketRule{plain, byResource}, cand))
	assert.Same(t, plain, BestRule([]*BucketRule{plain}, cand))
	assert.Nil(t, BestRule([]*BucketRule{{EventType: graph.EventUse}}, cand))

	twin := &BucketRule{ID: id.NewBucketRuleID(), EventType: graph.EventWork, ProcessTypes: []string{"sew"}}
	assert.Same(t, byProcess, BestRule([]*BucketRule{byProcess, twin}, cand), "first rule wins ties")
	assert.Same(t, twin, BestRule([]*BucketRule{twin, byProcess}, cand))
}

func TestComputeClaimValue(t *testing.T) {
	res := &graph.Resource{ValuePerUnit: d("12"), ValuePerUnitOfUse: d("0.5")}
	use := &graph.Event{Type: graph.EventUse, Quantity: d("10"), Price: d("30")}

	tests := []struct {
		name     string
		equation string
		cand     Candidate
		want     string
	}{
		{"no equation uses recorded value", "", Candidate{Event: work("")}, "100"},
		{"rate", "quantity * valuePerUnit", Candidate{Event: work("")}, "100"},
		{"premium", "value * 1.5", Candidate{Event: work("")}, "150"},
		{"use of resource", "quantity * valuePerUnitOfUse", Candidate{Event: use, Resource: res}, "5"},
		{"price per unit", "pricePerUnit", Candidate{Event: use, Resource: res}, "3"},
		{"resource value fallback", "valuePerUnit", Candidate{Event: use, Resource: res}, "12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := BucketRule{EventType: tt.cand.Event.Type, ClaimCreationEquation: tt.equation}
			got, err := r.ComputeClaimValue(tt.cand)
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestSortedBucketsAndRules(t *testing.T) {
	ve := &ValueEquation{Buckets: []Bucket{
		{Name: "third", Sequence: 30, Rules: []BucketRule{{ClaimCreationEquation: "c"}}},
		{Name: "first", Sequence: 10, Rules: []BucketRule{{ClaimCreationEquation: "a1"}, {ClaimCreationEquation: "a2"}}},
		{Name: "second", Sequence: 20},
	}}

	var names []string
	for _, b := range ve.SortedBuckets() {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"first", "second", "third"}, names)

	var eqs []string
	for _, r := range ve.Rules() {
		eqs = append(eqs, r.ClaimCreationEquation)
	}
	assert.Equal(t, []string{"a1", "a2", "c"}, eqs)

	ve.SortedBuckets()[0].Name = "renamed"
	assert.Equal(t, "renamed", ve.Buckets[1].Name, "sorted buckets point into the equation")
}

func TestValidate(t *testing.T) {
	valid := func() *ValueEquation {
		return &ValueEquation{
			PercentageBehavior: Straight,
			Buckets: []Bucket{
				{Sequence: 1, Percentage: d("10"), DistributionAgent: id.NewAgentID()},
				{Sequence: 2, Percentage: d("90"), FilterMethod: FilterProcess, Rules: []BucketRule{
					{EventType: graph.EventWork, ClaimCreationEquation: "quantity * valuePerUnit", ClaimRuleType: claim.DebtLike},
				}},
			},
		}
	}
	require.Empty(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*ValueEquation)
		field  string
	}{
		{"behavior", func(ve *ValueEquation) { ve.PercentageBehavior = "half" }, "percentage_behavior"},
		{"no buckets", func(ve *ValueEquation) { ve.Buckets = nil }, "buckets"},
		{"percentage range", func(ve *ValueEquation) { ve.Buckets[0].Percentage = d("101") }, "buckets[0].percentage"},
		{"duplicate sequence", func(ve *ValueEquation) { ve.Buckets[1].Sequence = 1 }, "buckets[1].sequence"},
		{"no agent or filter", func(ve *ValueEquation) { ve.Buckets[1].FilterMethod = "" }, "buckets[1]"},
		{"unknown filter", func(ve *ValueEquation) { ve.Buckets[1].FilterMethod = "weekly" }, "buckets[1].filter_method"},
		{"no rules", func(ve *ValueEquation) { ve.Buckets[1].Rules = nil }, "buckets[1].rules"},
		{"bad equation", func(ve *ValueEquation) { ve.Buckets[1].Rules[0].ClaimCreationEquation = "hours * 2" }, "buckets[1].rules[0].claim_creation_equation"},
		{"bad rule type", func(ve *ValueEquation) { ve.Buckets[1].Rules[0].ClaimRuleType = "loan" }, "buckets[1].rules[0].claim_rule_type"},
		{"straight over 100", func(ve *ValueEquation) { ve.Buckets[1].Percentage = d("95") }, "buckets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ve := valid()
			tt.mutate(ve)
			errs := ve.Validate()
			require.NotEmpty(t, errs)
			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
				assert.True(t, errors.Is(e, ErrInvalid))
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}
