package valueequation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/equation"
)

// ErrInvalid is wrapped by every FieldError.
var ErrInvalid = errors.New("valueequation: invalid configuration")

// FieldError locates one configuration problem.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("valueequation: %s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrInvalid }

var hundred = decimal.NewFromInt(100)

// Validate reports every configuration problem in the value equation.
func (ve *ValueEquation) Validate() []*FieldError {
	var errs []*FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, &FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch ve.PercentageBehavior {
	case Straight, Remaining:
	default:
		add("percentage_behavior", "must be %q or %q, got %q", Straight, Remaining, ve.PercentageBehavior)
	}
	if len(ve.Buckets) == 0 {
		add("buckets", "at least one bucket is required")
	}

	total := decimal.Zero
	seen := make(map[int]bool)
	for i, b := range ve.Buckets {
		field := fmt.Sprintf("buckets[%d]", i)
		if b.Percentage.IsNegative() || b.Percentage.GreaterThan(hundred) {
			add(field+".percentage", "must be between 0 and 100, got %s", b.Percentage)
		}
		total = total.Add(b.Percentage)
		if seen[b.Sequence] {
			add(field+".sequence", "duplicate sequence %d", b.Sequence)
		}
		seen[b.Sequence] = true

		if b.HasFixedAgent() {
			continue
		}
		switch b.FilterMethod {
		case FilterOrder, FilterShipment, FilterProcess, FilterDates:
		case "":
			add(field, "needs a distribution agent or a filter method")
			continue
		default:
			add(field+".filter_method", "unknown filter method %q", b.FilterMethod)
		}
		if len(b.Rules) == 0 {
			add(field+".rules", "a filtered bucket needs at least one rule")
		}
		for j, r := range b.Rules {
			rf := fmt.Sprintf("%s.rules[%d]", field, j)
			if !r.EventType.Valid() {
				add(rf+".event_type", "unknown event type %q", r.EventType)
			}
			if !r.ClaimRuleType.Valid() {
				add(rf+".claim_rule_type", "unknown claim rule type %q", r.ClaimRuleType)
			}
			if r.ClaimCreationEquation != "" {
				if _, err := equation.Parse(r.ClaimCreationEquation); err != nil {
					add(rf+".claim_creation_equation", "%v", err)
				}
			}
		}
	}
	if ve.PercentageBehavior == Straight && total.GreaterThan(hundred) {
		add("buckets", "straight percentages sum to %s, more than 100", total)
	}
	return errs
}
