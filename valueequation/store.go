package valueequation

import (
	"context"

	"github.com/xraph/valueflow/id"
)

// Store persists value equations with their buckets and rules.
type Store interface {
	CreateValueEquation(ctx context.Context, ve *ValueEquation) error
	GetValueEquation(ctx context.Context, veID id.ValueEquationID) (*ValueEquation, error)
	UpdateValueEquation(ctx context.Context, ve *ValueEquation) error
	ListValueEquations(ctx context.Context, opts ListOpts) ([]*ValueEquation, error)
	DeleteValueEquation(ctx context.Context, veID id.ValueEquationID) error
}
