package store

import (
	"context"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/valueequation"
)

// Store is the unified storage interface for all valueflow entities.
// Sub-package interfaces use entity-qualified method names so they can be
// embedded without conflicts.
type Store interface {
	graph.Provider
	graph.Writer
	valueequation.Store
	claim.Store
	distribution.Store

	// SaveRun writes everything one distribution run produced, or nothing.
	SaveRun(ctx context.Context, run *Run) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Run is what a distribution run persists: the claims it raised, the claims
// it discharged, their ledger lines and the distribution itself.
type Run struct {
	NewClaims    []*claim.Claim
	Claims       []*claim.Claim
	ClaimEvents  []*claim.Event
	Distribution *distribution.Distribution
}
