package valueflow

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/lock"
	"github.com/xraph/valueflow/plugin"
	"github.com/xraph/valueflow/store"
	"github.com/xraph/valueflow/types"
	"github.com/xraph/valueflow/valueequation"
)

// DefaultMaxDepth bounds graph traversal depth.
const DefaultMaxDepth = 64

// DefaultMaxNodes bounds the nodes one traversal may expand.
const DefaultMaxNodes = 100_000

// Engine values resources and distributes income over an economic graph.
type Engine struct {
	store     store.Store
	plugins   *plugin.Registry
	logger    *slog.Logger
	locker    lock.Locker
	tracer    trace.Tracer
	gatherers map[valueequation.FilterMethod]Gatherer
	now       func() time.Time

	// Configuration
	maxDepth int
	maxNodes int
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		plugins:   plugin.NewRegistry(),
		logger:    slog.Default(),
		locker:    lock.NewMemory(),
		tracer:    otel.Tracer("github.com/xraph/valueflow"),
		gatherers: defaultGatherers(),
		now:       func() time.Time { return time.Now().UTC() },
		maxDepth:  DefaultMaxDepth,
		maxNodes:  DefaultMaxNodes,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithLocker sets the lock that serializes distribution runs per context agent.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithGatherer registers the gatherer for a bucket filter method, replacing
// the built-in one.
func WithGatherer(method valueequation.FilterMethod, g Gatherer) Option {
	return func(e *Engine) {
		e.gatherers[method] = g
	}
}

// WithMaxDepth bounds traversal depth. Non-positive values keep the default.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithMaxNodes bounds how many graph nodes a single traversal may expand.
// Non-positive values keep the default.
func WithMaxNodes(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxNodes = n
		}
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithClock sets the time source used to date claims and distributions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("valueflow started",
		"max_depth", e.maxDepth,
		"max_nodes", e.maxNodes,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	e.logger.Info("valueflow stopped")

	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// ──────────────────────────────────────────────────
// Value equations
// ──────────────────────────────────────────────────

// CreateValueEquation validates ve, assigns missing IDs and stores it.
func (e *Engine) CreateValueEquation(ctx context.Context, ve *valueequation.ValueEquation) error {
	assignIDs(ve)
	ve.Entity = types.NewEntity()

	if err := validateEquation(ve); err != nil {
		return err
	}
	return e.store.CreateValueEquation(ctx, ve)
}

// UpdateValueEquation validates and stores a changed value equation.
// Past distributions keep the snapshot they were run with.
func (e *Engine) UpdateValueEquation(ctx context.Context, ve *valueequation.ValueEquation) error {
	assignIDs(ve)
	ve.Touch()

	if err := validateEquation(ve); err != nil {
		return err
	}
	return e.store.UpdateValueEquation(ctx, ve)
}

// GetValueEquation retrieves a value equation by ID.
func (e *Engine) GetValueEquation(ctx context.Context, veID id.ValueEquationID) (*valueequation.ValueEquation, error) {
	return e.store.GetValueEquation(ctx, veID)
}

func assignIDs(ve *valueequation.ValueEquation) {
	if ve.ID.IsNil() {
		ve.ID = id.NewValueEquationID()
	}
	for i := range ve.Buckets {
		b := &ve.Buckets[i]
		if b.ID.IsNil() {
			b.ID = id.NewBucketID()
		}
		for j := range b.Rules {
			if b.Rules[j].ID.IsNil() {
				b.Rules[j].ID = id.NewBucketRuleID()
			}
		}
	}
}

// validateEquation converts configuration problems into ValidationErrors.
func validateEquation(ve *valueequation.ValueEquation) error {
	problems := ve.Validate()
	if len(problems) == 0 {
		return nil
	}
	var errs MultiError
	for _, p := range problems {
		errs.Add(ValidationError{Field: p.Field, Message: p.Message})
	}
	return errs
}

// ──────────────────────────────────────────────────
// Claims and distributions
// ──────────────────────────────────────────────────

// ListClaims lists claims.
func (e *Engine) ListClaims(ctx context.Context, opts claim.ListOpts) ([]*claim.Claim, error) {
	return e.store.ListClaims(ctx, opts)
}

// ListClaimEvents lists the ledger lines of a claim.
func (e *Engine) ListClaimEvents(ctx context.Context, claimID id.ClaimID) ([]*claim.Event, error) {
	return e.store.ListClaimEvents(ctx, claimID)
}

// ReconcileClaim reports whether a stored claim agrees with its ledger lines.
func (e *Engine) ReconcileClaim(ctx context.Context, claimID id.ClaimID) (bool, error) {
	c, err := e.store.GetClaim(ctx, claimID)
	if err != nil {
		return false, err
	}
	lines, err := e.store.ListClaimEvents(ctx, claimID)
	if err != nil {
		return false, err
	}
	return c.Reconciles(lines), nil
}

// GetDistribution retrieves a distribution with its events.
func (e *Engine) GetDistribution(ctx context.Context, distID id.DistributionID) (*distribution.Distribution, error) {
	return e.store.GetDistribution(ctx, distID)
}

// ListDistributions lists distribution runs.
func (e *Engine) ListDistributions(ctx context.Context, opts distribution.ListOpts) ([]*distribution.Distribution, error) {
	return e.store.ListDistributions(ctx, opts)
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
