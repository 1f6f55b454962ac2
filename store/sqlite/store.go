package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/valueflow"
	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	vfstore "github.com/xraph/valueflow/store"
	"github.com/xraph/valueflow/valueequation"
)

// compile-time interface check
var _ vfstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
// Decimal amounts are stored as text so no precision is lost.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("valueflow/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("valueflow/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Graph Writer ====================

func (s *Store) CreateResource(ctx context.Context, r *graph.Resource) error {
	_, err := s.sdb.NewInsert(toResourceModel(r)).Exec(ctx)
	return err
}

func (s *Store) CreateProcess(ctx context.Context, p *graph.Process) error {
	_, err := s.sdb.NewInsert(toProcessModel(p)).Exec(ctx)
	return err
}

func (s *Store) CreateExchange(ctx context.Context, x *graph.Exchange) error {
	_, err := s.sdb.NewInsert(toExchangeModel(x)).Exec(ctx)
	return err
}

func (s *Store) CreateEvent(ctx context.Context, e *graph.Event) error {
	_, err := s.sdb.NewInsert(toEventModel(e)).Exec(ctx)
	return err
}

// ==================== Graph Provider ====================

func (s *Store) GetResource(ctx context.Context, resourceID id.ResourceID) (*graph.Resource, error) {
	m := new(resourceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", resourceID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, valueflow.ErrResourceNotFound
		}
		return nil, err
	}
	return fromResourceModel(m)
}

func (s *Store) GetProcess(ctx context.Context, processID id.ProcessID) (*graph.Process, error) {
	m := new(processModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", processID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, valueflow.ErrProcessNotFound
		}
		return nil, err
	}
	return fromProcessModel(m)
}

func (s *Store) GetExchange(ctx context.Context, exchangeID id.ExchangeID) (*graph.Exchange, error) {
	m := new(exchangeModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", exchangeID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, valueflow.ErrExchangeNotFound
		}
		return nil, err
	}
	return fromExchangeModel(m)
}

func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*graph.Event, error) {
	m := new(eventModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", eventID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, valueflow.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) ResourceEvents(ctx context.Context, resourceID id.ResourceID) ([]*graph.Event, error) {
	return s.eventsWhere(ctx, "resource_id = ?", resourceID.String())
}

func (s *Store) ProcessEvents(ctx context.Context, processID id.ProcessID) ([]*graph.Event, error) {
	return s.eventsWhere(ctx, "process_id = ?", processID.String())
}

func (s *Store) ExchangeEvents(ctx context.Context, exchangeID id.ExchangeID) ([]*graph.Event, error) {
	return s.eventsWhere(ctx, "exchange_id = ?", exchangeID.String())
}

func (s *Store) eventsWhere(ctx context.Context, where string, arg string) ([]*graph.Event, error) {
	var models []eventModel
	err := s.sdb.NewSelect(&models).
		Where(where, arg).
		OrderExpr("date ASC, created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return convert(models, fromEventModel)
}

func (s *Store) ListEvents(ctx context.Context, q graph.EventQuery) ([]*graph.Event, error) {
	var models []eventModel
	sel := s.sdb.NewSelect(&models)
	if !q.ContextAgent.IsNil() {
		sel = sel.Where("context_agent = ?", q.ContextAgent.String())
	}
	if len(q.Types) > 0 {
		args := make([]any, len(q.Types))
		for i, t := range q.Types {
			args[i] = string(t)
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
		sel = sel.Where("type IN ("+marks+")", args...)
	}
	if !q.Start.IsZero() {
		sel = sel.Where("date >= ?", q.Start)
	}
	if !q.End.IsZero() {
		sel = sel.Where("date <= ?", q.End)
	}
	if q.ContributionsOnly {
		sel = sel.Where("is_contribution = 1")
	}
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}
	if q.Offset > 0 {
		sel = sel.Offset(q.Offset)
	}
	sel = sel.OrderExpr("date ASC, created_at ASC, id ASC")

	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	return convert(models, fromEventModel)
}

func (s *Store) UpdateResourceValue(ctx context.Context, resourceID id.ResourceID, valuePerUnit decimal.Decimal) error {
	res, err := s.sdb.NewUpdate((*resourceModel)(nil)).
		Set("value_per_unit = ?", valuePerUnit.String()).
		Set("updated_at = ?", now()).
		Where("id = ?", resourceID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, valueflow.ErrResourceNotFound)
}

// ==================== Value Equation Store ====================

func (s *Store) CreateValueEquation(ctx context.Context, ve *valueequation.ValueEquation) error {
	m, err := toValueEquationModel(ve)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetValueEquation(ctx context.Context, veID id.ValueEquationID) (*valueequation.ValueEquation, error) {
	m := new(valueEquationModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", veID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, valueflow.ErrValueEquationNotFound
		}
		return nil, err
	}
	return fromValueEquationModel(m)
}

func (s *Store) UpdateValueEquation(ctx context.Context, ve *valueequation.ValueEquation) error {
	m, err := toValueEquationModel(ve)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, valueflow.ErrValueEquationNotFound)
}

func (s *Store) ListValueEquations(ctx context.Context, opts valueequation.ListOpts) ([]*valueequation.ValueEquation, error) {
	var models []valueEquationModel
	q := s.sdb.NewSelect(&models)
	if !opts.ContextAgent.IsNil() {
		q = q.Where("context_agent = ?", opts.ContextAgent.String())
	}
	if opts.LiveOnly {
		q = q.Where("live = 1")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return convert(models, fromValueEquationModel)
}

func (s *Store) DeleteValueEquation(ctx context.Context, veID id.ValueEquationID) error {
	res, err := s.sdb.NewDelete((*valueEquationModel)(nil)).
		Where("id = ?", veID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, valueflow.ErrValueEquationNotFound)
}

// ==================== Claim Store ====================

func (s *Store) CreateClaim(ctx context.Context, c *claim.Claim) error {
	return insertClaim(ctx, s.sdb, c)
}

func insertClaim(ctx context.Context, w writer, c *claim.Claim) error {
	_, err := w.NewInsert(toClaimModel(c)).Exec(ctx)
	return err
}

func (s *Store) GetClaim(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	m := new(claimModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", claimID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, valueflow.ErrClaimNotFound
		}
		return nil, err
	}
	return fromClaimModel(m)
}

func (s *Store) FindClaim(ctx context.Context, eventID id.EventID, ruleID id.BucketRuleID) (*claim.Claim, error) {
	m := new(claimModel)
	err := s.sdb.NewSelect(m).
		Where("event_id = ?", eventID.String()).
		Where("bucket_rule_id = ?", ruleID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, valueflow.ErrClaimNotFound
		}
		return nil, err
	}
	return fromClaimModel(m)
}

func (s *Store) UpdateClaim(ctx context.Context, c *claim.Claim) error {
	return updateClaim(ctx, s.sdb, c)
}

func updateClaim(ctx context.Context, w writer, c *claim.Claim) error {
	m := toClaimModel(c)
	m.UpdatedAt = now()
	res, err := w.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, valueflow.ErrClaimNotFound)
}

func (s *Store) ListClaims(ctx context.Context, opts claim.ListOpts) ([]*claim.Claim, error) {
	var models []claimModel
	q := s.sdb.NewSelect(&models)
	filters := []struct {
		column string
		value  id.ID
	}{
		{"has_agent", opts.HasAgent},
		{"context_agent", opts.ContextAgent},
		{"value_equation_id", opts.ValueEquationID},
		{"bucket_rule_id", opts.BucketRuleID},
	}
	for _, f := range filters {
		if f.value.IsNil() {
			continue
		}
		q = q.Where(f.column+" = ?", f.value.String())
	}
	if opts.OutstandingOnly {
		q = q.Where("CAST(value AS REAL) > 0")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return convert(models, fromClaimModel)
}

func (s *Store) AppendClaimEvents(ctx context.Context, events []*claim.Event) error {
	return insertClaimEvents(ctx, s.sdb, events)
}

func insertClaimEvents(ctx context.Context, w writer, events []*claim.Event) error {
	if len(events) == 0 {
		return nil
	}
	models := make([]claimEventModel, len(events))
	for i, e := range events {
		models[i] = *toClaimEventModel(e)
	}
	_, err := w.NewInsert(&models).Exec(ctx)
	return err
}

func (s *Store) ListClaimEvents(ctx context.Context, claimID id.ClaimID) ([]*claim.Event, error) {
	var models []claimEventModel
	err := s.sdb.NewSelect(&models).
		Where("claim_id = ?", claimID.String()).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return convert(models, fromClaimEventModel)
}

// ==================== Distribution Store ====================

// CreateDistribution writes the distribution and its events in one
// transaction.
func (s *Store) CreateDistribution(ctx context.Context, d *distribution.Distribution) error {
	return s.SaveRun(ctx, &vfstore.Run{Distribution: d})
}

func insertDistribution(ctx context.Context, w writer, d *distribution.Distribution) error {
	m, err := toDistributionModel(d)
	if err != nil {
		return err
	}
	if _, err := w.NewInsert(m).Exec(ctx); err != nil {
		return err
	}
	if len(d.Events) == 0 {
		return nil
	}
	models := make([]distributionEventModel, len(d.Events))
	for i, e := range d.Events {
		em, err := toDistributionEventModel(e)
		if err != nil {
			return err
		}
		models[i] = *em
	}
	_, err = w.NewInsert(&models).Exec(ctx)
	return err
}

// ==================== Runs ====================

// writer is satisfied by both the database handle and a transaction.
type writer interface {
	NewInsert(model any) *sqlitedriver.InsertQuery
	NewUpdate(model any) *sqlitedriver.UpdateQuery
}

// SaveRun writes a distribution run in a single transaction.
func (s *Store) SaveRun(ctx context.Context, run *vfstore.Run) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("valueflow/sqlite: begin run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range run.NewClaims {
		if err := insertClaim(ctx, tx, c); err != nil {
			return fmt.Errorf("valueflow/sqlite: create claim %s: %w", c.ID, err)
		}
	}
	for _, c := range run.Claims {
		if err := updateClaim(ctx, tx, c); err != nil {
			return fmt.Errorf("valueflow/sqlite: update claim %s: %w", c.ID, err)
		}
	}
	if err := insertClaimEvents(ctx, tx, run.ClaimEvents); err != nil {
		return fmt.Errorf("valueflow/sqlite: append claim events: %w", err)
	}
	if run.Distribution != nil {
		if err := insertDistribution(ctx, tx, run.Distribution); err != nil {
			return fmt.Errorf("valueflow/sqlite: create distribution: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", valueflow.ErrTransactionFailed, err)
	}
	return nil
}

func (s *Store) GetDistribution(ctx context.Context, distID id.DistributionID) (*distribution.Distribution, error) {
	m := new(distributionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", distID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, valueflow.ErrDistributionNotFound
		}
		return nil, err
	}
	d, err := fromDistributionModel(m)
	if err != nil {
		return nil, err
	}
	if err := s.attachEvents(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) ListDistributions(ctx context.Context, opts distribution.ListOpts) ([]*distribution.Distribution, error) {
	var models []distributionModel
	q := s.sdb.NewSelect(&models)
	if !opts.ValueEquationID.IsNil() {
		q = q.Where("value_equation_id = ?", opts.ValueEquationID.String())
	}
	if !opts.ContextAgent.IsNil() {
		q = q.Where("context_agent = ?", opts.ContextAgent.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	result, err := convert(models, fromDistributionModel)
	if err != nil {
		return nil, err
	}
	for _, d := range result {
		if err := s.attachEvents(ctx, d); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Store) attachEvents(ctx context.Context, d *distribution.Distribution) error {
	var models []distributionEventModel
	err := s.sdb.NewSelect(&models).
		Where("distribution_id = ?", d.ID.String()).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return err
	}
	d.Events, err = convert(models, fromDistributionEventModel)
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// convert maps scanned models to domain values, stopping at the first error.
func convert[M any, T any](models []M, from func(*M) (T, error)) ([]T, error) {
	result := make([]T, len(models))
	for i := range models {
		v, err := from(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

// affected is the part of a grove exec result expectRow needs.
type affected interface {
	RowsAffected() (int64, error)
}

// expectRow returns notFound when an update or delete touched nothing.
func expectRow(res affected, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
