package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/valueflow"
	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	vfstore "github.com/xraph/valueflow/store"
	"github.com/xraph/valueflow/valueequation"
)

// Collection name constants.
const (
	colResources      = "valueflow_resources"
	colProcesses      = "valueflow_processes"
	colExchanges      = "valueflow_exchanges"
	colEvents         = "valueflow_events"
	colValueEquations = "valueflow_value_equations"
	colClaims         = "valueflow_claims"
	colClaimEvents    = "valueflow_claim_events"
	colDistributions  = "valueflow_distributions"
)

// compile-time interface check
var _ vfstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
// Amounts are stored as Decimal128.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all valueflow collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("valueflow/mongo: migrate %s indexes: %w", col, err)
		}
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
	m, err := toResourceModel(r)
	if err != nil {
		return err
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("valueflow/mongo: create resource: %w", err)
	}
	return nil
}

func (s *Store) CreateProcess(ctx context.Context, p *graph.Process) error {
	if _, err := s.mdb.NewInsert(toProcessModel(p)).Exec(ctx); err != nil {
		return fmt.Errorf("valueflow/mongo: create process: %w", err)
	}
	return nil
}

func (s *Store) CreateExchange(ctx context.Context, x *graph.Exchange) error {
	if _, err := s.mdb.NewInsert(toExchangeModel(x)).Exec(ctx); err != nil {
		return fmt.Errorf("valueflow/mongo: create exchange: %w", err)
	}
	return nil
}

func (s *Store) CreateEvent(ctx context.Context, e *graph.Event) error {
	m, err := toEventModel(e)
	if err != nil {
		return err
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("valueflow/mongo: create event: %w", err)
	}
	return nil
}

// ==================== Graph Provider ====================

func (s *Store) GetResource(ctx context.Context, resourceID id.ResourceID) (*graph.Resource, error) {
	var m resourceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": resourceID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, valueflow.ErrResourceNotFound
		}
		return nil, fmt.Errorf("valueflow/mongo: get resource: %w", err)
	}
	return fromResourceModel(&m)
}

func (s *Store) GetProcess(ctx context.Context, processID id.ProcessID) (*graph.Process, error) {
	var m processModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": processID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, valueflow.ErrProcessNotFound
		}
		return nil, fmt.Errorf("valueflow/mongo: get process: %w", err)
	}
	return fromProcessModel(&m)
}

func (s *Store) GetExchange(ctx context.Context, exchangeID id.ExchangeID) (*graph.Exchange, error) {
	var m exchangeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": exchangeID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, valueflow.ErrExchangeNotFound
		}
		return nil, fmt.Errorf("valueflow/mongo: get exchange: %w", err)
	}
	return fromExchangeModel(&m)
}

func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*graph.Event, error) {
	var m eventModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": eventID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, valueflow.ErrEventNotFound
		}
		return nil, fmt.Errorf("valueflow/mongo: get event: %w", err)
	}
	return fromEventModel(&m)
}

func (s *Store) ResourceEvents(ctx context.Context, resourceID id.ResourceID) ([]*graph.Event, error) {
	return s.findEvents(ctx, bson.M{"resource_id": resourceID.String()}, 0, 0)
}

func (s *Store) ProcessEvents(ctx context.Context, processID id.ProcessID) ([]*graph.Event, error) {
	return s.findEvents(ctx, bson.M{"process_id": processID.String()}, 0, 0)
}

func (s *Store) ExchangeEvents(ctx context.Context, exchangeID id.ExchangeID) ([]*graph.Event, error) {
	return s.findEvents(ctx, bson.M{"exchange_id": exchangeID.String()}, 0, 0)
}

func (s *Store) ListEvents(ctx context.Context, q graph.EventQuery) ([]*graph.Event, error) {
	filter := bson.M{}
	if !q.ContextAgent.IsNil() {
		filter["context_agent"] = q.ContextAgent.String()
	}
	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		filter["type"] = bson.M{"$in": types}
	}
	if !q.Start.IsZero() || !q.End.IsZero() {
		dateRange := bson.M{}
		if !q.Start.IsZero() {
			dateRange["$gte"] = q.Start
		}
		if !q.End.IsZero() {
			dateRange["$lte"] = q.End
		}
		filter["date"] = dateRange
	}
	if q.ContributionsOnly {
		filter["is_contribution"] = true
	}
	return s.findEvents(ctx, filter, q.Limit, q.Offset)
}

func (s *Store) findEvents(ctx context.Context, filter bson.M, limit, offset int) ([]*graph.Event, error) {
	var models []eventModel

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{
			{Key: "date", Value: 1},
			{Key: "created_at", Value: 1},
			{Key: "_id", Value: 1},
		})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if offset > 0 {
		q = q.Skip(int64(offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("valueflow/mongo: list events: %w", err)
	}
	return convert(models, fromEventModel)
}

func (s *Store) UpdateResourceValue(ctx context.Context, resourceID id.ResourceID, valuePerUnit decimal.Decimal) error {
	var c codec
	v := c.dec128(valuePerUnit)
	if c.err != nil {
		return c.err
	}
	res, err := s.mdb.NewUpdate((*resourceModel)(nil)).
		Filter(bson.M{"_id": resourceID.String()}).
		Set("value_per_unit", v).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("valueflow/mongo: update resource value: %w", err)
	}
	if res.MatchedCount() == 0 {
		return valueflow.ErrResourceNotFound
	}
	return nil
}

// ==================== Value Equation Store ====================

func (s *Store) CreateValueEquation(ctx context.Context, ve *valueequation.ValueEquation) error {
	m, err := toValueEquationModel(ve)
	if err != nil {
		return err
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("valueflow/mongo: create value equation: %w", err)
	}
	return nil
}

func (s *Store) GetValueEquation(ctx context.Context, veID id.ValueEquationID) (*valueequation.ValueEquation, error) {
	var m valueEquationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": veID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, valueflow.ErrValueEquationNotFound
		}
		return nil, fmt.Errorf("valueflow/mongo: get value equation: %w", err)
	}
	return fromValueEquationModel(&m)
}

func (s *Store) UpdateValueEquation(ctx context.Context, ve *valueequation.ValueEquation) error {
	m, err := toValueEquationModel(ve)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("valueflow/mongo: update value equation: %w", err)
	}
	if res.MatchedCount() == 0 {
		return valueflow.ErrValueEquationNotFound
	}
	return nil
}

func (s *Store) ListValueEquations(ctx context.Context, opts valueequation.ListOpts) ([]*valueequation.ValueEquation, error) {
	var models []valueEquationModel

	filter := bson.M{}
	if !opts.ContextAgent.IsNil() {
		filter["context_agent"] = opts.ContextAgent.String()
	}
	if opts.LiveOnly {
		filter["live"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("valueflow/mongo: list value equations: %w", err)
	}
	return convert(models, fromValueEquationModel)
}

func (s *Store) DeleteValueEquation(ctx context.Context, veID id.ValueEquationID) error {
	res, err := s.mdb.NewDelete((*valueEquationModel)(nil)).
		Filter(bson.M{"_id": veID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("valueflow/mongo: delete value equation: %w", err)
	}
	if res.DeletedCount() == 0 {
		return valueflow.ErrValueEquationNotFound
	}
	return nil
}

// ==================== Claim Store ====================

func (s *Store) CreateClaim(ctx context.Context, c *claim.Claim) error {
	return insertClaim(ctx, s.mdb, c)
}

func insertClaim(ctx context.Context, w writer, c *claim.Claim) error {
	m, err := toClaimModel(c)
	if err != nil {
		return err
	}
	if _, err := w.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("valueflow/mongo: create claim: %w", err)
	}
	return nil
}

func (s *Store) GetClaim(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	return s.findClaim(ctx, bson.M{"_id": claimID.String()})
}

func (s *Store) FindClaim(ctx context.Context, eventID id.EventID, ruleID id.BucketRuleID) (*claim.Claim, error) {
	return s.findClaim(ctx, bson.M{
		"event_id":       eventID.String(),
		"bucket_rule_id": ruleID.String(),
	})
}

func (s *Store) findClaim(ctx context.Context, filter bson.M) (*claim.Claim, error) {
	var m claimModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, valueflow.ErrClaimNotFound
		}
		return nil, fmt.Errorf("valueflow/mongo: get claim: %w", err)
	}
	return fromClaimModel(&m)
}

func (s *Store) UpdateClaim(ctx context.Context, c *claim.Claim) error {
	return updateClaim(ctx, s.mdb, c)
}

func updateClaim(ctx context.Context, w writer, c *claim.Claim) error {
	m, err := toClaimModel(c)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()

	res, err := w.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("valueflow/mongo: update claim: %w", err)
	}
	if res.MatchedCount() == 0 {
		return valueflow.ErrClaimNotFound
	}
	return nil
}

func (s *Store) ListClaims(ctx context.Context, opts claim.ListOpts) ([]*claim.Claim, error) {
	var models []claimModel

	filter := bson.M{}
	filters := []struct {
		key   string
		value id.ID
	}{
		{"has_agent", opts.HasAgent},
		{"context_agent", opts.ContextAgent},
		{"value_equation_id", opts.ValueEquationID},
		{"bucket_rule_id", opts.BucketRuleID},
	}
	for _, f := range filters {
		if !f.value.IsNil() {
			filter[f.key] = f.value.String()
		}
	}
	if opts.OutstandingOnly {
		filter["value"] = bson.M{"$gt": 0}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("valueflow/mongo: list claims: %w", err)
	}
	return convert(models, fromClaimModel)
}

func (s *Store) AppendClaimEvents(ctx context.Context, events []*claim.Event) error {
	return insertClaimEvents(ctx, s.mdb, events)
}

func insertClaimEvents(ctx context.Context, w writer, events []*claim.Event) error {
	for _, e := range events {
		m, err := toClaimEventModel(e)
		if err != nil {
			return err
		}
		if _, err := w.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("valueflow/mongo: append claim event: %w", err)
		}
	}
	return nil
}

func (s *Store) ListClaimEvents(ctx context.Context, claimID id.ClaimID) ([]*claim.Event, error) {
	var models []claimEventModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"claim_id": claimID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("valueflow/mongo: list claim events: %w", err)
	}
	return convert(models, fromClaimEventModel)
}

// ==================== Distribution Store ====================

// CreateDistribution writes the distribution and its events as one document.
// CreateDistribution writes the distribution with its events and
// disbursement as one document.
func (s *Store) CreateDistribution(ctx context.Context, d *distribution.Distribution) error {
	return insertDistribution(ctx, s.mdb, d)
}

func insertDistribution(ctx context.Context, w writer, d *distribution.Distribution) error {
	m, err := toDistributionModel(d)
	if err != nil {
		return err
	}
	if _, err := w.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("valueflow/mongo: create distribution: %w", err)
	}
	return nil
}

// ==================== Runs ====================

// writer is satisfied by both the database and a transaction.
type writer interface {
	NewInsert(model any) *mongodriver.InsertQuery
	NewUpdate(model any) *mongodriver.UpdateQuery
}

// SaveRun writes a distribution run in a single session transaction.
// Transactions need a replica set or a sharded cluster.
func (s *Store) SaveRun(ctx context.Context, run *vfstore.Run) error {
	raw, err := s.mdb.GroveTx(ctx, 0, false)
	if err != nil {
		return fmt.Errorf("valueflow/mongo: begin run: %w", err)
	}
	tx, ok := raw.(*mongodriver.MongoTx)
	if !ok {
		return fmt.Errorf("valueflow/mongo: begin run: unexpected transaction %T", raw)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, c := range run.NewClaims {
		if err := insertClaim(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, c := range run.Claims {
		if err := updateClaim(ctx, tx, c); err != nil {
			return err
		}
	}
	if err := insertClaimEvents(ctx, tx, run.ClaimEvents); err != nil {
		return err
	}
	if run.Distribution != nil {
		if err := insertDistribution(ctx, tx, run.Distribution); err != nil {
			return err
		}
	}
	committed = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", valueflow.ErrTransactionFailed, err)
	}
	return nil
}

func (s *Store) GetDistribution(ctx context.Context, distID id.DistributionID) (*distribution.Distribution, error) {
	var m distributionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": distID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, valueflow.ErrDistributionNotFound
		}
		return nil, fmt.Errorf("valueflow/mongo: get distribution: %w", err)
	}
	return fromDistributionModel(&m)
}

func (s *Store) ListDistributions(ctx context.Context, opts distribution.ListOpts) ([]*distribution.Distribution, error) {
	var models []distributionModel

	filter := bson.M{}
	if !opts.ValueEquationID.IsNil() {
		filter["value_equation_id"] = opts.ValueEquationID.String()
	}
	if !opts.ContextAgent.IsNil() {
		filter["context_agent"] = opts.ContextAgent.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("valueflow/mongo: list distributions: %w", err)
	}
	return convert(models, fromDistributionModel)
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// convert maps decoded documents to domain values, stopping at the first error.
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all valueflow collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colResources: {
			{Keys: bson.D{{Key: "context_agent", Value: 1}}},
		},
		colProcesses: {
			{Keys: bson.D{{Key: "context_agent", Value: 1}}},
		},
		colExchanges: {
			{Keys: bson.D{{Key: "context_agent", Value: 1}, {Key: "date", Value: 1}}},
		},
		colEvents: {
			{Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "date", Value: 1}}},
			{Keys: bson.D{{Key: "process_id", Value: 1}, {Key: "date", Value: 1}}},
			{Keys: bson.D{{Key: "exchange_id", Value: 1}, {Key: "date", Value: 1}}},
			{Keys: bson.D{{Key: "context_agent", Value: 1}, {Key: "type", Value: 1}, {Key: "date", Value: 1}}},
		},
		colValueEquations: {
			{Keys: bson.D{{Key: "context_agent", Value: 1}, {Key: "live", Value: 1}}},
		},
		colClaims: {
			{
				Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "bucket_rule_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "has_agent", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "context_agent", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colClaimEvents: {
			{Keys: bson.D{{Key: "claim_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colDistributions: {
			{Keys: bson.D{{Key: "value_equation_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "context_agent", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}
