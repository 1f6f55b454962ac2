// Package memory provides an in-memory Store for tests and scenario runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow"
	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	vfstore "github.com/xraph/valueflow/store"
	"github.com/xraph/valueflow/valueequation"
)

// Store keeps every entity in maps guarded by one RWMutex. Entities are
// copied on the way in and out so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	// Graph storage
	resources map[string]*graph.Resource
	processes map[string]*graph.Process
	exchanges map[string]*graph.Exchange
	events    map[string]*graph.Event
	eventSeq  []string

	// Value equation storage
	equations map[string]*valueequation.ValueEquation

	// Claim storage
	claims      map[string]*claim.Claim
	claimSeq    []string
	claimEvents []*claim.Event

	// Distribution storage
	distributions map[string]*distribution.Distribution
	distSeq       []string
}

// compile-time interface check
var _ vfstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		resources:     make(map[string]*graph.Resource),
		processes:     make(map[string]*graph.Process),
		exchanges:     make(map[string]*graph.Exchange),
		events:        make(map[string]*graph.Event),
		equations:     make(map[string]*valueequation.ValueEquation),
		claims:        make(map[string]*claim.Claim),
		distributions: make(map[string]*distribution.Distribution),
	}
}

// Graph Writer implementation
func (s *Store) CreateResource(_ context.Context, r *graph.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.resources[r.ID.String()]; exists {
		return valueflow.ErrAlreadyExists
	}
	cp := *r
	s.resources[r.ID.String()] = &cp
	return nil
}

func (s *Store) CreateProcess(_ context.Context, p *graph.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.processes[p.ID.String()]; exists {
		return valueflow.ErrAlreadyExists
	}
	cp := *p
	s.processes[p.ID.String()] = &cp
	return nil
}

func (s *Store) CreateExchange(_ context.Context, x *graph.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.exchanges[x.ID.String()]; exists {
		return valueflow.ErrAlreadyExists
	}
	cp := *x
	s.exchanges[x.ID.String()] = &cp
	return nil
}

func (s *Store) CreateEvent(_ context.Context, e *graph.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[e.ID.String()]; exists {
		return valueflow.ErrAlreadyExists
	}
	cp := *e
	s.events[e.ID.String()] = &cp
	s.eventSeq = append(s.eventSeq, e.ID.String())
	return nil
}

// Graph Provider implementation
func (s *Store) GetResource(_ context.Context, resourceID id.ResourceID) (*graph.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.resources[resourceID.String()]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, valueflow.ErrResourceNotFound
}

func (s *Store) GetProcess(_ context.Context, processID id.ProcessID) (*graph.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.processes[processID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, valueflow.ErrProcessNotFound
}

func (s *Store) GetExchange(_ context.Context, exchangeID id.ExchangeID) (*graph.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if x, ok := s.exchanges[exchangeID.String()]; ok {
		cp := *x
		return &cp, nil
	}
	return nil, valueflow.ErrExchangeNotFound
}

func (s *Store) GetEvent(_ context.Context, eventID id.EventID) (*graph.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.events[eventID.String()]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, valueflow.ErrEventNotFound
}

func (s *Store) ResourceEvents(_ context.Context, resourceID id.ResourceID) ([]*graph.Event, error) {
	return s.selectEvents(func(e *graph.Event) bool {
		return e.ResourceID.String() == resourceID.String()
	}, 0, 0), nil
}

func (s *Store) ProcessEvents(_ context.Context, processID id.ProcessID) ([]*graph.Event, error) {
	return s.selectEvents(func(e *graph.Event) bool {
		return e.ProcessID.String() == processID.String()
	}, 0, 0), nil
}

func (s *Store) ExchangeEvents(_ context.Context, exchangeID id.ExchangeID) ([]*graph.Event, error) {
	return s.selectEvents(func(e *graph.Event) bool {
		return e.ExchangeID.String() == exchangeID.String()
	}, 0, 0), nil
}

func (s *Store) ListEvents(_ context.Context, q graph.EventQuery) ([]*graph.Event, error) {
	return s.selectEvents(q.Matches, q.Limit, q.Offset), nil
}

// selectEvents returns copies of matching events ordered by date, then by
// insertion.
func (s *Store) selectEvents(match func(*graph.Event) bool, limit, offset int) []*graph.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*graph.Event, 0)
	for _, key := range s.eventSeq {
		e := s.events[key]
		if e.ID.IsNil() || !match(e) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return page(result, limit, offset)
}

func (s *Store) UpdateResourceValue(_ context.Context, resourceID id.ResourceID, valuePerUnit decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resources[resourceID.String()]
	if !ok {
		return valueflow.ErrResourceNotFound
	}
	r.ValuePerUnit = valuePerUnit
	r.Touch()
	return nil
}

// Value equation Store implementation
func (s *Store) CreateValueEquation(_ context.Context, ve *valueequation.ValueEquation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.equations[ve.ID.String()]; exists {
		return valueflow.ErrAlreadyExists
	}
	s.equations[ve.ID.String()] = cloneEquation(ve)
	return nil
}

func (s *Store) GetValueEquation(_ context.Context, veID id.ValueEquationID) (*valueequation.ValueEquation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ve, ok := s.equations[veID.String()]; ok {
		return cloneEquation(ve), nil
	}
	return nil, valueflow.ErrValueEquationNotFound
}

func (s *Store) UpdateValueEquation(_ context.Context, ve *valueequation.ValueEquation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.equations[ve.ID.String()]; !exists {
		return valueflow.ErrValueEquationNotFound
	}
	s.equations[ve.ID.String()] = cloneEquation(ve)
	return nil
}

func (s *Store) ListValueEquations(_ context.Context, opts valueequation.ListOpts) ([]*valueequation.ValueEquation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*valueequation.ValueEquation, 0)
	for _, ve := range s.equations {
		if !opts.ContextAgent.IsNil() && ve.ContextAgent.String() != opts.ContextAgent.String() {
			continue
		}
		if opts.LiveOnly && !ve.Live {
			continue
		}
		result = append(result, cloneEquation(ve))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) DeleteValueEquation(_ context.Context, veID id.ValueEquationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.equations[veID.String()]; !exists {
		return valueflow.ErrValueEquationNotFound
	}
	delete(s.equations, veID.String())
	return nil
}

func cloneEquation(ve *valueequation.ValueEquation) *valueequation.ValueEquation {
	cp := *ve
	cp.Buckets = make([]valueequation.Bucket, len(ve.Buckets))
	for i, b := range ve.Buckets {
		b.Rules = append([]valueequation.BucketRule(nil), b.Rules...)
		cp.Buckets[i] = b
	}
	return &cp
}

// Claim Store implementation
func (s *Store) CreateClaim(_ context.Context, c *claim.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.claims[c.ID.String()]; exists {
		return valueflow.ErrAlreadyExists
	}
	cp := *c
	s.claims[c.ID.String()] = &cp
	s.claimSeq = append(s.claimSeq, c.ID.String())
	return nil
}

func (s *Store) GetClaim(_ context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.claims[claimID.String()]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, valueflow.ErrClaimNotFound
}

func (s *Store) FindClaim(_ context.Context, eventID id.EventID, ruleID id.BucketRuleID) (*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range s.claimSeq {
		c := s.claims[key]
		if c.EventID.String() == eventID.String() && c.BucketRuleID.String() == ruleID.String() {
			cp := *c
			return &cp, nil
		}
	}
	return nil, valueflow.ErrClaimNotFound
}

func (s *Store) UpdateClaim(_ context.Context, c *claim.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.claims[c.ID.String()]; !exists {
		return valueflow.ErrClaimNotFound
	}
	cp := *c
	s.claims[c.ID.String()] = &cp
	return nil
}

func (s *Store) ListClaims(_ context.Context, opts claim.ListOpts) ([]*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*claim.Claim, 0)
	for _, key := range s.claimSeq {
		c := s.claims[key]
		if !opts.HasAgent.IsNil() && c.HasAgent.String() != opts.HasAgent.String() {
			continue
		}
		if !opts.ContextAgent.IsNil() && c.ContextAgent.String() != opts.ContextAgent.String() {
			continue
		}
		if !opts.ValueEquationID.IsNil() && c.ValueEquationID.String() != opts.ValueEquationID.String() {
			continue
		}
		if !opts.BucketRuleID.IsNil() && c.BucketRuleID.String() != opts.BucketRuleID.String() {
			continue
		}
		if opts.OutstandingOnly && !c.Outstanding() {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) AppendClaimEvents(_ context.Context, events []*claim.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if _, ok := s.claims[e.ClaimID.String()]; !ok {
			return valueflow.ErrClaimNotFound
		}
	}
	for _, e := range events {
		cp := *e
		s.claimEvents = append(s.claimEvents, &cp)
	}
	return nil
}

func (s *Store) ListClaimEvents(_ context.Context, claimID id.ClaimID) ([]*claim.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*claim.Event, 0)
	for _, e := range s.claimEvents {
		if e.ClaimID.String() == claimID.String() {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Distribution Store implementation
func (s *Store) CreateDistribution(_ context.Context, d *distribution.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.distributions[d.ID.String()]; exists {
		return valueflow.ErrAlreadyExists
	}
	s.distributions[d.ID.String()] = cloneDistribution(d)
	s.distSeq = append(s.distSeq, d.ID.String())
	return nil
}

func (s *Store) GetDistribution(_ context.Context, distID id.DistributionID) (*distribution.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.distributions[distID.String()]; ok {
		return cloneDistribution(d), nil
	}
	return nil, valueflow.ErrDistributionNotFound
}

func (s *Store) ListDistributions(_ context.Context, opts distribution.ListOpts) ([]*distribution.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*distribution.Distribution, 0)
	for _, key := range s.distSeq {
		d := s.distributions[key]
		if !opts.ValueEquationID.IsNil() && d.ValueEquationID.String() != opts.ValueEquationID.String() {
			continue
		}
		if !opts.ContextAgent.IsNil() && d.ContextAgent.String() != opts.ContextAgent.String() {
			continue
		}
		result = append(result, cloneDistribution(d))
	}
	return page(result, opts.Limit, opts.Offset), nil
}

func cloneDistribution(d *distribution.Distribution) *distribution.Distribution {
	cp := *d
	cp.IncomeEventIDs = append([]id.EventID(nil), d.IncomeEventIDs...)
	cp.Events = make([]*distribution.Event, len(d.Events))
	for i, e := range d.Events {
		ec := *e
		ec.ClaimEventIDs = append([]id.ClaimEventID(nil), e.ClaimEventIDs...)
		cp.Events[i] = &ec
	}
	if d.Disbursement != nil {
		disb := *d.Disbursement
		cp.Disbursement = &disb
	}
	return &cp
}

// SaveRun checks every write of the run before applying any of them.
func (s *Store) SaveRun(_ context.Context, run *vfstore.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]bool, len(run.NewClaims))
	for _, c := range run.NewClaims {
		if _, exists := s.claims[c.ID.String()]; exists {
			return valueflow.ErrAlreadyExists
		}
		known[c.ID.String()] = true
	}
	for _, c := range run.Claims {
		if _, exists := s.claims[c.ID.String()]; !exists {
			return valueflow.ErrClaimNotFound
		}
	}
	for _, e := range run.ClaimEvents {
		if _, exists := s.claims[e.ClaimID.String()]; !exists && !known[e.ClaimID.String()] {
			return valueflow.ErrClaimNotFound
		}
	}
	if d := run.Distribution; d != nil {
		if _, exists := s.distributions[d.ID.String()]; exists {
			return valueflow.ErrAlreadyExists
		}
	}

	for _, c := range run.NewClaims {
		cp := *c
		s.claims[c.ID.String()] = &cp
		s.claimSeq = append(s.claimSeq, c.ID.String())
	}
	for _, c := range run.Claims {
		cp := *c
		s.claims[c.ID.String()] = &cp
	}
	for _, e := range run.ClaimEvents {
		cp := *e
		s.claimEvents = append(s.claimEvents, &cp)
	}
	if d := run.Distribution; d != nil {
		s.distributions[d.ID.String()] = cloneDistribution(d)
		s.distSeq = append(s.distSeq, d.ID.String())
	}
	return nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

// page applies limit/offset to a result slice.
func page[T any](result []T, limit, offset int) []T {
	start := offset
	if start > len(result) {
		start = len(result)
	}
	end := start + limit
	if limit == 0 || end > len(result) {
		end = len(result)
	}
	return result[start:end]
}
