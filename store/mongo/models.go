package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/grove"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/types"
	"github.com/xraph/valueflow/valueequation"
)

// ==================== Graph models ====================

type resourceModel struct {
	grove.BaseModel `grove:"table:valueflow_resources"`

	ID                string          `grove:"id,pk"                 bson:"_id"`
	Name              string          `grove:"name"                  bson:"name"`
	ResourceTypeID    string          `grove:"resource_type_id"      bson:"resource_type_id"`
	ContextAgent      string          `grove:"context_agent"         bson:"context_agent"`
	Quantity          bson.Decimal128 `grove:"quantity"              bson:"quantity"`
	Unit              string          `grove:"unit"                  bson:"unit"`
	ValuePerUnit      bson.Decimal128 `grove:"value_per_unit"        bson:"value_per_unit"`
	ValuePerUnitOfUse bson.Decimal128 `grove:"value_per_unit_of_use" bson:"value_per_unit_of_use"`
	StageID           string          `grove:"stage_id"              bson:"stage_id"`
	ExchangeStageID   string          `grove:"exchange_stage_id"     bson:"exchange_stage_id"`
	CreatedAt         time.Time       `grove:"created_at"            bson:"created_at"`
	UpdatedAt         time.Time       `grove:"updated_at"            bson:"updated_at"`
}

func toResourceModel(r *graph.Resource) (*resourceModel, error) {
	var c codec
	m := &resourceModel{
		ID:                r.ID.String(),
		Name:              r.Name,
		ResourceTypeID:    r.ResourceTypeID,
		ContextAgent:      r.ContextAgent.String(),
		Quantity:          c.dec128(r.Quantity),
		Unit:              r.Unit,
		ValuePerUnit:      c.dec128(r.ValuePerUnit),
		ValuePerUnitOfUse: c.dec128(r.ValuePerUnitOfUse),
		StageID:           r.StageID,
		ExchangeStageID:   r.ExchangeStageID,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	return m, c.err
}

func fromResourceModel(m *resourceModel) (*graph.Resource, error) {
	var c codec
	r := &graph.Resource{
		Entity:            types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                c.id(m.ID, id.PrefixResource),
		Name:              m.Name,
		ResourceTypeID:    m.ResourceTypeID,
		ContextAgent:      c.optionalID(m.ContextAgent, id.PrefixAgent),
		Quantity:          c.decimal(m.Quantity),
		Unit:              m.Unit,
		ValuePerUnit:      c.decimal(m.ValuePerUnit),
		ValuePerUnitOfUse: c.decimal(m.ValuePerUnitOfUse),
		StageID:           m.StageID,
		ExchangeStageID:   m.ExchangeStageID,
	}
	return r, c.err
}

type processModel struct {
	grove.BaseModel `grove:"table:valueflow_processes"`

	ID            string    `grove:"id,pk"           bson:"_id"`
	Name          string    `grove:"name"            bson:"name"`
	ProcessTypeID string    `grove:"process_type_id" bson:"process_type_id"`
	ContextAgent  string    `grove:"context_agent"   bson:"context_agent"`
	Start         time.Time `grove:"start_at"        bson:"start_at"`
	End           time.Time `grove:"end_at"          bson:"end_at"`
	CreatedAt     time.Time `grove:"created_at"      bson:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"      bson:"updated_at"`
}

func toProcessModel(p *graph.Process) *processModel {
	return &processModel{
		ID:            p.ID.String(),
		Name:          p.Name,
		ProcessTypeID: p.ProcessTypeID,
		ContextAgent:  p.ContextAgent.String(),
		Start:         p.Start,
		End:           p.End,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func fromProcessModel(m *processModel) (*graph.Process, error) {
	var c codec
	p := &graph.Process{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            c.id(m.ID, id.PrefixProcess),
		Name:          m.Name,
		ProcessTypeID: m.ProcessTypeID,
		ContextAgent:  c.optionalID(m.ContextAgent, id.PrefixAgent),
		Start:         m.Start,
		End:           m.End,
	}
	return p, c.err
}

type exchangeModel struct {
	grove.BaseModel `grove:"table:valueflow_exchanges"`

	ID             string    `grove:"id,pk"            bson:"_id"`
	Name           string    `grove:"name"             bson:"name"`
	ExchangeTypeID string    `grove:"exchange_type_id" bson:"exchange_type_id"`
	ContextAgent   string    `grove:"context_agent"    bson:"context_agent"`
	Date           time.Time `grove:"date"             bson:"date"`
	CreatedAt      time.Time `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"       bson:"updated_at"`
}

func toExchangeModel(x *graph.Exchange) *exchangeModel {
	return &exchangeModel{
		ID:             x.ID.String(),
		Name:           x.Name,
		ExchangeTypeID: x.ExchangeTypeID,
		ContextAgent:   x.ContextAgent.String(),
		Date:           x.Date,
		CreatedAt:      x.CreatedAt,
		UpdatedAt:      x.UpdatedAt,
	}
}

func fromExchangeModel(m *exchangeModel) (*graph.Exchange, error) {
	var c codec
	x := &graph.Exchange{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             c.id(m.ID, id.PrefixExchange),
		Name:           m.Name,
		ExchangeTypeID: m.ExchangeTypeID,
		ContextAgent:   c.optionalID(m.ContextAgent, id.PrefixAgent),
		Date:           m.Date,
	}
	return x, c.err
}

type eventModel struct {
	grove.BaseModel `grove:"table:valueflow_events"`

	ID             string          `grove:"id,pk"            bson:"_id"`
	Type           string          `grove:"type"             bson:"type"`
	Date           time.Time       `grove:"date"             bson:"date"`
	FromAgent      string          `grove:"from_agent"       bson:"from_agent,omitempty"`
	ToAgent        string          `grove:"to_agent"         bson:"to_agent,omitempty"`
	ContextAgent   string          `grove:"context_agent"    bson:"context_agent,omitempty"`
	ResourceID     string          `grove:"resource_id"      bson:"resource_id,omitempty"`
	ResourceTypeID string          `grove:"resource_type_id" bson:"resource_type_id,omitempty"`
	ProcessID      string          `grove:"process_id"       bson:"process_id,omitempty"`
	ExchangeID     string          `grove:"exchange_id"      bson:"exchange_id,omitempty"`
	Quantity       bson.Decimal128 `grove:"quantity"         bson:"quantity"`
	Unit           string          `grove:"unit"             bson:"unit,omitempty"`
	Value          bson.Decimal128 `grove:"value"            bson:"value"`
	UnitValue      bson.Decimal128 `grove:"unit_value"       bson:"unit_value"`
	Price          bson.Decimal128 `grove:"price"            bson:"price"`
	StageID        string          `grove:"stage_id"         bson:"stage_id,omitempty"`
	IsContribution bool            `grove:"is_contribution"  bson:"is_contribution"`
	IsToDistribute bool            `grove:"is_to_distribute" bson:"is_to_distribute"`
	Note           string          `grove:"note"             bson:"note,omitempty"`
	CreatedAt      time.Time       `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"       bson:"updated_at"`
}

func toEventModel(e *graph.Event) (*eventModel, error) {
	var c codec
	m := &eventModel{
		ID:             e.ID.String(),
		Type:           string(e.Type),
		Date:           e.Date,
		FromAgent:      e.FromAgent.String(),
		ToAgent:        e.ToAgent.String(),
		ContextAgent:   e.ContextAgent.String(),
		ResourceID:     e.ResourceID.String(),
		ResourceTypeID: e.ResourceTypeID,
		ProcessID:      e.ProcessID.String(),
		ExchangeID:     e.ExchangeID.String(),
		Quantity:       c.dec128(e.Quantity),
		Unit:           e.Unit,
		Value:          c.dec128(e.Value),
		UnitValue:      c.dec128(e.UnitValue),
		Price:          c.dec128(e.Price),
		StageID:        e.StageID,
		IsContribution: e.IsContribution,
		IsToDistribute: e.IsToDistribute,
		Note:           e.Note,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
	return m, c.err
}

func fromEventModel(m *eventModel) (*graph.Event, error) {
	var c codec
	e := &graph.Event{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             c.id(m.ID, id.PrefixEvent),
		Type:           graph.EventType(m.Type),
		Date:           m.Date,
		FromAgent:      c.optionalID(m.FromAgent, id.PrefixAgent),
		ToAgent:        c.optionalID(m.ToAgent, id.PrefixAgent),
		ContextAgent:   c.optionalID(m.ContextAgent, id.PrefixAgent),
		ResourceID:     c.optionalID(m.ResourceID, id.PrefixResource),
		ResourceTypeID: m.ResourceTypeID,
		ProcessID:      c.optionalID(m.ProcessID, id.PrefixProcess),
		ExchangeID:     c.optionalID(m.ExchangeID, id.PrefixExchange),
		Quantity:       c.decimal(m.Quantity),
		Unit:           m.Unit,
		Value:          c.decimal(m.Value),
		UnitValue:      c.decimal(m.UnitValue),
		Price:          c.decimal(m.Price),
		StageID:        m.StageID,
		IsContribution: m.IsContribution,
		IsToDistribute: m.IsToDistribute,
		Note:           m.Note,
	}
	return e, c.err
}

// ==================== Value equation models ====================

type valueEquationModel struct {
	grove.BaseModel `grove:"table:valueflow_value_equations"`

	ID                 string        `grove:"id,pk"               bson:"_id"`
	Name               string        `grove:"name"                bson:"name"`
	Description        string        `grove:"description"         bson:"description,omitempty"`
	ContextAgent       string        `grove:"context_agent"       bson:"context_agent"`
	PercentageBehavior string        `grove:"percentage_behavior" bson:"percentage_behavior"`
	Live               bool          `grove:"live"                bson:"live"`
	Buckets            []bucketModel `grove:"buckets"             bson:"buckets"`
	CreatedAt          time.Time     `grove:"created_at"          bson:"created_at"`
	UpdatedAt          time.Time     `grove:"updated_at"          bson:"updated_at"`
}

type bucketModel struct {
	ID                string            `bson:"id"`
	Name              string            `bson:"name"`
	Sequence          int               `bson:"sequence"`
	Percentage        bson.Decimal128   `bson:"percentage"`
	DistributionAgent string            `bson:"distribution_agent,omitempty"`
	FilterMethod      string            `bson:"filter_method,omitempty"`
	Rules             []bucketRuleModel `bson:"rules,omitempty"`
}

type bucketRuleModel struct {
	ID                    string   `bson:"id"`
	EventType             string   `bson:"event_type"`
	ProcessTypes          []string `bson:"process_types,omitempty"`
	ResourceTypes         []string `bson:"resource_types,omitempty"`
	ClaimCreationEquation string   `bson:"claim_creation_equation"`
	ClaimRuleType         string   `bson:"claim_rule_type"`
}

func toValueEquationModel(ve *valueequation.ValueEquation) (*valueEquationModel, error) {
	var c codec
	buckets := make([]bucketModel, len(ve.Buckets))
	for i, b := range ve.Buckets {
		rules := make([]bucketRuleModel, len(b.Rules))
		for j, r := range b.Rules {
			rules[j] = bucketRuleModel{
				ID:                    r.ID.String(),
				EventType:             string(r.EventType),
				ProcessTypes:          r.ProcessTypes,
				ResourceTypes:         r.ResourceTypes,
				ClaimCreationEquation: r.ClaimCreationEquation,
				ClaimRuleType:         string(r.ClaimRuleType),
			}
		}
		buckets[i] = bucketModel{
			ID:                b.ID.String(),
			Name:              b.Name,
			Sequence:          b.Sequence,
			Percentage:        c.dec128(b.Percentage),
			DistributionAgent: b.DistributionAgent.String(),
			FilterMethod:      string(b.FilterMethod),
			Rules:             rules,
		}
	}
	m := &valueEquationModel{
		ID:                 ve.ID.String(),
		Name:               ve.Name,
		Description:        ve.Description,
		ContextAgent:       ve.ContextAgent.String(),
		PercentageBehavior: string(ve.PercentageBehavior),
		Live:               ve.Live,
		Buckets:            buckets,
		CreatedAt:          ve.CreatedAt,
		UpdatedAt:          ve.UpdatedAt,
	}
	return m, c.err
}

func fromValueEquationModel(m *valueEquationModel) (*valueequation.ValueEquation, error) {
	var c codec
	ve := &valueequation.ValueEquation{
		Entity:             types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                 c.id(m.ID, id.PrefixValueEquation),
		Name:               m.Name,
		Description:        m.Description,
		ContextAgent:       c.optionalID(m.ContextAgent, id.PrefixAgent),
		PercentageBehavior: valueequation.PercentageBehavior(m.PercentageBehavior),
		Live:               m.Live,
		Buckets:            make([]valueequation.Bucket, len(m.Buckets)),
	}
	for i, b := range m.Buckets {
		rules := make([]valueequation.BucketRule, len(b.Rules))
		for j, r := range b.Rules {
			rules[j] = valueequation.BucketRule{
				ID:                    c.id(r.ID, id.PrefixBucketRule),
				EventType:             graph.EventType(r.EventType),
				ProcessTypes:          r.ProcessTypes,
				ResourceTypes:         r.ResourceTypes,
				ClaimCreationEquation: r.ClaimCreationEquation,
				ClaimRuleType:         claim.RuleType(r.ClaimRuleType),
			}
		}
		ve.Buckets[i] = valueequation.Bucket{
			ID:                c.id(b.ID, id.PrefixBucket),
			Name:              b.Name,
			Sequence:          b.Sequence,
			Percentage:        c.decimal(b.Percentage),
			DistributionAgent: c.optionalID(b.DistributionAgent, id.PrefixAgent),
			FilterMethod:      valueequation.FilterMethod(b.FilterMethod),
			Rules:             rules,
		}
	}
	return ve, c.err
}

// ==================== Claim models ====================

type claimModel struct {
	grove.BaseModel `grove:"table:valueflow_claims"`

	ID              string          `grove:"id,pk"             bson:"_id"`
	ValueEquationID string          `grove:"value_equation_id" bson:"value_equation_id"`
	BucketRuleID    string          `grove:"bucket_rule_id"    bson:"bucket_rule_id"`
	EventID         string          `grove:"event_id"          bson:"event_id"`
	RuleType        string          `grove:"rule_type"         bson:"rule_type"`
	HasAgent        string          `grove:"has_agent"         bson:"has_agent"`
	AgainstAgent    string          `grove:"against_agent"     bson:"against_agent"`
	ContextAgent    string          `grove:"context_agent"     bson:"context_agent"`
	Value           bson.Decimal128 `grove:"value"             bson:"value"`
	OriginalValue   bson.Decimal128 `grove:"original_value"    bson:"original_value"`
	ClaimDate       time.Time       `grove:"claim_date"        bson:"claim_date"`
	CreatedAt       time.Time       `grove:"created_at"        bson:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"        bson:"updated_at"`
}

func toClaimModel(cl *claim.Claim) (*claimModel, error) {
	var c codec
	m := &claimModel{
		ID:              cl.ID.String(),
		ValueEquationID: cl.ValueEquationID.String(),
		BucketRuleID:    cl.BucketRuleID.String(),
		EventID:         cl.EventID.String(),
		RuleType:        string(cl.RuleType),
		HasAgent:        cl.HasAgent.String(),
		AgainstAgent:    cl.AgainstAgent.String(),
		ContextAgent:    cl.ContextAgent.String(),
		Value:           c.dec128(cl.Value),
		OriginalValue:   c.dec128(cl.OriginalValue),
		ClaimDate:       cl.ClaimDate,
		CreatedAt:       cl.CreatedAt,
		UpdatedAt:       cl.UpdatedAt,
	}
	return m, c.err
}

func fromClaimModel(m *claimModel) (*claim.Claim, error) {
	var c codec
	cl := &claim.Claim{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              c.id(m.ID, id.PrefixClaim),
		ValueEquationID: c.optionalID(m.ValueEquationID, id.PrefixValueEquation),
		BucketRuleID:    c.optionalID(m.BucketRuleID, id.PrefixBucketRule),
		EventID:         c.id(m.EventID, id.PrefixEvent),
		RuleType:        claim.RuleType(m.RuleType),
		HasAgent:        c.optionalID(m.HasAgent, id.PrefixAgent),
		AgainstAgent:    c.optionalID(m.AgainstAgent, id.PrefixAgent),
		ContextAgent:    c.optionalID(m.ContextAgent, id.PrefixAgent),
		Value:           c.decimal(m.Value),
		OriginalValue:   c.decimal(m.OriginalValue),
		ClaimDate:       m.ClaimDate,
	}
	return cl, c.err
}

type claimEventModel struct {
	grove.BaseModel `grove:"table:valueflow_claim_events"`

	ID                  string          `grove:"id,pk"                 bson:"_id"`
	ClaimID             string          `grove:"claim_id"              bson:"claim_id"`
	EventID             string          `grove:"event_id"              bson:"event_id,omitempty"`
	DistributionEventID string          `grove:"distribution_event_id" bson:"distribution_event_id,omitempty"`
	Direction           string          `grove:"direction"             bson:"direction"`
	Value               bson.Decimal128 `grove:"value"                 bson:"value"`
	Date                time.Time       `grove:"date"                  bson:"date"`
	CreatedAt           time.Time       `grove:"created_at"            bson:"created_at"`
}

func toClaimEventModel(e *claim.Event) (*claimEventModel, error) {
	var c codec
	m := &claimEventModel{
		ID:                  e.ID.String(),
		ClaimID:             e.ClaimID.String(),
		EventID:             e.EventID.String(),
		DistributionEventID: e.DistributionEventID.String(),
		Direction:           string(e.Direction),
		Value:               c.dec128(e.Value),
		Date:                e.Date,
		CreatedAt:           e.CreatedAt,
	}
	return m, c.err
}

func fromClaimEventModel(m *claimEventModel) (*claim.Event, error) {
	var c codec
	e := &claim.Event{
		Entity:              types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.CreatedAt},
		ID:                  c.id(m.ID, id.PrefixClaimEvent),
		ClaimID:             c.id(m.ClaimID, id.PrefixClaim),
		EventID:             c.optionalID(m.EventID, id.PrefixEvent),
		DistributionEventID: c.optionalID(m.DistributionEventID, id.PrefixDistributionEvent),
		Direction:           claim.Direction(m.Direction),
		Value:               c.decimal(m.Value),
		Date:                m.Date,
	}
	return e, c.err
}

// ==================== Distribution models ====================

// distributionModel embeds the distribution events. The configuration
// snapshot is kept as its JSON encoding so it round-trips exactly.
type distributionModel struct {
	grove.BaseModel `grove:"table:valueflow_distributions"`

	ID              string                   `grove:"id,pk"             bson:"_id"`
	ValueEquationID string                   `grove:"value_equation_id" bson:"value_equation_id"`
	ContextAgent    string                   `grove:"context_agent"     bson:"context_agent"`
	Date            time.Time                `grove:"date"              bson:"date"`
	Currency        string                   `grove:"currency"          bson:"currency"`
	Amount          bson.Decimal128          `grove:"amount"            bson:"amount"`
	Distributed     bson.Decimal128          `grove:"distributed"       bson:"distributed"`
	Undistributed   bson.Decimal128          `grove:"undistributed"     bson:"undistributed"`
	IncomeEventIDs  []string                 `grove:"income_event_ids"  bson:"income_event_ids,omitempty"`
	Snapshot        string                   `grove:"snapshot"          bson:"snapshot"`
	Events          []distributionEventModel `grove:"events"            bson:"events"`
	Disbursement    *disbursementModel       `grove:"disbursement"      bson:"disbursement,omitempty"`
	CreatedAt       time.Time                `grove:"created_at"        bson:"created_at"`
	UpdatedAt       time.Time                `grove:"updated_at"        bson:"updated_at"`
}

type distributionEventModel struct {
	ID            string          `bson:"id"`
	FromAgent     string          `bson:"from_agent"`
	ToAgent       string          `bson:"to_agent"`
	Quantity      bson.Decimal128 `bson:"quantity"`
	Date          time.Time       `bson:"date"`
	ClaimEventIDs []string        `bson:"claim_event_ids,omitempty"`
	CreatedAt     time.Time       `bson:"created_at"`
}

type disbursementModel struct {
	ID         string          `bson:"id"`
	ResourceID string          `bson:"resource_id"`
	FromAgent  string          `bson:"from_agent"`
	Quantity   bson.Decimal128 `bson:"quantity"`
	Date       time.Time       `bson:"date"`
	CreatedAt  time.Time       `bson:"created_at"`
}

func toDistributionModel(d *distribution.Distribution) (*distributionModel, error) {
	var c codec
	snapshot, err := d.Snapshot.Marshal()
	if err != nil {
		return nil, err
	}
	events := make([]distributionEventModel, len(d.Events))
	for i, e := range d.Events {
		events[i] = distributionEventModel{
			ID:            e.ID.String(),
			FromAgent:     e.FromAgent.String(),
			ToAgent:       e.ToAgent.String(),
			Quantity:      c.dec128(e.Quantity),
			Date:          e.Date,
			ClaimEventIDs: idStrings(e.ClaimEventIDs),
			CreatedAt:     e.CreatedAt,
		}
	}
	m := &distributionModel{
		ID:              d.ID.String(),
		ValueEquationID: d.ValueEquationID.String(),
		ContextAgent:    d.ContextAgent.String(),
		Date:            d.Date,
		Currency:        d.Currency,
		Amount:          c.dec128(d.Amount),
		Distributed:     c.dec128(d.Distributed),
		Undistributed:   c.dec128(d.Undistributed),
		IncomeEventIDs:  idStrings(d.IncomeEventIDs),
		Snapshot:        string(snapshot),
		Events:          events,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if disb := d.Disbursement; disb != nil {
		m.Disbursement = &disbursementModel{
			ID:         disb.ID.String(),
			ResourceID: disb.ResourceID.String(),
			FromAgent:  disb.FromAgent.String(),
			Quantity:   c.dec128(disb.Quantity),
			Date:       disb.Date,
			CreatedAt:  disb.CreatedAt,
		}
	}
	return m, c.err
}

func fromDistributionModel(m *distributionModel) (*distribution.Distribution, error) {
	var c codec
	distID := c.id(m.ID, id.PrefixDistribution)
	d := &distribution.Distribution{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              distID,
		ValueEquationID: c.optionalID(m.ValueEquationID, id.PrefixValueEquation),
		ContextAgent:    c.optionalID(m.ContextAgent, id.PrefixAgent),
		Date:            m.Date,
		Currency:        m.Currency,
		Amount:          c.decimal(m.Amount),
		Distributed:     c.decimal(m.Distributed),
		Undistributed:   c.decimal(m.Undistributed),
		IncomeEventIDs:  c.ids(m.IncomeEventIDs, id.PrefixEvent),
		Events:          make([]*distribution.Event, len(m.Events)),
	}
	for i, e := range m.Events {
		d.Events[i] = &distribution.Event{
			Entity:         types.Entity{CreatedAt: e.CreatedAt, UpdatedAt: e.CreatedAt},
			ID:             c.id(e.ID, id.PrefixDistributionEvent),
			DistributionID: distID,
			FromAgent:      c.optionalID(e.FromAgent, id.PrefixAgent),
			ToAgent:        c.id(e.ToAgent, id.PrefixAgent),
			Quantity:       c.decimal(e.Quantity),
			Date:           e.Date,
			ClaimEventIDs:  c.ids(e.ClaimEventIDs, id.PrefixClaimEvent),
		}
	}
	if disb := m.Disbursement; disb != nil {
		d.Disbursement = &distribution.Disbursement{
			Entity:         types.Entity{CreatedAt: disb.CreatedAt, UpdatedAt: disb.CreatedAt},
			ID:             c.id(disb.ID, id.PrefixDisbursement),
			DistributionID: distID,
			ResourceID:     c.id(disb.ResourceID, id.PrefixResource),
			FromAgent:      c.optionalID(disb.FromAgent, id.PrefixAgent),
			Quantity:       c.decimal(disb.Quantity),
			Date:           disb.Date,
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	snapshot, err := distribution.UnmarshalSnapshot([]byte(m.Snapshot))
	if err != nil {
		return nil, fmt.Errorf("valueflow/mongo: decode snapshot: %w", err)
	}
	d.Snapshot = snapshot
	return d, nil
}

// ==================== Helpers ====================

// codec converts between domain values and documents, keeping the first
// conversion error.
type codec struct {
	err error
}

func (c *codec) dec128(d decimal.Decimal) bson.Decimal128 {
	v, err := bson.ParseDecimal128(d.String())
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("valueflow/mongo: encode decimal %s: %w", d, err)
	}
	return v
}

func (c *codec) decimal(v bson.Decimal128) decimal.Decimal {
	if c.err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		c.err = err
	}
	return d
}

func (c *codec) id(s string, prefix id.Prefix) id.ID {
	if c.err != nil {
		return id.Nil
	}
	v, err := id.ParseWithPrefix(s, prefix)
	if err != nil {
		c.err = err
	}
	return v
}

// optionalID maps the empty string to id.Nil.
func (c *codec) optionalID(s string, prefix id.Prefix) id.ID {
	if s == "" {
		return id.Nil
	}
	return c.id(s, prefix)
}

func (c *codec) ids(in []string, prefix id.Prefix) []id.ID {
	if len(in) == 0 {
		return nil
	}
	out := make([]id.ID, len(in))
	for i, s := range in {
		out[i] = c.id(s, prefix)
	}
	return out
}

func idStrings(in []id.ID) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = v.String()
	}
	return out
}
