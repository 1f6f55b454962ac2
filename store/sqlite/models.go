package sqlite

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

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

	ID                string    `grove:"id,pk"`
	Name              string    `grove:"name"`
	ResourceTypeID    string    `grove:"resource_type_id"`
	ContextAgent      string    `grove:"context_agent"`
	Quantity          string    `grove:"quantity"`
	Unit              string    `grove:"unit"`
	ValuePerUnit      string    `grove:"value_per_unit"`
	ValuePerUnitOfUse string    `grove:"value_per_unit_of_use"`
	StageID           string    `grove:"stage_id"`
	ExchangeStageID   string    `grove:"exchange_stage_id"`
	CreatedAt         time.Time `grove:"created_at"`
	UpdatedAt         time.Time `grove:"updated_at"`
}

func toResourceModel(r *graph.Resource) *resourceModel {
	return &resourceModel{
		ID:                r.ID.String(),
		Name:              r.Name,
		ResourceTypeID:    r.ResourceTypeID,
		ContextAgent:      r.ContextAgent.String(),
		Quantity:          r.Quantity.String(),
		Unit:              r.Unit,
		ValuePerUnit:      r.ValuePerUnit.String(),
		ValuePerUnitOfUse: r.ValuePerUnitOfUse.String(),
		StageID:           r.StageID,
		ExchangeStageID:   r.ExchangeStageID,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func fromResourceModel(m *resourceModel) (*graph.Resource, error) {
	var p parser
	r := &graph.Resource{
		Entity:            types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                p.id(m.ID, id.PrefixResource),
		Name:              m.Name,
		ResourceTypeID:    m.ResourceTypeID,
		ContextAgent:      p.optionalID(m.ContextAgent, id.PrefixAgent),
		Quantity:          p.decimal(m.Quantity),
		Unit:              m.Unit,
		ValuePerUnit:      p.decimal(m.ValuePerUnit),
		ValuePerUnitOfUse: p.decimal(m.ValuePerUnitOfUse),
		StageID:           m.StageID,
		ExchangeStageID:   m.ExchangeStageID,
	}
	return r, p.err
}

type processModel struct {
	grove.BaseModel `grove:"table:valueflow_processes"`

	ID            string    `grove:"id,pk"`
	Name          string    `grove:"name"`
	ProcessTypeID string    `grove:"process_type_id"`
	ContextAgent  string    `grove:"context_agent"`
	Start         time.Time `grove:"start_at"`
	End           time.Time `grove:"end_at"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toProcessModel(pr *graph.Process) *processModel {
	return &processModel{
		ID:            pr.ID.String(),
		Name:          pr.Name,
		ProcessTypeID: pr.ProcessTypeID,
		ContextAgent:  pr.ContextAgent.String(),
		Start:         pr.Start,
		End:           pr.End,
		CreatedAt:     pr.CreatedAt,
		UpdatedAt:     pr.UpdatedAt,
	}
}

func fromProcessModel(m *processModel) (*graph.Process, error) {
	var p parser
	pr := &graph.Process{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            p.id(m.ID, id.PrefixProcess),
		Name:          m.Name,
		ProcessTypeID: m.ProcessTypeID,
		ContextAgent:  p.optionalID(m.ContextAgent, id.PrefixAgent),
		Start:         m.Start,
		End:           m.End,
	}
	return pr, p.err
}

type exchangeModel struct {
	grove.BaseModel `grove:"table:valueflow_exchanges"`

	ID             string    `grove:"id,pk"`
	Name           string    `grove:"name"`
	ExchangeTypeID string    `grove:"exchange_type_id"`
	ContextAgent   string    `grove:"context_agent"`
	Date           time.Time `grove:"date"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
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
	var p parser
	x := &graph.Exchange{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             p.id(m.ID, id.PrefixExchange),
		Name:           m.Name,
		ExchangeTypeID: m.ExchangeTypeID,
		ContextAgent:   p.optionalID(m.ContextAgent, id.PrefixAgent),
		Date:           m.Date,
	}
	return x, p.err
}

type eventModel struct {
	grove.BaseModel `grove:"table:valueflow_events"`

	ID             string    `grove:"id,pk"`
	Type           string    `grove:"type"`
	Date           time.Time `grove:"date"`
	FromAgent      string    `grove:"from_agent"`
	ToAgent        string    `grove:"to_agent"`
	ContextAgent   string    `grove:"context_agent"`
	ResourceID     string    `grove:"resource_id"`
	ResourceTypeID string    `grove:"resource_type_id"`
	ProcessID      string    `grove:"process_id"`
	ExchangeID     string    `grove:"exchange_id"`
	Quantity       string    `grove:"quantity"`
	Unit           string    `grove:"unit"`
	Value          string    `grove:"value"`
	UnitValue      string    `grove:"unit_value"`
	Price          string    `grove:"price"`
	StageID        string    `grove:"stage_id"`
	IsContribution bool      `grove:"is_contribution"`
	IsToDistribute bool      `grove:"is_to_distribute"`
	Note           string    `grove:"note"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toEventModel(e *graph.Event) *eventModel {
	return &eventModel{
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
		Quantity:       e.Quantity.String(),
		Unit:           e.Unit,
		Value:          e.Value.String(),
		UnitValue:      e.UnitValue.String(),
		Price:          e.Price.String(),
		StageID:        e.StageID,
		IsContribution: e.IsContribution,
		IsToDistribute: e.IsToDistribute,
		Note:           e.Note,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*graph.Event, error) {
	var p parser
	e := &graph.Event{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             p.id(m.ID, id.PrefixEvent),
		Type:           graph.EventType(m.Type),
		Date:           m.Date,
		FromAgent:      p.optionalID(m.FromAgent, id.PrefixAgent),
		ToAgent:        p.optionalID(m.ToAgent, id.PrefixAgent),
		ContextAgent:   p.optionalID(m.ContextAgent, id.PrefixAgent),
		ResourceID:     p.optionalID(m.ResourceID, id.PrefixResource),
		ResourceTypeID: m.ResourceTypeID,
		ProcessID:      p.optionalID(m.ProcessID, id.PrefixProcess),
		ExchangeID:     p.optionalID(m.ExchangeID, id.PrefixExchange),
		Quantity:       p.decimal(m.Quantity),
		Unit:           m.Unit,
		Value:          p.decimal(m.Value),
		UnitValue:      p.decimal(m.UnitValue),
		Price:          p.decimal(m.Price),
		StageID:        m.StageID,
		IsContribution: m.IsContribution,
		IsToDistribute: m.IsToDistribute,
		Note:           m.Note,
	}
	return e, p.err
}

// ==================== Value equation models ====================

type valueEquationModel struct {
	grove.BaseModel `grove:"table:valueflow_value_equations"`

	ID                 string          `grove:"id,pk"`
	Name               string          `grove:"name"`
	Description        string          `grove:"description"`
	ContextAgent       string          `grove:"context_agent"`
	PercentageBehavior string          `grove:"percentage_behavior"`
	Live               bool            `grove:"live"`
	Buckets            json.RawMessage `grove:"buckets"`
	CreatedAt          time.Time       `grove:"created_at"`
	UpdatedAt          time.Time       `grove:"updated_at"`
}

func toValueEquationModel(ve *valueequation.ValueEquation) (*valueEquationModel, error) {
	buckets, err := json.Marshal(ve.Buckets)
	if err != nil {
		return nil, err
	}
	return &valueEquationModel{
		ID:                 ve.ID.String(),
		Name:               ve.Name,
		Description:        ve.Description,
		ContextAgent:       ve.ContextAgent.String(),
		PercentageBehavior: string(ve.PercentageBehavior),
		Live:               ve.Live,
		Buckets:            buckets,
		CreatedAt:          ve.CreatedAt,
		UpdatedAt:          ve.UpdatedAt,
	}, nil
}

func fromValueEquationModel(m *valueEquationModel) (*valueequation.ValueEquation, error) {
	var p parser
	ve := &valueequation.ValueEquation{
		Entity:             types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                 p.id(m.ID, id.PrefixValueEquation),
		Name:               m.Name,
		Description:        m.Description,
		ContextAgent:       p.optionalID(m.ContextAgent, id.PrefixAgent),
		PercentageBehavior: valueequation.PercentageBehavior(m.PercentageBehavior),
		Live:               m.Live,
	}
	if p.err != nil {
		return nil, p.err
	}
	if len(m.Buckets) > 0 {
		if err := json.Unmarshal(m.Buckets, &ve.Buckets); err != nil {
			return nil, err
		}
	}
	return ve, nil
}

// ==================== Claim models ====================

type claimModel struct {
	grove.BaseModel `grove:"table:valueflow_claims"`

	ID              string    `grove:"id,pk"`
	ValueEquationID string    `grove:"value_equation_id"`
	BucketRuleID    string    `grove:"bucket_rule_id"`
	EventID         string    `grove:"event_id"`
	RuleType        string    `grove:"rule_type"`
	HasAgent        string    `grove:"has_agent"`
	AgainstAgent    string    `grove:"against_agent"`
	ContextAgent    string    `grove:"context_agent"`
	Value           string    `grove:"value"`
	OriginalValue   string    `grove:"original_value"`
	ClaimDate       time.Time `grove:"claim_date"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toClaimModel(c *claim.Claim) *claimModel {
	return &claimModel{
		ID:              c.ID.String(),
		ValueEquationID: c.ValueEquationID.String(),
		BucketRuleID:    c.BucketRuleID.String(),
		EventID:         c.EventID.String(),
		RuleType:        string(c.RuleType),
		HasAgent:        c.HasAgent.String(),
		AgainstAgent:    c.AgainstAgent.String(),
		ContextAgent:    c.ContextAgent.String(),
		Value:           c.Value.String(),
		OriginalValue:   c.OriginalValue.String(),
		ClaimDate:       c.ClaimDate,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func fromClaimModel(m *claimModel) (*claim.Claim, error) {
	var p parser
	c := &claim.Claim{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              p.id(m.ID, id.PrefixClaim),
		ValueEquationID: p.optionalID(m.ValueEquationID, id.PrefixValueEquation),
		BucketRuleID:    p.optionalID(m.BucketRuleID, id.PrefixBucketRule),
		EventID:         p.id(m.EventID, id.PrefixEvent),
		RuleType:        claim.RuleType(m.RuleType),
		HasAgent:        p.optionalID(m.HasAgent, id.PrefixAgent),
		AgainstAgent:    p.optionalID(m.AgainstAgent, id.PrefixAgent),
		ContextAgent:    p.optionalID(m.ContextAgent, id.PrefixAgent),
		Value:           p.decimal(m.Value),
		OriginalValue:   p.decimal(m.OriginalValue),
		ClaimDate:       m.ClaimDate,
	}
	return c, p.err
}

type claimEventModel struct {
	grove.BaseModel `grove:"table:valueflow_claim_events"`

	ID                  string    `grove:"id,pk"`
	ClaimID             string    `grove:"claim_id"`
	EventID             string    `grove:"event_id"`
	DistributionEventID string    `grove:"distribution_event_id"`
	Direction           string    `grove:"direction"`
	Value               string    `grove:"value"`
	Date                time.Time `grove:"date"`
	CreatedAt           time.Time `grove:"created_at"`
}

func toClaimEventModel(e *claim.Event) *claimEventModel {
	return &claimEventModel{
		ID:                  e.ID.String(),
		ClaimID:             e.ClaimID.String(),
		EventID:             e.EventID.String(),
		DistributionEventID: e.DistributionEventID.String(),
		Direction:           string(e.Direction),
		Value:               e.Value.String(),
		Date:                e.Date,
		CreatedAt:           e.CreatedAt,
	}
}

func fromClaimEventModel(m *claimEventModel) (*claim.Event, error) {
	var p parser
	e := &claim.Event{
		Entity:              types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.CreatedAt},
		ID:                  p.id(m.ID, id.PrefixClaimEvent),
		ClaimID:             p.id(m.ClaimID, id.PrefixClaim),
		EventID:             p.optionalID(m.EventID, id.PrefixEvent),
		DistributionEventID: p.optionalID(m.DistributionEventID, id.PrefixDistributionEvent),
		Direction:           claim.Direction(m.Direction),
		Value:               p.decimal(m.Value),
		Date:                m.Date,
	}
	return e, p.err
}

// ==================== Distribution models ====================

type distributionModel struct {
	grove.BaseModel `grove:"table:valueflow_distributions"`

	ID              string          `grove:"id,pk"`
	ValueEquationID string          `grove:"value_equation_id"`
	ContextAgent    string          `grove:"context_agent"`
	Date            time.Time       `grove:"date"`
	Currency        string          `grove:"currency"`
	Amount          string          `grove:"amount"`
	Distributed     string          `grove:"distributed"`
	Undistributed   string          `grove:"undistributed"`
	IncomeEventIDs  json.RawMessage `grove:"income_event_ids"`
	Snapshot        json.RawMessage `grove:"snapshot"`
	Disbursement    json.RawMessage `grove:"disbursement"`
	CreatedAt       time.Time       `grove:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"`
}

func toDistributionModel(d *distribution.Distribution) (*distributionModel, error) {
	income, err := json.Marshal(d.IncomeEventIDs)
	if err != nil {
		return nil, err
	}
	snapshot, err := d.Snapshot.Marshal()
	if err != nil {
		return nil, err
	}
	disb, err := json.Marshal(d.Disbursement)
	if err != nil {
		return nil, err
	}
	return &distributionModel{
		ID:              d.ID.String(),
		ValueEquationID: d.ValueEquationID.String(),
		ContextAgent:    d.ContextAgent.String(),
		Date:            d.Date,
		Currency:        d.Currency,
		Amount:          d.Amount.String(),
		Distributed:     d.Distributed.String(),
		Undistributed:   d.Undistributed.String(),
		IncomeEventIDs:  income,
		Snapshot:        snapshot,
		Disbursement:    disb,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

// fromDistributionModel rebuilds the distribution header. Events are
// attached by the caller.
func fromDistributionModel(m *distributionModel) (*distribution.Distribution, error) {
	var p parser
	d := &distribution.Distribution{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              p.id(m.ID, id.PrefixDistribution),
		ValueEquationID: p.optionalID(m.ValueEquationID, id.PrefixValueEquation),
		ContextAgent:    p.optionalID(m.ContextAgent, id.PrefixAgent),
		Date:            m.Date,
		Currency:        m.Currency,
		Amount:          p.decimal(m.Amount),
		Distributed:     p.decimal(m.Distributed),
		Undistributed:   p.decimal(m.Undistributed),
	}
	if p.err != nil {
		return nil, p.err
	}
	if len(m.IncomeEventIDs) > 0 && string(m.IncomeEventIDs) != "null" {
		if err := json.Unmarshal(m.IncomeEventIDs, &d.IncomeEventIDs); err != nil {
			return nil, err
		}
	}
	snapshot, err := distribution.UnmarshalSnapshot(m.Snapshot)
	if err != nil {
		return nil, err
	}
	d.Snapshot = snapshot
	if len(m.Disbursement) > 0 && string(m.Disbursement) != "null" {
		d.Disbursement = new(distribution.Disbursement)
		if err := json.Unmarshal(m.Disbursement, d.Disbursement); err != nil {
			return nil, err
		}
	}
	return d, nil
}

type distributionEventModel struct {
	grove.BaseModel `grove:"table:valueflow_distribution_events"`

	ID             string          `grove:"id,pk"`
	DistributionID string          `grove:"distribution_id"`
	FromAgent      string          `grove:"from_agent"`
	ToAgent        string          `grove:"to_agent"`
	Quantity       string          `grove:"quantity"`
	Date           time.Time       `grove:"date"`
	ClaimEventIDs  json.RawMessage `grove:"claim_event_ids"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toDistributionEventModel(e *distribution.Event) (*distributionEventModel, error) {
	lines, err := json.Marshal(e.ClaimEventIDs)
	if err != nil {
		return nil, err
	}
	return &distributionEventModel{
		ID:             e.ID.String(),
		DistributionID: e.DistributionID.String(),
		FromAgent:      e.FromAgent.String(),
		ToAgent:        e.ToAgent.String(),
		Quantity:       e.Quantity.String(),
		Date:           e.Date,
		ClaimEventIDs:  lines,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}, nil
}

func fromDistributionEventModel(m *distributionEventModel) (*distribution.Event, error) {
	var p parser
	e := &distribution.Event{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             p.id(m.ID, id.PrefixDistributionEvent),
		DistributionID: p.id(m.DistributionID, id.PrefixDistribution),
		FromAgent:      p.optionalID(m.FromAgent, id.PrefixAgent),
		ToAgent:        p.id(m.ToAgent, id.PrefixAgent),
		Quantity:       p.decimal(m.Quantity),
		Date:           m.Date,
	}
	if p.err != nil {
		return nil, p.err
	}
	if len(m.ClaimEventIDs) > 0 && string(m.ClaimEventIDs) != "null" {
		if err := json.Unmarshal(m.ClaimEventIDs, &e.ClaimEventIDs); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ==================== Helpers ====================

// parser collects the first conversion error so model mapping stays flat.
type parser struct {
	err error
}

func (p *parser) id(s string, prefix id.Prefix) id.ID {
	if p.err != nil {
		return id.Nil
	}
	v, err := id.ParseWithPrefix(s, prefix)
	if err != nil {
		p.err = err
	}
	return v
}

// optionalID maps the empty string to id.Nil.
func (p *parser) optionalID(s string, prefix id.Prefix) id.ID {
	if s == "" {
		return id.Nil
	}
	return p.id(s, prefix)
}

func (p *parser) decimal(s string) decimal.Decimal {
	if p.err != nil || s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.err = err
	}
	return d
}
