package main

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/graph/graphtest"
	"github.com/xraph/valueflow/id"
	"github.com/xraph/valueflow/valueequation"
)

//go:embed schema.json
var scenarioSchema string

const scenarioSchemaURL = "https://valueflow.local/schemas/scenario.schema.json"

// Scenario is a small economic graph plus the value equation and inputs to
// run against it. Graph nodes reference each other by name.
type Scenario struct {
	Name          string          `json:"name"`
	Currency      string          `json:"currency"`
	Resources     []resourceSpec  `json:"resources"`
	Processes     []processSpec   `json:"processes"`
	Exchanges     []exchangeSpec  `json:"exchanges"`
	Events        []eventSpec     `json:"events"`
	ValueEquation *equationSpec   `json:"value_equation"`
	Target        *targetSpec     `json:"target"`
	Distribution  *distributeSpec `json:"distribution"`
}

type resourceSpec struct {
	Name              string          `json:"name"`
	Type              string          `json:"type"`
	Quantity          decimal.Decimal `json:"quantity"`
	Unit              string          `json:"unit"`
	ValuePerUnit      decimal.Decimal `json:"value_per_unit"`
	ValuePerUnitOfUse decimal.Decimal `json:"value_per_unit_of_use"`
	Stage             string          `json:"stage"`
	ExchangeStage     string          `json:"exchange_stage"`
}

type processSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type exchangeSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type eventSpec struct {
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Process      string          `json:"process"`
	Exchange     string          `json:"exchange"`
	Resource     string          `json:"resource"`
	ResourceType string          `json:"resource_type"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	Value        decimal.Decimal `json:"value"`
	UnitValue    decimal.Decimal `json:"unit_value"`
	Price        decimal.Decimal `json:"price"`
	Stage        string          `json:"stage"`
	Contribution bool            `json:"contribution"`
	ToDistribute bool            `json:"to_distribute"`
	Note         string          `json:"note"`
}

type equationSpec struct {
	Name               string       `json:"name"`
	PercentageBehavior string       `json:"percentage_behavior"`
	Buckets            []bucketSpec `json:"buckets"`
}

type bucketSpec struct {
	Name         string          `json:"name"`
	Sequence     int             `json:"sequence"`
	Percentage   decimal.Decimal `json:"percentage"`
	Agent        string          `json:"agent"`
	FilterMethod string          `json:"filter_method"`
	Processes    []string        `json:"processes"`
	Exchanges    []string        `json:"exchanges"`
	Shipments    []string        `json:"shipments"`
	Start        string          `json:"start"`
	End          string          `json:"end"`
	Rules        []ruleSpec      `json:"rules"`
}

type ruleSpec struct {
	EventType     string   `json:"event_type"`
	ProcessTypes  []string `json:"process_types"`
	ResourceTypes []string `json:"resource_types"`
	Equation      string   `json:"equation"`
	RuleType      string   `json:"rule_type"`
}

type targetSpec struct {
	Resource string          `json:"resource"`
	Quantity decimal.Decimal `json:"quantity"`
}

type distributeSpec struct {
	Amount              decimal.Decimal `json:"amount"`
	Date                string          `json:"date"`
	Income              []string        `json:"income"`
	Funding             string          `json:"funding"`
	RequireDisbursement bool            `json:"require_disbursement"`
}

// loadScenario reads a YAML, TOML or JSON scenario file and validates it.
func loadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return parseScenario(raw, filepath.Ext(path))
}

// parseScenario decodes raw according to ext, normalizes it to JSON and
// validates it against the scenario schema before decoding.
func parseScenario(raw []byte, ext string) (*Scenario, error) {
	var doc any
	switch strings.ToLower(ext) {
	case ".toml":
		var m map[string]any
		if _, err := toml.Decode(string(raw), &m); err != nil {
			return nil, fmt.Errorf("parse toml scenario: %w", err)
		}
		doc = m
	case ".json":
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse json scenario: %w", err)
		}
	default:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml scenario: %w", err)
		}
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize scenario: %w", err)
	}
	if err := validateScenario(normalized); err != nil {
		return nil, err
	}

	var s Scenario
	if err := json.Unmarshal(normalized, &s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(normalized []byte) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(scenarioSchemaURL, strings.NewReader(scenarioSchema)); err != nil {
		return fmt.Errorf("scenario schema load failed: %w", err)
	}
	schema, err := c.Compile(scenarioSchemaURL)
	if err != nil {
		return fmt.Errorf("scenario schema compile failed: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(normalized))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode scenario: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}
	return nil
}

// world is a scenario recorded into a graph writer, with every name
// resolved to its ID.
type world struct {
	b         *graphtest.Builder
	resources map[string]*graph.Resource
	processes map[string]*graph.Process
	exchanges map[string]*graph.Exchange
	events    map[string]*graph.Event
	labels    map[string]string
}

// build records the scenario graph into w.
func (s *Scenario) build(ctx context.Context, w graph.Writer) (*world, error) {
	wd := &world{
		b:         graphtest.New(ctx, w),
		resources: make(map[string]*graph.Resource),
		processes: make(map[string]*graph.Process),
		exchanges: make(map[string]*graph.Exchange),
		events:    make(map[string]*graph.Event),
		labels:    make(map[string]string),
	}
	wd.labels[wd.b.Context.String()] = "context"

	for _, r := range s.Resources {
		res := wd.b.Resource(graph.Resource{
			Name:              r.Name,
			ResourceTypeID:    firstNonEmpty(r.Type, r.Name),
			Quantity:          r.Quantity,
			Unit:              r.Unit,
			ValuePerUnit:      r.ValuePerUnit,
			ValuePerUnitOfUse: r.ValuePerUnitOfUse,
			StageID:           r.Stage,
			ExchangeStageID:   r.ExchangeStage,
		})
		wd.resources[r.Name] = res
		wd.labels[res.ID.String()] = r.Name
	}
	for _, p := range s.Processes {
		proc := wd.b.Process(graph.Process{Name: p.Name, ProcessTypeID: firstNonEmpty(p.Type, p.Name)})
		wd.processes[p.Name] = proc
		wd.labels[proc.ID.String()] = p.Name
	}
	for _, x := range s.Exchanges {
		xchg := wd.b.Exchange(graph.Exchange{Name: x.Name, ExchangeTypeID: firstNonEmpty(x.Type, x.Name)})
		wd.exchanges[x.Name] = xchg
		wd.labels[xchg.ID.String()] = x.Name
	}
	for i, e := range s.Events {
		ev, err := wd.event(e)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		if e.Name != "" {
			wd.events[e.Name] = ev
			wd.labels[ev.ID.String()] = e.Name
		}
	}
	if err := wd.b.Err(); err != nil {
		return nil, err
	}
	return wd, nil
}

func (wd *world) event(e eventSpec) (*graph.Event, error) {
	ev := graph.Event{
		Type:           graph.EventType(e.Type),
		ResourceTypeID: e.ResourceType,
		Quantity:       e.Quantity,
		Unit:           e.Unit,
		Value:          e.Value,
		UnitValue:      e.UnitValue,
		Price:          e.Price,
		StageID:        e.Stage,
		IsContribution: e.Contribution,
		IsToDistribute: e.ToDistribute,
		Note:           e.Note,
	}
	if e.Process != "" {
		p, ok := wd.processes[e.Process]
		if !ok {
			return nil, fmt.Errorf("unknown process %q", e.Process)
		}
		ev.ProcessID = p.ID
	}
	if e.Exchange != "" {
		x, ok := wd.exchanges[e.Exchange]
		if !ok {
			return nil, fmt.Errorf("unknown exchange %q", e.Exchange)
		}
		ev.ExchangeID = x.ID
	}
	if e.Resource != "" {
		r, ok := wd.resources[e.Resource]
		if !ok {
			return nil, fmt.Errorf("unknown resource %q", e.Resource)
		}
		ev.ResourceID = r.ID
		if ev.ResourceTypeID == "" {
			ev.ResourceTypeID = r.ResourceTypeID
		}
	}
	if e.From != "" {
		ev.FromAgent = wd.agent(e.From)
	}
	switch {
	case e.To != "":
		ev.ToAgent = wd.agent(e.To)
	case e.Contribution || e.ToDistribute:
		ev.ToAgent = wd.b.Context
	}
	return wd.b.Event(ev), nil
}

func (wd *world) agent(name string) id.AgentID {
	a := wd.b.Agent(name)
	wd.labels[a.String()] = name
	return a
}

// label returns the scenario name for an ID, or the ID itself.
func (wd *world) label(v string) string {
	if name, ok := wd.labels[v]; ok {
		return name
	}
	return v
}

// equation converts the scenario's value equation. Bucket filters are
// returned separately, keyed by position, since bucket IDs are assigned
// when the equation is stored.
func (wd *world) equation(s *Scenario) (*valueequation.ValueEquation, []valueequation.Filter, error) {
	spec := s.ValueEquation
	if spec == nil {
		return nil, nil, fmt.Errorf("scenario has no value_equation")
	}
	ve := &valueequation.ValueEquation{
		Name:               firstNonEmpty(spec.Name, s.Name, "scenario"),
		ContextAgent:       wd.b.Context,
		PercentageBehavior: valueequation.PercentageBehavior(firstNonEmpty(spec.PercentageBehavior, string(valueequation.Straight))),
		Live:               true,
		Buckets:            make([]valueequation.Bucket, len(spec.Buckets)),
	}
	filters := make([]valueequation.Filter, len(spec.Buckets))

	for i, b := range spec.Buckets {
		bucket := valueequation.Bucket{
			Name:         b.Name,
			Sequence:     b.Sequence,
			Percentage:   b.Percentage,
			FilterMethod: valueequation.FilterMethod(b.FilterMethod),
		}
		if bucket.Sequence == 0 {
			bucket.Sequence = i + 1
		}
		if b.Agent != "" {
			bucket.DistributionAgent = wd.agent(b.Agent)
		}
		for _, r := range b.Rules {
			bucket.Rules = append(bucket.Rules, valueequation.BucketRule{
				EventType:             graph.EventType(r.EventType),
				ProcessTypes:          r.ProcessTypes,
				ResourceTypes:         r.ResourceTypes,
				ClaimCreationEquation: r.Equation,
				ClaimRuleType:         claim.RuleType(r.RuleType),
			})
		}
		ve.Buckets[i] = bucket

		f, err := wd.filter(b)
		if err != nil {
			return nil, nil, fmt.Errorf("buckets[%d]: %w", i, err)
		}
		filters[i] = f
	}
	return ve, filters, nil
}

func (wd *world) filter(b bucketSpec) (valueequation.Filter, error) {
	var f valueequation.Filter
	for _, name := range b.Processes {
		p, ok := wd.processes[name]
		if !ok {
			return f, fmt.Errorf("unknown process %q", name)
		}
		f.ProcessIDs = append(f.ProcessIDs, p.ID)
	}
	for _, name := range b.Exchanges {
		x, ok := wd.exchanges[name]
		if !ok {
			return f, fmt.Errorf("unknown exchange %q", name)
		}
		f.ExchangeIDs = append(f.ExchangeIDs, x.ID)
	}
	for _, name := range b.Shipments {
		e, ok := wd.events[name]
		if !ok {
			return f, fmt.Errorf("unknown event %q", name)
		}
		f.ShipmentEventIDs = append(f.ShipmentEventIDs, e.ID)
	}
	var err error
	if f.Start, err = parseDate(b.Start); err != nil {
		return f, err
	}
	if f.End, err = parseDate(b.End); err != nil {
		return f, err
	}
	return f, nil
}

// incomeEvents resolves the distribution's named income events.
func (wd *world) incomeEvents(names []string) ([]id.EventID, error) {
	out := make([]id.EventID, 0, len(names))
	for _, name := range names {
		e, ok := wd.events[name]
		if !ok {
			return nil, fmt.Errorf("unknown income event %q", name)
		}
		out = append(out, e.ID)
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
