package valueflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/graph"
	"github.com/xraph/valueflow/valueequation"
)

// NodeKind identifies the kind of graph node a path entry describes.
type NodeKind string

const (
	NodeResource NodeKind = "resource"
	NodeProcess  NodeKind = "process"
	NodeExchange NodeKind = "exchange"
	NodeEvent    NodeKind = "event"
)

// PathNode is one step of a traversal, kept for audit and explanation.
type PathNode struct {
	Kind  NodeKind        `json:"kind"`
	ID    string          `json:"id"`
	Stage string          `json:"stage,omitempty"`
	Depth int             `json:"depth"`
	Value decimal.Decimal `json:"value"`
	Note  string          `json:"note,omitempty"`
}

// traversal is the working state of one rollup or income-share walk. It is
// threaded through every call instead of annotating graph entities, so no
// scratch state outlives the walk.
//
// Rollups expand each process and value each (resource, stage) at most
// once: finished results are memoized, and a node met again while it is
// still on the path is skipped. The share walk tracks the processes it has
// attributed in visited and the resources it is apportioning by value in
// apportioning.
type traversal struct {
	ctx    context.Context
	engine *Engine
	graph  graph.Provider
	rules  []*valueequation.BucketRule

	visited      map[string]struct{}
	apportioning map[string]struct{}

	active    map[string]struct{}
	values    map[string]decimal.Decimal
	processes map[string]processValue

	nodes *int
	path  *[]PathNode
}

// processValue is a process's combined input value with the events it was
// computed from.
type processValue struct {
	value  decimal.Decimal
	events []*graph.Event
}

func (e *Engine) newTraversal(ctx context.Context, rules []*valueequation.BucketRule) *traversal {
	return &traversal{
		ctx:          ctx,
		engine:       e,
		graph:        e.store,
		rules:        rules,
		visited:      make(map[string]struct{}),
		apportioning: make(map[string]struct{}),
		active:       make(map[string]struct{}),
		values:       make(map[string]decimal.Decimal),
		processes:    make(map[string]processValue),
		nodes:        new(int),
		path:         new([]PathNode),
	}
}

// deeper checks cancellation and the depth and node bounds before a node is
// expanded.
func (t *traversal) deeper(kind NodeKind, nodeID string, depth int) error {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	if depth > t.engine.maxDepth {
		t.engine.logger.Warn("traversal too deep",
			"kind", kind,
			"node", nodeID,
			"depth", depth,
			"max_depth", t.engine.maxDepth,
		)
		return fmt.Errorf("%w: %s %s at depth %d", ErrTraversalTooDeep, kind, nodeID, depth)
	}
	*t.nodes++
	if *t.nodes > t.engine.maxNodes {
		t.engine.logger.Warn("traversal too large",
			"kind", kind,
			"node", nodeID,
			"max_nodes", t.engine.maxNodes,
		)
		return fmt.Errorf("%w: %d nodes at %s %s", ErrTraversalTooLarge, t.engine.maxNodes, kind, nodeID)
	}
	return nil
}

// skip records that a node was not expanded again.
func (t *traversal) skip(kind NodeKind, nodeID, stage string, depth int, value decimal.Decimal) {
	t.record(PathNode{Kind: kind, ID: nodeID, Stage: stage, Depth: depth, Value: value, Note: "skipped: visited"})
	t.engine.logger.Debug("traversal skipped visited node",
		"kind", kind,
		"node", nodeID,
		"depth", depth,
	)
	t.engine.plugins.EmitTraversalSkipped(t.ctx, string(kind), nodeID, "visited")
}

// enter marks a process as attributed by the share walk. It reports false,
// and records the skip, when the walk already attributed it.
func (t *traversal) enter(p *graph.Process, depth int) bool {
	key := p.ID.String()
	if _, seen := t.visited[key]; seen {
		t.skip(NodeProcess, key, p.ProcessTypeID, depth, decimal.Zero)
		return false
	}
	t.visited[key] = struct{}{}
	return true
}

func (t *traversal) record(n PathNode) {
	*t.path = append(*t.path, n)
}

// candidate loads the graph context a bucket rule needs for ev.
func (t *traversal) candidate(ev *graph.Event) (valueequation.Candidate, error) {
	c := valueequation.Candidate{Event: ev}
	if !ev.ProcessID.IsNil() {
		p, err := t.graph.GetProcess(t.ctx, ev.ProcessID)
		if err != nil {
			return c, fmt.Errorf("process of event %s: %w", ev.ID, err)
		}
		c.ProcessType = p.ProcessTypeID
	}
	if !ev.ResourceID.IsNil() {
		r, err := t.graph.GetResource(t.ctx, ev.ResourceID)
		if err != nil {
			return c, fmt.Errorf("resource of event %s: %w", ev.ID, err)
		}
		c.Resource = r
	}
	return c, nil
}

// claimValue prices ev with the most specific matching rule, falling back
// to the event's recorded value when no rule matches.
func (t *traversal) claimValue(ev *graph.Event) (decimal.Decimal, *valueequation.BucketRule, valueequation.Candidate, error) {
	c, err := t.candidate(ev)
	if err != nil {
		return decimal.Zero, nil, c, err
	}
	rule := valueequation.BestRule(t.rules, c)
	if rule == nil {
		return ev.MonetaryValue(), nil, c, nil
	}
	v, err := rule.ComputeClaimValue(c)
	if err != nil {
		return decimal.Zero, rule, c, fmt.Errorf("claim value of event %s: %w", ev.ID, err)
	}
	return v, rule, c, nil
}

// stageOf is the recipe step that scopes a resource's producing processes.
func stageOf(res *graph.Resource, override string) string {
	if override != "" {
		return override
	}
	return res.StageID
}

func inStage(p *graph.Process, stage string) bool {
	return stage == "" || p.ProcessTypeID == stage
}
