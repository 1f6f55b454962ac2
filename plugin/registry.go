package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow/claim"
	"github.com/xraph/valueflow/distribution"
	"github.com/xraph/valueflow/id"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onValueRolledUp       []OnValueRolledUp
	onTraversalSkipped    []OnTraversalSkipped
	onClaimCreated        []OnClaimCreated
	onClaimDischarged     []OnClaimDischarged
	onDistributionCreated []OnDistributionCreated
	onRoundingAdjusted    []OnRoundingAdjusted
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnValueRolledUp); ok {
		r.onValueRolledUp = append(r.onValueRolledUp, v)
	}
	if v, ok := p.(OnTraversalSkipped); ok {
		r.onTraversalSkipped = append(r.onTraversalSkipped, v)
	}
	if v, ok := p.(OnClaimCreated); ok {
		r.onClaimCreated = append(r.onClaimCreated, v)
	}
	if v, ok := p.(OnClaimDischarged); ok {
		r.onClaimDischarged = append(r.onClaimDischarged, v)
	}
	if v, ok := p.(OnDistributionCreated); ok {
		r.onDistributionCreated = append(r.onDistributionCreated, v)
	}
	if v, ok := p.(OnRoundingAdjusted); ok {
		r.onRoundingAdjusted = append(r.onRoundingAdjusted, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// implementedInterfaces returns the hook interfaces implemented by the plugin.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnValueRolledUp)(nil)).Elem(), "OnValueRolledUp")
	checkInterface(reflect.TypeOf((*OnTraversalSkipped)(nil)).Elem(), "OnTraversalSkipped")
	checkInterface(reflect.TypeOf((*OnClaimCreated)(nil)).Elem(), "OnClaimCreated")
	checkInterface(reflect.TypeOf((*OnClaimDischarged)(nil)).Elem(), "OnClaimDischarged")
	checkInterface(reflect.TypeOf((*OnDistributionCreated)(nil)).Elem(), "OnDistributionCreated")
	checkInterface(reflect.TypeOf((*OnRoundingAdjusted)(nil)).Elem(), "OnRoundingAdjusted")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, engine)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitValueRolledUp emits a value rolled up event.
func (r *Registry) EmitValueRolledUp(ctx context.Context, resourceID id.ResourceID, valuePerUnit decimal.Decimal, depth int) {
	r.mu.RLock()
	plugins := r.onValueRolledUp
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnValueRolledUp", func() error {
			return p.OnValueRolledUp(ctx, resourceID, valuePerUnit, depth)
		})
	}
}

// EmitTraversalSkipped emits a traversal skipped event.
func (r *Registry) EmitTraversalSkipped(ctx context.Context, kind, nodeID, reason string) {
	r.mu.RLock()
	plugins := r.onTraversalSkipped
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnTraversalSkipped", func() error {
			return p.OnTraversalSkipped(ctx, kind, nodeID, reason)
		})
	}
}

// EmitClaimCreated emits a claim created event.
func (r *Registry) EmitClaimCreated(ctx context.Context, c *claim.Claim) {
	r.mu.RLock()
	plugins := r.onClaimCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnClaimCreated", func() error {
			return p.OnClaimCreated(ctx, c)
		})
	}
}

// EmitClaimDischarged emits a claim discharged event.
func (r *Registry) EmitClaimDischarged(ctx context.Context, c *claim.Claim, line *claim.Event) {
	r.mu.RLock()
	plugins := r.onClaimDischarged
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnClaimDischarged", func() error {
			return p.OnClaimDischarged(ctx, c, line)
		})
	}
}

// EmitDistributionCreated emits a distribution created event.
func (r *Registry) EmitDistributionCreated(ctx context.Context, d *distribution.Distribution) {
	r.mu.RLock()
	plugins := r.onDistributionCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnDistributionCreated", func() error {
			return p.OnDistributionCreated(ctx, d)
		})
	}
}

// EmitRoundingAdjusted emits a rounding adjusted event.
func (r *Registry) EmitRoundingAdjusted(ctx context.Context, distID id.DistributionID, agent id.AgentID, delta decimal.Decimal) {
	r.mu.RLock()
	plugins := r.onRoundingAdjusted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnRoundingAdjusted", func() error {
			return p.OnRoundingAdjusted(ctx, distID, agent, delta)
		})
	}
}

func (r *Registry) dispatch(ctx context.Context, name, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, name, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", name,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block a distribution run.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
