package extension

import (
	"time"

	"github.com/xraph/valueflow"
	"github.com/xraph/valueflow/lock"
	"github.com/xraph/valueflow/plugin"
	"github.com/xraph/valueflow/store"
)

// Option configures the valueflow Forge extension.
type Option func(*Extension)

// WithStore sets the store for the valueflow engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a valueflow.Option through to the underlying engine.
func WithEngineOption(opt valueflow.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a valueflow plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, valueflow.WithPlugin(p))
	}
}

// WithLocker sets the distribution lock, overriding RedisAddr.
func WithLocker(l lock.Locker) Option {
	return func(e *Extension) { e.locker = l }
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithMaxDepth bounds traversal depth.
func WithMaxDepth(depth int) Option {
	return func(e *Extension) { e.config.MaxDepth = depth }
}

// WithMaxNodes bounds how many nodes one traversal may expand.
func WithMaxNodes(n int) Option {
	return func(e *Extension) { e.config.MaxNodes = n }
}

// WithRedisLock serializes distribution runs through the Redis server at addr.
func WithRedisLock(addr, password string, db int) Option {
	return func(e *Extension) {
		e.config.RedisAddr = addr
		e.config.RedisPassword = password
		e.config.RedisDB = db
	}
}

// WithLockTTL sets how long a Redis distribution lock may be held.
func WithLockTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.LockTTL = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
