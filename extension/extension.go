// Package extension provides the Forge extension adapter for valueflow.
//
// It implements the forge.Extension interface to integrate the valueflow
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.valueflow" or
// "valueflow" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/valueflow"
	"github.com/xraph/valueflow/lock"
	"github.com/xraph/valueflow/store"
	"github.com/xraph/valueflow/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "valueflow"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Value rollup and contribution-based income distribution"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts valueflow as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *valueflow.Engine
	store      store.Store
	locker     lock.Locker
	engineOpts []valueflow.Option
}

// New creates a new valueflow Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *valueflow.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = valueflow.New(e.store, e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*valueflow.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("valueflow: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("valueflow: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if r, ok := e.locker.(*lock.Redis); ok {
		return r.Ping(ctx)
	}
	return nil
}

// buildEngineOpts constructs valueflow.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []valueflow.Option {
	opts := make([]valueflow.Option, 0, len(e.engineOpts)+3)

	if e.config.MaxDepth > 0 {
		opts = append(opts, valueflow.WithMaxDepth(e.config.MaxDepth))
	}
	if e.config.MaxNodes > 0 {
		opts = append(opts, valueflow.WithMaxNodes(e.config.MaxNodes))
	}

	if e.locker == nil && e.config.RedisAddr != "" {
		e.locker = lock.NewRedisAddr(e.config.RedisAddr, e.config.RedisPassword, e.config.RedisDB, e.config.LockTTL)
	}
	if e.locker != nil {
		opts = append(opts, valueflow.WithLocker(e.locker))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("valueflow: configuration is required but not found in config files; " +
				"ensure 'extensions.valueflow' or 'valueflow' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("valueflow: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("max_depth", e.config.MaxDepth),
		forge.F("max_nodes", e.config.MaxNodes),
		forge.F("redis_lock", e.config.RedisAddr != ""),
		forge.F("lock_ttl", e.config.LockTTL),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.valueflow", "valueflow"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("valueflow: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("valueflow: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = defaults.MaxDepth
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = defaults.LockTTL
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if yamlConfig.RedisAddr == "" && programmaticConfig.RedisAddr != "" {
		yamlConfig.RedisAddr = programmaticConfig.RedisAddr
		yamlConfig.RedisPassword = programmaticConfig.RedisPassword
		yamlConfig.RedisDB = programmaticConfig.RedisDB
	}
	if yamlConfig.MaxDepth == 0 && programmaticConfig.MaxDepth != 0 {
		yamlConfig.MaxDepth = programmaticConfig.MaxDepth
	}
	if yamlConfig.MaxNodes == 0 && programmaticConfig.MaxNodes != 0 {
		yamlConfig.MaxNodes = programmaticConfig.MaxNodes
	}
	if yamlConfig.LockTTL == 0 && programmaticConfig.LockTTL != 0 {
		yamlConfig.LockTTL = programmaticConfig.LockTTL
	}
	return mergeWithDefaults(yamlConfig)
}
