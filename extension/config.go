package extension

import "time"

// Config holds the valueflow extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.valueflow" or "valueflow" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// MaxDepth bounds graph traversal depth during rollups and income
	// share walks (default: 64).
	MaxDepth int `json:"max_depth" mapstructure:"max_depth" yaml:"max_depth"`

	// MaxNodes bounds how many nodes one traversal may expand. Zero keeps
	// the engine default.
	MaxNodes int `json:"max_nodes" mapstructure:"max_nodes" yaml:"max_nodes"`

	// RedisAddr, when set, serializes distribution runs across processes
	// with a Redis lock instead of the in-process one.
	RedisAddr     string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" mapstructure:"redis_db" yaml:"redis_db"`

	// LockTTL is how long a distribution lock is held before it expires
	// on its own (default: 30s). Only used with RedisAddr.
	LockTTL time.Duration `json:"lock_ttl" mapstructure:"lock_ttl" yaml:"lock_ttl"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth: 64,
		LockTTL:  30 * time.Second,
	}
}
