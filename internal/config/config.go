// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Flat koanf keys, one per field, matched by ARENA_ env vars.
// - Provide New() to build a Config with defaults.
// - External errors are wrapped in ErrLoadConfig or ErrInvalidConfig.
package config

import "time"

// Remote driver names.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// RemoteDriver selects the authoritative store.
	RemoteDriver string `koanf:"remote_driver" validate:"oneof=memory postgres redis"`
	DatabaseURL  string `koanf:"database_url" validate:"required_if=RemoteDriver postgres"`
	RedisURL     string `koanf:"redis_url" validate:"required_if=RemoteDriver redis"`

	// LocalStatePath is the SQLite file holding identity, voted pairs and
	// rate-limit counters. Empty keeps them in memory.
	LocalStatePath string `koanf:"local_state_path"`
	// CatalogPath overrides the bundled candidate catalog.
	CatalogPath string `koanf:"catalog_path"`

	// ChangeQueueSize bounds buffered candidate change events.
	ChangeQueueSize int `koanf:"change_queue_size" validate:"gt=0"`
	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit" validate:"gt=0"`

	// BreakerMaxFailures consecutive remote failures open the breaker for
	// BreakerOpenTimeoutMS.
	BreakerMaxFailures   int `koanf:"breaker_max_failures" validate:"gt=0"`
	BreakerOpenTimeoutMS int `koanf:"breaker_open_timeout_ms" validate:"gt=0"`

	// HTTPRatePerSecond and HTTPBurst throttle requests per client address.
	HTTPRatePerSecond float64 `koanf:"http_rate_per_second" validate:"gt=0"`
	HTTPBurst         int     `koanf:"http_burst" validate:"gt=0"`

	// ReportCapacity bounds the error feed.
	ReportCapacity int `koanf:"report_capacity" validate:"gt=0"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		RemoteDriver:         DriverMemory,
		ChangeQueueSize:      1024,
		MaxLeaderboardLimit:  100,
		BreakerMaxFailures:   5,
		BreakerOpenTimeoutMS: 30_000,
		HTTPRatePerSecond:    20,
		HTTPBurst:            40,
		ReportCapacity:       100,
	}
}

// BreakerOpenTimeout returns BreakerOpenTimeoutMS as a duration.
func (c *Config) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.BreakerOpenTimeoutMS) * time.Millisecond
}
