// Package config loads matcher configuration from an optional YAML file,
// a .env file and NETWORKNAV_* environment variables, in increasing order
// of precedence.
package config

import (
	"time"

	"github.com/camila-go/networknav-sub000/internal/enrich"
	"github.com/camila-go/networknav-sub000/internal/messaging"
)

// Backends accepted by the *.backend keys.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the full matcher configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	MatchStore MatchStoreConfig `mapstructure:"matchstore"`
}

type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	// Migrate applies embedded migrations on serve start.
	Migrate bool `mapstructure:"migrate"`
}

// NATSConfig enables the request-reply handlers and refresh events.
type NATSConfig struct {
	messaging.NATSConfig `mapstructure:",squash"`

	Enabled        bool          `mapstructure:"enabled"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

type RepositoryConfig struct {
	Backend  string `mapstructure:"backend" validate:"oneof=memory postgres"`
	Fixtures string `mapstructure:"fixtures"`
}

type CacheConfig struct {
	Backend       string        `mapstructure:"backend" validate:"oneof=memory redis"`
	TTL           time.Duration `mapstructure:"ttl" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	Prefix        string        `mapstructure:"prefix"`
}

type RateLimitConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=memory redis"`
	Limit   int           `mapstructure:"limit" validate:"gt=0"`
	Window  time.Duration `mapstructure:"window" validate:"gt=0"`
}

// ScoringConfig overrides category weights, keyed by category name.
type ScoringConfig struct {
	Weights map[string]float64 `mapstructure:"weights" validate:"dive,gte=0"`
}

type EnrichmentConfig struct {
	Enabled     bool                 `mapstructure:"enabled"`
	APIKey      string               `mapstructure:"api_key"`
	Model       string               `mapstructure:"model"`
	Temperature float32              `mapstructure:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration        `mapstructure:"timeout" validate:"gt=0"`
	Breaker     enrich.BreakerConfig `mapstructure:"breaker"`
}

type MatchStoreConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory redis"`
}

// UsesRedis reports whether any component is configured for Redis.
func (c *Config) UsesRedis() bool {
	return c.Cache.Backend == BackendRedis ||
		c.RateLimit.Backend == BackendRedis ||
		c.MatchStore.Backend == BackendRedis
}
