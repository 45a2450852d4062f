package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NETWORKNAV_CACHE_TTL.
const EnvPrefix = "NETWORKNAV"

var validate = validator.New()

// SetDefaults registers every key with its default. Keys must be known to
// viper for AutomaticEnv to apply during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_open_conns", 25)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.migrate", false)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "networknav-matcher")
	v.SetDefault("nats.queue", "matcher")
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.request_timeout", 5*time.Second)

	v.SetDefault("repository.backend", BackendMemory)
	v.SetDefault("repository.fixtures", "")

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.ttl", 30*time.Minute)
	v.SetDefault("cache.sweep_interval", time.Minute)
	v.SetDefault("cache.prefix", "matches:cache:")

	v.SetDefault("ratelimit.backend", BackendMemory)
	v.SetDefault("ratelimit.limit", 10)
	v.SetDefault("ratelimit.window", time.Hour)

	v.SetDefault("matchstore.backend", BackendMemory)

	v.SetDefault("enrichment.enabled", false)
	v.SetDefault("enrichment.api_key", "")
	v.SetDefault("enrichment.model", "gemini-2.5-flash")
	v.SetDefault("enrichment.temperature", 0.7)
	v.SetDefault("enrichment.timeout", 3*time.Second)
	v.SetDefault("enrichment.breaker.name", "enrichment")
	v.SetDefault("enrichment.breaker.max_requests", 5)
	v.SetDefault("enrichment.breaker.interval", 30*time.Second)
	v.SetDefault("enrichment.breaker.timeout", 60*time.Second)
	v.SetDefault("enrichment.breaker.failure_threshold", 0.8)
	v.SetDefault("enrichment.breaker.min_requests", 5)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadEnvFile loads path into the process environment if it exists.
// Existing variables are not overridden.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load reads the optional config file at path into v and returns the
// validated configuration. An empty path looks for matcher.yaml in the
// working directory and tolerates its absence.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("matcher")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// Validate checks field constraints and the cross-section requirements the
// struct tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Repository.Backend == BackendPostgres && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return errors.New("postgres.dsn is required when repository.backend is postgres")
	}
	if cfg.UsesRedis() && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr is required when a redis backend is selected")
	}
	if cfg.Enrichment.Enabled && strings.TrimSpace(cfg.Enrichment.APIKey) == "" {
		return errors.New("enrichment.api_key is required when enrichment is enabled")
	}
	if cfg.NATS.Enabled && strings.TrimSpace(cfg.NATS.URL) == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	return nil
}
