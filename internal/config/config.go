// Package config provides configuration management for vibecheck.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for tunable settings.
const (
	DefaultAddr           = ":8080"
	DefaultModel          = "gpt-4o-mini"
	DefaultModelBaseURL   = "https://api.openai.com/v1"
	DefaultModelTimeout   = 25 * time.Second
	DefaultFreeDailyLimit = 2
	DefaultCooldownHours  = 6
	DefaultMaxConns       = 8
	DefaultRateLimit      = 30
	DefaultRateWindow     = time.Minute
)

// Config holds all service configuration. Secrets come from the environment;
// tunables may additionally be set via an optional YAML file.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `yaml:"-"`

	// MaxConns is the maximum number of open database connections.
	MaxConns int `yaml:"max_conns"`

	// AuthBaseURL is the identity provider base URL (e.g. https://xyz.supabase.co).
	AuthBaseURL string `yaml:"-"`
	// AuthServiceKey is the service-role key sent as the apikey header.
	AuthServiceKey string `yaml:"-"`

	// ModelAPIKey authenticates against the completion provider.
	ModelAPIKey string `yaml:"-"`
	// ModelBaseURL is the completion provider base URL.
	ModelBaseURL string `yaml:"model_base_url"`
	// Model is the completion model identifier.
	Model string `yaml:"model"`
	// ModelTimeout bounds a single completion call.
	ModelTimeout time.Duration `yaml:"model_timeout"`

	// FreeDailyLimit is the number of analyses a free user gets per UTC day.
	FreeDailyLimit int `yaml:"free_daily_limit"`
	// CooldownHours is the per-scenario resubmission window for free users.
	CooldownHours int `yaml:"cooldown_hours"`

	// BillingWebhookSecret verifies payment provider webhook signatures.
	BillingWebhookSecret string `yaml:"-"`

	// RateLimit is the per-IP request budget per RateWindow. 0 disables limiting.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
	// RedisURL, when set, backs the rate limiter with Redis instead of
	// per-instance memory.
	RedisURL string `yaml:"-"`

	// AllowedOrigins lists origins accepted by the CORS middleware.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Addr:           DefaultAddr,
		MaxConns:       DefaultMaxConns,
		ModelBaseURL:   DefaultModelBaseURL,
		Model:          DefaultModel,
		ModelTimeout:   DefaultModelTimeout,
		FreeDailyLimit: DefaultFreeDailyLimit,
		CooldownHours:  DefaultCooldownHours,
		RateLimit:      DefaultRateLimit,
		RateWindow:     DefaultRateWindow,
	}
}

// Load builds a Config from defaults, an optional YAML file (VIBECHECK_CONFIG),
// and environment variables. Environment variables win.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("VIBECHECK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	setString(&cfg.Addr, "VIBECHECK_ADDR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.AuthBaseURL, "SUPABASE_URL")
	setString(&cfg.AuthServiceKey, "SUPABASE_SERVICE_ROLE_KEY")
	setString(&cfg.ModelAPIKey, "OPENAI_API_KEY")
	setString(&cfg.ModelBaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Model, "OPENAI_MODEL")
	setString(&cfg.BillingWebhookSecret, "BILLING_WEBHOOK_SECRET")
	setString(&cfg.RedisURL, "REDIS_URL")

	setInt(&cfg.FreeDailyLimit, "VIBECHECK_FREE_DAILY_LIMIT")
	setInt(&cfg.CooldownHours, "VIBECHECK_COOLDOWN_HOURS")
	setInt(&cfg.MaxConns, "VIBECHECK_MAX_CONNS")
	setInt(&cfg.RateLimit, "VIBECHECK_RATE_LIMIT")

	if v := os.Getenv("VIBECHECK_DEBUG"); v == "1" || v == "true" {
		cfg.Debug = true
	}
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.AuthBaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.AuthServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required")
	}
	if c.ModelAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.FreeDailyLimit < 0 {
		return fmt.Errorf("free daily limit must be >= 0, got %d", c.FreeDailyLimit)
	}
	if c.CooldownHours <= 0 {
		return fmt.Errorf("cooldown hours must be > 0, got %d", c.CooldownHours)
	}
	return nil
}

// CooldownWindow returns the cooldown duration.
func (c *Config) CooldownWindow() time.Duration {
	return time.Duration(c.CooldownHours) * time.Hour
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
