// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/mauv0809/energy-feeds/internal/ckan"
	"github.com/mauv0809/energy-feeds/internal/fetch"
	"github.com/mauv0809/energy-feeds/internal/ons"
)

// Config holds every environment-driven setting.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	Store       string `envconfig:"STORE" default:"postgres"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"energy.db"`
	Port        int    `envconfig:"PORT" default:"8080"`

	Workers   int    `envconfig:"WORKERS" default:"4"`
	FirstYear int    `envconfig:"FIRST_YEAR" default:"2010"`
	CCEEHost  string `envconfig:"CCEE_HOST" default:"https://dadosabertos.ccee.org.br"`
	ONSBase   string `envconfig:"ONS_BASE_URL" default:"https://ons-aws-prod-opendata.s3.amazonaws.com/dataset"`
	PageSize  int    `envconfig:"PAGE_SIZE" default:"10000"`

	FetchTimeout     time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	FetchMaxAttempts int           `envconfig:"FETCH_MAX_ATTEMPTS" default:"3"`
	FetchBackoffBase time.Duration `envconfig:"FETCH_BACKOFF_BASE" default:"1s"`
	FetchRateLimit   float64       `envconfig:"FETCH_RATE_LIMIT" default:"0"`
	FetchUserAgent   string        `envconfig:"FETCH_USER_AGENT" default:"energy-feeds/1.0"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config from env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE=sqlite")
		}
	default:
		return fmt.Errorf("STORE must be postgres or sqlite, got %q", c.Store)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be positive, got %d", c.Workers)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.FetchMaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be positive, got %d", c.FetchMaxAttempts)
	}
	if c.FirstYear < ons.FirstYear {
		return fmt.Errorf("FIRST_YEAR must be %d or later, got %d", ons.FirstYear, c.FirstYear)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	return nil
}

// Fetch returns the HTTP fetch policy.
func (c *Config) Fetch() fetch.Config {
	return fetch.Config{
		Timeout:     c.FetchTimeout,
		MaxAttempts: c.FetchMaxAttempts,
		BackoffBase: c.FetchBackoffBase,
		RateLimit:   c.FetchRateLimit,
		UserAgent:   c.FetchUserAgent,
	}
}

// PortalHost resolves the CKAN host; institution overrides CCEE_HOST when set.
func (c *Config) PortalHost(institution string) (string, error) {
	if institution == "" {
		return c.CCEEHost, nil
	}
	return ckan.HostFor(institution)
}

// ListenAddr returns the host:port string for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
