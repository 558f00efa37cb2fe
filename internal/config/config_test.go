package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE", "sqlite")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, "energy.db", cfg.SQLitePath)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 2010, cfg.FirstYear)
	assert.Equal(t, 10000, cfg.PageSize)
	assert.Equal(t, "https://dadosabertos.ccee.org.br", cfg.CCEEHost)

	f := cfg.Fetch()
	assert.Equal(t, 30*time.Second, f.Timeout)
	assert.Equal(t, 3, f.MaxAttempts)
	assert.Equal(t, time.Second, f.BackoffBase)
	assert.Zero(t, f.RateLimit)
	assert.Equal(t, ":8080", cfg.ListenAddr())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/energy")
	t.Setenv("WORKERS", "8")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("FETCH_RATE_LIMIT", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 2.5, cfg.FetchRateLimit)
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("STORE", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{Store: "sqlite", SQLitePath: "x.db", Workers: 1, PageSize: 10, FetchMaxAttempts: 3, FirstYear: 2010, Port: 80}
	}

	c := valid()
	assert.NoError(t, c.Validate())

	tests := map[string]func(*Config){
		"unknown store":  func(c *Config) { c.Store = "mysql" },
		"zero workers":   func(c *Config) { c.Workers = 0 },
		"zero page size": func(c *Config) { c.PageSize = 0 },
		"zero attempts":  func(c *Config) { c.FetchMaxAttempts = 0 },
		"early year":     func(c *Config) { c.FirstYear = 1999 },
		"bad port":       func(c *Config) { c.Port = 70000 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestPortalHost(t *testing.T) {
	c := Config{CCEEHost: "http://mirror"}

	h, err := c.PortalHost("")
	require.NoError(t, err)
	assert.Equal(t, "http://mirror", h)

	h, err = c.PortalHost("aneel")
	require.NoError(t, err)
	assert.Equal(t, "https://dadosabertos.aneel.gov.br", h)
}
