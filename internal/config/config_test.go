package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000, cfg.Exchange.PageSize)
	assert.Equal(t, 10000, cfg.Simulation.Iterations)
	assert.Equal(t, 12*time.Hour, cfg.Simulation.AnchorTime)
	assert.Equal(t, 0.1, cfg.Payoff.PriceRange)
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.PollInterval)
}

func TestLoadWithoutConfigFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Exchange.BaseURL, cfg.Exchange.BaseURL)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
exchange:
  page_size: 500
simulation:
  iterations: 2000
server:
  addr: ":9999"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Exchange.PageSize)
	assert.Equal(t, 2000, cfg.Simulation.Iterations)
	assert.Equal(t, ":9999", cfg.Server.Addr)

	// Unset keys keep their defaults.
	assert.Equal(t, Default().Payoff.PriceRange, cfg.Payoff.PriceRange)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DELTA_API_KEY", "key-from-env")
	t.Setenv("DELTA_BASE_URL", "https://testnet.example")
	t.Setenv("HEDGE_LORDS_DB", "/tmp/override.db")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "key-from-env", cfg.Exchange.APIKey)
	assert.Equal(t, "https://testnet.example", cfg.Exchange.BaseURL)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero page size", func(c *Config) { c.Exchange.PageSize = 0 }},
		{"zero iterations", func(c *Config) { c.Simulation.Iterations = 0 }},
		{"anchor past midnight", func(c *Config) { c.Simulation.AnchorTime = 25 * time.Hour }},
		{"price range too wide", func(c *Config) { c.Payoff.PriceRange = 0.6 }},
		{"price range too narrow", func(c *Config) { c.Payoff.PriceRange = 0.001 }},
		{"zero lot size", func(c *Config) { c.Payoff.LotSize = 0 }},
		{"single grid point", func(c *Config) { c.Payoff.PricePoints = 1 }},
		{"zero poll interval", func(c *Config) { c.Stream.PollInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("payoff:\n  price_range: 0.9\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
