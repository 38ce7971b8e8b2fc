// Package config provides configuration management for the pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Payoff     PayoffConfig     `mapstructure:"payoff"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Server     ServerConfig     `mapstructure:"server"`
}

// ExchangeConfig holds exchange connectivity configuration.
type ExchangeConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	WSURL       string  `mapstructure:"ws_url"`
	APIKey      string  `mapstructure:"api_key"`
	APISecret   string  `mapstructure:"api_secret"`
	PageSize    int     `mapstructure:"page_size"`    // max bars per history request
	HistoryRate float64 `mapstructure:"history_rate"` // history requests per second
	MaxRetries  int     `mapstructure:"max_retries"`  // connection retry attempts
}

// DatabaseConfig holds the SQLite store configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SimulationConfig holds Monte Carlo simulation configuration.
type SimulationConfig struct {
	Directory  string        `mapstructure:"directory"`   // cache artifact directory
	Iterations int           `mapstructure:"iterations"`  // default iteration count
	AnchorTime time.Duration `mapstructure:"anchor_time"` // time of day bars must align to
	Workers    int           `mapstructure:"workers"`     // simulation worker pool size
}

// PayoffConfig holds payoff aggregation defaults.
type PayoffConfig struct {
	PriceRange  float64 `mapstructure:"price_range"`  // default grid half-range, fraction
	LotSize     float64 `mapstructure:"lot_size"`     // default contract lot size
	PricePoints int     `mapstructure:"price_points"` // payoff curve grid size
}

// StreamConfig holds the broadcast polling configuration.
type StreamConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
}

// ServerConfig holds the HTTP/websocket server configuration.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/hedge-lords"
	}
	return filepath.Join(home, ".config", "hedge-lords")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DefaultConfigDir()
	return &Config{
		Exchange: ExchangeConfig{
			BaseURL:     "https://api.delta.exchange",
			WSURL:       "wss://socket.delta.exchange",
			PageSize:    1000,
			HistoryRate: 5,
			MaxRetries:  5,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dir, "market.db"),
		},
		Simulation: SimulationConfig{
			Directory:  filepath.Join(dir, "simulations"),
			Iterations: 10000,
			AnchorTime: 12 * time.Hour,
			Workers:    2,
		},
		Payoff: PayoffConfig{
			PriceRange:  0.1,
			LotSize:     1,
			PricePoints: 500,
		},
		Stream: StreamConfig{
			PollInterval: 500 * time.Millisecond,
			StopTimeout:  5 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load loads configuration from the specified directory, falling back to
// defaults when no config file exists. If configDir is empty, the default
// config directory is used. Environment variables override file values.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.yaml: %w", err)
		}
		// No config file is fine; defaults plus env apply.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("exchange.base_url", cfg.Exchange.BaseURL)
	v.SetDefault("exchange.ws_url", cfg.Exchange.WSURL)
	v.SetDefault("exchange.page_size", cfg.Exchange.PageSize)
	v.SetDefault("exchange.history_rate", cfg.Exchange.HistoryRate)
	v.SetDefault("exchange.max_retries", cfg.Exchange.MaxRetries)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("simulation.directory", cfg.Simulation.Directory)
	v.SetDefault("simulation.iterations", cfg.Simulation.Iterations)
	v.SetDefault("simulation.anchor_time", cfg.Simulation.AnchorTime)
	v.SetDefault("simulation.workers", cfg.Simulation.Workers)
	v.SetDefault("payoff.price_range", cfg.Payoff.PriceRange)
	v.SetDefault("payoff.lot_size", cfg.Payoff.LotSize)
	v.SetDefault("payoff.price_points", cfg.Payoff.PricePoints)
	v.SetDefault("stream.poll_interval", cfg.Stream.PollInterval)
	v.SetDefault("stream.stop_timeout", cfg.Stream.StopTimeout)
	v.SetDefault("server.addr", cfg.Server.Addr)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DELTA_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("DELTA_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("DELTA_BASE_URL"); v != "" {
		cfg.Exchange.BaseURL = v
	}
	if v := os.Getenv("DELTA_WS_URL"); v != "" {
		cfg.Exchange.WSURL = v
	}
	if v := os.Getenv("HEDGE_LORDS_DB"); v != "" {
		cfg.Database.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Exchange.PageSize <= 0 {
		return fmt.Errorf("exchange.page_size must be positive")
	}
	if c.Simulation.Iterations <= 0 {
		return fmt.Errorf("simulation.iterations must be positive")
	}
	if c.Simulation.AnchorTime < 0 || c.Simulation.AnchorTime >= 24*time.Hour {
		return fmt.Errorf("simulation.anchor_time must be within a day")
	}
	if c.Payoff.PriceRange < 0.01 || c.Payoff.PriceRange > 0.5 {
		return fmt.Errorf("payoff.price_range must be between 0.01 and 0.5")
	}
	if c.Payoff.LotSize <= 0 {
		return fmt.Errorf("payoff.lot_size must be positive")
	}
	if c.Payoff.PricePoints < 2 {
		return fmt.Errorf("payoff.price_points must be at least 2")
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("stream.poll_interval must be positive")
	}
	return nil
}
