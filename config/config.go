package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/rebalancer/broker/alpaca"
	"github.com/rustyeddy/rebalancer/engine"
	"github.com/rustyeddy/rebalancer/planner"
	"github.com/rustyeddy/rebalancer/risk"
)

// Trading modes. Paper and live go to Alpaca; sim fills in memory.
const (
	ModePaper = "paper"
	ModeLive  = "live"
	ModeSim   = "sim"
)

// StartDateLayout is the layout of signal.start_date.
const StartDateLayout = "2006-01-02"

// Config is the complete engine configuration.
type Config struct {
	Account   AccountConfig   `json:"account" yaml:"account"`
	Alpaca    AlpacaConfig    `json:"alpaca" yaml:"alpaca"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Rebalance RebalanceConfig `json:"rebalance" yaml:"rebalance"`
	Signal    SignalConfig    `json:"signal" yaml:"signal"`
	State     StateConfig     `json:"state" yaml:"state"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// AccountConfig identifies the account the engine manages.
type AccountConfig struct {
	ID      string  `json:"id" yaml:"id"`
	Mode    string  `json:"mode" yaml:"mode"`                             // paper, live or sim
	SimCash float64 `json:"sim_cash,omitempty" yaml:"sim_cash,omitempty"` // starting cash in sim mode
}

// AlpacaConfig holds brokerage credentials.
type AlpacaConfig struct {
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APISecret string `json:"api_secret,omitempty" yaml:"api_secret,omitempty"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// RiskConfig holds the risk limits and the breaker cooldown.
type RiskConfig struct {
	risk.Limits `yaml:",inline"`
	Cooldown    string `json:"cooldown" yaml:"cooldown"` // e.g. "24h"
}

// RebalanceConfig drives the weighting job.
type RebalanceConfig struct {
	Cadence           string          `json:"cadence" yaml:"cadence"`
	RequireMarketOpen bool            `json:"require_market_open" yaml:"require_market_open"`
	Groups            []planner.Group `json:"groups" yaml:"groups"`
}

// SignalConfig drives the signal job.
type SignalConfig struct {
	Cadence    string   `json:"cadence" yaml:"cadence"`
	Tickers    []string `json:"tickers" yaml:"tickers"`
	StartDate  string   `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	ParamsPath string   `json:"params_path,omitempty" yaml:"params_path,omitempty"`
}

// StateConfig locates the state store: a SQLite path or a postgres:// URL.
type StateConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// ServerConfig configures the HTTP trigger surface.
type ServerConfig struct {
	Port         int    `json:"port" yaml:"port"`
	InvokeSecret string `json:"invoke_secret,omitempty" yaml:"invoke_secret,omitempty"`
}

type LogConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Load builds the runtime configuration: defaults, then the file at path
// when given, then .env and the process environment.
func Load(path string) (*Config, error) {
	// a missing .env is normal
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			cfg = Default()
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. Every failure wraps
// engine.ErrConfiguration.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", engine.ErrConfiguration, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Account.ID) == "" {
		return bad("account.id is required")
	}
	switch c.Account.Mode {
	case ModePaper, ModeLive:
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			return bad("alpaca api_key and api_secret are required in %s mode", c.Account.Mode)
		}
	case ModeSim:
		if c.Account.SimCash <= 0 {
			return bad("account.sim_cash must be positive in sim mode")
		}
	default:
		return bad("account.mode must be paper, live or sim, got %q", c.Account.Mode)
	}

	if err := c.Risk.Limits.Validate(); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrConfiguration, err)
	}
	if _, err := c.cooldown(); err != nil {
		return bad("risk.cooldown: %v", err)
	}

	if _, err := engine.Cadence(c.Rebalance.Cadence); err != nil {
		return fmt.Errorf("rebalance.cadence: %w", err)
	}
	for _, g := range c.Rebalance.Groups {
		if g.Weight < 0 || g.Weight > 1 {
			return bad("rebalance group %q weight must be in [0, 1], got %v", g.Name, g.Weight)
		}
	}

	if _, err := engine.Cadence(c.Signal.Cadence); err != nil {
		return fmt.Errorf("signal.cadence: %w", err)
	}
	if _, err := c.startDate(); err != nil {
		return bad("signal.start_date: %v", err)
	}

	if c.State.DSN == "" {
		return bad("state.dsn is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return bad("server.port must be 1-65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) cooldown() (time.Duration, error) {
	if c.Risk.Cooldown == "" {
		return risk.DefaultCooldown, nil
	}
	d, err := time.ParseDuration(c.Risk.Cooldown)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func (c *Config) startDate() (time.Time, error) {
	if c.Signal.StartDate == "" {
		return time.Time{}, nil
	}
	return time.Parse(StartDateLayout, c.Signal.StartDate)
}

// EngineOptions converts the configuration into coordinator options.
func (c *Config) EngineOptions() (engine.Options, error) {
	if err := c.Validate(); err != nil {
		return engine.Options{}, err
	}
	cooldown, _ := c.cooldown()
	start, _ := c.startDate()
	runCadence, _ := engine.Cadence(c.Signal.Cadence)
	rebCadence, _ := engine.Cadence(c.Rebalance.Cadence)

	return engine.Options{
		AccountID:         c.Account.ID,
		Tag:               c.Account.Mode,
		Limits:            c.Risk.Limits,
		Cooldown:          cooldown,
		RequireMarketOpen: c.Rebalance.RequireMarketOpen,
		RunCadence:        runCadence,
		RebalanceCadence:  rebCadence,
		Groups:            c.Rebalance.Groups,
		Tickers:           c.Signal.Tickers,
		HistoryStart:      start,
		ParamsPath:        c.Signal.ParamsPath,
	}, nil
}

// AlpacaClientConfig is the adapter configuration for paper and live modes.
func (c *Config) AlpacaClientConfig() alpaca.Config {
	return alpaca.Config{
		APIKey:    c.Alpaca.APIKey,
		APISecret: c.Alpaca.APISecret,
		BaseURL:   c.Alpaca.BaseURL,
		Mode:      c.Account.Mode,
	}
}

// Default returns a configuration with sensible defaults. It needs
// credentials (or sim mode) before it validates.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:      "default",
			Mode:    ModePaper,
			SimCash: 100000,
		},
		Risk: RiskConfig{
			Limits:   risk.DefaultLimits(),
			Cooldown: "24h",
		},
		Rebalance: RebalanceConfig{
			Cadence:           "weekly",
			RequireMarketOpen: true,
			Groups: []planner.Group{
				{Name: "growth", Weight: 0.7, Symbols: []string{"SPY", "QQQ"}},
				{Name: "defensive", Weight: 0.3, Symbols: []string{"TLT", "GLD"}},
			},
		},
		Signal: SignalConfig{
			Cadence:    "daily",
			Tickers:    []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL"},
			StartDate:  "2023-01-01",
			ParamsPath: "best_params_live.json",
		},
		State: StateConfig{
			DSN: "rebalancer.db",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
