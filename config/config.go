package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LeverageTier maps a confidence floor to a leverage value. Tiers are
// evaluated highest floor first; a confidence sitting exactly on a floor
// resolves to the tier below it (the safer one).
type LeverageTier struct {
	Name          string  `json:"name" yaml:"name"`
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
	Leverage      int     `json:"leverage" yaml:"leverage"`
}

// Session is the configuration and capital state of one trading session.
//
// The risk parameters are fixed for the session's lifetime; changing them
// means creating a new session. CurrentCapital is the one mutable field and
// moves on every open/close/add/reduce.
type Session struct {
	SessionID string `json:"session_id" yaml:"session_id"`
	UserID    string `json:"user_id,omitempty" yaml:"user_id,omitempty"`

	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
	CurrentCapital float64 `json:"current_capital" yaml:"current_capital"`

	// Risk parameters
	MaxPositionSizePct     float64 `json:"max_position_size_pct" yaml:"max_position_size_pct"`
	MaxTotalExposurePct    float64 `json:"max_total_exposure_pct" yaml:"max_total_exposure_pct"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions" yaml:"max_concurrent_positions"`
	RiskPerTradePct        float64 `json:"risk_per_trade_pct" yaml:"risk_per_trade_pct"`

	// Trading rules
	AllowPyramiding bool           `json:"allow_pyramiding" yaml:"allow_pyramiding"`
	AllowHedging    bool           `json:"allow_hedging" yaml:"allow_hedging"`
	MinLeverage     int            `json:"min_leverage" yaml:"min_leverage"`
	MaxLeverage     int            `json:"max_leverage" yaml:"max_leverage"`
	DefaultLeverage int            `json:"default_leverage" yaml:"default_leverage"`
	LeverageTiers   []LeverageTier `json:"leverage_tiers" yaml:"leverage_tiers"`

	// Timeframes
	PrimaryTimeframe      string `json:"primary_timeframe" yaml:"primary_timeframe"`
	InvalidationTimeframe string `json:"invalidation_timeframe" yaml:"invalidation_timeframe"`

	SupportedSymbols []string `json:"supported_symbols,omitempty" yaml:"supported_symbols,omitempty"`

	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	LastUpdated time.Time `json:"last_updated" yaml:"last_updated"`
	IsActive    bool      `json:"is_active" yaml:"is_active"`
}

// LoadFromFile loads a session config from a YAML or JSON file.
func LoadFromFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Session{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the config as YAML (.yaml/.yml) or JSON (anything else).
func (c *Session) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the session configuration.
func (c *Session) Validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive")
	}
	if c.MaxPositionSizePct <= 0 || c.MaxPositionSizePct > 1 {
		return fmt.Errorf("max_position_size_pct must be in (0, 1]")
	}
	if c.MaxTotalExposurePct <= 0 || c.MaxTotalExposurePct > 1 {
		return fmt.Errorf("max_total_exposure_pct must be in (0, 1]")
	}
	if c.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("max_concurrent_positions must be positive")
	}
	if c.RiskPerTradePct <= 0 || c.RiskPerTradePct > 1 {
		return fmt.Errorf("risk_per_trade_pct must be in (0, 1]")
	}
	if c.MinLeverage < 1 {
		return fmt.Errorf("min_leverage must be at least 1")
	}
	if c.MaxLeverage < c.MinLeverage {
		return fmt.Errorf("max_leverage must be >= min_leverage")
	}
	if c.DefaultLeverage < c.MinLeverage || c.DefaultLeverage > c.MaxLeverage {
		return fmt.Errorf("default_leverage must be within [min_leverage, max_leverage]")
	}
	if len(c.LeverageTiers) == 0 {
		return fmt.Errorf("at least one leverage tier is required")
	}
	for _, t := range c.LeverageTiers {
		if t.MinConfidence < 0 || t.MinConfidence > 1 {
			return fmt.Errorf("leverage tier %q: min_confidence must be in [0, 1]", t.Name)
		}
		if t.Leverage < c.MinLeverage || t.Leverage > c.MaxLeverage {
			return fmt.Errorf("leverage tier %q: leverage %d outside [%d, %d]",
				t.Name, t.Leverage, c.MinLeverage, c.MaxLeverage)
		}
	}
	return nil
}

// Default returns a session configuration with the standard paper-trading
// parameters. Callers must still set SessionID and capital.
func Default() *Session {
	now := time.Now().UTC()
	return &Session{
		InitialCapital:         100000,
		CurrentCapital:         100000,
		MaxPositionSizePct:     0.20,
		MaxTotalExposurePct:    0.60,
		MaxConcurrentPositions: 5,
		RiskPerTradePct:        0.02,
		AllowPyramiding:        false,
		AllowHedging:           false,
		MinLeverage:            1,
		MaxLeverage:            20,
		DefaultLeverage:        10,
		LeverageTiers: []LeverageTier{
			{Name: "high", MinConfidence: 0.75, Leverage: 15},
			{Name: "medium", MinConfidence: 0.65, Leverage: 10},
			{Name: "low", MinConfidence: 0, Leverage: 5},
		},
		PrimaryTimeframe:      "15m",
		InvalidationTimeframe: "3m",
		CreatedAt:             now,
		LastUpdated:           now,
		IsActive:              true,
	}
}
