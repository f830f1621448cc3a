package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSession() *Session {
	cfg := Default()
	cfg.SessionID = "sess-1"
	return cfg
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.InDelta(t, 100000.0, cfg.InitialCapital, 1e-9)
	assert.InDelta(t, 0.20, cfg.MaxPositionSizePct, 1e-9)
	assert.InDelta(t, 0.60, cfg.MaxTotalExposurePct, 1e-9)
	assert.Equal(t, 5, cfg.MaxConcurrentPositions)
	assert.InDelta(t, 0.02, cfg.RiskPerTradePct, 1e-9)
	assert.False(t, cfg.AllowPyramiding)
	assert.Len(t, cfg.LeverageTiers, 3)
	assert.Equal(t, "15m", cfg.PrimaryTimeframe)
	assert.Equal(t, "3m", cfg.InvalidationTimeframe)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validSession().Validate())

	tests := []struct {
		name   string
		mutate func(*Session)
	}{
		{"missing session id", func(c *Session) { c.SessionID = "" }},
		{"zero capital", func(c *Session) { c.InitialCapital = 0 }},
		{"position pct over one", func(c *Session) { c.MaxPositionSizePct = 1.5 }},
		{"zero exposure pct", func(c *Session) { c.MaxTotalExposurePct = 0 }},
		{"zero positions", func(c *Session) { c.MaxConcurrentPositions = 0 }},
		{"zero risk pct", func(c *Session) { c.RiskPerTradePct = 0 }},
		{"min leverage below one", func(c *Session) { c.MinLeverage = 0 }},
		{"max below min", func(c *Session) { c.MaxLeverage = 0 }},
		{"default outside range", func(c *Session) { c.DefaultLeverage = 25 }},
		{"no tiers", func(c *Session) { c.LeverageTiers = nil }},
		{"tier confidence out of range", func(c *Session) { c.LeverageTiers[0].MinConfidence = 1.5 }},
		{"tier leverage out of range", func(c *Session) { c.LeverageTiers[0].Leverage = 100 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validSession()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveLoad_YAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.yaml")
	cfg := validSession()
	cfg.UserID = "alice"
	cfg.AllowPyramiding = true
	require.NoError(t, cfg.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.SessionID, got.SessionID)
	assert.Equal(t, "alice", got.UserID)
	assert.True(t, got.AllowPyramiding)
	assert.Equal(t, cfg.LeverageTiers, got.LeverageTiers)
}

func TestSaveLoad_JSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.json")
	cfg := validSession()
	require.NoError(t, cfg.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.SessionID, got.SessionID)
	assert.InDelta(t, cfg.InitialCapital, got.InitialCapital, 1e-9)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session_id: x\ninitial_capital: -5\n"), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadFromFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
