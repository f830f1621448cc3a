package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantor/papertrade/config"
	"github.com/quantor/papertrade/position"
)

func TestSizeFromRisk_RiskBudget(t *testing.T) {
	t.Parallel()

	// 100k capital, 2% risk, $1000 price risk: uncapped quantity is 2.0, but
	// the 20% single-position cap binds at $20k notional.
	got, err := SizeFromRisk(50000, 49000, 100000, 0.02, 0.20)
	require.NoError(t, err)

	assert.InDelta(t, 0.40, got.Quantity, 1e-9)
	assert.InDelta(t, 20000.0, got.NotionalValue, 1e-9)
	assert.InDelta(t, 400.0, got.RiskAmount, 1e-9)
	assert.Equal(t, CapPosition, got.CappedBy)
}

func TestSizeFromRisk_Uncapped(t *testing.T) {
	t.Parallel()

	// Wide cap: quantity comes straight from the risk budget.
	got, err := SizeFromRisk(100, 95, 10000, 0.02, 1.0)
	require.NoError(t, err)

	assert.InDelta(t, 40.0, got.Quantity, 1e-9)
	assert.InDelta(t, 4000.0, got.NotionalValue, 1e-9)
	assert.InDelta(t, 200.0, got.RiskAmount, 1e-9)
	assert.Equal(t, CapNone, got.CappedBy)
}

func TestSizeFromRisk_CapitalCap(t *testing.T) {
	t.Parallel()

	// Tight stop inflates the quantity until notional exceeds capital.
	got, err := SizeFromRisk(100, 99.9, 10000, 0.02, 2.0)
	require.NoError(t, err)

	assert.InDelta(t, 100.0, got.Quantity, 1e-9)
	assert.InDelta(t, 10000.0, got.NotionalValue, 1e-9)
	assert.Equal(t, CapCapital, got.CappedBy)
}

func TestSizeFromRisk_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		entry, stop float64
	}{
		{"entry equals stop", 50000, 50000},
		{"zero entry", 0, 49000},
		{"negative stop", 50000, -1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := SizeFromRisk(tt.entry, tt.stop, 100000, 0.02, 0.20)
			assert.ErrorIs(t, err, ErrInvalidRiskInput)
		})
	}
}

func TestSizeFromRisk_NoCapital(t *testing.T) {
	t.Parallel()

	got, err := SizeFromRisk(50000, 49000, 0, 0.02, 0.20)
	require.NoError(t, err)
	assert.Zero(t, got.Quantity)
	assert.Equal(t, CapCapital, got.CappedBy)
}

func TestLeverageForConfidence(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	tests := []struct {
		name       string
		confidence float64
		want       int
	}{
		{"high", 0.90, 15},
		{"medium", 0.70, 10},
		{"low", 0.50, 5},
		{"floor resolves down", 0.75, 10},
		{"medium floor resolves down", 0.65, 5},
		{"zero", 0, 5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, LeverageForConfidence(tt.confidence, cfg))
		})
	}
}

func TestLeverageForConfidence_Clamped(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.MaxLeverage = 8
	assert.Equal(t, 8, LeverageForConfidence(0.95, cfg))

	cfg = config.Default()
	cfg.MinLeverage = 6
	assert.Equal(t, 6, LeverageForConfidence(0.10, cfg))
}

func TestLeverageForConfidence_NoTiers(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.LeverageTiers = nil
	assert.Equal(t, cfg.DefaultLeverage, LeverageForConfidence(0.8, cfg))
}

func TestPortfolioHeat(t *testing.T) {
	t.Parallel()

	open := []*position.Position{
		{Symbol: "BTCUSDT", RiskAmount: 400},
		{Symbol: "ETHUSDT", RiskAmount: 600},
	}

	assert.InDelta(t, 0.01, PortfolioHeat(open, 100000), 1e-9)
	assert.Zero(t, PortfolioHeat(open, 0))
	assert.Zero(t, PortfolioHeat(open, -5000))
	assert.Zero(t, PortfolioHeat(nil, 100000))
}

func TestTotalExposure(t *testing.T) {
	t.Parallel()

	open := []*position.Position{
		{NotionalValue: 20000},
		{NotionalValue: 15000},
	}
	assert.InDelta(t, 35000.0, TotalExposure(open), 1e-9)
	assert.Zero(t, TotalExposure(nil))
}

func TestStopFromATR(t *testing.T) {
	t.Parallel()

	stop, err := StopFromATR(50000, position.Long, 500, 2)
	require.NoError(t, err)
	assert.InDelta(t, 49000.0, stop, 1e-9)

	stop, err = StopFromATR(50000, position.Short, 500, 2)
	require.NoError(t, err)
	assert.InDelta(t, 51000.0, stop, 1e-9)

	_, err = StopFromATR(50000, position.Long, 0, 2)
	assert.ErrorIs(t, err, ErrInvalidRiskInput)
}

func TestStopFromPercent(t *testing.T) {
	t.Parallel()

	stop, err := StopFromPercent(3000, position.Long, 0.02)
	require.NoError(t, err)
	assert.InDelta(t, 2940.0, stop, 1e-9)

	stop, err = StopFromPercent(3000, position.Short, 0.02)
	require.NoError(t, err)
	assert.InDelta(t, 3060.0, stop, 1e-9)

	_, err = StopFromPercent(3000, position.Long, 1.5)
	assert.ErrorIs(t, err, ErrInvalidRiskInput)
}

func TestTakeProfitLadder_Long(t *testing.T) {
	t.Parallel()

	// Ratios given out of order come back nearest-first.
	levels, err := TakeProfitLadder(50000, 49000, position.Long,
		[]float64{4, 1.5, 2.5}, []float64{0.25, 0.5, 0.25})
	require.NoError(t, err)
	require.Len(t, levels, 3)

	assert.InDelta(t, 51500.0, levels[0].Price, 1e-9)
	assert.InDelta(t, 52500.0, levels[1].Price, 1e-9)
	assert.InDelta(t, 54000.0, levels[2].Price, 1e-9)
	assert.InDelta(t, 0.5, levels[0].Fraction, 1e-9)
	assert.False(t, levels[0].Executed)
}

func TestTakeProfitLadder_Short(t *testing.T) {
	t.Parallel()

	levels, err := TakeProfitLadder(3000, 3060, position.Short,
		[]float64{1, 2}, []float64{0.5, 0.5})
	require.NoError(t, err)
	require.Len(t, levels, 2)

	// Short ladder descends: nearest level has the highest price.
	assert.InDelta(t, 2940.0, levels[0].Price, 1e-9)
	assert.InDelta(t, 2880.0, levels[1].Price, 1e-9)
}

func TestTakeProfitLadder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ratios    []float64
		fractions []float64
		want      error
	}{
		{"empty", nil, nil, ErrInvalidLadder},
		{"length mismatch", []float64{1, 2}, []float64{0.5}, ErrInvalidLadder},
		{"fractions exceed one", []float64{1, 2}, []float64{0.6, 0.6}, ErrInvalidLadder},
		{"zero fraction", []float64{1}, []float64{0}, ErrInvalidLadder},
		{"negative ratio", []float64{-1}, []float64{0.5}, ErrInvalidLadder},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := TakeProfitLadder(50000, 49000, position.Long, tt.ratios, tt.fractions)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTakeProfitLadder_FullFractionSum(t *testing.T) {
	t.Parallel()

	// Exactly 1.0 total is allowed; float accumulation must not reject it.
	levels, err := TakeProfitLadder(50000, 49000, position.Long,
		[]float64{1, 2, 3}, []float64{0.3, 0.3, 0.4})
	require.NoError(t, err)
	assert.Len(t, levels, 3)
}
