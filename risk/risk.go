// Package risk holds the pure risk-model functions: position sizing from a
// risk budget, stop and take-profit derivation, portfolio heat, and trade
// admissibility checks. Nothing here carries state; callers pass the session
// config and the open-position set explicitly.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/quantor/papertrade/config"
	"github.com/quantor/papertrade/position"
)

var (
	// ErrInvalidRiskInput: degenerate sizing or stop inputs (entry == stop,
	// non-positive prices, zero ATR).
	ErrInvalidRiskInput = errors.New("risk: invalid input")

	// ErrInvalidLadder: malformed take-profit ladder configuration.
	ErrInvalidLadder = errors.New("risk: invalid take-profit ladder")
)

// Cap names the constraint that bounded a sizing result.
type Cap string

const (
	CapNone     Cap = "risk"
	CapPosition Cap = "position_cap"
	CapCapital  Cap = "capital"
)

// SizeResult is the output of SizeFromRisk.
type SizeResult struct {
	Quantity      float64
	NotionalValue float64
	RiskAmount    float64
	CappedBy      Cap
}

// SizeFromRisk derives a quantity from the per-trade risk budget:
//
//	quantity = (availableCapital * riskPerTradePct) / |entry - stop|
//
// If the resulting notional exceeds the single-position cap or available
// capital, the quantity is re-derived from whichever cap binds first and
// CappedBy names it. Never returns a negative or NaN quantity.
func SizeFromRisk(entry, stop, availableCapital, riskPerTradePct, maxPositionSharePct float64) (SizeResult, error) {
	if entry <= 0 || stop <= 0 {
		return SizeResult{}, fmt.Errorf("%w: entry and stop must be positive", ErrInvalidRiskInput)
	}
	priceRisk := math.Abs(entry - stop)
	if priceRisk == 0 {
		return SizeResult{}, fmt.Errorf("%w: entry equals stop", ErrInvalidRiskInput)
	}
	if availableCapital <= 0 {
		return SizeResult{CappedBy: CapCapital}, nil
	}

	quantity := availableCapital * riskPerTradePct / priceRisk
	notional := quantity * entry
	cappedBy := CapNone

	if maxNotional := availableCapital * maxPositionSharePct; notional > maxNotional {
		quantity = maxNotional / entry
		notional = maxNotional
		cappedBy = CapPosition
	}
	if notional > availableCapital {
		quantity = availableCapital / entry
		notional = availableCapital
		cappedBy = CapCapital
	}

	return SizeResult{
		Quantity:      quantity,
		NotionalValue: notional,
		RiskAmount:    quantity * priceRisk,
		CappedBy:      cappedBy,
	}, nil
}

// LeverageForConfidence maps a confidence score onto the session's discrete
// leverage tiers. A confidence exactly on a tier floor resolves to the tier
// below it; a score below every floor falls back to the session default.
// The result is clamped to the session's leverage bounds.
func LeverageForConfidence(confidence float64, cfg *config.Session) int {
	tiers := append([]config.LeverageTier(nil), cfg.LeverageTiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinConfidence > tiers[j].MinConfidence })

	lev := cfg.DefaultLeverage
	for _, t := range tiers {
		if confidence > t.MinConfidence || t.MinConfidence == 0 {
			lev = t.Leverage
			break
		}
	}

	if lev < cfg.MinLeverage {
		lev = cfg.MinLeverage
	}
	if lev > cfg.MaxLeverage {
		lev = cfg.MaxLeverage
	}
	return lev
}

// PortfolioHeat is aggregate committed risk over total capital. A
// non-positive total capital yields 0 rather than dividing by zero.
func PortfolioHeat(open []*position.Position, totalCapital float64) float64 {
	if totalCapital <= 0 {
		return 0
	}
	var risk float64
	for _, p := range open {
		risk += p.RiskAmount
	}
	return risk / totalCapital
}

// TotalExposure sums open notional value.
func TotalExposure(open []*position.Position) float64 {
	var total float64
	for _, p := range open {
		total += p.NotionalValue
	}
	return total
}

// StopFromATR derives a stop-loss at multiplier * atr from entry, on the
// losing side for the given direction.
func StopFromATR(entry float64, side position.Side, atr, multiplier float64) (float64, error) {
	if entry <= 0 || atr <= 0 || multiplier <= 0 {
		return 0, fmt.Errorf("%w: entry, atr and multiplier must be positive", ErrInvalidRiskInput)
	}
	dist := atr * multiplier
	if side == position.Long {
		return entry - dist, nil
	}
	return entry + dist, nil
}

// StopFromPercent derives a stop-loss at pct of entry on the losing side.
func StopFromPercent(entry float64, side position.Side, pct float64) (float64, error) {
	if entry <= 0 || pct <= 0 || pct >= 1 {
		return 0, fmt.Errorf("%w: entry must be positive and pct in (0, 1)", ErrInvalidRiskInput)
	}
	if side == position.Long {
		return entry * (1 - pct), nil
	}
	return entry * (1 + pct), nil
}

// TakeProfitLadder builds ordered partial take-profit levels from
// risk-reward ratios and quantity fractions. Levels come out nearest-first
// for the direction (ascending price for long, descending for short).
// Fractions must sum to at most 1.
func TakeProfitLadder(entry, stop float64, side position.Side, ratios, fractions []float64) ([]position.TakeProfitLevel, error) {
	if len(ratios) == 0 {
		return nil, fmt.Errorf("%w: ratio list is empty", ErrInvalidLadder)
	}
	if len(ratios) != len(fractions) {
		return nil, fmt.Errorf("%w: %d ratios vs %d fractions", ErrInvalidLadder, len(ratios), len(fractions))
	}
	if entry <= 0 || stop <= 0 || entry == stop {
		return nil, fmt.Errorf("%w: degenerate entry/stop", ErrInvalidRiskInput)
	}

	var sum float64
	for _, f := range fractions {
		if f <= 0 {
			return nil, fmt.Errorf("%w: fractions must be positive", ErrInvalidLadder)
		}
		sum += f
	}
	if sum > 1.0+1e-9 {
		return nil, fmt.Errorf("%w: fractions sum to %.4f", ErrInvalidLadder, sum)
	}

	priceRisk := math.Abs(entry - stop)
	levels := make([]position.TakeProfitLevel, 0, len(ratios))
	for i, rr := range ratios {
		if rr <= 0 {
			return nil, fmt.Errorf("%w: ratios must be positive", ErrInvalidLadder)
		}
		reward := priceRisk * rr
		price := entry + reward
		if side == position.Short {
			price = entry - reward
		}
		levels = append(levels, position.TakeProfitLevel{
			Price:      price,
			Fraction:   fractions[i],
			RiskReward: rr,
		})
	}

	// Nearest level first so partial exits execute in order on a trend move.
	sort.Slice(levels, func(i, j int) bool {
		if side == position.Long {
			return levels[i].Price < levels[j].Price
		}
		return levels[i].Price > levels[j].Price
	})
	return levels, nil
}
