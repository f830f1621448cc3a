package risk

import (
	"fmt"
	"math"

	"github.com/quantor/papertrade/config"
	"github.com/quantor/papertrade/position"
)

// ViolationCode identifies a hard admissibility constraint.
type ViolationCode string

const (
	ViolationMaxConcurrentPositions ViolationCode = "max_concurrent_positions"
	ViolationPositionSizeLimit      ViolationCode = "position_size_limit"
	ViolationExposureLimit          ViolationCode = "exposure_limit"
	ViolationInsufficientCapital    ViolationCode = "insufficient_capital"
	ViolationPyramidingDisabled     ViolationCode = "pyramiding_disabled"
)

// Violation is one failed constraint with a user-facing explanation.
type Violation struct {
	Code ViolationCode
	Msg  string
}

// Metrics are the portfolio numbers computed while assessing, returned so
// callers can explain a decision.
type Metrics struct {
	NotionalValue    float64
	RiskAmount       float64
	PortfolioHeat    float64
	HeatAfter        float64
	ExposureAfter    float64
	ExposureAfterPct float64
	CapitalUsagePct  float64
	PositionRiskPct  float64
	TotalCapital     float64
	AvailableCapital float64
}

// Decision is the outcome of Assess. Acceptable is true only when the
// violation list is empty; Warnings never block a trade.
type Decision struct {
	Acceptable bool
	Violations []Violation
	Warnings   []string
	Metrics    Metrics
}

func (d *Decision) add(code ViolationCode, format string, args ...any) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: fmt.Sprintf(format, args...)})
	d.Acceptable = false
}

// Reasons returns the violation messages, for error construction.
func (d *Decision) Reasons() []string {
	out := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		out[i] = v.Msg
	}
	return out
}

// Intent is a proposed ledger mutation to be assessed. For an open, set
// Quantity/EntryPrice/StopLoss; NotionalValue may be given directly when the
// caller only knows a dollar size (CanOpen).
type Intent struct {
	Operation     position.Operation
	Symbol        string
	Side          position.Side
	Quantity      float64
	EntryPrice    float64
	StopLoss      float64
	NotionalValue float64
}

func (in Intent) notional() float64 {
	if in.NotionalValue > 0 {
		return in.NotionalValue
	}
	return in.Quantity * in.EntryPrice
}

func (in Intent) riskAmount() float64 {
	if in.Quantity <= 0 || in.StopLoss <= 0 {
		return 0
	}
	return in.Quantity * math.Abs(in.EntryPrice-in.StopLoss)
}

// Assess evaluates a trade intent against the session's constraints, in
// order: max concurrent positions, single-position share cap, post-trade
// exposure cap, available capital, pyramiding conflict. All violated
// constraints are reported, not just the first; callers build user-facing
// explanations from the list.
func Assess(intent Intent, open []*position.Position, cfg *config.Session, availableCapital float64) Decision {
	d := Decision{Acceptable: true}

	notional := intent.notional()
	riskAmount := intent.riskAmount()
	exposure := TotalExposure(open)
	totalCapital := availableCapital + exposure

	d.Metrics = Metrics{
		NotionalValue:    notional,
		RiskAmount:       riskAmount,
		PortfolioHeat:    PortfolioHeat(open, totalCapital),
		AvailableCapital: availableCapital,
		TotalCapital:     totalCapital,
	}
	if totalCapital > 0 {
		d.Metrics.HeatAfter = d.Metrics.PortfolioHeat + riskAmount/totalCapital
		d.Metrics.PositionRiskPct = riskAmount / totalCapital * 100
	}
	if availableCapital > 0 {
		d.Metrics.CapitalUsagePct = notional / availableCapital * 100
	}
	d.Metrics.ExposureAfter = exposure + notional
	if totalCapital > 0 {
		d.Metrics.ExposureAfterPct = d.Metrics.ExposureAfter / totalCapital * 100
	}

	// (a) concurrent position count, for new opens only
	if intent.Operation == position.OpOpen && len(open) >= cfg.MaxConcurrentPositions {
		d.add(ViolationMaxConcurrentPositions,
			"max concurrent positions reached (%d)", cfg.MaxConcurrentPositions)
	}

	// (b) single-position share cap
	if maxNotional := availableCapital * cfg.MaxPositionSizePct; notional > maxNotional {
		d.add(ViolationPositionSizeLimit,
			"notional %.2f exceeds single-position cap %.2f (%.0f%% of capital)",
			notional, maxNotional, cfg.MaxPositionSizePct*100)
	}

	// (c) post-trade exposure cap
	if totalCapital > 0 && d.Metrics.ExposureAfter/totalCapital > cfg.MaxTotalExposurePct {
		d.add(ViolationExposureLimit,
			"post-trade exposure %.1f%% exceeds cap %.0f%%",
			d.Metrics.ExposureAfterPct, cfg.MaxTotalExposurePct*100)
	}

	// (d) available capital
	if notional > availableCapital {
		d.add(ViolationInsufficientCapital,
			"notional %.2f exceeds available capital %.2f", notional, availableCapital)
	}

	// (e) existing position without pyramiding
	if intent.Operation == position.OpOpen && !cfg.AllowPyramiding {
		for _, p := range open {
			if p.Symbol == intent.Symbol {
				d.add(ViolationPyramidingDisabled,
					"already holding %s and pyramiding is disabled", intent.Symbol)
				break
			}
		}
	}

	if d.Metrics.HeatAfter > 0.10 {
		d.Warnings = append(d.Warnings, "high portfolio heat (>10%)")
	}
	if availableCapital > 0 && notional > availableCapital*0.15 {
		d.Warnings = append(d.Warnings, "large position size (>15% of capital)")
	}

	return d
}
