// Package performance derives trade statistics from closed-position
// history. It is a read-only consumer of the ledger: every function takes
// its inputs explicitly and holds no state.
package performance

import (
	"math"
	"sort"
	"time"

	"github.com/quantor/papertrade/position"
)

// Stats are the aggregate trade statistics for a set of closed positions.
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	TotalPnL    float64 `json:"total_pnl"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`
	LargestWin  float64 `json:"largest_win"`
	LargestLoss float64 `json:"largest_loss"`

	// ProfitFactor is gross wins over absolute gross losses: +Inf with wins
	// and no losses, 0 with no wins.
	ProfitFactor float64 `json:"profit_factor"`

	AvgHoldingHours float64 `json:"avg_holding_hours"`
}

// Statistics computes Stats over closed positions. An empty history returns
// the zero value (zero trades) without error.
func Statistics(closed []position.ClosedPosition) Stats {
	var s Stats
	if len(closed) == 0 {
		return s
	}

	var grossWin, grossLoss, holding float64
	for _, cp := range closed {
		s.TotalTrades++
		s.TotalPnL += cp.RealizedPnL
		holding += cp.HoldingHours

		switch {
		case cp.RealizedPnL > 0:
			s.WinningTrades++
			grossWin += cp.RealizedPnL
			if cp.RealizedPnL > s.LargestWin {
				s.LargestWin = cp.RealizedPnL
			}
		case cp.RealizedPnL < 0:
			s.LosingTrades++
			grossLoss += cp.RealizedPnL
			if cp.RealizedPnL < s.LargestLoss {
				s.LargestLoss = cp.RealizedPnL
			}
		}
	}

	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	if s.WinningTrades > 0 {
		s.AvgWin = grossWin / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = grossLoss / float64(s.LosingTrades)
	}

	switch {
	case grossLoss < 0:
		s.ProfitFactor = grossWin / math.Abs(grossLoss)
	case grossWin > 0:
		s.ProfitFactor = math.Inf(1)
	}

	s.AvgHoldingHours = holding / float64(s.TotalTrades)
	return s
}

// EquityPoint is one sample of an equity curve.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// EquityCurve builds an equity curve from initial capital and the realized
// P&L of closed positions, ordered by close time.
func EquityCurve(initialCapital float64, closed []position.ClosedPosition) []EquityPoint {
	ordered := append([]position.ClosedPosition(nil), closed...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ClosedAt.Before(ordered[j].ClosedAt) })

	curve := make([]EquityPoint, 0, len(ordered)+1)
	equity := initialCapital
	var start time.Time
	if len(ordered) > 0 {
		start = ordered[0].OpenedAt
	}
	curve = append(curve, EquityPoint{Time: start, Equity: equity})
	for _, cp := range ordered {
		equity += cp.RealizedPnL
		curve = append(curve, EquityPoint{Time: cp.ClosedAt, Equity: equity})
	}
	return curve
}

// MaxDrawdown scans the curve for the deepest running-peak-to-trough fall.
// The percentage is relative to the peak in force at the trough, not the
// global maximum.
func MaxDrawdown(curve []EquityPoint) (absolute, percentage float64) {
	if len(curve) == 0 {
		return 0, 0
	}

	peak := curve[0].Equity
	for _, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		dd := peak - pt.Equity
		if dd > absolute {
			absolute = dd
			if peak > 0 {
				percentage = dd / peak * 100
			}
		}
	}
	return absolute, percentage
}

// SharpeRatio is (mean(returns) - riskFreeRate) / stdev(returns). Fewer
// than two samples or a zero standard deviation yields 0, never NaN or Inf.
func SharpeRatio(periodReturns []float64, riskFreeRate float64) float64 {
	if len(periodReturns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range periodReturns {
		mean += r
	}
	mean /= float64(len(periodReturns))

	var variance float64
	for _, r := range periodReturns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(periodReturns) - 1)

	stdev := math.Sqrt(variance)
	if stdev == 0 {
		return 0
	}
	return (mean - riskFreeRate) / stdev
}

// PeriodReturns converts an equity curve into simple per-period returns.
func PeriodReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (curve[i].Equity-prev)/prev)
	}
	return out
}
