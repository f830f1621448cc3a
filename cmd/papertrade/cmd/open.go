package cmd

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantor/papertrade/portfolio"
	"github.com/quantor/papertrade/position"
	"github.com/quantor/papertrade/risk"
)

var openCmd = &cobra.Command{
	Use:   "open <symbol>",
	Short: "Open a position with risk-based sizing",
	Long: `Open a leveraged position. Quantity is derived from the session's
risk-per-trade budget and the distance from entry to stop; leverage from the
signal confidence unless given explicitly.

Examples:
  papertrade -s <id> open BTCUSDT --side long --entry 50000 --stop 49000
  papertrade -s <id> open ETHUSDT --side short --entry 3000 --stop-pct 0.02 \
      --confidence 0.8 --target 2700 --ladder 1.5,2.5,4 --max-hold 48h`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

var (
	openSide       string
	openEntry      float64
	openStop       float64
	openStopPct    float64
	openTarget     float64
	openConfidence float64
	openLeverage   int
	openQuantity   float64
	openLadderRR   []float64
	openLadderFrac []float64
	openMaxHold    time.Duration
	openSignalID   string
)

func init() {
	rootCmd.AddCommand(openCmd)

	openCmd.Flags().StringVar(&openSide, "side", "long", "position side (long or short)")
	openCmd.Flags().Float64Var(&openEntry, "entry", 0, "entry price")
	openCmd.Flags().Float64Var(&openStop, "stop", 0, "stop-loss price")
	openCmd.Flags().Float64Var(&openStopPct, "stop-pct", 0, "stop distance as fraction of entry (alternative to --stop)")
	openCmd.Flags().Float64Var(&openTarget, "target", 0, "full profit target price")
	openCmd.Flags().Float64Var(&openConfidence, "confidence", 0.5, "signal confidence in [0, 1]")
	openCmd.Flags().IntVar(&openLeverage, "leverage", 0, "leverage (0 = derive from confidence)")
	openCmd.Flags().Float64Var(&openQuantity, "quantity", 0, "explicit quantity (0 = size from risk)")
	openCmd.Flags().Float64SliceVar(&openLadderRR, "ladder", nil, "take-profit ladder risk-reward ratios")
	openCmd.Flags().Float64SliceVar(&openLadderFrac, "ladder-fractions", nil, "fraction of base quantity per ladder level")
	openCmd.Flags().DurationVar(&openMaxHold, "max-hold", 0, "time stop (e.g. 48h, 0 = none)")
	openCmd.Flags().StringVar(&openSignalID, "signal", "", "originating signal id")
}

func runOpen(cmd *cobra.Command, args []string) error {
	c, err := coordinator()
	if err != nil {
		return err
	}
	symbol := args[0]
	side := position.Side(openSide)
	if openEntry <= 0 {
		return fmt.Errorf("--entry is required")
	}

	stop := openStop
	if stop == 0 && openStopPct > 0 {
		stop, err = risk.StopFromPercent(openEntry, side, openStopPct)
		if err != nil {
			return err
		}
	}

	cfg := c.Session()
	lev := openLeverage
	if lev == 0 {
		lev = risk.LeverageForConfidence(openConfidence, &cfg)
	}

	qty := openQuantity
	riskAmount := 0.0
	if qty == 0 {
		if stop <= 0 {
			return fmt.Errorf("--stop or --stop-pct is required when sizing from risk")
		}
		size, err := risk.SizeFromRisk(openEntry, stop, cfg.CurrentCapital,
			cfg.RiskPerTradePct, cfg.MaxPositionSizePct)
		if err != nil {
			return err
		}
		qty = size.Quantity
		riskAmount = size.RiskAmount
		if size.CappedBy != risk.CapNone {
			fmt.Printf("size capped by %s\n", size.CappedBy)
		}
	} else if stop > 0 {
		riskAmount = qty * math.Abs(openEntry-stop)
	}

	var ladder []position.TakeProfitLevel
	if len(openLadderRR) > 0 {
		fracs := openLadderFrac
		if len(fracs) == 0 {
			// Default to equal fractions across the ladder.
			fracs = make([]float64, len(openLadderRR))
			for i := range fracs {
				fracs[i] = 1.0 / float64(len(openLadderRR))
			}
		}
		ladder, err = risk.TakeProfitLadder(openEntry, stop, side, openLadderRR, fracs)
		if err != nil {
			return err
		}
	}

	p, err := c.Open(position.OpenRequest{
		Symbol:       symbol,
		Side:         side,
		Quantity:     qty,
		EntryPrice:   openEntry,
		StopLoss:     stop,
		ProfitTarget: openTarget,
		Ladder:       ladder,
		MaxHold:      openMaxHold,
		Leverage:     lev,
		Confidence:   openConfidence,
		RiskAmount:   riskAmount,
		SignalID:     openSignalID,
	})
	if err != nil {
		var rej *portfolio.RejectionError
		if errors.As(err, &rej) {
			fmt.Println("trade rejected:")
			for _, r := range rej.Decision.Reasons() {
				fmt.Printf("  - %s\n", r)
			}
			return err
		}
		return err
	}

	fmt.Printf("opened %s %s: qty %.6f @ %.4f (%dx)\n",
		string(p.Side), p.Symbol, p.Quantity, p.EntryPrice, p.Leverage)
	fmt.Printf("  notional: %.2f  margin: %.2f  risk: %.2f\n",
		p.NotionalValue, p.Margin(), p.RiskAmount)
	if p.StopLoss > 0 {
		fmt.Printf("  stop: %.4f", p.StopLoss)
		if p.ProfitTarget > 0 {
			fmt.Printf("  target: %.4f  r:r %.2f", p.ProfitTarget, p.RiskReward)
		}
		fmt.Println()
	}
	for _, lvl := range p.Ladder {
		fmt.Printf("  tp %.4f (%.0f%% of base, %.1fR)\n",
			lvl.Price, lvl.Fraction*100, lvl.RiskReward)
	}
	return nil
}
