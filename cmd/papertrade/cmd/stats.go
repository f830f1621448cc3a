package cmd

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/quantor/papertrade/performance"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show trade statistics and drawdown for a session",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	c, err := coordinator()
	if err != nil {
		return err
	}

	s := c.Statistics()
	if s.TotalTrades == 0 {
		fmt.Println("no closed trades yet")
		return nil
	}

	cfg := c.Session()
	curve := performance.EquityCurve(cfg.InitialCapital, c.ClosedPositions())
	ddAbs, ddPct := performance.MaxDrawdown(curve)
	sharpe := performance.SharpeRatio(performance.PeriodReturns(curve), 0)

	fmt.Printf("trades:        %d (%d wins, %d losses, win rate %.1f%%)\n",
		s.TotalTrades, s.WinningTrades, s.LosingTrades, s.WinRate*100)
	fmt.Printf("total pnl:     %+.2f\n", s.TotalPnL)
	fmt.Printf("avg win/loss:  %+.2f / %+.2f\n", s.AvgWin, s.AvgLoss)
	fmt.Printf("largest:       %+.2f / %+.2f\n", s.LargestWin, s.LargestLoss)
	if math.IsInf(s.ProfitFactor, 1) {
		fmt.Println("profit factor: inf (no losing trades)")
	} else {
		fmt.Printf("profit factor: %.2f\n", s.ProfitFactor)
	}
	fmt.Printf("avg holding:   %.1fh\n", s.AvgHoldingHours)
	fmt.Printf("max drawdown:  %.2f (%.2f%%)\n", ddAbs, ddPct)
	fmt.Printf("sharpe:        %.2f\n", sharpe)
	return nil
}
