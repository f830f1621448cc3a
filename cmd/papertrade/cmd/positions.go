package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List open positions",
	Args:  cobra.NoArgs,
	RunE:  runPositions,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List closed positions, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(positionsCmd)
	rootCmd.AddCommand(historyCmd)
}

func runPositions(cmd *cobra.Command, args []string) error {
	c, err := coordinator()
	if err != nil {
		return err
	}

	open := c.OpenPositions()
	if len(open) == 0 {
		fmt.Println("no open positions")
		return nil
	}
	for _, p := range open {
		fmt.Printf("%-12s %-5s qty %.6f @ %.4f (%dx)  mark %.4f  upnl %+.2f (%+.2f%%)\n",
			p.Symbol, string(p.Side), p.Quantity, p.EntryPrice, p.Leverage,
			p.CurrentPrice, p.UnrealizedPnL, p.UnrealizedPnLPct)
		if p.StopLoss > 0 || p.ProfitTarget > 0 {
			fmt.Printf("             stop %.4f  target %.4f  risk %.2f\n",
				p.StopLoss, p.ProfitTarget, p.RiskAmount)
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := coordinator()
	if err != nil {
		return err
	}

	closed := c.ClosedPositions()
	if len(closed) == 0 {
		fmt.Println("no closed positions")
		return nil
	}
	for _, cp := range closed {
		fmt.Printf("%s  %-12s %-5s qty %.6f  %.4f -> %.4f  pnl %+.2f (%+.2f%%)  %s\n",
			cp.ClosedAt.Format("2006-01-02 15:04"), cp.Symbol, string(cp.Side),
			cp.Quantity, cp.EntryPrice, cp.ExitPrice,
			cp.RealizedPnL, cp.RealizedPnLPct, string(cp.ExitReason))
	}
	return nil
}
