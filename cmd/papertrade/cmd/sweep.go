package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark prices and trigger automatic exits",
	Long: `Run one update cycle over the session's open positions: mark the given
prices, then evaluate stop-loss, take-profit ladder, profit target, and time
stop in that order. Symbols without a price are left untouched.

Example:
  papertrade -s <id> sweep --price BTCUSDT=51000 --price ETHUSDT=2950`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

var sweepPrices []string

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&sweepPrices, "price", nil, "symbol=price pair (repeatable)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	c, err := coordinator()
	if err != nil {
		return err
	}

	prices := make(map[string]float64, len(sweepPrices))
	for _, pair := range sweepPrices {
		sym, val, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("bad --price %q, want symbol=price", pair)
		}
		price, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("bad --price %q: %w", pair, err)
		}
		prices[sym] = price
	}

	closed, err := c.Sweep(prices, nil)
	if err != nil {
		return err
	}
	if len(closed) == 0 {
		fmt.Println("no exits triggered")
		return nil
	}
	for _, cp := range closed {
		fmt.Printf("closed %s %s @ %.4f (%s): pnl %+.2f\n",
			string(cp.Side), cp.Symbol, cp.ExitPrice, string(cp.ExitReason), cp.RealizedPnL)
	}
	return nil
}
