package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantor/papertrade/position"
)

var closeCmd = &cobra.Command{
	Use:   "close <symbol>",
	Short: "Close an open position",
	Args:  cobra.ExactArgs(1),
	RunE:  runClose,
}

var addCmd = &cobra.Command{
	Use:   "add <symbol>",
	Short: "Add to an open position (pyramiding)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var reduceCmd = &cobra.Command{
	Use:   "reduce <symbol>",
	Short: "Reduce an open position, realizing partial P&L",
	Args:  cobra.ExactArgs(1),
	RunE:  runReduce,
}

var (
	closePrice    float64
	closeReason   string
	closeSignalID string

	addQuantity float64
	addPrice    float64
	addSignalID string

	reduceQuantity float64
	reducePrice    float64
)

func init() {
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(reduceCmd)

	closeCmd.Flags().Float64Var(&closePrice, "price", 0, "exit price")
	closeCmd.Flags().StringVar(&closeReason, "reason", string(position.ReasonManual), "exit reason")
	closeCmd.Flags().StringVar(&closeSignalID, "signal", "", "exit signal id")

	addCmd.Flags().Float64Var(&addQuantity, "quantity", 0, "quantity to add")
	addCmd.Flags().Float64Var(&addPrice, "price", 0, "fill price")
	addCmd.Flags().StringVar(&addSignalID, "signal", "", "originating signal id")

	reduceCmd.Flags().Float64Var(&reduceQuantity, "quantity", 0, "quantity to reduce by")
	reduceCmd.Flags().Float64Var(&reducePrice, "price", 0, "exit price")
}

func runClose(cmd *cobra.Command, args []string) error {
	c, err := coordinator()
	if err != nil {
		return err
	}
	if closePrice <= 0 {
		return fmt.Errorf("--price is required")
	}

	cp, err := c.Close(args[0], closePrice, position.ExitReason(closeReason), closeSignalID)
	if err != nil {
		return err
	}
	fmt.Printf("closed %s %s @ %.4f: pnl %+.2f (%+.2f%%), held %.1fh\n",
		string(cp.Side), cp.Symbol, cp.ExitPrice, cp.RealizedPnL, cp.RealizedPnLPct, cp.HoldingHours)
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	c, err := coordinator()
	if err != nil {
		return err
	}
	if addQuantity <= 0 || addPrice <= 0 {
		return fmt.Errorf("--quantity and --price are required")
	}

	p, err := c.AddTo(args[0], addQuantity, addPrice, addSignalID)
	if err != nil {
		return err
	}
	fmt.Printf("added to %s: qty %.6f, avg entry %.4f, notional %.2f\n",
		p.Symbol, p.Quantity, p.EntryPrice, p.NotionalValue)
	return nil
}

func runReduce(cmd *cobra.Command, args []string) error {
	c, err := coordinator()
	if err != nil {
		return err
	}
	if reduceQuantity <= 0 || reducePrice <= 0 {
		return fmt.Errorf("--quantity and --price are required")
	}

	p, pnl, err := c.Reduce(args[0], reduceQuantity, reducePrice, position.ReasonManual)
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Printf("reduce closed %s entirely: pnl %+.2f\n", args[0], pnl)
		return nil
	}
	fmt.Printf("reduced %s: pnl %+.2f, remaining qty %.6f\n", p.Symbol, pnl, p.Quantity)
	return nil
}
