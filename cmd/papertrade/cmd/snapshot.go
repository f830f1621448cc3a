package cmd

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Take and store a portfolio snapshot",
	Args:  cobra.NoArgs,
	RunE:  runSnapshot,
}

var snapshotHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotHistory,
}

var snapshotLimit int

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotHistoryCmd)

	snapshotHistoryCmd.Flags().IntVar(&snapshotLimit, "limit", 20, "max snapshots to list")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	c, err := coordinator()
	if err != nil {
		return err
	}

	snap, err := c.SaveSnapshot()
	if err != nil {
		return err
	}

	fmt.Printf("snapshot at %s\n", snap.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("  total capital:     %.2f (%.2f available, %.2f committed)\n",
		snap.TotalCapital, snap.AvailableCapital, snap.CommittedCapital)
	fmt.Printf("  open positions:    %d (notional %.2f, %.1f%% exposure)\n",
		snap.OpenPositions, snap.TotalNotional, snap.ExposurePct)
	fmt.Printf("  pnl:               %+.2f unrealized, %+.2f realized, %+.2f total (%+.2f%%)\n",
		snap.UnrealizedPnL, snap.RealizedPnL, snap.TotalPnL, snap.TotalReturnPct)
	fmt.Printf("  portfolio heat:    %.4f\n", snap.PortfolioHeat)
	if snap.TotalTrades > 0 {
		pf := "inf"
		if !math.IsInf(snap.ProfitFactor, 1) {
			pf = fmt.Sprintf("%.2f", snap.ProfitFactor)
		}
		fmt.Printf("  trades:            %d, win rate %.1f%%, profit factor %s\n",
			snap.TotalTrades, snap.WinRate*100, pf)
	}
	return nil
}

func runSnapshotHistory(cmd *cobra.Command, args []string) error {
	if sessionID == "" {
		return fmt.Errorf("--session is required")
	}
	snaps, err := st.ListSnapshots(sessionID, snapshotLimit)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("no snapshots stored")
		return nil
	}
	for _, s := range snaps {
		fmt.Printf("%s  capital %.2f  pnl %+.2f (%+.2f%%)  open %d\n",
			s.Timestamp.Format("2006-01-02 15:04:05"),
			s.TotalCapital, s.TotalPnL, s.TotalReturnPct, s.OpenPositions)
	}
	return nil
}
