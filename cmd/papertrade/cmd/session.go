package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantor/papertrade/config"
	"github.com/quantor/papertrade/pkg/id"
	"github.com/quantor/papertrade/portfolio"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage trading sessions",
	Long: `Create and inspect trading sessions.

Examples:
  papertrade session create --capital 100000 --user alice
  papertrade session create --config session.yaml
  papertrade --session <id> session show`,
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new trading session",
	Args:  cobra.NoArgs,
	RunE:  runSessionCreate,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show session capital and limits",
	Args:  cobra.NoArgs,
	RunE:  runSessionShow,
}

var (
	sessionUser    string
	sessionCapital float64
	sessionConfig  string
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionShowCmd)

	sessionCreateCmd.Flags().StringVar(&sessionUser, "user", "", "owning user id")
	sessionCreateCmd.Flags().Float64Var(&sessionCapital, "capital", 100000, "initial virtual capital")
	sessionCreateCmd.Flags().StringVar(&sessionConfig, "config", "", "session config file (YAML or JSON)")
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	var cfg *config.Session
	if sessionConfig != "" {
		loaded, err := config.LoadFromFile(sessionConfig)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		cfg.InitialCapital = sessionCapital
		cfg.CurrentCapital = sessionCapital
	}
	if cfg.SessionID == "" {
		cfg.SessionID = id.New()
	}
	if sessionUser != "" {
		cfg.UserID = sessionUser
	}
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.LastUpdated = now
	cfg.IsActive = true

	if _, err := portfolio.New(cfg, st, log); err != nil {
		return err
	}

	fmt.Printf("created session %s\n", cfg.SessionID)
	fmt.Printf("  initial capital: %.2f\n", cfg.InitialCapital)
	fmt.Printf("  max position:    %.0f%% of capital\n", cfg.MaxPositionSizePct*100)
	fmt.Printf("  max exposure:    %.0f%% of capital\n", cfg.MaxTotalExposurePct*100)
	fmt.Printf("  max positions:   %d\n", cfg.MaxConcurrentPositions)
	return nil
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	c, err := coordinator()
	if err != nil {
		return err
	}

	cfg := c.Session()
	ms := c.MarginStatus()

	fmt.Printf("session %s (user %s)\n", cfg.SessionID, cfg.UserID)
	fmt.Printf("  active:            %v\n", cfg.IsActive)
	fmt.Printf("  initial capital:   %.2f\n", cfg.InitialCapital)
	fmt.Printf("  available capital: %.2f\n", cfg.CurrentCapital)
	fmt.Printf("  margin used:       %.2f (%.1f%%)\n", ms.Used, ms.UsagePct)
	if ms.Critical {
		fmt.Println("  margin usage CRITICAL (>= 90%)")
	} else if ms.Warning {
		fmt.Println("  margin usage warning (>= 80%)")
	}
	fmt.Printf("  open positions:    %d / %d\n", len(c.OpenPositions()), cfg.MaxConcurrentPositions)
	fmt.Printf("  risk per trade:    %.1f%%\n", cfg.RiskPerTradePct*100)
	fmt.Printf("  pyramiding:        %v, hedging: %v\n", cfg.AllowPyramiding, cfg.AllowHedging)
	return nil
}
