package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantor/papertrade/internal/logger"
	"github.com/quantor/papertrade/portfolio"
	"github.com/quantor/papertrade/store"
)

var rootCmd = &cobra.Command{
	Use:   "papertrade",
	Short: "A paper-trading position and portfolio accounting engine",
	Long: `Papertrade simulates trade execution against virtual capital.

It provides tools for:
  - Opening, adding to, reducing, and closing leveraged positions
  - Risk-based position sizing and pre-trade admission checks
  - Stop-loss, take-profit ladder, time-stop, and invalidation exits
  - Portfolio snapshots and trade statistics
  - Durable SQLite session state that survives restarts`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	dbPath    string
	sessionID string
	logLevel  string

	log *zap.Logger
	st  *store.Store
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer teardown()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "./papertrade.sqlite", "path to SQLite database")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "trading session id")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

var closers []func()

func setup(cmd *cobra.Command, args []string) error {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	var (
		sync func()
		err  error
	)
	log, sync, err = logger.New(logLevel)
	if err != nil {
		return err
	}
	closers = append(closers, sync)

	st, err = store.Open(dbPath)
	if err != nil {
		return err
	}
	closers = append(closers, func() { _ = st.Close() })
	return nil
}

func teardown() {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func coordinator() (*portfolio.Coordinator, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("--session is required")
	}
	return portfolio.Restore(st, sessionID, log)
}
