package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quotedesk/internal/app"
	"github.com/quotedesk/pkg/config"
	"github.com/quotedesk/pkg/logger"
)

var seedTimeout time.Duration

// seedCmd reconciles the watchlist once and exits. Useful for smoke-testing
// provider credentials without starting the server.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Reconcile the configured watchlist once and exit",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().DurationVar(&seedTimeout, "timeout", 60*time.Second, "Overall timeout for the seed run")
}

func runSeed(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	application := app.New(cfg, log)
	if err := application.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()

	application.SeedWatchlist(ctx)
	return nil
}
