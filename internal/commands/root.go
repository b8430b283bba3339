package commands

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quotedesk",
	Short: "Market quote aggregation service",
	Long: `A market quote aggregation service built with Go.

Features:
• Multi-source quote reconciliation with deterministic priority fallback
• Live streaming trades over WebSocket with automatic reconnect
• Always-on polling fallback so watched symbols never go stale
• Trailing-window price forecasts per symbol
• REST API for quotes, watchlist, pins, news and symbol search
• Optional Redis caching and NATS fan-out`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
