package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dealerops/bookout/version"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "bookout",
	Short: "Bulk-download vehicle bookout PDFs from the valuation portal",
	Long: `Bookout logs into the vehicle valuation portal once, exports the dealer
inventory, and downloads each vehicle's bookout report PDF through a pool of
worker tabs sharing the authenticated session.

Runs are crash-safe: per-reference status and run counters are persisted
after every download, and re-running the same day resumes where the previous
run stopped.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.bookout/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn, error",
	)

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger honoring --log-level.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
