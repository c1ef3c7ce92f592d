package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/fare-guardian/internal/app"
	"github.com/ogulcanaydogan/fare-guardian/internal/config"
	"github.com/ogulcanaydogan/fare-guardian/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fareguard",
	Short: "Fare Guardian - flight fare alerts",
	Long: `Fare Guardian watches flight prices for saved routes and sends a message
when a fare drops to or below your ceiling. Use it to manage alerts, inspect
deals found so far, and run a check pass by hand.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.fareguard/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	return app.NewLogger(cfg, os.Stderr)
}

// openStore loads config and opens the configured storage backend.
func openStore() (*config.Config, storage.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := app.OpenStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}
