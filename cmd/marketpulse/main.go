// Command marketpulse runs the market-data acquisition and indicator
// pipeline: the HTTP façade (spec §6), snapshot generation, trading
// calendar maintenance, and provider health inspection. Grounded on the
// teacher's cmd/cryptorun/main.go (cobra root command, zerolog console
// bootstrap in dev, subcommands each delegating to a runE function in
// its own file).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	appName = "marketpulse"
	version = "v0.1.0"
)

var (
	flagConfigPath string
	flagEnvPath    string
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	if os.Getenv("MARKETPULSE_ENV") == "production" {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Market data acquisition & indicator pipeline",
		Version: version,
		Long: `marketpulse sources market data from a volatile pool of third-party
providers, computes moving-average and technical indicators, derives
buy/sell signals, and persists daily snapshots for differential reports.`,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagEnvPath, "env", ".env", "path to the .env secrets file")

	rootCmd.AddCommand(
		newServeCmd(logger),
		newSnapshotCmd(logger),
		newCalendarCmd(logger),
		newProvidersCmd(logger),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
