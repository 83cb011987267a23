package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// newSnapshotCmd implements the `snapshot generate` subcommand, the CLI
// automation shim for the operator-triggered path spec §1 describes
// ("pull-based, driven by ... operator-triggered snapshot generation").
func newSnapshotCmd(logger zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Daily snapshot commands",
	}

	var targetDate string
	var force bool

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate daily snapshots for every tracked instrument",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(flagConfigPath, flagEnvPath, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			date := time.Now()
			if targetDate != "" {
				date, err = time.Parse("2006-01-02", targetDate)
				if err != nil {
					return fmt.Errorf("invalid --target-date: %w", err)
				}
			}

			ctx, cancel := a.newContext()
			defer cancel()

			isTradingDay, reason, err := a.calendar.IsTradingDayWithReason(ctx, date)
			if err != nil {
				return fmt.Errorf("calendar lookup failed: %w", err)
			}
			if !isTradingDay {
				return fmt.Errorf("%s is not a trading day (%s)", date.Format("2006-01-02"), reason)
			}

			instruments, err := a.repos.Instrument.ListAll(ctx)
			if err != nil {
				return fmt.Errorf("loading instruments: %w", err)
			}

			result, err := a.generator.GenerateDaily(ctx, instruments, date, force, time.Now())
			if err != nil {
				return fmt.Errorf("generating snapshots: %w", err)
			}
			fmt.Println(result.Message)
			return nil
		},
	}
	generateCmd.Flags().StringVar(&targetDate, "target-date", "", "date to generate (YYYY-MM-DD, default today)")
	generateCmd.Flags().BoolVar(&force, "force", false, "overwrite existing snapshots")

	cmd.AddCommand(generateCmd)
	return cmd
}
