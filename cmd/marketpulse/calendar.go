package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// newCalendarCmd implements `calendar refresh`, the CLI path onto the
// same C7 hydration POST /trading-calendar/refresh exposes over HTTP.
func newCalendarCmd(logger zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Trading calendar maintenance",
	}

	var year int
	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Reload a calendar year from the store, hydrating it if the store has none",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(flagConfigPath, flagEnvPath, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if year == 0 {
				year = time.Now().Year()
			}

			ctx, cancel := a.newContext()
			defer cancel()

			if err := a.calendar.RefreshYear(ctx, year); err != nil {
				return fmt.Errorf("refreshing calendar year %d: %w", year, err)
			}
			fmt.Printf("refreshed trading calendar for %d\n", year)
			return nil
		},
	}
	refreshCmd.Flags().IntVar(&year, "year", 0, "calendar year to refresh (default: current year)")

	cmd.AddCommand(refreshCmd)
	return cmd
}
