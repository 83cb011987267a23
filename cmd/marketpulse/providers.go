package main

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// newProvidersCmd implements `providers health`, the CLI mirror of
// GET /providers/health — useful for operators without HTTP access
// (e.g. from inside a deployment shell).
func newProvidersCmd(logger zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect provider health",
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Print every registered provider's current health snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(flagConfigPath, flagEnvPath, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			status := a.coordinator.HealthStatus()
			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding health status: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.AddCommand(healthCmd)
	return cmd
}
