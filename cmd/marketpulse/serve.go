package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"marketpulse/internal/httpapi"
)

// newServeCmd starts the JSON HTTP façade plus the cron-driven daily
// snapshot job. The teacher's own internal/scheduler carries an
// unfinished hand-rolled cron stub (`TODO: Implement cron scheduling
// logic`); this uses github.com/robfig/cron/v3 instead, per
// SPEC_FULL.md §11.
func newServeCmd(logger zerolog.Logger) *cobra.Command {
	var host string
	var port int
	var snapshotCron string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled snapshot job",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(flagConfigPath, flagEnvPath, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if host != "" {
				a.cfg.HTTP.Host = host
			}
			if port != 0 {
				a.cfg.HTTP.Port = port
			}
			if snapshotCron != "" {
				a.cfg.Pipeline.SnapshotCron = snapshotCron
			}

			srv, err := httpapi.NewServer(httpapi.Config{
				Host:         a.cfg.HTTP.Host,
				Port:         a.cfg.HTTP.Port,
				ReadTimeout:  a.cfg.HTTP.ReadTimeout(),
				WriteTimeout: a.cfg.HTTP.WriteTimeout(),
				IdleTimeout:  a.cfg.HTTP.IdleTimeout(),
			}, httpapi.Deps{
				Calendar:    a.calendar,
				Coordinator: a.coordinator,
				Pipeline:    a.pipeline,
				Generator:   a.generator,
				Store:       a.repos.Snapshot,
				Instruments: a.repos.Instrument,
			}, logger)
			if err != nil {
				return fmt.Errorf("building http server: %w", err)
			}

			c := cron.New()
			if _, err := c.AddFunc(a.cfg.Pipeline.SnapshotCron, func() {
				runScheduledSnapshot(a, logger)
			}); err != nil {
				return fmt.Errorf("registering snapshot cron %q: %w", a.cfg.Pipeline.SnapshotCron, err)
			}
			c.Start()
			defer c.Stop()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger.Info().Str("addr", fmt.Sprintf("%s:%d", a.cfg.HTTP.Host, a.cfg.HTTP.Port)).
				Str("snapshot_cron", a.cfg.Pipeline.SnapshotCron).Msg("marketpulse starting")
			return srv.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "override http.host")
	cmd.Flags().IntVar(&port, "port", 0, "override http.port")
	cmd.Flags().StringVar(&snapshotCron, "snapshot-cron", "", "override pipeline.snapshot_cron (5-field cron expression)")
	return cmd
}

// runScheduledSnapshot drives the post-close daily snapshot job,
// the periodic trigger spec §9 calls for in place of the teacher's
// stubbed scheduler. Failures are logged, never fatal — a missed
// snapshot run is recoverable by the next scheduled tick or a manual
// `marketpulse snapshot generate`.
func runScheduledSnapshot(a *app, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now()
	isTradingDay, reason, err := a.calendar.IsTradingDayWithReason(ctx, now)
	if err != nil {
		logger.Warn().Err(err).Msg("scheduled snapshot: calendar lookup failed")
		return
	}
	if !isTradingDay {
		logger.Info().Str("reason", reason).Msg("scheduled snapshot: skipped, not a trading day")
		return
	}

	instruments, err := a.repos.Instrument.ListAll(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("scheduled snapshot: loading instruments failed")
		return
	}

	result, err := a.generator.GenerateDaily(ctx, instruments, now, false, now)
	if err != nil {
		logger.Error().Err(err).Msg("scheduled snapshot: generation failed")
		return
	}
	logger.Info().Int("created", result.Created).Int("updated", result.Updated).Msg("scheduled snapshot complete")
}
