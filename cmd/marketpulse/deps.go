package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"marketpulse/internal/calendar"
	"marketpulse/internal/config"
	"marketpulse/internal/domain"
	"marketpulse/internal/enrich"
	"marketpulse/internal/persistence/postgres"
	"marketpulse/internal/provider"
	"marketpulse/internal/rule"
	"marketpulse/internal/snapshot"
)

// app bundles every collaborator built once at startup and threaded
// through every subcommand by reference, per SPEC_FULL.md §9's rule
// against hidden global singletons.
type app struct {
	cfg   config.Config
	db    *sqlx.DB
	repos *postgres.Repositories

	calendar    *calendar.Calendar
	coordinator *provider.Coordinator
	pipeline    *enrich.Pipeline
	generator   *snapshot.Generator

	logger zerolog.Logger
}

// buildApp loads configuration, opens the database, and wires every
// pipeline component the CLI subcommands and the HTTP server share.
func buildApp(configPath, envPath string, logger zerolog.Logger) (*app, error) {
	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	db, err := postgres.Connect(postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime(),
		QueryTimeout:    cfg.Database.QueryTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	repos := postgres.NewRepositories(db, postgres.Config{QueryTimeout: cfg.Database.QueryTimeout()})

	cal := calendar.New(repos.Calendar, calendar.DefaultHydrator{})
	pacer := provider.NewPacer(cfg.Pipeline.CoordinatorPacing())
	coord := provider.NewCoordinator(pacer,
		provider.NewSinaProvider(),
		provider.NewEastMoneyProvider(),
		provider.NewTencentProvider(),
		provider.NewNeteaseProvider(),
		provider.NewAKShareProvider(),
		provider.NewOpenBBProvider(),
	)

	rules, err := loadRules(context.Background(), repos.Rule)
	if err != nil {
		return nil, fmt.Errorf("loading trading rules: %w", err)
	}

	pipeline := enrich.New(coord, cal,
		enrich.WithWorkers(cfg.Pipeline.BatchWorkers),
		enrich.WithLogger(logger),
		enrich.WithRules(rules),
	)
	generator := snapshot.NewGenerator(repos.Snapshot, coord, pipeline)

	return &app{
		cfg: cfg, db: db, repos: repos,
		calendar: cal, coordinator: coord, pipeline: pipeline, generator: generator,
		logger: logger,
	}, nil
}

// loadRules returns the operator-configured trading rules, seeding the
// built-in default set on first run when the table is empty (spec
// §4.11: "a built-in default set of 8 rules must ship when the database
// is empty").
func loadRules(ctx context.Context, repo *postgres.RuleRepo) ([]domain.TradingRule, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		if err := repo.Seed(ctx, rule.DefaultRules()); err != nil {
			return nil, fmt.Errorf("seeding default rules: %w", err)
		}
	}
	return repo.ListEnabled(ctx)
}

// Close releases the database pool.
func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) newContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
