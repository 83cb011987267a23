package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Config is the database connection pool configuration (spec §6's
// persistence layer, environment-driven per SPEC_FULL.md §10). Grounded
// on the teacher's internal/infrastructure/db.Config.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// DefaultConfig mirrors the teacher's connection-pool defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    5 * time.Second,
	}
}

// Connect opens and verifies a PostgreSQL connection pool.
func Connect(cfg Config) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// Repositories bundles every repository this module needs, built over
// one shared connection pool.
type Repositories struct {
	Calendar   *calendarRepo
	Instrument *InstrumentRepo
	Snapshot   *SnapshotRepo
	Signal     *SignalRepo
	Rule       *RuleRepo
}

// NewRepositories wires every repository over db using cfg's per-query timeout.
func NewRepositories(db *sqlx.DB, cfg Config) *Repositories {
	return &Repositories{
		Calendar:   NewCalendarRepo(db, cfg.QueryTimeout),
		Instrument: NewInstrumentRepo(db, cfg.QueryTimeout),
		Snapshot:   NewSnapshotRepo(db, cfg.QueryTimeout),
		Signal:     NewSignalRepo(db, cfg.QueryTimeout),
		Rule:       NewRuleRepo(db, cfg.QueryTimeout),
	}
}
