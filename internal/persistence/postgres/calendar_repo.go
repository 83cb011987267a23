// Package postgres implements the PostgreSQL-backed repositories for
// every persisted type in the data model (spec §6's persistence
// layout): trading calendar, instruments/groups, snapshots, signals and
// trading rules. Grounded on the teacher's own internal/persistence/postgres
// package (one file per aggregate, sqlx.DB + a per-call context timeout,
// ON CONFLICT upserts, explicit scan helpers).
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"marketpulse/internal/domain"
)

// calendarRepo implements calendar.Store for PostgreSQL.
type calendarRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCalendarRepo builds a calendar.Store backed by the trading_calendar table.
func NewCalendarRepo(db *sqlx.DB, timeout time.Duration) *calendarRepo {
	return &calendarRepo{db: db, timeout: timeout}
}

type calendarRow struct {
	ID           int64     `db:"id"`
	TradeDate    time.Time `db:"trade_date"`
	IsTradingDay bool      `db:"is_trading_day"`
	Year         int       `db:"year"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *calendarRepo) GetYear(ctx context.Context, year int) ([]domain.CalendarEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []calendarRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, trade_date, is_trading_day, year, created_at, updated_at
		FROM trading_calendar
		WHERE year = $1
		ORDER BY trade_date`, year)
	if err != nil {
		return nil, fmt.Errorf("loading calendar year %d: %w", year, err)
	}

	out := make([]domain.CalendarEntry, len(rows))
	for i, row := range rows {
		out[i] = domain.CalendarEntry{
			ID: row.ID, Date: row.TradeDate, IsTradingDay: row.IsTradingDay,
			Year: row.Year, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
		}
	}
	return out, nil
}

func (r *calendarRepo) UpsertYear(ctx context.Context, year int, entries []domain.CalendarEntry) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(entries)/250+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning calendar upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trading_calendar (trade_date, is_trading_day, year, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (trade_date) DO UPDATE SET
			is_trading_day = EXCLUDED.is_trading_day,
			year = EXCLUDED.year,
			updated_at = now()`)
	if err != nil {
		return fmt.Errorf("preparing calendar upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Date, e.IsTradingDay, year); err != nil {
			return fmt.Errorf("upserting calendar entry %s: %w", e.Date.Format("2006-01-02"), err)
		}
	}

	return tx.Commit()
}
