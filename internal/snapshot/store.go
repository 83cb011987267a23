// Package snapshot implements daily snapshot generation and the
// differential daily report (C13): generate_daily_snapshots persists one
// Snapshot per instrument per trading day, and daily_report diffs
// today's snapshots against each instrument's most recent prior one to
// classify newly-reached / continuously-below instruments. Grounded on
// the teacher's internal/application package's "precompute once, reuse
// across reporting" shape (internal/application/scan.go) and the
// generation/report split the source keeps as two separate operations.
package snapshot

import (
	"context"
	"time"

	"marketpulse/internal/domain"
)

// Store persists snapshots and answers the two queries generation and
// reporting need. Implemented by internal/persistence/postgres in production.
type Store interface {
	// GetByDate returns every snapshot recorded for exactly date.
	GetByDate(ctx context.Context, date time.Time) ([]domain.Snapshot, error)
	// GetOne returns the snapshot for (instrumentID, date), if any.
	GetOne(ctx context.Context, instrumentID int64, date time.Time) (*domain.Snapshot, error)
	// GetLatestBefore returns, for each requested instrument, its most
	// recent snapshot strictly before date (the "prior" set §4.13 step 2).
	GetLatestBefore(ctx context.Context, instrumentIDs []int64, date time.Time) (map[int64]domain.Snapshot, error)
	// Upsert writes snap, returning whether a new row was inserted
	// (true) or an existing one was updated (false).
	Upsert(ctx context.Context, snap domain.Snapshot) (created bool, err error)
}
