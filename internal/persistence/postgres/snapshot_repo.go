package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"marketpulse/internal/domain"
)

// SnapshotRepo implements snapshot.Store for PostgreSQL, storing
// ma_results as a JSON text column the way the teacher's regime/premove
// repos store their weights/metadata maps.
type SnapshotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewSnapshotRepo(db *sqlx.DB, timeout time.Duration) *SnapshotRepo {
	return &SnapshotRepo{db: db, timeout: timeout}
}

type snapshotRow struct {
	ID           int64     `db:"id"`
	StockID      int64     `db:"stock_id"`
	SnapshotDate time.Time `db:"snapshot_date"`
	Price        float64   `db:"price"`
	MAResults    []byte    `db:"ma_results"`
	CreatedAt    time.Time `db:"created_at"`
}

func (row snapshotRow) toDomain() (domain.Snapshot, error) {
	var ma map[string]domain.MAResult
	if len(row.MAResults) > 0 {
		if err := json.Unmarshal(row.MAResults, &ma); err != nil {
			return domain.Snapshot{}, fmt.Errorf("decoding ma_results for snapshot %d: %w", row.ID, err)
		}
	}
	return domain.Snapshot{
		ID: row.ID, InstrumentID: row.StockID, Date: row.SnapshotDate,
		Price: row.Price, MAResults: ma, CreatedAt: row.CreatedAt,
	}, nil
}

func (r *SnapshotRepo) GetByDate(ctx context.Context, date time.Time) ([]domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []snapshotRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, stock_id, snapshot_date, price, ma_results, created_at
		FROM stock_snapshots WHERE snapshot_date = $1`, date.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("loading snapshots for %s: %w", date.Format("2006-01-02"), err)
	}

	out := make([]domain.Snapshot, len(rows))
	for i, row := range rows {
		s, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (r *SnapshotRepo) GetOne(ctx context.Context, instrumentID int64, date time.Time) (*domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row snapshotRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, stock_id, snapshot_date, price, ma_results, created_at
		FROM stock_snapshots WHERE stock_id = $1 AND snapshot_date = $2`,
		instrumentID, date.Format("2006-01-02"))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot for instrument %d on %s: %w", instrumentID, date.Format("2006-01-02"), err)
	}
	s, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SnapshotRepo) GetLatestBefore(ctx context.Context, instrumentIDs []int64, date time.Time) (map[int64]domain.Snapshot, error) {
	out := make(map[int64]domain.Snapshot, len(instrumentIDs))
	if len(instrumentIDs) == 0 {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query, args, err := sqlx.In(`
		SELECT DISTINCT ON (stock_id) id, stock_id, snapshot_date, price, ma_results, created_at
		FROM stock_snapshots
		WHERE stock_id IN (?) AND snapshot_date < ?
		ORDER BY stock_id, snapshot_date DESC`, instrumentIDs, date.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("building prior-snapshot query: %w", err)
	}
	query = r.db.Rebind(query)

	var rows []snapshotRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("loading prior snapshots before %s: %w", date.Format("2006-01-02"), err)
	}

	for _, row := range rows {
		s, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out[s.InstrumentID] = s
	}
	return out, nil
}

func (r *SnapshotRepo) Upsert(ctx context.Context, snap domain.Snapshot) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	maJSON, err := json.Marshal(snap.MAResults)
	if err != nil {
		return false, fmt.Errorf("encoding ma_results for instrument %d: %w", snap.InstrumentID, err)
	}

	var wasInserted bool
	err = r.db.QueryRowxContext(ctx, `
		INSERT INTO stock_snapshots (stock_id, snapshot_date, price, ma_results, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (stock_id, snapshot_date) DO UPDATE SET
			price = EXCLUDED.price,
			ma_results = EXCLUDED.ma_results
		RETURNING (xmax = 0)`,
		snap.InstrumentID, snap.Date.Format("2006-01-02"), snap.Price, maJSON).Scan(&wasInserted)
	if err != nil {
		return false, fmt.Errorf("upserting snapshot for instrument %d: %w", snap.InstrumentID, err)
	}
	return wasInserted, nil
}
