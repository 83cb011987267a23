package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"marketpulse/internal/domain"
)

// InstrumentRepo persists Instruments and their many-to-many Group
// membership, following the stocks/groups/stock_group_association
// layout spec §6 lays out.
type InstrumentRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewInstrumentRepo(db *sqlx.DB, timeout time.Duration) *InstrumentRepo {
	return &InstrumentRepo{db: db, timeout: timeout}
}

// ParseMATypes turns the comma-separated ma_types column into the
// ordered int slice the rest of the pipeline works with.
func ParseMATypes(raw string) []int {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if v, err := strconv.Atoi(p); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// FormatMATypes is ParseMATypes's inverse, used on write.
func FormatMATypes(spec []int) string {
	parts := make([]string, len(spec))
	for i, v := range spec {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// GetBySymbol looks up one instrument by its unique symbol, with groups
// eagerly loaded (never lazily, per spec §9's concurrency rule).
func (r *InstrumentRepo) GetBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var inst domain.Instrument
	err := r.db.GetContext(ctx, &inst, `
		SELECT id, symbol, name, ma_types, current_price, created_at, updated_at
		FROM stocks WHERE symbol = $1`, symbol)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading instrument %s: %w", symbol, err)
	}
	inst.MASpec = ParseMATypes(inst.MATypesRaw)

	groups, err := r.groupsFor(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	inst.Groups = groups
	return &inst, nil
}

// ListAll loads every tracked instrument with groups eagerly populated
// — the shape enrich_batch's caller needs before fanning out to workers.
func (r *InstrumentRepo) ListAll(ctx context.Context) ([]domain.Instrument, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []domain.Instrument
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, symbol, name, ma_types, current_price, created_at, updated_at
		FROM stocks ORDER BY id`); err != nil {
		return nil, fmt.Errorf("listing instruments: %w", err)
	}

	ids := make([]int64, len(rows))
	for i, inst := range rows {
		rows[i].MASpec = ParseMATypes(inst.MATypesRaw)
		ids[i] = inst.ID
	}

	groupsByInstrument, err := r.groupsForMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, inst := range rows {
		rows[i].Groups = groupsByInstrument[inst.ID]
	}
	return rows, nil
}

// UpdatePrice writes back C12's post-enrichment (price, updated_at)
// pair — the only fields C12 is allowed to mutate (spec §3).
func (r *InstrumentRepo) UpdatePrice(ctx context.Context, instrumentID int64, price float64, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE stocks SET current_price = $1, updated_at = $2 WHERE id = $3`, price, at, instrumentID)
	if err != nil {
		return fmt.Errorf("updating price for instrument %d: %w", instrumentID, err)
	}
	return nil
}

func (r *InstrumentRepo) groupsFor(ctx context.Context, instrumentID int64) ([]domain.Group, error) {
	var groups []domain.Group
	err := r.db.SelectContext(ctx, &groups, `
		SELECT g.id, g.name FROM groups g
		JOIN stock_group_association a ON a.group_id = g.id
		WHERE a.stock_id = $1
		ORDER BY g.id`, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("loading groups for instrument %d: %w", instrumentID, err)
	}
	return groups, nil
}

func (r *InstrumentRepo) groupsForMany(ctx context.Context, instrumentIDs []int64) (map[int64][]domain.Group, error) {
	out := make(map[int64][]domain.Group, len(instrumentIDs))
	if len(instrumentIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT a.stock_id AS instrument_id, g.id, g.name FROM groups g
		JOIN stock_group_association a ON a.group_id = g.id
		WHERE a.stock_id IN (?)
		ORDER BY a.stock_id, g.id`, instrumentIDs)
	if err != nil {
		return nil, fmt.Errorf("building group membership query: %w", err)
	}
	query = r.db.Rebind(query)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading group membership: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var instrumentID int64
		var g domain.Group
		if err := rows.Scan(&instrumentID, &g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("scanning group membership row: %w", err)
		}
		out[instrumentID] = append(out[instrumentID], g)
	}
	return out, rows.Err()
}
