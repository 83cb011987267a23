package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"marketpulse/internal/domain"
)

// SignalRepo persists the append-only per-day signal output of the rule
// engine (C11), one row per instrument per day.
type SignalRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewSignalRepo(db *sqlx.DB, timeout time.Duration) *SignalRepo {
	return &SignalRepo{db: db, timeout: timeout}
}

// Insert appends a new signal row; signals are never updated in place
// (spec §3: "append-only per day").
func (r *SignalRepo) Insert(ctx context.Context, sig domain.Signal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	triggersJSON, err := json.Marshal(sig.Triggers)
	if err != nil {
		return fmt.Errorf("encoding triggers: %w", err)
	}
	indicatorsJSON, err := json.Marshal(sig.Indicators)
	if err != nil {
		return fmt.Errorf("encoding indicators: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO signals
			(stock_id, signal_date, signal_type, current_price, entry_price,
			 stop_loss, take_profit, strength, triggers, indicators, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
		sig.InstrumentID, sig.SignalDate.Format("2006-01-02"), sig.Kind, sig.CurrentPrice,
		sig.EntryPrice, sig.StopLoss, sig.TakeProfit, sig.Strength, triggersJSON, indicatorsJSON)
	if err != nil {
		return fmt.Errorf("inserting signal for instrument %d: %w", sig.InstrumentID, err)
	}
	return nil
}

// ListByInstrument returns the most recent signals for one instrument,
// newest first, bounded by limit.
func (r *SignalRepo) ListByInstrument(ctx context.Context, instrumentID int64, limit int) ([]domain.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, stock_id, signal_date, signal_type, current_price, entry_price,
		       stop_loss, take_profit, strength, triggers, indicators, created_at
		FROM signals WHERE stock_id = $1
		ORDER BY signal_date DESC, id DESC LIMIT $2`, instrumentID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing signals for instrument %d: %w", instrumentID, err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var triggersJSON, indicatorsJSON []byte
		if err := rows.Scan(&sig.ID, &sig.InstrumentID, &sig.SignalDate, &sig.Kind, &sig.CurrentPrice,
			&sig.EntryPrice, &sig.StopLoss, &sig.TakeProfit, &sig.Strength, &triggersJSON, &indicatorsJSON, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning signal row: %w", err)
		}
		if len(triggersJSON) > 0 {
			if err := json.Unmarshal(triggersJSON, &sig.Triggers); err != nil {
				return nil, fmt.Errorf("decoding triggers for signal %d: %w", sig.ID, err)
			}
		}
		if len(indicatorsJSON) > 0 {
			if err := json.Unmarshal(indicatorsJSON, &sig.Indicators); err != nil {
				return nil, fmt.Errorf("decoding indicators for signal %d: %w", sig.ID, err)
			}
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
