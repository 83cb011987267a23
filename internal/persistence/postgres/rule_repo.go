package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"marketpulse/internal/domain"
)

// RuleRepo persists the JSON-declared trading rules the rule engine
// (C11) evaluates. When the table is empty, the caller seeds it with
// rule.DefaultRules() through Seed and then reads the rules back.
type RuleRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewRuleRepo(db *sqlx.DB, timeout time.Duration) *RuleRepo {
	return &RuleRepo{db: db, timeout: timeout}
}

type ruleRow struct {
	ID                  int64  `db:"id"`
	Name                string `db:"name"`
	RuleType            string `db:"rule_type"`
	Enabled             bool   `db:"enabled"`
	Priority            int    `db:"priority"`
	Strength            int    `db:"strength"`
	Conditions          []byte `db:"conditions"`
	PriceConfig         []byte `db:"price_config"`
	DescriptionTemplate string `db:"description_template"`
}

// ListEnabled returns every enabled rule, ordered by priority
// descending — the same order rule.Evaluate re-derives defensively.
func (r *RuleRepo) ListEnabled(ctx context.Context) ([]domain.TradingRule, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []ruleRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, rule_type, enabled, priority, strength, conditions, price_config, description_template
		FROM trading_rules WHERE enabled = true ORDER BY priority DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing trading rules: %w", err)
	}

	out := make([]domain.TradingRule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func (row ruleRow) toDomain() (domain.TradingRule, error) {
	var conditions []domain.ConditionSpec
	if len(row.Conditions) > 0 {
		if err := json.Unmarshal(row.Conditions, &conditions); err != nil {
			return domain.TradingRule{}, fmt.Errorf("decoding conditions for rule %d: %w", row.ID, err)
		}
	}
	var priceConfig domain.PriceConfig
	if len(row.PriceConfig) > 0 {
		if err := json.Unmarshal(row.PriceConfig, &priceConfig); err != nil {
			return domain.TradingRule{}, fmt.Errorf("decoding price_config for rule %d: %w", row.ID, err)
		}
	}
	return domain.TradingRule{
		ID: row.ID, Name: row.Name, Kind: domain.RuleKind(row.RuleType), Enabled: row.Enabled,
		Priority: row.Priority, Strength: row.Strength, Conditions: conditions,
		PriceConfig: priceConfig, DescriptionTemplate: row.DescriptionTemplate,
	}, nil
}

// Count reports how many rules (enabled or not) exist, so callers know
// whether the table still needs seeding with rule.DefaultRules().
func (r *RuleRepo) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM trading_rules`); err != nil {
		return 0, fmt.Errorf("counting trading rules: %w", err)
	}
	return n, nil
}

// Seed inserts the given rules, used once at bootstrap when Count is 0.
func (r *RuleRepo) Seed(ctx context.Context, rules []domain.TradingRule) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rule seed tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trading_rules
			(name, rule_type, enabled, priority, strength, conditions, price_config, description_template, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`)
	if err != nil {
		return fmt.Errorf("preparing rule seed insert: %w", err)
	}
	defer stmt.Close()

	for _, rule := range rules {
		conditionsJSON, err := json.Marshal(rule.Conditions)
		if err != nil {
			return fmt.Errorf("encoding conditions for rule %s: %w", rule.Name, err)
		}
		priceConfigJSON, err := json.Marshal(rule.PriceConfig)
		if err != nil {
			return fmt.Errorf("encoding price_config for rule %s: %w", rule.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, rule.Name, rule.Kind, rule.Enabled, rule.Priority,
			rule.Strength, conditionsJSON, priceConfigJSON, rule.DescriptionTemplate); err != nil {
			return fmt.Errorf("seeding rule %s: %w", rule.Name, err)
		}
	}

	return tx.Commit()
}
