package snapshot

import (
	"context"
	"fmt"
	"math"
	"time"

	"marketpulse/internal/domain"
	"marketpulse/internal/enrich"
	"marketpulse/internal/indicator"
	"marketpulse/internal/provider"
	"marketpulse/internal/symbol"
)

// Generator wires the store, provider coordinator (for historical
// targets) and enrichment pipeline (for today) together to implement
// generate_daily_snapshots (spec §4.13).
type Generator struct {
	store       Store
	coordinator *provider.Coordinator
	pipeline    *enrich.Pipeline
}

// NewGenerator builds a Generator. pipeline is used when target_date is
// today; coordinator is used directly for historical targets, which
// need a raw close series rather than a full enrichment result.
func NewGenerator(store Store, coordinator *provider.Coordinator, pipeline *enrich.Pipeline) *Generator {
	return &Generator{store: store, coordinator: coordinator, pipeline: pipeline}
}

// Result is generate_daily_snapshots's return shape: counts plus a
// human-readable summary message.
type Result struct {
	Created int
	Updated int
	Message string
}

// GenerateDaily implements spec §4.13's generation operation. Callers
// must reject non-trading-day targets and, for today, times at or
// before 15:00 Beijing, before calling this — those are HTTP-boundary
// concerns (spec §6), not this package's.
func (g *Generator) GenerateDaily(ctx context.Context, instruments []domain.Instrument, targetDate time.Time, force bool, now time.Time) (Result, error) {
	isToday := sameDay(targetDate, now)

	var computed []computedSnapshot
	var err error
	if isToday {
		computed, err = g.computeToday(ctx, instruments, now)
	} else {
		computed, err = g.computeHistorical(ctx, instruments, targetDate)
	}
	if err != nil {
		return Result{}, err
	}

	created, updated := 0, 0
	for _, c := range computed {
		if !force {
			existing, err := g.store.GetOne(ctx, c.snapshot.InstrumentID, c.snapshot.Date)
			if err != nil {
				return Result{}, fmt.Errorf("checking existing snapshot for instrument %d: %w", c.snapshot.InstrumentID, err)
			}
			if existing != nil {
				continue // idempotent: force=false never touches an existing snapshot (P7)
			}
		}
		wasCreated, err := g.store.Upsert(ctx, c.snapshot)
		if err != nil {
			return Result{}, fmt.Errorf("upserting snapshot for instrument %d: %w", c.snapshot.InstrumentID, err)
		}
		if wasCreated {
			created++
		} else {
			updated++
		}
	}

	return Result{
		Created: created,
		Updated: updated,
		Message: fmt.Sprintf("generated snapshots for %s: %d created, %d updated, %d skipped (no data)", targetDate.Format("2006-01-02"), created, updated, len(instruments)-len(computed)),
	}, nil
}

type computedSnapshot struct {
	snapshot domain.Snapshot
}

// computeToday drives the full enrichment batch (force_refresh=true per
// spec §4.13) and converts each realtime result into a Snapshot.
func (g *Generator) computeToday(ctx context.Context, instruments []domain.Instrument, now time.Time) ([]computedSnapshot, error) {
	tasks := make([]enrich.BatchTask, len(instruments))
	for i, inst := range instruments {
		_, market := symbol.Normalize(inst.Symbol)
		tasks[i] = enrich.BatchTask{
			Instrument: inst,
			TradingDay: true, // caller already verified target_date is a trading day
			InSession:  market == domain.MarketCN,
		}
	}

	results := g.pipeline.EnrichBatch(ctx, tasks, true, false)

	out := make([]computedSnapshot, 0, len(results))
	for i, res := range results {
		if res == nil {
			continue // a failed enrichment task is skipped, not fatal (spec §4.12 step 4)
		}
		out = append(out, computedSnapshot{snapshot: domain.Snapshot{
			InstrumentID: instruments[i].ID,
			Date:         truncateDay(now),
			Price:        res.CurrentPrice,
			MAResults:    res.MAResults,
		}})
	}
	return out, nil
}

// computeHistorical fetches each instrument's k-line series, trims it to
// the close on or before targetDate, and computes MA from that trimmed
// series (data_source=kline_close), skipping instruments with no data
// at all on or before the target date.
func (g *Generator) computeHistorical(ctx context.Context, instruments []domain.Instrument, targetDate time.Time) ([]computedSnapshot, error) {
	out := make([]computedSnapshot, 0, len(instruments))
	for _, inst := range instruments {
		code, market := symbol.Normalize(inst.Symbol)
		maxPeriod := inst.MaxPeriod()

		points, _, err := g.coordinator.GetKlineData(ctx, inst.Symbol, code, market, maxPeriod+250)
		if err != nil {
			continue // no provider had historical data for this instrument; skip it
		}

		closes := closesThrough(points, targetDate)
		if len(closes) == 0 {
			continue
		}
		price := closes[len(closes)-1]

		maResults := map[string]domain.MAResult{}
		for _, k := range inst.MASpec {
			v, ok := indicator.MA(closes, k)
			if !ok {
				continue
			}
			maResults[fmt.Sprintf("MA%d", k)] = domain.MAResult{
				MAPrice:    v,
				Reached:    price >= v,
				Diff:       round2(price - v),
				DiffPct:    round2(pctDiff(price, v)),
				DataSource: domain.DataSourceKlineClose,
			}
		}
		if len(maResults) == 0 {
			continue
		}

		out = append(out, computedSnapshot{snapshot: domain.Snapshot{
			InstrumentID: inst.ID,
			Date:         truncateDay(targetDate),
			Price:        price,
			MAResults:    maResults,
		}})
	}
	return out, nil
}

// closesThrough returns the close prices of every point on or before
// through, in the ascending (oldest-first) order providers emit k-lines
// in (spec §6: L4's CSV is explicitly reversed to this order before emitting).
func closesThrough(points []provider.KlinePoint, through time.Time) []float64 {
	cutoff := truncateDay(through)
	out := make([]float64, 0, len(points))
	for _, p := range points {
		if truncateDay(p.Day).After(cutoff) {
			continue
		}
		if p.Close <= 0 {
			continue
		}
		out = append(out, p.Close)
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func pctDiff(current, ma float64) float64 {
	if ma == 0 {
		return 0
	}
	return (current - ma) / ma * 100
}
