// Package enrich implements the concurrent batch enrichment engine
// (spec C12): per-instrument enrichment that consults freshness (C8),
// the provider coordinator (C6), the indicator engine (C10) and the
// rule engine (C11), plus a batch path that fans out over a bounded
// worker pool while sharing precomputed, thread-safe state. Grounded
// on the teacher's internal/application scan pipelines (the same
// precompute-then-fan-out-to-a-worker-pool shape as
// internal/application/scan.go), restructured per spec §9's rule
// against cross-thread lazy relationship loading: every DB-touching
// fact a worker needs is materialized by the caller first.
package enrich

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"marketpulse/internal/cache"
	"marketpulse/internal/calendar"
	"marketpulse/internal/domain"
	"marketpulse/internal/freshness"
	"marketpulse/internal/indicator"
	"marketpulse/internal/provider"
	"marketpulse/internal/rule"
	"marketpulse/internal/spotcache"
	"marketpulse/internal/symbol"
)

// priceEntry is what the 5s price_cache (C9) stores.
type priceEntry struct {
	Price float64
	Name  string
}

// DefaultWorkers is enrich_batch's bounded pool size (spec §4.12).
const DefaultWorkers = 10

// Result is the composite spec §4.12 step 9 describes: identity plus
// ma_results, primary summary, group membership, realtime flag and
// fetch timestamp.
type Result struct {
	InstrumentID  int64
	Symbol        string
	DisplayName   string
	CurrentPrice  float64
	MAResults     map[string]domain.MAResult
	Primary       *domain.MAResult
	Groups        []domain.Group
	IsRealtime    bool
	DataFetchedAt time.Time
	Signal        *domain.RuleOutcome
}

// Pipeline is the C12 enrichment engine. The zero value is not usable; use New.
type Pipeline struct {
	coordinator *provider.Coordinator
	calendar    *calendar.Calendar
	rules       []domain.TradingRule
	workers     int
	logger      zerolog.Logger

	priceCache *cache.TTLCache[priceEntry]
	klineCache *cache.TTLCache[[]provider.KlinePoint]
	nameCache  *cache.TTLCache[string]

	now func() time.Time
}

// Option configures optional Pipeline fields at construction.
type Option func(*Pipeline)

// WithWorkers overrides the default batch worker-pool size.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger overrides the package-global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithRules overrides the trading-rule set the rule engine evaluates against.
func WithRules(rules []domain.TradingRule) Option {
	return func(p *Pipeline) { p.rules = rules }
}

// New builds a Pipeline with the C9 TTL caches spec §4.9 specifies:
// price (5s), kline (600s), name (86400s).
func New(coord *provider.Coordinator, cal *calendar.Calendar, opts ...Option) *Pipeline {
	p := &Pipeline{
		coordinator: coord,
		calendar:    cal,
		rules:       rule.DefaultRules(),
		workers:     DefaultWorkers,
		logger:      log.Logger,
		priceCache:  cache.New[priceEntry](5*time.Second, 4096),
		klineCache:  cache.New[[]provider.KlinePoint](600*time.Second, 4096),
		nameCache:   cache.New[string](86400*time.Second, 4096),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enrich runs the single-instrument path (spec §4.12 steps 1-9).
func (p *Pipeline) Enrich(ctx context.Context, inst domain.Instrument, forceRefresh, needCalc bool) (*Result, error) {
	code, market := symbol.Normalize(inst.Symbol)
	now := p.now()

	fetch, isRealtime, err := p.decide(ctx, inst, market, needCalc, forceRefresh, now)
	if err != nil {
		return nil, fmt.Errorf("freshness decision for %s: %w", inst.Symbol, err)
	}

	// resolvePrice already degrades to 0 when neither a fetch nor a
	// stored last_price is available; the caller sees that as "no
	// price yet" rather than as an error (spec §7: AllProvidersFailed
	// surfaces as current_price=null, not a thrown error).
	currentPrice, name, _ := p.resolvePrice(ctx, inst, code, market, fetch, isRealtime, now)

	maxPeriod := inst.MaxPeriod()
	closes, highs, lows, klineErr := p.resolveKline(ctx, code, market, maxPeriod, isRealtime, now)
	_ = klineErr // a kline miss degrades gracefully to MA-less output, never an error

	if isRealtime && currentPrice > 0 {
		closes = append(closes, currentPrice)
		highs = append(highs, currentPrice)
		lows = append(lows, currentPrice)
	} else if currentPrice == 0 && len(closes) > 0 {
		currentPrice = closes[len(closes)-1]
	}

	maResults := map[string]domain.MAResult{}
	var primary *domain.MAResult
	for _, k := range inst.MASpec {
		v, ok := indicator.MA(closes, k)
		if !ok {
			continue
		}
		res := domain.MAResult{
			MAPrice:    v,
			Reached:    currentPrice >= v,
			Diff:       round2(currentPrice - v),
			DiffPct:    round2(pctDiff(currentPrice, v)),
			DataSource: dataSource(isRealtime),
		}
		maResults[fmt.Sprintf("MA%d", k)] = res
		if primary == nil {
			pr := res
			primary = &pr
		}
	}

	var signal *domain.RuleOutcome
	if len(closes) >= 20 {
		snap := indicator.Compute(indicator.Series{Close: closes, High: highs, Low: lows}, inst.MASpec)
		outcome := rule.Evaluate(p.rules, currentPrice, snap)
		signal = &outcome
	}

	if name == "" {
		name = inst.DisplayName
	}

	return &Result{
		InstrumentID:  inst.ID,
		Symbol:        inst.Symbol,
		DisplayName:   name,
		CurrentPrice:  currentPrice,
		MAResults:     maResults,
		Primary:       primary,
		Groups:        inst.Groups,
		IsRealtime:    isRealtime,
		DataFetchedAt: now,
		Signal:        signal,
	}, nil
}

func (p *Pipeline) decide(ctx context.Context, inst domain.Instrument, market domain.Market, needCalc, forceRefresh bool, now time.Time) (fetch, isRealtime bool, err error) {
	if forceRefresh {
		tradingDay, tErr := p.calendar.IsTradingDay(ctx, now)
		if tErr != nil {
			return true, false, nil // calendar unavailable: still force-fetch, just not flagged realtime
		}
		return true, tradingDay && market == domain.MarketCN && spotcache.IsTradingTime(now), nil
	}

	decision, dErr := freshness.Evaluate(ctx, p.calendar, market, inst.LastPrice, inst.LastUpdatedAt, needCalc, now)
	if dErr != nil {
		return false, false, dErr
	}
	return decision.NeedsFetch, decision.IsRealtime, nil
}

func (p *Pipeline) resolvePrice(ctx context.Context, inst domain.Instrument, code string, market domain.Market, fetch, isRealtime bool, now time.Time) (float64, string, error) {
	if !fetch {
		if inst.LastPrice != nil && *inst.LastPrice > 0 {
			return *inst.LastPrice, inst.DisplayName, nil
		}
		fetch = true // recovery: nothing on record, must fetch regardless
	}

	cacheKey := inst.Symbol
	if !isRealtime {
		if cached, ok := p.priceCache.Get(cacheKey); ok {
			return cached.Price, cached.Name, nil
		}
	}

	result, err := p.coordinator.GetRealtimePrice(ctx, inst.Symbol, code, market)
	if err != nil {
		if inst.LastPrice != nil && *inst.LastPrice > 0 {
			return *inst.LastPrice, inst.DisplayName, err
		}
		return 0, "", err
	}

	if !isRealtime {
		p.priceCache.Set(cacheKey, priceEntry{Price: result.Data.Price, Name: result.Data.Name})
	}
	p.nameCache.Set(cacheKey, result.Data.Name)
	return result.Data.Price, result.Data.Name, nil
}

func (p *Pipeline) resolveKline(ctx context.Context, code string, market domain.Market, maxPeriod int, isRealtime bool, now time.Time) (closes, highs, lows []float64, err error) {
	key := fmt.Sprintf("%s:%s:%d", code, now.Format("2006-01-02"), maxPeriod)

	var points []provider.KlinePoint
	if !isRealtime {
		if cached, ok := p.klineCache.Get(key); ok {
			points = cached
		}
	}

	if points == nil {
		points, _, err = p.coordinator.GetKlineData(ctx, code, code, market, maxPeriod+2)
		if err != nil {
			return nil, nil, nil, err
		}
		if !isRealtime {
			p.klineCache.Set(key, points)
		}
	}

	closes = make([]float64, 0, len(points))
	highs = make([]float64, 0, len(points))
	lows = make([]float64, 0, len(points))
	for _, pt := range points {
		if pt.Close <= 0 {
			continue
		}
		closes = append(closes, pt.Close)
		highs = append(highs, pt.High)
		lows = append(lows, pt.Low)
	}
	return closes, highs, lows, nil
}

// ClearCaches drains the price/kline/name TTL caches (C9's
// clear_all_caches()) and returns how many entries were evicted from
// each, for the /stocks/symbol/{symbol}/clear-cache-and-refresh surface.
func (p *Pipeline) ClearCaches() map[string]int {
	priceStats := p.priceCache.Stats()
	klineStats := p.klineCache.Stats()
	nameStats := p.nameCache.Stats()
	p.priceCache.Clear()
	p.klineCache.Clear()
	p.nameCache.Clear()
	return map[string]int{
		"price": priceStats.Size,
		"kline": klineStats.Size,
		"name":  nameStats.Size,
	}
}

// BatchTask is one instrument plus the facts the caller must
// precompute before submitting it to the worker pool (spec §4.12
// batch step 1-2): batch workers never touch the database.
type BatchTask struct {
	Instrument domain.Instrument
	TradingDay bool
	InSession  bool
}

// EnrichBatch runs the concurrent batch path (spec §4.12). The caller
// has already resolved TradingDay/InSession per market on its own
// thread; workers only read those precomputed facts, never the
// database. The returned slice has exactly len(tasks) elements; a
// failed task's slot is left nil rather than aborting the batch.
func (p *Pipeline) EnrichBatch(ctx context.Context, tasks []BatchTask, forceRefresh, needCalc bool) []*Result {
	out := make([]*Result, len(tasks))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	start := p.now()
	for i, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, task BatchTask) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := p.enrichPrecomputed(ctx, task, forceRefresh, needCalc)
			if err != nil {
				p.logger.Warn().Err(err).Str("symbol", task.Instrument.Symbol).Msg("enrichment task failed, excluded from batch")
				return
			}
			out[i] = res
		}(i, task)
	}
	wg.Wait()

	p.logger.Info().
		Int("count", len(tasks)).
		Dur("elapsed", p.now().Sub(start)).
		Msg("batch enrichment complete")

	return out
}

// enrichPrecomputed is Enrich's logic with the freshness decision
// replaced by the batch-precomputed trading-day/session facts, so no
// worker goroutine ever calls into the calendar store.
func (p *Pipeline) enrichPrecomputed(ctx context.Context, task BatchTask, forceRefresh, needCalc bool) (*Result, error) {
	inst := task.Instrument
	code, market := symbol.Normalize(inst.Symbol)
	now := p.now()

	var fetch, isRealtime bool
	switch {
	case needCalc:
		fetch = true
	case market == domain.MarketCN && !task.TradingDay:
		fetch = false
	case market == domain.MarketCN && task.InSession:
		fetch, isRealtime = true, true
	case inst.LastPrice == nil || *inst.LastPrice == 0:
		fetch = true
	case inst.LastUpdatedAt == nil || inst.LastUpdatedAt.Before(freshness.MostRecentClose(now)):
		fetch = true
	}
	if forceRefresh {
		fetch = true
		isRealtime = task.TradingDay && task.InSession && market == domain.MarketCN
	}

	currentPrice, name, _ := p.resolvePrice(ctx, inst, code, market, fetch, isRealtime, now)

	maxPeriod := inst.MaxPeriod()
	closes, highs, lows, _ := p.resolveKline(ctx, code, market, maxPeriod, isRealtime, now)

	if isRealtime && currentPrice > 0 {
		closes = append(closes, currentPrice)
		highs = append(highs, currentPrice)
		lows = append(lows, currentPrice)
	} else if currentPrice == 0 && len(closes) > 0 {
		currentPrice = closes[len(closes)-1]
	}

	if currentPrice == 0 {
		return nil, fmt.Errorf("no price available for %s", inst.Symbol)
	}

	maResults := map[string]domain.MAResult{}
	var primary *domain.MAResult
	for _, k := range inst.MASpec {
		v, ok := indicator.MA(closes, k)
		if !ok {
			continue
		}
		res := domain.MAResult{
			MAPrice:    v,
			Reached:    currentPrice >= v,
			Diff:       round2(currentPrice - v),
			DiffPct:    round2(pctDiff(currentPrice, v)),
			DataSource: dataSource(isRealtime),
		}
		maResults[fmt.Sprintf("MA%d", k)] = res
		if primary == nil {
			pr := res
			primary = &pr
		}
	}

	var signal *domain.RuleOutcome
	if len(closes) >= 20 {
		snap := indicator.Compute(indicator.Series{Close: closes, High: highs, Low: lows}, inst.MASpec)
		outcome := rule.Evaluate(p.rules, currentPrice, snap)
		signal = &outcome
	}

	if name == "" {
		name = inst.DisplayName
	}

	return &Result{
		InstrumentID:  inst.ID,
		Symbol:        inst.Symbol,
		DisplayName:   name,
		CurrentPrice:  currentPrice,
		MAResults:     maResults,
		Primary:       primary,
		Groups:        inst.Groups,
		IsRealtime:    isRealtime,
		DataFetchedAt: now,
		Signal:        signal,
	}, nil
}

func dataSource(isRealtime bool) domain.DataSource {
	if isRealtime {
		return domain.DataSourceRealtime
	}
	return domain.DataSourceKlineClose
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

// BuildBatchTasks precomputes, on the calling (database-owning) thread,
// the per-market trading-day and in-session facts every worker needs,
// and eagerly copies each instrument's groups so no worker ever
// triggers a lazy-load (spec §4.12 batch steps 1-2).
func BuildBatchTasks(ctx context.Context, cal *calendar.Calendar, instruments []domain.Instrument, now time.Time) ([]BatchTask, error) {
	tradingDayByMarket := map[domain.Market]bool{}
	tasks := make([]BatchTask, len(instruments))

	for i, inst := range instruments {
		_, market := symbol.Normalize(inst.Symbol)
		if _, ok := tradingDayByMarket[market]; !ok {
			if market == domain.MarketCN {
				td, err := cal.IsTradingDay(ctx, now)
				if err != nil {
					return nil, err
				}
				tradingDayByMarket[market] = td
			} else {
				tradingDayByMarket[market] = true // no cn calendar applies to us
			}
		}

		groups := make([]domain.Group, len(inst.Groups))
		copy(groups, inst.Groups)
		inst.Groups = groups

		tasks[i] = BatchTask{
			Instrument: inst,
			TradingDay: tradingDayByMarket[market],
			InSession:  market == domain.MarketCN && spotcache.IsTradingTime(now),
		}
	}

	return tasks, nil
}
