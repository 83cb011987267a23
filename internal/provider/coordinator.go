package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"marketpulse/internal/domain"
)

// FetchResult records which provider ultimately served a fetch (or the
// full list tried before giving up), for diagnostics and for the
// /providers/health surface.
type FetchResult struct {
	Data           *StockData
	Provider       string
	TriedProviders []string
}

// Coordinator dispatches a capability call across the registered
// providers in priority order, skipping any that are currently
// unavailable, pacing every outbound attempt, and recording success or
// failure against each provider's Health. Grounded in the teacher's
// ProviderChain combined with the original DataSourceCoordinator's
// per-capability dispatch and tried-provider bookkeeping.
type Coordinator struct {
	mu        sync.RWMutex
	providers []Provider
	pacer     *Pacer
	breakers  map[string]*gobreaker.CircuitBreaker
}

// NewCoordinator builds a Coordinator over providers, sorted ascending
// by Priority (invariant I5: lower priority value is tried first). Each
// provider gets its own gobreaker.CircuitBreaker, grounded on the
// teacher's infra/breakers.New: it trips on 3 consecutive failures or a
// >5% failure rate over a 20-request window, short-circuiting a
// misbehaving provider for its Timeout window without even placing the
// call. This sits alongside, not instead of, the slower Health cooldown
// state machine — the breaker catches a provider failing fast within a
// single batch, Health catches one failing across requests over time.
func NewCoordinator(pacer *Pacer, providers ...Provider) *Coordinator {
	ordered := make([]Provider, len(providers))
	copy(ordered, providers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(ordered))
	for _, p := range ordered {
		st := gobreaker.Settings{Name: p.Name()}
		st.Interval = 60 * time.Second
		st.Timeout = 30 * time.Second
		st.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		}
		breakers[p.Name()] = gobreaker.NewCircuitBreaker(st)
	}
	return &Coordinator{providers: ordered, pacer: pacer, breakers: breakers}
}

// GetRealtimePrice tries each available provider capable of
// CapRealtimePrice in priority order until one returns valid data.
func (c *Coordinator) GetRealtimePrice(ctx context.Context, symbol, code string, market domain.Market) (*FetchResult, error) {
	var tried []string
	for _, p := range c.eligible(CapRealtimePrice) {
		tried = append(tried, p.Name())
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		res, err := c.breakers[p.Name()].Execute(func() (interface{}, error) {
			return p.GetRealtimePrice(ctx, symbol, code, market)
		})
		if err != nil {
			p.Health().RecordFailure()
			continue
		}
		data := res.(*StockData)
		if !data.IsValid() {
			p.Health().RecordFailure()
			continue
		}
		p.Health().RecordSuccess()
		return &FetchResult{Data: data, Provider: p.Name(), TriedProviders: tried}, nil
	}
	return nil, fmt.Errorf("realtime price: all providers exhausted, tried %v", tried)
}

// GetKlineData tries each available provider capable of CapKlineData in
// priority order until one returns a non-empty series.
func (c *Coordinator) GetKlineData(ctx context.Context, symbol, code string, market domain.Market, length int) ([]KlinePoint, string, error) {
	var tried []string
	for _, p := range c.eligible(CapKlineData) {
		tried = append(tried, p.Name())
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, "", err
		}

		res, err := c.breakers[p.Name()].Execute(func() (interface{}, error) {
			return p.GetKlineData(ctx, symbol, code, market, length)
		})
		if err != nil {
			p.Health().RecordFailure()
			continue
		}
		points := res.([]KlinePoint)
		if len(points) == 0 {
			p.Health().RecordFailure()
			continue
		}
		p.Health().RecordSuccess()
		return points, p.Name(), nil
	}
	return nil, "", fmt.Errorf("kline data: all providers exhausted, tried %v", tried)
}

// GetFinancialReport tries each available provider capable of
// CapFinancialReport in priority order.
func (c *Coordinator) GetFinancialReport(ctx context.Context, symbol, code string, market domain.Market, reportType, period string) (map[string]interface{}, error) {
	var tried []string
	for _, p := range c.eligible(CapFinancialReport) {
		tried = append(tried, p.Name())
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		res, err := c.breakers[p.Name()].Execute(func() (interface{}, error) {
			return p.GetFinancialReport(ctx, symbol, code, market, reportType, period)
		})
		if err != nil {
			p.Health().RecordFailure()
			continue
		}
		data := res.(map[string]interface{})
		if len(data) == 0 {
			p.Health().RecordFailure()
			continue
		}
		p.Health().RecordSuccess()
		return data, nil
	}
	return nil, fmt.Errorf("financial report: all providers exhausted, tried %v", tried)
}

// GetValuationMetrics tries each available provider capable of
// CapValuationMetrics in priority order.
func (c *Coordinator) GetValuationMetrics(ctx context.Context, symbol, code string, market domain.Market) (map[string]interface{}, error) {
	var tried []string
	for _, p := range c.eligible(CapValuationMetrics) {
		tried = append(tried, p.Name())
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		res, err := c.breakers[p.Name()].Execute(func() (interface{}, error) {
			return p.GetValuationMetrics(ctx, symbol, code, market)
		})
		if err != nil {
			p.Health().RecordFailure()
			continue
		}
		data := res.(map[string]interface{})
		if len(data) == 0 {
			p.Health().RecordFailure()
			continue
		}
		p.Health().RecordSuccess()
		return data, nil
	}
	return nil, fmt.Errorf("valuation metrics: all providers exhausted, tried %v", tried)
}

// GetMacroIndicators tries each available provider capable of
// CapMacroIndicators in priority order. Failures here are best-effort:
// spec §4.5 treats macro data as optional, so a full exhaustion returns
// an empty map rather than an error.
func (c *Coordinator) GetMacroIndicators(ctx context.Context, market domain.Market, indicators []string) map[string]interface{} {
	for _, p := range c.eligible(CapMacroIndicators) {
		if err := c.pacer.Wait(ctx); err != nil {
			return map[string]interface{}{}
		}

		data, err := p.GetMacroIndicators(ctx, market, indicators)
		if err != nil || len(data) == 0 {
			p.Health().RecordFailure()
			continue
		}
		p.Health().RecordSuccess()
		return data
	}
	return map[string]interface{}{}
}

func (c *Coordinator) eligible(cap Capability) []Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Provider, 0, len(c.providers))
	for _, p := range c.providers {
		if !HasCapability(p, cap) {
			continue
		}
		if !p.IsAvailable() {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Capabilities reports, for every registered provider, which
// capabilities it declares — the shape behind GET /providers/capabilities.
func (c *Coordinator) Capabilities() map[string]map[Capability]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]map[Capability]bool, len(c.providers))
	for _, p := range c.providers {
		out[p.Name()] = p.Capabilities()
	}
	return out
}

// HealthStatus reports every registered provider's current Health
// snapshot — the shape behind GET /providers/health.
func (c *Coordinator) HealthStatus() map[string]Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Snapshot, len(c.providers))
	for _, p := range c.providers {
		out[p.Name()] = p.Health().Snapshot()
	}
	return out
}

// ResetProvider clears a single named provider's health back to HEALTHY.
func (c *Coordinator) ResetProvider(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.providers {
		if p.Name() == name {
			p.Health().Reset()
			return true
		}
	}
	return false
}

// ResetAll clears every registered provider's health back to HEALTHY.
func (c *Coordinator) ResetAll() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.providers {
		p.Health().Reset()
	}
}

// DefaultPacing is the 200ms minimum spacing between outbound provider
// calls carried over from the original coordinator's MIN_REQUEST_INTERVAL.
const DefaultPacing = 200 * time.Millisecond
