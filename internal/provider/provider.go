// Package provider implements the multi-source market data coordinator:
// the uniform Provider contract (C2), per-provider health tracking (C3),
// the six concrete data sources (C5) and the ordered fallback coordinator
// with rate limiting (C6). The fallback-ordering and health-state shape
// is grounded in the teacher repo's internal/provider package
// (ExchangeProvider, ProviderChain, ProviderHealth).
package provider

import (
	"context"
	"time"

	"marketpulse/internal/domain"
)

// Capability names a kind of data a Provider may be able to serve.
type Capability string

const (
	CapRealtimePrice    Capability = "realtime_price"
	CapKlineData        Capability = "kline_data"
	CapFinancialReport  Capability = "financial_report"
	CapValuationMetrics Capability = "valuation_metrics"
	CapMacroIndicators  Capability = "macro_indicators"
)

// StockData is the canonical shape every provider normalizes its output
// to, regardless of transport (spec §4.5).
type StockData struct {
	Symbol      string
	Name        string
	Price       float64
	Open        float64
	PrevClose   float64
	High        float64
	Low         float64
	Volume      float64
	Turnover    float64
	Kline       []KlinePoint
	Provider    string
	FetchedAt   time.Time
}

// IsValid mirrors the original StockData.is_valid(): a price must be
// strictly positive, and spec §4.5 additionally requires a name.
func (d *StockData) IsValid() bool {
	return d != nil && d.Price > 0 && d.Name != ""
}

// KlinePoint is a single daily (or session) OHLCV candle.
type KlinePoint struct {
	Day    time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// ErrUnsupportedCapability is the error a provider returns when it does
// not serve a capability; the coordinator
// must be able to tell this apart from a real failure so it never
// penalizes provider health for a deliberate gap in coverage.
type ErrUnsupportedCapability struct {
	Provider   string
	Capability Capability
}

func (e *ErrUnsupportedCapability) Error() string {
	return string(e.Provider) + " does not support " + string(e.Capability)
}

// Provider is the uniform contract every concrete data source satisfies
// (spec §4.2). Priority is a stable, total order: lower values are tried
// first (invariant I5).
type Provider interface {
	Name() string
	Priority() int
	Capabilities() map[Capability]bool
	IsAvailable() bool
	Health() *Health

	GetRealtimePrice(ctx context.Context, symbol, code string, market domain.Market) (*StockData, error)
	GetKlineData(ctx context.Context, symbol, code string, market domain.Market, length int) ([]KlinePoint, error)
	GetFinancialReport(ctx context.Context, symbol, code string, market domain.Market, reportType, period string) (map[string]interface{}, error)
	GetValuationMetrics(ctx context.Context, symbol, code string, market domain.Market) (map[string]interface{}, error)
	GetMacroIndicators(ctx context.Context, market domain.Market, indicators []string) (map[string]interface{}, error)
}

// HasCapability reports whether a provider supports a capability without
// forcing every provider to hand-write the same switch.
func HasCapability(p Provider, cap Capability) bool {
	caps := p.Capabilities()
	return caps != nil && caps[cap]
}
