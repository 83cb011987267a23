package snapshot

import (
	"context"

	"marketpulse/internal/domain"
	"marketpulse/internal/provider"
)

// fakeProviderForSnapshot is a minimal single-provider stub so
// generation tests never touch the network; it mirrors the shape of
// internal/enrich's own test double.
type fakeProviderForSnapshot struct {
	name     string
	health   *provider.Health
	kline    []provider.KlinePoint
	klineErr error
}

func newFakeProviderForSnapshot(name string) *fakeProviderForSnapshot {
	return &fakeProviderForSnapshot{name: name, health: provider.NewHealth()}
}

func (f *fakeProviderForSnapshot) Name() string  { return f.name }
func (f *fakeProviderForSnapshot) Priority() int { return 1 }
func (f *fakeProviderForSnapshot) Capabilities() map[provider.Capability]bool {
	return map[provider.Capability]bool{provider.CapRealtimePrice: true, provider.CapKlineData: true}
}
func (f *fakeProviderForSnapshot) IsAvailable() bool       { return f.health.IsAvailable() }
func (f *fakeProviderForSnapshot) Health() *provider.Health { return f.health }

func (f *fakeProviderForSnapshot) GetRealtimePrice(ctx context.Context, symbol, code string, market domain.Market) (*provider.StockData, error) {
	if len(f.kline) == 0 {
		return nil, &provider.ErrUnsupportedCapability{Provider: f.name, Capability: provider.CapRealtimePrice}
	}
	last := f.kline[len(f.kline)-1]
	return &provider.StockData{Symbol: symbol, Name: symbol, Price: last.Close}, nil
}
func (f *fakeProviderForSnapshot) GetKlineData(ctx context.Context, symbol, code string, market domain.Market, length int) ([]provider.KlinePoint, error) {
	if f.klineErr != nil {
		return nil, f.klineErr
	}
	return f.kline, nil
}
func (f *fakeProviderForSnapshot) GetFinancialReport(ctx context.Context, symbol, code string, market domain.Market, reportType, period string) (map[string]interface{}, error) {
	return nil, &provider.ErrUnsupportedCapability{Provider: f.name, Capability: provider.CapFinancialReport}
}
func (f *fakeProviderForSnapshot) GetValuationMetrics(ctx context.Context, symbol, code string, market domain.Market) (map[string]interface{}, error) {
	return nil, &provider.ErrUnsupportedCapability{Provider: f.name, Capability: provider.CapValuationMetrics}
}
func (f *fakeProviderForSnapshot) GetMacroIndicators(ctx context.Context, market domain.Market, indicators []string) (map[string]interface{}, error) {
	return nil, &provider.ErrUnsupportedCapability{Provider: f.name, Capability: provider.CapMacroIndicators}
}
