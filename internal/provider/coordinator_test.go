package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
)

// fakeProvider is a minimal, network-free Provider stand-in for
// coordinator tests.
type fakeProvider struct {
	name     string
	priority int
	caps     map[Capability]bool
	health   *Health

	quote  *StockData
	quoteErr error
	calls  int
}

func newFakeProvider(name string, priority int, caps map[Capability]bool) *fakeProvider {
	return &fakeProvider{name: name, priority: priority, caps: caps, health: NewHealth()}
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) Priority() int                    { return f.priority }
func (f *fakeProvider) Capabilities() map[Capability]bool { return f.caps }
func (f *fakeProvider) IsAvailable() bool                { return f.health.IsAvailable() }
func (f *fakeProvider) Health() *Health                  { return f.health }

func (f *fakeProvider) GetRealtimePrice(ctx context.Context, symbol, code string, market domain.Market) (*StockData, error) {
	f.calls++
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeProvider) GetKlineData(ctx context.Context, symbol, code string, market domain.Market, length int) ([]KlinePoint, error) {
	return nil, &ErrUnsupportedCapability{Provider: f.name, Capability: CapKlineData}
}

func (f *fakeProvider) GetFinancialReport(ctx context.Context, symbol, code string, market domain.Market, reportType, period string) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: f.name, Capability: CapFinancialReport}
}

func (f *fakeProvider) GetValuationMetrics(ctx context.Context, symbol, code string, market domain.Market) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: f.name, Capability: CapValuationMetrics}
}

func (f *fakeProvider) GetMacroIndicators(ctx context.Context, market domain.Market, indicators []string) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: f.name, Capability: CapMacroIndicators}
}

func noPace() *Pacer { return NewPacer(0) }

func TestCoordinatorFallsBackOnFailure(t *testing.T) {
	p1 := newFakeProvider("p1", 1, map[Capability]bool{CapRealtimePrice: true})
	p1.quoteErr = errors.New("boom")

	p2 := newFakeProvider("p2", 2, map[Capability]bool{CapRealtimePrice: true})
	p2.quote = &StockData{Name: "Foo", Price: 10}

	c := NewCoordinator(noPace(), p1, p2)
	result, err := c.GetRealtimePrice(context.Background(), "FOO", "foo", domain.MarketCN)
	require.NoError(t, err)
	assert.Equal(t, "p2", result.Provider)
	assert.Equal(t, []string{"p1", "p2"}, result.TriedProviders)
	assert.Equal(t, 1, p1.calls)
	assert.Equal(t, StatusDegraded, p1.Health().Snapshot().Status)
}

func TestCoordinatorRespectsPriorityOrder(t *testing.T) {
	p2 := newFakeProvider("p2", 2, map[Capability]bool{CapRealtimePrice: true})
	p2.quote = &StockData{Name: "B", Price: 1}
	p1 := newFakeProvider("p1", 1, map[Capability]bool{CapRealtimePrice: true})
	p1.quote = &StockData{Name: "A", Price: 1}

	// Constructed out of order; Coordinator must still try p1 first.
	c := NewCoordinator(noPace(), p2, p1)
	result, err := c.GetRealtimePrice(context.Background(), "X", "x", domain.MarketCN)
	require.NoError(t, err)
	assert.Equal(t, "p1", result.Provider)
	assert.Equal(t, 0, p2.calls)
}

func TestCoordinatorSkipsUnavailableProvider(t *testing.T) {
	p1 := newFakeProvider("p1", 1, map[Capability]bool{CapRealtimePrice: true})
	p1.health.RecordBan(DefaultCooldown)

	p2 := newFakeProvider("p2", 2, map[Capability]bool{CapRealtimePrice: true})
	p2.quote = &StockData{Name: "Foo", Price: 10}

	c := NewCoordinator(noPace(), p1, p2)
	result, err := c.GetRealtimePrice(context.Background(), "FOO", "foo", domain.MarketCN)
	require.NoError(t, err)
	assert.Equal(t, "p2", result.Provider)
	assert.Equal(t, 0, p1.calls)
}

func TestCoordinatorAllExhaustedReturnsError(t *testing.T) {
	p1 := newFakeProvider("p1", 1, map[Capability]bool{CapRealtimePrice: true})
	p1.quoteErr = errors.New("boom")

	c := NewCoordinator(noPace(), p1)
	_, err := c.GetRealtimePrice(context.Background(), "FOO", "foo", domain.MarketCN)
	assert.Error(t, err)
}

func TestCoordinatorResetAndHealthStatus(t *testing.T) {
	p1 := newFakeProvider("p1", 1, map[Capability]bool{CapRealtimePrice: true})
	p1.health.RecordBan(DefaultCooldown)

	c := NewCoordinator(noPace(), p1)
	status := c.HealthStatus()
	require.Contains(t, status, "p1")
	assert.Equal(t, StatusCooling, status["p1"].Status)

	ok := c.ResetProvider("p1")
	assert.True(t, ok)
	assert.Equal(t, StatusHealthy, c.HealthStatus()["p1"].Status)
}

func TestPacerEnforcesMinimumInterval(t *testing.T) {
	p := NewPacer(20 * time.Millisecond)
	ctx := context.Background()
	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
