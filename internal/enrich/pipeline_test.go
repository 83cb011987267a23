package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/calendar"
	"marketpulse/internal/domain"
	"marketpulse/internal/provider"
)

// fakeProvider is a price-and-kline, always-priority-1 stub so
// enrichment tests never touch the network.
type fakeProvider struct {
	name    string
	health  *provider.Health
	price   *provider.StockData
	priceErr error
	kline   []provider.KlinePoint
	klineErr error
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, health: provider.NewHealth()}
}

func (f *fakeProvider) Name() string   { return f.name }
func (f *fakeProvider) Priority() int  { return 1 }
func (f *fakeProvider) Capabilities() map[provider.Capability]bool {
	return map[provider.Capability]bool{provider.CapRealtimePrice: true, provider.CapKlineData: true}
}
func (f *fakeProvider) IsAvailable() bool  { return f.health.IsAvailable() }
func (f *fakeProvider) Health() *provider.Health { return f.health }

func (f *fakeProvider) GetRealtimePrice(ctx context.Context, symbol, code string, market domain.Market) (*provider.StockData, error) {
	return f.price, f.priceErr
}
func (f *fakeProvider) GetKlineData(ctx context.Context, symbol, code string, market domain.Market, length int) ([]provider.KlinePoint, error) {
	return f.kline, f.klineErr
}
func (f *fakeProvider) GetFinancialReport(ctx context.Context, symbol, code string, market domain.Market, reportType, period string) (map[string]interface{}, error) {
	return nil, &provider.ErrUnsupportedCapability{Provider: f.name, Capability: provider.CapFinancialReport}
}
func (f *fakeProvider) GetValuationMetrics(ctx context.Context, symbol, code string, market domain.Market) (map[string]interface{}, error) {
	return nil, &provider.ErrUnsupportedCapability{Provider: f.name, Capability: provider.CapValuationMetrics}
}
func (f *fakeProvider) GetMacroIndicators(ctx context.Context, market domain.Market, indicators []string) (map[string]interface{}, error) {
	return nil, &provider.ErrUnsupportedCapability{Provider: f.name, Capability: provider.CapMacroIndicators}
}

func flatKline(n int, price float64) []provider.KlinePoint {
	out := make([]provider.KlinePoint, n)
	for i := range out {
		out[i] = provider.KlinePoint{Close: price, High: price + 0.1, Low: price - 0.1}
	}
	return out
}

func newTestCalendar() *calendar.Calendar {
	return calendar.New(nilStore{}, calendar.DefaultHydrator{})
}

type nilStore struct{}

func (nilStore) GetYear(ctx context.Context, year int) ([]domain.CalendarEntry, error) { return nil, nil }
func (nilStore) UpsertYear(ctx context.Context, year int, entries []domain.CalendarEntry) error {
	return nil
}

func TestEnrichUsesCachedPriceOutsideSessionWithoutFetching(t *testing.T) {
	fp := newFakeProvider("fake")
	coord := provider.NewCoordinator(provider.NewPacer(0), fp)
	p := New(coord, newTestCalendar())

	last := 10.5
	updated := time.Now()
	inst := domain.Instrument{ID: 1, Symbol: "AAPL", MASpec: []int{5}, LastPrice: &last, LastUpdatedAt: &updated}

	// Fresh within the most-recent-close window and off-hours (us market
	// has no session check in this path) should not need a fetch.
	res, err := p.Enrich(context.Background(), inst, false, false)
	require.NoError(t, err)
	assert.Equal(t, last, res.CurrentPrice)
}

func TestEnrichForceRefreshFetchesFromProvider(t *testing.T) {
	fp := newFakeProvider("fake")
	fp.price = &provider.StockData{Symbol: "AAPL", Name: "Apple", Price: 42.5}
	fp.kline = flatKline(25, 40)
	coord := provider.NewCoordinator(provider.NewPacer(0), fp)
	p := New(coord, newTestCalendar())

	inst := domain.Instrument{ID: 1, Symbol: "AAPL", MASpec: []int{5, 20}}
	res, err := p.Enrich(context.Background(), inst, true, false)
	require.NoError(t, err)
	assert.Equal(t, 42.5, res.CurrentPrice)
	assert.Contains(t, res.MAResults, "MA5")
	assert.Contains(t, res.MAResults, "MA20")
}

func TestEnrichBatchPreservesInputOrder(t *testing.T) {
	fp := newFakeProvider("fake")
	fp.price = &provider.StockData{Symbol: "X", Name: "X", Price: 10}
	fp.kline = flatKline(25, 10)
	coord := provider.NewCoordinator(provider.NewPacer(0), fp)
	p := New(coord, newTestCalendar(), WithWorkers(4))

	instruments := make([]domain.Instrument, 8)
	for i := range instruments {
		instruments[i] = domain.Instrument{ID: int64(i), Symbol: "SYM", MASpec: []int{5}}
	}

	tasks, err := BuildBatchTasks(context.Background(), newTestCalendar(), instruments, time.Now())
	require.NoError(t, err)

	results := p.EnrichBatch(context.Background(), tasks, true, false)
	require.Len(t, results, 8)
	for i, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, int64(i), r.InstrumentID)
	}
}

func TestEnrichBatchExcludesFailedTasksWithoutAbortingOthers(t *testing.T) {
	good := newFakeProvider("good")
	good.price = &provider.StockData{Symbol: "GOOD", Name: "Good", Price: 10}
	good.kline = flatKline(25, 10)
	coord := provider.NewCoordinator(provider.NewPacer(0), good)
	p := New(coord, newTestCalendar())

	// The failure path runs the same instrument, which has no last
	// price, through a second pipeline whose coordinator has no
	// providers at all, so neither a price nor a k-line can be fetched.
	emptyCoord := provider.NewCoordinator(provider.NewPacer(0))
	failingPipeline := New(emptyCoord, newTestCalendar())

	instruments := []domain.Instrument{
		{ID: 1, Symbol: "GOOD", MASpec: []int{5}},
	}
	tasks, err := BuildBatchTasks(context.Background(), newTestCalendar(), instruments, time.Now())
	require.NoError(t, err)
	results := p.EnrichBatch(context.Background(), tasks, true, false)
	require.Len(t, results, 1)
	assert.NotNil(t, results[0])

	failTasks, err := BuildBatchTasks(context.Background(), newTestCalendar(), instruments, time.Now())
	require.NoError(t, err)
	failResults := failingPipeline.EnrichBatch(context.Background(), failTasks, true, false)
	require.Len(t, failResults, 1)
	assert.Nil(t, failResults[0])
}
