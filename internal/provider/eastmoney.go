package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"marketpulse/internal/domain"
	"marketpulse/internal/spotcache"
)

// bulkCacheKey is the single entry EastMoneyProvider keeps in the
// process-wide spot cache: the whole-market snapshot table, keyed
// internally by exchange code (spec C4 is a single-entry cache holding
// the last full-market A-share snapshot, not one entry per symbol).
const bulkCacheKey = "eastmoney:bulk"

// EastMoneyProvider is the L2 bulk data source: it fetches the entire
// market's quotes in one request and serves individual symbols out of
// the shared C4 spot cache, rather than issuing one request per symbol
// the way L1/L3 do. Grounded in the original EastMoneyProvider.
type EastMoneyProvider struct {
	client *http.Client
	health *Health
	spot   *spotcache.Cache
}

func NewEastMoneyProvider() *EastMoneyProvider {
	return NewEastMoneyProviderWithCache(spotcache.New())
}

// NewEastMoneyProviderWithCache builds an EastMoneyProvider against a
// caller-supplied spot cache, so a single process-wide C4 instance can
// be shared across providers that read the bulk snapshot (today, only
// L2 does; the constructor seam exists for that sharing, per spec C4
// being a process-wide singleton rather than a per-provider cache).
func NewEastMoneyProviderWithCache(spot *spotcache.Cache) *EastMoneyProvider {
	return &EastMoneyProvider{
		client: &http.Client{Timeout: 8 * time.Second},
		health: NewHealth(),
		spot:   spot,
	}
}

func (e *EastMoneyProvider) Name() string      { return "eastmoney" }
func (e *EastMoneyProvider) Priority() int     { return 2 }
func (e *EastMoneyProvider) IsAvailable() bool { return e.health.IsAvailable() }
func (e *EastMoneyProvider) Health() *Health   { return e.health }

func (e *EastMoneyProvider) Capabilities() map[Capability]bool {
	return map[Capability]bool{CapRealtimePrice: true}
}

type eastMoneyBulkResponse struct {
	Data struct {
		Diff []struct {
			F12 string  `json:"f12"` // code
			F14 string  `json:"f14"` // name
			F2  float64 `json:"f2"`  // price
			F17 float64 `json:"f17"` // open
			F18 float64 `json:"f18"` // prev close
			F15 float64 `json:"f15"` // high
			F16 float64 `json:"f16"` // low
			F5  float64 `json:"f5"`  // volume
			F6  float64 `json:"f6"`  // turnover
		} `json:"diff"`
	} `json:"data"`
}

// fetchBulk pulls the whole-market snapshot and returns it keyed by
// exchange code. It touches no shared state itself — spot.GetOrFetch
// is what makes this a single-flight fetch under the C4 lock.
func (e *EastMoneyProvider) fetchBulk(ctx context.Context) (map[string]*StockData, error) {
	url := "https://push2.eastmoney.com/api/qt/clist/get?pn=1&pz=6000&po=1&fields=f12,f14,f2,f17,f18,f15,f16,f5,f6"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		e.health.RecordBan(DefaultCooldown)
		return nil, fmt.Errorf("eastmoney: banned, status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eastmoney: unexpected status %d", resp.StatusCode)
	}

	var parsed eastMoneyBulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("eastmoney: decode: %w", err)
	}

	now := time.Now()
	fresh := make(map[string]*StockData, len(parsed.Data.Diff))
	for _, d := range parsed.Data.Diff {
		fresh[d.F12] = &StockData{
			Name:      d.F14,
			Price:     d.F2,
			Open:      d.F17,
			PrevClose: d.F18,
			High:      d.F15,
			Low:       d.F16,
			Volume:    d.F5,
			Turnover:  d.F6,
			Provider:  "eastmoney",
			FetchedAt: now,
		}
	}
	return fresh, nil
}

// GetRealtimePrice serves out of the C4 bulk snapshot, refreshing it
// first if the session-aware validity window (spec §4.4) has lapsed.
// code is the bare 6-digit exchange code without the sh/sz/bj prefix.
func (e *EastMoneyProvider) GetRealtimePrice(ctx context.Context, symbol, code string, market domain.Market) (*StockData, error) {
	if market != domain.MarketCN {
		return nil, &ErrUnsupportedCapability{Provider: e.Name(), Capability: CapRealtimePrice}
	}

	bareCode := strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(code, "sh"), "sz"), "bj")

	cached, err := e.spot.GetOrFetch(bulkCacheKey, func() (interface{}, error) {
		return e.fetchBulk(ctx)
	})
	if err != nil {
		return nil, err
	}

	bulk := cached.(map[string]*StockData)
	hit, ok := bulk[bareCode]
	if !ok {
		return nil, fmt.Errorf("eastmoney: %s not present in bulk snapshot", bareCode)
	}
	out := *hit
	out.Symbol = symbol
	return &out, nil
}

func (e *EastMoneyProvider) GetKlineData(ctx context.Context, symbol, code string, market domain.Market, length int) ([]KlinePoint, error) {
	return nil, &ErrUnsupportedCapability{Provider: e.Name(), Capability: CapKlineData}
}

func (e *EastMoneyProvider) GetFinancialReport(ctx context.Context, symbol, code string, market domain.Market, reportType, period string) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: e.Name(), Capability: CapFinancialReport}
}

func (e *EastMoneyProvider) GetValuationMetrics(ctx context.Context, symbol, code string, market domain.Market) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: e.Name(), Capability: CapValuationMetrics}
}

func (e *EastMoneyProvider) GetMacroIndicators(ctx context.Context, market domain.Market, indicators []string) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: e.Name(), Capability: CapMacroIndicators}
}
