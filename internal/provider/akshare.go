package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"marketpulse/internal/domain"
)

// AKShareProvider is the L5 CN-fundamentals source: it has no realtime
// or kline capability of its own, and instead answers financial-report
// and valuation-metric requests that none of L1-L4 can serve. Grounded
// in the original AKShareProvider, reusing the teacher-style HTTP client
// construction shared by the other CN feeds.
type AKShareProvider struct {
	client  *http.Client
	baseURL string
	health  *Health
}

func NewAKShareProvider() *AKShareProvider {
	return &AKShareProvider{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://akshare-proxy.internal",
		health:  NewHealth(),
	}
}

func (a *AKShareProvider) Name() string      { return "akshare" }
func (a *AKShareProvider) Priority() int     { return 5 }
func (a *AKShareProvider) IsAvailable() bool { return a.health.IsAvailable() }
func (a *AKShareProvider) Health() *Health   { return a.health }

func (a *AKShareProvider) Capabilities() map[Capability]bool {
	return map[Capability]bool{
		CapFinancialReport:  true,
		CapValuationMetrics: true,
	}
}

func (a *AKShareProvider) GetRealtimePrice(ctx context.Context, symbol, code string, market domain.Market) (*StockData, error) {
	return nil, &ErrUnsupportedCapability{Provider: a.Name(), Capability: CapRealtimePrice}
}

func (a *AKShareProvider) GetKlineData(ctx context.Context, symbol, code string, market domain.Market, length int) ([]KlinePoint, error) {
	return nil, &ErrUnsupportedCapability{Provider: a.Name(), Capability: CapKlineData}
}

// GetFinancialReport fetches a single report type/period pair (e.g.
// reportType="income", period="2024Q4") as a flat field map.
func (a *AKShareProvider) GetFinancialReport(ctx context.Context, symbol, code string, market domain.Market, reportType, period string) (map[string]interface{}, error) {
	if market != domain.MarketCN {
		return nil, &ErrUnsupportedCapability{Provider: a.Name(), Capability: CapFinancialReport}
	}
	return a.fetchJSON(ctx, "/financial-report", url.Values{
		"code":        {code},
		"report_type": {reportType},
		"period":      {period},
	})
}

// GetValuationMetrics fetches trailing PE/PB/market-cap style metrics.
func (a *AKShareProvider) GetValuationMetrics(ctx context.Context, symbol, code string, market domain.Market) (map[string]interface{}, error) {
	if market != domain.MarketCN {
		return nil, &ErrUnsupportedCapability{Provider: a.Name(), Capability: CapValuationMetrics}
	}
	return a.fetchJSON(ctx, "/valuation", url.Values{"code": {code}})
}

func (a *AKShareProvider) GetMacroIndicators(ctx context.Context, market domain.Market, indicators []string) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: a.Name(), Capability: CapMacroIndicators}
}

func (a *AKShareProvider) fetchJSON(ctx context.Context, path string, params url.Values) (map[string]interface{}, error) {
	reqURL := a.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		a.health.RecordBan(DefaultCooldown)
		return nil, fmt.Errorf("akshare: banned, status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("akshare: unexpected status %d", resp.StatusCode)
	}

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("akshare: decode: %w", err)
	}
	return data, nil
}
