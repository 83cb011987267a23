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

// OpenBBProvider is the L6 global-fundamentals source: the only
// provider that can answer US-market financial-report, valuation and
// macro-indicator requests. Spec marks it best-effort/optional: its
// financial-report and valuation methods answer only non-CN markets
// (macro lookups take any market), and a fully
// exhausted macro lookup degrades to an empty result rather than an
// error (see Coordinator.GetMacroIndicators). Grounded in the original
// OpenBBProvider.
type OpenBBProvider struct {
	client  *http.Client
	baseURL string
	health  *Health
}

func NewOpenBBProvider() *OpenBBProvider {
	return &OpenBBProvider{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://openbb-proxy.internal",
		health:  NewHealth(),
	}
}

func (o *OpenBBProvider) Name() string      { return "openbb" }
func (o *OpenBBProvider) Priority() int     { return 6 }
func (o *OpenBBProvider) IsAvailable() bool { return o.health.IsAvailable() }
func (o *OpenBBProvider) Health() *Health   { return o.health }

func (o *OpenBBProvider) Capabilities() map[Capability]bool {
	return map[Capability]bool{
		CapFinancialReport:  true,
		CapValuationMetrics: true,
		CapMacroIndicators:  true,
	}
}

func (o *OpenBBProvider) GetRealtimePrice(ctx context.Context, symbol, code string, market domain.Market) (*StockData, error) {
	return nil, &ErrUnsupportedCapability{Provider: o.Name(), Capability: CapRealtimePrice}
}

func (o *OpenBBProvider) GetKlineData(ctx context.Context, symbol, code string, market domain.Market, length int) ([]KlinePoint, error) {
	return nil, &ErrUnsupportedCapability{Provider: o.Name(), Capability: CapKlineData}
}

func (o *OpenBBProvider) GetFinancialReport(ctx context.Context, symbol, code string, market domain.Market, reportType, period string) (map[string]interface{}, error) {
	if market == domain.MarketCN {
		return nil, &ErrUnsupportedCapability{Provider: o.Name(), Capability: CapFinancialReport}
	}
	return o.fetchJSON(ctx, "/financial-report", url.Values{
		"symbol":      {code},
		"report_type": {reportType},
		"period":      {period},
	})
}

func (o *OpenBBProvider) GetValuationMetrics(ctx context.Context, symbol, code string, market domain.Market) (map[string]interface{}, error) {
	if market == domain.MarketCN {
		return nil, &ErrUnsupportedCapability{Provider: o.Name(), Capability: CapValuationMetrics}
	}
	return o.fetchJSON(ctx, "/valuation", url.Values{"symbol": {code}})
}

func (o *OpenBBProvider) GetMacroIndicators(ctx context.Context, market domain.Market, indicators []string) (map[string]interface{}, error) {
	params := url.Values{}
	for _, ind := range indicators {
		params.Add("indicator", ind)
	}
	return o.fetchJSON(ctx, "/macro", params)
}

func (o *OpenBBProvider) fetchJSON(ctx context.Context, path string, params url.Values) (map[string]interface{}, error) {
	reqURL := o.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		o.health.RecordBan(DefaultCooldown)
		return nil, fmt.Errorf("openbb: banned, status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openbb: unexpected status %d", resp.StatusCode)
	}

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("openbb: decode: %w", err)
	}
	return data, nil
}
