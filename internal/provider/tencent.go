package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketpulse/internal/domain"
)

// TencentProvider is the L3 secondary data source: a tilde-delimited
// realtime quote feed with no kline support, used when L1/L2 are both
// unavailable. Grounded in the original TencentProvider.
type TencentProvider struct {
	client *http.Client
	health *Health
}

func NewTencentProvider() *TencentProvider {
	return &TencentProvider{
		client: &http.Client{Timeout: 5 * time.Second},
		health: NewHealth(),
	}
}

func (t *TencentProvider) Name() string      { return "tencent" }
func (t *TencentProvider) Priority() int     { return 3 }
func (t *TencentProvider) IsAvailable() bool { return t.health.IsAvailable() }
func (t *TencentProvider) Health() *Health   { return t.health }

func (t *TencentProvider) Capabilities() map[Capability]bool {
	return map[Capability]bool{CapRealtimePrice: true}
}

// GetRealtimePrice parses Tencent's "v_sh600000="1~贵州茅台~600000~...";"
// response: a tilde-delimited field list.
func (t *TencentProvider) GetRealtimePrice(ctx context.Context, symbol, code string, market domain.Market) (*StockData, error) {
	if market != domain.MarketCN {
		return nil, &ErrUnsupportedCapability{Provider: t.Name(), Capability: CapRealtimePrice}
	}

	url := fmt.Sprintf("https://qt.gtimg.cn/q=%s", code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		t.health.RecordBan(DefaultCooldown)
		return nil, fmt.Errorf("tencent: banned, status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tencent: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseTencentQuote(symbol, string(body))
}

func parseTencentQuote(symbol, body string) (*StockData, error) {
	start := strings.Index(body, "\"")
	end := strings.LastIndex(body, "\"")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("tencent: malformed response")
	}
	fields := strings.Split(body[start+1:end], "~")
	if len(fields) < 10 {
		return nil, fmt.Errorf("tencent: unexpected field count %d", len(fields))
	}

	// field guards each index rather than requiring the full 35-field
	// width up front: Tencent's high/low sit at indexes 33/34, well past
	// the required name/price/prev_close/open/volume fields, and a
	// truncated-but-otherwise-valid body should still yield a usable
	// quote with those two left zero, the way the original's
	// `float(data[33]) if len(data) > 33 and data[33] else None` degrades
	// per-field instead of rejecting the whole response.
	field := func(i int) string {
		if i < 0 || i >= len(fields) {
			return ""
		}
		return fields[i]
	}
	parse := func(i int) float64 {
		v, _ := strconv.ParseFloat(field(i), 64)
		return v
	}

	return &StockData{
		Symbol:    symbol,
		Name:      fields[1],
		Price:     parse(3),
		PrevClose: parse(4),
		Open:      parse(5),
		Volume:    parse(6),
		High:      parse(33),
		Low:       parse(34),
		Provider:  "tencent",
		FetchedAt: time.Now(),
	}, nil
}

func (t *TencentProvider) GetKlineData(ctx context.Context, symbol, code string, market domain.Market, length int) ([]KlinePoint, error) {
	return nil, &ErrUnsupportedCapability{Provider: t.Name(), Capability: CapKlineData}
}

func (t *TencentProvider) GetFinancialReport(ctx context.Context, symbol, code string, market domain.Market, reportType, period string) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: t.Name(), Capability: CapFinancialReport}
}

func (t *TencentProvider) GetValuationMetrics(ctx context.Context, symbol, code string, market domain.Market) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: t.Name(), Capability: CapValuationMetrics}
}

func (t *TencentProvider) GetMacroIndicators(ctx context.Context, market domain.Market, indicators []string) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: t.Name(), Capability: CapMacroIndicators}
}
