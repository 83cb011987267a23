package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketpulse/internal/domain"
)

// NeteaseProvider is the L4 last-resort data source: a JSONP realtime
// quote feed plus a CSV kline feed that Netease serves newest-row-first,
// requiring a reverse before use. Grounded in the original
// NeteaseProvider.
type NeteaseProvider struct {
	client *http.Client
	health *Health
}

func NewNeteaseProvider() *NeteaseProvider {
	return &NeteaseProvider{
		client: &http.Client{Timeout: 6 * time.Second},
		health: NewHealth(),
	}
}

func (n *NeteaseProvider) Name() string      { return "netease" }
func (n *NeteaseProvider) Priority() int     { return 4 }
func (n *NeteaseProvider) IsAvailable() bool { return n.health.IsAvailable() }
func (n *NeteaseProvider) Health() *Health   { return n.health }

func (n *NeteaseProvider) Capabilities() map[Capability]bool {
	return map[Capability]bool{
		CapRealtimePrice: true,
		CapKlineData:     true,
	}
}

// neteaseCode maps a canonical sh/sz/bj-prefixed code to Netease's
// 0-prefixed (Shanghai) / 1-prefixed (Shenzhen) symbol scheme.
func neteaseCode(code string) string {
	switch {
	case strings.HasPrefix(code, "sh"):
		return "0" + strings.TrimPrefix(code, "sh")
	case strings.HasPrefix(code, "sz"):
		return "1" + strings.TrimPrefix(code, "sz")
	default:
		return code
	}
}

func (n *NeteaseProvider) GetRealtimePrice(ctx context.Context, symbol, code string, market domain.Market) (*StockData, error) {
	if market != domain.MarketCN {
		return nil, &ErrUnsupportedCapability{Provider: n.Name(), Capability: CapRealtimePrice}
	}

	nc := neteaseCode(code)
	url := fmt.Sprintf("https://api.money.126.net/data/feed/%s,money.api", nc)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		n.health.RecordBan(DefaultCooldown)
		return nil, fmt.Errorf("netease: banned, status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("netease: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	jsonBody := stripJSONPWrapper(string(raw), "money.api")
	var wrapper map[string]struct {
		Name      string  `json:"name"`
		Price     float64 `json:"price"`
		Open      float64 `json:"open"`
		PrevClose float64 `json:"yestclose"`
		High      float64 `json:"high"`
		Low       float64 `json:"low"`
		Volume    float64 `json:"volume"`
		Turnover  float64 `json:"turnover"`
	}
	if err := json.Unmarshal([]byte(jsonBody), &wrapper); err != nil {
		return nil, fmt.Errorf("netease: decode: %w", err)
	}
	entry, ok := wrapper[nc]
	if !ok {
		return nil, fmt.Errorf("netease: %s missing from response", nc)
	}

	return &StockData{
		Symbol:    symbol,
		Name:      entry.Name,
		Price:     entry.Price,
		Open:      entry.Open,
		PrevClose: entry.PrevClose,
		High:      entry.High,
		Low:       entry.Low,
		Volume:    entry.Volume,
		Turnover:  entry.Turnover,
		Provider:  "netease",
		FetchedAt: time.Now(),
	}, nil
}

// GetKlineData fetches CSV daily candles, which Netease returns
// newest-first, and reverses them into chronological order before return.
func (n *NeteaseProvider) GetKlineData(ctx context.Context, symbol, code string, market domain.Market, length int) ([]KlinePoint, error) {
	if market != domain.MarketCN {
		return nil, &ErrUnsupportedCapability{Provider: n.Name(), Capability: CapKlineData}
	}

	nc := neteaseCode(code)
	url := fmt.Sprintf("https://quotes.money.163.com/service/chddata.html?code=%s&fields=TCLOSE;HIGH;LOW;TOPEN;VOTURNOVER", nc)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		n.health.RecordBan(DefaultCooldown)
		return nil, fmt.Errorf("netease: banned, status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	var rows []KlinePoint
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue // header row
		}
		fields := strings.Split(scanner.Text(), ",")
		if len(fields) < 7 {
			continue
		}
		day, err := time.Parse("2006-01-02", fields[0])
		if err != nil {
			continue
		}
		cls, _ := strconv.ParseFloat(fields[3], 64)
		high, _ := strconv.ParseFloat(fields[4], 64)
		low, _ := strconv.ParseFloat(fields[5], 64)
		open, _ := strconv.ParseFloat(fields[6], 64)
		var vol float64
		if len(fields) > 7 {
			vol, _ = strconv.ParseFloat(fields[7], 64)
		}
		rows = append(rows, KlinePoint{Day: day, Open: open, High: high, Low: low, Close: cls, Volume: vol})
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	if len(rows) > length {
		rows = rows[len(rows)-length:]
	}
	return rows, nil
}

func (n *NeteaseProvider) GetFinancialReport(ctx context.Context, symbol, code string, market domain.Market, reportType, period string) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: n.Name(), Capability: CapFinancialReport}
}

func (n *NeteaseProvider) GetValuationMetrics(ctx context.Context, symbol, code string, market domain.Market) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: n.Name(), Capability: CapValuationMetrics}
}

func (n *NeteaseProvider) GetMacroIndicators(ctx context.Context, market domain.Market, indicators []string) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: n.Name(), Capability: CapMacroIndicators}
}

func stripJSONPWrapper(body, fnName string) string {
	body = strings.TrimSpace(body)
	prefix := fnName + "("
	if strings.HasPrefix(body, prefix) {
		body = strings.TrimPrefix(body, prefix)
		body = strings.TrimSuffix(body, ")")
		body = strings.TrimSuffix(body, ";")
	}
	return body
}
