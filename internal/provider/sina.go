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

// SinaProvider is the L1 primary data source: a delimited-text realtime
// quote feed plus a JSON daily-kline feed. Grounded in the original
// SinaProvider and in the teacher's BinanceProvider request/parse shape.
type SinaProvider struct {
	client *http.Client
	health *Health
}

// NewSinaProvider builds the L1 provider with a short request timeout,
// matching the teacher's per-provider http.Client construction.
func NewSinaProvider() *SinaProvider {
	return &SinaProvider{
		client: &http.Client{Timeout: 5 * time.Second},
		health: NewHealth(),
	}
}

func (s *SinaProvider) Name() string     { return "sina" }
func (s *SinaProvider) Priority() int    { return 1 }
func (s *SinaProvider) IsAvailable() bool { return s.health.IsAvailable() }
func (s *SinaProvider) Health() *Health  { return s.health }

func (s *SinaProvider) Capabilities() map[Capability]bool {
	return map[Capability]bool{
		CapRealtimePrice: true,
		CapKlineData:     true,
	}
}

// GetRealtimePrice parses Sina's "var hq_str_sh600000="...";" response: a
// comma-delimited field list with name, open, prev close, price, high,
// low, ... volume, turnover.
func (s *SinaProvider) GetRealtimePrice(ctx context.Context, symbol, code string, market domain.Market) (*StockData, error) {
	if market != domain.MarketCN {
		return nil, &ErrUnsupportedCapability{Provider: s.Name(), Capability: CapRealtimePrice}
	}

	url := fmt.Sprintf("https://hq.sinajs.cn/list=%s", code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", "https://finance.sina.com.cn")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		s.health.RecordBan(DefaultCooldown)
		return nil, fmt.Errorf("sina: banned, status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sina: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return parseSinaQuote(symbol, string(body))
}

func parseSinaQuote(symbol, body string) (*StockData, error) {
	start := strings.Index(body, "\"")
	end := strings.LastIndex(body, "\"")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("sina: malformed response")
	}
	fields := strings.Split(body[start+1:end], ",")
	if len(fields) < 32 {
		return nil, fmt.Errorf("sina: unexpected field count %d", len(fields))
	}

	parse := func(i int) float64 {
		v, _ := strconv.ParseFloat(fields[i], 64)
		return v
	}

	return &StockData{
		Symbol:    symbol,
		Name:      fields[0],
		Open:      parse(1),
		PrevClose: parse(2),
		Price:     parse(3),
		High:      parse(4),
		Low:       parse(5),
		Volume:    parse(8),
		Turnover:  parse(9),
		Provider:  "sina",
		FetchedAt: time.Now(),
	}, nil
}

// sinaKlinePoint mirrors the JSON shape Sina's kline endpoint returns.
type sinaKlinePoint struct {
	Day    string `json:"day"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// GetKlineData fetches the trailing `length` daily candles in
// chronological order.
func (s *SinaProvider) GetKlineData(ctx context.Context, symbol, code string, market domain.Market, length int) ([]KlinePoint, error) {
	if market != domain.MarketCN {
		return nil, &ErrUnsupportedCapability{Provider: s.Name(), Capability: CapKlineData}
	}

	url := fmt.Sprintf(
		"https://quotes.sina.cn/cn/api/json_v2.php/CN_MarketDataService.getKLineData?symbol=%s&scale=240&ma=no&datalen=%d",
		code, length,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		s.health.RecordBan(DefaultCooldown)
		return nil, fmt.Errorf("sina: banned, status %d", resp.StatusCode)
	}

	var raw []sinaKlinePoint
	if err := json.NewDecoder(bufio.NewReader(resp.Body)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("sina kline: decode: %w", err)
	}

	points := make([]KlinePoint, 0, len(raw))
	for _, r := range raw {
		day, err := time.Parse("2006-01-02", r.Day)
		if err != nil {
			continue
		}
		open, _ := strconv.ParseFloat(r.Open, 64)
		high, _ := strconv.ParseFloat(r.High, 64)
		low, _ := strconv.ParseFloat(r.Low, 64)
		cls, _ := strconv.ParseFloat(r.Close, 64)
		vol, _ := strconv.ParseFloat(r.Volume, 64)
		points = append(points, KlinePoint{Day: day, Open: open, High: high, Low: low, Close: cls, Volume: vol})
	}
	return points, nil
}

func (s *SinaProvider) GetFinancialReport(ctx context.Context, symbol, code string, market domain.Market, reportType, period string) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: s.Name(), Capability: CapFinancialReport}
}

func (s *SinaProvider) GetValuationMetrics(ctx context.Context, symbol, code string, market domain.Market) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: s.Name(), Capability: CapValuationMetrics}
}

func (s *SinaProvider) GetMacroIndicators(ctx context.Context, market domain.Market, indicators []string) (map[string]interface{}, error) {
	return nil, &ErrUnsupportedCapability{Provider: s.Name(), Capability: CapMacroIndicators}
}
