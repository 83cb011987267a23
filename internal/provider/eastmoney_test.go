package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
	"marketpulse/internal/spotcache"
)

// TestEastMoneyReadsThroughSpotCache proves GetRealtimePrice is wired
// to the shared C4 cache rather than a private map: priming the cache
// directly with Set (as a prior fetch would have done) must satisfy a
// GetRealtimePrice call with no HTTP round trip at all.
func TestEastMoneyReadsThroughSpotCache(t *testing.T) {
	spot := spotcache.New()
	spot.Set(bulkCacheKey, map[string]*StockData{
		"600519": {Name: "贵州茅台", Price: 1720.50, Provider: "eastmoney"},
	})

	e := NewEastMoneyProviderWithCache(spot)
	data, err := e.GetRealtimePrice(context.Background(), "600519", "sh600519", domain.MarketCN)

	require.NoError(t, err)
	assert.Equal(t, "贵州茅台", data.Name)
	assert.InDelta(t, 1720.50, data.Price, 1e-9)
	assert.Equal(t, "600519", data.Symbol)
}

func TestEastMoneyMissingCodeFails(t *testing.T) {
	spot := spotcache.New()
	spot.Set(bulkCacheKey, map[string]*StockData{
		"600519": {Name: "贵州茅台", Price: 1720.50},
	})

	e := NewEastMoneyProviderWithCache(spot)
	_, err := e.GetRealtimePrice(context.Background(), "000001", "sz000001", domain.MarketCN)
	assert.Error(t, err)
}

func TestEastMoneyUnsupportedMarket(t *testing.T) {
	e := NewEastMoneyProvider()
	_, err := e.GetRealtimePrice(context.Background(), "AAPL", "AAPL", domain.MarketUS)
	var unsupported *ErrUnsupportedCapability
	require.ErrorAs(t, err, &unsupported)
}
