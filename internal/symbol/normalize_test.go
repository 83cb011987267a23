package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"marketpulse/internal/domain"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in       string
		wantCode string
		wantMkt  domain.Market
	}{
		{"600000", "sh600000", domain.MarketCN},
		{"000001", "sz000001", domain.MarketCN},
		{"300750", "sz300750", domain.MarketCN},
		{"430047", "bj430047", domain.MarketCN},
		{"830799", "bj830799", domain.MarketCN},
		{"920000", "bj920000", domain.MarketCN},
		{"900000", "sh900000", domain.MarketCN},
		{"600519.SS", "sh600519", domain.MarketCN},
		{"000858.sz", "sz000858", domain.MarketCN},
		{"430047.BJ", "bj430047", domain.MarketCN},
		{"BABA.N", "BABA.N", domain.MarketUS},
		{"AAPL", "AAPL", domain.MarketUS},
		{"aapl", "AAPL", domain.MarketUS},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			code, mkt := Normalize(tc.in)
			assert.Equal(t, tc.wantCode, code)
			assert.Equal(t, tc.wantMkt, mkt)
		})
	}
}

func Test92BeatsGenericNinePrefix(t *testing.T) {
	code, mkt := Normalize("920001")
	assert.Equal(t, "bj920001", code)
	assert.Equal(t, domain.MarketCN, mkt)
}
