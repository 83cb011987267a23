package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTencentQuoteFullWidth(t *testing.T) {
	fields := make([]string, 40)
	for i := range fields {
		fields[i] = "0"
	}
	fields[1] = "贵州茅台"
	fields[3] = "1720.50"
	fields[4] = "1710.00"
	fields[5] = "1715.00"
	fields[6] = "12345"
	fields[33] = "1730.00"
	fields[34] = "1705.00"
	body := `v_sh600519="` + strings.Join(fields, "~") + `";`

	data, err := parseTencentQuote("600519", body)
	require.NoError(t, err)
	assert.Equal(t, "贵州茅台", data.Name)
	assert.InDelta(t, 1720.50, data.Price, 1e-9)
	assert.InDelta(t, 1730.00, data.High, 1e-9)
	assert.InDelta(t, 1705.00, data.Low, 1e-9)
}

// A truncated-but-plausible body (past the required name/price fields
// but short of Tencent's high/low indexes at 33/34) must degrade to
// zero-valued high/low rather than panic; a 403/429 "ban" page or a
// mid-rollout field-schema change can legitimately produce a body like
// this, and a panicking provider call crashes the EnrichBatch worker
// goroutine it runs in (no recover sits between gobreaker.Execute and
// the caller).
func TestParseTencentQuoteShortBodyDoesNotPanic(t *testing.T) {
	fields := []string{"1", "贵州茅台", "600519", "1720.50", "1710.00", "1715.00", "12345"}
	body := `v_sh600519="` + strings.Join(fields, "~") + `";`

	var data *StockData
	var err error
	assert.NotPanics(t, func() {
		data, err = parseTencentQuote("600519", body)
	})
	require.NoError(t, err)
	assert.Equal(t, "贵州茅台", data.Name)
	assert.InDelta(t, 1720.50, data.Price, 1e-9)
	assert.Equal(t, 0.0, data.High)
	assert.Equal(t, 0.0, data.Low)
}

func TestParseTencentQuoteTooFewFieldsFails(t *testing.T) {
	body := `v_sh600519="1~贵州茅台~600519";`
	_, err := parseTencentQuote("600519", body)
	assert.Error(t, err)
}
