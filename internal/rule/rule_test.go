package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
	"marketpulse/internal/indicator"
)

func TestEvaluateNoRulesFireYieldsHold(t *testing.T) {
	out := Evaluate(DefaultRules(), 10, &indicator.Snapshot{})
	assert.Equal(t, domain.SignalHold, out.Kind)
	assert.Equal(t, 0, out.Strength)
}

func TestEvaluateMAGoldenCrossFiresBuy(t *testing.T) {
	snap := &indicator.Snapshot{MACross: &indicator.MACross{GoldenCross: true}}
	out := Evaluate(DefaultRules(), 10, snap)
	require.Equal(t, domain.SignalBuy, out.Kind)
	assert.Contains(t, out.Triggers, "MA5/MA20 Golden Cross")
	require.NotNil(t, out.Entry)
	assert.Equal(t, 10.0, *out.Entry)
	require.NotNil(t, out.StopLoss)
	assert.InDelta(t, 9.5, *out.StopLoss, 0.001)
	require.NotNil(t, out.TakeProfit)
	assert.InDelta(t, 11.0, *out.TakeProfit, 0.001)
}

func TestEvaluateBuyPreferredOverSellAtSamePriority(t *testing.T) {
	// Both MA rules (buy and sell) share priority 100 and both match here.
	snap := &indicator.Snapshot{MACross: &indicator.MACross{GoldenCross: true, DeadCross: true}}
	out := Evaluate(DefaultRules(), 10, snap)
	assert.Equal(t, domain.SignalBuy, out.Kind)
}

func TestEvaluateMADeadCrossFiresSell(t *testing.T) {
	snap := &indicator.Snapshot{MACross: &indicator.MACross{DeadCross: true}}
	out := Evaluate(DefaultRules(), 10, snap)
	assert.Equal(t, domain.SignalSell, out.Kind)
	assert.Contains(t, out.Triggers, "MA5/MA20 Dead Cross")
}

func TestEvaluateRSIOversoldFiresBuy(t *testing.T) {
	rsi := 25.0
	snap := &indicator.Snapshot{RSI: &rsi}
	out := Evaluate(DefaultRules(), 10, snap)
	assert.Equal(t, domain.SignalBuy, out.Kind)
	assert.Contains(t, out.Triggers, "RSI Oversold Rebound")
}

func TestEvaluateBollingerBelowLowerUsesIndicatorEventNotTargetValue(t *testing.T) {
	snap := &indicator.Snapshot{Bollinger: &indicator.BollingerResult{BelowLower: true}}
	out := Evaluate(DefaultRules(), 10, snap)
	assert.Equal(t, domain.SignalBuy, out.Kind)
	assert.Contains(t, out.Triggers, "Bollinger Lower Band Touch")
}

func TestEvaluateBollingerNotBreachedDoesNotFireOnStoredZeroPlaceholder(t *testing.T) {
	// Bollinger computed but current price is not actually below/above a band:
	// the stored target_value=0 placeholder must never be compared literally.
	snap := &indicator.Snapshot{Bollinger: &indicator.BollingerResult{BelowLower: false, AboveUpper: false, Lower: 5, Upper: 15}}
	out := Evaluate(DefaultRules(), 10, snap)
	assert.Equal(t, domain.SignalHold, out.Kind)
}

func TestEvaluatePriorityOrderWinsOverLowerPriorityMatch(t *testing.T) {
	rsi := 25.0
	snap := &indicator.Snapshot{
		MACross: &indicator.MACross{GoldenCross: true}, // priority 100
		RSI:     &rsi,                                  // priority 90
	}
	out := Evaluate(DefaultRules(), 10, snap)
	assert.Contains(t, out.Triggers, "MA5/MA20 Golden Cross")
}

func TestResolvePricePercentageBaseCurrent(t *testing.T) {
	spec := domain.PriceSpec{Type: domain.PriceTypePercentage, Base: domain.PriceBaseCurrent, Value: 0.05}
	v := resolvePrice(&spec, 100, 90, nil)
	require.NotNil(t, v)
	assert.InDelta(t, 105.0, *v, 0.001)
}

func TestResolvePriceIndicatorField(t *testing.T) {
	snap := &indicator.Snapshot{Bollinger: &indicator.BollingerResult{Middle: 42}}
	spec := domain.PriceSpec{Type: domain.PriceTypeIndicator, Indicator: "bollinger", Field: "middle"}
	v := resolvePrice(&spec, 100, 100, snap)
	require.NotNil(t, v)
	assert.Equal(t, 42.0, *v)
}
