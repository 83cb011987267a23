package rule

import "marketpulse/internal/domain"

// targetValue is a small helper since domain.ConditionSpec.TargetValue
// is a pointer.
func targetValue(v float64) *float64 { return &v }

// DefaultRules returns the 8 built-in rules (4 buy, 4 sell) spec §4.11
// requires to ship whenever the trading_rules table is empty: MA5/MA20
// cross, RSI extremes, Bollinger edges, and MACD cross, one buy and
// one sell variant of each.
func DefaultRules() []domain.TradingRule {
	return []domain.TradingRule{
		{
			Name: "MA5/MA20 Golden Cross", Kind: domain.RuleBuy, Enabled: true, Priority: 100, Strength: 4,
			Conditions: []domain.ConditionSpec{
				{Indicator: "ma", Operator: domain.OpCrossAbove, TargetType: domain.TargetIndicator, TargetIndicator: "ma"},
			},
			PriceConfig: domain.PriceConfig{
				Entry:      domain.PriceSpec{Type: domain.PriceTypeCurrent},
				StopLoss:   &domain.PriceSpec{Type: domain.PriceTypePercentage, Base: domain.PriceBaseEntry, Value: -0.05},
				TakeProfit: &domain.PriceSpec{Type: domain.PriceTypePercentage, Base: domain.PriceBaseEntry, Value: 0.10},
			},
			DescriptionTemplate: "{rule}: MA5 crossed above MA20 at {price}",
		},
		{
			Name: "RSI Oversold Rebound", Kind: domain.RuleBuy, Enabled: true, Priority: 90, Strength: 3,
			Conditions: []domain.ConditionSpec{
				{Indicator: "rsi", Operator: domain.OpLT, TargetType: domain.TargetValue, TargetValue: targetValue(30)},
			},
			PriceConfig: domain.PriceConfig{
				Entry:      domain.PriceSpec{Type: domain.PriceTypeCurrent},
				StopLoss:   &domain.PriceSpec{Type: domain.PriceTypePercentage, Base: domain.PriceBaseEntry, Value: -0.04},
				TakeProfit: &domain.PriceSpec{Type: domain.PriceTypePercentage, Base: domain.PriceBaseEntry, Value: 0.08},
			},
			DescriptionTemplate: "{rule}: RSI below 30 at {price}",
		},
		{
			Name: "MACD Golden Cross", Kind: domain.RuleBuy, Enabled: true, Priority: 80, Strength: 3,
			Conditions: []domain.ConditionSpec{
				{Indicator: "macd", Operator: domain.OpCrossAbove, TargetType: domain.TargetIndicator, TargetIndicator: "macd"},
			},
			PriceConfig: domain.PriceConfig{
				Entry:      domain.PriceSpec{Type: domain.PriceTypeCurrent},
				StopLoss:   &domain.PriceSpec{Type: domain.PriceTypePercentage, Base: domain.PriceBaseEntry, Value: -0.05},
				TakeProfit: &domain.PriceSpec{Type: domain.PriceTypePercentage, Base: domain.PriceBaseEntry, Value: 0.10},
			},
			DescriptionTemplate: "{rule}: MACD DIF crossed above DEA at {price}",
		},
		{
			Name: "Bollinger Lower Band Touch", Kind: domain.RuleBuy, Enabled: true, Priority: 70, Strength: 2,
			Conditions: []domain.ConditionSpec{
				// target_value is an inexpressible placeholder per spec §9;
				// conditionHolds special-cases bollinger+below_threshold to
				// read the indicator engine's own below_lower event.
				{Indicator: "bollinger", Operator: domain.OpBelowThreshold, TargetType: domain.TargetValue, TargetValue: targetValue(0)},
			},
			PriceConfig: domain.PriceConfig{
				Entry:      domain.PriceSpec{Type: domain.PriceTypeCurrent},
				StopLoss:   &domain.PriceSpec{Type: domain.PriceTypePercentage, Base: domain.PriceBaseEntry, Value: -0.03},
				TakeProfit: &domain.PriceSpec{Type: domain.PriceTypeIndicator, Indicator: "bollinger", Field: "middle"},
			},
			DescriptionTemplate: "{rule}: price below lower Bollinger band at {price}",
		},
		{
			Name: "MA5/MA20 Dead Cross", Kind: domain.RuleSell, Enabled: true, Priority: 100, Strength: 4,
			Conditions: []domain.ConditionSpec{
				{Indicator: "ma", Operator: domain.OpCrossBelow, TargetType: domain.TargetIndicator, TargetIndicator: "ma"},
			},
			PriceConfig: domain.PriceConfig{
				Entry: domain.PriceSpec{Type: domain.PriceTypeCurrent},
			},
			DescriptionTemplate: "{rule}: MA5 crossed below MA20 at {price}",
		},
		{
			Name: "RSI Overbought Pullback", Kind: domain.RuleSell, Enabled: true, Priority: 90, Strength: 3,
			Conditions: []domain.ConditionSpec{
				{Indicator: "rsi", Operator: domain.OpGT, TargetType: domain.TargetValue, TargetValue: targetValue(70)},
			},
			PriceConfig: domain.PriceConfig{
				Entry: domain.PriceSpec{Type: domain.PriceTypeCurrent},
			},
			DescriptionTemplate: "{rule}: RSI above 70 at {price}",
		},
		{
			Name: "MACD Dead Cross", Kind: domain.RuleSell, Enabled: true, Priority: 80, Strength: 3,
			Conditions: []domain.ConditionSpec{
				{Indicator: "macd", Operator: domain.OpCrossBelow, TargetType: domain.TargetIndicator, TargetIndicator: "macd"},
			},
			PriceConfig: domain.PriceConfig{
				Entry: domain.PriceSpec{Type: domain.PriceTypeCurrent},
			},
			DescriptionTemplate: "{rule}: MACD DIF crossed below DEA at {price}",
		},
		{
			Name: "Bollinger Upper Band Touch", Kind: domain.RuleSell, Enabled: true, Priority: 70, Strength: 2,
			Conditions: []domain.ConditionSpec{
				{Indicator: "bollinger", Operator: domain.OpAboveThreshold, TargetType: domain.TargetValue, TargetValue: targetValue(0)},
			},
			PriceConfig: domain.PriceConfig{
				Entry: domain.PriceSpec{Type: domain.PriceTypeCurrent},
			},
			DescriptionTemplate: "{rule}: price above upper Bollinger band at {price}",
		},
	}
}
