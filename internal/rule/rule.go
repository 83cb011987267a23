// Package rule evaluates JSON-declared buy/sell trading rules against
// a computed indicator snapshot and derives entry/stop-loss/take-profit
// prices from each rule's price formula (spec C11). Grounded on the
// tagged-union-over-ConditionOperator design spec.md §9 calls for, and
// on the teacher's pattern of compiling declarative JSON config once
// at load time (internal/config/providers.go's ProvidersConfig) rather
// than re-parsing per evaluation.
package rule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"marketpulse/internal/domain"
	"marketpulse/internal/indicator"
)

// Evaluate checks rules in priority-descending order (buy preferred
// over sell at equal priority, per spec §4.11) and returns the first
// rule whose conditions all hold. If none fire, it returns a hold
// outcome with strength 0.
func Evaluate(rules []domain.TradingRule, currentPrice float64, snap *indicator.Snapshot) domain.RuleOutcome {
	ordered := orderedEnabled(rules)

	for _, r := range ordered {
		if !allConditionsHold(r.Conditions, currentPrice, snap) {
			continue
		}
		return fire(r, currentPrice, snap)
	}

	return domain.RuleOutcome{
		Kind:       domain.SignalHold,
		Strength:   0,
		Indicators: indicatorsMap(snap),
		Message:    "no rule conditions matched",
	}
}

func orderedEnabled(rules []domain.TradingRule) []domain.TradingRule {
	out := make([]domain.TradingRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Kind == domain.RuleBuy && out[j].Kind != domain.RuleBuy
	})
	return out
}

func allConditionsHold(conditions []domain.ConditionSpec, currentPrice float64, snap *indicator.Snapshot) bool {
	if len(conditions) == 0 {
		return false
	}
	for _, c := range conditions {
		if !conditionHolds(c, currentPrice, snap) {
			return false
		}
	}
	return true
}

func conditionHolds(c domain.ConditionSpec, currentPrice float64, snap *indicator.Snapshot) bool {
	switch c.Operator {
	case domain.OpCrossAbove, domain.OpCrossBelow:
		cross := crossFor(c.Indicator, snap)
		if cross == nil {
			return false
		}
		if c.Operator == domain.OpCrossAbove {
			return cross.golden
		}
		return cross.dead
	case domain.OpBelowThreshold, domain.OpAboveThreshold:
		// Open Question (spec §9, recorded in DESIGN.md): the stored
		// Bollinger rule's target_value is an inexpressible placeholder.
		// Evaluate Bollinger threshold conditions against the indicator
		// engine's own below_lower/above_upper events instead of the
		// numeric target.
		if strings.EqualFold(c.Indicator, "bollinger") {
			if snap == nil || snap.Bollinger == nil {
				return false
			}
			if c.Operator == domain.OpBelowThreshold {
				return snap.Bollinger.BelowLower
			}
			return snap.Bollinger.AboveUpper
		}
		left, ok := fieldValue(c.Indicator, c.Field, currentPrice, snap)
		if !ok {
			return false
		}
		right, ok := rightValue(c, currentPrice, snap)
		if !ok {
			return false
		}
		if c.Operator == domain.OpBelowThreshold {
			return left < right
		}
		return left > right
	default:
		left, ok := fieldValue(c.Indicator, c.Field, currentPrice, snap)
		if !ok {
			return false
		}
		right, ok := rightValue(c, currentPrice, snap)
		if !ok {
			return false
		}
		switch c.Operator {
		case domain.OpGT:
			return left > right
		case domain.OpLT:
			return left < right
		case domain.OpGTE:
			return left >= right
		case domain.OpLTE:
			return left <= right
		case domain.OpEQ:
			return left == right
		}
		return false
	}
}

func rightValue(c domain.ConditionSpec, currentPrice float64, snap *indicator.Snapshot) (float64, bool) {
	if c.TargetType == domain.TargetIndicator {
		return fieldValue(c.TargetIndicator, c.TargetField, currentPrice, snap)
	}
	if c.TargetValue == nil {
		return 0, false
	}
	return *c.TargetValue, true
}

type crossFlags struct {
	golden bool
	dead   bool
}

func crossFor(indicatorName string, snap *indicator.Snapshot) *crossFlags {
	if snap == nil {
		return nil
	}
	switch strings.ToLower(indicatorName) {
	case "ma", "ma5", "ma20", "ma_cross":
		if snap.MACross == nil {
			return nil
		}
		return &crossFlags{golden: snap.MACross.GoldenCross, dead: snap.MACross.DeadCross}
	case "macd":
		if snap.MACD == nil {
			return nil
		}
		return &crossFlags{golden: snap.MACD.GoldenCross, dead: snap.MACD.DeadCross}
	case "kdj":
		if snap.KDJ == nil {
			return nil
		}
		return &crossFlags{golden: snap.KDJ.GoldenCross, dead: snap.KDJ.DeadCross}
	}
	return nil
}

// fieldValue resolves an (indicator, field) pair against the current
// price and indicator snapshot. "price" is the only indicator name
// that needs no field.
func fieldValue(indicatorName, field string, currentPrice float64, snap *indicator.Snapshot) (float64, bool) {
	name := strings.ToLower(indicatorName)
	if name == "price" || name == "current_price" {
		return currentPrice, true
	}
	if snap == nil {
		return 0, false
	}

	switch name {
	case "rsi":
		if snap.RSI == nil {
			return 0, false
		}
		return *snap.RSI, true
	case "macd":
		if snap.MACD == nil {
			return 0, false
		}
		switch strings.ToLower(field) {
		case "dea":
			return snap.MACD.DEA, true
		case "histogram":
			return snap.MACD.Histogram, true
		default:
			return snap.MACD.DIF, true
		}
	case "kdj":
		if snap.KDJ == nil {
			return 0, false
		}
		switch strings.ToLower(field) {
		case "d":
			return snap.KDJ.D, true
		case "j":
			return snap.KDJ.J, true
		default:
			return snap.KDJ.K, true
		}
	case "bollinger":
		if snap.Bollinger == nil {
			return 0, false
		}
		switch strings.ToLower(field) {
		case "upper":
			return snap.Bollinger.Upper, true
		case "lower":
			return snap.Bollinger.Lower, true
		case "width":
			return snap.Bollinger.Width, true
		default:
			return snap.Bollinger.Middle, true
		}
	default:
		if strings.HasPrefix(name, "ma") {
			if period, err := strconv.Atoi(strings.TrimPrefix(name, "ma")); err == nil {
				if v, ok := snap.MA[period]; ok {
					return v, true
				}
			}
		}
		return 0, false
	}
}

func fire(r domain.TradingRule, currentPrice float64, snap *indicator.Snapshot) domain.RuleOutcome {
	kind := domain.SignalHold
	if r.Kind == domain.RuleBuy {
		kind = domain.SignalBuy
	} else if r.Kind == domain.RuleSell {
		kind = domain.SignalSell
	}

	entry := resolvePrice(&r.PriceConfig.Entry, currentPrice, currentPrice, snap)
	entryPrice := currentPrice
	if entry != nil {
		entryPrice = *entry
	}

	var stopLoss, takeProfit *float64
	if r.PriceConfig.StopLoss != nil {
		stopLoss = resolvePrice(r.PriceConfig.StopLoss, currentPrice, entryPrice, snap)
	}
	if r.PriceConfig.TakeProfit != nil {
		takeProfit = resolvePrice(r.PriceConfig.TakeProfit, currentPrice, entryPrice, snap)
	}

	triggers := []string{r.Name}
	message := renderTemplate(r.DescriptionTemplate, r.Name, currentPrice, r.Strength)

	return domain.RuleOutcome{
		Kind:       kind,
		Entry:      entry,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Strength:   r.Strength,
		Triggers:   triggers,
		Indicators: indicatorsMap(snap),
		Message:    message,
	}
}

// resolvePrice implements the three PriceSpec formulas from spec §4.11:
// indicator (read that indicator's current value), percentage (base *
// (1+v)), and current (just the current price).
func resolvePrice(spec *domain.PriceSpec, currentPrice, entryPrice float64, snap *indicator.Snapshot) *float64 {
	if spec == nil {
		return nil
	}
	switch spec.Type {
	case domain.PriceTypeIndicator:
		v, ok := fieldValue(spec.Indicator, spec.Field, currentPrice, snap)
		if !ok {
			return nil
		}
		return &v
	case domain.PriceTypePercentage:
		base := currentPrice
		if spec.Base == domain.PriceBaseEntry {
			base = entryPrice
		}
		v := base * (1 + spec.Value)
		return &v
	case domain.PriceTypeCurrent:
		v := currentPrice
		return &v
	default:
		return nil
	}
}

func renderTemplate(template, ruleName string, currentPrice float64, strength int) string {
	if template == "" {
		return fmt.Sprintf("%s triggered at %.2f (strength %d)", ruleName, currentPrice, strength)
	}
	replacer := strings.NewReplacer(
		"{rule}", ruleName,
		"{price}", fmt.Sprintf("%.2f", currentPrice),
		"{strength}", strconv.Itoa(strength),
	)
	return replacer.Replace(template)
}

func indicatorsMap(snap *indicator.Snapshot) map[string]interface{} {
	out := map[string]interface{}{}
	if snap == nil {
		return out
	}
	if len(snap.MA) > 0 {
		ma := map[string]float64{}
		for k, v := range snap.MA {
			ma[fmt.Sprintf("MA%d", k)] = v
		}
		out["ma"] = ma
	}
	if snap.MACD != nil {
		out["macd"] = map[string]float64{"dif": snap.MACD.DIF, "dea": snap.MACD.DEA, "histogram": snap.MACD.Histogram}
	}
	if snap.RSI != nil {
		out["rsi"] = *snap.RSI
	}
	if snap.KDJ != nil {
		out["kdj"] = map[string]float64{"k": snap.KDJ.K, "d": snap.KDJ.D, "j": snap.KDJ.J}
	}
	if snap.Bollinger != nil {
		out["bollinger"] = map[string]float64{"upper": snap.Bollinger.Upper, "middle": snap.Bollinger.Middle, "lower": snap.Bollinger.Lower}
	}
	if len(snap.Signals) > 0 {
		out["signals"] = snap.Signals
	}
	return out
}
