// Package indicator computes the technical indicators and cross
// signals the rule engine (C11) consumes: moving averages, MACD, RSI,
// KDJ and Bollinger bands (spec C10). Grounded on the pack's
// aristath-sentinel trader formulas package (pkg/formulas/*.go), which
// wraps github.com/markcheno/go-talib for the indicators talib
// supports and falls back to a bespoke implementation only where talib
// has no equivalent (KDJ) or where the spec needs access to the raw
// rolling window talib doesn't expose (MA cross detection).
package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// Series is one instrument's OHLC history, oldest first, the shape
// every Compute call consumes.
type Series struct {
	Close []float64
	High  []float64
	Low   []float64
}

// MACDResult holds the latest DIF/DEA/histogram plus enough of the
// prior bar to let the rule engine's cross_above/cross_below operators
// recompute cheaply without re-running the whole series again.
type MACDResult struct {
	DIF        float64
	DEA        float64
	Histogram  float64
	PrevDIF    float64
	PrevDEA    float64
	GoldenCross bool
	DeadCross   bool
}

// KDJResult holds the latest K/D/J values and the prior bar's K/D for
// cross detection.
type KDJResult struct {
	K, D, J       float64
	PrevK, PrevD  float64
	GoldenCross   bool
	DeadCross     bool
}

// BollingerResult holds the band position as of the latest close.
type BollingerResult struct {
	Middle, Upper, Lower, Width float64
	BelowLower, AboveUpper      bool
}

// MACross reports a simple-moving-average cross between two periods
// (MA5/MA20 in the spec's default rule set, but expressed generically
// so any pair of declared ma_spec periods can be checked).
type MACross struct {
	GoldenCross bool
	DeadCross   bool
}

// Snapshot bundles everything Compute produced for one call, plus the
// named signals spec §4.10 says to emit. Any indicator left nil means
// there was insufficient data for it (never an error, per spec).
type Snapshot struct {
	MA         map[int]float64
	MACD       *MACDResult
	RSI        *float64
	KDJ        *KDJResult
	Bollinger  *BollingerResult
	MACross    *MACross
	Signals    []string
}

// round2/round4 match spec §4.10's "two decimals (four for MACD
// internals)" rounding rule.
func round2(f float64) float64 { return math.Round(f*100) / 100 }
func round4(f float64) float64 { return math.Round(f*10000) / 10000 }

func isNaN(f float64) bool { return f != f }

// MA returns the arithmetic mean of the last k closes, or ok=false if
// there are fewer than k (spec §4.10's MA(k) requires len >= k).
func MA(closes []float64, k int) (float64, bool) {
	if k <= 0 || len(closes) < k {
		return 0, false
	}
	window := closes[len(closes)-k:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return round2(sum / float64(k)), true
}

// DetectMACross checks for a golden/dead cross between two periods
// (e.g. 5 and 20) comparing yesterday's and today's relative position,
// per spec: "emit golden_cross when yesterday MA5<=MA20 and today
// MA5>MA20; symmetric for dead_cross".
func DetectMACross(closes []float64, fast, slow int) *MACross {
	if len(closes) < slow+1 {
		return nil
	}
	todayFast, ok1 := MA(closes, fast)
	todaySlow, ok2 := MA(closes, slow)
	yestFast, ok3 := MA(closes[:len(closes)-1], fast)
	yestSlow, ok4 := MA(closes[:len(closes)-1], slow)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil
	}
	return &MACross{
		GoldenCross: yestFast <= yestSlow && todayFast > todaySlow,
		DeadCross:   yestFast >= yestSlow && todayFast < todaySlow,
	}
}

// MACD computes the standard 12/26/9 MACD via talib.Macd and reports a
// cross between DIF and DEA on the final two bars.
func MACD(closes []float64) *MACDResult {
	const fast, slow, signal = 12, 26, 9
	if len(closes) < slow+signal {
		return nil
	}
	dif, dea, hist := talib.Macd(closes, fast, slow, signal)
	n := len(dif)
	if n < 2 || isNaN(dif[n-1]) || isNaN(dea[n-1]) || isNaN(dif[n-2]) || isNaN(dea[n-2]) {
		return nil
	}
	today, prev := dif[n-1], dif[n-2]
	todayDea, prevDea := dea[n-1], dea[n-2]
	return &MACDResult{
		DIF:         round4(today),
		DEA:         round4(todayDea),
		Histogram:   round4(2 * (hist[n-1])),
		PrevDIF:     round4(prev),
		PrevDEA:     round4(prevDea),
		GoldenCross: prev <= prevDea && today > todayDea,
		DeadCross:   prev >= prevDea && today < todayDea,
	}
}

// RSI computes Wilder's 14-period RSI via talib.Rsi.
func RSI(closes []float64) *float64 {
	const period = 14
	if len(closes) < period+1 {
		return nil
	}
	out := talib.Rsi(closes, period)
	if len(out) == 0 || isNaN(out[len(out)-1]) {
		return nil
	}
	v := round2(out[len(out)-1])
	return &v
}

// KDJ computes the classic 9/3/3 stochastic oscillator. talib has no
// KDJ primitive (it is a CN-market convention, not a TA-Lib indicator),
// so RSV/K/D/J are computed directly off the rolling high/low/close
// window, the way aristath-sentinel's bespoke formulas fill gaps talib
// doesn't cover.
func KDJ(s Series) *KDJResult {
	const n, kSmooth, dSmooth = 9, 3, 3
	if len(s.Close) < n+2 {
		return nil
	}

	rsv := make([]float64, len(s.Close))
	for i := range s.Close {
		if i+1 < n {
			rsv[i] = math.NaN()
			continue
		}
		hi := s.High[i+1-n]
		lo := s.Low[i+1-n]
		for j := i + 2 - n; j <= i; j++ {
			if s.High[j] > hi {
				hi = s.High[j]
			}
			if s.Low[j] < lo {
				lo = s.Low[j]
			}
		}
		if hi == lo {
			rsv[i] = 50
			continue
		}
		rsv[i] = (s.Close[i] - lo) / (hi - lo) * 100
	}

	k := ema1of3(rsv, kSmooth)
	d := ema1of3(k, dSmooth)

	last := len(s.Close) - 1
	if isNaN(k[last]) || isNaN(d[last]) || last < 1 || isNaN(k[last-1]) || isNaN(d[last-1]) {
		return nil
	}
	j := 3*k[last] - 2*d[last]
	return &KDJResult{
		K: round2(k[last]), D: round2(d[last]), J: round2(j),
		PrevK: round2(k[last-1]), PrevD: round2(d[last-1]),
		GoldenCross: k[last-1] <= d[last-1] && k[last] > d[last],
		DeadCross:   k[last-1] >= d[last-1] && k[last] < d[last],
	}
}

// ema1of3 smooths series with a 1/3-weight EMA (alpha=1/divisor),
// carrying forward the first valid value as the seed the way the KDJ
// recurrence K = EMA(RSV, 1/3) is conventionally initialized.
func ema1of3(series []float64, divisor int) []float64 {
	alpha := 1.0 / float64(divisor)
	out := make([]float64, len(series))
	seeded := false
	prev := 50.0
	for i, v := range series {
		if isNaN(v) {
			out[i] = math.NaN()
			continue
		}
		if !seeded {
			prev = v
			seeded = true
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// Bollinger computes 20-period, 2-sigma Bollinger bands via
// talib.BBands and flags a breach against the latest close.
func Bollinger(closes []float64) *BollingerResult {
	const period = 20
	const stdDev = 2.0
	if len(closes) < period {
		return nil
	}
	upper, middle, lower := talib.BBands(closes, period, stdDev, stdDev, 0)
	n := len(upper)
	if n == 0 || isNaN(upper[n-1]) || isNaN(lower[n-1]) {
		return nil
	}
	current := closes[len(closes)-1]
	return &BollingerResult{
		Middle:     round2(middle[n-1]),
		Upper:      round2(upper[n-1]),
		Lower:      round2(lower[n-1]),
		Width:      round2(upper[n-1] - lower[n-1]),
		BelowLower: current < lower[n-1],
		AboveUpper: current > upper[n-1],
	}
}

// Compute runs every indicator over s and collects the signals spec
// §4.10 names. periods are the ma_spec values to compute MA(k) for;
// MA cross detection always uses 5 and 20 regardless of ma_spec, since
// that is the cross the rule engine's default rule set fires on.
func Compute(s Series, periods []int) *Snapshot {
	snap := &Snapshot{MA: make(map[int]float64)}

	for _, k := range periods {
		if v, ok := MA(s.Close, k); ok {
			snap.MA[k] = v
		}
	}

	snap.MACross = DetectMACross(s.Close, 5, 20)
	if snap.MACross != nil {
		if snap.MACross.GoldenCross {
			snap.Signals = append(snap.Signals, "golden_cross")
		}
		if snap.MACross.DeadCross {
			snap.Signals = append(snap.Signals, "dead_cross")
		}
	}

	snap.MACD = MACD(s.Close)
	if snap.MACD != nil {
		if snap.MACD.GoldenCross {
			snap.Signals = append(snap.Signals, "macd_golden_cross")
		}
		if snap.MACD.DeadCross {
			snap.Signals = append(snap.Signals, "macd_dead_cross")
		}
	}

	snap.RSI = RSI(s.Close)
	if snap.RSI != nil {
		if *snap.RSI < 30 {
			snap.Signals = append(snap.Signals, "oversold")
		}
		if *snap.RSI > 70 {
			snap.Signals = append(snap.Signals, "overbought")
		}
	}

	snap.KDJ = KDJ(s)
	if snap.KDJ != nil {
		if snap.KDJ.GoldenCross {
			snap.Signals = append(snap.Signals, "kdj_golden_cross")
		}
		if snap.KDJ.DeadCross {
			snap.Signals = append(snap.Signals, "kdj_dead_cross")
		}
	}

	snap.Bollinger = Bollinger(s.Close)
	if snap.Bollinger != nil {
		if snap.Bollinger.BelowLower {
			snap.Signals = append(snap.Signals, "below_lower")
		}
		if snap.Bollinger.AboveUpper {
			snap.Signals = append(snap.Signals, "above_upper")
		}
	}

	return snap
}
