package snapshot

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"marketpulse/internal/domain"
)

// ReachType classifies a today-reached MA indicator relative to its
// prior snapshot.
type ReachType string

const (
	ReachNew        ReachType = "new_reach"
	ReachContinuous ReachType = "continuous_reach"
)

// FallType classifies a today-not-reached MA indicator relative to its
// prior snapshot.
type FallType string

const (
	FallNew        FallType = "new_fall"
	FallContinuous FallType = "continuous_below"
)

// ReachedIndicatorDetail is one (instrument, MA) pair that reached its
// threshold today.
type ReachedIndicatorDetail struct {
	MAPeriod  int       `json:"ma_period"`
	MAPrice   float64   `json:"ma_price"`
	Diff      float64   `json:"diff"`
	DiffPct   float64   `json:"diff_pct"`
	ReachType ReachType `json:"reach_type"`
}

// ReachedStock groups every reached indicator for one instrument, plus
// the max absolute deviation used to order the reached list.
type ReachedStock struct {
	InstrumentID int64                    `json:"instrument_id"`
	Symbol       string                   `json:"symbol"`
	DisplayName  string                   `json:"display_name"`
	Price        float64                  `json:"price"`
	Indicators   []ReachedIndicatorDetail `json:"indicators"`
	MaxDeviation float64                  `json:"max_deviation"`
}

// BelowStockItem is one (instrument, MA) pair that did not reach its
// threshold today.
type BelowStockItem struct {
	InstrumentID int64    `json:"instrument_id"`
	Symbol       string   `json:"symbol"`
	DisplayName  string   `json:"display_name"`
	MAPeriod     int      `json:"ma_period"`
	DiffPct      float64  `json:"diff_pct"`
	FallType     FallType `json:"fall_type"`
}

// Summary aggregates the day's pass-rate trend (spec §4.13 step 4).
type Summary struct {
	Total                int     `json:"total"`
	ReachedCount         int     `json:"reached_count"`
	NewlyReachedCount    int     `json:"newly_reached_count"`
	NewlyBelowCount      int     `json:"newly_below_count"`
	ContinuousBelowCount int     `json:"continuous_below_count"`
	ReachedRate          float64 `json:"reached_rate"`
	ReachedRateChange    float64 `json:"reached_rate_change"`
}

// Report is daily_report's return shape (spec §4.13 step 6 / §6).
type Report struct {
	Date          time.Time      `json:"date"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
	ReachedStocks []ReachedStock `json:"reached_stocks"`
	BelowStocks   []BelowStockItem `json:"below_stocks"`
	Summary       Summary        `json:"summary"`
}

// InstrumentInfo is the minimal identity the report needs per
// instrument; callers already hold this (it's not worth a DB round trip
// inside the report package itself).
type InstrumentInfo struct {
	Symbol      string
	DisplayName string
}

// DailyReport implements spec §4.13's daily_report operation.
func DailyReport(ctx context.Context, store Store, instruments map[int64]InstrumentInfo, targetDate time.Time, page, pageSize int) (*Report, error) {
	today, err := store.GetByDate(ctx, targetDate)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots for %s: %w", targetDate.Format("2006-01-02"), err)
	}
	if len(today) == 0 {
		return &Report{Date: targetDate, Page: page, PageSize: pageSize}, nil
	}

	ids := make([]int64, len(today))
	for i, s := range today {
		ids[i] = s.InstrumentID
	}
	prior, err := store.GetLatestBefore(ctx, ids, targetDate)
	if err != nil {
		return nil, fmt.Errorf("loading prior snapshots before %s: %w", targetDate.Format("2006-01-02"), err)
	}

	var reached []ReachedStock
	var below []BelowStockItem
	reachedCount, priorReachedCount, priorTotal := 0, 0, 0

	for _, snap := range today {
		info := instruments[snap.InstrumentID]
		priorSnap, hasPrior := prior[snap.InstrumentID]
		if hasPrior {
			priorTotal++
			if anyReached(priorSnap) {
				priorReachedCount++
			}
		}

		stock := ReachedStock{InstrumentID: snap.InstrumentID, Symbol: info.Symbol, DisplayName: info.DisplayName, Price: snap.Price}
		anyMAReached := false

		periods := sortedPeriods(snap.MAResults)
		for _, period := range periods {
			key := fmt.Sprintf("MA%d", period)
			res := snap.MAResults[key]
			priorRes, priorHasKey := priorSnap.MAResults[key]
			priorReached := hasPrior && priorHasKey && priorRes.Reached

			if res.Reached {
				anyMAReached = true
				reachType := ReachNew
				if priorReached {
					reachType = ReachContinuous
				}
				stock.Indicators = append(stock.Indicators, ReachedIndicatorDetail{
					MAPeriod: period, MAPrice: res.MAPrice, Diff: res.Diff, DiffPct: res.DiffPct, ReachType: reachType,
				})
				if abs(res.DiffPct) > stock.MaxDeviation {
					stock.MaxDeviation = abs(res.DiffPct)
				}
			} else {
				fallType := FallContinuous
				if priorReached {
					fallType = FallNew
				}
				below = append(below, BelowStockItem{
					InstrumentID: snap.InstrumentID, Symbol: info.Symbol, DisplayName: info.DisplayName,
					MAPeriod: period, DiffPct: res.DiffPct, FallType: fallType,
				})
			}
		}

		if anyMAReached {
			reachedCount++
			reached = append(reached, stock)
		}
	}

	sort.SliceStable(reached, func(i, j int) bool { return reached[i].MaxDeviation > reached[j].MaxDeviation })
	sort.SliceStable(below, func(i, j int) bool {
		if below[i].MAPeriod != below[j].MAPeriod {
			return below[i].MAPeriod < below[j].MAPeriod
		}
		if below[i].FallType != below[j].FallType {
			return below[i].FallType == FallNew // new_fall sorts before continuous_below
		}
		return below[i].DiffPct < below[j].DiffPct
	})

	newlyReached, newlyBelow, continuousBelow := 0, 0, 0
	for _, s := range reached {
		for _, ind := range s.Indicators {
			if ind.ReachType == ReachNew {
				newlyReached++
			}
		}
	}
	for _, b := range below {
		if b.FallType == FallNew {
			newlyBelow++
		} else {
			continuousBelow++
		}
	}

	reachedRate := float64(reachedCount) / float64(len(today))
	priorRate := 0.0
	if priorTotal > 0 {
		priorRate = float64(priorReachedCount) / float64(priorTotal)
	}

	return &Report{
		Date:          targetDate,
		Page:          page,
		PageSize:      pageSize,
		ReachedStocks: paginate(reached, page, pageSize),
		BelowStocks:   below,
		Summary: Summary{
			Total:                len(today),
			ReachedCount:         reachedCount,
			NewlyReachedCount:    newlyReached,
			NewlyBelowCount:      newlyBelow,
			ContinuousBelowCount: continuousBelow,
			ReachedRate:          round2(reachedRate * 100),
			ReachedRateChange:    round2((reachedRate - priorRate) * 100),
		},
	}, nil
}

func anyReached(s domain.Snapshot) bool {
	for _, r := range s.MAResults {
		if r.Reached {
			return true
		}
	}
	return false
}

func sortedPeriods(maResults map[string]domain.MAResult) []int {
	periods := make([]int, 0, len(maResults))
	for key := range maResults {
		var p int
		if _, err := fmt.Sscanf(key, "MA%d", &p); err == nil {
			periods = append(periods, p)
		}
	}
	sort.Ints(periods)
	return periods
}

func paginate(stocks []ReachedStock, page, pageSize int) []ReachedStock {
	if pageSize <= 0 {
		return stocks
	}
	start := (page - 1) * pageSize
	if start < 0 {
		start = 0
	}
	if start >= len(stocks) {
		return []ReachedStock{}
	}
	end := start + pageSize
	if end > len(stocks) {
		end = len(stocks)
	}
	return stocks[start:end]
}

func abs(f float64) float64 {
	return math.Abs(f)
}
