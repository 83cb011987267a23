package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
)

func TestDailyReportEmptyWhenNoSnapshots(t *testing.T) {
	store := newMemStore()
	report, err := DailyReport(context.Background(), store, nil, time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC), 1, 20)
	require.NoError(t, err)
	assert.Empty(t, report.ReachedStocks)
	assert.Equal(t, 0, report.Summary.Total)
}

func TestDailyReportClassifiesNewReachAndContinuousBelow(t *testing.T) {
	store := newMemStore()
	today := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	// Instrument 1: MA5 was not reached yesterday, is reached today -> new_reach.
	store.byKey[snapKey(1, yesterday)] = domain.Snapshot{
		InstrumentID: 1, Date: yesterday, Price: 9,
		MAResults: map[string]domain.MAResult{"MA5": {MAPrice: 10, Reached: false, DiffPct: -10}},
	}
	store.byKey[snapKey(1, today)] = domain.Snapshot{
		InstrumentID: 1, Date: today, Price: 11,
		MAResults: map[string]domain.MAResult{"MA5": {MAPrice: 10, Reached: true, DiffPct: 10}},
	}

	// Instrument 2: MA5 not reached both days -> continuous_below.
	store.byKey[snapKey(2, yesterday)] = domain.Snapshot{
		InstrumentID: 2, Date: yesterday, Price: 8,
		MAResults: map[string]domain.MAResult{"MA5": {MAPrice: 10, Reached: false, DiffPct: -20}},
	}
	store.byKey[snapKey(2, today)] = domain.Snapshot{
		InstrumentID: 2, Date: today, Price: 9,
		MAResults: map[string]domain.MAResult{"MA5": {MAPrice: 10, Reached: false, DiffPct: -10}},
	}

	instruments := map[int64]InstrumentInfo{
		1: {Symbol: "AAPL", DisplayName: "Apple"},
		2: {Symbol: "MSFT", DisplayName: "Microsoft"},
	}

	report, err := DailyReport(context.Background(), store, instruments, today, 1, 20)
	require.NoError(t, err)

	require.Len(t, report.ReachedStocks, 1)
	assert.Equal(t, int64(1), report.ReachedStocks[0].InstrumentID)
	require.Len(t, report.ReachedStocks[0].Indicators, 1)
	assert.Equal(t, ReachNew, report.ReachedStocks[0].Indicators[0].ReachType)

	require.Len(t, report.BelowStocks, 1)
	assert.Equal(t, int64(2), report.BelowStocks[0].InstrumentID)
	assert.Equal(t, FallContinuous, report.BelowStocks[0].FallType)

	assert.Equal(t, 2, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.ReachedCount)
	assert.Equal(t, 1, report.Summary.NewlyReachedCount)
	assert.Equal(t, 0, report.Summary.NewlyBelowCount)
	assert.Equal(t, 1, report.Summary.ContinuousBelowCount)
}

func TestDailyReportNewFallWhenPreviouslyReached(t *testing.T) {
	store := newMemStore()
	today := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	store.byKey[snapKey(1, yesterday)] = domain.Snapshot{
		InstrumentID: 1, Date: yesterday, Price: 11,
		MAResults: map[string]domain.MAResult{"MA5": {MAPrice: 10, Reached: true, DiffPct: 10}},
	}
	store.byKey[snapKey(1, today)] = domain.Snapshot{
		InstrumentID: 1, Date: today, Price: 9,
		MAResults: map[string]domain.MAResult{"MA5": {MAPrice: 10, Reached: false, DiffPct: -10}},
	}

	report, err := DailyReport(context.Background(), store, map[int64]InstrumentInfo{1: {Symbol: "AAPL"}}, today, 1, 20)
	require.NoError(t, err)
	require.Len(t, report.BelowStocks, 1)
	assert.Equal(t, FallNew, report.BelowStocks[0].FallType)
	assert.Equal(t, 1, report.Summary.NewlyBelowCount)
}

func TestDailyReportPagesReachedStocksByMaxDeviationDescending(t *testing.T) {
	store := newMemStore()
	today := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 3; i++ {
		diff := float64(i) * 5
		store.byKey[snapKey(i, today)] = domain.Snapshot{
			InstrumentID: i, Date: today, Price: 10 + diff,
			MAResults: map[string]domain.MAResult{"MA5": {MAPrice: 10, Reached: true, DiffPct: diff}},
		}
	}

	report, err := DailyReport(context.Background(), store, nil, today, 1, 2)
	require.NoError(t, err)
	require.Len(t, report.ReachedStocks, 2)
	assert.Equal(t, int64(3), report.ReachedStocks[0].InstrumentID) // biggest deviation first
	assert.Equal(t, int64(2), report.ReachedStocks[1].InstrumentID)

	report2, err := DailyReport(context.Background(), store, nil, today, 2, 2)
	require.NoError(t, err)
	require.Len(t, report2.ReachedStocks, 1)
	assert.Equal(t, int64(1), report2.ReachedStocks[0].InstrumentID)
}
