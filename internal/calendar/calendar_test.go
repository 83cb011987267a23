package calendar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
)

type memStore struct {
	mu    sync.Mutex
	years map[int][]domain.CalendarEntry
	gets  int
}

func newMemStore() *memStore { return &memStore{years: make(map[int][]domain.CalendarEntry)} }

func (m *memStore) GetYear(ctx context.Context, year int) ([]domain.CalendarEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	return m.years[year], nil
}

func (m *memStore) UpsertYear(ctx context.Context, year int, entries []domain.CalendarEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.years[year] = entries
	return nil
}

func TestCalendarHydratesOnFirstUse(t *testing.T) {
	store := newMemStore()
	cal := New(store, DefaultHydrator{})

	ok, err := cal.IsTradingDay(context.Background(), time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok) // Friday

	ok, err = cal.IsTradingDay(context.Background(), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok) // Saturday

	store.mu.Lock()
	_, persisted := store.years[2026]
	store.mu.Unlock()
	assert.True(t, persisted)
}

func TestCalendarUsesExplicitOverrideOverWeekdayHeuristic(t *testing.T) {
	store := newMemStore()
	// 2026-10-01 is a Thursday but declared a holiday.
	store.years[2026] = []domain.CalendarEntry{
		{Date: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), IsTradingDay: false, Year: 2026},
	}
	cal := New(store, DefaultHydrator{})

	ok, err := cal.IsTradingDay(context.Background(), time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCalendarOnlyHydratesOnceAcrossConcurrentCallers(t *testing.T) {
	store := newMemStore()
	cal := New(store, DefaultHydrator{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cal.IsTradingDay(context.Background(), time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
		}()
	}
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	// singleflight collapses every concurrent first-caller for 2026 onto
	// one GetYear call; a weaker bound here wouldn't actually catch a
	// regression back to "every caller hydrates independently".
	assert.Equal(t, 1, store.gets)
	_, ok := store.years[2026]
	assert.True(t, ok)
}

func TestIsTradingDayWithReasonCoversAllBranches(t *testing.T) {
	store := newMemStore()
	store.years[2027] = []domain.CalendarEntry{
		{Date: time.Date(2027, 5, 3, 0, 0, 0, 0, time.UTC), IsTradingDay: true, Year: 2027},
		{Date: time.Date(2027, 5, 4, 0, 0, 0, 0, time.UTC), IsTradingDay: false, Year: 2027}, // Tuesday holiday
	}
	cal := New(store, DefaultHydrator{})
	ctx := context.Background()

	ok, reason, err := cal.IsTradingDayWithReason(ctx, time.Date(2027, 5, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ReasonTradingDay, reason)

	ok, reason, err = cal.IsTradingDayWithReason(ctx, time.Date(2027, 5, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ReasonHoliday, reason)

	// 2027-05-01 is a Saturday with no explicit row -> weekend fallback.
	ok, reason, err = cal.IsTradingDayWithReason(ctx, time.Date(2027, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ReasonWeekend, reason)

	// 2027-05-05 is a Wednesday with no explicit row -> basic-rule fallback.
	ok, reason, err = cal.IsTradingDayWithReason(ctx, time.Date(2027, 5, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ReasonBasicRule, reason)
}

func TestRefreshYearReHydrates(t *testing.T) {
	store := newMemStore()
	cal := New(store, DefaultHydrator{})
	ctx := context.Background()

	_, err := cal.IsTradingDay(ctx, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	store.mu.Lock()
	store.years[2026] = []domain.CalendarEntry{
		{Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), IsTradingDay: false, Year: 2026},
	}
	store.mu.Unlock()

	require.NoError(t, cal.RefreshYear(ctx, 2026))

	ok, err := cal.IsTradingDay(ctx, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)
}
