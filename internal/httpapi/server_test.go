package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/calendar"
	"marketpulse/internal/domain"
	"marketpulse/internal/enrich"
	"marketpulse/internal/provider"
	"marketpulse/internal/snapshot"
)

type fakeCalendarStore struct{ entries map[int][]domain.CalendarEntry }

func (f *fakeCalendarStore) GetYear(ctx context.Context, year int) ([]domain.CalendarEntry, error) {
	return f.entries[year], nil
}
func (f *fakeCalendarStore) UpsertYear(ctx context.Context, year int, entries []domain.CalendarEntry) error {
	if f.entries == nil {
		f.entries = map[int][]domain.CalendarEntry{}
	}
	f.entries[year] = entries
	return nil
}

type fakeHydrator struct{ entries []domain.CalendarEntry }

func (f fakeHydrator) HydrateYear(ctx context.Context, year int) ([]domain.CalendarEntry, error) {
	return f.entries, nil
}

type fakeSnapshotStore struct{ byDate map[string][]domain.Snapshot }

func (f *fakeSnapshotStore) GetByDate(ctx context.Context, date time.Time) ([]domain.Snapshot, error) {
	return f.byDate[date.Format("2006-01-02")], nil
}
func (f *fakeSnapshotStore) GetOne(ctx context.Context, instrumentID int64, date time.Time) (*domain.Snapshot, error) {
	return nil, nil
}
func (f *fakeSnapshotStore) GetLatestBefore(ctx context.Context, ids []int64, date time.Time) (map[int64]domain.Snapshot, error) {
	return map[int64]domain.Snapshot{}, nil
}
func (f *fakeSnapshotStore) Upsert(ctx context.Context, snap domain.Snapshot) (bool, error) {
	return true, nil
}

type fakeInstrumentStore struct{ byID map[int64]domain.Instrument }

func (f *fakeInstrumentStore) GetBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error) {
	for _, inst := range f.byID {
		if inst.Symbol == symbol {
			cp := inst
			return &cp, nil
		}
	}
	return nil, nil
}
func (f *fakeInstrumentStore) ListAll(ctx context.Context) ([]domain.Instrument, error) {
	out := make([]domain.Instrument, 0, len(f.byID))
	for _, inst := range f.byID {
		out = append(out, inst)
	}
	return out, nil
}
func (f *fakeInstrumentStore) UpdatePrice(ctx context.Context, id int64, price float64, at time.Time) error {
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestServer(t *testing.T, weekday time.Time) (*Server, *fakeSnapshotStore) {
	t.Helper()

	entries := make([]domain.CalendarEntry, 0)
	for d := 1; d <= 28; d++ {
		date := time.Date(weekday.Year(), weekday.Month(), d, 0, 0, 0, 0, time.UTC)
		entries = append(entries, domain.CalendarEntry{Date: date, IsTradingDay: date.Weekday() != time.Saturday && date.Weekday() != time.Sunday, Year: weekday.Year()})
	}
	cal := calendar.New(&fakeCalendarStore{}, fakeHydrator{entries: entries})

	pacer := provider.NewPacer(0)
	coord := provider.NewCoordinator(pacer, provider.NewSinaProvider())
	pipeline := enrich.New(coord, cal)

	snapStore := &fakeSnapshotStore{byDate: map[string][]domain.Snapshot{}}
	gen := snapshot.NewGenerator(snapStore, coord, pipeline)

	instruments := &fakeInstrumentStore{byID: map[int64]domain.Instrument{
		1: {ID: 1, Symbol: "600000", DisplayName: "Example", MASpec: []int{5, 20}},
	}}

	srv, err := NewServer(Config{Host: "127.0.0.1", Port: 0}, Deps{
		Calendar: cal, Coordinator: coord, Pipeline: pipeline, Generator: gen, Store: snapStore, Instruments: instruments,
	}, testLogger())
	require.NoError(t, err)
	srv.now = func() time.Time { return weekday }
	return srv, snapStore
}

func TestDailyReportRejectsNonTradingDay(t *testing.T) {
	saturday := time.Date(2026, 7, 25, 10, 0, 0, 0, time.UTC) // a Saturday
	srv, _ := newTestServer(t, saturday)

	req := httptest.NewRequest(http.MethodGet, "/reports/daily?target_date=2026-07-25", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body nonTradingDayError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.False(t, body.IsTradingDay)
}

func TestDailyReportEmptyWhenNoSnapshots(t *testing.T) {
	monday := time.Date(2026, 7, 27, 10, 0, 0, 0, time.UTC)
	srv, _ := newTestServer(t, monday)

	req := httptest.NewRequest(http.MethodGet, "/reports/daily?target_date=2026-07-27", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var report snapshot.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.Equal(t, 0, report.Summary.Total)
}

func TestGenerateSnapshotsRejectsBeforeMarketClose(t *testing.T) {
	monday := time.Date(2026, 7, 27, 6, 0, 0, 0, time.UTC) // before 15:00 Beijing
	srv, _ := newTestServer(t, monday)

	req := httptest.NewRequest(http.MethodPost, "/snapshots/generate?target_date=2026-07-27", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProvidersHealthReturnsEveryRegisteredProvider(t *testing.T) {
	monday := time.Date(2026, 7, 27, 10, 0, 0, 0, time.UTC)
	srv, _ := newTestServer(t, monday)

	req := httptest.NewRequest(http.MethodGet, "/providers/health", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var status map[string]provider.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Contains(t, status, "sina")
}

func TestNotFoundRoute(t *testing.T) {
	monday := time.Date(2026, 7, 27, 10, 0, 0, 0, time.UTC)
	srv, _ := newTestServer(t, monday)

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}
