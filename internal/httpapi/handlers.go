package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"marketpulse/internal/snapshot"
)

const dateLayout = "2006-01-02"

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes the minimal {"error": msg} shape used for
// anything that isn't a non-trading-day rejection (those get the richer
// shape spec §6 names explicitly).
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// nonTradingDayError is spec §6's exact 400 body shape for
// /snapshots/generate and /reports/daily on a non-trading day.
type nonTradingDayError struct {
	Error        string `json:"error"`
	IsTradingDay bool   `json:"is_trading_day"`
	Reason       string `json:"reason"`
	Date         string `json:"date"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	writeJSONError(w, http.StatusNotFound, "not found")
}

func parseTargetDate(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("target_date")
	if raw == "" {
		return time.Now(), nil
	}
	return time.Parse(dateLayout, raw)
}

// handleGenerateSnapshots implements POST /snapshots/generate. A
// non-trading-day target, or a today target requested at or before
// 15:00 Beijing, is rejected with the 400 shape spec §6 names —
// generate_daily_snapshots itself never makes that call (spec §4.13:
// "external callers must reject").
func (s *Server) handleGenerateSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	targetDate, err := parseTargetDate(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid target_date: "+err.Error())
		return
	}
	force := r.URL.Query().Get("force") == "true"

	isTradingDay, reason, err := s.calendar.IsTradingDayWithReason(ctx, targetDate)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "calendar lookup failed: "+err.Error())
		return
	}
	if !isTradingDay {
		writeJSON(w, http.StatusBadRequest, nonTradingDayError{
			Error: "target_date is not a trading day", IsTradingDay: false,
			Reason: reason, Date: targetDate.Format(dateLayout),
		})
		return
	}

	now := s.now()
	if sameDay(targetDate, now) && !afterBeijingClose(now) {
		writeJSON(w, http.StatusBadRequest, nonTradingDayError{
			Error: "cannot generate today's snapshot before market close (15:00 Beijing)",
			IsTradingDay: true, Reason: "market_open", Date: targetDate.Format(dateLayout),
		})
		return
	}

	instruments, err := s.instruments.ListAll(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "loading instruments: "+err.Error())
		return
	}

	result, err := s.generator.GenerateDaily(ctx, instruments, targetDate, force, now)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "generating snapshots: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDailyReport implements GET /reports/daily.
func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	targetDate, err := parseTargetDate(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid target_date: "+err.Error())
		return
	}

	isTradingDay, reason, err := s.calendar.IsTradingDayWithReason(ctx, targetDate)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "calendar lookup failed: "+err.Error())
		return
	}
	if !isTradingDay {
		writeJSON(w, http.StatusBadRequest, nonTradingDayError{
			Error: "target_date is not a trading day", IsTradingDay: false,
			Reason: reason, Date: targetDate.Format(dateLayout),
		})
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	instruments, err := s.instruments.ListAll(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "loading instruments: "+err.Error())
		return
	}
	info := make(map[int64]snapshot.InstrumentInfo, len(instruments))
	for _, inst := range instruments {
		info[inst.ID] = snapshot.InstrumentInfo{Symbol: inst.Symbol, DisplayName: inst.DisplayName}
	}

	report, err := snapshot.DailyReport(ctx, s.store, info, targetDate, page, pageSize)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "building report: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCalendarCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	targetDate, err := parseTargetDate(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid target_date: "+err.Error())
		return
	}
	isTradingDay, reason, err := s.calendar.IsTradingDayWithReason(ctx, targetDate)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date": targetDate.Format(dateLayout), "is_trading_day": isTradingDay, "reason": reason,
	})
}

func (s *Server) handleCalendarRefresh(w http.ResponseWriter, r *http.Request) {
	year := queryInt(r, "year", s.now().Year())
	if err := s.calendar.RefreshYear(r.Context(), year); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "refreshing calendar: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"year": year, "refreshed": true})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.HealthStatus())
}

func (s *Server) handleProvidersReset(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("provider_name")
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "provider_name is required")
		return
	}
	if !s.coordinator.ResetProvider(name) {
		writeJSONError(w, http.StatusNotFound, "unknown provider: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"provider": name, "status": "reset"})
}

func (s *Server) handleProvidersResetAll(w http.ResponseWriter, r *http.Request) {
	s.coordinator.ResetAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "all providers reset"})
}

func (s *Server) handleProvidersCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.Capabilities())
}

// handleUpdatePrice implements GET /stocks/symbol/{symbol}/update-price:
// force-refresh a single instrument and persist the resulting price.
func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sym := mux.Vars(r)["symbol"]

	inst, err := s.instruments.GetBySymbol(ctx, sym)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "looking up instrument: "+err.Error())
		return
	}
	if inst == nil {
		writeJSONError(w, http.StatusNotFound, "unknown symbol: "+sym)
		return
	}

	res, err := s.pipeline.Enrich(ctx, *inst, true, false)
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "enrichment failed: "+err.Error())
		return
	}
	if res.CurrentPrice > 0 {
		if err := s.instruments.UpdatePrice(ctx, inst.ID, res.CurrentPrice, res.DataFetchedAt); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "persisting price: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, res)
}

// handleClearCacheAndRefresh implements
// POST /stocks/symbol/{symbol}/clear-cache-and-refresh: drains the C9
// TTL caches, then does exactly what update-price does.
func (s *Server) handleClearCacheAndRefresh(w http.ResponseWriter, r *http.Request) {
	cleared := s.pipeline.ClearCaches()
	s.logger.Info().Interface("cleared", cleared).Msg("caches cleared before refresh")
	s.handleUpdatePrice(w, r)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// afterBeijingClose reports whether t is strictly after 15:00 Beijing
// time on its own Beijing calendar day.
func afterBeijingClose(t time.Time) bool {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		loc = time.FixedZone("CST", 8*3600)
	}
	bj := t.In(loc)
	return bj.After(time.Date(bj.Year(), bj.Month(), bj.Day(), 15, 0, 0, 0, loc))
}
