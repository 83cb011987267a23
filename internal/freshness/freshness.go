// Package freshness decides whether an instrument's last known price is
// still good enough to use, or whether the enrichment pipeline must go
// back to the provider chain for a new quote (spec C8). It composes the
// trading calendar (C7) and the session-window check shared with
// spotcache (C4) so "is this cached value fresh" answers the same
// question everywhere in the system.
package freshness

import (
	"context"
	"time"

	"marketpulse/internal/calendar"
	"marketpulse/internal/domain"
	"marketpulse/internal/spotcache"
)

// shanghai is the timezone every cn trading-window and close-time
// computation is evaluated in.
var shanghai = mustLoadLocation("Asia/Shanghai")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// Decision is the outcome of a freshness check: whether the pipeline
// must fetch, why, and whether a resulting fetch should be flagged
// realtime (spec: "is_realtime=true" iff trading day AND in session).
type Decision struct {
	NeedsFetch bool
	IsRealtime bool
	Reason     string
}

// Evaluate implements C8's decision table for a single instrument.
// needCalc is true for a new instrument or one whose ma_spec just
// changed (spec §4.8's first rule, which short-circuits everything
// else). lastPrice/lastUpdatedAt mirror the Instrument fields of the
// same name.
func Evaluate(ctx context.Context, cal *calendar.Calendar, market domain.Market, lastPrice *float64, lastUpdatedAt *time.Time, needCalc bool, now time.Time) (Decision, error) {
	if needCalc {
		return Decision{NeedsFetch: true, Reason: "ma_spec changed or instrument is new"}, nil
	}

	if market == domain.MarketCN {
		tradingDay, err := cal.IsTradingDay(ctx, now)
		if err != nil {
			return Decision{}, err
		}
		if !tradingDay {
			return Decision{NeedsFetch: false, Reason: "not a trading day, use cached"}, nil
		}

		if spotcache.IsTradingTime(now) {
			return Decision{NeedsFetch: true, IsRealtime: true, Reason: "within trading session"}, nil
		}
	}

	if lastPrice == nil || *lastPrice == 0 {
		return Decision{NeedsFetch: true, Reason: "no prior price on record"}, nil
	}

	if lastUpdatedAt == nil || lastUpdatedAt.Before(MostRecentClose(now)) {
		return Decision{NeedsFetch: true, Reason: "cached price older than the most recent close"}, nil
	}

	return Decision{NeedsFetch: false, Reason: "cached price still covers the most recent close"}, nil
}

// MostRecentClose returns the most recent weekday 15:00 Asia/Shanghai
// at or before now, skipping weekends — the threshold spec §4.8 uses
// to decide whether a stored last_updated_at is stale.
func MostRecentClose(now time.Time) time.Time {
	local := now.In(shanghai)
	close := time.Date(local.Year(), local.Month(), local.Day(), 15, 0, 0, 0, shanghai)
	if local.Before(close) {
		close = close.AddDate(0, 0, -1)
	}
	for close.Weekday() == time.Saturday || close.Weekday() == time.Sunday {
		close = close.AddDate(0, 0, -1)
	}
	return close
}
