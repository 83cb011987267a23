// Package spotcache implements the process-wide single-entry realtime
// quote cache (spec C4): a single cached quote per instrument, valid
// for a trading-session-aware TTL, so a burst of requests for the same
// symbol during market hours doesn't re-hit the provider chain for
// every caller. Grounded in original_source's
// backend/app/providers/spot_cache.py, reshaped into a mutex-guarded Go
// map the way the teacher's internal/data/cache/ttl.go guards its own
// entry map.
package spotcache

import (
	"sync"
	"time"
)

// shanghai is the trading-calendar timezone every session check is
// evaluated in, regardless of the caller's local timezone.
var shanghai = mustLoadLocation("Asia/Shanghai")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// tradingTTL is how long a cached quote stays valid while the market is
// in session; original_source's CACHE_TTL_TRADING.
const tradingTTL = 5 * time.Minute

// IsTradingTime reports whether t falls in an A-share trading session:
// Mon-Fri, [09:30,11:30] ∪ [13:00,15:00] Asia/Shanghai, with no holiday
// awareness — that belongs to the authoritative calendar package.
func IsTradingTime(t time.Time) bool {
	local := t.In(shanghai)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	morning := minutes >= 9*60+30 && minutes <= 11*60+30
	afternoon := minutes >= 13*60 && minutes <= 15*60
	return morning || afternoon
}

type entry struct {
	data      interface{}
	fetchedAt time.Time
}

// Cache is a single-entry-per-key quote cache. The zero value is not
// usable; use New.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]entry), now: time.Now}
}

// expiry computes when a quote fetched at fetchedAt stops being valid
// (spec C4): 300s from fetch while fetched during a trading session,
// otherwise good until the next session open after the fetch.
func expiry(fetchedAt time.Time) time.Time {
	if IsTradingTime(fetchedAt) {
		return fetchedAt.Add(tradingTTL)
	}
	return NextTradingOpen(fetchedAt)
}

// Get returns the cached value for key if it is still valid for the
// current trading-session state, and whether it was found at all.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.now().After(expiry(e.fetchedAt)) {
		return nil, false
	}
	return e.data, true
}

// Set stores value under key, timestamped at call time.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{data: value, fetchedAt: c.now()}
}

// GetOrFetch returns the cached value for key if it is still valid,
// otherwise calls fetch and caches its result. fetch runs with the
// cache's own mutex held, so a burst of concurrent misses for the same
// key collapses onto a single call instead of each caller hitting the
// network independently — the "readers that must fetch hold the lock
// across the fetch (single-flight equivalent)" rule spec §4.4/§5 states
// for the process-wide bulk snapshot.
func (c *Cache) GetOrFetch(key string, fetch func() (interface{}, error)) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && !c.now().After(expiry(e.fetchedAt)) {
		return e.data, nil
	}

	data, err := fetch()
	if err != nil {
		return nil, err
	}
	c.entries[key] = entry{data: data, fetchedAt: c.now()}
	return data, nil
}

// Clear drops a single key, or every key if key is empty.
func (c *Cache) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" {
		c.entries = make(map[string]entry)
		return
	}
	delete(c.entries, key)
}

// Status describes a single key's cache state, for diagnostics.
type Status struct {
	Present   bool
	FetchedAt time.Time
	Age       time.Duration
	Valid     bool
}

// StatusFor reports the cache state of key without mutating it.
func (c *Cache) StatusFor(key string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Status{}
	}

	now := c.now()
	age := now.Sub(e.fetchedAt)
	return Status{Present: true, FetchedAt: e.fetchedAt, Age: age, Valid: !now.After(expiry(e.fetchedAt))}
}

// NextTradingOpen returns the next session open strictly after t: the
// same day's 09:30 open if t is before it on a weekday, the same day's
// 13:00 reopen if t is later in the morning or in the midday break, or
// 09:30 on the next weekday otherwise.
func NextTradingOpen(t time.Time) time.Time {
	local := t.In(shanghai)
	minutes := local.Hour()*60 + local.Minute()

	if wd := local.Weekday(); wd != time.Saturday && wd != time.Sunday && minutes < 9*60+30 {
		return time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, shanghai)
	}

	if wd := local.Weekday(); wd != time.Saturday && wd != time.Sunday && minutes < 13*60 {
		return time.Date(local.Year(), local.Month(), local.Day(), 13, 0, 0, 0, shanghai)
	}

	next := local.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return time.Date(next.Year(), next.Month(), next.Day(), 9, 30, 0, 0, shanghai)
}
