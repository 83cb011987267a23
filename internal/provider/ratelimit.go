package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum spacing between outbound provider calls,
// process-wide, the way the original coordinator's MIN_REQUEST_INTERVAL
// throttled every fetch regardless of which provider served it. Built
// on golang.org/x/time/rate the way the pack's internal/net/ratelimit
// wraps rate.Limiter per host — here a single process-wide limiter
// with burst 1, since the coordinator paces its own outbound calls
// rather than per-host traffic.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer builds a Pacer allowing at most one call per interval. A
// zero interval disables pacing (used in tests).
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the pacer admits the next call, or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
