package monitor

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a per-site minimum inter-request interval with a
// randomized delay on top. Concurrent acquirers for one site queue up behind
// each other through reservation of the next free slot.
type RateLimiter struct {
	mu        sync.Mutex
	last      map[string]time.Time
	intervals map[string]rateWindow
	fallback  rateWindow
	clock     Clock
}

type rateWindow struct {
	min time.Duration
	max time.Duration
}

func NewRateLimiter(clock Clock) *RateLimiter {
	return &RateLimiter{
		last:      make(map[string]time.Time),
		intervals: make(map[string]rateWindow),
		fallback:  rateWindow{min: time.Second, max: 2 * time.Second},
		clock:     clock,
	}
}

// SetInterval overrides the delay window for one site; "default" replaces
// the fallback window.
func (l *RateLimiter) SetInterval(site string, min, max time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if site == "default" {
		l.fallback = rateWindow{min: min, max: max}
		return
	}
	l.intervals[site] = rateWindow{min: min, max: max}
}

// Acquire blocks until the caller may issue a request to site. It returns
// early with the context error on cancellation.
func (l *RateLimiter) Acquire(ctx context.Context, site string) error {
	l.mu.Lock()
	w, ok := l.intervals[site]
	if !ok {
		w = l.fallback
	}
	now := l.clock.Now()
	gap := Jitter(w.min, w.max)

	earliest := now
	if last, ok := l.last[site]; ok && last.Add(gap).After(now) {
		earliest = last.Add(gap)
	}
	l.last[site] = earliest
	l.mu.Unlock()

	return l.clock.Sleep(ctx, earliest.Sub(now))
}
