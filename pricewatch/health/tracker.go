package health

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/config"
)

// SiteHealth is the rolling per-site error state. Created on first
// interaction with a site, never destroyed except by Reset.
type SiteHealth struct {
	Site              string
	TotalErrors       int
	ConsecutiveErrors int
	LastErrorAt       time.Time
	LastSuccessAt     time.Time
	LastCategory      Category
	CooldownUntil     time.Time
}

// CooldownStatus reports whether a site is paused and why.
type CooldownStatus struct {
	InCooldown bool
	Until      time.Time
	Reason     string
}

// RetryDecision is the verdict of ShouldRetry for one failed attempt.
type RetryDecision struct {
	Retry  bool
	Reason string
	Delay  time.Duration
}

// Tracker keeps rolling health per site and computes cooldowns. All methods
// are safe for concurrent use by workers.
type Tracker struct {
	mu             sync.Mutex
	sites          map[string]*SiteHealth
	maxConsecutive int
	baseDelay      time.Duration
	maxDelay       time.Duration
	now            func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		sites:          make(map[string]*SiteHealth),
		maxConsecutive: config.MaxConsecutiveFailures,
		baseDelay:      config.RetryBaseDelay,
		maxDelay:       config.RetryMaxDelay,
		now:            time.Now,
	}
}

func (t *Tracker) siteLocked(site string) *SiteHealth {
	sh, ok := t.sites[site]
	if !ok {
		sh = &SiteHealth{Site: site}
		t.sites[site] = sh
	}
	return sh
}

// RecordError classifies err, updates the site's rolling state, and starts a
// cooldown when the failure is critical or the consecutive streak is too long.
func (t *Tracker) RecordError(rawURL string, err error, pageContent string) Classification {
	cls := Classify(err, pageContent)
	site := SiteFromURL(rawURL)

	t.mu.Lock()
	defer t.mu.Unlock()

	sh := t.siteLocked(site)
	sh.TotalErrors++
	sh.ConsecutiveErrors++
	sh.LastErrorAt = t.now()
	sh.LastCategory = cls.Category

	if cls.Severity == SeverityCritical || sh.ConsecutiveErrors >= t.maxConsecutive {
		until := t.now().Add(cooldownFor(cls.Severity))
		if until.After(sh.CooldownUntil) {
			sh.CooldownUntil = until
			slog.Warn("Site entering cooldown",
				slog.String("type", "scrape"),
				slog.String("site", site),
				slog.String("category", string(cls.Category)),
				slog.Int("consecutive_errors", sh.ConsecutiveErrors),
				slog.Time("until", until))
		}
	}

	return cls
}

// RecordSuccess resets the consecutive error streak for the site.
func (t *Tracker) RecordSuccess(rawURL string) {
	site := SiteFromURL(rawURL)

	t.mu.Lock()
	defer t.mu.Unlock()

	sh := t.siteLocked(site)
	sh.ConsecutiveErrors = 0
	sh.LastSuccessAt = t.now()
}

// InCooldown reports whether scrapes to site are currently paused.
func (t *Tracker) InCooldown(site string) CooldownStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	sh, ok := t.sites[site]
	if !ok || !sh.CooldownUntil.After(t.now()) {
		return CooldownStatus{}
	}
	return CooldownStatus{
		InCooldown: true,
		Until:      sh.CooldownUntil,
		Reason:     string(sh.LastCategory),
	}
}

// ShouldRetry decides whether a failed attempt is worth repeating and with
// what delay. Non-retryable categories fail immediately.
func (t *Tracker) ShouldRetry(err error, attempt, maxAttempts int) RetryDecision {
	cls := Classify(err, "")
	if !cls.Retryable {
		return RetryDecision{Retry: false, Reason: "category " + string(cls.Category) + " is not retryable"}
	}
	if attempt >= maxAttempts {
		return RetryDecision{Retry: false, Reason: "max attempts reached"}
	}
	return RetryDecision{
		Retry:  true,
		Reason: "retryable " + string(cls.Category),
		Delay:  t.backoff(attempt),
	}
}

// backoff is exponential with full jitter: min(base*2^(attempt-1), max) ±25%.
func (t *Tracker) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(t.baseDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(t.maxDelay) {
		d = float64(t.maxDelay)
	}
	jitter := d * config.RetryJitterFrac * (2*rand.Float64() - 1)
	return time.Duration(d + jitter)
}

// Snapshot returns a copy of the current state for one site, or nil if the
// site has never been seen.
func (t *Tracker) Snapshot(site string) *SiteHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	sh, ok := t.sites[site]
	if !ok {
		return nil
	}
	cp := *sh
	return &cp
}

// Reset clears all per-site state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sites = make(map[string]*SiteHealth)
}

func cooldownFor(sev Severity) time.Duration {
	switch sev {
	case SeverityLow:
		return config.CooldownLow
	case SeverityMedium:
		return config.CooldownMedium
	case SeverityHigh:
		return config.CooldownHigh
	case SeverityCritical:
		return config.CooldownCritical
	default:
		return config.CooldownMedium
	}
}
