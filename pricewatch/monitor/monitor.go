package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/alerts"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/config"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database/models"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database/repositories"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/health"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/logger"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/metrics"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/scraper"
)

// ObservationStore is the write surface the monitor needs from the price
// store.
type ObservationStore interface {
	SaveObservation(ctx context.Context, url, site, title string, price decimal.Decimal, currency string) (int64, error)
}

// ScraperSource yields the scraper responsible for a URL.
type ScraperSource interface {
	ScraperFor(url string) scraper.PriceScraper
}

// AlertSink receives alerts that cleared significance and severity checks.
type AlertSink interface {
	Send(ctx context.Context, a alerts.Alert) alerts.SendResult
}

type CycleState string

const (
	StateIdle        CycleState = "idle"
	StateSelecting   CycleState = "selecting"
	StateDispatching CycleState = "dispatching"
	StateDraining    CycleState = "draining"
	StateReporting   CycleState = "reporting"
)

// SiteCounts is the per-site slice of a cycle summary.
type SiteCounts struct {
	Successful int
	Failed     int
	Skipped    int
}

// CycleReport summarizes one monitoring cycle.
type CycleReport struct {
	Total         int
	Successful    int
	Failed        int
	Skipped       int
	Aborted       bool
	Duration      time.Duration
	SiteBreakdown map[string]SiteCounts
}

type Config struct {
	CheckInterval    time.Duration
	MaxConcurrent    int
	SitePerCap       int
	ScrapeTimeout    time.Duration
	CycleTimeout     time.Duration
	CycleMaxFailures int
	MaxAttempts      int
	DBRetryMax       int
}

func (c *Config) applyDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = config.DefaultCheckInterval
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = config.DefaultMaxConcurrent
	}
	if c.SitePerCap <= 0 {
		c.SitePerCap = config.DefaultSitePerCap
	}
	if c.ScrapeTimeout <= 0 {
		c.ScrapeTimeout = config.DefaultScrapeTimeout
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 10 * c.ScrapeTimeout * time.Duration(c.MaxConcurrent)
	}
	if c.CycleMaxFailures <= 0 {
		c.CycleMaxFailures = config.CycleMaxFailures
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = config.ScrapeMaxAttempts
	}
	if c.DBRetryMax <= 0 {
		c.DBRetryMax = config.DBMaxRetries
	}
}

// Monitor drives monitoring cycles end to end: select due products, scrape
// them through a bounded worker pool, persist observations, detect changes,
// and hand significant ones to the alert pipeline.
type Monitor struct {
	products  ObservationStore
	tracked   repositories.TrackedProductRepository
	scheduler *Scheduler
	registry  ScraperSource
	validator *Validator
	limiter   *RateLimiter
	tracker   *health.Tracker
	detector  *Detector
	pipeline  AlertSink
	metrics   *metrics.Metrics
	clock     Clock
	cfg       Config

	semMu    sync.Mutex
	siteSems map[string]*semaphore.Weighted

	stateMu  sync.Mutex
	state    CycleState
	stopping atomic.Bool
}

func New(
	products ObservationStore,
	tracked repositories.TrackedProductRepository,
	scheduler *Scheduler,
	registry ScraperSource,
	validator *Validator,
	limiter *RateLimiter,
	tracker *health.Tracker,
	detector *Detector,
	pipeline AlertSink,
	m *metrics.Metrics,
	clock Clock,
	cfg Config,
) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		products:  products,
		tracked:   tracked,
		scheduler: scheduler,
		registry:  registry,
		validator: validator,
		limiter:   limiter,
		tracker:   tracker,
		detector:  detector,
		pipeline:  pipeline,
		metrics:   m,
		clock:     clock,
		cfg:       cfg,
		siteSems:  make(map[string]*semaphore.Weighted),
		state:     StateIdle,
	}
}

// State returns the current cycle state.
func (m *Monitor) State() CycleState {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

func (m *Monitor) setState(s CycleState) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
}

// Stop makes the monitor finish the current cycle and accept no new ones.
func (m *Monitor) Stop() {
	m.stopping.Store(true)
}

// Start runs cycles on a ticker until the context is cancelled or Stop is
// called. It blocks; callers usually run it in a goroutine.
func (m *Monitor) Start(ctx context.Context) {
	slog.Info("Price monitor started",
		slog.Duration("check_interval", m.cfg.CheckInterval),
		slog.Int("max_concurrent", m.cfg.MaxConcurrent))

	// First pass immediately, then on the ticker.
	m.runGuarded(ctx)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.stopping.Load() {
				return
			}
			m.runGuarded(ctx)
		}
	}
}

func (m *Monitor) runGuarded(ctx context.Context) {
	if m.stopping.Load() {
		return
	}
	if _, err := m.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Monitoring cycle failed", slog.Any("error", err))
	}
}

type itemOutcome struct {
	site    string
	success bool
	skipped bool
}

// RunCycle performs one full monitoring cycle and returns its summary.
func (m *Monitor) RunCycle(ctx context.Context) (CycleReport, error) {
	start := m.clock.Now()

	m.setState(StateSelecting)
	defer m.setState(StateIdle)

	due, err := m.scheduler.SelectDue(ctx, start)
	if err != nil {
		m.metrics.CyclesTotal.WithLabelValues("error").Inc()
		return CycleReport{}, err
	}

	report := CycleReport{
		Total:         len(due),
		SiteBreakdown: make(map[string]SiteCounts),
	}
	if len(due) == 0 {
		m.metrics.CyclesTotal.WithLabelValues("empty").Inc()
		return report, nil
	}

	cycleCtx, cancel := context.WithTimeout(ctx, m.cfg.CycleTimeout)
	defer cancel()

	m.setState(StateDispatching)

	var consecutiveFailures atomic.Int32
	var aborted atomic.Bool
	outcomes := make(chan itemOutcome, len(due))

	sem := semaphore.NewWeighted(int64(m.cfg.MaxConcurrent))
	g, gctx := errgroup.WithContext(cycleCtx)

	for _, tp := range due {
		tp := tp
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if gctx.Err() != nil {
				return nil
			}

			out := m.processItem(gctx, tp)
			outcomes <- out

			switch {
			case out.skipped:
			case out.success:
				consecutiveFailures.Store(0)
			default:
				if int(consecutiveFailures.Add(1)) > m.cfg.CycleMaxFailures {
					if aborted.CompareAndSwap(false, true) {
						slog.Warn("Cycle aborted: too many consecutive failures",
							slog.Int("max_failures", m.cfg.CycleMaxFailures))
						cancel()
					}
				}
			}
			return nil
		})
	}

	m.setState(StateDraining)
	_ = g.Wait()
	close(outcomes)

	m.setState(StateReporting)
	for out := range outcomes {
		counts := report.SiteBreakdown[out.site]
		switch {
		case out.skipped:
			report.Skipped++
			counts.Skipped++
		case out.success:
			report.Successful++
			counts.Successful++
		default:
			report.Failed++
			counts.Failed++
		}
		report.SiteBreakdown[out.site] = counts
	}

	report.Aborted = aborted.Load()
	report.Duration = m.clock.Now().Sub(start)

	m.metrics.CycleDuration.Observe(report.Duration.Seconds())
	if report.Aborted {
		m.metrics.CyclesTotal.WithLabelValues("cycle_aborted").Inc()
	} else {
		m.metrics.CyclesTotal.WithLabelValues("completed").Inc()
	}

	slog.Info("Monitoring cycle completed",
		slog.Int("total", report.Total),
		slog.Int("successful", report.Successful),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Bool("aborted", report.Aborted),
		slog.Duration("took", report.Duration))

	return report, nil
}

// processItem runs the per-item worker algorithm: cooldown gate, rate limit,
// scrape with retry, validate, persist, detect, alert.
func (m *Monitor) processItem(ctx context.Context, tp models.TrackedProduct) itemOutcome {
	url := *tp.URL
	site := siteOf(tp)

	if status := m.tracker.InCooldown(health.SiteFromURL(url)); status.InCooldown {
		slog.Debug("Skipping item: site in cooldown",
			slog.String("type", "scrape"),
			slog.String("site", site),
			slog.String("reason", status.Reason),
			slog.Time("until", status.Until))
		m.metrics.SkipsTotal.WithLabelValues(site, "cooldown").Inc()
		return itemOutcome{site: site, skipped: true}
	}

	// The rate limiter only spaces request start times; the per-site lane
	// caps how many scrapes of one retailer are in flight at once.
	lane := m.siteSem(health.SiteFromURL(url))
	if err := lane.Acquire(ctx, 1); err != nil {
		return itemOutcome{site: site, skipped: true}
	}
	defer lane.Release(1)

	if err := m.limiter.Acquire(ctx, health.SiteFromURL(url)); err != nil {
		return itemOutcome{site: site, skipped: true}
	}

	defer func() {
		if err := m.tracked.Touch(context.WithoutCancel(ctx), tp.ID, m.clock.Now().UTC()); err != nil {
			slog.Error("Failed to update last_checked_at",
				slog.Int64("tracked_id", tp.ID), slog.Any("error", err))
		}
	}()

	for attempt := 1; ; attempt++ {
		ok, err := m.scrapeOnce(ctx, url, site)
		if ok {
			return itemOutcome{site: site, success: true}
		}

		decision := m.tracker.ShouldRetry(err, attempt, m.cfg.MaxAttempts)
		if !decision.Retry {
			return itemOutcome{site: site}
		}
		if sleepErr := m.clock.Sleep(ctx, decision.Delay); sleepErr != nil {
			return itemOutcome{site: site}
		}
	}
}

func (m *Monitor) siteSem(site string) *semaphore.Weighted {
	m.semMu.Lock()
	defer m.semMu.Unlock()
	sem, ok := m.siteSems[site]
	if !ok {
		sem = semaphore.NewWeighted(int64(m.cfg.SitePerCap))
		m.siteSems[site] = sem
	}
	return sem
}

func (m *Monitor) scrapeOnce(ctx context.Context, url, site string) (bool, error) {
	scrapeCtx, cancel := context.WithTimeout(ctx, m.cfg.ScrapeTimeout)
	defer cancel()

	start := m.clock.Now()
	sc := m.registry.ScraperFor(url)
	rec, err := sc.Scrape(scrapeCtx, url)
	duration := m.clock.Now().Sub(start)

	if err == nil && rec == nil {
		err = health.NewScrapeError(health.CategoryParseError, url, errors.New("scraper extracted no record"))
	}
	if err == nil {
		if verr := m.validator.ValidateRecord(rec); verr != nil {
			err = health.NewScrapeError(health.CategoryParseError, url, verr)
		}
	}

	if err != nil {
		cls := m.tracker.RecordError(url, err, "")
		m.metrics.RecordScrape(site, false, duration)
		m.metrics.ScrapeErrorsTotal.WithLabelValues(site, string(cls.Category)).Inc()
		logger.LogScrape(site, url, duration, err)
		return false, err
	}

	productID, err := m.saveWithRetry(ctx, rec)
	if err != nil {
		m.metrics.RecordScrape(site, false, duration)
		slog.Error("Observation dropped after storage retries",
			slog.String("url", url), slog.Any("error", err))
		return false, err
	}

	m.tracker.RecordSuccess(url)
	m.metrics.RecordScrape(site, true, duration)
	logger.LogScrape(site, url, duration, nil)

	m.detectAndAlert(ctx, productID, rec)
	return true, nil
}

// saveWithRetry persists one observation, retrying only transient storage
// failures.
func (m *Monitor) saveWithRetry(ctx context.Context, rec *scraper.Record) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.DBRetryMax; attempt++ {
		productID, err := m.products.SaveObservation(ctx, rec.URL, rec.Site, rec.Title, rec.Price, rec.Currency)
		if err == nil {
			return productID, nil
		}
		lastErr = err

		var serr *repositories.StorageError
		if !errors.As(err, &serr) || !serr.Retryable() {
			return 0, err
		}
		if sleepErr := m.clock.Sleep(ctx, time.Duration(attempt)*config.RetryBaseDelay); sleepErr != nil {
			return 0, lastErr
		}
	}
	return 0, lastErr
}

func (m *Monitor) detectAndAlert(ctx context.Context, productID int64, rec *scraper.Record) {
	result, err := m.detector.Detect(ctx, productID)
	if err != nil {
		slog.Error("Price change detection failed",
			slog.Int64("product_id", productID), slog.Any("error", err))
		return
	}
	if !result.Detected {
		return
	}

	ch := result.Change
	m.metrics.PriceChangesTotal.WithLabelValues(string(ch.Direction), string(result.Alert.Severity)).Inc()

	if !result.Alert.ShouldAlert {
		return
	}

	sendRes := m.pipeline.Send(ctx, alerts.Alert{
		ProductID:     productID,
		ProductTitle:  rec.Title,
		ProductURL:    rec.URL,
		Site:          rec.Site,
		OldPrice:      ch.OldPrice,
		NewPrice:      ch.NewPrice,
		Currency:      rec.Currency,
		PercentChange: ch.Percent,
		Direction:     string(ch.Direction),
		Severity:      string(result.Alert.Severity),
		Reason:        result.Alert.Reason,
	})

	switch {
	case sendRes.Sent:
		m.metrics.AlertsTotal.WithLabelValues("sent").Inc()
	default:
		m.metrics.AlertsTotal.WithLabelValues(sendRes.Reason).Inc()
	}
}
