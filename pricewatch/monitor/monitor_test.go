package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/alerts"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database/models"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database/repositories"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/health"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/metrics"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/scraper"
)

type scrapeFunc func(ctx context.Context, url string) (*scraper.Record, error)

type stubScraper struct {
	fn scrapeFunc
}

func (s *stubScraper) Name() string { return "stub" }
func (s *stubScraper) Scrape(ctx context.Context, url string) (*scraper.Record, error) {
	return s.fn(ctx, url)
}

type stubSource struct {
	scraper scraper.PriceScraper
}

func (s stubSource) ScraperFor(url string) scraper.PriceScraper { return s.scraper }

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	saves  int
	errs   []error
}

func (f *fakeStore) SaveObservation(ctx context.Context, url, site, title string, price decimal.Decimal, currency string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type fakeSink struct {
	mu     sync.Mutex
	alerts []alerts.Alert
}

func (f *fakeSink) Send(ctx context.Context, a alerts.Alert) alerts.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return alerts.SendResult{Sent: true}
}

func (f *fakeSink) sent() []alerts.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]alerts.Alert(nil), f.alerts...)
}

type fakeHistory struct {
	records []models.PriceRecord
}

func (f *fakeHistory) LatestPrices(ctx context.Context, productID int64, limit int) ([]models.PriceRecord, error) {
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type monitorEnv struct {
	store   *fakeStore
	sink    *fakeSink
	tracker *health.Tracker
	metrics *metrics.Metrics
	clock   *fakeClock
	history *fakeHistory
}

func newTestMonitor(due []models.TrackedProduct, fn scrapeFunc, cfg Config) (*Monitor, *monitorEnv) {
	env := &monitorEnv{
		store:   &fakeStore{},
		sink:    &fakeSink{},
		tracker: health.NewTracker(),
		metrics: metrics.New(),
		clock:   newFakeClock(),
		history: &fakeHistory{},
	}

	limiter := NewRateLimiter(env.clock)
	limiter.SetInterval("default", 0, 0)
	limiter.SetInterval("amazon", 0, 0)
	limiter.SetInterval("burton", 0, 0)

	mon := New(
		env.store,
		&fakeTrackedRepo{due: due},
		NewScheduler(&fakeTrackedRepo{due: due}, SchedulerConfig{SitePerCap: 1}),
		stubSource{scraper: &stubScraper{fn: fn}},
		NewValidator([]string{"amazon.com", "burton.com", "target.com", "walmart.com"}),
		limiter,
		env.tracker,
		NewDetector(env.history, DefaultDetectorConfig()),
		env.sink,
		env.metrics,
		env.clock,
		cfg,
	)
	return mon, env
}

func goodRecord(url, site string, price float64) *scraper.Record {
	return &scraper.Record{
		Site:     site,
		URL:      url,
		Title:    "Widget",
		Price:    decimal.NewFromFloat(price),
		Currency: "USD",
	}
}

func TestMonitor_RunCycle_ScrapesAndAlerts(t *testing.T) {
	due := []models.TrackedProduct{
		trackedURL(1, "amazon", "https://amazon.com/dp/A"),
	}
	mon, env := newTestMonitor(due, func(ctx context.Context, url string) (*scraper.Record, error) {
		return goodRecord(url, "amazon", 80), nil
	}, Config{MaxConcurrent: 1})

	// Previous observation at 100, new one at 80: a 20% drop.
	env.history.records = []models.PriceRecord{
		{ProductID: 1, Price: decimal.NewFromInt(80)},
		{ProductID: 1, Price: decimal.NewFromInt(100)},
	}

	report, err := mon.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Total != 1 || report.Successful != 1 || report.Failed != 0 {
		t.Fatalf("report = %+v, want one success", report)
	}
	if got := env.store.count(); got != 1 {
		t.Errorf("observations saved = %d, want 1", got)
	}

	sent := env.sink.sent()
	if len(sent) != 1 {
		t.Fatalf("alerts sent = %d, want 1", len(sent))
	}
	a := sent[0]
	if a.Direction != "down" || a.Severity != "high" {
		t.Errorf("alert direction/severity = %s/%s, want down/high", a.Direction, a.Severity)
	}
	if a.PercentChange != -20.0 {
		t.Errorf("alert percent = %v, want -20", a.PercentChange)
	}
	if got := testutil.ToFloat64(env.metrics.AlertsTotal.WithLabelValues("sent")); got != 1 {
		t.Errorf("alerts_total{sent} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(env.metrics.CyclesTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("cycles_total{completed} = %v, want 1", got)
	}
}

func TestMonitor_RunCycle_AbortsAfterConsecutiveFailures(t *testing.T) {
	var due []models.TrackedProduct
	for i := int64(1); i <= 6; i++ {
		due = append(due, trackedURL(i, "", fmt.Sprintf("https://site%d.example/p", i)))
	}
	mon, env := newTestMonitor(due, func(ctx context.Context, url string) (*scraper.Record, error) {
		return nil, health.NewScrapeError(health.CategoryNotFound, url, errors.New("status code: 404"))
	}, Config{MaxConcurrent: 1, CycleMaxFailures: 2, MaxAttempts: 1})

	report, err := mon.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if !report.Aborted {
		t.Fatal("report.Aborted = false, want abort after consecutive failures")
	}
	if report.Failed != 3 {
		t.Errorf("report.Failed = %d, want 3 (breaker trips on the one past the limit)", report.Failed)
	}
	if report.Successful != 0 {
		t.Errorf("report.Successful = %d, want 0", report.Successful)
	}
	if got := testutil.ToFloat64(env.metrics.CyclesTotal.WithLabelValues("cycle_aborted")); got != 1 {
		t.Errorf("cycles_total{cycle_aborted} = %v, want 1", got)
	}
}

func TestMonitor_RunCycle_SuccessResetsFailureStreak(t *testing.T) {
	due := []models.TrackedProduct{
		trackedURL(1, "amazon", "https://amazon.com/dp/A"),
		trackedURL(2, "burton", "https://burton.com/p/B"),
		trackedURL(3, "amazon", "https://amazon.com/dp/C"),
		trackedURL(4, "burton", "https://burton.com/p/D"),
	}
	var n atomic.Int32
	mon, _ := newTestMonitor(due, func(ctx context.Context, url string) (*scraper.Record, error) {
		// Alternate failure and success so the streak never reaches the limit.
		if n.Add(1)%2 == 1 {
			return nil, health.NewScrapeError(health.CategoryNotFound, url, errors.New("status code: 404"))
		}
		return goodRecord(url, "any", 50), nil
	}, Config{MaxConcurrent: 1, CycleMaxFailures: 1, MaxAttempts: 1})

	report, err := mon.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Aborted {
		t.Error("report.Aborted = true, want interleaved successes to keep the cycle alive")
	}
	if report.Failed != 2 || report.Successful != 2 {
		t.Errorf("report = %+v, want 2 failed and 2 successful", report)
	}
}

func TestMonitor_RunCycle_SkipsSiteInCooldown(t *testing.T) {
	due := []models.TrackedProduct{
		trackedURL(1, "amazon", "https://amazon.com/dp/A"),
		trackedURL(2, "burton", "https://burton.com/p/X"),
	}

	var scraped sync.Map
	mon, env := newTestMonitor(due, func(ctx context.Context, url string) (*scraper.Record, error) {
		scraped.Store(url, true)
		return goodRecord(url, "burton", 50), nil
	}, Config{MaxConcurrent: 1})

	// A captcha puts the site straight into cooldown.
	env.tracker.RecordError("https://amazon.com/dp/A",
		health.NewScrapeError(health.CategoryCaptcha, "https://amazon.com/dp/A", errors.New("captcha challenge served")), "")

	report, err := mon.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Skipped != 1 || report.Successful != 1 {
		t.Fatalf("report = %+v, want one skip and one success", report)
	}
	if _, ok := scraped.Load("https://amazon.com/dp/A"); ok {
		t.Error("amazon URL was scraped while the site was in cooldown")
	}
	if got := testutil.ToFloat64(env.metrics.SkipsTotal.WithLabelValues("amazon", "cooldown")); got != 1 {
		t.Errorf("skips_total{amazon,cooldown} = %v, want 1", got)
	}
}

func TestMonitor_RunCycle_RetriesRetryableErrors(t *testing.T) {
	due := []models.TrackedProduct{
		trackedURL(1, "amazon", "https://amazon.com/dp/A"),
	}
	var calls atomic.Int32
	mon, env := newTestMonitor(due, func(ctx context.Context, url string) (*scraper.Record, error) {
		if calls.Add(1) < 3 {
			return nil, health.NewScrapeError(health.CategoryNetwork, url, errors.New("connection reset"))
		}
		return goodRecord(url, "amazon", 50), nil
	}, Config{MaxConcurrent: 1, MaxAttempts: 3})

	report, err := mon.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Successful != 1 {
		t.Fatalf("report = %+v, want success on the third attempt", report)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("scrape attempts = %d, want 3", got)
	}
	if got := env.store.count(); got != 1 {
		t.Errorf("observations saved = %d, want 1", got)
	}
}

func TestMonitor_RunCycle_NonRetryableFailsImmediately(t *testing.T) {
	due := []models.TrackedProduct{
		trackedURL(1, "amazon", "https://amazon.com/dp/A"),
	}
	var calls atomic.Int32
	mon, _ := newTestMonitor(due, func(ctx context.Context, url string) (*scraper.Record, error) {
		calls.Add(1)
		return nil, health.NewScrapeError(health.CategoryNotFound, url, errors.New("status code: 404"))
	}, Config{MaxConcurrent: 1, MaxAttempts: 3})

	report, err := mon.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("report = %+v, want one failure", report)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("scrape attempts = %d, want 1 for a non-retryable category", got)
	}
}

func TestMonitor_SaveRetry(t *testing.T) {
	due := []models.TrackedProduct{
		trackedURL(1, "amazon", "https://amazon.com/dp/A"),
	}

	t.Run("transient storage failure is retried", func(t *testing.T) {
		mon, env := newTestMonitor(due, func(ctx context.Context, url string) (*scraper.Record, error) {
			return goodRecord(url, "amazon", 50), nil
		}, Config{MaxConcurrent: 1})
		env.store.errs = []error{&repositories.StorageError{Op: "save_observation", Err: io.EOF}}

		report, err := mon.RunCycle(context.Background())
		if err != nil {
			t.Fatalf("RunCycle() error = %v", err)
		}
		if report.Successful != 1 {
			t.Fatalf("report = %+v, want success after one storage retry", report)
		}
		if got := env.store.count(); got != 2 {
			t.Errorf("save attempts = %d, want 2", got)
		}
	})

	t.Run("permanent storage failure is not retried", func(t *testing.T) {
		mon, env := newTestMonitor(due, func(ctx context.Context, url string) (*scraper.Record, error) {
			return goodRecord(url, "amazon", 50), nil
		}, Config{MaxConcurrent: 1, MaxAttempts: 1})
		env.store.errs = []error{
			&repositories.StorageError{Op: "save_observation", Err: errors.New("constraint violated")},
			nil, nil,
		}

		report, err := mon.RunCycle(context.Background())
		if err != nil {
			t.Fatalf("RunCycle() error = %v", err)
		}
		if report.Failed != 1 {
			t.Fatalf("report = %+v, want one failure", report)
		}
		if got := env.store.count(); got != 1 {
			t.Errorf("save attempts = %d, want 1", got)
		}
	})
}

func TestMonitor_SitePerCapBoundsInFlightScrapes(t *testing.T) {
	due := []models.TrackedProduct{
		trackedURL(1, "amazon", "https://amazon.com/dp/A"),
		trackedURL(2, "amazon", "https://amazon.com/dp/B"),
		trackedURL(3, "amazon", "https://amazon.com/dp/C"),
		trackedURL(4, "amazon", "https://amazon.com/dp/D"),
	}

	var inFlight, peak atomic.Int32
	mon, _ := newTestMonitor(due, func(ctx context.Context, url string) (*scraper.Record, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return goodRecord(url, "amazon", 50), nil
	}, Config{MaxConcurrent: 4, SitePerCap: 1})

	report, err := mon.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.Successful != 4 {
		t.Fatalf("report = %+v, want all four to succeed", report)
	}
	if got := peak.Load(); got != 1 {
		t.Errorf("peak in-flight scrapes for one site = %d, want 1", got)
	}
}

func TestMonitor_StopLetsInFlightCycleFinish(t *testing.T) {
	due := []models.TrackedProduct{
		trackedURL(1, "amazon", "https://amazon.com/dp/A"),
	}
	started := make(chan struct{})
	var once sync.Once
	mon, env := newTestMonitor(due, func(ctx context.Context, url string) (*scraper.Record, error) {
		once.Do(func() { close(started) })
		time.Sleep(30 * time.Millisecond)
		return goodRecord(url, "amazon", 50), nil
	}, Config{MaxConcurrent: 1})

	done := make(chan CycleReport, 1)
	go func() {
		report, _ := mon.RunCycle(context.Background())
		done <- report
	}()

	<-started
	mon.Stop()

	report := <-done
	if report.Successful != 1 || report.Aborted {
		t.Fatalf("report = %+v, want the in-flight cycle to finish cleanly after Stop", report)
	}
	if mon.State() != StateIdle {
		t.Errorf("State() = %s, want idle after the cycle drains", mon.State())
	}

	// Stop blocks new cycles from starting.
	mon.runGuarded(context.Background())
	if got := env.store.count(); got != 1 {
		t.Errorf("observations saved = %d, want no new cycle after Stop", got)
	}
}
