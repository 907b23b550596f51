package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/uptrace/bun"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/config"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database/models"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/metrics"
)

// Config controls what the retention worker prunes and how often.
type Config struct {
	Enabled              bool
	PriceHistoryDays     int
	MinRecordsPerProduct int
	StaleProductDays     int
	SearchResultDays     int
	KeepDailySamples     bool
	Interval             time.Duration
	BatchSize            int
}

func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		PriceHistoryDays:     config.DefaultPriceHistoryDays,
		MinRecordsPerProduct: config.DefaultMinRecordsPerProduct,
		StaleProductDays:     config.DefaultStaleProductDays,
		SearchResultDays:     config.DefaultSearchResultDays,
		KeepDailySamples:     true,
		Interval:             config.DefaultRetentionInterval,
		BatchSize:            config.RetentionDeleteBatch,
	}
}

// ConfigFromEnv layers RETENTION_* environment overrides onto the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("RETENTION_ENABLED"); v != "" {
		cfg.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RETENTION_KEEP_DAILY_SAMPLES"); v != "" {
		cfg.KeepDailySamples = v == "true" || v == "1"
	}
	intEnv("RETENTION_PRICE_HISTORY_DAYS", &cfg.PriceHistoryDays)
	intEnv("RETENTION_MIN_RECORDS", &cfg.MinRecordsPerProduct)
	intEnv("RETENTION_STALE_PRODUCT_DAYS", &cfg.StaleProductDays)
	intEnv("RETENTION_SEARCH_DAYS", &cfg.SearchResultDays)
	intEnv("RETENTION_BATCH_SIZE", &cfg.BatchSize)
	if v := os.Getenv("RETENTION_INTERVAL_HOURS"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h > 0 {
			cfg.Interval = time.Duration(h) * time.Hour
		}
	}
	return cfg
}

func intEnv(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

// Report is the outcome of one retention pass. StepErrors keys are step
// names; a failed step never stops the remaining ones.
type Report struct {
	ArchivedSamples  int64
	PrunedPriceRows  int64
	DeletedProducts  int64
	PrunedSearchRows int64
	Duration         time.Duration
	StepErrors       map[string]error
}

// Worker prunes old price history, stale products and expired search
// results on an interval.
type Worker struct {
	db      *bun.DB
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewWorker(db *bun.DB, cfg Config, m *metrics.Metrics) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.RetentionDeleteBatch
	}
	return &Worker{db: db, cfg: cfg, metrics: m, now: time.Now}
}

// Start runs retention passes until the context is cancelled. The first
// pass happens after one full interval, not at startup.
func (w *Worker) Start(ctx context.Context) {
	if !w.cfg.Enabled {
		slog.Info("Retention worker disabled")
		return
	}
	slog.Info("Retention worker started",
		slog.Duration("interval", w.cfg.Interval),
		slog.Int("price_history_days", w.cfg.PriceHistoryDays))

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := w.RunOnce(ctx)
			slog.Info("Retention pass completed",
				slog.String("type", "retain"),
				slog.Int64("archived_samples", report.ArchivedSamples),
				slog.Int64("pruned_price_rows", report.PrunedPriceRows),
				slog.Int64("deleted_products", report.DeletedProducts),
				slog.Int64("pruned_search_rows", report.PrunedSearchRows),
				slog.Int("step_errors", len(report.StepErrors)),
				slog.Duration("took", report.Duration))
		}
	}
}

// RunOnce performs one retention pass. Steps run in a fixed order and are
// isolated: a failing step is recorded and the pass moves on.
func (w *Worker) RunOnce(ctx context.Context) Report {
	start := w.now()
	report := Report{StepErrors: make(map[string]error)}

	step := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			report.StepErrors[name] = err
			slog.Error("Retention step failed",
				slog.String("type", "retain"),
				slog.String("step", name),
				slog.Any("error", err))
		}
	}

	if w.cfg.KeepDailySamples {
		step("ensure_daily_table", w.ensureDailyTable)
		step("archive_daily_samples", func(ctx context.Context) error {
			n, err := w.archiveDailySamples(ctx)
			report.ArchivedSamples = n
			return err
		})
	}
	step("prune_price_history", func(ctx context.Context) error {
		n, err := w.prunePriceHistory(ctx)
		report.PrunedPriceRows = n
		return err
	})
	step("delete_stale_products", func(ctx context.Context) error {
		n, err := w.deleteStaleProducts(ctx)
		report.DeletedProducts = n
		return err
	})
	step("prune_search_results", func(ctx context.Context) error {
		n, err := w.pruneSearchResults(ctx)
		report.PrunedSearchRows = n
		return err
	})

	report.Duration = w.now().Sub(start)

	if w.metrics != nil {
		w.metrics.RetentionRows.WithLabelValues("archive_daily_samples").Add(float64(report.ArchivedSamples))
		w.metrics.RetentionRows.WithLabelValues("prune_price_history").Add(float64(report.PrunedPriceRows))
		w.metrics.RetentionRows.WithLabelValues("delete_stale_products").Add(float64(report.DeletedProducts))
		w.metrics.RetentionRows.WithLabelValues("prune_search_results").Add(float64(report.PrunedSearchRows))
	}
	return report
}

func (w *Worker) ensureDailyTable(ctx context.Context) error {
	_, err := w.db.NewCreateTable().
		Model((*models.DailySample)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create price_history_daily: %w", err)
	}
	return nil
}

// archiveDailySamples keeps one row per (product, UTC day) for history that
// is about to be pruned. The earliest observation of the day wins, ties
// broken by lowest id; re-archiving the same day is a no-op.
func (w *Worker) archiveDailySamples(ctx context.Context) (int64, error) {
	cutoff := w.cutoff(w.cfg.PriceHistoryDays)
	res, err := w.db.ExecContext(ctx, `
		INSERT INTO price_history_daily (product_id, sample_date, price, currency)
		SELECT DISTINCT ON (product_id, (captured_at AT TIME ZONE 'UTC')::date)
			product_id,
			(captured_at AT TIME ZONE 'UTC')::date,
			price,
			currency
		FROM price_history
		WHERE captured_at < ?
		ORDER BY product_id, (captured_at AT TIME ZONE 'UTC')::date, captured_at ASC, id ASC
		ON CONFLICT (product_id, sample_date) DO NOTHING`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive daily samples: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// prunePriceHistory deletes rows older than the cutoff in batches, but
// always leaves each product its newest MinRecordsPerProduct rows no matter
// how old they are.
func (w *Worker) prunePriceHistory(ctx context.Context) (int64, error) {
	cutoff := w.cutoff(w.cfg.PriceHistoryDays)
	var total int64
	for {
		res, err := w.db.ExecContext(ctx, `
			DELETE FROM price_history
			WHERE id IN (
				SELECT ph.id
				FROM price_history ph
				WHERE ph.captured_at < ?
				  AND ph.id NOT IN (
					SELECT keep.id
					FROM price_history keep
					WHERE keep.product_id = ph.product_id
					ORDER BY keep.captured_at DESC, keep.id DESC
					LIMIT ?
				  )
				LIMIT ?
			)`, cutoff, w.cfg.MinRecordsPerProduct, w.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("prune price history: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
		if n < int64(w.cfg.BatchSize) {
			return total, nil
		}
	}
}

// deleteStaleProducts removes products not observed within the stale window.
// Price history follows via the FK cascade.
func (w *Worker) deleteStaleProducts(ctx context.Context) (int64, error) {
	cutoff := w.cutoff(w.cfg.StaleProductDays)
	var total int64
	for {
		res, err := w.db.ExecContext(ctx, `
			DELETE FROM products
			WHERE id IN (
				SELECT id FROM products
				WHERE last_seen_at < ?
				LIMIT ?
			)`, cutoff, w.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("delete stale products: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
		if n < int64(w.cfg.BatchSize) {
			return total, nil
		}
	}
}

// pruneSearchResults skips quietly when the table was never created.
func (w *Worker) pruneSearchResults(ctx context.Context) (int64, error) {
	var exists bool
	if err := w.db.NewRaw(`SELECT to_regclass('search_results') IS NOT NULL`).
		Scan(ctx, &exists); err != nil {
		return 0, fmt.Errorf("check search_results: %w", err)
	}
	if !exists {
		return 0, nil
	}

	cutoff := w.cutoff(w.cfg.SearchResultDays)
	var total int64
	for {
		res, err := w.db.ExecContext(ctx, `
			DELETE FROM search_results
			WHERE id IN (
				SELECT id FROM search_results
				WHERE created_at < ?
				LIMIT ?
			)`, cutoff, w.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("prune search results: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
		if n < int64(w.cfg.BatchSize) {
			return total, nil
		}
	}
}

func (w *Worker) cutoff(days int) time.Time {
	return w.now().UTC().AddDate(0, 0, -days)
}
