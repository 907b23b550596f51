package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/config"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database/models"
)

// ProductWithPrice pairs a product with its most recent observation.
type ProductWithPrice struct {
	models.Product
	LatestPrice    decimal.Decimal `bun:"latest_price"`
	LatestCurrency string          `bun:"latest_currency"`
	LatestAt       time.Time       `bun:"latest_at"`
}

// PriceSummary aggregates a product's history over a window.
type PriceSummary struct {
	Min          decimal.Decimal `bun:"min_price"`
	Max          decimal.Decimal `bun:"max_price"`
	Avg          decimal.Decimal `bun:"avg_price"`
	CurrentPrice decimal.Decimal
	DataPoints   int `bun:"data_points"`
}

type ProductRepository interface {
	// SaveObservation upserts the product row and appends one price record
	// inside a single transaction, returning the product id.
	SaveObservation(ctx context.Context, url, site, title string, price decimal.Decimal, currency string) (int64, error)

	GetByID(ctx context.Context, id int64) (*models.Product, error)
	GetByURL(ctx context.Context, url string) (*models.Product, error)
	LatestPrice(ctx context.Context, productID int64) (*models.PriceRecord, error)
	PreviousPrice(ctx context.Context, productID int64) (*models.PriceRecord, error)
	LatestPrices(ctx context.Context, productID int64, limit int) ([]models.PriceRecord, error)
	History(ctx context.Context, productID int64, limit int) ([]models.PriceRecord, error)
	AllProductsWithLatestPrice(ctx context.Context) ([]ProductWithPrice, error)
	PriceSummary(ctx context.Context, productID int64, windowDays int) (*PriceSummary, error)
}

type cachedPrice struct {
	record    models.PriceRecord
	timestamp time.Time
}

type productRepository struct {
	db          *bun.DB
	cache       *lru.Cache
	cacheExpiry time.Duration
	now         func() time.Time
}

func NewProductRepository(db *bun.DB) ProductRepository {
	cache, _ := lru.New(config.PriceCacheSize)
	return &productRepository{
		db:          db,
		cache:       cache,
		cacheExpiry: config.PriceCacheExpiration,
		now:         time.Now,
	}
}

func (r *productRepository) SaveObservation(ctx context.Context, url, site, title string, price decimal.Decimal, currency string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultQueryTimeout)
	defer cancel()

	now := r.now().UTC()
	product := &models.Product{
		URL:         url,
		Site:        site,
		Title:       title,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}

	var record *models.PriceRecord
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(product).
			On("CONFLICT (url) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("last_seen_at = EXCLUDED.last_seen_at").
			Returning("id").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert product: %w", err)
		}

		record = &models.PriceRecord{
			ProductID:  product.ID,
			Price:      price,
			Currency:   currency,
			CapturedAt: now,
		}
		if _, err := tx.NewInsert().Model(record).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("append price record: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, storageErr("save_observation", err)
	}

	r.cache.Add(cacheKey(product.ID), cachedPrice{record: *record, timestamp: now})
	return product.ID, nil
}

func (r *productRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultQueryTimeout)
	defer cancel()

	product := new(models.Product)
	err := r.db.NewSelect().
		Model(product).
		Where("p.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, storageErr("get_product", err)
	}
	return product, nil
}

func (r *productRepository) GetByURL(ctx context.Context, url string) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultQueryTimeout)
	defer cancel()

	product := new(models.Product)
	err := r.db.NewSelect().
		Model(product).
		Where("p.url = ?", url).
		Scan(ctx)
	if err != nil {
		return nil, storageErr("get_product_by_url", err)
	}
	return product, nil
}

func (r *productRepository) LatestPrice(ctx context.Context, productID int64) (*models.PriceRecord, error) {
	if cached, ok := r.cache.Get(cacheKey(productID)); ok {
		if c, ok := cached.(cachedPrice); ok && r.now().Sub(c.timestamp) < r.cacheExpiry {
			record := c.record
			return &record, nil
		}
	}

	records, err := r.LatestPrices(ctx, productID, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	r.cache.Add(cacheKey(productID), cachedPrice{record: records[0], timestamp: r.now()})
	return &records[0], nil
}

func (r *productRepository) PreviousPrice(ctx context.Context, productID int64) (*models.PriceRecord, error) {
	records, err := r.LatestPrices(ctx, productID, 2)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}
	return &records[1], nil
}

func (r *productRepository) LatestPrices(ctx context.Context, productID int64, limit int) ([]models.PriceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultQueryTimeout)
	defer cancel()

	var records []models.PriceRecord
	err := r.db.NewSelect().
		Model(&records).
		Where("ph.product_id = ?", productID).
		Order("ph.captured_at DESC", "ph.id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storageErr("latest_prices", err)
	}
	return records, nil
}

func (r *productRepository) History(ctx context.Context, productID int64, limit int) ([]models.PriceRecord, error) {
	if limit <= 0 {
		limit = config.DefaultHistoryLimit
	}
	if limit > config.MaxHistoryLimit {
		limit = config.MaxHistoryLimit
	}
	return r.LatestPrices(ctx, productID, limit)
}

func (r *productRepository) AllProductsWithLatestPrice(ctx context.Context) ([]ProductWithPrice, error) {
	ctx, cancel := context.WithTimeout(ctx, config.BatchQueryTimeout)
	defer cancel()

	var rows []ProductWithPrice
	err := r.db.NewSelect().
		Model((*models.Product)(nil)).
		ColumnExpr("p.*").
		ColumnExpr("ph.price AS latest_price").
		ColumnExpr("ph.currency AS latest_currency").
		ColumnExpr("ph.captured_at AS latest_at").
		Join(`LEFT JOIN LATERAL (
			SELECT price, currency, captured_at
			FROM price_history
			WHERE product_id = p.id
			ORDER BY captured_at DESC, id DESC
			LIMIT 1
		) ph ON TRUE`).
		Order("p.id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, storageErr("all_products_with_latest_price", err)
	}
	return rows, nil
}

func (r *productRepository) PriceSummary(ctx context.Context, productID int64, windowDays int) (*PriceSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, config.StatsQueryTimeout)
	defer cancel()

	summary := new(PriceSummary)
	err := r.db.NewSelect().
		Model((*models.PriceRecord)(nil)).
		ColumnExpr("COALESCE(MIN(ph.price), 0) AS min_price").
		ColumnExpr("COALESCE(MAX(ph.price), 0) AS max_price").
		ColumnExpr("COALESCE(ROUND(AVG(ph.price), 2), 0) AS avg_price").
		ColumnExpr("COUNT(*) AS data_points").
		Where("ph.product_id = ?", productID).
		Where("ph.captured_at > ?", r.now().UTC().AddDate(0, 0, -windowDays)).
		Scan(ctx, summary)
	if err != nil {
		return nil, storageErr("price_summary", err)
	}

	latest, err := r.LatestPrice(ctx, productID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		summary.CurrentPrice = latest.Price
	}
	return summary, nil
}

func cacheKey(productID int64) string {
	return fmt.Sprintf("price:%d", productID)
}
