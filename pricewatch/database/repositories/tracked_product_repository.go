package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/config"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database/models"
)

type TrackedProductRepository interface {
	Create(ctx context.Context, tp *models.TrackedProduct) error
	GetByID(ctx context.Context, id int64) (*models.TrackedProduct, error)
	GetAll(ctx context.Context) ([]models.TrackedProduct, error)

	// GetDue returns enabled URL-mode tracked products whose interval has
	// elapsed, oldest-checked first with never-checked ahead of all.
	GetDue(ctx context.Context, now time.Time) ([]models.TrackedProduct, error)

	SetEnabled(ctx context.Context, id int64, enabled bool) error
	Touch(ctx context.Context, id int64, checkedAt time.Time) error
	Delete(ctx context.Context, id int64) error
}

type trackedProductRepository struct {
	db *bun.DB
}

func NewTrackedProductRepository(db *bun.DB) TrackedProductRepository {
	return &trackedProductRepository{db: db}
}

func (r *trackedProductRepository) Create(ctx context.Context, tp *models.TrackedProduct) error {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultQueryTimeout)
	defer cancel()

	if err := validateTracked(tp); err != nil {
		return err
	}

	_, err := r.db.NewInsert().
		Model(tp).
		Returning("id").
		Exec(ctx)
	return storageErr("create_tracked_product", err)
}

func validateTracked(tp *models.TrackedProduct) error {
	hasURL := tp.URL != nil && *tp.URL != ""
	hasName := tp.ProductName != nil && *tp.ProductName != ""
	if hasURL == hasName {
		return fmt.Errorf("exactly one of url or product_name must be set")
	}
	if tp.CheckIntervalMinutes < config.MinCheckIntervalMinutes || tp.CheckIntervalMinutes > config.MaxCheckIntervalMinutes {
		return fmt.Errorf("check_interval_minutes %d out of range [%d, %d]",
			tp.CheckIntervalMinutes, config.MinCheckIntervalMinutes, config.MaxCheckIntervalMinutes)
	}
	return nil
}

func (r *trackedProductRepository) GetByID(ctx context.Context, id int64) (*models.TrackedProduct, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultQueryTimeout)
	defer cancel()

	tp := new(models.TrackedProduct)
	err := r.db.NewSelect().
		Model(tp).
		Where("tp.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, storageErr("get_tracked_product", err)
	}
	return tp, nil
}

func (r *trackedProductRepository) GetAll(ctx context.Context) ([]models.TrackedProduct, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultQueryTimeout)
	defer cancel()

	var tps []models.TrackedProduct
	err := r.db.NewSelect().
		Model(&tps).
		Order("tp.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, storageErr("get_all_tracked_products", err)
	}
	return tps, nil
}

func (r *trackedProductRepository) GetDue(ctx context.Context, now time.Time) ([]models.TrackedProduct, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultQueryTimeout)
	defer cancel()

	var tps []models.TrackedProduct
	err := r.db.NewSelect().
		Model(&tps).
		Where("tp.enabled = TRUE").
		Where("tp.tracking_mode = ?", models.TrackingModeURL).
		Where("tp.last_checked_at IS NULL OR tp.last_checked_at <= ? - (tp.check_interval_minutes * INTERVAL '1 minute')", now).
		OrderExpr("tp.last_checked_at ASC NULLS FIRST").
		Scan(ctx)
	if err != nil {
		return nil, storageErr("get_due_tracked_products", err)
	}
	return tps, nil
}

func (r *trackedProductRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.NewUpdate().
		Model((*models.TrackedProduct)(nil)).
		Set("enabled = ?", enabled).
		Where("id = ?", id).
		Exec(ctx)
	return storageErr("set_tracked_product_enabled", err)
}

func (r *trackedProductRepository) Touch(ctx context.Context, id int64, checkedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.NewUpdate().
		Model((*models.TrackedProduct)(nil)).
		Set("last_checked_at = ?", checkedAt).
		Where("id = ?", id).
		Exec(ctx)
	return storageErr("touch_tracked_product", err)
}

func (r *trackedProductRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.NewDelete().
		Model((*models.TrackedProduct)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return storageErr("delete_tracked_product", err)
}
