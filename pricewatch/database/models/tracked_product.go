package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TrackingMode string

const (
	TrackingModeURL    TrackingMode = "url"
	TrackingModeSearch TrackingMode = "search"
)

// TrackedProduct is a subscription to monitor a URL (or a search term) at a
// given cadence. Exactly one of URL / ProductName is set, enforced by a
// CHECK constraint.
type TrackedProduct struct {
	bun.BaseModel `bun:"table:tracked_products,alias:tp"`

	ID                   int64        `bun:"id,pk,autoincrement"`
	URL                  *string      `bun:"url"`
	ProductName          *string      `bun:"product_name"`
	Site                 string       `bun:"site,notnull"`
	TrackingMode         TrackingMode `bun:"tracking_mode,notnull"`
	CheckIntervalMinutes int          `bun:"check_interval_minutes,notnull"`
	Enabled              bool         `bun:"enabled,notnull,default:true"`
	LastCheckedAt        *time.Time   `bun:"last_checked_at"`
}
