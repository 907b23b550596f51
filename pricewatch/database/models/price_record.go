package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// PriceRecord is a single append-only price observation. Rows are never
// updated; only the retention worker may delete them.
type PriceRecord struct {
	bun.BaseModel `bun:"table:price_history,alias:ph"`

	ID         int64           `bun:"id,pk,autoincrement"`
	ProductID  int64           `bun:"product_id,notnull"`
	Price      decimal.Decimal `bun:"price,notnull,type:numeric(12,2)"`
	Currency   string          `bun:"currency,notnull,type:char(3)"`
	CapturedAt time.Time       `bun:"captured_at,notnull,default:current_timestamp"`
}

// DailySample is the per-(product, UTC day) archival row kept by retention
// when fine-grained history is aged out.
type DailySample struct {
	bun.BaseModel `bun:"table:price_history_daily,alias:phd"`

	ProductID  int64           `bun:"product_id,pk"`
	SampleDate time.Time       `bun:"sample_date,pk,type:date"`
	Price      decimal.Decimal `bun:"price,notnull,type:numeric(12,2)"`
	Currency   string          `bun:"currency,notnull,type:char(3)"`
}
