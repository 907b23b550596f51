package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// SearchResult is a cached hit for a search-mode tracked product. The search
// pipeline itself lives elsewhere; the retention worker prunes this table.
type SearchResult struct {
	bun.BaseModel `bun:"table:search_results,alias:sr"`

	ID        int64           `bun:"id,pk,autoincrement"`
	Query     string          `bun:"query,notnull"`
	URL       string          `bun:"url,notnull"`
	Title     string          `bun:"title"`
	Price     decimal.Decimal `bun:"price,type:numeric(12,2)"`
	Currency  string          `bun:"currency,type:char(3)"`
	CreatedAt time.Time       `bun:"created_at,notnull,default:current_timestamp"`
}
