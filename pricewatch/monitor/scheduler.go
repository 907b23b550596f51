package monitor

import (
	"context"
	"time"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database/models"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database/repositories"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/health"
)

type SchedulerConfig struct {
	SitePerCap int
}

// Scheduler selects the due set for one cycle: enabled URL-mode tracked
// products whose interval has elapsed, oldest first, deduplicated by URL and
// interleaved so one site cannot monopolize a dispatch window.
type Scheduler struct {
	tracked repositories.TrackedProductRepository
	cfg     SchedulerConfig
}

func NewScheduler(tracked repositories.TrackedProductRepository, cfg SchedulerConfig) *Scheduler {
	if cfg.SitePerCap <= 0 {
		cfg.SitePerCap = 1
	}
	return &Scheduler{tracked: tracked, cfg: cfg}
}

func (s *Scheduler) SelectDue(ctx context.Context, now time.Time) ([]models.TrackedProduct, error) {
	due, err := s.tracked.GetDue(ctx, now)
	if err != nil {
		return nil, err
	}
	return interleaveBySite(dedupeByURL(due), s.cfg.SitePerCap), nil
}

// dedupeByURL keeps the first (stalest) entry per URL so a product is
// visited by at most one worker per cycle.
func dedupeByURL(items []models.TrackedProduct) []models.TrackedProduct {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, tp := range items {
		if tp.URL == nil {
			continue
		}
		if seen[*tp.URL] {
			continue
		}
		seen[*tp.URL] = true
		out = append(out, tp)
	}
	return out
}

// interleaveBySite round-robins across per-site queues, taking at most perSite
// items from one site per round, preserving staleness order within a site.
func interleaveBySite(items []models.TrackedProduct, perSite int) []models.TrackedProduct {
	if len(items) <= 1 {
		return items
	}

	var order []string
	queues := make(map[string][]models.TrackedProduct)
	for _, tp := range items {
		site := siteOf(tp)
		if _, ok := queues[site]; !ok {
			order = append(order, site)
		}
		queues[site] = append(queues[site], tp)
	}

	out := make([]models.TrackedProduct, 0, len(items))
	for len(out) < len(items) {
		for _, site := range order {
			q := queues[site]
			n := perSite
			if n > len(q) {
				n = len(q)
			}
			out = append(out, q[:n]...)
			queues[site] = q[n:]
		}
	}
	return out
}

func siteOf(tp models.TrackedProduct) string {
	if tp.Site != "" {
		return tp.Site
	}
	if tp.URL != nil {
		return health.SiteFromURL(*tp.URL)
	}
	return "default"
}
