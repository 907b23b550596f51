package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters and histograms the monitoring core updates.
type Metrics struct {
	registry *prometheus.Registry

	ScrapesTotal      *prometheus.CounterVec
	ScrapeDuration    *prometheus.HistogramVec
	ScrapeErrorsTotal *prometheus.CounterVec
	SkipsTotal        *prometheus.CounterVec
	PriceChangesTotal *prometheus.CounterVec
	AlertsTotal       *prometheus.CounterVec
	CyclesTotal       *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	RetentionRows     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ScrapesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_scrapes_total",
			Help: "Scrape attempts by site and result.",
		}, []string{"site", "result"}),
		ScrapeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricewatch_scrape_duration_seconds",
			Help:    "Scrape latency by site.",
			Buckets: prometheus.DefBuckets,
		}, []string{"site"}),
		ScrapeErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_scrape_errors_total",
			Help: "Scrape failures by site and error category.",
		}, []string{"site", "category"}),
		SkipsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_skips_total",
			Help: "Items skipped before scraping, by site and reason.",
		}, []string{"site", "reason"}),
		PriceChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_price_changes_total",
			Help: "Significant price changes by direction and severity.",
		}, []string{"direction", "severity"}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_alerts_total",
			Help: "Alert pipeline outcomes.",
		}, []string{"result"}),
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_cycles_total",
			Help: "Monitoring cycles by result.",
		}, []string{"result"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricewatch_cycle_duration_seconds",
			Help:    "Duration of one monitoring cycle.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		RetentionRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_retention_rows_total",
			Help: "Rows archived or deleted by the retention worker, per step.",
		}, []string{"step"}),
	}
}

// RecordScrape updates scrape counters and latency for one attempt.
func (m *Metrics) RecordScrape(site string, ok bool, d time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.ScrapesTotal.WithLabelValues(site, result).Inc()
	m.ScrapeDuration.WithLabelValues(site).Observe(d.Seconds())
}

// Handler exposes the registry for an optional promhttp listener.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
