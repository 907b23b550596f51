package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/health"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Record is the normalized result of one scrape.
type Record struct {
	Site      string
	URL       string
	Title     string
	Price     decimal.Decimal
	Currency  string
	Timestamp time.Time
}

// PriceScraper extracts a normalized record from a product page. A nil
// record with a nil error means the scraper confidently found no price.
// Transport failures come back as categorized *health.ScrapeError values.
type PriceScraper interface {
	Name() string
	Scrape(ctx context.Context, url string) (*Record, error)
}

type registryEntry struct {
	hostSubstring string
	scraper       PriceScraper
}

// Registry dispatches URLs to scrapers by host substring match in priority
// order; unmatched URLs fall through to the universal scraper.
type Registry struct {
	entries  []registryEntry
	fallback PriceScraper
}

func NewRegistry(userAgent string, headless bool) *Registry {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := &http.Client{Timeout: 30 * time.Second}
	fetcher := &fetcher{client: client, userAgent: userAgent}

	var render renderFunc
	if headless {
		render = headlessRender
	}

	return &Registry{
		entries: []registryEntry{
			{hostSubstring: "amazon.com", scraper: NewAmazonScraper(fetcher)},
			{hostSubstring: "burton.com", scraper: NewBurtonScraper(fetcher)},
		},
		fallback: NewUniversalScraper(fetcher, render),
	}
}

// ScraperFor returns the scraper responsible for url.
func (r *Registry) ScraperFor(url string) PriceScraper {
	for _, e := range r.entries {
		if strings.Contains(url, e.hostSubstring) {
			return e.scraper
		}
	}
	return r.fallback
}

// fetcher performs the HTTP GET shared by all scrapers and converts
// transport failures into categorized errors.
type fetcher struct {
	client    *http.Client
	userAgent string
}

func (f *fetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", health.NewScrapeError(health.CategoryNetwork, url, err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", health.NewScrapeError(health.CategoryTimeout, url, err)
		}
		return "", health.NewScrapeError(health.CategoryNetwork, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", health.NewScrapeError(health.CategoryNetwork, url, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return "", health.NewScrapeError(health.CategoryNotFound, url, fmt.Errorf("status code: %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", health.NewScrapeError(health.CategoryRateLimit, url, fmt.Errorf("status code: %d", resp.StatusCode))
	case resp.StatusCode == http.StatusForbidden:
		return "", health.NewScrapeError(health.CategoryBlocked, url, fmt.Errorf("status code: %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized:
		return "", health.NewScrapeError(health.CategoryAuthRequired, url, fmt.Errorf("status code: %d", resp.StatusCode))
	default:
		return "", health.NewScrapeError(health.CategoryNetwork, url, fmt.Errorf("status code: %d", resp.StatusCode))
	}

	html := string(body)
	if looksLikeCaptcha(html) {
		return "", health.NewScrapeError(health.CategoryCaptcha, url, fmt.Errorf("captcha challenge served"))
	}
	return html, nil
}

func looksLikeCaptcha(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "are you a robot") ||
		strings.Contains(lower, "enter the characters you see below")
}

// parsePrice normalizes price text like "$1,299.99" or "1299,99 €".
func parsePrice(text string) (decimal.Decimal, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			return r
		default:
			return -1
		}
	}, text)
	if cleaned == "" {
		return decimal.Zero, false
	}

	// Treat a trailing comma group as the decimal separator.
	if i := strings.LastIndex(cleaned, ","); i > strings.LastIndex(cleaned, ".") && len(cleaned)-i <= 3 {
		intPart := strings.NewReplacer(",", "", ".", "").Replace(cleaned[:i])
		cleaned = intPart + "." + cleaned[i+1:]
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.Sign() <= 0 {
		return decimal.Zero, false
	}
	return d.Round(2), true
}
