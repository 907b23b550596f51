package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Category buckets a raw scrape failure.
type Category string

const (
	CategoryTimeout        Category = "timeout"
	CategoryBlocked        Category = "blocked"
	CategoryNetwork        Category = "network"
	CategoryCaptcha        Category = "captcha"
	CategoryRateLimit      Category = "rate_limit"
	CategorySelectorFailed Category = "selector_failed"
	CategoryNotFound       Category = "not_found"
	CategoryParseError     Category = "parse_error"
	CategoryAuthRequired   Category = "auth_required"
	CategoryOutOfStock     Category = "out_of_stock"
	CategoryGeoBlocked     Category = "geo_blocked"
	CategoryUnknown        Category = "unknown"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ScrapeError carries the category a scraper assigned to a transport or
// extraction failure so the classifier doesn't have to guess.
type ScrapeError struct {
	Category Category
	URL      string
	Err      error
}

func (e *ScrapeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("scrape %s: %s", e.URL, e.Category)
	}
	return fmt.Sprintf("scrape %s: %s: %v", e.URL, e.Category, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

func NewScrapeError(category Category, rawURL string, err error) *ScrapeError {
	return &ScrapeError{Category: category, URL: rawURL, Err: err}
}

// Classification is the classifier's verdict for one failure.
type Classification struct {
	Category  Category
	Severity  Severity
	Retryable bool
}

var severityByCategory = map[Category]Severity{
	CategoryTimeout:        SeverityMedium,
	CategoryBlocked:        SeverityHigh,
	CategoryNetwork:        SeverityMedium,
	CategoryCaptcha:        SeverityCritical,
	CategoryRateLimit:      SeverityHigh,
	CategorySelectorFailed: SeverityMedium,
	CategoryNotFound:       SeverityLow,
	CategoryParseError:     SeverityMedium,
	CategoryAuthRequired:   SeverityCritical,
	CategoryOutOfStock:     SeverityLow,
	CategoryGeoBlocked:     SeverityCritical,
	CategoryUnknown:        SeverityMedium,
}

var retryableByCategory = map[Category]bool{
	CategoryTimeout:        true,
	CategoryBlocked:        false,
	CategoryNetwork:        true,
	CategoryCaptcha:        false,
	CategoryRateLimit:      true,
	CategorySelectorFailed: false,
	CategoryNotFound:       false,
	CategoryParseError:     false,
	CategoryAuthRequired:   false,
	CategoryOutOfStock:     false,
	CategoryGeoBlocked:     false,
	CategoryUnknown:        true,
}

// Classify maps a raw error, optionally with a page content snippet, to a
// category with its default severity and retryable bit.
func Classify(err error, pageContent string) Classification {
	category := categorize(err, pageContent)
	return Classification{
		Category:  category,
		Severity:  severityByCategory[category],
		Retryable: retryableByCategory[category],
	}
}

func categorize(err error, pageContent string) Category {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Category
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	msg := ""
	if err != nil {
		msg = strings.ToLower(err.Error())
	}
	content := strings.ToLower(pageContent)

	switch {
	case containsAny(content, "captcha", "are you a robot"),
		containsAny(msg, "captcha"):
		return CategoryCaptcha
	case containsAny(msg, "429", "too many requests", "rate limit"):
		return CategoryRateLimit
	case containsAny(msg, "403", "access denied", "blocked"):
		return CategoryBlocked
	case containsAny(msg, "404", "not found"):
		return CategoryNotFound
	case containsAny(msg, "401", "login", "sign in", "unauthorized"):
		return CategoryAuthRequired
	case containsAny(content, "not available in your country"),
		containsAny(msg, "geo"):
		return CategoryGeoBlocked
	case containsAny(content, "out of stock", "currently unavailable"):
		return CategoryOutOfStock
	case containsAny(msg, "selector"):
		return CategorySelectorFailed
	case containsAny(msg, "parse", "invalid price"):
		return CategoryParseError
	case containsAny(msg, "connection refused", "connection reset", "no such host", "eof"):
		return CategoryNetwork
	case containsAny(msg, "timeout", "deadline"):
		return CategoryTimeout
	case err == nil:
		return CategoryUnknown
	default:
		return CategoryUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// SiteFromURL derives the site tag from the URL host.
func SiteFromURL(rawURL string) string {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(host)

	switch {
	case strings.Contains(host, "amazon"):
		return "amazon"
	case strings.Contains(host, "burton"):
		return "burton"
	case strings.Contains(host, "target"):
		return "target"
	case strings.Contains(host, "walmart"):
		return "walmart"
	default:
		return "default"
	}
}
