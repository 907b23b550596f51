package monitor

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/config"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/scraper"
)

// ValidationError collects every field problem found in one record.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// URLResult is the outcome of ValidateURL.
type URLResult struct {
	Valid     bool
	Sanitized string
	Errors    []string
}

// PriceResult is the outcome of ValidatePrice.
type PriceResult struct {
	Valid     bool
	Sanitized decimal.Decimal
	Errors    []string
}

// Validator is the single gatekeeper in front of storage: nothing malformed
// may reach a Product or PriceRecord row.
type Validator struct {
	allowedDomains []string
	minPrice       decimal.Decimal
	maxPrice       decimal.Decimal
}

func NewValidator(allowedDomains []string) *Validator {
	return &Validator{
		allowedDomains: allowedDomains,
		minPrice:       decimal.RequireFromString(config.MinPriceStr),
		maxPrice:       decimal.RequireFromString(config.MaxPriceStr),
	}
}

// ValidateURL trims, parses, and checks scheme and host against the
// supported-domain list.
func (v *Validator) ValidateURL(raw string) URLResult {
	var res URLResult
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		res.Errors = append(res.Errors, "url is empty")
		return res
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("url does not parse: %v", err))
		return res
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		res.Errors = append(res.Errors, fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		res.Errors = append(res.Errors, "url has no host")
	} else if !v.hostAllowed(u.Host) {
		res.Errors = append(res.Errors, fmt.Sprintf("host %q is not a supported domain", u.Host))
	}

	if len(res.Errors) > 0 {
		return res
	}
	res.Valid = true
	res.Sanitized = u.String()
	return res
}

func (v *Validator) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, domain := range v.allowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// ValidatePrice accepts a number or numeric string, rejects NaN/Inf, clamps
// to the supported range, and rounds half-up to 2 decimals.
func (v *Validator) ValidatePrice(value interface{}) PriceResult {
	var res PriceResult

	var d decimal.Decimal
	switch p := value.(type) {
	case decimal.Decimal:
		d = p
	case float64:
		if math.IsNaN(p) || math.IsInf(p, 0) {
			res.Errors = append(res.Errors, "price is not a finite number")
			return res
		}
		d = decimal.NewFromFloat(p)
	case float32:
		return v.ValidatePrice(float64(p))
	case int:
		d = decimal.NewFromInt(int64(p))
	case int64:
		d = decimal.NewFromInt(p)
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(p))
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("price %q is not numeric", p))
			return res
		}
		d = parsed
	default:
		res.Errors = append(res.Errors, fmt.Sprintf("unsupported price type %T", value))
		return res
	}

	d = d.Round(2)
	if d.LessThan(v.minPrice) {
		res.Errors = append(res.Errors, fmt.Sprintf("price %s below minimum %s", d, v.minPrice))
		return res
	}
	if d.GreaterThan(v.maxPrice) {
		res.Errors = append(res.Errors, fmt.Sprintf("price %s above maximum %s", d, v.maxPrice))
		return res
	}

	res.Valid = true
	res.Sanitized = d
	return res
}

// ValidateRecord runs every field validator and collects all errors before
// returning. On success the record's URL and price carry the sanitized
// values.
func (v *Validator) ValidateRecord(rec *scraper.Record) error {
	var errs []string

	urlRes := v.ValidateURL(rec.URL)
	errs = append(errs, urlRes.Errors...)

	priceRes := v.ValidatePrice(rec.Price)
	errs = append(errs, priceRes.Errors...)

	if rec.Site == "" {
		errs = append(errs, "site is empty")
	}
	if len(rec.Title) > 1000 {
		errs = append(errs, fmt.Sprintf("title too long (%d > 1000)", len(rec.Title)))
	}
	if rec.Currency != "" && len(rec.Currency) != 3 {
		errs = append(errs, fmt.Sprintf("currency %q is not a 3-letter code", rec.Currency))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	rec.URL = urlRes.Sanitized
	rec.Price = priceRes.Sanitized
	if rec.Currency == "" {
		rec.Currency = "USD"
	}
	return nil
}
