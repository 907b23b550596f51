package alerts

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/config"
)

// Alert carries everything a channel needs to notify about one price change.
type Alert struct {
	ProductID     int64
	ProductTitle  string
	ProductURL    string
	Site          string
	OldPrice      decimal.Decimal
	NewPrice      decimal.Decimal
	Currency      string
	PercentChange float64
	Direction     string // "down" or "up"
	Severity      string // "low", "medium", "high"
	Reason        string
}

// Type returns the dedup alert type for this alert.
func (a Alert) Type() string {
	if a.Direction == "down" {
		return "price_drop"
	}
	return "price_increase"
}

// Config controls the pipeline; values come from the environment.
type Config struct {
	Enabled         bool
	Channels        []string
	WebhookURL      string
	EmailRecipients []string
	MinInterval     time.Duration
}

// ConfigFromEnv reads PRICE_ALERT_* variables, falling back to a log-only
// pipeline when nothing is configured.
func ConfigFromEnv() Config {
	cfg := Config{
		Enabled:     envBool("PRICE_ALERTS_ENABLED", true),
		WebhookURL:  os.Getenv("PRICE_ALERT_WEBHOOK_URL"),
		MinInterval: config.DefaultAlertMinInterval,
	}

	if raw := os.Getenv("PRICE_ALERT_CHANNELS"); raw != "" {
		cfg.Channels = splitCSV(raw)
	} else {
		cfg.Channels = []string{"log"}
	}

	if raw := os.Getenv("PRICE_ALERT_EMAIL_RECIPIENTS"); raw != "" {
		cfg.EmailRecipients = splitCSV(raw)
	}

	if raw := os.Getenv("PRICE_ALERT_MIN_INTERVAL"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			cfg.MinInterval = time.Duration(secs) * time.Second
		}
	}

	return cfg
}

func envBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
