package logger

import (
	"log/slog"
	"time"
)

// LogScrape logs the outcome of a single scrape attempt.
func LogScrape(site string, url string, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "scrape"),
		slog.String("site", site),
		slog.String("url", url),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Warn("Scrape failed", append(attrs, slog.Any("error", err))...)
	} else {
		slog.Info("Scrape completed", attrs...)
	}
}
