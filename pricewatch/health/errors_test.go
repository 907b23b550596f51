package health

import (
	"context"
	"errors"
	"testing"
)

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "dial tcp: broken" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		pageContent   string
		wantCategory  Category
		wantSeverity  Severity
		wantRetryable bool
	}{
		{
			name:          "scrape error keeps its category",
			err:           NewScrapeError(CategoryRateLimit, "https://amazon.com/dp/A", errors.New("status 429")),
			wantCategory:  CategoryRateLimit,
			wantSeverity:  SeverityHigh,
			wantRetryable: true,
		},
		{
			name:          "wrapped scrape error",
			err:           errors.Join(errors.New("attempt 2"), NewScrapeError(CategoryBlocked, "", nil)),
			wantCategory:  CategoryBlocked,
			wantSeverity:  SeverityHigh,
			wantRetryable: false,
		},
		{
			name:          "deadline exceeded",
			err:           context.DeadlineExceeded,
			wantCategory:  CategoryTimeout,
			wantSeverity:  SeverityMedium,
			wantRetryable: true,
		},
		{
			name:          "net timeout",
			err:           fakeNetError{timeout: true},
			wantCategory:  CategoryTimeout,
			wantSeverity:  SeverityMedium,
			wantRetryable: true,
		},
		{
			name:          "net failure",
			err:           fakeNetError{},
			wantCategory:  CategoryNetwork,
			wantSeverity:  SeverityMedium,
			wantRetryable: true,
		},
		{
			name:          "captcha in the page wins regardless of error",
			err:           errors.New("unexpected markup"),
			pageContent:   "<html>Please solve this CAPTCHA to continue</html>",
			wantCategory:  CategoryCaptcha,
			wantSeverity:  SeverityCritical,
			wantRetryable: false,
		},
		{
			name:          "robot check page",
			err:           errors.New("no selector matched"),
			pageContent:   "To discuss automated access... are you a robot?",
			wantCategory:  CategoryCaptcha,
			wantSeverity:  SeverityCritical,
			wantRetryable: false,
		},
		{
			name:          "rate limited message",
			err:           errors.New("server said: too many requests"),
			wantCategory:  CategoryRateLimit,
			wantSeverity:  SeverityHigh,
			wantRetryable: true,
		},
		{
			name:          "access denied",
			err:           errors.New("403 access denied"),
			wantCategory:  CategoryBlocked,
			wantSeverity:  SeverityHigh,
			wantRetryable: false,
		},
		{
			name:          "missing page",
			err:           errors.New("status 404 not found"),
			wantCategory:  CategoryNotFound,
			wantSeverity:  SeverityLow,
			wantRetryable: false,
		},
		{
			name:          "login wall",
			err:           errors.New("redirected to sign in page"),
			wantCategory:  CategoryAuthRequired,
			wantSeverity:  SeverityCritical,
			wantRetryable: false,
		},
		{
			name:          "geo blocked page",
			err:           errors.New("unexpected markup"),
			pageContent:   "This item is not available in your country.",
			wantCategory:  CategoryGeoBlocked,
			wantSeverity:  SeverityCritical,
			wantRetryable: false,
		},
		{
			name:          "out of stock page",
			err:           errors.New("price element missing"),
			pageContent:   "Currently unavailable. We don't know when this will be back.",
			wantCategory:  CategoryOutOfStock,
			wantSeverity:  SeverityLow,
			wantRetryable: false,
		},
		{
			name:          "unknown",
			err:           errors.New("something odd happened"),
			wantCategory:  CategoryUnknown,
			wantSeverity:  SeverityMedium,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, tt.pageContent)
			if got.Category != tt.wantCategory {
				t.Errorf("Classify() category = %q, want %q", got.Category, tt.wantCategory)
			}
			if got.Severity != tt.wantSeverity {
				t.Errorf("Classify() severity = %q, want %q", got.Severity, tt.wantSeverity)
			}
			if got.Retryable != tt.wantRetryable {
				t.Errorf("Classify() retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestSiteFromURL(t *testing.T) {
	tests := []struct {
		rawURL string
		want   string
	}{
		{"https://www.amazon.com/dp/B0ABCD1234", "amazon"},
		{"https://smile.amazon.co.uk/dp/B0ABCD1234", "amazon"},
		{"https://www.burton.com/us/en/p/custom", "burton"},
		{"https://www.target.com/p/item", "target"},
		{"https://www.walmart.com/ip/123", "walmart"},
		{"https://shop.example.com/item", "default"},
		{"not a url at all", "default"},
	}

	for _, tt := range tests {
		if got := SiteFromURL(tt.rawURL); got != tt.want {
			t.Errorf("SiteFromURL(%q) = %q, want %q", tt.rawURL, got, tt.want)
		}
	}
}
