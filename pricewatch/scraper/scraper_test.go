package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/health"
)

func TestRegistry_ScraperFor(t *testing.T) {
	r := NewRegistry("", false)

	tests := []struct {
		url  string
		want string
	}{
		{"https://www.amazon.com/dp/B0ABCD1234", "amazon"},
		{"https://www.burton.com/us/en/p/custom", "burton"},
		{"https://www.target.com/p/item", "universal"},
		{"https://shop.example.com/item", "universal"},
	}

	for _, tt := range tests {
		if got := r.ScraperFor(tt.url).Name(); got != tt.want {
			t.Errorf("ScraperFor(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"$1,299.99", "1299.99", true},
		{"$19.99", "19.99", true},
		{"1299,99 €", "1299.99", true},
		{"1.299,99 €", "1299.99", true},
		{"£45", "45", true},
		{"USD 2,499.00", "2499", true},
		{"Price: 389.95", "389.95", true},
		{"", "", false},
		{"Call for price", "", false},
		{"$0.00", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := parsePrice(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("parsePrice(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if ok && got.String() != tt.want {
				t.Errorf("parsePrice(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestCurrencyFromText(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"$19.99", "USD"},
		{"19,99 €", "EUR"},
		{"£45.00", "GBP"},
		{"1299.99", "USD"},
	}
	for _, tt := range tests {
		if got := currencyFromText(tt.text); got != tt.want {
			t.Errorf("currencyFromText(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func testFetcher(srv *httptest.Server) *fetcher {
	return &fetcher{client: srv.Client(), userAgent: defaultUserAgent}
}

func TestFetcher_StatusCategories(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   health.Category
	}{
		{"not found", http.StatusNotFound, health.CategoryNotFound},
		{"rate limited", http.StatusTooManyRequests, health.CategoryRateLimit},
		{"blocked", http.StatusForbidden, health.CategoryBlocked},
		{"auth required", http.StatusUnauthorized, health.CategoryAuthRequired},
		{"server error", http.StatusInternalServerError, health.CategoryNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := testFetcher(srv).get(context.Background(), srv.URL)
			var se *health.ScrapeError
			if !errors.As(err, &se) {
				t.Fatalf("get() error = %v, want *health.ScrapeError", err)
			}
			if se.Category != tt.want {
				t.Errorf("get() category = %q, want %q", se.Category, tt.want)
			}
		})
	}
}

func TestFetcher_CaptchaPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Enter the characters you see below</body></html>`))
	}))
	defer srv.Close()

	_, err := testFetcher(srv).get(context.Background(), srv.URL)
	var se *health.ScrapeError
	if !errors.As(err, &se) || se.Category != health.CategoryCaptcha {
		t.Errorf("get() = %v, want captcha scrape error", err)
	}
}

func TestFetcher_SetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	if _, err := testFetcher(srv).get(context.Background(), srv.URL); err != nil {
		t.Fatalf("get() error = %v", err)
	}
	if gotUA != defaultUserAgent {
		t.Errorf("user agent = %q, want the configured one", gotUA)
	}
}

const amazonProductHTML = `<html><head><title>fallback</title></head><body>
<span id="productTitle"> Burton Custom Snowboard </span>
<div id="corePrice_feature_div"><span class="a-offscreen">$479.99</span></div>
</body></html>`

func TestAmazonScraper_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(amazonProductHTML))
	}))
	defer srv.Close()

	s := NewAmazonScraper(testFetcher(srv))
	rec, err := s.Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if rec == nil {
		t.Fatal("Scrape() = nil record")
	}
	if rec.Title != "Burton Custom Snowboard" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Price.String() != "479.99" {
		t.Errorf("price = %s, want 479.99", rec.Price)
	}
	if rec.Currency != "USD" {
		t.Errorf("currency = %q, want USD", rec.Currency)
	}
	if rec.Site != "amazon" {
		t.Errorf("site = %q, want amazon", rec.Site)
	}
}

func TestAmazonScraper_NoPriceIsConfidentMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><span id="productTitle">Thing</span></body></html>`))
	}))
	defer srv.Close()

	s := NewAmazonScraper(testFetcher(srv))
	rec, err := s.Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if rec != nil {
		t.Errorf("Scrape() = %+v, want nil record for a page without a price", rec)
	}
}
