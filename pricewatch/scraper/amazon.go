package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/health"
)

// AmazonScraper extracts price and title from amazon.com product pages.
type AmazonScraper struct {
	fetcher *fetcher
}

func NewAmazonScraper(f *fetcher) *AmazonScraper {
	return &AmazonScraper{fetcher: f}
}

func (s *AmazonScraper) Name() string { return "amazon" }

var amazonPriceSelectors = []string{
	"#corePrice_feature_div .a-offscreen",
	"span.a-price .a-offscreen",
	"#priceblock_ourprice",
	"#priceblock_dealprice",
	"#price_inside_buybox",
}

func (s *AmazonScraper) Scrape(ctx context.Context, url string) (*Record, error) {
	html, err := s.fetcher.get(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, health.NewScrapeError(health.CategoryParseError, url, err)
	}

	title := strings.TrimSpace(doc.Find("#productTitle").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	for _, sel := range amazonPriceSelectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text == "" {
			continue
		}
		price, ok := parsePrice(text)
		if !ok {
			continue
		}
		return &Record{
			Site:      "amazon",
			URL:       url,
			Title:     title,
			Price:     price,
			Currency:  currencyFromText(text),
			Timestamp: time.Now().UTC(),
		}, nil
	}

	// Page fetched and parsed but no price element matched.
	return nil, nil
}

func currencyFromText(text string) string {
	switch {
	case strings.Contains(text, "€"):
		return "EUR"
	case strings.Contains(text, "£"):
		return "GBP"
	default:
		return "USD"
	}
}
