package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/health"
)

// BurtonScraper extracts price and title from burton.com product pages.
type BurtonScraper struct {
	fetcher *fetcher
}

func NewBurtonScraper(f *fetcher) *BurtonScraper {
	return &BurtonScraper{fetcher: f}
}

func (s *BurtonScraper) Name() string { return "burton" }

var burtonPriceSelectors = []string{
	".product-price .sales .value",
	".price .sales .value",
	"span.price-sales",
	"meta[itemprop='price']",
}

func (s *BurtonScraper) Scrape(ctx context.Context, url string) (*Record, error) {
	html, err := s.fetcher.get(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, health.NewScrapeError(health.CategoryParseError, url, err)
	}

	title := strings.TrimSpace(doc.Find("h1.product-name").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	for _, sel := range burtonPriceSelectors {
		node := doc.Find(sel).First()
		text := strings.TrimSpace(node.Text())
		if text == "" {
			if content, ok := node.Attr("content"); ok {
				text = content
			}
		}
		if text == "" {
			continue
		}
		price, ok := parsePrice(text)
		if !ok {
			continue
		}
		return &Record{
			Site:      "burton",
			URL:       url,
			Title:     title,
			Price:     price,
			Currency:  currencyFromText(text),
			Timestamp: time.Now().UTC(),
		}, nil
	}

	return nil, nil
}
