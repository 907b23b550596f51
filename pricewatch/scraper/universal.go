package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/health"
)

// UniversalScraper handles any shop without a dedicated scraper. It tries a
// set of common price markups and, when configured, falls back to a headless
// render for JS-heavy pages.
type UniversalScraper struct {
	fetcher *fetcher
	render  renderFunc
}

func NewUniversalScraper(f *fetcher, render renderFunc) *UniversalScraper {
	return &UniversalScraper{fetcher: f, render: render}
}

func (s *UniversalScraper) Name() string { return "universal" }

var universalPriceSelectors = []string{
	"meta[property='product:price:amount']",
	"meta[itemprop='price']",
	"[itemprop='price']",
	".product-price",
	".price-current",
	".price",
	"#price",
}

func (s *UniversalScraper) Scrape(ctx context.Context, url string) (*Record, error) {
	html, err := s.fetcher.get(ctx, url)
	if err != nil {
		return nil, err
	}

	rec, perr := s.extract(url, html)
	if perr != nil {
		return nil, perr
	}
	if rec != nil {
		return rec, nil
	}

	// Static document had no recognizable price; render it if we can.
	if s.render != nil {
		rendered, rerr := s.render(ctx, url)
		if rerr != nil {
			return nil, rerr
		}
		return s.extract(url, rendered)
	}

	return nil, nil
}

func (s *UniversalScraper) extract(url, html string) (*Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, health.NewScrapeError(health.CategoryParseError, url, err)
	}

	title := strings.TrimSpace(doc.Find("meta[property='og:title']").First().AttrOr("content", ""))
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	for _, sel := range universalPriceSelectors {
		node := doc.Find(sel).First()
		text := strings.TrimSpace(node.Text())
		if text == "" {
			text = node.AttrOr("content", "")
		}
		if text == "" {
			continue
		}
		price, ok := parsePrice(text)
		if !ok {
			continue
		}
		return &Record{
			Site:      "universal",
			URL:       url,
			Title:     title,
			Price:     price,
			Currency:  currencyFromText(text),
			Timestamp: time.Now().UTC(),
		}, nil
	}

	return nil, nil
}
