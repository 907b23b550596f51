package scraper

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/health"
)

// renderFunc fetches a fully rendered document for JS-heavy shops.
type renderFunc func(ctx context.Context, url string) (string, error)

// headlessRender loads the page in headless Chrome and returns the rendered
// HTML once the DOM settles.
func headlessRender(ctx context.Context, url string) (string, error) {
	chromedpCtx, cancel := chromedp.NewContext(ctx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancel()

	chromedpCtx, cancel = context.WithTimeout(chromedpCtx, 25*time.Second)
	defer cancel()

	var html string
	err := chromedp.Run(chromedpCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if chromedpCtx.Err() == context.DeadlineExceeded {
			return "", health.NewScrapeError(health.CategoryTimeout, url, err)
		}
		return "", health.NewScrapeError(health.CategoryNetwork, url, err)
	}
	return html, nil
}
