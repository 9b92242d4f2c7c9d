package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"
)

// browserStrategy renders the page in a remote headless Chrome, the last
// resort for JavaScript-gated or aggressively bot-gated pages. It only joins
// the cascade when an endpoint is configured.
type browserStrategy struct {
	endpoint string
	logger   *slog.Logger
}

func newBrowserStrategy(endpoint string, logger *slog.Logger) *browserStrategy {
	return &browserStrategy{endpoint: endpoint, logger: logger}
}

func (s *browserStrategy) Name() string { return "headless-browser" }

func (s *browserStrategy) Attempt(ctx context.Context, url string) Attempt {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, s.endpoint)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Attempt{
			Strategy:   s.Name(),
			Outcome:    OutcomeError,
			Diagnostic: fmt.Sprintf("headless render failed: %v", err),
		}
	}
	if html == "" {
		return Attempt{
			Strategy:   s.Name(),
			Outcome:    OutcomeError,
			Diagnostic: "headless render returned empty document",
		}
	}
	return Attempt{Strategy: s.Name(), Outcome: OutcomeSuccess, Body: []byte(html)}
}
