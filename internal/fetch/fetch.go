// Package fetch defines how pages are retrieved and provides a rendered
// browser fetcher (chromedp) and a plain HTTP fetcher (colly).
package fetch

import (
	"context"
	"fmt"
	"math/rand"
)

// Page is the content of one fetched page.
type Page struct {
	// URL is the requested URL.
	URL string
	// FinalURL is the URL after redirects.
	FinalURL   string
	StatusCode int
	HTML       string
}

// Redirected reports whether the page ended up somewhere other than URL.
func (p *Page) Redirected() bool {
	return p.FinalURL != "" && p.FinalURL != p.URL
}

// PageFetcher retrieves page content.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Session is an open, interactive page.
type Session interface {
	// WaitFor waits until selector is present. Returns false when it did not
	// appear within the element timeout.
	WaitFor(ctx context.Context, selector string) (bool, error)
	// Locate reports whether selector is present and clickable.
	Locate(ctx context.Context, selector string) (bool, error)
	// Click scrolls selector into view and clicks it.
	Click(ctx context.Context, selector string) error
	// Snapshot returns the current rendered document.
	Snapshot(ctx context.Context) (*Page, error)
	Close()
}

// Interactive is implemented by fetchers that can hold a page open for
// scripted interaction such as consent dialogs and "load more" buttons.
type Interactive interface {
	Open(ctx context.Context, url string) (Session, error)
}

// StatusError is returned for responses with a status of 400 or above.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// DefaultUserAgents rotate between requests.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

func pickUserAgent(agents []string) string {
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	return agents[rand.Intn(len(agents))]
}
