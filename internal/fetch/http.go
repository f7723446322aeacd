package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	Timeout    time.Duration
	UserAgents []string
}

// HTTP fetches raw server-rendered HTML without a browser.
type HTTP struct {
	cfg HTTPConfig
}

// NewHTTP returns an HTTP fetcher.
func NewHTTP(cfg HTTPConfig) *HTTP {
	return &HTTP{cfg: cfg}
}

// Fetch performs a GET with a randomly chosen user agent. Responses with a
// status of 400 or above are returned as *StatusError.
func (h *HTTP) Fetch(ctx context.Context, url string) (*Page, error) {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.UserAgent(pickUserAgent(h.cfg.UserAgents)),
		colly.StdlibContext(ctx),
	)
	if h.cfg.Timeout > 0 {
		c.SetRequestTimeout(h.cfg.Timeout)
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", acceptLanguage)
	})

	var (
		page     *Page
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:        url,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			HTML:       string(r.Body),
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			fetchErr = &StatusError{URL: url, StatusCode: r.StatusCode}
			return
		}
		fetchErr = err
	})

	visitErr := c.Visit(url)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if fetchErr != nil {
		var se *StatusError
		if errors.As(fetchErr, &se) {
			return nil, se
		}
		return nil, fmt.Errorf("fetching %s: %w", url, fetchErr)
	}
	if visitErr != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, visitErr)
	}
	if page == nil {
		return nil, fmt.Errorf("fetching %s: empty response", url)
	}
	if page.StatusCode >= 400 {
		return nil, &StatusError{URL: url, StatusCode: page.StatusCode}
	}
	return page, nil
}
