package fetch

import (
	"context"

	"github.com/charmbracelet/log"
)

// Waiting fetches through an interactive fetcher and waits for each of
// Selectors before reading the page. Selectors that never appear are logged
// and the page is read anyway.
type Waiting struct {
	Interactive Interactive
	Selectors   []string
	Logger      *log.Logger
}

// Fetch implements PageFetcher.
func (w Waiting) Fetch(ctx context.Context, url string) (*Page, error) {
	s, err := w.Interactive.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	for _, sel := range w.Selectors {
		found, err := s.WaitFor(ctx, sel)
		if err != nil {
			return nil, err
		}
		if !found && w.Logger != nil {
			w.Logger.Warn("element did not appear, data may be incomplete", "selector", sel, "url", url)
		}
	}
	return s.Snapshot(ctx)
}
