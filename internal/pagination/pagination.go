// Package pagination expands "load more" style listings on an open page.
package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/homecrawl/internal/fetch"
	"github.com/go-scripts/homecrawl/internal/retry"
)

// Result is the fully expanded page and the number of clicks it took.
type Result struct {
	Page   *fetch.Page
	Clicks int
	// Stopped is set when expansion ended early because of an error.
	Stopped error
}

// Expander clicks a trigger until it disappears or the click budget is spent.
type Expander struct {
	// Settle is the pause after each click while new cards load.
	Settle retry.Range
	Logger *log.Logger
	// Sleep defaults to retry.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnClick is called after every successful click.
	OnClick func(clicks int)
}

// Expand keeps clicking trigger on s. An absent trigger ends expansion
// normally. A failed locate or click ends it early but the content loaded so
// far is still returned. Only a failed snapshot or cancellation is an error.
func (e *Expander) Expand(ctx context.Context, s fetch.Session, trigger string, maxClicks int) (Result, error) {
	sleep := e.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}

	var res Result
	for res.Clicks < maxClicks {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		found, err := s.Locate(ctx, trigger)
		if err != nil {
			res.Stopped = fmt.Errorf("locating %s: %w", trigger, err)
			break
		}
		if !found {
			break
		}

		if err := s.Click(ctx, trigger); err != nil {
			res.Stopped = err
			break
		}
		res.Clicks++
		if e.OnClick != nil {
			e.OnClick(res.Clicks)
		}

		if err := sleep(ctx, e.Settle.Pick()); err != nil {
			return res, err
		}
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if res.Stopped != nil && e.Logger != nil {
		e.Logger.Warn("pagination stopped early, keeping loaded content", "clicks", res.Clicks, "err", res.Stopped)
	}

	page, err := s.Snapshot(ctx)
	if err != nil {
		return res, err
	}
	res.Page = page
	return res, nil
}
