package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const acceptLanguage = "en-US,en;q=0.9"

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	Headless          bool
	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	// ScrollPause is how long to wait after scrolling an element into view.
	ScrollPause time.Duration
	UserAgents  []string
}

// Browser renders pages in headless Chrome. One browser process is shared by
// every page; each page gets its own tab.
type Browser struct {
	cfg           BrowserConfig
	logger        *log.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowser starts the browser allocator. Call Close when done.
func NewBrowser(cfg BrowserConfig, logger *log.Logger) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(pickUserAgent(cfg.UserAgents)),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser now so a missing Chrome fails the run up front.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	return &Browser{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}

// Fetch navigates to url and returns the rendered document.
func (b *Browser) Fetch(ctx context.Context, url string) (*Page, error) {
	s, err := b.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Snapshot(ctx)
}

// Open navigates a new tab to url and keeps it open for interaction.
func (b *Browser) Open(ctx context.Context, url string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	// The tab hangs off the shared browser context; tie it to the caller too.
	stop := context.AfterFunc(ctx, cancelTab)

	s := &browserSession{
		b:      b,
		url:    url,
		tabCtx: tabCtx,
		close: func() {
			stop()
			cancelTab()
		},
	}

	// The first Run on a tab starts its event loop with that Run's context,
	// so the tab is created before any timeout is applied.
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("opening tab for %s: %w", url, err)
	}

	navCtx, cancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer cancel()

	resp, err := chromedp.RunResponse(navCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": acceptLanguage}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		s.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("navigating to %s: %w", url, err)
	}
	if resp != nil {
		s.status = int(resp.Status)
		if s.status >= 400 {
			s.Close()
			return nil, &StatusError{URL: url, StatusCode: s.status}
		}
	}
	return s, nil
}

type browserSession struct {
	b      *Browser
	url    string
	status int
	tabCtx context.Context
	close  func()
}

func (s *browserSession) Close() {
	s.close()
}

func (s *browserSession) WaitFor(ctx context.Context, selector string) (bool, error) {
	waitCtx, cancel := context.WithTimeout(s.tabCtx, s.b.cfg.ElementTimeout)
	defer cancel()

	err := chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
	return s.present(ctx, err)
}

func (s *browserSession) Locate(ctx context.Context, selector string) (bool, error) {
	waitCtx, cancel := context.WithTimeout(s.tabCtx, s.b.cfg.ElementTimeout)
	defer cancel()

	err := chromedp.Run(waitCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.WaitEnabled(selector, chromedp.ByQuery),
	)
	return s.present(ctx, err)
}

// present maps an element wait result to found/absent. A wait that ran out
// of time means the element is absent, not that the page failed.
func (s *browserSession) present(ctx context.Context, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, err
	}
}

func (s *browserSession) Click(ctx context.Context, selector string) error {
	clickCtx, cancel := context.WithTimeout(s.tabCtx, s.b.cfg.ElementTimeout+s.b.cfg.ScrollPause)
	defer cancel()

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) { return false; }
		el.click();
		return true;
	})()`, selector)

	var clicked bool
	err := chromedp.Run(clickCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Sleep(s.b.cfg.ScrollPause),
		chromedp.Evaluate(script, &clicked),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("clicking %s: %w", selector, err)
	}
	if !clicked {
		return fmt.Errorf("clicking %s: element disappeared", selector)
	}
	return nil
}

func (s *browserSession) Snapshot(ctx context.Context) (*Page, error) {
	snapCtx, cancel := context.WithTimeout(s.tabCtx, s.b.cfg.NavigationTimeout)
	defer cancel()

	var html, location string
	err := chromedp.Run(snapCtx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading %s: %w", s.url, err)
	}

	page := &Page{URL: s.url, FinalURL: location, StatusCode: s.status, HTML: html}
	if page.Redirected() && s.b.logger != nil {
		s.b.logger.Warn("page redirected", "url", s.url, "final", location)
	}
	return page, nil
}
