// Package crawler drives the state → community/market → property traversal
// of a builder website and hands every extracted record to a Persister.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"

	"github.com/go-scripts/homecrawl/internal/errsink"
	"github.com/go-scripts/homecrawl/internal/fetch"
	"github.com/go-scripts/homecrawl/internal/linkset"
	"github.com/go-scripts/homecrawl/internal/pagination"
	"github.com/go-scripts/homecrawl/internal/progress"
	"github.com/go-scripts/homecrawl/internal/record"
	"github.com/go-scripts/homecrawl/internal/retry"
)

// Config holds retry budgets and pause ranges.
type Config struct {
	IndexAttempts   int
	IndexRetryDelay retry.Range
	LeafAttempts    int
	LeafRetryDelay  retry.Range

	// LeafPause precedes every leaf request.
	LeafPause retry.Range
	// GroupPause separates sibling index pages below the top level.
	GroupPause retry.Range
	// TargetPause separates top-level targets.
	TargetPause retry.Range
	// Settle is the wait after each pagination click.
	Settle retry.Range
}

// Totals are aggregate counters, rolled up from leaves to the whole run.
type Totals struct {
	// Targets is the number of top-level targets attempted.
	Targets int
	// Groups is the number of intermediate index pages attempted.
	Groups    int
	Links     int
	Succeeded int
	Failed    int
}

// Add accumulates o into t.
func (t *Totals) Add(o Totals) {
	t.Targets += o.Targets
	t.Groups += o.Groups
	t.Links += o.Links
	t.Succeeded += o.Succeeded
	t.Failed += o.Failed
}

// Ratio formats succeeded records over discovered links, e.g. "2/3".
func (t Totals) Ratio() string {
	return fmt.Sprintf("%d/%d", t.Succeeded, t.Links)
}

// Options are the collaborators of a Crawler.
type Options struct {
	Writer   Persister
	Sink     *errsink.Sink
	Logger   *log.Logger
	Progress *progress.Tracker
	Config   Config
	// Sleep defaults to retry.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Crawler runs one site.
type Crawler struct {
	site     *Site
	writer   Persister
	sink     *errsink.Sink
	logger   *log.Logger
	progress *progress.Tracker
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
	expander pagination.Expander
}

// New returns a Crawler for site.
func New(site *Site, opts Options) *Crawler {
	c := &Crawler{
		site:     site,
		writer:   opts.Writer,
		sink:     opts.Sink,
		logger:   opts.Logger,
		progress: opts.Progress,
		cfg:      opts.Config,
		sleep:    opts.Sleep,
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	if c.sink == nil {
		c.sink = errsink.New(c.logger)
	}
	if c.progress == nil {
		c.progress = progress.Discard()
	}
	if c.sleep == nil {
		c.sleep = retry.Sleep
	}
	c.expander = pagination.Expander{Settle: c.cfg.Settle, Logger: c.logger, Sleep: c.sleep}
	return c
}

// Run crawls every target in order. Failures are recorded in the error sink
// and never stop sibling work; only cancellation of ctx ends the run early,
// in which case the totals so far are returned with the context error.
func (c *Crawler) Run(ctx context.Context) (Totals, error) {
	if err := c.site.Validate(); err != nil {
		return Totals{}, err
	}
	if c.writer == nil {
		return Totals{}, errors.New("crawler has no writer")
	}

	start := time.Now()
	var totals Totals
	n := len(c.site.Targets)
	for i, t := range c.site.Targets {
		if err := ctx.Err(); err != nil {
			return totals, err
		}

		url := c.site.IndexURL(t)
		tlog := c.logger.With("target", t.String())
		tlog.Info("crawling target", "progress", fmt.Sprintf("%d/%d", i+1, n), "url", url)

		targetStart := time.Now()
		sub := c.crawlIndex(ctx, 0, url)
		sub.Targets = 1
		totals.Add(sub)

		tlog.Info("target done",
			"groups", sub.Groups,
			"succeeded", sub.Ratio(),
			"total", totals.Ratio(),
			"elapsed", time.Since(targetStart).Round(time.Second))

		if i < n-1 {
			if err := c.pause(ctx, c.cfg.TargetPause); err != nil {
				return totals, err
			}
		}
	}

	c.logger.Info("run done",
		"targets", totals.Targets,
		"groups", totals.Groups,
		"links", totals.Links,
		"succeeded", totals.Succeeded,
		"failed", totals.Failed,
		"elapsed", time.Since(start).Round(time.Second))
	return totals, ctx.Err()
}

// crawlIndex handles one index page at the given depth and everything below
// it.
func (c *Crawler) crawlIndex(ctx context.Context, depth int, url string) Totals {
	level := c.site.Levels[depth]
	set, ok := c.collect(ctx, level, url)
	if !ok {
		return Totals{}
	}

	links := set.Slice()
	if depth == len(c.site.Levels)-1 {
		return c.crawlLeaves(ctx, url, links)
	}

	child := c.site.Levels[depth+1]
	var totals Totals
	for i, link := range links {
		if ctx.Err() != nil {
			break
		}
		c.logger.Info("crawling "+child.Name, "progress", fmt.Sprintf("%d/%d", i+1, len(links)), "url", link)

		sub := c.crawlIndex(ctx, depth+1, link)
		sub.Groups++
		totals.Add(sub)

		c.logger.Info(child.Name+" done", "url", link, "succeeded", sub.Ratio(), "total", totals.Ratio())

		if i < len(links)-1 {
			if err := c.pause(ctx, c.cfg.GroupPause); err != nil {
				break
			}
		}
	}
	return totals
}

// collect loads an index page and gathers the links on it. A false result
// means the page failed or held no links; the reason is already recorded.
func (c *Crawler) collect(ctx context.Context, level Level, url string) (*linkset.Set, bool) {
	page, err := c.loadIndex(ctx, level, url)
	if err != nil {
		if ctx.Err() == nil {
			c.sink.Record(level.Category, url, fmt.Errorf("loading %s page: %w", level.Name, err))
		}
		return nil, false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		c.sink.Record(level.Category, url, fmt.Errorf("parsing %s page: %w", level.Name, err))
		return nil, false
	}

	base := url
	if page.FinalURL != "" {
		base = page.FinalURL
	}
	res := linkset.Collect(doc.Find(level.Container), level.Link, base)
	if level.PathPrefix != "" {
		res.Set = res.Set.Filter(func(u string) bool { return linkset.HasPathPrefix(u, level.PathPrefix) })
	}
	switch {
	case res.Containers == 0:
		c.sink.Add(errsink.CategoryNoCards, url, fmt.Sprintf("no %s cards matched %q", level.Name, level.Container))
		return nil, false
	case res.Set.Len() == 0:
		c.sink.Add(errsink.CategoryNoLinks, url, fmt.Sprintf("%d %s cards, none with a link", res.Containers, level.Name))
		return nil, false
	}

	c.logger.Info("links found", "level", level.Name, "cards", res.Containers, "links", res.Set.Len(), "url", url)
	return res.Set, true
}

// loadIndex fetches an index page under the index retry policy. Levels that
// need interaction are opened as a session when the fetcher supports it.
func (c *Crawler) loadIndex(ctx context.Context, level Level, url string) (*fetch.Page, error) {
	update, stop := c.progress.Spin("Loading " + level.Name + " page " + progress.ShortURL(url))
	defer stop()

	policy := c.policy(c.cfg.IndexAttempts, c.cfg.IndexRetryDelay, url)
	return retry.Do(ctx, policy, func(ctx context.Context) (*fetch.Page, error) {
		inter, ok := c.site.Fetcher.(fetch.Interactive)
		if !ok || !needsSession(level) {
			return c.site.Fetcher.Fetch(ctx, url)
		}

		s, err := inter.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		if level.Consent != "" {
			c.dismissConsent(ctx, s, level.Consent)
		}
		if level.WaitFor != "" {
			found, err := s.WaitFor(ctx, level.WaitFor)
			if err != nil {
				return nil, err
			}
			if !found {
				c.logger.Warn("cards did not appear, reading page anyway", "selector", level.WaitFor, "url", url)
			}
		}
		if level.Pagination == nil {
			return s.Snapshot(ctx)
		}

		exp := c.expander
		exp.OnClick = func(n int) { update(fmt.Sprintf("load more ×%d", n)) }
		res, err := exp.Expand(ctx, s, level.Pagination.Trigger, level.Pagination.MaxClicks)
		if err != nil {
			return nil, err
		}
		c.logger.Info("pagination expanded", "clicks", res.Clicks, "max", level.Pagination.MaxClicks, "url", url)
		return res.Page, nil
	})
}

func needsSession(level Level) bool {
	return level.Pagination != nil || level.Consent != "" || level.WaitFor != ""
}

// dismissConsent clicks the consent button when it shows up. Its absence is
// normal.
func (c *Crawler) dismissConsent(ctx context.Context, s fetch.Session, selector string) {
	found, err := s.Locate(ctx, selector)
	if err != nil || !found {
		c.logger.Debug("no consent dialog", "selector", selector, "err", err)
		return
	}
	if err := s.Click(ctx, selector); err != nil {
		c.logger.Warn("could not dismiss consent dialog", "err", err)
		return
	}
	c.logger.Debug("consent dialog dismissed")
}

type leafOutcome int

const (
	leafSucceeded leafOutcome = iota
	leafFailed
	leafInterrupted
)

// crawlLeaves fetches, extracts and persists every leaf of one index page.
func (c *Crawler) crawlLeaves(ctx context.Context, parent string, links []string) Totals {
	totals := Totals{Links: len(links)}
	c.progress.Begin("Properties ", len(links))
	defer c.progress.End()

	for _, link := range links {
		if ctx.Err() != nil {
			break
		}
		switch c.processLeaf(ctx, link) {
		case leafSucceeded:
			totals.Succeeded++
		case leafFailed:
			totals.Failed++
		case leafInterrupted:
			return totals
		}
		c.progress.Step()
	}

	c.logger.Info("properties done", "url", parent, "succeeded", totals.Ratio())
	return totals
}

func (c *Crawler) processLeaf(ctx context.Context, url string) leafOutcome {
	if err := c.pause(ctx, c.cfg.LeafPause); err != nil {
		return leafInterrupted
	}

	policy := c.policy(c.cfg.LeafAttempts, c.cfg.LeafRetryDelay, url)
	page, err := retry.Do(ctx, policy, func(ctx context.Context) (*fetch.Page, error) {
		return c.site.leafFetcher().Fetch(ctx, url)
	})
	if err != nil {
		if ctx.Err() != nil {
			return leafInterrupted
		}
		c.sink.Record(errsink.CategoryProperty, url, err)
		return leafFailed
	}
	if page.Redirected() {
		c.logger.Warn("property redirected", "url", url, "final", page.FinalURL)
	}

	rec, err := c.extract(page)
	if err != nil {
		c.sink.Record(errsink.CategoryExtraction, url, err)
		return leafFailed
	}

	if err := c.writer.Append(ctx, rec); err != nil {
		if ctx.Err() != nil {
			c.logger.Warn("interrupted before property was saved", "url", url)
			return leafInterrupted
		}
		c.sink.Record(errsink.CategoryPersist, url, err)
		return leafFailed
	}
	c.logger.Debug("property saved", "url", url)
	return leafSucceeded
}

// extract runs the site extractor, turning a panic into an error so one bad
// page cannot take down the run.
func (c *Crawler) extract(page *fetch.Page) (rec record.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()
	rec, err = c.site.Extractor.Extract(page)
	if err == nil && rec == nil {
		err = errors.New("extractor returned no record")
	}
	return rec, err
}

func (c *Crawler) policy(attempts int, delay retry.Range, url string) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		Delay:       delay,
		Sleep:       c.sleep,
		OnRetry: func(attempt int, err error) {
			c.logger.Warn("retrying", "url", url, "attempt", attempt, "of", attempts, "err", err)
		},
	}
}

func (c *Crawler) pause(ctx context.Context, r retry.Range) error {
	return c.sleep(ctx, r.Pick())
}
