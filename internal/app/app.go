// Package app runs one crawl from configuration to error summary.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/go-scripts/homecrawl/internal/config"
	"github.com/go-scripts/homecrawl/internal/crawler"
	"github.com/go-scripts/homecrawl/internal/errsink"
	"github.com/go-scripts/homecrawl/internal/progress"
	"github.com/go-scripts/homecrawl/internal/record"
	"github.com/go-scripts/homecrawl/internal/site"
	"github.com/go-scripts/homecrawl/internal/writer"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// BuildFunc builds the named site.
type BuildFunc func(name string, cfg config.Config, logger *log.Logger) (*crawler.Site, func(), error)

// Options configure a run.
type Options struct {
	Config config.Config
	Logger *log.Logger
	// Out receives progress output and the error summary. Defaults to
	// os.Stdout.
	Out io.Writer
	// Build defaults to site.Build.
	Build BuildFunc
	// Sleep replaces every pause and backoff wait; nil uses real waits.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run crawls the configured site and returns the process exit code.
// Completion and interruption through ctx both exit with ExitOK; anything
// that stops the run itself, including a panic, exits with ExitFailure. The
// output file is closed and the error summary printed on every path.
func Run(ctx context.Context, opts Options) (code int) {
	runID := uuid.NewString()
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger = logger.With("run", runID[:8])
	build := opts.Build
	if build == nil {
		build = site.Build
	}

	sink := errsink.New(logger)
	tracker := progress.New(out)
	start := time.Now()

	var (
		w       *writer.CSV
		cleanup func()
	)
	defer func() {
		if r := recover(); r != nil {
			sink.Add(errsink.CategoryRun, "", fmt.Sprintf("panic: %v", r))
			logger.Error("run panicked", "panic", r, "stack", string(debug.Stack()))
			code = ExitFailure
		}
		tracker.Stop()
		if w != nil {
			if err := w.Close(); err != nil {
				logger.Warn("closing output", "err", err)
			}
		}
		if cleanup != nil {
			cleanup()
		}
		fmt.Fprintln(out)
		sink.Flush(out, runID)
		logger.Info("run ended", "exit", code, "elapsed", time.Since(start).Round(time.Second))
	}()

	fail := func(err error) int {
		sink.Record(errsink.CategoryRun, "", err)
		return ExitFailure
	}

	cfg := opts.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return fail(fmt.Errorf("invalid config: %w", err))
	}
	logger.Info("starting run", "site", cfg.Site, "output", cfg.Output, "resume", cfg.Resume)

	s, release, err := build(cfg.Site, cfg, logger)
	if err != nil {
		return fail(err)
	}
	cleanup = release

	columns := s.Columns
	if columns == nil {
		columns = record.Columns
	}
	w = writer.New(cfg.Output, columns,
		writer.WithRetry(cfg.Persist.Attempts, cfg.Persist.Delay),
		writer.WithLogger(logger),
	)
	if cfg.Resume {
		logger.Info("resuming, appending to existing output", "path", w.Path())
	} else {
		backup, err := w.Init()
		if err != nil {
			return fail(fmt.Errorf("preparing output: %w", err))
		}
		if backup != "" {
			logger.Info("previous output backed up", "backup", backup)
		}
	}

	c := crawler.New(s, crawler.Options{
		Writer:   w,
		Sink:     sink,
		Logger:   logger.With("site", s.Name),
		Progress: tracker,
		Config:   cfg.CrawlerConfig(),
		Sleep:    opts.Sleep,
	})
	totals, err := c.Run(ctx)
	switch {
	case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
		logger.Warn("interrupted, stopping", "saved", totals.Succeeded, "links", totals.Links)
		return ExitOK
	case err != nil:
		return fail(err)
	}

	logger.Info("all data saved",
		"path", w.Path(),
		"targets", totals.Targets,
		"groups", totals.Groups,
		"succeeded", totals.Ratio())
	return ExitOK
}
