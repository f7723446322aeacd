package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/go-scripts/homecrawl/internal/app"
	"github.com/go-scripts/homecrawl/internal/config"
	"github.com/go-scripts/homecrawl/internal/site"
)

// CLIFlags override values from the config file.
type CLIFlags struct {
	ConfigFile string `help:"Path to configuration file" default:"homecrawl.yaml" short:"c" env:"HOMECRAWL_CONFIG" name:"config"`
	Site       string `help:"Site to crawl (${sites})" short:"s" env:"HOMECRAWL_SITE"`
	Output     string `help:"Path to output CSV file" short:"o" env:"HOMECRAWL_OUTPUT"`
	Resume     bool   `help:"Append to an existing output file instead of backing it up" env:"HOMECRAWL_RESUME"`
	Limit      int    `help:"Crawl at most this many top-level targets" env:"HOMECRAWL_LIMIT"`
	Debug      bool   `help:"Enable debug logging" env:"HOMECRAWL_DEBUG"`
}

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading environment: %v\n", err)
		os.Exit(app.ExitFailure)
	}

	var flags CLIFlags
	kong.Parse(&flags,
		kong.Name("homecrawl"),
		kong.Description("Crawl new-home listings from builder websites into a CSV file."),
		kong.Vars{"sites": strings.Join(site.Names(), ", ")},
	)

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(app.ExitFailure)
	}
	if flags.Site != "" {
		// A derived output name follows the site.
		if cfg.Output == cfg.Site+".csv" {
			cfg.Output = ""
		}
		cfg.Site = flags.Site
	}
	if flags.Output != "" {
		cfg.Output = flags.Output
	}
	if flags.Resume {
		cfg.Resume = true
	}
	if flags.Limit > 0 {
		cfg.Limit = flags.Limit
	}
	if flags.Debug {
		cfg.LogLevel = "debug"
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "homecrawl",
	})
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := app.Run(ctx, app.Options{Config: cfg, Logger: logger, Out: os.Stdout})
	stop()
	os.Exit(code)
}
