// Package config loads the crawler configuration from YAML and fills in
// defaults for anything left out.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/go-scripts/homecrawl/internal/crawler"
	"github.com/go-scripts/homecrawl/internal/fetch"
	"github.com/go-scripts/homecrawl/internal/retry"
)

// Config is the full run configuration.
type Config struct {
	Site       string   `yaml:"site"`
	Output     string   `yaml:"output"`
	Resume     bool     `yaml:"resume"`
	LogLevel   string   `yaml:"log_level"`
	UserAgents []string `yaml:"user_agents"`
	// Limit caps the number of top-level targets; 0 means all.
	Limit int `yaml:"limit"`

	Browser    Browser    `yaml:"browser"`
	HTTP       HTTP       `yaml:"http"`
	Retry      Retry      `yaml:"retry"`
	Persist    Persist    `yaml:"persist"`
	Pauses     Pauses     `yaml:"pauses"`
	Pagination Pagination `yaml:"pagination"`
	Targets    Targets    `yaml:"targets"`
}

type Browser struct {
	Headless          bool          `yaml:"headless"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ElementTimeout    time.Duration `yaml:"element_timeout"`
	ScrollPause       time.Duration `yaml:"scroll_pause"`
}

type HTTP struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Retry holds the attempt budgets for index and leaf pages.
type Retry struct {
	IndexAttempts int         `yaml:"index_attempts"`
	IndexDelay    retry.Range `yaml:"index_delay"`
	LeafAttempts  int         `yaml:"leaf_attempts"`
	LeafDelay     retry.Range `yaml:"leaf_delay"`
}

// Persist controls retries of a locked output file.
type Persist struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// Pauses are the randomized waits between requests.
type Pauses struct {
	Leaf      retry.Range `yaml:"leaf"`
	Community retry.Range `yaml:"community"`
	Target    retry.Range `yaml:"target"`
	Settle    retry.Range `yaml:"settle"`
}

type Pagination struct {
	MaxClicks int `yaml:"max_clicks"`
}

// Targets overrides a site's built-in enumeration. Markets wins over
// Regions when both are set.
type Targets struct {
	Regions []string `yaml:"regions"`
	Markets Markets  `yaml:"markets"`
}

// Market is a region and its market codes.
type Market struct {
	Region string
	Codes  []string
}

// Markets is an ordered region → market codes mapping.
type Markets []Market

// UnmarshalYAML keeps the mapping in file order. A region may list its codes
// or give a single code as a scalar.
func (m *Markets) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var items yaml.MapSlice
	if err := unmarshal(&items); err != nil {
		return err
	}

	out := make(Markets, 0, len(items))
	for _, item := range items {
		region := fmt.Sprint(item.Key)
		var codes []string
		switch v := item.Value.(type) {
		case nil:
		case string:
			codes = []string{v}
		case []interface{}:
			for _, c := range v {
				codes = append(codes, fmt.Sprint(c))
			}
		default:
			return fmt.Errorf("markets for %s: expected a list of codes, got %T", region, item.Value)
		}
		out = append(out, Market{Region: region, Codes: codes})
	}
	*m = out
	return nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Site:     "tollbrothers",
		LogLevel: "info",
		Browser: Browser{
			Headless:          true,
			NavigationTimeout: 60 * time.Second,
			ElementTimeout:    10 * time.Second,
			ScrollPause:       500 * time.Millisecond,
		},
		HTTP: HTTP{Timeout: 30 * time.Second},
		Retry: Retry{
			IndexAttempts: 3,
			IndexDelay:    retry.Range{Min: 3 * time.Second, Max: 5 * time.Second},
			LeafAttempts:  3,
			LeafDelay:     retry.Range{Min: 3 * time.Second, Max: 5 * time.Second},
		},
		Persist: Persist{Attempts: 5, Delay: 3 * time.Second},
		Pauses: Pauses{
			Leaf:      retry.Range{Min: 500 * time.Millisecond, Max: 2 * time.Second},
			Community: retry.Range{Min: 1 * time.Second, Max: 3 * time.Second},
			Target:    retry.Range{Min: 3 * time.Second, Max: 7 * time.Second},
			Settle:    retry.Range{Min: 2 * time.Second, Max: 4 * time.Second},
		},
		Pagination: Pagination{MaxClicks: 20},
	}
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
// Output defaults to "<site>.csv".
func (c Config) WithDefaults() Config {
	d := Default()
	if c.Site == "" {
		c.Site = d.Site
	}
	if c.Output == "" {
		c.Output = c.Site + ".csv"
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = d.Browser.NavigationTimeout
	}
	if c.Browser.ElementTimeout <= 0 {
		c.Browser.ElementTimeout = d.Browser.ElementTimeout
	}
	if c.Browser.ScrollPause <= 0 {
		c.Browser.ScrollPause = d.Browser.ScrollPause
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = d.HTTP.Timeout
	}
	if c.Retry.IndexAttempts <= 0 {
		c.Retry.IndexAttempts = d.Retry.IndexAttempts
	}
	if c.Retry.LeafAttempts <= 0 {
		c.Retry.LeafAttempts = d.Retry.LeafAttempts
	}
	if c.Persist.Attempts <= 0 {
		c.Persist.Attempts = d.Persist.Attempts
	}
	if c.Pagination.MaxClicks <= 0 {
		c.Pagination.MaxClicks = d.Pagination.MaxClicks
	}
	return c
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", c.Limit)
	}
	ranges := map[string]retry.Range{
		"retry.index_delay": c.Retry.IndexDelay,
		"retry.leaf_delay":  c.Retry.LeafDelay,
		"pauses.leaf":       c.Pauses.Leaf,
		"pauses.community":  c.Pauses.Community,
		"pauses.target":     c.Pauses.Target,
		"pauses.settle":     c.Pauses.Settle,
	}
	for name, r := range ranges {
		if r.Min < 0 || r.Max < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
		if r.Max != 0 && r.Max < r.Min {
			return fmt.Errorf("%s: max %s is below min %s", name, r.Max, r.Min)
		}
	}
	return nil
}

// Load reads the YAML file at path on top of Default. A missing file is not
// an error; the defaults are used as they are.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg.WithDefaults(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg.WithDefaults(), nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg.WithDefaults(), nil
}

// LoadEnv loads .env files into the process environment, .env.local first so
// it takes precedence. Missing files are ignored.
func LoadEnv() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", name, err)
		}
	}
	return nil
}

// TargetList returns the configured enumeration, or defaults when none is
// configured, capped at Limit.
func (c Config) TargetList(defaults []crawler.Target) []crawler.Target {
	var targets []crawler.Target
	switch {
	case len(c.Targets.Markets) > 0:
		for _, m := range c.Targets.Markets {
			for _, code := range m.Codes {
				targets = append(targets, crawler.Target{Region: m.Region, Market: code})
			}
		}
	case len(c.Targets.Regions) > 0:
		for _, r := range c.Targets.Regions {
			targets = append(targets, crawler.Target{Region: r})
		}
	default:
		targets = append(targets, defaults...)
	}

	if c.Limit > 0 && len(targets) > c.Limit {
		targets = targets[:c.Limit]
	}
	return targets
}

// CrawlerConfig maps the retry and pause settings onto the orchestrator.
func (c Config) CrawlerConfig() crawler.Config {
	return crawler.Config{
		IndexAttempts:   c.Retry.IndexAttempts,
		IndexRetryDelay: c.Retry.IndexDelay,
		LeafAttempts:    c.Retry.LeafAttempts,
		LeafRetryDelay:  c.Retry.LeafDelay,
		LeafPause:       c.Pauses.Leaf,
		GroupPause:      c.Pauses.Community,
		TargetPause:     c.Pauses.Target,
		Settle:          c.Pauses.Settle,
	}
}

// BrowserConfig returns the settings for the rendered fetcher.
func (c Config) BrowserConfig() fetch.BrowserConfig {
	return fetch.BrowserConfig{
		Headless:          c.Browser.Headless,
		NavigationTimeout: c.Browser.NavigationTimeout,
		ElementTimeout:    c.Browser.ElementTimeout,
		ScrollPause:       c.Browser.ScrollPause,
		UserAgents:        c.UserAgents,
	}
}

// HTTPConfig returns the settings for the plain HTTP fetcher.
func (c Config) HTTPConfig() fetch.HTTPConfig {
	return fetch.HTTPConfig{Timeout: c.HTTP.Timeout, UserAgents: c.UserAgents}
}
