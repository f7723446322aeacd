// Package site maps site names to their crawler definitions.
package site

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/go-scripts/homecrawl/internal/config"
	"github.com/go-scripts/homecrawl/internal/crawler"
	"github.com/go-scripts/homecrawl/internal/site/lennar"
	"github.com/go-scripts/homecrawl/internal/site/tollbrothers"
)

// Factory builds a ready-to-run site. The returned func releases whatever
// the site started, such as a browser.
type Factory func(cfg config.Config, logger *log.Logger) (*crawler.Site, func(), error)

var factories = map[string]Factory{
	tollbrothers.Name: tollbrothers.New,
	lennar.Name:       lennar.New,
}

// Names lists the known sites.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build looks up name and builds the site.
func Build(name string, cfg config.Config, logger *log.Logger) (*crawler.Site, func(), error) {
	f, ok := factories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, nil, fmt.Errorf("unknown site %q, expected one of %s", name, strings.Join(Names(), ", "))
	}
	s, cleanup, err := f(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building site %s: %w", name, err)
	}
	return s, cleanup, nil
}
