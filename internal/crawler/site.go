package crawler

import (
	"context"
	"fmt"

	"github.com/go-scripts/homecrawl/internal/errsink"
	"github.com/go-scripts/homecrawl/internal/fetch"
	"github.com/go-scripts/homecrawl/internal/record"
)

// Target is one unit of top-level traversal: a region, or a region and one
// of its markets.
type Target struct {
	Region string
	Market string
}

func (t Target) String() string {
	if t.Market == "" {
		return t.Region
	}
	return t.Region + "/" + t.Market
}

// RecordExtractor turns a fetched leaf page into a record. Missing optional
// elements must produce empty fields, not errors.
type RecordExtractor interface {
	Extract(page *fetch.Page) (record.Record, error)
}

// ExtractorFunc adapts a function to RecordExtractor.
type ExtractorFunc func(page *fetch.Page) (record.Record, error)

func (f ExtractorFunc) Extract(page *fetch.Page) (record.Record, error) {
	return f(page)
}

// Pagination describes a "load more" trigger on an index page.
type Pagination struct {
	Trigger   string
	MaxClicks int
}

// Level describes one index page type in a site's hierarchy. The links
// collected on the last level are leaves.
type Level struct {
	Name string
	// Category is used for fetch failures of pages at this level.
	Category errsink.Category
	// Container selects the cards; Link selects the anchor inside a card.
	// An empty Link means the card is the anchor.
	Container string
	Link      string
	// PathPrefix, when set, drops links whose path does not start with it.
	PathPrefix string
	// WaitFor is a selector to wait for before reading the page.
	WaitFor string
	// Consent is a cookie dialog button to dismiss, if present.
	Consent    string
	Pagination *Pagination
}

// Site is everything the crawler needs to know about one builder website.
type Site struct {
	Name     string
	Targets  []Target
	IndexURL func(Target) string
	Levels   []Level

	// Fetcher loads index pages. It may also implement fetch.Interactive.
	Fetcher fetch.PageFetcher
	// LeafFetcher loads leaf pages; defaults to Fetcher.
	LeafFetcher fetch.PageFetcher
	Extractor   RecordExtractor
	// Columns is the output column order; defaults to record.Columns.
	Columns []string
}

// Validate reports configuration mistakes before a run starts.
func (s *Site) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("site has no name")
	case len(s.Levels) == 0:
		return fmt.Errorf("site %s has no levels", s.Name)
	case s.IndexURL == nil:
		return fmt.Errorf("site %s has no index URL builder", s.Name)
	case s.Fetcher == nil:
		return fmt.Errorf("site %s has no fetcher", s.Name)
	case s.Extractor == nil:
		return fmt.Errorf("site %s has no extractor", s.Name)
	}
	for i, l := range s.Levels {
		if l.Container == "" {
			return fmt.Errorf("site %s level %d (%s) has no container selector", s.Name, i, l.Name)
		}
	}
	return nil
}

func (s *Site) leafFetcher() fetch.PageFetcher {
	if s.LeafFetcher != nil {
		return s.LeafFetcher
	}
	return s.Fetcher
}

// Persister stores records.
type Persister interface {
	Append(ctx context.Context, rec record.Record) error
}
