// Package tollbrothers crawls tollbrothers.com: state pages list
// communities, community pages list home designs and quick move-in homes.
package tollbrothers

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"

	"github.com/go-scripts/homecrawl/internal/config"
	"github.com/go-scripts/homecrawl/internal/crawler"
	"github.com/go-scripts/homecrawl/internal/errsink"
	"github.com/go-scripts/homecrawl/internal/fetch"
	"github.com/go-scripts/homecrawl/internal/record"
	"github.com/go-scripts/homecrawl/internal/site/extract"
)

const (
	Name    = "tollbrothers"
	Builder = "Toll Brothers"
	BaseURL = "https://www.tollbrothers.com"

	metroBlock    = ".MetroBlock_metroBlock__lkPmw"
	communityCard = ".ModelCard_modelCardContainer__lXz5R"

	heroSelector  = `aside[class*="CommunityHero_heroDetails"]`
	priceSelector = "span.price"
	statSelector  = `div[class*="CommunityStatBar_statBox"]`
)

// States are crawled in this order unless the config says otherwise.
var States = []string{
	"Arizona", "California", "Colorado", "Connecticut", "Delaware", "Florida",
	"Georgia", "Idaho", "Maryland", "Massachusetts", "Michigan", "Nevada",
	"New Jersey", "New York", "North Carolina", "Oregon", "Pennsylvania",
	"South Carolina", "Tennessee", "Texas", "Utah", "Virginia", "Washington",
}

var (
	cityRe = regexp.MustCompile(`^([^,]+),`)
	zipRe  = regexp.MustCompile(`\d{5}`)
)

// DefaultTargets returns one target per state.
func DefaultTargets() []crawler.Target {
	targets := make([]crawler.Target, len(States))
	for i, s := range States {
		targets[i] = crawler.Target{Region: s}
	}
	return targets
}

// IndexURL is the state landing page.
func IndexURL(t crawler.Target) string {
	return BaseURL + "/luxury-homes/" + url.PathEscape(t.Region)
}

// Levels describes state pages, then community pages.
func Levels() []crawler.Level {
	return []crawler.Level{
		{
			Name:      "state",
			Category:  errsink.CategoryState,
			Container: metroBlock + " a.SearchProductCard_view__nYL3F",
			WaitFor:   metroBlock,
		},
		{
			Name:      "community",
			Category:  errsink.CategoryCommunity,
			Container: communityCard,
			Link:      "a",
			WaitFor:   communityCard,
		},
	}
}

// NewSite assembles the site around the given fetchers.
func NewSite(cfg config.Config, index, leaf fetch.PageFetcher) *crawler.Site {
	return &crawler.Site{
		Name:        Name,
		Targets:     cfg.TargetList(DefaultTargets()),
		IndexURL:    IndexURL,
		Levels:      Levels(),
		Fetcher:     index,
		LeafFetcher: leaf,
		Extractor: crawler.ExtractorFunc(func(page *fetch.Page) (record.Record, error) {
			return Extract(page, time.Now())
		}),
	}
}

// New starts a browser and returns the site with a cleanup func that stops
// it. Every page is rendered; leaf pages wait for the detail blocks.
func New(cfg config.Config, logger *log.Logger) (*crawler.Site, func(), error) {
	b, err := fetch.NewBrowser(cfg.BrowserConfig(), logger)
	if err != nil {
		return nil, nil, err
	}
	leaf := fetch.Waiting{
		Interactive: b,
		Selectors:   []string{heroSelector, priceSelector, statSelector},
		Logger:      logger,
	}
	return NewSite(cfg, b, leaf), b.Close, nil
}

// Extract reads one home design or quick move-in page. State, community,
// home ID and status come from the URL; the rest from the page.
func Extract(page *fetch.Page, now time.Time) (record.Record, error) {
	doc, err := extract.Document(page)
	if err != nil {
		return nil, err
	}

	link := page.URL
	rec := record.New()
	rec.Set(record.DateScraped, now.Format(record.DateLayout))
	rec.Set(record.Builder, Builder)
	rec.Set(record.Brand, Builder)
	rec.Set(record.Link, link)
	rec.Set(record.State, extract.PathPart(link, 4))
	rec.Set(record.Community, strings.ReplaceAll(extract.PathPart(link, 5), "-", " "))
	rec.Set(record.HomeID, extract.LastPathPart(link))
	if isQuickMoveIn(link) {
		rec.Set(record.Status, "Quick Move In")
	} else {
		rec.Set(record.Status, "Home Design")
	}

	// The hero reads "street, city, ST zip | County".
	if hero := extract.Text(doc.Find(heroSelector)); strings.Contains(hero, "|") {
		rec.Set(record.Address, strings.TrimSpace(strings.SplitN(hero, "|", 2)[0]))
	}

	doc.Find("p.CommunityContactBar_nameSalesTeam__bKVor").Each(func(_ int, p *goquery.Selection) {
		text := extract.Text(p)
		if city := extract.Match(cityRe, text); city != "" {
			rec.Set(record.City, strings.TrimSpace(city))
		}
		if zip := zipRe.FindString(text); zip != "" {
			rec.Set(record.Zip, zip)
		}
	})

	rec.Set(record.Price, extract.StripNumber(extract.Text(doc.Find(priceSelector))))

	planType := extract.Text(doc.Find("ul li span"))
	rec.Set(record.PlanType, planType)
	rec.Set(record.Plan, planType)

	doc.Find(statSelector).Each(func(_ int, stat *goquery.Selection) {
		title := stat.Find(`p[class*="CommunityStatBar_statTitle"]`)
		if title.Length() == 0 {
			return
		}
		if col := statColumn(title.First().Text()); col != "" {
			value := extract.Text(stat.Find(`p[class*="CommunityStatBar_statNumber"]`))
			if col == record.Sqft {
				value = extract.StripNumber(value)
			}
			rec.Set(col, value)
		}
	})
	return rec, nil
}

// statColumn maps a stat box title to its column. "Half Baths" is checked
// before "Bathrooms" so the two never collide.
func statColumn(title string) string {
	switch {
	case strings.Contains(title, "Bedrooms"):
		return record.Bedrooms
	case strings.Contains(title, "Half Baths"):
		return record.HalfBathrooms
	case strings.Contains(title, "Bathrooms"):
		return record.FullBathrooms
	case strings.Contains(title, "Garages"):
		return record.Garage
	case strings.Contains(title, "Square Footage"):
		return record.Sqft
	case strings.Contains(title, "Stories"):
		return record.Floors
	}
	return ""
}

func isQuickMoveIn(link string) bool {
	for _, part := range strings.Split(link, "/") {
		if part == "Quick-Move-In" {
			return true
		}
	}
	return false
}
