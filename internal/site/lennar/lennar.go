// Package lennar crawls lennar.com. Each state and market has one listing
// page that grows with a "Load more homes" button; homesite pages are
// server rendered and fetched over plain HTTP.
package lennar

import (
	"fmt"
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
	Name    = "lennar"
	Builder = "Lennar"
	BaseURL = "https://www.lennar.com"

	ConsentButton  = "#onetrust-accept-btn-handler"
	LoadMoreButton = "button[aria-label='Load more homes']"
	HomesiteCard   = "a.HomesiteCard_link__CyDpK[href]"

	addressWrapper = ".HomesiteDetailsInfoV2_supplementalAddressWrapper__k0gEc"
)

// Markets maps each state code to its market codes, in crawl order.
var Markets = []config.Market{
	{Region: "AL", Codes: []string{"BRM", "PEN", "HUN", "TUS"}},
	{Region: "AZ", Codes: []string{"PHO", "TUC"}},
	{Region: "CA", Codes: []string{"CCA", "INL", "LSA", "ORA", "DER", "SAC", "SDO", "SFR", "SFM"}},
	{Region: "CO", Codes: []string{"COS", "DEN"}},
	{Region: "DE", Codes: []string{"NCC", "SUX"}},
	{Region: "FL", Codes: []string{"FTL", "PEN", "JAX", "MIA", "FTM", "OCA", "ORL", "PLM", "SAR", "SPA", "TAM", "TRE"}},
	{Region: "IL", Codes: []string{"CHI"}},
	{Region: "MD", Codes: []string{"CMD", "EAS", "MDC", "SMD"}},
	{Region: "MN", Codes: []string{"MIN", "RCT"}},
	{Region: "NC", Codes: []string{"CHA", "RAL", "WLM", "WSN"}},
	{Region: "NJ", Codes: []string{"CNJ"}},
	{Region: "NV", Codes: []string{"LVE", "REN"}},
	{Region: "NY", Codes: []string{"NYS"}},
	{Region: "PA", Codes: []string{"ADM", "PHI"}},
	{Region: "SC", Codes: []string{"CHR", "CHA", "CLM", "GRN", "HHB", "MYB"}},
	{Region: "TX", Codes: []string{"AUS", "CPC", "DAL", "HOU", "SAN", "TEP", "THC"}},
	{Region: "VA", Codes: []string{"RVA", "VDC", "WIL"}},
	{Region: "GA", Codes: []string{"ATL", "MID", "SAV"}},
	{Region: "WA", Codes: []string{"INW", "SEA", "VAN"}},
	{Region: "OR", Codes: []string{"COR", "POT", "WMV"}},
	{Region: "TN", Codes: []string{"CHT", "NAS"}},
	{Region: "IN", Codes: []string{"INP", "NWI"}},
	{Region: "UT", Codes: []string{"SLC", "STG"}},
	{Region: "WV", Codes: []string{"BER", "JFC"}},
	{Region: "ID", Codes: []string{"BOI", "INW"}},
	{Region: "WI", Codes: []string{"MAD"}},
	{Region: "OK", Codes: []string{"OKL", "STW", "TUL"}},
	{Region: "AR", Codes: []string{"FTS", "JON", "LIT", "NWA"}},
	{Region: "KS", Codes: []string{"KCK"}},
	{Region: "MO", Codes: []string{"KCM"}},
}

var (
	bedroomsRe = regexp.MustCompile(`(\d+)\s*bd`)
	halfBathRe = regexp.MustCompile(`(\d+)\s*half\s*ba`)
	fullBathRe = regexp.MustCompile(`(\d+)\s*ba`)
	garageRe   = regexp.MustCompile(`(\d+)\s*Car Garage`)
	sqftRe     = regexp.MustCompile(`([\d,]+)\s*ft²`)
	zipRe      = regexp.MustCompile(`(\d{5})`)
	digitsRe   = regexp.MustCompile(`(\d+)`)
	storyRe    = regexp.MustCompile(`(\d+)\s*Story`)
)

// DefaultTargets returns one target per state and market.
func DefaultTargets() []crawler.Target {
	var targets []crawler.Target
	for _, m := range Markets {
		for _, code := range m.Codes {
			targets = append(targets, crawler.Target{Region: m.Region, Market: code})
		}
	}
	return targets
}

// IndexURL is the find-a-home listing of one market.
func IndexURL(t crawler.Target) string {
	return fmt.Sprintf("%s/find-a-home?state=%s&market=%s",
		BaseURL, url.QueryEscape(t.Region), url.QueryEscape(t.Market))
}

// Levels describes the single market listing level.
func Levels(maxClicks int) []crawler.Level {
	return []crawler.Level{{
		Name:       "market",
		Category:   errsink.CategoryCommunity,
		Container:  HomesiteCard,
		PathPrefix: "/new-homes",
		Consent:    ConsentButton,
		Pagination: &crawler.Pagination{Trigger: LoadMoreButton, MaxClicks: maxClicks},
	}}
}

// NewSite assembles the site around the given fetchers.
func NewSite(cfg config.Config, index, leaf fetch.PageFetcher) (*crawler.Site, error) {
	targets := cfg.TargetList(DefaultTargets())
	for _, t := range targets {
		if t.Market == "" {
			return nil, fmt.Errorf("lennar target %q has no market code, configure targets.markets", t.Region)
		}
	}
	return &crawler.Site{
		Name:        Name,
		Targets:     targets,
		IndexURL:    IndexURL,
		Levels:      Levels(cfg.Pagination.MaxClicks),
		Fetcher:     index,
		LeafFetcher: leaf,
		Extractor: crawler.ExtractorFunc(func(page *fetch.Page) (record.Record, error) {
			return Extract(page, time.Now())
		}),
	}, nil
}

// New starts a browser for the listing pages and returns the site with a
// cleanup func that stops it.
func New(cfg config.Config, logger *log.Logger) (*crawler.Site, func(), error) {
	// Checked before the browser starts so bad targets fail fast.
	if _, err := NewSite(cfg, nil, nil); err != nil {
		return nil, nil, err
	}
	b, err := fetch.NewBrowser(cfg.BrowserConfig(), logger)
	if err != nil {
		return nil, nil, err
	}
	s, err := NewSite(cfg, b, fetch.NewHTTP(cfg.HTTPConfig()))
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return s, b.Close, nil
}

// Extract reads one homesite page.
func Extract(page *fetch.Page, now time.Time) (record.Record, error) {
	doc, err := extract.Document(page)
	if err != nil {
		return nil, err
	}

	rec := record.New()
	rec.Set(record.DateScraped, now.Format(record.DateLayout))
	rec.Set(record.Builder, Builder)
	rec.Set(record.Brand, Builder)
	rec.Set(record.Link, page.URL)
	// /new-homes/<state>/<market>/<community>/...
	rec.Set(record.State, extract.Capitalize(extract.PathPart(page.URL, 4)))

	rec.Set(record.Community, extract.Text(doc.Find(`a[data-testid="sidebar-community-url"] span`)))

	if addr := extract.Text(doc.Find(addressWrapper + " p:nth-of-type(2)")); addr != "" {
		parts := strings.Split(addr, ",")
		rec.Set(record.Address, strings.TrimSpace(parts[0]))
		if len(parts) > 1 {
			rec.Set(record.City, strings.TrimSpace(parts[1]))
		}
		rec.Set(record.Zip, extract.Match(zipRe, addr))
	}

	if features := extract.Text(doc.Find(addressWrapper + " p:nth-of-type(1)")); features != "" {
		setFeatures(rec, features)
	}

	price := extract.StripNumber(extract.Text(doc.Find("#sidebar-price")))
	rec.Set(record.Price, extract.Match(digitsRe, price))

	rec.Set(record.HomeID, homesiteID(doc))
	rec.Set(record.Status, extract.Text(doc.Find("#homesite-status")))

	if plan := extract.Text(doc.Find(".TextButton_textbutton__bkUsl span.textLinkLargeNew")); plan != "" {
		rec.Set(record.Plan, plan)
		rec.Set(record.PlanType, strings.Fields(plan)[0])
		rec.Set(record.Floors, extract.Match(storyRe, plan))
	}
	return rec, nil
}

// setFeatures parses a summary such as "4 bd 2 ba 1 half ba 2 Car Garage
// 2,105 ft²". The half-bath phrase is taken out before full baths are read
// so "1 half ba" is never counted as a full bathroom.
func setFeatures(rec record.Record, text string) {
	rec.Set(record.Bedrooms, extract.Match(bedroomsRe, text))

	rec.Set(record.HalfBathrooms, extract.Match(halfBathRe, text))
	rest := halfBathRe.ReplaceAllString(text, " ")
	rec.Set(record.FullBathrooms, extract.Match(fullBathRe, rest))

	rec.Set(record.Garage, extract.Match(garageRe, text))
	rec.Set(record.Sqft, strings.ReplaceAll(extract.Match(sqftRe, text), ",", ""))
}

// homesiteID is the text of the paragraph after the one reading "Homesite".
func homesiteID(doc *goquery.Document) string {
	label := doc.Find("p").FilterFunction(func(_ int, p *goquery.Selection) bool {
		return strings.TrimSpace(p.Text()) == "Homesite"
	}).First()
	if label.Length() == 0 {
		return ""
	}
	return extract.Text(label.NextAllFiltered("p"))
}
