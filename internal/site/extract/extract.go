// Package extract holds the small text helpers shared by the site
// extractors.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/go-scripts/homecrawl/internal/fetch"
)

// Document parses the HTML of page.
func Document(page *fetch.Page) (*goquery.Document, error) {
	if page == nil {
		return nil, fmt.Errorf("no page")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", page.URL, err)
	}
	return doc, nil
}

// Text returns the text of the first element of sel with whitespace runs
// collapsed. It is empty when sel matched nothing.
func Text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.First().Text()), " ")
}

// Match returns the first capture group of re in s, or "".
func Match(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// StripNumber removes currency symbols and thousands separators.
func StripNumber(s string) string {
	return strings.NewReplacer("$", "", ",", "").Replace(s)
}

// PathPart returns segment i of raw split on "/", so for
// "https://host/a/b" index 3 is "a". Out of range yields "".
func PathPart(raw string, i int) string {
	parts := strings.Split(raw, "/")
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}

// LastPathPart returns the final "/" separated segment of raw.
func LastPathPart(raw string) string {
	parts := strings.Split(raw, "/")
	return parts[len(parts)-1]
}

// Capitalize upper-cases the first letter of s and lower-cases the rest.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}
