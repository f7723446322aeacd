// Package linkset collects de-duplicated absolute URLs from listing cards.
package linkset

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Set is a set of absolute URLs discovered at one traversal level.
type Set struct {
	urls map[string]struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{urls: make(map[string]struct{})}
}

// Add inserts u and reports whether it was new.
func (s *Set) Add(u string) bool {
	if _, ok := s.urls[u]; ok {
		return false
	}
	s.urls[u] = struct{}{}
	return true
}

// Has reports whether u is in the set.
func (s *Set) Has(u string) bool {
	_, ok := s.urls[u]
	return ok
}

// Len returns the number of URLs in the set.
func (s *Set) Len() int {
	return len(s.urls)
}

// Slice returns the URLs sorted, so iteration order is stable between runs.
func (s *Set) Slice() []string {
	out := make([]string, 0, len(s.urls))
	for u := range s.urls {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Filter returns a new Set holding the URLs for which keep returns true.
func (s *Set) Filter(keep func(u string) bool) *Set {
	out := New()
	for u := range s.urls {
		if keep(u) {
			out.Add(u)
		}
	}
	return out
}

// HasPathPrefix reports whether the path of u starts with prefix.
func HasPathPrefix(u, prefix string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return strings.HasPrefix(parsed.Path, prefix)
}

// Result is the outcome of scanning one index page.
type Result struct {
	Set *Set
	// Containers is the number of card containers seen, with or without a link.
	Containers int
}

// Collect resolves the href of each container's link element against base.
// An empty hrefSelector means the container is the link itself. Containers
// without a usable link are skipped.
func Collect(containers *goquery.Selection, hrefSelector, base string) Result {
	res := Result{Set: New()}
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}

	containers.Each(func(_ int, card *goquery.Selection) {
		res.Containers++

		link := card
		if hrefSelector != "" {
			link = card.Find(hrefSelector).First()
		}
		if link.Length() == 0 {
			return
		}
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		abs, ok := Resolve(baseURL, href)
		if !ok {
			return
		}
		res.Set.Add(abs)
	})
	return res
}

// Resolve turns href into an absolute http(s) URL relative to base. Fragments
// are dropped so the same page is not visited twice.
func Resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, p := range []string{"javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(lower, p) {
			return "", false
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if !ref.IsAbs() || (ref.Scheme != "http" && ref.Scheme != "https") {
		return "", false
	}
	ref.Fragment = ""
	return ref.String(), true
}
