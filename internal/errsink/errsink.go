// Package errsink records failure events for one crawl run and renders the
// end-of-run summary.
package errsink

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Category classifies a failure event.
type Category string

const (
	CategoryState      Category = "state"
	CategoryCommunity  Category = "community/market"
	CategoryProperty   Category = "property"
	CategoryNoCards    Category = "no cards found"
	CategoryNoLinks    Category = "no links found"
	CategoryExtraction Category = "property/extraction"
	CategoryPersist    Category = "persistence"
	CategoryRun        Category = "run"
)

// Event is one recorded failure.
type Event struct {
	Category Category
	URL      string
	Message  string
	Time     time.Time
}

var (
	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("86"))
)

// Sink is an append-only list of events. It is safe for concurrent use so
// the shutdown path can flush it at any point.
type Sink struct {
	mu     sync.Mutex
	events []Event
	logger *log.Logger
	now    func() time.Time
}

// New returns an empty Sink. Every recorded event is also logged at error
// level when logger is non-nil.
func New(logger *log.Logger) *Sink {
	return &Sink{logger: logger, now: time.Now}
}

// Record appends an event built from err.
func (s *Sink) Record(cat Category, url string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.Add(cat, url, msg)
}

// Add appends an event with a plain message.
func (s *Sink) Add(cat Category, url, msg string) {
	s.mu.Lock()
	s.events = append(s.events, Event{Category: cat, URL: url, Message: msg, Time: s.now()})
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Error(msg, "category", string(cat), "url", url)
	}
}

// Events returns a copy of the recorded events in insertion order.
func (s *Sink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of recorded events.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Count returns the number of events of the given category.
func (s *Sink) Count(cat Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Category == cat {
			n++
		}
	}
	return n
}

// ByCategory groups events by category. Categories are ordered by their
// first occurrence; events keep insertion order within a category.
func (s *Sink) ByCategory() ([]Category, map[Category][]Event) {
	events := s.Events()
	groups := make(map[Category][]Event)
	var order []Category
	for _, e := range events {
		if _, ok := groups[e.Category]; !ok {
			order = append(order, e.Category)
		}
		groups[e.Category] = append(groups[e.Category], e)
	}
	return order, groups
}

// Flush writes the error summary to w. runID labels the report.
func (s *Sink) Flush(w io.Writer, runID string) {
	order, groups := s.ByCategory()
	if len(order) == 0 {
		fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("No errors recorded (run %s).", runID)))
		return
	}

	total := 0
	for _, evs := range groups {
		total += len(evs)
	}
	fmt.Fprintln(w, bannerStyle.Render(fmt.Sprintf("Error summary: %d errors (run %s)", total, runID)))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Category", "URL", "Error", "Time"})
	for i, cat := range order {
		evs := groups[cat]
		sort.SliceStable(evs, func(a, b int) bool { return evs[a].Time.Before(evs[b].Time) })
		for _, e := range evs {
			t.AppendRow(table.Row{string(cat), e.URL, e.Message, e.Time.Format(time.TimeOnly)})
		}
		if i < len(order)-1 {
			t.AppendSeparator()
		}
	}
	t.AppendFooter(table.Row{"", "", "total", total})
	t.Render()
}
