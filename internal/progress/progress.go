// Package progress renders leaf-level progress bars and index-page spinners.
package progress

import (
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/bubbles/progress"
)

// Tracker reports crawl progress on a terminal.
type Tracker struct {
	out  io.Writer
	bar  progress.Model
	mu   sync.Mutex
	spin *spinner.Spinner

	prefix    string
	total     int
	processed int
}

// New returns a Tracker writing to out.
func New(out io.Writer) *Tracker {
	return &Tracker{
		out: out,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
	}
}

// Discard returns a Tracker that prints nothing.
func Discard() *Tracker {
	return New(io.Discard)
}

// Begin starts a new bar for total items.
func (p *Tracker) Begin(prefix string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefix = prefix
	p.total = total
	p.processed = 0
}

// Step advances the bar by one and redraws it.
func (p *Tracker) Step() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	if p.total <= 0 {
		return
	}
	fmt.Fprint(p.out, "\r"+p.line())
}

// End finishes the current bar.
func (p *Tracker) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		fmt.Fprintln(p.out)
	}
	p.total = 0
}

// Fraction returns the completed share of the current bar.
func (p *Tracker) Fraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == 0 {
		return 0
	}
	return float64(p.processed) / float64(p.total)
}

func (p *Tracker) line() string {
	frac := float64(p.processed) / float64(p.total)
	return fmt.Sprintf("%s%s %d%% (%d/%d)", p.prefix, p.bar.ViewAs(frac), int(frac*100), p.processed, p.total)
}

// Spin shows a spinner with msg until the returned stop function is called.
// The spinner only animates on a terminal.
func (p *Tracker) Spin(msg string) (update func(string), stop func()) {
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(p.out))
	s.Suffix = " " + msg
	s.Start()

	p.mu.Lock()
	p.spin = s
	p.mu.Unlock()

	update = func(m string) {
		s.Lock()
		s.Suffix = " " + msg + " → " + m
		s.Unlock()
	}
	stop = func() {
		s.Stop()
		p.mu.Lock()
		if p.spin == s {
			p.spin = nil
		}
		p.mu.Unlock()
	}
	return update, stop
}

// Stop halts any running spinner. Safe to call from the shutdown path.
func (p *Tracker) Stop() {
	p.mu.Lock()
	s := p.spin
	p.spin = nil
	p.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// ShortURL trims long URLs to host plus the tail of the path.
func ShortURL(raw string) string {
	const maxLen = 60
	if len(raw) <= maxLen {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "..." + raw[len(raw)-maxLen:]
	}
	host, path := u.Host, u.Path
	if room := maxLen - len(host) - 3; room > 0 && len(path) > room {
		path = "..." + path[len(path)-room:]
	}
	return host + path
}
