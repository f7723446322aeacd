package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Begin("Properties: ", 3)
	p.Step()
	p.Step()
	assert.InDelta(t, 2.0/3.0, p.Fraction(), 0.001)
	p.Step()
	p.End()

	out := buf.String()
	assert.Contains(t, out, "Properties: ")
	assert.Contains(t, out, "(1/3)")
	assert.Contains(t, out, "66% (2/3)")
	assert.Contains(t, out, "100% (3/3)")
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Equal(t, 0.0, p.Fraction())
}

func TestTrackerWithoutTotal(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	p.Step()
	p.End()
	assert.Empty(t, buf.String())
}

func TestSpinStopsCleanly(t *testing.T) {
	p := Discard()
	update, stop := p.Spin("Loading market page")
	update("clicked load more 1 time(s)")
	stop()
	p.Stop()
}

func TestShortURL(t *testing.T) {
	short := "https://www.lennar.com/x"
	assert.Equal(t, short, ShortURL(short))

	long := "https://www.tollbrothers.com/luxury-homes-for-sale/Arizona/Sterling-Grove-Villas/Quick-Move-In/123456"
	got := ShortURL(long)
	assert.LessOrEqual(t, len(got), 60)
	assert.True(t, strings.HasPrefix(got, "www.tollbrothers.com..."))
	assert.True(t, strings.HasSuffix(got, "/123456"))
}
