package errsink

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndCount(t *testing.T) {
	s := New(nil)
	s.Record(CategoryProperty, "https://example.com/p/1", errors.New("gave up after 3 attempts"))
	s.Add(CategoryNoLinks, "https://example.com/state/AZ", "no links in 4 cards")
	s.Record(CategoryProperty, "https://example.com/p/2", nil)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.Count(CategoryProperty))
	assert.Equal(t, 1, s.Count(CategoryNoLinks))
	assert.Equal(t, 0, s.Count(CategoryExtraction))

	events := s.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "gave up after 3 attempts", events[0].Message)
	assert.Empty(t, events[2].Message)
	assert.False(t, events[0].Time.IsZero())
}

func TestByCategoryKeepsFirstSeenOrder(t *testing.T) {
	s := New(nil)
	s.Add(CategoryExtraction, "u1", "a")
	s.Add(CategoryState, "u2", "b")
	s.Add(CategoryExtraction, "u3", "c")

	order, groups := s.ByCategory()
	assert.Equal(t, []Category{CategoryExtraction, CategoryState}, order)
	assert.Len(t, groups[CategoryExtraction], 2)
	assert.Len(t, groups[CategoryState], 1)
}

func TestFlush(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		New(nil).Flush(&buf, "run-1")
		assert.Contains(t, buf.String(), "No errors recorded")
		assert.Contains(t, buf.String(), "run-1")
	})

	t.Run("grouped", func(t *testing.T) {
		s := New(nil)
		base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
		tick := 0
		s.now = func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		}
		s.Add(CategoryCommunity, "https://example.com/c/1", "timeout")
		s.Add(CategoryExtraction, "https://example.com/p/9", "price parse")

		var buf bytes.Buffer
		s.Flush(&buf, "run-2")
		out := buf.String()
		assert.Contains(t, out, "2 errors")
		assert.Contains(t, out, "community/market")
		assert.Contains(t, out, "https://example.com/c/1")
		assert.Contains(t, out, "property/extraction")
		assert.Contains(t, out, "price parse")
	})
}

func TestConcurrentAdd(t *testing.T) {
	s := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add(CategoryProperty, "u", "m")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, s.Len())
}
