package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><body>
<div id="cards"><div class="card">Home 1</div></div>
<button id="more">Load more homes</button>
<script>
	let shown = 1;
	document.getElementById("more").addEventListener("click", () => {
		shown++;
		const card = document.createElement("div");
		card.className = "card";
		card.textContent = "Home " + shown;
		document.getElementById("cards").appendChild(card);
		if (shown >= 3) {
			document.getElementById("more").remove();
		}
	});
</script>
</body></html>`

func newTestBrowser(t *testing.T) *Browser {
	t.Helper()
	found := false
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			found = true
			break
		}
	}
	if !found {
		t.Skip("no Chrome or Chromium binary on PATH")
	}

	b, err := NewBrowser(BrowserConfig{
		Headless:          true,
		NavigationTimeout: 20 * time.Second,
		ElementTimeout:    time.Second,
		ScrollPause:       50 * time.Millisecond,
		UserAgents:        []string{"homecrawl-test"},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func listingServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(listingHTML))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestBrowserSession(t *testing.T) {
	b := newTestBrowser(t)
	server := listingServer(t)
	ctx := context.Background()

	s, err := b.Open(ctx, server.URL+"/listing")
	require.NoError(t, err)
	defer s.Close()

	found, err := s.WaitFor(ctx, "#cards")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.WaitFor(ctx, "#no-such-element")
	require.NoError(t, err)
	assert.False(t, found)

	clicks := 0
	for {
		found, err := s.Locate(ctx, "#more")
		require.NoError(t, err)
		if !found {
			break
		}
		require.NoError(t, s.Click(ctx, "#more"))
		clicks++
		require.Less(t, clicks, 10, "load more never went away")
	}
	assert.Equal(t, 2, clicks)

	page, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/listing", page.URL)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.False(t, page.Redirected())
	assert.Equal(t, 3, strings.Count(page.HTML, `class="card"`))
	assert.NotContains(t, page.HTML, "Load more homes")
}

func TestBrowserFetch(t *testing.T) {
	b := newTestBrowser(t)
	server := listingServer(t)

	t.Run("ok", func(t *testing.T) {
		page, err := b.Fetch(context.Background(), server.URL+"/listing")
		require.NoError(t, err)
		assert.Contains(t, page.HTML, "Home 1")
	})

	t.Run("waiting", func(t *testing.T) {
		w := Waiting{Interactive: b, Selectors: []string{".card", "#absent"}}
		page, err := w.Fetch(context.Background(), server.URL+"/listing")
		require.NoError(t, err)
		assert.Contains(t, page.HTML, "Load more homes")
	})

	t.Run("status error", func(t *testing.T) {
		_, err := b.Fetch(context.Background(), server.URL+"/gone")
		var se *StatusError
		require.True(t, errors.As(err, &se), "got %v", err)
		assert.Equal(t, http.StatusNotFound, se.StatusCode)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := b.Fetch(ctx, server.URL+"/listing")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
