package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetch(t *testing.T) {
	var agents atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		agents.Store(r.UserAgent())
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Home 42</h1></body></html>`))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	f := NewHTTP(HTTPConfig{Timeout: 5 * time.Second, UserAgents: []string{"homecrawl-test"}})

	t.Run("ok", func(t *testing.T) {
		page, err := f.Fetch(context.Background(), server.URL+"/ok")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, page.StatusCode)
		assert.Contains(t, page.HTML, "Home 42")
		assert.False(t, page.Redirected())
		assert.Equal(t, "homecrawl-test", agents.Load())
	})

	t.Run("redirect", func(t *testing.T) {
		page, err := f.Fetch(context.Background(), server.URL+"/moved")
		require.NoError(t, err)
		assert.True(t, page.Redirected())
		assert.Equal(t, server.URL+"/ok", page.FinalURL)
	})

	for _, tc := range []struct {
		path string
		code int
	}{
		{"/gone", http.StatusNotFound},
		{"/broken", http.StatusInternalServerError},
	} {
		t.Run(tc.path, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), server.URL+tc.path)
			require.Error(t, err)
			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tc.code, se.StatusCode)
		})
	}
}

func TestHTTPFetchCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("late"))
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTP(HTTPConfig{}).Fetch(ctx, server.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPickUserAgent(t *testing.T) {
	assert.Equal(t, "only", pickUserAgent([]string{"only"}))
	assert.Contains(t, DefaultUserAgents, pickUserAgent(nil))
}
