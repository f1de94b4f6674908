package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeychilson/docsurf/cache"
	"github.com/joeychilson/docsurf/dispatch"
	"github.com/joeychilson/docsurf/logger"
)

func testPool(t *testing.T) *dispatch.Pool {
	t.Helper()
	pool, err := dispatch.NewPool(dispatch.Options{AllowLocal: true})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestFetchScrape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body><h1>Hello</h1></body></html>"))
	}))
	defer server.Close()

	fetch := NewFetch(testPool(t), nil, "test-agent", logger.Noop())

	result, err := fetch.Scrape(context.Background(), &Request{URL: server.URL, Flags: NewFlagSet()})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Contains(t, result.HTML, "<h1>Hello</h1>")
	assert.Equal(t, "basic", result.ProxyUsed)
}

func TestFetchScrapeMergesHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "custom-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "value", r.Header.Get("X-Custom"))
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	fetch := NewFetch(testPool(t), nil, "test-agent", logger.Noop())

	_, err := fetch.Scrape(context.Background(), &Request{
		URL:     server.URL,
		Headers: map[string]string{"User-Agent": "custom-agent", "X-Custom": "value"},
		Flags:   NewFlagSet(),
	})
	require.NoError(t, err)
}

func TestFetchConditionalGet(t *testing.T) {
	const etag = `"v1"`
	var requests int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>cached page</body></html>"))
	}))
	defer server.Close()

	validators := cache.NewMemoryCache(cache.Config{})
	defer validators.Close()

	fetch := NewFetch(testPool(t), validators, "test-agent", logger.Noop())

	first, err := fetch.Scrape(context.Background(), &Request{URL: server.URL, Flags: NewFlagSet()})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Empty(t, first.CacheState)

	second, err := fetch.Scrape(context.Background(), &Request{URL: server.URL, Flags: NewFlagSet()})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "revalidated", second.CacheState)
	assert.Contains(t, second.HTML, "cached page")
	assert.Equal(t, 2, requests)
}

func TestFetchCallerConditionalHeadersWin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"caller"`, r.Header.Get("If-None-Match"))
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	validators := cache.NewMemoryCache(cache.Config{})
	defer validators.Close()
	require.NoError(t, validators.Set(context.Background(), &cache.Entry{
		URL:  server.URL,
		ETag: `"cached"`,
		Body: []byte("old"),
	}))

	fetch := NewFetch(testPool(t), validators, "test-agent", logger.Noop())

	_, err := fetch.Scrape(context.Background(), &Request{
		URL:     server.URL,
		Headers: map[string]string{"If-None-Match": `"caller"`},
		Flags:   NewFlagSet(),
	})
	require.NoError(t, err)
}

func TestFetchEscalatesOnPDFContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	fetch := NewFetch(testPool(t), nil, "test-agent", logger.Noop())

	_, err := fetch.Scrape(context.Background(), &Request{URL: server.URL, Flags: NewFlagSet()})
	var escalation *FeatureEscalation
	require.ErrorAs(t, err, &escalation)
	assert.Equal(t, []FeatureFlag{FeaturePDF}, escalation.Flags)
}

func TestFetchNoEscalationWhenFlagActive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	fetch := NewFetch(testPool(t), nil, "test-agent", logger.Noop())

	result, err := fetch.Scrape(context.Background(), &Request{URL: server.URL, Flags: NewFlagSet(FeaturePDF)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestFetchFollowsRedirects(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>destination</html>"))
	}))
	defer target.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer redirector.Close()

	fetch := NewFetch(testPool(t), nil, "test-agent", logger.Noop())

	result, err := fetch.Scrape(context.Background(), &Request{URL: redirector.URL, Flags: NewFlagSet()})
	require.NoError(t, err)
	assert.Contains(t, result.FinalURL, target.URL)
	assert.Contains(t, result.HTML, "destination")
}

func TestFetchBlockedEgress(t *testing.T) {
	pool, err := dispatch.NewPool(dispatch.Options{})
	require.NoError(t, err)
	defer pool.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	fetch := NewFetch(pool, nil, "test-agent", logger.Noop())

	_, err = fetch.Scrape(context.Background(), &Request{URL: server.URL, Flags: NewFlagSet()})
	require.Error(t, err)
	var insecure *dispatch.InsecureConnectionError
	assert.True(t, errors.As(err, &insecure))
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want string
	}{
		{
			name: "plain utf-8",
			body: []byte("<html><body>héllo</body></html>"),
			want: "héllo",
		},
		{
			name: "declared utf-8",
			body: []byte(`<html><head><meta charset="utf-8"></head><body>ok</body></html>`),
			want: "ok",
		},
		{
			name: "iso-8859-1",
			body: []byte("<html><head><meta charset=\"iso-8859-1\"></head><body>caf\xe9</body></html>"),
			want: "café",
		},
		{
			name: "unknown charset falls back",
			body: []byte(`<html><head><meta charset="not-a-charset"></head><body>ok</body></html>`),
			want: "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, decodeBody(tt.body), tt.want)
		})
	}
}
