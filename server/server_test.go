package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeychilson/docsurf/crawl"
	"github.com/joeychilson/docsurf/dispatch"
	"github.com/joeychilson/docsurf/logger"
	"github.com/joeychilson/docsurf/scrape"
)

func newTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	pool, err := dispatch.NewPool(dispatch.Options{AllowLocal: true})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	scraper := scrape.New(scrape.Config{UserAgent: "docsurf-test"}, pool, nil, nil, nil, logger.Noop())
	crawler := crawl.New(scraper, nil, nil, nil, nil, 2, logger.Noop())

	s, err := New(scraper, crawler, logger.Noop(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestScrapeEndpoint(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Hello</h1><p>world of content</p></body></html>`))
	}))
	defer site.Close()

	s := newTestServer(t, nil)

	rec := postJSON(t, s, "/scrape", map[string]any{
		"url":     site.URL,
		"formats": []string{"markdown"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])

	document := body["document"].(map[string]any)
	assert.Contains(t, document["markdown"], "# Hello")
}

func TestScrapeValidation(t *testing.T) {
	s := newTestServer(t, nil)

	missing := postJSON(t, s, "/scrape", map[string]any{})
	require.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, false, decodeBody(t, missing)["success"])

	badFormat := postJSON(t, s, "/scrape", map[string]any{
		"url":     "https://example.com",
		"formats": []string{"bogus"},
	})
	require.Equal(t, http.StatusBadRequest, badFormat.Code)
	body := decodeBody(t, badFormat)
	assert.Equal(t, "invalid request", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestScrapeInvalidJSON(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/scrape", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON", decodeBody(t, rec)["error"])
}

func TestScrapePipelineError(t *testing.T) {
	s := newTestServer(t, nil)

	rec := postJSON(t, s, "/scrape", map[string]any{
		"url": "http://does-not-resolve.invalid/",
	})

	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["requestId"])

	errBody := body["error"].(map[string]any)
	assert.Equal(t, "DNS_RESOLUTION_ERROR", errBody["code"])
	// Details are hidden by default.
	assert.NotContains(t, errBody["message"], "does-not-resolve.invalid")
}

func TestScrapeErrorDetailsExposed(t *testing.T) {
	s := newTestServer(t, &Config{ExposeErrorDetails: true})

	rec := postJSON(t, s, "/scrape", map[string]any{
		"url": "http://does-not-resolve.invalid/",
	})

	require.Equal(t, http.StatusBadGateway, rec.Code)
	errBody := decodeBody(t, rec)["error"].(map[string]any)
	assert.Contains(t, errBody["message"], "does-not-resolve.invalid")
}

func TestCrawlEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			w.Write([]byte(`<html><body><a href="/a">a</a></body></html>`))
		case "/a":
			w.Write([]byte(`<html><body><p>page a</p></body></html>`))
		default:
			http.NotFound(w, r)
		}
	})
	site := httptest.NewServer(mux)
	defer site.Close()

	s := newTestServer(t, nil)

	rec := postJSON(t, s, "/crawl", map[string]any{
		"url":   site.URL,
		"limit": 10,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])

	stats := body["stats"].(map[string]any)
	assert.Equal(t, stats["processed"], stats["succeeded"].(float64)+stats["failed"].(float64))
	assert.Len(t, body["pages"], 2)
}

func TestCrawlValidation(t *testing.T) {
	s := newTestServer(t, nil)

	rec := postJSON(t, s, "/crawl", map[string]any{
		"url":   "https://example.com",
		"limit": -5,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, &Config{RateLimitRequests: 2})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.1.2.3:1234"
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("request %d", i))
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.1.2.3:1234"
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	s := newTestServer(t, &Config{
		RateLimitRequests: 1,
		RedisURL:          "redis://" + mr.Addr(),
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.9.9.9:1234"
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	again := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "10.9.9.9:1234"
	s.ServeHTTP(again, req2)
	assert.Equal(t, http.StatusTooManyRequests, again.Code)
}
