package scrape

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeychilson/docsurf/dispatch"
	"github.com/joeychilson/docsurf/gatekeeper"
	"github.com/joeychilson/docsurf/logger"
)

func testScraper(t *testing.T, cfg Config) *Scraper {
	t.Helper()
	pool, err := dispatch.NewPool(dispatch.Options{AllowLocal: true})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	if cfg.UserAgent == "" {
		cfg.UserAgent = "docsurf-test"
	}
	gate := gatekeeper.New(gatekeeper.Options{}, logger.Noop())
	return New(cfg, pool, nil, gate, nil, logger.Noop())
}

func TestScrapeMarkdownAndLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Example</h1><a href="/about">About</a></body></html>`))
	}))
	defer server.Close()

	s := testScraper(t, Config{})

	doc, err := s.Scrape(context.Background(), server.URL, &Options{
		Formats: []Format{FormatMarkdown, FormatLinks},
	})
	require.NoError(t, err)
	assert.Contains(t, doc.Markdown, "# Example")
	assert.Equal(t, []string{server.URL + "/about"}, doc.Links)
	assert.Empty(t, doc.RawHTML)
	assert.Empty(t, doc.HTML)
	assert.Empty(t, doc.Images)
}

func TestScrapeFormatFidelity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>hello world</p><img src="/x.png"></body></html>`))
	}))
	defer server.Close()

	s := testScraper(t, Config{})

	doc, err := s.Scrape(context.Background(), server.URL, &Options{
		Formats: []Format{FormatRawHTML, FormatHTML, FormatImages},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.RawHTML)
	assert.NotEmpty(t, doc.HTML)
	assert.Equal(t, []string{server.URL + "/x.png"}, doc.Images)
	// Markdown was not requested.
	assert.Empty(t, doc.Markdown)
	assert.Empty(t, doc.Links)
}

func TestScrapeDefaultFormatIsMarkdown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h2>Default</h2></body></html>`))
	}))
	defer server.Close()

	s := testScraper(t, Config{})

	doc, err := s.Scrape(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Contains(t, doc.Markdown, "## Default")
	assert.Empty(t, doc.RawHTML)
}

func TestScrapeMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html lang="en"><head><title>Meta Page</title>
			<meta name="description" content="about this page"></head>
			<body><p>content</p></body></html>`))
	}))
	defer server.Close()

	s := testScraper(t, Config{})

	doc, err := s.Scrape(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, server.URL, doc.Metadata.SourceURL)
	assert.Equal(t, 200, doc.Metadata.StatusCode)
	assert.Equal(t, "Meta Page", doc.Metadata.Title)
	assert.Equal(t, "about this page", doc.Metadata.Description)
	assert.Equal(t, "en", doc.Metadata.Language)
	assert.Equal(t, "basic", doc.Metadata.ProxyUsed)
	require.NotNil(t, doc.Metadata.Gatekeeper)
}

func TestScrapeGatekeeperThin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>tiny</p></body></html>`))
	}))
	defer server.Close()

	s := testScraper(t, Config{})

	doc, err := s.Scrape(context.Background(), server.URL, nil)
	require.NoError(t, err)
	require.NotNil(t, doc.Metadata.Gatekeeper)
	assert.Equal(t, gatekeeper.BlockThin, doc.Metadata.Gatekeeper.BlockClass)
	assert.Equal(t, "thin", doc.Metadata.Gatekeeper.ContentStatus)
}

func TestScrapeNonSuccessShortCircuits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := testScraper(t, Config{})

	doc, err := s.Scrape(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, doc.Metadata.StatusCode)
}

func TestScrapePDFEscalation(t *testing.T) {
	pdfBytes := []byte("%PDF-1.4 escalated")
	var hits int

	// An HTML-looking path that serves a PDF: the sniffer escalates and the
	// PDF engine's pass-through mode handles the second attempt.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdfBytes)
	}))
	defer server.Close()

	s := testScraper(t, Config{})

	doc, err := s.Scrape(context.Background(), server.URL+"/report", nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, hits, 2)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pdfBytes), doc.Markdown)
}

func TestScrapeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.Write([]byte("<html>late</html>"))
	}))
	defer server.Close()

	s := testScraper(t, Config{})

	_, err := s.Scrape(context.Background(), server.URL, &Options{Timeout: 100})
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
}

func TestScrapeExternalAbort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	s := testScraper(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := s.Scrape(ctx, server.URL, nil)
	var abort *ExternalAbortError
	require.ErrorAs(t, err, &abort)
}

func TestScrapeInvalidURL(t *testing.T) {
	s := testScraper(t, Config{})

	_, err := s.Scrape(context.Background(), "not-a-url", nil)
	assert.Error(t, err)
}

func TestScrapeInvalidOptions(t *testing.T) {
	s := testScraper(t, Config{})

	_, err := s.Scrape(context.Background(), "https://example.com", &Options{
		Formats: []Format{"bogus"},
	})
	assert.Error(t, err)
}

func TestScrapeHeadersForwarded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Write([]byte("<html><body><p>authorized content</p></body></html>"))
	}))
	defer server.Close()

	s := testScraper(t, Config{})

	_, err := s.Scrape(context.Background(), server.URL, &Options{
		Headers: map[string]string{"Authorization": "Bearer token"},
	})
	require.NoError(t, err)
}
