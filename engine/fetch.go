package engine

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/joeychilson/docsurf/cache"
	"github.com/joeychilson/docsurf/dispatch"
	"github.com/joeychilson/docsurf/logger"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 32 << 20

var metaCharsetRegex = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?\s*([a-zA-Z0-9_\-]+)`)

// Fetch is the direct-HTTP acquisition engine with a conditional-GET cache.
type Fetch struct {
	pool      *dispatch.Pool
	cache     cache.Cache
	userAgent string
	logger    logger.Logger
}

// NewFetch creates the fetch engine. The cache handle is shared
// process-wide; tests substitute a fresh one.
func NewFetch(pool *dispatch.Pool, validators cache.Cache, userAgent string, log logger.Logger) *Fetch {
	if log == nil {
		log = logger.Noop()
	}
	return &Fetch{
		pool:      pool,
		cache:     validators,
		userAgent: userAgent,
		logger:    log,
	}
}

// Name returns the engine identifier.
func (f *Fetch) Name() string { return "fetch" }

// Scrape issues a single GET with redirects followed, attaching cached
// validators for conditional requests and sniffing the response for
// specialty content.
func (f *Fetch) Scrape(ctx context.Context, req *Request) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &EngineError{Engine: f.Name(), URL: req.URL, Err: err}
	}

	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	cached := f.cachedEntry(ctx, req.URL)
	if cached.HasValidators() && !hasConditionalHeaders(httpReq.Header) {
		if cached.ETag != "" {
			httpReq.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	client := f.pool.Client(req.SkipTLSVerification, false)
	resp, err := client.Do(httpReq)
	if err != nil {
		normalized := dispatch.NormalizeError(req.URL, err)
		if normalized != err {
			return nil, normalized
		}
		return nil, &EngineError{Engine: f.Name(), URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()

	if resp.StatusCode == http.StatusNotModified && cached != nil && len(cached.Body) > 0 {
		f.logger.Debug("conditional fetch hit", "url", req.URL, "cached_status", cached.StatusCode)
		return &Result{
			FinalURL:    finalURL,
			HTML:        decodeBody(cached.Body),
			StatusCode:  cached.StatusCode,
			ContentType: cached.ContentType,
			Headers:     resp.Header,
			ProxyUsed:   "basic",
			CacheState:  "revalidated",
		}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		normalized := dispatch.NormalizeError(req.URL, err)
		if normalized != err {
			return nil, normalized
		}
		return nil, &EngineError{Engine: f.Name(), URL: req.URL, Err: err}
	}

	// The sniffer may hand this response to a specialty engine.
	if err := SniffSpecialty(resp.Header, req.Flags); err != nil {
		return nil, err
	}

	f.storeValidators(ctx, req.URL, resp, body)

	return &Result{
		FinalURL:    finalURL,
		HTML:        decodeBody(body),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Headers:     resp.Header,
		ProxyUsed:   "basic",
	}, nil
}

// cachedEntry loads the validator entry for a URL, tolerating cache errors.
func (f *Fetch) cachedEntry(ctx context.Context, url string) *cache.Entry {
	if f.cache == nil {
		return nil
	}
	entry, err := f.cache.Get(ctx, url)
	if err != nil {
		f.logger.Warn("validator cache get failed", "url", url, "error", err)
		return nil
	}
	return entry
}

// storeValidators records ETag/Last-Modified with the body for future
// conditional requests. Last-writer-wins.
func (f *Fetch) storeValidators(ctx context.Context, url string, resp *http.Response, body []byte) {
	if f.cache == nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}

	etag := resp.Header.Get("ETag")
	lastModified := resp.Header.Get("Last-Modified")
	if etag == "" && lastModified == "" {
		return
	}

	entry := &cache.Entry{
		URL:          url,
		ETag:         etag,
		LastModified: lastModified,
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		Body:         body,
		StoredAt:     time.Now(),
	}
	if err := f.cache.Set(ctx, entry); err != nil {
		f.logger.Warn("validator cache set failed", "url", url, "error", err)
	}
}

// hasConditionalHeaders reports whether the caller already supplied
// conditional request headers that cached validators must not override.
func hasConditionalHeaders(h http.Header) bool {
	return h.Get("If-None-Match") != "" || h.Get("If-Modified-Since") != ""
}

// decodeBody decodes a response body as UTF-8, then re-decodes with the
// charset named by a <meta charset=...> hint in the first page of bytes when
// one is present and differs. Unknown charsets fall back to UTF-8.
func decodeBody(body []byte) string {
	head := body
	if len(head) > 4096 {
		head = head[:4096]
	}

	match := metaCharsetRegex.FindSubmatch(head)
	if match == nil {
		return string(body)
	}

	name := strings.ToLower(string(match[1]))
	if name == "utf-8" || name == "utf8" {
		return string(body)
	}

	enc, _ := charset.Lookup(name)
	if enc == nil {
		return string(body)
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
