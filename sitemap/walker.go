package sitemap

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/joeychilson/docsurf/dispatch"
	"github.com/joeychilson/docsurf/logger"
)

// maxSitemapBytes caps one sitemap download (post-gunzip).
const maxSitemapBytes = 64 << 20

// Walker iteratively traverses a sitemap graph. The walk is bounded by a
// global page limit and a visited set that protects against cycles.
type Walker struct {
	pool      *dispatch.Pool
	userAgent string
	limit     int
	logger    logger.Logger
}

// NewWalker creates a walker. limit bounds the total pages emitted across
// the whole graph.
func NewWalker(pool *dispatch.Pool, userAgent string, limit int, log logger.Logger) *Walker {
	if log == nil {
		log = logger.Noop()
	}
	if limit < 1 {
		limit = 5000
	}
	return &Walker{pool: pool, userAgent: userAgent, limit: limit, logger: log}
}

// Walk visits the sitemap graph rooted at rootURL, handing every page batch
// to handle. Unfetchable or unparsable sitemaps are logged and skipped; the
// walk stops when the graph or the limit is exhausted.
func (w *Walker) Walk(ctx context.Context, rootURL string, handle func(urls []string) error) error {
	queue := []string{rootURL}
	visited := map[string]bool{}
	emitted := 0

	for len(queue) > 0 && emitted < w.limit {
		if err := ctx.Err(); err != nil {
			return err
		}

		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}
		visited[current] = true

		content, err := w.fetch(ctx, current)
		if err != nil {
			w.logger.Warn("sitemap fetch failed", "url", current, "error", err)
			continue
		}

		inst, err := Parse(content)
		if err != nil {
			w.logger.Warn("sitemap parse failed", "url", current, "error", err)
			continue
		}

		switch inst.Action {
		case ActionRecurse:
			queue = append(queue, inst.URLs...)
		case ActionProcess:
			urls := inst.URLs
			if remaining := w.limit - emitted; len(urls) > remaining {
				urls = urls[:remaining]
			}
			emitted += len(urls)
			if err := handle(urls); err != nil {
				return err
			}
		}
	}

	return nil
}

// fetch downloads one sitemap through the dispatcher, gunzipping .gz files.
func (w *Walker) fetch(ctx context.Context, urlStr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.pool.Client(false, false).Do(req)
	if err != nil {
		return nil, dispatch.NormalizeError(urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if strings.HasSuffix(strings.ToLower(strings.SplitN(urlStr, "?", 2)[0]), ".gz") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to gunzip sitemap: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return io.ReadAll(io.LimitReader(reader, maxSitemapBytes))
}
