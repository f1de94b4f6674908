// Package robots fetches and evaluates robots.txt through the egress-guarded
// dispatcher. Missing or unreachable robots files allow everything.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/joeychilson/docsurf/dispatch"
	"github.com/joeychilson/docsurf/logger"
)

// maxRobotsBytes caps the robots.txt download.
const maxRobotsBytes = 512 << 10

// Checker evaluates URLs against per-host robots.txt rules. Parsed files
// are cached per host with a TTL; safe for concurrent use.
type Checker struct {
	pool      *dispatch.Pool
	userAgent string
	cacheTTL  time.Duration
	cache     sync.Map
	logger    logger.Logger
}

// cachedRobots holds parsed robots.txt data with expiration. A nil data
// means "no robots, allow all".
type cachedRobots struct {
	data      *robotstxt.RobotsData
	expiresAt time.Time
}

// New creates a robots checker. cacheTTL bounds how long a parsed file is
// reused (default 1h).
func New(pool *dispatch.Pool, userAgent string, cacheTTL time.Duration, log logger.Logger) *Checker {
	if log == nil {
		log = logger.Noop()
	}
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}
	return &Checker{
		pool:      pool,
		userAgent: userAgent,
		cacheTTL:  cacheTTL,
		logger:    log,
	}
}

// IsAllowed reports whether any of the user-agent tokens may fetch the URL.
// A URL without a trailing slash is also checked with one appended; an
// explicit disallow on the slash form blocks the original too.
func (c *Checker) IsAllowed(ctx context.Context, urlStr string, agents []string) (bool, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	data, err := c.robotsFor(ctx, parsed)
	if err != nil || data == nil {
		return true, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path = path + "?" + parsed.RawQuery
	}

	if len(agents) == 0 {
		agents = []string{c.userAgent}
	}

	for _, agent := range agents {
		group := data.FindGroup(agent)
		if group == nil {
			return true, nil
		}
		allowed := group.Test(path)
		if allowed && !strings.HasSuffix(path, "/") && parsed.RawQuery == "" {
			allowed = group.Test(path + "/")
		}
		if allowed {
			return true, nil
		}
	}
	return false, nil
}

// CrawlDelay returns the crawl delay the host requests for the user agent,
// or 0 when none is specified.
func (c *Checker) CrawlDelay(ctx context.Context, urlStr string) time.Duration {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return 0
	}

	data, err := c.robotsFor(ctx, parsed)
	if err != nil || data == nil {
		return 0
	}

	if group := data.FindGroup(c.userAgent); group != nil {
		return group.CrawlDelay
	}
	return 0
}

// Sitemaps returns the sitemap URLs listed in the host's robots.txt.
func (c *Checker) Sitemaps(ctx context.Context, urlStr string) []string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil
	}

	data, err := c.robotsFor(ctx, parsed)
	if err != nil || data == nil {
		return nil
	}
	return data.Sitemaps
}

// robotsFor returns the parsed robots.txt for the URL's host, fetching and
// caching it when needed. Fetch failures degrade to allow-all.
func (c *Checker) robotsFor(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	host := parsed.Host
	if host == "" {
		return nil, fmt.Errorf("url has no host")
	}

	if val, ok := c.cache.Load(host); ok {
		cached := val.(*cachedRobots)
		if time.Now().Before(cached.expiresAt) {
			return cached.data, nil
		}
		c.cache.Delete(host)
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", parsed.Scheme, host)
	data := c.fetch(ctx, robotsURL)

	c.cache.Store(host, &cachedRobots{
		data:      data,
		expiresAt: time.Now().Add(c.cacheTTL),
	})
	return data, nil
}

// fetch downloads and parses one robots.txt. Any failure logs a warning and
// returns nil so the caller allows everything.
func (c *Checker) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.pool.Client(false, false).Do(req)
	if err != nil {
		c.logger.Warn("robots.txt fetch failed, allowing all", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Warn("robots.txt not found, allowing all", "url", robotsURL)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		c.logger.Warn("robots.txt read failed, allowing all", "url", robotsURL, "error", err)
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		c.logger.Warn("robots.txt parse failed, allowing all", "url", robotsURL, "error", err)
		return nil
	}
	return data
}
