// Package crawl implements the bounded BFS crawler: frontier, link
// admission, sitemap seeding, robots consultation, and per-host politeness.
package crawl

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/joeychilson/docsurf/logger"
	"github.com/joeychilson/docsurf/robots"
	"github.com/joeychilson/docsurf/scrape"
	"github.com/joeychilson/docsurf/sitemap"
	"github.com/joeychilson/docsurf/transform"
	"github.com/joeychilson/docsurf/urlutil"
)

const (
	defaultLimit    = 100
	maxLimit        = 10000
	defaultMaxDepth = 2
	maxMaxDepth     = 20

	// maxCrawlDelay caps how long robots.txt can slow us down per host.
	maxCrawlDelay = 10 * time.Second
)

// Options are the caller-supplied crawl options.
type Options struct {
	// Limit bounds how many pages are processed; 0 selects the default of
	// 100, and the maximum is 10000.
	Limit int `json:"limit,omitempty"`
	// MaxDepth bounds hop depth relative to the seed; 0 selects the default
	// of 2, and the maximum is 20.
	MaxDepth int `json:"maxDepth,omitempty"`
	// Includes and Excludes are regex patterns applied to discovered links.
	Includes []string `json:"includes,omitempty"`
	Excludes []string `json:"excludes,omitempty"`

	AllowBackwardCrawling     bool `json:"allowBackwardCrawling,omitempty"`
	AllowExternalContentLinks bool `json:"allowExternalContentLinks,omitempty"`
	AllowSubdomains           bool `json:"allowSubdomains,omitempty"`
	// RegexOnFullURL matches include/exclude patterns against the full URL
	// including query and fragment.
	RegexOnFullURL bool `json:"regexOnFullURL,omitempty"`
	// IgnoreSitemap skips sitemap seeding.
	IgnoreSitemap bool `json:"ignoreSitemap,omitempty"`

	// Headers are merged into every page scrape of this crawl.
	Headers map[string]string `json:"headers,omitempty"`

	// ScrapeOptions apply to each page scrape.
	ScrapeOptions *scrape.Options `json:"scrapeOptions,omitempty"`
}

// Validate checks the crawl options.
func (o *Options) Validate() error {
	if o.Limit < 0 || o.Limit > maxLimit {
		return fmt.Errorf("limit: must be in [0, %d]", maxLimit)
	}
	if o.MaxDepth < 0 || o.MaxDepth > maxMaxDepth {
		return fmt.Errorf("maxDepth: must be in [0, %d]", maxMaxDepth)
	}
	for _, pattern := range append(append([]string{}, o.Includes...), o.Excludes...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid regex %q: %v", pattern, err)
		}
	}
	if o.ScrapeOptions != nil {
		if err := o.ScrapeOptions.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PageError is one failed page inside an otherwise successful crawl.
type PageError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Stats summarizes a finished crawl. Succeeded+Failed always equals
// Processed, and Processed never exceeds min(limit, Discovered).
type Stats struct {
	// Discovered counts unique URLs that passed admission and were enqueued.
	Discovered int `json:"discovered"`
	Processed  int `json:"processed"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
}

// Result is the crawl's public output.
type Result struct {
	Pages  []*scrape.Document `json:"pages"`
	Errors []PageError        `json:"errors"`
	Stats  Stats              `json:"stats"`
}

// Crawler runs bounded BFS crawls. Safe for concurrent use; each crawl's
// frontier and visited set live only for that crawl.
type Crawler struct {
	scraper      *scrape.Scraper
	walker       *sitemap.Walker
	robots       *robots.Checker
	blocklist    *Blocklist
	robotsAgents []string
	concurrency  int
	logger       logger.Logger
}

// New creates a crawler. walker, robotsChecker, and blocklist may be nil to
// disable sitemap seeding, robots checks, and domain blocking respectively.
func New(scraper *scrape.Scraper, walker *sitemap.Walker, robotsChecker *robots.Checker, blocklist *Blocklist, robotsAgents []string, concurrency int, log logger.Logger) *Crawler {
	if log == nil {
		log = logger.Noop()
	}
	if concurrency < 1 {
		concurrency = 5
	}
	return &Crawler{
		scraper:      scraper,
		walker:       walker,
		robots:       robotsChecker,
		blocklist:    blocklist,
		robotsAgents: robotsAgents,
		concurrency:  concurrency,
		logger:       log,
	}
}

// queueItem is one frontier entry with its hop depth from the seed.
type queueItem struct {
	url   string
	depth int
}

// crawlJob is the per-crawl working state.
type crawlJob struct {
	id      string
	opts    *Options
	limit   int
	depth   int
	filter  *linkFilter
	headers map[string]string
	logger  logger.Logger

	mu         sync.Mutex
	queue      []queueItem
	discovered map[string]bool
	limiters   map[string]*rate.Limiter
	nEnq       int

	pages []*scrape.Document
	errs  []PageError
	nProc int
	nOK   int
	nFail int
}

// Crawl runs a bounded BFS crawl from the initial URL.
func (c *Crawler) Crawl(ctx context.Context, urlStr string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	canonical, err := urlutil.Canonicalize(urlStr)
	if err != nil {
		return nil, err
	}
	initial, err := url.Parse(canonical)
	if err != nil {
		return nil, err
	}

	host := strings.ToLower(initial.Hostname())
	if c.blocklist.IsBlocked(host) {
		return nil, &scrape.DeniedError{URL: canonical, Reason: "domain is blocklisted"}
	}
	if c.robots != nil {
		allowed, err := c.robots.IsAllowed(ctx, canonical, c.robotsAgents)
		if err == nil && !allowed {
			return nil, &scrape.DeniedError{URL: canonical, Reason: "disallowed by robots.txt"}
		}
	}

	filter, err := newLinkFilter(initial, opts)
	if err != nil {
		return nil, err
	}

	job := &crawlJob{
		id:         uuid.NewString(),
		opts:       opts,
		limit:      opts.Limit,
		depth:      opts.MaxDepth,
		filter:     filter,
		headers:    opts.Headers,
		discovered: map[string]bool{},
		limiters:   map[string]*rate.Limiter{},
	}
	if job.limit == 0 {
		job.limit = defaultLimit
	}
	if job.depth == 0 {
		job.depth = defaultMaxDepth
	}
	job.logger = c.logger.With("crawl_id", job.id, "url", canonical)

	// The seed bypasses the filter; everything after it goes through admit.
	job.discovered[canonical] = true
	job.queue = append(job.queue, queueItem{url: canonical, depth: 0})
	job.nEnq = 1

	if !opts.IgnoreSitemap {
		c.seedFromSitemaps(ctx, initial, job)
	}

	c.process(ctx, job)

	job.logger.Info("crawl finished",
		"discovered", job.nEnq, "processed", job.nProc,
		"succeeded", job.nOK, "failed", job.nFail)

	return &Result{
		Pages:  job.pages,
		Errors: job.errs,
		Stats: Stats{
			Discovered: job.nEnq,
			Processed:  job.nProc,
			Succeeded:  job.nOK,
			Failed:     job.nFail,
		},
	}, nil
}

// seedFromSitemaps walks the site's sitemaps and admits every page URL.
// Sitemap-discovered pages count as one hop from the seed.
func (c *Crawler) seedFromSitemaps(ctx context.Context, initial *url.URL, job *crawlJob) {
	if c.walker == nil {
		return
	}

	roots := []string{}
	if c.robots != nil {
		roots = append(roots, c.robots.Sitemaps(ctx, initial.String())...)
	}
	if len(roots) == 0 {
		roots = append(roots, fmt.Sprintf("%s://%s/sitemap.xml", initial.Scheme, initial.Host))
	}

	for _, root := range roots {
		err := c.walker.Walk(ctx, root, func(urls []string) error {
			for _, u := range urls {
				c.admit(ctx, job, u, 1)
			}
			return nil
		})
		if err != nil {
			job.logger.Warn("sitemap seeding failed", "sitemap", root, "error", err)
		}
	}
}

// process drains the frontier in FIFO order with bounded parallelism until
// the queue empties or the page limit is reached.
func (c *Crawler) process(ctx context.Context, job *crawlJob) {
	for {
		if ctx.Err() != nil {
			return
		}

		batch := job.popBatch(c.concurrency)
		if len(batch) == 0 {
			return
		}

		pages := make([]*scrape.Document, len(batch))
		errs := make([]*PageError, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, item := range batch {
			g.Go(func() error {
				doc, err := c.scrapePage(gctx, job, item)
				if err != nil {
					errs[i] = &PageError{URL: item.url, Error: err.Error()}
					return nil
				}
				pages[i] = doc
				return nil
			})
		}
		g.Wait()

		for i := range batch {
			job.nProc++
			if errs[i] != nil {
				job.nFail++
				job.errs = append(job.errs, *errs[i])
				continue
			}
			job.nOK++
			job.pages = append(job.pages, pages[i])
		}
	}
}

// scrapePage fetches one frontier URL and admits its outgoing links.
func (c *Crawler) scrapePage(ctx context.Context, job *crawlJob, item queueItem) (*scrape.Document, error) {
	if err := c.waitPoliteness(ctx, job, item.url); err != nil {
		return nil, err
	}

	opts, rawRequested := job.scrapeOptions()
	doc, err := c.scraper.Scrape(ctx, item.url, opts)
	if err != nil {
		return nil, err
	}

	if doc.RawHTML != "" && item.depth < job.depth {
		links, err := transform.ExtractLinks(doc.RawHTML, doc.Metadata.URL)
		if err == nil {
			for _, link := range links {
				c.admit(ctx, job, link, item.depth+1)
			}
		}
	}

	if !rawRequested {
		doc.RawHTML = ""
	}
	return doc, nil
}

// admit applies the full link-admission policy and enqueues the URL when it
// passes. Deduplication is by canonical URL for the crawl's lifetime.
func (c *Crawler) admit(ctx context.Context, job *crawlJob, urlStr string, depth int) {
	if depth > job.depth {
		return
	}

	canonical, err := urlutil.Canonicalize(urlStr)
	if err != nil {
		return
	}
	// Sitemap files are XML, not content pages; they never enter the frontier.
	if sitemap.IsSitemapURL(canonical) {
		return
	}
	if !job.filter.allow(canonical) {
		return
	}
	if c.blocklist.IsBlocked(urlutil.Hostname(canonical)) {
		return
	}

	job.mu.Lock()
	if job.discovered[canonical] {
		job.mu.Unlock()
		return
	}
	// Reserve before the robots round trip so concurrent admits of the same
	// URL cannot double-enqueue.
	job.discovered[canonical] = true
	job.mu.Unlock()

	if c.robots != nil {
		allowed, err := c.robots.IsAllowed(ctx, canonical, c.robotsAgents)
		if err == nil && !allowed {
			return
		}
	}

	job.mu.Lock()
	job.queue = append(job.queue, queueItem{url: canonical, depth: depth})
	job.nEnq++
	job.mu.Unlock()
}

// waitPoliteness honors the host's robots crawl-delay.
func (c *Crawler) waitPoliteness(ctx context.Context, job *crawlJob, urlStr string) error {
	host := urlutil.Hostname(urlStr)
	if host == "" {
		return nil
	}

	job.mu.Lock()
	limiter, ok := job.limiters[host]
	job.mu.Unlock()

	if !ok {
		// Resolving the crawl-delay may hit the network, so it happens
		// outside the job lock; a concurrent resolver for the same host wins
		// the insert and this limiter is discarded.
		limit := rate.Inf
		if c.robots != nil {
			if delay := c.robots.CrawlDelay(ctx, urlStr); delay > 0 {
				if delay > maxCrawlDelay {
					delay = maxCrawlDelay
				}
				limit = rate.Every(delay)
			}
		}

		job.mu.Lock()
		if existing, ok := job.limiters[host]; ok {
			limiter = existing
		} else {
			limiter = rate.NewLimiter(limit, 1)
			job.limiters[host] = limiter
		}
		job.mu.Unlock()
	}

	return limiter.Wait(ctx)
}

// popBatch dequeues up to n URLs in FIFO order, clamped to the remaining
// page budget.
func (job *crawlJob) popBatch(n int) []queueItem {
	job.mu.Lock()
	defer job.mu.Unlock()

	if remaining := job.limit - job.nProc; n > remaining {
		n = remaining
	}
	if n <= 0 || len(job.queue) == 0 {
		return nil
	}
	if n > len(job.queue) {
		n = len(job.queue)
	}

	batch := job.queue[:n]
	job.queue = job.queue[n:]
	return batch
}

// scrapeOptions builds the per-page scrape options: the caller's options
// with crawl headers merged in and rawHtml forced on for link extraction.
func (job *crawlJob) scrapeOptions() (*scrape.Options, bool) {
	var opts scrape.Options
	if job.opts.ScrapeOptions != nil {
		opts = *job.opts.ScrapeOptions
	}

	if len(job.headers) > 0 {
		merged := make(map[string]string, len(job.headers)+len(opts.Headers))
		for k, v := range job.headers {
			merged[k] = v
		}
		for k, v := range opts.Headers {
			merged[k] = v
		}
		opts.Headers = merged
	}

	if len(opts.Formats) == 0 {
		opts.Formats = []scrape.Format{scrape.FormatMarkdown}
	}
	rawRequested := false
	for _, f := range opts.Formats {
		if f == scrape.FormatRawHTML {
			rawRequested = true
		}
	}
	if !rawRequested {
		opts.Formats = append(append([]scrape.Format{}, opts.Formats...), scrape.FormatRawHTML)
	}

	return &opts, rawRequested
}
