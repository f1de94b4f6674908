// Package scrape implements the scrape pipeline: per-request meta, the
// engine-fallback orchestrator, and document finalization.
package scrape

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joeychilson/docsurf/cache"
	"github.com/joeychilson/docsurf/dispatch"
	"github.com/joeychilson/docsurf/engine"
	"github.com/joeychilson/docsurf/gatekeeper"
	"github.com/joeychilson/docsurf/logger"
	"github.com/joeychilson/docsurf/robots"
	"github.com/joeychilson/docsurf/transform"
	"github.com/joeychilson/docsurf/urlutil"
)

// maxRounds bounds feature-escalation restarts of the engine list.
const maxRounds = 3

// Config tunes the scraper.
type Config struct {
	// UserAgent identifies the service on outbound requests.
	UserAgent string
	// PlaywrightURL enables the browser engine when set.
	PlaywrightURL string
	// BrowserMaxConcurrency bounds in-flight rendering requests.
	BrowserMaxConcurrency int
	// BrowserChallengeRetries is how many stealth re-renders follow a
	// challenge status.
	BrowserChallengeRetries int
	// CheckRobots makes single-page scrapes consult robots.txt.
	CheckRobots bool
	// RobotsAgents are the user-agent tokens checked against robots.txt;
	// any allowing token admits the URL.
	RobotsAgents []string
}

// Scraper runs the engine-fallback pipeline. Safe for concurrent use.
type Scraper struct {
	cfg      Config
	gate     *gatekeeper.Gatekeeper
	robots   *robots.Checker
	markdown *transform.MarkdownConverter
	logger   logger.Logger

	fetch    engine.Engine
	browser  engine.Engine
	pdf      engine.Engine
	document engine.Engine
}

// New wires the scraper and its engines. validators may be nil to disable
// conditional-GET caching; robotsChecker may be nil when robots evaluation
// is off.
func New(cfg Config, pool *dispatch.Pool, validators cache.Cache, gate *gatekeeper.Gatekeeper, robotsChecker *robots.Checker, log logger.Logger) *Scraper {
	if log == nil {
		log = logger.Noop()
	}

	s := &Scraper{
		cfg:      cfg,
		gate:     gate,
		robots:   robotsChecker,
		markdown: transform.NewMarkdownConverter(),
		logger:   log,
		fetch:    engine.NewFetch(pool, validators, cfg.UserAgent, log),
		pdf:      engine.NewPDF(pool, cfg.UserAgent, log),
		document: engine.NewDocument(pool, cfg.UserAgent, log),
	}

	if cfg.PlaywrightURL != "" {
		s.browser = engine.NewBrowser(engine.BrowserOptions{
			ServiceURL:       cfg.PlaywrightURL,
			MaxConcurrency:   cfg.BrowserMaxConcurrency,
			ChallengeRetries: cfg.BrowserChallengeRetries,
		}, log)
	}

	return s
}

// meta is the per-scrape working record. It is created at request entry and
// lives through all engine attempts.
type meta struct {
	id        string
	sourceURL string
	url       string
	opts      *resolved
	flags     engine.FlagSet
	abort     *abortManager
	logger    logger.Logger
}

// Scrape runs the full pipeline for one URL and returns the finished
// document or the terminal error.
func (s *Scraper) Scrape(ctx context.Context, urlStr string, opts *Options) (*Document, error) {
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

	if s.cfg.CheckRobots && s.robots != nil {
		allowed, err := s.robots.IsAllowed(ctx, canonical, s.cfg.RobotsAgents)
		if err == nil && !allowed {
			return nil, &DeniedError{URL: canonical, Reason: "disallowed by robots.txt"}
		}
	}

	r := opts.withDefaults()

	id := uuid.NewString()
	m := &meta{
		id:        id,
		sourceURL: urlStr,
		url:       canonical,
		opts:      r,
		flags:     engine.FlagsForURL(canonical),
		abort:     newAbortManager(ctx, r.Timeout),
		logger:    s.logger.With("request_id", id, "url", canonical),
	}
	defer m.abort.Close()

	if r.WaitFor > 0 {
		m.flags.Add(engine.FeatureWaitFor)
	}

	return s.run(m)
}

// run is the attempt loop: up to maxRounds feature-escalation rounds, each
// iterating the engine order for the current flag set.
func (s *Scraper) run(m *meta) (*Document, error) {
	var lastErr error

	for round := 0; round < maxRounds; round++ {
		escalated := false

		for _, eng := range s.engineOrder(m.flags) {
			if cause := m.abort.Cause(); cause != nil {
				return nil, cause
			}

			res, err := eng.Scrape(m.abort.Context(), m.engineRequest())
			if err != nil {
				var esc *engine.FeatureEscalation
				if errors.As(err, &esc) {
					added := false
					for _, f := range esc.Flags {
						if m.flags.Add(f) {
							added = true
						}
					}
					if added {
						m.logger.Info("feature escalation", "engine", eng.Name(), "flags", esc.Flags)
						escalated = true
						break
					}
					continue
				}

				if cause := m.abort.Cause(); cause != nil {
					return nil, cause
				}

				m.logger.Warn("engine attempt failed", "engine", eng.Name(), "error", err)
				lastErr = err
				continue
			}

			doc, ok := s.accept(m, res)
			if !ok {
				lastErr = &engine.UnsuccessfulError{Engine: eng.Name(), Reason: "no usable content"}
				continue
			}

			m.logger.Info("scrape accepted",
				"engine", eng.Name(), "status", res.StatusCode, "round", round)
			return doc, nil
		}

		if !escalated {
			break
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &engine.NoEnginesLeftError{URL: m.url}
}

// engineOrder builds the deterministic engine list for a flag set: a
// specialty engine first when its flag is set, the browser when configured,
// the fetch engine always last.
func (s *Scraper) engineOrder(flags engine.FlagSet) []engine.Engine {
	var order []engine.Engine

	if flags.Has(engine.FeatureDocument) {
		order = append(order, s.document)
	} else if flags.Has(engine.FeaturePDF) {
		order = append(order, s.pdf)
	}

	if s.browser != nil {
		order = append(order, s.browser)
	}

	return append(order, s.fetch)
}

// engineRequest snapshots the per-attempt input. Timeout carries the
// remaining budget for the rendering service; the context deadline stays
// authoritative.
func (m *meta) engineRequest() *engine.Request {
	var remaining time.Duration
	if deadline, ok := m.abort.Context().Deadline(); ok {
		remaining = time.Until(deadline)
	}

	return &engine.Request{
		URL:                 m.url,
		Headers:             m.opts.Headers,
		SkipTLSVerification: m.opts.SkipTLSVerification,
		WaitFor:             m.opts.WaitFor,
		Timeout:             remaining,
		Flags:               m.flags,
		PDF: engine.PDFOptions{
			Parse:    m.opts.Parsers.PDF,
			MaxPages: m.opts.Parsers.MaxPages,
		},
	}
}

// accept applies the acceptance predicate. A result passes when it yields
// non-empty content, or when its status is a definitive non-success answer.
func (s *Scraper) accept(m *meta, res *engine.Result) (*Document, bool) {
	markdown := res.Markdown
	if markdown == "" && m.opts.wantsMarkdown() && res.HTML != "" {
		markdown = s.deriveMarkdown(m, res, m.opts.OnlyMainContent)
		if markdown == "" && m.opts.OnlyMainContent {
			markdown = s.deriveMarkdown(m, res, false)
		}
	}

	hasContent := markdown != "" || strings.TrimSpace(res.HTML) != ""
	authoritative := res.StatusCode != 0 && !isSuccessStatus(res.StatusCode)

	if !hasContent && !authoritative {
		return nil, false
	}
	return s.finalize(m, res, markdown), true
}

// deriveMarkdown cleans the HTML and converts it. Failures are logged and
// yield empty output rather than failing the attempt.
func (s *Scraper) deriveMarkdown(m *meta, res *engine.Result, mainContent bool) string {
	cleaned, err := transform.CleanHTML(res.HTML, transform.CleanOptions{
		BaseURL:            res.FinalURL,
		OnlyMainContent:    mainContent,
		IncludeTags:        m.opts.IncludeTags,
		ExcludeTags:        m.opts.ExcludeTags,
		RemoveBase64Images: m.opts.RemoveBase64Images,
	})
	if err != nil {
		m.logger.Warn("html cleanup failed", "error", err)
		return ""
	}

	markdown, err := s.markdown.Convert(cleaned, res.FinalURL)
	if err != nil {
		m.logger.Warn("markdown conversion failed", "error", err)
		return ""
	}
	return markdown
}

// finalize builds the document: metadata first, then the transformers in a
// fixed order, each tolerating its own failure. rawHtml survives only when
// requested.
func (s *Scraper) finalize(m *meta, res *engine.Result, markdown string) *Document {
	doc := &Document{
		RawHTML: res.HTML,
		Metadata: Metadata{
			SourceURL:      m.sourceURL,
			URL:            res.FinalURL,
			StatusCode:     res.StatusCode,
			ContentType:    res.ContentType,
			ProxyUsed:      res.ProxyUsed,
			RenderStatus:   res.RenderStatus,
			CacheState:     res.CacheState,
			RenderEvidence: res.Evidence,
		},
	}

	if res.PDF != nil {
		doc.Metadata.NumPages = res.PDF.NumPages
		doc.Metadata.PDFTitle = res.PDF.Title
	}

	if s.gate != nil {
		doc.Metadata.Gatekeeper = s.gate.Classify(gatekeeper.Input{
			HTML:       res.HTML,
			FinalURL:   res.FinalURL,
			StatusCode: res.StatusCode,
		})
	}

	if res.HTML != "" && res.PDF == nil {
		pageMeta := transform.ExtractMetadata(res.HTML)
		doc.Metadata.Title = pageMeta.Title
		doc.Metadata.Description = pageMeta.Description
		doc.Metadata.Language = pageMeta.Language
		doc.Metadata.OGTitle = pageMeta.OGTitle
		doc.Metadata.OGDescription = pageMeta.OGDescription
		doc.Metadata.OGImage = pageMeta.OGImage
		doc.Metadata.OGSiteName = pageMeta.OGSiteName
	}

	if m.opts.Formats[FormatMarkdown] {
		doc.Markdown = markdown
	}

	if m.opts.Formats[FormatHTML] {
		cleaned, err := transform.CleanHTML(res.HTML, transform.CleanOptions{
			BaseURL:            res.FinalURL,
			OnlyMainContent:    m.opts.OnlyMainContent,
			IncludeTags:        m.opts.IncludeTags,
			ExcludeTags:        m.opts.ExcludeTags,
			RemoveBase64Images: m.opts.RemoveBase64Images,
		})
		if err != nil {
			m.logger.Warn("html cleanup failed", "error", err)
		} else {
			doc.HTML = cleaned
		}
	}

	if m.opts.Formats[FormatLinks] {
		links, err := transform.ExtractLinks(res.HTML, res.FinalURL)
		if err != nil {
			m.logger.Warn("link extraction failed", "error", err)
		} else {
			doc.Links = links
		}
	}

	if m.opts.Formats[FormatImages] {
		images, err := transform.ExtractImages(res.HTML, res.FinalURL, m.opts.RemoveBase64Images)
		if err != nil {
			m.logger.Warn("image extraction failed", "error", err)
		} else {
			doc.Images = images
		}
	}

	if !m.opts.Formats[FormatRawHTML] {
		doc.RawHTML = ""
	}

	return doc
}

// isSuccessStatus reports whether the status is in the success range
// (2xx or 304).
func isSuccessStatus(status int) bool {
	return (status >= 200 && status <= 299) || status == 304
}
