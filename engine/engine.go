// Package engine contains the acquisition engines (fetch, browser, pdf,
// document), the specialty sniffer, and the error taxonomy the fallback
// orchestrator matches on.
package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// FeatureFlag influences engine-list construction.
type FeatureFlag string

const (
	FeaturePDF      FeatureFlag = "pdf"
	FeatureDocument FeatureFlag = "document"
	FeatureWaitFor  FeatureFlag = "waitFor"
)

// FlagSet is the set of feature flags active for a scrape.
type FlagSet map[FeatureFlag]struct{}

// NewFlagSet creates a flag set from the given flags.
func NewFlagSet(flags ...FeatureFlag) FlagSet {
	fs := make(FlagSet, len(flags))
	for _, f := range flags {
		fs[f] = struct{}{}
	}
	return fs
}

// Has reports whether the flag is set.
func (fs FlagSet) Has(f FeatureFlag) bool {
	_, ok := fs[f]
	return ok
}

// Add sets a flag, reporting whether it was newly added.
func (fs FlagSet) Add(f FeatureFlag) bool {
	if fs.Has(f) {
		return false
	}
	fs[f] = struct{}{}
	return true
}

// Clone returns an independent copy of the set.
func (fs FlagSet) Clone() FlagSet {
	out := make(FlagSet, len(fs))
	for f := range fs {
		out[f] = struct{}{}
	}
	return out
}

// PDFOptions controls the PDF engine's mode.
type PDFOptions struct {
	// Parse selects text extraction; when false the engine passes the raw
	// bytes through base64-encoded.
	Parse bool
	// MaxPages caps extraction; 0 means no cap.
	MaxPages int
}

// Request is the per-attempt input handed to an engine. The composite abort
// signal arrives through the context.
type Request struct {
	// URL is the canonicalized target.
	URL string
	// Headers are merged into the outbound request.
	Headers map[string]string
	// SkipTLSVerification selects the relaxed-TLS dispatcher.
	SkipTLSVerification bool
	// WaitFor is how long the browser engine idles after load.
	WaitFor time.Duration
	// Timeout is the remaining scrape budget, forwarded to the rendering
	// service; the context deadline is authoritative.
	Timeout time.Duration
	// Flags is the active feature-flag set.
	Flags FlagSet
	// PDF configures the PDF engine.
	PDF PDFOptions
}

// PDFMetadata describes a parsed PDF.
type PDFMetadata struct {
	NumPages int    `json:"numPages"`
	Title    string `json:"title,omitempty"`
}

// Result is a successful engine attempt.
type Result struct {
	// FinalURL is the URL after redirects.
	FinalURL string
	// HTML is the acquired markup, or a base64 body for pass-through
	// PDF/document acquisition.
	HTML string
	// Markdown is set only by engines that produce text directly (PDF).
	Markdown string
	// StatusCode is the upstream HTTP status.
	StatusCode int
	// ContentType is the upstream Content-Type header value.
	ContentType string
	// Headers are the upstream response headers when available.
	Headers http.Header
	// ProxyUsed tags the acquisition path: "basic" or "stealth".
	ProxyUsed string
	// RenderStatus is the browser engine's outcome: "loaded", "timeout",
	// or "nav_error". Empty for non-browser engines.
	RenderStatus string
	// PDF carries page count and title for parsed PDFs.
	PDF *PDFMetadata
	// Evidence is gatekeeper evidence supplied by the rendering service,
	// merged into document metadata during finalization.
	Evidence json.RawMessage
	// CacheState is "revalidated" when a 304 served the cached body.
	CacheState string
}

// Engine acquires bytes for a URL.
type Engine interface {
	// Name returns the engine identifier used in logs and errors.
	Name() string
	// Scrape runs one acquisition attempt. It returns a Result, or one of
	// the typed errors in this package (FeatureEscalation to restart the
	// fallback list, transport errors to advance it).
	Scrape(ctx context.Context, req *Request) (*Result, error)
}
