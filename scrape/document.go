package scrape

import (
	"encoding/json"
	"fmt"

	"github.com/joeychilson/docsurf/gatekeeper"
)

// Metadata is the document's metadata record. It always carries the source
// and final URLs, the upstream status, and the gatekeeper evidence.
type Metadata struct {
	SourceURL   string `json:"sourceURL"`
	URL         string `json:"url"`
	StatusCode  int    `json:"statusCode"`
	ContentType string `json:"contentType,omitempty"`
	ProxyUsed   string `json:"proxyUsed,omitempty"`

	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	Language      string `json:"language,omitempty"`
	OGTitle       string `json:"ogTitle,omitempty"`
	OGDescription string `json:"ogDescription,omitempty"`
	OGImage       string `json:"ogImage,omitempty"`
	OGSiteName    string `json:"ogSiteName,omitempty"`

	// NumPages and PDFTitle are set for parsed PDFs.
	NumPages int    `json:"numPages,omitempty"`
	PDFTitle string `json:"pdfTitle,omitempty"`

	// RenderStatus is the browser engine's outcome when it served this
	// document.
	RenderStatus string `json:"renderStatus,omitempty"`

	// CacheState is "revalidated" when a 304 served the cached body.
	CacheState string `json:"cacheState,omitempty"`

	Gatekeeper *gatekeeper.Evidence `json:"gatekeeper,omitempty"`

	// RenderEvidence is gatekeeper evidence supplied by the rendering
	// service, kept verbatim alongside the local classification.
	RenderEvidence json.RawMessage `json:"renderEvidence,omitempty"`
}

// Document is the public scrape output. Only requested formats are set.
type Document struct {
	Markdown string   `json:"markdown,omitempty"`
	HTML     string   `json:"html,omitempty"`
	RawHTML  string   `json:"rawHtml,omitempty"`
	Links    []string `json:"links,omitempty"`
	Images   []string `json:"images,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// DeniedError is a policy denial: robots disallow or blocklist hit.
type DeniedError struct {
	URL    string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("crawl denied for %s: %s", e.URL, e.Reason)
}
