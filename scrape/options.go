package scrape

import (
	"encoding/json"
	"fmt"
	"time"
)

// Format is one requested output representation.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatRawHTML  Format = "rawHtml"
	FormatLinks    Format = "links"
	FormatImages   Format = "images"
)

// defaultTimeout bounds a scrape when the caller does not.
const defaultTimeout = 30 * time.Second

// Options are the caller-supplied scrape options. The zero value is valid;
// withDefaults resolves the documented defaults.
type Options struct {
	// Formats selects the outputs; default {markdown}.
	Formats []Format `json:"formats,omitempty"`
	// OnlyMainContent strips boilerplate before Markdown conversion;
	// default true.
	OnlyMainContent *bool `json:"onlyMainContent,omitempty"`
	// Headers are merged into every outbound request of this scrape.
	Headers map[string]string `json:"headers,omitempty"`
	// IncludeTags and ExcludeTags constrain the cleaned HTML.
	IncludeTags []string `json:"includeTags,omitempty"`
	ExcludeTags []string `json:"excludeTags,omitempty"`
	// Timeout bounds the total scrape, in milliseconds.
	Timeout int `json:"timeout,omitempty"`
	// WaitFor is how long the browser engine idles after load, in
	// milliseconds.
	WaitFor int `json:"waitFor,omitempty"`
	// Parsers controls PDF parsing vs pass-through.
	Parsers Parsers `json:"parsers,omitempty"`
	// SkipTLSVerification defaults to true unless custom headers are set;
	// authenticated calls assume hardened TLS.
	SkipTLSVerification *bool `json:"skipTlsVerification,omitempty"`
	// RemoveBase64Images drops data-URI images from transformer output;
	// default true.
	RemoveBase64Images *bool `json:"removeBase64Images,omitempty"`
}

// Parsers is the parsed `parsers` option.
type Parsers struct {
	// PDF enables PDF text extraction instead of pass-through.
	PDF bool
	// MaxPages caps extraction; 0 means no cap.
	MaxPages int
}

// parserEntry accepts either "pdf" or {"type":"pdf","maxPages":N}.
type parserEntry struct {
	Type     string `json:"type"`
	MaxPages int    `json:"maxPages,omitempty"`
}

// UnmarshalJSON accepts both the short string form and the object form.
func (p *Parsers) UnmarshalJSON(data []byte) error {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsers must be an array")
	}

	for _, raw := range entries {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			if name != "pdf" {
				return fmt.Errorf("unknown parser %q", name)
			}
			p.PDF = true
			continue
		}

		var entry parserEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("invalid parser entry")
		}
		if entry.Type != "pdf" {
			return fmt.Errorf("unknown parser %q", entry.Type)
		}
		p.PDF = true
		if entry.MaxPages > 0 {
			p.MaxPages = entry.MaxPages
		}
	}
	return nil
}

// MarshalJSON emits the object form.
func (p Parsers) MarshalJSON() ([]byte, error) {
	if !p.PDF {
		return []byte("[]"), nil
	}
	return json.Marshal([]parserEntry{{Type: "pdf", MaxPages: p.MaxPages}})
}

// UnmarshalJSON accepts "markdown" and {"type":"markdown"} format entries.
func (f *Format) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*f = Format(name)
		return nil
	}

	var entry struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return fmt.Errorf("invalid format entry")
	}
	*f = Format(entry.Type)
	return nil
}

// resolved is the options record after defaults are applied. Immutable for
// the scrape's lifetime.
type resolved struct {
	Formats             map[Format]bool
	OnlyMainContent     bool
	Headers             map[string]string
	IncludeTags         []string
	ExcludeTags         []string
	Timeout             time.Duration
	WaitFor             time.Duration
	Parsers             Parsers
	SkipTLSVerification bool
	RemoveBase64Images  bool
}

// Validate checks the options, returning a per-field error for the first
// problem found.
func (o *Options) Validate() error {
	for _, f := range o.Formats {
		switch f {
		case FormatMarkdown, FormatHTML, FormatRawHTML, FormatLinks, FormatImages:
		default:
			return fmt.Errorf("formats: unknown format %q", f)
		}
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout: must be >= 0")
	}
	if o.WaitFor < 0 {
		return fmt.Errorf("waitFor: must be >= 0")
	}
	if o.Parsers.MaxPages < 0 {
		return fmt.Errorf("parsers: maxPages must be >= 0")
	}
	return nil
}

// withDefaults resolves the option defaults.
func (o *Options) withDefaults() *resolved {
	r := &resolved{
		Formats:             make(map[Format]bool, len(o.Formats)),
		OnlyMainContent:     true,
		Headers:             o.Headers,
		IncludeTags:         o.IncludeTags,
		ExcludeTags:         o.ExcludeTags,
		Timeout:             defaultTimeout,
		WaitFor:             time.Duration(o.WaitFor) * time.Millisecond,
		Parsers:             o.Parsers,
		SkipTLSVerification: len(o.Headers) == 0,
		RemoveBase64Images:  true,
	}

	for _, f := range o.Formats {
		r.Formats[f] = true
	}
	if len(r.Formats) == 0 {
		r.Formats[FormatMarkdown] = true
	}

	if o.OnlyMainContent != nil {
		r.OnlyMainContent = *o.OnlyMainContent
	}
	if o.Timeout > 0 {
		r.Timeout = time.Duration(o.Timeout) * time.Millisecond
	}
	if o.SkipTLSVerification != nil {
		r.SkipTLSVerification = *o.SkipTLSVerification
	}
	if o.RemoveBase64Images != nil {
		r.RemoveBase64Images = *o.RemoveBase64Images
	}

	return r
}

// wantsMarkdown reports whether any requested format requires Markdown.
func (r *resolved) wantsMarkdown() bool {
	return r.Formats[FormatMarkdown]
}
