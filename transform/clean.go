// Package transform holds the post-acquisition transformers: HTML cleanup,
// Markdown conversion, link/image extraction, and page metadata extraction.
package transform

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// boilerplateSelectors are removed in main-content mode.
var boilerplateSelectors = []string{
	"nav", "header", "footer", "aside",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]",
	".sidebar", ".footer", ".header", ".nav", ".menu",
	"#sidebar", "#footer", "#header", "#nav",
}

// CleanOptions controls HTML cleanup.
type CleanOptions struct {
	// BaseURL absolutizes relative href/src values when set.
	BaseURL string
	// OnlyMainContent strips navigation boilerplate and, when a main or
	// article element exists, narrows the body to it.
	OnlyMainContent bool
	// IncludeTags restricts output to the matched selectors when non-empty.
	IncludeTags []string
	// ExcludeTags removes the matched selectors.
	ExcludeTags []string
	// RemoveBase64Images drops data-URI image sources.
	RemoveBase64Images bool
}

// CleanHTML sanitizes markup for output: script/style/noscript always go,
// tag filters and main-content narrowing apply per options, and relative
// URLs are rewritten against the base.
func CleanHTML(htmlStr string, opts CleanOptions) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript").Remove()

	if len(opts.IncludeTags) > 0 {
		narrowToSelectors(doc, opts.IncludeTags)
	}

	for _, selector := range opts.ExcludeTags {
		doc.Find(selector).Remove()
	}

	if opts.OnlyMainContent {
		for _, selector := range boilerplateSelectors {
			doc.Find(selector).Remove()
		}
		narrowToMain(doc)
	}

	if opts.RemoveBase64Images {
		doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
			if src, ok := s.Attr("src"); ok && strings.HasPrefix(src, "data:") {
				s.RemoveAttr("src")
			}
		})
	}

	if opts.BaseURL != "" {
		absolutizeURLs(doc, opts.BaseURL)
	}

	return doc.Html()
}

// narrowToMain replaces the body content with the main/article elements
// when any exist.
func narrowToMain(doc *goquery.Document) {
	main := doc.Find("main, article")
	if main.Length() == 0 {
		return
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		return
	}

	var parts []string
	main.Each(func(_ int, s *goquery.Selection) {
		if html, err := goquery.OuterHtml(s); err == nil {
			parts = append(parts, html)
		}
	})
	body.SetHtml(strings.Join(parts, "\n"))
}

// narrowToSelectors replaces the body content with the elements matched by
// the include selectors, in document order.
func narrowToSelectors(doc *goquery.Document, selectors []string) {
	selection := doc.Find(strings.Join(selectors, ", "))
	body := doc.Find("body")
	if body.Length() == 0 {
		return
	}

	var parts []string
	selection.Each(func(_ int, s *goquery.Selection) {
		if html, err := goquery.OuterHtml(s); err == nil {
			parts = append(parts, html)
		}
	})
	body.SetHtml(strings.Join(parts, "\n"))
}

// absolutizeURLs rewrites relative href and src attributes against the base.
func absolutizeURLs(doc *goquery.Document, baseURL string) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return
	}

	rewrite := func(s *goquery.Selection, attr string) {
		value, ok := s.Attr(attr)
		if !ok || value == "" {
			return
		}
		if strings.HasPrefix(value, "data:") || strings.HasPrefix(value, "#") ||
			strings.HasPrefix(value, "javascript:") || strings.HasPrefix(value, "mailto:") {
			return
		}
		parsed, err := url.Parse(strings.TrimSpace(value))
		if err != nil {
			return
		}
		s.SetAttr(attr, base.ResolveReference(parsed).String())
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) { rewrite(s, "href") })
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) { rewrite(s, "src") })
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) { rewrite(s, "href") })
}
