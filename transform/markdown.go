package transform

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	voidElements    = map[string]bool{
		"img": true, "br": true, "hr": true, "input": true,
		"meta": true, "link": true, "area": true, "base": true,
		"col": true, "embed": true, "param": true, "source": true,
		"track": true, "wbr": true,
	}
)

// MarkdownConverter turns cleaned HTML into GitHub-flavored Markdown with
// inline links. Safe for concurrent use.
type MarkdownConverter struct {
	policy *bluemonday.Policy
}

// NewMarkdownConverter creates a converter with the default sanitization
// policy.
func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{policy: sanitizationPolicy()}
}

// Convert sanitizes the markup, prunes empty structure, and converts the
// result to Markdown. Relative links resolve against baseURL when set.
func (m *MarkdownConverter) Convert(htmlStr, baseURL string) (string, error) {
	if strings.TrimSpace(htmlStr) == "" {
		return "", nil
	}

	sanitized := m.policy.Sanitize(htmlStr)

	doc, err := html.Parse(strings.NewReader(sanitized))
	if err != nil {
		return "", err
	}

	pruneTree(doc)

	opts := []converter.ConvertOptionFunc{}
	if baseURL != "" {
		opts = append(opts, converter.WithDomain(baseURL))
	}

	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)

	markdownBytes, err := conv.ConvertNode(doc, opts...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(markdownBytes)), nil
}

// sanitizationPolicy keeps structural and semantic elements only.
func sanitizationPolicy() *bluemonday.Policy {
	policy := bluemonday.NewPolicy()

	policy.AllowElements("div", "p", "h1", "h2", "h3", "h4", "h5", "h6",
		"main", "article", "section",
		"ul", "ol", "li",
		"table", "thead", "tbody", "tr", "td", "th",
		"blockquote", "pre", "code",
		"strong", "em", "b", "i",
		"a", "img", "br", "hr")

	policy.AllowAttrs("href").OnElements("a")
	policy.AllowAttrs("src", "alt").OnElements("img")
	policy.AllowAttrs("colspan", "rowspan").OnElements("td", "th")
	policy.AllowDataURIImages()

	return policy
}

// pruneTree normalizes whitespace, drops empty attributes and elements, and
// unwraps div wrappers in a single traversal.
func pruneTree(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		pruneTree(c)
		c = next
	}

	if n.Type == html.TextNode {
		data := n.Data
		normalized := whitespaceRegex.ReplaceAllString(data, " ")

		if normalized != " " {
			trimmed := strings.TrimSpace(normalized)
			if trimmed != "" {
				if data != "" && unicode.IsSpace(rune(data[0])) {
					trimmed = " " + trimmed
				}
				if data != "" && unicode.IsSpace(rune(data[len(data)-1])) {
					trimmed = trimmed + " "
				}
				normalized = trimmed
			}
		}
		n.Data = normalized
	}

	if n.Type == html.ElementNode && len(n.Attr) > 0 {
		filtered := n.Attr[:0]
		for _, attr := range n.Attr {
			if attr.Val != "" {
				filtered = append(filtered, attr)
			}
		}
		n.Attr = filtered
	}

	if n.Type == html.ElementNode && isEmptyNode(n) && n.Parent != nil {
		n.Parent.RemoveChild(n)
		return
	}

	if n.Type == html.ElementNode && n.Data == "div" && n.Parent != nil {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			n.Parent.InsertBefore(c, n)
			c = next
		}
		n.Parent.RemoveChild(n)
	}
}

// isEmptyNode reports whether a node holds no text and no non-empty children.
func isEmptyNode(n *html.Node) bool {
	if voidElements[n.Data] {
		return false
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return false
			}
		case html.ElementNode:
			if !isEmptyNode(c) {
				return false
			}
		}
	}

	return true
}
