package transform

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ExtractLinks returns the distinct absolute href values of all anchors in
// document order. Fragment-only, javascript, mailto, and tel hrefs are
// skipped; relative URLs resolve against baseURL.
func ExtractLinks(htmlStr, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	return collectAttrs(htmlStr, "a", "href", func(value string) (string, bool) {
		if strings.HasPrefix(value, "#") ||
			strings.HasPrefix(value, "javascript:") ||
			strings.HasPrefix(value, "mailto:") ||
			strings.HasPrefix(value, "tel:") {
			return "", false
		}

		parsed, err := url.Parse(value)
		if err != nil {
			return "", false
		}

		absolute := base.ResolveReference(parsed)
		absolute.Fragment = ""
		return absolute.String(), true
	})
}

// ExtractImages returns the distinct absolute src values of all img elements
// in document order. Data URIs are skipped when skipDataURIs is true.
func ExtractImages(htmlStr, baseURL string, skipDataURIs bool) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	return collectAttrs(htmlStr, "img", "src", func(value string) (string, bool) {
		if strings.HasPrefix(value, "data:") {
			if skipDataURIs {
				return "", false
			}
			return value, true
		}

		parsed, err := url.Parse(value)
		if err != nil {
			return "", false
		}
		return base.ResolveReference(parsed).String(), true
	})
}

// collectAttrs walks the parsed tree collecting one attribute from matching
// elements, deduplicated in first-seen order.
func collectAttrs(htmlStr, element, attr string, accept func(string) (string, bool)) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var values []string

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == element {
			for _, a := range n.Attr {
				if a.Key != attr || a.Val == "" {
					continue
				}
				value, ok := accept(strings.TrimSpace(a.Val))
				if !ok {
					continue
				}
				if !seen[value] {
					seen[value] = true
					values = append(values, value)
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}

	traverse(doc)
	return values, nil
}
