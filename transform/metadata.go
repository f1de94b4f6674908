package transform

import (
	"strings"

	"golang.org/x/net/html"
)

// PageMeta is the metadata extracted from a page's DOM.
type PageMeta struct {
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	Language      string `json:"language,omitempty"`
	OGTitle       string `json:"ogTitle,omitempty"`
	OGDescription string `json:"ogDescription,omitempty"`
	OGImage       string `json:"ogImage,omitempty"`
	OGSiteName    string `json:"ogSiteName,omitempty"`
}

// ExtractMetadata extracts title, description, language, and Open Graph
// fields by parsing the DOM. A parse failure returns an empty record.
func ExtractMetadata(htmlStr string) PageMeta {
	var meta PageMeta

	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return meta
	}

	var extract func(*html.Node)
	extract = func(node *html.Node) {
		if node.Type == html.ElementNode {
			switch node.Data {
			case "html":
				if meta.Language == "" {
					meta.Language = getAttr(node, "lang")
				}
			case "title":
				if meta.Title == "" {
					meta.Title = getNodeText(node)
				}
			case "meta":
				content := getAttr(node, "content")
				if content == "" {
					break
				}
				if getAttr(node, "name") == "description" && meta.Description == "" {
					meta.Description = content
				}
				switch getAttr(node, "property") {
				case "og:title":
					if meta.OGTitle == "" {
						meta.OGTitle = content
					}
				case "og:description":
					if meta.OGDescription == "" {
						meta.OGDescription = content
					}
				case "og:image":
					if meta.OGImage == "" {
						meta.OGImage = content
					}
				case "og:site_name":
					if meta.OGSiteName == "" {
						meta.OGSiteName = content
					}
				}
			}
		}

		for c := node.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}

	extract(doc)

	meta.Title = strings.TrimSpace(meta.Title)
	meta.Description = strings.TrimSpace(meta.Description)
	if meta.Description == "" {
		meta.Description = strings.TrimSpace(meta.OGDescription)
	}

	return meta
}

// getNodeText extracts all text content from a node and its children.
func getNodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}

	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text.WriteString(getNodeText(c))
	}
	return text.String()
}

// getAttr returns the value of an attribute from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
