// Package sitemap parses sitemap.xml files and walks sitemap graphs
// iteratively with cycle protection and a global URL bound.
package sitemap

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

// URLSet represents a sitemap.xml file.
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []URL    `xml:"url"`
}

// SitemapIndex represents a sitemap index file referencing other sitemaps.
type SitemapIndex struct {
	XMLName  xml.Name  `xml:"sitemapindex"`
	Sitemaps []Sitemap `xml:"sitemap"`
}

// Sitemap is a reference to another sitemap.
type Sitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// URL is a single page entry in a sitemap.
type URL struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod,omitempty"`
	ChangeFreq string  `xml:"changefreq,omitempty"`
	Priority   float64 `xml:"priority,omitempty"`
}

// Action tags one instruction emitted while walking.
type Action string

const (
	// ActionRecurse means the URLs are further sitemaps to visit.
	ActionRecurse Action = "recurse"
	// ActionProcess means the URLs are pages for the caller's handler.
	ActionProcess Action = "process"
)

// Instruction is one step of the walk's output stream.
type Instruction struct {
	Action Action
	URLs   []string
}

var locRegex = regexp.MustCompile(`(?is)<loc[^>]*>\s*(.*?)\s*</loc>`)

// Parse interprets sitemap XML and returns the instruction it encodes: a
// urlset becomes a process instruction, a sitemapindex a recurse one. When
// strict parsing yields nothing, a lenient scan for <loc> values recovers
// what it can from malformed files.
func Parse(content []byte) (*Instruction, error) {
	var urlset URLSet
	if err := xml.Unmarshal(content, &urlset); err == nil && len(urlset.URLs) > 0 {
		urls := make([]string, 0, len(urlset.URLs))
		for _, u := range urlset.URLs {
			if u.Loc != "" {
				urls = append(urls, strings.TrimSpace(u.Loc))
			}
		}
		return &Instruction{Action: ActionProcess, URLs: urls}, nil
	}

	var index SitemapIndex
	if err := xml.Unmarshal(content, &index); err == nil && len(index.Sitemaps) > 0 {
		urls := make([]string, 0, len(index.Sitemaps))
		for _, s := range index.Sitemaps {
			if s.Loc != "" {
				urls = append(urls, strings.TrimSpace(s.Loc))
			}
		}
		return &Instruction{Action: ActionRecurse, URLs: urls}, nil
	}

	if inst := parseLenient(content); inst != nil {
		return inst, nil
	}

	return nil, fmt.Errorf("invalid sitemap format")
}

// parseLenient recovers loc values from malformed XML. The outer container
// name decides whether they are pages or child sitemaps.
func parseLenient(content []byte) *Instruction {
	matches := locRegex.FindAllSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		if loc := strings.TrimSpace(string(m[1])); loc != "" {
			urls = append(urls, loc)
		}
	}
	if len(urls) == 0 {
		return nil
	}

	action := ActionProcess
	if strings.Contains(strings.ToLower(string(content)), "<sitemapindex") {
		action = ActionRecurse
	}
	return &Instruction{Action: action, URLs: urls}
}

// IsSitemapURL reports whether a URL looks like a sitemap.
func IsSitemapURL(url string) bool {
	return strings.Contains(strings.ToLower(url), "sitemap")
}
