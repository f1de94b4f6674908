package crawl

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/joeychilson/docsurf/urlutil"
)

// contentFileExtensions are file types worth fetching from external hosts
// even when external content links are otherwise off.
var contentFileExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".odt": true,
	".rtf": true, ".xls": true, ".xlsx": true,
}

// skipFileExtensions are non-HTML assets the frontier never enqueues.
var skipFileExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".svg": true, ".ico": true, ".bmp": true,
	".mp4": true, ".webm": true, ".mov": true, ".avi": true, ".mkv": true,
	".mp3": true, ".wav": true, ".ogg": true, ".flac": true,
	".zip": true, ".tar": true, ".gz": true, ".rar": true, ".7z": true,
	".exe": true, ".dmg": true, ".iso": true,
	".css": true, ".js": true, ".json": true, ".woff": true, ".woff2": true,
	".ttf": true, ".eot": true,
}

// linkFilter applies the crawl's link-admission policy. It is pure; the
// frontier layers dedup, robots, and the blocklist on top.
type linkFilter struct {
	initialHost string
	initialPath string

	includes []*regexp.Regexp
	excludes []*regexp.Regexp

	allowSubdomains           bool
	allowBackwardCrawling     bool
	allowExternalContentLinks bool
	regexOnFullURL            bool
}

// newLinkFilter compiles the regex lists and captures the initial URL's
// host and path prefix.
func newLinkFilter(initial *url.URL, opts *Options) (*linkFilter, error) {
	f := &linkFilter{
		initialHost:               strings.ToLower(initial.Hostname()),
		initialPath:               initial.Path,
		allowSubdomains:           opts.AllowSubdomains,
		allowBackwardCrawling:     opts.AllowBackwardCrawling,
		allowExternalContentLinks: opts.AllowExternalContentLinks,
		regexOnFullURL:            opts.RegexOnFullURL,
	}

	for _, pattern := range opts.Includes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		f.includes = append(f.includes, re)
	}
	for _, pattern := range opts.Excludes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		f.excludes = append(f.excludes, re)
	}

	return f, nil
}

// allow applies the admission policy in order: parse, exclude/include
// regexes, scheme, host family, external-content exception, backward
// crawling, and the non-HTML file class.
func (f *linkFilter) allow(urlStr string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	target := urlStr
	if !f.regexOnFullURL {
		stripped := *parsed
		stripped.RawQuery = ""
		stripped.Fragment = ""
		target = stripped.String()
	}

	for _, re := range f.excludes {
		if re.MatchString(target) {
			return false
		}
	}
	if len(f.includes) > 0 {
		matched := false
		for _, re := range f.includes {
			if re.MatchString(target) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	ext := pathExtension(parsed.Path)

	inFamily := host == f.initialHost
	if !inFamily && f.allowSubdomains {
		inFamily = urlutil.SameRegisteredDomain(host, f.initialHost)
	}

	if !inFamily {
		if !f.allowExternalContentLinks && !contentFileExtensions[ext] {
			return false
		}
		// External links bypass the backward-crawling path check.
	} else if !f.allowBackwardCrawling && f.initialPath != "" && f.initialPath != "/" {
		if !strings.HasPrefix(parsed.Path, f.initialPath) {
			return false
		}
	}

	if skipFileExtensions[ext] {
		return false
	}

	return true
}

// pathExtension returns the lowercased file extension of a URL path.
func pathExtension(path string) string {
	slash := strings.LastIndex(path, "/")
	dot := strings.LastIndex(path, ".")
	if dot <= slash {
		return ""
	}
	return strings.ToLower(path[dot:])
}
