package crawl

import (
	"strings"

	"github.com/joeychilson/docsurf/urlutil"
)

// Blocklist holds domains a crawl must never touch. Initialized once at
// startup; reads are lock-free.
type Blocklist struct {
	roots     map[string]bool
	baseNames map[string]bool
	allowed   map[string]bool
}

// NewBlocklist creates a blocklist from blocked roots and a whitelist of
// exact domains exempt from blocking.
func NewBlocklist(blocked, whitelist []string) *Blocklist {
	b := &Blocklist{
		roots:     make(map[string]bool, len(blocked)),
		baseNames: make(map[string]bool, len(blocked)),
		allowed:   make(map[string]bool, len(whitelist)),
	}

	for _, domain := range blocked {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		b.roots[domain] = true
		if name := baseName(domain); name != "" {
			b.baseNames[name] = true
		}
	}

	for _, domain := range whitelist {
		b.allowed[strings.ToLower(strings.TrimSpace(domain))] = true
	}

	return b
}

// IsBlocked reports whether the host matches a blocked root exactly, as a
// subdomain, or as a same-name different-TLD variant.
func (b *Blocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}

	host = strings.ToLower(host)
	if b.allowed[host] {
		return false
	}

	for candidate := host; candidate != ""; {
		if b.roots[candidate] {
			return true
		}
		i := strings.Index(candidate, ".")
		if i < 0 {
			break
		}
		candidate = candidate[i+1:]
	}

	registered := urlutil.RegisteredDomain(host)
	if registered == "" {
		registered = host
	}
	return b.baseNames[baseName(registered)]
}

// baseName is the leftmost label of a registered domain: "facebook" for
// facebook.com and facebook.co.uk alike.
func baseName(domain string) string {
	if i := strings.Index(domain, "."); i > 0 {
		return domain[:i]
	}
	return domain
}
