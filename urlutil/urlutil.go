// Package urlutil provides URL parsing, canonicalization, and the address
// checks behind the outbound egress guard.
package urlutil

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ParseAndValidate parses a URL string and validates it is an absolute
// http(s) URL with a host.
func ParseAndValidate(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("url cannot be empty")
	}

	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("url must be absolute with scheme (http/https) and host")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("url scheme must be http or https")
	}

	return parsedURL, nil
}

// Canonicalize normalizes a URL for use as a pipeline key: lowercased
// scheme and host, fragment removed, empty path replaced with "/".
func Canonicalize(rawURL string) (string, error) {
	u, err := ParseAndValidate(rawURL)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// ExtractHost extracts the host (hostname:port or just hostname) from a URL string.
func ExtractHost(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	if parsedURL.Host == "" {
		return "", fmt.Errorf("url has no host: %s", urlStr)
	}

	return parsedURL.Host, nil
}

// Hostname returns the lowercased hostname of a URL, or "" when unparsable.
func Hostname(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// RegisteredDomain returns the effective TLD+1 for a hostname
// (e.g. "docs.example.co.uk" -> "example.co.uk"). When the public suffix
// list cannot resolve the host, the host itself is returned.
func RegisteredDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// SameRegisteredDomain reports whether two hostnames share a registered domain.
func SameRegisteredDomain(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return RegisteredDomain(a) == RegisteredDomain(b)
}

// IsBlockedIP reports whether an IP falls in a range outbound connections
// must not reach: loopback, private, link-local, multicast, unspecified,
// and the IPv4 reserved/special ranges. allowLocal disables the check.
func IsBlockedIP(ip net.IP, allowLocal bool) bool {
	if allowLocal {
		return false
	}
	if ip == nil {
		return true
	}

	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 0: // "this network"
			return true
		case ip4[0] == 100 && ip4[1]&0xc0 == 64: // carrier-grade NAT 100.64.0.0/10
			return true
		case ip4[0] == 192 && ip4[1] == 0 && ip4[2] == 2: // TEST-NET-1
			return true
		case ip4[0] == 198 && ip4[1]&0xfe == 18: // benchmarking 198.18.0.0/15
			return true
		case ip4[0] == 198 && ip4[1] == 51 && ip4[2] == 100: // TEST-NET-2
			return true
		case ip4[0] == 203 && ip4[1] == 0 && ip4[2] == 113: // TEST-NET-3
			return true
		case ip4[0] >= 240: // reserved 240.0.0.0/4 and broadcast
			return true
		}
	}

	return false
}

// ValidateRemoteAddr checks the remote address of an established connection
// ("host:port") against the blocked ranges. Used by the secure dispatcher at
// connect time, after DNS resolution.
func ValidateRemoteAddr(addr string, allowLocal bool) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.Trim(host, "[]")

	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("could not parse remote address %q", addr)
	}
	if IsBlockedIP(ip, allowLocal) {
		return fmt.Errorf("connection to non-public address %s is not allowed", ip)
	}
	return nil
}
