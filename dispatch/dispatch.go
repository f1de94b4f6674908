// Package dispatch provides the long-lived outbound HTTP clients used by
// every engine. Each client enforces TLS policy, optionally tunnels through
// a proxy, and refuses egress to private address ranges.
package dispatch

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"syscall"
	"time"

	"github.com/joeychilson/docsurf/urlutil"
)

// Options configures the dispatcher pool.
type Options struct {
	// ProxyServer is the proxy URI; all traffic flows through it when set.
	ProxyServer   string
	ProxyUsername string
	ProxyPassword string

	// AllowLocal disables the private-address egress guard.
	AllowLocal bool

	// MaxRedirects bounds redirect following (default 10).
	MaxRedirects int
}

// clientKey indexes the four logical dispatchers.
type clientKey struct {
	skipTLS      bool
	allowCookies bool
}

// Pool holds the four logical dispatchers indexed by {skipTLS, allowCookies}.
// It is safe for concurrent use and intended to live for the process lifetime.
type Pool struct {
	clients map[clientKey]*http.Client
	opts    Options
}

// NewPool builds the dispatcher pool. The pool is created once at startup
// and shared by all scrapes.
func NewPool(opts Options) (*Pool, error) {
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = 10
	}

	proxyURL, err := buildProxyURL(opts)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		clients: make(map[clientKey]*http.Client, 4),
		opts:    opts,
	}

	for _, skipTLS := range []bool{false, true} {
		for _, allowCookies := range []bool{false, true} {
			client, err := newClient(opts, proxyURL, skipTLS, allowCookies)
			if err != nil {
				return nil, err
			}
			p.clients[clientKey{skipTLS: skipTLS, allowCookies: allowCookies}] = client
		}
	}

	return p, nil
}

// Client returns the dispatcher for the given TLS and cookie policy.
func (p *Pool) Client(skipTLS, allowCookies bool) *http.Client {
	return p.clients[clientKey{skipTLS: skipTLS, allowCookies: allowCookies}]
}

// Close releases idle connections held by all dispatchers.
func (p *Pool) Close() {
	for _, c := range p.clients {
		if t, ok := c.Transport.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
	}
}

// newClient constructs one long-lived client for a policy combination.
func newClient(opts Options, proxyURL *url.URL, skipTLS, allowCookies bool) (*http.Client, error) {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		// Control runs after DNS resolution with the concrete remote address,
		// before the connect completes. Refusing here destroys the socket.
		Control: func(network, address string, c syscall.RawConn) error {
			if err := urlutil.ValidateRemoteAddr(address, opts.AllowLocal); err != nil {
				return fmt.Errorf("%w: %v", errGuardRefused, err)
			}
			return nil
		},
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: skipTLS},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	if proxyURL != nil {
		// TLS verification is preserved through the proxy; only the skipTLS
		// dispatcher relaxes it.
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	maxRedirects := opts.MaxRedirects
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	if allowCookies {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		client.Jar = jar
	}

	return client, nil
}

// buildProxyURL parses the proxy URI and attaches basic credentials.
func buildProxyURL(opts Options) (*url.URL, error) {
	if opts.ProxyServer == "" {
		return nil, nil
	}

	proxyURL, err := url.Parse(opts.ProxyServer)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy server %q: %w", opts.ProxyServer, err)
	}
	if proxyURL.Scheme == "" || proxyURL.Host == "" {
		return nil, fmt.Errorf("proxy server must be an absolute URL (got %q)", opts.ProxyServer)
	}

	if opts.ProxyUsername != "" {
		if opts.ProxyPassword != "" {
			proxyURL.User = url.UserPassword(opts.ProxyUsername, opts.ProxyPassword)
		} else {
			proxyURL.User = url.User(opts.ProxyUsername)
		}
	}

	return proxyURL, nil
}
