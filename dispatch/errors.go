package dispatch

import (
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
)

// SSLError indicates the remote certificate failed verification
// (expired, untrusted, or hostname mismatch).
type SSLError struct {
	URL string
	Err error
}

func (e *SSLError) Error() string {
	return fmt.Sprintf("tls verification failed for %s: %v", e.URL, e.Err)
}

func (e *SSLError) Unwrap() error { return e.Err }

// InsecureConnectionError indicates the egress guard destroyed a connection
// to a non-public address range.
type InsecureConnectionError struct {
	URL string
	Err error
}

func (e *InsecureConnectionError) Error() string {
	return fmt.Sprintf("insecure connection refused for %s: %v", e.URL, e.Err)
}

func (e *InsecureConnectionError) Unwrap() error { return e.Err }

// DNSResolutionError indicates the hostname could not be resolved.
type DNSResolutionError struct {
	URL string
	Err error
}

func (e *DNSResolutionError) Error() string {
	return fmt.Sprintf("dns resolution failed for %s: %v", e.URL, e.Err)
}

func (e *DNSResolutionError) Unwrap() error { return e.Err }

// errGuardRefused marks guard refusals so NormalizeError can classify them
// after net/http wraps them in url.Error and OpError layers.
var errGuardRefused = errors.New("egress guard refused connection")

// NormalizeError maps raw transport errors onto the dispatcher's error
// taxonomy. Errors that match no known class are returned unchanged.
func NormalizeError(urlStr string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, errGuardRefused) {
		return &InsecureConnectionError{URL: urlStr, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &DNSResolutionError{URL: urlStr, Err: err}
	}

	var certErr *x509.CertificateInvalidError
	var unknownAuthErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthErr) || errors.As(err, &hostErr) {
		return &SSLError{URL: urlStr, Err: err}
	}
	// Some TLS failures only surface as text (e.g. alert descriptions from
	// the remote), so fall back to a substring check.
	if strings.Contains(err.Error(), "x509:") || strings.Contains(err.Error(), "tls:") {
		return &SSLError{URL: urlStr, Err: err}
	}

	return err
}
