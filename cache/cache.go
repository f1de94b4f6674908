// Package cache stores conditional-GET validators (ETag / Last-Modified)
// together with the last response body so the fetch engine can revalidate
// instead of re-downloading.
package cache

import (
	"context"
	"time"
)

// Entry is a cached response with its HTTP validators.
type Entry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	StatusCode   int       `json:"status_code"`
	ContentType  string    `json:"content_type,omitempty"`
	Body         []byte    `json:"body"`
	StoredAt     time.Time `json:"stored_at"`
}

// HasValidators reports whether the entry carries anything usable for a
// conditional request.
func (e *Entry) HasValidators() bool {
	return e != nil && (e.ETag != "" || e.LastModified != "")
}

// Cache is the validator store. Implementations are safe for concurrent use;
// writes are last-writer-wins.
type Cache interface {
	// Get returns the entry for a URL, or nil when absent.
	Get(ctx context.Context, url string) (*Entry, error)
	// Set stores an entry keyed by its URL.
	Set(ctx context.Context, entry *Entry) error
	// Delete removes the entry for a URL.
	Delete(ctx context.Context, url string) error
	// Close releases resources held by the cache.
	Close() error
}

// Config holds cache tuning shared by implementations.
type Config struct {
	// TTL bounds how long validators are kept (default 24h).
	TTL time.Duration
	// CleanupInterval controls expiry sweeps for the memory cache.
	CleanupInterval time.Duration
	// Prefix namespaces keys in shared backends.
	Prefix string
}

// DefaultConfig returns a cache config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:             24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
		Prefix:          "docsurf:validators:",
	}
}

// applyDefaults fills zero fields from DefaultConfig.
func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.TTL == 0 {
		cfg.TTL = def.TTL
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	return cfg
}
