package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is the in-process validator cache used by default.
type MemoryCache struct {
	entries map[string]*Entry
	mu      sync.RWMutex
	config  Config
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMemoryCache creates an in-memory cache with periodic expiry sweeps.
func NewMemoryCache(config Config) *MemoryCache {
	config = applyDefaults(config)

	mc := &MemoryCache{
		entries: make(map[string]*Entry),
		config:  config,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go mc.cleanup()

	return mc
}

// Get retrieves an entry, returning nil when absent or expired.
func (mc *MemoryCache) Get(ctx context.Context, url string) (*Entry, error) {
	mc.mu.RLock()
	entry, exists := mc.entries[url]
	mc.mu.RUnlock()

	if !exists {
		return nil, nil
	}

	if time.Since(entry.StoredAt) > mc.config.TTL {
		mc.mu.Lock()
		delete(mc.entries, url)
		mc.mu.Unlock()
		return nil, nil
	}

	return entry, nil
}

// Set stores a copy of the entry keyed by its URL.
func (mc *MemoryCache) Set(ctx context.Context, entry *Entry) error {
	entryCopy := *entry
	entryCopy.Body = make([]byte, len(entry.Body))
	copy(entryCopy.Body, entry.Body)
	if entryCopy.StoredAt.IsZero() {
		entryCopy.StoredAt = time.Now()
	}

	mc.mu.Lock()
	mc.entries[entry.URL] = &entryCopy
	mc.mu.Unlock()
	return nil
}

// Delete removes the entry for a URL.
func (mc *MemoryCache) Delete(ctx context.Context, url string) error {
	mc.mu.Lock()
	delete(mc.entries, url)
	mc.mu.Unlock()
	return nil
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	close(mc.stopCh)
	<-mc.doneCh
	return nil
}

// Len returns the number of live entries.
func (mc *MemoryCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.entries)
}

// cleanup periodically removes expired entries.
func (mc *MemoryCache) cleanup() {
	defer close(mc.doneCh)

	ticker := time.NewTicker(mc.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mc.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			mc.mu.Lock()
			for url, entry := range mc.entries {
				if now.Sub(entry.StoredAt) > mc.config.TTL {
					delete(mc.entries, url)
				}
			}
			mc.mu.Unlock()
		}
	}
}
