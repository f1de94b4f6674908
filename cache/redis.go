package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the Redis-backed validator cache, used when multiple
// instances should share revalidation state.
type RedisCache struct {
	client *redis.Client
	config Config
}

// NewRedisCache creates a Redis cache with an existing client.
func NewRedisCache(client *redis.Client, config Config) *RedisCache {
	return &RedisCache{
		client: client,
		config: applyDefaults(config),
	}
}

// NewRedisCacheFromURL creates a Redis cache from a Redis URL
// (redis://[user[:password]@]host[:port][/db]).
func NewRedisCacheFromURL(redisURL string, config Config) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return NewRedisCache(redis.NewClient(opts), config), nil
}

// Get retrieves an entry from Redis, returning nil when absent.
func (rc *RedisCache) Get(ctx context.Context, url string) (*Entry, error) {
	data, err := rc.client.Get(ctx, rc.key(url)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

// Set stores an entry in Redis with the configured TTL.
func (rc *RedisCache) Set(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := rc.client.Set(ctx, rc.key(entry.URL), data, rc.config.TTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes the entry for a URL.
func (rc *RedisCache) Delete(ctx context.Context, url string) error {
	if err := rc.client.Del(ctx, rc.key(url)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// key namespaces a URL under the configured prefix.
func (rc *RedisCache) key(url string) string {
	return rc.config.Prefix + url
}
