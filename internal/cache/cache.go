// Package cache stores fetched pages and dashboard snapshots.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

const keyPrefix = "vitals:v1:"

// CacheKey generates a cache key from a namespace and a URL or query string.
// Keys are safe to use as file names.
func CacheKey(namespace, raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return keyPrefix + namespace + ":" + hex.EncodeToString(hash[:])
}

// PageKey is the cache key of a fetched page
func PageKey(url string) string {
	return CacheKey("page", url)
}
