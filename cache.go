package ecoguard

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process Cache backed by go-cache.
type MemoryCache struct {
	c *gocache.Cache
}

// NewMemoryCache returns a cache whose entries expire after ttl.
// Expired entries are purged every cleanup interval.
func NewMemoryCache(ttl, cleanup time.Duration) *MemoryCache {
	return &MemoryCache{c: gocache.New(ttl, cleanup)}
}

// Key joins prefix and value into a cache key.
func (m *MemoryCache) Key(prefix, value string) string {
	return prefix + ":" + value
}

// Get copies the cached value into dest. Only *Fingerprint and *string
// destinations are supported; anything else is a miss.
func (m *MemoryCache) Get(_ context.Context, key string, dest any) bool {
	v, ok := m.c.Get(key)
	if !ok {
		return false
	}
	switch d := dest.(type) {
	case *Fingerprint:
		fp, ok := v.(Fingerprint)
		if !ok {
			return false
		}
		*d = fp
	case *string:
		s, ok := v.(string)
		if !ok {
			return false
		}
		*d = s
	default:
		return false
	}
	return true
}

// Set stores value with the default expiration.
func (m *MemoryCache) Set(_ context.Context, key string, value any) {
	m.c.SetDefault(key, value)
}

// Len returns the number of cached items, including expired ones not yet purged.
func (m *MemoryCache) Len() int {
	return m.c.ItemCount()
}
