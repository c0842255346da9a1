package httpapi

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache keeps rendered responses for a per-key TTL. Failed fills are not
// cached.
type Cache struct {
	items *gocache.Cache
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{items: gocache.New(gocache.NoExpiration, time.Minute)}
}

// Get returns the cached body for key, calling fill when it is missing or
// expired. A ttl of zero always calls fill.
func (c *Cache) Get(key string, ttl time.Duration, fill func() ([]byte, error)) ([]byte, error) {
	if ttl <= 0 {
		return fill()
	}
	if v, ok := c.items.Get(key); ok {
		return v.([]byte), nil
	}

	body, err := fill()
	if err != nil {
		return nil, err
	}
	c.items.Set(key, body, ttl)
	return body, nil
}
