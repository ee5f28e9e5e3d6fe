package params

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedStore keeps parameter reads across warm Lambda invocations
type CachedStore struct {
	next  Store
	cache *cache.Cache
}

// NewCachedStore wraps next with a TTL cache. A zero ttl defaults to five minutes.
func NewCachedStore(next Store, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &CachedStore{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Put writes through and refreshes the cached value
func (c *CachedStore) Put(ctx context.Context, key, value, description string) error {
	if err := c.next.Put(ctx, key, value, description); err != nil {
		c.cache.Delete(key)
		return err
	}
	c.cache.SetDefault(key, value)
	return nil
}

// Get returns a cached value or reads through
func (c *CachedStore) Get(ctx context.Context, key string) (string, error) {
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	v, err := c.next.Get(ctx, key)
	if err != nil {
		return "", err
	}
	c.cache.SetDefault(key, v)
	return v, nil
}

// List always reads through
func (c *CachedStore) List(ctx context.Context) (map[string]string, error) {
	return c.next.List(ctx)
}

// Flush drops every cached value
func (c *CachedStore) Flush() {
	c.cache.Flush()
}
