package orgconfig

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a loaded configuration is reused before the
// table is consulted again.
const DefaultCacheTTL = 5 * time.Minute

// Cache wraps a [Loader] with an in-process TTL cache. Concurrent misses for
// the same org/config pair coalesce into one table read.
type Cache struct {
	inner Loader
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	group singleflight.Group

	now func() time.Time
}

type cacheEntry struct {
	cfg      *Config
	loadedAt time.Time
}

var _ Loader = (*Cache)(nil)

// NewCache wraps inner with a TTL cache; ttl <= 0 uses [DefaultCacheTTL].
func NewCache(inner Loader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Load implements [Loader].
func (c *Cache) Load(ctx context.Context, orgID, configID string) (*Config, error) {
	key := orgID + "/" + configID

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.loadedAt) < c.ttl {
		return e.cfg, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		cfg, err := c.inner.Load(ctx, orgID, configID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{cfg: cfg, loadedAt: c.now()}
		c.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Config), nil
}
