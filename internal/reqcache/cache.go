// Package reqcache memoizes idempotent server reads for a short window so
// that tight polling loops from several callers hit the server once.
package reqcache

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"torrserve/internal/metrics"
	"torrserve/internal/transport"
)

// DefaultTTL is the window within which identical reads are collapsed.
const DefaultTTL = 500 * time.Millisecond

type entry struct {
	resp     *transport.Response
	storedAt time.Time
}

// Cache is safe for concurrent use and is meant to be shared by every
// handle talking to the same process.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	group   singleflight.Group
	now     func() time.Time
}

// New returns a cache with the given window. A non-positive ttl disables
// caching; requests still pass through.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Do returns the response stored under key within the window, or calls
// fetch. Concurrent misses for the same key share one fetch. Errors are
// never stored.
func (c *Cache) Do(key string, fetch func() (*transport.Response, error)) (*transport.Response, error) {
	if c.ttl <= 0 {
		return fetch()
	}
	if resp, ok := c.lookup(key); ok {
		metrics.RequestCacheHitsTotal.Inc()
		return resp, nil
	}
	metrics.RequestCacheMissesTotal.Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		resp, err := fetch()
		if err != nil {
			return nil, err
		}
		c.store(key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*transport.Response), nil
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(c.now())
	return len(c.entries)
}

func (c *Cache) lookup(key string) (*transport.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(c.now())
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.resp, true
}

func (c *Cache) store(key string, resp *transport.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{resp: resp, storedAt: c.now()}
}

// evictLocked drops entries older than the window. Caller holds c.mu.
func (c *Cache) evictLocked(now time.Time) {
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
}

type cachingClient struct {
	next  transport.Client
	cache *Cache
}

// Wrap returns a client that answers Cacheable requests through cache and
// forwards everything else unchanged.
func Wrap(next transport.Client, cache *Cache) transport.Client {
	if cache == nil {
		return next
	}
	return &cachingClient{next: next, cache: cache}
}

func (c *cachingClient) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	if !req.Cacheable {
		return c.next.Do(ctx, req)
	}
	return c.cache.Do(req.Key(), func() (*transport.Response, error) {
		return c.next.Do(ctx, req)
	})
}

func (c *cachingClient) Stream(ctx context.Context, url string) (io.ReadCloser, error) {
	return c.next.Stream(ctx, url)
}
