package marketdata

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache guarded by a RWMutex.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]Chain
	now     func() time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]Chain),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, symbol string) (Chain, error) {
	c.mu.RLock()
	chain, ok := c.entries[symbol]
	c.mu.RUnlock()

	if !ok || c.stale(chain) {
		return Chain{}, ErrUnavailable
	}
	return chain, nil
}

func (c *MemoryCache) Set(_ context.Context, symbol string, chain Chain) error {
	if chain.FetchedAt.IsZero() {
		chain.FetchedAt = c.now()
	}
	c.mu.Lock()
	c.entries[symbol] = chain
	c.mu.Unlock()
	return nil
}

// Purge drops stale entries and returns how many were removed.
func (c *MemoryCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for symbol, chain := range c.entries {
		if c.stale(chain) {
			delete(c.entries, symbol)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) stale(chain Chain) bool {
	return c.ttl > 0 && c.now().Sub(chain.FetchedAt) > c.ttl
}
