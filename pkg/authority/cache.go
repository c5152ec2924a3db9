package authority

import (
	"context"
	"sync"
)

// VersionCache caches the version listing per artifact. Implementations
// must treat any internal failure as a miss; the gateway remains the
// source of truth.
type VersionCache interface {
	Get(ctx context.Context, name string) ([]Version, bool)
	Set(ctx context.Context, name string, versions []Version)
	Invalidate(ctx context.Context, name string)
}

// MemoryCache is the in-process default.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]Version
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]Version)}
}

func (c *MemoryCache) Get(_ context.Context, name string) ([]Version, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	versions, ok := c.entries[name]
	return versions, ok
}

func (c *MemoryCache) Set(_ context.Context, name string, versions []Version) {
	c.mu.Lock()
	c.entries[name] = versions
	c.mu.Unlock()
}

func (c *MemoryCache) Invalidate(_ context.Context, name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}
