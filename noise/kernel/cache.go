package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes kernels by quantized parameter key. Concurrent misses on
// the same key share a single construction.
type Cache[K comparable] struct {
	mu      sync.RWMutex
	entries map[K]*Kernel
	group   singleflight.Group

	builds atomic.Int64
	hits   atomic.Int64
}

// NewCache returns an empty cache.
func NewCache[K comparable]() *Cache[K] {
	return &Cache[K]{entries: make(map[K]*Kernel)}
}

// Get returns the kernel cached under key, calling build on a miss. A failed
// build is not cached.
func (c *Cache[K]) Get(key K, build func() (*Kernel, error)) (*Kernel, error) {
	if k, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return k, nil
	}

	v, err, _ := c.group.Do(fmt.Sprintf("%#v", key), func() (any, error) {
		// A flight for this key may have finished between lookup and Do.
		if k, ok := c.lookup(key); ok {
			return k, nil
		}

		k, err := build()
		if err != nil {
			return nil, err
		}

		c.builds.Add(1)

		c.mu.Lock()
		c.entries[key] = k
		c.mu.Unlock()

		return k, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Kernel), nil
}

func (c *Cache[K]) lookup(key K) (*Kernel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k, ok := c.entries[key]

	return k, ok
}

// Len returns the number of cached kernels.
func (c *Cache[K]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Stats returns construction and hit counts.
func (c *Cache[K]) Stats() CacheStats {
	return CacheStats{
		Entries: c.Len(),
		Builds:  c.builds.Load(),
		Hits:    c.hits.Load(),
	}
}

// CacheStats summarises one cache.
type CacheStats struct {
	Entries int
	Builds  int64
	Hits    int64
}
