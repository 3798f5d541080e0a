package cache

import (
	"sync/atomic"
	"time"
)

// LayeredCache checks memory first, then disk, and promotes disk hits
type LayeredCache struct {
	memory *MemoryCache
	disk   *DiskCache

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLayeredCache creates a memory cache in front of a disk cache at diskDir
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return &LayeredCache{
		memory: NewMemoryCache(memoryTTL, 10*time.Minute),
		disk:   NewDiskCache(diskDir, diskTTL),
	}
}

func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		c.hits.Add(1)
		return val, true
	}

	if val, found := c.disk.Get(key); found {
		_ = c.memory.Set(key, val, 0)
		c.hits.Add(1)
		return val, true
	}

	c.misses.Add(1)
	return nil, false
}

// Set stores value in both layers
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	return c.disk.Set(key, value, ttl)
}

// Prune drops expired disk entries
func (c *LayeredCache) Prune() (int, error) {
	return c.disk.Prune()
}

// Stats returns hit and miss counts since creation
func (c *LayeredCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
