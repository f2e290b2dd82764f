// Package cache implements an in-memory blob cache using groupcache's LRU.
package cache

import (
	"sync"

	"github.com/fwojciec/diffset"
	"github.com/golang/groupcache/lru"
)

// DefaultMaxEntries bounds the cache when no size is given.
const DefaultMaxEntries = 1024

// Compile-time interface verification.
var _ diffset.BlobCache = (*LRU)(nil)

type key struct {
	path     string
	revision diffset.Revision
}

// LRU is a size-bounded, concurrency-safe blob cache.
type LRU struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// New creates a cache holding at most maxEntries blobs. Zero or less
// uses DefaultMaxEntries.
func New(maxEntries int) *LRU {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &LRU{cache: lru.New(maxEntries)}
}

// Get returns the cached blob for path at revision.
func (c *LRU) Get(path string, revision diffset.Revision) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(key{path, revision})
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Add stores data for path at revision. Blobs are immutable per revision so
// an existing entry is simply refreshed.
func (c *LRU) Add(path string, revision diffset.Revision, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key{path, revision}, data)
}

// Len returns the number of cached blobs.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
