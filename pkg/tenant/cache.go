package tenant

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// DefaultCacheCapacity bounds the number of resolved contexts kept in memory.
const DefaultCacheCapacity = 1000

// HashKey returns the hex SHA-256 of a raw API key. The raw key is
// never stored; the hash is the cache key and the database lookup key.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	hash string
	tctx *Context
}

// Cache is a fixed-capacity LRU mapping sha256(raw key) → *Context.
// LRU order is updated on both read and write; eviction is strict
// least-recently-used with no TTL. Staleness is bounded by explicit
// Invalidate calls from the admin CRUD layer.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List               // front = most recently used
	entries  map[string]*list.Element // hash → element holding *cacheEntry
}

// NewCache creates an LRU cache. Non-positive capacity falls back to
// DefaultCacheCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the cached context for a key hash, marking it most
// recently used.
func (c *Cache) Get(hash string) (*Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[hash]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).tctx, true
}

// Set stores a resolved context, evicting the least recently used entry
// when the cache is full.
func (c *Cache) Set(hash string, tctx *Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[hash]; ok {
		elem.Value.(*cacheEntry).tctx = tctx
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).hash)
		}
	}

	c.entries[hash] = c.order.PushFront(&cacheEntry{hash: hash, tctx: tctx})
}

// Invalidate removes a single key hash. Used on key revocation.
func (c *Cache) Invalidate(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[hash]; ok {
		c.order.Remove(elem)
		delete(c.entries, hash)
	}
}

// InvalidateTenant removes every cached context belonging to a tenant.
// Used when tenant or agent configuration changes.
func (c *Cache) InvalidateTenant(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for hash, elem := range c.entries {
		if elem.Value.(*cacheEntry).tctx.TenantID == tenantID {
			c.order.Remove(elem)
			delete(c.entries, hash)
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
