package tenant

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKey(t *testing.T) {
	h1 := HashKey("sk-axon-abc")
	h2 := HashKey("sk-axon-abc")
	h3 := HashKey("sk-axon-abd")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64, "hex sha256")
}

func TestCacheGetSet(t *testing.T) {
	cache := NewCache(10)

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	tctx := &Context{TenantID: "t1", AgentID: "a1"}
	cache.Set("hash1", tctx)

	got, ok := cache.Get("hash1")
	require.True(t, ok)
	assert.Same(t, tctx, got)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheSetOverwrites(t *testing.T) {
	cache := NewCache(10)
	cache.Set("hash1", &Context{TenantID: "t1"})
	cache.Set("hash1", &Context{TenantID: "t2"})

	got, ok := cache.Get("hash1")
	require.True(t, ok)
	assert.Equal(t, "t2", got.TenantID)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheLRUEviction(t *testing.T) {
	cache := NewCache(3)
	for i := 1; i <= 3; i++ {
		cache.Set(fmt.Sprintf("hash%d", i), &Context{TenantID: fmt.Sprintf("t%d", i)})
	}

	// Touch hash1 so hash2 becomes the LRU victim.
	_, ok := cache.Get("hash1")
	require.True(t, ok)

	cache.Set("hash4", &Context{TenantID: "t4"})

	_, ok = cache.Get("hash2")
	assert.False(t, ok, "least recently used entry evicted")
	for _, h := range []string{"hash1", "hash3", "hash4"} {
		_, ok := cache.Get(h)
		assert.True(t, ok, h)
	}
	assert.Equal(t, 3, cache.Len())
}

func TestCacheInvalidate(t *testing.T) {
	cache := NewCache(10)
	cache.Set("hash1", &Context{TenantID: "t1"})
	cache.Set("hash2", &Context{TenantID: "t1"})
	cache.Set("hash3", &Context{TenantID: "t2"})

	cache.Invalidate("hash1")
	_, ok := cache.Get("hash1")
	assert.False(t, ok)
	assert.Equal(t, 2, cache.Len())

	// Invalidating a missing hash is a no-op.
	cache.Invalidate("hash1")
	assert.Equal(t, 2, cache.Len())
}

func TestCacheInvalidateTenant(t *testing.T) {
	cache := NewCache(10)
	cache.Set("hash1", &Context{TenantID: "t1"})
	cache.Set("hash2", &Context{TenantID: "t1"})
	cache.Set("hash3", &Context{TenantID: "t2"})

	cache.InvalidateTenant("t1")

	_, ok := cache.Get("hash1")
	assert.False(t, ok)
	_, ok = cache.Get("hash2")
	assert.False(t, ok)
	_, ok = cache.Get("hash3")
	assert.True(t, ok)
}

func TestCacheDefaultCapacity(t *testing.T) {
	cache := NewCache(0)
	for i := 0; i < DefaultCacheCapacity+10; i++ {
		cache.Set(fmt.Sprintf("hash%d", i), &Context{TenantID: "t"})
	}
	assert.Equal(t, DefaultCacheCapacity, cache.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache := NewCache(64)
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 500; i++ {
				hash := fmt.Sprintf("hash%d", i%100)
				cache.Set(hash, &Context{TenantID: fmt.Sprintf("t%d", g)})
				cache.Get(hash)
				if i%50 == 0 {
					cache.InvalidateTenant(fmt.Sprintf("t%d", g))
				}
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}
	assert.LessOrEqual(t, cache.Len(), 64)
}
