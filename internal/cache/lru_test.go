package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUPutGet(t *testing.T) {
	c := NewLRU[string](3, 0)

	c.Put("a", "1")
	c.Put("b", "2")

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRUCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](3, 0)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("d", 4)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "entry %q should survive", key)
	}
	assert.Equal(t, 3, c.Len())
}

func TestLRUPutReplacesExisting(t *testing.T) {
	c := NewLRU[int](2, 0)

	c.Put("a", 1)
	c.Put("a", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestLRUTTLExpiresLazily(t *testing.T) {
	c := NewLRU[string](10, time.Minute)

	base := time.Now()
	c.now = func() time.Time { return base }

	c.Put("a", "1")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	// Entry stays resident until touched after expiry.
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.Equal(t, 1, c.Len())

	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUPutRefreshesTTL(t *testing.T) {
	c := NewLRU[string](10, time.Minute)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put("a", "1")

	c.now = func() time.Time { return base.Add(45 * time.Second) }
	c.Put("a", "2")

	// 90s after the first Put but only 45s after the refresh.
	c.now = func() time.Time { return base.Add(90 * time.Second) }
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestLRUDeleteAndPurge(t *testing.T) {
	c := NewLRU[int](10, 0)

	c.Put("a", 1)
	c.Put("b", 2)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Delete("a") // deleting twice is a no-op

	c.Purge()
	assert.Equal(t, 0, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestLRUConcurrentAccess(t *testing.T) {
	c := NewLRU[int](64, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%100)
				c.Put(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}
