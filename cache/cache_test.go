package cache_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fwojciec/diffset"
	"github.com/fwojciec/diffset/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_GetMiss(t *testing.T) {
	t.Parallel()

	c := cache.New(4)

	_, ok := c.Get("README", "abc123")

	assert.False(t, ok)
}

func TestLRU_KeyedByPathAndRevision(t *testing.T) {
	t.Parallel()

	c := cache.New(4)
	c.Add("README", "abc123", []byte("old"))
	c.Add("README", "def456", []byte("new"))

	got, ok := c.Get("README", "abc123")
	require.True(t, ok)
	assert.Equal(t, []byte("old"), got)

	got, ok = c.Get("README", "def456")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)

	_, ok = c.Get("OTHER", "abc123")
	assert.False(t, ok)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := cache.New(2)
	c.Add("a", diffset.Head, []byte("a"))
	c.Add("b", diffset.Head, []byte("b"))
	_, _ = c.Get("a", diffset.Head)
	c.Add("c", diffset.Head, []byte("c"))

	_, ok := c.Get("b", diffset.Head)
	assert.False(t, ok)
	_, ok = c.Get("a", diffset.Head)
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_DefaultSize(t *testing.T) {
	t.Parallel()

	c := cache.New(0)
	for i := 0; i < cache.DefaultMaxEntries+10; i++ {
		c.Add(fmt.Sprintf("f%d", i), diffset.Head, nil)
	}

	assert.Equal(t, cache.DefaultMaxEntries, c.Len())
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := cache.New(16)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("f%d", i%4)
			c.Add(path, diffset.Head, []byte(path))
			got, ok := c.Get(path, diffset.Head)
			if ok {
				assert.Equal(t, []byte(path), got)
			}
		}(i)
	}
	wg.Wait()
}
