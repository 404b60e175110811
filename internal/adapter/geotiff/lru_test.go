package geotiff

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)
	a := &handle{}

	got, evicted := c.putIfAbsent("a", a)
	assert.Same(t, a, got)
	assert.Empty(t, evicted)

	h, ok := c.get("a")
	require.True(t, ok)
	assert.Same(t, a, h)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache(2)
	a, b, d := &handle{}, &handle{}, &handle{}

	c.putIfAbsent("a", a)
	c.putIfAbsent("b", b)
	c.get("a") // b is now least recently used

	_, evicted := c.putIfAbsent("d", d)
	require.Len(t, evicted, 1)
	assert.Same(t, b, evicted[0])

	_, ok := c.get("b")
	assert.False(t, ok)
	_, ok = c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_PutIfAbsentKeepsExisting(t *testing.T) {
	c := newLRUCache(2)
	first, second := &handle{}, &handle{}

	c.putIfAbsent("a", first)
	got, toClose := c.putIfAbsent("a", second)

	assert.Same(t, first, got)
	require.Len(t, toClose, 1)
	assert.Same(t, second, toClose[0], "the losing handle must be closed by the caller")
}

func TestLRUCache_Drain(t *testing.T) {
	c := newLRUCache(4)
	c.putIfAbsent("a", &handle{})
	c.putIfAbsent("b", &handle{})

	assert.Len(t, c.drain(), 2)
	assert.Equal(t, 0, c.len())
}

func TestLRUCache_MinimumSize(t *testing.T) {
	c := newLRUCache(0)
	c.putIfAbsent("a", &handle{})
	_, evicted := c.putIfAbsent("b", &handle{})
	assert.Len(t, evicted, 1)
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	c := newLRUCache(8)
	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				k := keys[(i+j)%len(keys)]
				if _, ok := c.get(k); !ok {
					c.putIfAbsent(k, &handle{})
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.len(), 8)
}
