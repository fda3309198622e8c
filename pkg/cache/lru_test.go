package cache_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

type eviction struct {
	key   string
	value int
}

func newRecordingLRU(capacity int) (*cache.LRU[string, int], *[]eviction) {
	var evicted []eviction
	c := cache.NewLRU(capacity, func(k string, v int) {
		evicted = append(evicted, eviction{k, v})
	})
	return c, &evicted
}

func TestLRU_GetAdd(t *testing.T) {
	t.Parallel()

	c, evicted := newRecordingLRU(2)

	assert.False(t, c.Add("tpl:welcome", 1))
	assert.False(t, c.Add("tpl:digest", 2))

	v, ok := c.Get("tpl:welcome")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("tpl:missing")
	assert.False(t, ok)

	assert.False(t, c.Add("tpl:welcome", 10), "replacing a key never evicts")
	v, _ = c.Peek("tpl:welcome")
	assert.Equal(t, 10, v)
	assert.Empty(t, *evicted)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c, evicted := newRecordingLRU(3)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	// Touch "a" so "b" becomes the oldest.
	_, _ = c.Get("a")

	assert.True(t, c.Add("d", 4))
	assert.Equal(t, []eviction{{"b", 2}}, *evicted)
	assert.Equal(t, []string{"d", "a", "c"}, c.Keys())

	_, ok := c.Peek("b")
	assert.False(t, ok)
}

func TestLRU_PeekKeepsRecency(t *testing.T) {
	t.Parallel()

	c, evicted := newRecordingLRU(2)
	c.Add("a", 1)
	c.Add("b", 2)

	_, ok := c.Peek("a")
	require.True(t, ok)
	c.Add("c", 3)

	assert.Equal(t, []eviction{{"a", 1}}, *evicted)
}

func TestLRU_RemoveAndPurge(t *testing.T) {
	t.Parallel()

	c, evicted := newRecordingLRU(4)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	assert.True(t, c.Remove("b"))
	assert.False(t, c.Remove("b"))
	assert.Equal(t, []eviction{{"b", 2}}, *evicted)

	c.Purge()
	assert.Zero(t, c.Len())
	assert.Empty(t, c.Keys())
	assert.ElementsMatch(t, []eviction{{"b", 2}, {"a", 1}, {"c", 3}}, *evicted)

	c.Add("z", 26)
	assert.Equal(t, []string{"z"}, c.Keys())
}

func TestLRU_CapacityOne(t *testing.T) {
	t.Parallel()

	c, evicted := newRecordingLRU(1)
	c.Add("a", 1)
	assert.True(t, c.Add("b", 2))
	assert.Equal(t, []string{"b"}, c.Keys())
	assert.Equal(t, []eviction{{"a", 1}}, *evicted)
}

func TestNewLRU_InvalidCapacity(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { cache.NewLRU[string, int](0, nil) })
	assert.Panics(t, func() { cache.NewLRU[string, int](-1, nil) })
}

func TestLRU_Concurrent(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU[string, int](50, nil)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("k%d", (g*200+i)%80)
				c.Add(key, i)
				_, _ = c.Get(key)
				if i%7 == 0 {
					c.Remove(key)
				}
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
	assert.Len(t, c.Keys(), c.Len())
}
