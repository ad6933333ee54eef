package cache_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/launchkit/pkg/cache"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLRUCache(t *testing.T) {
	t.Parallel()

	t.Run("evicts least recently used", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](2)
		c.Put("a", 1, 0)
		c.Put("b", 2, 0)
		_, _ = c.Get("a")
		c.Put("c", 3, 0)

		_, ok := c.Get("b")
		assert.False(t, ok)
		v, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("entries expire", func(t *testing.T) {
		t.Parallel()
		clk := &clock{t: time.Unix(1000, 0)}
		c := cache.NewLRUCache[string, bool](10).WithClock(clk.now)
		c.Put("tok", true, time.Minute)

		_, ok := c.Get("tok")
		assert.True(t, ok)

		clk.advance(time.Minute)
		_, ok = c.Get("tok")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("put if absent", func(t *testing.T) {
		t.Parallel()
		clk := &clock{t: time.Unix(1000, 0)}
		c := cache.NewLRUCache[string, bool](10).WithClock(clk.now)

		assert.True(t, c.PutIfAbsent("id", true, time.Second))
		assert.False(t, c.PutIfAbsent("id", true, time.Second))
		clk.advance(2 * time.Second)
		assert.True(t, c.PutIfAbsent("id", true, time.Second))
	})

	t.Run("put if absent is atomic", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, bool](10)
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if c.PutIfAbsent("id", true, time.Minute) {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("remove", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRUCache[string, int](2)
		c.Put("a", 1, 0)
		assert.True(t, c.Remove("a"))
		assert.False(t, c.Remove("a"))
	})

	t.Run("invalid capacity", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { cache.NewLRUCache[string, int](0) })
	})
}
