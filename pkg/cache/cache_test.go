package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetSet(t *testing.T) {
	t.Run("get after set returns value", func(t *testing.T) {
		c := New()
		c.Set("prices:GALA", 0.018, time.Minute)

		v, ok := c.Get("prices:GALA")
		require.True(t, ok)
		assert.Equal(t, 0.018, v)
	})

	t.Run("get after ttl elapsed is a miss", func(t *testing.T) {
		now := time.Now()
		c := New(WithClock(func() time.Time { return now }))

		c.Set("quotes:k", "v", 10*time.Second)
		now = now.Add(10 * time.Second) // exactly at expiry

		_, ok := c.Get("quotes:k")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len(), "expired entry must be discarded on read")
	})

	t.Run("miss on unknown key", func(t *testing.T) {
		c := New()
		_, ok := c.Get("nope")
		assert.False(t, ok)
	})

	t.Run("set replaces existing entry", func(t *testing.T) {
		c := New()
		c.Set("k", 1, time.Minute)
		c.Set("k", 2, time.Minute)

		v, ok := c.Get("k")
		require.True(t, ok)
		assert.Equal(t, 2, v)
		assert.Equal(t, 1, c.Len())
	})
}

func TestCache_Eviction(t *testing.T) {
	t.Run("oldest created is evicted first", func(t *testing.T) {
		c := New(WithCapacity(3))
		c.Set("a", 1, time.Minute)
		c.Set("b", 2, time.Minute)
		c.Set("c", 3, time.Minute)

		// touching "a" must not protect it: eviction is by creation time
		_, ok := c.Get("a")
		require.True(t, ok)

		c.Set("d", 4, time.Minute)

		_, ok = c.Get("a")
		assert.False(t, ok, "oldest entry should be gone")
		for _, k := range []string{"b", "c", "d"} {
			_, ok := c.Get(k)
			assert.True(t, ok, k)
		}
	})

	t.Run("capacity is never exceeded", func(t *testing.T) {
		c := New(WithCapacity(5))
		for i := 0; i < 20; i++ {
			c.Set(fmt.Sprintf("k%d", i), i, time.Minute)
		}
		assert.Equal(t, 5, c.Len())
	})
}

func TestCache_InvalidateFlush(t *testing.T) {
	c := New()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)

	c.FlushAll()
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
