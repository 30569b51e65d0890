package gateway

import (
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseCache_FIFOBound(t *testing.T) {
	c := newResponseCache(100, time.Minute)

	for i := 0; i < 101; i++ {
		c.put(fmt.Sprintf("/purchase/%d", i), []byte(`{"n":1}`), "")
	}

	assert.Equal(t, 100, c.len())

	_, _, ok := c.get("/purchase/0")
	assert.False(t, ok, "first-inserted key should have been evicted")

	_, _, ok = c.get("/purchase/1")
	assert.True(t, ok)
	_, _, ok = c.get("/purchase/100")
	assert.True(t, ok)
}

func TestResponseCache_FIFONotLRU(t *testing.T) {
	c := newResponseCache(2, time.Minute)
	c.put("a", []byte("1"), "")
	c.put("b", []byte("2"), "")

	// Touching and even rewriting "a" must not save it: eviction order is
	// insertion order.
	_, _, ok := c.get("a")
	require.True(t, ok)
	c.put("a", []byte("1b"), "")

	c.put("c", []byte("3"), "")

	_, _, ok = c.get("a")
	assert.False(t, ok)
	_, _, ok = c.get("b")
	assert.True(t, ok)
	_, _, ok = c.get("c")
	assert.True(t, ok)
}

func TestResponseCache_TTL(t *testing.T) {
	c := newResponseCache(100, 30*time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.put("/projects", []byte(`[]`), `W/"abc"`)

	c.now = func() time.Time { return base.Add(29 * time.Second) }
	data, etag, ok := c.get("/projects")
	require.True(t, ok)
	assert.Equal(t, `[]`, string(data))
	assert.Equal(t, `W/"abc"`, etag)

	c.now = func() time.Time { return base.Add(31 * time.Second) }
	_, _, ok = c.get("/projects")
	assert.False(t, ok)
	assert.Equal(t, 0, c.len(), "expired entry is dropped on read")
}

func TestResponseCache_Clear(t *testing.T) {
	c := newResponseCache(100, time.Minute)
	c.put("a", []byte("1"), "")
	c.put("b", []byte("2"), "")
	c.clear()

	assert.Equal(t, 0, c.len())
	_, _, ok := c.get("a")
	assert.False(t, ok)

	// Cleared order must not ghost-evict new entries.
	c.put("c", []byte("3"), "")
	_, _, ok = c.get("c")
	assert.True(t, ok)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "/projects", cacheKey("/projects", nil))

	p1 := url.Values{"page": {"2"}, "size": {"50"}}
	p2 := url.Values{"size": {"50"}, "page": {"2"}}
	assert.Equal(t, cacheKey("/projects", p1), cacheKey("/projects", p2),
		"param order must not change the key")
	assert.NotEqual(t, cacheKey("/projects", p1), cacheKey("/tasks", p1))
}
