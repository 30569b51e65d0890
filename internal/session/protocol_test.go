package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kvOnly hides Memory's Wipe so the dispatcher's fallback path is reachable.
type kvOnly struct{ kv KV }

func (k kvOnly) Get(key string) ([]byte, error) { return k.kv.Get(key) }
func (k kvOnly) Put(key string, v []byte, ttl time.Duration) error {
	return k.kv.Put(key, v, ttl)
}
func (k kvOnly) Delete(key string) error { return k.kv.Delete(key) }

func TestHandle(t *testing.T) {
	t.Run("put then get round trips", func(t *testing.T) {
		kv := NewMemory()
		resp := Handle(kv, Request{Op: OpPut, Key: "k", Value: []byte("v")})
		require.True(t, resp.OK)
		resp = Handle(kv, Request{Op: OpGet, Key: "k"})
		require.True(t, resp.OK)
		assert.Equal(t, "v", string(resp.Value))
	})

	t.Run("get miss carries the sentinel text", func(t *testing.T) {
		resp := Handle(NewMemory(), Request{Op: OpGet, Key: "missing"})
		assert.False(t, resp.OK)
		assert.Equal(t, ErrNotFound.Error(), resp.Error)
	})

	t.Run("wipe clears everything", func(t *testing.T) {
		kv := NewMemory()
		Handle(kv, Request{Op: OpPut, Key: KeyAccessToken, Value: []byte("tok")})
		resp := Handle(kv, Request{Op: OpWipe})
		require.True(t, resp.OK)
		resp = Handle(kv, Request{Op: OpGet, Key: KeyAccessToken})
		assert.False(t, resp.OK)
	})

	t.Run("wipe on a store without support fails", func(t *testing.T) {
		resp := Handle(kvOnly{kv: NewMemory()}, Request{Op: OpWipe})
		assert.False(t, resp.OK)
	})

	t.Run("unknown op fails", func(t *testing.T) {
		resp := Handle(NewMemory(), Request{Op: "truncate"})
		assert.False(t, resp.OK)
	})
}
