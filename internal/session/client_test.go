package session

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveKV runs a minimal daemon loop over a unix socket, backed by kv.
func serveKV(t *testing.T, kv KV) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "session.sock")
	l, err := net.Listen("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				dec := json.NewDecoder(conn)
				enc := json.NewEncoder(conn)
				for {
					var req Request
					if err := dec.Decode(&req); err != nil {
						return
					}
					if err := enc.Encode(Handle(kv, req)); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return sock
}

func TestClient_RoundTrip(t *testing.T) {
	sock := serveKV(t, NewMemory())
	c := NewClient(sock)

	require.NoError(t, c.Put(KeyAccessToken, []byte("tok"), 0))
	v, err := c.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tok", string(v))

	require.NoError(t, c.Delete(KeyAccessToken))
	_, err = c.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_SentinelErrorsCrossTheSocket(t *testing.T) {
	mem := NewMemory()
	sock := serveKV(t, mem)
	c := NewClient(sock)

	_, err := c.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mem.Put("ephemeral", []byte("x"), 1*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	_, err = c.Get("ephemeral")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestClient_DaemonUnreachable(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "nowhere.sock"))
	_, err := c.Get(KeyAccessToken)
	assert.Error(t, err)
}

func TestClient_Wipe(t *testing.T) {
	mem := NewMemory()
	sock := serveKV(t, mem)
	c := NewClient(sock)

	require.NoError(t, c.Put(KeyAccessToken, []byte("tok"), 0))
	require.NoError(t, c.Put(KeyUser, []byte(`{"id":1}`), 0))

	require.NoError(t, c.Wipe())

	_, err := c.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get(KeyUser)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_TypedSessionOverSocket(t *testing.T) {
	sock := serveKV(t, NewMemory())
	s := New(NewClient(sock))

	require.NoError(t, s.SetToken("tok-socket", 0))
	require.NoError(t, s.SetAdminView(AdminView{Role: "accountant", UserID: "9"}))

	assert.Equal(t, "tok-socket", s.Token())
	assert.True(t, s.AdminView().Impersonating())

	require.NoError(t, s.Clear())
	assert.Empty(t, s.Token())
}
