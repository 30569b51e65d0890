package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildhub/erp-mcp/internal/session"
)

type testBackend struct {
	*httptest.Server
	hits    atomic.Int64
	handler atomic.Value // func(w http.ResponseWriter, r *http.Request)
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{}
	b.handler.Store(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	})
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		b.handler.Load().(func(http.ResponseWriter, *http.Request))(w, r)
	}))
	t.Cleanup(b.Server.Close)
	return b
}

func (b *testBackend) respond(fn func(w http.ResponseWriter, r *http.Request)) {
	b.handler.Store(fn)
}

func newTestClient(t *testing.T, baseURL string, skipCache bool, mutate func(*Options)) (*Client, *session.Session) {
	t.Helper()
	sess := session.New(session.NewMemory())
	opts := Options{
		BaseURL:             baseURL,
		SkipCache:           &skipCache,
		Max401:              2,
		RecentSuccessWindow: 5 * time.Second,
		LogoutDebounce:      30 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts, sess)
	require.NoError(t, err)
	return c, sess
}

func TestClient_RequestDecoration(t *testing.T) {
	b := newTestBackend(t)
	var got http.Header
	b.respond(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	c, sess := newTestClient(t, b.URL, true, nil)
	require.NoError(t, sess.SetToken("tok-123", 0))
	require.NoError(t, sess.SetAdminView(session.AdminView{
		Role: "site_engineer", RoleID: "7", UserID: "42",
	}))

	_, err := c.Get(context.Background(), "/projects", nil)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", got.Get("Authorization"))
	assert.Equal(t, "true", got.Get("X-Skip-Cache"))
	assert.Equal(t, "site_engineer", got.Get("X-Viewing-As-Role"))
	assert.Equal(t, "7", got.Get("X-Viewing-As-Role-Id"))
	assert.Equal(t, "42", got.Get("X-Viewing-As-User-Id"))
	assert.NotEmpty(t, got.Get("X-Request-Id"))

	t.Run("trace ID differs per request", func(t *testing.T) {
		first := got.Get("X-Request-Id")
		_, err := c.Get(context.Background(), "/projects", nil)
		require.NoError(t, err)
		assert.NotEqual(t, first, got.Get("X-Request-Id"))
	})
}

func TestClient_NoImpersonationForAdminView(t *testing.T) {
	b := newTestBackend(t)
	var got http.Header
	b.respond(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	c, sess := newTestClient(t, b.URL, true, nil)
	require.NoError(t, sess.SetAdminView(session.AdminView{Role: "admin"}))

	_, err := c.Get(context.Background(), "/projects", nil)
	require.NoError(t, err)
	assert.Empty(t, got.Get("X-Viewing-As-Role"),
		"an admin viewing as admin sends no impersonation headers")
}

func TestClient_NoAuthHeaderWithoutToken(t *testing.T) {
	b := newTestBackend(t)
	var got http.Header
	b.respond(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	c, _ := newTestClient(t, b.URL, true, nil)
	_, err := c.Get(context.Background(), "/status", nil)
	require.NoError(t, err)
	assert.Empty(t, got.Get("Authorization"))
}

func TestClient_EnvelopeUnwrap(t *testing.T) {
	b := newTestBackend(t)
	c, _ := newTestClient(t, b.URL, true, nil)

	t.Run("enveloped", func(t *testing.T) {
		b.respond(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"id":"p1"}}`))
		})
		raw, err := c.Get(context.Background(), "/projects/p1", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"p1"}`, string(raw))
	})

	t.Run("bare payload passes through", func(t *testing.T) {
		b.respond(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"id":"p1"}]`))
		})
		raw, err := c.Get(context.Background(), "/projects", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"id":"p1"}]`, string(raw))
	})

	t.Run("Decode", func(t *testing.T) {
		type project struct {
			ID string `json:"id"`
		}
		p, err := Decode[project](json.RawMessage(`{"id":"p1"}`))
		require.NoError(t, err)
		assert.Equal(t, "p1", p.ID)
	})
}

func TestClient_CacheReadWhenEnabled(t *testing.T) {
	b := newTestBackend(t)
	c, _ := newTestClient(t, b.URL, false, nil)

	params := url.Values{"page": {"1"}}
	first, err := c.Get(context.Background(), "/purchase/all_purchase", params)
	require.NoError(t, err)
	second, err := c.Get(context.Background(), "/purchase/all_purchase", params)
	require.NoError(t, err)

	assert.Equal(t, int64(1), b.hits.Load(), "second read must come from cache")
	assert.Equal(t, string(first), string(second))
}

func TestClient_SkipCacheDefaultBypassesCache(t *testing.T) {
	b := newTestBackend(t)
	c, _ := newTestClient(t, b.URL, true, nil)

	_, err := c.Get(context.Background(), "/purchase/all_purchase", nil)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "/purchase/all_purchase", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), b.hits.Load())
	assert.Equal(t, 0, c.cache.len(), "skip-cache requests must not populate the cache")
}

func TestClient_MutationInvalidatesCache(t *testing.T) {
	b := newTestBackend(t)
	c, _ := newTestClient(t, b.URL, false, nil)

	// Populate the cache with a GET, mutate, and the next GET must go back
	// to the backend.
	_, err := c.Get(context.Background(), "/purchase/all_purchase", nil)
	require.NoError(t, err)
	require.Equal(t, 1, c.cache.len())

	_, err = c.Post(context.Background(), "/purchase", map[string]any{"item": "cement"})
	require.NoError(t, err)
	assert.Equal(t, 0, c.cache.len(), "mutation must clear the whole cache")

	_, err = c.Get(context.Background(), "/purchase/all_purchase", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), b.hits.Load())
}

func TestClient_StatusErrors(t *testing.T) {
	b := newTestBackend(t)
	c, _ := newTestClient(t, b.URL, true, nil)

	b.respond(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"no such order"}`, http.StatusNotFound)
	})
	_, err := c.Get(context.Background(), "/purchase/nope", nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Contains(t, se.Snippet, "no such order")
	assert.NotEmpty(t, se.TraceID)

	b.respond(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err = c.Get(context.Background(), "/auth/login", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_LogoutFlow(t *testing.T) {
	b := newTestBackend(t)
	loggedOut := make(chan struct{})
	c, sess := newTestClient(t, b.URL, true, func(o *Options) {
		o.OnLogout = func() { close(loggedOut) }
	})
	require.NoError(t, sess.SetToken("stale", 0))

	// Everything, including the revalidation probe against /users/self,
	// answers 401.
	b.respond(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Get(context.Background(), "/purchase/all_purchase", nil)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = c.Get(context.Background(), "/purchase/all_purchase", nil)
	require.ErrorIs(t, err, ErrUnauthorized)

	select {
	case <-loggedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("logout never committed")
	}
	assert.Empty(t, sess.Token(), "credentials must be cleared on logout")
}

func TestClient_SuccessBeforeDebounceKeepsSession(t *testing.T) {
	b := newTestBackend(t)
	var fail atomic.Bool
	fail.Store(true)
	b.respond(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	logoutCalled := atomic.Bool{}
	c, sess := newTestClient(t, b.URL, true, func(o *Options) {
		o.LogoutDebounce = 150 * time.Millisecond
		o.OnLogout = func() { logoutCalled.Store(true) }
	})
	require.NoError(t, sess.SetToken("tok", 0))

	_, err := c.Get(context.Background(), "/tasks", nil)
	require.ErrorIs(t, err, ErrUnauthorized)

	// The backend recovers inside the debounce window.
	fail.Store(false)
	_, err = c.Get(context.Background(), "/tasks", nil)
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)
	assert.False(t, logoutCalled.Load())
	assert.Equal(t, "tok", sess.Token())
}

func TestClient_RevalidationRescuesSession(t *testing.T) {
	b := newTestBackend(t)
	logoutCalled := atomic.Bool{}
	c, sess := newTestClient(t, b.URL, true, func(o *Options) {
		o.OnLogout = func() { logoutCalled.Store(true) }
	})
	require.NoError(t, sess.SetToken("tok", 0))

	// Business endpoints 401 (e.g. a permissions bug) but the token itself
	// still validates.
	b.respond(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/users/self") {
			_, _ = w.Write([]byte(`{"data":{"id":"u1"}}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Get(context.Background(), "/tasks", nil)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = c.Get(context.Background(), "/tasks", nil)
	require.ErrorIs(t, err, ErrUnauthorized)

	time.Sleep(400 * time.Millisecond)
	assert.False(t, logoutCalled.Load())
	assert.Equal(t, "tok", sess.Token())
}

func TestClient_Upload(t *testing.T) {
	b := newTestBackend(t)
	var contentType, field, fileName, fileBody string
	b.respond(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		field = r.FormValue("projectId")
		f, hdr, err := r.FormFile("document")
		require.NoError(t, err)
		defer f.Close()
		fileName = hdr.Filename
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		fileBody = string(data)
		_, _ = w.Write([]byte(`{"data":{"uploaded":true}}`))
	})

	c, _ := newTestClient(t, b.URL, true, nil)
	raw, err := c.Upload(context.Background(), "/boq/b1/items",
		map[string]string{"projectId": "p1"},
		"document", "boq.csv", strings.NewReader("item,qty\ncement,40\n"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(contentType, "multipart/form-data; boundary="),
		"multipart writer must own the Content-Type")
	assert.Equal(t, "p1", field)
	assert.Equal(t, "boq.csv", fileName)
	assert.Equal(t, "item,qty\ncement,40\n", fileBody)
	assert.JSONEq(t, `{"uploaded":true}`, string(raw))
}

func TestClient_BadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "not-a-url"}, session.New(session.NewMemory()))
	assert.Error(t, err)
}
