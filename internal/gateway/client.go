// Package gateway is the single choke point for talking to the ERP
// backend. Every request goes through one pipeline: credential and
// impersonation headers are attached on the way out; caching, failure
// accounting and the defensive-logout protocol run on the way back.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/buildhub/erp-mcp/internal/logger"
	"github.com/buildhub/erp-mcp/internal/session"
)

const (
	headerTrace     = "X-Request-Id"
	headerSkipCache = "X-Skip-Cache"
	headerViewRole  = "X-Viewing-As-Role"
	headerViewRID   = "X-Viewing-As-Role-Id"
	headerViewUID   = "X-Viewing-As-User-Id"

	// RequestTimeout bounds a single backend exchange.
	RequestTimeout = 20 * time.Second

	// MaxResponseSize caps how much of a response body is read.
	MaxResponseSize = 4 * 1024 * 1024
)

// Options configures a Client. Zero values take the documented defaults;
// the timing knobs exist so tests do not sleep through real windows.
type Options struct {
	// BaseURL is the backend root, e.g. "https://erp.example.com/api/v1".
	BaseURL string
	// HTTPClient overrides the transport. Defaults to a client with
	// RequestTimeout.
	HTTPClient *http.Client
	// SkipCache marks every request with X-Skip-Cache and disables the
	// read/write cache path. Nil means true: backends that cannot tolerate
	// stale reads stay correct by default, and callers opt in to caching.
	SkipCache *bool

	CacheSize int
	CacheTTL  time.Duration

	Max401              int
	RecentSuccessWindow time.Duration
	LogoutDebounce      time.Duration

	// OnLogout runs after the guard commits a logout and the session store
	// has been cleared. The owner decides what "redirect to login" means.
	OnLogout func()
}

// Client is the shared HTTP client wrapper. All state (cache, logout
// guard, session handle) hangs off the instance so tests and embedders can
// run several independent clients.
type Client struct {
	base      *url.URL
	http      *http.Client
	sess      *session.Session
	cache     *responseCache
	guard     *logoutGuard
	skipCache bool
	onLogout  func()
}

// New builds a Client around the given session storage.
func New(opts Options, sess *session.Session) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway: bad base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway: base URL %q needs scheme and host", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: RequestTimeout}
	}
	skip := true
	if opts.SkipCache != nil {
		skip = *opts.SkipCache
	}
	c := &Client{
		base:      base,
		http:      hc,
		sess:      sess,
		cache:     newResponseCache(opts.CacheSize, opts.CacheTTL),
		skipCache: skip,
		onLogout:  opts.OnLogout,
	}
	c.guard = newLogoutGuard(opts.Max401, opts.RecentSuccessWindow, opts.LogoutDebounce,
		c.revalidateToken, c.commitLogout)
	return c, nil
}

// Session exposes the underlying session handle to consumers (login flow,
// tools).
func (c *Client) Session() *session.Session { return c.sess }

// ResetAuthState returns the logout guard to idle, e.g. after a fresh
// login through an auth endpoint.
func (c *Client) ResetAuthState() { c.guard.reset() }

// Get performs a GET against path with optional query params. When the
// skip-cache flag is off, a fresh cached response is served without
// touching the network.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	key := cacheKey(path, params)
	if !c.skipCache {
		if data, _, ok := c.cache.get(key); ok {
			return unwrap(data), nil
		}
	}
	return c.do(ctx, http.MethodGet, path, params, nil, "")
}

func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPost, path, body)
}

func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPut, path, body)
}

func (c *Client) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPatch, path, body)
}

func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil, "")
}

// Upload sends a multipart form with one file part plus plain fields. The
// multipart writer supplies the Content-Type with its boundary; nothing
// else may set it.
func (c *Client) Upload(ctx context.Context, path string, fields map[string]string, fileField, fileName string, file io.Reader) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("gateway: multipart field %q: %w", k, err)
		}
	}
	part, err := w.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, fmt.Errorf("gateway: multipart file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("gateway: multipart copy: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, path, nil, &buf, w.FormDataContentType())
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	return c.do(ctx, method, path, nil, rd, "application/json")
}

// do runs one exchange through the full pipeline.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body io.Reader, contentType string) (json.RawMessage, error) {
	u := c.requestURL(path, params)
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	traceID := c.decorate(req, contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failures propagate untouched; they carry no verdict
		// on the session.
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.guard.onSuccess()
		if method != http.MethodGet {
			// Any mutation may have invalidated anything; drop it all.
			c.cache.clear()
		} else if req.Header.Get(headerSkipCache) != "true" {
			c.cache.put(cacheKey(path, params), data, resp.Header.Get("ETag"))
		}
		return unwrap(data), nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.guard.on401(path)
	}
	return nil, &StatusError{Status: resp.StatusCode, Snippet: snippet(data), TraceID: traceID}
}

// decorate attaches the outbound pipeline headers and returns the trace ID.
func (c *Client) decorate(req *http.Request, contentType string) string {
	traceID := uuid.NewString()
	req.Header.Set(headerTrace, traceID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.skipCache {
		req.Header.Set(headerSkipCache, "true")
	}
	if tok := c.sess.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if view := c.sess.AdminView(); view.Impersonating() {
		req.Header.Set(headerViewRole, view.Role)
		if view.RoleID != "" {
			req.Header.Set(headerViewRID, view.RoleID)
		}
		if view.UserID != "" {
			req.Header.Set(headerViewUID, view.UserID)
		}
	}
	return traceID
}

func (c *Client) requestURL(path string, params url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// revalidateToken probes the self endpoint outside the pipeline: no cache,
// no failure accounting, current token only. False on any failure,
// network included.
func (c *Client) revalidateToken() bool {
	selfPath, _ := Endpoint("self")
	req, err := http.NewRequest(http.MethodGet, c.requestURL(selfPath, nil), nil)
	if err != nil {
		return false
	}
	req.Header.Set(headerTrace, uuid.NewString())
	if tok := c.sess.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warnf("revalidation probe failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// commitLogout is the terminal transition: wipe credentials, drop the
// cache, tell the owner.
func (c *Client) commitLogout() {
	if err := c.sess.Clear(); err != nil {
		logger.Errorf("clearing session on logout: %v", err)
	}
	c.cache.clear()
	if c.onLogout != nil {
		c.onLogout()
	}
}

// unwrap peels the {"data": ...} envelope the backend wraps successful
// payloads in. Responses without the envelope pass through whole.
func unwrap(body []byte) json.RawMessage {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Data != nil {
		return env.Data
	}
	return json.RawMessage(append([]byte(nil), body...))
}

// Decode converts a raw payload into T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
