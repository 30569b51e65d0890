package session

import (
	"encoding/json"
	"time"
)

// AdminView is the persisted view-impersonation state. An administrator can
// browse the system as another role; while the state names a non-admin view
// the gateway forwards it to the backend on every request.
type AdminView struct {
	Role   string `json:"role"`
	RoleID string `json:"roleId,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// Impersonating reports whether the view should be forwarded to the
// backend. An empty or admin view is the administrator's own.
func (v AdminView) Impersonating() bool {
	return v.Role != "" && v.Role != "admin"
}

// User is the subset of the backend user payload the client layer cares
// about; the full payload is stored verbatim.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is the typed layer over a KV holding the well-known storage keys.
type Session struct {
	kv KV
}

func New(kv KV) *Session {
	return &Session{kv: kv}
}

// Token returns the stored access token, or "" when absent or expired.
func (s *Session) Token() string {
	v, err := s.kv.Get(KeyAccessToken)
	if err != nil {
		return ""
	}
	return string(v)
}

// SetToken stores the access token. ttl <= 0 stores it without expiry.
func (s *Session) SetToken(token string, ttl time.Duration) error {
	return s.kv.Put(KeyAccessToken, []byte(token), ttl)
}

// User returns the stored user payload decoded into User. The raw payload
// is kept as written by the login flow; fields the struct does not declare
// are dropped on decode only, not on disk.
func (s *Session) User() (User, error) {
	var u User
	v, err := s.kv.Get(KeyUser)
	if err != nil {
		return u, err
	}
	err = json.Unmarshal(v, &u)
	return u, err
}

// SetUser stores the raw user payload.
func (s *Session) SetUser(raw []byte) error {
	return s.kv.Put(KeyUser, raw, 0)
}

// AdminView returns the persisted impersonation state. Absence is not an
// error: it decodes to the zero view, which is not impersonating.
func (s *Session) AdminView() AdminView {
	var v AdminView
	raw, err := s.kv.Get(KeyAdminView)
	if err != nil {
		return v
	}
	_ = json.Unmarshal(raw, &v)
	return v
}

// SetAdminView persists the impersonation state.
func (s *Session) SetAdminView(v AdminView) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.kv.Put(KeyAdminView, raw, 0)
}

// ClearAdminView removes the impersonation state.
func (s *Session) ClearAdminView() error {
	return s.kv.Delete(KeyAdminView)
}

// Clear is the logout commit: once it returns, no stored credential
// remains. Stores that support it are wiped in one step; otherwise each
// well-known key is deleted in turn.
func (s *Session) Clear() error {
	if w, ok := s.kv.(Wiper); ok {
		return w.Wipe()
	}
	var firstErr error
	for _, k := range []string{KeyAccessToken, KeyUser, KeyAdminView, KeySessionKey} {
		if err := s.kv.Delete(k); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
