package session

import "time"

// KV defines the minimal key-value storage contract with TTL semantics.
// Implementations must be safe for concurrent use by multiple goroutines.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
}

// Wiper is implemented by stores that can drop everything in one step.
// Logout prefers it over per-key deletes so no credential survives a crash
// between deletes.
type Wiper interface {
	Wipe() error
}

// Well-known storage keys. These mirror the slots every consumer of the
// gateway reads and writes; anything else stored here is private to its
// writer.
const (
	KeyAccessToken = "access_token"
	KeyUser        = "user"
	KeyAdminView   = "admin-view-storage"
	KeySessionKey  = "session_key"
)
