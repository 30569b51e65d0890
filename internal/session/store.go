package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	ErrNotFound = errors.New("session: not found")
	ErrExpired  = errors.New("session: expired")
)

// Store is the durable session backend used by the daemon: a single bbolt
// bucket holding credential records with absolute expiry times, so every
// process on the machine sees the same logged-in state. bbolt serializes
// transactions itself, so the Store carries no lock of its own.
type Store struct {
	db         *bolt.DB
	bucket     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

type Options struct {
	// Bucket names the bbolt bucket; "session" when empty.
	Bucket string
	// DefaultTTL applies when Put is called with ttl <= 0. Zero means
	// records without an explicit TTL never expire.
	DefaultTTL time.Duration
}

// Open creates or opens the session database at path. The file is created
// 0600 since it holds credentials.
func Open(path string, opts Options) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}
	name := opts.Bucket
	if name == "" {
		name = "session"
	}
	s := &Store{db: db, bucket: []byte(name), defaultTTL: opts.DefaultTTL, now: time.Now}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// A record is stored as an 8-byte big-endian expiry (UnixMilli, 0 = never)
// followed by the raw value.
func encodeRecord(value []byte, expiresAt int64) []byte {
	rec := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(rec, uint64(expiresAt))
	copy(rec[8:], value)
	return rec
}

func decodeRecord(rec []byte) (value []byte, expiresAt int64) {
	expiresAt = int64(binary.BigEndian.Uint64(rec[:8]))
	value = append([]byte(nil), rec[8:]...)
	return value, expiresAt
}

// Put stores value under key, expiring at now+ttl. A ttl <= 0 falls back to
// the store's DefaultTTL.
func (s *Store) Put(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), encodeRecord(value, expiresAt))
	})
}

// Get returns the value for key, or ErrNotFound / ErrExpired. Expired
// records are removed on the spot so stale credentials do not linger on
// disk after their session ends.
func (s *Store) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		rec := b.Get([]byte(key))
		if rec == nil {
			return ErrNotFound
		}
		v, expiresAt := decodeRecord(rec)
		if expiresAt > 0 && s.now().UnixMilli() > expiresAt {
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
			return ErrExpired
		}
		value = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Wipe drops every key in the bucket in a single transaction.
func (s *Store) Wipe() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
}
