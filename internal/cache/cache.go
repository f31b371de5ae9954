// Package cache implements the response cache for the public data surface:
// entries keyed by request identity, validated with ETag/Last-Modified,
// expired lazily on lookup.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is the cache lifetime applied when the caller does not
// specify one.
const DefaultTTL = 5 * time.Minute

// Entry is a cached response with its validators.
type Entry struct {
	Payload      []byte    `json:"payload"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the entry's lifetime has passed.
func (e *Entry) Expired() bool {
	return !time.Now().Before(e.ExpiresAt)
}

// MaxAge returns the whole seconds remaining before the entry expires,
// never negative. Used for Cache-Control: max-age.
func (e *Entry) MaxAge() int {
	secs := int(time.Until(e.ExpiresAt).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}

// Store is the persistence interface for cache entries. Reads and writes
// may race: a duplicate recomputation on a miss under concurrent load is
// acceptable, there is no single-flight guarantee.
type Store interface {
	// Get returns the entry for key, or found=false when absent or expired.
	// Expired entries are deleted opportunistically.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Put stores the payload under key with the given TTL, computing the
	// entry's validators. A non-positive TTL uses DefaultTTL.
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) (Entry, error)

	// Purge removes all entries, or only those whose key contains pattern
	// when pattern is non-empty. Returns the number of entries removed.
	Purge(ctx context.Context, pattern string) (int, error)

	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)
}

// ETagFor computes the strong validator for a payload: the quoted hex
// SHA-256 of the bytes. Byte-identical payloads always share an ETag.
func ETagFor(payload []byte) string {
	sum := sha256.Sum256(payload)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// newEntry builds an entry with validators for the payload.
func newEntry(payload []byte, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	return Entry{
		Payload:      payload,
		ETag:         ETagFor(payload),
		LastModified: now.UTC().Truncate(time.Second),
		ExpiresAt:    now.Add(ttl),
	}
}

// MemoryStore is an in-process cache store. Expiry is lazy: entries past
// their lifetime are treated as absent and removed on lookup; there is no
// background sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-process cache store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return Entry{}, false, nil
	}
	if entry.Expired() {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have refreshed it.
		if current, ok := s.entries[key]; ok && current.Expired() {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, payload []byte, ttl time.Duration) (Entry, error) {
	entry := newEntry(payload, ttl)
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return entry, nil
}

// Purge implements Store.
func (s *MemoryStore) Purge(_ context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pattern == "" {
		n := len(s.entries)
		s.entries = make(map[string]Entry)
		return n, nil
	}

	n := 0
	for key := range s.entries {
		if strings.Contains(key, pattern) {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
