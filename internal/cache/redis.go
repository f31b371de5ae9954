package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps cache entries in Redis so gateway replicas share one
// response cache. Entries are JSON-encoded; expiry is delegated to Redis
// TTLs, with the entry's own ExpiresAt double-checked on read in case of
// clock skew between writers.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates a Redis-backed cache store. keyPrefix namespaces
// all keys (default "respcache:").
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "respcache:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis cache get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		_ = s.client.Del(ctx, s.keyPrefix+key).Err()
		return Entry{}, false, nil
	}

	if entry.Expired() {
		_ = s.client.Del(ctx, s.keyPrefix+key).Err()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) (Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry := newEntry(payload, ttl)

	data, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("redis cache encode: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, data, ttl).Err(); err != nil {
		return Entry{}, fmt.Errorf("redis cache put: %w", err)
	}
	return entry, nil
}

// Purge implements Store. Pattern matching uses Redis glob semantics over
// the key portion after the namespace prefix.
func (s *RedisStore) Purge(ctx context.Context, pattern string) (int, error) {
	match := s.keyPrefix + "*"
	if pattern != "" {
		match = s.keyPrefix + "*" + pattern + "*"
	}

	var removed int
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("redis cache scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis cache purge: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Len implements Store.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	var count int
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.keyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis cache scan: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
