// Package cache provides the key/value backends used to keep read models
// warm between requests: Redis in deployed environments and an in-process
// map when no Redis URL is configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is a byte-oriented key/value cache with per-entry TTL. A zero TTL
// means the entry does not expire.
//
// Counters live beside the entries and never expire. A missing counter
// reads as zero.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error

	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	// SetIfCounter stores value at key only while counterKey still holds
	// want. The check and the write are atomic.
	SetIfCounter(ctx context.Context, key string, value []byte, ttl time.Duration, counterKey string, want int64) (bool, error)
}

// GetJSON decodes the cached value at key into dest. The boolean reports a
// hit.
func GetJSON(ctx context.Context, s Store, key string, dest interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}

// SetJSONIfCounter encodes v and stores it at key while counterKey holds
// want. The boolean reports whether the value was written.
func SetJSONIfCounter(ctx context.Context, s Store, key string, v interface{}, ttl time.Duration, counterKey string, want int64) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", key, err)
	}
	return s.SetIfCounter(ctx, key, raw, ttl, counterKey, want)
}
