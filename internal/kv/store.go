// Package kv defines the narrow fast-store contract the pipeline uses for
// caching, queues, sorted sets, and sets (spec §6 KV keys), so no package
// outside kv ever imports go-redis directly. Grounded on
// sawpanic-cryptorun/data/cache/cache.go's minimal Cache interface, widened
// to cover the list/sorted-set/set/hash primitives spec §6 needs.
package kv

import (
	"context"
	"time"
)

// ZMember is one scored entry of a sorted set.
type ZMember struct {
	Score  float64
	Member string
}

// Store is the fast-store contract. All methods are safe for concurrent use.
type Store interface {
	// Get returns the value for key, or ok=false if absent/expired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes key=value with an optional ttl (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Del removes key.
	Del(ctx context.Context, key string) error
	// SetNX sets key=value only if it does not already exist, reporting
	// whether the set happened. Used for cooldown keys (compare-and-set).
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// LPush pushes value onto the head of a list.
	LPush(ctx context.Context, key string, value string) error
	// LTrim keeps only the first count elements of a list (trim-oldest
	// policy for bounded queues, spec §4.3/§4.5/§5).
	LTrim(ctx context.Context, key string, count int64) error
	// RPop pops a value from the tail of a list (FIFO consumer side), or
	// ok=false if the list is empty.
	RPop(ctx context.Context, key string) (string, bool, error)
	// LLen returns the current list length.
	LLen(ctx context.Context, key string) (int64, error)

	// ZAdd adds a scored member to a sorted set.
	ZAdd(ctx context.Context, key string, member ZMember) error
	// ZRangeByScore returns members scored within [min, max].
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	// ZRemRangeByRank trims a sorted set, keeping only the highest-ranked
	// `keep` members (used for "last N" bounded sets like alerts:processed).
	ZRemRangeByRank(ctx context.Context, key string, keep int64) error
	// Expire sets/refreshes a key's TTL.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SAdd adds a member to a set.
	SAdd(ctx context.Context, key, member string) error
	// SIsMember reports set membership (used by blacklist checks).
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// HSet sets a field in a hash (used by the settings overlay and digest
	// accumulators).
	HSet(ctx context.Context, key, field, value string) error
	// HGetAll returns every field/value pair of a hash.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Close releases any underlying connection resources.
	Close() error
}
