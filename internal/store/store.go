// Package store defines the shared coordination store the matching engine
// runs against, with a Redis implementation and an in-memory one for tests.
//
// Every operation is atomic on its own key. Removing an absent list entry,
// set member or key is a no-op, never an error.
package store

import (
	"context"
	"time"
)

// KeyValueStore is the set of primitives the engine needs: lists for buckets,
// sets for indexes, hashes for records and TTL-bound locks.
type KeyValueStore interface {
	// ListAppend pushes value to the tail of the list at key.
	ListAppend(ctx context.Context, key, value string) error
	// ListRemove removes every occurrence of value from the list at key.
	ListRemove(ctx context.Context, key, value string) error
	// ListRange returns elements start..stop inclusive, head first.
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	SetAdd(ctx context.Context, key string, members ...string) error
	SetRemove(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	HashSet(ctx context.Context, key string, fields map[string]string) error
	// HashSetIfExists writes one field only when the hash already exists.
	HashSetIfExists(ctx context.Context, key, field, value string) (bool, error)
	// HashGetAll returns an empty map when the hash does not exist.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	Delete(ctx context.Context, keys ...string) error

	// TryAcquireLock creates key with the given TTL only if it is absent.
	TryAcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	Ping(ctx context.Context) error
}
