// Package store defines the byte-store boundary chunkcache persists into.
//
// A Store is a string-keyed, string-valued persistent store with no native TTL
// and possibly a per-write size limit. No multi-key atomicity is assumed.
//
// Important: every key under the configured chunkcache prefix is owned by the
// cache. Foreign writes under it may be treated as corruption and removed.
package store

import (
	"context"
	"errors"
)

// ErrValueTooLarge is returned by stores that enforce a per-write limit.
var ErrValueTooLarge = errors.New("store: value exceeds per-write limit")

// Store must be safe for concurrent use and byte-for-byte transparent:
// Get returns exactly the string previously passed to Set.
type Store interface {
	// Get returns (value, true, nil) on hit; ("", false, nil) on miss.
	// IO/remote failures return ("", false, err).
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// RemoveMany deletes every key in one batch where the backend allows it.
	RemoveMany(ctx context.Context, keys []string) error

	// Keys enumerates every key in the store (or the adapter's scope).
	Keys(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
