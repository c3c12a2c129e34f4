// Package genstore tracks per-key write generations.
//
// chunkcache bumps a key's generation on every explicit delete (and a
// namespace-wide epoch on purge-all). A populate that snapshotted an older
// generation is fenced off and never writes its result back.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
// LocalGenStore (default) is in-process; RedisGenStore is shared across processes.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// SnapshotMany returns gens for many keys; missing => 0.
	SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes generations not bumped within retention (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
