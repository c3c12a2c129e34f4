package chunkcache

import (
	"context"
	"encoding/base64"
	"time"

	gen "github.com/unkn0wn-root/chunkcache/genstore"
	"github.com/unkn0wn-root/chunkcache/store"
)

// Cache is the chunked persistent cache engine.
// No operation returns an error to the caller except Entries and Close.
type Cache interface {
	Enabled() bool
	Close(context.Context) error

	// Store writes payload under key for ttl (0 => Options.DefaultTTL), replacing any previous value.
	Store(ctx context.Context, key string, payload []byte, ttl time.Duration) bool
	// Retrieve returns the payload, or ok=false on miss, expiry or corruption.
	Retrieve(ctx context.Context, key string) (payload []byte, ok bool)
	// Delete removes key and fences populates that started before it. Absent keys are a no-op.
	Delete(ctx context.Context, key string)
	// EvictIfExpired removes key only if its metadata is expired or unreadable.
	EvictIfExpired(ctx context.Context, key string) bool

	// PurgeAll removes every record under the prefix in one batch.
	PurgeAll(ctx context.Context)
	// PurgeExpired scans every metadata record and evicts the expired ones.
	PurgeExpired(ctx context.Context) PurgeReport

	// Entries lists live metadata for operators. Not meant for hot paths.
	Entries(ctx context.Context) ([]EntryInfo, error)

	// Write fences (see genstore).
	SnapshotGen(ctx context.Context, key string) uint64
	StoreWithGen(ctx context.Context, key string, payload []byte, observedGen uint64, ttl time.Duration) bool
}

// Encoding turns payload bytes into the text the store persists.
// *base64.Encoding satisfies it.
type Encoding interface {
	EncodeToString(src []byte) string
	DecodeString(s string) ([]byte, error)
}

// TextEncoding persists payload bytes unchanged. Use it when payloads are
// already text (e.g. data URIs) and the store accepts arbitrary bytes.
var TextEncoding Encoding = textEncoding{}

type textEncoding struct{}

func (textEncoding) EncodeToString(src []byte) string      { return string(src) }
func (textEncoding) DecodeString(s string) ([]byte, error) { return []byte(s), nil }

// Memo is an optional in-process tier of reassembled payloads, keyed by the
// metadata storage key. Entries never outlive the cached entry's expiry.
type Memo interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Del(key string)
	Clear()
}

// Options tune the engine. Only Store is required.
type Options struct {
	// Required
	Store store.Store

	Prefix        string        // reserved key prefix; "" => DefaultPrefix
	MaxChunkBytes int           // per-record limit; 0 => 1.5 MiB
	DefaultTTL    time.Duration // 0 => 30 days
	Encoding      Encoding      // nil => base64.StdEncoding
	Clock         Clock         // nil => time.Now
	Logger        Logger        // nil => NopLogger
	Hooks         Hooks         // nil => NopHooks
	Memo          Memo          // nil => no hot tier
	GenStore      gen.GenStore  // nil => in-process LocalGenStore (closed with the cache)
	SweepInterval time.Duration // > 0 runs PurgeExpired periodically; 0 => off
	// PurgeOrphans makes PurgeExpired also remove chunk records no metadata
	// accounts for. Only safe while no Store is in flight (e.g. at startup).
	PurgeOrphans bool
	Disabled     bool // default false (enabled)
}

// EntryInfo describes one entry as seen by Entries.
type EntryInfo struct {
	Key       string
	Chunks    int
	ExpiresAt time.Time
	Expired   bool
}

// PurgeReport summarizes one PurgeExpired pass.
type PurgeReport struct {
	Scanned int // metadata records examined
	Expired int // entries evicted for expiry
	Corrupt int // metadata records removed because they did not decode
	Orphans int // chunk records removed without metadata (PurgeOrphans only)
}

func New(opts Options) (Cache, error) {
	c, err := newCache(opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

var _ Encoding = base64.StdEncoding
