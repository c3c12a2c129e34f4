package chunkcache

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/chunkcache/codec"
	"github.com/unkn0wn-root/chunkcache/internal/keys"
	"github.com/unkn0wn-root/chunkcache/store"
)

// Metadata is the persisted bookkeeping record of one entry.
type Metadata struct {
	Chunks    int   `json:"numberOfChunks"`
	ExpiresAt int64 `json:"expirationTime"` // epoch millis
}

// Expired reports whether now is strictly past the expiration time.
func (m Metadata) Expired(now time.Time) bool {
	return now.UnixMilli() > m.ExpiresAt
}

func (m Metadata) remaining(now time.Time) time.Duration {
	return time.Duration(m.ExpiresAt-now.UnixMilli()) * time.Millisecond
}

// MaxEntryChunks bounds the chunk count of one entry. Metadata claiming more
// is treated as corrupt.
const MaxEntryChunks = 1 << 20

var (
	errNoChunks      = errors.New("metadata records zero chunks")
	errTooManyChunks = errors.New("metadata chunk count out of range")
)

// metaStore persists Metadata next to the chunks, under the same prefix.
type metaStore struct {
	s      store.Store
	layout keys.Layout
	codec  codec.Codec[Metadata]
}

func (m *metaStore) put(ctx context.Context, key string, chunks int, ttl time.Duration, now time.Time) error {
	b, err := m.codec.Encode(Metadata{Chunks: chunks, ExpiresAt: now.Add(ttl).UnixMilli()})
	if err != nil {
		return err
	}
	sk := m.layout.Metadata(key)
	if err := m.s.Set(ctx, sk, string(b)); err != nil {
		return &IOError{Op: "set", Key: sk, Err: err}
	}
	return nil
}

// get returns ok=false when absent. Undecodable records yield a *CorruptError.
func (m *metaStore) get(ctx context.Context, key string) (Metadata, bool, error) {
	sk := m.layout.Metadata(key)
	raw, ok, err := m.s.Get(ctx, sk)
	if err != nil {
		return Metadata{}, false, &IOError{Op: "get", Key: sk, Err: err}
	}
	if !ok {
		return Metadata{}, false, nil
	}
	md, err := m.codec.Decode([]byte(raw))
	switch {
	case err != nil:
	case md.Chunks < 1:
		err = errNoChunks
	case md.Chunks > MaxEntryChunks:
		err = errTooManyChunks
	}
	if err != nil {
		return Metadata{}, false, &CorruptError{Key: key, Index: -1, Reason: ReasonMetadataDecode, Err: err}
	}
	return md, true, nil
}

func (m *metaStore) delete(ctx context.Context, key string) error {
	sk := m.layout.Metadata(key)
	if err := m.s.Remove(ctx, sk); err != nil {
		return &IOError{Op: "remove", Key: sk, Err: err}
	}
	return nil
}

// listAllKeys returns the cache keys of every metadata record.
func (m *metaStore) listAllKeys(ctx context.Context) ([]string, []string, error) {
	all, err := m.s.Keys(ctx)
	if err != nil {
		return nil, nil, &IOError{Op: "keys", Key: m.layout.Prefix, Err: err}
	}
	return m.layout.CacheKeys(all), all, nil
}
