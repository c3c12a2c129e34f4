package chunkcache

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/chunkcache/codec"
)

// PopulateFunc produces the payload for a key on a miss.
type PopulateFunc func(ctx context.Context) ([]byte, error)

type ClientOptions struct {
	DefaultTTL        time.Duration // 0 => DisplayTTL
	DisableCoalescing bool          // default false: concurrent misses share one populate
	Logger            Logger        // nil => NopLogger
	Hooks             Hooks         // nil => NopHooks
}

// Client implements get-or-populate on top of a Cache.
type Client struct {
	cache      Cache
	defaultTTL time.Duration
	coalesce   bool
	log        Logger
	hooks      Hooks
	sf         singleflight.Group
}

func NewClient(c Cache, opts ClientOptions) *Client {
	return &Client{
		cache:      c,
		defaultTTL: coalesce(opts.DefaultTTL, DisplayTTL),
		coalesce:   !opts.DisableCoalescing,
		log:        coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:      coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
}

func (c *Client) Cache() Cache { return c.cache }

// GetOrPopulate returns the cached payload for key, or runs populate, stores
// its result for ttl (0 => ClientOptions.DefaultTTL) and returns it.
//
// cached reports whether the data came from the cache. data is nil only when
// populate failed (or ctx ended first); the caller then falls back to the
// uncached source. A failed store never hides a successful populate.
func (c *Client) GetOrPopulate(ctx context.Context, key string, populate PopulateFunc, ttl time.Duration) (data []byte, cached bool) {
	if !c.cache.Enabled() {
		b, err := c.runPopulate(ctx, key, populate)
		if err != nil {
			return nil, false
		}
		return b, false
	}
	if b, ok := c.cache.Retrieve(ctx, key); ok {
		return b, true
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if !c.coalesce {
		b, err := c.populateAndStore(ctx, key, populate, ttl)
		if err != nil {
			return nil, false
		}
		return b, false
	}

	// The flight outlives any single caller so one cancelled waiter does
	// not fail the others.
	fctx := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (any, error) {
		return c.populateAndStore(fctx, key, populate, ttl)
	})
	select {
	case <-ctx.Done():
		return nil, false
	case r := <-ch:
		if r.Err != nil {
			return nil, false
		}
		b := r.Val.([]byte)
		if r.Shared {
			b = bytes.Clone(b)
		}
		return b, false
	}
}

func (c *Client) populateAndStore(ctx context.Context, key string, populate PopulateFunc, ttl time.Duration) ([]byte, error) {
	// A concurrent flight may have stored the value while we queued.
	if b, ok := c.cache.Retrieve(ctx, key); ok {
		return b, nil
	}
	obs := c.cache.SnapshotGen(ctx, key)
	b, err := c.runPopulate(ctx, key, populate)
	if err != nil {
		return nil, err
	}
	if !c.cache.StoreWithGen(ctx, key, b, obs, ttl) {
		c.log.Debug("populate result not cached", Fields{"key": key, "bytes": len(b)})
		return b, nil
	}
	// Serve what was persisted; a read-back miss falls back to the fresh bytes.
	if stored, ok := c.cache.Retrieve(ctx, key); ok {
		return stored, nil
	}
	c.log.Warn("stored entry did not read back", Fields{"key": key})
	return b, nil
}

func (c *Client) runPopulate(ctx context.Context, key string, populate PopulateFunc) ([]byte, error) {
	b, err := populate(ctx)
	if err == nil && b == nil {
		b = []byte{}
	}
	if err != nil {
		fe := &FetchError{Key: key, Err: err}
		c.hooks.PopulateFailed(key, err)
		c.log.Warn("populate failed", Fields{"key": key, "err": err})
		return nil, fe
	}
	return b, nil
}

// Typed layers a Codec over Client.
type Typed[V any] struct {
	client *Client
	codec  codec.Codec[V]
}

func NewTyped[V any](cl *Client, cd codec.Codec[V]) *Typed[V] {
	return &Typed[V]{client: cl, codec: cd}
}

// GetOrPopulate decodes the cached value, or runs populate and caches its
// encoding. err is non-nil only when populate (or encoding its result) fails;
// it then wraps ErrUpstreamFetch or the codec error. A disabled cache
// populates on every call.
func (t *Typed[V]) GetOrPopulate(ctx context.Context, key string, populate func(context.Context) (V, error), ttl time.Duration) (v V, cached bool, err error) {
	cache := t.client.cache
	if b, ok := cache.Retrieve(ctx, key); ok {
		dv, derr := t.codec.Decode(b)
		if derr == nil {
			return dv, true, nil
		}
		// Undecodable under the current codec: drop it and repopulate.
		t.client.log.Warn("typed: cached value does not decode; removing", Fields{"key": key, "err": derr})
		cache.Delete(ctx, key)
	}

	if ttl <= 0 {
		ttl = t.client.defaultTTL
	}
	obs := cache.SnapshotGen(ctx, key)
	v, perr := populate(ctx)
	if perr != nil {
		t.client.hooks.PopulateFailed(key, perr)
		t.client.log.Warn("populate failed", Fields{"key": key, "err": perr})
		var zero V
		return zero, false, &FetchError{Key: key, Err: perr}
	}
	b, eerr := t.codec.Encode(v)
	if eerr != nil {
		return v, false, fmt.Errorf("chunkcache: encode %q: %w", key, eerr)
	}
	cache.StoreWithGen(ctx, key, b, obs, ttl)
	return v, false, nil
}
