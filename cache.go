package chunkcache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"hash/maphash"
	"sort"
	"sync"
	"time"

	"github.com/unkn0wn-root/chunkcache/codec"
	gen "github.com/unkn0wn-root/chunkcache/genstore"
	"github.com/unkn0wn-root/chunkcache/internal/chunk"
	"github.com/unkn0wn-root/chunkcache/internal/keys"
	"github.com/unkn0wn-root/chunkcache/store"
)

const (
	defaultGenSweep     = time.Hour
	defaultGenRetention = 24 * time.Hour

	// removeBatch caps the keys passed to one RemoveMany call.
	removeBatch = 1000
)

type cache struct {
	store      store.Store
	layout     keys.Layout
	meta       *metaStore
	maxChunk   int
	defaultTTL time.Duration
	enc        Encoding
	clock      Clock
	log        Logger
	hooks      Hooks
	memo       Memo
	fence      memoFence
	gen        gen.GenStore
	ownsGen    bool
	enabled    bool
	orphans    bool
	epochKey   string

	stop      chan struct{}
	done      sync.WaitGroup
	closeOnce sync.Once
}

func newCache(opts Options) (*cache, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("chunkcache: store is required")
	}
	if opts.MaxChunkBytes < 0 {
		return nil, fmt.Errorf("chunkcache: max chunk bytes must be positive, got %d", opts.MaxChunkBytes)
	}

	c := &cache{
		store:   opts.Store,
		layout:  keys.Layout{Prefix: coalesce(opts.Prefix, DefaultPrefix)},
		memo:    opts.Memo,
		enabled: !opts.Disabled,
		orphans: opts.PurgeOrphans,
	}
	c.meta = &metaStore{s: c.store, layout: c.layout, codec: codec.JSON[Metadata]{}}
	c.epochKey = "epoch:" + c.layout.Prefix

	c.maxChunk = coalesce(opts.MaxChunkBytes, chunk.DefaultMaxBytes)
	c.defaultTTL = coalesce(opts.DefaultTTL, DefaultTTL)
	c.enc = coalesce[Encoding](opts.Encoding, base64.StdEncoding)
	c.clock = coalesce[Clock](opts.Clock, systemClock{})
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.GenStore != nil {
		c.gen = opts.GenStore
	} else {
		c.gen = gen.NewLocalGenStore(defaultGenSweep, defaultGenRetention)
		c.ownsGen = true
	}

	if c.enabled && opts.SweepInterval > 0 {
		c.stop = make(chan struct{})
		c.done.Add(1)
		go c.sweepLoop(opts.SweepInterval)
	}
	return c, nil
}

func (c *cache) Enabled() bool { return c.enabled }

func (c *cache) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.stop != nil {
			close(c.stop)
			c.done.Wait()
		}
		if c.ownsGen {
			_ = c.gen.Close(ctx)
		}
	})
	return c.store.Close(ctx)
}

func (c *cache) Store(ctx context.Context, key string, payload []byte, ttl time.Duration) bool {
	if !c.enabled {
		return false
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	encoded := c.enc.EncodeToString(payload)
	if n := chunk.Count(len(encoded), c.maxChunk); n > MaxEntryChunks {
		c.log.Error("store: payload needs too many chunks", Fields{
			"key": key, "chunks": n, "max_chunks": MaxEntryChunks, "max_chunk_bytes": c.maxChunk,
		})
		return false
	}
	parts, err := chunk.Split(encoded, c.maxChunk)
	if err != nil {
		c.log.Error("store: split failed", Fields{"key": key, "err": err})
		return false
	}

	// An overwrite first drops the old metadata so no reader can pair it with
	// a half-rewritten chunk set.
	prev, hadPrev, err := c.meta.get(ctx, key)
	var ce *CorruptError
	if err != nil && !errors.As(err, &ce) {
		c.ioFailed(err)
	}
	if hadPrev || err != nil {
		if err := c.meta.delete(ctx, key); err != nil {
			c.ioFailed(err)
			return false
		}
	}
	c.dropMemo(c.layout.Metadata(key))

	for i, p := range parts {
		ck := c.layout.Chunk(key, i)
		if err := c.store.Set(ctx, ck, p); err != nil {
			c.hooks.ChunkWriteFailed(ck, i, err)
			f := Fields{"key": key, "index": i, "chunks": len(parts), "err": err}
			if errors.Is(err, store.ErrValueTooLarge) {
				f["max_chunk_bytes"] = c.maxChunk
			}
			c.log.Warn("store: chunk write failed", f)
			c.removeChunks(ctx, key, 0, max(i, prev.Chunks))
			return false
		}
	}

	if err := c.meta.put(ctx, key, len(parts), ttl, c.clock.Now()); err != nil {
		c.ioFailed(err)
		c.removeChunks(ctx, key, 0, max(len(parts), prev.Chunks))
		return false
	}

	// surplus chunks of a larger previous value
	c.removeChunks(ctx, key, len(parts), prev.Chunks)
	c.log.Debug("stored entry", Fields{"key": key, "chunks": len(parts), "ttl": ttl})
	return true
}

func (c *cache) Retrieve(ctx context.Context, key string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}
	mk := c.layout.Metadata(key)
	// Taken before the metadata read; a fill racing an overwrite is dropped.
	seq := c.fence.snapshot(mk)
	md, ok := c.liveMetadata(ctx, key)
	if !ok {
		return nil, false
	}

	if c.memo != nil {
		if b, ok := c.memo.Get(mk); ok {
			return b, true
		}
	}

	parts := make([]string, 0, min(md.Chunks, 64))
	for i := range md.Chunks {
		ck := c.layout.Chunk(key, i)
		v, ok, err := c.store.Get(ctx, ck)
		if err != nil {
			c.ioFailed(&IOError{Op: "get", Key: ck, Err: err})
			return nil, false
		}
		if !ok {
			c.selfHeal(ctx, key, md.Chunks, &CorruptError{Key: key, Index: i, Reason: "missing chunk"})
			return nil, false
		}
		parts = append(parts, v)
	}

	payload, err := c.enc.DecodeString(chunk.Join(parts))
	if err != nil {
		c.selfHeal(ctx, key, md.Chunks, &CorruptError{Key: key, Index: -1, Reason: "payload decode", Err: err})
		return nil, false
	}
	if c.memo != nil && !c.fence.fill(mk, seq, func() {
		c.memo.Set(mk, payload, md.remaining(c.clock.Now()))
	}) {
		c.log.Debug("memo fill skipped; entry changed during read", Fields{"key": key})
	}
	return payload, true
}

// liveMetadata applies lazy expiry and self-heals undecodable metadata.
func (c *cache) liveMetadata(ctx context.Context, key string) (Metadata, bool) {
	md, ok, err := c.meta.get(ctx, key)
	if err != nil {
		var ce *CorruptError
		if errors.As(err, &ce) {
			c.selfHeal(ctx, key, 0, ce)
		} else {
			c.ioFailed(err)
		}
		return Metadata{}, false
	}
	if !ok {
		return Metadata{}, false
	}
	if md.Expired(c.clock.Now()) {
		c.removeEntry(ctx, key, md.Chunks)
		c.hooks.SelfHeal(c.layout.Metadata(key), ReasonExpired)
		c.log.Debug("evicted expired entry", Fields{"key": key, "expires_at": md.ExpiresAt, "err": ErrExpired})
		return Metadata{}, false
	}
	return md, true
}

func (c *cache) Delete(ctx context.Context, key string) {
	if !c.enabled {
		return
	}
	if _, err := c.gen.Bump(ctx, c.layout.Metadata(key)); err != nil {
		c.log.Warn("delete: gen bump failed", Fields{"key": key, "err": err})
	}
	md, ok, err := c.meta.get(ctx, key)
	if err != nil {
		var ce *CorruptError
		if !errors.As(err, &ce) {
			// The chunk count is unknown; leave the entry for a later Delete or sweep.
			c.ioFailed(err)
			return
		}
	}
	if !ok && err == nil {
		return
	}
	c.removeEntry(ctx, key, md.Chunks)
}

func (c *cache) EvictIfExpired(ctx context.Context, key string) bool {
	if !c.enabled {
		return false
	}
	ev, _ := c.evictIfExpired(ctx, key)
	return ev != evictKept
}

type eviction int

const (
	evictKept eviction = iota
	evictExpired
	evictCorrupt
)

func (c *cache) evictIfExpired(ctx context.Context, key string) (eviction, Metadata) {
	md, ok, err := c.meta.get(ctx, key)
	if err != nil {
		var ce *CorruptError
		if errors.As(err, &ce) {
			c.selfHeal(ctx, key, 0, ce)
			return evictCorrupt, Metadata{}
		}
		c.ioFailed(err)
		return evictKept, Metadata{}
	}
	if !ok {
		return evictKept, Metadata{}
	}
	if !md.Expired(c.clock.Now()) {
		return evictKept, md
	}
	c.removeEntry(ctx, key, md.Chunks)
	c.hooks.SelfHeal(c.layout.Metadata(key), ReasonExpired)
	c.log.Debug("evicted expired entry", Fields{"key": key, "expires_at": md.ExpiresAt, "err": ErrExpired})
	return evictExpired, md
}

func (c *cache) PurgeAll(ctx context.Context) {
	if !c.enabled {
		return
	}
	if _, err := c.gen.Bump(ctx, c.epochKey); err != nil {
		c.log.Warn("purge: epoch bump failed", Fields{"err": err})
	}
	all, err := c.store.Keys(ctx)
	if err != nil {
		c.ioFailed(&IOError{Op: "keys", Key: c.layout.Prefix, Err: err})
		return
	}
	owned := c.layout.OwnedKeys(all)
	if c.memo != nil {
		c.fence.invalidateAll(c.memo.Clear)
	}
	if !c.removeMany(ctx, owned) {
		return
	}
	c.hooks.Purged("all", len(owned))
	c.log.Info("purged all entries", Fields{"removed": len(owned)})
}

func (c *cache) PurgeExpired(ctx context.Context) PurgeReport {
	var rep PurgeReport
	if !c.enabled {
		return rep
	}
	cacheKeys, all, err := c.meta.listAllKeys(ctx)
	if err != nil {
		c.ioFailed(err)
		return rep
	}

	live := make(map[string]int, len(cacheKeys))
	gone := make(map[string]bool)
	for _, k := range cacheKeys {
		rep.Scanned++
		switch ev, md := c.evictIfExpired(ctx, k); ev {
		case evictExpired:
			rep.Expired++
			gone[k] = true
		case evictCorrupt:
			rep.Corrupt++
			gone[k] = true
		default:
			if md.Chunks > 0 {
				live[k] = md.Chunks
			}
		}
	}
	c.hooks.Purged("expired", rep.Expired+rep.Corrupt)

	if c.orphans {
		var orphans []string
		for _, sk := range all {
			k, idx, ok := c.layout.ParseChunk(sk)
			if !ok || gone[k] {
				continue
			}
			if n, isLive := live[k]; !isLive || idx >= n {
				orphans = append(orphans, sk)
			}
		}
		if len(orphans) > 0 && c.removeMany(ctx, orphans) {
			rep.Orphans = len(orphans)
			c.hooks.Purged("orphans", rep.Orphans)
		}
	}
	c.log.Info("purged expired entries", Fields{
		"scanned": rep.Scanned, "expired": rep.Expired, "corrupt": rep.Corrupt, "orphans": rep.Orphans,
	})
	return rep
}

func (c *cache) Entries(ctx context.Context) ([]EntryInfo, error) {
	cacheKeys, _, err := c.meta.listAllKeys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(cacheKeys)
	now := c.clock.Now()
	out := make([]EntryInfo, 0, len(cacheKeys))
	for _, k := range cacheKeys {
		md, ok, err := c.meta.get(ctx, k)
		if err != nil || !ok {
			c.log.Debug("entries: skipped unreadable metadata", Fields{"key": k, "err": err})
			continue
		}
		out = append(out, EntryInfo{
			Key:       k,
			Chunks:    md.Chunks,
			ExpiresAt: time.UnixMilli(md.ExpiresAt),
			Expired:   md.Expired(now),
		})
	}
	return out, nil
}

// SnapshotGen combines the key's generation with the namespace epoch; any
// Delete of key or PurgeAll changes the result.
func (c *cache) SnapshotGen(ctx context.Context, key string) uint64 {
	mk := c.layout.Metadata(key)
	m, err := c.gen.SnapshotMany(ctx, []string{mk, c.epochKey})
	if err != nil {
		c.log.Warn("gen snapshot error", Fields{"key": key, "err": err})
		return 0
	}
	return m[mk] + m[c.epochKey]
}

func (c *cache) StoreWithGen(ctx context.Context, key string, payload []byte, observedGen uint64, ttl time.Duration) bool {
	if !c.enabled {
		return false
	}
	if c.SnapshotGen(ctx, key) != observedGen {
		c.hooks.FenceRejected(key)
		c.log.Debug("store skipped (gen moved)", Fields{"key": key, "obs": observedGen})
		return false
	}
	return c.Store(ctx, key, payload, ttl)
}

// selfHeal removes an entry the cache cannot serve. chunks may be 0 when unknown.
func (c *cache) selfHeal(ctx context.Context, key string, chunks int, cause *CorruptError) {
	reason := ReasonCorrupt
	if cause.Reason == ReasonMetadataDecode {
		reason = ReasonMetadataDecode
	}
	c.log.Warn("corrupt entry; removing", Fields{"key": key, "index": cause.Index, "err": cause})
	c.hooks.SelfHeal(c.layout.Metadata(key), reason)
	c.removeEntry(ctx, key, chunks)
}

// removeEntry deletes chunks before metadata so a reader never sees metadata
// whose chunks are already gone.
func (c *cache) removeEntry(ctx context.Context, key string, chunks int) {
	c.dropMemo(c.layout.Metadata(key))
	c.removeChunks(ctx, key, 0, chunks)
	if err := c.meta.delete(ctx, key); err != nil {
		c.ioFailed(err)
	}
}

// removeChunks removes chunk indexes [from, to) in batches of removeBatch.
func (c *cache) removeChunks(ctx context.Context, key string, from, to int) {
	for from < to {
		end := min(from+removeBatch, to)
		ks := make([]string, 0, end-from)
		for i := from; i < end; i++ {
			ks = append(ks, c.layout.Chunk(key, i))
		}
		if !c.removeMany(ctx, ks) {
			return
		}
		from = end
	}
}

func (c *cache) dropMemo(mk string) {
	if c.memo != nil {
		c.fence.invalidate(mk, c.memo.Del)
	}
}

func (c *cache) removeMany(ctx context.Context, ks []string) bool {
	if len(ks) == 0 {
		return true
	}
	if err := c.store.RemoveMany(ctx, ks); err != nil {
		c.ioFailed(&IOError{Op: "remove_many", Key: ks[0], Err: err})
		return false
	}
	return true
}

func (c *cache) ioFailed(err error) {
	var ioe *IOError
	if errors.As(err, &ioe) {
		c.hooks.StoreIOError(ioe.Op, ioe.Key, ioe.Err)
	}
	c.log.Warn("store io failed", Fields{"err": err})
}

func (c *cache) sweepLoop(every time.Duration) {
	defer c.done.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.PurgeExpired(context.Background())
		case <-c.stop:
			return
		}
	}
}

const memoStripes = 64

// memoFence orders memo fills against invalidations. A fill whose sequence
// was taken before an invalidation of the same stripe is dropped.
type memoFence struct {
	seed    maphash.Seed
	once    sync.Once
	stripes [memoStripes]memoStripe
}

type memoStripe struct {
	mu  sync.Mutex
	seq uint64
}

func (f *memoFence) stripe(k string) *memoStripe {
	f.once.Do(func() { f.seed = maphash.MakeSeed() })
	return &f.stripes[maphash.String(f.seed, k)%memoStripes]
}

func (f *memoFence) snapshot(k string) uint64 {
	s := f.stripe(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (f *memoFence) invalidate(k string, del func(string)) {
	s := f.stripe(k)
	s.mu.Lock()
	s.seq++
	del(k)
	s.mu.Unlock()
}

func (f *memoFence) invalidateAll(reset func()) {
	for i := range f.stripes {
		f.stripes[i].mu.Lock()
	}
	for i := range f.stripes {
		f.stripes[i].seq++
	}
	reset()
	for i := range f.stripes {
		f.stripes[i].mu.Unlock()
	}
}

func (f *memoFence) fill(k string, seq uint64, set func()) bool {
	s := f.stripe(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != seq {
		return false
	}
	set()
	return true
}
