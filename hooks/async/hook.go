// Package asynchook moves chunkcache hook delivery off the IO path.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := chunkcache.New(chunkcache.Options{Store: st, Hooks: hooks})
//
// Events that do not fit into the queue are dropped and counted.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/chunkcache"
)

type Hooks struct {
	inner   chunkcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ chunkcache.Hooks = (*Hooks)(nil)

func New(inner chunkcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for range workers {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports events lost to a full queue or a closed Hooks.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, r string)               { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) PopulateFailed(k string, err error) { h.try(func() { h.inner.PopulateFailed(k, err) }) }
func (h *Hooks) FenceRejected(k string)             { h.try(func() { h.inner.FenceRejected(k) }) }
func (h *Hooks) Purged(kind string, n int)          { h.try(func() { h.inner.Purged(kind, n) }) }
func (h *Hooks) ChunkWriteFailed(k string, i int, err error) {
	h.try(func() { h.inner.ChunkWriteFailed(k, i, err) })
}
func (h *Hooks) StoreIOError(op, k string, err error) {
	h.try(func() { h.inner.StoreIOError(op, k, err) })
}
