// Package sloghooks implements chunkcache.Hooks by logging to a *slog.Logger.
package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/chunkcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery   uint64
	StoreErrorEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
	// RawKeys logs keys unredacted (useful for local debugging).
	RawKeys bool
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	ioErrCtr    atomic.Uint64
}

var _ chunkcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	switch {
	case h.opts.RawKeys:
		return k
	case h.opts.Redact != nil:
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	lvl := slog.LevelDebug
	if reason != chunkcache.ReasonExpired {
		lvl = slog.LevelWarn
	}
	h.l.Log(context.Background(), lvl, "chunkcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ChunkWriteFailed(storageKey string, index int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("chunkcache.chunk_write_failed",
		"key", h.redact(storageKey),
		"index", index,
		"err", err)
}

func (h *Hooks) StoreIOError(op, storageKey string, err error) {
	if h.l == nil || !sample(h.opts.StoreErrorEvery, &h.ioErrCtr) {
		return
	}
	h.l.Warn("chunkcache.store_io_error",
		"op", op,
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) PopulateFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Info("chunkcache.populate_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) FenceRejected(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("chunkcache.fence_rejected",
		"key", h.redact(key))
}

func (h *Hooks) Purged(kind string, removed int) {
	if h.l == nil {
		return
	}
	h.l.Info("chunkcache.purged",
		"kind", kind,
		"removed", removed)
}
