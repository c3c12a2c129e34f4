package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/chunkcache"
)

type counting struct {
	chunkcache.NopHooks
	mu    sync.Mutex
	heals int
	block chan struct{}
}

func (c *counting) SelfHeal(string, string) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.heals++
	c.mu.Unlock()
}

func TestDeliversBeforeClose(t *testing.T) {
	inner := &counting{}
	h := New(inner, 2, 16)
	for range 10 {
		h.SelfHeal("k", chunkcache.ReasonExpired)
	}
	h.Close()
	if inner.heals != 10 {
		t.Fatalf("delivered %d of 10", inner.heals)
	}
	h.SelfHeal("k", chunkcache.ReasonExpired) // after close: dropped, no panic
	if h.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", h.Dropped())
	}
}

func TestDropsWhenQueueFull(t *testing.T) {
	inner := &counting{block: make(chan struct{})}
	h := New(inner, 1, 1)

	// One event occupies the worker, one fills the queue; the rest drop.
	for range 5 {
		h.SelfHeal("k", chunkcache.ReasonCorrupt)
	}
	close(inner.block)
	h.Close()

	if got := uint64(inner.heals) + h.Dropped(); got != 5 {
		t.Fatalf("delivered+dropped = %d, want 5", got)
	}
	if h.Dropped() == 0 {
		t.Fatalf("expected drops with a full queue")
	}
}
