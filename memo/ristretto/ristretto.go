// Package ristretto is a chunkcache.Memo on dgraph-io/ristretto: a bounded
// in-process tier holding reassembled payloads so hot reads skip chunk IO.
package ristretto

import (
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"
)

type Memo struct {
	c *rc.Cache
}

type Config struct {
	// MaxCostBytes bounds the memo by payload bytes.
	MaxCostBytes int64
	// NumCounters; 0 => 10x the expected item count assuming ~64 KiB payloads.
	NumCounters int64
	BufferItems int64 // 0 => 64
	Metrics     bool
}

func New(cfg Config) (*Memo, error) {
	if cfg.MaxCostBytes <= 0 {
		return nil, errors.New("ristretto memo: MaxCostBytes must be positive")
	}
	counters := cfg.NumCounters
	if counters <= 0 {
		counters = max(cfg.MaxCostBytes/(64<<10)*10, 1000)
	}
	buffer := cfg.BufferItems
	if buffer <= 0 {
		buffer = 64
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: counters,
		MaxCost:     cfg.MaxCostBytes,
		BufferItems: buffer,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Memo{c: c}, nil
}

func (m *Memo) Get(key string) ([]byte, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	if !ok {
		m.c.Del(key)
		return nil, false
	}
	return b, true
}

// Set is asynchronous; ristretto may drop it under contention or admission.
func (m *Memo) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.c.SetWithTTL(key, value, int64(len(value))+1, ttl)
}

func (m *Memo) Del(key string) { m.c.Del(key) }

func (m *Memo) Clear() { m.c.Clear() }

// Wait blocks until buffered writes are applied. Mostly for tests.
func (m *Memo) Wait() { m.c.Wait() }

func (m *Memo) Close() {
	m.c.Wait()
	m.c.Close()
}

// Metrics exposes ristretto counters when Config.Metrics is set.
func (m *Memo) Metrics() *rc.Metrics { return m.c.Metrics }
