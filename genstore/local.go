package genstore

import (
	"context"
	"sync"
	"time"
)

type localGen struct {
	gen    uint64
	bumped time.Time
}

// LocalGenStore keeps generations in-process (default).
// A pruned generation reads as 0 again; snapshots are only compared across a
// single populate, so retention just needs to exceed the slowest populate.
type LocalGenStore struct {
	mu   sync.RWMutex
	gens map[string]localGen

	stop      chan struct{}
	done      sync.WaitGroup
	closeOnce sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

// NewLocalGenStore starts a pruning loop when both cleanupInterval and retention are positive.
func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{gens: make(map[string]localGen)}
	if cleanupInterval <= 0 || retention <= 0 {
		return s
	}
	s.stop = make(chan struct{})
	s.done.Add(1)
	go s.pruneLoop(cleanupInterval, retention)
	return s
}

func (s *LocalGenStore) pruneLoop(every, retention time.Duration) {
	defer s.done.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Cleanup(retention)
		case <-s.stop:
			return
		}
	}
}

func (s *LocalGenStore) Snapshot(_ context.Context, key string) (uint64, error) {
	s.mu.RLock()
	g := s.gens[key].gen
	s.mu.RUnlock()
	return g, nil
}

// SnapshotMany reads every key under one read lock.
func (s *LocalGenStore) SnapshotMany(_ context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	s.mu.RLock()
	for _, k := range keys {
		out[k] = s.gens[k].gen
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *LocalGenStore) Bump(_ context.Context, key string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	g := s.gens[key]
	g.gen++
	g.bumped = now
	s.gens[key] = g
	s.mu.Unlock()
	return g.gen, nil
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	for k, g := range s.gens {
		if g.bumped.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

// Close stops the pruning loop. Safe to call more than once.
func (s *LocalGenStore) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
			s.done.Wait()
		}
	})
	return nil
}
