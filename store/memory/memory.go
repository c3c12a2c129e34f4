// Package memory is an in-process store.Store, mainly for tests and ephemeral use.
package memory

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/chunkcache/store"
)

type Config struct {
	// MaxValueBytes rejects larger writes with store.ErrValueTooLarge; 0 = unlimited.
	MaxValueBytes int
}

type Store struct {
	mu       sync.RWMutex
	m        map[string]string
	maxValue int
}

var _ store.Store = (*Store)(nil)

func New(cfg Config) *Store {
	return &Store{m: make(map[string]string), maxValue: cfg.MaxValueBytes}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	v, ok := s.m[key]
	s.mu.RUnlock()
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	if s.maxValue > 0 && len(value) > s.maxValue {
		return store.ErrValueTooLarge
	}
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) RemoveMany(_ context.Context, keys []string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.m, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	s.mu.RUnlock()
	return out, nil
}

// Len reports the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *Store) Close(_ context.Context) error { return nil }
