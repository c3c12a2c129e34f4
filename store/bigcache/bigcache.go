// Package bigcache adapts allegro/bigcache as an in-process store.Store.
//
// BigCache evicts on its own (LifeWindow, HardMaxCacheSize) without regard for
// which chunks belong together; chunkcache treats an entry that lost a chunk
// as corrupt and reports a miss.
package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/chunkcache/store"
)

const (
	defaultLifeWindow = 30 * 24 * time.Hour
	defaultShards     = 64
	defaultEntries    = 4096
)

type Store struct {
	c *bc.BigCache
}

var _ store.Store = (*Store)(nil)

type Config struct {
	LifeWindow         time.Duration // 0 => 30 days
	CleanWindow        time.Duration // 0 = never sweep expired entries
	Shards             int           // power of two; 0 => 64
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Store, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = defaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = cfg.CleanWindow
	conf.Verbose = false
	// bigcache preallocates MaxEntriesInWindow*MaxEntrySize bytes up front
	conf.Shards = defaultShards
	conf.MaxEntriesInWindow = defaultEntries
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	return s.c.Set(key, []byte(value))
}

func (s *Store) Remove(_ context.Context, key string) error {
	if err := s.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (s *Store) RemoveMany(ctx context.Context, keys []string) error {
	var errs []error
	for _, k := range keys {
		if err := s.Remove(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Keys walks the shard iterator; entries removed mid-walk are skipped.
func (s *Store) Keys(_ context.Context) ([]string, error) {
	var out []string
	it := s.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			continue
		}
		out = append(out, e.Key())
	}
	return out, nil
}

func (s *Store) Close(_ context.Context) error {
	return s.c.Close()
}
