package redis

import (
	"context"
	"errors"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/chunkcache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

const defaultScanCount = 256

type Redis struct {
	rdb         goredis.UniversalClient
	match       string
	scanCount   int64
	closeClient bool
}

var _ store.Store = (*Redis)(nil)

type Config struct {
	Client goredis.UniversalClient
	// Match limits Keys to a SCAN pattern (e.g. "@chunkcache:*"); empty = "*".
	Match string
	// ScanCount is the SCAN COUNT hint; 0 => 256.
	ScanCount   int64
	CloseClient bool // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	r := &Redis{
		rdb:         cfg.Client,
		match:       cfg.Match,
		scanCount:   cfg.ScanCount,
		closeClient: cfg.CloseClient,
	}
	if r.match == "" {
		r.match = "*"
	}
	if r.scanCount <= 0 {
		r.scanCount = defaultScanCount
	}
	return r, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set writes without expiry; chunkcache enforces TTL itself.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, key, value, 0).Err()
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// RemoveMany pipelines one DEL per key so cluster clients never issue a cross-slot command.
func (r *Redis) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for _, k := range keys {
			p.Del(ctx, k)
		}
		return nil
	})
	return err
}

// Keys walks SCAN with the configured pattern. On a cluster client every master is scanned.
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	if cc, ok := r.rdb.(*goredis.ClusterClient); ok {
		var (
			mu  sync.Mutex
			out []string
		)
		err := cc.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
			ks, err := scanAll(ctx, node, r.match, r.scanCount)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, ks...)
			mu.Unlock()
			return nil
		})
		return out, err
	}
	return scanAll(ctx, r.rdb, r.match, r.scanCount)
}

func scanAll(ctx context.Context, c goredis.Cmdable, match string, count int64) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		ks, next, err := c.Scan(ctx, cursor, match, count).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, ks...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// Close releases the underlying redis client only when this store owns it.
func (r *Redis) Close(context.Context) error {
	if r.closeClient {
		if err := r.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
