package genstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGenStore shares generations across processes so a delete in one
// replica fences populates running in another.
// With ttl > 0 generation keys expire; an expired key reads as 0.
type RedisGenStore struct {
	rdb redis.UniversalClient
	ns  string
	ttl time.Duration
}

var _ GenStore = (*RedisGenStore)(nil)

// NewRedisGenStore keys generations as "gen:<namespace>:<key>". ttl <= 0 disables expiry.
func NewRedisGenStore(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisGenStore {
	return &RedisGenStore{rdb: client, ns: namespace, ttl: ttl}
}

func (s *RedisGenStore) key(k string) string { return "gen:" + s.ns + ":" + k }

func (s *RedisGenStore) Snapshot(ctx context.Context, key string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseGen(key, res)
}

func (s *RedisGenStore) SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rk := make([]string, len(keys))
	for i, k := range keys {
		rk[i] = s.key(k)
	}
	vals, err := s.rdb.MGet(ctx, rk...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if v == nil {
			out[keys[i]] = 0
			continue
		}
		g, err := parseGen(keys[i], fmt.Sprint(v))
		if err != nil {
			return nil, err
		}
		out[keys[i]] = g
	}
	return out, nil
}

// Bump pipelines INCR and EXPIRE when a ttl is configured.
func (s *RedisGenStore) Bump(ctx context.Context, key string) (uint64, error) {
	k := s.key(key)
	if s.ttl <= 0 {
		return s.rdb.Incr(ctx, k).Uint64()
	}
	var incr *redis.IntCmd
	if _, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	}); err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

func (s *RedisGenStore) Cleanup(time.Duration) {}

// Close does not close the client; it is shared with other components.
func (s *RedisGenStore) Close(context.Context) error { return nil }

func parseGen(key, raw string) (uint64, error) {
	u, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse at %s: %w", key, err)
	}
	return u, nil
}
