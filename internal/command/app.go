package command

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/chunkcache"
	"github.com/unkn0wn-root/chunkcache/fetch"
	"github.com/unkn0wn-root/chunkcache/genstore"
	configpkg "github.com/unkn0wn-root/chunkcache/internal/config"
	zaplog "github.com/unkn0wn-root/chunkcache/log/zap"
	"github.com/unkn0wn-root/chunkcache/memo/ristretto"
	"github.com/unkn0wn-root/chunkcache/store"
	bigcachestore "github.com/unkn0wn-root/chunkcache/store/bigcache"
	"github.com/unkn0wn-root/chunkcache/store/memory"
	"github.com/unkn0wn-root/chunkcache/store/natskv"
	redisstore "github.com/unkn0wn-root/chunkcache/store/redis"
	s3store "github.com/unkn0wn-root/chunkcache/store/s3"
	"github.com/unkn0wn-root/chunkcache/store/sqlite"
)

const fenceTTL = 24 * time.Hour

type app struct {
	cache  chunkcache.Cache
	client *chunkcache.Client
	fetch  fetch.HTTP
	memo   *ristretto.Memo
}

func (a *app) Close(ctx context.Context) error {
	err := a.cache.Close(ctx)
	if a.memo != nil {
		a.memo.Close()
	}
	return err
}

func loadConfig() (*configpkg.Config, error) {
	config := &configpkg.Config{}

	if configPath != "" {
		configBytes, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file at path %s: %w", configPath, err)
		}

		config, err = configpkg.Parse(bytes.NewReader(configBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file at path %s: %w", configPath, err)
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	return config, nil
}

// openApp builds the cache from configuration; tune, if non-nil, adjusts
// engine options last.
func openApp(ctx context.Context, tune func(*chunkcache.Options)) (*app, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := zaplog.New(zap.L())
	opts := chunkcache.Options{
		Prefix:     config.Prefix,
		DefaultTTL: config.TTL,
		Logger:     logger,
		Disabled:   config.Disabled,
	}

	chunkSize, err := configpkg.Bytes("chunk-size", config.ChunkSize)
	if err != nil {
		return nil, err
	}
	if chunkSize > math.MaxInt32 {
		return nil, fmt.Errorf("chunk-size %d is too large", chunkSize)
	}
	opts.MaxChunkBytes = int(chunkSize)

	switch config.Encoding {
	case "", "base64":
	case "text":
		opts.Encoding = chunkcache.TextEncoding
	default:
		return nil, fmt.Errorf("unsupported encoding %q (want base64 or text)", config.Encoding)
	}

	st, gen, err := openStore(ctx, config)
	if err != nil {
		return nil, err
	}
	opts.Store = st
	opts.GenStore = gen

	a := &app{}
	if config.Memo != nil {
		limit, err := configpkg.Bytes("memo limit", config.Memo.Limit)
		if err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		if limit == 0 {
			limit = 64 << 20
		}
		a.memo, err = ristretto.New(ristretto.Config{MaxCostBytes: int64(limit)})
		if err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		opts.Memo = a.memo
	}

	if tune != nil {
		tune(&opts)
	}
	a.cache, err = chunkcache.New(opts)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	a.client = chunkcache.NewClient(a.cache, chunkcache.ClientOptions{
		DefaultTTL:        config.TTL,
		DisableCoalescing: config.Coalescing != nil && !*config.Coalescing,
		Logger:            logger,
	})

	maxBytes, err := configpkg.Bytes("fetch max-bytes", config.Fetch.MaxBytes)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.fetch = fetch.HTTP{
		Client:    &http.Client{Timeout: config.Fetch.Timeout},
		MaxBytes:  int64(maxBytes),
		UserAgent: config.Fetch.UserAgent,
	}

	return a, nil
}

// openStore builds the configured byte-store and, for Redis with fences
// enabled, a generation store sharing its client.
func openStore(ctx context.Context, config *configpkg.Config) (store.Store, genstore.GenStore, error) {
	prefix := config.Prefix
	if prefix == "" {
		prefix = chunkcache.DefaultPrefix
	}
	sc := config.Store

	switch sc.Kind {
	case "", "memory":
		return memory.New(memory.Config{}), nil, nil
	case "sqlite":
		if sc.SQLite == nil || sc.SQLite.Path == "" {
			return nil, nil, fmt.Errorf("store.sqlite.path needs to be specified")
		}
		st, err := sqlite.Open(sc.SQLite.Path)
		return st, nil, err
	case "redis":
		if sc.Redis == nil || len(sc.Redis.Addrs) == 0 {
			return nil, nil, fmt.Errorf("store.redis.addrs needs to be specified")
		}
		rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    sc.Redis.Addrs,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		st, err := redisstore.New(redisstore.Config{Client: rdb, Match: prefix + "*", CloseClient: true})
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		if sc.Redis.Fences {
			return st, genstore.NewRedisGenStore(rdb, prefix, fenceTTL), nil
		}
		return st, nil, nil
	case "bigcache":
		bcc := bigcachestore.Config{}
		if sc.BigCache != nil {
			limit, err := configpkg.Bytes("bigcache limit", sc.BigCache.Limit)
			if err != nil {
				return nil, nil, err
			}
			bcc.Shards = sc.BigCache.Shards
			bcc.HardMaxCacheSizeMB = int(limit >> 20)
		}
		st, err := bigcachestore.New(bcc)
		return st, nil, err
	case "nats":
		if sc.NATS == nil {
			return nil, nil, fmt.Errorf("store.nats needs to be specified")
		}
		maxValue, err := configpkg.Bytes("nats max-value-size", sc.NATS.MaxValueSize)
		if err != nil {
			return nil, nil, err
		}
		if maxValue > math.MaxInt32 {
			return nil, nil, fmt.Errorf("nats max-value-size %d is too large", maxValue)
		}
		st, err := natskv.Open(ctx, natskv.Config{
			URL:          sc.NATS.URL,
			Bucket:       sc.NATS.Bucket,
			MaxValueSize: int32(maxValue),
		})
		return st, nil, err
	case "s3":
		if sc.S3 == nil {
			return nil, nil, fmt.Errorf("store.s3 needs to be specified")
		}
		st, err := s3store.New(ctx, s3store.Config{
			Endpoint:        sc.S3.Endpoint,
			Region:          sc.S3.Region,
			AccessKeyID:     sc.S3.AccessKeyID,
			AccessKeySecret: sc.S3.AccessKeySecret,
			Bucket:          sc.S3.Bucket,
			Prefix:          sc.S3.Prefix,
			UsePathStyle:    sc.S3.UsePathStyle,
		})
		return st, nil, err
	default:
		return nil, nil, fmt.Errorf("unsupported store kind %q", sc.Kind)
	}
}
