// Package natskv implements store.Store on a NATS JetStream KeyValue bucket.
//
// JetStream restricts key characters, so keys are stored base64url-encoded
// and decoded again on enumeration.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/unkn0wn-root/chunkcache/store"
)

var enc = base64.RawURLEncoding

type Store struct {
	kv jetstream.KeyValue
	nc *nats.Conn // non-nil only when Open created the connection
}

var _ store.Store = (*Store)(nil)

// New wraps an existing bucket. The caller keeps ownership of the connection.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

type Config struct {
	URL    string
	Bucket string
	// MaxValueSize caps a single write at the bucket level; 0 = server default.
	// Keep chunkcache's MaxChunkBytes below it.
	MaxValueSize int32
}

// Open connects, creates or updates the bucket and owns the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("natskv store: bucket is required")
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:       cfg.Bucket,
		MaxValueSize: cfg.MaxValueSize,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open bucket %q: %w", cfg.Bucket, err)
	}
	return &Store{kv: kv, nc: nc}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	entry, err := s.kv.Get(ctx, enc.EncodeToString([]byte(key)))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(entry.Value()), true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.kv.Put(ctx, enc.EncodeToString([]byte(key)), []byte(value))
	return err
}

func (s *Store) Remove(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, enc.EncodeToString([]byte(key)))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
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

// Keys lists live keys; names that do not decode were not written by this store and are skipped.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	defer lister.Stop()
	var out []string
	for k := range lister.Keys() {
		raw, err := enc.DecodeString(k)
		if err != nil {
			continue
		}
		out = append(out, string(raw))
	}
	return out, nil
}

func (s *Store) Close(_ context.Context) error {
	if s.nc != nil {
		return s.nc.Drain()
	}
	return nil
}
