package config

import (
	"fmt"
	"io"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Prefix     string        `yaml:"prefix" env:"PREFIX"`
	ChunkSize  string        `yaml:"chunk-size" env:"CHUNK_SIZE"`
	TTL        time.Duration `yaml:"ttl" env:"TTL"`
	Encoding   string        `yaml:"encoding" env:"ENCODING"` // "base64" (default) or "text"
	Disabled   bool          `yaml:"disabled" env:"DISABLED"`
	Coalescing *bool         `yaml:"coalescing"`
	Memo       *Memo         `yaml:"memo"`
	Fetch      Fetch         `yaml:"fetch" envPrefix:"FETCH_"`
	Store      Store         `yaml:"store" envPrefix:"STORE_"`
}

type Memo struct {
	Limit string `yaml:"limit"`
}

type Fetch struct {
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxBytes  string        `yaml:"max-bytes" env:"MAX_BYTES"`
	UserAgent string        `yaml:"user-agent" env:"USER_AGENT"`
}

type Store struct {
	// Kind selects the backend: memory, sqlite, redis, bigcache, nats or s3.
	Kind     string    `yaml:"kind" env:"KIND"`
	SQLite   *SQLite   `yaml:"sqlite" envPrefix:"SQLITE_"`
	Redis    *Redis    `yaml:"redis" envPrefix:"REDIS_"`
	BigCache *BigCache `yaml:"bigcache"`
	NATS     *NATS     `yaml:"nats" envPrefix:"NATS_"`
	S3       *S3       `yaml:"s3" envPrefix:"S3_"`
}

type SQLite struct {
	Path string `yaml:"path" env:"PATH"`
}

type Redis struct {
	Addrs    []string `yaml:"addrs" env:"ADDRS" envSeparator:","`
	Password string   `yaml:"password" env:"PASSWORD"`
	DB       int      `yaml:"db" env:"DB"`
	// Fences shares write generations through the same Redis.
	Fences bool `yaml:"fences"`
}

type BigCache struct {
	Shards int    `yaml:"shards"`
	Limit  string `yaml:"limit"`
}

type NATS struct {
	URL          string `yaml:"url" env:"URL"`
	Bucket       string `yaml:"bucket" env:"BUCKET"`
	MaxValueSize string `yaml:"max-value-size"`
}

type S3 struct {
	Endpoint        string `yaml:"endpoint" env:"ENDPOINT"`
	Region          string `yaml:"region" env:"REGION"`
	AccessKeyID     string `yaml:"access-key-id" env:"ACCESS_KEY_ID"`
	AccessKeySecret string `yaml:"access-key-secret" env:"ACCESS_KEY_SECRET"`
	Bucket          string `yaml:"bucket" env:"BUCKET"`
	Prefix          string `yaml:"prefix" env:"PREFIX"`
	UsePathStyle    bool   `yaml:"use-path-style" env:"USE_PATH_STYLE"`
}

const EnvPrefix = "CHUNKCACHE_"

func Parse(r io.Reader) (*Config, error) {
	var config Config

	if err := yaml.NewDecoder(r).Decode(&config); err != nil && err != io.EOF {
		return nil, err
	}

	return &config, nil
}

// ApplyEnv overrides fields from CHUNKCACHE_* variables. Backend sections
// referenced by a variable that are absent from the file are created.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(env.Options{Prefix: EnvPrefix})
}

func (c *Config) applyEnv(opts env.Options) error {
	if c.Store.SQLite == nil {
		c.Store.SQLite = &SQLite{}
	}
	if c.Store.Redis == nil {
		c.Store.Redis = &Redis{}
	}
	if c.Store.NATS == nil {
		c.Store.NATS = &NATS{}
	}
	if c.Store.S3 == nil {
		c.Store.S3 = &S3{}
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if *c.Store.SQLite == (SQLite{}) {
		c.Store.SQLite = nil
	}
	if len(c.Store.Redis.Addrs) == 0 && c.Store.Redis.Password == "" && c.Store.Redis.DB == 0 && !c.Store.Redis.Fences {
		c.Store.Redis = nil
	}
	if *c.Store.NATS == (NATS{}) {
		c.Store.NATS = nil
	}
	if *c.Store.S3 == (S3{}) {
		c.Store.S3 = nil
	}
	return nil
}

// Bytes parses a human size such as "1.5MiB"; "" yields 0.
func Bytes(field, v string) (uint64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s value %q: %w", field, v, err)
	}
	return n, nil
}
