package di

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/keyindex"
	"github.com/goliatone/go-query-cache/querycache"
	"gopkg.in/yaml.v3"
)

// Driver kinds.
const (
	KindMemory   = "memory"
	KindLRU      = "lru"
	KindRedis    = "redis"
	KindDatabase = "database"
)

// Index kinds. IndexMemory and IndexNone are process local: they only serve
// drivers that group natively or keep entries in process memory. Shared
// drivers without grouping need IndexFile, IndexRedis or IndexDatabase.
const (
	IndexMemory   = "memory"
	IndexFile     = "file"
	IndexRedis    = "redis"
	IndexDatabase = "database"
	IndexNone     = "none"
)

// SQL dialects understood by the database driver and index.
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// Config is the YAML document describing a container.
type Config struct {
	DefaultDriver   string                  `yaml:"default_driver"`
	DefaultLifetime time.Duration           `yaml:"default_lifetime"`
	Fingerprint     FingerprintConfig       `yaml:"fingerprint"`
	Drivers         map[string]DriverConfig `yaml:"drivers"`
	Index           IndexConfig             `yaml:"index"`
	Invalidation    InvalidationConfig      `yaml:"invalidation"`
}

// FingerprintConfig selects the key prefix and digest.
type FingerprintConfig struct {
	Prefix string `yaml:"prefix"`
	Hash   string `yaml:"hash"`
}

// DriverConfig describes one named store. Fields not used by Kind are ignored.
type DriverConfig struct {
	Kind string `yaml:"kind"`

	// memory and lru
	Capacity           int           `yaml:"capacity"`
	Shards             int           `yaml:"shards"`
	TTL                time.Duration `yaml:"ttl"`
	EvictionPercentage int           `yaml:"eviction_percentage"`

	// redis
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	Tags     *bool  `yaml:"tags"`

	// database
	Dialect string `yaml:"dialect"`
	DSN     string `yaml:"dsn"`
}

// IndexConfig describes where the key index lives.
type IndexConfig struct {
	Kind string `yaml:"kind"`

	Path string `yaml:"path"`

	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`

	Dialect string `yaml:"dialect"`
	DSN     string `yaml:"dsn"`
}

// InvalidationConfig lists entity types whose lifecycle events do not flush.
type InvalidationConfig struct {
	Disabled []string `yaml:"disabled"`
}

// DefaultConfig returns a single memory driver tracked by an in-process
// index. Nothing is shared with other processes.
func DefaultConfig() Config {
	mem := cache.DefaultConfig()
	return Config{
		DefaultDriver:   KindMemory,
		DefaultLifetime: querycache.DefaultLifetime,
		Fingerprint: FingerprintConfig{
			Prefix: cache.DefaultKeyPrefix,
			Hash:   cache.HashSHA256,
		},
		Drivers: map[string]DriverConfig{
			KindMemory: {
				Kind:               KindMemory,
				Capacity:           mem.Capacity,
				Shards:             mem.NumShards,
				TTL:                mem.TTL,
				EvictionPercentage: mem.EvictionPercentage,
			},
		},
		Index: IndexConfig{Kind: IndexMemory},
	}
}

// LoadConfig reads a YAML config. Unknown fields are rejected; omitted
// sections take their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes and validates a YAML config document.
func ParseConfig(data []byte) (Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if len(c.Drivers) == 0 {
		c.Drivers = def.Drivers
	}
	if c.DefaultDriver == "" {
		c.DefaultDriver = def.DefaultDriver
	}
	if c.DefaultLifetime == 0 {
		c.DefaultLifetime = def.DefaultLifetime
	}
	if c.Fingerprint.Prefix == "" {
		c.Fingerprint.Prefix = def.Fingerprint.Prefix
	}
	if c.Fingerprint.Hash == "" {
		c.Fingerprint.Hash = def.Fingerprint.Hash
	}
	if c.Index.Kind == "" {
		c.Index.Kind = def.Index.Kind
	}
	if c.Index.Kind == IndexRedis && c.Index.Key == "" {
		c.Index.Key = keyindex.DefaultRedisKey
	}
}

// Validate checks the whole document.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DefaultDriver, validation.Required, validation.By(c.registered)),
		validation.Field(&c.DefaultLifetime, validation.By(validLifetime)),
		validation.Field(&c.Fingerprint),
		validation.Field(&c.Drivers, validation.Required),
		validation.Field(&c.Index, validation.By(c.indexRequired)),
	)
}

func (c Config) registered(value any) error {
	name, _ := value.(string)
	if _, ok := c.Drivers[name]; !ok {
		return fmt.Errorf("driver %q is not configured", name)
	}
	return nil
}

func (c Config) indexRequired(value any) error {
	if c.Index.Kind != IndexNone && c.Index.Kind != IndexMemory {
		return nil
	}
	for _, name := range c.SharedDrivers() {
		if !c.Drivers[name].grouping() {
			return fmt.Errorf("driver %q is shared, has no grouping and needs a file, redis or database key index", name)
		}
	}
	return nil
}

// SharedDrivers lists, sorted, the drivers whose entries other processes can
// reach. Only these can be flushed from outside the owning process.
func (c Config) SharedDrivers() []string {
	var names []string
	for name, d := range c.Drivers {
		if !d.processLocal() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func validLifetime(value any) error {
	d, _ := value.(time.Duration)
	if d < 0 && d != cache.Forever {
		return errors.New("must be positive or -1ns for forever")
	}
	return nil
}

// Validate implements validation.Validatable.
func (f FingerprintConfig) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Hash, validation.In(cache.HashSHA256, cache.HashXX)),
	)
}

// Validate implements validation.Validatable.
func (d DriverConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Kind, validation.Required, validation.In(KindMemory, KindLRU, KindRedis, KindDatabase)),
		validation.Field(&d.Capacity, validation.Min(0)),
		validation.Field(&d.Shards, validation.Min(0)),
		validation.Field(&d.TTL, validation.Min(0)),
		validation.Field(&d.EvictionPercentage, validation.Min(0), validation.Max(100)),
		validation.Field(&d.Addr, validation.When(d.Kind == KindRedis, validation.Required)),
		validation.Field(&d.Dialect, validation.When(d.Kind == KindDatabase, validation.Required, validation.In(DialectSQLite, DialectPostgres))),
		validation.Field(&d.DSN, validation.When(d.Kind == KindDatabase, validation.Required)),
	)
}

// processLocal reports whether the store built from d lives in process memory.
func (d DriverConfig) processLocal() bool {
	return d.Kind == KindMemory || d.Kind == KindLRU
}

// grouping reports whether the store built from d has native tags.
func (d DriverConfig) grouping() bool {
	switch d.Kind {
	case KindLRU:
		return true
	case KindRedis:
		return d.Tags == nil || *d.Tags
	default:
		return false
	}
}

// Validate implements validation.Validatable.
func (i IndexConfig) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Kind, validation.Required, validation.In(IndexMemory, IndexFile, IndexRedis, IndexDatabase, IndexNone)),
		validation.Field(&i.Path, validation.When(i.Kind == IndexFile, validation.Required)),
		validation.Field(&i.Addr, validation.When(i.Kind == IndexRedis, validation.Required)),
		validation.Field(&i.Dialect, validation.When(i.Kind == IndexDatabase, validation.Required, validation.In(DialectSQLite, DialectPostgres))),
		validation.Field(&i.DSN, validation.When(i.Kind == IndexDatabase, validation.Required)),
	)
}
