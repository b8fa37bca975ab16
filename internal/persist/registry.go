package persist

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

const redisPingTimeout = 3 * time.Second

// Backend names used in configuration.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// BackendFactory builds a KV from the generic config below.
type BackendFactory func(BackendConfig) (KV, error)

// BackendConfig carries the knobs used by the built-in backends.
type BackendConfig struct {
	// File, and default location for SQLite
	Dir string
	// Redis
	RedisURL    string
	RedisPrefix string
	// SQLite
	SQLitePath string
}

var registry = map[string]BackendFactory{}

// RegisterBackend registers a backend name with its factory.
func RegisterBackend(name string, f BackendFactory) { registry[name] = f }

// OpenBackend creates the KV registered under name.
func OpenBackend(name string, cfg BackendConfig) (KV, error) {
	if name == "" {
		name = BackendFile
	}
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend: %s (use one of %v)", name, Backends())
	}
	return f(cfg)
}

// Backends lists registered backend names.
func Backends() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// init registers built-in backends.
func init() {
	RegisterBackend(BackendFile, func(c BackendConfig) (KV, error) {
		return NewFileKV(c.Dir)
	})
	RegisterBackend(BackendRedis, func(c BackendConfig) (KV, error) {
		if c.RedisURL == "" {
			c.RedisURL = "redis://127.0.0.1:6379/0"
		}
		if c.RedisPrefix == "" {
			c.RedisPrefix = "veiltext:"
		}
		kv := NewRedisKV(c.RedisURL, c.RedisPrefix)
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := kv.Ping(ctx); err != nil {
			_ = kv.Close()
			return nil, err
		}
		return kv, nil
	})
	RegisterBackend(BackendSQLite, func(c BackendConfig) (KV, error) {
		if c.SQLitePath == "" {
			c.SQLitePath = filepath.Join(c.Dir, "veiltext.db")
		}
		return OpenSQLiteKV(c.SQLitePath)
	})
}
