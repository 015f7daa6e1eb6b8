package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Store is a byte-oriented key/value store with per-entry expiry. A ttl of
// zero means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects and configures a Store.
type Config struct {
	Backend     string
	FilePath    string
	RedisURL    string
	SQLiteDSN   string
	PostgresDSN string
	MemoryItems int
	// Layered puts a small in-process cache in front of remote backends.
	Layered bool
}

// Open builds the Store named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)

	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemoryStore(cfg.MemoryItems), nil
	case BackendFile:
		return NewFileStore(cfg.FilePath)
	case BackendRedis:
		store, err = NewRedisStore(ctx, cfg.RedisURL)
	case BackendSQLite:
		store, err = NewSQLiteStore(ctx, cfg.SQLiteDSN)
	case BackendPostgres:
		store, err = NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Layered {
		return NewLayered(NewMemoryStore(cfg.MemoryItems), store), nil
	}
	return store, nil
}

// GetJSON loads key into target. The bool reports whether the key existed.
func GetJSON(ctx context.Context, s Store, key string, target any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("unmarshal cache entry %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value under key as JSON.
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return s.Set(ctx, key, data, ttl)
}

// BuildKey creates semantic cache keys
func BuildKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// EnrichedKey is the key of a site's enriched trend list.
func EnrichedKey(site string) string {
	return BuildKey("enriched", strings.ToUpper(site))
}

// TrendsKey is the key of a site's raw trend list.
func TrendsKey(site string) string {
	return BuildKey("trends", strings.ToUpper(site))
}

func expired(expiresAt time.Time, now time.Time) bool {
	return !expiresAt.IsZero() && now.After(expiresAt)
}

func expiry(ttl time.Duration, now time.Time) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
