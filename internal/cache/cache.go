package cache

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"mailinvoice/internal/config"
	"mailinvoice/internal/storage"
)

// Store is a string key/value cache with per-entry TTL. A miss is reported
// as ok=false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent or expired and reports
	// whether this call claimed it.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// DeleteIfValue removes key only while it still holds value and reports
	// whether it did.
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
}

// New picks the backend named by CACHE_BACKEND and namespaces every key
// with CACHE_PREFIX. db may be nil unless the sqlite backend is selected.
func New(cfg config.Config, db *storage.DB) (Store, error) {
	var backend Store
	switch strings.ToLower(strings.TrimSpace(cfg.CacheBackend)) {
	case "", "sqlite":
		if db == nil {
			return nil, fmt.Errorf("sqlite cache requires an open database")
		}
		backend = NewSQLite(db)
	case "redis":
		backend = NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "memory":
		backend = NewMemory()
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.CacheBackend)
	}
	return WithPrefix(backend, cfg.CachePrefix), nil
}

type prefixed struct {
	prefix string
	next   Store
}

// WithPrefix wraps s so every key is stored as prefix+key.
func WithPrefix(s Store, prefix string) Store {
	if prefix == "" {
		return s
	}
	return &prefixed{prefix: prefix, next: s}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.next.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return p.next.Set(ctx, p.prefix+key, value, ttl)
}

func (p *prefixed) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return p.next.SetNX(ctx, p.prefix+key, value, ttl)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.next.Delete(ctx, p.prefix+key)
}

func (p *prefixed) DeleteIfValue(ctx context.Context, key, value string) (bool, error) {
	return p.next.DeleteIfValue(ctx, p.prefix+key, value)
}

// Close releases the backend connection behind s, if it holds one.
func Close(s Store) error {
	if p, ok := s.(*prefixed); ok {
		s = p.next
	}
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
