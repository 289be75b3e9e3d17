package cache

import (
	"context"
	"time"

	"mailinvoice/internal/storage"
)

// SQLite keeps cache entries in the cache_entries table of the app database,
// so separate processes sharing the file see the same entries.
type SQLite struct {
	db  *storage.DB
	now func() time.Time
}

func NewSQLite(db *storage.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

func (s *SQLite) WithClock(now func() time.Time) *SQLite {
	s.now = now
	return s
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	return s.db.CacheGet(ctx, key, s.now())
}

func (s *SQLite) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.db.CacheSet(ctx, key, value, s.now().Add(ttl))
}

func (s *SQLite) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := s.now()
	return s.db.CacheSetNX(ctx, key, value, now, now.Add(ttl))
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	return s.db.CacheDelete(ctx, key)
}

func (s *SQLite) DeleteIfValue(ctx context.Context, key, value string) (bool, error) {
	return s.db.CacheDeleteIfValue(ctx, key, value)
}

// Purge removes expired rows.
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	return s.db.PurgeExpiredCache(ctx, s.now())
}
