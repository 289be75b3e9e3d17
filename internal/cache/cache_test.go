package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailinvoice/internal/config"
	"mailinvoice/internal/storage"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func exerciseStore(t *testing.T, s Store, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "pdf_abc", "/tmp/a.pdf", time.Minute))
	v, ok, err := s.Get(ctx, "pdf_abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/tmp/a.pdf", v)

	claimed, err := s.SetNX(ctx, "lock_abc", "1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = s.SetNX(ctx, "lock_abc", "2", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, claimed)

	advance(2 * time.Minute)

	_, ok, err = s.Get(ctx, "pdf_abc")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire")
	claimed, err = s.SetNX(ctx, "lock_abc", "3", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, claimed, "expired claim should be retaken")

	require.NoError(t, s.Delete(ctx, "lock_abc"))
	claimed, err = s.SetNX(ctx, "lock_abc", "4", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, claimed)

	deleted, err := s.DeleteIfValue(ctx, "lock_abc", "3")
	require.NoError(t, err)
	assert.False(t, deleted, "a stale token must not remove the current claim")
	v, ok, err = s.Get(ctx, "lock_abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "4", v)

	deleted, err = s.DeleteIfValue(ctx, "lock_abc", "4")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, ok, err = s.Get(ctx, "lock_abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	c := &clock{t: time.Date(2025, 9, 5, 9, 0, 0, 0, time.UTC)}
	s := NewMemory().WithClock(c.now)
	exerciseStore(t, s, func(d time.Duration) { c.t = c.t.Add(d) })
}

func TestSQLiteStore(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := &clock{t: time.Date(2025, 9, 5, 9, 0, 0, 0, time.UTC)}
	s := NewSQLite(db).WithClock(c.now)
	exerciseStore(t, s, func(d time.Duration) { c.t = c.t.Add(d) })

	require.NoError(t, s.Set(context.Background(), "old", "x", time.Second))
	c.t = c.t.Add(time.Hour)
	n, err := s.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "expired pdf entry, lock and the new entry")
}

func TestPrefixedStore(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	s := WithPrefix(inner, "mi_")

	require.NoError(t, s.Set(ctx, "booking_1", "42", time.Minute))
	v, ok, err := inner.Get(ctx, "mi_booking_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", v)

	_, ok, err = inner.Get(ctx, "booking_1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Same(t, inner, WithPrefix(inner, ""))
	assert.NoError(t, Close(s), "memory store holds no connection")
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Config{CacheBackend: "memory", CachePrefix: "p_"}
	s, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &prefixed{}, s)

	cfg.CacheBackend = "sqlite"
	_, err = New(cfg, nil)
	assert.Error(t, err)

	cfg.CacheBackend = "memcached"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

// Requires a running Redis; skipped otherwise.
func TestRedisStoreIntegration(t *testing.T) {
	r := NewRedis("localhost:6379", "", 0)
	t.Cleanup(func() { _ = r.Close() })
	ctx := context.Background()
	if err := r.Ping(ctx); err != nil {
		t.Skip("redis not available")
	}

	s := WithPrefix(r, "mailinvoice_test_"+time.Now().Format("150405.000000")+"_")
	require.NoError(t, s.Set(ctx, "k", "v", time.Second))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	claimed, err := s.SetNX(ctx, "lock", "1", time.Second)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = s.SetNX(ctx, "lock", "2", time.Second)
	require.NoError(t, err)
	assert.False(t, claimed)

	deleted, err := s.DeleteIfValue(ctx, "lock", "2")
	require.NoError(t, err)
	assert.False(t, deleted)
	deleted, err = s.DeleteIfValue(ctx, "lock", "1")
	require.NoError(t, err)
	assert.True(t, deleted)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
