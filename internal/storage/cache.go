package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CacheGet returns the value stored under key unless it has expired.
func (d *DB) CacheGet(ctx context.Context, key string, now time.Time) (string, bool, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `
SELECT value FROM cache_entries WHERE key = ? AND expiresAt > ?
`, key, now.Unix()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (d *DB) CacheSet(ctx context.Context, key, value string, expiresAt time.Time) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO cache_entries (key, value, expiresAt) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expiresAt = excluded.expiresAt
`, key, value, expiresAt.Unix())
	return err
}

// CacheSetNX stores value only if key is absent or expired. The single
// statement makes the claim atomic across processes sharing the file.
func (d *DB) CacheSetNX(ctx context.Context, key, value string, now, expiresAt time.Time) (bool, error) {
	res, err := d.conn.ExecContext(ctx, `
INSERT INTO cache_entries (key, value, expiresAt) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expiresAt = excluded.expiresAt
WHERE cache_entries.expiresAt <= ?
`, key, value, expiresAt.Unix(), now.Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *DB) CacheDelete(ctx context.Context, key string) error {
	_, err := d.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// CacheDeleteIfValue removes key only while it still holds value.
func (d *DB) CacheDeleteIfValue(ctx context.Context, key, value string) (bool, error) {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ? AND value = ?`, key, value)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeExpiredCache drops expired rows and reports how many were removed.
func (d *DB) PurgeExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE expiresAt <= ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
