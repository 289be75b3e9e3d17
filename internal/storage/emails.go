package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"mailinvoice/internal"
)

const emailColumns = `id, provider, messageId, COALESCE(subject, ''), COALESCE(sender, ''), COALESCE(receivedAt, ''), hash, status, rawRef`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(r rowScanner) (internal.EmailRow, error) {
	var e internal.EmailRow
	err := r.Scan(&e.ID, &e.Provider, &e.MessageID, &e.Subject, &e.Sender, &e.ReceivedAt, &e.Hash, &e.Status, &e.RawRef)
	return e, err
}

// UpsertEmail stores a fetched mailbox message. A message seen before keeps
// its processing status; only its envelope and raw file reference change.
func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	const q = `
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject = excluded.subject, sender = excluded.sender, receivedAt = excluded.receivedAt,
  hash = excluded.hash, rawRef = excluded.rawRef, updatedAt = CURRENT_TIMESTAMP`
	if _, err := d.conn.Exec(q, provider, messageID, subject, sender, receivedAt, hash, status, rawRef); err != nil {
		return internal.EmailRow{}, fmt.Errorf("upsert email %s/%s: %w", provider, messageID, err)
	}
	return d.MustEmailByProviderMessageID(provider, messageID)
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	return d.findEmail(`provider = ? AND messageId = ?`, provider, messageID)
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	return d.findEmail(`id = ?`, id)
}

// MustEmailByProviderMessageID is GetEmailByProviderMessageID with a missing
// row reported as an error.
func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	e, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if e == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *e, nil
}

func (d *DB) findEmail(where string, args ...any) (*internal.EmailRow, error) {
	e, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEmailsByStatus returns up to limit mails in the given status, oldest first.
func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt, id LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	res, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("email %d not found", emailID)
	}
	return nil
}
