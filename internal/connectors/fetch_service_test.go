package connectors

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailinvoice/internal"
	"mailinvoice/internal/storage"
)

type fakeConnector struct {
	messages []internal.FetchedMailMessage
	err      error
	queries  []internal.MailQuery
}

func (f *fakeConnector) Provider() string { return "fake" }

func (f *fakeConnector) FetchInbox(_ context.Context, q internal.MailQuery) ([]internal.FetchedMailMessage, error) {
	f.queries = append(f.queries, q)
	return f.messages, f.err
}

func TestFetchAndStore(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	rawDir := filepath.Join(t.TempDir(), "raw")

	conn := &fakeConnector{messages: []internal.FetchedMailMessage{
		{Provider: "fake", MessageID: "a@x", Subject: "New meeting scheduled!", From: "bookings@example.com", ReceivedAt: "2025-09-05T08:00:00Z", Raw: []byte("Subject: a\r\n\r\nhello")},
		{Provider: "fake", MessageID: "b@x", Subject: "Meeting cancelled", ReceivedAt: "2025-09-05T08:05:00Z", Raw: []byte("Subject: b\r\n\r\nbye")},
	}}
	svc := NewFetchService(db, rawDir, conn, zerolog.Nop())
	q := internal.MailQuery{Label: "INBOX", Max: 10, Subject: "scheduled"}

	res, err := svc.FetchAndStore(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Fetched: 2, New: 2}, res)
	assert.Equal(t, []internal.MailQuery{q}, conn.queries)

	row, err := db.MustEmailByProviderMessageID("fake", "a@x")
	require.NoError(t, err)
	assert.Equal(t, "fetched", row.Status)
	assert.Equal(t, rawDir, filepath.Dir(row.RawRef))
	assert.FileExists(t, row.RawRef)
	assert.Len(t, row.Hash, 64)

	// A processed mail fetched again keeps its status.
	require.NoError(t, db.UpdateEmailStatus(row.ID, "invoiced"))
	res, err = svc.FetchAndStore(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Fetched: 2, New: 0}, res)
	row, err = db.MustEmailByProviderMessageID("fake", "a@x")
	require.NoError(t, err)
	assert.Equal(t, "invoiced", row.Status)
}

func TestFetchAndStoreConnectorError(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conn := &fakeConnector{err: errors.New("connection refused")}
	_, err = NewFetchService(db, t.TempDir(), conn, zerolog.Nop()).FetchAndStore(context.Background(), internal.MailQuery{Max: 5})
	assert.EqualError(t, err, "fetch fake: connection refused")
}
