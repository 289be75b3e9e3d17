package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailinvoice/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBookingRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.UpsertAppointment(ctx, internal.Appointment{ID: 7, Name: "IV Drip", DurationMinutes: 45, Price: decimal.RequireFromString("1750.00")}))
	require.NoError(t, db.UpsertCustomer(ctx, internal.Customer{ID: 3, DisplayName: "Jane Doe", Email: "jane@example.com"}))
	require.NoError(t, db.UpsertStaff(ctx, internal.Staff{ID: 2, FullName: "Dr Ben Coetsee"}))

	start := time.Date(2025, 9, 6, 10, 30, 0, 0, time.UTC)
	require.NoError(t, db.UpsertBooking(ctx, internal.Booking{
		ID: 1001, AppointmentID: 7, CustomerID: 3, StaffID: 2,
		CustomerEmail:  "jane@example.com",
		StartDate:      start,
		Total:          decimal.NewFromInt(1500),
		CustomFormData: map[string]string{"medical_aid_scheme": "Discovery"},
	}))

	b, err := db.GetBooking(ctx, 1001)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, int64(7), b.AppointmentID)
	assert.True(t, start.Equal(b.StartDate))
	assert.Equal(t, "1500", b.Total.String())
	assert.Equal(t, "Discovery", b.CustomFormData["medical_aid_scheme"])
	assert.False(t, b.CreatedAt.IsZero())

	a, err := db.GetAppointment(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "1750", a.Price.String())

	c, err := db.GetCustomer(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", c.DisplayName)

	s, err := db.GetStaff(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Dr Ben Coetsee", s.FullName)

	missing, err := db.GetBooking(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecentBookingsByEmail(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, db.UpsertBooking(ctx, internal.Booking{
			ID:            i,
			CustomerEmail: "Jane@Example.com",
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, db.UpsertBooking(ctx, internal.Booking{ID: 9, CustomerEmail: "other@example.com", CreatedAt: base}))

	got, err := db.RecentBookingsByEmail(ctx, "jane@example.com", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
}

func TestCacheEntries(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, db.CacheSet(ctx, "k", "v", now.Add(time.Minute)))
	v, ok, err := db.CacheGet(ctx, "k", now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok, err = db.CacheGet(ctx, "k", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	claimed, err := db.CacheSetNX(ctx, "lock", "a", now, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = db.CacheSetNX(ctx, "lock", "b", now, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, claimed)
	claimed, err = db.CacheSetNX(ctx, "lock", "c", now.Add(time.Second), now.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, claimed, "expired claims can be retaken")

	deleted, err := db.CacheDeleteIfValue(ctx, "lock", "a")
	require.NoError(t, err)
	assert.False(t, deleted)
	deleted, err = db.CacheDeleteIfValue(ctx, "lock", "c")
	require.NoError(t, err)
	assert.True(t, deleted)

	require.NoError(t, db.CacheDelete(ctx, "lock"))
	n, err := db.PurgeExpiredCache(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInvoiceLedger(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	bookingID := int64(1001)
	rec := internal.InvoiceRecord{
		InvoiceNumber: "INV-0905123",
		Signature:     "sig",
		CustomerName:  "Jane Doe",
		ServiceName:   "IV Drip",
		Total:         decimal.NewFromInt(1750),
		PDFPath:       "/tmp/a.pdf",
		Source:        string(internal.SourceBookingDB),
		BookingID:     &bookingID,
	}
	id, err := db.InsertInvoice(ctx, rec)
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = db.InsertInvoice(ctx, rec)
	assert.ErrorIs(t, err, ErrDuplicateInvoiceNumber)

	exists, err := db.InvoiceNumberExists(ctx, "INV-0905123")
	require.NoError(t, err)
	assert.True(t, exists)

	latest, err := db.LatestInvoiceBySignature(ctx, "sig")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "1750", latest.Total.String())
	require.NotNil(t, latest.BookingID)
	assert.Equal(t, bookingID, *latest.BookingID)
	assert.Nil(t, latest.EmailID)

	all, err := db.ListInvoices(ctx, nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEmailsAndMetadata(t *testing.T) {
	db := openTestDB(t)

	row, err := db.UpsertEmail("imap", "m1", "New meeting scheduled!", "bookings@example.com", "2025-09-05T09:00:00Z", "h", "/raw/h.eml", "fetched")
	require.NoError(t, err)
	assert.Equal(t, "fetched", row.Status)

	pending, err := db.ListEmailsByStatus("fetched", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, db.UpdateEmailStatus(row.ID, "processed"))
	got, err := db.GetEmailByID(row.ID)
	require.NoError(t, err)
	assert.Equal(t, "processed", got.Status)

	require.NoError(t, db.SetMetadata("catalog.last_sync", "now"))
	v, err := db.GetMetadata("catalog.last_sync")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "now", *v)
}
