package bookings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailinvoice/internal/config"
	"mailinvoice/internal/storage"
)

const exportJSON = `{
  "appointments": [{"id": 7, "name": "IV Drip", "duration": 45, "price": "1750.00"}],
  "customers": [{"id": 3, "display_name": "Jane Doe", "email": "jane@example.com"}],
  "staff": [{"id": 2, "full_name": "Dr Ben Coetsee"}],
  "bookings": [{"id": 1001, "appointment_id": 7, "customer_id": 3, "staff_id": 2,
                "customer_email": "jane@example.com", "start_date": "2025-09-06T10:30:00Z",
                "custom_form_data": {"enter_your_id_number": "8001015009087"}}]
}`

func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(path, []byte(exportJSON), 0o644))

	db, err := storage.Open(filepath.Join(dir, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	stats, err := ImportFile(context.Background(), db, path)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Appointments: 1, Customers: 1, Staff: 1, Bookings: 1}, stats)

	b, err := db.GetBooking(context.Background(), 1001)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "8001015009087", b.CustomFormData["enter_your_id_number"])

	_, err = ImportFile(context.Background(), db, filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestNewStore(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewStore(config.Config{BookingSource: "sqlite"}, db)
	require.NoError(t, err)
	assert.Same(t, db, s)

	s, err = NewStore(config.Config{BookingSource: "none"}, db)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = NewStore(config.Config{BookingSource: "rest"}, db)
	assert.Error(t, err, "rest needs a base url")

	s, err = NewStore(config.Config{BookingSource: "rest", BookingAPIBaseURL: "https://x.test"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Client{}, s)

	_, err = NewStore(config.Config{BookingSource: "mysql"}, db)
	assert.Error(t, err)
}
