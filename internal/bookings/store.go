package bookings

import (
	"context"
	"fmt"
	"strings"

	"mailinvoice/internal"
	"mailinvoice/internal/config"
	"mailinvoice/internal/storage"
)

// Store is the read side of the booking system. Lookups of unknown ids
// return nil with a nil error.
type Store interface {
	GetBooking(ctx context.Context, id int64) (*internal.Booking, error)
	GetAppointment(ctx context.Context, id int64) (*internal.Appointment, error)
	GetCustomer(ctx context.Context, id int64) (*internal.Customer, error)
	GetStaff(ctx context.Context, id int64) (*internal.Staff, error)
	RecentBookingsByEmail(ctx context.Context, email string, limit int) ([]internal.Booking, error)
	ListAppointments(ctx context.Context) ([]internal.Appointment, error)
}

var _ Store = (*storage.DB)(nil)
var _ Store = (*Client)(nil)

// NewStore returns the store named by BOOKING_SOURCE, or nil for "none".
func NewStore(cfg config.Config, db *storage.DB) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.BookingSource)) {
	case "", "sqlite":
		if db == nil {
			return nil, fmt.Errorf("sqlite booking source requires an open database")
		}
		return db, nil
	case "rest":
		if err := cfg.Require("BOOKING_API_BASE_URL", cfg.BookingAPIBaseURL); err != nil {
			return nil, err
		}
		return NewClient(cfg), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported booking source: %s", cfg.BookingSource)
	}
}
