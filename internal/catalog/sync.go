package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mailinvoice/internal"
	"mailinvoice/internal/storage"
)

const lastSyncKey = "catalog.last_sync"

// AppointmentSource lists the services offered by the booking system.
type AppointmentSource interface {
	ListAppointments(ctx context.Context) ([]internal.Appointment, error)
}

// SyncService registers booking-system services ahead of the built-in
// table and mirrors them into the local database.
type SyncService struct {
	db      *storage.DB
	source  AppointmentSource
	catalog *Catalog
}

func NewSyncService(db *storage.DB, source AppointmentSource, catalog *Catalog) *SyncService {
	return &SyncService{db: db, source: source, catalog: catalog}
}

func (s *SyncService) Sync(ctx context.Context) (int, error) {
	appointments, err := s.source.ListAppointments(ctx)
	if err != nil {
		return 0, err
	}

	mirror := s.db != nil
	if src, ok := s.source.(*storage.DB); ok && src == s.db {
		mirror = false
	}
	for _, a := range appointments {
		if mirror {
			if err := s.db.UpsertAppointment(ctx, a); err != nil {
				return 0, err
			}
		}
		s.catalog.RegisterAppointment(a)
	}

	if s.db != nil {
		_ = s.db.SetMetadata(lastSyncKey, time.Now().UTC().Format(time.RFC3339))
	}
	return len(appointments), nil
}

// LastSync returns when Sync last completed, or the zero time.
func (s *SyncService) LastSync() time.Time {
	if s.db == nil {
		return time.Time{}
	}
	last, err := s.db.GetMetadata(lastSyncKey)
	if err != nil || last == nil {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, *last)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// RegisterAppointment adds a booking-system service. Codes and any field
// the appointment leaves blank are kept from an existing entry of the same
// name.
func (c *Catalog) RegisterAppointment(a internal.Appointment) {
	mapping, ok := c.Get(a.Name)
	if !ok {
		mapping = internal.ServiceMapping{
			Code:           DefaultServiceCode,
			DiagnosticCode: "Z00.0",
			Price:          decimal.NewFromInt(960),
			Category:       "booking",
		}
	}
	if a.Description != "" {
		mapping.Description = a.Description
	}
	if a.Price.GreaterThan(decimal.Zero) {
		mapping.Price = a.Price
	}
	c.Register(a.Name, mapping)
}
