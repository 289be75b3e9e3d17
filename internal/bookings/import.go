package bookings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"mailinvoice/internal/storage"
)

// Export is the JSON document accepted by ImportFile: a dump of the booking
// system using the same field names as its API.
type Export struct {
	Appointments []appointmentDTO `json:"appointments"`
	Customers    []customerDTO    `json:"customers"`
	Staff        []staffDTO       `json:"staff"`
	Bookings     []bookingDTO     `json:"bookings"`
}

type ImportStats struct {
	Appointments int `json:"appointments"`
	Customers    int `json:"customers"`
	Staff        int `json:"staff"`
	Bookings     int `json:"bookings"`
}

// ImportFile loads a booking export into the local mirror tables.
func ImportFile(ctx context.Context, db *storage.DB, path string) (ImportStats, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return ImportStats{}, err
	}
	var doc Export
	if err := json.Unmarshal(blob, &doc); err != nil {
		return ImportStats{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Import(ctx, db, doc)
}

func Import(ctx context.Context, db *storage.DB, doc Export) (ImportStats, error) {
	var stats ImportStats
	for _, a := range doc.Appointments {
		if err := db.UpsertAppointment(ctx, a.toAppointment()); err != nil {
			return stats, fmt.Errorf("appointment %d: %w", a.ID, err)
		}
		stats.Appointments++
	}
	for _, c := range doc.Customers {
		if err := db.UpsertCustomer(ctx, c.toCustomer()); err != nil {
			return stats, fmt.Errorf("customer %d: %w", c.ID, err)
		}
		stats.Customers++
	}
	for _, s := range doc.Staff {
		if err := db.UpsertStaff(ctx, s.toStaff()); err != nil {
			return stats, fmt.Errorf("staff %d: %w", s.ID, err)
		}
		stats.Staff++
	}
	for _, b := range doc.Bookings {
		if err := db.UpsertBooking(ctx, b.toBooking()); err != nil {
			return stats, fmt.Errorf("booking %d: %w", b.ID, err)
		}
		stats.Bookings++
	}
	return stats, nil
}
