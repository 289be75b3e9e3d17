package bookings

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mailinvoice/internal"
)

type bookingDTO struct {
	ID             int64           `json:"id"`
	AppointmentID  int64           `json:"appointment_id"`
	CustomerID     int64           `json:"customer_id"`
	StaffID        int64           `json:"staff_id"`
	CustomerEmail  string          `json:"customer_email"`
	StartDate      string          `json:"start_date"`
	Location       string          `json:"location"`
	Total          decimal.Decimal `json:"total"`
	CustomFormData map[string]any  `json:"custom_form_data"`
	CreatedAt      string          `json:"created_at"`
}

type appointmentDTO struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Duration    int             `json:"duration"`
	Price       decimal.Decimal `json:"price"`
}

type customerDTO struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

type staffDTO struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

func (d bookingDTO) toBooking() internal.Booking {
	b := internal.Booking{
		ID:            d.ID,
		AppointmentID: d.AppointmentID,
		CustomerID:    d.CustomerID,
		StaffID:       d.StaffID,
		CustomerEmail: strings.TrimSpace(d.CustomerEmail),
		StartDate:     parseAPITime(d.StartDate),
		Location:      strings.TrimSpace(d.Location),
		Total:         d.Total,
		CreatedAt:     parseAPITime(d.CreatedAt),
	}
	if len(d.CustomFormData) > 0 {
		b.CustomFormData = make(map[string]string, len(d.CustomFormData))
		for k, v := range d.CustomFormData {
			if v == nil {
				continue
			}
			b.CustomFormData[k] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return b
}

func (d appointmentDTO) toAppointment() internal.Appointment {
	return internal.Appointment{
		ID:              d.ID,
		Name:            strings.TrimSpace(d.Name),
		Description:     strings.TrimSpace(d.Description),
		DurationMinutes: d.Duration,
		Price:           d.Price,
	}
}

func (d customerDTO) toCustomer() internal.Customer {
	return internal.Customer{ID: d.ID, DisplayName: strings.TrimSpace(d.DisplayName), Email: strings.TrimSpace(d.Email), Phone: d.Phone}
}

func (d staffDTO) toStaff() internal.Staff {
	return internal.Staff{ID: d.ID, FullName: strings.TrimSpace(d.FullName), Email: strings.TrimSpace(d.Email), Phone: d.Phone}
}

var apiTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

func parseAPITime(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range apiTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
