package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"mailinvoice/internal"
)

const timeLayout = time.RFC3339

func (d *DB) UpsertAppointment(ctx context.Context, a internal.Appointment) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO appointments (id, name, description, durationMinutes, price)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name,
  description=excluded.description,
  durationMinutes=excluded.durationMinutes,
  price=excluded.price,
  updatedAt=CURRENT_TIMESTAMP
`, a.ID, a.Name, a.Description, a.DurationMinutes, a.Price.String())
	return err
}

func (d *DB) GetAppointment(ctx context.Context, id int64) (*internal.Appointment, error) {
	var a internal.Appointment
	var description sql.NullString
	var price string
	err := d.conn.QueryRowContext(ctx, `
SELECT id, name, description, durationMinutes, price FROM appointments WHERE id = ?
`, id).Scan(&a.ID, &a.Name, &description, &a.DurationMinutes, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Description = description.String
	a.Price = parseDecimal(price)
	return &a, nil
}

func (d *DB) ListAppointments(ctx context.Context) ([]internal.Appointment, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, name, description, durationMinutes, price FROM appointments ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Appointment
	for rows.Next() {
		var a internal.Appointment
		var description sql.NullString
		var price string
		if err := rows.Scan(&a.ID, &a.Name, &description, &a.DurationMinutes, &price); err != nil {
			return nil, err
		}
		a.Description = description.String
		a.Price = parseDecimal(price)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (d *DB) UpsertCustomer(ctx context.Context, c internal.Customer) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO customers (id, displayName, email, phone) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  displayName=excluded.displayName,
  email=excluded.email,
  phone=excluded.phone
`, c.ID, c.DisplayName, c.Email, c.Phone)
	return err
}

func (d *DB) GetCustomer(ctx context.Context, id int64) (*internal.Customer, error) {
	var c internal.Customer
	var email, phone sql.NullString
	err := d.conn.QueryRowContext(ctx, `
SELECT id, displayName, email, phone FROM customers WHERE id = ?
`, id).Scan(&c.ID, &c.DisplayName, &email, &phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Email, c.Phone = email.String, phone.String
	return &c, nil
}

func (d *DB) UpsertStaff(ctx context.Context, s internal.Staff) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO staff (id, fullName, email, phone) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  fullName=excluded.fullName,
  email=excluded.email,
  phone=excluded.phone
`, s.ID, s.FullName, s.Email, s.Phone)
	return err
}

func (d *DB) GetStaff(ctx context.Context, id int64) (*internal.Staff, error) {
	var s internal.Staff
	var email, phone sql.NullString
	err := d.conn.QueryRowContext(ctx, `
SELECT id, fullName, email, phone FROM staff WHERE id = ?
`, id).Scan(&s.ID, &s.FullName, &email, &phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Email, s.Phone = email.String, phone.String
	return &s, nil
}

func (d *DB) UpsertBooking(ctx context.Context, b internal.Booking) error {
	formJSON, err := json.Marshal(b.CustomFormData)
	if err != nil {
		return err
	}
	if b.CustomFormData == nil {
		formJSON = []byte("{}")
	}
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = d.conn.ExecContext(ctx, `
INSERT INTO bookings (id, appointmentId, customerId, staffId, customerEmail, startDate, location, total, customFormData, createdAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  appointmentId=excluded.appointmentId,
  customerId=excluded.customerId,
  staffId=excluded.staffId,
  customerEmail=excluded.customerEmail,
  startDate=excluded.startDate,
  location=excluded.location,
  total=excluded.total,
  customFormData=excluded.customFormData
`, b.ID, b.AppointmentID, b.CustomerID, b.StaffID, b.CustomerEmail, formatTime(b.StartDate), b.Location,
		b.Total.String(), string(formJSON), formatTime(createdAt))
	return err
}

const bookingColumns = `id, appointmentId, customerId, staffId, customerEmail, startDate, location, total, customFormData, createdAt`

func (d *DB) GetBooking(ctx context.Context, id int64) (*internal.Booking, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// RecentBookingsByEmail returns the newest bookings for an email address,
// most recent first.
func (d *DB) RecentBookingsByEmail(ctx context.Context, email string, limit int) ([]internal.Booking, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT `+bookingColumns+` FROM bookings
WHERE lower(customerEmail) = lower(?)
ORDER BY createdAt DESC, id DESC LIMIT ?
`, email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBooking(r rowScanner) (*internal.Booking, error) {
	var b internal.Booking
	var appointmentID, customerID, staffID sql.NullInt64
	var email, startDate, location sql.NullString
	var total, formJSON, createdAt string
	if err := r.Scan(&b.ID, &appointmentID, &customerID, &staffID, &email, &startDate, &location, &total, &formJSON, &createdAt); err != nil {
		return nil, err
	}
	b.AppointmentID = appointmentID.Int64
	b.CustomerID = customerID.Int64
	b.StaffID = staffID.Int64
	b.CustomerEmail = email.String
	b.StartDate = parseTime(startDate.String)
	b.Location = location.String
	b.Total = parseDecimal(total)
	b.CreatedAt = parseTime(createdAt)
	if formJSON != "" {
		_ = json.Unmarshal([]byte(formJSON), &b.CustomFormData)
	}
	return &b, nil
}

func parseDecimal(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timeLayout, v); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
		return t
	}
	return time.Time{}
}
