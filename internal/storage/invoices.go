package storage

import (
	"context"
	"database/sql"
	"errors"

	"mailinvoice/internal"
)

var ErrDuplicateInvoiceNumber = errors.New("invoice number already recorded")

// InsertInvoice records a rendered invoice. A reused invoice number yields
// ErrDuplicateInvoiceNumber so the caller can pick another.
func (d *DB) InsertInvoice(ctx context.Context, rec internal.InvoiceRecord) (int64, error) {
	res, err := d.conn.ExecContext(ctx, `
INSERT INTO invoices (invoiceNumber, signature, customerName, customerEmail, serviceName, total, pdfPath, source, bookingId, emailId)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(invoiceNumber) DO NOTHING
`, rec.InvoiceNumber, rec.Signature, rec.CustomerName, rec.CustomerEmail, rec.ServiceName,
		rec.Total.StringFixed(2), rec.PDFPath, rec.Source, rec.BookingID, rec.EmailID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrDuplicateInvoiceNumber
	}
	return res.LastInsertId()
}

func (d *DB) InvoiceNumberExists(ctx context.Context, number string) (bool, error) {
	var one int
	err := d.conn.QueryRowContext(ctx, `SELECT 1 FROM invoices WHERE invoiceNumber = ?`, number).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const invoiceColumns = `id, invoiceNumber, signature, customerName, customerEmail, serviceName, total, pdfPath, source, bookingId, emailId, createdAt`

// LatestInvoiceBySignature returns the newest ledger row for a content signature.
func (d *DB) LatestInvoiceBySignature(ctx context.Context, signature string) (*internal.InvoiceRecord, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE signature = ? ORDER BY id DESC LIMIT 1`, signature)
	rec, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListInvoices returns ledger rows newest first. emailID limits the result to
// invoices produced from one stored mail when non-nil. A limit of zero or less
// returns every row.
func (d *DB) ListInvoices(ctx context.Context, emailID *int, limit int) ([]internal.InvoiceRecord, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	args := []any{}
	if emailID != nil {
		query += ` WHERE emailId = ?`
		args = append(args, *emailID)
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.InvoiceRecord
	for rows.Next() {
		rec, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanInvoice(r rowScanner) (*internal.InvoiceRecord, error) {
	var rec internal.InvoiceRecord
	var name, email, service sql.NullString
	var bookingID, emailID sql.NullInt64
	var total string
	if err := r.Scan(&rec.ID, &rec.InvoiceNumber, &rec.Signature, &name, &email, &service, &total,
		&rec.PDFPath, &rec.Source, &bookingID, &emailID, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.CustomerName, rec.CustomerEmail, rec.ServiceName = name.String, email.String, service.String
	rec.Total = parseDecimal(total)
	if bookingID.Valid {
		v := bookingID.Int64
		rec.BookingID = &v
	}
	if emailID.Valid {
		v := int(emailID.Int64)
		rec.EmailID = &v
	}
	return &rec, nil
}
