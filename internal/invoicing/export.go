package invoicing

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"mailinvoice/internal"
)

var ledgerHeaders = []string{
	"id", "invoice_number", "created_at", "customer_name", "customer_email", "service_name",
	"total", "source", "booking_id", "email_id", "signature", "pdf_path",
}

// ExportLedgerToXLSX writes invoice ledger rows to a single-sheet workbook.
func ExportLedgerToXLSX(rows []internal.InvoiceRecord, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range ledgerHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.ID)
		set(2, row.InvoiceNumber)
		set(3, row.CreatedAt)
		set(4, row.CustomerName)
		set(5, row.CustomerEmail)
		set(6, row.ServiceName)
		set(7, row.Total.InexactFloat64())
		set(8, row.Source)
		set(9, derefInt64(row.BookingID))
		set(10, derefInt(row.EmailID))
		set(11, row.Signature)
		set(12, row.PDFPath)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefInt64(v *int64) any {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
