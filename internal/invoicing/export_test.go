package invoicing

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"mailinvoice/internal"
)

func TestExportLedgerToXLSX(t *testing.T) {
	bookingID := int64(1001)
	emailID := 4
	rows := []internal.InvoiceRecord{
		{ID: 1, InvoiceNumber: "INV-001001", CustomerName: "Jane Doe", ServiceName: "IV Drip",
			Total: decimal.NewFromInt(1750), Source: "booking_db", BookingID: &bookingID, PDFPath: "/tmp/a.pdf"},
		{ID: 2, InvoiceNumber: "INV-0905-1234", CustomerName: "John Smith", ServiceName: "Cryotherapy Session",
			Total: decimal.RequireFromString("650.50"), Source: "email_text", EmailID: &emailID},
	}
	out := filepath.Join(t.TempDir(), "exports", "ledger.xlsx")

	require.NoError(t, ExportLedgerToXLSX(rows, out))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	sheet := f.GetSheetName(0)

	cell := func(name string) string {
		v, err := f.GetCellValue(sheet, name)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "id", cell("A1"))
	assert.Equal(t, "pdf_path", cell("L1"))
	assert.Equal(t, "INV-001001", cell("B2"))
	assert.Equal(t, "1750", cell("G2"))
	assert.Equal(t, "1001", cell("I2"))
	assert.Empty(t, cell("J2"))
	assert.Equal(t, "650.5", cell("G3"))
	assert.Empty(t, cell("I3"))
	assert.Equal(t, "4", cell("J3"))
}
