package render

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailinvoice/internal"
	"mailinvoice/internal/config"
)

func testPractice() config.Practice {
	return config.Practice{
		Name:               "Dr Ben",
		PractitionerName:   "Dr Ben Coetsee",
		PractitionerNumber: "MP0953814",
		PracticeNumber:     "PR1153307",
		AddressLines:       []string{"Office A2, 1st floor Polo Village Offices", "Val de Vie, Paarl, Western Cape"},
	}
}

func sampleInvoice() internal.InvoiceData {
	data := internal.InvoiceData{
		CustomerName:       "Jane Doe",
		CustomerEmail:      "jane@example.com",
		ServiceName:        "IV Drip",
		AppointmentDate:    "06 September 2025",
		AppointmentTime:    "10:30",
		PractitionerName:   "Dr Ben Coetsee",
		PractitionerNumber: "MP0953814",
		PracticeNumber:     "PR1153307",
		MedicalAidScheme:   "Discovery",
		ServiceCode:        "0190",
		DiagnosticCode:     "Z76.89",
		ServiceDescription: "IV Drip Treatment",
		UnitPrice:          decimal.NewFromInt(1750),
		InvoiceNumber:      "INV-001001",
		InvoiceDate:        "5 Sep 2025",
		DueDate:            "5 Sep 2025",
		Settled:            true,
	}
	data.Recalculate()
	return data
}

func TestBuildInvoiceHTML(t *testing.T) {
	doc, err := BuildInvoiceHTML(sampleInvoice(), testPractice())
	require.NoError(t, err)

	assert.Contains(t, doc, "<title>Tax Invoice INV-001001</title>")
	assert.Contains(t, doc, "Discovery")
	assert.Contains(t, doc, "<strong>Medical Aid Number:</strong> "+NotProvided)
	assert.Contains(t, doc, "<strong>ID Number:</strong> "+NotProvided)
	assert.Contains(t, doc, "0190<br>Z76.89<br><strong>IV Drip</strong>")
	assert.Contains(t, doc, "1,750.00")
	assert.Contains(t, doc, "<strong>AMOUNT DUE ZAR</strong></td><td><strong>0.00</strong>")
	assert.Contains(t, doc, "Due Date: 5 Sep 2025")
	assert.Contains(t, doc, "hold harmless Dr Ben Coetsee")
	assert.Contains(t, doc, "Val de Vie, Paarl, Western Cape")
}

func TestBuildInvoiceHTMLEscapesValues(t *testing.T) {
	data := sampleInvoice()
	data.CustomerName = `<script>alert("x")</script>`
	data.ServiceDescription = "Drip & Rest"
	data.Recalculate()

	doc, err := BuildInvoiceHTML(data, testPractice())
	require.NoError(t, err)
	assert.NotContains(t, doc, "<script>")
	assert.Contains(t, doc, "&lt;script&gt;")
	assert.Contains(t, doc, "Drip &amp; Rest")
}

func TestDocumentSettings(t *testing.T) {
	s := DocumentSettings(sampleInvoice(), testPractice())
	assert.Equal(t, "Tax Invoice INV-001001", s.Title)
	assert.Equal(t, "Dr Ben Coetsee", s.Creator)
	assert.Equal(t, "Dr Ben Coetsee", s.Author)
	assert.Equal(t, [3]float64{15, 15, 15}, s.Margins)
	assert.Equal(t, CancellationPolicy, s.Footer)
}

func TestPDFRendererWritesInvoice(t *testing.T) {
	data := sampleInvoice()
	doc, err := BuildInvoiceHTML(data, testPractice())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewPDFRenderer().Render(doc, DocumentSettings(data, testPractice()), &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))

	path := filepath.Join(t.TempDir(), "invoice.pdf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Pages)
	assert.Contains(t, info.Text, "INVOICE")
	assert.Contains(t, info.Text, "INV-001001")
}

type failingRenderer struct{}

func (failingRenderer) Render(string, Settings, io.Writer) error {
	return errors.New("boom")
}

type junkRenderer struct{}

func (junkRenderer) Render(_ string, _ Settings, w io.Writer) error {
	_, err := io.WriteString(w, "not a pdf")
	return err
}

func TestRenderFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "invoice-pdf")
	data := sampleInvoice()
	doc, err := BuildInvoiceHTML(data, testPractice())
	require.NoError(t, err)

	path := filepath.Join(dir, "confirmation.pdf")
	require.NoError(t, RenderFile(NewPDFRenderer(), doc, DocumentSettings(data, testPractice()), path))
	require.NoError(t, ValidatePDFFile(path))

	require.Error(t, RenderFile(failingRenderer{}, doc, Settings{}, filepath.Join(dir, "failed.pdf")))
	err = RenderFile(junkRenderer{}, doc, Settings{}, filepath.Join(dir, "junk.pdf"))
	require.ErrorIs(t, err, ErrInvalidPDF)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"confirmation.pdf"}, names, "temporary files are removed")
}

func TestValidatePDFFile(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.ErrorIs(t, ValidatePDFFile(empty), ErrInvalidPDF)

	text := filepath.Join(dir, "text.pdf")
	require.NoError(t, os.WriteFile(text, []byte("hello world"), 0o644))
	assert.ErrorIs(t, ValidatePDFFile(text), ErrInvalidPDF)

	short := filepath.Join(dir, "short.pdf")
	require.NoError(t, os.WriteFile(short, []byte("%P"), 0o644))
	assert.ErrorIs(t, ValidatePDFFile(short), ErrInvalidPDF)

	assert.ErrorIs(t, ValidatePDFFile(filepath.Join(dir, "missing.pdf")), ErrInvalidPDF)
	assert.ErrorIs(t, ValidatePDFFile(dir), ErrInvalidPDF)

	ok := filepath.Join(dir, "ok.pdf")
	require.NoError(t, os.WriteFile(ok, []byte("%PDF-1.4\n"+strings.Repeat("x", 10)), 0o644))
	assert.NoError(t, ValidatePDFFile(ok))
}
