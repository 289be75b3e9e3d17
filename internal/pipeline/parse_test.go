package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailinvoice/internal"
	"mailinvoice/internal/catalog"
	"mailinvoice/internal/config"
)

var fixedNow = time.Date(2025, time.September, 5, 9, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		InvoiceSettled: true,
		Practice: config.Practice{
			Name:                "Dr Ben",
			PractitionerName:    "Dr Ben Coetsee",
			PractitionerNumber:  "MP0953814",
			PracticeNumber:      "PR1153307",
			CompanyRegistration: "2024/748523/21",
			DefaultLocation:     "Val De Vie Estate, Paarl",
			DefaultDuration:     "30 min",
		},
	}
}

func testParser() *Parser {
	return NewParser(catalog.New(), testConfig()).WithClock(func() time.Time { return fixedNow })
}

const confirmationHTML = `<html><head><style>p{color:red}</style></head><body>
<p>Your appointment has been successfully scheduled</p>
<p>Your name: jane DOE<br>Your email: jane@example.com</p>
<ul>
<li>- Type: IV Drip</li>
<li>- Date: 06 September 2025</li>
<li>- Time: 10:30 am</li>
<li>- Duration: 45 min</li>
<li>- Location: Polo Village &amp; Offices</li>
</ul>
<p>Medical Aid Scheme: Discovery<br>Medical Aid Number: 123456789<br>ID Number: 8001015009087</p>
<p>ICD-10: (Code 0191) M54.5</p>
</body></html>`

func TestNormalizeBody(t *testing.T) {
	text := NormalizeBody(confirmationHTML)

	assert.NotContains(t, text, "<")
	assert.NotContains(t, text, "color:red")
	assert.Contains(t, text, "Your name: jane DOE\nYour email: jane@example.com")
	assert.Contains(t, text, "- Location: Polo Village & Offices")
	assert.NotContains(t, text, "\n\n")
}

func TestNormalizeBodyPlainText(t *testing.T) {
	text := NormalizeBody("  Type:   IV\tDrip  \r\n\r\n\r\n\r\nDate: 06 September 2025 ")
	assert.Equal(t, "Type: IV Drip\nDate: 06 September 2025", text)
}

func TestParseHTMLConfirmation(t *testing.T) {
	data := testParser().Parse("Appointment Confirmation", confirmationHTML)

	assert.Equal(t, "Jane Doe", data.CustomerName)
	assert.Equal(t, "jane@example.com", data.CustomerEmail)
	assert.Equal(t, "IV Drip", data.ServiceName)
	assert.Equal(t, "06 September 2025", data.AppointmentDate)
	assert.Equal(t, "10:30 am", data.AppointmentTime)
	assert.Equal(t, "45 min", data.Duration)
	assert.Equal(t, "Polo Village & Offices", data.Location)
	assert.Equal(t, "Discovery", data.MedicalAidScheme)
	assert.Equal(t, "123456789", data.MedicalAidNumber)
	assert.Equal(t, "8001015009087", data.IDNumber)
	assert.Equal(t, internal.SourceEmailText, data.Source)

	// a catalog hit overrides codes found in the body
	assert.Equal(t, "0190", data.ServiceCode)
	assert.Equal(t, "Z76.89", data.DiagnosticCode)
	assert.Equal(t, "IV Drip Treatment", data.ServiceDescription)
	assert.Equal(t, "1750.00", data.UnitPrice.StringFixed(2))
}

func TestParseAmountsAreSettled(t *testing.T) {
	data := testParser().Parse("Appointment Confirmation", confirmationHTML)

	assert.True(t, data.Subtotal.Equal(data.UnitPrice.Mul(data.Quantity)))
	assert.True(t, data.TotalAmount.Equal(data.Subtotal.Add(data.VATAmount)))
	assert.True(t, data.AmountDue.Equal(data.TotalAmount.Sub(data.AmountPaid)))
	assert.True(t, data.VATAmount.IsZero())
	assert.Equal(t, "1750.00", data.AmountPaid.StringFixed(2))
	assert.True(t, data.AmountDue.IsZero())

	require.Len(t, data.Items, 1)
	assert.Equal(t, "IV Drip Treatment", data.Items[0].Description)
	assert.Equal(t, "Z76.89", data.Items[0].DiagnosticCode)
}

func TestParseInvoiceMetadataUsesToday(t *testing.T) {
	data := testParser().Parse("Appointment Confirmation", confirmationHTML)

	assert.Equal(t, "5 Sep 2025", data.InvoiceDate)
	assert.Equal(t, "5 Sep 2025", data.DueDate)
	assert.True(t, strings.HasPrefix(data.InvoiceNumber, "INV-0905"))
	assert.Len(t, data.InvoiceNumber, len("INV-0905123"))
}

func TestParseUnknownServiceKeepsExplicitCodes(t *testing.T) {
	body := "Your name: Sam Lee\n- Type: Cryo Chamber\nICD-10: (Code 0191) M54.5"

	data := testParser().Parse("Appointment Confirmation", body)
	assert.Equal(t, "Cryo Chamber", data.ServiceName)
	assert.Equal(t, "0191", data.ServiceCode)
	assert.Equal(t, "M54.5", data.DiagnosticCode)
	assert.Equal(t, "960.00", data.UnitPrice.StringFixed(2))
}

func TestParseFillsDefaults(t *testing.T) {
	data := testParser().Parse("Hello", "Thanks for getting in touch. Your email: not-an-address")

	assert.Equal(t, DefaultCustomerName, data.CustomerName)
	assert.Empty(t, data.CustomerEmail)
	assert.Equal(t, catalog.DefaultService, data.ServiceName)
	assert.Equal(t, "0190", data.ServiceCode)
	assert.Equal(t, "Z00.0", data.DiagnosticCode)
	assert.Equal(t, DefaultServiceDescription, data.ServiceDescription)
	assert.Equal(t, "960.00", data.TotalAmount.StringFixed(2))
	assert.Equal(t, "Dr Ben Coetsee", data.PractitionerName)
	assert.Equal(t, "30 min", data.Duration)
}

func TestParseEmptyBodyReturnsDefaults(t *testing.T) {
	data := testParser().Parse("", "   ")
	assert.Equal(t, internal.SourceDefault, data.Source)
	assert.Equal(t, DefaultCustomerName, data.CustomerName)
	require.Len(t, data.Items, 1)
}

func TestFormatCustomerName(t *testing.T) {
	assert.Equal(t, "John Smith", FormatCustomerName("JOHN smith Your email: john@example.com"))
	assert.Equal(t, "Mary Jane", FormatCustomerName("  mary   jane Parking available"))
}
