package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailinvoice/internal"
)

func testValidator() *Validator {
	return NewValidator().WithClock(func() time.Time { return fixedNow })
}

func validInvoice() internal.InvoiceData {
	d := internal.InvoiceData{
		CustomerName:        "Jane Doe",
		CustomerEmail:       "jane@example.com",
		ServiceName:         "IV Drip",
		AppointmentDate:     "06 September 2025",
		AppointmentTime:     "10:30 am",
		PractitionerNumber:  "MP0953814",
		PracticeNumber:      "PR1153307",
		CompanyRegistration: "2024/748523/21",
		UnitPrice:           decimal.NewFromInt(1750),
		Quantity:            decimal.NewFromInt(1),
		InvoiceNumber:       "INV-0905123",
		InvoiceDate:         "5 Sep 2025",
		DueDate:             "5 Sep 2025",
		Settled:             true,
	}
	d.Recalculate()
	return d
}

func TestParseAppointmentDate(t *testing.T) {
	cases := []struct {
		input string
		ok    bool
	}{
		{"06 September 2025", true},
		{"6 Sep 2025", true},
		{"06/09/2025", true},
		{"2025-09-06", true},
		{"06 Sept 2025", false},
		{"next Tuesday", false},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, ok := ParseAppointmentDate(tc.input)
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, time.September, got.Month())
				assert.Equal(t, 6, got.Day())
			}
		})
	}
}

func TestValidateCleanRecord(t *testing.T) {
	report := testValidator().Validate(validInvoice())

	assert.True(t, report.Valid(), report.String())
	summary := report.Summary()
	assert.Equal(t, 8, summary.TotalChecks)
	assert.Equal(t, 100.0, summary.SuccessRate)
}

func TestValidateFlagsProblems(t *testing.T) {
	d := validInvoice()
	d.CustomerName = `<b>J</b>`
	d.CustomerEmail = "not an email"
	d.AppointmentTime = "half past ten"
	d.PractitionerNumber = "MP12"
	d.UnitPrice = decimal.NewFromInt(12000)

	report := testValidator().Validate(d)
	assert.False(t, report[CheckCustomerName].Valid)
	assert.False(t, report[CheckCustomerEmail].Valid)
	assert.False(t, report[CheckAppointmentTime].Valid)
	assert.False(t, report[CheckPractitionerInfo].Valid)
	assert.Contains(t, report[CheckPractitionerInfo].Issues[0], "MP followed by 7 digits")
	assert.False(t, report[CheckPricing].Valid)
	assert.Equal(t, []string{"Unit price seems unusually high"}, report[CheckPricing].Issues)
	assert.True(t, report[CheckAppointmentDate].Valid)

	text := report.String()
	assert.True(t, strings.HasPrefix(text, "Data Validation Report:\n"))
	assert.Contains(t, text, "- customer_email: Invalid email format")
	assert.Contains(t, text, "Valid Checks: 3/8")
}

func TestValidatePracticeNumberFormat(t *testing.T) {
	d := validInvoice()
	d.PracticeNumber = "PR115"

	res := testValidator().Validate(d)[CheckPractitionerInfo]
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"Invalid practice number format (should be PR followed by 7 digits)"}, res.Issues)

	// the parser keeps whatever the mail carries; only the format check rejects it
	parsed := testParser().Parse("New meeting scheduled!", "Your name: Jane Doe\nPractice Number: PR115")
	assert.Equal(t, "PR115", parsed.PracticeNumber)
}

func TestValidateStaleAndUnparseableDates(t *testing.T) {
	v := testValidator()

	d := validInvoice()
	d.AppointmentDate = "04 September 2025"
	assert.True(t, v.Validate(d)[CheckAppointmentDate].Valid)

	d.AppointmentDate = "03 September 2025"
	res := v.Validate(d)[CheckAppointmentDate]
	assert.False(t, res.Valid)
	assert.Equal(t, "Date is in the past", res.Error)

	d.AppointmentDate = "06 Sept 2025"
	res = v.Validate(d)[CheckAppointmentDate]
	assert.False(t, res.Valid)
	assert.Equal(t, "Invalid date format", res.Error)
}

func TestApplyFixesSubstitutesDefaults(t *testing.T) {
	v := testValidator()

	d := validInvoice()
	d.CustomerName = "X"
	d.CustomerEmail = "broken@"
	d.AppointmentDate = "06 Sept 2025"
	d.ServiceName = ""
	d.UnitPrice = decimal.NewFromInt(-5)
	d.InvoiceNumber = ""
	d.InvoiceDate = ""

	fixed := v.ApplyFixes(d, v.Validate(d))

	assert.Equal(t, DefaultCustomerName, fixed.CustomerName)
	assert.Empty(t, fixed.CustomerEmail)
	assert.Equal(t, "05 September 2025", fixed.AppointmentDate)
	assert.Equal(t, "5 Sep 2025", fixed.InvoiceDate)
	assert.Equal(t, "General Consultation", fixed.ServiceName)
	assert.Equal(t, "960.00", fixed.UnitPrice.StringFixed(2))
	assert.True(t, strings.HasPrefix(fixed.InvoiceNumber, "INV-0905"))

	assert.True(t, fixed.Subtotal.Equal(fixed.UnitPrice.Mul(fixed.Quantity)))
	assert.True(t, fixed.TotalAmount.Equal(fixed.Subtotal.Add(fixed.VATAmount)))
	assert.True(t, fixed.AmountDue.Equal(fixed.TotalAmount.Sub(fixed.AmountPaid)))

	report := v.Validate(fixed)
	assert.True(t, report.Valid(), report.String())
}

func TestApplyFixesLeavesValidRecordAlone(t *testing.T) {
	v := testValidator()
	d := validInvoice()

	fixed := v.ApplyFixes(d, v.Validate(d))
	require.Equal(t, d.InvoiceNumber, fixed.InvoiceNumber)
	assert.Equal(t, d.CustomerName, fixed.CustomerName)
	assert.Equal(t, d.AppointmentDate, fixed.AppointmentDate)
	assert.True(t, d.TotalAmount.Equal(fixed.TotalAmount))
}
