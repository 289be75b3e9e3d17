package render

import (
	"bytes"
	"html/template"
	"strings"

	"mailinvoice/internal"
	"mailinvoice/internal/config"
	"mailinvoice/internal/util"
)

// NotProvided is shown for absent medical fields.
const NotProvided = "[Not provided]"

// CancellationPolicy is printed in the footer of every page.
const CancellationPolicy = "Cancellation Policy: Kindly provide at least 24 hours' notice. " +
	"Cancellations made less than 24 hours before the appointment will be charged at the full consultation fee. " +
	"We appreciate your understanding and cooperation."

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"orNotProvided": func(v string) string {
		if strings.TrimSpace(v) == "" {
			return NotProvided
		}
		return v
	},
	"money": util.FormatMoneyGrouped,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Tax Invoice {{.Data.InvoiceNumber}}</title>
</head>
<body>
<div class="header">
<table class="header-table">
<tr>
<td class="header-left">
<h1 class="invoice-title">TAX INVOICE</h1>
<p class="customer-name"><strong>{{.Data.CustomerName}}</strong></p>
<p class="medical-info"><strong>Medical Aid Scheme:</strong> {{orNotProvided .Data.MedicalAidScheme}}</p>
<p class="medical-info"><strong>Medical Aid Number:</strong> {{orNotProvided .Data.MedicalAidNumber}}</p>
<p class="medical-info"><strong>ID Number:</strong> {{orNotProvided .Data.IDNumber}}</p>
</td>
<td class="header-center">
<p><strong>Invoice Date:</strong><br>{{.Data.InvoiceDate}}</p>
<p><strong>Invoice Number:</strong><br>{{.Data.InvoiceNumber}}</p>
<p><strong>Appointment:</strong><br>{{.Data.AppointmentDate}} {{.Data.AppointmentTime}}</p>
</td>
<td class="header-right">
<p class="company-name"><strong>{{.Practice.Name}}</strong></p>
<p class="company-info">{{.Data.PractitionerNumber}} – {{.Data.PracticeNumber}}{{range .Practice.AddressLines}}<br>{{.}}{{end}}</p>
</td>
</tr>
</table>
</div>
<table class="invoice-table">
<thead>
<tr><th>Item</th><th>Item Description</th><th>Quantity</th><th>Unit Price</th><th>Amount ZAR</th></tr>
</thead>
<tbody>
{{range .Data.Items}}<tr>
<td>{{.ServiceCode}}<br>{{.DiagnosticCode}}<br><strong>{{$.Data.ServiceName}}</strong></td>
<td>{{.Description}}</td>
<td>{{.Quantity.StringFixed 2}}</td>
<td>{{money .UnitPrice}}</td>
<td>{{money .Subtotal}}</td>
</tr>
{{end}}<tr class="totals-row"><td></td><td></td><td></td><td>Subtotal</td><td>{{money .Data.Subtotal}}</td></tr>
<tr class="totals-row"><td></td><td></td><td></td><td>TOTAL VAT</td><td>{{money .Data.VATAmount}}</td></tr>
<tr class="totals-row"><td></td><td></td><td></td><td>TOTAL ZAR</td><td>{{money .Data.TotalAmount}}</td></tr>
<tr class="totals-row"><td></td><td></td><td></td><td>Less Amount Paid</td><td>{{money .Data.AmountPaid}}</td></tr>
<tr class="amount-due-row"><td></td><td></td><td></td><td><strong>AMOUNT DUE ZAR</strong></td><td><strong>{{money .Data.AmountDue}}</strong></td></tr>
</tbody>
</table>
<div class="due-date-section">
<p class="due-date-title"><strong>Due Date: {{.Data.DueDate}}</strong></p>
<p>This is a cash practice. The patient agrees to submit any medical aid claims independently.</p>
<p>The patient indemnifies and hold harmless {{.Data.PractitionerName}} and his staff from any claims, liability, or damages arising from this consultation or treatment.</p>
<p>The patient confirms to have read, understood, and agree to the above terms.</p>
</div>
</body>
</html>
`))

// BuildInvoiceHTML renders the invoice document. Every interpolated value
// is HTML-escaped.
func BuildInvoiceHTML(data internal.InvoiceData, practice config.Practice) (string, error) {
	if len(data.Items) == 0 {
		data.Recalculate()
	}
	var buf bytes.Buffer
	err := invoiceTemplate.Execute(&buf, struct {
		Data     internal.InvoiceData
		Practice config.Practice
	}{Data: data, Practice: practice})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// DocumentSettings returns the fixed PDF metadata for an invoice.
func DocumentSettings(data internal.InvoiceData, practice config.Practice) Settings {
	author := util.FirstNonEmpty(data.PractitionerName, practice.PractitionerName)
	return Settings{
		Title:   "Tax Invoice " + data.InvoiceNumber,
		Creator: author,
		Author:  author,
		Margins: [3]float64{15, 15, 15},
		Footer:  CancellationPolicy,
	}
}
