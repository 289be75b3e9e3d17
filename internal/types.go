package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

type DataSource string

const (
	SourceEmailText DataSource = "email_text"
	SourceBookingDB DataSource = "booking_db"
	SourceDefault   DataSource = "default"
)

type Verdict string

const (
	VerdictRelevant        Verdict = "RELEVANT"
	VerdictExcludedForeign Verdict = "EXCLUDED_FOREIGN"
	VerdictExcludedService Verdict = "EXCLUDED_SERVICE"
	VerdictNotRelevant     Verdict = "NOT_RELEVANT"
)

// ServiceMapping is one row of the service catalog.
type ServiceMapping struct {
	Code           string          `json:"code"`
	DiagnosticCode string          `json:"diagnosticCode"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	Category       string          `json:"category"`
}

type LineItem struct {
	ServiceCode    string          `json:"serviceCode"`
	DiagnosticCode string          `json:"diagnosticCode"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

// InvoiceData is the canonical record rendered into an invoice PDF.
type InvoiceData struct {
	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`

	ServiceName     string `json:"serviceName"`
	AppointmentDate string `json:"appointmentDate"`
	AppointmentTime string `json:"appointmentTime"`
	Duration        string `json:"duration"`
	Location        string `json:"location"`

	PractitionerName    string `json:"practitionerName"`
	PractitionerNumber  string `json:"practitionerNumber"`
	PracticeNumber      string `json:"practiceNumber"`
	CompanyRegistration string `json:"companyRegistration"`

	MedicalAidScheme   string `json:"medicalAidScheme"`
	MedicalAidNumber   string `json:"medicalAidNumber"`
	IDNumber           string `json:"idNumber"`
	ResidentialAddress string `json:"residentialAddress"`

	ServiceCode        string          `json:"serviceCode"`
	DiagnosticCode     string          `json:"diagnosticCode"`
	ServiceDescription string          `json:"serviceDescription"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	Quantity           decimal.Decimal `json:"quantity"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	VATAmount          decimal.Decimal `json:"vatAmount"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	AmountPaid         decimal.Decimal `json:"amountPaid"`
	AmountDue          decimal.Decimal `json:"amountDue"`

	InvoiceNumber string `json:"invoiceNumber"`
	InvoiceDate   string `json:"invoiceDate"`
	DueDate       string `json:"dueDate"`

	Items     []LineItem `json:"items"`
	BookingID int64      `json:"bookingId,omitempty"`
	Source    DataSource `json:"source"`
	// Settled invoices are paid in full at booking time.
	Settled bool `json:"settled"`
}

// Recalculate rebuilds the single line item from the billing fields and
// re-derives subtotal, total, paid and due.
func (d *InvoiceData) Recalculate() {
	if d.Quantity.IsZero() {
		d.Quantity = decimal.NewFromInt(1)
	}
	d.Subtotal = d.UnitPrice.Mul(d.Quantity)
	d.TotalAmount = d.Subtotal.Add(d.VATAmount)
	if d.Settled {
		d.AmountPaid = d.TotalAmount
	}
	d.AmountDue = d.TotalAmount.Sub(d.AmountPaid)
	d.Items = []LineItem{{
		ServiceCode:    d.ServiceCode,
		DiagnosticCode: d.DiagnosticCode,
		Description:    d.ServiceDescription,
		Quantity:       d.Quantity,
		UnitPrice:      d.UnitPrice,
		Subtotal:       d.Subtotal,
	}}
}

// EmailArgs mirrors the outgoing mail envelope handed to the send hook.
type EmailArgs struct {
	To          []string `json:"to"`
	Subject     string   `json:"subject"`
	Message     string   `json:"message"`
	Headers     []string `json:"headers"`
	Attachments []string `json:"attachments"`
}

// EmailData is the payload of a booking-confirmed event.
type EmailData struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type Booking struct {
	ID             int64
	AppointmentID  int64
	CustomerID     int64
	StaffID        int64
	CustomerEmail  string
	StartDate      time.Time
	Location       string
	Total          decimal.Decimal
	CustomFormData map[string]string
	CreatedAt      time.Time
}

type Appointment struct {
	ID              int64
	Name            string
	Description     string
	DurationMinutes int
	Price           decimal.Decimal
}

type Customer struct {
	ID          int64
	DisplayName string
	Email       string
	Phone       string
}

type Staff struct {
	ID       int64
	FullName string
	Email    string
	Phone    string
}

// BookingBinding bridges a booking-confirmed event to the outgoing mail
// that follows it.
type BookingBinding struct {
	BookingID   int64  `json:"bookingId"`
	Timestamp   int64  `json:"timestamp"`
	Subject     string `json:"subject"`
	MessageHash string `json:"messageHash"`
	Signature   string `json:"signature"`
}

type InvoiceRecord struct {
	ID            int
	InvoiceNumber string
	Signature     string
	CustomerName  string
	CustomerEmail string
	ServiceName   string
	Total         decimal.Decimal
	PDFPath       string
	Source        string
	BookingID     *int64
	EmailID       *int
	CreatedAt     string
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

// MailQuery selects the mails a connector fetches.
type MailQuery struct {
	Label string
	Max   int
	// Since drops older mail when set.
	Since time.Time
	// Subject narrows the search to mails whose subject contains it.
	Subject string
}
