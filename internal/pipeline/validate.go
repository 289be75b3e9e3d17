package pipeline

import (
	"fmt"
	"math/rand"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"mailinvoice/internal"
	"mailinvoice/internal/catalog"
)

const (
	CheckCustomerName     = "customer_name"
	CheckCustomerEmail    = "customer_email"
	CheckAppointmentDate  = "appointment_date"
	CheckAppointmentTime  = "appointment_time"
	CheckServiceName      = "service_name"
	CheckPractitionerInfo = "practitioner_info"
	CheckPricing          = "pricing"
	CheckRequiredFields   = "required_fields"
)

var checkOrder = []string{
	CheckCustomerName,
	CheckCustomerEmail,
	CheckAppointmentDate,
	CheckAppointmentTime,
	CheckServiceName,
	CheckPractitionerInfo,
	CheckPricing,
	CheckRequiredFields,
}

// AppointmentDateLayout is used when a date has to be substituted.
const AppointmentDateLayout = "02 January 2006"

// AppointmentDateLayouts are the accepted appointment date formats, in order.
var AppointmentDateLayouts = []string{
	"2 January 2006",
	"2 Jan 2006",
	"2/1/2006",
	"2006-01-02",
}

var (
	reTimeOfDay         = regexp.MustCompile(`(?i)^\d{1,2}:\d{2}(\s*(am|pm))?$`)
	reNameForbidden     = regexp.MustCompile(`[<>"']`)
	rePractitionerNum   = regexp.MustCompile(`^MP\d{7}$`)
	rePracticeNumFormat = regexp.MustCompile(`^PR\d{7}$`)
	reCompanyRegNum     = regexp.MustCompile(`^\d{4}/\d{6}/\d{1,2}$`)
)

var (
	maxUnitPrice = decimal.NewFromInt(10000)
	maxQuantity  = decimal.NewFromInt(100)
)

type CheckResult struct {
	Valid      bool
	Error      string
	Suggestion string
	Issues     []string
}

// Report holds one result per check, keyed by the Check* names.
type Report map[string]CheckResult

type ReportSummary struct {
	TotalChecks   int
	ValidChecks   int
	InvalidChecks int
	SuccessRate   float64
	Issues        map[string]CheckResult
}

func (r Report) Valid() bool {
	for _, res := range r {
		if !res.Valid {
			return false
		}
	}
	return true
}

func (r Report) Summary() ReportSummary {
	s := ReportSummary{TotalChecks: len(r), Issues: map[string]CheckResult{}}
	for name, res := range r {
		if res.Valid {
			s.ValidChecks++
		} else {
			s.Issues[name] = res
		}
	}
	s.InvalidChecks = s.TotalChecks - s.ValidChecks
	if s.TotalChecks > 0 {
		s.SuccessRate = float64(s.ValidChecks) / float64(s.TotalChecks) * 100
	}
	return s
}

// String renders the report for logs.
func (r Report) String() string {
	s := r.Summary()
	var b strings.Builder
	b.WriteString("Data Validation Report:\n")
	fmt.Fprintf(&b, "Success Rate: %.2f%%\n", s.SuccessRate)
	fmt.Fprintf(&b, "Valid Checks: %d/%d\n", s.ValidChecks, s.TotalChecks)
	if len(s.Issues) == 0 {
		return b.String()
	}
	b.WriteString("\nIssues Found:\n")
	for _, name := range checkOrder {
		res, ok := s.Issues[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, res.Error)
		if res.Suggestion != "" {
			fmt.Fprintf(&b, "  Suggestion: %s\n", res.Suggestion)
		}
	}
	return b.String()
}

// Validator is a second pass over parsed invoice data. It never rejects a
// record outright; ApplyFixes substitutes defaults for anything flagged.
type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

func (v *Validator) Validate(data internal.InvoiceData) Report {
	return Report{
		CheckCustomerName:     validateCustomerName(data.CustomerName),
		CheckCustomerEmail:    validateEmail(data.CustomerEmail),
		CheckAppointmentDate:  v.validateDate(data.AppointmentDate),
		CheckAppointmentTime:  validateTime(data.AppointmentTime),
		CheckServiceName:      validateServiceName(data.ServiceName),
		CheckPractitionerInfo: validatePractitionerInfo(data),
		CheckPricing:          validatePricing(data),
		CheckRequiredFields:   validateRequiredFields(data),
	}
}

// ApplyFixes returns a copy of data with defaults substituted for every
// failed check. Totals are re-derived afterwards.
func (v *Validator) ApplyFixes(data internal.InvoiceData, report Report) internal.InvoiceData {
	now := v.now()
	fixed := data

	if !report[CheckCustomerName].Valid {
		fixed.CustomerName = DefaultCustomerName
	}
	if !report[CheckCustomerEmail].Valid {
		fixed.CustomerEmail = ""
	}
	if !report[CheckAppointmentDate].Valid {
		fixed.AppointmentDate = now.Format(AppointmentDateLayout)
		fixed.InvoiceDate = now.Format(InvoiceDateLayout)
	}
	if !report[CheckServiceName].Valid {
		fixed.ServiceName = catalog.DefaultService
		fixed.ServiceDescription = catalog.DefaultService
	}
	if !report[CheckPricing].Valid {
		fixed.UnitPrice = DefaultUnitPrice
		fixed.Quantity = decimal.NewFromInt(1)
	}
	if !report[CheckRequiredFields].Valid {
		if strings.TrimSpace(fixed.CustomerName) == "" {
			fixed.CustomerName = DefaultCustomerName
		}
		if strings.TrimSpace(fixed.ServiceName) == "" {
			fixed.ServiceName = catalog.DefaultService
		}
		if !fixed.UnitPrice.IsPositive() {
			fixed.UnitPrice = DefaultUnitPrice
		}
		if strings.TrimSpace(fixed.InvoiceNumber) == "" {
			fixed.InvoiceNumber = newInvoiceNumber(now)
		}
		if strings.TrimSpace(fixed.InvoiceDate) == "" {
			fixed.InvoiceDate = now.Format(InvoiceDateLayout)
		}
		if strings.TrimSpace(fixed.DueDate) == "" {
			fixed.DueDate = fixed.InvoiceDate
		}
	}

	fixed.Recalculate()
	return fixed
}

// ParseAppointmentDate tries each accepted layout in order.
func ParseAppointmentDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range AppointmentDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func validateCustomerName(name string) CheckResult {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		return CheckResult{Error: "Customer name is required", Suggestion: `Use "Valued Patient" as default`}
	case n < 2:
		return CheckResult{Error: "Customer name too short", Suggestion: `Use "Valued Patient" as default`}
	case n > 100:
		return CheckResult{Error: "Customer name too long", Suggestion: "Truncate to first 100 characters"}
	case reNameForbidden.MatchString(name):
		return CheckResult{Error: "Customer name contains invalid characters", Suggestion: "Remove HTML/quote characters"}
	}
	return CheckResult{Valid: true}
}

func validateEmail(email string) CheckResult {
	email = strings.TrimSpace(email)
	if email == "" {
		return CheckResult{Valid: true}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return CheckResult{Error: "Invalid email format", Suggestion: "Remove invalid email"}
	}
	return CheckResult{Valid: true}
}

func (v *Validator) validateDate(value string) CheckResult {
	if strings.TrimSpace(value) == "" {
		return CheckResult{Error: "Appointment date is required", Suggestion: "Use current date as default"}
	}
	parsed, ok := ParseAppointmentDate(value)
	if !ok {
		return CheckResult{Error: "Invalid date format", Suggestion: "Use current date as default"}
	}
	now := v.now()
	startOfYesterday := time.Date(now.Year(), now.Month(), now.Day()-1, 0, 0, 0, 0, time.UTC)
	if parsed.Before(startOfYesterday) {
		return CheckResult{Error: "Date is in the past", Suggestion: "Verify date or use current date"}
	}
	return CheckResult{Valid: true}
}

func validateTime(value string) CheckResult {
	value = strings.TrimSpace(value)
	if value == "" {
		return CheckResult{Valid: true}
	}
	if !reTimeOfDay.MatchString(value) {
		return CheckResult{Error: "Invalid time format", Suggestion: `Use format like "14:30" or "2:30 PM"`}
	}
	return CheckResult{Valid: true}
}

func validateServiceName(name string) CheckResult {
	name = strings.TrimSpace(name)
	if name == "" {
		return CheckResult{Error: "Service name is required", Suggestion: `Use "General Consultation" as default`}
	}
	if utf8.RuneCountInString(name) > 200 {
		return CheckResult{Error: "Service name too long", Suggestion: "Truncate to first 200 characters"}
	}
	return CheckResult{Valid: true}
}

func validatePractitionerInfo(data internal.InvoiceData) CheckResult {
	var issues []string
	if data.PractitionerNumber != "" && !rePractitionerNum.MatchString(data.PractitionerNumber) {
		issues = append(issues, "Invalid practitioner number format (should be MP followed by 7 digits)")
	}
	if data.PracticeNumber != "" && !rePracticeNumFormat.MatchString(data.PracticeNumber) {
		issues = append(issues, "Invalid practice number format (should be PR followed by 7 digits)")
	}
	if data.CompanyRegistration != "" && !reCompanyRegNum.MatchString(data.CompanyRegistration) {
		issues = append(issues, "Invalid company registration format (should be YYYY/NNNNNN/N)")
	}
	return issuesResult(issues, "Fix format issues")
}

func validatePricing(data internal.InvoiceData) CheckResult {
	var issues []string
	switch {
	case !data.UnitPrice.IsPositive():
		issues = append(issues, "Unit price must be greater than 0")
	case data.UnitPrice.GreaterThan(maxUnitPrice):
		issues = append(issues, "Unit price seems unusually high")
	}
	switch {
	case !data.Quantity.IsPositive():
		issues = append(issues, "Quantity must be greater than 0")
	case data.Quantity.GreaterThan(maxQuantity):
		issues = append(issues, "Quantity seems unusually high")
	}
	if data.VATAmount.IsNegative() {
		issues = append(issues, "VAT amount cannot be negative")
	}
	return issuesResult(issues, "Fix pricing issues")
}

func validateRequiredFields(data internal.InvoiceData) CheckResult {
	var missing []string
	if strings.TrimSpace(data.CustomerName) == "" {
		missing = append(missing, "Customer name")
	}
	if strings.TrimSpace(data.ServiceName) == "" {
		missing = append(missing, "Service name")
	}
	if data.UnitPrice.IsZero() {
		missing = append(missing, "Unit price")
	}
	if strings.TrimSpace(data.InvoiceNumber) == "" {
		missing = append(missing, "Invoice number")
	}
	if strings.TrimSpace(data.InvoiceDate) == "" {
		missing = append(missing, "Invoice date")
	}
	if len(missing) == 0 {
		return CheckResult{Valid: true}
	}
	return CheckResult{
		Error:      "Missing required fields: " + strings.Join(missing, ", "),
		Suggestion: "Add missing required fields",
		Issues:     missing,
	}
}

func issuesResult(issues []string, suggestion string) CheckResult {
	if len(issues) == 0 {
		return CheckResult{Valid: true}
	}
	return CheckResult{Error: strings.Join(issues, "; "), Suggestion: suggestion, Issues: issues}
}

func newInvoiceNumber(now time.Time) string {
	return fmt.Sprintf("INV-%s%d", now.Format("0102"), 100+rand.Intn(900))
}
