package pipeline

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mailinvoice/internal"
	"mailinvoice/internal/catalog"
	"mailinvoice/internal/config"
	"mailinvoice/internal/util"
)

const (
	DefaultCustomerName       = "Valued Patient"
	DefaultServiceDescription = "General Consultation (Blood Results)"
	DefaultDiagnosticCode     = "Z00.0"

	// InvoiceDateLayout is the display layout for invoice and due dates.
	InvoiceDateLayout = "2 Jan 2006"
)

var DefaultUnitPrice = decimal.NewFromInt(960)

var (
	reName        = regexp.MustCompile(`(?im)Your name:[ \t]*(.+?)(?:\s+Your email|\s+Date|\s+Time|\s+Parking|\s+Practitioner|$)`)
	reEmail       = regexp.MustCompile(`(?i)Your email:\s*([^\s<>]+@[^\s<>]+)`)
	reType        = regexp.MustCompile(`(?im)Type:[ \t]*(.+?)(?:\s+- Date|\s+- Time|\s+- Duration|$)`)
	reDate        = regexp.MustCompile(`(?im)Date:[ \t]*(.+?)(?:\s+- Time|$)`)
	reTime        = regexp.MustCompile(`(?im)Time:[ \t]*(.+?)(?:\s+- Duration|$)`)
	reDuration    = regexp.MustCompile(`(?im)Duration:[ \t]*(.+?)(?:\s+- Location|$)`)
	reLocation    = regexp.MustCompile(`(?im)Location:[ \t]*(.+?)(?:\s+Please arrive|\s+Parking|\s+Google Maps|$)`)
	rePractName   = regexp.MustCompile(`(?im)Practitioner:[ \t]*(.+?)(?:\s+- Company|$)`)
	reCompanyReg  = regexp.MustCompile(`(?i)Company Registration No:\s*([^\s<>]+)`)
	rePractNum    = regexp.MustCompile(`(?i)Practitioner Number:\s*([^\s<>]+)`)
	rePracticeNum = regexp.MustCompile(`(?i)Practice Number:\s*([^\s<>]+)`)

	// ICD formats, most specific first: code and diagnostic, then diagnostic alone.
	reICDWithCode   = regexp.MustCompile(`(?i)ICD-10:\s*\(Code\s*(\d+)\)\s*([A-Z]\d{2}\.\d{1,2})`)
	reICDInline     = regexp.MustCompile(`(?i)ICD10\s+(\d+)\s+([A-Z]\d{2}\.\d{1,2})`)
	reICDDiagnostic = regexp.MustCompile(`(?i)ICD10\s+([A-Z]\d{2}\.\d{1,2})`)
	reICDNumeric    = regexp.MustCompile(`(?i)ICD10\s+(\d+)`)

	reSchemes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Medical Aid Scheme:[ \t]*(.+?)(?:\n|Medical Aid Number:|ID Number:|$)`),
		regexp.MustCompile(`(?i)Medical Scheme:[ \t]*(.+?)(?:\n|Medical Number:|ID Number:|$)`),
		regexp.MustCompile(`(?i)Scheme:[ \t]*(.+?)(?:\n|Number:|ID:|$)`),
	}
	reMemberNumbers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Medical Aid Number:[ \t]*(.+?)(?:\n|ID Number:|$)`),
		regexp.MustCompile(`(?i)Medical Number:[ \t]*(.+?)(?:\n|ID Number:|$)`),
		regexp.MustCompile(`(?i)Aid Number:[ \t]*(.+?)(?:\n|ID:|$)`),
	}
	reIDNumbers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bID Number:[ \t]*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?i)Identity Number:[ \t]*(.+?)(?:\n|$)`),
	}
	reAddresses = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Residential Address:[ \t]*(.+?)(?:\n|$)`),
	}

	reNameNoise = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s+Your email.*$`),
		regexp.MustCompile(`(?i)\s+Parking.*$`),
	}
)

// Parser turns a booking confirmation mail into InvoiceData.
type Parser struct {
	catalog  *catalog.Catalog
	practice config.Practice
	settled  bool
	now      func() time.Time
}

func NewParser(cat *catalog.Catalog, cfg config.Config) *Parser {
	return &Parser{
		catalog:  cat,
		practice: cfg.Practice,
		settled:  cfg.InvoiceSettled,
		now:      time.Now,
	}
}

// WithClock overrides the parser's time source.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

// Parse extracts every invoice field from the mail body. Missing fields get
// practice defaults, so the result is always renderable.
func (p *Parser) Parse(subject, body string) internal.InvoiceData {
	text := NormalizeBody(body)
	if strings.TrimSpace(text) == "" {
		return p.Defaults()
	}

	data := p.base()
	data.Source = internal.SourceEmailText

	if name := firstGroup(reName, text); name != "" {
		data.CustomerName = FormatCustomerName(name)
	}
	if email := firstGroup(reEmail, text); email != "" {
		if addr, err := mail.ParseAddress(email); err == nil {
			data.CustomerEmail = addr.Address
		}
	}
	data.AppointmentDate = firstGroup(reDate, text)
	data.AppointmentTime = firstGroup(reTime, text)
	data.Duration = util.FirstNonEmpty(firstGroup(reDuration, text), data.Duration)
	data.Location = util.FirstNonEmpty(firstGroup(reLocation, text), data.Location)
	data.PractitionerName = util.FirstNonEmpty(firstGroup(rePractName, text), data.PractitionerName)
	data.CompanyRegistration = util.FirstNonEmpty(firstGroup(reCompanyReg, text), data.CompanyRegistration)
	data.PractitionerNumber = util.FirstNonEmpty(firstGroup(rePractNum, text), data.PractitionerNumber)
	data.PracticeNumber = util.FirstNonEmpty(firstGroup(rePracticeNum, text), data.PracticeNumber)

	data.MedicalAidScheme = firstMatch(reSchemes, text)
	data.MedicalAidNumber = firstMatch(reMemberNumbers, text)
	data.IDNumber = firstMatch(reIDNumbers, text)
	data.ResidentialAddress = firstMatch(reAddresses, text)

	explicitCode, explicitDiagnostic := extractICD(text)

	if service := firstGroup(reType, text); service != "" {
		data.ServiceName = service
		_, mapping, method := p.catalog.Lookup(service)
		if method != catalog.MatchDefault {
			p.applyMapping(&data, mapping)
		} else {
			data.ServiceCode = util.FirstNonEmpty(explicitCode, mapping.Code)
			data.DiagnosticCode = util.FirstNonEmpty(explicitDiagnostic, mapping.DiagnosticCode)
			data.ServiceDescription = mapping.Description
			data.UnitPrice = mapping.Price
		}
	} else {
		data.ServiceCode = util.FirstNonEmpty(explicitCode, data.ServiceCode)
		data.DiagnosticCode = util.FirstNonEmpty(explicitDiagnostic, data.DiagnosticCode)
	}

	data.Recalculate()
	return data
}

// Defaults is the fully populated record used when nothing can be parsed.
func (p *Parser) Defaults() internal.InvoiceData {
	data := p.base()
	data.Source = internal.SourceDefault
	data.Recalculate()
	return data
}

func (p *Parser) base() internal.InvoiceData {
	today := p.now().Format(InvoiceDateLayout)
	return internal.InvoiceData{
		CustomerName:        DefaultCustomerName,
		ServiceName:         catalog.DefaultService,
		Duration:            p.practice.DefaultDuration,
		Location:            p.practice.DefaultLocation,
		PractitionerName:    p.practice.PractitionerName,
		PractitionerNumber:  p.practice.PractitionerNumber,
		PracticeNumber:      p.practice.PracticeNumber,
		CompanyRegistration: p.practice.CompanyRegistration,
		ServiceCode:         catalog.DefaultServiceCode,
		DiagnosticCode:      DefaultDiagnosticCode,
		ServiceDescription:  DefaultServiceDescription,
		UnitPrice:           DefaultUnitPrice,
		Quantity:            decimal.NewFromInt(1),
		VATAmount:           decimal.Zero,
		InvoiceNumber:       p.InvoiceNumber(),
		InvoiceDate:         today,
		DueDate:             today,
		Settled:             p.settled,
	}
}

func (p *Parser) applyMapping(data *internal.InvoiceData, mapping internal.ServiceMapping) {
	data.ServiceCode = mapping.Code
	data.DiagnosticCode = mapping.DiagnosticCode
	data.ServiceDescription = mapping.Description
	data.UnitPrice = mapping.Price
}

// InvoiceNumber returns "INV-" + month and day + three random digits.
func (p *Parser) InvoiceNumber() string {
	return newInvoiceNumber(p.now())
}

// FormatCustomerName strips trailing field noise and title-cases the name.
func FormatCustomerName(name string) string {
	name = strings.TrimSpace(name)
	for _, re := range reNameNoise {
		name = re.ReplaceAllString(name, "")
	}
	return util.TitleCase(name)
}

func extractICD(text string) (code, diagnostic string) {
	if m := reICDWithCode.FindStringSubmatch(text); m != nil {
		return m[1], strings.ToUpper(m[2])
	}
	if m := reICDInline.FindStringSubmatch(text); m != nil {
		return m[1], strings.ToUpper(m[2])
	}
	if m := reICDDiagnostic.FindStringSubmatch(text); m != nil {
		return "", strings.ToUpper(m[1])
	}
	if m := reICDNumeric.FindStringSubmatch(text); m != nil {
		return "", m[1]
	}
	return "", ""
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if v := firstGroup(re, text); v != "" {
			return v
		}
	}
	return ""
}
