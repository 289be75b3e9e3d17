package bookings

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mailinvoice/internal"
	"mailinvoice/internal/catalog"
	"mailinvoice/internal/config"
	"mailinvoice/internal/pipeline"
	"mailinvoice/internal/util"
)

const recentBookingScan = 10

// Custom form keys written by the booking form, primary key first.
var (
	schemeKeys  = []string{"name_of_medical_aid_scheme", "medical_aid_scheme", "medical_aid"}
	numberKeys  = []string{"medical_aid_number", "aid_number", "member_number"}
	idKeys      = []string{"enter_your_id_number", "id_number", "identity_number"}
	addressKeys = []string{"enter_your_residential_address", "residential_address", "address"}
)

// Medical holds the insurance fields taken from a booking's form data.
type Medical struct {
	Scheme  string
	Number  string
	ID      string
	Address string
}

func (m Medical) empty() bool {
	return m.Scheme == "" && m.Number == "" && m.ID == ""
}

func medicalFromForm(form map[string]string) Medical {
	return Medical{
		Scheme:  formValue(form, schemeKeys),
		Number:  formValue(form, numberKeys),
		ID:      formValue(form, idKeys),
		Address: formValue(form, addressKeys),
	}
}

func formValue(form map[string]string, keys []string) string {
	for _, k := range keys {
		v := strings.TrimSpace(form[k])
		if v != "" && !strings.EqualFold(v, "n/a") && !strings.EqualFold(v, "none") {
			return v
		}
	}
	return ""
}

// Resolver builds invoices from booking records and finds the booking a
// mail belongs to.
type Resolver struct {
	store   Store
	catalog *catalog.Catalog
	parser  *pipeline.Parser
	bridge  *Bridge
	cfg     config.Config
	log     zerolog.Logger
	now     func() time.Time
}

func NewResolver(store Store, cat *catalog.Catalog, parser *pipeline.Parser, bridge *Bridge, cfg config.Config, log zerolog.Logger) *Resolver {
	return &Resolver{
		store:   store,
		catalog: cat,
		parser:  parser,
		bridge:  bridge,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Enabled reports whether a booking store is configured.
func (r *Resolver) Enabled() bool {
	return r.store != nil
}

// Resolve assembles invoice data for a booking. It returns nil when the
// booking does not exist.
func (r *Resolver) Resolve(ctx context.Context, bookingID int64) (*internal.InvoiceData, error) {
	if r.store == nil || bookingID <= 0 {
		return nil, nil
	}
	booking, err := r.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", bookingID, err)
	}
	if booking == nil {
		return nil, nil
	}

	data := r.parser.Defaults()
	data.Source = internal.SourceBookingDB
	data.BookingID = booking.ID
	data.InvoiceNumber = fmt.Sprintf("INV-%06d", booking.ID)
	data.CustomerEmail = booking.CustomerEmail

	if booking.CustomerID > 0 {
		customer, err := r.store.GetCustomer(ctx, booking.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("get customer %d: %w", booking.CustomerID, err)
		}
		if customer != nil {
			if customer.DisplayName != "" {
				data.CustomerName = pipeline.FormatCustomerName(customer.DisplayName)
			}
			data.CustomerEmail = util.FirstNonEmpty(customer.Email, data.CustomerEmail)
		}
	}

	var appointment *internal.Appointment
	if booking.AppointmentID > 0 {
		appointment, err = r.store.GetAppointment(ctx, booking.AppointmentID)
		if err != nil {
			return nil, fmt.Errorf("get appointment %d: %w", booking.AppointmentID, err)
		}
	}
	serviceName := catalog.DefaultService
	if appointment != nil && appointment.Name != "" {
		serviceName = appointment.Name
	}
	_, mapping, method := r.catalog.Lookup(serviceName)
	data.ServiceName = serviceName
	data.ServiceCode = mapping.Code
	data.DiagnosticCode = mapping.DiagnosticCode
	data.ServiceDescription = mapping.Description
	data.UnitPrice = mapping.Price
	if appointment != nil {
		if method == catalog.MatchDefault && appointment.Name != "" {
			data.ServiceDescription = appointment.Name
		}
		data.ServiceDescription = util.FirstNonEmpty(appointment.Description, data.ServiceDescription)
		if appointment.DurationMinutes > 0 {
			data.Duration = strconv.Itoa(appointment.DurationMinutes) + " min"
		}
	}
	if booking.Total.GreaterThan(decimal.Zero) {
		data.UnitPrice = booking.Total
	}

	if !booking.StartDate.IsZero() {
		data.AppointmentDate = booking.StartDate.Format(pipeline.AppointmentDateLayout)
		data.AppointmentTime = booking.StartDate.Format("15:04")
	} else {
		data.AppointmentDate = r.now().Format(pipeline.AppointmentDateLayout)
		data.AppointmentTime = "10:00"
	}
	data.Location = util.FirstNonEmpty(booking.Location, data.Location)

	if booking.StaffID > 0 {
		staff, err := r.store.GetStaff(ctx, booking.StaffID)
		if err != nil {
			return nil, fmt.Errorf("get staff %d: %w", booking.StaffID, err)
		}
		if staff != nil {
			data.PractitionerName = util.FirstNonEmpty(staff.FullName, data.PractitionerName)
		}
	}

	medical := medicalFromForm(booking.CustomFormData)
	if medical.empty() {
		if fallback, ok := r.recentMedical(ctx, data.CustomerEmail, booking.ID); ok {
			medical = fallback
		}
	}
	applyMedical(&data, medical, true)

	today := r.now().Format(pipeline.InvoiceDateLayout)
	data.InvoiceDate, data.DueDate = today, today
	data.Recalculate()
	return &data, nil
}

// EnrichMedical fills missing medical fields from the customer's latest
// booking that has them. Existing values are kept.
func (r *Resolver) EnrichMedical(ctx context.Context, data *internal.InvoiceData) bool {
	if r.store == nil || data.CustomerEmail == "" {
		return false
	}
	if data.MedicalAidScheme != "" && data.MedicalAidNumber != "" && data.IDNumber != "" {
		return false
	}
	medical, ok := r.recentMedical(ctx, data.CustomerEmail, data.BookingID)
	if !ok {
		return false
	}
	applyMedical(data, medical, false)
	return true
}

// recentMedical scans the newest bookings for email, skipping exclude and
// anything older than the configured max age.
func (r *Resolver) recentMedical(ctx context.Context, email string, exclude int64) (Medical, bool) {
	if strings.TrimSpace(email) == "" {
		return Medical{}, false
	}
	recent, err := r.store.RecentBookingsByEmail(ctx, email, recentBookingScan)
	if err != nil {
		r.log.Warn().Err(err).Str("email", email).Msg("recent bookings lookup failed")
		return Medical{}, false
	}
	var cutoff time.Time
	if days := r.cfg.MedicalFallbackMaxAgeDays; days > 0 {
		cutoff = r.now().AddDate(0, 0, -days)
	}
	for _, b := range recent {
		if b.ID == exclude {
			continue
		}
		if !cutoff.IsZero() && !b.CreatedAt.IsZero() && b.CreatedAt.Before(cutoff) {
			continue
		}
		if m := medicalFromForm(b.CustomFormData); !m.empty() {
			r.log.Debug().Int64("booking_id", b.ID).Msg("medical details taken from earlier booking")
			return m, true
		}
	}
	return Medical{}, false
}

func applyMedical(data *internal.InvoiceData, m Medical, overwrite bool) {
	set := func(dst *string, v string) {
		if v != "" && (overwrite || *dst == "") {
			*dst = v
		}
	}
	set(&data.MedicalAidScheme, m.Scheme)
	set(&data.MedicalAidNumber, m.Number)
	set(&data.IDNumber, m.ID)
	set(&data.ResidentialAddress, m.Address)
}

// Discovery strategy names, in the order they are tried.
const (
	StrategyBridge        = "bridge"
	StrategyLabelled      = "labelled"
	StrategyCustomerEmail = "customer_email"
	StrategyBareNumber    = "bare_number"
)

var (
	reLabelledIDs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)booking\s*(?:id|#|no\.?|number)?[^0-9\n]{0,20}([0-9]+)`),
		regexp.MustCompile(`(?i)appointment\s*(?:id|#|no\.?|number)?[^0-9\n]{0,20}([0-9]+)`),
		regexp.MustCompile(`(?i)confirmation\s*(?:id|#|no\.?|number)?[^0-9\n]{0,20}([0-9]+)`),
		regexp.MustCompile(`(?i)\bINV-([0-9]+)`),
		regexp.MustCompile(`(?i)invoice\s*(?:#|no\.?|number)?[^0-9\n]{0,20}([0-9]+)`),
		regexp.MustCompile(`(?i)\bref(?:erence)?\b[^0-9\n]{0,20}([0-9]+)`),
		regexp.MustCompile(`#([0-9]+)`),
	}
	reCustomerEmail = regexp.MustCompile(`(?im)^(?:your\s+)?e-?mail(?:\s+address)?:[ \t]*<?([A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,})`)
	reBareNumber    = regexp.MustCompile(`\b([0-9]{4,6})\b`)
)

type strategy struct {
	name string
	find func(ctx context.Context, subject, message, text string) []int64
}

func (r *Resolver) strategies() []strategy {
	return []strategy{
		{name: StrategyBridge, find: r.fromBridge},
		{name: StrategyLabelled, find: func(_ context.Context, subject, _, text string) []int64 {
			return scanIDs(reLabelledIDs, subject+"\n"+text)
		}},
		{name: StrategyCustomerEmail, find: r.fromCustomerEmail},
		{name: StrategyBareNumber, find: func(_ context.Context, subject, _, text string) []int64 {
			return scanIDs([]*regexp.Regexp{reBareNumber}, subject+"\n"+text)
		}},
	}
}

// DiscoverBookingID runs the discovery strategies in order and returns the
// first candidate that names an existing booking, with the strategy that
// found it. It returns 0 when nothing matches.
func (r *Resolver) DiscoverBookingID(ctx context.Context, subject, message string) (int64, string) {
	if r.store == nil {
		return 0, ""
	}
	text := pipeline.NormalizeBody(message)
	for _, s := range r.strategies() {
		for _, id := range s.find(ctx, subject, message, text) {
			if r.validBooking(ctx, id) {
				if s.name == StrategyBareNumber {
					r.log.Warn().Int64("booking_id", id).Msg("booking id taken from a bare number")
				}
				return id, s.name
			}
		}
	}
	return 0, ""
}

func (r *Resolver) fromBridge(ctx context.Context, subject, message, _ string) []int64 {
	if r.bridge == nil {
		return nil
	}
	binding, ok, err := r.bridge.Lookup(ctx, subject, message)
	if err != nil {
		r.log.Warn().Err(err).Msg("booking bridge lookup failed")
		return nil
	}
	if !ok {
		return nil
	}
	return []int64{binding.BookingID}
}

func (r *Resolver) fromCustomerEmail(ctx context.Context, _, _, text string) []int64 {
	m := reCustomerEmail.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	recent, err := r.store.RecentBookingsByEmail(ctx, m[1], 1)
	if err != nil {
		r.log.Warn().Err(err).Msg("booking lookup by email failed")
		return nil
	}
	if len(recent) == 0 {
		return nil
	}
	return []int64{recent[0].ID}
}

// validBooking accepts ids of bookings that carry form data or an
// appointment reference.
func (r *Resolver) validBooking(ctx context.Context, id int64) bool {
	if id <= 0 {
		return false
	}
	b, err := r.store.GetBooking(ctx, id)
	if err != nil {
		r.log.Warn().Err(err).Int64("booking_id", id).Msg("booking validation failed")
		return false
	}
	return b != nil && (len(b.CustomFormData) > 0 || b.AppointmentID > 0)
}

func scanIDs(patterns []*regexp.Regexp, content string) []int64 {
	var out []int64
	seen := map[int64]struct{}{}
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil || id <= 0 {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
