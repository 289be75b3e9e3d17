package pipeline

import (
	"regexp"
	"sort"
	"strings"

	"mailinvoice/internal/util"
)

const (
	FieldCustomerName        = "customer_name"
	FieldCustomerEmail       = "customer_email"
	FieldAppointmentDate     = "appointment_date"
	FieldAppointmentTime     = "appointment_time"
	FieldServiceName         = "service_name"
	FieldDuration            = "duration"
	FieldLocation            = "location"
	FieldPractitionerName    = "practitioner_name"
	FieldCompanyRegistration = "company_registration"
	FieldPractitionerNumber  = "practitioner_number"
	FieldPracticeNumber      = "practice_number"
	FieldICDCode             = "icd_code"
)

type Tier string

const (
	TierPrimary     Tier = "primary"
	TierFallback    Tier = "fallback"
	TierAlternative Tier = "alternative"
	TierNone        Tier = "none"
	TierUnknown     Tier = "unknown"
)

var tierOrder = []Tier{TierPrimary, TierFallback, TierAlternative}

var tierConfidence = map[Tier]float64{
	TierPrimary:     0.9,
	TierFallback:    0.7,
	TierAlternative: 0.5,
}

// ExtractionResult is a field value with the tier that produced it.
type ExtractionResult struct {
	Value      *string
	Confidence float64
	Method     Tier
}

type ExtractionStats struct {
	TotalFields       int
	ExtractedFields   int
	SuccessRate       float64
	AverageConfidence float64
	Confidence        map[string]float64
	Methods           map[string]Tier
}

const months = `January|February|March|April|May|June|July|August|September|October|November|December`

func mustTiers(primary, fallback, alternative string) map[Tier]*regexp.Regexp {
	out := map[Tier]*regexp.Regexp{TierPrimary: regexp.MustCompile(primary)}
	if fallback != "" {
		out[TierFallback] = regexp.MustCompile(fallback)
	}
	if alternative != "" {
		out[TierAlternative] = regexp.MustCompile(alternative)
	}
	return out
}

func defaultFieldPatterns() map[string]map[Tier]*regexp.Regexp {
	return map[string]map[Tier]*regexp.Regexp{
		FieldCustomerName: mustTiers(
			`(?im)Your name:[ \t]*(.+?)(?:\s+Your email|\s+Date|\s+Time|\s+Parking|\s+Practitioner|$)`,
			`(?im)Bill To:[ \t]*(.+?)(?:\s+Invoice|\s+Date|\s+Time|$)`,
			`(?im)Patient:[ \t]*(.+?)(?:\s+Email|\s+Date|\s+Time|$)`,
		),
		FieldCustomerEmail: mustTiers(
			`(?i)Your email:[ \t]*([^\s<>]+@[^\s<>]+)`,
			`(?i)Email:[ \t]*([^\s<>]+@[^\s<>]+)`,
			`(?i)Contact:[ \t]*([^\s<>]+@[^\s<>]+)`,
		),
		FieldAppointmentDate: mustTiers(
			`(?i)Date:[ \t]*(\d{1,2}\s+(?:`+months+`)\s+\d{4})`,
			`(?i)Date:[ \t]*(\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{4})`,
			`(?i)Appointment Date:[ \t]*(\d{1,2}/\d{1,2}/\d{4})`,
		),
		FieldAppointmentTime: mustTiers(
			`(?i)Time:[ \t]*(\d{1,2}:\d{2}\s*(?:am|pm))`,
			`(?i)Time:[ \t]*(\d{1,2}:\d{2})`,
			`(?i)Appointment Time:[ \t]*(\d{1,2}:\d{2})`,
		),
		FieldServiceName: mustTiers(
			`(?im)Type:[ \t]*(.+?)(?:\s+- Date|\s+- Time|\s+- Duration|\s+- Location|$)`,
			`(?im)Service:[ \t]*(.+?)(?:\s+- Date|\s+- Time|\s+- Duration|$)`,
			`(?im)Consultation Type:[ \t]*(.+?)(?:\s+- Date|\s+- Time|$)`,
		),
		FieldDuration: mustTiers(
			`(?i)Duration:[ \t]*(\d+\s*min)`,
			`(?i)Length:[ \t]*(\d+\s*min)`,
			`(?i)Time:[ \t]*(\d+\s*min)`,
		),
		FieldLocation: mustTiers(
			`(?im)Location:[ \t]*(.+?)(?:\s+Please arrive|\s+Parking|\s+Google Maps|\s+Practitioner|$)`,
			`(?im)Address:[ \t]*(.+?)(?:\s+Please arrive|\s+Parking|$)`,
			`(?im)Venue:[ \t]*(.+?)(?:\s+Please arrive|\s+Parking|$)`,
		),
		FieldPractitionerName: mustTiers(
			`(?im)Practitioner:[ \t]*(.+?)(?:\s+- Company|\s+- Practitioner Number|$)`,
			`(?im)Doctor:[ \t]*(.+?)(?:\s+- Company|\s+- Practitioner Number|$)`,
			`(?im)Provider:[ \t]*(.+?)(?:\s+- Company|$)`,
		),
		FieldCompanyRegistration: mustTiers(
			`(?i)Company Registration No:[ \t]*([^\s<>]+)`,
			`(?i)Registration No:[ \t]*([^\s<>]+)`,
			`(?i)Company Reg:[ \t]*([^\s<>]+)`,
		),
		FieldPractitionerNumber: mustTiers(
			`(?i)Practitioner Number:[ \t]*([^\s<>]+)`,
			`(?i)MP Number:[ \t]*([^\s<>]+)`,
			`(?i)Practitioner ID:[ \t]*([^\s<>]+)`,
		),
		FieldPracticeNumber: mustTiers(
			`(?i)Practice Number:[ \t]*([^\s<>]+)`,
			`(?i)PR Number:[ \t]*([^\s<>]+)`,
			`(?i)Practice ID:[ \t]*([^\s<>]+)`,
		),
		FieldICDCode: mustTiers(
			`(?i)ICD-10:[ \t]*\(Code\s*\d+\)\s*(?P<value>[A-Z]\d{2}\.\d{1,2})`,
			`(?i)ICD10\s+\d+\s+(?P<value>[A-Z]\d{2}\.\d{1,2})`,
			`(?i)ICD10\s+(?P<value>[A-Z]\d{2}\.\d{1,2})`,
		),
	}
}

var trailingNoise = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s+Your email.*$`),
	regexp.MustCompile(`(?i)\s+Date.*$`),
	regexp.MustCompile(`(?i)\s+Time.*$`),
	regexp.MustCompile(`(?i)\s+Duration.*$`),
	regexp.MustCompile(`(?i)\s+Location.*$`),
	regexp.MustCompile(`(?i)\s+Practitioner.*$`),
	regexp.MustCompile(`(?i)\s+Company Registration.*$`),
	regexp.MustCompile(`(?i)\s+Parking.*$`),
	regexp.MustCompile(`(?i)\s+Google Maps.*$`),
	regexp.MustCompile(`(?i)\s+Cancellation Policy.*$`),
	regexp.MustCompile(`(?i)\s+Please arrive.*$`),
	regexp.MustCompile(`(?i)\s+We look forward.*$`),
	regexp.MustCompile(`(?i)\s+Warm regards.*$`),
}

var rejectedValues = []*regexp.Regexp{
	regexp.MustCompile(`^[^a-zA-Z]*$`),
	regexp.MustCompile(`^\d+$`),
	regexp.MustCompile(`^[^\w\s]*$`),
	regexp.MustCompile(`(?i)^(the|and|or|but|in|on|at|to|for|of|with|by)\s*$`),
}

// FieldExtractor pulls labelled fields out of normalised mail text, trying
// each field's primary, fallback and alternative pattern in turn.
type FieldExtractor struct {
	patterns map[string]map[Tier]*regexp.Regexp
}

func NewFieldExtractor() *FieldExtractor {
	return &FieldExtractor{patterns: defaultFieldPatterns()}
}

func (e *FieldExtractor) Extract(field, content string) *string {
	return e.ExtractWithConfidence(field, content).Value
}

func (e *FieldExtractor) ExtractWithConfidence(field, content string) ExtractionResult {
	tiers, ok := e.patterns[field]
	if !ok {
		return ExtractionResult{Method: TierUnknown}
	}
	for _, tier := range tierOrder {
		re, ok := tiers[tier]
		if !ok {
			continue
		}
		if value, ok := tryPattern(re, content); ok {
			return ExtractionResult{Value: util.StringPtr(value), Confidence: tierConfidence[tier], Method: tier}
		}
	}
	return ExtractionResult{Method: TierNone}
}

// ExtractAll extracts the given fields, or every known field when none are named.
func (e *FieldExtractor) ExtractAll(content string, fields ...string) map[string]*string {
	if len(fields) == 0 {
		fields = e.Fields()
	}
	out := make(map[string]*string, len(fields))
	for _, field := range fields {
		out[field] = e.Extract(field, content)
	}
	return out
}

func (e *FieldExtractor) Stats(content string, fields ...string) ExtractionStats {
	if len(fields) == 0 {
		fields = e.Fields()
	}
	stats := ExtractionStats{
		TotalFields: len(fields),
		Confidence:  make(map[string]float64, len(fields)),
		Methods:     make(map[string]Tier, len(fields)),
	}
	sum := 0.0
	for _, field := range fields {
		res := e.ExtractWithConfidence(field, content)
		if res.Value != nil {
			stats.ExtractedFields++
		}
		stats.Confidence[field] = res.Confidence
		stats.Methods[field] = res.Method
		sum += res.Confidence
	}
	if stats.TotalFields > 0 {
		stats.SuccessRate = float64(stats.ExtractedFields) / float64(stats.TotalFields) * 100
		stats.AverageConfidence = sum / float64(stats.TotalFields)
	}
	return stats
}

// AddPattern sets or replaces one tier of a field, registering the field if
// it is new. The first capture group (or the group named "value") is used.
func (e *FieldExtractor) AddPattern(field string, tier Tier, re *regexp.Regexp) {
	if re == nil {
		return
	}
	if _, ok := e.patterns[field]; !ok {
		e.patterns[field] = map[Tier]*regexp.Regexp{}
	}
	e.patterns[field][tier] = re
}

func (e *FieldExtractor) Patterns(field string) map[Tier]*regexp.Regexp {
	out := map[Tier]*regexp.Regexp{}
	for tier, re := range e.patterns[field] {
		out[tier] = re
	}
	return out
}

func (e *FieldExtractor) Fields() []string {
	out := make([]string, 0, len(e.patterns))
	for field := range e.patterns {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

type PatternMatch struct {
	Matched   bool
	FullMatch string
	Groups    []string
}

// TestPattern reports what re captures in content without cleaning.
func TestPattern(re *regexp.Regexp, content string) PatternMatch {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return PatternMatch{}
	}
	return PatternMatch{Matched: true, FullMatch: m[0], Groups: m[1:]}
}

func tryPattern(re *regexp.Regexp, content string) (string, bool) {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	idx := 1
	if named := re.SubexpIndex("value"); named > 0 {
		idx = named
	}
	if idx >= len(m) {
		return "", false
	}
	value := cleanExtracted(m[idx])
	if !plausibleValue(value) {
		return "", false
	}
	return value, true
}

func cleanExtracted(value string) string {
	value = strings.TrimSpace(value)
	for _, re := range trailingNoise {
		value = re.ReplaceAllString(value, "")
	}
	value = reAnyTag.ReplaceAllString(value, "")
	return util.NormalizeSpaces(value)
}

func plausibleValue(value string) bool {
	if value == "" || len(value) > 500 {
		return false
	}
	for _, re := range rejectedValues {
		if re.MatchString(value) {
			return false
		}
	}
	return true
}
