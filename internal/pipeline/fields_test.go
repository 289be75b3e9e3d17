package pipeline

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const confirmationText = `Your appointment has been successfully scheduled
Your name: jane DOE
Your email: jane@example.com
- Type: IV Drip
- Date: 06 September 2025
- Time: 10:30 am
- Duration: 45 min
- Location: Val De Vie Estate, Paarl
Practitioner: Dr Ben Coetsee
Practitioner Number: MP0953814
Practice Number: PR1153307
Company Registration No: 2024/748523/21
ICD10 0190 Z76.89`

func TestExtractPrimaryFields(t *testing.T) {
	e := NewFieldExtractor()

	cases := map[string]string{
		FieldCustomerName:       "jane DOE",
		FieldCustomerEmail:      "jane@example.com",
		FieldServiceName:        "IV Drip",
		FieldAppointmentDate:    "06 September 2025",
		FieldAppointmentTime:    "10:30 am",
		FieldDuration:           "45 min",
		FieldLocation:           "Val De Vie Estate, Paarl",
		FieldPractitionerName:   "Dr Ben Coetsee",
		FieldPractitionerNumber: "MP0953814",
		FieldPracticeNumber:     "PR1153307",
	}
	for field, want := range cases {
		t.Run(field, func(t *testing.T) {
			res := e.ExtractWithConfidence(field, confirmationText)
			require.NotNil(t, res.Value)
			assert.Equal(t, want, *res.Value)
			assert.Equal(t, TierPrimary, res.Method)
			assert.Equal(t, 0.9, res.Confidence)
		})
	}
}

func TestExtractPrefersPrimaryOverFallback(t *testing.T) {
	e := NewFieldExtractor()
	content := "Email: other@example.com\nYour email: first@example.com"

	res := e.ExtractWithConfidence(FieldCustomerEmail, content)
	require.NotNil(t, res.Value)
	assert.Equal(t, "first@example.com", *res.Value)
	assert.Equal(t, TierPrimary, res.Method)
}

func TestExtractFallsThroughTiers(t *testing.T) {
	e := NewFieldExtractor()

	res := e.ExtractWithConfidence(FieldCustomerEmail, "Contact: desk@example.com")
	require.NotNil(t, res.Value)
	assert.Equal(t, TierAlternative, res.Method)
	assert.Equal(t, 0.5, res.Confidence)

	res = e.ExtractWithConfidence(FieldAppointmentDate, "Date: 6 Sep 2025")
	require.NotNil(t, res.Value)
	assert.Equal(t, "6 Sep 2025", *res.Value)
	assert.Equal(t, TierFallback, res.Method)
}

func TestExtractICDUsesNamedGroup(t *testing.T) {
	e := NewFieldExtractor()

	got := e.Extract(FieldICDCode, "ICD-10: (Code 0190) Z76.89")
	require.NotNil(t, got)
	assert.Equal(t, "Z76.89", *got)
}

func TestExtractRejectsImplausibleValues(t *testing.T) {
	e := NewFieldExtractor()

	// registration numbers carry no letters and are treated as mis-captures
	assert.Nil(t, e.Extract(FieldCompanyRegistration, confirmationText))

	assert.Nil(t, e.Extract(FieldCustomerName, "Your name: 12345"))
	assert.Nil(t, e.Extract(FieldCustomerName, "Your name: the"))
	assert.Nil(t, e.Extract(FieldCustomerName, "nothing labelled here"))
}

func TestExtractStripsTrailingLabels(t *testing.T) {
	e := NewFieldExtractor()

	got := e.Extract(FieldCustomerName, "Your name: John Smith Your email: john@example.com")
	require.NotNil(t, got)
	assert.Equal(t, "John Smith", *got)
}

func TestExtractEmptyLabelDoesNotTakeNextLine(t *testing.T) {
	e := NewFieldExtractor()
	content := "Your name:\nYour email: a@b.com\n- Type:\n- Duration: 45 min\nLocation:\nPractitioner: Dr Ben Coetsee"

	res := e.ExtractWithConfidence(FieldCustomerName, content)
	assert.Nil(t, res.Value)
	assert.Equal(t, TierNone, res.Method)
	assert.Nil(t, e.Extract(FieldServiceName, content))
	assert.Nil(t, e.Extract(FieldLocation, content))

	email := e.Extract(FieldCustomerEmail, content)
	require.NotNil(t, email)
	assert.Equal(t, "a@b.com", *email)
}

func TestExtractUnknownAndMissing(t *testing.T) {
	e := NewFieldExtractor()

	res := e.ExtractWithConfidence("favourite_colour", confirmationText)
	assert.Nil(t, res.Value)
	assert.Equal(t, TierUnknown, res.Method)

	res = e.ExtractWithConfidence(FieldCustomerEmail, "no address anywhere")
	assert.Nil(t, res.Value)
	assert.Equal(t, TierNone, res.Method)
	assert.Zero(t, res.Confidence)
}

func TestAddPattern(t *testing.T) {
	e := NewFieldExtractor()
	e.AddPattern("member_ref", TierPrimary, regexp.MustCompile(`Member Ref:\s*(\w+)`))
	e.AddPattern(FieldCustomerName, TierPrimary, regexp.MustCompile(`Client:\s*([A-Za-z ]+)`))

	got := e.Extract("member_ref", "Member Ref: ABC123")
	require.NotNil(t, got)
	assert.Equal(t, "ABC123", *got)

	got = e.Extract(FieldCustomerName, "Client: Mary Major")
	require.NotNil(t, got)
	assert.Equal(t, "Mary Major", *got)
	assert.Contains(t, e.Fields(), "member_ref")

	patterns := e.Patterns(FieldCustomerName)
	delete(patterns, TierPrimary)
	assert.Len(t, e.Patterns(FieldCustomerName), 3)
}

func TestStats(t *testing.T) {
	e := NewFieldExtractor()

	stats := e.Stats(confirmationText, FieldCustomerName, FieldCustomerEmail, FieldAppointmentDate, "unknown")
	assert.Equal(t, 4, stats.TotalFields)
	assert.Equal(t, 3, stats.ExtractedFields)
	assert.InDelta(t, 75.0, stats.SuccessRate, 0.001)
	assert.InDelta(t, 0.675, stats.AverageConfidence, 0.001)
	assert.Equal(t, TierUnknown, stats.Methods["unknown"])
}

func TestTestPattern(t *testing.T) {
	m := TestPattern(regexp.MustCompile(`Time:\s*(\d{1,2}):(\d{2})`), "Time: 9:15")
	assert.True(t, m.Matched)
	assert.Equal(t, "Time: 9:15", m.FullMatch)
	assert.Equal(t, []string{"9", "15"}, m.Groups)

	assert.False(t, TestPattern(regexp.MustCompile(`nope`), "Time: 9:15").Matched)
}
