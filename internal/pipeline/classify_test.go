package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mailinvoice/internal"
	"mailinvoice/internal/config"
)

const scheduledBody = `Your appointment has been successfully scheduled
Practitioner: Dr Ben Coetsee
Practitioner Number: MP0953814
Practice Number: PR1153307`

func TestClassifyRelevantByScore(t *testing.T) {
	c := NewClassifier(config.Config{ClassifyMinScore: 3})

	res := c.Classify("Appointment Confirmation", scheduledBody, nil)
	assert.Equal(t, internal.VerdictRelevant, res.Verdict)
	assert.Equal(t, StageScore, res.Stage)
	assert.Equal(t, 8, res.Score)
	assert.True(t, res.Relevant())
}

func TestClassifyForeignShortCircuits(t *testing.T) {
	c := NewClassifier(config.Config{ClassifyMinScore: 3})

	body := scheduledBody + "\nOrder Confirmation\nOrder Total: $150.00"
	res := c.Classify("Appointment Confirmation", body, nil)
	assert.Equal(t, internal.VerdictExcludedForeign, res.Verdict)
	assert.Equal(t, StageForeign, res.Stage)
	assert.Equal(t, "order confirmation", res.Matched)
	assert.Zero(t, res.Score)
}

func TestClassifyCommerceVocabulary(t *testing.T) {
	c := NewClassifier(config.Config{ClassifyMinScore: 3})

	res := c.Classify("Appointment Confirmation", scheduledBody+"\nSubscription active", nil)
	assert.Equal(t, internal.VerdictExcludedForeign, res.Verdict)
	assert.Equal(t, StageCommerce, res.Stage)
}

func TestClassifyCustomExclusion(t *testing.T) {
	c := NewClassifier(config.Config{
		ClassifyMinScore:         3,
		ClassifyCustomExclusions: []string{"  Spring Promo  ", ""},
	})

	res := c.Classify("Spring promo: your slot", scheduledBody, nil)
	assert.Equal(t, internal.VerdictExcludedForeign, res.Verdict)
	assert.Equal(t, StageCustom, res.Stage)
	assert.Equal(t, "spring promo", res.Matched)
}

func TestClassifyExcludedService(t *testing.T) {
	c := NewClassifier(config.Config{ClassifyMinScore: 3})

	res := c.Classify("Appointment Confirmation", scheduledBody+"\n- Type: Echocardiogram scan", nil)
	assert.Equal(t, internal.VerdictExcludedService, res.Verdict)
	assert.False(t, res.Relevant())
}

func TestClassifyByStructure(t *testing.T) {
	c := NewClassifier(config.Config{ClassifyMinScore: 3})

	body := "Your name: Sam Lee\nYour email: sam@example.com\nType: Checkup\nDate: 1 October 2025\nTime: 10:00"
	res := c.Classify("Booking", body, nil)
	assert.Equal(t, internal.VerdictRelevant, res.Verdict)
	assert.Equal(t, StageStructure, res.Stage)
	assert.Equal(t, 5, res.StructureScore)
}

func TestClassifyBySender(t *testing.T) {
	c := NewClassifier(config.Config{ClassifyMinScore: 3, ClassifySenderHints: []string{"Dr Ben"}})

	res := c.Classify("Hello", "See you soon", []string{"Reply-To: desk@example.com", "From: Dr Ben <noreply@example.com>"})
	assert.Equal(t, internal.VerdictRelevant, res.Verdict)
	assert.Equal(t, StageSender, res.Stage)
	assert.Equal(t, "dr ben", res.Matched)
}

func TestClassifyNotRelevant(t *testing.T) {
	c := NewClassifier(config.Config{ClassifyMinScore: 9})

	res := c.Classify("Appointment Confirmation", scheduledBody, nil)
	assert.Equal(t, internal.VerdictNotRelevant, res.Verdict)
	assert.Equal(t, 8, res.Score)
	assert.Equal(t, 1, res.StructureScore)

	res = c.Classify("Lunch on Friday?", "Are you free?", nil)
	assert.Equal(t, internal.VerdictNotRelevant, res.Verdict)
	assert.Equal(t, StageNone, res.Stage)
}

func TestIsExcludedService(t *testing.T) {
	assert.True(t, IsExcludedService("Your Echo Scan booking", ""))
	assert.True(t, IsExcludedService("", "Type: Cardiac Echo"))
	assert.False(t, IsExcludedService("IV Drip", "Type: IV Drip"))
}
