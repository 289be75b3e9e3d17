package pipeline

import (
	"regexp"
	"strings"

	"mailinvoice/internal"
	"mailinvoice/internal/config"
)

// Known foreign-system phrasing. Checked first; any hit short-circuits.
var foreignPatterns = []string{
	"order confirmation",
	"order #",
	"woocommerce",
	"your order",
	"order details",
	"billing address",
	"shipping address",
	"payment method",
	"order total",
	"thank you for your order",
	"order received",
	"order status",
	"track your order",
	"woocommerce order",
	"order summary",
	"order invoice",
	"payment confirmation",
	"order completed",
	"order shipped",
	"order delivered",
	"your longevity clinic appointment has been booked",
	"longevity clinic appointment has been booked",
	"appointment has been booked",
}

var commercePatterns = []string{
	"invoice #",
	"receipt #",
	"transaction #",
	"payment receipt",
	"billing receipt",
	"purchase confirmation",
	"shipping confirmation",
	"delivery confirmation",
	"subscription",
	"membership",
	"renewal",
	"payment failed",
	"payment pending",
	"order id:",
	"order key:",
	"order notes:",
	"view order:",
	"item",
	"quantity",
	"price",
	"subtotal:",
	"tax:",
	"shipping:",
	"total:",
}

var inclusionPatterns = []string{
	"your appointment has been successfully scheduled",
	"consultation details:",
	"practitioner information:",
	"dr ben coetsee",
	"dr ben",
	"practitioner number:",
	"practice number:",
	"icd-10:",
	"icd10",
	"val de vie",
	"polo village offices",
	"cancellation policy:",
	"parking & directions:",
	"warm regards,",
	"dr ben coetsee & team",
	"type: iv drip",
	"type: prescription",
	"type: red light therapy",
	"type: inbody analysis",
	"type: blood results",
	"type: sports injury",
	"type: longevity",
	"type: weight loss",
	"duration:",
	"location: val de vie",
	"practitioner: dr ben coetsee",
	"practitioner number: mp0953814",
	"practice number: pr1153307",
}

var structureChecks = []*regexp.Regexp{
	regexp.MustCompile(`type:\s*.+`),
	regexp.MustCompile(`date:\s*.+`),
	regexp.MustCompile(`time:\s*.+`),
	regexp.MustCompile(`practitioner:\s*.+`),
	regexp.MustCompile(`your name:\s*.+`),
	regexp.MustCompile(`your email:\s*.+`),
}

const minStructureScore = 4

// Services that are legitimately booked here but never get an invoice.
var excludedServices = []string{
	"echocardiogram",
	"echocardiogram scan",
	"echocardiography",
	"echo scan",
	"cardiac echo",
	"ecd",
	"ecd scan",
}

// Stage names the classification step that decided the verdict.
type Stage string

const (
	StageForeign   Stage = "foreign"
	StageCommerce  Stage = "commerce"
	StageCustom    Stage = "custom_exclusion"
	StageScore     Stage = "inclusion_score"
	StageStructure Stage = "structure"
	StageSender    Stage = "sender"
	StageNone      Stage = "none"
)

type Classification struct {
	Verdict        internal.Verdict
	Stage          Stage
	Score          int
	StructureScore int
	Matched        string
}

func (c Classification) Relevant() bool {
	return c.Verdict == internal.VerdictRelevant
}

// Classifier decides whether an outgoing mail is a booking confirmation from
// this practice.
type Classifier struct {
	minScore         int
	customExclusions []string
	senderHints      []string
}

func NewClassifier(cfg config.Config) *Classifier {
	c := &Classifier{minScore: cfg.ClassifyMinScore}
	if c.minScore < 1 {
		c.minScore = 3
	}
	for _, p := range cfg.ClassifyCustomExclusions {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			c.customExclusions = append(c.customExclusions, p)
		}
	}
	for _, h := range cfg.ClassifySenderHints {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			c.senderHints = append(c.senderHints, h)
		}
	}
	return c
}

// Classify runs exclusions before any scoring. A relevant mail about an
// excluded service is reported as VerdictExcludedService.
func (c *Classifier) Classify(subject, body string, headers []string) Classification {
	res := c.detect(subject, body, headers)
	if res.Verdict == internal.VerdictRelevant && IsExcludedService(subject, body) {
		res.Verdict = internal.VerdictExcludedService
	}
	return res
}

func (c *Classifier) detect(subject, body string, headers []string) Classification {
	content := strings.ToLower(subject + " " + body + " " + strings.Join(headers, " "))

	if p, ok := firstContained(content, foreignPatterns); ok {
		return Classification{Verdict: internal.VerdictExcludedForeign, Stage: StageForeign, Matched: p}
	}
	if p, ok := firstContained(content, commercePatterns); ok {
		return Classification{Verdict: internal.VerdictExcludedForeign, Stage: StageCommerce, Matched: p}
	}
	if p, ok := firstContained(content, c.customExclusions); ok {
		return Classification{Verdict: internal.VerdictExcludedForeign, Stage: StageCustom, Matched: p}
	}

	res := Classification{Verdict: internal.VerdictNotRelevant, Stage: StageNone}
	for _, p := range inclusionPatterns {
		if strings.Contains(content, p) {
			res.Score++
		}
	}
	if res.Score >= c.minScore {
		res.Verdict, res.Stage = internal.VerdictRelevant, StageScore
		return res
	}

	for _, re := range structureChecks {
		if re.MatchString(content) {
			res.StructureScore++
		}
	}
	if res.StructureScore >= minStructureScore {
		res.Verdict, res.Stage = internal.VerdictRelevant, StageStructure
		return res
	}

	for _, h := range headers {
		lower := strings.ToLower(strings.TrimSpace(h))
		if !strings.HasPrefix(lower, "from:") {
			continue
		}
		if p, ok := firstContained(lower, c.senderHints); ok {
			res.Verdict, res.Stage, res.Matched = internal.VerdictRelevant, StageSender, p
			return res
		}
	}
	return res
}

// IsExcludedService reports whether the mail concerns a service that never
// receives an invoice.
func IsExcludedService(subject, body string) bool {
	_, ok := firstContained(strings.ToLower(subject+" "+body), excludedServices)
	return ok
}

func firstContained(content string, patterns []string) (string, bool) {
	for _, p := range patterns {
		if strings.Contains(content, p) {
			return p, true
		}
	}
	return "", false
}
