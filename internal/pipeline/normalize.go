package pipeline

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mailinvoice/internal/util"
)

var (
	reBreak      = regexp.MustCompile(`(?i)<br\s*/?>`)
	reParaClose  = regexp.MustCompile(`(?i)</p\s*>`)
	reBlockClose = regexp.MustCompile(`(?i)</(?:div|li|tr|h[1-6]|table)\s*>`)
	reAnyTag     = regexp.MustCompile(`<[^>]*>`)
)

// NormalizeBody turns an HTML or plain-text mail body into plain text with
// one field per line and no blank lines. Entities are decoded and no markup
// survives.
func NormalizeBody(body string) string {
	s := strings.ReplaceAll(body, "\r\n", "\n")
	s = reBreak.ReplaceAllString(s, "\n")
	s = reParaClose.ReplaceAllString(s, "\n")
	s = reBlockClose.ReplaceAllString(s, "\n")

	text := s
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
		doc.Find("script, style, head").Remove()
		text = doc.Text()
	}
	// decoded entities may have produced new tags
	text = reAnyTag.ReplaceAllString(text, "")
	text = util.SanitizeText(text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(util.CollapseInlineSpaces(line))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
