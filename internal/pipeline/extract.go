package pipeline

import (
	"bytes"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"

	"mailinvoice/internal"
)

// RawMessage is a stored .eml decoded into the outgoing-mail envelope shape.
type RawMessage struct {
	Args            internal.EmailArgs
	MessageID       string
	From            string
	AttachmentNames []string
}

// ParseRawMessage decodes a MIME message. The HTML part is preferred as the
// body; two-column label tables are flattened into "Label: value" lines.
func ParseRawMessage(raw []byte) (RawMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return RawMessage{}, err
	}

	body := env.Text
	if strings.TrimSpace(env.HTML) != "" {
		body = flattenFieldTables(env.HTML)
	}

	msg := RawMessage{
		MessageID: strings.Trim(env.GetHeader("Message-ID"), "<> "),
		From:      env.GetHeader("From"),
		Args: internal.EmailArgs{
			Subject: env.GetHeader("Subject"),
			Message: body,
		},
	}
	if to, err := env.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.Args.To = append(msg.Args.To, addr.Address)
		}
	}
	for _, key := range []string{"From", "Reply-To", "Content-Type"} {
		if v := env.GetHeader(key); v != "" {
			msg.Args.Headers = append(msg.Args.Headers, key+": "+v)
		}
	}
	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if name == "" {
			name = "attachment"
		}
		msg.AttachmentNames = append(msg.AttachmentNames, name)
	}
	return msg, nil
}

// flattenFieldTables rewrites tables whose rows hold a label and a value into
// "Label: value" paragraphs so the field patterns see them as labelled lines.
func flattenFieldTables(src string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return src
	}
	changed := false
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		var lines []string
		labelled := 0
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.ChildrenFiltered("th,td")
			if cells.Length() == 2 {
				label := strings.TrimSuffix(strings.TrimSpace(cells.First().Text()), ":")
				value := strings.TrimSpace(cells.Last().Text())
				if label != "" && value != "" && len(label) <= 40 {
					lines = append(lines, label+": "+value)
					labelled++
					return
				}
			}
			if text := strings.TrimSpace(row.Text()); text != "" {
				lines = append(lines, text)
			}
		})
		if labelled == 0 {
			return
		}
		var b strings.Builder
		b.WriteString("<div>")
		for _, line := range lines {
			b.WriteString("<p>" + html.EscapeString(line) + "</p>")
		}
		b.WriteString("</div>")
		table.ReplaceWithHtml(b.String())
		changed = true
	})
	if !changed {
		return src
	}
	out, err := doc.Html()
	if err != nil {
		return src
	}
	return out
}
