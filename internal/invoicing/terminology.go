package invoicing

import (
	"strings"

	"mailinvoice/internal"
)

type replacement struct {
	from, to string
}

// Tried in order; only the first phrase present is replaced.
var (
	subjectReplacements = []replacement{
		{"New meeting scheduled!", "New appointment scheduled!"},
		{"Meeting cancelled", "Appointment cancelled"},
		{"Meeting rescheduled!", "Appointment rescheduled!"},
		{"meeting", "appointment"},
		{"Meeting", "Appointment"},
	}
	messageReplacements = []replacement{
		{"A new meeting has been scheduled", "A new appointment has been scheduled"},
		{"meeting has been scheduled", "appointment has been scheduled"},
		{"meeting has been cancelled", "appointment has been cancelled"},
		{"meeting has been rescheduled", "appointment has been rescheduled"},
		{"{%meeting_title%}", "{%appointment_title%}"},
		{"meeting", "appointment"},
		{"Meeting", "Appointment"},
	}
)

// RewriteTerminology says "appointment" where the booking system says
// "meeting". Attachments and headers are untouched.
func RewriteTerminology(args internal.EmailArgs) internal.EmailArgs {
	args.Subject = replaceFirst(args.Subject, subjectReplacements)
	args.Message = replaceFirst(args.Message, messageReplacements)
	return args
}

func replaceFirst(text string, table []replacement) string {
	for _, r := range table {
		if strings.Contains(text, r.from) {
			return strings.ReplaceAll(text, r.from, r.to)
		}
	}
	return text
}

func (s *Service) rewriteTerminology(args internal.EmailArgs) internal.EmailArgs {
	if !s.cfg.ModifyTerminology {
		return args
	}
	out := RewriteTerminology(args)
	if out.Subject != args.Subject || out.Message != args.Message {
		s.log.Debug().Str("subject", out.Subject).Msg("mail terminology rewritten")
	}
	return out
}
