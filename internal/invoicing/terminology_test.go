package invoicing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mailinvoice/internal"
)

func TestRewriteTerminology(t *testing.T) {
	tests := []struct {
		name        string
		subject     string
		message     string
		wantSubject string
		wantMessage string
	}{
		{
			name:        "scheduled",
			subject:     "New meeting scheduled!",
			message:     "A new meeting has been scheduled for you.",
			wantSubject: "New appointment scheduled!",
			wantMessage: "A new appointment has been scheduled for you.",
		},
		{
			name:        "first phrase wins",
			subject:     "Meeting cancelled by Meeting host",
			message:     "Your meeting has been cancelled. Meeting link removed.",
			wantSubject: "Appointment cancelled by Meeting host",
			wantMessage: "Your appointment has been cancelled. Meeting link removed.",
		},
		{
			name:        "placeholder",
			subject:     "Reminder",
			message:     "Title: {%meeting_title%}",
			wantSubject: "Reminder",
			wantMessage: "Title: {%appointment_title%}",
		},
		{
			name:        "generic word",
			subject:     "Your meeting tomorrow",
			message:     "See you at the Meeting.",
			wantSubject: "Your appointment tomorrow",
			wantMessage: "See you at the Appointment.",
		},
		{
			name:        "untouched",
			subject:     "Appointment Confirmation",
			message:     "Your appointment has been successfully scheduled",
			wantSubject: "Appointment Confirmation",
			wantMessage: "Your appointment has been successfully scheduled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := internal.EmailArgs{Subject: tt.subject, Message: tt.message, Attachments: []string{"a.pdf"}}
			out := RewriteTerminology(in)
			assert.Equal(t, tt.wantSubject, out.Subject)
			assert.Equal(t, tt.wantMessage, out.Message)
			assert.Equal(t, in.Attachments, out.Attachments)
		})
	}
}
