package pipeline

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"mailinvoice/internal"
	"mailinvoice/internal/util"
)

// ContentSignature identifies the billable content of an invoice. Recipient,
// invoice number and invoice/due dates are left out so every copy of the same
// booking mail maps to one signature.
func ContentSignature(data internal.InvoiceData) string {
	parts := []string{
		data.CustomerName,
		data.AppointmentDate,
		data.AppointmentTime,
		data.ServiceCode,
		data.DiagnosticCode,
		data.ServiceDescription,
		money(data.UnitPrice),
		money(data.Subtotal),
		money(data.TotalAmount),
		money(data.AmountPaid),
		money(data.AmountDue),
	}
	if len(data.Items) > 0 {
		item := data.Items[0]
		parts = append(parts,
			item.ServiceCode,
			item.DiagnosticCode,
			item.Description,
			money(item.Quantity),
			money(item.UnitPrice),
			money(item.Subtotal),
		)
	}
	return sha1Hex(strings.ToLower(strings.Join(parts, "|")))
}

// FallbackSignature hashes the sanitised subject and body. Used when the mail
// cannot be parsed.
func FallbackSignature(subject, message string) string {
	normalized := strings.ToLower(strings.TrimSpace(util.SanitizeText(subject) + "\n" + NormalizeBody(message)))
	return sha1Hex(normalized)
}

func MessageHash(message string) string {
	return md5Hex(message)
}

// BridgeKey is the lookup key shared by the booking-confirmed event and the
// outgoing mail it precedes.
func BridgeKey(subject, message string) string {
	return md5Hex(subject + "|" + MessageHash(message))
}

// BookingSignature is unique per booking event.
func BookingSignature(bookingID int64, subject, message string, unixTS int64) string {
	return md5Hex(fmt.Sprintf("%d|%s|%s|%d", bookingID, subject, MessageHash(message), unixTS))
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
