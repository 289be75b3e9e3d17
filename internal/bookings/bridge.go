package bookings

import (
	"context"
	"encoding/json"
	"time"

	"mailinvoice/internal"
	"mailinvoice/internal/cache"
	"mailinvoice/internal/config"
	"mailinvoice/internal/pipeline"
)

// Bridge links a booking-confirmed event to the outgoing mail sent right
// after it. Bindings live in the cache and expire after the bridge TTL.
type Bridge struct {
	cache cache.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewBridge(c cache.Store, cfg config.Config) *Bridge {
	ttl := time.Duration(cfg.BookingBridgeTTLSec) * time.Second
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	return &Bridge{cache: c, ttl: ttl, now: time.Now}
}

func (b *Bridge) WithClock(now func() time.Time) *Bridge {
	b.now = now
	return b
}

func bridgeKey(subject, message string) string {
	return "booking_" + pipeline.BridgeKey(subject, message)
}

// Bind records the booking id under the mail's subject and body hash.
func (b *Bridge) Bind(ctx context.Context, bookingID int64, email internal.EmailData) (internal.BookingBinding, error) {
	ts := b.now().Unix()
	binding := internal.BookingBinding{
		BookingID:   bookingID,
		Timestamp:   ts,
		Subject:     email.Subject,
		MessageHash: pipeline.MessageHash(email.Message),
		Signature:   pipeline.BookingSignature(bookingID, email.Subject, email.Message, ts),
	}
	blob, err := json.Marshal(binding)
	if err != nil {
		return binding, err
	}
	return binding, b.cache.Set(ctx, bridgeKey(email.Subject, email.Message), string(blob), b.ttl)
}

// Lookup returns the binding for a mail if one exists, is fresh, and matches
// the subject and body exactly.
func (b *Bridge) Lookup(ctx context.Context, subject, message string) (internal.BookingBinding, bool, error) {
	raw, ok, err := b.cache.Get(ctx, bridgeKey(subject, message))
	if err != nil || !ok {
		return internal.BookingBinding{}, false, err
	}
	var binding internal.BookingBinding
	if err := json.Unmarshal([]byte(raw), &binding); err != nil {
		return internal.BookingBinding{}, false, nil
	}
	if b.now().Unix()-binding.Timestamp > int64(b.ttl/time.Second) {
		return internal.BookingBinding{}, false, nil
	}
	if binding.Subject != subject || binding.MessageHash != pipeline.MessageHash(message) {
		return internal.BookingBinding{}, false, nil
	}
	return binding, binding.BookingID > 0, nil
}
