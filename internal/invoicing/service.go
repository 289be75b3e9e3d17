package invoicing

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailinvoice/internal"
	"mailinvoice/internal/bookings"
	"mailinvoice/internal/cache"
	"mailinvoice/internal/config"
	"mailinvoice/internal/pipeline"
	"mailinvoice/internal/render"
	"mailinvoice/internal/storage"
)

const (
	MaxSubjectLength = 500
	MaxMessageLength = 50000

	// AttachmentNote is appended to the body of every mail that gets an invoice.
	AttachmentNote = "\n\n---\nA PDF confirmation has been attached to this email."

	maxHTMLSize         = 100000
	maxNumberAttempts   = 5
	claimTTL            = 60 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	lowMemoryLimit      = 128 << 20
)

// Ledger records every rendered invoice.
type Ledger interface {
	InvoiceNumberExists(ctx context.Context, number string) (bool, error)
	InsertInvoice(ctx context.Context, rec internal.InvoiceRecord) (int64, error)
}

var _ Ledger = (*storage.DB)(nil)

// Deps are the collaborators of a Service. Resolver, Bridge and Ledger are
// optional.
type Deps struct {
	Cache    cache.Store
	Parser   *pipeline.Parser
	Resolver *bookings.Resolver
	Bridge   *bookings.Bridge
	Renderer render.Renderer
	Files    *FileStore
	Ledger   Ledger
}

// Result describes the invoice attached to a mail.
type Result struct {
	Path      string
	Signature string
	Cached    bool
	// Data is nil on a cache hit.
	Data     *internal.InvoiceData
	Strategy string
}

// Service turns booking mails into invoice PDFs. It renders at most once per
// content signature within the cache window.
type Service struct {
	cfg        config.Config
	log        zerolog.Logger
	cache      cache.Store
	classifier *pipeline.Classifier
	parser     *pipeline.Parser
	validator  *pipeline.Validator
	resolver   *bookings.Resolver
	bridge     *bookings.Bridge
	renderer   render.Renderer
	files      *FileStore
	ledger     Ledger

	pdfTTL       time.Duration
	claimWait    time.Duration
	pollInterval time.Duration
	now          func() time.Time
	limitsOnce   sync.Once
}

func NewService(cfg config.Config, log zerolog.Logger, deps Deps) *Service {
	s := &Service{
		cfg:          cfg,
		log:          log,
		cache:        deps.Cache,
		classifier:   pipeline.NewClassifier(cfg),
		parser:       deps.Parser,
		validator:    pipeline.NewValidator(),
		resolver:     deps.Resolver,
		bridge:       deps.Bridge,
		renderer:     deps.Renderer,
		files:        deps.Files,
		ledger:       deps.Ledger,
		pdfTTL:       time.Duration(cfg.PDFCacheTTLSec) * time.Second,
		claimWait:    time.Duration(cfg.RenderClaimWaitMs) * time.Millisecond,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
	if s.cache == nil {
		s.cache = cache.NewMemory()
	}
	if s.renderer == nil {
		s.renderer = render.NewPDFRenderer()
	}
	if s.files == nil {
		s.files = NewFileStore(cfg.PDFDir())
	}
	if s.pdfTTL <= 0 {
		s.pdfTTL = 20 * time.Minute
	}
	return s
}

// WithClock sets the time source for dates, filenames and validation.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.validator.WithClock(now)
	s.files.WithClock(now)
	return s
}

func (s *Service) Classify(args internal.EmailArgs) pipeline.Classification {
	return s.classifier.Classify(args.Subject, args.Message, args.Headers)
}

// HandleOutgoingMail attaches an invoice to a booking confirmation. Any
// failure leaves the mail as it was; the mail is never blocked.
func (s *Service) HandleOutgoingMail(ctx context.Context, args internal.EmailArgs) (out internal.EmailArgs) {
	if len(args.Subject) > MaxSubjectLength || len(args.Message) > MaxMessageLength {
		s.log.Warn().Int("subject_len", len(args.Subject)).Int("message_len", len(args.Message)).Msg("mail exceeds size limits; passing through")
		return args
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Str("subject", args.Subject).Msg("outgoing mail hook failed")
			out = args
		}
	}()

	cls := s.Classify(args)
	log := s.log.With().Str("subject", args.Subject).Str("verdict", string(cls.Verdict)).Str("stage", string(cls.Stage)).Logger()
	switch cls.Verdict {
	case internal.VerdictRelevant:
	case internal.VerdictExcludedService:
		log.Info().Msg("no invoice for excluded service")
		return s.rewriteTerminology(args)
	default:
		log.Debug().Str("matched", cls.Matched).Int("score", cls.Score).Msg("mail not relevant")
		return args
	}
	if !s.cfg.PDFEnabled {
		log.Info().Msg("pdf generation disabled")
		return s.rewriteTerminology(args)
	}

	res, err := s.GetOrGenerate(ctx, args)
	out = s.rewriteTerminology(args)
	if err != nil {
		log.Error().Err(err).Msg("invoice generation failed; sending without attachment")
		return out
	}

	out.Attachments = append(append([]string(nil), args.Attachments...), res.Path)
	out.Message += AttachmentNote
	log.Info().Str("path", res.Path).Bool("cached", res.Cached).Str("signature", res.Signature).Msg("invoice attached")
	return out
}

// ShouldSuppress reports whether a mail about an excluded service should not
// be sent at all.
func (s *Service) ShouldSuppress(args internal.EmailArgs) bool {
	if !s.cfg.SuppressExcludedEmails {
		return false
	}
	if s.Classify(args).Verdict != internal.VerdictExcludedService {
		return false
	}
	s.log.Info().Str("subject", args.Subject).Msg("mail suppressed for excluded service")
	return true
}

// HandleBookingConfirmed records the booking for the outgoing mail that
// follows and renders its invoice from the booking records ahead of time.
func (s *Service) HandleBookingConfirmed(ctx context.Context, bookingID int64, email internal.EmailData) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Int64("booking_id", bookingID).Msg("booking hook failed")
			res, err = Result{}, fmt.Errorf("booking hook panic: %v", r)
		}
	}()
	if bookingID <= 0 {
		return Result{}, fmt.Errorf("invalid booking id %d", bookingID)
	}
	log := s.log.With().Int64("booking_id", bookingID).Str("subject", email.Subject).Logger()

	if s.bridge != nil {
		if _, err := s.bridge.Bind(ctx, bookingID, email); err != nil {
			log.Warn().Err(err).Msg("booking bridge not stored")
		}
	}
	if pipeline.IsExcludedService(email.Subject, email.Message) {
		log.Info().Msg("no invoice for excluded service")
		return Result{}, nil
	}
	if !s.cfg.PDFEnabled {
		return Result{}, nil
	}
	if s.resolver == nil || !s.resolver.Enabled() {
		return Result{}, fmt.Errorf("booking store not configured")
	}

	data, err := s.resolver.Resolve(ctx, bookingID)
	if err != nil {
		return Result{}, err
	}
	if data == nil {
		return Result{}, fmt.Errorf("booking %d not found", bookingID)
	}

	sig := s.Signature(email.Subject, email.Message)
	if token, ok := s.claim(ctx, sig); ok {
		defer s.release(ctx, sig, token)
	} else if path, ok := s.awaitPath(ctx, sig); ok {
		log.Info().Str("path", path).Msg("invoice rendered by a concurrent caller")
		return Result{Path: path, Signature: sig, Cached: true, Strategy: bookings.StrategyBridge}, nil
	} else {
		log.Warn().Str("signature", sig).Msg("render claim not released in time; rendering")
	}
	fixed := s.repair(*data)
	path, err := s.render(ctx, &fixed, sig, nil)
	if err != nil {
		return Result{}, err
	}
	s.remember(ctx, sig, path)
	log.Info().Str("path", path).Str("signature", sig).Msg("invoice pre-rendered from booking")
	return Result{Path: path, Signature: sig, Data: &fixed, Strategy: bookings.StrategyBridge}, nil
}

// GetOrGenerate returns the invoice for a mail, rendering it only when no
// valid cached copy exists for the mail's content signature.
func (s *Service) GetOrGenerate(ctx context.Context, args internal.EmailArgs) (Result, error) {
	return s.getOrGenerate(ctx, args, nil)
}

func (s *Service) getOrGenerate(ctx context.Context, args internal.EmailArgs, emailID *int) (Result, error) {
	sig := s.Signature(args.Subject, args.Message)
	if path, ok := s.cachedPath(ctx, sig); ok {
		return Result{Path: path, Signature: sig, Cached: true}, nil
	}

	if token, ok := s.claim(ctx, sig); ok {
		defer s.release(ctx, sig, token)
		// the previous holder may have finished between the probe and the claim
		if path, ok := s.cachedPath(ctx, sig); ok {
			return Result{Path: path, Signature: sig, Cached: true}, nil
		}
	} else {
		if path, ok := s.awaitPath(ctx, sig); ok {
			return Result{Path: path, Signature: sig, Cached: true}, nil
		}
		s.log.Warn().Str("signature", sig).Msg("render claim not released in time; rendering")
	}

	data, strategy := s.BuildInvoice(ctx, args.Subject, args.Message)
	path, err := s.render(ctx, &data, sig, emailID)
	if err != nil {
		return Result{}, err
	}
	s.remember(ctx, sig, path)
	return Result{Path: path, Signature: sig, Data: &data, Strategy: strategy}, nil
}

// Signature is the content signature of the invoice parsed from a mail. A
// mail that cannot be parsed falls back to a hash of its text.
func (s *Service) Signature(subject, message string) string {
	data, ok := s.parse(subject, message)
	if !ok {
		return pipeline.FallbackSignature(subject, message)
	}
	return pipeline.ContentSignature(data)
}

// BuildInvoice prefers the booking records when the mail names a booking and
// falls back to the mail text. The result is validated and repaired.
func (s *Service) BuildInvoice(ctx context.Context, subject, message string) (internal.InvoiceData, string) {
	if s.resolver != nil && s.resolver.Enabled() {
		if id, strategy := s.resolver.DiscoverBookingID(ctx, subject, message); id > 0 {
			data, err := s.resolver.Resolve(ctx, id)
			switch {
			case err != nil:
				s.log.Warn().Err(err).Int64("booking_id", id).Msg("booking lookup failed; using mail text")
			case data != nil:
				s.log.Debug().Int64("booking_id", id).Str("strategy", strategy).Msg("invoice built from booking")
				return s.repair(*data), strategy
			}
		}
	}

	data, _ := s.parse(subject, message)
	data = s.repair(data)
	if s.resolver != nil && s.resolver.EnrichMedical(ctx, &data) {
		s.log.Debug().Str("email", data.CustomerEmail).Msg("medical details filled from earlier booking")
	}
	return data, ""
}

func (s *Service) parse(subject, message string) (data internal.InvoiceData, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("mail parse failed; using defaults")
			data, ok = s.parser.Defaults(), false
		}
	}()
	return s.parser.Parse(subject, message), true
}

func (s *Service) repair(data internal.InvoiceData) internal.InvoiceData {
	report := s.validator.Validate(data)
	if report.Valid() {
		return data
	}
	s.log.Debug().Str("report", report.String()).Msg("invoice data repaired")
	return s.validator.ApplyFixes(data, report)
}

func (s *Service) render(ctx context.Context, data *internal.InvoiceData, sig string, emailID *int) (string, error) {
	start := time.Now()
	s.limitsOnce.Do(s.checkLimits)

	if err := s.reserveInvoiceNumber(ctx, data); err != nil {
		s.log.Warn().Err(err).Str("invoice_number", data.InvoiceNumber).Msg("invoice number not reserved")
	}
	doc, err := render.BuildInvoiceHTML(*data, s.cfg.Practice)
	if err != nil {
		return "", fmt.Errorf("build invoice html: %w", err)
	}
	if len(doc) > maxHTMLSize {
		return "", fmt.Errorf("invoice html is %d bytes", len(doc))
	}
	path, err := s.files.NewPath()
	if err != nil {
		return "", err
	}
	if err := render.RenderFile(s.renderer, doc, render.DocumentSettings(*data, s.cfg.Practice), path); err != nil {
		return "", fmt.Errorf("render invoice %s: %w", data.InvoiceNumber, err)
	}
	s.record(ctx, *data, sig, path, emailID)

	s.log.Info().
		Str("invoice_number", data.InvoiceNumber).
		Str("source", string(data.Source)).
		Str("path", path).
		Dur("duration", time.Since(start)).
		Msg("invoice rendered")
	return path, nil
}

// reserveInvoiceNumber replaces a number already in the ledger. Booking
// invoices keep their number with a counter suffix.
func (s *Service) reserveInvoiceNumber(ctx context.Context, data *internal.InvoiceData) error {
	if s.ledger == nil {
		return nil
	}
	base := data.InvoiceNumber
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		exists, err := s.ledger.InvoiceNumberExists(ctx, data.InvoiceNumber)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		if data.Source == internal.SourceBookingDB {
			data.InvoiceNumber = fmt.Sprintf("%s-%d", base, attempt+1)
		} else {
			data.InvoiceNumber = s.parser.InvoiceNumber()
		}
	}
	return fmt.Errorf("no free invoice number after %d attempts", maxNumberAttempts)
}

func (s *Service) record(ctx context.Context, data internal.InvoiceData, sig, path string, emailID *int) {
	if s.ledger == nil {
		return
	}
	rec := internal.InvoiceRecord{
		InvoiceNumber: data.InvoiceNumber,
		Signature:     sig,
		CustomerName:  data.CustomerName,
		CustomerEmail: data.CustomerEmail,
		ServiceName:   data.ServiceName,
		Total:         data.TotalAmount,
		PDFPath:       path,
		Source:        string(data.Source),
		EmailID:       emailID,
	}
	if data.BookingID > 0 {
		id := data.BookingID
		rec.BookingID = &id
	}
	if _, err := s.ledger.InsertInvoice(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateInvoiceNumber) {
			s.log.Warn().Str("invoice_number", data.InvoiceNumber).Msg("invoice number recorded concurrently")
			return
		}
		s.log.Error().Err(err).Str("invoice_number", data.InvoiceNumber).Msg("invoice not recorded")
	}
}

func pdfKey(sig string) string  { return "pdf_" + sig }
func lockKey(sig string) string { return "lock_" + sig }

// cachedPath returns the cached invoice for sig if the file is still a valid
// PDF. Cache errors count as a miss.
func (s *Service) cachedPath(ctx context.Context, sig string) (string, bool) {
	path, ok, err := s.cache.Get(ctx, pdfKey(sig))
	if err != nil {
		s.log.Warn().Err(err).Msg("pdf cache unavailable")
		return "", false
	}
	if !ok || strings.TrimSpace(path) == "" {
		return "", false
	}
	if err := render.ValidatePDFFile(path); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("cached invoice is no longer valid")
		_ = s.cache.Delete(ctx, pdfKey(sig))
		return "", false
	}
	return path, true
}

func (s *Service) remember(ctx context.Context, sig, path string) {
	if err := s.cache.Set(ctx, pdfKey(sig), path, s.pdfTTL); err != nil {
		s.log.Warn().Err(err).Str("signature", sig).Msg("invoice path not cached")
	}
}

// claim takes the render lock for sig and returns the token that owns it.
// An unavailable cache grants the claim so rendering still happens.
func (s *Service) claim(ctx context.Context, sig string) (string, bool) {
	token := uuid.NewString()
	ok, err := s.cache.SetNX(ctx, lockKey(sig), token, claimTTL)
	if err != nil {
		s.log.Warn().Err(err).Msg("render claim unavailable")
		return token, true
	}
	return token, ok
}

// release drops the lock only while token still owns it; a claim that
// outlived claimTTL may have been taken over by another caller.
func (s *Service) release(ctx context.Context, sig, token string) {
	deleted, err := s.cache.DeleteIfValue(context.WithoutCancel(ctx), lockKey(sig), token)
	switch {
	case err != nil:
		s.log.Warn().Err(err).Str("signature", sig).Msg("render claim not released")
	case !deleted:
		s.log.Warn().Str("signature", sig).Msg("render claim expired before release")
	}
}

// awaitPath polls for the invoice another caller is rendering.
func (s *Service) awaitPath(ctx context.Context, sig string) (string, bool) {
	deadline := time.Now().Add(s.claimWait)
	for {
		if path, ok := s.cachedPath(ctx, sig); ok {
			return path, true
		}
		if !time.Now().Before(deadline) {
			return "", false
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *Service) checkLimits() {
	if limit := debug.SetMemoryLimit(-1); limit < lowMemoryLimit {
		s.log.Warn().Int64("memory_limit", limit).Msg("low memory limit for pdf rendering")
	}
}

// CleanupPDFs removes invoices older than PDF_CLEANUP_DAYS.
func (s *Service) CleanupPDFs() (int, error) {
	days := s.cfg.PDFCleanupDays
	if days <= 0 {
		days = 30
	}
	removed, err := s.files.Cleanup(time.Duration(days) * 24 * time.Hour)
	if removed > 0 {
		s.log.Info().Int("removed", removed).Str("dir", s.files.Dir()).Msg("old invoices removed")
	}
	return removed, err
}
