package invoicing

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailinvoice/internal"
	"mailinvoice/internal/pipeline"
	"mailinvoice/internal/storage"
	"mailinvoice/internal/util"
)

// Mailbox statuses.
const (
	StatusFetched  = "fetched"
	StatusSkipped  = "skipped"
	StatusInvoiced = "invoiced"
	StatusFailed   = "failed"
	StatusExported = "exported"
)

// ProcessingService runs stored mailbox copies of booking mails through the
// invoice pipeline.
type ProcessingService struct {
	db      *storage.DB
	service *Service
	log     zerolog.Logger
}

func NewProcessingService(db *storage.DB, service *Service, log zerolog.Logger) *ProcessingService {
	return &ProcessingService{db: db, service: service, log: log}
}

type ProcessResult struct {
	EmailID int
	Verdict internal.Verdict
	PDFPath string
	Cached  bool
}

func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

// ProcessPending handles up to limit fetched mails and returns how many were
// processed and how many received an invoice.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus(StatusFetched, limit)
	if err != nil {
		return 0, 0, err
	}
	processed, invoiced := 0, 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		if err := ctx.Err(); err != nil {
			return processed, invoiced, err
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			return processed, invoiced, err
		}
		processed++
		if res.PDFPath != "" {
			invoiced++
		}
	}
	return processed, invoiced, nil
}

func (s *ProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (ProcessResult, error) {
	start := time.Now()
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}
	msg, err := pipeline.ParseRawMessage(raw)
	if err != nil {
		return ProcessResult{}, err
	}
	args := msg.Args
	args.Subject = util.FirstNonEmpty(args.Subject, email.Subject)
	if len(args.Headers) == 0 && email.Sender != "" {
		args.Headers = []string{"From: " + email.Sender}
	}

	res := ProcessResult{EmailID: email.ID}
	cls := s.service.Classify(args)
	res.Verdict = cls.Verdict
	log := s.log.With().Int("email_id", email.ID).Str("verdict", string(cls.Verdict)).Logger()

	if !cls.Relevant() {
		if err := s.db.UpdateEmailStatus(email.ID, StatusSkipped); err != nil {
			return res, err
		}
		s.insertRun(email.ID, start, cls, 0)
		log.Debug().Msg("mail skipped")
		return res, nil
	}

	generated, err := s.service.getOrGenerate(ctx, args, &email.ID)
	if err != nil {
		log.Error().Err(err).Msg("invoice generation failed")
		if err := s.db.UpdateEmailStatus(email.ID, StatusFailed); err != nil {
			return res, err
		}
		s.insertRun(email.ID, start, cls, 0)
		return res, nil
	}
	res.PDFPath, res.Cached = generated.Path, generated.Cached

	if err := s.db.UpdateEmailStatus(email.ID, StatusInvoiced); err != nil {
		return res, err
	}
	s.insertRun(email.ID, start, cls, 1)
	log.Info().Str("path", res.PDFPath).Bool("cached", res.Cached).Msg("mail invoiced")
	return res, nil
}

func (s *ProcessingService) insertRun(emailID int, start time.Time, cls pipeline.Classification, invoices int) {
	timings := map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}
	counts := map[string]int{"score": cls.Score, "structureScore": cls.StructureScore, "invoices": invoices}
	if err := s.db.InsertRun(uuid.NewString(), emailID, timings, counts); err != nil {
		s.log.Warn().Err(err).Int("email_id", emailID).Msg("run not recorded")
	}
}
