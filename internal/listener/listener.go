package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mailinvoice/internal/connectors"
	"mailinvoice/internal/invoicing"
)

const (
	exportBatch = 200
	// IMAP SINCE has day granularity; re-reading a day is harmless because
	// stored mails are matched by message id.
	sinceOverlap = 24 * time.Hour
)

// Service polls a mailbox for booking notifications and invoices them.
type Service struct {
	app       *invoicing.App
	connector connectors.MailConnector
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(app *invoicing.App, connector connectors.MailConnector) *Service {
	return &Service{
		app:       app,
		connector: connector,
		log:       app.Log.With().Str("component", "listener").Str("provider", connector.Provider()).Logger(),
		now:       time.Now,
	}
}

// CycleResult summarises one polling cycle.
type CycleResult struct {
	Fetched   int
	New       int
	Processed int
	Invoiced  int
	Exported  int
	Removed   int
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.app.Config.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	s.log.Info().Dur("interval", interval).Msg("listener started")
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			s.log.Error().Err(err).Msg("listener cycle failed")
		}

		select {
		case <-ctx.Done():
			s.log.Info().Msg("listener stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	cfg := s.app.Config
	provider := s.connector.Provider()
	var res CycleResult

	started := s.now()
	q := connectors.QueryFromConfig(cfg)
	q.Since = s.lastFetch(provider)
	fetched, err := connectors.NewFetchService(s.app.DB, cfg.RawMailDir, s.connector, s.log).FetchAndStore(ctx, q)
	if err != nil {
		return res, err
	}
	res.Fetched, res.New = fetched.Fetched, fetched.New
	if err := s.app.DB.SetMetadata(lastFetchKey(provider), started.UTC().Format(time.RFC3339)); err != nil {
		s.log.Warn().Err(err).Msg("last fetch time not saved")
	}

	res.Processed, res.Invoiced, err = s.app.Processor().ProcessPending(ctx, cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return res, err
	}

	if cfg.MailListenerAutoExport {
		if res.Exported, err = s.exportInvoiced(ctx, provider); err != nil {
			return res, err
		}
	}

	if res.Removed, err = s.app.Service.CleanupPDFs(); err != nil {
		s.log.Warn().Err(err).Msg("pdf cleanup incomplete")
	}
	if purged, err := s.app.DB.PurgeExpiredCache(ctx, s.now()); err != nil {
		s.log.Warn().Err(err).Msg("cache purge failed")
	} else if purged > 0 {
		s.log.Debug().Int64("purged", purged).Msg("expired cache entries removed")
	}

	s.log.Info().
		Int("fetched", res.Fetched).
		Int("new", res.New).
		Int("processed", res.Processed).
		Int("invoiced", res.Invoiced).
		Int("exported", res.Exported).
		Msg("listener cycle done")
	return res, nil
}

func (s *Service) lastFetch(provider string) time.Time {
	v, err := s.app.DB.GetMetadata(lastFetchKey(provider))
	if err != nil || v == nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return time.Time{}
	}
	return t.Add(-sinceOverlap)
}

func lastFetchKey(provider string) string {
	return "listener.last_fetch." + provider
}

// exportInvoiced writes one ledger workbook per invoiced mail and marks the
// mail exported.
func (s *Service) exportInvoiced(ctx context.Context, provider string) (int, error) {
	emails, err := s.app.DB.ListEmailsByStatus(invoicing.StatusInvoiced, exportBatch)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, email := range emails {
		if email.Provider != provider {
			continue
		}
		rows, err := s.app.DB.ListInvoices(ctx, &email.ID, 0)
		if err != nil {
			return exported, err
		}
		if len(rows) == 0 {
			continue
		}
		filename := fmt.Sprintf("%d_%s.xlsx", email.ID, sanitizeMessageID(email.MessageID))
		outputPath := filepath.Join(s.app.Config.OutputDir, "listener", filename)
		if err := invoicing.ExportLedgerToXLSX(rows, outputPath); err != nil {
			return exported, err
		}
		if err := s.app.DB.UpdateEmailStatus(email.ID, invoicing.StatusExported); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
