package connectors

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"mailinvoice/internal"
	"mailinvoice/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
	log       zerolog.Logger
}

type FetchResult struct {
	Fetched int
	New     int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, log zerolog.Logger) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		log:       log.With().Str("provider", connector.Provider()).Logger(),
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, q internal.MailQuery) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, q)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", s.connector.Provider(), err)
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		row, created, err := s.store.Store(msg)
		if err != nil {
			return res, fmt.Errorf("store %s: %w", msg.MessageID, err)
		}
		if created {
			res.New++
			s.log.Debug().Int("email_id", row.ID).Str("subject", msg.Subject).Msg("mail stored")
		}
	}
	s.log.Info().Str("label", q.Label).Int("fetched", res.Fetched).Int("new", res.New).Msg("mailbox fetched")
	return res, nil
}
