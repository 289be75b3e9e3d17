package connectors

import (
	"context"
	"fmt"

	"mailinvoice/internal"
	"mailinvoice/internal/config"
	"mailinvoice/internal/connectors/gmail"
	"mailinvoice/internal/connectors/imap"
)

// MailConnector reads booking notifications from a mailbox.
type MailConnector interface {
	Provider() string
	FetchInbox(ctx context.Context, q internal.MailQuery) ([]internal.FetchedMailMessage, error)
}

var (
	_ MailConnector = (*gmail.Connector)(nil)
	_ MailConnector = (*imap.Connector)(nil)
)

// New builds the connector for provider ("gmail" or "imap").
func New(ctx context.Context, cfg config.Config, provider string) (MailConnector, error) {
	switch provider {
	case "gmail":
		return gmail.NewConnector(ctx, cfg)
	case "imap":
		return imap.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}

// QueryFromConfig is the listener's mailbox query.
func QueryFromConfig(cfg config.Config) internal.MailQuery {
	return internal.MailQuery{
		Label:   cfg.MailListenerLabel,
		Max:     cfg.MailListenerFetchMax,
		Subject: cfg.MailListenerSubject,
	}
}
