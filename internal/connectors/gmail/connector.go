package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailinvoice/internal"
	"mailinvoice/internal/config"
	"mailinvoice/internal/pipeline"
)

const Provider = "gmail"

var errPageDone = errors.New("page limit reached")

type Connector struct {
	service *gmail.Service
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	for name, value := range map[string]string{
		"GMAIL_CLIENT_ID":     cfg.GmailClientID,
		"GMAIL_CLIENT_SECRET": cfg.GmailClientSecret,
		"GMAIL_REFRESH_TOKEN": cfg.GmailRefreshToken,
	} {
		if err := cfg.Require(name, value); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return &Connector{service: svc}, nil
}

func (c *Connector) Provider() string { return Provider }

// FetchInbox lists matching messages newest first and downloads each one in
// raw form.
func (c *Connector) FetchInbox(ctx context.Context, q internal.MailQuery) ([]internal.FetchedMailMessage, error) {
	if q.Max <= 0 {
		return nil, nil
	}
	call := c.service.Users.Messages.List("me").Q(searchQuery(q)).MaxResults(int64(q.Max))
	if q.Label != "" {
		call = call.LabelIds(q.Label)
	}

	var ids []string
	err := call.Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			if m.Id != "" {
				ids = append(ids, m.Id)
			}
		}
		if len(ids) >= q.Max {
			return errPageDone
		}
		return nil
	})
	if err != nil && !errors.Is(err, errPageDone) {
		return nil, fmt.Errorf("list gmail messages: %w", err)
	}
	if len(ids) > q.Max {
		ids = ids[:q.Max]
	}

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := c.service.Users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get gmail message %s: %w", id, err)
		}
		if msg.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(msg.Raw)
		if err != nil {
			return nil, err
		}
		fetched, err := toFetched(id, msg.InternalDate, raw)
		if err != nil {
			return nil, fmt.Errorf("parse gmail message %s: %w", id, err)
		}
		out = append(out, fetched)
	}
	return out, nil
}

func searchQuery(q internal.MailQuery) string {
	var parts []string
	if q.Subject != "" {
		parts = append(parts, fmt.Sprintf("subject:(%s)", q.Subject))
	}
	if !q.Since.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%d", q.Since.Unix()))
	}
	return strings.Join(parts, " ")
}

func toFetched(id string, internalDateMs int64, raw []byte) (internal.FetchedMailMessage, error) {
	parsed, err := pipeline.ParseRawMessage(raw)
	if err != nil {
		return internal.FetchedMailMessage{}, err
	}
	received := time.Now().UTC()
	if internalDateMs > 0 {
		received = time.UnixMilli(internalDateMs).UTC()
	}
	messageID := parsed.MessageID
	if messageID == "" {
		messageID = id
	}
	return internal.FetchedMailMessage{
		Provider:   Provider,
		MessageID:  messageID,
		Subject:    parsed.Args.Subject,
		From:       parsed.From,
		ReceivedAt: received.Format(time.RFC3339),
		Raw:        raw,
	}, nil
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
