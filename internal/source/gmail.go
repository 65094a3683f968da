package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailConnector pulls financially relevant emails via the Gmail API.
type GmailConnector struct {
	// Query narrows the search; the default targets receipts and invoices.
	Query string

	// MaxResults caps how many messages one scan fetches.
	MaxResults int64
}

const defaultGmailQuery = `(receipt OR invoice OR payment OR "order confirmation" OR recibo OR factura)`

func (g *GmailConnector) Kind() string { return "gmail" }

func (g *GmailConnector) Search(ctx context.Context, token string, since time.Time) ([]Item, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}

	query := g.Query
	if query == "" {
		query = defaultGmailQuery
	}
	query += fmt.Sprintf(" after:%d", since.Unix())
	max := g.MaxResults
	if max <= 0 {
		max = 50
	}

	list, err := svc.Users.Messages.List("me").Q(query).MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail list: %w", err)
	}

	items := make([]Item, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gmail get %s: %w", ref.Id, err)
		}
		item := Item{
			ExternalID: msg.Id,
			ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
		}
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				item.Sender = h.Value
			case "Subject":
				item.Subject = h.Value
			}
		}
		item.Body = extractPlainText(msg.Payload)
		item.HasAttachment = hasAttachment(msg.Payload)
		items = append(items, item)
	}
	return items, nil
}

// extractPlainText walks the MIME tree for the first text/plain part.
func extractPlainText(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, p := range part.Parts {
		if text := extractPlainText(p); text != "" {
			return text
		}
	}
	return ""
}

func hasAttachment(part *gmail.MessagePart) bool {
	if part == nil {
		return false
	}
	if part.Filename != "" {
		return true
	}
	for _, p := range part.Parts {
		if hasAttachment(p) {
			return true
		}
	}
	return false
}

// decodeBody handles both padded and unpadded url-safe base64; the API emits
// unpadded.
func decodeBody(data string) string {
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}
