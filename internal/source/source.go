// Package source pulls raw signals (emails, calendar entries) from external
// providers for the scanning pipeline.
package source

import (
	"context"
	"time"
)

// Item is one raw signal from an external source, provider-agnostic.
type Item struct {
	// ExternalID is the provider's stable id for this item; it feeds the
	// dedup key, so it must not change between scans.
	ExternalID string
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time

	// HasAttachment marks items whose payload could not be inlined (PDF
	// invoices and the like); they get flagged for manual review.
	HasAttachment bool
}

// Connector fetches recent items from one provider.
type Connector interface {
	Kind() string
	Search(ctx context.Context, token string, since time.Time) ([]Item, error)
}

// TokenSupplier resolves the OAuth access token for an owner. Implementations
// decide where tokens live (file, env, secret store).
type TokenSupplier interface {
	Token(ctx context.Context, ownerID string) (string, error)
}
