package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/mverde/ledgerpilot/internal/database/repository"
	"github.com/mverde/ledgerpilot/internal/source"
)

// Scanner turns raw source items into pending confirmations. Nothing a scan
// produces touches the ledger until a human confirms it.
type Scanner struct {
	Entities      *repository.EntityRepo
	Confirmations *repository.ConfirmationRepo
	Orchestrator  *Orchestrator
	Logger        *slog.Logger
	Clock         func() time.Time
}

// ScanSummary reports one scan run.
type ScanSummary struct {
	Scanned int
	Staged  int
	Skipped int
	Failed  int
}

// Scan processes items one by one. A failing item is logged and counted, not
// fatal: the remaining items still get staged.
func (s *Scanner) Scan(ctx context.Context, ownerID, kind string, items []source.Item) ScanSummary {
	var sum ScanSummary
	for _, item := range items {
		sum.Scanned++
		staged, err := s.scanOne(ctx, ownerID, kind, item)
		if err != nil {
			sum.Failed++
			s.logger().Error("scan item failed", "owner", ownerID, "kind", kind, "item", item.ExternalID, "error", err)
			continue
		}
		if staged {
			sum.Staged++
		} else {
			sum.Skipped++
		}
	}
	return sum
}

func (s *Scanner) scanOne(ctx context.Context, ownerID, kind string, item source.Item) (bool, error) {
	sourceID := dedupKey(kind, item.ExternalID, ownerID)
	seen, err := s.Confirmations.ExistsSourceID(ctx, sourceID)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}

	text := itemText(item)
	needsReview := false
	var reviewReason *string
	if strings.TrimSpace(item.Body) == "" && item.HasAttachment {
		needsReview = true
		reason := "attachment-only message; body could not be read"
		reviewReason = &reason
	}

	draft := s.Orchestrator.Handle(ctx, ownerID, IngestInput{Text: text})
	if draft.Error != "" {
		needsReview = true
		if reviewReason == nil {
			reason := "extraction failed: " + draft.Error
			reviewReason = &reason
		}
	}

	if err := s.prefillEntities(ctx, ownerID, item.Sender, draft.Actions); err != nil {
		return false, err
	}

	confidence, err := s.score(ctx, ownerID, draft, needsReview)
	if err != nil {
		return false, err
	}

	draftJSON, err := json.Marshal(draft)
	if err != nil {
		return false, err
	}
	payload, err := json.Marshal(map[string]any{
		"sender":      item.Sender,
		"subject":     item.Subject,
		"body":        item.Body,
		"received_at": item.ReceivedAt,
	})
	if err != nil {
		return false, err
	}

	c := repository.PendingConfirmation{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		SourceKind:   kind,
		SourceID:     sourceID,
		RawPayload:   string(payload),
		Draft:        string(draftJSON),
		Confidence:   confidence,
		NeedsReview:  needsReview,
		ReviewReason: reviewReason,
		Status:       repository.ConfirmationPending,
	}
	if err := s.Confirmations.Insert(ctx, c); err != nil {
		return false, err
	}
	s.logger().Info("staged confirmation",
		"owner", ownerID, "kind", kind, "confidence", confidence, "needs_review", needsReview)
	return true, nil
}

// dedupKey hashes (kind, external id, owner) so re-scanning the same message
// is always a no-op.
func dedupKey(kind, externalID, ownerID string) string {
	h := sha256.Sum256([]byte(kind + "\x00" + externalID + "\x00" + ownerID))
	return hex.EncodeToString(h[:])
}

func itemText(item source.Item) string {
	var b strings.Builder
	if item.Sender != "" {
		fmt.Fprintf(&b, "From: %s\n", item.Sender)
	}
	if item.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", item.Subject)
	}
	if !item.ReceivedAt.IsZero() {
		fmt.Fprintf(&b, "Received: %s\n", item.ReceivedAt.Format(repository.DateOnly))
	}
	if item.Body != "" {
		b.WriteString("\n")
		b.WriteString(item.Body)
	}
	return b.String()
}

// prefillEntities fuzzy-matches the sender against known entity names and
// fills in missing entity_id params, so "billing@acmeinsurance.com" lands on
// the Acme Insurance entity without the model having to guess.
func (s *Scanner) prefillEntities(ctx context.Context, ownerID, sender string, actions []Action) error {
	if sender == "" {
		return nil
	}
	tokens := senderTokens(sender)
	if len(tokens) == 0 {
		return nil
	}
	ents, err := s.Entities.ListActive(ctx, ownerID)
	if err != nil {
		return err
	}

	var matchID string
	for _, e := range ents {
		name := strings.ToLower(e.Name)
		for _, tok := range tokens {
			if fuzzyEqual(name, tok) {
				matchID = e.ID
				break
			}
		}
		if matchID != "" {
			break
		}
	}
	if matchID == "" {
		return nil
	}
	for i := range actions {
		if actions[i].Tool != "record_financial_event" && actions[i].Tool != "record_event" {
			continue
		}
		if actions[i].Params == nil {
			actions[i].Params = map[string]any{}
		}
		if paramString(actions[i].Params, "entity_id") == "" {
			actions[i].Params["entity_id"] = matchID
		}
	}
	return nil
}

// senderTokens extracts candidate name tokens from "Acme Insurance
// <billing@acmeinsurance.com>": the display name and the domain label.
func senderTokens(sender string) []string {
	var out []string
	s := strings.ToLower(strings.TrimSpace(sender))
	if i := strings.Index(s, "<"); i > 0 {
		if display := strings.Trim(strings.TrimSpace(s[:i]), `"`); display != "" {
			out = append(out, display)
		}
		s = strings.Trim(s[i:], "<>")
	}
	if at := strings.Index(s, "@"); at >= 0 {
		domain := s[at+1:]
		if dot := strings.Index(domain, "."); dot > 0 {
			out = append(out, domain[:dot])
		}
	}
	return out
}

// fuzzyEqual tolerates small spelling drift between entity names and sender
// tokens, scaled by length.
func fuzzyEqual(name, token string) bool {
	name = strings.ReplaceAll(name, " ", "")
	token = strings.ReplaceAll(token, " ", "")
	if name == "" || token == "" {
		return false
	}
	if strings.Contains(token, name) || strings.Contains(name, token) {
		return true
	}
	d := levenshtein.ComputeDistance(name, token)
	limit := len(name) / 4
	if limit < 2 {
		limit = 2
	}
	return d <= limit
}

// score computes the 0-100 confidence of a draft: per scorable action, amount
// counts 40, a parseable date 20, a resolvable entity 40; drafts that asked
// for clarification lose 20, review-flagged items lose 30.
func (s *Scanner) score(ctx context.Context, ownerID string, draft Draft, needsReview bool) (int, error) {
	if draft.Error != "" {
		return 0, nil
	}
	resolver := &Resolver{Entities: s.Entities}
	total, scored := 0, 0
	for _, a := range draft.Actions {
		if a.Tool != "record_financial_event" && a.Tool != "record_event" {
			continue
		}
		scored++
		pts := 0
		if _, ok := paramNumber(a.Params, "amount"); ok {
			pts += 40
		}
		if d := paramString(a.Params, "date"); d != "" {
			if _, err := time.Parse(repository.DateOnly, d); err == nil {
				pts += 20
			}
		}
		if ref := paramString(a.Params, "entity_id"); ref != "" {
			id, err := resolver.Resolve(ctx, ownerID, ref, nil)
			if err != nil {
				return 0, err
			}
			if id != "" {
				pts += 40
			}
		}
		total += pts
	}
	confidence := 0
	if scored > 0 {
		confidence = total / scored
	}
	if draft.Clarification != "" {
		confidence -= 20
	}
	if needsReview {
		confidence -= 30
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return confidence, nil
}

func (s *Scanner) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
