package service

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/mverde/ledgerpilot/internal/database/repository"
)

// Normalizer cleans raw merchant strings and suggests categories from alias
// tables and event history.
type Normalizer struct {
	Entities *repository.EntityRepo
	Events   *repository.EventRepo
	Aliases  *repository.AliasRepo
	Clock    func() time.Time

	// AnomalyMultiplier flags amounts above this multiple of the historical
	// average. Tuned heuristic, configurable; default 3.
	AnomalyMultiplier float64
}

var (
	// "UBER *TRIP 8292", "LYFT *RIDE 12" — trailing trip/transaction suffix.
	reTrailingRef = regexp.MustCompile(`(?i)\s*\*\s*[a-z]+\s+\d+\s*$`)
	// "PAYPAL *NETFLIX" — payment processor prefix; keep the payee.
	reProcessor = regexp.MustCompile(`(?i)^(paypal|pypl|sq|tst|pos)\s*\*\s*`)
	// embedded card/reference numbers
	reDigitRun = regexp.MustCompile(`\s*\b\d{4,}\b`)
	// collapse leftover whitespace
	reSpaces = regexp.MustCompile(`\s+`)
)

// trailing receipt/invoice boilerplate, localized.
var boilerplateWords = map[string]struct{}{
	"receipt": {}, "invoice": {}, "confirmation": {}, "payment": {}, "purchase": {},
	"recibo": {}, "factura": {}, "confirmacion": {}, "confirmación": {}, "pago": {}, "compra": {},
}

// Normalize resolves a raw payee string to a clean display name. User
// aliases win; otherwise deterministic cleanup transforms apply in order.
// The result is idempotent: Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(ctx context.Context, ownerID, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw, nil
	}

	if n.Aliases != nil && ownerID != "" {
		aliases, err := n.Aliases.List(ctx, ownerID)
		if err != nil {
			return "", err
		}
		lower := strings.ToLower(trimmed)
		for _, a := range aliases {
			if strings.Contains(lower, strings.ToLower(a.Alias)) {
				return a.NormalizedName, nil
			}
		}
	}

	s := reProcessor.ReplaceAllString(trimmed, "")
	s = reTrailingRef.ReplaceAllString(s, "")
	s = reDigitRun.ReplaceAllString(s, "")
	s = strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))

	words := strings.Fields(s)
	for len(words) > 0 {
		last := strings.ToLower(words[len(words)-1])
		if _, ok := boilerplateWords[last]; !ok {
			break
		}
		words = words[:len(words)-1]
	}
	s = strings.Join(words, " ")

	if s == "" {
		return trimmed, nil
	}
	return titleCase(s), nil
}

// CategorySuggestion pairs a suggested event type with a confidence score.
type CategorySuggestion struct {
	Category   string
	Confidence int
}

// SuggestCategory finds entities whose name contains the normalized name and
// returns the most frequent event type among them over the trailing six
// months. Callers default to EXPENSE with confidence 50 on a nil result.
func (n *Normalizer) SuggestCategory(ctx context.Context, ownerID, normalized string) (*CategorySuggestion, error) {
	ents, err := n.Entities.ListActive(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(normalized))
	if needle == "" {
		return nil, nil
	}
	var ids []string
	for _, e := range ents {
		if strings.Contains(strings.ToLower(e.Name), needle) {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	now := time.Now
	if n.Clock != nil {
		now = n.Clock
	}
	since := now().UTC().AddDate(0, -6, 0)
	counts, err := n.Events.CountTypesForEntities(ctx, ownerID, ids, since)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, nil
	}
	return &CategorySuggestion{Category: counts[0].EventType, Confidence: 90}, nil
}

// SuggestDestination returns the destination category entity most recently
// used by past events with a matching title, for auto-categorization.
func (n *Normalizer) SuggestDestination(ctx context.Context, ownerID, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", nil
	}
	events, err := n.Events.ListByTitle(ctx, ownerID, title)
	if err != nil {
		return "", err
	}
	for _, e := range events {
		if e.ToEntityID != nil && *e.ToEntityID != "" {
			return *e.ToEntityID, nil
		}
	}
	return "", nil
}

// IsAnomaly reports whether an amount is far outside the entity's expense
// history. No history means no baseline, so never an anomaly.
func (n *Normalizer) IsAnomaly(ctx context.Context, ownerID, entityID string, amount decimal.Decimal) (bool, error) {
	avg, count, err := n.Events.AverageAbsAmount(ctx, ownerID, entityID, repository.EventExpense)
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	mult := n.AnomalyMultiplier
	if mult <= 0 {
		mult = 3
	}
	threshold := avg.Mul(decimal.NewFromFloat(mult))
	return amount.Abs().GreaterThan(threshold), nil
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
