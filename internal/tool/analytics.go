package tool

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mverde/ledgerpilot/internal/database/repository"
)

// QueryEventsTool is the read-only analytics tool. The orchestrator runs it
// synchronously when the model asks about history instead of guessing.
type QueryEventsTool struct {
	Events *repository.EventRepo
	Clock  func() time.Time
}

func (t *QueryEventsTool) Name() string { return "query_events" }

func (t *QueryEventsTool) Description() string {
	return "Query past events. Use this instead of guessing whenever the user asks about spending history, totals or prior records."
}

func (t *QueryEventsTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"search":      prop("string", "Substring to match against titles and descriptions."),
		"event_type":  prop("string", "Restrict to one event type (EXPENSE, INCOME, PAYMENT, ...)."),
		"entity_id":   prop("string", "Restrict to one entity UUID."),
		"months_back": prop("number", "How many trailing months to include; default 6."),
	})
}

func (t *QueryEventsTool) ReadOnly() bool { return true }

// eventSummary is the compact record fed back to the model.
type eventSummary struct {
	Title      string `json:"title"`
	Amount     string `json:"amount"`
	OccurredOn string `json:"date"`
	EventType  string `json:"type"`
}

func (t *QueryEventsTool) Execute(ctx context.Context, ownerID string, params map[string]any) (any, error) {
	monthsBack := 6
	if v, ok := params["months_back"].(float64); ok && v > 0 {
		monthsBack = int(v)
	}
	now := time.Now
	if t.Clock != nil {
		now = t.Clock
	}
	f := repository.EventFilters{
		Since: now().UTC().AddDate(0, -monthsBack, 0),
	}
	if s, ok := params["search"].(string); ok {
		f.Search = strings.TrimSpace(s)
	}
	if s, ok := params["event_type"].(string); ok {
		f.EventType = strings.ToUpper(strings.TrimSpace(s))
	}
	if s, ok := params["entity_id"].(string); ok {
		f.EntityID = strings.TrimSpace(s)
	}

	events, err := t.Events.List(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	summaries := make([]eventSummary, 0, len(events))
	for _, e := range events {
		total = total.Add(e.Amount)
		if len(summaries) < 50 {
			summaries = append(summaries, eventSummary{
				Title:      e.Title,
				Amount:     e.Amount.StringFixed(2),
				OccurredOn: e.OccurredOn.Format(repository.DateOnly),
				EventType:  e.EventType,
			})
		}
	}
	return map[string]any{
		"count":  len(events),
		"total":  total.StringFixed(2),
		"events": summaries,
	}, nil
}
