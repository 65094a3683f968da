package server

import (
	"time"

	"github.com/mverde/ledgerpilot/internal/database/repository"
)

// Response views keep wire shapes stable independent of storage models.

type entityView struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Category string         `json:"category"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

func entityViews(ents []repository.Entity) []entityView {
	out := make([]entityView, 0, len(ents))
	for _, e := range ents {
		out = append(out, entityView{
			ID: e.ID, Name: e.Name, Category: e.Category,
			Status: e.Status, Metadata: e.Metadata,
		})
	}
	return out
}

type eventView struct {
	ID         string         `json:"id"`
	EntityID   *string        `json:"entity_id"`
	ToEntityID *string        `json:"to_entity_id"`
	Title      string         `json:"title"`
	Type       string         `json:"type"`
	Amount     string         `json:"amount"`
	Date       string         `json:"date"`
	Status     string         `json:"status"`
	Metadata   map[string]any `json:"metadata"`
}

func eventViews(events []repository.LifeEvent) []eventView {
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{
			ID: e.ID, EntityID: e.EntityID, ToEntityID: e.ToEntityID,
			Title: e.Title, Type: e.EventType,
			Amount: e.Amount.StringFixed(2),
			Date:   e.OccurredOn.Format(repository.DateOnly),
			Status: e.Status, Metadata: e.Metadata,
		})
	}
	return out
}

type confirmationView struct {
	ID           string    `json:"id"`
	SourceKind   string    `json:"source_kind"`
	Confidence   int       `json:"confidence"`
	NeedsReview  bool      `json:"needs_review"`
	ReviewReason *string   `json:"review_reason,omitempty"`
	Draft        string    `json:"draft"`
	CreatedAt    time.Time `json:"created_at"`
}

func confirmationViews(list []repository.PendingConfirmation) []confirmationView {
	out := make([]confirmationView, 0, len(list))
	for _, c := range list {
		out = append(out, confirmationView{
			ID: c.ID, SourceKind: c.SourceKind, Confidence: c.Confidence,
			NeedsReview: c.NeedsReview, ReviewReason: c.ReviewReason,
			Draft: c.Draft, CreatedAt: c.CreatedAt,
		})
	}
	return out
}
