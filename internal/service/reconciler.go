package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mverde/ledgerpilot/internal/database/repository"
)

// Reconciler prevents duplicate ingestion: a new signal matching an existing
// event by amount and date window is "already recorded", never an error.
type Reconciler struct {
	Events *repository.EventRepo

	// WindowDays widens the date window on each side. Tuned heuristic,
	// configurable; default 1.
	WindowDays int
}

// FindMatch searches the owner's events for exact amount equality with an
// occurrence date inside the inclusive ±window. A non-empty entityID
// restricts the search to that entity. The first match in creation order is
// returned for determinism; nil means no duplicate.
func (r *Reconciler) FindMatch(ctx context.Context, ownerID string, amount decimal.Decimal, date time.Time, entityID string) (*repository.LifeEvent, error) {
	window := r.WindowDays
	if window <= 0 {
		window = 1
	}
	from := date.AddDate(0, 0, -window)
	to := date.AddDate(0, 0, window)

	events, err := r.Events.FindInWindow(ctx, ownerID, from, to, entityID)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].Amount.Equal(amount) {
			return &events[i], nil
		}
	}
	return nil, nil
}
