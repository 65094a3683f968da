package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mverde/ledgerpilot/internal/database/repository"
)

// ConfirmationService drives pending confirmations through their lifecycle.
// Confirming executes the staged draft; discarding just transitions status.
// Rows are never deleted, so the audit trail survives either way.
type ConfirmationService struct {
	Confirmations *repository.ConfirmationRepo
	Executor      *Executor
	Logger        *slog.Logger
}

// Confirm executes a pending confirmation's staged actions and marks it
// confirmed. Already-processed confirmations are rejected.
func (c *ConfirmationService) Confirm(ctx context.Context, ownerID, id string) ([]ActionResult, error) {
	pc, err := c.get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	var draft Draft
	if err := json.Unmarshal([]byte(pc.Draft), &draft); err != nil {
		return nil, fmt.Errorf("stored draft unparsable: %w", err)
	}
	results, err := c.Executor.ExecuteActions(ctx, ownerID, draft.Actions)
	if err != nil {
		return nil, err
	}
	if err := c.Confirmations.UpdateStatus(ctx, id, repository.ConfirmationConfirmed); err != nil {
		return nil, err
	}
	c.logger().Info("confirmation executed", "owner", ownerID, "confirmation", id, "actions", len(results))
	return results, nil
}

// Discard marks a pending confirmation discarded without executing anything.
func (c *ConfirmationService) Discard(ctx context.Context, ownerID, id string) error {
	if _, err := c.get(ctx, ownerID, id); err != nil {
		return err
	}
	return c.Confirmations.UpdateStatus(ctx, id, repository.ConfirmationDiscarded)
}

// BulkOutcome reports one confirmation's result within a bulk operation.
type BulkOutcome struct {
	ID      string         `json:"id"`
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Results []ActionResult `json:"results,omitempty"`
}

// ConfirmBulk confirms each id independently. A failing confirmation is
// reported in its outcome and never blocks the rest; each id commits (or
// doesn't) on its own.
func (c *ConfirmationService) ConfirmBulk(ctx context.Context, ownerID string, ids []string) []BulkOutcome {
	out := make([]BulkOutcome, 0, len(ids))
	for _, id := range ids {
		results, err := c.Confirm(ctx, ownerID, id)
		if err != nil {
			out = append(out, BulkOutcome{ID: id, Message: err.Error()})
			continue
		}
		out = append(out, BulkOutcome{ID: id, Success: true, Results: results})
	}
	return out
}

// DiscardBulk discards several pending confirmations in one statement.
func (c *ConfirmationService) DiscardBulk(ctx context.Context, ownerID string, ids []string) error {
	return c.Confirmations.BulkUpdateStatus(ctx, ownerID, ids, repository.ConfirmationDiscarded)
}

func (c *ConfirmationService) get(ctx context.Context, ownerID, id string) (*repository.PendingConfirmation, error) {
	pc, err := c.Confirmations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if pc == nil || pc.OwnerID != ownerID {
		return nil, fmt.Errorf("confirmation %s not found", id)
	}
	if pc.Status != repository.ConfirmationPending {
		return nil, fmt.Errorf("confirmation %s is already %s", id, pc.Status)
	}
	return pc, nil
}

func (c *ConfirmationService) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
