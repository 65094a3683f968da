package repository

import (
	"context"
	"database/sql"
	"strings"
)

// ConfirmationRepo handles pending confirmations.
type ConfirmationRepo struct {
	db DBTX
}

func NewConfirmationRepo(db DBTX) *ConfirmationRepo { return &ConfirmationRepo{db: db} }

const confirmationColumns = `id, owner_id, source_kind, source_id, raw_payload, draft, confidence, needs_review, review_reason, status, processed_at, created_at`

func (r *ConfirmationRepo) Insert(ctx context.Context, c PendingConfirmation) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO pending_confirmations(id, owner_id, source_kind, source_id, raw_payload, draft, confidence, needs_review, review_reason, status, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, c.ID, c.OwnerID, c.SourceKind, c.SourceID, c.RawPayload, c.Draft,
		c.Confidence, c.NeedsReview, c.ReviewReason, c.Status)
	return err
}

// ExistsSourceID reports whether a confirmation for this dedup key is already
// stored, regardless of status. Re-scanning never duplicates.
func (r *ConfirmationRepo) ExistsSourceID(ctx context.Context, sourceID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_confirmations WHERE source_id = ?`, sourceID).Scan(&n)
	return n > 0, err
}

func (r *ConfirmationRepo) Get(ctx context.Context, id string) (*PendingConfirmation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+confirmationColumns+` FROM pending_confirmations WHERE id = ?`, id)
	c, err := scanConfirmation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListPending returns the owner's pending confirmations, highest confidence
// first so review screens surface the easy confirmations on top.
func (r *ConfirmationRepo) ListPending(ctx context.Context, ownerID string) ([]PendingConfirmation, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+confirmationColumns+` FROM pending_confirmations
	WHERE owner_id = ? AND status = ?
	ORDER BY confidence DESC, created_at ASC`, ownerID, ConfirmationPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingConfirmation
	for rows.Next() {
		c, err := scanConfirmation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a confirmation and stamps processed_at. Rows are
// never deleted, only status-transitioned.
func (r *ConfirmationRepo) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE pending_confirmations SET status = ?, processed_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}

// BulkUpdateStatus transitions many confirmations at once (bulk review).
func (r *ConfirmationRepo) BulkUpdateStatus(ctx context.Context, ownerID string, ids []string, status string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{status, ownerID}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx, `
	UPDATE pending_confirmations SET status = ?, processed_at = CURRENT_TIMESTAMP
	WHERE owner_id = ? AND id IN (`+placeholders+`)`, args...)
	return err
}

func scanConfirmation(row scanner) (PendingConfirmation, error) {
	var c PendingConfirmation
	var reason sql.NullString
	var processed sql.NullTime
	if err := row.Scan(&c.ID, &c.OwnerID, &c.SourceKind, &c.SourceID, &c.RawPayload, &c.Draft,
		&c.Confidence, &c.NeedsReview, &reason, &c.Status, &processed, &c.CreatedAt); err != nil {
		return PendingConfirmation{}, err
	}
	if reason.Valid {
		c.ReviewReason = &reason.String
	}
	if processed.Valid {
		c.ProcessedAt = &processed.Time
	}
	return c, nil
}
