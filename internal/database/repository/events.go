package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventRepo handles life events.
type EventRepo struct {
	db DBTX
}

func NewEventRepo(db DBTX) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, owner_id, entity_id, to_entity_id, title, description, event_type, amount, occurred_on, status, metadata, created_at, updated_at`

func (r *EventRepo) Insert(ctx context.Context, e LifeEvent) error {
	meta, err := marshalMetadata(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO life_events(id, owner_id, entity_id, to_entity_id, title, description, event_type, amount, occurred_on, status, metadata, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, e.ID, e.OwnerID, e.EntityID, e.ToEntityID, e.Title, e.Description, e.EventType,
		e.Amount.String(), e.OccurredOn.Format(DateOnly), e.Status, meta)
	return err
}

func (r *EventRepo) Get(ctx context.Context, id string) (*LifeEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM life_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *EventRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM life_events WHERE id = ?`, id)
	return err
}

// EventFilters defines list filters.
type EventFilters struct {
	EntityID   string
	ToEntityID string
	EventType  string
	Status     string
	Since      time.Time
	Until      time.Time
	Search     string
}

func (r *EventRepo) List(ctx context.Context, ownerID string, f EventFilters) ([]LifeEvent, error) {
	where := []string{"owner_id = ?"}
	args := []any{ownerID}

	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.ToEntityID != "" {
		where = append(where, "to_entity_id = ?")
		args = append(args, f.ToEntityID)
	}
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.EventType)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		where = append(where, "occurred_on >= ?")
		args = append(args, f.Since.Format(DateOnly))
	}
	if !f.Until.IsZero() {
		where = append(where, "occurred_on <= ?")
		args = append(args, f.Until.Format(DateOnly))
	}
	if f.Search != "" {
		where = append(where, "(title LIKE ? OR description LIKE ?)")
		args = append(args, "%"+f.Search+"%", "%"+f.Search+"%")
	}

	query := `SELECT ` + eventColumns + ` FROM life_events WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY occurred_on DESC, created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// FindInWindow returns events for the owner with occurrence date inside the
// inclusive [from, to] window, oldest created first so matching is stable.
func (r *EventRepo) FindInWindow(ctx context.Context, ownerID string, from, to time.Time, entityID string) ([]LifeEvent, error) {
	where := []string{"owner_id = ?", "occurred_on >= ?", "occurred_on <= ?"}
	args := []any{ownerID, from.Format(DateOnly), to.Format(DateOnly)}
	if entityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, entityID)
	}
	query := `SELECT ` + eventColumns + ` FROM life_events WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListByTitle returns the owner's events whose title contains fragment,
// newest occurrence first.
func (r *EventRepo) ListByTitle(ctx context.Context, ownerID, fragment string) ([]LifeEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+eventColumns+` FROM life_events
	WHERE owner_id = ? AND title LIKE ? COLLATE NOCASE
	ORDER BY occurred_on DESC, created_at DESC`, ownerID, "%"+fragment+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// MergeMetadata lays patch over the stored metadata. This is the quiet-save
// path used by the balance engine; it touches nothing but the bag, so it can
// never re-fire event reactions.
func (r *EventRepo) MergeMetadata(ctx context.Context, id string, patch Metadata) error {
	e, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return sql.ErrNoRows
	}
	merged, err := marshalMetadata(e.Metadata.Merge(patch))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `UPDATE life_events SET metadata = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, merged, id)
	return err
}

func (r *EventRepo) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE life_events SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}

// TypeCount pairs an event type with how often it occurred.
type TypeCount struct {
	EventType string
	Count     int
}

// CountTypesForEntities tallies event types among the given entities since a
// cutoff date, most frequent first. Used for category suggestion.
func (r *EventRepo) CountTypesForEntities(ctx context.Context, ownerID string, entityIDs []string, since time.Time) ([]TypeCount, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(entityIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{ownerID}
	for _, id := range entityIDs {
		args = append(args, id)
	}
	args = append(args, since.Format(DateOnly))
	rows, err := r.db.QueryContext(ctx, `
	SELECT event_type, COUNT(*) AS n FROM life_events
	WHERE owner_id = ? AND entity_id IN (`+placeholders+`) AND occurred_on >= ?
	GROUP BY event_type ORDER BY n DESC, event_type ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.EventType, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// AverageAbsAmount returns the mean absolute amount of an entity's events of
// the given type, and how many rows contributed.
func (r *EventRepo) AverageAbsAmount(ctx context.Context, ownerID, entityID, eventType string) (decimal.Decimal, int, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT amount FROM life_events
	WHERE owner_id = ? AND entity_id = ? AND event_type = ?`, ownerID, entityID, eventType)
	if err != nil {
		return decimal.Zero, 0, err
	}
	defer rows.Close()
	sum := decimal.Zero
	n := 0
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, 0, err
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, 0, err
		}
		sum = sum.Add(d.Abs())
		n++
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, 0, err
	}
	if n == 0 {
		return decimal.Zero, 0, nil
	}
	return sum.Div(decimal.NewFromInt(int64(n))), n, nil
}

func collectEvents(rows *sql.Rows) ([]LifeEvent, error) {
	var out []LifeEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(row scanner) (LifeEvent, error) {
	var e LifeEvent
	var entity, toEntity sql.NullString
	var amount, occurred, meta string
	if err := row.Scan(&e.ID, &e.OwnerID, &entity, &toEntity, &e.Title, &e.Description,
		&e.EventType, &amount, &occurred, &e.Status, &meta, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return LifeEvent{}, err
	}
	if entity.Valid {
		e.EntityID = &entity.String
	}
	if toEntity.Valid {
		e.ToEntityID = &toEntity.String
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return LifeEvent{}, err
	}
	e.Amount = d
	t, err := time.Parse(DateOnly, occurred)
	if err != nil {
		return LifeEvent{}, err
	}
	e.OccurredOn = t
	m, err := unmarshalMetadata(meta)
	if err != nil {
		return LifeEvent{}, err
	}
	e.Metadata = m
	return e, nil
}
