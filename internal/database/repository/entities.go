package repository

import (
	"context"
	"database/sql"
	"strings"
)

// EntityRepo handles entities.
type EntityRepo struct {
	db DBTX
}

func NewEntityRepo(db DBTX) *EntityRepo { return &EntityRepo{db: db} }

const entityColumns = `id, owner_id, name, category, status, metadata, deleted_at, created_at, updated_at`

func (r *EntityRepo) Insert(ctx context.Context, e Entity) error {
	meta, err := marshalMetadata(e.Metadata)
	if err != nil {
		return err
	}
	if e.Status == "" {
		e.Status = EntityStatusActive
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO entities(id, owner_id, name, category, status, metadata, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, e.ID, e.OwnerID, e.Name, e.Category, e.Status, meta)
	return err
}

func (r *EntityRepo) Get(ctx context.Context, id string) (*Entity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ? AND deleted_at IS NULL`, id)
	e, err := scanEntity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// ListActive returns the owner's ACTIVE, non-deleted entities in creation order.
func (r *EntityRepo) ListActive(ctx context.Context, ownerID string) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+entityColumns+` FROM entities
	WHERE owner_id = ? AND status = ? AND deleted_at IS NULL
	ORDER BY created_at ASC, id ASC`, ownerID, EntityStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntities(rows)
}

// FindByName does a case-insensitive substring search among the owner's
// ACTIVE entities and returns the first match in creation order.
func (r *EntityRepo) FindByName(ctx context.Context, ownerID, fragment string) (*Entity, error) {
	ents, err := r.ListActive(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(fragment))
	for i := range ents {
		if strings.Contains(strings.ToLower(ents[i].Name), needle) {
			return &ents[i], nil
		}
	}
	return nil, nil
}

// FindExact matches on (name, category) for the upsert path.
func (r *EntityRepo) FindExact(ctx context.Context, ownerID, name, category string) (*Entity, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT `+entityColumns+` FROM entities
	WHERE owner_id = ? AND name = ? COLLATE NOCASE AND category = ? AND deleted_at IS NULL
	ORDER BY created_at ASC LIMIT 1`, ownerID, name, category)
	e, err := scanEntity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// FirstOfCategory returns the owner's first ACTIVE entity of a category.
func (r *EntityRepo) FirstOfCategory(ctx context.Context, ownerID, category string) (*Entity, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT `+entityColumns+` FROM entities
	WHERE owner_id = ? AND category = ? AND status = ? AND deleted_at IS NULL
	ORDER BY created_at ASC LIMIT 1`, ownerID, category, EntityStatusActive)
	e, err := scanEntity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// MergeMetadata lays patch on top of the stored metadata bag. Unrelated keys
// survive; the bag is never replaced wholesale.
func (r *EntityRepo) MergeMetadata(ctx context.Context, id string, patch Metadata) error {
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
	_, err = r.db.ExecContext(ctx, `UPDATE entities SET metadata = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, merged, id)
	return err
}

func (r *EntityRepo) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE entities SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}

// SoftDelete marks the entity deleted; rows are never physically removed.
func (r *EntityRepo) SoftDelete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE entities SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

func collectEntities(rows *sql.Rows) ([]Entity, error) {
	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntity(row scanner) (Entity, error) {
	var e Entity
	var meta string
	var deleted sql.NullTime
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Name, &e.Category, &e.Status, &meta, &deleted, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Entity{}, err
	}
	if deleted.Valid {
		e.DeletedAt = &deleted.Time
	}
	m, err := unmarshalMetadata(meta)
	if err != nil {
		return Entity{}, err
	}
	e.Metadata = m
	return e, nil
}
