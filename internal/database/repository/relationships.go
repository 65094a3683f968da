package repository

import (
	"context"
)

// RelationshipRepo handles entity relationships.
type RelationshipRepo struct {
	db DBTX
}

func NewRelationshipRepo(db DBTX) *RelationshipRepo { return &RelationshipRepo{db: db} }

const relationshipColumns = `id, parent_entity_id, child_entity_id, relationship_type, metadata, created_at`

func (r *RelationshipRepo) Insert(ctx context.Context, rel EntityRelationship) error {
	meta, err := marshalMetadata(rel.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO entity_relationships(id, parent_entity_id, child_entity_id, relationship_type, metadata, created_at)
	VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, rel.ID, rel.ParentEntityID, rel.ChildEntityID, rel.Type, meta)
	return err
}

// Exists reports whether the identical (parent, child, type) edge is present.
func (r *RelationshipRepo) Exists(ctx context.Context, parentID, childID, relType string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM entity_relationships
	WHERE parent_entity_id = ? AND child_entity_id = ? AND relationship_type = ?`,
		parentID, childID, relType).Scan(&n)
	return n > 0, err
}

func (r *RelationshipRepo) Delete(ctx context.Context, parentID, childID, relType string) error {
	_, err := r.db.ExecContext(ctx, `
	DELETE FROM entity_relationships
	WHERE parent_entity_id = ? AND child_entity_id = ? AND relationship_type = ?`,
		parentID, childID, relType)
	return err
}

func (r *RelationshipRepo) ListByParent(ctx context.Context, parentID string) ([]EntityRelationship, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+relationshipColumns+` FROM entity_relationships
	WHERE parent_entity_id = ? ORDER BY created_at ASC`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EntityRelationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func scanRelationship(row scanner) (EntityRelationship, error) {
	var rel EntityRelationship
	var meta string
	if err := row.Scan(&rel.ID, &rel.ParentEntityID, &rel.ChildEntityID, &rel.Type, &meta, &rel.CreatedAt); err != nil {
		return EntityRelationship{}, err
	}
	m, err := unmarshalMetadata(meta)
	if err != nil {
		return EntityRelationship{}, err
	}
	rel.Metadata = m
	return rel, nil
}
