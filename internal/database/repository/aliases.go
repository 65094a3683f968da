package repository

import (
	"context"
)

// AliasRepo handles payee aliases.
type AliasRepo struct {
	db DBTX
}

func NewAliasRepo(db DBTX) *AliasRepo { return &AliasRepo{db: db} }

// Upsert inserts or replaces the owner's alias mapping.
func (r *AliasRepo) Upsert(ctx context.Context, a PayeeAlias) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO payee_aliases(id, owner_id, alias, normalized_name, category, created_at)
	VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(owner_id, alias) DO UPDATE SET normalized_name = excluded.normalized_name, category = excluded.category;
	`, a.ID, a.OwnerID, a.Alias, a.NormalizedName, a.Category)
	return err
}

func (r *AliasRepo) List(ctx context.Context, ownerID string) ([]PayeeAlias, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, owner_id, alias, normalized_name, category, created_at
	FROM payee_aliases WHERE owner_id = ? ORDER BY created_at ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PayeeAlias
	for rows.Next() {
		a, err := scanAlias(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AliasRepo) Delete(ctx context.Context, ownerID, alias string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM payee_aliases WHERE owner_id = ? AND alias = ?`, ownerID, alias)
	return err
}

func scanAlias(row scanner) (PayeeAlias, error) {
	var a PayeeAlias
	var category *string
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Alias, &a.NormalizedName, &category, &a.CreatedAt); err != nil {
		return PayeeAlias{}, err
	}
	a.Category = category
	return a, nil
}
