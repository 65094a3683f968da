package database

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/mverde/ledgerpilot/internal/database/repository"
)

// SeedDefaults ensures baseline category entities exist for a new owner.
// It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB, ownerID string) error {
	repo := repository.NewEntityRepo(db)

	defaults := []struct {
		name     string
		category string
	}{
		{"Salary", repository.CategoryIncomeCategory},
		{"Groceries", repository.CategoryExpenseCategory},
		{"Transport", repository.CategoryExpenseCategory},
		{"Dining", repository.CategoryExpenseCategory},
		{"Utilities", repository.CategoryExpenseCategory},
		{"Subscriptions", repository.CategoryExpenseCategory},
		{"Health", repository.CategoryHealth},
	}
	for _, d := range defaults {
		existing, err := repo.FindExact(ctx, ownerID, d.name, d.category)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("seed:"+ownerID+":"+d.category+":"+d.name)).String()
		e := repository.Entity{
			ID:       id,
			OwnerID:  ownerID,
			Name:     d.name,
			Category: d.category,
			Status:   repository.EntityStatusActive,
			Metadata: repository.Metadata{"seed": true},
		}
		if err := repo.Insert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
