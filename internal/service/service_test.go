package service

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mverde/ledgerpilot/internal/database"
	"github.com/mverde/ledgerpilot/internal/database/repository"
)

const testOwner = "owner-1"

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type testRepos struct {
	entities      *repository.EntityRepo
	events        *repository.EventRepo
	rels          *repository.RelationshipRepo
	aliases       *repository.AliasRepo
	confirmations *repository.ConfirmationRepo
}

func newTestRepos(db *sql.DB) testRepos {
	return testRepos{
		entities:      repository.NewEntityRepo(db),
		events:        repository.NewEventRepo(db),
		rels:          repository.NewRelationshipRepo(db),
		aliases:       repository.NewAliasRepo(db),
		confirmations: repository.NewConfirmationRepo(db),
	}
}
