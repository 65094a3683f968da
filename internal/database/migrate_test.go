package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	p, err := filepath.Abs("migrations")
	require.NoError(t, err)
	return p
}

func TestRunMigrationsCreatesSchema(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunMigrations(dbPath, migrationsDir(t)))

	db, err := Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"entities", "life_events", "entity_relationships", "pending_confirmations", "payee_aliases"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}

	// Already-migrated stores are a no-op, not an error.
	require.NoError(t, RunMigrations(dbPath, migrationsDir(t)))
}

func TestRunMigrationsWithDBLeavesHandleUsable(t *testing.T) {
	t.Parallel()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrationsWithDB(db, migrationsDir(t)))

	// The serve path migrates and then queries on the same handle.
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM entities`).Scan(&n))
	require.Zero(t, n)
}
