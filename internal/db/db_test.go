package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docfinder/internal/pkg/dbutil"
)

func TestSQLiteMigrationsAreRepeatable(t *testing.T) {
	conn, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "docfinder.db"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, ApplyMigrations(conn, dbutil.DialectSQLite))
	require.NoError(t, ApplyMigrations(conn, dbutil.DialectSQLite))

	for _, table := range []string{"collections", "index_entries", "embedding_cache"} {
		var name string
		require.NoError(t, conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name))
		require.Equal(t, table, name)
	}
}
