package dbutil

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalize(t *testing.T) {
	query, args := Finalize(DialectPostgres, "SELECT a FROM t WHERE x = ? LIMIT ?,?", []interface{}{"v", 10, 20})
	require.Equal(t, "SELECT a FROM t WHERE x = $1 LIMIT $2 OFFSET $3", query)
	require.Equal(t, []interface{}{"v", 20, 10}, args)

	query, _ = Finalize(DialectPostgres, "SELECT `seq` FROM `index_entries` WHERE (`collection`=?)", []interface{}{"c"})
	require.Equal(t, `SELECT "seq" FROM "index_entries" WHERE ("collection"=$1)`, query)

	query, args = Finalize(DialectSQLite, "DELETE FROM t WHERE ctime < ?", []interface{}{5})
	require.Equal(t, "DELETE FROM t WHERE ctime < ?", query)
	require.Equal(t, []interface{}{5}, args)
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(&pq.Error{Code: "23505"}))
	require.False(t, IsConflict(&pq.Error{Code: "42P01"}))
	require.True(t, IsConflict(errors.New("constraint failed: UNIQUE constraint failed: index_entries.chunk_id (2067)")))
	require.False(t, IsConflict(nil))
}
