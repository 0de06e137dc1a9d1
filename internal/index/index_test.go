package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/docfinder/internal/config"
	"github.com/xxxsen/docfinder/internal/db"
	"github.com/xxxsen/docfinder/internal/model"
	"github.com/xxxsen/docfinder/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

type indexFactory func(t *testing.T) VectorIndex

func entry(id, docID string, vec ...float32) model.IndexEntry {
	return model.IndexEntry{
		Chunk:     model.Chunk{ID: id, DocumentID: docID, Source: docID, Text: "text of " + id, End: 10, TokenCount: 3},
		Embedding: model.Embedding{Model: "m", Vector: vec},
	}
}

func query(vec ...float32) model.Embedding {
	return model.Embedding{Model: "m", Vector: vec}
}

func runIndexContract(t *testing.T, newIndex indexFactory) {
	ctx := context.Background()

	t.Run("empty collection", func(t *testing.T) {
		idx := newIndex(t)
		hits, err := idx.Search(ctx, query(1, 0, 0), 3)
		require.NoError(t, err)
		require.Empty(t, hits)
		info, err := idx.Info(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, info.Count)
		require.Equal(t, "cosine", info.Metric)
	})

	t.Run("insert then search", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Insert(ctx, entry("a:0", "a", 1, 0, 0)))
		require.NoError(t, idx.Insert(ctx, entry("b:0", "b", 0, 1, 0)))
		require.NoError(t, idx.Insert(ctx, entry("c:0", "c", 0.7, 0.7, 0)))

		hits, err := idx.Search(ctx, query(0, 1, 0), 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		require.Equal(t, "b:0", hits[0].Chunk.ID)
		require.Equal(t, "c:0", hits[1].Chunk.ID)
		require.Equal(t, "text of b:0", hits[0].Chunk.Text)
		require.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

		hits, err = idx.Search(ctx, query(0, 1, 0), 10)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		for i := 1; i < len(hits); i++ {
			require.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
		}

		hits, err = idx.Search(ctx, query(0, 1, 0), 0)
		require.NoError(t, err)
		require.Empty(t, hits)

		info, err := idx.Info(ctx)
		require.NoError(t, err)
		require.Equal(t, model.CollectionInfo{Name: info.Name, Model: "m", Dim: 3, Metric: "cosine", Count: 3}, info)
	})

	t.Run("ties and upsert keep insertion order", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Insert(ctx, entry("x:0", "x", 1, 1)))
		require.NoError(t, idx.Insert(ctx, entry("y:0", "y", 1, 1)))
		require.NoError(t, idx.Insert(ctx, entry("x:0", "x", 1, 1)))

		hits, err := idx.Search(ctx, query(1, 1), 5)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		require.Equal(t, "x:0", hits[0].Chunk.ID)
		require.Equal(t, "y:0", hits[1].Chunk.ID)

		info, err := idx.Info(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, info.Count)
	})

	t.Run("shape is fixed by first insert", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Insert(ctx, entry("a:0", "a", 1, 0)))
		err := idx.Insert(ctx, entry("b:0", "b", 1, 0, 0))
		require.ErrorIs(t, err, appErr.ErrDimensionMismatch)

		other := entry("c:0", "c", 0, 1)
		other.Embedding.Model = "other"
		require.ErrorIs(t, idx.Insert(ctx, other), appErr.ErrDimensionMismatch)

		_, err = idx.Search(ctx, query(1, 0, 0), 1)
		require.ErrorIs(t, err, appErr.ErrDimensionMismatch)

		require.ErrorIs(t, idx.Insert(ctx, entry("", "d", 1, 0)), appErr.ErrInvalid)
		require.ErrorIs(t, idx.Insert(ctx, entry("e:0", "e")), appErr.ErrInvalid)
	})

	t.Run("concurrent upserts keep a stable order", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Insert(ctx, entry("c:0", "c", 1, 1)))
		var g errgroup.Group
		for w := 0; w < 8; w++ {
			g.Go(func() error {
				for i := 0; i < 10; i++ {
					id := fmt.Sprintf("c:%d", (i+w)%10)
					if err := idx.Insert(ctx, entry(id, "c", 1, 1)); err != nil {
						return err
					}
					if _, err := idx.Search(ctx, query(1, 1), 5); err != nil {
						return err
					}
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		info, err := idx.Info(ctx)
		require.NoError(t, err)
		require.Equal(t, 10, info.Count)

		ids := func() []string {
			hits, err := idx.Search(ctx, query(1, 1), 10)
			require.NoError(t, err)
			out := make([]string, 0, len(hits))
			for _, hit := range hits {
				out = append(out, hit.Chunk.ID)
			}
			return out
		}
		first := ids()
		require.Len(t, first, 10)
		require.Equal(t, "c:0", first[0])
		require.Equal(t, first, ids())
		for i := 9; i >= 0; i-- {
			require.NoError(t, idx.Insert(ctx, entry(fmt.Sprintf("c:%d", i), "c", 1, 1)))
		}
		require.Equal(t, first, ids())
	})

	t.Run("delete", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Insert(ctx, entry("doc:0", "doc", 1, 0)))
		require.NoError(t, idx.Insert(ctx, entry("doc:10", "doc", 0, 1)))
		require.NoError(t, idx.Insert(ctx, entry("doc:20", "doc", 1, 1)))
		require.NoError(t, idx.Insert(ctx, entry("other:0", "other", 1, 1)))

		removed, err := idx.DeleteByDocument(ctx, "doc", []string{"doc:0"})
		require.NoError(t, err)
		require.Equal(t, 2, removed)

		require.NoError(t, idx.Delete(ctx, "doc:0"))
		require.ErrorIs(t, idx.Delete(ctx, "doc:0"), appErr.ErrNotFound)

		removed, err = idx.DeleteByDocument(ctx, "other", nil)
		require.NoError(t, err)
		require.Equal(t, 1, removed)

		info, err := idx.Info(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, info.Count)
	})
}

func TestMemoryIndex(t *testing.T) {
	runIndexContract(t, func(t *testing.T) VectorIndex {
		idx, err := New("memory", Args{Collection: "test"})
		require.NoError(t, err)
		return idx
	})
}

func TestMemoryIndexCopiesVectors(t *testing.T) {
	idx := NewMemory("test", MetricDot)
	e := entry("a:0", "a", 1, 0)
	require.NoError(t, idx.Insert(context.Background(), e))
	e.Embedding.Vector[0] = 0
	hits, err := idx.Search(context.Background(), query(1, 0), 1)
	require.NoError(t, err)
	require.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func openSQLite(t *testing.T, path string) VectorIndex {
	conn, err := db.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.ApplyMigrations(conn, dbutil.DialectSQLite))
	idx, err := New("sqlite", Args{Collection: "docs", DB: conn})
	require.NoError(t, err)
	return idx
}

func TestSQLiteIndex(t *testing.T) {
	runIndexContract(t, func(t *testing.T) VectorIndex {
		return openSQLite(t, filepath.Join(t.TempDir(), "index.db"))
	})
}

func TestSQLiteIndexSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	conn, err := db.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(conn, dbutil.DialectSQLite))
	idx, err := NewSQLite(conn, "docs", MetricCosine)
	require.NoError(t, err)
	require.NoError(t, idx.Insert(ctx, entry("a:0", "a", 1, 0)))
	require.NoError(t, idx.Insert(ctx, entry("b:0", "b", 1, 0)))
	require.NoError(t, idx.Close())
	require.NoError(t, conn.Close())

	reopened := openSQLite(t, path)
	info, err := reopened.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, model.CollectionInfo{Name: "docs", Model: "m", Dim: 2, Metric: "cosine", Count: 2}, info)

	require.NoError(t, reopened.Insert(ctx, entry("c:0", "c", 1, 0)))
	hits, err := reopened.Search(ctx, query(1, 0), 3)
	require.NoError(t, err)
	require.Equal(t, []string{"a:0", "b:0", "c:0"}, []string{hits[0].Chunk.ID, hits[1].Chunk.ID, hits[2].Chunk.ID})

	conn2, err := db.OpenSQLite(path)
	require.NoError(t, err)
	defer conn2.Close()
	_, err = NewSQLite(conn2, "docs", MetricDot)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestNewRejectsBadArgs(t *testing.T) {
	_, err := New("faiss", Args{Collection: "x"})
	require.Error(t, err)
	_, err = New("memory", Args{})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = New("memory", Args{Collection: "x", Metric: "hamming"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = New("sqlite", Args{Collection: "x"})
	require.Error(t, err)
}

func TestPostgresIndex(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	conn, err := db.Open(config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.ApplyMigrations(conn, dbutil.DialectPostgres))

	runIndexContract(t, func(t *testing.T) VectorIndex {
		name := fmt.Sprintf("test_%d", time.Now().UnixNano())
		idx, err := New("postgres", Args{Collection: name, DB: conn})
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = conn.Exec("DELETE FROM index_entries WHERE collection = $1", name)
			_, _ = conn.Exec("DELETE FROM collections WHERE name = $1", name)
		})
		return idx
	})
}
