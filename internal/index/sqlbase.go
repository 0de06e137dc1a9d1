package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docfinder/internal/model"
	"github.com/xxxsen/docfinder/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var chunkColumns = []string{"chunk_id", "document_id", "source", "text", "start_offset", "end_offset", "token_count"}

// sqlCollection holds the parts shared by the sqlite and postgres backends.
// Each backend supplies its vector encoding and the expression producing a new seq.
type sqlCollection struct {
	db      *sql.DB
	dialect dbutil.Dialect
	name    string
	metric  Metric
	mu      sync.Mutex
	encode  func(vec []float32) (interface{}, error)
	seqExpr string
}

func openSQLCollection(db *sql.DB, dialect dbutil.Dialect, name string, metric Metric) (*sqlCollection, error) {
	if db == nil {
		return nil, fmt.Errorf("%s index requires a database", dialect)
	}
	c := &sqlCollection{db: db, dialect: dialect, name: name, metric: metric}
	if err := c.ensure(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *sqlCollection) finalize(query string, args []interface{}) (string, []interface{}) {
	return dbutil.Finalize(c.dialect, query, args)
}

// ensure creates the collection row, or checks the stored metric when it already exists.
func (c *sqlCollection) ensure(ctx context.Context) error {
	query, args := c.finalize("SELECT metric FROM collections WHERE name = ?", []interface{}{c.name})
	var stored string
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		now := time.Now().Unix()
		sqlStr, args, err := builder.BuildInsert("collections", []map[string]interface{}{{
			"name":   c.name,
			"model":  "",
			"dim":    0,
			"metric": string(c.metric),
			"ctime":  now,
			"mtime":  now,
		}})
		if err != nil {
			return err
		}
		sqlStr, args = c.finalize(sqlStr, args)
		if _, err := c.db.ExecContext(ctx, sqlStr, args...); err != nil && !dbutil.IsConflict(err) {
			return appErr.Wrap(appErr.ErrIndex, err, "create collection")
		}
		return nil
	}
	if err != nil {
		return appErr.Wrap(appErr.ErrIndex, err, "load collection")
	}
	if stored != string(c.metric) {
		return appErr.New(appErr.ErrInvalid, fmt.Sprintf("collection %q uses metric %s, not %s", c.name, stored, c.metric))
	}
	return nil
}

func (c *sqlCollection) shape(ctx context.Context, q queryer, forUpdate bool) (string, int, error) {
	stmt := "SELECT model, dim FROM collections WHERE name = ?"
	if forUpdate && c.dialect == dbutil.DialectPostgres {
		stmt += " FOR UPDATE"
	}
	query, args := c.finalize(stmt, []interface{}{c.name})
	var (
		modelName string
		dim       int
	)
	if err := q.QueryRowContext(ctx, query, args...).Scan(&modelName, &dim); err != nil {
		return "", 0, appErr.Wrap(appErr.ErrIndex, err, "load collection shape")
	}
	return modelName, dim, nil
}

func (c *sqlCollection) Insert(ctx context.Context, entry model.IndexEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	vec, err := c.encode(entry.Embedding.Vector)
	if err != nil {
		return appErr.Wrap(appErr.ErrIndex, err, "encode vector")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return appErr.Wrap(appErr.ErrIndex, err, "begin insert")
	}
	defer func() {
		_ = tx.Rollback()
	}()
	modelName, dim, err := c.shape(ctx, tx, true)
	if err != nil {
		return err
	}
	if err := checkShape(modelName, dim, entry.Embedding); err != nil {
		return err
	}
	if dim == 0 {
		query, args := c.finalize("UPDATE collections SET model = ?, dim = ?, mtime = ? WHERE name = ?",
			[]interface{}{entry.Embedding.Model, entry.Embedding.Dim(), time.Now().Unix(), c.name})
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return appErr.Wrap(appErr.ErrIndex, err, "fix collection shape")
		}
	}
	chunk := entry.Chunk
	columns := "collection, chunk_id, document_id, source, text, start_offset, end_offset, token_count, embedding"
	values := "?, ?, ?, ?, ?, ?, ?, ?, ?"
	args := []interface{}{c.name, chunk.ID, chunk.DocumentID, chunk.Source, chunk.Text, chunk.Start, chunk.End, chunk.TokenCount, vec}
	if c.seqExpr != "" {
		columns += ", seq"
		values += ", " + c.seqExpr
		args = append(args, c.name)
	}
	query, args := c.finalize(fmt.Sprintf(`INSERT INTO index_entries (%s) VALUES (%s)
		ON CONFLICT (collection, chunk_id) DO UPDATE SET
			document_id = excluded.document_id,
			source = excluded.source,
			text = excluded.text,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			token_count = excluded.token_count,
			embedding = excluded.embedding`, columns, values), args)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return appErr.Wrap(appErr.ErrIndex, err, "insert "+chunk.ID)
	}
	if err := tx.Commit(); err != nil {
		return appErr.Wrap(appErr.ErrIndex, err, "commit insert")
	}
	return nil
}

func (c *sqlCollection) Delete(ctx context.Context, chunkID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.deleteWhere(ctx, map[string]interface{}{"collection": c.name, "chunk_id": chunkID})
	if err != nil {
		return err
	}
	if n == 0 {
		return appErr.New(appErr.ErrNotFound, "chunk "+chunkID)
	}
	return nil
}

func (c *sqlCollection) DeleteByDocument(ctx context.Context, documentID string, keep []string) (int, error) {
	where := map[string]interface{}{"collection": c.name, "document_id": documentID}
	if len(keep) > 0 {
		where["chunk_id not in"] = keep
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.deleteWhere(ctx, where)
	return int(n), err
}

func (c *sqlCollection) deleteWhere(ctx context.Context, where map[string]interface{}) (int64, error) {
	sqlStr, args, err := builder.BuildDelete("index_entries", where)
	if err != nil {
		return 0, err
	}
	sqlStr, args = c.finalize(sqlStr, args)
	res, err := c.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, appErr.Wrap(appErr.ErrIndex, err, "delete entries")
	}
	return res.RowsAffected()
}

func (c *sqlCollection) count(ctx context.Context) (int, error) {
	sqlStr, args, err := builder.BuildSelect("index_entries", map[string]interface{}{"collection": c.name}, []string{"COUNT(1)"})
	if err != nil {
		return 0, err
	}
	sqlStr, args = c.finalize(sqlStr, args)
	var n int
	if err := c.db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, appErr.Wrap(appErr.ErrIndex, err, "count entries")
	}
	return n, nil
}

func (c *sqlCollection) Info(ctx context.Context) (model.CollectionInfo, error) {
	modelName, dim, err := c.shape(ctx, c.db, false)
	if err != nil {
		return model.CollectionInfo{}, err
	}
	n, err := c.count(ctx)
	if err != nil {
		return model.CollectionInfo{}, err
	}
	return model.CollectionInfo{Name: c.name, Model: modelName, Dim: dim, Metric: string(c.metric), Count: n}, nil
}

// searchable reports whether a query may run, checking it against the collection shape.
func (c *sqlCollection) searchable(ctx context.Context, query model.Embedding, k int) (bool, error) {
	if k <= 0 {
		return false, nil
	}
	modelName, dim, err := c.shape(ctx, c.db, false)
	if err != nil {
		return false, err
	}
	if dim == 0 {
		return false, nil
	}
	if err := checkShape(modelName, dim, query); err != nil {
		return false, err
	}
	return true, nil
}

func (c *sqlCollection) Close() error {
	return nil
}

func scanChunk(rows *sql.Rows, extra ...interface{}) (model.Chunk, error) {
	var chunk model.Chunk
	dest := append([]interface{}{
		&chunk.ID, &chunk.DocumentID, &chunk.Source, &chunk.Text,
		&chunk.Start, &chunk.End, &chunk.TokenCount,
	}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return model.Chunk{}, err
	}
	return chunk, nil
}
