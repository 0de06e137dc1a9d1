package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docfinder/internal/model"
	"github.com/xxxsen/docfinder/internal/pkg/dbutil"
)

// EmbeddingCacheRepo persists embeddings in the embedding_cache table.
// Postgres stores them as pgvector values, sqlite as json text.
type EmbeddingCacheRepo struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

func NewEmbeddingCacheRepo(db *sql.DB, dialect dbutil.Dialect) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db, dialect: dialect}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	where := map[string]interface{}{
		"model_name":   modelName,
		"task_type":    taskType,
		"content_hash": contentHash,
	}
	sqlStr, args, err := builder.BuildSelect("embedding_cache", where, []string{"embedding"})
	if err != nil {
		return nil, false, err
	}
	sqlStr, args = dbutil.Finalize(r.dialect, sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	if r.dialect == dbutil.DialectPostgres {
		var embedding pgvector.Vector
		if err := row.Scan(&embedding); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return embedding.Slice(), true, nil
	}
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var values []float32
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, false, err
	}
	return values, true, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	var embedding interface{} = pgvector.NewVector(item.Embedding)
	if r.dialect != dbutil.DialectPostgres {
		raw, err := json.Marshal(item.Embedding)
		if err != nil {
			return err
		}
		embedding = string(raw)
	}
	const query = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
			embedding = excluded.embedding,
			ctime = excluded.ctime
	`
	sqlStr, args := dbutil.Finalize(r.dialect, query, []interface{}{
		item.ModelName,
		item.TaskType,
		item.ContentHash,
		embedding,
		item.Ctime,
	})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := builder.BuildDelete("embedding_cache", map[string]interface{}{"ctime <": cutoff})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(r.dialect, sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
