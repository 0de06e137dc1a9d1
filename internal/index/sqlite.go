package index

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docfinder/internal/model"
	"github.com/xxxsen/docfinder/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

func init() {
	Register("sqlite", func(args Args) (VectorIndex, error) {
		return NewSQLite(args.DB, args.Collection, args.Metric)
	})
}

// sqliteIndex keeps vectors as json text and scores them in process.
type sqliteIndex struct {
	*sqlCollection
}

func NewSQLite(db *sql.DB, collection string, metric Metric) (VectorIndex, error) {
	c, err := openSQLCollection(db, dbutil.DialectSQLite, collection, metric)
	if err != nil {
		return nil, err
	}
	c.encode = func(vec []float32) (interface{}, error) {
		raw, err := json.Marshal(vec)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	}
	c.seqExpr = "(SELECT COALESCE(MAX(seq), 0) + 1 FROM index_entries WHERE collection = ?)"
	return &sqliteIndex{sqlCollection: c}, nil
}

func (s *sqliteIndex) Search(ctx context.Context, query model.Embedding, k int) ([]model.SearchHit, error) {
	ok, err := s.searchable(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []model.SearchHit{}, nil
	}
	fields := append(append([]string{}, chunkColumns...), "seq", "embedding")
	sqlStr, args, err := builder.BuildSelect("index_entries", map[string]interface{}{"collection": s.name}, fields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = s.finalize(sqlStr, args)
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrIndex, err, "search")
	}
	defer rows.Close()
	var items []candidate
	for rows.Next() {
		var (
			seq int64
			raw string
			vec []float32
		)
		chunk, err := scanChunk(rows, &seq, &raw)
		if err != nil {
			return nil, appErr.Wrap(appErr.ErrIndex, err, "scan entry")
		}
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, appErr.Wrap(appErr.ErrIndex, err, "decode vector of "+chunk.ID)
		}
		items = append(items, candidate{
			hit: model.SearchHit{Chunk: chunk, Score: Score(s.metric, query.Vector, vec)},
			seq: seq,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrap(appErr.ErrIndex, err, "search")
	}
	return topK(items, k), nil
}
