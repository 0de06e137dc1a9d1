package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docfinder/internal/model"
	"github.com/xxxsen/docfinder/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

func init() {
	Register("postgres", func(args Args) (VectorIndex, error) {
		return NewPostgres(args.DB, args.Collection, args.Metric)
	})
}

// postgresIndex scores in sql with the pgvector distance operators.
type postgresIndex struct {
	*sqlCollection
}

func NewPostgres(db *sql.DB, collection string, metric Metric) (VectorIndex, error) {
	c, err := openSQLCollection(db, dbutil.DialectPostgres, collection, metric)
	if err != nil {
		return nil, err
	}
	c.encode = func(vec []float32) (interface{}, error) {
		return pgvector.NewVector(vec), nil
	}
	return &postgresIndex{sqlCollection: c}, nil
}

func scoreExpr(metric Metric) string {
	switch metric {
	case MetricDot:
		return "(embedding <#> ?) * -1"
	case MetricEuclidean:
		return "1 / (1 + (embedding <-> ?))"
	default:
		return "1 - (embedding <=> ?)"
	}
}

func (p *postgresIndex) Search(ctx context.Context, query model.Embedding, k int) ([]model.SearchHit, error) {
	ok, err := p.searchable(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []model.SearchHit{}, nil
	}
	stmt := fmt.Sprintf(`SELECT chunk_id, document_id, source, text, start_offset, end_offset, token_count, %s AS score
		FROM index_entries
		WHERE collection = ?
		ORDER BY score DESC, seq ASC
		LIMIT ?`, scoreExpr(p.metric))
	sqlStr, args := p.finalize(stmt, []interface{}{pgvector.NewVector(query.Vector), p.name, k})
	rows, err := p.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrIndex, err, "search")
	}
	defer rows.Close()
	hits := make([]model.SearchHit, 0, k)
	for rows.Next() {
		var score float64
		chunk, err := scanChunk(rows, &score)
		if err != nil {
			return nil, appErr.Wrap(appErr.ErrIndex, err, "scan entry")
		}
		hits = append(hits, model.SearchHit{Chunk: chunk, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrap(appErr.ErrIndex, err, "search")
	}
	return hits, nil
}
