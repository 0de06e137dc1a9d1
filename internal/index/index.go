package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/docfinder/internal/model"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

// VectorIndex stores chunk embeddings for one collection and answers top-k similarity queries.
// A collection holds vectors of a single (model, dim) pair, fixed by the first insert.
type VectorIndex interface {
	Insert(ctx context.Context, entry model.IndexEntry) error
	Search(ctx context.Context, query model.Embedding, k int) ([]model.SearchHit, error)
	Delete(ctx context.Context, chunkID string) error
	// DeleteByDocument removes the document's chunks whose id is not in keep.
	DeleteByDocument(ctx context.Context, documentID string, keep []string) (int, error)
	Info(ctx context.Context) (model.CollectionInfo, error)
	Close() error
}

type Args struct {
	Collection string
	Metric     Metric
	DB         *sql.DB
}

type Factory func(args Args) (VectorIndex, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(typ string, args Args) (VectorIndex, error) {
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" {
		return nil, fmt.Errorf("index.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported index type: %s", typ)
	}
	if strings.TrimSpace(args.Collection) == "" {
		return nil, appErr.New(appErr.ErrInvalid, "collection name is required")
	}
	if args.Metric == "" {
		args.Metric = MetricCosine
	}
	if _, err := ParseMetric(string(args.Metric)); err != nil {
		return nil, err
	}
	return factory(args)
}

func validateEntry(entry model.IndexEntry) error {
	if strings.TrimSpace(entry.Chunk.ID) == "" {
		return appErr.New(appErr.ErrInvalid, "chunk id is required")
	}
	if entry.Embedding.Dim() == 0 {
		return appErr.New(appErr.ErrInvalid, "empty embedding for chunk "+entry.Chunk.ID)
	}
	return nil
}

// checkShape compares an embedding against the collection's fixed model and dim.
// A collection with dim 0 has not been fixed yet.
func checkShape(modelName string, dim int, e model.Embedding) error {
	if dim == 0 {
		return nil
	}
	if e.Dim() != dim {
		return appErr.New(appErr.ErrDimensionMismatch, fmt.Sprintf("collection dim %d, got %d", dim, e.Dim()))
	}
	if e.Model != modelName {
		return appErr.New(appErr.ErrDimensionMismatch, fmt.Sprintf("collection model %q, got %q", modelName, e.Model))
	}
	return nil
}
