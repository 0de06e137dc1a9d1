package index

import (
	"context"
	"sync"

	"github.com/xxxsen/docfinder/internal/model"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

func init() {
	Register("memory", func(args Args) (VectorIndex, error) {
		return NewMemory(args.Collection, args.Metric), nil
	})
}

type memoryEntry struct {
	chunk  model.Chunk
	vector []float32
	seq    int64
}

type memoryIndex struct {
	mu      sync.RWMutex
	name    string
	metric  Metric
	model   string
	dim     int
	seq     int64
	entries map[string]*memoryEntry
}

// NewMemory returns a process-local index. Its content is lost on exit.
func NewMemory(name string, metric Metric) VectorIndex {
	if metric == "" {
		metric = MetricCosine
	}
	return &memoryIndex{name: name, metric: metric, entries: make(map[string]*memoryEntry)}
}

func (m *memoryIndex) Insert(ctx context.Context, entry model.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateEntry(entry); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkShape(m.model, m.dim, entry.Embedding); err != nil {
		return err
	}
	if m.dim == 0 {
		m.model, m.dim = entry.Embedding.Model, entry.Embedding.Dim()
	}
	vec := make([]float32, len(entry.Embedding.Vector))
	copy(vec, entry.Embedding.Vector)
	if old, ok := m.entries[entry.Chunk.ID]; ok {
		old.chunk = entry.Chunk
		old.vector = vec
		return nil
	}
	m.seq++
	m.entries[entry.Chunk.ID] = &memoryEntry{chunk: entry.Chunk, vector: vec, seq: m.seq}
	return nil
}

func (m *memoryIndex) Search(ctx context.Context, query model.Embedding, k int) ([]model.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.entries) == 0 {
		return []model.SearchHit{}, nil
	}
	if err := checkShape(m.model, m.dim, query); err != nil {
		return nil, err
	}
	items := make([]candidate, 0, len(m.entries))
	for _, e := range m.entries {
		items = append(items, candidate{
			hit: model.SearchHit{Chunk: e.chunk, Score: Score(m.metric, query.Vector, e.vector)},
			seq: e.seq,
		})
	}
	return topK(items, k), nil
}

func (m *memoryIndex) Delete(ctx context.Context, chunkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[chunkID]; !ok {
		return appErr.New(appErr.ErrNotFound, "chunk "+chunkID)
	}
	delete(m.entries, chunkID)
	return nil
}

func (m *memoryIndex) DeleteByDocument(ctx context.Context, documentID string, keep []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.entries {
		if e.chunk.DocumentID != documentID {
			continue
		}
		if _, ok := keepSet[id]; ok {
			continue
		}
		delete(m.entries, id)
		removed++
	}
	return removed, nil
}

func (m *memoryIndex) Info(ctx context.Context) (model.CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.CollectionInfo{
		Name:   m.name,
		Model:  m.model,
		Dim:    m.dim,
		Metric: string(m.metric),
		Count:  len(m.entries),
	}, nil
}

func (m *memoryIndex) Close() error {
	return nil
}
