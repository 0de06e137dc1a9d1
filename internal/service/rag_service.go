package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/docfinder/internal/ai"
	"github.com/xxxsen/docfinder/internal/chunker"
	"github.com/xxxsen/docfinder/internal/embedding"
	"github.com/xxxsen/docfinder/internal/index"
	"github.com/xxxsen/docfinder/internal/model"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

const promptTemplate = "Based on the following documents:\n%s\nAnswer the query: %s"

type Options struct {
	ChunkSize       int
	ChunkOverlap    int
	TopK            int
	MaxContextChars int
	BatchSize       int
	Concurrency     int
}

func (o Options) normalized() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 200
		o.ChunkOverlap = 40
	}
	if o.TopK <= 0 {
		o.TopK = 3
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 16
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// RAGService runs the retrieval pipeline: ingest into the index, retrieve, build the prompt and generate.
type RAGService struct {
	embedder  *embedding.Embedder
	index     index.VectorIndex
	generator ai.IGenerator
	lister    ai.IModelLister
	opts      Options
}

// NewRAGService wires the pipeline. generator and lister may be nil.
func NewRAGService(embedder *embedding.Embedder, idx index.VectorIndex, generator ai.IGenerator, lister ai.IModelLister, opts Options) *RAGService {
	return &RAGService{
		embedder:  embedder,
		index:     idx,
		generator: generator,
		lister:    lister,
		opts:      opts.normalized(),
	}
}

func (s *RAGService) TopK() int {
	return s.opts.TopK
}

// Ingest chunks, embeds and indexes docs. A chunkSize of 0 selects the configured chunking.
// Per document and per chunk failures land in the report; an index write failure aborts the call.
// Stale chunks of a document are pruned only when every one of its chunks was indexed.
func (s *RAGService) Ingest(ctx context.Context, docs []model.Document, chunkSize, overlap int) (*IngestReport, error) {
	if chunkSize <= 0 {
		chunkSize, overlap = s.opts.ChunkSize, s.opts.ChunkOverlap
	}
	if err := chunker.Validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.Int("documents", len(docs)), zap.Int("chunk_size", chunkSize), zap.Int("overlap", overlap))
	start := time.Now()
	report := &IngestReport{Documents: make([]*DocumentReport, 0, len(docs))}
	defer report.tally()

	chunksByDoc := make([][]model.Chunk, len(docs))
	var texts []string
	for i, doc := range docs {
		dr := &DocumentReport{DocumentID: doc.ID, Source: doc.Source}
		report.Documents = append(report.Documents, dr)
		if strings.TrimSpace(doc.ID) == "" {
			dr.fail(appErr.New(appErr.ErrIngestion, "document id is required"))
			continue
		}
		chunks, err := chunker.Chunk(doc, chunkSize, overlap)
		if err != nil {
			dr.fail(appErr.Wrap(appErr.ErrIngestion, err, "chunk "+doc.ID))
			continue
		}
		dr.Chunks = len(chunks)
		chunksByDoc[i] = chunks
		for _, c := range chunks {
			texts = append(texts, c.Text)
		}
	}

	vectors, embedErrs := s.embedAll(ctx, texts)

	pos := 0
	for i, chunks := range chunksByDoc {
		dr := report.Documents[i]
		if dr.err != nil {
			continue
		}
		keep := make([]string, 0, len(chunks))
		for _, c := range chunks {
			vec, embedErr := vectors[pos], embedErrs[pos]
			pos++
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if embedErr != nil {
				dr.failChunk(c.ID, embedErr)
				continue
			}
			if err := s.index.Insert(ctx, model.IndexEntry{Chunk: c, Embedding: vec}); err != nil {
				err = appErr.Wrap(appErr.ErrIndex, err, "insert "+c.ID)
				dr.fail(err)
				logger.Error("index insert failed, abort ingest", zap.String("chunk_id", c.ID), zap.Error(err))
				return report, err
			}
			dr.Indexed++
			keep = append(keep, c.ID)
		}
		if len(dr.Failures) > 0 {
			// a partial run must not drop entries the failed chunks would have replaced
			logger.Warn("skip prune, document has failed chunks",
				zap.String("document_id", dr.DocumentID), zap.Int("failed", len(dr.Failures)))
			continue
		}
		removed, err := s.index.DeleteByDocument(ctx, dr.DocumentID, keep)
		if err != nil {
			err = appErr.Wrap(appErr.ErrIndex, err, "prune "+dr.DocumentID)
			dr.fail(err)
			return report, err
		}
		dr.Removed = removed
	}
	report.tally()
	logger.Info("ingest finished",
		zap.Int("chunks", report.Chunks),
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", report.Failed),
		zap.Duration("cost", time.Since(start)),
	)
	return report, nil
}

// embedAll embeds texts in batches on a bounded pool. A failed batch is retried item by item,
// so the returned errors are per text.
func (s *RAGService) embedAll(ctx context.Context, texts []string) ([]model.Embedding, []error) {
	vectors := make([]model.Embedding, len(texts))
	errs := make([]error, len(texts))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for start := 0; start < len(texts); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			s.embedBatch(ctx, texts, vectors, errs, start, end)
			return nil
		})
	}
	_ = g.Wait()
	return vectors, errs
}

func (s *RAGService) embedBatch(ctx context.Context, texts []string, vectors []model.Embedding, errs []error, start, end int) {
	out, err := s.embedder.EmbedBatch(ctx, texts[start:end])
	if err == nil {
		copy(vectors[start:end], out)
		return
	}
	if end-start == 1 || ctx.Err() != nil {
		for i := start; i < end; i++ {
			errs[i] = err
		}
		return
	}
	logutil.GetLogger(ctx).Warn("batch embedding failed, fall back to single items",
		zap.Int("offset", start), zap.Int("size", end-start), zap.Error(err))
	for i := start; i < end; i++ {
		vectors[i], errs[i] = s.embedder.Embed(ctx, texts[i])
	}
}

// Retrieve returns the k chunks most similar to query. No hits is not an error.
func (s *RAGService) Retrieve(ctx context.Context, query string, k int) (*model.RetrievalResult, error) {
	emb, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.index.Search(ctx, emb, k)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrRetrieval, err, "search index")
	}
	return &model.RetrievalResult{Query: query, Hits: hits}, nil
}

// BuildPrompt joins hit texts, most relevant first, into the prompt template.
// When the context exceeds MaxContextChars runes the lowest ranked hits are dropped.
// Without hits the prompt is the bare query.
func (s *RAGService) BuildPrompt(query string, hits []model.SearchHit) *model.PromptContext {
	kept := hits
	content := joinHits(kept)
	for len(kept) > 0 && s.opts.MaxContextChars > 0 && utf8.RuneCountInString(content) > s.opts.MaxContextChars {
		kept = kept[:len(kept)-1]
		content = joinHits(kept)
	}
	pc := &model.PromptContext{
		Query:   query,
		Hits:    kept,
		Dropped: len(hits) - len(kept),
		Context: content,
		Prompt:  query,
	}
	if len(kept) > 0 {
		pc.Prompt = fmt.Sprintf(promptTemplate, content, query)
	}
	return pc
}

func joinHits(hits []model.SearchHit) string {
	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		parts = append(parts, hit.Chunk.Text)
	}
	return strings.Join(parts, "\n")
}

// Query retrieves context for text, builds the prompt and asks the generator.
func (s *RAGService) Query(ctx context.Context, text string, override ai.Override) (*model.PromptContext, string, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("query", text))
	if err := override.Validate(); err != nil {
		return nil, "", appErr.Wrap(appErr.ErrGeneration, err, "override")
	}
	res, err := s.Retrieve(ctx, text, s.opts.TopK)
	if err != nil {
		logger.Error("retrieve failed", zap.Error(err))
		return nil, "", err
	}
	pc := s.BuildPrompt(text, res.Hits)
	if len(pc.Hits) == 0 {
		logger.Info("no context retrieved, prompt with bare query")
	}
	if s.generator == nil {
		return pc, "", appErr.Wrap(appErr.ErrGeneration, appErr.New(appErr.ErrUnavailable, "generator not configured"), "")
	}
	answer, err := s.generator.Generate(ctx, pc.Prompt, override)
	if err != nil {
		logger.Error("generate failed", zap.Error(err))
		return pc, "", appErr.Wrap(appErr.ErrGeneration, err, "generate")
	}
	logger.Debug("query answered", zap.Int("hits", len(pc.Hits)), zap.Int("dropped", pc.Dropped))
	return pc, answer, nil
}

// DeleteDocument removes every chunk of documentID and returns how many were removed.
func (s *RAGService) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	if strings.TrimSpace(documentID) == "" {
		return 0, appErr.New(appErr.ErrInvalid, "document id is required")
	}
	n, err := s.index.DeleteByDocument(ctx, documentID, nil)
	if err != nil {
		return 0, appErr.Wrap(appErr.ErrIndex, err, "delete "+documentID)
	}
	return n, nil
}

func (s *RAGService) Collection(ctx context.Context) (model.CollectionInfo, error) {
	info, err := s.index.Info(ctx)
	if err != nil {
		return model.CollectionInfo{}, appErr.Wrap(appErr.ErrIndex, err, "collection info")
	}
	return info, nil
}

func (s *RAGService) ListModels(ctx context.Context) ([]string, error) {
	if s.lister == nil {
		return nil, appErr.New(appErr.ErrUnavailable, "model listing not supported by configured providers")
	}
	return s.lister.ListModels(ctx)
}
