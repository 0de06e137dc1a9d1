package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/docfinder/internal/ai"
	"github.com/xxxsen/docfinder/internal/model"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

// Embedder turns text into model.Embedding values tagged with the backend model name.
type Embedder struct {
	next ai.IEmbedder
}

func New(next ai.IEmbedder) *Embedder {
	return &Embedder{next: next}
}

func (e *Embedder) Model() string {
	return e.next.ModelName()
}

func (e *Embedder) Embed(ctx context.Context, text string) (model.Embedding, error) {
	return e.one(ctx, text, ai.TaskTypeDocument)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) (model.Embedding, error) {
	return e.one(ctx, text, ai.TaskTypeQuery)
}

// EmbedBatch embeds texts in one backend call. Any failure fails the whole batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]model.Embedding, error) {
	return e.batch(ctx, texts, ai.TaskTypeDocument)
}

func (e *Embedder) one(ctx context.Context, text, taskType string) (model.Embedding, error) {
	out, err := e.batch(ctx, []string{text}, taskType)
	if err != nil {
		return model.Embedding{}, err
	}
	return out[0], nil
}

func (e *Embedder) batch(ctx context.Context, texts []string, taskType string) ([]model.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, appErr.Wrap(appErr.ErrEmbedding, appErr.New(appErr.ErrInvalid, "empty text"), fmt.Sprintf("item %d", i))
		}
	}
	vecs, err := e.next.Embed(ctx, texts, taskType)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrEmbedding, err, "embed "+e.next.ModelName())
	}
	if len(vecs) != len(texts) {
		return nil, appErr.New(appErr.ErrEmbedding, fmt.Sprintf("got %d vectors for %d texts", len(vecs), len(texts)))
	}
	dim := len(vecs[0])
	out := make([]model.Embedding, len(vecs))
	for i, vec := range vecs {
		if len(vec) == 0 {
			return nil, appErr.New(appErr.ErrEmbedding, fmt.Sprintf("empty vector for item %d", i))
		}
		if len(vec) != dim {
			return nil, appErr.New(appErr.ErrEmbedding, fmt.Sprintf("mixed dimensions in batch: %d and %d", dim, len(vec)))
		}
		out[i] = model.Embedding{Model: e.next.ModelName(), Vector: vec}
	}
	return out, nil
}
