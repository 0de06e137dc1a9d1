package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docfinder/internal/ai"
	"github.com/xxxsen/docfinder/internal/model"
)

// Repo is the persistent side of the embedding cache.
type Repo interface {
	Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, cacheRepo Repo) ai.IEmbedder {
	if e == nil || cacheRepo == nil {
		return e
	}
	return &dbEmbedder{next: e, repo: cacheRepo}
}

type dbEmbedder struct {
	next ai.IEmbedder
	repo Repo
}

func (d *dbEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if d == nil || d.next == nil {
		return nil, nil
	}
	lookup := func(ctx context.Context, text string) ([]float32, bool) {
		_, contentHash, modelName := buildCacheKey(d.next.ModelName(), taskType, text)
		values, ok, err := d.repo.Get(ctx, modelName, taskType, contentHash)
		if err != nil {
			logutil.GetLogger(ctx).Warn("read embedding cache failed", zap.Error(err))
			return nil, false
		}
		return values, ok
	}
	store := func(ctx context.Context, text string, vec []float32) {
		_, contentHash, modelName := buildCacheKey(d.next.ModelName(), taskType, text)
		if err := d.repo.Save(ctx, &model.EmbeddingCache{
			ModelName:   modelName,
			TaskType:    taskType,
			ContentHash: contentHash,
			Embedding:   vec,
			Ctime:       time.Now().Unix(),
		}); err != nil {
			logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
		}
	}
	res, hits, err := resolveBatch(ctx, d.next, texts, taskType, lookup, store)
	if hits > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)",
			zap.String("task_type", taskType),
			zap.Int("hits", hits),
			zap.Int("total", len(texts)),
		)
	}
	return res, err
}

func (d *dbEmbedder) ModelName() string {
	if d == nil || d.next == nil {
		return ""
	}
	return d.next.ModelName()
}
