package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docfinder/internal/ai"
)

func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if l == nil || l.next == nil {
		return nil, nil
	}
	modelName := l.next.ModelName()
	lookup := func(_ context.Context, text string) ([]float32, bool) {
		key, _, _ := buildCacheKey(modelName, taskType, text)
		cached, ok := l.cache.Get(key)
		if !ok {
			return nil, false
		}
		return cloneEmbedding(cached), true
	}
	store := func(_ context.Context, text string, vec []float32) {
		key, _, _ := buildCacheKey(modelName, taskType, text)
		l.cache.Add(key, cloneEmbedding(vec))
	}
	res, hits, err := resolveBatch(ctx, l.next, texts, taskType, lookup, store)
	if hits > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)",
			zap.String("task_type", taskType),
			zap.Int("hits", hits),
			zap.Int("total", len(texts)),
		)
	}
	return res, err
}

func (l *lruEmbedder) ModelName() string {
	if l == nil || l.next == nil {
		return ""
	}
	return l.next.ModelName()
}
