package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xxxsen/docfinder/internal/ai"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

func buildCacheKey(modelName, taskType, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + taskType + ":" + contentHash, contentHash, modelName
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

type lookupFunc func(ctx context.Context, text string) ([]float32, bool)

type storeFunc func(ctx context.Context, text string, vec []float32)

// resolveBatch answers texts from lookup and sends the distinct misses downstream in one call.
// Fresh vectors reach store only after the whole downstream call succeeded.
func resolveBatch(ctx context.Context, next ai.IEmbedder, texts []string, taskType string, lookup lookupFunc, store storeFunc) ([][]float32, int, error) {
	out := make([][]float32, len(texts))
	pending := make(map[string][]int)
	var misses []string
	hits := 0
	for i, text := range texts {
		if vec, ok := lookup(ctx, text); ok {
			out[i] = vec
			hits++
			continue
		}
		if _, seen := pending[text]; !seen {
			misses = append(misses, text)
		}
		pending[text] = append(pending[text], i)
	}
	if len(misses) == 0 {
		return out, hits, nil
	}
	res, err := next.Embed(ctx, misses, taskType)
	if err != nil {
		return nil, hits, err
	}
	if len(res) != len(misses) {
		return nil, hits, appErr.New(appErr.ErrEmbedding, fmt.Sprintf("backend returned %d vectors for %d texts", len(res), len(misses)))
	}
	for j, text := range misses {
		for _, i := range pending[text] {
			out[i] = cloneEmbedding(res[j])
		}
	}
	for j, text := range misses {
		if len(res[j]) == 0 {
			continue
		}
		store(ctx, text, res[j])
	}
	return out, hits, nil
}
