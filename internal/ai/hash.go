package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashDim = 512

type hashConfig struct {
	Dim int `json:"dim"`
}

// hashEmbedProvider is an offline embedder: token counts hashed into dim buckets, l2 normalised.
// Texts sharing words score high under cosine, which is enough for keyword-ish retrieval and tests.
type hashEmbedProvider struct {
	dim int
}

func NewHashEmbedProvider(dim int) IEmbedProvider {
	if dim <= 0 {
		dim = defaultHashDim
	}
	return &hashEmbedProvider{dim: dim}
}

func (p *hashEmbedProvider) Name() string {
	return "hash"
}

func (p *hashEmbedProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, p.vector(text))
	}
	return out, nil
}

func (p *hashEmbedProvider) vector(text string) []float32 {
	vec := make([]float32, p.dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%uint32(p.dim)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func init() {
	RegisterEmbed("hash", func(args interface{}) (IEmbedProvider, error) {
		cfg := &hashConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		return NewHashEmbedProvider(cfg.Dim), nil
	})
}
