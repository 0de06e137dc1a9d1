package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docfinder/internal/ai"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

type fixedEmbedder struct {
	vecs     [][]float32
	err      error
	taskType string
}

func (f *fixedEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	f.taskType = taskType
	return f.vecs, f.err
}

func (f *fixedEmbedder) ModelName() string {
	return "fixed"
}

func TestEmbedBatch(t *testing.T) {
	e := New(&fixedEmbedder{vecs: [][]float32{{1, 0}, {0, 1}}})
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "fixed", out[1].Model)
	require.Equal(t, 2, out[1].Dim())
	require.Equal(t, "fixed", e.Model())
}

func TestEmbedQueryUsesQueryTask(t *testing.T) {
	inner := &fixedEmbedder{vecs: [][]float32{{1}}}
	_, err := New(inner).EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, ai.TaskTypeQuery, inner.taskType)

	_, err = New(inner).Embed(context.Background(), "d")
	require.NoError(t, err)
	require.Equal(t, ai.TaskTypeDocument, inner.taskType)
}

func TestEmbedFailures(t *testing.T) {
	tests := []struct {
		name  string
		inner *fixedEmbedder
		texts []string
		kind  error
	}{
		{"empty text", &fixedEmbedder{vecs: [][]float32{{1}}}, []string{"  "}, appErr.ErrInvalid},
		{"short count", &fixedEmbedder{vecs: [][]float32{{1}}}, []string{"a", "b"}, appErr.ErrEmbedding},
		{"empty vector", &fixedEmbedder{vecs: [][]float32{{}}}, []string{"a"}, appErr.ErrEmbedding},
		{"mixed dims", &fixedEmbedder{vecs: [][]float32{{1}, {1, 2}}}, []string{"a", "b"}, appErr.ErrEmbedding},
		{"backend down", &fixedEmbedder{err: appErr.New(appErr.ErrUnavailable, "down")}, []string{"a"}, appErr.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.inner).EmbedBatch(context.Background(), tt.texts)
			require.ErrorIs(t, err, tt.kind)
			require.ErrorIs(t, err, appErr.ErrEmbedding)
		})
	}
}
