package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

type staticLister struct {
	ids []string
	err error
}

func (s staticLister) ListModels(ctx context.Context) ([]string, error) {
	return s.ids, s.err
}

func TestGroupGeneratorFallsBack(t *testing.T) {
	failing := funcGenerator(func(ctx context.Context, prompt string, override Override) (string, error) {
		return "", appErr.New(appErr.ErrUnavailable, "down")
	})
	working := funcGenerator(func(ctx context.Context, prompt string, override Override) (string, error) {
		return "second:" + override.Model, nil
	})
	gen := NewGroupGenerator([]GeneratorEntry{{Name: "a", Generator: failing}, {Name: "b", Generator: working}})
	out, err := gen.Generate(context.Background(), "q", Override{Model: "qwen2"})
	require.NoError(t, err)
	require.Equal(t, "second:qwen2", out)

	allFail := NewGroupGenerator([]GeneratorEntry{{Name: "a", Generator: failing}, {Name: "c", Generator: failing}})
	_, err = allFail.Generate(context.Background(), "q", Override{})
	require.ErrorIs(t, err, appErr.ErrUnavailable)

	require.Nil(t, NewGroupGenerator(nil))
}

func TestGroupModelLister(t *testing.T) {
	lister := NewGroupModelLister([]ModelListerEntry{
		{Name: "a", Lister: staticLister{ids: []string{"m1", "m2"}}},
		{Name: "b", Lister: staticLister{err: errors.New("down")}},
		{Name: "c", Lister: staticLister{ids: []string{"m2", "m3"}}},
	})
	ids, err := lister.ListModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2", "m3"}, ids)

	broken := NewGroupModelLister([]ModelListerEntry{{Name: "b", Lister: staticLister{err: errors.New("down")}}})
	_, err = broken.ListModels(context.Background())
	require.Error(t, err)
}
