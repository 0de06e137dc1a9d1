package ai

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type ModelListerEntry struct {
	Name   string
	Lister IModelLister
}

type groupGenerator struct {
	items []GeneratorEntry
}

// NewGroupGenerator tries each generator in order and returns the first success.
func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	if len(items) == 0 {
		return nil
	}
	if len(items) == 1 {
		return items[0].Generator
	}
	return &groupGenerator{items: items}
}

func (g *groupGenerator) Generate(ctx context.Context, prompt string, override Override) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Generator == nil {
			continue
		}
		res, err := item.Generator.Generate(ctx, prompt, override)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logutil.GetLogger(ctx).Warn("generator failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return "", appErr.New(appErr.ErrUnavailable, "generator not configured")
	}
	return "", lastErr
}

type groupModelLister struct {
	items []ModelListerEntry
}

// NewGroupModelLister merges model ids of every lister, skipping duplicates.
func NewGroupModelLister(items []ModelListerEntry) IModelLister {
	if len(items) == 0 {
		return nil
	}
	return &groupModelLister{items: items}
}

func (g *groupModelLister) ListModels(ctx context.Context) ([]string, error) {
	var (
		lastErr error
		ok      bool
		seen    = map[string]struct{}{}
		out     []string
	)
	for _, item := range g.items {
		ids, err := item.Lister.ListModels(ctx)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", item.Name, err)
			logutil.GetLogger(ctx).Warn("list models failed", zap.String("name", item.Name), zap.Error(err))
			continue
		}
		ok = true
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	if !ok && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}
