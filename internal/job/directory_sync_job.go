package job

import (
	"context"
	"errors"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docfinder/internal/loader"
	"github.com/xxxsen/docfinder/internal/model"
	"github.com/xxxsen/docfinder/internal/service"
)

type Ingester interface {
	Ingest(ctx context.Context, docs []model.Document, chunkSize, overlap int) (*service.IngestReport, error)
}

// DirectorySyncJob re-ingests a fixed set of directories with the configured chunking.
type DirectorySyncJob struct {
	ingester Ingester
	dirs     []string
}

func NewDirectorySyncJob(ingester Ingester, dirs []string) *DirectorySyncJob {
	return &DirectorySyncJob{ingester: ingester, dirs: dirs}
}

func (j *DirectorySyncJob) Name() string {
	return "directory_sync"
}

func (j *DirectorySyncJob) Run(ctx context.Context) error {
	if j.ingester == nil || len(j.dirs) == 0 {
		return nil
	}
	docs, loadErr := loader.LoadPaths(ctx, j.dirs)
	if len(docs) == 0 {
		return loadErr
	}
	report, err := j.ingester.Ingest(ctx, docs, 0, 0)
	if err != nil {
		return errors.Join(loadErr, err)
	}
	logutil.GetLogger(ctx).Info("directories synced",
		zap.Strings("dirs", j.dirs),
		zap.Int("documents", len(report.Documents)),
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", report.Failed),
	)
	return errors.Join(loadErr, report.Err())
}
