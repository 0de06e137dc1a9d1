package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docfinder/internal/ai"
	"github.com/xxxsen/docfinder/internal/config"
	"github.com/xxxsen/docfinder/internal/db"
	"github.com/xxxsen/docfinder/internal/embedcache"
	"github.com/xxxsen/docfinder/internal/embedding"
	"github.com/xxxsen/docfinder/internal/filestore"
	"github.com/xxxsen/docfinder/internal/index"
	"github.com/xxxsen/docfinder/internal/pkg/dbutil"
	"github.com/xxxsen/docfinder/internal/repo"
	"github.com/xxxsen/docfinder/internal/service"
)

type app struct {
	cfg       *config.Config
	db        *sql.DB
	cacheRepo *repo.EmbeddingCacheRepo
	index     index.VectorIndex
	rag       *service.RAGService
	store     filestore.Store
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newApp loads the config and wires the pipeline. mutate, when set, runs before anything is built.
func newApp(configPath string, mutate func(cfg *config.Config)) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded",
		zap.String("config", configPath),
		zap.String("index", cfg.Index.Type),
		zap.String("embedding", cfg.Embedding.Provider+"/"+cfg.Embedding.Model),
	)

	a := &app{cfg: cfg}
	if err := a.openIndex(); err != nil {
		a.Close()
		return nil, err
	}
	embedder, err := a.buildEmbedder()
	if err != nil {
		a.Close()
		return nil, err
	}
	generator, lister, err := buildGenerator(cfg.Generation)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.FileStore.Type != "" {
		if a.store, err = filestore.New(cfg.FileStore); err != nil {
			a.Close()
			return nil, fmt.Errorf("init file store: %w", err)
		}
	}
	a.rag = service.NewRAGService(embedding.New(embedder), a.index, generator, lister, service.Options{
		ChunkSize:       cfg.Retrieval.ChunkSize,
		ChunkOverlap:    cfg.Retrieval.ChunkOverlap,
		TopK:            cfg.Retrieval.TopK,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		BatchSize:       cfg.Retrieval.BatchSize,
		Concurrency:     cfg.Retrieval.Concurrency,
	})
	return a, nil
}

func (a *app) openIndex() error {
	metric, err := index.ParseMetric(a.cfg.Index.Metric)
	if err != nil {
		return err
	}
	var dialect dbutil.Dialect
	switch a.cfg.Index.Type {
	case "sqlite":
		dialect = dbutil.DialectSQLite
		a.db, err = db.OpenSQLite(a.cfg.Index.Path)
	case "postgres":
		dialect = dbutil.DialectPostgres
		a.db, err = db.Open(a.cfg.Database)
	}
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if a.db != nil {
		if err := db.ApplyMigrations(a.db, dialect); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		a.cacheRepo = repo.NewEmbeddingCacheRepo(a.db, dialect)
	}
	a.index, err = index.New(a.cfg.Index.Type, index.Args{
		Collection: a.cfg.Index.Collection,
		Metric:     metric,
		DB:         a.db,
	})
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	return nil
}

// buildEmbedder stacks retry, the persistent cache and the in-memory cache around the provider.
func (a *app) buildEmbedder() (ai.IEmbedder, error) {
	cfg := a.cfg.Embedding
	provider, err := ai.NewEmbedProvider(cfg.Provider, cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	e := ai.NewEmbedder(provider, cfg.Model)
	e = ai.WrapRetryToEmbedder(e, ai.RetryConfig{
		Attempts: cfg.RetryCount,
		Timeout:  time.Duration(cfg.Timeout) * time.Second,
	})
	if cfg.Cache.Persistent && a.cacheRepo != nil {
		e = embedcache.WrapDBCacheToEmbedder(e, a.cacheRepo)
	}
	return embedcache.WrapLruCacheToEmbedder(e, cfg.Cache.Size, time.Duration(cfg.Cache.TTL)*time.Second), nil
}

func buildGenerator(cfg config.GenerationConfig) (ai.IGenerator, ai.IModelLister, error) {
	params := ai.GenerateParams{
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  *cfg.Temperature,
		TopP:         *cfg.TopP,
		MaxTokens:    cfg.MaxTokens,
	}
	retry := ai.RetryConfig{
		Attempts: cfg.RetryCount,
		Timeout:  time.Duration(cfg.Timeout) * time.Second,
	}
	generators := make([]ai.GeneratorEntry, 0, len(cfg.Providers))
	listers := make([]ai.ModelListerEntry, 0, len(cfg.Providers))
	for _, item := range cfg.Providers {
		provider, err := ai.NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("init generator %s: %w", item.Name, err)
		}
		gen := ai.WrapRetryToGenerator(ai.NewGenerator(provider, item.Model, params), item.Name, retry)
		generators = append(generators, ai.GeneratorEntry{Name: item.Name, Generator: gen})
		if lister, ok := provider.(ai.IModelLister); ok {
			listers = append(listers, ai.ModelListerEntry{Name: item.Name, Lister: lister})
		}
	}
	return ai.NewGroupGenerator(generators), ai.NewGroupModelLister(listers), nil
}

func (a *app) Close() {
	var errs []error
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logutil.GetLogger(context.Background()).Warn("close app", zap.Error(err))
	}
}
