package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docfinder/internal/handler"
	"github.com/xxxsen/docfinder/internal/job"
	"github.com/xxxsen/docfinder/internal/middleware"
	"github.com/xxxsen/docfinder/internal/schedule"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the http api and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(cmd.Context(), a)
		},
	}
}

func runServer(parent context.Context, a *app) error {
	cfg := a.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	logutil.GetLogger(parent).Info(
		"starting server",
		zap.Int("port", cfg.Server.Port),
		zap.String("index", cfg.Index.Type),
		zap.String("file_store", cfg.FileStore.Type),
		zap.Bool("auth", cfg.Server.JWTSecret != ""),
	)

	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(a.rag, a.store, cfg.Server.UploadMaxBytes),
		Search:    handler.NewSearchHandler(a.rag),
		JWTSecret: []byte(cfg.Server.JWTSecret),
		RateLimit: time.Duration(cfg.Server.RateLimitMs) * time.Millisecond,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.Server.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler, err := buildScheduler(a)
	if err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func buildScheduler(a *app) (*schedule.CronScheduler, error) {
	cfg := a.cfg.Schedule
	scheduler := schedule.NewCronScheduler()
	if cfg.CacheCleanup.Spec != "" && a.cfg.Embedding.Cache.Persistent && a.cacheRepo != nil {
		cleanup := job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.CacheCleanup.MaxAgeDays)
		if err := scheduler.AddJob(cleanup, cfg.CacheCleanup.Spec); err != nil {
			return nil, err
		}
	}
	if cfg.Sync.Spec != "" {
		if err := scheduler.AddJob(job.NewDirectorySyncJob(a.rag, cfg.Sync.Dirs), cfg.Sync.Spec); err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}
