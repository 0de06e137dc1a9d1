package ai

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

type RetryConfig struct {
	Attempts        int
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c RetryConfig) normalized() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 200 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 5 * time.Second
	}
	return c
}

// retryCall runs fn up to cfg.Attempts times, each attempt bounded by cfg.Timeout.
// Bad input, auth failures and caller cancellation are returned immediately.
func retryCall[T any](ctx context.Context, cfg RetryConfig, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(cfg.InitialInterval),
		backoff.WithMaxInterval(cfg.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	), uint64(cfg.Attempts-1)), ctx)

	attempt := 0
	op := func() (T, error) {
		attempt++
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		defer cancel()
		res, err := fn(callCtx)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return res, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, appErr.ErrTimeout) {
			err = appErr.Wrap(appErr.ErrTimeout, err, name)
		}
		if !retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}
	notify := func(err error, wait time.Duration) {
		logutil.GetLogger(ctx).Warn("call failed, retrying",
			zap.String("call", name),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotifyWithData(op, policy, notify)
}

func retryable(err error) bool {
	switch {
	case appErr.IsInvalid(err),
		errors.Is(err, appErr.ErrUnauthorized),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

type retryEmbedder struct {
	next IEmbedder
	cfg  RetryConfig
}

func WrapRetryToEmbedder(e IEmbedder, cfg RetryConfig) IEmbedder {
	if e == nil {
		return nil
	}
	return &retryEmbedder{next: e, cfg: cfg}
}

func (r *retryEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	return retryCall(ctx, r.cfg, "embed:"+r.next.ModelName(), func(ctx context.Context) ([][]float32, error) {
		return r.next.Embed(ctx, texts, taskType)
	})
}

func (r *retryEmbedder) ModelName() string {
	return r.next.ModelName()
}

type retryGenerator struct {
	next IGenerator
	name string
	cfg  RetryConfig
}

func WrapRetryToGenerator(g IGenerator, name string, cfg RetryConfig) IGenerator {
	if g == nil {
		return nil
	}
	return &retryGenerator{next: g, name: name, cfg: cfg}
}

func (r *retryGenerator) Generate(ctx context.Context, prompt string, override Override) (string, error) {
	return retryCall(ctx, r.cfg, "generate:"+r.name, func(ctx context.Context) (string, error) {
		return r.next.Generate(ctx, prompt, override)
	})
}
