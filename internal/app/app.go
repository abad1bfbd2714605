// Package app wires configuration into stores, lease, AI provider and services.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/adbroll/matcher/config"
	"github.com/adbroll/matcher/internal/domain"
	"github.com/adbroll/matcher/internal/infrastructure/ai"
	"github.com/adbroll/matcher/internal/infrastructure/lease"
	"github.com/adbroll/matcher/internal/infrastructure/memory"
	"github.com/adbroll/matcher/internal/infrastructure/postgres"
	"github.com/adbroll/matcher/internal/usecase"
	"go.uber.org/zap"
)

// Application holds the wired services and the resources they own
type Application struct {
	Products domain.ProductRepository
	Videos   domain.VideoRepository
	Jobs     domain.JobRepository

	Matcher  *usecase.Matcher
	JobQueue *usecase.JobService
	Importer *usecase.ImportService

	closers []io.Closer
	logger  *zap.Logger
}

// Build connects every configured backend and assembles the services.
// On error, resources opened so far are closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Application{logger: logger}

	if err := a.initStores(cfg); err != nil {
		a.Close()
		return nil, err
	}

	opts, err := a.matcherOptions(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	scoring := usecase.DefaultScoringConfig().WithExtraStopWords(cfg.Matching.ExtraStopWords...)
	scoring.AcceptanceThreshold = cfg.Matching.Threshold
	scoring.CategoryBonus = cfg.Matching.CategoryBonus

	a.Matcher = usecase.NewMatcher(
		a.Products,
		a.Videos,
		usecase.NewScorer(scoring),
		logger.Named("matcher"),
		usecase.MatcherConfig{
			DefaultBatchSize: cfg.Matching.BatchSize,
			LeaseKey:         cfg.Lease.Key,
			LeaseTTL:         cfg.Lease.TTL,
		},
		opts...,
	)
	a.JobQueue = usecase.NewJobService(a.Jobs, a.Matcher, logger.Named("jobs"), usecase.JobServiceConfig{
		MaxAttempts:  cfg.Jobs.MaxAttempts,
		RetryBackoff: cfg.Jobs.RetryBackoff,
		StaleTimeout: cfg.Jobs.StaleTimeout,
	})
	a.Importer = usecase.NewImportService(a.Products, logger.Named("import"))

	return a, nil
}

func (a *Application) initStores(cfg *config.Config) error {
	switch cfg.Store.Type {
	case "postgres":
		db, err := postgres.Open(postgres.Options{
			DSN:             cfg.Store.DSN,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
			LogLevel:        cfg.Store.LogLevel,
			AutoMigrate:     cfg.Store.AutoMigrate,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open postgres store: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get postgres handle: %w", err)
		}
		a.closers = append(a.closers, sqlDB)

		a.Products = postgres.NewProductRepository(db)
		a.Videos = postgres.NewVideoRepository(db)
		a.Jobs = postgres.NewJobRepository(db)
	default:
		a.logger.Warn("Using in-memory store; data is lost on restart")
		a.Products = memory.NewProductRepository()
		a.Videos = memory.NewVideoRepository()
		a.Jobs = memory.NewJobRepository()
	}
	return nil
}

func (a *Application) matcherOptions(ctx context.Context, cfg *config.Config) ([]usecase.MatcherOption, error) {
	var opts []usecase.MatcherOption

	if cfg.Lease.Enabled {
		switch cfg.Lease.Backend {
		case "redis":
			rdb, err := lease.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to redis: %w", err)
			}
			a.closers = append(a.closers, rdb)
			opts = append(opts, usecase.WithLocker(lease.NewRedisLocker(rdb, "")))
		default:
			opts = append(opts, usecase.WithLocker(lease.NewMemoryLocker()))
		}
		a.logger.Info("Batch lease enabled",
			zap.String("backend", cfg.Lease.Backend),
			zap.String("key", cfg.Lease.Key),
			zap.Duration("ttl", cfg.Lease.TTL))
	} else {
		a.logger.Warn("Batch lease disabled; concurrent batches may race")
	}

	completer, err := a.newCompleter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if completer != nil {
		opts = append(opts, usecase.WithAIMatcher(usecase.NewAIMatcher(completer, usecase.AIConfig{
			ChunkSize:   cfg.AI.ChunkSize,
			MaxProducts: cfg.AI.MaxProducts,
			Timeout:     cfg.AI.Timeout,
			Confidence:  cfg.AI.Confidence,
		}, a.logger.Named("ai_fallback"))))
	}

	return opts, nil
}

// newCompleter returns nil when the AI fallback is disabled
func (a *Application) newCompleter(ctx context.Context, cfg *config.Config) (domain.Completer, error) {
	switch cfg.AI.Provider {
	case "gateway":
		if cfg.AI.APIKey == "" {
			a.logger.Warn("AI gateway configured without API key; smart mode will fall back to heuristics")
		}
		a.logger.Info("AI fallback enabled", zap.String("provider", "gateway"), zap.String("base_url", cfg.AI.BaseURL))
		return ai.NewGatewayClient(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model,
			cfg.AI.RequestsPerMinute, cfg.AI.Timeout, a.logger), nil
	case "gemini":
		client, err := ai.NewGeminiClient(ctx, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.RequestsPerMinute)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		a.logger.Info("AI fallback enabled", zap.String("provider", "gemini"))
		return client, nil
	default:
		a.logger.Info("AI fallback disabled; smart runs behave like plain batches")
		return nil, nil
	}
}

// Close releases every resource in reverse opening order
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
