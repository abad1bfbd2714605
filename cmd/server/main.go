package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/adbroll/matcher/config"
	"github.com/adbroll/matcher/internal/app"
	httpDelivery "github.com/adbroll/matcher/internal/delivery/http"
	"github.com/adbroll/matcher/internal/logging"
	"github.com/adbroll/matcher/internal/scheduler"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Server.Environment,
		Service:     "adbroll-matcher",
		Version:     httpDelivery.Version,
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Adbroll matcher",
		zap.String("version", httpDelivery.Version),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Type),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.Int("batch_size", cfg.Matching.BatchSize),
		zap.Float64("threshold", cfg.Matching.Threshold))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(application.JobQueue, scheduler.Config{
			WorkerInterval: cfg.Scheduler.WorkerInterval,
			BatchCron:      cfg.Scheduler.BatchCron,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize scheduler", zap.Error(err))
		}
		sched.Start()
	}

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(application.Matcher, application.JobQueue, application.Importer, logger)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		logger.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("Scheduler did not stop in time", zap.Error(err))
		}
	}

	logger.Info("Server stopped")
}
