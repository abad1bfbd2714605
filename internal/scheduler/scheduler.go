// Package scheduler runs the match job worker and periodic batch enqueues on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// JobRunner is the part of the job service the scheduler drives
type JobRunner interface {
	Drain(ctx context.Context, limit int) (int, error)
	Enqueue(ctx context.Context, kind domain.JobKind, params domain.JobParams) (*domain.MatchJob, error)
}

// Config holds the cron specs
type Config struct {
	WorkerInterval string
	BatchCron      string
	// DrainLimit caps how many jobs one worker tick runs (0 = until the queue is empty)
	DrainLimit int
	// TickTimeout bounds a single worker tick
	TickTimeout time.Duration
}

// Scheduler owns the cron instance
type Scheduler struct {
	cron   *cron.Cron
	jobs   JobRunner
	logger *zap.Logger
	config Config
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a scheduler and registers its entries. Nothing runs until Start.
func New(jobs JobRunner, config Config, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.WorkerInterval == "" {
		config.WorkerInterval = "@every 10s"
	}
	if config.TickTimeout <= 0 {
		config.TickTimeout = 30 * time.Minute
	}
	logger = logger.Named("scheduler")

	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		jobs:   jobs,
		logger: logger,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := s.cron.AddFunc(config.WorkerInterval, s.RunWorker); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid worker interval %q: %w", config.WorkerInterval, err)
	}

	if config.BatchCron != "" {
		if _, err := s.cron.AddFunc(config.BatchCron, s.EnqueueBatch); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid batch cron %q: %w", config.BatchCron, err)
		}
	}

	return s, nil
}

// Start runs the cron loop in its own goroutine
func (s *Scheduler) Start() {
	s.logger.Info("Scheduler started",
		zap.String("worker_interval", s.config.WorkerInterval),
		zap.String("batch_cron", s.config.BatchCron),
		zap.Int("entries", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop stops scheduling and waits for running entries until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunWorker drains due match jobs once
func (s *Scheduler) RunWorker() {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.TickTimeout)
	defer cancel()

	n, err := s.jobs.Drain(ctx, s.config.DrainLimit)
	if err != nil {
		s.logger.Error("Worker tick failed", zap.Int("processed", n), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Worker tick finished", zap.Int("processed", n))
	}
}

// EnqueueBatch queues a batch job starting from the first page. The job
// enqueues follow-ups for later windows until the run is complete.
func (s *Scheduler) EnqueueBatch() {
	job, err := s.jobs.Enqueue(s.ctx, domain.JobKindBatch, domain.JobParams{})
	if err != nil {
		s.logger.Error("Failed to enqueue scheduled batch", zap.Error(err))
		return
	}
	s.logger.Info("Scheduled batch enqueued", zap.String("job_id", job.ID))
}
