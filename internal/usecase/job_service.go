package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/adbroll/matcher/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobServiceConfig holds configuration for the match job queue
type JobServiceConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	// StaleTimeout is how long a job may stay processing before it is requeued
	StaleTimeout time.Duration
}

// JobService enqueues matcher runs and works them off the queue
type JobService struct {
	jobs         domain.JobRepository
	matcher      *Matcher
	logger       *zap.Logger
	now          func() time.Time
	maxAttempts  int
	retryBackoff time.Duration
	staleTimeout time.Duration
}

// NewJobService creates a new job service with dependencies
func NewJobService(jobs domain.JobRepository, matcher *Matcher, logger *zap.Logger, config JobServiceConfig) *JobService {
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := config.RetryBackoff
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	staleTimeout := config.StaleTimeout
	if staleTimeout <= 0 {
		staleTimeout = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &JobService{
		jobs:         jobs,
		matcher:      matcher,
		logger:       logger,
		now:          time.Now,
		maxAttempts:  maxAttempts,
		retryBackoff: backoff,
		staleTimeout: staleTimeout,
	}
}

// Enqueue stores a pending job for the worker
func (s *JobService) Enqueue(ctx context.Context, kind domain.JobKind, params domain.JobParams) (*domain.MatchJob, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidRequest, kind)
	}
	if params.BatchSize < 0 || params.Offset < 0 || params.Threshold < 0 || params.Threshold > 1 {
		return nil, fmt.Errorf("%w: invalid job parameters", domain.ErrInvalidRequest)
	}

	now := s.now()
	job := &domain.MatchJob{
		ID:          uuid.NewString(),
		Kind:        kind,
		Status:      domain.JobStatusPending,
		Params:      params,
		MaxAttempts: s.maxAttempts,
		RunAfter:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("%w: enqueue job: %v", domain.ErrStoreUnavailable, err)
	}

	metrics.JobsTotal.WithLabelValues(string(kind), string(domain.JobStatusPending)).Inc()
	s.logger.Info("Match job enqueued", zap.String("job_id", job.ID), zap.String("kind", string(kind)))
	return job, nil
}

// Get returns a job by ID
func (s *JobService) Get(ctx context.Context, id string) (*domain.MatchJob, error) {
	return s.jobs.Get(ctx, id)
}

// ProcessNext claims the next due job and runs it. It returns nil when the queue is empty.
// A batch job that leaves candidates behind enqueues a follow-up job for the next window.
func (s *JobService) ProcessNext(ctx context.Context) (*domain.MatchJob, error) {
	now := s.now()
	requeued, err := s.jobs.RequeueStale(ctx, now.Add(-s.staleTimeout), now)
	if err != nil {
		return nil, fmt.Errorf("%w: requeue stale jobs: %v", domain.ErrStoreUnavailable, err)
	}
	if requeued > 0 {
		s.logger.Warn("Stale match jobs requeued",
			zap.Int64("jobs", requeued),
			zap.Duration("stale_timeout", s.staleTimeout))
	}

	job, err := s.jobs.ClaimNext(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%w: claim job: %v", domain.ErrStoreUnavailable, err)
	}
	if job == nil {
		return nil, nil
	}

	s.logger.Info("Match job claimed",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempt", job.Attempts))

	result, next, runErr := s.run(ctx, job)
	if runErr == nil && next != nil {
		followUp, err := s.Enqueue(ctx, job.Kind, *next)
		if err != nil {
			runErr = fmt.Errorf("enqueue follow-up job: %w", err)
		} else {
			result["nextJobId"] = followUp.ID
		}
	}

	finished := s.now()
	job.UpdatedAt = finished
	if runErr == nil {
		job.Status = domain.JobStatusCompleted
		job.Result = result
		job.LastError = ""
		job.FinishedAt = &finished
	} else {
		job.LastError = runErr.Error()
		if job.Attempts >= job.MaxAttempts {
			job.Status = domain.JobStatusFailed
			job.FinishedAt = &finished
		} else {
			job.Status = domain.JobStatusPending
			job.RunAfter = finished.Add(s.retryBackoff * time.Duration(job.Attempts))
		}
		s.logger.Warn("Match job attempt failed",
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempts),
			zap.String("status", string(job.Status)),
			zap.Error(runErr))
	}

	// The outcome is written even when ctx was cancelled during the run
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.jobs.Update(writeCtx, job); err != nil {
		return job, fmt.Errorf("%w: update job: %v", domain.ErrStoreUnavailable, err)
	}

	metrics.JobsTotal.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
	return job, nil
}

// Drain processes due jobs until the queue is empty or limit jobs ran (limit <= 0 means no limit)
func (s *JobService) Drain(ctx context.Context, limit int) (int, error) {
	processed := 0
	for limit <= 0 || processed < limit {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		job, err := s.ProcessNext(ctx)
		if err != nil {
			return processed, err
		}
		if job == nil {
			break
		}
		processed++
	}
	return processed, nil
}

// run executes the matcher operation a job describes. next is set when a
// batch run stopped short of the end and another window should follow.
func (s *JobService) run(ctx context.Context, job *domain.MatchJob) (result map[string]any, next *domain.JobParams, err error) {
	switch job.Kind {
	case domain.JobKindBatch, domain.JobKindSmart:
		summary, err := s.matcher.MatchBatch(ctx, domain.BatchRequest{
			Offset:    job.Params.Offset,
			BatchSize: job.Params.BatchSize,
			Threshold: job.Params.Threshold,
			UseAI:     job.Kind == domain.JobKindSmart,
		})
		if err != nil {
			return nil, nil, err
		}
		if !summary.Complete && summary.NextOffset > job.Params.Offset {
			next = &domain.JobParams{
				BatchSize: job.Params.BatchSize,
				Offset:    summary.NextOffset,
				Threshold: job.Params.Threshold,
			}
		}
		result, err = toResultMap(summary)
		return result, next, err
	case domain.JobKindRebuild:
		summary, err := s.matcher.Rebuild(ctx, domain.RebuildRequest{
			BatchSize: job.Params.BatchSize,
			Threshold: job.Params.Threshold,
		})
		if err != nil {
			return nil, nil, err
		}
		result, err = toResultMap(summary)
		return result, nil, err
	default:
		return nil, nil, fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidRequest, job.Kind)
	}
}

// toResultMap serializes to JSON and back so stored results have the same shape in every store
func toResultMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}
