package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"gorm.io/gorm"
)

// claimRetries bounds how often ClaimNext retries after losing a race to another worker
const claimRetries = 5

// JobRepository stores the work queue in the match_jobs table
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a job repository
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create stores a new job
func (r *JobRepository) Create(ctx context.Context, job *domain.MatchJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Get returns a job by ID
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.MatchJob, error) {
	var job domain.MatchJob
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimNext moves the oldest due pending job to processing with a conditional update
func (r *JobRepository) ClaimNext(ctx context.Context, now time.Time) (*domain.MatchJob, error) {
	db := r.db.WithContext(ctx)

	for i := 0; i < claimRetries; i++ {
		var job domain.MatchJob
		err := db.Where("status = ? AND run_after <= ?", string(domain.JobStatusPending), now).
			Order("created_at ASC, id ASC").
			Take(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		result := db.Model(&domain.MatchJob{}).
			Where("id = ? AND status = ?", job.ID, string(domain.JobStatusPending)).
			Updates(map[string]any{
				"status":     string(domain.JobStatusProcessing),
				"attempts":   gorm.Expr("attempts + 1"),
				"started_at": now,
				"updated_at": now,
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}

		started := now
		job.Status = domain.JobStatusProcessing
		job.Attempts++
		job.StartedAt = &started
		job.UpdatedAt = now
		return &job, nil
	}

	return nil, nil
}

// RequeueStale releases processing jobs started before staleBefore
func (r *JobRepository) RequeueStale(ctx context.Context, staleBefore, now time.Time) (int64, error) {
	var requeued int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := func() *gorm.DB {
			return tx.Model(&domain.MatchJob{}).
				Where("status = ? AND started_at < ?", string(domain.JobStatusProcessing), staleBefore)
		}

		failed := stale().Where("attempts >= max_attempts").Updates(map[string]any{
			"status":      string(domain.JobStatusFailed),
			"last_error":  domain.StaleJobError,
			"finished_at": now,
			"updated_at":  now,
		})
		if failed.Error != nil {
			return failed.Error
		}

		retried := stale().Updates(map[string]any{
			"status":     string(domain.JobStatusPending),
			"last_error": domain.StaleJobError,
			"run_after":  now,
			"updated_at": now,
		})
		if retried.Error != nil {
			return retried.Error
		}

		requeued = failed.RowsAffected + retried.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return requeued, nil
}

// Update replaces a stored job
func (r *JobRepository) Update(ctx context.Context, job *domain.MatchJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}
