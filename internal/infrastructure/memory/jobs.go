package memory

import (
	"context"
	"sync"
	"time"

	"github.com/adbroll/matcher/internal/domain"
)

// JobRepository is a thread-safe in-memory job queue
type JobRepository struct {
	data  map[string]domain.MatchJob
	mutex sync.Mutex
}

// NewJobRepository creates an empty job queue
func NewJobRepository() *JobRepository {
	return &JobRepository{data: make(map[string]domain.MatchJob)}
}

// Create stores a new job
func (r *JobRepository) Create(ctx context.Context, job *domain.MatchJob) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.data[job.ID] = *job
	return nil
}

// Get returns a job by ID
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.MatchJob, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	job, exists := r.data[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

// ClaimNext moves the oldest due pending job to processing
func (r *JobRepository) ClaimNext(ctx context.Context, now time.Time) (*domain.MatchJob, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var next *domain.MatchJob
	for id := range r.data {
		job := r.data[id]
		if job.Status != domain.JobStatusPending || job.RunAfter.After(now) {
			continue
		}
		if next == nil || job.CreatedAt.Before(next.CreatedAt) ||
			(job.CreatedAt.Equal(next.CreatedAt) && job.ID < next.ID) {
			candidate := job
			next = &candidate
		}
	}
	if next == nil {
		return nil, nil
	}

	started := now
	next.Status = domain.JobStatusProcessing
	next.Attempts++
	next.StartedAt = &started
	next.UpdatedAt = now
	r.data[next.ID] = *next

	claimed := *next
	return &claimed, nil
}

// RequeueStale releases processing jobs started before staleBefore
func (r *JobRepository) RequeueStale(ctx context.Context, staleBefore, now time.Time) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var requeued int64
	for id, job := range r.data {
		if job.Status != domain.JobStatusProcessing || job.StartedAt == nil || !job.StartedAt.Before(staleBefore) {
			continue
		}

		job.LastError = domain.StaleJobError
		job.UpdatedAt = now
		if job.Attempts >= job.MaxAttempts {
			finished := now
			job.Status = domain.JobStatusFailed
			job.FinishedAt = &finished
		} else {
			job.Status = domain.JobStatusPending
			job.RunAfter = now
		}
		r.data[id] = job
		requeued++
	}
	return requeued, nil
}

// Update replaces a stored job
func (r *JobRepository) Update(ctx context.Context, job *domain.MatchJob) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.data[job.ID]; !exists {
		return domain.ErrNotFound
	}
	r.data[job.ID] = *job
	return nil
}
