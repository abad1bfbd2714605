package domain

import "time"

// JobKind selects which matcher operation a queued job runs
type JobKind string

const (
	JobKindBatch   JobKind = "batch"
	JobKindSmart   JobKind = "smart"
	JobKindRebuild JobKind = "rebuild"
)

// Valid reports whether k is a known job kind
func (k JobKind) Valid() bool {
	switch k {
	case JobKindBatch, JobKindSmart, JobKindRebuild:
		return true
	}
	return false
}

// JobStatus moves pending -> processing -> completed|failed.
// A failed attempt below MaxAttempts goes back to pending.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// StaleJobError is recorded on jobs whose worker never reported back
const StaleJobError = "job exceeded the stale timeout while processing"

// JobParams are the matcher arguments carried by a job
type JobParams struct {
	BatchSize int     `json:"batchSize,omitempty"`
	Offset    int     `json:"offset,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// MatchJob is a queued matcher invocation
type MatchJob struct {
	ID          string         `json:"id" gorm:"type:varchar(64);primaryKey"`
	Kind        JobKind        `json:"kind" gorm:"type:varchar(16);not null"`
	Status      JobStatus      `json:"status" gorm:"type:varchar(16);not null;index"`
	Params      JobParams      `json:"params" gorm:"type:text;serializer:json"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"maxAttempts"`
	Result      map[string]any `json:"result,omitempty" gorm:"type:text;serializer:json"`
	LastError   string         `json:"lastError,omitempty" gorm:"type:text"`
	RunAfter    time.Time      `json:"runAfter" gorm:"index"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	FinishedAt  *time.Time     `json:"finishedAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}
