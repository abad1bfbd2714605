package domain

import (
	"context"
	"time"
)

// ProductRepository defines catalog persistence used by the matcher and the importer
type ProductRepository interface {
	// ListMatchable returns products with a non-empty name ordered by revenue
	// descending then id ascending. The order is the scoring tie-break.
	ListMatchable(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id string) (*Product, error)
	// Upsert inserts or updates products keyed by URL, falling back to name.
	Upsert(ctx context.Context, products []Product) (int, error)
	// RecomputeEarnings refreshes EarningPerSale for every product.
	RecomputeEarnings(ctx context.Context) (int64, error)
}

// VideoRepository defines video persistence used by the matcher
type VideoRepository interface {
	// ListWindow returns all videos ordered by created_at then id, paged by offset and limit.
	ListWindow(ctx context.Context, offset, limit int) ([]Video, error)
	// CountCandidatesAfter counts unmatched, never-attempted videos sorting after the given video.
	CountCandidatesAfter(ctx context.Context, after *Video) (int64, error)
	Get(ctx context.Context, id string) (*Video, error)
	Insert(ctx context.Context, videos ...Video) error
	SaveMatch(ctx context.Context, id string, update MatchUpdate) error
	// ClearMatches drops every non-manual match and attempt marker.
	ClearMatches(ctx context.Context) (int64, error)
	// ResetAttempts makes attempted-unmatched videos candidates again.
	ResetAttempts(ctx context.Context) (int64, error)
}

// JobRepository defines persistence for the matcher work queue
type JobRepository interface {
	Create(ctx context.Context, job *MatchJob) error
	Get(ctx context.Context, id string) (*MatchJob, error)
	// ClaimNext moves the oldest due pending job to processing and returns it,
	// or nil when nothing is due.
	ClaimNext(ctx context.Context, now time.Time) (*MatchJob, error)
	// RequeueStale releases processing jobs started before staleBefore. The lost
	// run counts as a failed attempt: jobs out of attempts become failed, the
	// rest pending again.
	RequeueStale(ctx context.Context, staleBefore, now time.Time) (int64, error)
	Update(ctx context.Context, job *MatchJob) error
}

// Lock is a held lease
type Lock interface {
	// Refresh extends the lease to ttl from now. It fails with ErrLeaseNotHeld
	// once another holder owns the key.
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker hands out exclusive, TTL-bounded leases
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Completer is a chat-style text generation service
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}
