package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/adbroll/matcher/internal/domain"
)

// VideoRepository is a thread-safe in-memory video store
type VideoRepository struct {
	data  map[string]domain.Video
	mutex sync.RWMutex
}

// NewVideoRepository creates a store holding the given videos
func NewVideoRepository(videos ...domain.Video) *VideoRepository {
	repo := &VideoRepository{data: make(map[string]domain.Video)}
	for _, v := range videos {
		repo.data[v.ID] = v
	}
	return repo
}

// sorted returns a copy of every video in pagination order; callers hold the lock
func (r *VideoRepository) sorted() []domain.Video {
	videos := make([]domain.Video, 0, len(r.data))
	for _, v := range r.data {
		videos = append(videos, v)
	}
	sort.Slice(videos, func(i, j int) bool {
		return videos[i].Before(&videos[j])
	})
	return videos
}

// ListWindow returns videos [offset, offset+limit) in created_at, id order
func (r *VideoRepository) ListWindow(ctx context.Context, offset, limit int) ([]domain.Video, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	videos := r.sorted()
	if offset >= len(videos) {
		return []domain.Video{}, nil
	}
	end := offset + limit
	if end > len(videos) {
		end = len(videos)
	}
	return videos[offset:end], nil
}

// CountCandidatesAfter counts candidate videos sorting after the given one
func (r *VideoRepository) CountCandidatesAfter(ctx context.Context, after *domain.Video) (int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var n int64
	for _, v := range r.data {
		if v.IsCandidate() && (after == nil || after.Before(&v)) {
			n++
		}
	}
	return n, nil
}

// Get returns a video by ID
func (r *VideoRepository) Get(ctx context.Context, id string) (*domain.Video, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	v, exists := r.data[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

// Insert adds or replaces videos
func (r *VideoRepository) Insert(ctx context.Context, videos ...domain.Video) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, v := range videos {
		r.data[v.ID] = v
	}
	return nil
}

// SaveMatch writes one matcher decision
func (r *VideoRepository) SaveMatch(ctx context.Context, id string, update domain.MatchUpdate) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	v, exists := r.data[id]
	if !exists {
		return domain.ErrNotFound
	}

	attemptedAt := update.AttemptedAt
	confidence := update.Confidence
	v.ProductID = nil
	if update.ProductID != nil {
		pid := *update.ProductID
		v.ProductID = &pid
	}
	v.MatchConfidence = &confidence
	v.MatchAttemptedAt = &attemptedAt
	v.MatchType = nil
	if update.Type != "" {
		matchType := update.Type
		v.MatchType = &matchType
	}

	r.data[id] = v
	return nil
}

// ClearMatches drops every non-manual match and attempt marker
func (r *VideoRepository) ClearMatches(ctx context.Context) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var n int64
	for id, v := range r.data {
		if v.MatchType != nil && *v.MatchType == domain.MatchTypeManual {
			continue
		}
		if v.ProductID == nil && v.MatchAttemptedAt == nil && v.MatchConfidence == nil && v.MatchType == nil {
			continue
		}
		v.ProductID = nil
		v.MatchConfidence = nil
		v.MatchType = nil
		v.MatchAttemptedAt = nil
		r.data[id] = v
		n++
	}
	return n, nil
}

// ResetAttempts clears the attempt marker of attempted-unmatched videos
func (r *VideoRepository) ResetAttempts(ctx context.Context) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var n int64
	for id, v := range r.data {
		if v.ProductID != nil || v.MatchAttemptedAt == nil {
			continue
		}
		v.MatchAttemptedAt = nil
		v.MatchConfidence = nil
		v.MatchType = nil
		r.data[id] = v
		n++
	}
	return n, nil
}
