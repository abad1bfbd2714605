package postgres

import (
	"context"
	"errors"

	"github.com/adbroll/matcher/internal/domain"
	"gorm.io/gorm"
)

const candidateFilter = "product_id IS NULL AND match_attempted_at IS NULL"

// VideoRepository stores videos in the videos table
type VideoRepository struct {
	db *gorm.DB
}

// NewVideoRepository creates a video repository
func NewVideoRepository(db *gorm.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// ListWindow returns videos [offset, offset+limit) in created_at, id order
func (r *VideoRepository) ListWindow(ctx context.Context, offset, limit int) ([]domain.Video, error) {
	var videos []domain.Video
	err := r.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&videos).Error
	if err != nil {
		return nil, err
	}
	return videos, nil
}

// CountCandidatesAfter counts candidate videos sorting after the given one
func (r *VideoRepository) CountCandidatesAfter(ctx context.Context, after *domain.Video) (int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Video{}).Where(candidateFilter)
	if after != nil {
		query = query.Where("(created_at > ? OR (created_at = ? AND id > ?))",
			after.CreatedAt, after.CreatedAt, after.ID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Get returns a video by ID
func (r *VideoRepository) Get(ctx context.Context, id string) (*domain.Video, error) {
	var video domain.Video
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// Insert adds videos in one statement
func (r *VideoRepository) Insert(ctx context.Context, videos ...domain.Video) error {
	if len(videos) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&videos).Error
}

// SaveMatch writes one matcher decision
func (r *VideoRepository) SaveMatch(ctx context.Context, id string, update domain.MatchUpdate) error {
	var productID, matchType any
	if update.ProductID != nil {
		productID = *update.ProductID
	}
	if update.Type != "" {
		matchType = string(update.Type)
	}

	result := r.db.WithContext(ctx).
		Model(&domain.Video{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"product_id":         productID,
			"match_confidence":   update.Confidence,
			"match_type":         matchType,
			"match_attempted_at": update.AttemptedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClearMatches drops every non-manual match and attempt marker
func (r *VideoRepository) ClearMatches(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Video{}).
		Where("COALESCE(match_type, '') <> ?", string(domain.MatchTypeManual)).
		Where("(product_id IS NOT NULL OR match_attempted_at IS NOT NULL OR match_confidence IS NOT NULL)").
		Updates(map[string]any{
			"product_id":         nil,
			"match_confidence":   nil,
			"match_type":         nil,
			"match_attempted_at": nil,
		})
	return result.RowsAffected, result.Error
}

// ResetAttempts clears the attempt marker of attempted-unmatched videos
func (r *VideoRepository) ResetAttempts(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Video{}).
		Where("product_id IS NULL AND match_attempted_at IS NOT NULL").
		Updates(map[string]any{
			"match_confidence":   nil,
			"match_type":         nil,
			"match_attempted_at": nil,
		})
	return result.RowsAffected, result.Error
}
