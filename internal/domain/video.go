package domain

import "time"

// MatchType records how a video was linked to its product
type MatchType string

const (
	MatchTypeDirect MatchType = "direct"
	MatchTypeFuzzy  MatchType = "fuzzy"
	MatchTypeAI     MatchType = "ai"
	MatchTypeManual MatchType = "manual"
)

// Video is a scraped short-form video record
type Video struct {
	ID               string     `json:"id" gorm:"type:varchar(64);primaryKey"`
	URL              string     `json:"url" gorm:"type:text"`
	Title            string     `json:"title,omitempty" gorm:"type:text"`
	ProductName      string     `json:"productName,omitempty" gorm:"type:text"`
	Category         string     `json:"category,omitempty" gorm:"type:varchar(255)"`
	ProductID        *string    `json:"productId,omitempty" gorm:"type:varchar(64);index"`
	MatchConfidence  *float64   `json:"matchConfidence,omitempty"`
	MatchType        *MatchType `json:"matchType,omitempty" gorm:"type:varchar(16)"`
	MatchAttemptedAt *time.Time `json:"matchAttemptedAt,omitempty" gorm:"index"`
	Revenue          float64    `json:"revenue"`
	CreatedAt        time.Time  `json:"createdAt" gorm:"index"`
}

// IsCandidate reports whether the matcher should process the video:
// it has no product and has never been attempted.
func (v *Video) IsCandidate() bool {
	return v.ProductID == nil && v.MatchAttemptedAt == nil
}

// AttemptedUnmatched reports whether the matcher already ran on the video without finding a product
func (v *Video) AttemptedUnmatched() bool {
	return v.ProductID == nil && v.MatchAttemptedAt != nil &&
		v.MatchConfidence != nil && *v.MatchConfidence == 0
}

// Before reports whether v sorts before other in the stable pagination order
func (v *Video) Before(other *Video) bool {
	if !v.CreatedAt.Equal(other.CreatedAt) {
		return v.CreatedAt.Before(other.CreatedAt)
	}
	return v.ID < other.ID
}

// MatchUpdate is the write-back of one matcher decision.
// A nil ProductID records an attempted-unmatched video.
type MatchUpdate struct {
	ProductID   *string
	Confidence  float64
	Type        MatchType
	AttemptedAt time.Time
}
