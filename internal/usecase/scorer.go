package usecase

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/agnivade/levenshtein"
)

// Default scoring weights
const (
	defaultThreshold                 = 0.55
	defaultMinTokenLength            = 2
	defaultTokenSimilarity           = 0.8
	defaultTitlePrefixLength         = 100
	defaultContainmentWeight         = 0.85 // Title contains product name or vice versa
	defaultTokenOverlapWeight        = 0.75 // Share of product tokens found in the title
	defaultTitleEditWeight           = 0.7  // Edit similarity of the title prefix
	defaultExplicitContainmentWeight = 0.9  // Declared product name contains the product name
	defaultExplicitEditWeight        = 0.85 // Edit similarity of the declared product name
	defaultCategoryBonus             = 0.1
)

// ScoringConfig holds every tunable of the similarity scorer
type ScoringConfig struct {
	AcceptanceThreshold float64
	StopWords           map[string]bool
	// MinTokenLength drops tokens of this many runes or fewer
	MinTokenLength    int
	TokenSimilarity   float64
	TitlePrefixLength int

	ContainmentWeight         float64
	TokenOverlapWeight        float64
	TitleEditWeight           float64
	ExplicitContainmentWeight float64
	ExplicitEditWeight        float64
	CategoryBonus             float64
}

// DefaultScoringConfig returns the stock scoring configuration
func DefaultScoringConfig() ScoringConfig {
	stopWords := make(map[string]bool, len(defaultStopWords))
	for _, w := range defaultStopWords {
		stopWords[w] = true
	}
	return ScoringConfig{
		AcceptanceThreshold:       defaultThreshold,
		StopWords:                 stopWords,
		MinTokenLength:            defaultMinTokenLength,
		TokenSimilarity:           defaultTokenSimilarity,
		TitlePrefixLength:         defaultTitlePrefixLength,
		ContainmentWeight:         defaultContainmentWeight,
		TokenOverlapWeight:        defaultTokenOverlapWeight,
		TitleEditWeight:           defaultTitleEditWeight,
		ExplicitContainmentWeight: defaultExplicitContainmentWeight,
		ExplicitEditWeight:        defaultExplicitEditWeight,
		CategoryBonus:             defaultCategoryBonus,
	}
}

// WithExtraStopWords returns a copy of c whose stop word set also contains words
func (c ScoringConfig) WithExtraStopWords(words ...string) ScoringConfig {
	merged := make(map[string]bool, len(c.StopWords)+len(words))
	for w := range c.StopWords {
		merged[w] = true
	}
	for _, w := range words {
		if n := Normalize(w); n != "" {
			merged[n] = true
		}
	}
	c.StopWords = merged
	return c
}

// VideoFields are the video attributes the scorer compares
type VideoFields struct {
	Title       string
	ProductName string
	Category    string
}

// ProductFields are the product attributes the scorer compares
type ProductFields struct {
	Name     string
	Category string
}

// Scorer computes 0-1 match confidence between a video and a product
type Scorer struct {
	cfg ScoringConfig
}

// NewScorer creates a scorer, filling zero-valued settings with defaults
func NewScorer(config ScoringConfig) *Scorer {
	defaults := DefaultScoringConfig()

	if config.AcceptanceThreshold <= 0 || config.AcceptanceThreshold > 1 {
		config.AcceptanceThreshold = defaults.AcceptanceThreshold
	}
	if config.StopWords == nil {
		config.StopWords = defaults.StopWords
	}
	if config.MinTokenLength <= 0 {
		config.MinTokenLength = defaults.MinTokenLength
	}
	if config.TokenSimilarity <= 0 {
		config.TokenSimilarity = defaults.TokenSimilarity
	}
	if config.TitlePrefixLength <= 0 {
		config.TitlePrefixLength = defaults.TitlePrefixLength
	}
	if config.ContainmentWeight <= 0 {
		config.ContainmentWeight = defaults.ContainmentWeight
	}
	if config.TokenOverlapWeight <= 0 {
		config.TokenOverlapWeight = defaults.TokenOverlapWeight
	}
	if config.TitleEditWeight <= 0 {
		config.TitleEditWeight = defaults.TitleEditWeight
	}
	if config.ExplicitContainmentWeight <= 0 {
		config.ExplicitContainmentWeight = defaults.ExplicitContainmentWeight
	}
	if config.ExplicitEditWeight <= 0 {
		config.ExplicitEditWeight = defaults.ExplicitEditWeight
	}
	if config.CategoryBonus < 0 {
		config.CategoryBonus = defaults.CategoryBonus
	}

	return &Scorer{cfg: config}
}

// Threshold returns the configured acceptance threshold
func (s *Scorer) Threshold() float64 {
	return s.cfg.AcceptanceThreshold
}

// Score returns the match confidence in [0,1] between a video and a product
func (s *Scorer) Score(video VideoFields, product ProductFields) float64 {
	return s.score(s.prepareVideo(video), s.prepareProduct(product))
}

// preparedVideo holds the normalized video fields
type preparedVideo struct {
	title    string
	explicit string
	category string
	tokens   []string
}

// preparedProduct holds the normalized product fields
type preparedProduct struct {
	name     string
	category string
	tokens   []string
}

func (s *Scorer) prepareVideo(v VideoFields) preparedVideo {
	title := Normalize(v.Title)
	return preparedVideo{
		title:    title,
		explicit: Normalize(v.ProductName),
		category: Normalize(v.Category),
		tokens:   tokenizeNormalized(title, s.cfg.MinTokenLength, s.cfg.StopWords),
	}
}

func (s *Scorer) prepareProduct(p ProductFields) preparedProduct {
	name := Normalize(p.Name)
	return preparedProduct{
		name:     name,
		category: Normalize(p.Category),
		tokens:   tokenizeNormalized(name, s.cfg.MinTokenLength, s.cfg.StopWords),
	}
}

func (s *Scorer) score(v preparedVideo, p preparedProduct) float64 {
	if p.name == "" {
		return 0
	}

	best := math.Max(s.titleScore(v, p), s.explicitScore(v, p))

	if v.category != "" && v.category == p.category {
		best += s.cfg.CategoryBonus
	}

	return clampScore(best)
}

// titleScore takes the best of containment, token overlap and prefix edit similarity
func (s *Scorer) titleScore(v preparedVideo, p preparedProduct) float64 {
	if v.title == "" {
		return 0
	}

	score := 0.0
	if strings.Contains(v.title, p.name) || strings.Contains(p.name, v.title) {
		score = s.cfg.ContainmentWeight
	}

	if len(p.tokens) > 0 {
		matched := 0
		for _, pt := range p.tokens {
			for _, vt := range v.tokens {
				if s.tokensMatch(pt, vt) {
					matched++
					break
				}
			}
		}
		overlap := float64(matched) / float64(len(p.tokens)) * s.cfg.TokenOverlapWeight
		score = math.Max(score, overlap)
	}

	prefix := truncateRunes(v.title, s.cfg.TitlePrefixLength)
	score = math.Max(score, EditSimilarity(prefix, p.name)*s.cfg.TitleEditWeight)

	return score
}

// explicitScore compares the creator-declared product name with the product name
func (s *Scorer) explicitScore(v preparedVideo, p preparedProduct) float64 {
	if v.explicit == "" {
		return 0
	}
	if v.explicit == p.name {
		return 1.0
	}
	if strings.Contains(v.explicit, p.name) || strings.Contains(p.name, v.explicit) {
		return s.cfg.ExplicitContainmentWeight
	}
	return EditSimilarity(v.explicit, p.name) * s.cfg.ExplicitEditWeight
}

// tokensMatch checks two tokens for equality or near equality
func (s *Scorer) tokensMatch(a, b string) bool {
	if a == b {
		return true
	}

	// Quick length check - similarity is bounded by the length ratio
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if float64(min(la, lb))/float64(longest) < s.cfg.TokenSimilarity {
		return false
	}

	return EditSimilarity(a, b) >= s.cfg.TokenSimilarity
}

// EditSimilarity returns 1 - levenshtein(a,b)/max(len(a),len(b)) over runes.
// Two empty strings are identical.
func EditSimilarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Catalog is a product list prepared once per batch for repeated scoring
type Catalog struct {
	scorer   *Scorer
	products []domain.Product
	prepared []preparedProduct
	byURL    map[string]int
}

// NewCatalog normalizes products for scoring. Order is preserved: on equal
// scores the earlier product wins.
func (s *Scorer) NewCatalog(products []domain.Product) *Catalog {
	c := &Catalog{
		scorer:   s,
		products: products,
		prepared: make([]preparedProduct, len(products)),
		byURL:    make(map[string]int),
	}
	for i, p := range products {
		c.prepared[i] = s.prepareProduct(ProductFields{Name: p.Name, Category: p.Category})
		if u := NormalizeURL(p.URL); u != "" {
			if _, exists := c.byURL[u]; !exists {
				c.byURL[u] = i
			}
		}
	}
	return c
}

// Len returns the number of products in the catalog
func (c *Catalog) Len() int {
	return len(c.products)
}

// Product returns the product at index i
func (c *Catalog) Product(i int) *domain.Product {
	return &c.products[i]
}

// Direct finds a product whose canonical URL appears in the video's fields
func (c *Catalog) Direct(video *domain.Video) (int, bool) {
	if len(c.byURL) == 0 {
		return -1, false
	}
	for _, u := range ExtractShopURLs(video.URL, video.Title, video.ProductName) {
		if i, ok := c.byURL[u]; ok {
			return i, true
		}
	}
	return -1, false
}

// Best returns the index and score of the best scoring product, or -1 for an empty catalog
func (c *Catalog) Best(video *domain.Video) (int, float64) {
	v := c.scorer.prepareVideo(VideoFields{
		Title:       video.Title,
		ProductName: video.ProductName,
		Category:    video.Category,
	})

	bestIndex := -1
	highestScore := -1.0 // Initialize to -1 so any score (including 0) is considered

	for i := range c.prepared {
		score := c.scorer.score(v, c.prepared[i])
		if score > highestScore {
			highestScore = score
			bestIndex = i
		}
	}

	if bestIndex < 0 {
		return -1, 0
	}
	return bestIndex, highestScore
}
