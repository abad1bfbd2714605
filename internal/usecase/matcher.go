package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/adbroll/matcher/internal/metrics"
	"go.uber.org/zap"
)

// MatcherConfig holds configuration for the batch matcher
type MatcherConfig struct {
	DefaultBatchSize int
	LeaseKey         string
	LeaseTTL         time.Duration
}

// Matcher links unmatched videos to catalog products
type Matcher struct {
	products         domain.ProductRepository
	videos           domain.VideoRepository
	scorer           *Scorer
	ai               *AIMatcher
	locker           domain.Locker
	logger           *zap.Logger
	now              func() time.Time
	defaultBatchSize int
	leaseKey         string
	leaseTTL         time.Duration
}

// MatcherOption customizes a Matcher
type MatcherOption func(*Matcher)

// WithAIMatcher enables the AI fallback pass for smart runs
func WithAIMatcher(ai *AIMatcher) MatcherOption {
	return func(m *Matcher) { m.ai = ai }
}

// WithLocker makes batch runs mutually exclusive through the given locker
func WithLocker(locker domain.Locker) MatcherOption {
	return func(m *Matcher) { m.locker = locker }
}

// WithClock overrides the attempt timestamp source
func WithClock(now func() time.Time) MatcherOption {
	return func(m *Matcher) { m.now = now }
}

// NewMatcher creates a new matcher with dependencies
func NewMatcher(
	products domain.ProductRepository,
	videos domain.VideoRepository,
	scorer *Scorer,
	logger *zap.Logger,
	config MatcherConfig,
	opts ...MatcherOption,
) *Matcher {
	batchSize := config.DefaultBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	leaseKey := config.LeaseKey
	if leaseKey == "" {
		leaseKey = "matcher:batch"
	}
	leaseTTL := config.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Matcher{
		products:         products,
		videos:           videos,
		scorer:           scorer,
		logger:           logger,
		now:              time.Now,
		defaultBatchSize: batchSize,
		leaseKey:         leaseKey,
		leaseTTL:         leaseTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultRequest returns a batch request carrying the configured defaults
func (m *Matcher) DefaultRequest() domain.BatchRequest {
	return domain.BatchRequest{
		Offset:    0,
		BatchSize: m.defaultBatchSize,
		Threshold: m.scorer.Threshold(),
	}
}

// MatchBatch runs one page of the matcher.
// Flow: take lease -> load catalog -> load window -> score candidates -> write back -> count remaining
func (m *Matcher) MatchBatch(ctx context.Context, request domain.BatchRequest) (*domain.BatchSummary, error) {
	if err := m.validate(&request); err != nil {
		return nil, err
	}

	held, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer held.release()

	return m.runBatch(ctx, request, held)
}

// Rebuild clears every non-manual match, refreshes derived product figures
// and rematches all videos from the first page until the run is complete.
// Work finished before a failure stays committed.
func (m *Matcher) Rebuild(ctx context.Context, request domain.RebuildRequest) (*domain.RebuildSummary, error) {
	batch := domain.BatchRequest{
		BatchSize: request.BatchSize,
		Threshold: request.Threshold,
		UseAI:     request.UseAI,
	}
	if err := m.validate(&batch); err != nil {
		return nil, err
	}

	held, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer held.release()

	start := time.Now()
	defer func() {
		metrics.BatchDuration.WithLabelValues("rebuild").Observe(time.Since(start).Seconds())
	}()

	cleared, err := m.videos.ClearMatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: clear matches: %v", domain.ErrStoreUnavailable, err)
	}

	updated, err := m.products.RecomputeEarnings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: recompute earnings: %v", domain.ErrStoreUnavailable, err)
	}

	m.logger.Info("Rebuild started",
		zap.Int64("cleared", cleared),
		zap.Int64("products_updated", updated),
		zap.Int("batch_size", batch.BatchSize),
		zap.Float64("threshold", batch.Threshold))

	summary := &domain.RebuildSummary{
		Cleared:         cleared,
		ProductsUpdated: updated,
	}
	summary.Totals.BatchSize = batch.BatchSize
	summary.Totals.Threshold = batch.Threshold

	for {
		if summary.Batches > 0 {
			if err := held.refresh(ctx); err != nil {
				return nil, err
			}
		}

		page, err := m.runBatch(ctx, batch, held)
		if err != nil {
			return nil, err
		}

		summary.Batches++
		summary.Totals.Add(page)
		summary.Totals.Remaining = page.Remaining
		summary.Totals.NextOffset = page.NextOffset

		if page.Complete || page.NextOffset == batch.Offset {
			summary.Totals.Complete = true
			break
		}
		batch.Offset = page.NextOffset
	}

	m.logger.Info("Rebuild finished",
		zap.Int("batches", summary.Batches),
		zap.Int("processed", summary.Totals.Processed),
		zap.Int("matched", summary.Totals.Matched),
		zap.Duration("elapsed", time.Since(start)))

	return summary, nil
}

// ResetAttempts makes attempted-unmatched videos eligible for matching again
func (m *Matcher) ResetAttempts(ctx context.Context) (int64, error) {
	n, err := m.videos.ResetAttempts(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: reset attempts: %v", domain.ErrStoreUnavailable, err)
	}
	m.logger.Info("Match attempts reset", zap.Int64("videos", n))
	return n, nil
}

// LinkVideo records an admin-chosen product for a video
func (m *Matcher) LinkVideo(ctx context.Context, videoID, productID string) error {
	if videoID == "" || productID == "" {
		return domain.ErrInvalidRequest
	}

	if _, err := m.products.Get(ctx, productID); err != nil {
		return err
	}
	if _, err := m.videos.Get(ctx, videoID); err != nil {
		return err
	}

	pid := productID
	return m.videos.SaveMatch(ctx, videoID, domain.MatchUpdate{
		ProductID:   &pid,
		Confidence:  1.0,
		Type:        domain.MatchTypeManual,
		AttemptedAt: m.now(),
	})
}

// validate fills defaults and rejects out-of-range parameters
func (m *Matcher) validate(request *domain.BatchRequest) error {
	if request.BatchSize == 0 {
		request.BatchSize = m.defaultBatchSize
	}
	if request.Threshold == 0 {
		request.Threshold = m.scorer.Threshold()
	}

	if request.BatchSize < 0 || request.Offset < 0 {
		return fmt.Errorf("%w: batchSize and offset must not be negative", domain.ErrInvalidRequest)
	}
	if request.Threshold < 0 || request.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be within (0, 1]", domain.ErrInvalidRequest)
	}
	return nil
}

// matcherLease is the held matcher lease; a nil lease means locking is disabled
type matcherLease struct {
	lock   domain.Lock
	ttl    time.Duration
	logger *zap.Logger
}

// refresh extends the lease so long runs keep their exclusivity
func (l *matcherLease) refresh(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.lock.Refresh(ctx, l.ttl); err != nil {
		return fmt.Errorf("refresh matcher lease: %w", err)
	}
	return nil
}

func (l *matcherLease) release() {
	if l == nil {
		return
	}
	// Release on a fresh context so a cancelled request still frees the lease
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.lock.Release(releaseCtx); err != nil {
		l.logger.Warn("Failed to release matcher lease", zap.Error(err))
	}
}

// acquire takes the matcher lease
func (m *Matcher) acquire(ctx context.Context) (*matcherLease, error) {
	if m.locker == nil {
		return nil, nil
	}

	lock, err := m.locker.Acquire(ctx, m.leaseKey, m.leaseTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLeaseNotAcquired) {
			metrics.LeaseContentionTotal.Inc()
			return nil, domain.ErrBatchInProgress
		}
		return nil, fmt.Errorf("acquire matcher lease: %w", err)
	}

	return &matcherLease{lock: lock, ttl: m.leaseTTL, logger: m.logger}, nil
}

// runBatch processes one window without taking the lease
func (m *Matcher) runBatch(ctx context.Context, request domain.BatchRequest, held *matcherLease) (*domain.BatchSummary, error) {
	start := time.Now()
	mode := "batch"
	if request.UseAI {
		mode = "smart"
	}
	defer func() {
		metrics.BatchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	products, err := m.products.ListMatchable(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load catalog: %v", domain.ErrStoreUnavailable, err)
	}
	catalog := m.scorer.NewCatalog(products)

	window, err := m.videos.ListWindow(ctx, request.Offset, request.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: load videos: %v", domain.ErrStoreUnavailable, err)
	}

	summary := &domain.BatchSummary{
		Offset:     request.Offset,
		BatchSize:  request.BatchSize,
		Threshold:  request.Threshold,
		NextOffset: request.Offset + len(window),
	}

	var leftovers []domain.Video
	for i := range window {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		video := &window[i]
		if !video.IsCandidate() {
			continue
		}
		summary.Processed++

		if idx, ok := catalog.Direct(video); ok {
			m.record(ctx, summary, video, catalog.Product(idx), 1.0, domain.MatchTypeDirect)
			continue
		}

		idx, score := catalog.Best(video)
		m.logger.Debug("Best candidate",
			zap.String("video_id", video.ID),
			zap.Int("product_index", idx),
			zap.Float64("score", score))

		if idx >= 0 && score >= request.Threshold {
			m.record(ctx, summary, video, catalog.Product(idx), score, domain.MatchTypeFuzzy)
			continue
		}
		leftovers = append(leftovers, *video)
	}

	if request.UseAI && m.ai != nil && len(leftovers) > 0 && catalog.Len() > 0 {
		leftovers = m.applyAI(ctx, summary, leftovers, products, held)
	}

	for i := range leftovers {
		m.record(ctx, summary, &leftovers[i], nil, 0, "")
	}

	if len(window) > 0 {
		remaining, err := m.videos.CountCandidatesAfter(ctx, &window[len(window)-1])
		if err != nil {
			return nil, fmt.Errorf("%w: count remaining: %v", domain.ErrStoreUnavailable, err)
		}
		summary.Remaining = remaining
	}
	summary.Complete = summary.Remaining == 0

	m.logger.Info("Batch finished",
		zap.String("mode", mode),
		zap.Int("offset", summary.Offset),
		zap.Int("processed", summary.Processed),
		zap.Int("matched", summary.Matched),
		zap.Int("unmatched", summary.Unmatched),
		zap.Int("failed", summary.Failed),
		zap.Int64("remaining", summary.Remaining),
		zap.Duration("elapsed", time.Since(start)))

	return summary, nil
}

// applyAI records AI matches and returns the videos still unmatched
func (m *Matcher) applyAI(
	ctx context.Context,
	summary *domain.BatchSummary,
	videos []domain.Video,
	products []domain.Product,
	held *matcherLease,
) []domain.Video {
	resolved := m.ai.Resolve(ctx, videos, products, held.refresh)

	var still []domain.Video
	for i := range videos {
		idx, ok := resolved[videos[i].ID]
		if !ok {
			still = append(still, videos[i])
			continue
		}
		m.record(ctx, summary, &videos[i], &products[idx], m.ai.Confidence(), domain.MatchTypeAI)
	}
	return still
}

// record writes one decision back. A nil product marks the video attempted-unmatched.
// Write failures are logged and counted, never returned.
func (m *Matcher) record(
	ctx context.Context,
	summary *domain.BatchSummary,
	video *domain.Video,
	product *domain.Product,
	score float64,
	matchType domain.MatchType,
) {
	update := domain.MatchUpdate{
		Confidence:  score,
		Type:        matchType,
		AttemptedAt: m.now(),
	}
	if product != nil {
		pid := product.ID
		update.ProductID = &pid
	}

	if err := m.videos.SaveMatch(ctx, video.ID, update); err != nil {
		summary.Failed++
		metrics.VideosProcessedTotal.WithLabelValues("failed").Inc()
		m.logger.Error("Failed to save match",
			zap.String("video_id", video.ID),
			zap.String("match_type", string(matchType)),
			zap.Error(err))
		return
	}

	if product == nil {
		summary.Unmatched++
		metrics.VideosProcessedTotal.WithLabelValues("unmatched").Inc()
		return
	}

	summary.Matched++
	switch matchType {
	case domain.MatchTypeDirect:
		summary.MatchedDirect++
	case domain.MatchTypeFuzzy:
		summary.MatchedFuzzy++
	case domain.MatchTypeAI:
		summary.MatchedAI++
	}
	metrics.VideosProcessedTotal.WithLabelValues(string(matchType)).Inc()

	m.logger.Debug("Video matched",
		zap.String("video_id", video.ID),
		zap.String("product_id", product.ID),
		zap.String("match_type", string(matchType)),
		zap.Float64("confidence", score))
}
