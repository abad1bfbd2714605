package memory

import (
	"context"
	"testing"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func TestProductRepository_ListMatchableOrder(t *testing.T) {
	repo := NewProductRepository(
		domain.Product{ID: "c", Name: "Crema", Revenue: 10},
		domain.Product{ID: "b", Name: "Bocina", Revenue: 50},
		domain.Product{ID: "a", Name: "Audífonos", Revenue: 50},
		domain.Product{ID: "z", Name: "  ", Revenue: 999},
	)

	products, err := repo.ListMatchable(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)

	assert.Equal(t, "a", products[0].ID)
	assert.Equal(t, "b", products[1].ID)
	assert.Equal(t, "c", products[2].ID)
}

func TestProductRepository_Upsert(t *testing.T) {
	repo := NewProductRepository(domain.Product{
		ID: "p1", Name: "Lámpara", URL: "https://shop.example.com/product/1", CreatedAt: base,
	})
	ctx := context.Background()

	n, err := repo.Upsert(ctx, []domain.Product{
		{ID: "new-1", Name: "Lámpara LED", URL: "https://shop.example.com/product/1", Price: 100, CommissionRate: 0.1},
		{ID: "new-2", Name: "Termo", Price: 20},
		{ID: "new-3", Name: "termo", Price: 25},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	updated, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Lámpara LED", updated.Name)
	assert.Equal(t, 10.0, updated.EarningPerSale)
	assert.Equal(t, base, updated.CreatedAt)

	termo, err := repo.Get(ctx, "new-2")
	require.NoError(t, err)
	assert.Equal(t, 25.0, termo.Price)

	_, err = repo.Get(ctx, "new-3")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProductRepository_RecomputeEarnings(t *testing.T) {
	repo := NewProductRepository(domain.Product{ID: "p", Name: "P", Price: 33.33, CommissionRate: 0.15})

	n, err := repo.RecomputeEarnings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	p, _ := repo.Get(context.Background(), "p")
	assert.Equal(t, 5.0, p.EarningPerSale)
}

func TestVideoRepository_WindowAndRemaining(t *testing.T) {
	repo := NewVideoRepository(
		domain.Video{ID: "v3", CreatedAt: base.Add(2 * time.Minute)},
		domain.Video{ID: "v1", CreatedAt: base},
		domain.Video{ID: "v2b", CreatedAt: base.Add(time.Minute)},
		domain.Video{ID: "v2a", CreatedAt: base.Add(time.Minute)},
		domain.Video{ID: "v4", CreatedAt: base.Add(3 * time.Minute), ProductID: strPtr("p")},
	)
	ctx := context.Background()

	window, err := repo.ListWindow(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "v2a", window[0].ID)
	assert.Equal(t, "v2b", window[1].ID)

	remaining, err := repo.CountCandidatesAfter(ctx, &window[1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)

	empty, err := repo.ListWindow(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	all, err := repo.CountCandidatesAfter(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), all)
}

func TestVideoRepository_SaveMatch(t *testing.T) {
	repo := NewVideoRepository(domain.Video{ID: "v1", CreatedAt: base})
	ctx := context.Background()

	t.Run("attempted unmatched", func(t *testing.T) {
		require.NoError(t, repo.SaveMatch(ctx, "v1", domain.MatchUpdate{AttemptedAt: base}))

		v, err := repo.Get(ctx, "v1")
		require.NoError(t, err)
		assert.Nil(t, v.ProductID)
		assert.Nil(t, v.MatchType)
		assert.True(t, v.AttemptedUnmatched())
		assert.False(t, v.IsCandidate())
	})

	t.Run("matched", func(t *testing.T) {
		require.NoError(t, repo.SaveMatch(ctx, "v1", domain.MatchUpdate{
			ProductID: strPtr("p1"), Confidence: 0.8, Type: domain.MatchTypeFuzzy, AttemptedAt: base,
		}))

		v, err := repo.Get(ctx, "v1")
		require.NoError(t, err)
		require.NotNil(t, v.ProductID)
		assert.Equal(t, "p1", *v.ProductID)
		assert.Equal(t, 0.8, *v.MatchConfidence)
		assert.Equal(t, domain.MatchTypeFuzzy, *v.MatchType)
	})

	t.Run("unknown video", func(t *testing.T) {
		err := repo.SaveMatch(ctx, "missing", domain.MatchUpdate{AttemptedAt: base})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestVideoRepository_ClearAndReset(t *testing.T) {
	repo := NewVideoRepository(
		domain.Video{ID: "fuzzy", CreatedAt: base},
		domain.Video{ID: "manual", CreatedAt: base},
		domain.Video{ID: "attempted", CreatedAt: base},
		domain.Video{ID: "fresh", CreatedAt: base},
	)
	ctx := context.Background()

	require.NoError(t, repo.SaveMatch(ctx, "fuzzy", domain.MatchUpdate{ProductID: strPtr("p"), Confidence: 0.7, Type: domain.MatchTypeFuzzy, AttemptedAt: base}))
	require.NoError(t, repo.SaveMatch(ctx, "manual", domain.MatchUpdate{ProductID: strPtr("p"), Confidence: 1, Type: domain.MatchTypeManual, AttemptedAt: base}))
	require.NoError(t, repo.SaveMatch(ctx, "attempted", domain.MatchUpdate{AttemptedAt: base}))

	reset, err := repo.ResetAttempts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	attempted, _ := repo.Get(ctx, "attempted")
	assert.True(t, attempted.IsCandidate())

	cleared, err := repo.ClearMatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	fuzzy, _ := repo.Get(ctx, "fuzzy")
	assert.True(t, fuzzy.IsCandidate())
	assert.Nil(t, fuzzy.MatchType)

	manual, _ := repo.Get(ctx, "manual")
	require.NotNil(t, manual.ProductID)
	assert.Equal(t, domain.MatchTypeManual, *manual.MatchType)
}

func TestJobRepository_ClaimNext(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.MatchJob{ID: "later", Status: domain.JobStatusPending, CreatedAt: base, RunAfter: base.Add(time.Hour)}))
	require.NoError(t, repo.Create(ctx, &domain.MatchJob{ID: "second", Status: domain.JobStatusPending, CreatedAt: base.Add(time.Second), RunAfter: base}))
	require.NoError(t, repo.Create(ctx, &domain.MatchJob{ID: "first", Status: domain.JobStatusPending, CreatedAt: base, RunAfter: base}))
	require.NoError(t, repo.Create(ctx, &domain.MatchJob{ID: "done", Status: domain.JobStatusCompleted, CreatedAt: base.Add(-time.Hour), RunAfter: base}))

	job, err := repo.ClaimNext(ctx, base)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "first", job.ID)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.StartedAt)

	job, err = repo.ClaimNext(ctx, base)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "second", job.ID)

	job, err = repo.ClaimNext(ctx, base)
	require.NoError(t, err)
	assert.Nil(t, job)

	job, err = repo.ClaimNext(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "later", job.ID)
}

func TestJobRepository_RequeueStale(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()
	started := base.Add(-2 * time.Hour)
	recent := base.Add(-time.Minute)

	require.NoError(t, repo.Create(ctx, &domain.MatchJob{ID: "lost", Status: domain.JobStatusProcessing, Attempts: 1, MaxAttempts: 3, StartedAt: &started}))
	require.NoError(t, repo.Create(ctx, &domain.MatchJob{ID: "exhausted", Status: domain.JobStatusProcessing, Attempts: 3, MaxAttempts: 3, StartedAt: &started}))
	require.NoError(t, repo.Create(ctx, &domain.MatchJob{ID: "running", Status: domain.JobStatusProcessing, Attempts: 1, MaxAttempts: 3, StartedAt: &recent}))
	require.NoError(t, repo.Create(ctx, &domain.MatchJob{ID: "queued", Status: domain.JobStatusPending, RunAfter: base.Add(time.Hour)}))

	n, err := repo.RequeueStale(ctx, base.Add(-time.Hour), base)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	lost, _ := repo.Get(ctx, "lost")
	assert.Equal(t, domain.JobStatusPending, lost.Status)
	assert.Equal(t, domain.StaleJobError, lost.LastError)
	assert.True(t, lost.RunAfter.Equal(base))

	exhausted, _ := repo.Get(ctx, "exhausted")
	assert.Equal(t, domain.JobStatusFailed, exhausted.Status)
	require.NotNil(t, exhausted.FinishedAt)

	running, _ := repo.Get(ctx, "running")
	assert.Equal(t, domain.JobStatusProcessing, running.Status)

	queued, _ := repo.Get(ctx, "queued")
	assert.True(t, queued.RunAfter.Equal(base.Add(time.Hour)))
}

func TestJobRepository_GetUpdate(t *testing.T) {
	repo := NewJobRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, repo.Update(ctx, &domain.MatchJob{ID: "missing"}), domain.ErrNotFound)

	require.NoError(t, repo.Create(ctx, &domain.MatchJob{ID: "j", Status: domain.JobStatusPending}))
	require.NoError(t, repo.Update(ctx, &domain.MatchJob{ID: "j", Status: domain.JobStatusCompleted}))

	job, err := repo.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
}
