package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/adbroll/matcher/internal/infrastructure/lease"
	"github.com/adbroll/matcher/internal/infrastructure/memory"
	"github.com/adbroll/matcher/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu        sync.Mutex
	drains    int
	enqueued  []domain.JobKind
	drainErr  error
	enqueueFn func() error
}

func (f *fakeRunner) Drain(ctx context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return 1, f.drainErr
}

func (f *fakeRunner) Enqueue(ctx context.Context, kind domain.JobKind, params domain.JobParams) (*domain.MatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueFn != nil {
		if err := f.enqueueFn(); err != nil {
			return nil, err
		}
	}
	f.enqueued = append(f.enqueued, kind)
	return &domain.MatchJob{ID: "job-1", Kind: kind}, nil
}

func (f *fakeRunner) drainCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drains
}

func TestNew(t *testing.T) {
	t.Run("registers worker only by default", func(t *testing.T) {
		s, err := New(&fakeRunner{}, Config{}, nil)
		require.NoError(t, err)
		assert.Len(t, s.cron.Entries(), 1)
		assert.Equal(t, "@every 10s", s.config.WorkerInterval)
	})

	t.Run("registers batch cron when set", func(t *testing.T) {
		s, err := New(&fakeRunner{}, Config{WorkerInterval: "@every 1m", BatchCron: "0 3 * * *"}, nil)
		require.NoError(t, err)
		assert.Len(t, s.cron.Entries(), 2)
	})

	t.Run("rejects invalid specs", func(t *testing.T) {
		_, err := New(&fakeRunner{}, Config{WorkerInterval: "every tuesday"}, nil)
		assert.Error(t, err)

		_, err = New(&fakeRunner{}, Config{BatchCron: "61 * * * *"}, nil)
		assert.Error(t, err)
	})
}

func TestRunWorker(t *testing.T) {
	runner := &fakeRunner{}
	s, err := New(runner, Config{}, nil)
	require.NoError(t, err)

	s.RunWorker()
	assert.Equal(t, 1, runner.drainCount())

	runner.drainErr = errors.New("store down")
	s.RunWorker()
	assert.Equal(t, 2, runner.drainCount())
}

func TestEnqueueBatch(t *testing.T) {
	runner := &fakeRunner{}
	s, err := New(runner, Config{}, nil)
	require.NoError(t, err)

	s.EnqueueBatch()
	assert.Equal(t, []domain.JobKind{domain.JobKindBatch}, runner.enqueued)

	runner.enqueueFn = func() error { return domain.ErrStoreUnavailable }
	s.EnqueueBatch()
	assert.Len(t, runner.enqueued, 1)
}

func TestScheduledBatchesCoverEveryVideo(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	videos := memory.NewVideoRepository(
		domain.Video{ID: "v1", ProductName: "termo acero", CreatedAt: start},
		domain.Video{ID: "v2", Title: "unboxing", CreatedAt: start.Add(time.Minute)},
		domain.Video{ID: "v3", ProductName: "crema facial", CreatedAt: start.Add(2 * time.Minute)},
		domain.Video{ID: "v4", Title: "vlog", CreatedAt: start.Add(3 * time.Minute)},
		domain.Video{ID: "v5", ProductName: "termo acero", CreatedAt: start.Add(4 * time.Minute)},
	)
	products := memory.NewProductRepository(
		domain.Product{ID: "p1", Name: "Termo Acero", Revenue: 10},
		domain.Product{ID: "p2", Name: "Crema Facial", Revenue: 5},
	)
	matcher := usecase.NewMatcher(products, videos, usecase.NewScorer(usecase.DefaultScoringConfig()), nil,
		usecase.MatcherConfig{DefaultBatchSize: 2}, usecase.WithLocker(lease.NewMemoryLocker()))
	jobs := usecase.NewJobService(memory.NewJobRepository(), matcher, nil, usecase.JobServiceConfig{})

	s, err := New(jobs, Config{BatchCron: "@daily"}, nil)
	require.NoError(t, err)

	s.EnqueueBatch()
	s.RunWorker()

	ctx := context.Background()
	for _, id := range []string{"v1", "v2", "v3", "v4", "v5"} {
		v, err := videos.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, v.IsCandidate(), "%s left unprocessed", id)
	}
	v5, _ := videos.Get(ctx, "v5")
	require.NotNil(t, v5.ProductID)
	assert.Equal(t, "p1", *v5.ProductID)
}

func TestStartStop(t *testing.T) {
	runner := &fakeRunner{}
	s, err := New(runner, Config{WorkerInterval: "@every 1s"}, nil)
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return runner.drainCount() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.ErrorIs(t, s.ctx.Err(), context.Canceled)
}
