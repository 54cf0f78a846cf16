package attempts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/storage/memory"
)

type scriptedPurgeRepo struct {
	domain.AttemptRepository

	mu      sync.Mutex
	results []int
	errs    []error
	limits  []int
}

func (r *scriptedPurgeRepo) Purge(_ context.Context, _ time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.limits = append(r.limits, limit)
	var err error
	if len(r.errs) > 0 {
		err, r.errs = r.errs[0], r.errs[1:]
	}
	n := 0
	if len(r.results) > 0 {
		n, r.results = r.results[0], r.results[1:]
	}
	return n, err
}

func (r *scriptedPurgeRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limits)
}

func TestPurger_PurgeOnceDrainsFullBatches(t *testing.T) {
	repo := &scriptedPurgeRepo{results: []int{3, 3, 1}}
	purger := NewPurger(repo, WithPurgeBatchSize(3))

	removed, err := purger.PurgeOnce(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 7, removed)
	require.Equal(t, []int{3, 3, 3}, repo.limits)
}

func TestPurger_PurgeOnceIsBounded(t *testing.T) {
	results := make([]int, maxBatchesPerPass+5)
	for i := range results {
		results[i] = 1
	}
	repo := &scriptedPurgeRepo{results: results}
	purger := NewPurger(repo, WithPurgeBatchSize(1))

	removed, err := purger.PurgeOnce(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, maxBatchesPerPass, removed)
}

func TestPurger_PurgeOnceReportsPartialProgress(t *testing.T) {
	repo := &scriptedPurgeRepo{results: []int{2, 1}, errs: []error{nil, errors.New("connection reset")}}
	purger := NewPurger(repo, WithPurgeBatchSize(2))

	removed, err := purger.PurgeOnce(context.Background(), time.Now())
	require.EqualError(t, err, "connection reset")
	require.Equal(t, 3, removed)
}

func TestPurger_WithMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAttemptRepository()
	now := time.Now().UTC()
	for _, token := range []string{"a", "b", "c"} {
		_, err := repo.Reserve(ctx, token, "fp", now.Add(-time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.Reserve(ctx, "live", "fp", now.Add(time.Hour))
	require.NoError(t, err)

	removed, err := NewPurger(repo, WithPurgeBatchSize(2)).PurgeOnce(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 3, removed)
	require.Equal(t, 1, repo.Len())
}

func TestPurger_RunStopsOnCancel(t *testing.T) {
	repo := &scriptedPurgeRepo{}
	purger := NewPurger(repo, WithPurgeInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		purger.Run(ctx)
	}()

	require.Eventually(t, func() bool { return repo.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purger did not stop on context cancel")
	}
}

func TestPurger_NilRepositoryReturnsImmediately(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewPurger(nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purger without repository must not block")
	}
}
