package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMemoryCounterStore_IncrementsUntilMax(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewMemoryCounterStore()

	for i := int64(1); i <= 3; i++ {
		res, err := s.CheckAndIncrement(ctx, "k", 3, time.Minute)
		req.NoError(err)
		req.False(res.Limited)
		req.Equal(i, res.Count)
	}

	res, err := s.CheckAndIncrement(ctx, "k", 3, time.Minute)
	req.NoError(err)
	req.True(res.Limited)
	req.Equal(int64(3), res.Count, "limited call must not write")

	n, ok, err := s.Get(ctx, "k")
	req.NoError(err)
	req.True(ok)
	req.Equal(int64(3), n)
}

func TestMemoryCounterStore_ConcurrentCallersNeverExceedMax(t *testing.T) {
	s := NewMemoryCounterStore()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.CheckAndIncrement(context.Background(), "k", 10, time.Minute)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if !res.Limited {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(10), allowed.Load())
	n, _, _ := s.Get(context.Background(), "k")
	require.Equal(t, int64(10), n)
}

func TestMemoryCounterStore_ExpiresAfterTTL(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	clock := &testClock{t: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	s := NewMemoryCounterStore(WithCounterClock(clock.Now), WithCleanupEvery(0))

	_, err := s.CheckAndIncrement(ctx, "k", 5, 10*time.Second)
	req.NoError(err)

	ttl, ok, err := s.TTL(ctx, "k")
	req.NoError(err)
	req.True(ok)
	req.Equal(10*time.Second, ttl)

	clock.Advance(10 * time.Second)

	_, ok, err = s.Get(ctx, "k")
	req.NoError(err)
	req.False(ok)

	res, err := s.CheckAndIncrement(ctx, "k", 5, 10*time.Second)
	req.NoError(err)
	req.Equal(int64(1), res.Count)
}

func TestMemoryCounterStore_CleanupRemovesExpiredEntries(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	s := NewMemoryCounterStore(WithCounterClock(clock.Now), WithCleanupEvery(0))

	_, _ = s.CheckAndIncrement(context.Background(), "a", 5, time.Second)
	_, _ = s.CheckAndIncrement(context.Background(), "b", 5, time.Hour)
	clock.Advance(2 * time.Second)

	s.Cleanup()

	if s.Len() != 1 {
		t.Fatalf("expected only the live counter to remain, got %d", s.Len())
	}
}

func TestMemoryCounterStore_DeleteResets(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewMemoryCounterStore()

	_, _ = s.CheckAndIncrement(ctx, "k", 5, time.Minute)
	req.NoError(s.Delete(ctx, "k"))

	_, ok, err := s.Get(ctx, "k")
	req.NoError(err)
	req.False(ok)
}

func TestMemoryCounterStore_ZeroMaxAlwaysLimited(t *testing.T) {
	s := NewMemoryCounterStore()
	res, err := s.CheckAndIncrement(context.Background(), "k", 0, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Limited)
	require.Equal(t, 0, s.Len())
}
