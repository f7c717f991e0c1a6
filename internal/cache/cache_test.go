package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source for staleness tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGetOrFetchServesFreshFromCache(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "v1", nil
	}

	v, err := s.GetOrFetch(context.Background(), "agents:all", fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	// Within the freshness window the cached value is returned without
	// touching the fetch function again.
	v, err = s.GetOrFetch(context.Background(), "agents:all", fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateFresh, s.State("agents:all"))
}

func TestConcurrentReadersShareOneFetch(t *testing.T) {
	s := New()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const readers = 20
	results := make(chan any, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.GetOrFetch(context.Background(), "agents:all", fetch)
			assert.NoError(t, err)
			results <- v
		}()
	}

	// Let all readers attach before the fetch completes.
	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "all readers must share one fetch")
	for i := 0; i < readers; i++ {
		assert.Equal(t, "shared", <-results)
	}
}

func TestStaleServedWhileRevalidating(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithStaleAfter(10*time.Second))

	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		n := calls.Add(1)
		if n == 1 {
			return "v1", nil
		}
		return "v2", nil
	}

	v, err := s.GetOrFetch(context.Background(), "workflows:all", fetch)
	require.NoError(t, err)
	require.Equal(t, "v1", v)

	clock.Advance(11 * time.Second)
	assert.Equal(t, StateStale, s.State("workflows:all"))

	// The stale read returns the old value immediately.
	v, err = s.GetOrFetch(context.Background(), "workflows:all", fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	// The background revalidation lands v2.
	require.Eventually(t, func() bool {
		v, _ := s.GetOrFetch(context.Background(), "workflows:all", fetch)
		return v == "v2"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateFresh, s.State("workflows:all"))
}

func TestFailedFetchRetriesOnce(t *testing.T) {
	s := New()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return "recovered", nil
	}

	v, err := s.GetOrFetch(context.Background(), "logs:recent", fetch)
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestErrorKeepsLastKnownGoodData(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithStaleAfter(10*time.Second))

	var fail atomic.Bool
	fetch := func(ctx context.Context) (any, error) {
		if fail.Load() {
			return nil, errors.New("store down")
		}
		return "good", nil
	}

	v, err := s.GetOrFetch(context.Background(), "agents:all", fetch)
	require.NoError(t, err)
	require.Equal(t, "good", v)

	fail.Store(true)
	clock.Advance(11 * time.Second)

	// Stale read kicks off a revalidation that fails twice.
	_, _ = s.GetOrFetch(context.Background(), "agents:all", fetch)
	require.Eventually(t, func() bool {
		return s.State("agents:all") == StateError
	}, time.Second, 5*time.Millisecond)

	// The errored entry still serves the last good value with the error.
	v, err = s.GetOrFetch(context.Background(), "agents:all", fetch)
	assert.Error(t, err)
	assert.Equal(t, "good", v, "transient failure must not blank cached data")
}

func TestInvalidateTriggersImmediateRefetch(t *testing.T) {
	s := New()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return "before", nil
		}
		return "after", nil
	}

	v, err := s.GetOrFetch(context.Background(), "agents:all", fetch)
	require.NoError(t, err)
	require.Equal(t, "before", v)

	s.Invalidate("agents:all")

	require.Eventually(t, func() bool {
		v, _ := s.GetOrFetch(context.Background(), "agents:all", fetch)
		return v == "after"
	}, time.Second, 5*time.Millisecond)
}

func TestInvalidateDuringFetchSchedulesFollowup(t *testing.T) {
	s := New()

	var calls atomic.Int32
	first := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		n := calls.Add(1)
		if n == 1 {
			<-first
			return "stale-response", nil
		}
		return "current", nil
	}

	done := make(chan any, 1)
	go func() {
		v, _ := s.GetOrFetch(context.Background(), "agents:all", fetch)
		done <- v
	}()

	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// The mutation lands while the fetch is in flight; its response may
	// predate the change, so a follow-up fetch must be scheduled.
	s.Invalidate("agents:all")
	close(first)

	assert.Equal(t, "stale-response", <-done)
	require.Eventually(t, func() bool {
		v, _ := s.GetOrFetch(context.Background(), "agents:all", fetch)
		return v == "current"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRefreshPassOnlyTouchesMountedKeys(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithStaleAfter(10*time.Second))

	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "v", nil
	}

	_, err := s.GetOrFetch(context.Background(), "logs:recent", fetch)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	clock.Advance(11 * time.Second)

	// Unmounted: a refresh pass leaves the key alone.
	s.Refocus()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	// Mounted: the same pass refetches it.
	s.Mount("logs:recent")
	s.Refocus()
	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, time.Second, 5*time.Millisecond)

	// Unmount drops it from scheduling again, but keeps the data.
	s.Unmount("logs:recent")
	clock.Advance(11 * time.Second)
	s.Refocus()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, StateStale, s.State("logs:recent"))
}

func TestAwaitHonorsCallerContext(t *testing.T) {
	s := New()

	release := make(chan struct{})
	defer close(release)
	fetch := func(ctx context.Context) (any, error) {
		<-release
		return "late", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.GetOrFetch(ctx, "agents:all", fetch)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("caller was not released on context cancellation")
	}
}

func TestListReturnsSnapshotCopy(t *testing.T) {
	s := New()

	fetch := func(ctx context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	}

	first, err := List(context.Background(), s, "agents:all", fetch)
	require.NoError(t, err)

	// Mutating the returned slice must not leak into the cache.
	first[0] = "mutated"

	second, err := List(context.Background(), s, "agents:all", fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, second)
}

func TestStateIdleForUnknownKey(t *testing.T) {
	s := New()
	assert.Equal(t, StateIdle, s.State("never-seen"))
	assert.Equal(t, "idle", s.State("never-seen").String())
}
