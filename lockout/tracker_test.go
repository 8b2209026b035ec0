package lockout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type storeFactory struct {
	name string
	new  func(t *testing.T) Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{name: "memory", new: func(*testing.T) Store { return NewMemoryStore(0) }},
		{name: "redis", new: func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return NewRedisStore(rdb, "")
		}},
	}
}

func newTracker(t *testing.T, store Store, clock *fakeClock) *Tracker {
	t.Helper()
	tr, err := New(store, DefaultConfig(), WithClock(clock.Now))
	require.NoError(t, err)
	return tr
}

func TestTrackerLocksAfterMaxAttempts(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			tr := newTracker(t, f.new(t), clock)

			for i := 1; i < DefaultMaxAttempts; i++ {
				out, err := tr.RecordFailedAttempt(ctx, "teacher@example.com")
				require.NoError(t, err)
				assert.False(t, out.Locked)
				assert.Equal(t, DefaultMaxAttempts-i, out.RemainingAttempts)
			}

			out, err := tr.RecordFailedAttempt(ctx, "teacher@example.com")
			require.NoError(t, err)
			assert.True(t, out.Locked)
			assert.Equal(t, 0, out.RemainingAttempts)
			assert.True(t, out.LockoutUntil.Equal(clock.Now().Add(DefaultLockoutDuration)))

			d, err := tr.CanAttempt(ctx, "teacher@example.com")
			require.NoError(t, err)
			assert.False(t, d.Allowed)
			assert.True(t, d.Locked)
			assert.Equal(t, DefaultLockoutDuration, d.RetryAfter)
		})
	}
}

func TestTrackerNormalizesIdentifier(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			tr := newTracker(t, f.new(t), newFakeClock())

			_, err := tr.RecordFailedAttempt(ctx, "  Teacher@Example.COM ")
			require.NoError(t, err)

			d, err := tr.CanAttempt(ctx, "teacher@example.com")
			require.NoError(t, err)
			assert.Equal(t, DefaultMaxAttempts-1, d.RemainingAttempts)
		})
	}
}

func TestTrackerEmptyIdentifierIsNeverTracked(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	tr := newTracker(t, store, newFakeClock())

	for i := 0; i < DefaultMaxAttempts*2; i++ {
		out, err := tr.RecordFailedAttempt(ctx, "   ")
		require.NoError(t, err)
		assert.False(t, out.Locked)
		assert.Equal(t, DefaultMaxAttempts, out.RemainingAttempts)
	}

	d, err := tr.CanAttempt(ctx, "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, DefaultMaxAttempts, d.RemainingAttempts)
	assert.Equal(t, 0, store.Len())
}

func TestTrackerLockoutExpires(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			tr := newTracker(t, f.new(t), clock)

			for i := 0; i < DefaultMaxAttempts; i++ {
				_, err := tr.RecordFailedAttempt(ctx, "parent@example.com")
				require.NoError(t, err)
			}

			clock.Advance(DefaultLockoutDuration - time.Second)
			d, err := tr.CanAttempt(ctx, "parent@example.com")
			require.NoError(t, err)
			assert.True(t, d.Locked)
			assert.Equal(t, time.Second, d.RetryAfter)

			clock.Advance(time.Second)
			d, err = tr.CanAttempt(ctx, "parent@example.com")
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, DefaultMaxAttempts, d.RemainingAttempts)
		})
	}
}

func TestTrackerWindowExpiresWithoutLock(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			tr := newTracker(t, f.new(t), clock)

			for i := 0; i < DefaultMaxAttempts-1; i++ {
				_, err := tr.RecordFailedAttempt(ctx, "student@example.com")
				require.NoError(t, err)
			}

			clock.Advance(DefaultWindow)
			out, err := tr.RecordFailedAttempt(ctx, "student@example.com")
			require.NoError(t, err)
			assert.False(t, out.Locked)
			assert.Equal(t, 1, out.Attempts)
			assert.Equal(t, DefaultMaxAttempts-1, out.RemainingAttempts)
		})
	}
}

func TestTrackerLockedStateIsNotExtended(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			tr := newTracker(t, f.new(t), clock)

			var first Outcome
			for i := 0; i < DefaultMaxAttempts; i++ {
				out, err := tr.RecordFailedAttempt(ctx, "admin@example.com")
				require.NoError(t, err)
				first = out
			}

			clock.Advance(time.Minute)
			out, err := tr.RecordFailedAttempt(ctx, "admin@example.com")
			require.NoError(t, err)
			assert.True(t, out.Locked)
			assert.Equal(t, DefaultMaxAttempts, out.Attempts)
			assert.True(t, out.LockoutUntil.Equal(first.LockoutUntil))
		})
	}
}

func TestTrackerResetClearsState(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			tr := newTracker(t, f.new(t), newFakeClock())

			for i := 0; i < DefaultMaxAttempts; i++ {
				_, err := tr.RecordFailedAttempt(ctx, "librarian@example.com")
				require.NoError(t, err)
			}
			require.NoError(t, tr.Reset(ctx, "LIBRARIAN@example.com"))

			d, err := tr.CanAttempt(ctx, "librarian@example.com")
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, DefaultMaxAttempts, d.RemainingAttempts)
		})
	}
}

func TestTrackerConcurrentFailuresNeverUnderCount(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := Config{MaxAttempts: 1000, Window: time.Hour, LockoutDuration: time.Minute}
			tr, err := New(f.new(t), cfg, WithClock(newFakeClock().Now))
			require.NoError(t, err)

			const workers = 20
			const perWorker = 10
			var wg sync.WaitGroup
			wg.Add(workers)
			for w := 0; w < workers; w++ {
				go func() {
					defer wg.Done()
					for i := 0; i < perWorker; i++ {
						_, _ = tr.RecordFailedAttempt(ctx, "race@example.com")
					}
				}()
			}
			wg.Wait()

			d, err := tr.CanAttempt(ctx, "race@example.com")
			require.NoError(t, err)
			assert.Equal(t, cfg.MaxAttempts-workers*perWorker, d.RemainingAttempts)
		})
	}
}

func TestTrackerConcurrentFailuresLockExactlyAtThreshold(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t, NewMemoryStore(0), newFakeClock())

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		locked int
	)
	wg.Add(DefaultMaxAttempts)
	for i := 0; i < DefaultMaxAttempts; i++ {
		go func() {
			defer wg.Done()
			out, err := tr.RecordFailedAttempt(ctx, "burst@example.com")
			if err == nil && out.Locked {
				mu.Lock()
				locked++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, locked)
	d, err := tr.CanAttempt(ctx, "burst@example.com")
	require.NoError(t, err)
	assert.True(t, d.Locked)
}

func TestMemoryStoreSweepsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore(2)
	tr := newTracker(t, store, clock)

	_, _ = tr.RecordFailedAttempt(ctx, "a@example.com")
	_, _ = tr.RecordFailedAttempt(ctx, "b@example.com")
	clock.Advance(DefaultWindow)
	_, _ = tr.RecordFailedAttempt(ctx, "c@example.com")

	assert.Equal(t, 1, store.Len())
}

func TestRedisStoreSetsKeyTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	tr := newTracker(t, NewRedisStore(rdb, "test:"), newFakeClock())
	_, err := tr.RecordFailedAttempt(ctx, "ttl@example.com")
	require.NoError(t, err)

	assert.Equal(t, DefaultWindow, mr.TTL("test:ttl@example.com"))
}

func TestRedisStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	tr := newTracker(t, NewRedisStore(rdb, ""), newFakeClock())
	_, err := tr.CanAttempt(ctx, "down@example.com")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestApplyFailureTransitions(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	s := ApplyFailure(State{}, now, cfg)
	assert.Equal(t, State{Count: 1, FirstAttemptAt: now}, s)

	s = ApplyFailure(s, now.Add(time.Minute), cfg)
	assert.Equal(t, 2, s.Count)
	assert.True(t, s.FirstAttemptAt.Equal(now))

	for i := 0; i < 3; i++ {
		s = ApplyFailure(s, now.Add(2*time.Minute), cfg)
	}
	assert.Equal(t, cfg.MaxAttempts, s.Count)
	assert.True(t, s.LockedAt(now.Add(2*time.Minute)))
	assert.False(t, s.LockedAt(now.Add(7*time.Minute)))
	assert.True(t, s.ExpiredAt(now.Add(7*time.Minute), cfg))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, Config{}.Validate(), ErrInvalidConfig)
	_, err := New(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
