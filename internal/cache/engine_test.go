// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/tabfetch/internal/fetch"
)

// stubFetcher replays a script of results and counts calls.
type stubFetcher struct {
	mu     sync.Mutex
	calls  []string
	script []result
	dflt   result
}

type result struct {
	value string
	err   error
}

func (s *stubFetcher) Fetch(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, key)
	if len(s.script) > 0 {
		r := s.script[0]
		s.script = s.script[1:]
		return r.value, r.err
	}
	return s.dflt.value, s.dflt.err
}

func (s *stubFetcher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
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

// noSleep records requested delays without waiting.
type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (n *noSleep) Sleep(ctx context.Context, d time.Duration) error {
	n.mu.Lock()
	n.delays = append(n.delays, d)
	n.mu.Unlock()
	return ctx.Err()
}

func memLogger() (*memory.Handler, log.Interface) {
	h := memory.New()
	return h, &log.Logger{Handler: h, Level: log.DebugLevel}
}

var errNetwork = errors.New("Network error")

func TestGet_CacheHitAvoidsNetwork(t *testing.T) {
	f := &stubFetcher{dflt: result{value: "fetched data"}}
	e := New(f)
	ctx := context.Background()

	got, err := e.Get(ctx, "testKey")
	require.NoError(t, err)
	assert.Equal(t, "fetched data", got)
	assert.Equal(t, "fetched data", e.Data()["testKey"])

	got, err = e.Get(ctx, "testKey")
	require.NoError(t, err)
	assert.Equal(t, "fetched data", got)
	assert.Equal(t, 1, f.Calls(), "second Get must be served from cache")
	assert.Equal(t, []string{"testKey"}, f.calls)
}

func TestGet_ExpiryTriggersRefetch(t *testing.T) {
	f := &stubFetcher{dflt: result{value: "cached data"}}
	e := New(f)

	e.Set("testKey", "stale data", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	got, err := e.Get(context.Background(), "testKey")
	require.NoError(t, err)
	assert.Equal(t, "cached data", got)
	assert.Equal(t, 1, f.Calls())
	assert.Equal(t, "cached data", e.Data()["testKey"])
}

func TestGet_ExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	f := &stubFetcher{dflt: result{value: "fresh"}}
	e := New(f, WithClock(clock.Now), WithTTL(10*time.Second))

	e.Set("k", "seeded")

	clock.Advance(10*time.Second - time.Nanosecond)
	got, err := e.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "seeded", got, "one tick before TTL is still fresh")
	assert.Equal(t, 0, f.Calls())

	clock.Advance(time.Nanosecond)
	got, err = e.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got, "now - fetchedAt == ttl is stale")
	assert.Equal(t, 1, f.Calls())

	entry := e.Entries()["k"]
	assert.Equal(t, clock.Now(), entry.FetchedAt)
	assert.Equal(t, 10*time.Second, entry.TTL)
}

func TestGet_RetryThenSucceed(t *testing.T) {
	f := &stubFetcher{script: []result{
		{err: errNetwork},
		{err: errNetwork},
		{value: "cached data"},
	}}
	sleeper := &noSleep{}
	e := New(f, WithSleep(sleeper.Sleep))

	got, err := e.Get(context.Background(), "testKey", RetryOptions{Retries: 3, Delay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "cached data", got)
	assert.Equal(t, 3, f.Calls())
	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, sleeper.delays)
	assert.Equal(t, "cached data", e.Data()["testKey"])
}

func TestGet_RetryThenSucceed_RealDelay(t *testing.T) {
	f := &stubFetcher{script: []result{{err: errNetwork}, {err: errNetwork}, {value: "v"}}}
	e := New(f)

	start := time.Now()
	got, err := e.Get(context.Background(), "k", RetryOptions{Retries: 3, Delay: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestGet_RetriesExhausted(t *testing.T) {
	f := &stubFetcher{dflt: result{err: errNetwork}}
	sleeper := &noSleep{}
	e := New(f, WithSleep(sleeper.Sleep))

	_, err := e.Get(context.Background(), "testKey", RetryOptions{Retries: 3, Delay: 0})
	require.Error(t, err)
	assert.Equal(t, 3, f.Calls())
	assert.Len(t, sleeper.delays, 2, "no wait after the final attempt")

	var rex *RetriesExhaustedError
	require.True(t, errors.As(err, &rex))
	assert.Equal(t, 3, rex.Attempts)
	assert.Equal(t, "testKey", rex.Key)
	assert.Equal(t, "Failed to fetch data after 3 attempts", err.Error())
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, errNetwork, "last cause is chained")

	_, ok := e.Data()["testKey"]
	assert.False(t, ok, "failed fetch stores nothing")
}

func TestGet_RetriesExhausted_RemoteFetchError(t *testing.T) {
	f := &stubFetcher{dflt: result{err: &fetch.RemoteFetchError{Key: "1", Status: 500}}}
	e := New(f, WithSleep((&noSleep{}).Sleep))

	_, err := e.Get(context.Background(), "1")
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, fetch.ErrResponseNotOK)
	assert.Equal(t, DefaultRetries, f.Calls())
}

func TestGet_DefaultRetryOptions(t *testing.T) {
	f := &stubFetcher{dflt: result{err: errNetwork}}
	sleeper := &noSleep{}
	e := New(f, WithSleep(sleeper.Sleep))

	_, err := e.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Equal(t, 3, f.Calls())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeper.delays)
}

func TestGet_EngineRetryOptions(t *testing.T) {
	f := &stubFetcher{dflt: result{err: errNetwork}}
	sleeper := &noSleep{}
	e := New(f, WithSleep(sleeper.Sleep), WithRetryOptions(RetryOptions{Retries: 5, Delay: 20 * time.Millisecond}))

	_, err := e.Get(context.Background(), "k")
	var rex *RetriesExhaustedError
	require.True(t, errors.As(err, &rex))
	assert.Equal(t, 5, rex.Attempts)
	assert.Len(t, sleeper.delays, 4)
}

func TestGet_NormalizesRetryOptions(t *testing.T) {
	tests := []struct {
		name      string
		opts      RetryOptions
		wantCalls int
	}{
		{name: "zero retries still tries once", opts: RetryOptions{Retries: 0}, wantCalls: 1},
		{name: "negative retries", opts: RetryOptions{Retries: -4}, wantCalls: 1},
		{name: "negative delay", opts: RetryOptions{Retries: 2, Delay: -time.Second}, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &stubFetcher{dflt: result{err: errNetwork}}
			sleeper := &noSleep{}
			e := New(f, WithSleep(sleeper.Sleep))

			_, err := e.Get(context.Background(), "k", tt.opts)
			assert.ErrorIs(t, err, ErrRetriesExhausted)
			assert.Equal(t, tt.wantCalls, f.Calls())
			for _, d := range sleeper.delays {
				assert.GreaterOrEqual(t, d, time.Duration(0))
			}
		})
	}
}

func TestGet_LogsEachAttempt(t *testing.T) {
	h, l := memLogger()
	f := &stubFetcher{dflt: result{err: errNetwork}}
	e := New(f, WithSleep((&noSleep{}).Sleep), WithLogger(l))

	_, err := e.Get(context.Background(), "k", RetryOptions{Retries: 2})
	require.Error(t, err)

	var warnings []string
	for _, entry := range h.Entries {
		if entry.Level == log.WarnLevel {
			warnings = append(warnings, entry.Message)
		}
	}
	assert.Equal(t, []string{
		"Fetch attempt 1 failed: Network error",
		"Fetch attempt 2 failed: Network error",
	}, warnings)
}

func TestGet_CancelDuringDelay(t *testing.T) {
	f := &stubFetcher{dflt: result{err: errNetwork}}
	e := New(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Get(ctx, "k", RetryOptions{Retries: 3, Delay: time.Hour})
		done <- err
	}()

	require.Eventually(t, func() bool { return f.Calls() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrRetriesExhausted)
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not return after cancel")
	}
	assert.Equal(t, 1, f.Calls())
	assert.Equal(t, 0, e.Len())
}

func TestGet_CancelledBeforeStart(t *testing.T) {
	f := &stubFetcher{dflt: result{value: "v"}}
	e := New(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.Calls())
}

func TestGet_CancelledStillServesCache(t *testing.T) {
	f := &stubFetcher{}
	e := New(f)
	e.Set("k", "cached")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := e.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, "cached", got)
}

func TestGet_ConcurrentSameKeyDeduplicated(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	f := fetch.Func(func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		<-release
		return "value-" + key, nil
	})
	e := New(f)

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Get(context.Background(), "k")
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "value-k", results[i])
	}
}

func TestGet_CancelledLeaderDoesNotFailFollower(t *testing.T) {
	var calls atomic.Int32
	f := fetch.Func(func(ctx context.Context, key string) (string, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "value-" + key, nil
	})
	e := New(f)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := e.Get(leaderCtx, "1")
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	type outcome struct {
		value string
		err   error
	}
	follower := make(chan outcome, 1)
	go func() {
		v, err := e.Get(context.Background(), "1")
		follower <- outcome{v, err}
	}()
	// Give the follower time to join the leader's fetch.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case got := <-follower:
		require.NoError(t, got.err)
		assert.Equal(t, "value-1", got.value)
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not return")
	}

	err := <-leaderErr
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "value-1", e.Data()["1"])
	assert.Equal(t, int64(0), e.Stats().Failures)
}

func TestGet_PerCallRetryOptionsNotShared(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	f := fetch.Func(func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		<-release
		return "", errNetwork
	})
	e := New(f, WithSleep((&noSleep{}).Sleep))

	get := func(ro RetryOptions) chan error {
		ch := make(chan error, 1)
		go func() {
			_, err := e.Get(context.Background(), "k", ro)
			ch <- err
		}()
		return ch
	}
	once := get(RetryOptions{Retries: 1})
	thrice := get(RetryOptions{Retries: 3})

	// Both loops are in flight at the same time.
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	close(release)

	var rex *RetriesExhaustedError
	require.ErrorAs(t, <-once, &rex)
	assert.Equal(t, 1, rex.Attempts)
	require.ErrorAs(t, <-thrice, &rex)
	assert.Equal(t, 3, rex.Attempts)
	assert.Equal(t, int32(4), calls.Load())
}

func TestGet_OwnCancellationIsNotAFailure(t *testing.T) {
	h, l := memLogger()
	started := make(chan struct{})
	f := fetch.Func(func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	e := New(f, WithLogger(l))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Get(ctx, "k")
		done <- err
	}()
	<-started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAbandoned)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, `fetch of "k" abandoned: context canceled`, err.Error())
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not return after cancel")
	}

	// The loop may still be unwinding; it must not report a failure either way.
	require.Never(t, func() bool { return e.Stats().Failures > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, int64(1), e.Stats().Fetches)
	for _, entry := range h.Entries {
		assert.NotEqual(t, log.WarnLevel, entry.Level, entry.Message)
	}
}

func TestGet_DifferentKeysIndependent(t *testing.T) {
	f := fetch.Func(func(_ context.Context, key string) (string, error) {
		if key == "bad" {
			return "", errNetwork
		}
		return "value-" + key, nil
	})
	e := New(f, WithSleep((&noSleep{}).Sleep))

	var wg sync.WaitGroup
	for _, key := range []string{"1", "2", "3", "bad"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _ = e.Get(context.Background(), key)
		}(key)
	}
	wg.Wait()

	assert.Equal(t, map[string]string{"1": "value-1", "2": "value-2", "3": "value-3"}, e.Data())
}

func TestGet_EvictsOtherExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	f := &stubFetcher{dflt: result{value: "v"}}
	e := New(f, WithClock(clock.Now))

	e.Set("short", "a", time.Second)
	e.Set("long", "b", time.Hour)
	clock.Advance(2 * time.Second)

	assert.Equal(t, 2, e.Len(), "nothing is swept until an access")

	_, err := e.Get(context.Background(), "long")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"long": "b"}, e.Data())
	assert.Equal(t, int64(1), e.Stats().Evictions)
	assert.Equal(t, 0, f.Calls())
}

func TestSet(t *testing.T) {
	clock := newFakeClock()
	e := New(&stubFetcher{}, WithClock(clock.Now), WithTTL(3*time.Second))

	e.Set("a", "1")
	e.Set("b", "2", time.Minute)
	e.Set("a", "replaced")

	entries := e.Entries()
	assert.Equal(t, Entry{Value: "replaced", FetchedAt: clock.Now(), TTL: 3 * time.Second}, entries["a"])
	assert.Equal(t, Entry{Value: "2", FetchedAt: clock.Now(), TTL: time.Minute}, entries["b"])
}

func TestData_ConsistentWithEntries(t *testing.T) {
	clock := newFakeClock()
	f := fetch.Func(func(_ context.Context, key string) (string, error) {
		return fmt.Sprintf("title %s", key), nil
	})
	e := New(f, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		_, err := e.Get(context.Background(), fmt.Sprint(i))
		require.NoError(t, err)
		clock.Advance(3 * time.Second)
	}

	data := e.Data()
	entries := e.Entries()
	assert.Equal(t, len(entries), len(data))
	for k, entry := range entries {
		assert.Equal(t, entry.Value, data[k])
	}

	// Key 1 is more than 10s old by now and goes on the next access.
	_, err := e.Get(context.Background(), "4")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2", "3", "4"}, keys(e.Data()))
}

func TestData_IsACopy(t *testing.T) {
	e := New(&stubFetcher{})
	e.Set("k", "v")

	data := e.Data()
	data["k"] = "mutated"
	delete(data, "k")

	assert.Equal(t, "v", e.Data()["k"])
}

func TestStats(t *testing.T) {
	f := &stubFetcher{script: []result{{err: errNetwork}, {value: "v"}}}
	e := New(f, WithSleep((&noSleep{}).Sleep))
	ctx := context.Background()

	_, _ = e.Get(ctx, "k")
	_, _ = e.Get(ctx, "k")
	_, _ = e.Get(ctx, "k")

	s := e.Stats()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(2), s.Fetches)
	assert.Equal(t, int64(1), s.Failures)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleepContext(ctx, 0), context.Canceled)
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
