// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/singleflight"

	"github.com/staranto/tabfetch/internal/fetch"
)

// Engine is a fetch-through cache owning a single key to Entry map. The bare
// key to value view handed to renderers is derived from that map on read, so
// the two can never disagree. An Engine is safe for concurrent use.
type Engine struct {
	fetcher fetch.Fetcher
	ttl     time.Duration
	retry   RetryOptions
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	logger  log.Interface

	mu      sync.Mutex
	entries map[string]Entry
	stats   Stats

	// Concurrent misses for the same key share one retry loop.
	flight singleflight.Group
}

// Stats are running counters for an Engine.
type Stats struct {
	Hits      int64 `json:"hits" yaml:"hits"`
	Misses    int64 `json:"misses" yaml:"misses"`
	Fetches   int64 `json:"fetches" yaml:"fetches"`
	Failures  int64 `json:"failures" yaml:"failures"`
	Evictions int64 `json:"evictions" yaml:"evictions"`
}

// Option customizes an Engine.
type Option func(*Engine)

// WithTTL sets the TTL given to fetched entries and to Set without a TTL.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

// WithRetryOptions sets the engine-level retry policy used when Get is called
// without one.
func WithRetryOptions(ro RetryOptions) Option {
	return func(e *Engine) { e.retry = ro }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep replaces the context-aware wait used between failed attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithLogger replaces the package-level apex logger.
func WithLogger(l log.Interface) Option {
	return func(e *Engine) { e.logger = l }
}

// New returns an empty Engine in front of f.
func New(f fetch.Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher: f,
		ttl:     DefaultTTL,
		retry:   DefaultRetryOptions(),
		now:     time.Now,
		sleep:   sleepContext,
		logger:  log.Log,
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get returns the value for key. Expired entries are swept first; a fresh
// entry is served without touching the fetcher. On a miss the fetcher is tried
// up to Retries times with Delay between failures, and the first success is
// stored with the engine TTL. When every attempt fails Get returns a
// *RetriesExhaustedError. Cancelling ctx abandons the loop between attempts or
// during the delay; nothing is stored in that case.
//
// Concurrent misses for the same key and the same RetryOptions share one
// loop. Callers passing different RetryOptions each run their own. If the
// caller that started a shared loop is cancelled, the others start over under
// their own contexts.
func (e *Engine) Get(ctx context.Context, key string, opts ...RetryOptions) (string, error) {
	ro := e.retry
	if len(opts) > 0 {
		ro = opts[0]
	}
	ro = ro.normalize()

	if value, ok := e.lookup(key); ok {
		return value, nil
	}

	for {
		ch := e.flight.DoChan(flightKey(key, ro), func() (any, error) {
			// A flight that finished while we were queued may have stored it.
			if value, ok := e.peek(key); ok {
				return value, nil
			}
			return e.load(ctx, key, ro)
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return "", abandoned(key, ctx.Err())
		case res = <-ch:
		}

		if res.Err == nil {
			value, _ := res.Val.(string)
			return value, nil
		}

		// The flight is out of the group by the time its result is delivered,
		// so going round again starts a fresh one.
		if errors.Is(res.Err, ErrAbandoned) && ctx.Err() == nil {
			e.logger.WithField("key", key).Debug("shared fetch was cancelled, retrying under own context")
			continue
		}
		return "", res.Err
	}
}

func flightKey(key string, ro RetryOptions) string {
	return key + "\x00" + ro.String()
}

// abandoned wraps the context error that stopped a fetch of key.
func abandoned(key string, err error) error {
	return fmt.Errorf("fetch of %q %w: %w", key, ErrAbandoned, err)
}

// lookup sweeps expired entries and then checks key, counting the result.
func (e *Engine) lookup(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.evictLocked()

	entry, ok := e.entries[key]
	if ok && !entry.Expired(e.now()) {
		e.stats.Hits++
		e.logger.WithField("key", key).Debug("cache hit")
		return entry.Value, true
	}

	e.stats.Misses++
	return "", false
}

// peek checks key without sweeping or counting.
func (e *Engine) peek(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.entries[key]
	if ok && !entry.Expired(e.now()) {
		return entry.Value, true
	}
	return "", false
}

// load runs the bounded retry loop for key.
func (e *Engine) load(ctx context.Context, key string, ro RetryOptions) (string, error) {
	var (
		attempt int
		lastErr error
	)

	for attempt < ro.Retries {
		if err := ctx.Err(); err != nil {
			return "", abandoned(key, err)
		}

		e.count(func(s *Stats) { s.Fetches++ })
		value, err := e.fetcher.Fetch(ctx, key)
		if err == nil {
			e.Set(key, value)
			return value, nil
		}

		// A fetch cut short by our own cancellation is not an endpoint failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", abandoned(key, ctxErr)
		}

		attempt++
		lastErr = err
		e.count(func(s *Stats) { s.Failures++ })
		e.logger.WithFields(log.Fields{
			"key":     key,
			"attempt": attempt,
			"of":      ro.Retries,
		}).Warnf("Fetch attempt %d failed: %s", attempt, err)

		if attempt < ro.Retries {
			if err := e.sleep(ctx, ro.Delay); err != nil {
				return "", abandoned(key, err)
			}
		}
	}

	return "", &RetriesExhaustedError{Key: key, Attempts: attempt, Last: lastErr}
}

func (e *Engine) count(fn func(*Stats)) {
	e.mu.Lock()
	fn(&e.stats)
	e.mu.Unlock()
}

// Set stores value under key with FetchedAt = now, bypassing the fetcher. The
// TTL defaults to the engine TTL.
func (e *Engine) Set(key, value string, ttl ...time.Duration) {
	d := e.ttl
	if len(ttl) > 0 {
		d = ttl[0]
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries[key] = Entry{Value: value, FetchedAt: e.now(), TTL: d}
}

// Data returns the key to value view of the cache. It is a copy.
func (e *Engine) Data() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	data := make(map[string]string, len(e.entries))
	for key, entry := range e.entries {
		data[key] = entry.Value
	}
	return data
}

// Entries returns a copy of the full cache, metadata included.
func (e *Engine) Entries() map[string]Entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := make(map[string]Entry, len(e.entries))
	for key, entry := range e.entries {
		entries[key] = entry
	}
	return entries
}

// Len is the number of entries, expired or not.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Now is the engine's clock, exposed so renderers can compute ages
// consistently with eviction.
func (e *Engine) Now() time.Time {
	return e.now()
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
