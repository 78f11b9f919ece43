// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"fmt"
	"time"
)

// Engine defaults, overridable per engine (Option) or per call (RetryOptions).
const (
	DefaultTTL     = 10 * time.Second
	DefaultRetries = 3
	DefaultDelay   = 1 * time.Second
)

// Entry is a single cached value. Entries are replaced whole, never updated
// in place.
type Entry struct {
	Value     string        `json:"value" yaml:"value"`
	FetchedAt time.Time     `json:"fetched_at" yaml:"fetched_at"`
	TTL       time.Duration `json:"ttl" yaml:"ttl"`
}

// Expired reports whether the entry is stale at now. An entry is stale once
// now - FetchedAt reaches TTL.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.FetchedAt) >= e.TTL
}

// ExpiresAt is the instant the entry becomes stale.
func (e Entry) ExpiresAt() time.Time {
	return e.FetchedAt.Add(e.TTL)
}

// RetryOptions bound the fetch loop on a miss.
type RetryOptions struct {
	// Retries is the total number of fetch attempts, not the number of
	// re-tries after the first.
	Retries int
	// Delay is the fixed wait between failed attempts.
	Delay time.Duration
}

// DefaultRetryOptions returns {Retries: 3, Delay: 1s}.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{Retries: DefaultRetries, Delay: DefaultDelay}
}

// normalize clamps Retries to at least one attempt and Delay to zero or more.
func (o RetryOptions) normalize() RetryOptions {
	if o.Retries < 1 {
		o.Retries = 1
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	return o
}

func (o RetryOptions) String() string {
	return fmt.Sprintf("retries=%d delay=%s", o.Retries, o.Delay)
}
