// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"sort"
	"time"
)

// EvictExpired deletes every entry that is stale at now and returns the
// removed keys in sorted order. Fresh entries are never touched, so a second
// sweep at the same instant removes nothing.
func EvictExpired(entries map[string]Entry, now time.Time) []string {
	var removed []string
	for key, entry := range entries {
		if entry.Expired(now) {
			delete(entries, key)
			removed = append(removed, key)
		}
	}
	sort.Strings(removed)
	return removed
}

// EvictExpired sweeps the engine's entries and returns how many were removed.
func (e *Engine) EvictExpired() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.evictLocked())
}

// evictLocked runs the sweep. e.mu must be held.
func (e *Engine) evictLocked() []string {
	removed := EvictExpired(e.entries, e.now())
	for _, key := range removed {
		e.logger.WithField("key", key).Debug("evicted expired entry")
	}
	e.stats.Evictions += int64(len(removed))
	return removed
}
