// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

// Package cache provides the keyed, time-expiring fetch-through cache that
// sits in front of a fetch.Fetcher. Entries live for a TTL, are swept lazily
// on every Get, and misses are retried with a fixed delay between attempts.
package cache
