// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrRetriesExhausted is matched by every *RetriesExhaustedError.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrAbandoned is matched when Get or its fetch loop stopped because a
	// context was done. The context error is wrapped alongside it.
	ErrAbandoned = errors.New("abandoned")
)

// RetriesExhaustedError is returned by Get when every attempt failed. The
// message carries only the attempt count. Last holds the final attempt's
// error and is reachable through errors.Is/As, not through Error().
type RetriesExhaustedError struct {
	Key      string
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("Failed to fetch data after %d attempts", e.Attempts)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}
