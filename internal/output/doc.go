// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

// Package output turns cache entries into rows and emits them as a table,
// JSON, YAML or the raw key to value view, with optional filtering and
// sorting.
package output
