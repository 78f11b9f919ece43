// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

// Package fetch performs single, uncached lookups of tab content against a
// remote endpoint and extracts the scalar value shown to the user.
package fetch
