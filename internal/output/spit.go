// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v2"

	"github.com/staranto/tabfetch/internal/cache"
	"github.com/staranto/tabfetch/internal/config"
)

// Formats accepted by --output.
var Formats = []string{"text", "json", "raw", "yaml"}

// DefaultColumns are the row keys shown when no columns are requested.
var DefaultColumns = []string{"key", "value", "age", "expires"}

// AllColumns are every key of a row built by Rows.
var AllColumns = []string{"key", "value", "fetched_at", "ttl", "age", "expires", "expired"}

// ParseColumns splits a comma-separated column list, dropping blanks.
func ParseColumns(s string) []string {
	var columns []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			columns = append(columns, c)
		}
	}
	return columns
}

// Options control how Spit renders a result set.
type Options struct {
	Format  string
	Titles  bool
	Color   bool
	Filter  string
	Sort    string
	Columns []string
}

// Rows flattens cache entries into one row per key. Relative times are
// computed against now so they agree with the engine's eviction clock.
func Rows(entries map[string]cache.Entry, now time.Time) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(entries))
	for key, entry := range entries {
		rows = append(rows, map[string]interface{}{
			"key":        key,
			"value":      entry.Value,
			"fetched_at": entry.FetchedAt.UTC().Format(time.RFC3339),
			"ttl":        entry.TTL.String(),
			"age":        humanize.RelTime(entry.FetchedAt, now, "ago", "from now"),
			"expires":    humanize.RelTime(entry.ExpiresAt(), now, "ago", "from now"),
			"expired":    entry.Expired(now),
		})
	}
	// Map iteration order is random, give callers a stable default.
	SortDataset(rows, "key")
	return rows
}

// Spit filters, sorts and renders rows to w. raw emits the bare key to value
// view as a JSON object and ignores filter and sort.
func Spit(w io.Writer, rows []map[string]interface{}, view map[string]string, opts Options) error {
	if w == nil {
		w = os.Stdout
	}

	if opts.Format == "raw" {
		b, err := json.Marshal(view)
		if err != nil {
			return fmt.Errorf("failed to marshal view: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	filtered := FilterDataset(rows, opts.Filter)
	SortDataset(filtered, opts.Sort)

	columns := opts.Columns
	if len(columns) == 0 {
		columns = DefaultColumns
	}

	switch opts.Format {
	case "json":
		b, err := json.Marshal(project(filtered, columns))
		if err != nil {
			return fmt.Errorf("failed to marshal json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "yaml":
		b, err := yaml.Marshal(project(filtered, columns))
		if err != nil {
			return fmt.Errorf("failed to marshal yaml: %w", err)
		}
		_, err = w.Write(b)
		return err
	default:
		TableWriter(w, filtered, columns, opts)
		return nil
	}
}

// project keeps only the named columns of each row.
func project(rows []map[string]interface{}, columns []string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		p := make(map[string]interface{}, len(columns))
		for _, c := range columns {
			if v, ok := row[c]; ok {
				p[c] = v
			}
		}
		out = append(out, p)
	}
	return out
}

// TableWriter renders the result set in a tabular form honoring color and
// titles options.
func TableWriter(w io.Writer, resultSet []map[string]interface{}, columns []string, opts Options) {
	if len(resultSet) == 0 {
		return
	}

	var (
		headerStyle  = lipgloss.NewStyle().Align(lipgloss.Left)
		cellStyle    = lipgloss.NewStyle().Padding(0, 0).Align(lipgloss.Left)
		evenRowStyle = cellStyle
		oddRowStyle  = cellStyle
	)

	if opts.Color {
		headerColor, evenColor, oddColor := getColors("colors")

		headerStyle = headerStyle.Foreground(lipgloss.Color(headerColor))
		evenRowStyle = evenRowStyle.Foreground(lipgloss.Color(evenColor))
		oddRowStyle = oddRowStyle.Foreground(lipgloss.Color(oddColor))
	}

	pad, _ := config.GetInt("padding", 1)
	log.Debugf("padding: %v", pad)

	var rows [][]string
	for _, result := range resultSet {
		row := make([]string, 0, len(columns))
		for _, c := range columns {
			row = append(row, InterfaceToString(result[c], "-"))
		}
		rows = append(rows, row)
	}

	t := table.New().
		BorderBottom(false).
		BorderTop(false).
		BorderLeft(false).
		BorderRight(false).
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			var style lipgloss.Style
			switch {
			case row == table.HeaderRow:
				style = headerStyle
			case row%2 == 0:
				style = evenRowStyle
			default:
				style = oddRowStyle
			}

			if col > 0 {
				style = style.PaddingLeft(pad)
			}

			return style
		}).
		Headers().
		Rows(rows...)

	if opts.Titles {
		// https://github.com/charmbracelet/lipgloss/issues/261
		t = t.Headers(columns...).BorderHeader(false)
	}
	fmt.Fprintln(w, t)
}

// getColors returns configured color values for table rendering.
func getColors(key string) (header string, even string, odd string) {
	header, _ = config.GetString(fmt.Sprintf("%s.title", key), "#f6be00")
	even, _ = config.GetString(fmt.Sprintf("%s.even", key), "#ffffff")
	odd, _ = config.GetString(fmt.Sprintf("%s.odd", key), "#00c8f0")
	return
}

// SortDataset sorts rows in place by a comma-separated list of keys. A
// leading '-' sorts that key descending; a leading '!' makes the string
// comparison case sensitive. Numbers compare numerically.
func SortDataset(rows []map[string]interface{}, spec string) {
	if spec == "" || len(rows) < 2 {
		return
	}

	type sortKey struct {
		name      string
		desc      bool
		sensitive bool
	}

	var keys []sortKey
	for _, s := range strings.Split(spec, ",") {
		s = strings.TrimSpace(s)
		k := sortKey{}
		for len(s) > 0 && (s[0] == '-' || s[0] == '!') {
			if s[0] == '-' {
				k.desc = true
			} else {
				k.sensitive = true
			}
			s = s[1:]
		}
		if s == "" {
			continue
		}
		k.name = s
		keys = append(keys, k)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			c := compareValues(rows[i][k.name], rows[j][k.name], k.sensitive)
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareValues(a, b interface{}, sensitive bool) int {
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}

	sa, sb := InterfaceToString(a), InterfaceToString(b)
	if !sensitive {
		sa, sb = strings.ToLower(sa), strings.ToLower(sb)
	}
	return strings.Compare(sa, sb)
}

// InterfaceToString converts supported primitive or composite values to a
// string. A custom empty value may be provided.
func InterfaceToString(value interface{}, emptyValue ...string) string {
	if len(emptyValue) == 0 {
		emptyValue = []string{""}
	}

	if value == nil || reflect.ValueOf(value).IsZero() {
		return emptyValue[0]
	}

	switch value := value.(type) {
	case string:
		return value
	case int:
		return strconv.Itoa(value)
	case float64:
		// Nothing rendered here needs a fractional part.
		return fmt.Sprintf("%.0f", value)
	case bool:
		return strconv.FormatBool(value)
	default:
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(jsonBytes)
	}
}
