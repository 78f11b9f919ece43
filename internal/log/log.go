// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/apex/log"
)

// InitLogger sets up Apex with a custom handler and a log level from the
// TABFETCH_LOG env variable.
func InitLogger() {
	level := strings.ToUpper(os.Getenv("TABFETCH_LOG"))
	if level == "" {
		level = "ERROR"
	}
	log.SetHandler(NewCustomHandler(os.Stderr))

	// SetLevelFromString panics on junk, so parse it ourselves.
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.ErrorLevel
	}
	log.SetLevel(lvl)
}

// CustomHandler formats log messages and writes them to w. Stdout belongs to
// command output, so the default writer is stderr.
type CustomHandler struct {
	w   io.Writer
	now func() time.Time
}

// NewCustomHandler returns a handler writing to w, or stderr when w is nil.
func NewCustomHandler(w io.Writer) *CustomHandler {
	if w == nil {
		w = os.Stderr
	}
	return &CustomHandler{w: w, now: time.Now}
}

// HandleLog implements the log.Handler interface
func (h *CustomHandler) HandleLog(e *log.Entry) error {
	timestamp := h.now().Format("2006-01-02 15:04:05")
	level := strings.ToUpper(e.Level.String())

	message := e.Message
	if len(e.Fields) > 0 {
		names := e.Fields.Names()
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%v", name, e.Fields.Get(name)))
		}
		message += " " + strings.Join(parts, " ")
	}

	_, err := fmt.Fprintf(h.w, "%s %.1s %s\n", timestamp, level, message)
	return err
}
