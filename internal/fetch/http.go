// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/apex/log"
	"github.com/hashicorp/go-cleanhttp"
)

// maxBody caps how much of a response is read. Tab content is a short string.
const maxBody = 1 << 20

// HTTP fetches GET {BaseURL}/posts/{key} and extracts Field from the JSON body.
type HTTP struct {
	BaseURL   string
	Field     string
	UserAgent string
	Client    *http.Client
}

// NewHTTP returns an HTTP fetcher backed by a pooled cleanhttp client.
func NewHTTP(baseURL string, opts ...Option) *HTTP {
	o := buildOptions(opts)
	return &HTTP{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Field:     o.field,
		UserAgent: o.userAgent,
		Client:    cleanhttp.DefaultPooledClient(),
	}
}

// URL returns the endpoint for key.
func (h *HTTP) URL(key string) string {
	return h.BaseURL + "/posts/" + url.PathEscape(key)
}

// Fetch implements Fetcher.
func (h *HTTP) Fetch(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL(key), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}

	client := h.Client
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithFields(log.Fields{"key": key, "status": resp.StatusCode}).Debug("response not ok")
		// Drain so the pooled connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return "", &RemoteFetchError{Key: key, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", &ParseError{Key: key, Err: err}
	}

	return extract(key, body, h.Field)
}
