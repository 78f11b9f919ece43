// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultField is the JSON field holding the tab content.
const DefaultField = "title"

// Fetcher retrieves the current value for key. Implementations are stateless
// across calls and never cache.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (string, error)
}

// Func adapts an ordinary function to the Fetcher interface.
type Func func(ctx context.Context, key string) (string, error)

// Fetch calls f(ctx, key).
func (f Func) Fetch(ctx context.Context, key string) (string, error) {
	return f(ctx, key)
}

// Sentinel errors. ErrResponseNotOK is matched by every *RemoteFetchError.
var (
	ErrResponseNotOK = errors.New("Network response was not ok") //nolint:staticcheck,revive
	ErrBaseURL       = errors.New("invalid base URL")
	ErrEmptyKey      = errors.New("key is empty")
)

// RemoteFetchError reports a non-success response. The message is deliberately
// generic; Status is kept for logging and is never part of Error().
type RemoteFetchError struct {
	Key    string
	Status int
}

func (e *RemoteFetchError) Error() string {
	return ErrResponseNotOK.Error()
}

func (e *RemoteFetchError) Is(target error) bool {
	return target == ErrResponseNotOK
}

// ParseError reports a response body that could not be decoded.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse response for %q: %v", e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errInvalidJSON = errors.New("invalid JSON")

// extract pulls field out of a JSON document. A missing field is not an error
// and yields "".
func extract(key string, body []byte, field string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", &ParseError{Key: key, Err: errInvalidJSON}
	}
	if field == "" {
		field = DefaultField
	}
	return gjson.GetBytes(body, field).String(), nil
}

// New builds the Fetcher appropriate for baseURL. http and https use the HTTP
// fetcher; s3://bucket/prefix reads objects from S3.
func New(ctx context.Context, baseURL string, opts ...Option) (Fetcher, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: base URL is not set", ErrBaseURL)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaseURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTP(baseURL, opts...), nil
	case "s3":
		return NewS3(ctx, baseURL, opts...)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrBaseURL, u.Scheme)
	}
}

// options holds optional overrides shared by the fetchers.
type options struct {
	field     string
	userAgent string
	profile   string
	region    string
	s3Client  objectGetter
}

// Option customizes a Fetcher.
type Option func(*options)

// WithField overrides the JSON field extracted from the response body.
func WithField(field string) Option {
	return func(o *options) { o.field = field }
}

// WithUserAgent sets the User-Agent header on HTTP requests.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithProfile sets the shared AWS config profile for s3:// endpoints.
func WithProfile(profile string) Option {
	return func(o *options) { o.profile = profile }
}

// WithRegion sets the AWS region for s3:// endpoints.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

func buildOptions(opts []Option) options {
	o := options{field: DefaultField, userAgent: "tabfetch"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
