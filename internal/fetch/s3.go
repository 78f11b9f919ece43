// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/apex/log"
	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectGetter is the slice of the S3 API the fetcher needs.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3v2.GetObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.GetObjectOutput, error)
}

// S3 reads {Prefix}/posts/{key} from Bucket. The object holds the same JSON
// document the HTTP endpoint would serve.
type S3 struct {
	Bucket string
	Prefix string
	Field  string
	Client objectGetter
}

// withS3Client injects the object API, bypassing AWS config loading.
func withS3Client(c objectGetter) Option {
	return func(o *options) { o.s3Client = c }
}

// NewS3 parses an s3://bucket/prefix URL and builds a client from the shell's
// AWS setup (AWS_PROFILE, shared config, env, IMDS) unless overridden.
func NewS3(ctx context.Context, baseURL string, opts ...Option) (*S3, error) {
	o := buildOptions(opts)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBaseURL, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return nil, fmt.Errorf("%w: want s3://bucket[/prefix], got %q", ErrBaseURL, baseURL)
	}

	client := o.s3Client
	if client == nil {
		cfg, err := loadAWSConfig(ctx, o)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = s3v2.NewFromConfig(cfg)
	}

	return &S3{
		Bucket: u.Host,
		Prefix: strings.Trim(u.Path, "/"),
		Field:  o.field,
		Client: client,
	}, nil
}

func loadAWSConfig(ctx context.Context, o options) (awsv2.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if o.profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(o.profile))
	}
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}
	return config.LoadDefaultConfig(ctx, loadOpts...)
}

// ObjectKey returns the S3 object key for key.
func (s *S3) ObjectKey(key string) string {
	return path.Join(s.Prefix, "posts", key)
}

// Fetch implements Fetcher.
func (s *S3) Fetch(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	out, err := s.Client.GetObject(ctx, &s3v2.GetObjectInput{
		Bucket: awsv2.String(s.Bucket),
		Key:    awsv2.String(s.ObjectKey(key)),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("failed to execute request: %w", ctxErr)
		}
		status := 0
		var re *awshttp.ResponseError
		if errors.As(err, &re) {
			status = re.HTTPStatusCode()
		}
		log.WithError(err).WithField("key", key).Debug("s3 get object failed")
		return "", &RemoteFetchError{Key: key, Status: status}
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxBody))
	if err != nil {
		return "", &ParseError{Key: key, Err: err}
	}

	return extract(key, body, s.Field)
}
