//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoHXL.
//
// GoHXL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoHXL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoHXL. If not, see https://www.gnu.org/licenses/.

package readers

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/gohxl/core"
	"github.com/aaronlmathis/gohxl/internal/s3util"
)

// S3ReaderError provides structured error information for S3 reader operations
type S3ReaderError struct {
	Op  string // Operation that failed (e.g., "get_object", "open")
	Key string
	Err error // Underlying error
}

func (e *S3ReaderError) Error() string {
	return fmt.Sprintf("s3 reader %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *S3ReaderError) Unwrap() error {
	return e.Err
}

// S3ReaderStats holds statistics about the S3 fetch
type S3ReaderStats struct {
	Bucket        string
	Key           string
	ContentLength int64
	ContentType   string
	FetchDuration time.Duration
}

// S3GetObjectAPI is the part of the S3 client used by the reader.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ReaderOptions configures the S3 reader behavior
type S3ReaderOptions struct {
	Client  S3GetObjectAPI // Prebuilt client; one is created from Config when nil
	Config  s3util.Options
	Formats FormatOptions
}

// ReaderOptionS3 represents a configuration function for S3Reader
type ReaderOptionS3 func(*S3ReaderOptions)

func WithS3Client(client S3GetObjectAPI) ReaderOptionS3 {
	return func(o *S3ReaderOptions) { o.Client = client }
}

func WithS3Region(region string) ReaderOptionS3 {
	return func(o *S3ReaderOptions) { o.Config.Region = region }
}

func WithS3Profile(profile string) ReaderOptionS3 {
	return func(o *S3ReaderOptions) { o.Config.Profile = profile }
}

func WithS3Credentials(creds aws.Credentials) ReaderOptionS3 {
	return func(o *S3ReaderOptions) { o.Config.Credentials = creds }
}

func WithS3Endpoint(endpoint string) ReaderOptionS3 {
	return func(o *S3ReaderOptions) { o.Config.EndpointURL = endpoint }
}

func WithS3PathStyle(pathStyle bool) ReaderOptionS3 {
	return func(o *S3ReaderOptions) { o.Config.ForcePathStyle = pathStyle }
}

// WithS3FormatOptions sets the format and per-format options of the object.
// The format is detected from the key and content type when left empty.
func WithS3FormatOptions(formats FormatOptions) ReaderOptionS3 {
	return func(o *S3ReaderOptions) { o.Formats = formats }
}

// S3Reader implements core.Dataset for a single HXL object stored in S3.
type S3Reader struct {
	dataset core.Dataset
	stats   S3ReaderStats
}

// NewS3Reader fetches bucket/key and hands the body to the reader for its format.
func NewS3Reader(ctx context.Context, bucket, key string, options ...ReaderOptionS3) (*S3Reader, error) {
	var opts S3ReaderOptions
	for _, option := range options {
		option(&opts)
	}

	if bucket == "" || key == "" {
		return nil, &S3ReaderError{Op: "validate_options", Key: key, Err: fmt.Errorf("bucket and key are required")}
	}

	client := opts.Client
	if client == nil {
		c, err := s3util.NewClient(ctx, opts.Config)
		if err != nil {
			return nil, &S3ReaderError{Op: "create_aws_config", Key: key, Err: err}
		}
		client = c
	}

	start := time.Now()
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &S3ReaderError{Op: "get_object", Key: key, Err: err}
	}

	stats := S3ReaderStats{
		Bucket:        bucket,
		Key:           key,
		ContentLength: aws.ToInt64(result.ContentLength),
		ContentType:   aws.ToString(result.ContentType),
	}

	format := opts.Formats.Format
	if format == FormatAuto {
		format = DetectFormat(key, stats.ContentType)
	}

	dataset, err := openStream(result.Body, format, opts.Formats)
	if err != nil {
		return nil, &S3ReaderError{Op: "open", Key: key, Err: err}
	}
	stats.FetchDuration = time.Since(start)

	return &S3Reader{dataset: dataset, stats: stats}, nil
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(url string) (bucket, key string, err error) {
	return s3util.ParseURL(url)
}

// Columns implements the core.Dataset interface.
func (s *S3Reader) Columns() []core.Column {
	return s.dataset.Columns()
}

// Rows implements the core.Dataset interface.
func (s *S3Reader) Rows(ctx context.Context) (core.RowReader, error) {
	return s.dataset.Rows(ctx)
}

// Stats returns statistics about the fetch
func (s *S3Reader) Stats() S3ReaderStats {
	return s.stats
}
