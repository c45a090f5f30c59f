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

package types

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/multierr"

	"github.com/aaronlmathis/gohxl"
	"github.com/aaronlmathis/gohxl/internal/s3util"
	"github.com/aaronlmathis/gohxl/writers"
)

// OutputFormat names an output encoding.
type OutputFormat string

const (
	FormatAuto        OutputFormat = ""
	FormatCSV         OutputFormat = "csv"
	FormatTSV         OutputFormat = "tsv"
	FormatJSON        OutputFormat = "json"
	FormatJSONObjects OutputFormat = "objects"
	FormatParquet     OutputFormat = "parquet"
	FormatPostgres    OutputFormat = "postgres"
)

// ParseOutputFormat maps a user supplied name to an OutputFormat.
func ParseOutputFormat(name string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatAuto, FormatCSV, FormatTSV, FormatJSON, FormatJSONObjects, FormatParquet, FormatPostgres:
		return f, nil
	case "auto":
		return FormatAuto, nil
	case "json-objects":
		return FormatJSONObjects, nil
	case "postgresql", "pg":
		return FormatPostgres, nil
	default:
		return "", fmt.Errorf("unknown output format %q", name)
	}
}

// DetectOutputFormat guesses the format from an output target. CSV is the
// fallback, which also covers standard output.
func DetectOutputFormat(target string) OutputFormat {
	lower := strings.ToLower(target)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return FormatPostgres
	}
	switch path.Ext(lower) {
	case ".json":
		return FormatJSON
	case ".parquet":
		return FormatParquet
	case ".tsv", ".tab":
		return FormatTSV
	}
	return FormatCSV
}

// SinkOptions carries per-format writer options.
type SinkOptions struct {
	CSV      []writers.WriterOptionCSV
	JSON     []writers.WriterOptionJSON
	Parquet  []writers.WriterOption
	Postgres []writers.PostgresWriterOption
}

// OutputLocation creates a DataSink for a given format.
type OutputLocation interface {
	NewSink(ctx context.Context, format OutputFormat, opts SinkOptions) (gohxl.DataSink, error)
}

// streamSink builds one of the stream writers on top of w. w is closed by
// the returned sink.
func streamSink(w io.WriteCloser, format OutputFormat, opts SinkOptions) (gohxl.DataSink, error) {
	switch format {
	case FormatCSV, FormatAuto:
		return writers.NewCSVWriter(w, opts.CSV...)
	case FormatTSV:
		return writers.NewCSVWriter(w, append([]writers.WriterOptionCSV{writers.WithComma('\t')}, opts.CSV...)...)
	case FormatJSON:
		return writers.NewJSONWriter(w, opts.JSON...), nil
	case FormatJSONObjects:
		return writers.NewJSONWriter(w, append([]writers.WriterOptionJSON{writers.WithJSONObjects(true)}, opts.JSON...)...), nil
	case FormatParquet:
		return writers.NewParquetWriterTo(w, opts.Parquet...), nil
	default:
		return nil, fmt.Errorf("format %q cannot be written to a stream", format)
	}
}

// FileLocation writes output to a local filesystem path, or to standard
// output when Path is "-" or empty.
type FileLocation struct {
	Path string
	// Stdout is written for the path "-"; os.Stdout when nil.
	Stdout io.Writer
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewSink instantiates a writer for the file location.
func (f FileLocation) NewSink(ctx context.Context, format OutputFormat, opts SinkOptions) (gohxl.DataSink, error) {
	if f.Path == "" || f.Path == "-" {
		out := f.Stdout
		if out == nil {
			out = os.Stdout
		}
		return streamSink(nopWriteCloser{out}, format, opts)
	}

	if format == FormatAuto {
		format = DetectOutputFormat(f.Path)
	}
	if format == FormatParquet {
		return writers.NewParquetWriter(f.Path, opts.Parquet...)
	}
	if format == FormatPostgres {
		return nil, fmt.Errorf("unsupported format %q for a file", format)
	}

	file, err := os.Create(f.Path)
	if err != nil {
		return nil, err
	}
	sink, err := streamSink(file, format, opts)
	if err != nil {
		return nil, multierr.Append(err, file.Close())
	}
	return sink, nil
}

// S3PutObjectAPI is the part of the S3 client used for uploads.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Location writes one object to an S3 bucket. The object is buffered in
// memory and uploaded when the sink is closed.
type S3Location struct {
	Bucket string
	Key    string
	Client S3PutObjectAPI // Prebuilt client; one is created from Config when nil
	Config s3util.Options
}

// ParseS3Location builds an S3Location from an s3://bucket/key URL.
func ParseS3Location(url string, cfg s3util.Options) (S3Location, error) {
	bucket, key, err := s3util.ParseURL(url)
	if err != nil {
		return S3Location{}, err
	}
	return S3Location{Bucket: bucket, Key: key, Config: cfg}, nil
}

type s3WriteCloser struct {
	ctx         context.Context
	buf         bytes.Buffer
	client      S3PutObjectAPI
	bucket      string
	key         string
	contentType string
	closed      bool
}

func (s *s3WriteCloser) Write(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("s3 object %s/%s already uploaded", s.bucket, s.key)
	}
	return s.buf.Write(p)
}

func (s *s3WriteCloser) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_, err := s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(s.buf.Bytes()),
		ContentLength: aws.Int64(int64(s.buf.Len())),
		ContentType:   aws.String(s.contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

// NewSink creates a writer uploading to S3.
func (s S3Location) NewSink(ctx context.Context, format OutputFormat, opts SinkOptions) (gohxl.DataSink, error) {
	if s.Bucket == "" || s.Key == "" {
		return nil, fmt.Errorf("s3 output needs a bucket and a key")
	}
	if format == FormatAuto {
		format = DetectOutputFormat(s.Key)
	}
	if format == FormatPostgres {
		return nil, fmt.Errorf("unsupported format %q for s3", format)
	}

	client := s.Client
	if client == nil {
		c, err := s3util.NewClient(ctx, s.Config)
		if err != nil {
			return nil, err
		}
		client = c
	}

	return streamSink(&s3WriteCloser{
		ctx:         ctx,
		client:      client,
		bucket:      s.Bucket,
		key:         s.Key,
		contentType: contentType(format),
	}, format, opts)
}

func contentType(format OutputFormat) string {
	switch format {
	case FormatTSV:
		return "text/tab-separated-values"
	case FormatJSON, FormatJSONObjects:
		return "application/json"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "text/csv"
	}
}

// PostgresLocation directs output to a PostgreSQL table.
type PostgresLocation struct {
	DSN   string
	Table string
}

// NewSink instantiates a PostgreSQL writer.
func (p PostgresLocation) NewSink(ctx context.Context, format OutputFormat, opts SinkOptions) (gohxl.DataSink, error) {
	if format != FormatPostgres && format != FormatAuto {
		return nil, fmt.Errorf("unsupported format %q for postgres", format)
	}
	options := append([]writers.PostgresWriterOption{
		writers.WithPostgresDSN(p.DSN),
		writers.WithTableName(p.Table),
	}, opts.Postgres...)
	return writers.NewPostgresWriter(options...)
}

// ParseLocation resolves an output target: "-" for standard output, an
// s3://bucket/key URL, a postgres:// DSN written to table, or a local path.
func ParseLocation(target, table string, s3cfg s3util.Options) (OutputLocation, error) {
	if DetectOutputFormat(target) == FormatPostgres {
		if table == "" {
			return nil, fmt.Errorf("postgres output needs a table name")
		}
		return PostgresLocation{DSN: target, Table: table}, nil
	}
	if strings.HasPrefix(target, "s3://") {
		return ParseS3Location(target, s3cfg)
	}
	return FileLocation{Path: target}, nil
}
