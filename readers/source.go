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
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"go.uber.org/multierr"

	"github.com/aaronlmathis/gohxl/core"
)

// Format names an input encoding.
type Format string

const (
	FormatAuto    Format = ""
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatJSON    Format = "json"
	FormatJSONL   Format = "jsonl"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

// ParseFormat maps a user supplied name to a Format.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatAuto, FormatCSV, FormatTSV, FormatJSON, FormatJSONL, FormatXLSX, FormatParquet:
		return f, nil
	case "auto":
		return FormatAuto, nil
	case "xls", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unknown input format %q", name)
	}
}

// DetectFormat guesses the format from a file name or URL path, ignoring a
// compression suffix, and then from a MIME type. CSV is the fallback.
func DetectFormat(name, contentType string) Format {
	name = strings.ToLower(name)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	for _, suffix := range []string{".gz", ".bz2", ".zst", ".xz"} {
		name = strings.TrimSuffix(name, suffix)
	}
	switch path.Ext(name) {
	case ".json":
		return FormatJSON
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".xlsx", ".xlsm", ".xls":
		return FormatXLSX
	case ".parquet":
		return FormatParquet
	case ".tsv", ".tab":
		return FormatTSV
	case ".csv":
		return FormatCSV
	}

	contentType = strings.ToLower(contentType)
	switch {
	case strings.Contains(contentType, "json"):
		return FormatJSON
	case strings.Contains(contentType, "spreadsheetml"), strings.Contains(contentType, "ms-excel"):
		return FormatXLSX
	case strings.Contains(contentType, "parquet"):
		return FormatParquet
	case strings.Contains(contentType, "tab-separated"):
		return FormatTSV
	}
	return FormatCSV
}

// FormatOptions carries per-format reader options through the generic openers.
type FormatOptions struct {
	Format  Format
	CSV     []ReaderOptionCSV
	JSON    []ReaderOptionJSON
	XLSX    []ReaderOptionXLSX
	Parquet []ReaderOptionParquet
}

// NewFormatReader builds the reader for format over an already decompressed stream.
func NewFormatReader(r io.ReadCloser, format Format, opts FormatOptions) (core.Dataset, error) {
	switch format {
	case FormatCSV, FormatAuto:
		return NewCSVReader(r, opts.CSV...)
	case FormatTSV:
		return NewCSVReader(r, append([]ReaderOptionCSV{WithCSVComma('\t')}, opts.CSV...)...)
	case FormatJSON:
		return NewJSONReader(r, opts.JSON...)
	case FormatJSONL:
		return NewJSONReader(r, append([]ReaderOptionJSON{WithJSONLines(true)}, opts.JSON...)...)
	case FormatXLSX:
		return NewXLSXReader(r, opts.XLSX...)
	case FormatParquet:
		data, err := io.ReadAll(r)
		cerr := r.Close()
		if err = multierr.Append(err, cerr); err != nil {
			return nil, &ParquetReaderError{Op: "read", Err: err}
		}
		return NewParquetReaderFrom(bytes.NewReader(data), nil, opts.Parquet...)
	default:
		r.Close()
		return nil, fmt.Errorf("unsupported input format %q", format)
	}
}

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Decompress sniffs the leading bytes of r and unwraps gzip, bzip2, zstd
// or xz content. Anything else is returned as is.
func Decompress(r io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		r.Close()
		return nil, err
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &readCloser{Reader: zr, closers: []io.Closer{zr, r}}, nil
	case bytes.HasPrefix(head, bzip2Magic):
		return &readCloser{Reader: bzip2.NewReader(br), closers: []io.Closer{r}}, nil
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return &readCloser{Reader: zr, closers: []io.Closer{zr.IOReadCloser(), r}}, nil
	case bytes.HasPrefix(head, xzMagic):
		xr, err := xz.NewReader(br)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("xz: %w", err)
		}
		return &readCloser{Reader: xr, closers: []io.Closer{r}}, nil
	default:
		return &readCloser{Reader: br, closers: []io.Closer{r}}, nil
	}
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var err error
	for _, c := range rc.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// OpenOptions configures Open.
type OpenOptions struct {
	FormatOptions
	S3       []ReaderOptionS3
	HTTP     []ReaderOptionHTTP
	Postgres []PostgresReaderOption
	// Stdin is read for the location "-"; os.Stdin when nil.
	Stdin io.Reader
}

// Open resolves a location to a dataset. The location is "-" for standard
// input, an s3://bucket/key URL, an http(s) URL, or a local path.
// Compressed content is unwrapped before the format reader sees it.
func Open(ctx context.Context, location string, opts OpenOptions) (core.Dataset, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		bucket, key, err := ParseS3URL(location)
		if err != nil {
			return nil, err
		}
		reader, err := NewS3Reader(ctx, bucket, key, append(opts.S3, WithS3FormatOptions(opts.FormatOptions))...)
		if err != nil {
			return nil, err
		}
		return reader, nil
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		reader, err := NewHTTPReader(ctx, location, append(opts.HTTP, WithHTTPFormatOptions(opts.FormatOptions))...)
		if err != nil {
			return nil, err
		}
		return reader, nil
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		reader, err := NewPostgresReader(ctx, append([]PostgresReaderOption{WithPostgresDSN(location)}, opts.Postgres...)...)
		if err != nil {
			return nil, err
		}
		return reader, nil
	}

	var raw io.ReadCloser
	if location == "-" || location == "" {
		in := opts.Stdin
		if in == nil {
			in = os.Stdin
		}
		raw = io.NopCloser(in)
	} else {
		f, err := os.Open(location)
		if err != nil {
			return nil, err
		}
		raw = f
	}

	format := opts.Format
	if format == FormatAuto {
		format = DetectFormat(location, "")
	}
	return openStream(raw, format, opts.FormatOptions)
}

func openStream(raw io.ReadCloser, format Format, opts FormatOptions) (core.Dataset, error) {
	r, err := Decompress(raw)
	if err != nil {
		return nil, err
	}
	return NewFormatReader(r, format, opts)
}
