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

package writers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/gohxl/core"
	"github.com/aaronlmathis/gohxl/readers"
)

// This file implements a Parquet writer for HXL datasets. Every column is a
// nullable string field named after its display tag, or its header text when
// untagged. The hashtag spec and header text travel in field metadata under
// the keys the Parquet reader looks for, so files round-trip.

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "write_batch", "open_file")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriterStats holds statistics about the Parquet writer's performance.
type ParquetWriterStats struct {
	RowsWritten    int64
	BatchesWritten int64
	EmptyCells     int64
	FlushDuration  time.Duration
	LastFlushTime  time.Time
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of rows to buffer before writing
	Compression  compress.Compression // Compression algorithm
	RowGroupSize int64                // Maximum rows per row group
	Metadata     map[string]string    // File metadata
	EmptyAsNull  bool                 // Write empty cells as nulls
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of rows to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithMetadata sets user metadata for the Parquet file.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// WithEmptyAsNull writes empty cells as Parquet nulls.
func WithEmptyAsNull(enabled bool) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.EmptyAsNull = enabled
	}
}

// withDefaults applies default values to ParquetWriterOptions.
func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 10000
	}
	if result.Compression == 0 {
		result.Compression = compress.Codecs.Snappy
	}
	if result.Metadata == nil {
		result.Metadata = make(map[string]string)
	}
	return result
}

// ParquetWriter implements DataSink for Parquet output.
type ParquetWriter struct {
	sink      io.Writer
	closer    io.Closer
	writer    *pqarrow.FileWriter
	schema    *arrow.Schema
	builders  []*array.StringBuilder
	buffered  int64
	allocator memory.Allocator
	opts      *ParquetWriterOptions
	stats     ParquetWriterStats
	closed    bool
	mu        sync.Mutex
}

// NewParquetWriter creates a Parquet file, creating parent directories as needed.
func NewParquetWriter(filename string, options ...WriterOption) (*ParquetWriter, error) {
	dir := filepath.Dir(filename)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &ParquetWriterError{
				Op:  "create_directory",
				Err: fmt.Errorf("failed to create directory %s: %w", dir, err),
			}
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, &ParquetWriterError{
			Op:  "open_file",
			Err: fmt.Errorf("failed to create parquet file %s: %w", filename, err),
		}
	}
	return NewParquetWriterTo(file, options...), nil
}

// NewParquetWriterTo writes Parquet to w. w is closed with the writer when it
// implements io.Closer.
func NewParquetWriterTo(w io.Writer, options ...WriterOption) *ParquetWriter {
	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}
	p := &ParquetWriter{
		sink:      w,
		allocator: memory.NewGoAllocator(),
		opts:      opts,
	}
	if c, ok := w.(io.Closer); ok {
		p.closer = c
	}
	return p
}

// WriteColumns builds the string schema and opens the Parquet file writer.
func (p *ParquetWriter) WriteColumns(ctx context.Context, columns []core.Column) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.schema != nil {
		return &ParquetWriterError{Op: "schema", Err: fmt.Errorf("columns already written")}
	}

	p.schema = parquetSchema(columns, p.opts.Metadata)

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(p.schema, p.sink, props, arrowProps)
	if err != nil {
		return &ParquetWriterError{
			Op:  "create_writer",
			Err: fmt.Errorf("failed to create parquet file writer: %w", err),
		}
	}
	p.writer = writer

	p.builders = make([]*array.StringBuilder, len(columns))
	for i := range columns {
		p.builders[i] = array.NewStringBuilder(p.allocator)
	}
	return nil
}

// parquetSchema names each field after its column. Repeated names get a
// numeric suffix; the metadata keeps the exact spec.
func parquetSchema(columns []core.Column, metadata map[string]string) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	used := make(map[string]int, len(columns))
	for i, col := range columns {
		name := columnName(col, i)
		if n := used[name]; n > 0 {
			used[name] = n + 1
			name = name + "_" + strconv.Itoa(n+1)
		} else {
			used[name] = 1
		}
		fields[i] = arrow.Field{
			Name:     name,
			Type:     arrow.BinaryTypes.String,
			Nullable: true,
			Metadata: arrow.NewMetadata(
				[]string{readers.ParquetTagKey, readers.ParquetHeaderKey},
				[]string{col.DisplayTag(), col.Header()},
			),
		}
	}

	var md *arrow.Metadata
	if len(metadata) > 0 {
		keys := make([]string, 0, len(metadata))
		values := make([]string, 0, len(metadata))
		for k, v := range metadata {
			keys = append(keys, k)
			values = append(values, v)
		}
		m := arrow.NewMetadata(keys, values)
		md = &m
	}
	return arrow.NewSchema(fields, md)
}

// Write implements the DataSink interface. Rows are buffered in the column
// builders and written in batches.
func (p *ParquetWriter) Write(ctx context.Context, row core.Row) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.writer == nil {
		return &ParquetWriterError{Op: "write", Err: ErrColumnsNotWritten}
	}

	for i, b := range p.builders {
		v := row.Value(i)
		if v == "" {
			p.stats.EmptyCells++
			if p.opts.EmptyAsNull {
				b.AppendNull()
				continue
			}
		}
		b.Append(v)
	}
	p.buffered++
	p.stats.RowsWritten++

	if p.buffered >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			return err
		}
	}
	return nil
}

// flushBatch writes the buffered rows as one record batch (must hold mutex).
func (p *ParquetWriter) flushBatch() error {
	if p.buffered == 0 {
		return nil
	}
	start := time.Now()

	arrays := make([]arrow.Array, len(p.builders))
	for i, b := range p.builders {
		arrays[i] = b.NewArray()
	}
	record := array.NewRecord(p.schema, arrays, p.buffered)
	for _, a := range arrays {
		a.Release()
	}
	defer record.Release()

	if err := p.writer.Write(record); err != nil {
		return &ParquetWriterError{
			Op:  "write_batch",
			Err: fmt.Errorf("failed to write record batch: %w", err),
		}
	}

	p.buffered = 0
	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	return nil
}

// Flush forces buffered rows into the file.
func (p *ParquetWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.writer == nil {
		return nil
	}
	return p.flushBatch()
}

// Close flushes and closes all resources. The file footer is written here.
func (p *ParquetWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.writer == nil {
		if p.closer != nil {
			return p.closer.Close()
		}
		return nil
	}

	if err := p.flushBatch(); err != nil {
		return &ParquetWriterError{Op: "flush_remaining", Err: err}
	}
	for _, b := range p.builders {
		b.Release()
	}
	p.builders = nil

	// Closing the file writer also closes the sink.
	if err := p.writer.Close(); err != nil {
		return &ParquetWriterError{
			Op:  "close_writer",
			Err: fmt.Errorf("failed to close parquet writer: %w", err),
		}
	}
	p.writer = nil
	return nil
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() ParquetWriterStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
