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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aaronlmathis/gohxl/core"
)

// ErrColumnsNotWritten is returned when a row arrives before WriteColumns.
var ErrColumnsNotWritten = errors.New("columns must be written before rows")

// CSVWriterError wraps CSV-specific write errors with context.
type CSVWriterError struct {
	Op  string
	Err error
}

func (e *CSVWriterError) Error() string {
	return fmt.Sprintf("csv writer %s: %v", e.Op, e.Err)
}

func (e *CSVWriterError) Unwrap() error {
	return e.Err
}

// CSVWriterStats holds CSV write performance statistics.
type CSVWriterStats struct {
	RowsWritten   int64
	EmptyCells    int64
	FlushCount    int64
	FlushDuration time.Duration
	LastFlushTime time.Time
}

// HeaderMode controls whether the header text row is written above the hashtag row.
type HeaderMode int

const (
	// HeaderAuto writes the header row only when some column has header text.
	HeaderAuto HeaderMode = iota
	HeaderAlways
	HeaderNever
)

// CSVWriterOptions configures CSV output.
type CSVWriterOptions struct {
	Comma     rune
	UseCRLF   bool
	HeaderRow HeaderMode
	BatchSize int
}

// WriterOptionCSV is a functional option.
type WriterOptionCSV func(*CSVWriterOptions)

func WithComma(delim rune) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Comma = delim
	}
}

// WithHeaderRow sets when the header text row is written.
func WithHeaderRow(mode HeaderMode) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.HeaderRow = mode
	}
}

func WithCSVBatchSize(size int) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.BatchSize = size
	}
}

func WithUseCRLF(useCRLF bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.UseCRLF = useCRLF
	}
}

// CSVWriter implements DataSink for HXL CSV output with stats and batching.
type CSVWriter struct {
	writer     *csv.Writer
	closer     io.Closer
	options    CSVWriterOptions
	columns    []core.Column
	recordBuf  [][]string
	stats      CSVWriterStats
	errorState bool
	closed     bool
	mu         sync.Mutex
}

// NewCSVWriter creates a new CSV writer with extended options.
func NewCSVWriter(w io.WriteCloser, opts ...WriterOptionCSV) (*CSVWriter, error) {
	options := CSVWriterOptions{
		Comma:     ',',
		HeaderRow: HeaderAuto,
	}

	for _, opt := range opts {
		opt(&options)
	}

	cw := csv.NewWriter(w)
	cw.Comma = options.Comma
	cw.UseCRLF = options.UseCRLF

	return &CSVWriter{
		writer:    cw,
		closer:    w,
		options:   options,
		recordBuf: make([][]string, 0, max(options.BatchSize, 1)),
	}, nil
}

// WriteColumns writes the header text row, when enabled, and the hashtag row.
func (c *CSVWriter) WriteColumns(ctx context.Context, columns []core.Column) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.columns != nil {
		return &CSVWriterError{Op: "write_columns", Err: fmt.Errorf("columns already written")}
	}
	c.columns = append(make([]core.Column, 0, len(columns)), columns...)

	if includeHeaderRow(c.options.HeaderRow, columns) {
		if err := c.writer.Write(headerTexts(columns)); err != nil {
			c.errorState = true
			return &CSVWriterError{Op: "write_header", Err: err}
		}
	}
	if err := c.writer.Write(hashtagRow(columns)); err != nil {
		c.errorState = true
		return &CSVWriterError{Op: "write_hashtags", Err: err}
	}
	return nil
}

// Write implements the DataSink interface.
func (c *CSVWriter) Write(ctx context.Context, row core.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errorState {
		return &CSVWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if c.columns == nil {
		return &CSVWriterError{Op: "write", Err: ErrColumnsNotWritten}
	}

	record := rowCells(row, len(c.columns))
	for _, v := range record {
		if v == "" {
			c.stats.EmptyCells++
		}
	}

	c.recordBuf = append(c.recordBuf, record)
	c.stats.RowsWritten++

	if c.options.BatchSize > 0 && len(c.recordBuf) >= c.options.BatchSize {
		if err := c.flushBufferUnsafe(); err != nil {
			c.errorState = true
			return &CSVWriterError{Op: "flush_batch", Err: err}
		}
	}

	return nil
}

// Flush implements the DataSink interface.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushUnsafe()
}

func (c *CSVWriter) flushUnsafe() error {
	if err := c.flushBufferUnsafe(); err != nil {
		return &CSVWriterError{Op: "flush", Err: err}
	}
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return &CSVWriterError{Op: "flush_writer", Err: err}
	}
	return nil
}

// Close flushes pending rows and closes the destination. Later calls are no-ops.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.flushUnsafe(); err != nil {
		return err
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// flushBufferUnsafe writes buffered rows to CSV (must hold mutex).
func (c *CSVWriter) flushBufferUnsafe() error {
	if len(c.recordBuf) == 0 {
		return nil
	}

	start := time.Now()

	for _, record := range c.recordBuf {
		if err := c.writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer flush error: %w", err)
	}

	c.stats.FlushCount++
	c.stats.LastFlushTime = time.Now()
	c.stats.FlushDuration += time.Since(start)
	c.recordBuf = c.recordBuf[:0]

	return nil
}

// Stats returns write statistics.
func (c *CSVWriter) Stats() CSVWriterStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
