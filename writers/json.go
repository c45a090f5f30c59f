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
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ohler55/ojg/oj"

	"github.com/aaronlmathis/gohxl/core"
)

// This file implements an HXL JSON writer. The default layout is an array of
// arrays holding the optional header row, the hashtag row and the values. The
// object layout writes one object per row keyed by display tag; untagged
// columns are left out and the first column wins when display tags repeat.

// JSONWriterError wraps JSON-specific write errors with context.
type JSONWriterError struct {
	Op  string
	Err error
}

func (e *JSONWriterError) Error() string {
	return fmt.Sprintf("json writer %s: %v", e.Op, e.Err)
}

func (e *JSONWriterError) Unwrap() error {
	return e.Err
}

// JSONWriterStats holds JSON write statistics.
type JSONWriterStats struct {
	RowsWritten  int64
	BytesWritten int64
	FlushCount   int64
}

// JSONWriterOptions configures JSON output.
type JSONWriterOptions struct {
	Objects   bool
	HeaderRow HeaderMode
}

// WriterOptionJSON is a functional option.
type WriterOptionJSON func(*JSONWriterOptions)

// WithJSONObjects writes one object per row keyed by display tag.
func WithJSONObjects(objects bool) WriterOptionJSON {
	return func(opts *JSONWriterOptions) {
		opts.Objects = objects
	}
}

// WithJSONHeaderRow sets when the header text row is written in array layout.
func WithJSONHeaderRow(mode HeaderMode) WriterOptionJSON {
	return func(opts *JSONWriterOptions) {
		opts.HeaderRow = mode
	}
}

// JSONWriter implements DataSink for HXL JSON.
type JSONWriter struct {
	writer  *bufio.Writer
	closer  io.Closer
	options JSONWriterOptions
	columns []core.Column
	keys    []int // Column positions written in object layout
	items   int
	stats   JSONWriterStats
	closed  bool
	mu      sync.Mutex
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.WriteCloser, opts ...WriterOptionJSON) *JSONWriter {
	var options JSONWriterOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &JSONWriter{
		writer:  bufio.NewWriter(w),
		closer:  w,
		options: options,
	}
}

// WriteColumns opens the document and, in array layout, writes the header
// and hashtag rows.
func (j *JSONWriter) WriteColumns(ctx context.Context, columns []core.Column) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.columns != nil {
		return &JSONWriterError{Op: "write_columns", Err: fmt.Errorf("columns already written")}
	}
	j.columns = append(make([]core.Column, 0, len(columns)), columns...)

	if err := j.writeString("["); err != nil {
		return &JSONWriterError{Op: "write_columns", Err: err}
	}

	if j.options.Objects {
		seen := make(map[string]bool, len(columns))
		for i, col := range columns {
			tag := col.DisplayTag()
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			j.keys = append(j.keys, i)
		}
		return nil
	}

	if includeHeaderRow(j.options.HeaderRow, columns) {
		if err := j.writeItem(oj.JSON(anySlice(headerTexts(columns)))); err != nil {
			return &JSONWriterError{Op: "write_header", Err: err}
		}
	}
	if err := j.writeItem(oj.JSON(anySlice(hashtagRow(columns)))); err != nil {
		return &JSONWriterError{Op: "write_hashtags", Err: err}
	}
	return nil
}

// Write implements the DataSink interface.
func (j *JSONWriter) Write(ctx context.Context, row core.Row) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.columns == nil {
		return &JSONWriterError{Op: "write", Err: ErrColumnsNotWritten}
	}

	var item string
	if j.options.Objects {
		obj := make(map[string]any, len(j.keys))
		for _, i := range j.keys {
			obj[j.columns[i].DisplayTag()] = row.Value(i)
		}
		item = oj.JSON(obj, &oj.Options{Sort: true})
	} else {
		item = oj.JSON(anySlice(rowCells(row, len(j.columns))))
	}

	if err := j.writeItem(item); err != nil {
		return &JSONWriterError{Op: "write", Err: err}
	}
	j.stats.RowsWritten++
	return nil
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func (j *JSONWriter) writeItem(item string) error {
	sep := "\n"
	if j.items > 0 {
		sep = ",\n"
	}
	j.items++
	if err := j.writeString(sep); err != nil {
		return err
	}
	return j.writeString(item)
}

func (j *JSONWriter) writeString(s string) error {
	n, err := j.writer.WriteString(s)
	j.stats.BytesWritten += int64(n)
	return err
}

// Flush implements the DataSink interface
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return &JSONWriterError{Op: "flush", Err: err}
	}
	j.stats.FlushCount++
	return nil
}

// Close terminates the document and closes the destination.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if j.columns == nil {
		// Nothing announced; still leave a valid document behind.
		if err := j.writeString("["); err != nil {
			return &JSONWriterError{Op: "close", Err: err}
		}
	}
	if err := j.writeString("\n]\n"); err != nil {
		return &JSONWriterError{Op: "close", Err: err}
	}
	if err := j.writer.Flush(); err != nil {
		return &JSONWriterError{Op: "close", Err: err}
	}
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// Stats returns write statistics.
func (j *JSONWriter) Stats() JSONWriterStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}
