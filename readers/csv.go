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
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/aaronlmathis/gohxl/core"
)

// CSVReaderError wraps structured error information for the CSV reader.
type CSVReaderError struct {
	Op  string
	Err error
}

func (e *CSVReaderError) Error() string {
	return fmt.Sprintf("csv reader %s: %v", e.Op, e.Err)
}

func (e *CSVReaderError) Unwrap() error {
	return e.Err
}

// CSVReaderOptions configures the CSV reader.
type CSVReaderOptions struct {
	Comma            rune
	Comment          rune
	LazyQuotes       bool
	TrimLeadingSpace bool
	ScanDepth        int
}

// ReaderOptionCSV allows functional customization of CSVReader.
type ReaderOptionCSV func(*CSVReaderOptions)

func WithCSVComma(r rune) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Comma = r }
}

func WithCSVTrimSpace(trim bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.TrimLeadingSpace = trim }
}

func WithCSVLazyQuotes(lazy bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.LazyQuotes = lazy }
}

// WithCSVScanDepth sets how many leading rows are searched for the hashtag row.
func WithCSVScanDepth(depth int) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.ScanDepth = depth }
}

// CSVReader implements core.Dataset for HXL-tagged CSV.
type CSVReader struct {
	table *table
	opts  CSVReaderOptions
}

// NewCSVReader creates a CSVReader and locates the hashtag row. Rows above it
// other than the header text row are skipped.
func NewCSVReader(r io.ReadCloser, options ...ReaderOptionCSV) (*CSVReader, error) {
	opts := CSVReaderOptions{
		Comma:            ',',
		TrimLeadingSpace: true,
		ScanDepth:        DefaultScanDepth,
	}

	for _, opt := range options {
		opt(&opts)
	}

	csvReader := csv.NewReader(r)
	csvReader.Comma = opts.Comma
	csvReader.Comment = opts.Comment
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = opts.LazyQuotes
	csvReader.TrimLeadingSpace = opts.TrimLeadingSpace

	next := func() ([]string, error) {
		record, err := csvReader.Read()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, &CSVReaderError{Op: "read_record", Err: err}
		}
		return record, err
	}

	t, err := scanTable("csv", next, r, opts.ScanDepth)
	if err != nil {
		r.Close()
		return nil, &CSVReaderError{Op: "read_headers", Err: err}
	}

	return &CSVReader{table: t, opts: opts}, nil
}

// Columns implements the core.Dataset interface.
func (c *CSVReader) Columns() []core.Column {
	return c.table.Columns()
}

// Rows implements the core.Dataset interface.
func (c *CSVReader) Rows(ctx context.Context) (core.RowReader, error) {
	return c.table.Rows(ctx)
}

// Close releases the underlying reader if the rows were never requested.
func (c *CSVReader) Close() error {
	return c.table.close()
}

// Stats returns CSV reader performance stats.
func (c *CSVReader) Stats() ReaderStats {
	return c.table.stats
}
