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
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/multierr"

	"github.com/aaronlmathis/gohxl/core"
)

// XLSXReaderError wraps structured error information for the XLSX reader.
type XLSXReaderError struct {
	Op  string
	Err error
}

func (e *XLSXReaderError) Error() string {
	return fmt.Sprintf("xlsx reader %s: %v", e.Op, e.Err)
}

func (e *XLSXReaderError) Unwrap() error {
	return e.Err
}

// XLSXReaderOptions configures the XLSX reader.
type XLSXReaderOptions struct {
	Sheet     string // Sheet name; the first sheet when empty
	ScanDepth int
}

// ReaderOptionXLSX allows functional customization of XLSXReader.
type ReaderOptionXLSX func(*XLSXReaderOptions)

func WithXLSXSheet(sheet string) ReaderOptionXLSX {
	return func(o *XLSXReaderOptions) { o.Sheet = sheet }
}

func WithXLSXScanDepth(depth int) ReaderOptionXLSX {
	return func(o *XLSXReaderOptions) { o.ScanDepth = depth }
}

// XLSXReader implements core.Dataset for one sheet of an Excel workbook.
// Rows are streamed from the sheet rather than loaded at once.
type XLSXReader struct {
	table *table
	file  *excelize.File
	opts  XLSXReaderOptions
}

// NewXLSXReader opens a workbook from r. Workbooks are zip archives, so the
// content is buffered in memory first.
func NewXLSXReader(r io.ReadCloser, options ...ReaderOptionXLSX) (*XLSXReader, error) {
	defer r.Close()

	opts := XLSXReaderOptions{ScanDepth: DefaultScanDepth}
	for _, opt := range options {
		opt(&opts)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &XLSXReaderError{Op: "read", Err: err}
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &XLSXReaderError{Op: "open", Err: err}
	}

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, &XLSXReaderError{Op: "open", Err: fmt.Errorf("no sheets found in workbook")}
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, &XLSXReaderError{Op: "open_sheet", Err: err}
	}

	next := func() ([]string, error) {
		if !rows.Next() {
			if err := rows.Error(); err != nil {
				return nil, &XLSXReaderError{Op: "read_record", Err: err}
			}
			return nil, io.EOF
		}
		cols, err := rows.Columns()
		if err != nil {
			return nil, &XLSXReaderError{Op: "read_record", Err: err}
		}
		return cols, nil
	}

	closer := closerFunc(func() error {
		return multierr.Combine(rows.Close(), f.Close())
	})

	t, err := scanTable("xlsx", next, closer, opts.ScanDepth)
	if err != nil {
		closer.Close()
		return nil, &XLSXReaderError{Op: "read_headers", Err: err}
	}

	return &XLSXReader{table: t, file: f, opts: opts}, nil
}

// Columns implements the core.Dataset interface.
func (x *XLSXReader) Columns() []core.Column {
	return x.table.Columns()
}

// Rows implements the core.Dataset interface.
func (x *XLSXReader) Rows(ctx context.Context) (core.RowReader, error) {
	return x.table.Rows(ctx)
}

// Close releases the workbook if the rows were never requested.
func (x *XLSXReader) Close() error {
	return x.table.close()
}

// Stats returns XLSX reader performance stats.
func (x *XLSXReader) Stats() ReaderStats {
	return x.table.stats
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
