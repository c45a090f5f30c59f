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
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/gohxl/core"
)

// Field metadata keys carrying HXL information in Parquet schemas.
const (
	ParquetTagKey    = "hxl"
	ParquetHeaderKey = "header"
)

// ParquetReaderError provides structured error information for Parquet reader operations
type ParquetReaderError struct {
	Op  string // Operation that failed (e.g., "read", "load_batch", "open_file", "schema")
	Err error  // Underlying error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// ParquetReaderStats holds statistics about the Parquet reader's performance
type ParquetReaderStats struct {
	RowsRead     int64
	BatchesRead  int64
	NullCells    int64
	ReadDuration time.Duration
	LastReadTime time.Time
}

// ParquetReaderOptions configures the Parquet reader
// BatchSize: rows per batch
// Columns: optional list of field names to project
type ParquetReaderOptions struct {
	BatchSize int64
	Columns   []string
}

// ReaderOptionParquet represents a configuration function
type ReaderOptionParquet func(*ParquetReaderOptions)

func WithParquetBatchSize(size int64) ReaderOptionParquet {
	return func(opts *ParquetReaderOptions) {
		opts.BatchSize = size
	}
}

func WithParquetColumns(columns ...string) ReaderOptionParquet {
	return func(opts *ParquetReaderOptions) {
		opts.Columns = make([]string, len(columns))
		copy(opts.Columns, columns)
	}
}

func (opts *ParquetReaderOptions) withDefaults() *ParquetReaderOptions {
	result := &ParquetReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	return result
}

// ParquetReader implements core.Dataset for Parquet files. Each field is a
// column: the hashtag spec comes from the "hxl" field metadata or else the
// field name, the header text from the "header" metadata.
type ParquetReader struct {
	closer       io.Closer
	recordReader pqarrow.RecordReader
	currentBatch arrow.Record
	batchIdx     int
	columns      []core.Column
	once         core.Once
	number       int
	stats        ParquetReaderStats
	opts         *ParquetReaderOptions
}

// NewParquetReader opens a Parquet file and prepares an Arrow RecordReader
func NewParquetReader(filename string, options ...ReaderOptionParquet) (*ParquetReader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, &ParquetReaderError{Op: "open_file", Err: err}
	}
	return NewParquetReaderFrom(f, f, options...)
}

// NewParquetReaderFrom reads Parquet from any seekable source. closer, if
// not nil, is closed with the reader.
func NewParquetReaderFrom(src parquet.ReaderAtSeeker, closer io.Closer, options ...ReaderOptionParquet) (*ParquetReader, error) {
	opts := (&ParquetReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	fail := func(op string, err error) (*ParquetReader, error) {
		if closer != nil {
			closer.Close()
		}
		return nil, &ParquetReaderError{Op: op, Err: err}
	}

	parquetReader, err := file.NewParquetReader(src)
	if err != nil {
		return fail("create_reader", err)
	}

	arrowReader, err := pqarrow.NewFileReader(parquetReader, pqarrow.ArrowReadProperties{BatchSize: opts.BatchSize}, memory.NewGoAllocator())
	if err != nil {
		return fail("create_arrow_reader", err)
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return fail("get_schema", err)
	}

	var colIndices []int
	fields := schema.Fields()
	if len(opts.Columns) > 0 {
		projected := make([]arrow.Field, 0, len(opts.Columns))
		for _, name := range opts.Columns {
			idx := -1
			for i, field := range fields {
				if field.Name == name {
					idx = i
					break
				}
			}
			if idx < 0 {
				return fail("column_projection", fmt.Errorf("column %q not found in schema", name))
			}
			colIndices = append(colIndices, idx)
			projected = append(projected, fields[idx])
		}
		fields = projected
	}

	columns, err := parquetColumns(fields)
	if err != nil {
		return fail("schema", err)
	}

	recordReader, err := arrowReader.GetRecordReader(context.Background(), colIndices, nil)
	if err != nil {
		return fail("create_record_reader", err)
	}

	return &ParquetReader{
		closer:       closer,
		recordReader: recordReader,
		columns:      columns,
		opts:         opts,
	}, nil
}

// parquetColumns maps schema fields to columns. A field whose spec does not
// parse is kept as an untagged column named after the field.
func parquetColumns(fields []arrow.Field) ([]core.Column, error) {
	columns := make([]core.Column, len(fields))
	tagged := false
	for i, field := range fields {
		spec := field.Name
		header := ""
		if idx := field.Metadata.FindKey(ParquetTagKey); idx >= 0 {
			spec = field.Metadata.Values()[idx]
		}
		if idx := field.Metadata.FindKey(ParquetHeaderKey); idx >= 0 {
			header = field.Metadata.Values()[idx]
		}

		col, ok, err := core.ParseColumnSpec(header, spec)
		if err != nil || !ok {
			if header == "" {
				header = field.Name
			}
			col = core.NewColumn(header, "")
		}
		tagged = tagged || col.IsTagged()
		columns[i] = col
	}
	if !tagged {
		return nil, ErrNoHashtagRow
	}
	return columns, nil
}

// Columns implements the core.Dataset interface.
func (p *ParquetReader) Columns() []core.Column {
	return p.columns
}

// Rows implements the core.Dataset interface.
func (p *ParquetReader) Rows(ctx context.Context) (core.RowReader, error) {
	if err := p.once.Acquire("parquet"); err != nil {
		return nil, err
	}
	return core.RowReaderFunc{ReadFunc: p.read, CloseFunc: p.Close}, nil
}

func (p *ParquetReader) read(ctx context.Context) (core.Row, error) {
	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
		p.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return core.Row{}, &ParquetReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if p.currentBatch == nil || p.batchIdx >= int(p.currentBatch.NumRows()) {
		if err := p.loadNextBatch(); err != nil {
			if errors.Is(err, io.EOF) {
				return core.Row{}, io.EOF
			}
			return core.Row{}, &ParquetReaderError{Op: "load_batch", Err: err}
		}
	}

	values := make([]string, p.currentBatch.NumCols())
	for i := range values {
		values[i] = p.cellString(p.currentBatch.Column(i), p.batchIdx)
	}
	row := core.NewRow(p.columns, values, p.number)
	p.batchIdx++
	p.number++
	p.stats.RowsRead++
	return row, nil
}

func (p *ParquetReader) loadNextBatch() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}
	if p.recordReader == nil {
		return io.EOF
	}

	for {
		rec, err := p.recordReader.Read()
		if err != nil {
			return err
		}
		if rec == nil {
			return io.EOF
		}
		if rec.NumRows() == 0 {
			continue
		}
		// The record reader releases rec on its next Read.
		rec.Retain()
		p.currentBatch = rec
		p.batchIdx = 0
		p.stats.BatchesRead++
		return nil
	}
}

// cellString renders one Arrow value as cell text; nulls are empty.
func (p *ParquetReader) cellString(col arrow.Array, rowIdx int) string {
	if col.IsNull(rowIdx) {
		p.stats.NullCells++
		return ""
	}

	switch arr := col.(type) {
	case *array.String:
		return arr.Value(rowIdx)
	case *array.LargeString:
		return arr.Value(rowIdx)
	case *array.Boolean:
		return strconv.FormatBool(arr.Value(rowIdx))
	case *array.Int8:
		return strconv.FormatInt(int64(arr.Value(rowIdx)), 10)
	case *array.Int16:
		return strconv.FormatInt(int64(arr.Value(rowIdx)), 10)
	case *array.Int32:
		return strconv.FormatInt(int64(arr.Value(rowIdx)), 10)
	case *array.Int64:
		return strconv.FormatInt(arr.Value(rowIdx), 10)
	case *array.Uint8:
		return strconv.FormatUint(uint64(arr.Value(rowIdx)), 10)
	case *array.Uint16:
		return strconv.FormatUint(uint64(arr.Value(rowIdx)), 10)
	case *array.Uint32:
		return strconv.FormatUint(uint64(arr.Value(rowIdx)), 10)
	case *array.Uint64:
		return strconv.FormatUint(arr.Value(rowIdx), 10)
	case *array.Float32:
		return strconv.FormatFloat(float64(arr.Value(rowIdx)), 'f', -1, 32)
	case *array.Float64:
		return strconv.FormatFloat(arr.Value(rowIdx), 'f', -1, 64)
	case *array.Binary:
		return string(arr.Value(rowIdx))
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(rowIdx).ToTime(unit).UTC().Format(time.RFC3339)
	case *array.Date32:
		return arr.Value(rowIdx).ToTime().Format("2006-01-02")
	case *array.Date64:
		return arr.Value(rowIdx).ToTime().Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", col.GetOneForMarshal(rowIdx))
	}
}

// Close releases resources and closes the underlying file
func (p *ParquetReader) Close() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}
	if p.recordReader != nil {
		p.recordReader.Release()
		p.recordReader = nil
	}
	if p.closer != nil {
		err := p.closer.Close()
		p.closer = nil
		return err
	}
	return nil
}

// Stats returns statistics about the Parquet reader's performance
func (p *ParquetReader) Stats() ParquetReaderStats {
	return p.stats
}
