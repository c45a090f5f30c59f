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

package core

import (
	"context"
	"errors"
	"io"
)

// This file contains the Dataset contract implemented by every reader and stage.

// Dataset is a schema-bearing, single-pass source of rows.
// Every pipeline stage is a Dataset holding a reference to its upstream Dataset.
type Dataset interface {
	// Columns returns the schema. It is available before any row is read and
	// does not change during the pass.
	Columns() []Column
	// Rows starts the single pass. A second call fails with ErrDatasetConsumed.
	Rows(ctx context.Context) (RowReader, error)
}

// RowReader pulls rows one at a time from a Dataset.
type RowReader interface {
	// Read returns the next row or io.EOF when no more rows are available.
	Read(ctx context.Context) (Row, error)
	// Close releases any resources held by the reader and its upstream.
	Close() error
}

// Once guards the single pass of a Dataset.
type Once struct {
	consumed bool
}

// Acquire marks the dataset consumed, failing if it already was.
func (o *Once) Acquire(stage string) error {
	if o.consumed {
		return &DatasetError{Stage: stage, Op: "rows", Err: ErrDatasetConsumed}
	}
	o.consumed = true
	return nil
}

// Consumed reports whether Acquire has been called.
func (o *Once) Consumed() bool {
	return o.consumed
}

// RowReaderFunc adapts a pair of functions to the RowReader interface.
type RowReaderFunc struct {
	ReadFunc  func(ctx context.Context) (Row, error)
	CloseFunc func() error
}

// Read implements RowReader.
func (f RowReaderFunc) Read(ctx context.Context) (Row, error) {
	return f.ReadFunc(ctx)
}

// Close implements RowReader.
func (f RowReaderFunc) Close() error {
	if f.CloseFunc == nil {
		return nil
	}
	return f.CloseFunc()
}

// MemoryDataset is a Dataset backed by in-memory values.
type MemoryDataset struct {
	columns []Column
	rows    [][]string
	once    Once
}

// NewMemoryDataset creates a dataset over the given columns and row values.
func NewMemoryDataset(columns []Column, rows [][]string) *MemoryDataset {
	return &MemoryDataset{columns: columns, rows: rows}
}

// Columns implements Dataset.
func (m *MemoryDataset) Columns() []Column {
	return m.columns
}

// Rows implements Dataset.
func (m *MemoryDataset) Rows(ctx context.Context) (RowReader, error) {
	if err := m.once.Acquire("memory"); err != nil {
		return nil, err
	}
	return &sliceReader{columns: m.columns, rows: m.rows}, nil
}

// Len returns the number of rows held.
func (m *MemoryDataset) Len() int {
	return len(m.rows)
}

type sliceReader struct {
	columns []Column
	rows    [][]string
	pos     int
}

func (s *sliceReader) Read(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	if s.pos >= len(s.rows) {
		return Row{}, io.EOF
	}
	row := NewRow(s.columns, s.rows[s.pos], s.pos)
	s.pos++
	return row, nil
}

func (s *sliceReader) Close() error {
	return nil
}

// ForEach drains ds, calling fn for every row. The reader is always closed.
func ForEach(ctx context.Context, ds Dataset, fn func(Row) error) (err error) {
	reader, err := ds.Rows(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for {
		row, err := reader.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// ReadAll drains ds into memory, copying every row.
func ReadAll(ctx context.Context, ds Dataset) ([]Row, error) {
	var rows []Row
	err := ForEach(ctx, ds, func(row Row) error {
		rows = append(rows, row.Copy())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Materialize drains ds into a MemoryDataset with the same columns.
func Materialize(ctx context.Context, ds Dataset) (*MemoryDataset, error) {
	rows, err := ReadAll(ctx, ds)
	if err != nil {
		return nil, err
	}
	values := make([][]string, len(rows))
	for i, r := range rows {
		values[i] = r.Values()
	}
	return NewMemoryDataset(ds.Columns(), values), nil
}
