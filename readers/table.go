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
	"io"
	"strings"
	"time"

	"github.com/aaronlmathis/gohxl/core"
)

// DefaultScanDepth is the number of leading rows searched for the hashtag row.
const DefaultScanDepth = 25

// ErrNoHashtagRow is returned when no row within the scan depth looks like
// an HXL hashtag row.
var ErrNoHashtagRow = errors.New("no HXL hashtag row found")

// ReaderStats holds statistics about a tabular reader's performance.
type ReaderStats struct {
	RowsRead     int64
	SkippedRows  int64 // Rows above the hashtag row, header text included
	EmptyCells   int64
	ReadDuration time.Duration
	LastReadTime time.Time
}

// recordSource returns the next raw record, or io.EOF.
type recordSource func() ([]string, error)

// table is the Dataset shared by readers of row-oriented HXL sources. It
// locates the hashtag row, keeps the columns, and streams the data rows.
type table struct {
	name    string
	columns []core.Column
	next    recordSource
	closer  io.Closer
	once    core.Once
	closed  bool
	number  int
	stats   ReaderStats
}

// scanTable reads up to depth records looking for the hashtag row. The row
// right above it, if any, supplies the header text.
func scanTable(name string, next recordSource, closer io.Closer, depth int) (*table, error) {
	if depth <= 0 {
		depth = DefaultScanDepth
	}

	var previous []string
	for i := 0; i < depth; i++ {
		record, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if IsHashtagRow(record) {
			columns, err := BuildColumns(previous, record)
			if err != nil {
				return nil, err
			}
			return &table{
				name:    name,
				columns: columns,
				next:    next,
				closer:  closer,
				stats:   ReaderStats{SkippedRows: int64(i)},
			}, nil
		}
		previous = record
	}
	return nil, ErrNoHashtagRow
}

// IsHashtagRow reports whether every non-empty cell is a hashtag spec and at
// least one cell is.
func IsHashtagRow(cells []string) bool {
	seen := false
	for _, cell := range cells {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		if !core.IsTagSpec(cell) {
			return false
		}
		seen = true
	}
	return seen
}

// BuildColumns pairs header text with hashtag specs. Either row may be the
// longer one; missing cells are empty.
func BuildColumns(headers, tags []string) ([]core.Column, error) {
	n := max(len(headers), len(tags))
	columns := make([]core.Column, n)
	for i := 0; i < n; i++ {
		var header, spec string
		if i < len(headers) {
			header = strings.TrimSpace(headers[i])
		}
		if i < len(tags) {
			spec = tags[i]
		}
		col, _, err := core.ParseColumnSpec(header, spec)
		if err != nil {
			return nil, err
		}
		columns[i] = col
	}
	return columns, nil
}

func (t *table) Columns() []core.Column {
	return t.columns
}

func (t *table) Rows(ctx context.Context) (core.RowReader, error) {
	if err := t.once.Acquire(t.name); err != nil {
		return nil, err
	}
	return core.RowReaderFunc{ReadFunc: t.read, CloseFunc: t.close}, nil
}

func (t *table) read(ctx context.Context) (core.Row, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return core.Row{}, ctx.Err()
	default:
	}

	record, err := t.next()
	if err != nil {
		return core.Row{}, err
	}

	for _, v := range record {
		if strings.TrimSpace(v) == "" {
			t.stats.EmptyCells++
		}
	}
	row := core.NewRow(t.columns, record, t.number)
	t.number++

	t.stats.RowsRead++
	t.stats.LastReadTime = time.Now()
	t.stats.ReadDuration += time.Since(start)
	return row, nil
}

func (t *table) close() error {
	if t.closed || t.closer == nil {
		return nil
	}
	t.closed = true
	return t.closer.Close()
}

// sliceSource replays records already held in memory.
func sliceSource(records [][]string) recordSource {
	pos := 0
	return func() ([]string, error) {
		if pos >= len(records) {
			return nil, io.EOF
		}
		rec := records[pos]
		pos++
		return rec, nil
	}
}
