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

package filter

import (
	"context"

	"github.com/aaronlmathis/gohxl/core"
)

// WhereStage is a Dataset that forwards only the upstream rows accepted by
// every filter. Columns pass through unchanged.
type WhereStage struct {
	source  core.Dataset
	filters []core.RowFilter
	once    core.Once
	dropped int64
}

// Where wraps source with filters. With no filters every row passes.
func Where(source core.Dataset, filters ...core.RowFilter) *WhereStage {
	return &WhereStage{source: source, filters: filters}
}

func (w *WhereStage) Columns() []core.Column {
	return w.source.Columns()
}

func (w *WhereStage) Rows(ctx context.Context) (core.RowReader, error) {
	if err := w.once.Acquire("where"); err != nil {
		return nil, err
	}
	upstream, err := w.source.Rows(ctx)
	if err != nil {
		return nil, err
	}

	return core.RowReaderFunc{
		ReadFunc: func(ctx context.Context) (core.Row, error) {
			for {
				row, err := upstream.Read(ctx)
				if err != nil {
					return core.Row{}, err
				}
				include, err := w.include(ctx, row)
				if err != nil {
					return core.Row{}, &core.DatasetError{Stage: "where", Op: "filter", Err: err}
				}
				if include {
					return row, nil
				}
				w.dropped++
			}
		},
		CloseFunc: upstream.Close,
	}, nil
}

// Dropped returns the number of rows rejected so far.
func (w *WhereStage) Dropped() int64 {
	return w.dropped
}

func (w *WhereStage) include(ctx context.Context, row core.Row) (bool, error) {
	for _, f := range w.filters {
		ok, err := f.ShouldInclude(ctx, row)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// compile-time check
var _ core.Dataset = (*WhereStage)(nil)

