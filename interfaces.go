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

package gohxl

import (
	"context"

	"github.com/aaronlmathis/gohxl/core"
)

// Package gohxl defines the core interfaces and types for the GoHXL library.
//
// GoHXL reads datasets tagged with the Humanitarian Exchange Language (HXL),
// runs them through lazy single-pass stages selected by tag patterns, and
// writes the result.
//
// This file contains the primary interfaces for data sources, sinks, filtering and error handling.

// Column, Row and the other model types are defined in core and re-exported
// here for callers that only need the pipeline.
type (
	Column        = core.Column
	Row           = core.Row
	TagPattern    = core.TagPattern
	Dataset       = core.Dataset
	RowReader     = core.RowReader
	RowFilter     = core.RowFilter
	RowFilterFunc = core.RowFilterFunc
	ErrorStrategy = core.ErrorStrategy
	ErrorHandler  = core.ErrorHandler
)

const (
	FailFast      = core.FailFast
	SkipErrors    = core.SkipErrors
	CollectErrors = core.CollectErrors
)

// DataSink defines the interface for data loading.
// Implementations write rows to a destination (e.g., CSV, JSON, Parquet, PostgreSQL).
type DataSink interface {
	// WriteColumns announces the schema. It is called once, before any row.
	WriteColumns(ctx context.Context, columns []Column) error
	// Write outputs a single row to the sink.
	Write(ctx context.Context, row Row) error
	// Flush ensures all buffered data is written to the sink.
	Flush() error
	// Close releases any resources held by the data sink.
	Close() error
}

// StageFunc wraps an upstream dataset in a further stage.
type StageFunc func(upstream Dataset) (Dataset, error)
