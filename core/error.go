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
	"fmt"
)

// Package core defines the error handling types for the GoHXL library.
//
// This file contains the error taxonomy shared by patterns, stages and readers,
// plus the error strategies used by the pipeline when writing output.

// ErrDatasetConsumed is returned when the rows of a single-pass dataset are
// requested a second time.
var ErrDatasetConsumed = errors.New("dataset rows already requested")

// InvalidPatternError reports malformed tag pattern syntax.
// It is raised at construction time, before any row is read.
type InvalidPatternError struct {
	Pattern string // Offending text
	Index   int    // Position in a pattern list, or -1 for a single parse
	Reason  string
}

func (e *InvalidPatternError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid tag pattern %q at position %d: %s", e.Pattern, e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid tag pattern %q: %s", e.Pattern, e.Reason)
}

// DateParseError reports a value under a _date hashtag that could not be read
// as a calendar date. It terminates the pass that produced it.
type DateParseError struct {
	Tag   string // Pattern the value was extracted with
	Value string // Offending raw value
	Row   int    // Source row number, -1 if unknown
	Err   error
}

func (e *DateParseError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("cannot parse %q under %s as a date (row %d): %v", e.Value, e.Tag, e.Row, e.Err)
	}
	return fmt.Sprintf("cannot parse %q under %s as a date: %v", e.Value, e.Tag, e.Err)
}

func (e *DateParseError) Unwrap() error {
	return e.Err
}

// DatasetError wraps structured error information for dataset stages.
type DatasetError struct {
	Stage string // Stage name, e.g. "sort", "count", "where"
	Op    string
	Err   error
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Op, e.Err)
}

func (e *DatasetError) Unwrap() error {
	return e.Err
}

// ErrorHandler defines how sink errors are handled during pipeline execution.
type ErrorHandler interface {
	// HandleError processes an error that occurred while writing a row.
	// Returning a non-nil error will stop the pipeline; returning nil will continue.
	HandleError(ctx context.Context, row Row, err error) error
}

// ErrorStrategy defines how to handle sink write errors in the pipeline.
type ErrorStrategy int

const (
	// FailFast stops processing on the first error encountered.
	FailFast ErrorStrategy = iota
	// SkipErrors continues processing, skipping rows that failed to write.
	SkipErrors
	// CollectErrors continues processing, collecting all errors for later inspection.
	CollectErrors
)

// ErrorHandlerFunc is a function adapter for the ErrorHandler interface.
type ErrorHandlerFunc func(ctx context.Context, row Row, err error) error

// HandleError implements the ErrorHandler interface for ErrorHandlerFunc.
func (f ErrorHandlerFunc) HandleError(ctx context.Context, row Row, err error) error {
	return f(ctx, row, err)
}
