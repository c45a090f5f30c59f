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

// Package transform provides dataset stages that reorder rows for GoHXL pipelines.
package transform

import (
	"context"
	"errors"
	"io"
	"slices"

	"github.com/rs/zerolog"

	"github.com/aaronlmathis/gohxl/core"
)

// SortStats holds statistics about the last pass of a SortStage.
type SortStats struct {
	RowsSorted       int64
	NumericFallbacks int64
}

// SortOptions configures the sort stage.
type SortOptions struct {
	Patterns []core.PatternSpec
	Reverse  bool
	Logger   zerolog.Logger
}

// SortOption allows functional customization of SortStage.
type SortOption func(*SortOptions)

// WithSortPatterns sets the sort keys from raw or pre-parsed patterns.
func WithSortPatterns(specs ...core.PatternSpec) SortOption {
	return func(o *SortOptions) { o.Patterns = append(o.Patterns, specs...) }
}

// WithSortTags sets the sort keys from pattern text such as "#adm1+code".
func WithSortTags(texts ...string) SortOption {
	return func(o *SortOptions) {
		for _, t := range texts {
			o.Patterns = append(o.Patterns, core.RawPattern(t))
		}
	}
}

// WithReverse sorts descending. Rows with equal keys keep their input order.
func WithReverse(reverse bool) SortOption {
	return func(o *SortOptions) { o.Reverse = reverse }
}

// WithSortLogger sets the logger for the sort summary; zerolog.Nop by default.
func WithSortLogger(logger zerolog.Logger) SortOption {
	return func(o *SortOptions) { o.Logger = logger }
}

// SortStage is a Dataset that re-emits its upstream rows in key order.
// Rows are buffered on the first Read; the sort is stable.
type SortStage struct {
	source  core.Dataset
	keys    KeyExtractor
	reverse bool
	logger  zerolog.Logger
	once    core.Once
	stats   SortStats
}

// NewSort builds a sort stage over source. Patterns are parsed here, so a
// malformed pattern fails before any row is read.
func NewSort(source core.Dataset, options ...SortOption) (*SortStage, error) {
	opts := SortOptions{Logger: zerolog.Nop()}
	for _, opt := range options {
		opt(&opts)
	}

	patterns, err := core.PatternList(opts.Patterns...)
	if err != nil {
		return nil, &core.DatasetError{Stage: "sort", Op: "patterns", Err: err}
	}

	return &SortStage{
		source:  source,
		keys:    KeyExtractor{Patterns: patterns},
		reverse: opts.Reverse,
		logger:  opts.Logger.With().Str("stage", "sort").Logger(),
	}, nil
}

// Columns returns the upstream schema unchanged.
func (s *SortStage) Columns() []core.Column {
	return s.source.Columns()
}

// Patterns returns the normalized sort patterns.
func (s *SortStage) Patterns() []core.TagPattern {
	return slices.Clone(s.keys.Patterns)
}

// Rows starts the single pass.
func (s *SortStage) Rows(ctx context.Context) (core.RowReader, error) {
	if err := s.once.Acquire("sort"); err != nil {
		return nil, err
	}
	upstream, err := s.source.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return &sortReader{stage: s, upstream: upstream}, nil
}

// Stats returns statistics for the pass.
func (s *SortStage) Stats() SortStats {
	return s.stats
}

type keyedRow struct {
	key []string
	row core.Row
}

type sortReader struct {
	stage    *SortStage
	upstream core.RowReader
	rows     []keyedRow
	pos      int
	loaded   bool
	err      error // sticky load failure
}

func (r *sortReader) Read(ctx context.Context) (core.Row, error) {
	if r.err != nil {
		return core.Row{}, r.err
	}
	if !r.loaded {
		if err := r.load(ctx); err != nil {
			r.rows, r.err = nil, err
			return core.Row{}, err
		}
		r.loaded = true
	}
	if err := ctx.Err(); err != nil {
		return core.Row{}, err
	}
	if r.pos >= len(r.rows) {
		return core.Row{}, io.EOF
	}
	row := r.rows[r.pos].row
	r.rows[r.pos] = keyedRow{}
	r.pos++
	return row, nil
}

func (r *sortReader) load(ctx context.Context) error {
	s := r.stage
	var fallbacks int64
	for {
		row, err := r.upstream.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		key, fellBack, err := s.keys.key(row)
		if err != nil {
			return err
		}
		fallbacks += int64(fellBack)
		r.rows = append(r.rows, keyedRow{key: key, row: row.Copy()})
	}

	cmp := func(a, b keyedRow) int { return compareKeys(a.key, b.key) }
	if s.reverse {
		cmp = func(a, b keyedRow) int { return compareKeys(b.key, a.key) }
	}
	slices.SortStableFunc(r.rows, cmp)

	s.stats = SortStats{RowsSorted: int64(len(r.rows)), NumericFallbacks: fallbacks}
	s.logger.Debug().
		Int("rows", len(r.rows)).
		Int64("numeric_fallbacks", fallbacks).
		Bool("reverse", s.reverse).
		Msg("sorted rows")
	return nil
}

func (r *sortReader) Close() error {
	r.rows = nil
	return r.upstream.Close()
}
