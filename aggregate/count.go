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

// Package aggregate provides grouping and counting stages for GoHXL pipelines.
package aggregate

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aaronlmathis/gohxl/core"
)

// DefaultTotalTag is the hashtag of the synthetic count column.
const DefaultTotalTag = "#x_total_num"

// CountStats holds statistics about the last pass of a CountStage.
// RowsCounted always equals RowsRead - RowsExcluded.
type CountStats struct {
	RowsRead     int64
	RowsCounted  int64
	RowsExcluded int64
	Groups       int
}

// AggregateSpec requests a numeric aggregate over the column matching Pattern.
type AggregateSpec struct {
	Kind    Kind
	Pattern core.PatternSpec
}

// CountOptions configures the count stage.
type CountOptions struct {
	Patterns   []core.PatternSpec
	Aggregates []AggregateSpec
	TotalTag   string
	Logger     zerolog.Logger
}

// CountOption allows functional customization of CountStage.
type CountOption func(*CountOptions)

// WithCountPatterns sets the grouping patterns from raw or pre-parsed specs.
func WithCountPatterns(specs ...core.PatternSpec) CountOption {
	return func(o *CountOptions) { o.Patterns = append(o.Patterns, specs...) }
}

// WithCountTags sets the grouping patterns from pattern text.
func WithCountTags(texts ...string) CountOption {
	return func(o *CountOptions) {
		for _, t := range texts {
			o.Patterns = append(o.Patterns, core.RawPattern(t))
		}
	}
}

// WithAggregate adds a numeric aggregate column after the count.
func WithAggregate(kind Kind, pattern string) CountOption {
	return func(o *CountOptions) {
		o.Aggregates = append(o.Aggregates, AggregateSpec{Kind: kind, Pattern: core.RawPattern(pattern)})
	}
}

// WithTotalTag replaces the #x_total_num count column with tag.
func WithTotalTag(tag string) CountOption {
	return func(o *CountOptions) { o.TotalTag = tag }
}

// WithCountLogger sets the logger for the count summary; zerolog.Nop by default.
func WithCountLogger(logger zerolog.Logger) CountOption {
	return func(o *CountOptions) { o.Logger = logger }
}

// CountStage is a Dataset emitting one row per distinct combination of
// grouping values, in ascending order, followed by the number of rows in the
// group. It drains its upstream on the first Read.
type CountStage struct {
	source      core.Dataset
	patterns    []core.TagPattern
	aggregators []Aggregator
	columns     []core.Column
	logger      zerolog.Logger
	once        core.Once
	stats       CountStats
}

// NewCount builds a count stage over source. Patterns are parsed here.
func NewCount(source core.Dataset, options ...CountOption) (*CountStage, error) {
	opts := CountOptions{TotalTag: DefaultTotalTag, Logger: zerolog.Nop()}
	for _, opt := range options {
		opt(&opts)
	}

	patterns, err := core.PatternList(opts.Patterns...)
	if err != nil {
		return nil, &core.DatasetError{Stage: "count", Op: "patterns", Err: err}
	}

	total, err := core.ParsePattern(opts.TotalTag)
	if err != nil {
		return nil, &core.DatasetError{Stage: "count", Op: "total_tag", Err: err}
	}

	columns := make([]core.Column, 0, len(patterns)+1+len(opts.Aggregates))
	for _, p := range patterns {
		columns = append(columns, p.Column())
	}
	columns = append(columns, total.Column())

	aggregators := make([]Aggregator, 0, len(opts.Aggregates))
	for _, spec := range opts.Aggregates {
		p, err := spec.Pattern.Pattern()
		if err != nil {
			return nil, &core.DatasetError{Stage: "count", Op: "aggregate", Err: err}
		}
		agg, err := NewAggregator(spec.Kind, p)
		if err != nil {
			return nil, &core.DatasetError{Stage: "count", Op: "aggregate", Err: err}
		}
		aggregators = append(aggregators, agg)
		columns = append(columns, spec.Kind.Column())
	}

	return &CountStage{
		source:      source,
		patterns:    patterns,
		aggregators: aggregators,
		columns:     columns,
		logger:      opts.Logger.With().Str("stage", "count").Logger(),
	}, nil
}

// Columns returns the grouping columns, the total column and any aggregate
// columns. It does not touch the upstream.
func (c *CountStage) Columns() []core.Column {
	return c.columns
}

// Rows starts the single pass.
func (c *CountStage) Rows(ctx context.Context) (core.RowReader, error) {
	if err := c.once.Acquire("count"); err != nil {
		return nil, err
	}
	upstream, err := c.source.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return &countReader{stage: c, upstream: upstream}, nil
}

// Stats returns statistics for the pass.
func (c *CountStage) Stats() CountStats {
	return c.stats
}

// Groups drains the stage and returns its groups directly.
func (c *CountStage) Groups(ctx context.Context) (groups []Group, err error) {
	if err := c.once.Acquire("count"); err != nil {
		return nil, err
	}
	upstream, err := c.source.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := upstream.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return c.drain(ctx, upstream)
}

func (c *CountStage) drain(ctx context.Context, upstream core.RowReader) ([]Group, error) {
	table := NewGroupTable(c.patterns, c.aggregators...)
	var stats CountStats
	for {
		row, err := upstream.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		stats.RowsRead++
		counted, err := table.Add(ctx, row)
		if err != nil {
			return nil, &core.DatasetError{Stage: "count", Op: "aggregate", Err: err}
		}
		if counted {
			stats.RowsCounted++
		} else {
			stats.RowsExcluded++
		}
	}

	stats.Groups = table.Len()
	groups := table.Groups()
	c.stats = stats
	c.logger.Debug().
		Int64("rows_read", stats.RowsRead).
		Int64("rows_excluded", stats.RowsExcluded).
		Int("groups", stats.Groups).
		Msg("counted rows")
	return groups, nil
}

// row renders a group under the stage's columns. Tuples shorter than the
// pattern list are padded so the count always lands in the total column.
func (c *CountStage) row(g Group) core.Row {
	values := make([]string, 0, len(c.columns))
	values = append(values, g.Values...)
	for len(values) < len(c.patterns) {
		values = append(values, "")
	}
	values = append(values, strconv.FormatInt(g.Count, 10))
	values = append(values, g.Aggregates...)
	return core.NewRow(c.columns, values, -1)
}

type countReader struct {
	stage    *CountStage
	upstream core.RowReader
	groups   []Group
	pos      int
	loaded   bool
	err      error // sticky drain failure
}

func (r *countReader) Read(ctx context.Context) (core.Row, error) {
	if r.err != nil {
		return core.Row{}, r.err
	}
	if !r.loaded {
		groups, err := r.stage.drain(ctx, r.upstream)
		if err != nil {
			r.err = err
			return core.Row{}, err
		}
		r.groups = groups
		r.loaded = true
	}
	if err := ctx.Err(); err != nil {
		return core.Row{}, err
	}
	if r.pos >= len(r.groups) {
		return core.Row{}, io.EOF
	}
	row := r.stage.row(r.groups[r.pos])
	r.pos++
	return row, nil
}

func (r *countReader) Close() error {
	r.groups = nil
	return r.upstream.Close()
}

// Count groups source by patterns and returns the groups in output order.
func Count(ctx context.Context, source core.Dataset, patterns ...core.PatternSpec) ([]Group, error) {
	stage, err := NewCount(source, WithCountPatterns(patterns...))
	if err != nil {
		return nil, err
	}
	return stage.Groups(ctx)
}
