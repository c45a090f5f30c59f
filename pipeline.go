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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/aaronlmathis/gohxl/aggregate"
	"github.com/aaronlmathis/gohxl/filter"
	"github.com/aaronlmathis/gohxl/transform"
	"github.com/aaronlmathis/gohxl/validators"
)

// Package gohxl provides a streaming pipeline for HXL-tagged datasets.
//
// Core Concepts:
//   - Dataset: a column schema plus a lazy, single-pass row sequence.
//   - TagPattern: selects columns by hashtag and attributes (e.g. #adm1+code).
//   - Stages: filter.Where, validators.NewDataQuality, transform.NewSort and aggregate.NewCount wrap an upstream Dataset.
//   - DataSink: writes the columns and rows of the final stage.
//   - ErrorStrategy: configurable handling of sink write errors (fail fast, skip, collect).
//
// Example usage:
//
//	pipeline, err := gohxl.NewPipeline().
//	    From(csvReader).
//	    SortBy(false, "#adm1", "#affected_num").
//	    CountBy("#sector", "#adm1").
//	    To(csvWriter).
//	    Build()
//	if err != nil { log.Fatal(err) }
//	if err := pipeline.Execute(context.Background()); err != nil { log.Fatal(err) }
//
// Rows are pulled one at a time; only sort and count buffer their input.

// PipelineStats holds statistics about a pipeline run.
type PipelineStats struct {
	RowsWritten int64
	WriteErrors int64
	Duration    time.Duration
}

// PipelineBuilder provides a fluent API for constructing pipelines.
// Use NewPipeline() to create a new builder, then chain From, the stage methods, To, and configuration methods.
// Stages are applied in the order they are added.
type PipelineBuilder struct {
	pipeline *Pipeline
	stages   []StageFunc
	errs     error
}

// NewPipeline creates a new PipelineBuilder.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			strategy: FailFast,
			logger:   zerolog.Nop(),
		},
	}
}

// From sets the source dataset for the pipeline.
func (pb *PipelineBuilder) From(source Dataset) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// Then adds a custom stage to the pipeline.
func (pb *PipelineBuilder) Then(stage StageFunc) *PipelineBuilder {
	pb.stages = append(pb.stages, stage)
	return pb
}

// Where keeps only the rows accepted by every filter.
func (pb *PipelineBuilder) Where(filters ...RowFilter) *PipelineBuilder {
	return pb.Then(func(upstream Dataset) (Dataset, error) {
		return filter.Where(upstream, filters...), nil
	})
}

// Validate checks the data quality of the rows passing through. Column checks
// fail Build; row checks follow the configured validators.Mode.
func (pb *PipelineBuilder) Validate(options ...validators.DataQualityOption) *PipelineBuilder {
	return pb.Then(func(upstream Dataset) (Dataset, error) {
		opts := append([]validators.DataQualityOption{validators.WithQualityLogger(pb.pipeline.logger)}, options...)
		return validators.NewDataQuality(upstream, opts...)
	})
}

// SortBy sorts rows by the given tag patterns. With no patterns rows are
// sorted by their values.
func (pb *PipelineBuilder) SortBy(reverse bool, tags ...string) *PipelineBuilder {
	return pb.Then(func(upstream Dataset) (Dataset, error) {
		return transform.NewSort(upstream,
			transform.WithSortTags(tags...),
			transform.WithReverse(reverse),
			transform.WithSortLogger(pb.pipeline.logger))
	})
}

// CountBy replaces the rows with one row per distinct combination of values
// of the given tag patterns, plus a count column.
func (pb *PipelineBuilder) CountBy(tags ...string) *PipelineBuilder {
	return pb.Count(aggregate.WithCountTags(tags...))
}

// Count adds a count stage with full control over its options.
func (pb *PipelineBuilder) Count(options ...aggregate.CountOption) *PipelineBuilder {
	return pb.Then(func(upstream Dataset) (Dataset, error) {
		opts := append([]aggregate.CountOption{aggregate.WithCountLogger(pb.pipeline.logger)}, options...)
		return aggregate.NewCount(upstream, opts...)
	})
}

// To sets the DataSink for the pipeline.
func (pb *PipelineBuilder) To(sink DataSink) *PipelineBuilder {
	pb.pipeline.sink = sink
	return pb
}

// WithLogger sets the logger used by the pipeline and its stages.
func (pb *PipelineBuilder) WithLogger(logger zerolog.Logger) *PipelineBuilder {
	pb.pipeline.logger = logger
	return pb
}

// WithErrorStrategy sets the error handling strategy for sink write errors.
//
// strategy: ErrorStrategy (FailFast, SkipErrors, CollectErrors)
func (pb *PipelineBuilder) WithErrorStrategy(strategy ErrorStrategy) *PipelineBuilder {
	pb.pipeline.strategy = strategy
	return pb
}

// WithErrorHandler sets a custom error handler for the pipeline.
func (pb *PipelineBuilder) WithErrorHandler(handler ErrorHandler) *PipelineBuilder {
	pb.pipeline.errorHandler = handler
	return pb
}

// Build validates and constructs the Pipeline from the builder. Every stage
// is constructed here, so malformed tag patterns are reported before any row
// is read.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	if pb.pipeline.source == nil {
		return nil, fmt.Errorf("pipeline requires a data source")
	}
	if pb.pipeline.sink == nil {
		return nil, fmt.Errorf("pipeline requires a data sink")
	}

	var errs error
	final := pb.pipeline.source
	for i, stage := range pb.stages {
		next, err := stage(final)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stage %d: %w", i, err))
			continue
		}
		final = next
	}
	if errs != nil {
		return nil, errs
	}

	pb.pipeline.final = final
	return pb.pipeline, nil
}

// Pipeline represents a chain of dataset stages feeding a sink.
//
// Use Execute to pull every row from the final stage and write it to the DataSink.
type Pipeline struct {
	source       Dataset
	final        Dataset
	sink         DataSink
	strategy     ErrorStrategy
	errorHandler ErrorHandler
	logger       zerolog.Logger
	stats        PipelineStats
}

// Output returns the final dataset of the chain.
func (p *Pipeline) Output() Dataset {
	return p.final
}

// Stats returns statistics for the last run.
func (p *Pipeline) Stats() PipelineStats {
	return p.stats
}

// Execute runs the pipeline, writing all rows of the final stage to the sink.
//
// Read errors from any stage stop the run and are returned unchanged. Write
// errors are governed by the configured ErrorStrategy and ErrorHandler.
// Errors from closing the reader and the sink are combined with the result.
func (p *Pipeline) Execute(ctx context.Context) (err error) {
	start := time.Now()
	p.stats = PipelineStats{}

	defer func() {
		if p.sink != nil {
			err = multierr.Combine(err, p.sink.Flush(), p.sink.Close())
		}
		p.stats.Duration = time.Since(start)
		p.logger.Info().
			Int64("rows_written", p.stats.RowsWritten).
			Int64("write_errors", p.stats.WriteErrors).
			Dur("duration", p.stats.Duration).
			Err(err).
			Msg("pipeline finished")
	}()

	reader, err := p.final.Rows(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, reader.Close())
	}()

	if err := p.sink.WriteColumns(ctx, p.final.Columns()); err != nil {
		return err
	}

	var collected error
	for {
		select {
		case <-ctx.Done():
			return multierr.Append(collected, ctx.Err())
		default:
		}

		row, err := reader.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return multierr.Append(collected, err)
		}

		if err := p.sink.Write(ctx, row); err != nil {
			p.stats.WriteErrors++
			if err := p.handleError(ctx, row, err); err != nil {
				return multierr.Append(collected, err)
			}
			if p.strategy == CollectErrors {
				collected = multierr.Append(collected, err)
			}
			continue
		}
		p.stats.RowsWritten++
	}

	return collected
}

// handleError handles errors according to the pipeline's error strategy and handler.
// Returns an error if processing should stop, or nil to continue.
func (p *Pipeline) handleError(ctx context.Context, row Row, err error) error {
	switch p.strategy {
	case FailFast:
		return err
	case SkipErrors, CollectErrors:
		p.logger.Warn().Err(err).Int("row", row.Number()).Msg("row write failed")
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, row, err)
		}
		return nil
	default:
		return err
	}
}
