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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gohxl/core"
	"github.com/aaronlmathis/gohxl/filter"
	"github.com/aaronlmathis/gohxl/validators"
)

// memorySink records everything written to it.
type memorySink struct {
	columns    []Column
	rows       [][]string
	failOn     map[string]bool
	flushed    bool
	closed     bool
	closeErr   error
	columnsErr error
}

func (m *memorySink) WriteColumns(ctx context.Context, columns []Column) error {
	if m.columnsErr != nil {
		return m.columnsErr
	}
	m.columns = columns
	return nil
}

func (m *memorySink) Write(ctx context.Context, row Row) error {
	if m.failOn[row.Value(0)] {
		return errors.New("write failed")
	}
	m.rows = append(m.rows, row.Values())
	return nil
}

func (m *memorySink) Flush() error {
	m.flushed = true
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return m.closeErr
}

func testDataset() *core.MemoryDataset {
	cols := []core.Column{
		core.NewColumn("Sector", "#sector"),
		core.NewColumn("Province", "#adm1"),
		core.NewColumn("Affected", "#affected_num"),
	}
	return core.NewMemoryDataset(cols, [][]string{
		{"WASH", "B", "10"},
		{"Health", "A", "2"},
		{"WASH", "A", "1"},
		{"WASH", "A", "30"},
	})
}

func tags(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.DisplayTag()
	}
	return out
}

// TestPipeline_Count tests a count pipeline end to end
func TestPipeline_Count(t *testing.T) {
	sink := &memorySink{}
	p, err := NewPipeline().
		From(testDataset()).
		CountBy("#sector", "#adm1").
		To(sink).
		Build()
	require.NoError(t, err)
	require.NoError(t, p.Execute(context.Background()))

	assert.Equal(t, []string{"#sector", "#adm1", "#x_total_num"}, tags(sink.columns))
	assert.Equal(t, [][]string{
		{"Health", "A", "1"},
		{"WASH", "A", "2"},
		{"WASH", "B", "1"},
	}, sink.rows)
	assert.True(t, sink.flushed)
	assert.True(t, sink.closed)
	assert.Equal(t, int64(3), p.Stats().RowsWritten)
}

// TestPipeline_WhereSort tests chaining a filter and a numeric sort
func TestPipeline_WhereSort(t *testing.T) {
	sink := &memorySink{}
	p, err := NewPipeline().
		From(testDataset()).
		Where(filter.Equals(core.MustParsePattern("#sector"), "wash")).
		SortBy(true, "#affected_num").
		To(sink).
		Build()
	require.NoError(t, err)
	require.NoError(t, p.Execute(context.Background()))

	assert.Equal(t, []string{"#sector", "#adm1", "#affected_num"}, tags(sink.columns))
	assert.Equal(t, [][]string{
		{"WASH", "A", "30"},
		{"WASH", "B", "10"},
		{"WASH", "A", "1"},
	}, sink.rows)
}

// TestPipeline_BuildErrors tests that stage errors surface from Build
func TestPipeline_BuildErrors(t *testing.T) {
	_, err := NewPipeline().
		From(testDataset()).
		SortBy(false, "+bad").
		CountBy("#sector", "").
		To(&memorySink{}).
		Build()
	require.Error(t, err)

	var patternErr *core.InvalidPatternError
	assert.True(t, errors.As(err, &patternErr))

	_, err = NewPipeline().To(&memorySink{}).Build()
	assert.Error(t, err)

	_, err = NewPipeline().From(testDataset()).Build()
	assert.Error(t, err)
}

// TestPipeline_ErrorStrategies tests handling of sink write errors
func TestPipeline_ErrorStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy ErrorStrategy
		hasError bool
		written  int
	}{
		{"fail fast", FailFast, true, 0},
		{"skip errors", SkipErrors, false, 3},
		{"collect errors", CollectErrors, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memorySink{failOn: map[string]bool{"Health": true}}
			p, err := NewPipeline().
				From(testDataset()).
				SortBy(false, "#sector").
				To(sink).
				WithErrorStrategy(tt.strategy).
				Build()
			require.NoError(t, err)

			err = p.Execute(context.Background())
			if tt.hasError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, sink.rows, tt.written)
			assert.True(t, sink.closed)
		})
	}
}

// TestPipeline_ErrorHandler tests that a handler can stop the run
func TestPipeline_ErrorHandler(t *testing.T) {
	stop := errors.New("stop")
	var handled int
	sink := &memorySink{failOn: map[string]bool{"WASH": true}}
	p, err := NewPipeline().
		From(testDataset()).
		To(sink).
		WithErrorStrategy(SkipErrors).
		WithErrorHandler(core.ErrorHandlerFunc(func(ctx context.Context, row Row, err error) error {
			handled++
			if handled == 2 {
				return stop
			}
			return nil
		})).
		Build()
	require.NoError(t, err)

	err = p.Execute(context.Background())
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, handled)
	assert.Equal(t, [][]string{{"Health", "A", "2"}}, sink.rows)
}

// TestPipeline_ReadErrorPropagates tests that stage errors are returned unchanged
func TestPipeline_ReadErrorPropagates(t *testing.T) {
	cols := []core.Column{core.NewColumn("", "#date_date")}
	ds := core.NewMemoryDataset(cols, [][]string{{"2020-01-01"}, {"garbage"}})

	sink := &memorySink{}
	p, err := NewPipeline().
		From(ds).
		SortBy(false, "#date_date").
		To(sink).
		WithErrorStrategy(SkipErrors).
		Build()
	require.NoError(t, err)

	err = p.Execute(context.Background())
	var dateErr *core.DateParseError
	assert.True(t, errors.As(err, &dateErr))
	assert.Empty(t, sink.rows)
}

// TestPipeline_CloseError tests that close errors are reported
func TestPipeline_CloseError(t *testing.T) {
	closeErr := errors.New("close failed")
	sink := &memorySink{closeErr: closeErr}
	p, err := NewPipeline().From(testDataset()).To(sink).Build()
	require.NoError(t, err)

	err = p.Execute(context.Background())
	assert.ErrorIs(t, err, closeErr)
	assert.Len(t, sink.rows, 4)
}

func TestPipeline_Validate(t *testing.T) {
	sink := &memorySink{}
	min := 5.0
	pipeline, err := NewPipeline().
		From(testDataset()).
		Validate(
			validators.WithRequiredTags("#sector", "#adm1"),
			validators.WithMode(validators.DropInvalid),
			validators.WithFieldValidator("#affected_num", validators.FieldValidator{
				DataType: validators.FieldTypeInt,
				MinValue: &min,
			}),
		).
		CountBy("#adm1").
		To(sink).
		Build()
	require.NoError(t, err)
	require.NoError(t, pipeline.Execute(context.Background()))

	assert.Equal(t, [][]string{{"A", "1"}, {"B", "1"}}, sink.rows)

	_, err = NewPipeline().
		From(testDataset()).
		Validate(validators.WithRequiredTags("#org")).
		To(&memorySink{}).
		Build()
	assert.ErrorContains(t, err, "no column matches #org")
}

// closeTracker records whether the rows of its dataset were closed.
type closeTracker struct {
	*core.MemoryDataset
	closed bool
}

func (c *closeTracker) Rows(ctx context.Context) (RowReader, error) {
	reader, err := c.MemoryDataset.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return core.RowReaderFunc{
		ReadFunc: reader.Read,
		CloseFunc: func() error {
			c.closed = true
			return reader.Close()
		},
	}, nil
}

// TestPipeline_HeaderErrorClosesSource tests that a failed schema write still releases the source
func TestPipeline_HeaderErrorClosesSource(t *testing.T) {
	headerErr := errors.New("disk full")
	source := &closeTracker{MemoryDataset: testDataset()}
	sink := &memorySink{columnsErr: headerErr}

	p, err := NewPipeline().From(source).To(sink).Build()
	require.NoError(t, err)

	err = p.Execute(context.Background())
	assert.ErrorIs(t, err, headerErr)
	assert.True(t, source.closed)
	assert.True(t, sink.closed)
	assert.Empty(t, sink.rows)
}
