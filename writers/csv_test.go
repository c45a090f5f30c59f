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

package writers

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gohxl/core"
)

// Mock writer for sink testing
type mockWriteCloser struct {
	*strings.Builder
	closed    bool
	failWrite bool
	failClose bool
	mu        sync.Mutex
}

func (m *mockWriteCloser) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return 0, io.ErrUnexpectedEOF
	}
	return m.Builder.Write(p)
}

func (m *mockWriteCloser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.failClose {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (m *mockWriteCloser) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Builder.String()
}

func (m *mockWriteCloser) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func newMockWriteCloser() *mockWriteCloser {
	return &mockWriteCloser{Builder: &strings.Builder{}}
}

func testColumns(t *testing.T, headers []string, specs ...string) []core.Column {
	t.Helper()
	cols := make([]core.Column, len(specs))
	for i, spec := range specs {
		header := ""
		if i < len(headers) {
			header = headers[i]
		}
		col, _, err := core.ParseColumnSpec(header, spec)
		require.NoError(t, err)
		cols[i] = col
	}
	return cols
}

func writeAll(t *testing.T, sink interface {
	WriteColumns(context.Context, []core.Column) error
	Write(context.Context, core.Row) error
	Close() error
}, cols []core.Column, rows ...[]string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, sink.WriteColumns(ctx, cols))
	for i, values := range rows {
		require.NoError(t, sink.Write(ctx, core.NewRow(cols, values, i)))
	}
	require.NoError(t, sink.Close())
}

func parseCSV(t *testing.T, s string) [][]string {
	t.Helper()
	r := csv.NewReader(strings.NewReader(s))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVWriter_HashtagRowOnly(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock)
	require.NoError(t, err)

	cols := testColumns(t, nil, "#sector", "#adm1+code", "#x_total_num")
	writeAll(t, writer, cols, []string{"WASH", "P01", "2"}, []string{"Health", "P02", "1"})

	assert.Equal(t, [][]string{
		{"#sector", "#adm1+code", "#x_total_num"},
		{"WASH", "P01", "2"},
		{"Health", "P02", "1"},
	}, parseCSV(t, mock.String()))
	assert.True(t, mock.IsClosed())
}

func TestCSVWriter_HeaderRowModes(t *testing.T) {
	tests := []struct {
		name    string
		mode    HeaderMode
		headers []string
		want    [][]string
	}{
		{"auto with text", HeaderAuto, []string{"Sector", ""}, [][]string{{"Sector", ""}, {"#sector", "#org"}, {"WASH", "UNICEF"}}},
		{"auto without text", HeaderAuto, nil, [][]string{{"#sector", "#org"}, {"WASH", "UNICEF"}}},
		{"always", HeaderAlways, nil, [][]string{{"", ""}, {"#sector", "#org"}, {"WASH", "UNICEF"}}},
		{"never", HeaderNever, []string{"Sector", "Org"}, [][]string{{"#sector", "#org"}, {"WASH", "UNICEF"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockWriteCloser()
			writer, err := NewCSVWriter(mock, WithHeaderRow(tt.mode))
			require.NoError(t, err)

			writeAll(t, writer, testColumns(t, tt.headers, "#sector", "#org"), []string{"WASH", "UNICEF"})
			assert.Equal(t, tt.want, parseCSV(t, mock.String()))
		})
	}
}

func TestCSVWriter_UntaggedColumn(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock)
	require.NoError(t, err)

	writeAll(t, writer, testColumns(t, []string{"Org", "Notes"}, "#org", ""), []string{"WFP", "n/a"})
	assert.Equal(t, [][]string{{"Org", "Notes"}, {"#org", ""}, {"WFP", "n/a"}}, parseCSV(t, mock.String()))
}

func TestCSVWriter_ShortRowsArePadded(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock)
	require.NoError(t, err)

	writeAll(t, writer, testColumns(t, nil, "#sector", "#org"), []string{"WASH"})
	assert.Equal(t, [][]string{{"#sector", "#org"}, {"WASH", ""}}, parseCSV(t, mock.String()))
	assert.Equal(t, int64(1), writer.Stats().EmptyCells)
}

func TestCSVWriter_CustomDelimiter(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, WithComma(';'))
	require.NoError(t, err)

	writeAll(t, writer, testColumns(t, nil, "#sector", "#org"), []string{"WASH", "UNICEF"})
	assert.Contains(t, mock.String(), "#sector;#org")
	assert.Contains(t, mock.String(), "WASH;UNICEF")
}

func TestCSVWriter_BatchedWrites(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, WithCSVBatchSize(2))
	require.NoError(t, err)

	ctx := context.Background()
	cols := testColumns(t, nil, "#org")
	require.NoError(t, writer.WriteColumns(ctx, cols))

	for i, v := range []string{"A", "B", "C"} {
		require.NoError(t, writer.Write(ctx, core.NewRow(cols, []string{v}, i)))
	}
	assert.Equal(t, int64(1), writer.Stats().FlushCount)
	assert.Contains(t, mock.String(), "B")
	assert.NotContains(t, mock.String(), "C")

	require.NoError(t, writer.Close())
	stats := writer.Stats()
	assert.Equal(t, int64(3), stats.RowsWritten)
	assert.Equal(t, int64(2), stats.FlushCount)
	assert.Contains(t, mock.String(), "C")
}

func TestCSVWriter_ErrorHandling(t *testing.T) {
	ctx := context.Background()
	cols := testColumns(t, nil, "#org")

	t.Run("row before columns", func(t *testing.T) {
		writer, err := NewCSVWriter(newMockWriteCloser())
		require.NoError(t, err)
		err = writer.Write(ctx, core.NewRow(cols, []string{"x"}, 0))
		assert.True(t, errors.Is(err, ErrColumnsNotWritten))
	})

	t.Run("columns twice", func(t *testing.T) {
		writer, err := NewCSVWriter(newMockWriteCloser())
		require.NoError(t, err)
		require.NoError(t, writer.WriteColumns(ctx, cols))
		assert.Error(t, writer.WriteColumns(ctx, cols))
	})

	t.Run("underlying write failure", func(t *testing.T) {
		mock := newMockWriteCloser()
		mock.failWrite = true
		writer, err := NewCSVWriter(mock, WithCSVBatchSize(1))
		require.NoError(t, err)
		require.NoError(t, writer.WriteColumns(ctx, cols))

		err = writer.Write(ctx, core.NewRow(cols, []string{"x"}, 0))
		var csvErr *CSVWriterError
		require.True(t, errors.As(err, &csvErr))
		assert.Equal(t, "flush_batch", csvErr.Op)

		err = writer.Write(ctx, core.NewRow(cols, []string{"y"}, 1))
		assert.ErrorContains(t, err, "error state")
	})

	t.Run("close failure", func(t *testing.T) {
		mock := newMockWriteCloser()
		mock.failClose = true
		writer, err := NewCSVWriter(mock)
		require.NoError(t, err)
		require.NoError(t, writer.WriteColumns(ctx, cols))
		assert.Error(t, writer.Close())
		assert.NoError(t, writer.Close(), "second close is a no-op")
	})
}

func TestCSVWriter_ConcurrentSafety(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, WithCSVBatchSize(10))
	require.NoError(t, err)

	ctx := context.Background()
	cols := testColumns(t, nil, "#org", "#sector")
	require.NoError(t, writer.WriteColumns(ctx, cols))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				assert.NoError(t, writer.Write(ctx, core.NewRow(cols, []string{"org", "sector"}, i)))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, writer.Close())

	assert.Len(t, parseCSV(t, mock.String()), 201)
	assert.Equal(t, int64(200), writer.Stats().RowsWritten)
}
