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
	"errors"
	"testing"

	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gohxl/core"
)

func parseJSON(t *testing.T, s string) any {
	t.Helper()
	v, err := oj.ParseString(s)
	require.NoError(t, err)
	return v
}

func TestJSONWriter_Arrays(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock)

	cols := testColumns(t, []string{"Sector", ""}, "#sector", "#x_total_num")
	writeAll(t, writer, cols, []string{"WASH", "2"}, []string{"Health"})

	assert.Equal(t, []any{
		[]any{"Sector", ""},
		[]any{"#sector", "#x_total_num"},
		[]any{"WASH", "2"},
		[]any{"Health", ""},
	}, parseJSON(t, mock.String()))
	assert.True(t, mock.IsClosed())
	assert.Equal(t, int64(2), writer.Stats().RowsWritten)
}

func TestJSONWriter_ArraysWithoutHeaderText(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock)

	writeAll(t, writer, testColumns(t, nil, "#org"), []string{"UNICEF"})
	assert.Equal(t, []any{[]any{"#org"}, []any{"UNICEF"}}, parseJSON(t, mock.String()))
}

func TestJSONWriter_Objects(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock, WithJSONObjects(true))

	cols := testColumns(t, []string{"", "Notes", ""}, "#adm1+code", "", "#adm1+code")
	writeAll(t, writer, cols, []string{"P01", "ignored", "P02"})

	assert.Equal(t, []any{
		map[string]any{"#adm1+code": "P01"},
	}, parseJSON(t, mock.String()))
}

func TestJSONWriter_EscapesValues(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock)

	writeAll(t, writer, testColumns(t, nil, "#description"), []string{"line \"one\"\nline two"})
	assert.Equal(t, []any{[]any{"#description"}, []any{"line \"one\"\nline two"}}, parseJSON(t, mock.String()))
}

func TestJSONWriter_EmptyDocuments(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock, WithJSONObjects(true))
	writeAll(t, writer, testColumns(t, nil, "#org"))
	assert.Equal(t, []any{}, parseJSON(t, mock.String()))

	mock = newMockWriteCloser()
	writer = NewJSONWriter(mock)
	require.NoError(t, writer.Close())
	assert.Equal(t, []any{}, parseJSON(t, mock.String()))
}

func TestJSONWriter_ErrorHandling(t *testing.T) {
	ctx := context.Background()
	cols := testColumns(t, nil, "#org")

	writer := NewJSONWriter(newMockWriteCloser())
	err := writer.Write(ctx, core.NewRow(cols, []string{"x"}, 0))
	assert.True(t, errors.Is(err, ErrColumnsNotWritten))

	require.NoError(t, writer.WriteColumns(ctx, cols))
	assert.Error(t, writer.WriteColumns(ctx, cols))

	mock := newMockWriteCloser()
	mock.failWrite = true
	writer = NewJSONWriter(mock)
	require.NoError(t, writer.WriteColumns(ctx, cols))
	var jsonErr *JSONWriterError
	require.True(t, errors.As(writer.Flush(), &jsonErr))
	assert.Equal(t, "flush", jsonErr.Op)
}
