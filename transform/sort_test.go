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

package transform

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gohxl/core"
)

func columns(specs ...string) []core.Column {
	cols := make([]core.Column, len(specs))
	for i, spec := range specs {
		col, _, err := core.ParseColumnSpec("", spec)
		if err != nil {
			panic(err)
		}
		cols[i] = col
	}
	return cols
}

func sortValues(t *testing.T, ds core.Dataset, options ...SortOption) [][]string {
	t.Helper()
	stage, err := NewSort(ds, options...)
	require.NoError(t, err)

	rows, err := core.ReadAll(context.Background(), stage)
	require.NoError(t, err)

	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return out
}

// TestSort_Stable tests that rows with equal keys keep their input order
func TestSort_Stable(t *testing.T) {
	ds := core.NewMemoryDataset(columns("#sector", "#org"), [][]string{
		{"WASH", "first"},
		{"Health", "only"},
		{"wash", "second"},
	})

	got := sortValues(t, ds, WithSortTags("sector"))
	assert.Equal(t, [][]string{
		{"Health", "only"},
		{"WASH", "first"},
		{"wash", "second"},
	}, got)
}

// TestSort_Numeric tests that _num values sort by value, not by text
func TestSort_Numeric(t *testing.T) {
	ds := core.NewMemoryDataset(columns("#affected_num"), [][]string{{"10"}, {"2"}, {"1"}, {"-5"}, {"-10"}, {"0.5"}})
	got := sortValues(t, ds, WithSortTags("#affected_num"))
	assert.Equal(t, [][]string{{"-10"}, {"-5"}, {"0.5"}, {"1"}, {"2"}, {"10"}}, got)
}

// TestSort_NumericFallback tests that a malformed number sorts by its raw text
func TestSort_NumericFallback(t *testing.T) {
	ds := core.NewMemoryDataset(columns("#affected_num"), [][]string{{"n/a"}, {"10"}, {"2"}})
	stage, err := NewSort(ds, WithSortTags("#affected_num"))
	require.NoError(t, err)

	rows, err := core.ReadAll(context.Background(), stage)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "2", rows[0].Value(0))
	assert.Equal(t, "10", rows[1].Value(0))
	assert.Equal(t, "n/a", rows[2].Value(0))
	assert.Equal(t, SortStats{RowsSorted: 3, NumericFallbacks: 1}, stage.Stats())
}

// TestSort_Dates tests calendar ordering of mixed date formats
func TestSort_Dates(t *testing.T) {
	ds := core.NewMemoryDataset(columns("#date_date"), [][]string{{"2021-03-01"}, {"Dec 31, 2020"}, {""}, {"2021-01-15"}})
	got := sortValues(t, ds, WithSortTags("#date_date"))
	assert.Equal(t, [][]string{{""}, {"Dec 31, 2020"}, {"2021-01-15"}, {"2021-03-01"}}, got)
}

// TestSort_PlainDateTag tests that only _date tags get calendar ordering
func TestSort_PlainDateTag(t *testing.T) {
	ds := core.NewMemoryDataset(columns("#date"), [][]string{{"Jan 2, 2020"}, {"2021-03-01"}, {"garbage"}})
	got := sortValues(t, ds, WithSortTags("#date"))
	assert.Equal(t, [][]string{{"2021-03-01"}, {"garbage"}, {"Jan 2, 2020"}}, got)
}

// TestSort_DateParseError tests that an unreadable date aborts the pass
func TestSort_DateParseError(t *testing.T) {
	ds := core.NewMemoryDataset(columns("#date_date"), [][]string{{"2021-03-01"}, {"garbage"}})
	stage, err := NewSort(ds, WithSortTags("#date_date"))
	require.NoError(t, err)

	_, err = core.ReadAll(context.Background(), stage)
	require.Error(t, err)

	var dateErr *core.DateParseError
	require.True(t, errors.As(err, &dateErr))
	assert.Equal(t, "garbage", dateErr.Value)
	assert.Equal(t, "#date_date", dateErr.Tag)
	assert.Equal(t, 1, dateErr.Row)
}

// TestSort_Reverse tests descending order with ties kept in input order
func TestSort_Reverse(t *testing.T) {
	ds := core.NewMemoryDataset(columns("#adm1", "#org"), [][]string{
		{"A", "1"},
		{"B", "2"},
		{"A", "3"},
	})
	got := sortValues(t, ds, WithSortTags("#adm1"), WithReverse(true))
	assert.Equal(t, [][]string{{"B", "2"}, {"A", "1"}, {"A", "3"}}, got)
}

// TestSort_NoPatterns tests sorting by whole row values
func TestSort_NoPatterns(t *testing.T) {
	ds := core.NewMemoryDataset(columns("#adm1", "#org"), [][]string{{"b", "x"}, {"a", "z"}, {"a", "y"}})
	got := sortValues(t, ds)
	assert.Equal(t, [][]string{{"a", "y"}, {"a", "z"}, {"b", "x"}}, got)
}

// TestSort_Empty tests that an empty upstream yields an empty result
func TestSort_Empty(t *testing.T) {
	ds := core.NewMemoryDataset(columns("#adm1"), nil)
	stage, err := NewSort(ds, WithSortTags("#adm1"))
	require.NoError(t, err)

	rows, err := core.ReadAll(context.Background(), stage)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, ds.Columns(), stage.Columns())
}

// TestSort_InvalidPattern tests that a bad pattern fails at construction
func TestSort_InvalidPattern(t *testing.T) {
	ds := core.NewMemoryDataset(columns("#adm1"), nil)
	_, err := NewSort(ds, WithSortTags("adm1", "+code"))

	var patternErr *core.InvalidPatternError
	require.True(t, errors.As(err, &patternErr))
	assert.Equal(t, 1, patternErr.Index)
}

// TestSort_SinglePass tests that a second pass is refused
func TestSort_SinglePass(t *testing.T) {
	ds := core.NewMemoryDataset(columns("#adm1"), [][]string{{"a"}})
	stage, err := NewSort(ds, WithSortTags("#adm1"))
	require.NoError(t, err)

	_, err = core.ReadAll(context.Background(), stage)
	require.NoError(t, err)

	_, err = stage.Rows(context.Background())
	assert.ErrorIs(t, err, core.ErrDatasetConsumed)
}

// TestNormalizeSortValue tests key component normalization
func TestNormalizeSortValue(t *testing.T) {
	tests := []struct {
		pattern  string
		value    string
		present  bool
		expected string
	}{
		{"#org", "Unicef", true, "UNICEF"},
		{"#org", "", true, ""},
		{"#org", "ignored", false, ""},
		{"#affected_num", "12", true, "240112000000000000000"},
		{"#affected_num", " 12 ", true, "240112000000000000000"},
		{"#lat_deg", "1.5", true, "240015000000000000000"},
		{"#lat_deg", "-1.5", true, "059984999999999999999"},
		{"#affected_num", "twelve", true, "TWELVE"},
		{"#affected_num", "NaN", true, "NAN"},
		{"#affected_num", "-0", true, "1"},
		{"#date_date", "2020-01-02", true, "2020-01-02"},
		{"#date_date", "Jan 2, 2020", true, "2020-01-02"},
		{"#date", "Jan 2, 2020", true, "JAN 2, 2020"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.value, func(t *testing.T) {
			got, err := NormalizeSortValue(core.MustParsePattern(tt.pattern), tt.value, tt.present)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

// TestEncodeNumber_Order tests that encoded numbers compare like the numbers
func TestEncodeNumber_Order(t *testing.T) {
	values := []string{
		"-1.7976931348623157e308", "-1e25", "-1e24", "-1000", "-999.5", "-1", "-0.25", "-5e-324",
		"0",
		"5e-324", "0.25", "1", "999.5", "1000", "1e24", "1e25", "1.7976931348623157e308",
	}
	var prev string
	for i, v := range values {
		enc, ok := encodeNumber(v)
		require.True(t, ok)
		if i > 0 {
			assert.Less(t, prev, enc, "%s should sort before %s", values[i-1], v)
		}
		prev = enc
	}
}

// TestKeyExtractor_Deterministic tests that the same row yields the same key
func TestKeyExtractor_Deterministic(t *testing.T) {
	cols := columns("#adm1", "#affected_num")
	row := core.NewRow(cols, []string{"north", "7"}, 0)
	ke := KeyExtractor{Patterns: []core.TagPattern{core.MustParsePattern("#adm1"), core.MustParsePattern("#affected_num")}}

	k1, err := ke.Key(row)
	require.NoError(t, err)
	k2, err := ke.Key(row)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Equal(t, "NORTH", k1[0])
}

// glitchDataset fails once at failAt and then keeps serving rows.
type glitchDataset struct {
	cols   []core.Column
	rows   [][]string
	failAt int
	err    error
}

func (g *glitchDataset) Columns() []core.Column { return g.cols }

func (g *glitchDataset) Rows(ctx context.Context) (core.RowReader, error) {
	pos, failed := 0, false
	return core.RowReaderFunc{ReadFunc: func(ctx context.Context) (core.Row, error) {
		if pos == g.failAt && !failed {
			failed = true
			return core.Row{}, g.err
		}
		if pos >= len(g.rows) {
			return core.Row{}, io.EOF
		}
		row := core.NewRow(g.cols, g.rows[pos], pos)
		pos++
		return row, nil
	}}, nil
}

// TestSort_LoadErrorIsSticky tests that a failed load is reported on every read
func TestSort_LoadErrorIsSticky(t *testing.T) {
	readErr := errors.New("connection reset")
	ds := &glitchDataset{cols: columns("#org"), rows: [][]string{{"B"}, {"A"}, {"C"}}, failAt: 1, err: readErr}

	stage, err := NewSort(ds, WithSortTags("#org"))
	require.NoError(t, err)
	reader, err := stage.Rows(context.Background())
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Read(context.Background())
	assert.ErrorIs(t, err, readErr)
	_, err = reader.Read(context.Background())
	assert.ErrorIs(t, err, readErr)
	_, err = reader.Read(context.Background())
	assert.ErrorIs(t, err, readErr)
}
