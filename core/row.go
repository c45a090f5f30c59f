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

// This file contains the Row type.

// Row is an ordered sequence of values aligned positionally with the columns of
// the dataset that produced it. A consumer must not keep a Row past the Read
// call that returned it unless it calls Copy; sources may reuse backing arrays.
type Row struct {
	columns []Column
	values  []string
	number  int
}

// NewRow creates a row over columns. number is the 0-based position of the row in
// its source; use -1 for synthetic rows.
func NewRow(columns []Column, values []string, number int) Row {
	return Row{columns: columns, values: values, number: number}
}

// Get returns the value under the first column matching pattern.
// ok is false when no column matches; a matching column with no cell in this
// row reads as the empty string.
func (r Row) Get(pattern TagPattern) (value string, ok bool) {
	idx := pattern.Find(r.columns)
	if idx < 0 {
		return "", false
	}
	return r.Value(idx), true
}

// GetAll returns the values under every column matching pattern, in schema order.
func (r Row) GetAll(pattern TagPattern) []string {
	var out []string
	for i, col := range r.columns {
		if pattern.Match(col) {
			out = append(out, r.Value(i))
		}
	}
	return out
}

// Value returns the value at position i, or "" when the row is short.
func (r Row) Value(i int) string {
	if i < 0 || i >= len(r.values) {
		return ""
	}
	return r.values[i]
}

// Values returns a copy of the row values.
func (r Row) Values() []string {
	out := make([]string, len(r.values))
	copy(out, r.values)
	return out
}

// Columns returns the schema the row is aligned with.
func (r Row) Columns() []Column {
	return r.columns
}

// Len returns the number of values in the row.
func (r Row) Len() int {
	return len(r.values)
}

// Number returns the 0-based source position of the row, or -1 if synthetic.
func (r Row) Number() int {
	return r.number
}

// Copy returns a row that owns its values.
func (r Row) Copy() Row {
	return Row{columns: r.columns, values: r.Values(), number: r.number}
}
