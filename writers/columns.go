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
	"strconv"

	"github.com/aaronlmathis/gohxl/core"
)

func includeHeaderRow(mode HeaderMode, columns []core.Column) bool {
	switch mode {
	case HeaderAlways:
		return true
	case HeaderNever:
		return false
	}
	for _, col := range columns {
		if col.Header() != "" {
			return true
		}
	}
	return false
}

func headerTexts(columns []core.Column) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = col.Header()
	}
	return out
}

func hashtagRow(columns []core.Column) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = col.DisplayTag()
	}
	return out
}

// rowCells aligns a row to the schema width. Short rows are padded with
// empty cells.
func rowCells(row core.Row, width int) []string {
	out := make([]string, width)
	for i := range out {
		out[i] = row.Value(i)
	}
	return out
}

// columnName is the name a column takes in formats without a hashtag row:
// its display tag, or its header text when untagged.
func columnName(col core.Column, index int) string {
	if name := col.DisplayTag(); name != "" {
		return name
	}
	if col.Header() != "" {
		return col.Header()
	}
	return "column_" + strconv.Itoa(index+1)
}
