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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewColumn tests normalization of tags and attributes
func TestNewColumn(t *testing.T) {
	col := NewColumn("Sector code", "SECTOR", "+Code", "code", "f")
	assert.Equal(t, "Sector code", col.Header())
	assert.Equal(t, "#sector", col.Tag())
	assert.Equal(t, []string{"code", "f"}, col.Attributes())
	assert.Equal(t, "#sector+code+f", col.DisplayTag())
	assert.True(t, col.HasAttribute("+code"))
	assert.False(t, col.HasAttribute("name"))

	untagged := NewColumn("Notes", "", "code")
	assert.False(t, untagged.IsTagged())
	assert.Empty(t, untagged.Attributes())
	assert.Equal(t, "Notes", untagged.String())
}

// TestColumn_Immutable tests that callers cannot mutate a column through Attributes
func TestColumn_Immutable(t *testing.T) {
	col := NewColumn("", "#sector", "code")
	attrs := col.Attributes()
	attrs[0] = "changed"
	assert.Equal(t, "#sector+code", col.DisplayTag())
}

// TestParseColumnSpec tests parsing hashtag cells
func TestParseColumnSpec(t *testing.T) {
	tests := []struct {
		spec     string
		display  string
		tagged   bool
		hasError bool
	}{
		{"#sector", "#sector", true, false},
		{"#sector +code +f", "#sector+code+f", true, false},
		{" #Adm1+Name ", "#adm1+name", true, false},
		{"", "", false, false},
		{"   ", "", false, false},
		{"sector", "", false, true},
		{"#sector-code", "", false, true},
		{"Sector name", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			col, ok, err := ParseColumnSpec("Header", tt.spec)
			if tt.hasError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.tagged, ok)
			assert.Equal(t, tt.display, col.DisplayTag())
			assert.Equal(t, "Header", col.Header())
		})
	}

	assert.True(t, IsTagSpec("#org +impl"))
	assert.False(t, IsTagSpec("Organisation"))
}

// TestColumn_Equal tests column equality
func TestColumn_Equal(t *testing.T) {
	assert.True(t, NewColumn("A", "#org", "impl").Equal(NewColumn("A", "org", "IMPL")))
	assert.False(t, NewColumn("A", "#org").Equal(NewColumn("B", "#org")))
	assert.False(t, NewColumn("A", "#org", "impl").Equal(NewColumn("A", "#org")))
}
