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

import "context"

// This file contains the primary function adapters.

// RowFilter determines whether a row should be passed downstream.
type RowFilter interface {
	// ShouldInclude returns true if the row should be included in the output.
	ShouldInclude(ctx context.Context, row Row) (bool, error)
}

// RowFilterFunc is a function adapter for the RowFilter interface.
// Allows ordinary functions to be used as RowFilters.
type RowFilterFunc func(ctx context.Context, row Row) (bool, error)

// ShouldInclude implements the RowFilter interface for RowFilterFunc.
func (f RowFilterFunc) ShouldInclude(ctx context.Context, row Row) (bool, error) {
	return f(ctx, row)
}
