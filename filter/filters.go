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

// Package filter provides reusable, composable row filtering functions for GoHXL pipelines.
//
// Each filter reads the first column matching a tag pattern. Text comparisons
// ignore case and surrounding whitespace. A row with no matching column never
// passes a value filter.
package filter

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aaronlmathis/gohxl/core"
)

// NotEmpty creates a filter that excludes rows where the pattern's value is absent or blank
func NotEmpty(pattern core.TagPattern) core.RowFilter {
	return valueFilter(pattern, func(value string) bool {
		return value != ""
	})
}

// Equals creates a filter that includes rows where the value equals the expected value
func Equals(pattern core.TagPattern, expected string) core.RowFilter {
	expected = normalize(expected)
	return valueFilter(pattern, func(value string) bool {
		return value == expected
	})
}

// Contains creates a filter that includes rows where the value contains the substring
func Contains(pattern core.TagPattern, substring string) core.RowFilter {
	substring = normalize(substring)
	return valueFilter(pattern, func(value string) bool {
		return strings.Contains(value, substring)
	})
}

// StartsWith creates a filter that includes rows where the value starts with the prefix
func StartsWith(pattern core.TagPattern, prefix string) core.RowFilter {
	prefix = normalize(prefix)
	return valueFilter(pattern, func(value string) bool {
		return strings.HasPrefix(value, prefix)
	})
}

// EndsWith creates a filter that includes rows where the value ends with the suffix
func EndsWith(pattern core.TagPattern, suffix string) core.RowFilter {
	suffix = normalize(suffix)
	return valueFilter(pattern, func(value string) bool {
		return strings.HasSuffix(value, suffix)
	})
}

// MatchesRegex creates a filter that includes rows where the value matches the expression.
// The expression is matched case-insensitively.
func MatchesRegex(pattern core.TagPattern, expr string) (core.RowFilter, error) {
	regex, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, err
	}
	return valueFilter(pattern, regex.MatchString), nil
}

// GreaterThan creates a filter that includes rows where the numeric value is greater than the threshold
func GreaterThan(pattern core.TagPattern, threshold float64) core.RowFilter {
	return numberFilter(pattern, func(num float64) bool {
		return num > threshold
	})
}

// LessThan creates a filter that includes rows where the numeric value is less than the threshold
func LessThan(pattern core.TagPattern, threshold float64) core.RowFilter {
	return numberFilter(pattern, func(num float64) bool {
		return num < threshold
	})
}

// Between creates a filter that includes rows where the numeric value is between min and max (inclusive)
func Between(pattern core.TagPattern, min, max float64) core.RowFilter {
	return numberFilter(pattern, func(num float64) bool {
		return num >= min && num <= max
	})
}

// In creates a filter that includes rows where the value is one of the provided values
func In(pattern core.TagPattern, values ...string) core.RowFilter {
	valueSet := make(map[string]bool, len(values))
	for _, v := range values {
		valueSet[normalize(v)] = true
	}
	return valueFilter(pattern, func(value string) bool {
		return valueSet[value]
	})
}

// And creates a filter that requires all provided filters to pass
func And(filters ...core.RowFilter) core.RowFilter {
	return core.RowFilterFunc(func(ctx context.Context, row core.Row) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, row)
			if err != nil {
				return false, err
			}
			if !include {
				return false, nil
			}
		}
		return true, nil
	})
}

// Or creates a filter that requires at least one of the provided filters to pass
func Or(filters ...core.RowFilter) core.RowFilter {
	return core.RowFilterFunc(func(ctx context.Context, row core.Row) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, row)
			if err != nil {
				return false, err
			}
			if include {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not creates a filter that negates the provided filter
func Not(filter core.RowFilter) core.RowFilter {
	return core.RowFilterFunc(func(ctx context.Context, row core.Row) (bool, error) {
		include, err := filter.ShouldInclude(ctx, row)
		if err != nil {
			return false, err
		}
		return !include, nil
	})
}

// Custom creates a filter using a user-provided predicate function
func Custom(predicate func(core.Row) bool) core.RowFilter {
	return core.RowFilterFunc(func(ctx context.Context, row core.Row) (bool, error) {
		return predicate(row), nil
	})
}

func valueFilter(pattern core.TagPattern, match func(string) bool) core.RowFilter {
	return core.RowFilterFunc(func(ctx context.Context, row core.Row) (bool, error) {
		value, ok := row.Get(pattern)
		if !ok {
			return false, nil
		}
		return match(normalize(value)), nil
	})
}

func numberFilter(pattern core.TagPattern, match func(float64) bool) core.RowFilter {
	return core.RowFilterFunc(func(ctx context.Context, row core.Row) (bool, error) {
		value, ok := row.Get(pattern)
		if !ok {
			return false, nil
		}
		num, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(num) {
			return false, nil
		}
		return match(num), nil
	})
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
