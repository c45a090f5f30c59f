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

package aggregate

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aaronlmathis/gohxl/core"
)

// Group is one distinct combination of grouping values and its summaries.
type Group struct {
	Values     []string // Values for the patterns present in the group's rows
	Count      int64
	Aggregates []string // One value per configured aggregator
}

type groupState struct {
	values      []string
	count       int64
	aggregators []Aggregator
}

// GroupTable groups rows by the values of a list of patterns.
type GroupTable struct {
	patterns    []core.TagPattern
	aggregators []Aggregator
	groups      map[string]*groupState
}

// NewGroupTable creates a table keyed by patterns. Each group gets its own
// clone of every aggregator.
func NewGroupTable(patterns []core.TagPattern, aggregators ...Aggregator) *GroupTable {
	return &GroupTable{
		patterns:    patterns,
		aggregators: aggregators,
		groups:      make(map[string]*groupState),
	}
}

// Add counts row in its group. Patterns with no matching column are skipped
// for the row; a row with no values at all is not counted and Add reports false.
func (g *GroupTable) Add(ctx context.Context, row core.Row) (bool, error) {
	values := g.buildGroupValues(row)
	if len(values) == 0 {
		return false, nil
	}

	key := buildGroupKey(values)
	group, exists := g.groups[key]
	if !exists {
		group = &groupState{values: values}
		for _, agg := range g.aggregators {
			group.aggregators = append(group.aggregators, agg.Clone())
		}
		g.groups[key] = group
	}

	group.count++
	for i, agg := range group.aggregators {
		if err := agg.Add(ctx, row); err != nil {
			return true, fmt.Errorf("aggregation error for aggregator %d: %w", i, err)
		}
	}
	return true, nil
}

// Len returns the number of distinct groups.
func (g *GroupTable) Len() int {
	return len(g.groups)
}

// Groups returns the groups in ascending order of their values, compared
// component-wise, a shorter tuple first on a common prefix.
func (g *GroupTable) Groups() []Group {
	out := make([]Group, 0, len(g.groups))
	for _, state := range g.groups {
		group := Group{Values: slices.Clone(state.values), Count: state.count}
		for _, agg := range state.aggregators {
			group.Aggregates = append(group.Aggregates, agg.Result())
		}
		out = append(out, group)
	}
	slices.SortFunc(out, func(a, b Group) int {
		return slices.Compare(a.Values, b.Values)
	})
	return out
}

func (g *GroupTable) buildGroupValues(row core.Row) []string {
	var values []string
	for _, p := range g.patterns {
		if value, ok := row.Get(p); ok {
			values = append(values, value)
		}
	}
	return values
}

// buildGroupKey encodes a tuple so that distinct tuples never collide.
func buildGroupKey(values []string) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
	}
	return b.String()
}
