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
	"math"
	"strconv"
	"strings"

	"github.com/aaronlmathis/gohxl/core"
)

// Aggregator accumulates one summary value for a group of rows.
type Aggregator interface {
	// Add processes a row for aggregation.
	Add(ctx context.Context, row core.Row) error
	// Result returns the aggregated value as cell text.
	Result() string
	// Clone returns an empty aggregator with the same configuration.
	Clone() Aggregator
}

// Kind selects a numeric aggregate computed alongside the row count.
type Kind int

const (
	Sum Kind = iota
	Average
	Min
	Max
)

func (k Kind) String() string {
	switch k {
	case Sum:
		return "sum"
	case Average:
		return "average"
	case Min:
		return "min"
	case Max:
		return "max"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column returns the output column for the aggregate, e.g. #x_sum_num.
func (k Kind) Column() core.Column {
	return core.NewColumn("", "#x_"+k.String()+"_num")
}

// ParseKind maps names such as "sum" or "avg" to a Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sum":
		return Sum, nil
	case "average", "avg", "mean":
		return Average, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	default:
		return 0, fmt.Errorf("unknown aggregate %q", name)
	}
}

// NewAggregator returns an empty aggregator of the given kind over the first
// column matching pattern.
func NewAggregator(kind Kind, pattern core.TagPattern) (Aggregator, error) {
	switch kind {
	case Sum:
		return &SumAggregator{Pattern: pattern}, nil
	case Average:
		return &AvgAggregator{Pattern: pattern}, nil
	case Min:
		return &MinAggregator{Pattern: pattern}, nil
	case Max:
		return &MaxAggregator{Pattern: pattern}, nil
	default:
		return nil, fmt.Errorf("unknown aggregate %s", kind)
	}
}

// SumAggregator sums numeric values; other values are skipped
type SumAggregator struct {
	Pattern core.TagPattern
	sum     float64
}

func (s *SumAggregator) Add(ctx context.Context, row core.Row) error {
	if num, ok := numericValue(row, s.Pattern); ok {
		s.sum += num
	}
	return nil
}

func (s *SumAggregator) Result() string {
	return formatNumber(s.sum)
}

func (s *SumAggregator) Clone() Aggregator {
	return &SumAggregator{Pattern: s.Pattern}
}

// AvgAggregator calculates average of numeric values
type AvgAggregator struct {
	Pattern core.TagPattern
	sum     float64
	count   int
}

func (a *AvgAggregator) Add(ctx context.Context, row core.Row) error {
	if num, ok := numericValue(row, a.Pattern); ok {
		a.sum += num
		a.count++
	}
	return nil
}

func (a *AvgAggregator) Result() string {
	if a.count == 0 {
		return ""
	}
	return formatNumber(a.sum / float64(a.count))
}

func (a *AvgAggregator) Clone() Aggregator {
	return &AvgAggregator{Pattern: a.Pattern}
}

// MinAggregator finds minimum value
type MinAggregator struct {
	Pattern core.TagPattern
	min     float64
	set     bool
}

func (m *MinAggregator) Add(ctx context.Context, row core.Row) error {
	if num, ok := numericValue(row, m.Pattern); ok && (!m.set || num < m.min) {
		m.min = num
		m.set = true
	}
	return nil
}

func (m *MinAggregator) Result() string {
	if !m.set {
		return ""
	}
	return formatNumber(m.min)
}

func (m *MinAggregator) Clone() Aggregator {
	return &MinAggregator{Pattern: m.Pattern}
}

// MaxAggregator finds maximum value
type MaxAggregator struct {
	Pattern core.TagPattern
	max     float64
	set     bool
}

func (m *MaxAggregator) Add(ctx context.Context, row core.Row) error {
	if num, ok := numericValue(row, m.Pattern); ok && (!m.set || num > m.max) {
		m.max = num
		m.set = true
	}
	return nil
}

func (m *MaxAggregator) Result() string {
	if !m.set {
		return ""
	}
	return formatNumber(m.max)
}

func (m *MaxAggregator) Clone() Aggregator {
	return &MaxAggregator{Pattern: m.Pattern}
}

// Helper functions
func numericValue(row core.Row, pattern core.TagPattern) (float64, bool) {
	value, ok := row.Get(pattern)
	if !ok {
		return 0, false
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, false
	}
	return num, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
