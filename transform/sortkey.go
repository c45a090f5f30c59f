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
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"

	"github.com/aaronlmathis/gohxl/core"
)

const (
	numSuffix  = "_num"
	degSuffix  = "_deg"
	dateSuffix = "_date"

	dateLayout = "2006-01-02"

	// exponentBias keeps float64 exponents (-324..308) at three digits.
	exponentBias = 400
)

// KeyExtractor computes a sort key for a row from an ordered list of patterns.
// It holds no state besides the patterns, so the same extractor always yields
// the same key for the same row.
type KeyExtractor struct {
	Patterns []core.TagPattern
}

// Key returns one normalized component per pattern. With no patterns the key
// is the raw row values, left to right.
func (k KeyExtractor) Key(row core.Row) ([]string, error) {
	key, _, err := k.key(row)
	return key, err
}

// key also reports how many numeric values fell back to their raw text.
func (k KeyExtractor) key(row core.Row) ([]string, int, error) {
	if len(k.Patterns) == 0 {
		return row.Values(), 0, nil
	}

	key := make([]string, len(k.Patterns))
	fallbacks := 0
	for i, p := range k.Patterns {
		value, present := row.Get(p)
		normalized, fellBack, err := normalize(p, value, present)
		if err != nil {
			var dateErr *core.DateParseError
			if errors.As(err, &dateErr) {
				dateErr.Row = row.Number()
			}
			return nil, fallbacks, err
		}
		if fellBack {
			fallbacks++
		}
		key[i] = normalized
	}
	return key, fallbacks, nil
}

// NormalizeSortValue turns a cell value into its sort key component.
// Numeric tags (_num, _deg) sort by value and fall back to the raw text
// when the value does not parse. Date tags (_date) sort by calendar date and
// fail with *core.DateParseError when a non-empty value does not parse.
func NormalizeSortValue(pattern core.TagPattern, value string, present bool) (string, error) {
	v, _, err := normalize(pattern, value, present)
	return v, err
}

func normalize(pattern core.TagPattern, value string, present bool) (string, bool, error) {
	if !present || value == "" {
		return "", false, nil
	}

	fellBack := false
	switch {
	case pattern.HasSuffix(numSuffix), pattern.HasSuffix(degSuffix):
		if encoded, ok := encodeNumber(value); ok {
			value = encoded
		} else {
			fellBack = true
		}
	case pattern.HasSuffix(dateSuffix):
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return "", false, nil
		}
		t, err := dateparse.ParseAny(trimmed)
		if err != nil {
			return "", false, &core.DateParseError{Tag: pattern.String(), Value: value, Row: -1, Err: err}
		}
		value = t.Format(dateLayout)
	}
	return strings.ToUpper(value), fellBack, nil
}

// encodeNumber renders a number as text whose lexical order is its numeric
// order across the whole float64 range. The key is a sign class ('0'
// negative, '1' zero, '2' positive), a three-digit biased decimal exponent
// and seventeen significant digits. Negative keys carry the nine's
// complement of exponent and digits so larger magnitudes sort first.
func encodeNumber(value string) (string, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if f == 0 {
		return "1", true
	}

	// d.dddddddddddddddde±XX
	sci := strconv.FormatFloat(math.Abs(f), 'e', 16, 64)
	mantissa, exp, _ := strings.Cut(sci, "e")
	e, err := strconv.Atoi(exp)
	if err != nil {
		return "", false
	}
	body := []byte(fmt.Sprintf("%03d%s", e+exponentBias, strings.Replace(mantissa, ".", "", 1)))
	if f > 0 {
		return "2" + string(body), true
	}
	for i, c := range body {
		body[i] = '9' - (c - '0')
	}
	return "0" + string(body), true
}

// compareKeys orders keys component-wise; on a common prefix the shorter key
// is smaller.
func compareKeys(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}
