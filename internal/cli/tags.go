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

// Package cli holds the plumbing shared by the hxlcount and hxlsort commands.
package cli

import (
	"errors"
	"strings"

	"github.com/aaronlmathis/gohxl/core"
)

// DefaultCountTags are counted when hxlcount is given no tags.
const DefaultCountTags = "loc,org,sector,adm1,adm2,adm3"

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// UsageError reports bad command-line input. It is detected before any row
// is read.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// ParseTags parses a comma-separated list of tag patterns. The leading '#'
// of each pattern is optional and blank entries are skipped, so an empty
// list yields no patterns.
func ParseTags(list string) ([]core.PatternSpec, error) {
	var texts []string
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			texts = append(texts, part)
		}
	}
	patterns, err := core.ParsePatterns(texts...)
	if err != nil {
		return nil, &UsageError{Err: err}
	}
	specs := make([]core.PatternSpec, len(patterns))
	for i, p := range patterns {
		specs[i] = core.ParsedPattern(p)
	}
	return specs, nil
}

// ExitCode maps the result of a command to its process exit status.
// Malformed patterns and usage errors exit 2; any other failure, including a
// date that cannot be parsed, exits 1.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var usageErr *UsageError
	var patternErr *core.InvalidPatternError
	if errors.As(err, &usageErr) || errors.As(err, &patternErr) {
		return ExitUsage
	}
	return ExitFailure
}
