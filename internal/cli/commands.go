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

package cli

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/aaronlmathis/gohxl"
	"github.com/aaronlmathis/gohxl/aggregate"
	"github.com/aaronlmathis/gohxl/core"
	"github.com/aaronlmathis/gohxl/internal/config"
	"github.com/aaronlmathis/gohxl/transform"
)

// CountCommand counts the distinct value combinations of a set of tags.
func CountCommand() Command {
	var aggregates []string
	return Command{
		Name:  "hxlcount",
		Short: "Generate aggregate counts for a HXL dataset.",
		Flags: func(fs *pflag.FlagSet) {
			fs.StringP("tags", "t", "", "comma-separated list of column tags to count (default "+DefaultCountTags+")")
			fs.StringArrayVarP(&aggregates, "aggregate", "a", nil, "extra numeric aggregate as kind:tag, e.g. sum:affected_num")
		},
		Stages: func(cfg *config.Config, log zerolog.Logger) ([]gohxl.StageFunc, error) {
			tags := cfg.Tags
			if strings.TrimSpace(tags) == "" {
				tags = DefaultCountTags
			}
			patterns, err := ParseTags(tags)
			if err != nil {
				return nil, err
			}

			options := []aggregate.CountOption{
				aggregate.WithCountPatterns(patterns...),
				aggregate.WithCountLogger(log),
			}
			for _, spec := range aggregates {
				kind, pattern, err := parseAggregate(spec)
				if err != nil {
					return nil, &UsageError{Err: err}
				}
				options = append(options, aggregate.WithAggregate(kind, pattern))
			}

			return []gohxl.StageFunc{func(upstream gohxl.Dataset) (gohxl.Dataset, error) {
				return aggregate.NewCount(upstream, options...)
			}}, nil
		},
	}
}

// parseAggregate splits kind:tag and checks both halves.
func parseAggregate(spec string) (aggregate.Kind, string, error) {
	name, tag, ok := strings.Cut(spec, ":")
	if !ok {
		return 0, "", fmt.Errorf("aggregate %q: expected kind:tag", spec)
	}
	kind, err := aggregate.ParseKind(name)
	if err != nil {
		return 0, "", err
	}
	if _, err := core.ParsePattern(tag); err != nil {
		return 0, "", err
	}
	return kind, tag, nil
}

// SortCommand sorts a dataset by the values under a set of tags.
func SortCommand() Command {
	return Command{
		Name:  "hxlsort",
		Short: "Sort a HXL dataset by the values of one or more tags.",
		Flags: func(fs *pflag.FlagSet) {
			fs.StringP("tags", "t", "", "comma-separated list of column tags to sort by (default: whole rows)")
			fs.BoolP("reverse", "r", false, "sort in descending order")
		},
		Stages: func(cfg *config.Config, log zerolog.Logger) ([]gohxl.StageFunc, error) {
			patterns, err := ParseTags(cfg.Tags)
			if err != nil {
				return nil, err
			}
			reverse := cfg.Reverse
			return []gohxl.StageFunc{func(upstream gohxl.Dataset) (gohxl.Dataset, error) {
				return transform.NewSort(upstream,
					transform.WithSortPatterns(patterns...),
					transform.WithReverse(reverse),
					transform.WithSortLogger(log))
			}}, nil
		},
	}
}
