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
	"regexp"
	"slices"
	"strings"
)

// This file contains the tag pattern language used to select columns:
//
//	sector            any #sector column
//	#sector+code      #sector columns carrying +code
//	#org-funder       #org columns without +funder
//	#adm1+code!       #adm1 columns whose attributes are exactly {code}

var (
	patternRegexp      = regexp.MustCompile(`^\s*#?([A-Za-z][_0-9A-Za-z]*)((?:\s*[+-][A-Za-z][_0-9A-Za-z]*)*)\s*(!)?\s*$`)
	patternAttrRegexp  = regexp.MustCompile(`([+-])([A-Za-z][_0-9A-Za-z]*)`)
	patternTokenRegexp = regexp.MustCompile(`^[_0-9A-Za-z]+$`)
)

// TagPattern selects columns by hashtag and attribute constraints.
// The zero value matches nothing.
type TagPattern struct {
	Tag      string   // Hashtag with leading '#', lowercase
	Include  []string // Attributes the column must carry, sorted
	Exclude  []string // Attributes the column must not carry, sorted
	Absolute bool     // Column attributes must equal Include exactly
}

// ParsePattern parses the compact form of a tag pattern.
// The leading '#' is optional.
func ParsePattern(text string) (TagPattern, error) {
	return parsePattern(text, -1)
}

// MustParsePattern is like ParsePattern but panics on malformed input.
func MustParsePattern(text string) TagPattern {
	p, err := ParsePattern(text)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePatterns parses a list of raw pattern texts.
func ParsePatterns(texts ...string) ([]TagPattern, error) {
	specs := make([]PatternSpec, len(texts))
	for i, t := range texts {
		specs[i] = RawPattern(t)
	}
	return PatternList(specs...)
}

func parsePattern(text string, index int) (TagPattern, error) {
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "", trimmed == "#":
		return TagPattern{}, &InvalidPatternError{Pattern: text, Index: index, Reason: "missing hashtag"}
	case trimmed[0] == '+' || trimmed[0] == '-':
		return TagPattern{}, &InvalidPatternError{Pattern: text, Index: index, Reason: "missing hashtag before attribute"}
	}

	m := patternRegexp.FindStringSubmatch(text)
	if m == nil {
		return TagPattern{}, &InvalidPatternError{Pattern: text, Index: index, Reason: describeMalformed(trimmed)}
	}

	p := TagPattern{Tag: "#" + strings.ToLower(m[1]), Absolute: m[3] == "!"}
	for _, am := range patternAttrRegexp.FindAllStringSubmatch(m[2], -1) {
		attr := strings.ToLower(am[2])
		if am[1] == "+" {
			p.Include = appendUnique(p.Include, attr)
		} else {
			p.Exclude = appendUnique(p.Exclude, attr)
		}
	}
	slices.Sort(p.Include)
	slices.Sort(p.Exclude)
	return p, nil
}

func describeMalformed(text string) string {
	for _, sep := range []string{"+", "-"} {
		for i, tok := range strings.Split(text, sep) {
			tok = strings.TrimSuffix(strings.TrimSpace(tok), "!")
			if i > 0 && tok == "" {
				return "empty attribute after '" + sep + "'"
			}
		}
	}
	name := strings.TrimPrefix(text, "#")
	if idx := strings.IndexAny(name, "+-!"); idx >= 0 {
		name = name[:idx]
	}
	name = strings.TrimSpace(name)
	if name == "" || !patternTokenRegexp.MatchString(name) {
		return "malformed hashtag"
	}
	return "malformed attribute"
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

// Match reports whether column satisfies the pattern.
func (p TagPattern) Match(column Column) bool {
	if p.Tag == "" || column.Tag() != p.Tag {
		return false
	}
	for _, attr := range p.Include {
		if !column.HasAttribute(attr) {
			return false
		}
	}
	for _, attr := range p.Exclude {
		if column.HasAttribute(attr) {
			return false
		}
	}
	if p.Absolute && len(column.attributes) != len(p.Include) {
		return false
	}
	return true
}

// Find returns the index of the first column matching the pattern, or -1.
func (p TagPattern) Find(columns []Column) int {
	for i, col := range columns {
		if p.Match(col) {
			return i
		}
	}
	return -1
}

// GetValue returns the value under the first matching column of row.
// Later matching columns never contribute. ok is false when no column matches.
func (p TagPattern) GetValue(row Row) (value string, ok bool) {
	return row.Get(p)
}

// Column returns a synthetic column described by the pattern's hashtag and
// required attributes, used for output schemas built from requested patterns.
func (p TagPattern) Column() Column {
	return NewColumn("", p.Tag, p.Include...)
}

// HasSuffix reports whether the hashtag ends with suffix, e.g. "_num".
func (p TagPattern) HasSuffix(suffix string) bool {
	return strings.HasSuffix(p.Tag, suffix)
}

// String renders the canonical compact form, e.g. "#adm1+code-dest!".
func (p TagPattern) String() string {
	var b strings.Builder
	b.WriteString(p.Tag)
	for _, a := range p.Include {
		b.WriteByte('+')
		b.WriteString(a)
	}
	for _, a := range p.Exclude {
		b.WriteByte('-')
		b.WriteString(a)
	}
	if p.Absolute {
		b.WriteByte('!')
	}
	return b.String()
}

// Equal reports structural equality.
func (p TagPattern) Equal(o TagPattern) bool {
	return p.Tag == o.Tag &&
		p.Absolute == o.Absolute &&
		slices.Equal(p.Include, o.Include) &&
		slices.Equal(p.Exclude, o.Exclude)
}

// PatternSpec is either raw pattern text or an already parsed pattern.
// Build one with RawPattern or ParsedPattern and normalize with PatternList.
type PatternSpec struct {
	raw    string
	parsed TagPattern
	isRaw  bool
}

// RawPattern wraps pattern text to be parsed by PatternList.
func RawPattern(text string) PatternSpec {
	return PatternSpec{raw: text, isRaw: true}
}

// ParsedPattern wraps a pattern that has already been parsed.
func ParsedPattern(p TagPattern) PatternSpec {
	return PatternSpec{parsed: p}
}

// Pattern resolves the spec, parsing raw text.
func (s PatternSpec) Pattern() (TagPattern, error) {
	if s.isRaw {
		return ParsePattern(s.raw)
	}
	return s.parsed, nil
}

// PatternList normalizes a mixed list of specs into parsed patterns.
// It fails on the first malformed element; the error carries its index.
func PatternList(specs ...PatternSpec) ([]TagPattern, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]TagPattern, 0, len(specs))
	for i, spec := range specs {
		if !spec.isRaw {
			if spec.parsed.Tag == "" {
				return nil, &InvalidPatternError{Pattern: "", Index: i, Reason: "missing hashtag"}
			}
			out = append(out, spec.parsed)
			continue
		}
		p, err := parsePattern(spec.raw, i)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
