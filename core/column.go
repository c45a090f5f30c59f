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
	"fmt"
	"regexp"
	"strings"
)

// Package core defines the data model for the GoHXL library.
//
// GoHXL processes tabular datasets whose columns carry HXL hashtags (#sector, #adm1,
// #affected_num) and attributes (+code, +f) on top of their ordinary header text.
//
// This file contains the Column type and hashtag spec parsing.

var (
	tagSpecRegexp   = regexp.MustCompile(`^\s*#([A-Za-z][_0-9A-Za-z]*)((?:\s*\+[A-Za-z][_0-9A-Za-z]*)*)\s*$`)
	attributeRegexp = regexp.MustCompile(`\+([A-Za-z][_0-9A-Za-z]*)`)
)

// Column is one position in a dataset schema: the raw header text, an optional
// hashtag and the attributes refining it. Columns are immutable once built.
type Column struct {
	header     string
	tag        string
	attributes []string
}

// NewColumn creates a column. The tag is lowercased and given a leading '#';
// attributes are lowercased and de-duplicated, keeping their first position.
// An empty tag yields an untagged column.
func NewColumn(header, tag string, attributes ...string) Column {
	col := Column{header: header, tag: normalizeTag(tag)}
	if col.tag == "" {
		return col
	}
	seen := make(map[string]bool, len(attributes))
	for _, attr := range attributes {
		attr = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(attr, "+")))
		if attr == "" || seen[attr] {
			continue
		}
		seen[attr] = true
		col.attributes = append(col.attributes, attr)
	}
	return col
}

// ParseColumnSpec parses a hashtag cell such as "#sector +code +f".
// It returns ok=false for an empty cell, which denotes an untagged column.
func ParseColumnSpec(header, spec string) (Column, bool, error) {
	if strings.TrimSpace(spec) == "" {
		return NewColumn(header, ""), false, nil
	}
	m := tagSpecRegexp.FindStringSubmatch(spec)
	if m == nil {
		return Column{}, false, fmt.Errorf("malformed hashtag spec %q", spec)
	}
	var attrs []string
	for _, am := range attributeRegexp.FindAllStringSubmatch(m[2], -1) {
		attrs = append(attrs, am[1])
	}
	return NewColumn(header, m[1], attrs...), true, nil
}

// IsTagSpec reports whether text parses as a hashtag spec.
func IsTagSpec(text string) bool {
	return tagSpecRegexp.MatchString(text)
}

// Header returns the raw header text.
func (c Column) Header() string { return c.header }

// Tag returns the hashtag including its leading '#', or "" when untagged.
func (c Column) Tag() string { return c.tag }

// Attributes returns a copy of the column attributes in declaration order.
func (c Column) Attributes() []string {
	if len(c.attributes) == 0 {
		return nil
	}
	out := make([]string, len(c.attributes))
	copy(out, c.attributes)
	return out
}

// HasAttribute reports whether the column carries attr (with or without '+').
func (c Column) HasAttribute(attr string) bool {
	attr = strings.ToLower(strings.TrimPrefix(attr, "+"))
	for _, a := range c.attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// IsTagged reports whether the column has a hashtag.
func (c Column) IsTagged() bool { return c.tag != "" }

// DisplayTag renders the hashtag and attributes as "#tag+a+b".
func (c Column) DisplayTag() string {
	if c.tag == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(c.tag)
	for _, a := range c.attributes {
		b.WriteByte('+')
		b.WriteString(a)
	}
	return b.String()
}

// String returns the display tag, or the header for untagged columns.
func (c Column) String() string {
	if c.tag == "" {
		return c.header
	}
	return c.DisplayTag()
}

// Equal reports whether two columns have the same header, tag and attributes.
func (c Column) Equal(o Column) bool {
	if c.header != o.header || c.tag != o.tag || len(c.attributes) != len(o.attributes) {
		return false
	}
	for i := range c.attributes {
		if c.attributes[i] != o.attributes[i] {
			return false
		}
	}
	return true
}

func normalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	tag = strings.TrimPrefix(tag, "#")
	if tag == "" {
		return ""
	}
	return "#" + tag
}
