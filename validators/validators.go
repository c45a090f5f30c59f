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

// Package validators checks the quality of HXL data as it streams through a
// pipeline.
package validators

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aaronlmathis/gohxl/core"
)

// FieldValidator defines validation rules for the values under one tag pattern.
type FieldValidator struct {
	DataType      FieldDataType              // Expected data type
	Pattern       *regexp.Regexp             // Regex the value must match
	MinValue      *float64                   // Minimum value (for numeric fields)
	MaxValue      *float64                   // Maximum value (for numeric fields)
	AllowedValues []string                   // Whitelist of allowed values, compared case-insensitively
	Required      bool                       // An empty value is a violation
	CustomFunc    func(string) (bool, error) // Custom validation function
}

// FieldDataType represents expected data types for validation
type FieldDataType string

const (
	FieldTypeString FieldDataType = "string"
	FieldTypeInt    FieldDataType = "int"
	FieldTypeNumber FieldDataType = "number"
	FieldTypeBool   FieldDataType = "bool"
	FieldTypeDate   FieldDataType = "date"
	FieldTypeEmail  FieldDataType = "email"
	FieldTypeURL    FieldDataType = "url"
	FieldTypeUUID   FieldDataType = "uuid"
	FieldTypeAny    FieldDataType = "any"
)

// Mode selects what happens to a row that breaks a field rule.
type Mode int

const (
	// FailOnViolation stops the pass with a *ValidationError.
	FailOnViolation Mode = iota
	// DropInvalid removes the row from the output.
	DropInvalid
	// ReportOnly logs the violation and forwards the row.
	ReportOnly
)

// Violation describes one broken rule.
type Violation struct {
	Row    int    // Source row number, -1 for whole-dataset checks
	Tag    string // Pattern the rule applies to
	Value  string
	Reason string
}

func (v Violation) String() string {
	if v.Row < 0 {
		return v.Reason
	}
	return fmt.Sprintf("row %d %s value %q %s", v.Row, v.Tag, v.Value, v.Reason)
}

// ValidationError reports a violation that stopped the pass.
type ValidationError struct {
	Violation Violation
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Violation.String()
}

// QualityStats holds statistics about a validation pass.
type QualityStats struct {
	RowsChecked int64
	RowsDropped int64
	Violations  int64
	EmptyCells  map[string]int64 // Empty values per field rule pattern
}

type fieldRule struct {
	spec      core.PatternSpec
	validator FieldValidator
}

// DataQualityOptions configures the validation stage.
type DataQualityOptions struct {
	MinRows      int     // Minimum number of rows required
	MaxRows      int     // Maximum number of rows allowed (0 = unlimited)
	MaxEmptyRate float64 // Maximum share of empty values per field rule (0 = unchecked)
	Required     []core.PatternSpec
	Forbidden    []core.PatternSpec
	Fields       []fieldRule
	Mode         Mode
	OnViolation  func(Violation)
	Logger       zerolog.Logger
}

// DataQualityOption is a functional option for configuring the validation stage.
type DataQualityOption func(*DataQualityOptions)

// WithMinRows sets the minimum row count.
func WithMinRows(min int) DataQualityOption {
	return func(o *DataQualityOptions) { o.MinRows = min }
}

// WithMaxRows sets the maximum row count.
func WithMaxRows(max int) DataQualityOption {
	return func(o *DataQualityOptions) { o.MaxRows = max }
}

// WithMaxEmptyRate sets the maximum share (0.0-1.0) of empty values under
// each field rule's pattern.
func WithMaxEmptyRate(rate float64) DataQualityOption {
	return func(o *DataQualityOptions) { o.MaxEmptyRate = rate }
}

// WithRequiredTags lists patterns that must match a column.
func WithRequiredTags(texts ...string) DataQualityOption {
	return func(o *DataQualityOptions) {
		for _, t := range texts {
			o.Required = append(o.Required, core.RawPattern(t))
		}
	}
}

// WithForbiddenTags lists patterns that must not match any column.
func WithForbiddenTags(texts ...string) DataQualityOption {
	return func(o *DataQualityOptions) {
		for _, t := range texts {
			o.Forbidden = append(o.Forbidden, core.RawPattern(t))
		}
	}
}

// WithFieldValidator adds rules for the first column matching pattern.
func WithFieldValidator(pattern string, fv FieldValidator) DataQualityOption {
	return func(o *DataQualityOptions) {
		o.Fields = append(o.Fields, fieldRule{spec: core.RawPattern(pattern), validator: fv})
	}
}

// WithMode sets how rows that break a field rule are handled.
func WithMode(mode Mode) DataQualityOption {
	return func(o *DataQualityOptions) { o.Mode = mode }
}

// WithViolationHandler is called for every violation, whatever the mode.
func WithViolationHandler(fn func(Violation)) DataQualityOption {
	return func(o *DataQualityOptions) { o.OnViolation = fn }
}

func WithQualityLogger(logger zerolog.Logger) DataQualityOption {
	return func(o *DataQualityOptions) { o.Logger = logger }
}

type boundRule struct {
	pattern   core.TagPattern
	index     int
	validator FieldValidator
}

// DataQualityStage is a Dataset that forwards upstream rows while checking
// them. Column checks run at construction; row-count and empty-rate checks
// run when the upstream is exhausted.
type DataQualityStage struct {
	source core.Dataset
	opts   DataQualityOptions
	rules  []boundRule
	once   core.Once
	stats  QualityStats
}

// NewDataQuality wraps source with validation. Malformed patterns, missing
// required tags and present forbidden tags are reported here.
func NewDataQuality(source core.Dataset, options ...DataQualityOption) (*DataQualityStage, error) {
	opts := DataQualityOptions{Logger: zerolog.Nop()}
	for _, option := range options {
		option(&opts)
	}

	columns := source.Columns()
	required, err := core.PatternList(opts.Required...)
	if err != nil {
		return nil, err
	}
	for _, p := range required {
		if p.Find(columns) < 0 {
			return nil, &core.DatasetError{Stage: "validate", Op: "required_tags", Err: fmt.Errorf("no column matches %s", p)}
		}
	}
	forbidden, err := core.PatternList(opts.Forbidden...)
	if err != nil {
		return nil, err
	}
	for _, p := range forbidden {
		if i := p.Find(columns); i >= 0 {
			return nil, &core.DatasetError{Stage: "validate", Op: "forbidden_tags", Err: fmt.Errorf("column %d matches forbidden %s", i, p)}
		}
	}

	s := &DataQualityStage{
		source: source,
		opts:   opts,
		stats:  QualityStats{EmptyCells: make(map[string]int64)},
	}
	for _, rule := range opts.Fields {
		p, err := rule.spec.Pattern()
		if err != nil {
			return nil, err
		}
		s.rules = append(s.rules, boundRule{pattern: p, index: p.Find(columns), validator: rule.validator})
	}
	return s, nil
}

func (s *DataQualityStage) Columns() []core.Column {
	return s.source.Columns()
}

func (s *DataQualityStage) Rows(ctx context.Context) (core.RowReader, error) {
	if err := s.once.Acquire("validate"); err != nil {
		return nil, err
	}
	upstream, err := s.source.Rows(ctx)
	if err != nil {
		return nil, err
	}

	return core.RowReaderFunc{
		ReadFunc: func(ctx context.Context) (core.Row, error) {
			for {
				row, err := upstream.Read(ctx)
				if errors.Is(err, io.EOF) {
					if ferr := s.finish(); ferr != nil {
						return core.Row{}, ferr
					}
					return core.Row{}, io.EOF
				}
				if err != nil {
					return core.Row{}, err
				}

				s.stats.RowsChecked++
				if s.opts.MaxRows > 0 && s.stats.RowsChecked > int64(s.opts.MaxRows) {
					return core.Row{}, s.fail(Violation{Row: -1, Reason: fmt.Sprintf("too many rows: maximum allowed %d", s.opts.MaxRows)})
				}

				ok, err := s.checkRow(row)
				if err != nil {
					return core.Row{}, err
				}
				if ok || s.opts.Mode == ReportOnly {
					return row, nil
				}
				s.stats.RowsDropped++
			}
		},
		CloseFunc: upstream.Close,
	}, nil
}

// Stats returns a copy of the validation statistics.
func (s *DataQualityStage) Stats() QualityStats {
	stats := s.stats
	stats.EmptyCells = make(map[string]int64, len(s.stats.EmptyCells))
	for k, v := range s.stats.EmptyCells {
		stats.EmptyCells[k] = v
	}
	return stats
}

// checkRow applies every field rule. It returns false when the row broke a
// rule, or an error in FailOnViolation mode.
func (s *DataQualityStage) checkRow(row core.Row) (bool, error) {
	valid := true
	for _, rule := range s.rules {
		if rule.index < 0 {
			continue
		}
		value := strings.TrimSpace(row.Value(rule.index))
		if value == "" {
			s.stats.EmptyCells[rule.pattern.String()]++
		}
		reason := validateValue(value, rule.validator)
		if reason == "" {
			continue
		}

		v := Violation{Row: row.Number(), Tag: rule.pattern.String(), Value: value, Reason: reason}
		if s.opts.Mode == FailOnViolation {
			return false, s.fail(v)
		}
		s.record(v)
		valid = false
	}
	return valid, nil
}

// finish runs the whole-dataset checks.
func (s *DataQualityStage) finish() error {
	if s.stats.RowsChecked < int64(s.opts.MinRows) {
		return s.fail(Violation{Row: -1, Reason: fmt.Sprintf("insufficient rows: got %d, need at least %d", s.stats.RowsChecked, s.opts.MinRows)})
	}
	if s.opts.MaxEmptyRate <= 0 || s.stats.RowsChecked == 0 {
		return nil
	}
	for _, rule := range s.rules {
		if rule.index < 0 {
			continue
		}
		tag := rule.pattern.String()
		rate := float64(s.stats.EmptyCells[tag]) / float64(s.stats.RowsChecked)
		if rate > s.opts.MaxEmptyRate {
			return s.fail(Violation{Row: -1, Tag: tag, Reason: fmt.Sprintf("%s empty rate %.2f exceeds maximum %.2f", tag, rate, s.opts.MaxEmptyRate)})
		}
	}
	return nil
}

func (s *DataQualityStage) record(v Violation) {
	s.stats.Violations++
	if s.opts.OnViolation != nil {
		s.opts.OnViolation(v)
	}
	s.opts.Logger.Warn().Int("row", v.Row).Str("tag", v.Tag).Str("value", v.Value).Msg(v.Reason)
}

func (s *DataQualityStage) fail(v Violation) error {
	s.record(v)
	return &ValidationError{Violation: v}
}

// validateValue returns why value breaks fv, or "" when it passes.
// Empty values only break the Required rule.
func validateValue(value string, fv FieldValidator) string {
	if value == "" {
		if fv.Required {
			return "is required"
		}
		return ""
	}

	if !validateDataType(value, fv.DataType) {
		return "is not a valid " + string(fv.DataType)
	}
	if fv.Pattern != nil && !fv.Pattern.MatchString(value) {
		return "does not match pattern"
	}
	if fv.MinValue != nil || fv.MaxValue != nil {
		if num, err := strconv.ParseFloat(value, 64); err == nil {
			if fv.MinValue != nil && num < *fv.MinValue {
				return fmt.Sprintf("below minimum %v", *fv.MinValue)
			}
			if fv.MaxValue != nil && num > *fv.MaxValue {
				return fmt.Sprintf("above maximum %v", *fv.MaxValue)
			}
		}
	}
	if len(fv.AllowedValues) > 0 {
		allowed := false
		for _, a := range fv.AllowedValues {
			if strings.EqualFold(value, strings.TrimSpace(a)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "not in allowed values"
		}
	}
	if fv.CustomFunc != nil {
		ok, err := fv.CustomFunc(value)
		if err != nil {
			return "custom validation failed: " + err.Error()
		}
		if !ok {
			return "failed custom validation"
		}
	}
	return ""
}

var valueValidator = validator.New()

// validateDataType checks if a value can be read as the expected data type
func validateDataType(value string, expectedType FieldDataType) bool {
	switch expectedType {
	case FieldTypeInt:
		_, err := strconv.ParseInt(value, 10, 64)
		return err == nil
	case FieldTypeNumber:
		_, err := strconv.ParseFloat(value, 64)
		return err == nil
	case FieldTypeBool:
		_, err := strconv.ParseBool(value)
		return err == nil
	case FieldTypeDate:
		_, err := dateparse.ParseAny(value)
		return err == nil
	case FieldTypeEmail:
		return valueValidator.Var(value, "email") == nil
	case FieldTypeURL:
		return valueValidator.Var(value, "http_url") == nil
	case FieldTypeUUID:
		_, err := uuid.Parse(value)
		return err == nil
	default:
		return true // string, any and unknown types pass
	}
}

// compile-time check
var _ core.Dataset = (*DataQualityStage)(nil)
