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

package validators

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gohxl/core"
)

func activities() *core.MemoryDataset {
	cols := []core.Column{
		core.NewColumn("Organisation", "#org"),
		core.NewColumn("Sector", "#sector"),
		core.NewColumn("Affected", "#affected_num"),
		core.NewColumn("Reported", "#date", "reported"),
	}
	return core.NewMemoryDataset(cols, [][]string{
		{"WFP", "Food", "120", "2024-03-01"},
		{"UNICEF", "WASH", "-4", "2024-03-02"},
		{"MSF", "", "n/a", "2024-03-03"},
		{"", "Health", "15", "not a date"},
	})
}

func readValues(t *testing.T, ds core.Dataset) ([][]string, error) {
	t.Helper()
	var values [][]string
	err := core.ForEach(context.Background(), ds, func(r core.Row) error {
		values = append(values, r.Values())
		return nil
	})
	return values, err
}

func float(v float64) *float64 { return &v }

func TestDataQuality_DropInvalid(t *testing.T) {
	var seen []Violation
	stage, err := NewDataQuality(activities(),
		WithMode(DropInvalid),
		WithFieldValidator("#affected_num", FieldValidator{DataType: FieldTypeNumber, MinValue: float(0)}),
		WithFieldValidator("#date", FieldValidator{DataType: FieldTypeDate}),
		WithViolationHandler(func(v Violation) { seen = append(seen, v) }),
	)
	require.NoError(t, err)

	values, err := readValues(t, stage)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"WFP", "Food", "120", "2024-03-01"}}, values)

	stats := stage.Stats()
	assert.Equal(t, int64(4), stats.RowsChecked)
	assert.Equal(t, int64(3), stats.RowsDropped)
	assert.Equal(t, int64(3), stats.Violations)

	require.Len(t, seen, 3)
	assert.Equal(t, Violation{Row: 1, Tag: "#affected_num", Value: "-4", Reason: "below minimum 0"}, seen[0])
	assert.Equal(t, "is not a valid number", seen[1].Reason)
	assert.Equal(t, "#date", seen[2].Tag)
}

func TestDataQuality_FailOnViolation(t *testing.T) {
	stage, err := NewDataQuality(activities(),
		WithFieldValidator("#org", FieldValidator{Required: true}),
	)
	require.NoError(t, err)

	values, err := readValues(t, stage)
	require.Error(t, err)
	assert.Len(t, values, 3)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, 3, vErr.Violation.Row)
	assert.Equal(t, "is required", vErr.Violation.Reason)
	assert.Contains(t, err.Error(), "row 3 #org")
}

func TestDataQuality_ReportOnly(t *testing.T) {
	stage, err := NewDataQuality(activities(),
		WithMode(ReportOnly),
		WithFieldValidator("#sector", FieldValidator{AllowedValues: []string{"food", "wash"}}),
	)
	require.NoError(t, err)

	values, err := readValues(t, stage)
	require.NoError(t, err)
	assert.Len(t, values, 4)
	assert.Equal(t, int64(1), stage.Stats().Violations)
	assert.Equal(t, int64(1), stage.Stats().EmptyCells["#sector"])
}

func TestDataQuality_DatasetChecks(t *testing.T) {
	tests := []struct {
		name    string
		options []DataQualityOption
		wantErr string
	}{
		{"min rows", []DataQualityOption{WithMinRows(5)}, "insufficient rows: got 4"},
		{"max rows", []DataQualityOption{WithMaxRows(2)}, "too many rows"},
		{"empty rate", []DataQualityOption{
			WithMode(ReportOnly),
			WithMaxEmptyRate(0.2),
			WithFieldValidator("#org", FieldValidator{}),
		}, "#org empty rate 0.25"},
		{"within limits", []DataQualityOption{WithMinRows(4), WithMaxRows(4), WithMaxEmptyRate(0.25), WithFieldValidator("#org", FieldValidator{})}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, err := NewDataQuality(activities(), tt.options...)
			require.NoError(t, err)
			_, err = readValues(t, stage)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDataQuality_ColumnChecks(t *testing.T) {
	_, err := NewDataQuality(activities(), WithRequiredTags("#org", "#adm1"))
	var dsErr *core.DatasetError
	require.True(t, errors.As(err, &dsErr))
	assert.Equal(t, "required_tags", dsErr.Op)

	_, err = NewDataQuality(activities(), WithForbiddenTags("#contact"))
	assert.NoError(t, err)

	_, err = NewDataQuality(activities(), WithForbiddenTags("#date+reported"))
	require.True(t, errors.As(err, &dsErr))
	assert.Equal(t, "forbidden_tags", dsErr.Op)

	_, err = NewDataQuality(activities(), WithFieldValidator("+num", FieldValidator{}))
	var patErr *core.InvalidPatternError
	assert.True(t, errors.As(err, &patErr))
}

func TestDataQuality_SinglePass(t *testing.T) {
	stage, err := NewDataQuality(activities())
	require.NoError(t, err)
	_, err = readValues(t, stage)
	require.NoError(t, err)

	_, err = stage.Rows(context.Background())
	assert.True(t, errors.Is(err, core.ErrDatasetConsumed))
}

func TestValidateValue(t *testing.T) {
	tests := []struct {
		value     string
		validator FieldValidator
		want      string
	}{
		{"", FieldValidator{DataType: FieldTypeInt}, ""},
		{"12", FieldValidator{DataType: FieldTypeInt}, ""},
		{"1.5", FieldValidator{DataType: FieldTypeInt}, "is not a valid int"},
		{"yes", FieldValidator{DataType: FieldTypeBool}, "is not a valid bool"},
		{"ops@example.org", FieldValidator{DataType: FieldTypeEmail}, ""},
		{"@example", FieldValidator{DataType: FieldTypeEmail}, "is not a valid email"},
		{"https://data.humdata.org", FieldValidator{DataType: FieldTypeURL}, ""},
		{"ftp://x", FieldValidator{DataType: FieldTypeURL}, "is not a valid url"},
		{"123e4567-e89b-12d3-a456-426614174000", FieldValidator{DataType: FieldTypeUUID}, ""},
		{"123e4567-e89b", FieldValidator{DataType: FieldTypeUUID}, "is not a valid uuid"},
		{"P01", FieldValidator{Pattern: regexp.MustCompile(`^P\d+$`)}, ""},
		{"X01", FieldValidator{Pattern: regexp.MustCompile(`^P\d+$`)}, "does not match pattern"},
		{"101", FieldValidator{MaxValue: float(100)}, "above maximum 100"},
		{"Wash", FieldValidator{AllowedValues: []string{"WASH"}}, ""},
		{"odd", FieldValidator{CustomFunc: func(v string) (bool, error) { return len(v)%2 == 0, nil }}, "failed custom validation"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, validateValue(tt.value, tt.validator))
		})
	}
}
