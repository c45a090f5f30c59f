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

package readers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/aaronlmathis/gohxl/core"
)

// JSONReaderError wraps structured error information for the JSON reader.
type JSONReaderError struct {
	Op  string
	Err error
}

func (e *JSONReaderError) Error() string {
	return fmt.Sprintf("json reader %s: %v", e.Op, e.Err)
}

func (e *JSONReaderError) Unwrap() error {
	return e.Err
}

// JSONReaderOptions configures the JSON reader.
type JSONReaderOptions struct {
	DataPath  string // JSONPath selecting the row array, e.g. "$.data"
	Lines     bool   // One array or object per line instead of one document
	ScanDepth int
}

// ReaderOptionJSON allows functional customization of JSONReader.
type ReaderOptionJSON func(*JSONReaderOptions)

// WithJSONDataPath selects the row array inside a larger document.
func WithJSONDataPath(path string) ReaderOptionJSON {
	return func(o *JSONReaderOptions) { o.DataPath = path }
}

// WithJSONLines reads line-delimited JSON.
func WithJSONLines(lines bool) ReaderOptionJSON {
	return func(o *JSONReaderOptions) { o.Lines = lines }
}

func WithJSONScanDepth(depth int) ReaderOptionJSON {
	return func(o *JSONReaderOptions) { o.ScanDepth = depth }
}

// JSONReader implements core.Dataset for HXL JSON. The rows are either arrays,
// with a hashtag row among the first ones, or objects keyed by hashtag spec.
type JSONReader struct {
	table *table
	opts  JSONReaderOptions
}

// NewJSONReader parses the whole document and resolves its columns.
func NewJSONReader(r io.ReadCloser, options ...ReaderOptionJSON) (*JSONReader, error) {
	opts := JSONReaderOptions{ScanDepth: DefaultScanDepth}
	for _, opt := range options {
		opt(&opts)
	}
	defer r.Close()

	items, err := readJSONItems(r, opts)
	if err != nil {
		return nil, err
	}

	var t *table
	if len(items) > 0 {
		if _, ok := items[0].(map[string]any); ok {
			t, err = objectTable(items)
		} else {
			t, err = arrayTable(items, opts.ScanDepth)
		}
	} else {
		err = ErrNoHashtagRow
	}
	if err != nil {
		return nil, &JSONReaderError{Op: "read_headers", Err: err}
	}

	return &JSONReader{table: t, opts: opts}, nil
}

func readJSONItems(r io.Reader, opts JSONReaderOptions) ([]any, error) {
	var data any
	if opts.Lines {
		var items []any
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			v, err := oj.ParseString(line)
			if err != nil {
				return nil, &JSONReaderError{Op: "parse", Err: err}
			}
			items = append(items, v)
		}
		if err := scanner.Err(); err != nil {
			return nil, &JSONReaderError{Op: "read", Err: err}
		}
		data = items
	} else {
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, &JSONReaderError{Op: "read", Err: err}
		}
		data, err = oj.Parse(raw)
		if err != nil {
			return nil, &JSONReaderError{Op: "parse", Err: err}
		}
	}

	if opts.DataPath != "" {
		x, err := jp.ParseString(opts.DataPath)
		if err != nil {
			return nil, &JSONReaderError{Op: "data_path", Err: err}
		}
		results := x.Get(data)
		if len(results) == 0 {
			return nil, &JSONReaderError{Op: "data_path", Err: fmt.Errorf("%s matched nothing", opts.DataPath)}
		}
		data = results[0]
	}

	items, ok := data.([]any)
	if !ok {
		return nil, &JSONReaderError{Op: "parse", Err: fmt.Errorf("expected an array of rows, got %T", data)}
	}
	return items, nil
}

func arrayTable(items []any, depth int) (*table, error) {
	records := make([][]string, 0, len(items))
	for i, item := range items {
		cells, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("row %d: expected an array, got %T", i, item)
		}
		record := make([]string, len(cells))
		for j, c := range cells {
			record[j] = jsonValueString(c)
		}
		records = append(records, record)
	}
	return scanTable("json", sliceSource(records), nil, depth)
}

// objectTable builds columns from the union of object keys, in order of first
// appearance with the keys of each object sorted.
func objectTable(items []any) (*table, error) {
	var specs []string
	index := make(map[string]int)
	objects := make([]map[string]any, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("row %d: expected an object, got %T", i, item)
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if _, seen := index[k]; !seen {
				index[k] = len(specs)
				specs = append(specs, k)
			}
		}
		objects = append(objects, obj)
	}

	if !IsHashtagRow(specs) {
		return nil, ErrNoHashtagRow
	}
	columns, err := BuildColumns(nil, specs)
	if err != nil {
		return nil, err
	}

	records := make([][]string, len(objects))
	for i, obj := range objects {
		record := make([]string, len(specs))
		for k, v := range obj {
			record[index[k]] = jsonValueString(v)
		}
		records[i] = record
	}

	return &table{name: "json", columns: columns, next: sliceSource(records)}, nil
}

// jsonValueString renders a parsed JSON value as cell text. Nested values
// are written back as compact JSON.
func jsonValueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any, []any:
		return oj.JSON(val)
	default:
		return fmt.Sprint(val)
	}
}

// Columns implements the core.Dataset interface.
func (j *JSONReader) Columns() []core.Column {
	return j.table.Columns()
}

// Rows implements the core.Dataset interface.
func (j *JSONReader) Rows(ctx context.Context) (core.RowReader, error) {
	return j.table.Rows(ctx)
}

// Stats returns JSON reader performance stats.
func (j *JSONReader) Stats() ReaderStats {
	return j.table.stats
}
