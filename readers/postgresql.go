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
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/multierr"

	"github.com/aaronlmathis/gohxl/core"
)

// This file implements a PostgreSQL reader for HXL pipelines. Query columns
// become HXL columns either by being aliased to a hashtag spec, as in
// SELECT sector AS "#sector+code", or through WithPostgresTagMap.

// PostgresReaderError provides structured error information for Postgres reader operations
type PostgresReaderError struct {
	Op  string // Operation that failed (e.g., "connect", "query", "scan", "read")
	Err error  // Underlying error
}

func (e *PostgresReaderError) Error() string {
	return fmt.Sprintf("postgres reader %s: %v", e.Op, e.Err)
}

func (e *PostgresReaderError) Unwrap() error {
	return e.Err
}

// PostgresReaderStats holds statistics about the Postgres reader's performance
type PostgresReaderStats struct {
	RowsRead       int64
	NullCells      int64
	BatchesFetched int64
	QueryDuration  time.Duration
	ReadDuration   time.Duration
	LastReadTime   time.Time
	ConnectionTime time.Duration
}

// PostgresReaderOptions configures the Postgres reader
type PostgresReaderOptions struct {
	DSN             string            // Database connection string
	DB              *sql.DB           // Existing pool; DSN is ignored when set
	Query           string            // SQL query to execute
	Params          []any             // Optional query parameters
	TagMap          map[string]string // Result column name to hashtag spec
	BatchSize       int               // Rows per FETCH when UseCursor is set
	ConnMaxLifetime time.Duration     // Maximum connection lifetime
	ConnMaxIdleTime time.Duration     // Maximum connection idle time
	MaxOpenConns    int               // Maximum open connections
	MaxIdleConns    int               // Maximum idle connections
	QueryTimeout    time.Duration     // Connection check and query start timeout
	UseCursor       bool              // Use server-side cursor for large results
	CursorName      string            // Name for the cursor (if UseCursor is true)
}

// PostgresReaderOption represents a configuration function for PostgresReaderOptions
type PostgresReaderOption func(*PostgresReaderOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresDB uses an existing connection pool. The reader does not close it.
func WithPostgresDB(db *sql.DB) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DB = db
	}
}

// WithPostgresQuery sets the SQL query and optional parameters.
func WithPostgresQuery(query string, params ...any) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Query = query
		if len(params) > 0 {
			opts.Params = make([]any, len(params))
			copy(opts.Params, params)
		}
	}
}

// WithPostgresTagMap assigns hashtag specs to result columns by name.
func WithPostgresTagMap(tags map[string]string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		if opts.TagMap == nil {
			opts.TagMap = make(map[string]string, len(tags))
		}
		for k, v := range tags {
			opts.TagMap[k] = v
		}
	}
}

// WithPostgresBatchSize sets the batch size for cursor fetches.
func WithPostgresBatchSize(size int) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.BatchSize = size
	}
}

// WithPostgresConnectionPool configures the connection pool.
func WithPostgresConnectionPool(maxOpen, maxIdle int) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
	}
}

// WithPostgresQueryTimeout sets the query execution timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

// WithPostgresCursor enables or disables server-side cursor usage for large results.
func WithPostgresCursor(useCursor bool, cursorName string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.UseCursor = useCursor
		opts.CursorName = cursorName
	}
}

// withDefaults applies default values to PostgresReaderOptions
func (opts *PostgresReaderOptions) withDefaults() *PostgresReaderOptions {
	result := &PostgresReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.QueryTimeout <= 0 {
		result.QueryTimeout = 30 * time.Second
	}
	if result.ConnMaxLifetime <= 0 {
		result.ConnMaxLifetime = 5 * time.Minute
	}
	if result.ConnMaxIdleTime <= 0 {
		result.ConnMaxIdleTime = 1 * time.Minute
	}
	if result.MaxOpenConns <= 0 {
		result.MaxOpenConns = 10
	}
	if result.MaxIdleConns <= 0 {
		result.MaxIdleConns = 5
	}
	if result.CursorName == "" {
		result.CursorName = "gohxl_cursor"
	}
	return result
}

// PostgresReader implements core.Dataset for PostgreSQL query results.
// The query runs in the constructor so the columns are known up front.
type PostgresReader struct {
	mu         sync.Mutex
	db         *sql.DB
	ownsDB     bool
	tx         *sql.Tx
	rows       *sql.Rows
	columns    []core.Column
	values     []any
	scanBuffer []any
	batchRows  int
	number     int
	once       core.Once
	finished   bool
	stats      PostgresReaderStats
	opts       *PostgresReaderOptions
}

// NewPostgresReader creates a new PostgreSQL reader with the given options.
func NewPostgresReader(ctx context.Context, options ...PostgresReaderOption) (*PostgresReader, error) {
	opts := (&PostgresReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	if opts.DSN == "" && opts.DB == nil {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("dsn is required")}
	}
	if opts.Query == "" {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("query is required")}
	}
	if opts.UseCursor && !isValidCursorName(opts.CursorName) {
		return nil, &PostgresReaderError{Op: "validate_cursor", Err: fmt.Errorf("invalid cursor name: %s", opts.CursorName)}
	}

	p := &PostgresReader{db: opts.DB, opts: opts}

	startTime := time.Now()
	if p.db == nil {
		db, err := sql.Open("postgres", opts.DSN)
		if err != nil {
			return nil, &PostgresReaderError{Op: "connect", Err: err}
		}
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxIdleConns)
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
		p.db = db
		p.ownsDB = true
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()
	if err := p.db.PingContext(pingCtx); err != nil {
		p.Close()
		return nil, &PostgresReaderError{Op: "ping", Err: err}
	}
	p.stats.ConnectionTime = time.Since(startTime)

	if err := p.executeQuery(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// executeQuery executes the SQL query and resolves the columns
func (p *PostgresReader) executeQuery(ctx context.Context) error {
	startTime := time.Now()

	var err error
	if p.opts.UseCursor {
		err = p.executeWithCursor(ctx)
	} else {
		p.rows, err = p.db.QueryContext(ctx, p.opts.Query, p.opts.Params...)
	}
	if err != nil {
		return &PostgresReaderError{Op: "query", Err: err}
	}
	p.stats.QueryDuration = time.Since(startTime)

	names, err := p.rows.Columns()
	if err != nil {
		return &PostgresReaderError{Op: "columns", Err: err}
	}
	columns, err := p.resolveColumns(names)
	if err != nil {
		return &PostgresReaderError{Op: "columns", Err: err}
	}
	p.columns = columns

	p.values = make([]any, len(names))
	p.scanBuffer = make([]any, len(names))
	for i := range p.scanBuffer {
		p.scanBuffer[i] = &p.values[i]
	}
	return nil
}

// resolveColumns maps result column names to HXL columns. Names not mapped
// and not hashtag specs themselves become untagged columns.
func (p *PostgresReader) resolveColumns(names []string) ([]core.Column, error) {
	columns := make([]core.Column, len(names))
	tagged := false
	for i, name := range names {
		spec, mapped := p.opts.TagMap[name]
		header := name
		if !mapped {
			if !core.IsTagSpec(name) {
				columns[i] = core.NewColumn(name, "")
				continue
			}
			spec, header = name, ""
		}
		col, ok, err := core.ParseColumnSpec(header, spec)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		tagged = tagged || ok
		columns[i] = col
	}
	if !tagged {
		return nil, ErrNoHashtagRow
	}
	return columns, nil
}

// executeWithCursor declares a server-side cursor and fetches the first batch
func (p *PostgresReader) executeWithCursor(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return &PostgresReaderError{Op: "begin_transaction", Err: err}
	}
	p.tx = tx

	declareSQL := fmt.Sprintf("DECLARE %s CURSOR FOR %s", p.opts.CursorName, p.opts.Query)
	if _, err := tx.ExecContext(ctx, declareSQL, p.opts.Params...); err != nil {
		return &PostgresReaderError{Op: "declare_cursor", Err: err}
	}
	return p.fetchBatch(ctx)
}

func (p *PostgresReader) fetchBatch(ctx context.Context) error {
	fetchSQL := fmt.Sprintf("FETCH %d FROM %s", p.opts.BatchSize, p.opts.CursorName)
	rows, err := p.tx.QueryContext(ctx, fetchSQL)
	if err != nil {
		return &PostgresReaderError{Op: "fetch_cursor", Err: err}
	}
	p.rows = rows
	p.batchRows = 0
	p.stats.BatchesFetched++
	return nil
}

// isValidCursorName validates cursor name for SQL injection prevention
func isValidCursorName(name string) bool {
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_') {
			return false
		}
	}
	return len(name) > 0 && len(name) <= 63 // PostgreSQL identifier limit
}

// Columns implements the core.Dataset interface.
func (p *PostgresReader) Columns() []core.Column {
	return p.columns
}

// Rows implements the core.Dataset interface.
func (p *PostgresReader) Rows(ctx context.Context) (core.RowReader, error) {
	if err := p.once.Acquire("postgres"); err != nil {
		return nil, err
	}
	return core.RowReaderFunc{ReadFunc: p.read, CloseFunc: p.Close}, nil
}

func (p *PostgresReader) read(ctx context.Context) (core.Row, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
		p.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return core.Row{}, &PostgresReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	for {
		if p.finished || p.rows == nil {
			return core.Row{}, io.EOF
		}
		if p.rows.Next() {
			break
		}
		if err := p.rows.Err(); err != nil {
			return core.Row{}, &PostgresReaderError{Op: "read", Err: err}
		}
		if err := p.rows.Close(); err != nil {
			return core.Row{}, &PostgresReaderError{Op: "read", Err: err}
		}
		// A short cursor batch means the result is exhausted.
		if !p.opts.UseCursor || p.batchRows < p.opts.BatchSize {
			p.finished = true
			return core.Row{}, io.EOF
		}
		if err := p.fetchBatch(ctx); err != nil {
			return core.Row{}, err
		}
	}

	if err := p.rows.Scan(p.scanBuffer...); err != nil {
		return core.Row{}, &PostgresReaderError{Op: "scan", Err: err}
	}
	p.batchRows++

	values := make([]string, len(p.values))
	for i, v := range p.values {
		if v == nil {
			p.stats.NullCells++
		}
		values[i] = sqlValueString(v)
	}
	row := core.NewRow(p.columns, values, p.number)
	p.number++
	p.stats.RowsRead++
	return row, nil
}

// sqlValueString converts SQL driver values to cell text
func sqlValueString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Close releases all resources held by the PostgreSQL reader
func (p *PostgresReader) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.rows != nil {
		if cerr := p.rows.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("closing rows: %w", cerr))
		}
		p.rows = nil
	}
	if p.tx != nil {
		if cerr := p.tx.Rollback(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("rolling back transaction: %w", cerr))
		}
		p.tx = nil
	}
	if p.db != nil && p.ownsDB {
		if cerr := p.db.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("closing database: %w", cerr))
		}
	}
	p.db = nil

	if err != nil {
		return &PostgresReaderError{Op: "close", Err: err}
	}
	return nil
}

// Stats returns statistics about the PostgreSQL reader's performance
func (p *PostgresReader) Stats() PostgresReaderStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
