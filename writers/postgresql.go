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

package writers

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/multierr"

	"github.com/aaronlmathis/gohxl/core"
)

// This file implements a PostgreSQL writer for HXL datasets. Each column
// becomes a TEXT column named after its display tag, so #adm1+code is stored
// in adm1_code. Rows are inserted in batches, one transaction per batch.

// PostgresWriterError wraps PostgreSQL-specific write errors with context about the operation.
type PostgresWriterError struct {
	Op  string // The operation being performed (e.g., "write", "connect")
	Err error  // The underlying error
}

// Error returns the error string for PostgresWriterError.
func (e *PostgresWriterError) Error() string {
	return fmt.Sprintf("postgres writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for PostgresWriterError.
func (e *PostgresWriterError) Unwrap() error {
	return e.Err
}

// PostgresWriterStats holds PostgreSQL write performance statistics.
type PostgresWriterStats struct {
	RowsWritten      int64         // Total rows written
	BatchesWritten   int64         // Number of batches written
	TransactionCount int64         // Number of transactions committed
	LastWriteTime    time.Time     // Time of last write
	WriteDuration    time.Duration // Total time spent writing
	ConnectionTime   time.Duration // Time spent establishing connection
	ConflictCount    int64         // Number of conflicts encountered
}

// ConflictResolution defines how to handle INSERT conflicts in PostgreSQL.
type ConflictResolution int

const (
	// ConflictError returns an error on conflict (default PostgreSQL behavior).
	ConflictError ConflictResolution = iota
	// ConflictIgnore ignores conflicting rows (ON CONFLICT DO NOTHING).
	ConflictIgnore
)

// PostgresWriterOptions configures the PostgreSQL writer.
type PostgresWriterOptions struct {
	DSN                string             // PostgreSQL connection string
	DB                 *sql.DB            // Existing pool; DSN is ignored when set
	TableName          string             // Target table name
	BatchSize          int                // Number of rows per batch
	CreateTable        bool               // Create table if not exists
	TruncateTable      bool               // Truncate table before writing
	ConflictResolution ConflictResolution // Conflict handling strategy
	ConflictColumns    []string           // Columns that define uniqueness for conflict resolution
	ConnMaxLifetime    time.Duration      // Max connection lifetime
	ConnMaxIdleTime    time.Duration      // Max idle connection time
	MaxOpenConns       int                // Max open connections
	MaxIdleConns       int                // Max idle connections
	QueryTimeout       time.Duration      // Timeout for queries
}

// PostgresWriterOption represents a configuration function for PostgresWriterOptions.
type PostgresWriterOption func(*PostgresWriterOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresDB uses an existing connection pool. The writer does not close it.
func WithPostgresDB(db *sql.DB) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DB = db
	}
}

// WithTableName sets the target table name.
func WithTableName(tableName string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TableName = tableName
	}
}

// WithPostgresBatchSize sets the batch size for writes.
func WithPostgresBatchSize(size int) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCreateTable enables or disables table creation.
func WithCreateTable(create bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.CreateTable = create
	}
}

// WithTruncateTable enables or disables table truncation before writing.
func WithTruncateTable(truncate bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TruncateTable = truncate
	}
}

// WithConflictIgnore skips rows that conflict on the given columns.
func WithConflictIgnore(conflictCols ...string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.ConflictResolution = ConflictIgnore
		opts.ConflictColumns = append([]string(nil), conflictCols...)
	}
}

// WithPostgresConnectionPool configures the connection pool.
func WithPostgresConnectionPool(maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
		opts.ConnMaxLifetime = maxLifetime
		opts.ConnMaxIdleTime = maxIdleTime
	}
}

// WithPostgresQueryTimeout sets the query timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.QueryTimeout = timeout
	}
}

// PostgresWriter implements DataSink for PostgreSQL output.
type PostgresWriter struct {
	db         *sql.DB
	ownsDB     bool
	options    PostgresWriterOptions
	names      []string
	insertSQL  string
	recordBuf  [][]any
	stats      PostgresWriterStats
	errorState bool
	closed     bool
	mu         sync.Mutex
}

// NewPostgresWriter creates a new PostgreSQL writer with the given options.
func NewPostgresWriter(opts ...PostgresWriterOption) (*PostgresWriter, error) {
	options := (&PostgresWriterOptions{}).withDefaults()
	for _, opt := range opts {
		opt(options)
	}

	if err := validateOptions(options); err != nil {
		return nil, &PostgresWriterError{Op: "validate", Err: err}
	}

	writer := &PostgresWriter{
		db:        options.DB,
		options:   *options,
		recordBuf: make([][]any, 0, options.BatchSize),
	}

	if err := writer.connect(); err != nil {
		return nil, &PostgresWriterError{Op: "connect", Err: err}
	}
	return writer, nil
}

// withDefaults applies default values to PostgresWriterOptions.
func (opts *PostgresWriterOptions) withDefaults() *PostgresWriterOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	if opts.ConnMaxIdleTime == 0 {
		opts.ConnMaxIdleTime = 1 * time.Minute
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	return opts
}

// validateOptions validates the PostgreSQL writer options.
func validateOptions(opts *PostgresWriterOptions) error {
	if opts.DSN == "" && opts.DB == nil {
		return fmt.Errorf("dsn is required")
	}
	if opts.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	if opts.ConflictResolution != ConflictError && len(opts.ConflictColumns) == 0 {
		return fmt.Errorf("conflict columns required for conflict resolution")
	}
	return nil
}

// connect establishes the database connection and configures the connection pool.
func (w *PostgresWriter) connect() error {
	start := time.Now()

	if w.db == nil {
		db, err := sql.Open("postgres", w.options.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(w.options.MaxOpenConns)
		db.SetMaxIdleConns(w.options.MaxIdleConns)
		db.SetConnMaxLifetime(w.options.ConnMaxLifetime)
		db.SetConnMaxIdleTime(w.options.ConnMaxIdleTime)
		w.db = db
		w.ownsDB = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	if err := w.db.PingContext(ctx); err != nil {
		if w.ownsDB {
			w.db.Close()
		}
		w.db = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	w.stats.ConnectionTime = time.Since(start)
	return nil
}

var nonIdentRegexp = regexp.MustCompile(`[^a-z0-9_]+`)

// ColumnNames derives SQL column names from display tags: the '#' is dropped
// and attributes are joined with underscores. Untagged columns use their
// header text. Names are made unique with a numeric suffix.
func ColumnNames(columns []core.Column) []string {
	names := make([]string, len(columns))
	used := make(map[string]int, len(columns))
	for i, col := range columns {
		name := strings.TrimPrefix(col.DisplayTag(), "#")
		if name == "" {
			name = col.Header()
		}
		name = strings.Trim(nonIdentRegexp.ReplaceAllString(strings.ToLower(name), "_"), "_")
		if name == "" || (name[0] >= '0' && name[0] <= '9') {
			name = "column_" + strconv.Itoa(i+1)
		}
		if n := used[name]; n > 0 {
			used[name] = n + 1
			name = name + "_" + strconv.Itoa(n+1)
		} else {
			used[name] = 1
		}
		names[i] = name
	}
	return names
}

// WriteColumns prepares the table and the INSERT statement.
func (w *PostgresWriter) WriteColumns(ctx context.Context, columns []core.Column) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.names != nil {
		return &PostgresWriterError{Op: "write_columns", Err: fmt.Errorf("columns already written")}
	}
	w.names = ColumnNames(columns)

	table := quoteTable(w.options.TableName)
	quoted := make([]string, len(w.names))
	for i, name := range w.names {
		quoted[i] = pq.QuoteIdentifier(name)
	}

	if w.options.CreateTable {
		defs := make([]string, len(quoted))
		for i, q := range quoted {
			defs[i] = q + " TEXT"
		}
		query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
		if _, err := w.db.ExecContext(ctx, query); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "create_table", Err: err}
		}
	}

	if w.options.TruncateTable {
		if _, err := w.db.ExecContext(ctx, "TRUNCATE TABLE "+table); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "truncate_table", Err: err}
		}
	}

	placeholders := make([]string, len(quoted))
	for i := range placeholders {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	w.insertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if w.options.ConflictResolution == ConflictIgnore {
		conflict := make([]string, len(w.options.ConflictColumns))
		for i, c := range w.options.ConflictColumns {
			conflict[i] = pq.QuoteIdentifier(c)
		}
		w.insertSQL += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(conflict, ", "))
	}
	return nil
}

// quoteTable quotes each part of a possibly schema-qualified table name.
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// Write implements the DataSink interface. Rows are buffered and written in batches.
func (w *PostgresWriter) Write(ctx context.Context, row core.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return &PostgresWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if w.names == nil {
		return &PostgresWriterError{Op: "write", Err: ErrColumnsNotWritten}
	}

	values := make([]any, len(w.names))
	for i := range values {
		values[i] = row.Value(i)
	}
	w.recordBuf = append(w.recordBuf, values)

	if len(w.recordBuf) >= w.options.BatchSize {
		if err := w.flushBufferUnsafe(ctx); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "flush_batch", Err: err}
		}
	}
	return nil
}

// Flush forces any buffered rows to be written to PostgreSQL.
func (w *PostgresWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	if err := w.flushBufferUnsafe(ctx); err != nil {
		w.errorState = true
		return &PostgresWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close flushes pending rows and closes the connection pool if the writer opened it.
func (w *PostgresWriter) Close() error {
	err := w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return err
	}
	w.closed = true

	if w.db != nil && w.ownsDB {
		err = multierr.Append(err, w.db.Close())
	}
	return err
}

// flushBufferUnsafe writes buffered rows in one transaction (must hold mutex).
func (w *PostgresWriter) flushBufferUnsafe(ctx context.Context) (err error) {
	if len(w.recordBuf) == 0 {
		return nil
	}

	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, w.insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, values := range w.recordBuf {
		result, err := stmt.ExecContext(ctx, values...)
		if err != nil {
			return fmt.Errorf("failed to execute insert: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			w.stats.ConflictCount++
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.stats.TransactionCount++
	w.stats.BatchesWritten++
	w.stats.RowsWritten += int64(len(w.recordBuf))
	w.stats.LastWriteTime = time.Now()
	w.stats.WriteDuration += time.Since(start)
	w.recordBuf = w.recordBuf[:0]
	return nil
}

// Stats returns a copy of the current write statistics.
func (w *PostgresWriter) Stats() PostgresWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
