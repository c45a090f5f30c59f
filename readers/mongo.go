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
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/multierr"

	"github.com/aaronlmathis/gohxl/core"
)

// This file implements a MongoDB reader for HXL pipelines. Documents have no
// fixed column order, so every column is declared with a MongoField that maps
// a dotted document path to a hashtag spec.

// MongoReaderError provides structured error information for MongoDB reader operations
type MongoReaderError struct {
	Op         string // Operation that failed (e.g., "connect", "query", "decode", "aggregate")
	Collection string // Collection being accessed when error occurred
	Err        error  // Underlying error
}

func (e *MongoReaderError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo reader %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo reader %s: %v", e.Op, e.Err)
}

func (e *MongoReaderError) Unwrap() error {
	return e.Err
}

// MongoReaderStats holds statistics about the MongoDB reader's performance
type MongoReaderStats struct {
	DocumentsRead   int64            // Total documents read
	QueriesExecuted int64            // Total queries executed
	ReadDuration    time.Duration    // Total time spent reading
	LastReadTime    time.Time        // Time of last read
	MissingCounts   map[string]int64 // Documents lacking each field path
}

// MongoReadMode defines how documents are queried
type MongoReadMode string

const (
	ModeFind      MongoReadMode = "find"      // Standard find query
	ModeAggregate MongoReadMode = "aggregate" // Aggregation pipeline
)

// MongoField maps a document path to an HXL column. Path uses dots to reach
// into embedded documents and numeric segments to index arrays, e.g.
// "location.admin.0.code".
type MongoField struct {
	Path   string
	Tag    string // Hashtag spec, e.g. "#adm1+code"
	Header string // Optional header text
}

// MongoCursor is the subset of *mongo.Cursor used by the reader.
type MongoCursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

// MongoReaderOptions configures the MongoDB reader.
type MongoReaderOptions struct {
	URI            string        // Connection URI
	Database       string        // Database name
	Collection     string        // Collection name
	Fields         []MongoField  // Column mapping, in output order
	Mode           MongoReadMode // find or aggregate
	Filter         bson.M        // Query filter for find
	Projection     bson.M
	Sort           bson.D
	Pipeline       []bson.M // Aggregation stages
	BatchSize      int32
	Limit          int64
	Skip           int64
	Timeout        time.Duration // Connect timeout
	MaxPoolSize    uint64
	ReadPreference string // primary, secondaryPreferred, ...
	ReadConcern    string // local, majority, ...
	AuthDatabase   string
	Username       string
	Password       string
	TLS            bool
	TLSInsecure    bool
	Cursor         MongoCursor // Pre-opened cursor; skips connecting
}

// ReaderOptionMongo is a functional option for MongoReaderOptions
type ReaderOptionMongo func(*MongoReaderOptions)

// Connection options
func WithMongoURI(uri string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.URI = uri
	}
}

func WithMongoDB(database string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Database = database
	}
}

func WithMongoCollection(collection string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Collection = collection
	}
}

// WithMongoFields appends column mappings.
func WithMongoFields(fields ...MongoField) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Fields = append(opts.Fields, fields...)
	}
}

// WithMongoField appends a single column mapping.
func WithMongoField(path, tag, header string) ReaderOptionMongo {
	return WithMongoFields(MongoField{Path: path, Tag: tag, Header: header})
}

// Query options
func WithMongoFilter(filter bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Filter = filter
	}
}

func WithMongoProjection(projection bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Projection = projection
	}
}

func WithMongoSort(sort bson.D) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Sort = sort
	}
}

func WithMongoPipeline(pipeline []bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Pipeline = pipeline
		opts.Mode = ModeAggregate
	}
}

func WithMongoLimit(limit int64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Limit = limit
	}
}

func WithMongoSkip(skip int64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Skip = skip
	}
}

func WithMongoBatchSize(batchSize int32) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.BatchSize = batchSize
	}
}

// Performance options
func WithMongoTimeout(timeout time.Duration) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Timeout = timeout
	}
}

func WithMongoPoolSize(size uint64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.MaxPoolSize = size
	}
}

func WithMongoReadPreference(preference string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.ReadPreference = preference
	}
}

func WithMongoReadConcern(concern string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.ReadConcern = concern
	}
}

// WithMongoAuth sets credentials. authDB defaults to the database.
func WithMongoAuth(username, password, authDB string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Username, opts.Password, opts.AuthDatabase = username, password, authDB
	}
}

func WithMongoTLS(enabled, insecure bool) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.TLS, opts.TLSInsecure = enabled, insecure
	}
}

// WithMongoCursor reads from an already opened cursor instead of connecting.
func WithMongoCursor(cursor MongoCursor) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Cursor = cursor
	}
}

func (opts *MongoReaderOptions) withDefaults() *MongoReaderOptions {
	opts.URI = "mongodb://localhost:27017"
	opts.Mode = ModeFind
	opts.BatchSize = 1000
	opts.Timeout = 30 * time.Second
	opts.MaxPoolSize = 100
	opts.ReadPreference = "primary"
	opts.ReadConcern = "local"
	return opts
}

// MongoReader implements core.Dataset for a MongoDB collection
type MongoReader struct {
	client  *mongo.Client
	cursor  MongoCursor
	columns []core.Column
	paths   [][]string
	opts    *MongoReaderOptions
	stats   MongoReaderStats
	once    core.Once
	number  int
	closed  bool
}

// NewMongoReader connects, runs the query, and returns a reader positioned
// before the first document.
func NewMongoReader(ctx context.Context, options ...ReaderOptionMongo) (*MongoReader, error) {
	opts := (&MongoReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	if len(opts.Fields) == 0 {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("at least one field mapping is required")}
	}
	if opts.Cursor == nil {
		if opts.Database == "" {
			return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("database name is required")}
		}
		if opts.Collection == "" {
			return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("collection name is required")}
		}
	}

	mr := &MongoReader{
		opts:   opts,
		cursor: opts.Cursor,
		stats:  MongoReaderStats{MissingCounts: make(map[string]int64)},
	}
	columns, paths, err := mongoColumns(opts.Fields)
	if err != nil {
		return nil, &MongoReaderError{Op: "fields", Err: err}
	}
	mr.columns, mr.paths = columns, paths

	if mr.cursor != nil {
		return mr, nil
	}

	start := time.Now()
	defer func() {
		mr.stats.ReadDuration += time.Since(start)
	}()

	if err := mr.connect(ctx); err != nil {
		return nil, err
	}
	if err := mr.initializeCursor(ctx); err != nil {
		mr.Close()
		return nil, &MongoReaderError{Op: string(opts.Mode), Collection: opts.Collection, Err: err}
	}
	return mr, nil
}

func mongoColumns(fields []MongoField) ([]core.Column, [][]string, error) {
	columns := make([]core.Column, len(fields))
	paths := make([][]string, len(fields))
	for i, f := range fields {
		if f.Path == "" {
			return nil, nil, fmt.Errorf("field %d: path is required", i)
		}
		col, ok, err := core.ParseColumnSpec(f.Header, f.Tag)
		if err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", f.Path, err)
		}
		if !ok {
			return nil, nil, fmt.Errorf("field %q: %q is not a hashtag spec", f.Path, f.Tag)
		}
		columns[i] = col
		paths[i] = strings.Split(f.Path, ".")
	}
	return columns, paths, nil
}

// connect establishes connection to MongoDB
func (mr *MongoReader) connect(ctx context.Context) error {
	clientOpts, err := buildClientOptions(mr.opts)
	if err != nil {
		return &MongoReaderError{Op: "build_options", Err: err}
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return &MongoReaderError{Op: "connect", Err: err}
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return &MongoReaderError{Op: "ping", Err: err}
	}

	mr.client = client
	return nil
}

var mongoReadConcerns = map[string]func() *readconcern.ReadConcern{
	"local":        readconcern.Local,
	"available":    readconcern.Available,
	"majority":     readconcern.Majority,
	"linearizable": readconcern.Linearizable,
	"snapshot":     readconcern.Snapshot,
}

// buildClientOptions maps reader options onto driver client options.
func buildClientOptions(opts *MongoReaderOptions) (*options.ClientOptions, error) {
	clientOpts := options.Client().ApplyURI(opts.URI).SetRetryReads(true)
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.Timeout > 0 {
		clientOpts.SetConnectTimeout(opts.Timeout)
	}

	if opts.Username != "" && opts.Password != "" {
		source := opts.AuthDatabase
		if source == "" {
			source = opts.Database
		}
		clientOpts.SetAuth(options.Credential{Username: opts.Username, Password: opts.Password, AuthSource: source})
	}
	if opts.TLS {
		clientOpts.SetTLSConfig(&tls.Config{InsecureSkipVerify: opts.TLSInsecure})
	}

	if opts.ReadPreference != "" {
		mode, err := readpref.ModeFromString(opts.ReadPreference)
		if err != nil {
			return nil, fmt.Errorf("invalid read preference: %s", opts.ReadPreference)
		}
		rp, err := readpref.New(mode)
		if err != nil {
			return nil, err
		}
		clientOpts.SetReadPreference(rp)
	}
	if opts.ReadConcern != "" {
		rc, ok := mongoReadConcerns[opts.ReadConcern]
		if !ok {
			return nil, fmt.Errorf("invalid read concern: %s", opts.ReadConcern)
		}
		clientOpts.SetReadConcern(rc())
	}
	return clientOpts, nil
}

func (mr *MongoReader) initializeCursor(ctx context.Context) error {
	mr.stats.QueriesExecuted++
	collection := mr.client.Database(mr.opts.Database).Collection(mr.opts.Collection)

	switch mr.opts.Mode {
	case ModeFind:
		return mr.initializeFindCursor(ctx, collection)
	case ModeAggregate:
		return mr.initializeAggregateCursor(ctx, collection)
	default:
		return fmt.Errorf("unsupported read mode: %s", mr.opts.Mode)
	}
}

func (mr *MongoReader) initializeFindCursor(ctx context.Context, collection *mongo.Collection) error {
	findOpts := options.Find().SetBatchSize(mr.opts.BatchSize)
	if mr.opts.Limit > 0 {
		findOpts.SetLimit(mr.opts.Limit)
	}
	if mr.opts.Skip > 0 {
		findOpts.SetSkip(mr.opts.Skip)
	}
	if mr.opts.Projection != nil {
		findOpts.SetProjection(mr.opts.Projection)
	}
	if mr.opts.Sort != nil {
		findOpts.SetSort(mr.opts.Sort)
	}

	filter := mr.opts.Filter
	if filter == nil {
		filter = bson.M{}
	}
	cursor, err := collection.Find(ctx, filter, findOpts)
	if err != nil {
		return err
	}
	mr.cursor = cursor
	return nil
}

func (mr *MongoReader) initializeAggregateCursor(ctx context.Context, collection *mongo.Collection) error {
	if len(mr.opts.Pipeline) == 0 {
		return fmt.Errorf("pipeline is required for aggregate mode")
	}
	cursor, err := collection.Aggregate(ctx, mr.opts.Pipeline, options.Aggregate().SetBatchSize(mr.opts.BatchSize))
	if err != nil {
		return err
	}
	mr.cursor = cursor
	return nil
}

// Columns implements the core.Dataset interface.
func (mr *MongoReader) Columns() []core.Column {
	return mr.columns
}

// Rows implements the core.Dataset interface.
func (mr *MongoReader) Rows(ctx context.Context) (core.RowReader, error) {
	if err := mr.once.Acquire("mongo"); err != nil {
		return nil, err
	}
	return core.RowReaderFunc{ReadFunc: mr.read, CloseFunc: mr.Close}, nil
}

func (mr *MongoReader) read(ctx context.Context) (core.Row, error) {
	start := time.Now()
	defer func() {
		mr.stats.ReadDuration += time.Since(start)
		mr.stats.LastReadTime = time.Now()
	}()

	if mr.closed || mr.cursor == nil {
		return core.Row{}, io.EOF
	}
	if !mr.cursor.Next(ctx) {
		if err := mr.cursor.Err(); err != nil {
			return core.Row{}, &MongoReaderError{Op: "read", Collection: mr.opts.Collection, Err: err}
		}
		return core.Row{}, io.EOF
	}

	var doc bson.M
	if err := mr.cursor.Decode(&doc); err != nil {
		return core.Row{}, &MongoReaderError{Op: "decode", Collection: mr.opts.Collection, Err: err}
	}

	values := make([]string, len(mr.paths))
	for i, path := range mr.paths {
		value, ok := lookupPath(doc, path)
		if !ok {
			mr.stats.MissingCounts[mr.opts.Fields[i].Path]++
			continue
		}
		values[i] = bsonValueString(value)
	}

	row := core.NewRow(mr.columns, values, mr.number)
	mr.number++
	mr.stats.DocumentsRead++
	return row, nil
}

// lookupPath walks embedded documents and arrays along a split dotted path.
func lookupPath(value any, path []string) (any, bool) {
	for _, key := range path {
		switch v := value.(type) {
		case bson.M:
			next, ok := v[key]
			if !ok {
				return nil, false
			}
			value = next
		case map[string]any:
			next, ok := v[key]
			if !ok {
				return nil, false
			}
			value = next
		case bson.D:
			found := false
			for _, e := range v {
				if e.Key == key {
					value, found = e.Value, true
					break
				}
			}
			if !found {
				return nil, false
			}
		case bson.A:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			value = v[idx]
		default:
			return nil, false
		}
	}
	return value, true
}

// bsonValueString converts BSON values to cell text. Embedded documents and
// arrays become relaxed extended JSON.
func bsonValueString(value any) string {
	switch v := value.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return ""
	case string:
		return v
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return sqlValueString(v.Time().UTC())
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return v.String()
	case primitive.Binary:
		return fmt.Sprintf("%x", v.Data)
	case primitive.Regex:
		return v.Pattern
	case primitive.JavaScript:
		return string(v)
	case primitive.Symbol:
		return string(v)
	case primitive.CodeWithScope:
		return string(v.Code)
	case primitive.MinKey:
		return "MinKey"
	case primitive.MaxKey:
		return "MaxKey"
	case bson.M, bson.D, bson.A, map[string]any:
		data, err := bson.MarshalExtJSON(wrapExtJSON(v), false, false)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return unwrapExtJSON(string(data))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// MarshalExtJSON only accepts documents, so arrays are wrapped in one.
func wrapExtJSON(v any) any {
	if a, ok := v.(bson.A); ok {
		return bson.D{{Key: "v", Value: a}}
	}
	return v
}

func unwrapExtJSON(s string) string {
	if rest, ok := strings.CutPrefix(s, `{"v":`); ok && strings.HasPrefix(rest, "[") {
		return strings.TrimSuffix(rest, "}")
	}
	return s
}

// Close releases the cursor and disconnects the client.
func (mr *MongoReader) Close() error {
	if mr.closed {
		return nil
	}
	mr.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if mr.cursor != nil {
		if cerr := mr.cursor.Close(ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = multierr.Append(err, fmt.Errorf("closing cursor: %w", cerr))
		}
	}
	if mr.client != nil {
		if cerr := mr.client.Disconnect(ctx); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("disconnecting: %w", cerr))
		}
		mr.client = nil
	}
	if err != nil {
		return &MongoReaderError{Op: "close", Collection: mr.opts.Collection, Err: err}
	}
	return nil
}

// Stats returns statistics about the MongoDB reader's performance
func (mr *MongoReader) Stats() MongoReaderStats {
	stats := mr.stats
	stats.MissingCounts = make(map[string]int64, len(mr.stats.MissingCounts))
	for k, v := range mr.stats.MissingCounts {
		stats.MissingCounts[k] = v
	}
	return stats
}
