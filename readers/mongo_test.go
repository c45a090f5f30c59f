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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeCursor round-trips each document through BSON, as the driver would.
type fakeCursor struct {
	docs   []bson.D
	pos    int
	err    error
	closed bool
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Decode(val any) error {
	data, err := bson.Marshal(c.docs[c.pos-1])
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, val)
}

func (c *fakeCursor) Err() error { return c.err }

func (c *fakeCursor) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

func TestMongoReader_MapsFields(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cursor := &fakeCursor{docs: []bson.D{
		{
			{Key: "_id", Value: oid},
			{Key: "sector", Value: "WASH"},
			{Key: "location", Value: bson.D{
				{Key: "admin", Value: bson.A{bson.D{{Key: "code", Value: "P01"}}}},
			}},
			{Key: "affected", Value: int32(120)},
			{Key: "reported", Value: primitive.NewDateTimeFromTime(when)},
		},
		{
			{Key: "sector", Value: "Health"},
			{Key: "affected", Value: 2.5},
		},
	}}

	reader, err := NewMongoReader(context.Background(),
		WithMongoCursor(cursor),
		WithMongoFields(
			MongoField{Path: "_id", Tag: "#meta+id"},
			MongoField{Path: "sector", Tag: "#sector", Header: "Sector"},
			MongoField{Path: "location.admin.0.code", Tag: "#adm1+code"},
			MongoField{Path: "affected", Tag: "#affected_num"},
		),
		WithMongoField("reported", "#date+reported", ""))
	require.NoError(t, err)

	assert.Equal(t, []string{"#meta+id", "#sector", "#adm1+code", "#affected_num", "#date+reported"}, displayTags(reader.Columns()))
	assert.Equal(t, "Sector", reader.Columns()[1].Header())

	assert.Equal(t, [][]string{
		{oid.Hex(), "WASH", "P01", "120", "2024-03-01"},
		{"", "Health", "", "2.5", ""},
	}, readValues(t, reader))
	assert.True(t, cursor.closed)

	stats := reader.Stats()
	assert.Equal(t, int64(2), stats.DocumentsRead)
	assert.Equal(t, int64(1), stats.MissingCounts["location.admin.0.code"])
	assert.Equal(t, int64(1), stats.MissingCounts["_id"])
}

func TestMongoReader_CursorError(t *testing.T) {
	cursor := &fakeCursor{err: errors.New("connection reset")}
	reader, err := NewMongoReader(context.Background(), WithMongoCursor(cursor), WithMongoField("org", "#org", ""))
	require.NoError(t, err)

	_, err = readAllErr(reader)
	var mongoErr *MongoReaderError
	require.True(t, errors.As(err, &mongoErr))
	assert.Equal(t, "read", mongoErr.Op)
}

func readAllErr(reader *MongoReader) ([][]string, error) {
	rows, err := reader.Rows(context.Background())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]string
	for {
		row, err := rows.Read(context.Background())
		if err != nil {
			return out, err
		}
		out = append(out, row.Values())
	}
}

func TestMongoReader_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewMongoReader(ctx, WithMongoDB("hxl"), WithMongoCollection("3w"))
	assert.Error(t, err, "fields are required")

	_, err = NewMongoReader(ctx, WithMongoField("org", "#org", ""))
	assert.Error(t, err, "database is required without a cursor")

	_, err = NewMongoReader(ctx, WithMongoCursor(&fakeCursor{}), WithMongoField("org", "org", ""))
	var mongoErr *MongoReaderError
	require.True(t, errors.As(err, &mongoErr))
	assert.Equal(t, "fields", mongoErr.Op)

	_, err = NewMongoReader(ctx, WithMongoCursor(&fakeCursor{}), WithMongoField("", "#org", ""))
	assert.Error(t, err)
}

func TestBuildClientOptions(t *testing.T) {
	opts := (&MongoReaderOptions{}).withDefaults()
	opts.Database = "hxl"
	opts.Username, opts.Password = "user", "pass"
	opts.ReadPreference = "secondaryPreferred"

	clientOpts, err := buildClientOptions(opts)
	require.NoError(t, err)
	require.NotNil(t, clientOpts.Auth)
	assert.Equal(t, "hxl", clientOpts.Auth.AuthSource)
	assert.Equal(t, uint64(100), *clientOpts.MaxPoolSize)

	opts.ReadPreference = "sometimes"
	_, err = buildClientOptions(opts)
	assert.Error(t, err)

	opts.ReadPreference = "primary"
	opts.ReadConcern = "eventual"
	_, err = buildClientOptions(opts)
	assert.Error(t, err)
}

func TestBSONValueString(t *testing.T) {
	dec, err := primitive.ParseDecimal128("12.50")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, ""},
		{"null", primitive.Null{}, ""},
		{"string", "x", "x"},
		{"int64", int64(-7), "-7"},
		{"float", 1.25, "1.25"},
		{"bool", true, "true"},
		{"decimal", dec, "12.50"},
		{"datetime", primitive.NewDateTimeFromTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)), "2024-01-02T03:04:05Z"},
		{"array", bson.A{"a", int32(1)}, `["a",1]`},
		{"document", bson.D{{Key: "k", Value: "v"}}, `{"k":"v"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bsonValueString(tt.value))
		})
	}
}

func TestLookupPath(t *testing.T) {
	doc := bson.M{"a": bson.M{"b": bson.A{"x", "y"}}}

	v, ok := lookupPath(doc, []string{"a", "b", "1"})
	require.True(t, ok)
	assert.Equal(t, "y", v)

	_, ok = lookupPath(doc, []string{"a", "b", "5"})
	assert.False(t, ok)
	_, ok = lookupPath(doc, []string{"a", "c"})
	assert.False(t, ok)
	_, ok = lookupPath(doc, []string{"a", "b", "1", "z"})
	assert.False(t, ok)
}
