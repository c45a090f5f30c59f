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
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresReader_AliasedColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	query := `SELECT sector AS "#sector", affected AS "#affected_num", notes FROM activities`
	mock.ExpectQuery(regexp.QuoteMeta(query)).WillReturnRows(
		sqlmock.NewRows([]string{"#sector", "#affected_num", "notes"}).
			AddRow("WASH", int64(100), nil).
			AddRow([]byte("Health"), 2.5, "ok"))

	reader, err := NewPostgresReader(context.Background(), WithPostgresDB(db), WithPostgresQuery(query))
	require.NoError(t, err)

	cols := reader.Columns()
	require.Len(t, cols, 3)
	assert.Equal(t, "#sector", cols[0].DisplayTag())
	assert.False(t, cols[2].IsTagged())
	assert.Equal(t, "notes", cols[2].Header())

	assert.Equal(t, [][]string{
		{"WASH", "100", ""},
		{"Health", "2.5", "ok"},
	}, readValues(t, reader))
	assert.Equal(t, int64(1), reader.Stats().NullCells)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReader_TagMap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WithArgs("P01").WillReturnRows(
		sqlmock.NewRows([]string{"org", "adm1"}).AddRow("UNICEF", "P01"))

	reader, err := NewPostgresReader(context.Background(),
		WithPostgresDB(db),
		WithPostgresQuery("SELECT org, adm1 FROM activities WHERE adm1 = $1", "P01"),
		WithPostgresTagMap(map[string]string{"org": "#org", "adm1": "#adm1+code"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"#org", "#adm1+code"}, displayTags(reader.Columns()))
	assert.Equal(t, "adm1", reader.Columns()[1].Header())
	assert.Equal(t, [][]string{{"UNICEF", "P01"}}, readValues(t, reader))
}

func TestPostgresReader_NoTaggedColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"org"}).AddRow("x"))

	_, err = NewPostgresReader(context.Background(), WithPostgresDB(db), WithPostgresQuery("SELECT org FROM t"))
	assert.True(t, errors.Is(err, ErrNoHashtagRow))
}

func TestPostgresReader_Cursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	columns := []string{"#org"}
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DECLARE orgs CURSOR FOR SELECT org AS "#org" FROM t`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FETCH 2 FROM orgs")).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("A").AddRow("B"))
	mock.ExpectQuery(regexp.QuoteMeta("FETCH 2 FROM orgs")).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("C"))
	mock.ExpectRollback()

	reader, err := NewPostgresReader(context.Background(),
		WithPostgresDB(db),
		WithPostgresQuery(`SELECT org AS "#org" FROM t`),
		WithPostgresBatchSize(2),
		WithPostgresCursor(true, "orgs"))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"A"}, {"B"}, {"C"}}, readValues(t, reader))
	assert.Equal(t, int64(2), reader.Stats().BatchesFetched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReader_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewPostgresReader(ctx, WithPostgresQuery("SELECT 1"))
	var pgErr *PostgresReaderError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "validate", pgErr.Op)

	_, err = NewPostgresReader(ctx, WithPostgresDSN("postgres://localhost/hxl"))
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "validate", pgErr.Op)

	_, err = NewPostgresReader(ctx,
		WithPostgresDSN("postgres://localhost/hxl"),
		WithPostgresQuery("SELECT 1"),
		WithPostgresCursor(true, "bad; DROP TABLE x"))
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "validate_cursor", pgErr.Op)
}

func TestSQLValueString(t *testing.T) {
	assert.Equal(t, "", sqlValueString(nil))
	assert.Equal(t, "abc", sqlValueString([]byte("abc")))
	assert.Equal(t, "-3", sqlValueString(int64(-3)))
	assert.Equal(t, "0.1", sqlValueString(0.1))
	assert.Equal(t, "false", sqlValueString(false))
}
