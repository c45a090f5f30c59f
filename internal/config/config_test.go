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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	fs.StringP("tags", "t", "", "tags")
	fs.BoolP("reverse", "r", false, "reverse")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Empty(t, cfg.Tags)
	assert.False(t, cfg.Reverse)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	configFile := writeFile(t, dir, "gohxl.yml", `
log:
  level: debug
output:
  format: json
tags: "sector,adm1"
s3:
  region: us-east-1
postgres:
  table: counts
`)
	envFile := writeFile(t, dir, ".env", `
GOHXL_S3_REGION=eu-west-1
GOHXL_POSTGRES_DSN=postgres://localhost/hxl
GOHXL_S3_PATH_STYLE=true
UNRELATED=1
`)
	t.Setenv("GOHXL_S3_REGION", "af-south-1")
	t.Setenv("GOHXL_LOG_FORMAT", "json")

	fs := testFlags(t, "--output-format", "parquet", "-t", "org", "-r")
	cfg, err := Load(fs, WithConfigFile(configFile), WithEnvFile(envFile))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "parquet", cfg.Output.Format)
	assert.Equal(t, "org", cfg.Tags)
	assert.True(t, cfg.Reverse)
	assert.Equal(t, "af-south-1", cfg.S3.Region)
	assert.True(t, cfg.S3.PathStyle)
	assert.Equal(t, "postgres://localhost/hxl", cfg.Postgres.DSN)
	assert.Equal(t, "counts", cfg.Postgres.Table)

	_, set := os.LookupEnv("GOHXL_POSTGRES_DSN")
	assert.False(t, set, "dotenv values must not leak into the environment")
}

func TestLoad_ConfigFlag(t *testing.T) {
	dir := t.TempDir()
	configFile := writeFile(t, dir, "custom.yml", "tags: loc\n")

	cfg, err := Load(testFlags(t, "--config", configFile))
	require.NoError(t, err)
	assert.Equal(t, "loc", cfg.Tags)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(nil, WithConfigFile(filepath.Join(dir, "missing.yml")))
	assert.ErrorContains(t, err, "config file")

	_, err = Load(nil, WithEnvFile(filepath.Join(dir, "missing.env")))
	assert.ErrorContains(t, err, "env file")

	bad := writeFile(t, dir, "bad.yml", "log:\n  level: loud\n")
	_, err = Load(nil, WithConfigFile(bad))
	assert.ErrorContains(t, err, "log.level")
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "GOHXL_LOG_LEVEL", EnvName("log.level"))
	assert.Equal(t, "GOHXL_S3_PATH_STYLE", EnvName("s3.path_style"))
}

func TestLoad_QueryFlag(t *testing.T) {
	cfg, err := Load(testFlags(t, "--query", `SELECT org AS "#org" FROM orgs`))
	require.NoError(t, err)
	assert.Equal(t, `SELECT org AS "#org" FROM orgs`, cfg.Postgres.Query)
}
