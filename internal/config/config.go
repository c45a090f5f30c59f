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

// Package config loads settings for the command-line tools.
//
// Sources are layered from lowest to highest precedence: built-in defaults,
// an optional gohxl.yml, an optional .env file, GOHXL_* environment
// variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/aaronlmathis/gohxl/internal/logger"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GOHXL"

// Config is the merged configuration of a command-line tool.
type Config struct {
	Log      logger.Config  `mapstructure:"log"`
	Input    InputConfig    `mapstructure:"input"`
	Output   OutputConfig   `mapstructure:"output"`
	Tags     string         `mapstructure:"tags"`
	Reverse  bool           `mapstructure:"reverse"`
	S3       S3Config       `mapstructure:"s3"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// InputConfig selects how the input is decoded.
type InputConfig struct {
	Format string `mapstructure:"format"`
	Sheet  string `mapstructure:"sheet"`
}

// OutputConfig selects how the output is encoded.
type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// S3Config configures S3 input and output.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Profile   string `mapstructure:"profile"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// PostgresConfig configures PostgreSQL output, and the query run against a
// postgres:// input.
type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	CreateTable bool   `mapstructure:"create_table"`
	Query       string `mapstructure:"query"`
}

var defaults = map[string]any{
	"log.level":             "warn",
	"log.format":            logger.FormatConsole,
	"log.no_color":          false,
	"input.format":          "",
	"input.sheet":           "",
	"output.format":         "",
	"tags":                  "",
	"reverse":               false,
	"s3.region":             "",
	"s3.profile":            "",
	"s3.endpoint":           "",
	"s3.path_style":         false,
	"postgres.dsn":          "",
	"postgres.table":        "",
	"postgres.create_table": false,
	"postgres.query":        "",
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":     "log.level",
	"log-format":    "log.format",
	"no-color":      "log.no_color",
	"input-format":  "input.format",
	"sheet":         "input.sheet",
	"output-format": "output.format",
	"tags":          "tags",
	"reverse":       "reverse",
	"s3-region":     "s3.region",
	"s3-profile":    "s3.profile",
	"s3-endpoint":   "s3.endpoint",
	"s3-path-style": "s3.path_style",
	"pg-dsn":        "postgres.dsn",
	"table":         "postgres.table",
	"create-table":  "postgres.create_table",
	"query":         "postgres.query",
}

// RegisterFlags adds the flags shared by every tool to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "configuration file (default ./gohxl.yml)")
	fs.String("env-file", "", "dotenv file (default ./.env)")
	fs.String("log-level", "", "log level: trace, debug, info, warn, error")
	fs.String("log-format", "", "log format: console or json")
	fs.Bool("no-color", false, "disable colored console logs")
	fs.String("input-format", "", "input format: csv, tsv, json, jsonl, xlsx, parquet (default: detect)")
	fs.String("sheet", "", "worksheet to read from an Excel workbook")
	fs.String("output-format", "", "output format: csv, tsv, json, objects, parquet, postgres (default: detect)")
	fs.String("s3-region", "", "AWS region for s3:// locations")
	fs.String("s3-profile", "", "AWS profile for s3:// locations")
	fs.String("s3-endpoint", "", "custom S3 endpoint")
	fs.Bool("s3-path-style", false, "use path-style S3 addressing")
	fs.String("pg-dsn", "", "PostgreSQL DSN for postgres output")
	fs.String("table", "", "PostgreSQL table for postgres output")
	fs.Bool("create-table", false, "create the PostgreSQL table if missing")
	fs.String("query", "", "SQL query for a postgres:// input")
}

// LoaderConfig holds optional file overrides.
type LoaderConfig struct {
	ConfigFile string
	EnvFile    string
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithConfigFile sets an explicit config file path. A missing explicit file
// is an error.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path. A missing explicit file is an
// error.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// Load merges every configuration source. fs may be nil; flags it defines
// that appear in flagKeys are bound, and its --config and --env-file flags
// override the loader options.
func Load(fs *pflag.FlagSet, opts ...LoaderOption) (*Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			lc.ConfigFile = f.Value.String()
		}
		if f := fs.Lookup("env-file"); f != nil && f.Value.String() != "" {
			lc.EnvFile = f.Value.String()
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	configFile, err := resolveFile(lc.ConfigFile, defaultConfigFiles())
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	envFile, err := resolveFile(lc.EnvFile, []string{".env"})
	if err != nil {
		return nil, fmt.Errorf("env file: %w", err)
	}
	if envFile != "" {
		values, err := dotenvValues(v, envFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, fmt.Errorf("failed to merge env file %s: %w", envFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Log.ApplyDefaults()
	if err := cfg.Log.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfigFiles() []string {
	paths := []string{"gohxl.yml", "gohxl.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "gohxl", "gohxl.yml"))
	}
	return paths
}

// resolveFile returns explicit when set, checking that it exists, or the
// first existing search path.
func resolveFile(explicit string, search []string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	for _, path := range search {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", nil
}

// dotenvValues reads a dotenv file without touching the process environment
// and returns the GOHXL_* entries as a nested map keyed like the config file.
func dotenvValues(v *viper.Viper, path string) (map[string]any, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	for _, key := range v.AllKeys() {
		value, ok := env[EnvName(key)]
		if !ok {
			continue
		}
		parts := strings.Split(key, ".")
		m := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := m[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[part] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = value
	}
	return out, nil
}

// EnvName is the environment variable read for a configuration key,
// e.g. GOHXL_LOG_LEVEL for log.level.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
