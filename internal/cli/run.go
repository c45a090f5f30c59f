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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/aaronlmathis/gohxl"
	"github.com/aaronlmathis/gohxl/internal/config"
	"github.com/aaronlmathis/gohxl/internal/logger"
	"github.com/aaronlmathis/gohxl/internal/s3util"
	"github.com/aaronlmathis/gohxl/readers"
	"github.com/aaronlmathis/gohxl/types"
	"github.com/aaronlmathis/gohxl/writers"
)

// IO carries the standard streams of a command.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Command describes one tool. Flags registers its own flags; Stages turns
// the loaded configuration into pipeline stages. Stages runs before the
// input is opened, so pattern errors never touch the data.
type Command struct {
	Name   string
	Short  string
	Flags  func(fs *pflag.FlagSet)
	Stages func(cfg *config.Config, log zerolog.Logger) ([]gohxl.StageFunc, error)
}

// Run executes cmd with args (excluding the program name) and returns the
// process exit status. Errors are reported on stdio.Stderr.
func Run(ctx context.Context, cmd Command, args []string, stdio IO) int {
	err := run(ctx, cmd, args, stdio)
	if errors.Is(err, pflag.ErrHelp) {
		return ExitOK
	}
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s: %v\n", cmd.Name, err)
	}
	return ExitCode(err)
}

func run(ctx context.Context, cmd Command, args []string, stdio IO) (err error) {
	fs := pflag.NewFlagSet(cmd.Name, pflag.ContinueOnError)
	fs.SetOutput(stdio.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(stdio.Stderr, "usage: %s [flags] [infile [outfile]]\n\n%s\n\n", cmd.Name, cmd.Short)
		fs.PrintDefaults()
	}
	config.RegisterFlags(fs)
	if cmd.Flags != nil {
		cmd.Flags(fs)
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return &UsageError{Err: err}
	}
	if fs.NArg() > 2 {
		return &UsageError{Err: fmt.Errorf("expected at most 2 arguments, got %d", fs.NArg())}
	}
	infile, outfile := fs.Arg(0), fs.Arg(1)

	cfg, err := config.Load(fs)
	if err != nil {
		return &UsageError{Err: err}
	}
	log := logger.New(cfg.Log, stdio.Stderr).With().Str("command", cmd.Name).Logger()

	inputFormat, err := readers.ParseFormat(cfg.Input.Format)
	if err != nil {
		return &UsageError{Err: err}
	}
	outputFormat, err := types.ParseOutputFormat(cfg.Output.Format)
	if err != nil {
		return &UsageError{Err: err}
	}

	stages, err := cmd.Stages(cfg, log)
	if err != nil {
		return err
	}

	s3cfg := s3util.Options{
		Region:         cfg.S3.Region,
		Profile:        cfg.S3.Profile,
		EndpointURL:    cfg.S3.Endpoint,
		ForcePathStyle: cfg.S3.PathStyle,
	}

	source, err := openInput(ctx, infile, inputFormat, cfg, s3cfg, stdio.Stdin)
	if err != nil {
		return fmt.Errorf("open %s: %w", displayName(infile), err)
	}
	started := false
	defer func() {
		// Execute closes the source through its row reader.
		if c, ok := source.(io.Closer); ok && !started {
			err = multierr.Append(err, c.Close())
		}
	}()

	sink, err := openOutput(ctx, outfile, outputFormat, cfg, s3cfg, stdio.Stdout)
	if err != nil {
		return fmt.Errorf("open %s: %w", displayName(outfile), err)
	}

	builder := gohxl.NewPipeline().From(source).To(sink).WithLogger(log)
	for _, stage := range stages {
		builder = builder.Then(stage)
	}
	pipeline, err := builder.Build()
	if err != nil {
		return multierr.Append(err, sink.Close())
	}

	started = true
	log.Debug().Str("input", displayName(infile)).Str("output", displayName(outfile)).Msg("running pipeline")
	return pipeline.Execute(ctx)
}

func openInput(ctx context.Context, infile string, format readers.Format, cfg *config.Config, s3cfg s3util.Options, stdin io.Reader) (gohxl.Dataset, error) {
	opts := readers.OpenOptions{
		FormatOptions: readers.FormatOptions{Format: format},
		S3: []readers.ReaderOptionS3{
			readers.WithS3Region(s3cfg.Region),
			readers.WithS3Profile(s3cfg.Profile),
			readers.WithS3Endpoint(s3cfg.EndpointURL),
			readers.WithS3PathStyle(s3cfg.ForcePathStyle),
		},
		Stdin: stdin,
	}
	if cfg.Input.Sheet != "" {
		opts.XLSX = []readers.ReaderOptionXLSX{readers.WithXLSXSheet(cfg.Input.Sheet)}
	}
	if cfg.Postgres.Query != "" {
		opts.Postgres = []readers.PostgresReaderOption{readers.WithPostgresQuery(cfg.Postgres.Query)}
	}
	return readers.Open(ctx, infile, opts)
}

func openOutput(ctx context.Context, outfile string, format types.OutputFormat, cfg *config.Config, s3cfg s3util.Options, stdout io.Writer) (gohxl.DataSink, error) {
	var loc types.OutputLocation
	switch {
	case outfile == "" && (format == types.FormatPostgres || cfg.Postgres.DSN != ""):
		if cfg.Postgres.DSN == "" || cfg.Postgres.Table == "" {
			return nil, &UsageError{Err: fmt.Errorf("postgres output needs --pg-dsn and --table")}
		}
		loc = types.PostgresLocation{DSN: cfg.Postgres.DSN, Table: cfg.Postgres.Table}
		format = types.FormatPostgres
	case outfile == "" || outfile == "-":
		loc = types.FileLocation{Path: "-", Stdout: stdout}
	default:
		l, err := types.ParseLocation(outfile, cfg.Postgres.Table, s3cfg)
		if err != nil {
			return nil, &UsageError{Err: err}
		}
		loc = l
	}

	return loc.NewSink(ctx, format, types.SinkOptions{
		Postgres: []writers.PostgresWriterOption{writers.WithCreateTable(cfg.Postgres.CreateTable)},
	})
}

func displayName(location string) string {
	if location == "" || location == "-" {
		return "stdio"
	}
	return location
}
