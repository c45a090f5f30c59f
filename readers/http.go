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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/aaronlmathis/gohxl/core"
)

// HTTPReaderError provides structured error information for HTTP reader operations
type HTTPReaderError struct {
	Op         string // Operation that failed (e.g., "request", "status_check", "read_response")
	StatusCode int    // HTTP status code if applicable
	URL        string // URL being accessed when error occurred
	Err        error  // Underlying error
}

func (e *HTTPReaderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("http reader %s [%d] %s: %v", e.Op, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("http reader %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *HTTPReaderError) Unwrap() error {
	return e.Err
}

// HTTPReaderStats holds statistics about the HTTP fetch
type HTTPReaderStats struct {
	RequestCount  int64         // Total HTTP requests made
	RetryCount    int64         // Number of retries performed
	RateLimitHits int64         // Number of 429 responses
	BytesRead     int64         // Total bytes read
	FetchDuration time.Duration // Time spent fetching, retries included
	ContentType   string
}

// HTTPReaderOptions configures the HTTP reader
type HTTPReaderOptions struct {
	Headers          map[string]string // Additional headers
	BearerToken      string            // Sent as an Authorization header when set
	Timeout          time.Duration     // Request timeout
	RetryAttempts    int               // Number of retry attempts
	RetryDelay       time.Duration     // Base delay between retries
	MaxResponseSize  int64             // Maximum response size in bytes
	ValidStatusCodes []int             // Valid HTTP status codes
	UserAgent        string            // User agent string
	CustomClient     *http.Client      // Custom HTTP client
	Formats          FormatOptions
}

// ReaderOptionHTTP is a functional option for HTTPReaderOptions
type ReaderOptionHTTP func(*HTTPReaderOptions)

func WithHTTPHeaders(headers map[string]string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

func WithHTTPBearerToken(token string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) { opts.BearerToken = token }
}

func WithHTTPTimeout(timeout time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) { opts.Timeout = timeout }
}

func WithHTTPRetries(attempts int, delay time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.RetryAttempts = attempts
		opts.RetryDelay = delay
	}
}

func WithHTTPMaxResponseSize(size int64) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) { opts.MaxResponseSize = size }
}

func WithHTTPUserAgent(userAgent string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) { opts.UserAgent = userAgent }
}

func WithHTTPClient(client *http.Client) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) { opts.CustomClient = client }
}

// WithHTTPFormatOptions sets the format and per-format options of the
// response. The format is detected from the URL and content type when empty.
func WithHTTPFormatOptions(formats FormatOptions) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) { opts.Formats = formats }
}

// HTTPReader implements core.Dataset for an HXL resource fetched over HTTP.
// The body is fetched once, with retries, and parsed by the reader for its format.
type HTTPReader struct {
	url     string
	client  *http.Client
	opts    *HTTPReaderOptions
	dataset core.Dataset
	stats   HTTPReaderStats
}

// NewHTTPReader fetches url and resolves its columns.
func NewHTTPReader(ctx context.Context, url string, options ...ReaderOptionHTTP) (*HTTPReader, error) {
	opts := &HTTPReaderOptions{
		Headers:          make(map[string]string),
		Timeout:          30 * time.Second,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
		MaxResponseSize:  100 * 1024 * 1024, // 100MB
		ValidStatusCodes: []int{http.StatusOK},
		UserAgent:        "GoHXL-HTTPReader/1.0",
	}

	for _, option := range options {
		option(opts)
	}

	client := opts.CustomClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	hr := &HTTPReader{url: url, client: client, opts: opts}

	start := time.Now()
	data, err := hr.executeRequestWithRetry(ctx)
	hr.stats.FetchDuration = time.Since(start)
	if err != nil {
		return nil, err
	}

	format := opts.Formats.Format
	if format == FormatAuto {
		format = DetectFormat(url, hr.stats.ContentType)
	}

	dataset, err := openStream(io.NopCloser(bytes.NewReader(data)), format, opts.Formats)
	if err != nil {
		return nil, &HTTPReaderError{Op: "parse", URL: url, Err: err}
	}
	hr.dataset = dataset
	return hr, nil
}

// Columns implements the core.Dataset interface.
func (hr *HTTPReader) Columns() []core.Column {
	return hr.dataset.Columns()
}

// Rows implements the core.Dataset interface.
func (hr *HTTPReader) Rows(ctx context.Context) (core.RowReader, error) {
	return hr.dataset.Rows(ctx)
}

// Stats returns statistics about the fetch
func (hr *HTTPReader) Stats() HTTPReaderStats {
	return hr.stats
}

// executeRequestWithRetry executes HTTP request with retry logic
func (hr *HTTPReader) executeRequestWithRetry(ctx context.Context) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= hr.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := hr.opts.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			hr.stats.RetryCount++
		}

		data, err := hr.executeRequest(ctx)
		if err == nil {
			return data, nil
		}

		lastErr = err

		var httpErr *HTTPReaderError
		if errors.As(err, &httpErr) {
			if httpErr.StatusCode == http.StatusTooManyRequests {
				hr.stats.RateLimitHits++
				continue
			}
			if httpErr.StatusCode >= 500 || httpErr.Op == "request" {
				continue
			}
			// Don't retry client errors (4xx except 429)
			break
		}
	}

	return nil, lastErr
}

// executeRequest executes a single HTTP request
func (hr *HTTPReader) executeRequest(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hr.url, nil)
	if err != nil {
		return nil, &HTTPReaderError{Op: "create_request", URL: hr.url, Err: err}
	}

	req.Header.Set("User-Agent", hr.opts.UserAgent)
	for k, v := range hr.opts.Headers {
		req.Header.Set(k, v)
	}
	if hr.opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+hr.opts.BearerToken)
	}

	hr.stats.RequestCount++
	resp, err := hr.client.Do(req)
	if err != nil {
		return nil, &HTTPReaderError{Op: "request", URL: hr.url, Err: err}
	}
	defer resp.Body.Close()

	if !slices.Contains(hr.opts.ValidStatusCodes, resp.StatusCode) {
		return nil, &HTTPReaderError{
			Op:         "status_check",
			URL:        hr.url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	// Read response body with size limit
	reader := io.LimitReader(resp.Body, hr.opts.MaxResponseSize)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &HTTPReaderError{Op: "read_response", URL: hr.url, Err: err}
	}

	hr.stats.BytesRead += int64(len(data))
	hr.stats.ContentType = resp.Header.Get("Content-Type")
	return data, nil
}
