//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoCogroup.
//
// GoCogroup is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoCogroup is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoCogroup. If not, see https://www.gnu.org/licenses/.

package readers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
)

// HTTPReaderError provides structured error information for HTTP reader operations
type HTTPReaderError struct {
	Op         string // Operation that failed (e.g., "request", "status", "decode")
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

// HTTPReaderStats holds statistics about the HTTP reader's performance
type HTTPReaderStats struct {
	RequestCount int64
	RetryCount   int64
	TuplesRead   int64
	ResponseTime time.Duration
}

// HTTPFormat selects how the response body is decoded.
type HTTPFormat string

const (
	HTTPFormatJSONLines HTTPFormat = "jsonl"
	HTTPFormatCSV       HTTPFormat = "csv"
)

// HTTPReaderOptions configures the HTTP reader
type HTTPReaderOptions struct {
	Method        string
	Headers       map[string]string
	BearerToken   string
	Username      string
	Password      string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Format        HTTPFormat
	CSVOptions    []ReaderOptionCSV
	Codec         *codec.Codec
	UserAgent     string
	Client        *http.Client
}

// ReaderOptionHTTP is a functional option for HTTPReaderOptions
type ReaderOptionHTTP func(*HTTPReaderOptions)

func WithHTTPMethod(method string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) { opts.Method = method }
}

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

func WithHTTPBasicAuth(username, password string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Username = username
		opts.Password = password
	}
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

// WithHTTPFormat selects the body format. CSV options apply to HTTPFormatCSV.
func WithHTTPFormat(format HTTPFormat, csvOptions ...ReaderOptionCSV) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Format = format
		opts.CSVOptions = csvOptions
	}
}

func WithHTTPCodec(c *codec.Codec) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) { opts.Codec = c }
}

func WithHTTPClient(client *http.Client) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) { opts.Client = client }
}

// HTTPReader implements core.TupleSource over a sorted export served by an
// HTTP endpoint. The request is made on the first Read.
type HTTPReader struct {
	url    string
	schema *core.Schema
	client *http.Client
	opts   *HTTPReaderOptions
	stats  HTTPReaderStats
	body   core.TupleSource
}

// NewHTTPReader creates a new HTTP reader with configurable options
func NewHTTPReader(url string, schema *core.Schema, options ...ReaderOptionHTTP) (*HTTPReader, error) {
	opts := &HTTPReaderOptions{
		Method:        http.MethodGet,
		Headers:       make(map[string]string),
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		Format:        HTTPFormatJSONLines,
		UserAgent:     "GoCogroup-HTTPReader/1.0",
	}
	for _, option := range options {
		option(opts)
	}
	if opts.Format != HTTPFormatJSONLines && opts.Format != HTTPFormatCSV {
		return nil, &HTTPReaderError{Op: "config", URL: url, Err: fmt.Errorf("unsupported format %q", opts.Format)}
	}
	if opts.Codec == nil {
		opts.Codec = codec.New(nil)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPReader{url: url, schema: schema, client: client, opts: opts}, nil
}

// Read implements core.TupleSource.
func (h *HTTPReader) Read(ctx context.Context) (*core.Tuple, error) {
	if h.body == nil {
		if err := h.open(ctx); err != nil {
			return nil, err
		}
	}
	t, err := h.body.Read(ctx)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &HTTPReaderError{Op: "decode", URL: h.url, Err: err}
	}
	h.stats.TuplesRead++
	return t, nil
}

func (h *HTTPReader) open(ctx context.Context) error {
	resp, err := h.do(ctx)
	if err != nil {
		return err
	}
	switch h.opts.Format {
	case HTTPFormatCSV:
		csvOpts := append([]ReaderOptionCSV{WithCSVCodec(h.opts.Codec)}, h.opts.CSVOptions...)
		r, err := NewCSVReader(resp.Body, h.schema, csvOpts...)
		if err != nil {
			resp.Body.Close()
			return &HTTPReaderError{Op: "decode", URL: h.url, Err: err}
		}
		h.body = r
	default:
		h.body = NewJSONReader(resp.Body, h.schema, h.opts.Codec)
	}
	return nil
}

// do sends the request, retrying on transport errors, 429 and 5xx responses.
func (h *HTTPReader) do(ctx context.Context) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= h.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			h.stats.RetryCount++
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.opts.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, h.opts.Method, h.url, nil)
		if err != nil {
			return nil, &HTTPReaderError{Op: "request", URL: h.url, Err: err}
		}
		for k, v := range h.opts.Headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("User-Agent", h.opts.UserAgent)
		switch {
		case h.opts.BearerToken != "":
			req.Header.Set("Authorization", "Bearer "+h.opts.BearerToken)
		case h.opts.Username != "":
			req.SetBasicAuth(h.opts.Username, h.opts.Password)
		}

		start := time.Now()
		resp, err := h.client.Do(req)
		h.stats.RequestCount++
		h.stats.ResponseTime += time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &HTTPReaderError{Op: "request", URL: h.url, Err: err}
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		resp.Body.Close()
		lastErr = &HTTPReaderError{Op: "status", StatusCode: resp.StatusCode, URL: h.url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// Close implements core.TupleSource.
func (h *HTTPReader) Close() error {
	if h.body != nil {
		return h.body.Close()
	}
	return nil
}

// Stats returns HTTP reader performance stats.
func (h *HTTPReader) Stats() HTTPReaderStats {
	return h.stats
}
