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

package writers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sync"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
)

// CSVWriterError wraps CSV-specific write errors with context.
type CSVWriterError struct {
	Op  string
	Err error
}

func (e *CSVWriterError) Error() string {
	return fmt.Sprintf("csv writer %s: %v", e.Op, e.Err)
}

func (e *CSVWriterError) Unwrap() error {
	return e.Err
}

// CSVWriterStats counts written tuples and batch flushes.
type CSVWriterStats struct {
	TuplesWritten int64
	FlushCount    int64
}

// CSVWriterOptions configures CSV output.
type CSVWriterOptions struct {
	Comma       rune
	UseCRLF     bool
	WriteHeader bool
	BatchSize   int
	Codec       *codec.Codec
}

// WriterOptionCSV is a functional option.
type WriterOptionCSV func(*CSVWriterOptions)

func WithComma(delim rune) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Comma = delim
	}
}

func WithWriteHeader(write bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.WriteHeader = write
	}
}

func WithCSVBatchSize(size int) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.BatchSize = size
	}
}

func WithUseCRLF(useCRLF bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.UseCRLF = useCRLF
	}
}

func WithCSVCodec(c *codec.Codec) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Codec = c
	}
}

// CSVWriter writes tuples of one schema as CSV rows with stats and batching.
// The header row holds the schema field names.
type CSVWriter struct {
	writer     *csv.Writer
	closer     io.Closer
	schema     *core.Schema
	options    CSVWriterOptions
	header     []string // pending header row, nil once written or when disabled
	rowBuf     [][]string
	stats      CSVWriterStats
	errorState bool
	mu         sync.Mutex
}

// NewCSVWriter creates a new CSV writer with extended options.
func NewCSVWriter(w io.WriteCloser, schema *core.Schema, opts ...WriterOptionCSV) (*CSVWriter, error) {
	if schema == nil || schema.Len() == 0 {
		return nil, &CSVWriterError{Op: "create", Err: fmt.Errorf("schema with at least one field is required")}
	}
	options := CSVWriterOptions{Comma: ',', WriteHeader: true}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Codec == nil {
		options.Codec = codec.New(nil)
	}

	cw := csv.NewWriter(w)
	cw.Comma = options.Comma
	cw.UseCRLF = options.UseCRLF

	writer := &CSVWriter{
		writer:  cw,
		closer:  w,
		schema:  schema,
		options: options,
		rowBuf:  make([][]string, 0, max(options.BatchSize, 1)),
	}
	if options.WriteHeader {
		writer.header = make([]string, schema.Len())
		for i, f := range schema.Fields() {
			writer.header[i] = f.Name
		}
	}
	return writer, nil
}

// Write renders t and buffers the row. Tuples are not retained.
func (c *CSVWriter) Write(ctx context.Context, t *core.Tuple) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errorState {
		return &CSVWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if err := ctx.Err(); err != nil {
		return &CSVWriterError{Op: "write", Err: err}
	}
	if !t.Schema().Equal(c.schema) {
		return &CSVWriterError{Op: "write", Err: fmt.Errorf("tuple schema %q does not match writer schema %q", t.Schema().Name(), c.schema.Name())}
	}

	row := make([]string, c.schema.Len())
	for i, f := range c.schema.Fields() {
		s, err := c.options.Codec.FormatText(f, t.Get(i))
		if err != nil {
			return &CSVWriterError{Op: "format", Err: err}
		}
		row[i] = s
	}

	if c.header != nil {
		if err := c.writer.Write(c.header); err != nil {
			c.errorState = true
			return &CSVWriterError{Op: "write_header", Err: err}
		}
		c.header = nil
	}

	c.rowBuf = append(c.rowBuf, row)
	c.stats.TuplesWritten++

	if c.options.BatchSize > 0 && len(c.rowBuf) >= c.options.BatchSize {
		if err := c.flushBufferUnsafe(); err != nil {
			c.errorState = true
			return &CSVWriterError{Op: "flush_batch", Err: err}
		}
	}

	return nil
}

// WriteAll copies every tuple of src and closes it.
func (c *CSVWriter) WriteAll(ctx context.Context, src core.TupleSource) (int64, error) {
	defer src.Close()
	var n int64
	for {
		t, err := src.Read(ctx)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, &CSVWriterError{Op: "read_source", Err: err}
		}
		if err := c.Write(ctx, t); err != nil {
			return n, err
		}
		n++
	}
}

// Flush writes buffered rows through to the underlying writer.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.flushBufferUnsafe(); err != nil {
		return &CSVWriterError{Op: "flush", Err: err}
	}
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return &CSVWriterError{Op: "flush_writer", Err: err}
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (c *CSVWriter) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// flushBufferUnsafe writes buffered rows to CSV (must hold mutex).
func (c *CSVWriter) flushBufferUnsafe() error {
	if len(c.rowBuf) == 0 {
		return nil
	}
	if err := c.writer.WriteAll(c.rowBuf); err != nil {
		return &CSVWriterError{Op: "write_rows", Err: err}
	}
	c.stats.FlushCount++
	c.rowBuf = c.rowBuf[:0]
	return nil
}

// Stats returns write statistics.
func (c *CSVWriter) Stats() CSVWriterStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
