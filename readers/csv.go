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
	"encoding/csv"
	"fmt"
	"io"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
)

// CSVReaderError wraps structured error information for the CSV reader.
type CSVReaderError struct {
	Op  string
	Err error
}

func (e *CSVReaderError) Error() string {
	return fmt.Sprintf("csv reader %s: %v", e.Op, e.Err)
}

func (e *CSVReaderError) Unwrap() error {
	return e.Err
}

// CSVReaderStats counts the tuples produced by a CSV reader.
type CSVReaderStats struct {
	TuplesRead int64
}

// CSVReaderOptions configures the CSV reader.
type CSVReaderOptions struct {
	Comma            rune
	Comment          rune
	LazyQuotes       bool
	TrimLeadingSpace bool
	HasHeaders       bool         // Map columns by header name instead of position
	Codec            *codec.Codec // Decodes Object columns
}

// ReaderOptionCSV allows functional customization of CSVReader.
type ReaderOptionCSV func(*CSVReaderOptions)

func WithCSVComma(r rune) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Comma = r }
}

func WithCSVComment(r rune) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Comment = r }
}

func WithCSVHasHeaders(hasHeaders bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.HasHeaders = hasHeaders }
}

func WithCSVTrimSpace(trim bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.TrimLeadingSpace = trim }
}

func WithCSVLazyQuotes(lazy bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.LazyQuotes = lazy }
}

func WithCSVCodec(c *codec.Codec) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Codec = c }
}

// CSVReader implements core.TupleSource for CSV text. Rows must already be in
// the source's sort order.
type CSVReader struct {
	reader  *csv.Reader
	closer  io.Closer
	schema  *core.Schema
	columns []int // columns[i] is the CSV column of schema field i
	stats   CSVReaderStats
	opts    CSVReaderOptions
}

// NewCSVReader creates a CSVReader with default or overridden options. With
// headers every schema field must have a column; extra columns are ignored.
func NewCSVReader(r io.ReadCloser, schema *core.Schema, options ...ReaderOptionCSV) (*CSVReader, error) {
	opts := CSVReaderOptions{
		Comma:            ',',
		HasHeaders:       true,
		TrimLeadingSpace: true,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.New(nil)
	}

	csvReader := csv.NewReader(r)
	csvReader.Comma = opts.Comma
	csvReader.Comment = opts.Comment
	csvReader.LazyQuotes = opts.LazyQuotes
	csvReader.TrimLeadingSpace = opts.TrimLeadingSpace
	csvReader.ReuseRecord = true

	reader := &CSVReader{
		reader:  csvReader,
		closer:  r,
		schema:  schema,
		columns: make([]int, schema.Len()),
		opts:    opts,
	}
	for i := range reader.columns {
		reader.columns[i] = i
	}

	if opts.HasHeaders {
		headers, err := csvReader.Read()
		if err != nil {
			return nil, &CSVReaderError{Op: "read_headers", Err: err}
		}
		index := make(map[string]int, len(headers))
		for i, h := range headers {
			index[h] = i
		}
		for i, f := range schema.Fields() {
			col, ok := index[f.Name]
			if !ok {
				return nil, &CSVReaderError{Op: "read_headers", Err: fmt.Errorf("missing column %q", f.Name)}
			}
			reader.columns[i] = col
		}
	} else {
		csvReader.FieldsPerRecord = schema.Len()
	}

	return reader, nil
}

// Read implements core.TupleSource.
func (c *CSVReader) Read(ctx context.Context) (*core.Tuple, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CSVReaderError{Op: "read", Err: err}
	}

	record, err := c.reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &CSVReaderError{Op: "read_record", Err: err}
	}

	t := core.NewTuple(c.schema)
	for i, f := range c.schema.Fields() {
		col := c.columns[i]
		if col >= len(record) {
			return nil, &CSVReaderError{Op: "read_record", Err: fmt.Errorf("row has no column %d for field %q", col, f.Name)}
		}
		v, err := c.opts.Codec.ParseText(f, record[col])
		if err != nil {
			line, _ := c.reader.FieldPos(col)
			return nil, &CSVReaderError{Op: fmt.Sprintf("parse line %d", line), Err: err}
		}
		t.Set(i, v)
	}

	c.stats.TuplesRead++

	return t, nil
}

// Close implements core.TupleSource.
func (c *CSVReader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Stats returns CSV reader performance stats.
func (c *CSVReader) Stats() CSVReaderStats {
	return c.stats
}
