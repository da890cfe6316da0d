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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
)

// Package writers persists sorted runs of one source so they can be merged later.
//
// A run file holds the tuples of a single schema in sort order. Field types map
// to Parquet columns as follows: numeric and boolean fields keep their width,
// strings are UTF8 byte arrays, bytes are plain byte arrays, enums are written
// as their symbol and objects as their serialized payload.

// SchemaMetadataKey is the Arrow schema metadata key carrying the tuple schema name.
const SchemaMetadataKey = "gocogroup.schema"

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "open_file", "append_value", "write_batch")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriter writes tuples of one schema to a Parquet file in batches.
type ParquetWriter struct {
	writer   *pqarrow.FileWriter
	schema   *core.Schema
	arrow    *arrow.Schema
	builder  *array.RecordBuilder
	codec    *codec.Codec
	buffered int64
	closed   bool
	failed   bool // set when a tuple was partially appended
	stats    WriterStats
	opts     *ParquetWriterOptions
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of tuples to buffer before writing a record batch
	Compression  compress.Compression // Compression algorithm
	RowGroupSize int64                // Maximum rows per row group, 0 for the library default
	Codec        *codec.Codec         // Serializes Object fields
	Metadata     map[string]string    // Extra Arrow schema metadata
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	TuplesWritten  int64
	BatchesWritten int64
	FlushDuration  time.Duration
	LastFlushTime  time.Time
}

// WriterOption represents a configuration function
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of tuples per record batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the compression codec.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithRowGroupSize sets the maximum number of rows per row group.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithCodec sets the codec used to serialize Object fields.
func WithCodec(c *codec.Codec) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Codec = c
	}
}

// WithMetadata adds Arrow schema metadata to the file.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// NewParquetWriter creates the file and a writer for tuples of schema.
func NewParquetWriter(filename string, schema *core.Schema, options ...WriterOption) (*ParquetWriter, error) {
	dir := filepath.Dir(filename)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &ParquetWriterError{Op: "create_directory", Err: err}
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, &ParquetWriterError{Op: "open_file", Err: err}
	}
	w, err := NewParquetWriterTo(f, schema, options...)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// NewParquetWriterTo creates a writer streaming to out. Close closes out when it
// is an io.Closer.
func NewParquetWriterTo(out io.Writer, schema *core.Schema, options ...WriterOption) (*ParquetWriter, error) {
	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	arrowSchema, err := ArrowSchema(schema, opts.Metadata)
	if err != nil {
		return nil, &ParquetWriterError{Op: "schema", Err: err}
	}

	props := []parquet.WriterProperty{parquet.WithCompression(opts.Compression)}
	if opts.RowGroupSize > 0 {
		props = append(props, parquet.WithMaxRowGroupLength(opts.RowGroupSize))
	}
	writer, err := pqarrow.NewFileWriter(arrowSchema, out, parquet.NewWriterProperties(props...), pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, &ParquetWriterError{Op: "create_writer", Err: err}
	}

	return &ParquetWriter{
		writer:  writer,
		schema:  schema,
		arrow:   arrowSchema,
		builder: array.NewRecordBuilder(memory.NewGoAllocator(), arrowSchema),
		codec:   opts.Codec,
		opts:    opts,
	}, nil
}

func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.Compression == compress.Codecs.Uncompressed {
		result.Compression = compress.Codecs.Snappy
	}
	if result.Codec == nil {
		result.Codec = codec.New(nil)
	}
	return result
}

// ArrowSchema maps a tuple schema to the Arrow schema of its run files.
func ArrowSchema(s *core.Schema, metadata map[string]string) (*arrow.Schema, error) {
	fields := make([]arrow.Field, s.Len())
	for i, f := range s.Fields() {
		var dt arrow.DataType
		switch f.Type {
		case core.Int32:
			dt = arrow.PrimitiveTypes.Int32
		case core.Int64:
			dt = arrow.PrimitiveTypes.Int64
		case core.Float32:
			dt = arrow.PrimitiveTypes.Float32
		case core.Float64:
			dt = arrow.PrimitiveTypes.Float64
		case core.Boolean:
			dt = arrow.FixedWidthTypes.Boolean
		case core.Utf8String, core.Enum:
			dt = arrow.BinaryTypes.String
		case core.Bytes, core.Object:
			dt = arrow.BinaryTypes.Binary
		default:
			return nil, fmt.Errorf("field %s: unsupported type %s", f.Name, f.Type)
		}
		fields[i] = arrow.Field{Name: f.Name, Type: dt}
	}
	keys := []string{SchemaMetadataKey}
	values := []string{s.Name()}
	for k, v := range metadata {
		if k == SchemaMetadataKey {
			continue
		}
		keys = append(keys, k)
		values = append(values, v)
	}
	md := arrow.NewMetadata(keys, values)
	return arrow.NewSchema(fields, &md), nil
}

// Write buffers one tuple and writes a record batch when the buffer is full.
func (p *ParquetWriter) Write(ctx context.Context, t *core.Tuple) error {
	if p.closed {
		return &ParquetWriterError{Op: "write", Err: errors.New("parquet writer is closed")}
	}
	if p.failed {
		return &ParquetWriterError{Op: "write", Err: errors.New("writer is in error state")}
	}
	if err := ctx.Err(); err != nil {
		return &ParquetWriterError{Op: "write", Err: err}
	}
	if !t.Schema().Equal(p.schema) {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("tuple of schema %s written to a %s run", t.Schema().Name(), p.schema.Name())}
	}
	for i, f := range p.schema.Fields() {
		if err := p.appendValue(i, f, t.Get(i)); err != nil {
			p.failed = i > 0
			return &ParquetWriterError{Op: "append_value", Err: err}
		}
	}
	p.buffered++
	p.stats.TuplesWritten++
	if p.buffered >= p.opts.BatchSize {
		return p.Flush()
	}
	return nil
}

// WriteAll writes every tuple of src and returns how many were written.
func (p *ParquetWriter) WriteAll(ctx context.Context, src core.TupleSource) (int64, error) {
	var n int64
	for {
		t, err := src.Read(ctx)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := p.Write(ctx, t); err != nil {
			return n, err
		}
		n++
	}
}

func (p *ParquetWriter) appendValue(i int, f core.Field, v any) error {
	var ok bool
	switch b := p.builder.Field(i).(type) {
	case *array.Int32Builder:
		var x int32
		if x, ok = v.(int32); ok {
			b.Append(x)
		}
	case *array.Int64Builder:
		var x int64
		if x, ok = v.(int64); ok {
			b.Append(x)
		}
	case *array.Float32Builder:
		var x float32
		if x, ok = v.(float32); ok {
			b.Append(x)
		}
	case *array.Float64Builder:
		var x float64
		if x, ok = v.(float64); ok {
			b.Append(x)
		}
	case *array.BooleanBuilder:
		var x bool
		if x, ok = v.(bool); ok {
			b.Append(x)
		}
	case *array.StringBuilder:
		if f.Type == core.Enum {
			var x int32
			if x, ok = v.(int32); ok {
				if x < 0 || int(x) >= len(f.Symbols) {
					return fmt.Errorf("field %s: enum ordinal %d out of range", f.Name, x)
				}
				b.Append(f.Symbols[x])
			}
			break
		}
		var x string
		if x, ok = v.(string); ok {
			b.Append(x)
		}
	case *array.BinaryBuilder:
		if f.Type == core.Object {
			payload, err := p.codec.MarshalObject(f, v)
			if err != nil {
				return err
			}
			b.Append(payload)
			return nil
		}
		var x []byte
		if x, ok = v.([]byte); ok {
			b.Append(x)
		}
	default:
		return fmt.Errorf("field %s: unsupported builder %T", f.Name, b)
	}
	if !ok {
		return &core.EncodeError{Field: f.Name, Err: fmt.Errorf("expected %s, got %T", f.TypeString(), v)}
	}
	return nil
}

// Flush writes the buffered tuples as one record batch.
func (p *ParquetWriter) Flush() error {
	if p.buffered == 0 {
		return nil
	}
	start := time.Now()
	rec := p.builder.NewRecord()
	defer rec.Release()
	if err := p.writer.Write(rec); err != nil {
		return &ParquetWriterError{Op: "write_batch", Err: err}
	}
	p.buffered = 0
	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	return nil
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	return p.stats
}

// Close flushes buffered tuples and finishes the file.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	var flushErr error
	if !p.failed {
		flushErr = p.Flush()
	}
	p.builder.Release()
	if err := p.writer.Close(); err != nil && flushErr == nil {
		flushErr = &ParquetWriterError{Op: "close_writer", Err: err}
	}
	return flushErr
}
