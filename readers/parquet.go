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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
)

// schemaMetadataKey matches the metadata key written by writers.ParquetWriter.
const schemaMetadataKey = "gocogroup.schema"

// ParquetReaderError provides structured error information for parquet reader operations
type ParquetReaderError struct {
	Op  string // Operation that failed (e.g., "read", "load_batch", "open_file", "schema")
	Err error  // Underlying error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// ParquetReader implements core.TupleSource over a Parquet run file.
// Columns are matched to schema fields by name; extra columns are not read.
type ParquetReader struct {
	fileHandle   *os.File
	reader       *file.Reader
	recordReader pqarrow.RecordReader
	currentBatch arrow.Record
	batchIdx     int
	columns      []int // batch column of each schema field
	schema       *core.Schema
	codec        *codec.Codec
	stats        ReaderStats
	opts         *ParquetReaderOptions
}

// ReaderStats holds statistics about the Parquet reader's performance
type ReaderStats struct {
	TuplesRead   int64
	BatchesRead  int64
	ReadDuration time.Duration
	LastReadTime time.Time
}

// ParquetReaderOptions configures the Parquet reader
type ParquetReaderOptions struct {
	BatchSize    int64        // Rows per batch
	ParallelRead bool         // Decode columns in parallel
	Codec        *codec.Codec // Deserializes Object fields
}

// ReaderOption represents a configuration function
type ReaderOption func(*ParquetReaderOptions)

// WithBatchSize sets the number of rows decoded per batch.
func WithBatchSize(size int64) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.BatchSize = size
	}
}

// WithParallelRead enables parallel column decoding.
func WithParallelRead(parallel bool) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.ParallelRead = parallel
	}
}

// WithCodec sets the codec used to deserialize Object fields.
func WithCodec(c *codec.Codec) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.Codec = c
	}
}

// NewParquetReader opens a Parquet file holding tuples of schema.
func NewParquetReader(filename string, schema *core.Schema, options ...ReaderOption) (*ParquetReader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, &ParquetReaderError{Op: "open_file", Err: err}
	}
	r, err := NewParquetReaderFrom(f, schema, options...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.fileHandle = f
	return r, nil
}

// NewParquetReaderFrom reads Parquet data from src. Close does not close src.
func NewParquetReaderFrom(src parquet.ReaderAtSeeker, schema *core.Schema, options ...ReaderOption) (*ParquetReader, error) {
	opts := (&ParquetReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	parquetReader, err := file.NewParquetReader(src)
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_reader", Err: err}
	}
	props := pqarrow.ArrowReadProperties{BatchSize: opts.BatchSize, Parallel: opts.ParallelRead}
	arrowReader, err := pqarrow.NewFileReader(parquetReader, props, memory.NewGoAllocator())
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_arrow_reader", Err: err}
	}
	arrowSchema, err := arrowReader.Schema()
	if err != nil {
		return nil, &ParquetReaderError{Op: "get_schema", Err: err}
	}

	// Project the schema fields in file order; batch columns are mapped by name.
	var colIndices []int
	for i, field := range arrowSchema.Fields() {
		if schema.Has(field.Name) {
			colIndices = append(colIndices, i)
		}
	}
	if len(colIndices) != schema.Len() {
		return nil, &ParquetReaderError{Op: "column_projection", Err: fmt.Errorf("file does not carry every field of schema %s", schema)}
	}

	recordReader, err := arrowReader.GetRecordReader(context.Background(), colIndices, nil)
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_record_reader", Err: err}
	}

	return &ParquetReader{
		reader:       parquetReader,
		recordReader: recordReader,
		schema:       schema,
		codec:        opts.Codec,
		opts:         opts,
	}, nil
}

func (opts *ParquetReaderOptions) withDefaults() *ParquetReaderOptions {
	result := &ParquetReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.Codec == nil {
		result.Codec = codec.New(nil)
	}
	return result
}

// Read returns the next tuple, or io.EOF at the end of the file.
func (p *ParquetReader) Read(ctx context.Context) (*core.Tuple, error) {
	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
		p.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &ParquetReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	for p.currentBatch == nil || p.batchIdx >= int(p.currentBatch.NumRows()) {
		if err := p.loadNextBatch(); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, &ParquetReaderError{Op: "load_batch", Err: err}
		}
	}

	t, err := p.extractTuple(p.currentBatch, p.batchIdx)
	if err != nil {
		return nil, &ParquetReaderError{Op: "read", Err: err}
	}
	p.batchIdx++
	p.stats.TuplesRead++
	return t, nil
}

// Close releases resources and closes the file opened by NewParquetReader.
func (p *ParquetReader) Close() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}
	if p.recordReader != nil {
		p.recordReader.Release()
		p.recordReader = nil
	}
	if p.fileHandle != nil {
		err := p.fileHandle.Close()
		p.fileHandle = nil
		return err
	}
	return nil
}

// NumRows returns the number of rows in the file.
func (p *ParquetReader) NumRows() int64 {
	return p.reader.NumRows()
}

// SchemaName returns the tuple schema name recorded by the writer, if any.
func (p *ParquetReader) SchemaName() (string, bool) {
	md := p.reader.MetaData().KeyValueMetadata()
	if md == nil {
		return "", false
	}
	v := md.FindValue(schemaMetadataKey)
	if v == nil {
		return "", false
	}
	return *v, true
}

// Stats returns statistics about the Parquet reader's performance
func (p *ParquetReader) Stats() ReaderStats {
	return p.stats
}

func (p *ParquetReader) loadNextBatch() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}
	rec, err := p.recordReader.Read()
	if err != nil {
		return err
	}
	if rec == nil {
		return io.EOF
	}
	rec.Retain()
	if p.columns == nil {
		p.columns = make([]int, p.schema.Len())
		batchSchema := rec.Schema()
		for i, f := range p.schema.Fields() {
			idx := batchSchema.FieldIndices(f.Name)
			if len(idx) == 0 {
				rec.Release()
				return fmt.Errorf("column %q missing from batch", f.Name)
			}
			p.columns[i] = idx[0]
		}
	}
	p.currentBatch = rec
	p.batchIdx = 0
	p.stats.BatchesRead++
	return nil
}

func (p *ParquetReader) extractTuple(record arrow.Record, row int) (*core.Tuple, error) {
	t := core.NewTuple(p.schema)
	for i, f := range p.schema.Fields() {
		v, err := p.extractValue(f, record.Column(p.columns[i]), row)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		t.Set(i, v)
	}
	return t, nil
}

func (p *ParquetReader) extractValue(f core.Field, col arrow.Array, row int) (any, error) {
	if col.IsNull(row) {
		return nil, fmt.Errorf("null values are not supported")
	}
	switch arr := col.(type) {
	case *array.Int32:
		if f.Type == core.Int32 || f.Type == core.Enum {
			return arr.Value(row), nil
		}
	case *array.Int64:
		if f.Type == core.Int64 {
			return arr.Value(row), nil
		}
	case *array.Float32:
		if f.Type == core.Float32 {
			return arr.Value(row), nil
		}
	case *array.Float64:
		if f.Type == core.Float64 {
			return arr.Value(row), nil
		}
	case *array.Boolean:
		if f.Type == core.Boolean {
			return arr.Value(row), nil
		}
	case *array.String:
		switch f.Type {
		case core.Utf8String:
			return strings.Clone(arr.Value(row)), nil
		case core.Enum:
			sym := arr.Value(row)
			for i, s := range f.Symbols {
				if s == sym {
					return int32(i), nil
				}
			}
			return nil, fmt.Errorf("unknown enum symbol %q", sym)
		}
	case *array.Binary:
		switch f.Type {
		case core.Bytes:
			return bytes.Clone(arr.Value(row)), nil
		case core.Object:
			return p.codec.UnmarshalObject(f, arr.Value(row))
		}
	}
	return nil, fmt.Errorf("column type %s cannot hold %s", col.DataType(), f.TypeString())
}
