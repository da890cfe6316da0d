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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aaronlmathis/gocogroup/aggregate"
	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
)

// JSONWriterStats holds JSON write performance statistics.
type JSONWriterStats struct {
	RecordsWritten int64
	FlushCount     int64
	FlushDuration  time.Duration
	LastFlushTime  time.Time
}

// JSONWriterOptions configures JSON lines output.
type JSONWriterOptions struct {
	BatchSize    int  // Records buffered before a flush, 0 to flush only on Flush
	FlushOnWrite bool // Flush after every record
	Codec        *codec.Codec
}

// WriterOptionJSON is a functional option.
type WriterOptionJSON func(*JSONWriterOptions)

func WithJSONBatchSize(size int) WriterOptionJSON {
	return func(opts *JSONWriterOptions) { opts.BatchSize = size }
}

func WithFlushOnWrite(flush bool) WriterOptionJSON {
	return func(opts *JSONWriterOptions) { opts.FlushOnWrite = flush }
}

func WithJSONCodec(c *codec.Codec) WriterOptionJSON {
	return func(opts *JSONWriterOptions) { opts.Codec = c }
}

// JSONWriter writes line-delimited JSON: tuples as objects keyed by field
// name, or group results. readers.JSONReader reads tuple lines back.
type JSONWriter struct {
	writer   *bufio.Writer
	closer   io.Closer
	options  JSONWriterOptions
	pending  int
	stats    JSONWriterStats
	mu       sync.Mutex
	isClosed bool
}

// NewJSONWriter creates a new JSON writer for line-delimited JSON output
func NewJSONWriter(w io.WriteCloser, opts ...WriterOptionJSON) *JSONWriter {
	var options JSONWriterOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.Codec == nil {
		options.Codec = codec.New(nil)
	}
	return &JSONWriter{
		writer:  bufio.NewWriter(w),
		closer:  w,
		options: options,
	}
}

// Write writes t as one JSON object. Numbers, booleans and strings keep their
// JSON type; other fields hold their text form.
func (j *JSONWriter) Write(ctx context.Context, t *core.Tuple) error {
	record := make(map[string]any, t.Len())
	for i, f := range t.Schema().Fields() {
		v := t.Get(i)
		switch f.Type {
		case core.Int32, core.Int64, core.Float32, core.Float64, core.Boolean, core.Utf8String:
			record[f.Name] = v
		default:
			s, err := j.options.Codec.FormatText(f, v)
			if err != nil {
				return fmt.Errorf("failed to format field %s: %w", f.Name, err)
			}
			record[f.Name] = s
		}
	}
	return j.writeRecord(ctx, record)
}

// WriteResult writes one group result as {"depth", "key", "values"}.
func (j *JSONWriter) WriteResult(ctx context.Context, r aggregate.Result) error {
	key := make(map[string]any, len(r.Key))
	for i, field := range r.Fields {
		if i < len(r.Key) {
			key[field] = r.Key[i]
		}
	}
	return j.writeRecord(ctx, map[string]any{
		"depth":  r.Depth,
		"key":    key,
		"values": r.Values,
	})
}

func (j *JSONWriter) writeRecord(ctx context.Context, record map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record to JSON: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.isClosed {
		return fmt.Errorf("json writer is closed")
	}

	if _, err := j.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON data: %w", err)
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	j.stats.RecordsWritten++
	j.pending++

	if j.options.FlushOnWrite || (j.options.BatchSize > 0 && j.pending >= j.options.BatchSize) {
		return j.flushUnsafe()
	}
	return nil
}

// Flush writes buffered records to the underlying writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushUnsafe()
}

func (j *JSONWriter) flushUnsafe() error {
	start := time.Now()
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush JSON data: %w", err)
	}
	j.pending = 0
	j.stats.FlushCount++
	j.stats.LastFlushTime = time.Now()
	j.stats.FlushDuration += time.Since(start)
	return nil
}

// Stats returns write statistics.
func (j *JSONWriter) Stats() JSONWriterStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// Close flushes and closes the underlying writer. Close is idempotent.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.isClosed {
		return nil
	}
	j.isClosed = true
	if err := j.flushUnsafe(); err != nil {
		j.closer.Close()
		return err
	}
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
