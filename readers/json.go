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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
)

// JSONReader implements core.TupleSource for JSON lines, one object per tuple
// keyed by field name. Bytes, Object and Enum fields hold their text form.
type JSONReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	schema  *core.Schema
	codec   *codec.Codec
	line    int
}

// NewJSONReader creates a new JSON reader for line-delimited JSON. A nil codec
// reads schemas without Object fields.
func NewJSONReader(r io.ReadCloser, schema *core.Schema, c *codec.Codec) *JSONReader {
	if c == nil {
		c = codec.New(nil)
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &JSONReader{
		scanner: scanner,
		closer:  r,
		schema:  schema,
		codec:   c,
	}
}

// Read implements core.TupleSource. Blank lines are skipped.
func (j *JSONReader) Read(ctx context.Context) (*core.Tuple, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		j.line++
		line := bytes.TrimSpace(j.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		t, err := j.decode(line)
		if err != nil {
			return nil, fmt.Errorf("json reader line %d: %w", j.line, err)
		}
		return t, nil
	}
}

func (j *JSONReader) decode(line []byte) (*core.Tuple, error) {
	var record map[string]any
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}

	t := core.NewTuple(j.schema)
	for i, f := range j.schema.Fields() {
		raw, ok := record[f.Name]
		if !ok || raw == nil {
			return nil, fmt.Errorf("field %s: missing or null", f.Name)
		}
		var (
			v   any
			err error
		)
		switch x := raw.(type) {
		case string:
			v, err = j.codec.ParseText(f, x)
		case json.Number:
			v, err = j.codec.ParseText(f, x.String())
		case bool:
			if f.Type != core.Boolean {
				err = fmt.Errorf("field %s: unexpected boolean", f.Name)
			}
			v = x
		default:
			err = fmt.Errorf("field %s: unexpected %T", f.Name, raw)
		}
		if err != nil {
			return nil, err
		}
		t.Set(i, v)
	}
	return t, nil
}

// Close implements core.TupleSource.
func (j *JSONReader) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
