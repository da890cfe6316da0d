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

// Package partition assigns tuples to partitions by hashing a subset of their fields.
package partition

import (
	"fmt"
	"math"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aaronlmathis/gocogroup/serialization"
	"github.com/cespare/xxhash/v2"
)

// Partitioner hashes the partition fields of a tuple. Tuples that are equal on
// those fields land in the same partition whatever source they come from.
type Partitioner struct {
	info  *serialization.Info
	codec *codec.Codec
	// fields[source][i] is the field hashed at step i, read from its physical position.
	fields [][]core.Field
}

// New creates a partitioner for a layout. c serializes Object fields that do not
// implement core.Hasher.
func New(info *serialization.Info, c *codec.Codec) *Partitioner {
	p := &Partitioner{info: info, codec: c, fields: make([][]core.Field, info.NumSources())}
	for src := range p.fields {
		schema := info.SourceSchema(src)
		for _, pos := range info.PartitionFields(src) {
			p.fields[src] = append(p.fields[src], schema.Field(pos))
		}
	}
	return p
}

// Partition returns the partition of t, a tuple of the given source, among n partitions.
func (p *Partitioner) Partition(sourceID int, t *core.Tuple, n int) (int, error) {
	if n == 1 {
		return 0, nil
	}
	if n < 1 {
		return 0, fmt.Errorf("partition: invalid partition count %d", n)
	}
	if sourceID < 0 || sourceID >= len(p.fields) {
		return 0, fmt.Errorf("partition: unknown source id %d", sourceID)
	}
	var acc int32
	for i, pos := range p.info.PartitionFields(sourceID) {
		h, err := p.hash(p.fields[sourceID][i], t.Get(pos))
		if err != nil {
			return 0, err
		}
		acc = acc*31 + h
	}
	return int(acc&math.MaxInt32) % n, nil
}

func (p *Partitioner) hash(f core.Field, v any) (int32, error) {
	switch x := v.(type) {
	case int32:
		return x, nil
	case int64:
		return fold(uint64(x)), nil
	case float32:
		return int32(math.Float32bits(x)), nil
	case float64:
		return fold(math.Float64bits(x)), nil
	case bool:
		if x {
			return 1231, nil
		}
		return 1237, nil
	case string:
		return fold(xxhash.Sum64String(x)), nil
	case []byte:
		return fold(xxhash.Sum64(x)), nil
	case nil:
		return 0, &core.EncodeError{Field: f.Name, Err: fmt.Errorf("nil value cannot be partitioned")}
	}
	if f.Type != core.Object {
		return 0, &core.EncodeError{Field: f.Name, Err: fmt.Errorf("unexpected %T for %s field", v, f.TypeString())}
	}
	if h, ok := v.(core.Hasher); ok {
		return h.HashCode(), nil
	}
	payload, err := p.codec.MarshalObject(f, v)
	if err != nil {
		return 0, &core.EncodeError{Field: f.Name, Err: err}
	}
	return fold(xxhash.Sum64(payload)), nil
}

func fold(h uint64) int32 {
	return int32(h ^ h>>32)
}
