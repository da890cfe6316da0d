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

package supply

import (
	"context"
	"errors"
	"io"
	"slices"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/compare"
	"github.com/aaronlmathis/gocogroup/core"
)

// Buffer collects tuples in their intermediate encoding, sorts them with the
// byte-level sort comparator and supplies them decoded. It stands in for the
// map-side sort buffer of a shuffle.
type Buffer struct {
	ser  *codec.TupleSerializer
	sc   *compare.SortComparator
	data []byte
	refs [][2]int // [start, end) of each record in data
	pos  int

	sorted bool
	tuples map[int]*core.Tuple // decode target per source
}

// NewBuffer creates an empty buffer.
func NewBuffer(ser *codec.TupleSerializer, sc *compare.SortComparator) *Buffer {
	return &Buffer{ser: ser, sc: sc, tuples: make(map[int]*core.Tuple)}
}

// Add encodes and appends one tuple. It may not be called after Sort.
func (b *Buffer) Add(sourceID int, t *core.Tuple) error {
	if b.sorted {
		return errors.New("supply: buffer is already sorted")
	}
	start := len(b.data)
	data, err := b.ser.Serialize(b.data, sourceID, t)
	if err != nil {
		b.data = b.data[:start]
		return err
	}
	b.data = data
	b.refs = append(b.refs, [2]int{start, len(data)})
	return nil
}

// Len returns the number of buffered tuples.
func (b *Buffer) Len() int { return len(b.refs) }

// Size returns the number of encoded bytes held.
func (b *Buffer) Size() int { return len(b.data) }

// Sort orders the buffered records. Equal records keep their insertion order.
func (b *Buffer) Sort() error {
	var err error
	slices.SortStableFunc(b.refs, func(x, y [2]int) int {
		c, cerr := b.sc.CompareBytes(b.data[x[0]:x[1]], b.data[y[0]:y[1]])
		if cerr != nil && err == nil {
			err = cerr
		}
		return c
	})
	b.sorted = true
	return err
}

// Read implements core.SortedSupply. It sorts the buffer on first use.
func (b *Buffer) Read(ctx context.Context) (int, *core.Tuple, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if !b.sorted {
		if err := b.Sort(); err != nil {
			return 0, nil, err
		}
	}
	if b.pos >= len(b.refs) {
		return 0, nil, io.EOF
	}
	ref := b.refs[b.pos]
	b.pos++
	record := b.data[ref[0]:ref[1]]
	id, _, err := b.ser.ReadSourceID(record)
	if err != nil {
		return 0, nil, err
	}
	t, ok := b.tuples[id]
	if !ok {
		_, t, _, err = b.ser.Deserialize(record)
		if err != nil {
			return 0, nil, err
		}
		b.tuples[id] = t
		return id, t, nil
	}
	if _, _, err := b.ser.DeserializeInto(record, t); err != nil {
		return 0, nil, err
	}
	return id, t, nil
}

// Close releases the buffered data.
func (b *Buffer) Close() error {
	b.data, b.refs = nil, nil
	return nil
}
