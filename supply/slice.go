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

// Package supply provides sorted supplies: in-memory slices, an encoded sort
// buffer, and a k-way merge of sorted per-source runs.
package supply

import (
	"context"
	"io"
	"slices"

	"github.com/aaronlmathis/gocogroup/compare"
	"github.com/aaronlmathis/gocogroup/core"
)

// Pair is one tuple tagged with its source id.
type Pair struct {
	SourceID int
	Tuple    *core.Tuple
}

// Slice is a SortedSupply over pairs that are already in sort order.
type Slice struct {
	pairs []Pair
	pos   int
}

// NewSlice creates a supply returning pairs in order.
func NewSlice(pairs ...Pair) *Slice {
	return &Slice{pairs: pairs}
}

// Read implements core.SortedSupply.
func (s *Slice) Read(ctx context.Context) (int, *core.Tuple, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if s.pos >= len(s.pairs) {
		return 0, nil, io.EOF
	}
	p := s.pairs[s.pos]
	s.pos++
	return p.SourceID, p.Tuple, nil
}

// Close implements core.SortedSupply.
func (s *Slice) Close() error { return nil }

// Sort orders pairs by the sort comparator. Equal pairs keep their relative order.
func Sort(sc *compare.SortComparator, pairs []Pair) error {
	var err error
	slices.SortStableFunc(pairs, func(a, b Pair) int {
		c, cerr := sc.Compare(a.SourceID, a.Tuple, b.SourceID, b.Tuple)
		if cerr != nil && err == nil {
			err = cerr
		}
		return c
	})
	return err
}

// Tuples is a TupleSource over tuples of one source already in sort order.
type Tuples struct {
	tuples []*core.Tuple
	pos    int
}

// NewTuples creates a tuple source returning tuples in order.
func NewTuples(tuples ...*core.Tuple) *Tuples {
	return &Tuples{tuples: tuples}
}

// Read implements core.TupleSource.
func (s *Tuples) Read(ctx context.Context) (*core.Tuple, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.tuples) {
		return nil, io.EOF
	}
	t := s.tuples[s.pos]
	s.pos++
	return t, nil
}

// Close implements core.TupleSource.
func (s *Tuples) Close() error { return nil }
