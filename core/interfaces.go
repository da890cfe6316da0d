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

package core

import (
	"context"
)

// Package core defines the collaborator interfaces for the GoCogroup library.
//
// GoCogroup co-groups several sorted tuple streams by shared key fields. The
// sort and shuffle are external: the library only consumes streams that are
// already partitioned and ordered.

// TupleSource streams the tuples of a single source, in that source's sort order.
type TupleSource interface {
	// Read returns the next tuple or io.EOF when no more tuples are available.
	// The returned tuple may be reused by the next call.
	Read(ctx context.Context) (*Tuple, error)
	// Close releases any resources held by the source.
	Close() error
}

// SortedSupply streams (source id, tuple) pairs of one partition, totally
// ordered by the sort comparator. Reading may block.
type SortedSupply interface {
	// Read returns the next pair or io.EOF when the partition is exhausted.
	// The returned tuple may be reused by the next call.
	Read(ctx context.Context) (int, *Tuple, error)
	// Close releases any resources held by the supply.
	Close() error
}

// ObjectSerializer encodes and decodes the values of an Object field class.
type ObjectSerializer interface {
	// Marshal encodes v.
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes a value previously produced by Marshal.
	Unmarshal(data []byte) (any, error)
}

// ObjectComparator orders decoded Object values.
type ObjectComparator interface {
	// Compare returns a negative number, zero or a positive number when a is
	// less than, equal to or greater than b.
	Compare(a, b any) int
}

// RawComparator orders Object values directly on their encoded payloads.
// An ObjectComparator that also implements RawComparator is used on encoded
// bytes without deserialization.
type RawComparator interface {
	CompareBytes(a, b []byte) int
}

// Comparable may be implemented by Object values that know their own order.
type Comparable interface {
	CompareTo(other any) int
}

// Hasher may be implemented by Object values to provide a natural hash for partitioning.
type Hasher interface {
	HashCode() int32
}

// ObjectComparatorFunc is a function adapter for the ObjectComparator interface.
type ObjectComparatorFunc func(a, b any) int

// Compare implements the ObjectComparator interface for ObjectComparatorFunc.
func (f ObjectComparatorFunc) Compare(a, b any) int {
	return f(a, b)
}
