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

// Package compare orders tuples, both in their encoded form and as decoded values.
//
// A comparator walks a criteria over the leading fields of a schema: element i
// orders field i. Comparison stops at the first element that differs, so the
// fields after it are never decoded.
package compare

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
)

// Raw compares encoded tuples without deserializing them.
type Raw struct {
	codec       *codec.Codec
	fields      []core.Field
	criteria    core.Criteria
	comparators []core.ObjectComparator
}

// NewRaw creates a byte-level comparator. Criteria element i must order field i of schema.
func NewRaw(c *codec.Codec, schema *core.Schema, criteria core.Criteria) (*Raw, error) {
	fields, comparators, err := bind(c, schema, criteria)
	if err != nil {
		return nil, err
	}
	return &Raw{codec: c, fields: fields, criteria: criteria, comparators: comparators}, nil
}

// bind checks the criteria against the schema prefix and resolves custom comparators.
func bind(c *codec.Codec, schema *core.Schema, criteria core.Criteria) ([]core.Field, []core.ObjectComparator, error) {
	if len(criteria) > schema.Len() {
		return nil, nil, &core.ConfigError{Source: schema.Name(), Reason: "criteria is longer than the schema"}
	}
	fields := make([]core.Field, len(criteria))
	comparators := make([]core.ObjectComparator, len(criteria))
	for i, e := range criteria {
		f := schema.Field(i)
		if e.Field != f.Name {
			return nil, nil, &core.ConfigError{Source: schema.Name(), Field: e.Field,
				Reason: fmt.Sprintf("criteria element %d does not order schema field %q", i, f.Name)}
		}
		fields[i] = f
		if e.Comparator == "" {
			continue
		}
		if f.Type != core.Object {
			return nil, nil, &core.ConfigError{Source: schema.Name(), Field: e.Field, Reason: "custom comparator is only allowed on object fields"}
		}
		oc, ok := c.Objects().Comparator(e.Comparator)
		if !ok {
			return nil, nil, &core.ConfigError{Source: schema.Name(), Field: e.Field,
				Reason: fmt.Sprintf("comparator %q is not registered", e.Comparator)}
		}
		comparators[i] = oc
	}
	return fields, comparators, nil
}

// Len returns the number of criteria elements.
func (r *Raw) Len() int { return len(r.criteria) }

// Compare orders the tuples encoded at b1[o1:] and b2[o2:]. When they are equal
// over the whole criteria, end1 and end2 are the offsets just past the compared
// fields; otherwise they are unspecified.
func (r *Raw) Compare(b1 []byte, o1 int, b2 []byte, o2 int) (c, end1, end2 int, err error) {
	return r.ComparePrefix(r.Len(), b1, o1, b2, o2)
}

// ComparePrefix is like Compare but only walks the first n criteria elements.
func (r *Raw) ComparePrefix(n int, b1 []byte, o1 int, b2 []byte, o2 int) (c, end1, end2 int, err error) {
	for i := 0; i < n; i++ {
		c, o1, o2, err = r.compareField(i, b1, o1, b2, o2)
		if err != nil {
			return 0, 0, 0, err
		}
		if c != 0 {
			return r.criteria[i].Order.Apply(c), o1, o2, nil
		}
	}
	return 0, o1, o2, nil
}

func (r *Raw) compareField(i int, b1 []byte, o1 int, b2 []byte, o2 int) (int, int, int, error) {
	f := r.fields[i]
	switch f.Type {
	case core.Int32, core.Int64, core.Enum:
		v1, n1, err := codec.ReadVarInt(b1, o1)
		if err != nil {
			return 0, 0, 0, &core.DecodeError{Field: f.Name, Offset: o1, Err: err}
		}
		v2, n2, err := codec.ReadVarInt(b2, o2)
		if err != nil {
			return 0, 0, 0, &core.DecodeError{Field: f.Name, Offset: o2, Err: err}
		}
		return cmp.Compare(v1, v2), o1 + n1, o2 + n2, nil
	case core.Float32:
		if o1+4 > len(b1) || o2+4 > len(b2) {
			return r.truncated(f, b1, o1, b2, o2)
		}
		v1 := math.Float32frombits(binary.BigEndian.Uint32(b1[o1:]))
		v2 := math.Float32frombits(binary.BigEndian.Uint32(b2[o2:]))
		return cmp.Compare(v1, v2), o1 + 4, o2 + 4, nil
	case core.Float64:
		if o1+8 > len(b1) || o2+8 > len(b2) {
			return r.truncated(f, b1, o1, b2, o2)
		}
		v1 := math.Float64frombits(binary.BigEndian.Uint64(b1[o1:]))
		v2 := math.Float64frombits(binary.BigEndian.Uint64(b2[o2:]))
		return cmp.Compare(v1, v2), o1 + 8, o2 + 8, nil
	case core.Boolean:
		if o1 >= len(b1) || o2 >= len(b2) {
			return r.truncated(f, b1, o1, b2, o2)
		}
		return cmp.Compare(b1[o1], b2[o2]), o1 + 1, o2 + 1, nil
	case core.Utf8String, core.Bytes:
		s1, e1, err := r.codec.Payload(b1, o1, f)
		if err != nil {
			return 0, 0, 0, err
		}
		s2, e2, err := r.codec.Payload(b2, o2, f)
		if err != nil {
			return 0, 0, 0, err
		}
		return bytes.Compare(b1[s1:e1], b2[s2:e2]), e1, e2, nil
	case core.Object:
		s1, e1, err := r.codec.Payload(b1, o1, f)
		if err != nil {
			return 0, 0, 0, err
		}
		s2, e2, err := r.codec.Payload(b2, o2, f)
		if err != nil {
			return 0, 0, 0, err
		}
		c, err := r.compareObject(i, b1[s1:e1], b2[s2:e2])
		if err != nil {
			return 0, 0, 0, &core.DecodeError{Field: f.Name, Offset: o1, Err: err}
		}
		return c, e1, e2, nil
	default:
		return 0, 0, 0, fmt.Errorf("compare: unsupported type %s for field %q", f.Type, f.Name)
	}
}

func (r *Raw) compareObject(i int, p1, p2 []byte) (int, error) {
	f := r.fields[i]
	if oc := r.comparators[i]; oc != nil {
		if rc, ok := oc.(core.RawComparator); ok {
			return rc.CompareBytes(p1, p2), nil
		}
		v1, err := r.codec.UnmarshalObject(f, p1)
		if err != nil {
			return 0, err
		}
		v2, err := r.codec.UnmarshalObject(f, p2)
		if err != nil {
			return 0, err
		}
		return oc.Compare(v1, v2), nil
	}
	v1, err := r.codec.UnmarshalObject(f, p1)
	if err != nil {
		return 0, err
	}
	if c, ok := v1.(core.Comparable); ok {
		v2, err := r.codec.UnmarshalObject(f, p2)
		if err != nil {
			return 0, err
		}
		return c.CompareTo(v2), nil
	}
	return bytes.Compare(p1, p2), nil
}

func (r *Raw) truncated(f core.Field, b1 []byte, o1 int, b2 []byte, o2 int) (int, int, int, error) {
	off := o1
	if n := codec.FixedSize(f.Type); o1+n <= len(b1) {
		off = o2
	}
	return 0, 0, 0, &core.DecodeError{Field: f.Name, Offset: off, Err: io.ErrUnexpectedEOF}
}
