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

package compare

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
)

// Values compares decoded tuples with the same semantics as Raw.
type Values struct {
	codec       *codec.Codec
	fields      []core.Field
	criteria    core.Criteria
	comparators []core.ObjectComparator
}

// NewValues creates a value comparator. Criteria element i must order field i of schema.
func NewValues(c *codec.Codec, schema *core.Schema, criteria core.Criteria) (*Values, error) {
	fields, comparators, err := bind(c, schema, criteria)
	if err != nil {
		return nil, err
	}
	return &Values{codec: c, fields: fields, criteria: criteria, comparators: comparators}, nil
}

// Len returns the number of criteria elements.
func (v *Values) Len() int { return len(v.criteria) }

// Compare orders a and b. Criteria element i reads a.Get(ta[i]) and b.Get(tb[i]);
// a nil translation reads position i directly.
func (v *Values) Compare(a *core.Tuple, ta []int, b *core.Tuple, tb []int) (int, error) {
	return v.ComparePrefix(v.Len(), a, ta, b, tb)
}

// ComparePrefix is like Compare but only walks the first n criteria elements.
func (v *Values) ComparePrefix(n int, a *core.Tuple, ta []int, b *core.Tuple, tb []int) (int, error) {
	for i := 0; i < n; i++ {
		c, err := v.CompareField(i, a.Get(at(ta, i)), b.Get(at(tb, i)))
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return v.criteria[i].Order.Apply(c), nil
		}
	}
	return 0, nil
}

// CompareField orders two values of criteria element i, ignoring its direction.
func (v *Values) CompareField(i int, a, b any) (int, error) {
	f := v.fields[i]
	if f.Type != core.Object {
		return CompareValues(f.Type, a, b)
	}
	if oc := v.comparators[i]; oc != nil {
		if rc, ok := oc.(core.RawComparator); ok {
			return v.compareSerialized(f, a, b, rc.CompareBytes)
		}
		return oc.Compare(a, b), nil
	}
	if c, ok := a.(core.Comparable); ok {
		return c.CompareTo(b), nil
	}
	return v.compareSerialized(f, a, b, bytes.Compare)
}

// HasComparator reports whether criteria element i uses a custom comparator.
func (v *Values) HasComparator(i int) bool { return v.comparators[i] != nil }

func (v *Values) compareSerialized(f core.Field, a, b any, compare func(x, y []byte) int) (int, error) {
	pa, err := v.codec.MarshalObject(f, a)
	if err != nil {
		return 0, &core.EncodeError{Field: f.Name, Err: err}
	}
	pb, err := v.codec.MarshalObject(f, b)
	if err != nil {
		return 0, &core.EncodeError{Field: f.Name, Err: err}
	}
	return compare(pa, pb), nil
}

// CompareValues orders two primitive values of the given type. The order matches
// the byte-level order of their encodings.
func CompareValues(t core.FieldType, a, b any) (int, error) {
	switch t {
	case core.Int32, core.Enum:
		x, ok1 := a.(int32)
		y, ok2 := b.(int32)
		if !ok1 || !ok2 {
			return 0, mismatched(t, a, b)
		}
		return cmp.Compare(x, y), nil
	case core.Int64:
		x, ok1 := a.(int64)
		y, ok2 := b.(int64)
		if !ok1 || !ok2 {
			return 0, mismatched(t, a, b)
		}
		return cmp.Compare(x, y), nil
	case core.Float32:
		x, ok1 := a.(float32)
		y, ok2 := b.(float32)
		if !ok1 || !ok2 {
			return 0, mismatched(t, a, b)
		}
		return cmp.Compare(x, y), nil
	case core.Float64:
		x, ok1 := a.(float64)
		y, ok2 := b.(float64)
		if !ok1 || !ok2 {
			return 0, mismatched(t, a, b)
		}
		return cmp.Compare(x, y), nil
	case core.Boolean:
		x, ok1 := a.(bool)
		y, ok2 := b.(bool)
		if !ok1 || !ok2 {
			return 0, mismatched(t, a, b)
		}
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		default:
			return 1, nil
		}
	case core.Utf8String:
		x, ok1 := a.(string)
		y, ok2 := b.(string)
		if !ok1 || !ok2 {
			return 0, mismatched(t, a, b)
		}
		return strings.Compare(x, y), nil
	case core.Bytes:
		x, ok1 := a.([]byte)
		y, ok2 := b.([]byte)
		if !ok1 || !ok2 {
			return 0, mismatched(t, a, b)
		}
		return bytes.Compare(x, y), nil
	default:
		return 0, fmt.Errorf("compare: type %s has no natural order", t)
	}
}

func mismatched(t core.FieldType, a, b any) error {
	return fmt.Errorf("compare: expected two %s values, got %T and %T", t, a, b)
}

func at(translation []int, i int) int {
	if translation == nil {
		return i
	}
	return translation[i]
}
