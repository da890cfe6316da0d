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
	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aaronlmathis/gocogroup/serialization"
)

// GroupComparator orders tuples by the group-by fields only.
type GroupComparator struct {
	info   *serialization.Info
	raw    *Raw
	values *Values
}

// NewGroupComparator creates the group comparator of a layout.
func NewGroupComparator(info *serialization.Info, c *codec.Codec) (*GroupComparator, error) {
	raw, err := NewRaw(c, info.CommonSchema(), info.GroupCriteria())
	if err != nil {
		return nil, err
	}
	values, err := NewValues(c, info.CommonSchema(), info.GroupCriteria())
	if err != nil {
		return nil, err
	}
	return &GroupComparator{info: info, raw: raw, values: values}, nil
}

// CompareBytes orders two intermediate encodings by their group prefix.
func (g *GroupComparator) CompareBytes(a, b []byte) (int, error) {
	c, _, _, err := g.raw.Compare(a, 0, b, 0)
	return c, err
}

// Compare orders two source tuples by their group-by fields.
func (g *GroupComparator) Compare(aSource int, a *core.Tuple, bSource int, b *core.Tuple) (int, error) {
	return g.values.Compare(a, g.info.CommonTranslation(aSource), b, g.info.CommonTranslation(bSource))
}

// Depth returns the number of group levels.
func (g *GroupComparator) Depth() int { return g.values.Len() }

// SameGroup reports whether two tuples carry exactly the same group-by values.
// Primitive fields are equal when they compare equal, so NaN keys group together.
func (g *GroupComparator) SameGroup(aSource int, a *core.Tuple, bSource int, b *core.Tuple) bool {
	ta, tb := g.info.CommonTranslation(aSource), g.info.CommonTranslation(bSource)
	for i := 0; i < g.values.Len(); i++ {
		if !g.sameValue(i, a.Get(ta[i]), b.Get(tb[i])) {
			return false
		}
	}
	return true
}

func (g *GroupComparator) sameValue(i int, a, b any) bool {
	if g.values.fields[i].Type == core.Object {
		return core.ValuesEqual(a, b)
	}
	c, err := CompareValues(g.values.fields[i].Type, a, b)
	return err == nil && c == 0
}

// Mismatch returns the first group depth at which a and b differ and the
// direction-applied order at that depth. Depths with a custom comparator differ
// when the comparator says so, the others when SameGroup would see them differ.
// It returns depth -1 when no depth differs.
func (g *GroupComparator) Mismatch(aSource int, a *core.Tuple, bSource int, b *core.Tuple) (depth, order int, err error) {
	ta, tb := g.info.CommonTranslation(aSource), g.info.CommonTranslation(bSource)
	for i := 0; i < g.values.Len(); i++ {
		va, vb := a.Get(ta[i]), b.Get(tb[i])
		if !g.values.HasComparator(i) && g.sameValue(i, va, vb) {
			continue
		}
		c, err := g.values.CompareField(i, va, vb)
		if err != nil {
			return 0, 0, err
		}
		if c == 0 && g.values.HasComparator(i) {
			continue
		}
		return i, g.values.criteria[i].Order.Apply(c), nil
	}
	return -1, 0, nil
}
