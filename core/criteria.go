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
	"fmt"
	"strings"
)

// SourceOrderField is the reserved field name of the source-order marker.
const SourceOrderField = "#source"

// Order is a sort direction.
type Order int

const (
	Asc Order = iota
	Desc
)

func (o Order) String() string {
	if o == Desc {
		return "desc"
	}
	return "asc"
}

// Apply returns c, negated for descending order.
func (o Order) Apply(c int) int {
	if o == Desc {
		return -c
	}
	return c
}

// MarshalText implements encoding.TextMarshaler.
func (o Order) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Order) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "asc", "":
		*o = Asc
	case "desc":
		*o = Desc
	default:
		return fmt.Errorf("unknown order %q", string(text))
	}
	return nil
}

// SortElement is one (field, direction) pair of a Criteria.
type SortElement struct {
	Field string `json:"field"`
	Order Order  `json:"order"`
	// Comparator names a registered custom comparator for an Object field.
	Comparator string `json:"comparator,omitempty"`
}

// IsSourceOrder reports whether the element is the source-order marker.
func (e SortElement) IsSourceOrder() bool { return e.Field == SourceOrderField }

// SourceOrder returns the source-order marker element.
func SourceOrder(o Order) SortElement {
	return SortElement{Field: SourceOrderField, Order: o}
}

// Criteria is an ordered list of sort elements defining a total order over a projection.
type Criteria []SortElement

// NewCriteria creates an empty criteria for fluent construction.
func NewCriteria() Criteria { return Criteria{} }

// Add appends a field element.
func (c Criteria) Add(field string, o Order) Criteria {
	return append(c, SortElement{Field: field, Order: o})
}

// AddWithComparator appends a field element ordered by a registered comparator.
func (c Criteria) AddWithComparator(field string, o Order, comparator string) Criteria {
	return append(c, SortElement{Field: field, Order: o, Comparator: comparator})
}

// AddSourceOrder appends the source-order marker.
func (c Criteria) AddSourceOrder(o Order) Criteria {
	return append(c, SourceOrder(o))
}

// SourceOrderIndex returns the position of the source-order marker, or -1.
func (c Criteria) SourceOrderIndex() int {
	for i, e := range c {
		if e.IsSourceOrder() {
			return i
		}
	}
	return -1
}

// Fields returns the field names of all non-marker elements, in order.
func (c Criteria) Fields() []string {
	out := make([]string, 0, len(c))
	for _, e := range c {
		if !e.IsSourceOrder() {
			out = append(out, e.Field)
		}
	}
	return out
}

// Contains reports whether the criteria orders by the named field.
func (c Criteria) Contains(field string) bool {
	for _, e := range c {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Clone returns a copy of the criteria.
func (c Criteria) Clone() Criteria {
	if c == nil {
		return nil
	}
	out := make(Criteria, len(c))
	copy(out, c)
	return out
}

func (c Criteria) String() string {
	parts := make([]string, len(c))
	for i, e := range c {
		parts[i] = e.Field + " " + e.Order.String()
		if e.Comparator != "" {
			parts[i] += " using " + e.Comparator
		}
	}
	return strings.Join(parts, ", ")
}
