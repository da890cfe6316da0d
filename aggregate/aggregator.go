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

// Package aggregate computes per-group summaries from rollup callbacks.
package aggregate

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aaronlmathis/gocogroup/compare"
	"github.com/aaronlmathis/gocogroup/core"
)

// Aggregator folds the tuples of one group into a single value.
type Aggregator interface {
	// Add folds one tuple of the given source into the aggregate.
	Add(ctx context.Context, sourceID int, t *core.Tuple) error
	// Result returns the aggregate of every tuple added since the last Reset.
	Result() (any, error)
	// Reset clears the aggregator state for reuse.
	Reset()
}

// CountAggregator counts tuples.
type CountAggregator struct {
	count int64
}

func (c *CountAggregator) Add(ctx context.Context, sourceID int, t *core.Tuple) error {
	c.count++
	return nil
}

func (c *CountAggregator) Result() (any, error) { return c.count, nil }

func (c *CountAggregator) Reset() { c.count = 0 }

// SumAggregator sums a numeric field. Tuples without the field are ignored.
type SumAggregator struct {
	Field string
	sum   float64
}

func (s *SumAggregator) Add(ctx context.Context, sourceID int, t *core.Tuple) error {
	value, exists := t.GetByName(s.Field)
	if !exists {
		return nil
	}
	num, err := convertToFloat64(value)
	if err != nil {
		return fmt.Errorf("sum %s: %w", s.Field, err)
	}
	s.sum += num
	return nil
}

func (s *SumAggregator) Result() (any, error) { return s.sum, nil }

func (s *SumAggregator) Reset() { s.sum = 0 }

// AvgAggregator averages a numeric field. An empty group averages to 0.
type AvgAggregator struct {
	Field string
	sum   float64
	count int64
}

func (a *AvgAggregator) Add(ctx context.Context, sourceID int, t *core.Tuple) error {
	value, exists := t.GetByName(a.Field)
	if !exists {
		return nil
	}
	num, err := convertToFloat64(value)
	if err != nil {
		return fmt.Errorf("avg %s: %w", a.Field, err)
	}
	a.sum += num
	a.count++
	return nil
}

func (a *AvgAggregator) Result() (any, error) {
	if a.count == 0 {
		return float64(0), nil
	}
	return a.sum / float64(a.count), nil
}

func (a *AvgAggregator) Reset() {
	a.sum = 0
	a.count = 0
}

// extremum keeps the smallest (sign -1) or largest (sign 1) value of a field
// in the field's natural order.
type extremum struct {
	field string
	sign  int
	value any
	set   bool
}

func (e *extremum) Add(ctx context.Context, sourceID int, t *core.Tuple) error {
	i := t.Schema().Index(e.field)
	if i < 0 {
		return nil
	}
	value := t.Get(i)
	if !e.set {
		e.keep(value)
		return nil
	}
	c, err := compare.CompareValues(t.Schema().Field(i).Type, value, e.value)
	if err != nil {
		return fmt.Errorf("%s: %w", e.field, err)
	}
	if c*e.sign > 0 {
		e.keep(value)
	}
	return nil
}

// keep copies byte slices since supplies reuse tuples.
func (e *extremum) keep(value any) {
	if b, ok := value.([]byte); ok {
		value = bytes.Clone(b)
	}
	e.value = value
	e.set = true
}

func (e *extremum) Result() (any, error) { return e.value, nil }

func (e *extremum) Reset() {
	e.value = nil
	e.set = false
}

// MinAggregator finds the minimum value of a field
type MinAggregator struct{ extremum }

// NewMinAggregator creates a minimum over field.
func NewMinAggregator(field string) *MinAggregator {
	return &MinAggregator{extremum{field: field, sign: -1}}
}

// MaxAggregator finds the maximum value of a field
type MaxAggregator struct{ extremum }

// NewMaxAggregator creates a maximum over field.
func NewMaxAggregator(field string) *MaxAggregator {
	return &MaxAggregator{extremum{field: field, sign: 1}}
}

func convertToFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}
