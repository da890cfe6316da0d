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

package aggregate

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aaronlmathis/gocogroup/rollup"
	"github.com/aaronlmathis/gocogroup/serialization"
)

// Result is the summary of one closed group.
type Result struct {
	Depth  int            // Depth of the closed group
	Fields []string       // Group-by fields from depth 0 to Depth
	Key    []any          // Values of Fields
	Values map[string]any // Aggregates by output field
}

// GroupBy is a rollup.Handler that maintains one set of aggregators per open
// group level. Every tuple of an element is folded into all open levels, so a
// rollup from depth d yields subtotals for depths d..max.
type GroupBy struct {
	groupFields []string
	keyPos      [][]int // per source, tuple position of each group-by field
	outputs     []string
	factories   map[string]func() Aggregator
	emit        func(ctx context.Context, r Result) error

	levels  map[int][]Aggregator // allocated per depth, reused across groups
	open    []int                // depths of the open groups, outermost first
	results []Result
}

// NewGroupBy creates a handler for the groups of info. Results are collected
// and returned by Results unless Emit is set.
func NewGroupBy(info *serialization.Info) *GroupBy {
	g := &GroupBy{
		groupFields: slices.Clone(info.GroupBy()),
		factories:   make(map[string]func() Aggregator),
		levels:      make(map[int][]Aggregator),
	}
	common := info.CommonSchema()
	g.keyPos = make([][]int, info.NumSources())
	for s := range g.keyPos {
		tr := info.CommonTranslation(s)
		g.keyPos[s] = make([]int, len(g.groupFields))
		for d, f := range g.groupFields {
			g.keyPos[s][d] = -1
			if i := common.Index(f); i >= 0 && i < len(tr) {
				g.keyPos[s][d] = tr[i]
			}
		}
	}
	return g
}

func (g *GroupBy) add(outputField string, factory func() Aggregator) *GroupBy {
	if _, exists := g.factories[outputField]; !exists {
		g.outputs = append(g.outputs, outputField)
	}
	g.factories[outputField] = factory
	return g
}

// Count adds a count aggregator for the specified output field
func (g *GroupBy) Count(outputField string) *GroupBy {
	return g.add(outputField, func() Aggregator { return &CountAggregator{} })
}

// Sum adds a sum aggregator for the specified field
func (g *GroupBy) Sum(field, outputField string) *GroupBy {
	return g.add(outputField, func() Aggregator { return &SumAggregator{Field: field} })
}

// Avg adds an average aggregator for the specified field
func (g *GroupBy) Avg(field, outputField string) *GroupBy {
	return g.add(outputField, func() Aggregator { return &AvgAggregator{Field: field} })
}

// Min adds a minimum aggregator for the specified field
func (g *GroupBy) Min(field, outputField string) *GroupBy {
	return g.add(outputField, func() Aggregator { return NewMinAggregator(field) })
}

// Max adds a maximum aggregator for the specified field
func (g *GroupBy) Max(field, outputField string) *GroupBy {
	return g.add(outputField, func() Aggregator { return NewMaxAggregator(field) })
}

// With adds a custom aggregator built by factory for every group.
func (g *GroupBy) With(outputField string, factory func() Aggregator) *GroupBy {
	return g.add(outputField, factory)
}

// Emit sends each result to fn as its group closes instead of collecting it.
func (g *GroupBy) Emit(fn func(ctx context.Context, r Result) error) *GroupBy {
	g.emit = fn
	return g
}

// Results returns the collected results in close order.
func (g *GroupBy) Results() []Result { return g.results }

// OpenGroup implements rollup.Handler.
func (g *GroupBy) OpenGroup(ctx context.Context, grp rollup.Group) error {
	aggs, ok := g.levels[grp.Depth]
	if !ok {
		aggs = make([]Aggregator, len(g.outputs))
		for i, out := range g.outputs {
			aggs[i] = g.factories[out]()
		}
	}
	for _, a := range aggs {
		a.Reset()
	}
	g.levels[grp.Depth] = aggs
	g.open = append(g.open, grp.Depth)
	return nil
}

// Element implements rollup.Handler.
func (g *GroupBy) Element(ctx context.Context, sourceID int, t *core.Tuple, run iter.Seq2[int, *core.Tuple]) error {
	for src, tup := range run {
		for _, depth := range g.open {
			for i, a := range g.levels[depth] {
				if err := a.Add(ctx, src, tup); err != nil {
					return fmt.Errorf("aggregation error for field %s at depth %d: %w", g.outputs[i], depth, err)
				}
			}
		}
	}
	return nil
}

// CloseGroup implements rollup.Handler.
func (g *GroupBy) CloseGroup(ctx context.Context, grp rollup.Group) error {
	aggs := g.levels[grp.Depth]
	r := Result{
		Depth:  grp.Depth,
		Fields: g.groupFields[:grp.Depth+1],
		Key:    g.key(grp),
		Values: make(map[string]any, len(aggs)),
	}
	for i, a := range aggs {
		value, err := a.Result()
		if err != nil {
			return fmt.Errorf("failed to get result for field %s: %w", g.outputs[i], err)
		}
		r.Values[g.outputs[i]] = value
	}
	if n := len(g.open); n > 0 && g.open[n-1] == grp.Depth {
		g.open = g.open[:n-1]
	}
	if g.emit != nil {
		return g.emit(ctx, r)
	}
	g.results = append(g.results, r)
	return nil
}

func (g *GroupBy) key(grp rollup.Group) []any {
	key := make([]any, grp.Depth+1)
	key[grp.Depth] = grp.Value
	if grp.Tuple == nil || grp.SourceID >= len(g.keyPos) {
		return key
	}
	for d := 0; d < grp.Depth; d++ {
		if pos := g.keyPos[grp.SourceID][d]; pos >= 0 {
			key[d] = grp.Tuple.Get(pos)
		}
	}
	return key
}
