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

// Package serialization derives the canonical cross-source layout that the
// codec, comparators and partitioner share.
//
// Every intermediate tuple is laid out as the common schema (fields ordered by
// the common criteria, identical in all sources), followed in multi-source
// configurations by the source id and the source's specific schema.
package serialization

import (
	"fmt"

	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aaronlmathis/gocogroup/registry"
)

// Plan is the validated grouping and ordering declaration to derive from.
type Plan struct {
	Sources *registry.Registry
	// GroupBy lists the group-by fields in common order.
	GroupBy []string
	// Common is the common criteria, including the source-order marker when
	// there is more than one source.
	Common core.Criteria
	// Specific holds the specific criteria per source id.
	Specific map[int]core.Criteria
	// RollupFrom is the group-by field from which rollup starts, or empty.
	RollupFrom string
	// PartitionFields are custom partition fields, or empty.
	PartitionFields []string
}

// Info is the derived, immutable layout. It is safe for concurrent use.
type Info struct {
	numSources    int
	sourceNames   []string
	sourceSchemas []*core.Schema

	commonSchema      *core.Schema
	commonCriteria    core.Criteria
	commonTranslation [][]int

	sourceOrder core.Order

	groupSchema   *core.Schema
	groupCriteria core.Criteria

	specificSchemas     []*core.Schema
	specificCriteria    []core.Criteria
	specificTranslation [][]int

	partitionFields [][]int

	groupBy         []string
	rollupBaseDepth int
	maxDepth        int
	rollup          bool
}

// Derive computes the serialization info for a plan.
func Derive(p Plan) (*Info, error) {
	if p.Sources == nil || p.Sources.Len() == 0 {
		return nil, &core.ConfigError{Reason: "at least one source is required"}
	}
	if len(p.GroupBy) == 0 {
		return nil, &core.ConfigError{Reason: "at least one group-by field is required"}
	}
	sources := p.Sources.Sources()
	info := &Info{
		numSources:  len(sources),
		sourceNames: p.Sources.Names(),
		groupBy:     append([]string(nil), p.GroupBy...),
		maxDepth:    len(p.GroupBy) - 1,
	}
	for _, src := range sources {
		info.sourceSchemas = append(info.sourceSchemas, src.Schema)
	}

	var err error
	if info.numSources == 1 {
		err = info.deriveSingle(sources[0], p.Common)
	} else {
		err = info.deriveMulti(sources, p)
	}
	if err != nil {
		return nil, err
	}

	if len(info.commonCriteria) < len(p.GroupBy) {
		return nil, &core.ConfigError{Reason: "group-by fields must be a prefix of the common criteria"}
	}
	for i, g := range p.GroupBy {
		if info.commonCriteria[i].Field != g {
			return nil, &core.ConfigError{Field: g, Reason: "group-by fields must be a prefix of the common criteria"}
		}
	}
	groupFields := make([]core.Field, len(p.GroupBy))
	for i := range groupFields {
		groupFields[i] = info.commonSchema.Field(i)
	}
	if info.groupSchema, err = core.NewSchema("group", groupFields...); err != nil {
		return nil, err
	}
	info.groupCriteria = info.commonCriteria[:len(p.GroupBy)].Clone()

	info.rollupBaseDepth = info.maxDepth
	if p.RollupFrom != "" {
		idx := indexOf(p.GroupBy, p.RollupFrom)
		if idx < 0 {
			return nil, &core.ConfigError{Field: p.RollupFrom, Reason: "rollup-from must be a group-by field"}
		}
		info.rollupBaseDepth = idx
		info.rollup = true
	}

	if err := info.derivePartitionFields(sources, p.PartitionFields); err != nil {
		return nil, err
	}
	return info, nil
}

func (info *Info) deriveSingle(src *registry.Source, common core.Criteria) error {
	if common.SourceOrderIndex() >= 0 {
		return &core.ConfigError{Source: src.Name, Reason: "source order is not allowed with a single source"}
	}
	var (
		fields      []core.Field
		translation []int
		used        = make(map[int]bool)
	)
	for _, e := range common {
		f, pos, err := src.Resolve(e.Field)
		if err != nil {
			return &core.SchemaMismatchError{Schema: "common", Source: src.Name, Field: e.Field}
		}
		f.Name = e.Field
		fields = append(fields, f)
		translation = append(translation, pos)
		used[pos] = true
		info.commonCriteria = append(info.commonCriteria, normalize(e, f))
	}
	for pos := 0; pos < src.Schema.Len(); pos++ {
		if used[pos] {
			continue
		}
		fields = append(fields, src.Schema.Field(pos))
		translation = append(translation, pos)
	}
	schema, err := core.NewSchema("common", fields...)
	if err != nil {
		return err
	}
	info.commonSchema = schema
	info.commonTranslation = [][]int{translation}
	info.specificSchemas = []*core.Schema{nil}
	info.specificCriteria = []core.Criteria{nil}
	info.specificTranslation = [][]int{nil}
	return nil
}

func (info *Info) deriveMulti(sources []*registry.Source, p Plan) error {
	marker := p.Common.SourceOrderIndex()
	if marker < 0 {
		return &core.ConfigError{Reason: "common criteria of a multi-source configuration requires a source order"}
	}
	if marker != len(p.Common)-1 {
		return &core.ConfigError{Field: p.Common[marker+1].Field, Reason: "common criteria fields must come before the source order"}
	}
	info.sourceOrder = p.Common[marker].Order

	info.commonTranslation = make([][]int, len(sources))
	var fields []core.Field
	for _, e := range p.Common {
		if e.IsSourceOrder() {
			continue
		}
		var ref core.Field
		for i, src := range sources {
			f, pos, err := src.Resolve(e.Field)
			if err != nil {
				return &core.SchemaMismatchError{Schema: "common", Source: src.Name, Field: e.Field}
			}
			if i == 0 {
				ref = f
			} else if !ref.SameType(f) {
				return &core.ConfigError{Source: src.Name, Field: e.Field,
					Reason: fmt.Sprintf("type %s differs from %s in source %q", f.TypeString(), ref.TypeString(), sources[0].Name)}
			}
			info.commonTranslation[i] = append(info.commonTranslation[i], pos)
		}
		ref.Name = e.Field
		fields = append(fields, ref)
		info.commonCriteria = append(info.commonCriteria, normalize(e, ref))
	}
	schema, err := core.NewSchema("common", fields...)
	if err != nil {
		return err
	}
	info.commonSchema = schema

	info.specificSchemas = make([]*core.Schema, len(sources))
	info.specificCriteria = make([]core.Criteria, len(sources))
	info.specificTranslation = make([][]int, len(sources))
	for i, src := range sources {
		used := make(map[int]bool, len(info.commonTranslation[i]))
		for _, pos := range info.commonTranslation[i] {
			used[pos] = true
		}
		var (
			sfields     []core.Field
			translation []int
			criteria    core.Criteria
		)
		for _, e := range p.Specific[i] {
			f, pos, err := src.Resolve(e.Field)
			if err != nil {
				return &core.SchemaMismatchError{Schema: "specific", Source: src.Name, Field: e.Field}
			}
			if used[pos] {
				return &core.ConfigError{Source: src.Name, Field: e.Field,
					Reason: "specific criteria field is already part of the common criteria"}
			}
			used[pos] = true
			sfields = append(sfields, f)
			translation = append(translation, pos)
			e.Field = f.Name
			criteria = append(criteria, normalize(e, f))
		}
		for pos := 0; pos < src.Schema.Len(); pos++ {
			if used[pos] {
				continue
			}
			sfields = append(sfields, src.Schema.Field(pos))
			translation = append(translation, pos)
		}
		ss, err := core.NewSchema("specific:"+src.Name, sfields...)
		if err != nil {
			return err
		}
		info.specificSchemas[i] = ss
		info.specificCriteria[i] = criteria
		info.specificTranslation[i] = translation
	}
	return nil
}

func (info *Info) derivePartitionFields(sources []*registry.Source, custom []string) error {
	var names []string
	switch {
	case len(custom) > 0:
		names = custom
	case info.rollup:
		names = info.groupBy[:info.rollupBaseDepth+1]
	default:
		names = info.groupBy
	}
	info.partitionFields = make([][]int, len(sources))
	for i, src := range sources {
		positions := make([]int, len(names))
		for j, name := range names {
			_, pos, err := src.Resolve(name)
			if err != nil {
				return &core.SchemaMismatchError{Schema: "partition", Source: src.Name, Field: name}
			}
			positions[j] = pos
		}
		info.partitionFields[i] = positions
	}
	return nil
}

// normalize fills in the field-level comparator when the element names none.
func normalize(e core.SortElement, f core.Field) core.SortElement {
	if e.Comparator == "" {
		e.Comparator = f.Comparator
	}
	return e
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

// NumSources returns the number of sources.
func (info *Info) NumSources() int { return info.numSources }

// MultiSource reports whether intermediate tuples carry a source id and specific part.
func (info *Info) MultiSource() bool { return info.numSources > 1 }

// SourceName returns the name of a source id.
func (info *Info) SourceName(id int) string { return info.sourceNames[id] }

// CommonSchema returns the common schema.
func (info *Info) CommonSchema() *core.Schema { return info.commonSchema }

// CommonCriteria returns the common criteria without the source-order marker.
// Element i orders field i of the common schema.
func (info *Info) CommonCriteria() core.Criteria { return info.commonCriteria }

// SourceOrder returns the direction of the source id tie-break.
func (info *Info) SourceOrder() core.Order { return info.sourceOrder }

// CommonTranslation maps common schema positions to physical positions of a source.
func (info *Info) CommonTranslation(source int) []int { return info.commonTranslation[source] }

// GroupSchema returns the common schema prefix holding the group-by fields.
func (info *Info) GroupSchema() *core.Schema { return info.groupSchema }

// GroupCriteria returns the common criteria restricted to the group-by fields.
func (info *Info) GroupCriteria() core.Criteria { return info.groupCriteria }

// SpecificSchema returns the specific schema of a source, nil for single-source layouts.
func (info *Info) SpecificSchema(source int) *core.Schema { return info.specificSchemas[source] }

// SpecificCriteria returns the specific criteria of a source.
// Element i orders field i of the specific schema.
func (info *Info) SpecificCriteria(source int) core.Criteria { return info.specificCriteria[source] }

// SpecificTranslation maps specific schema positions to physical positions of a source.
func (info *Info) SpecificTranslation(source int) []int { return info.specificTranslation[source] }

// PartitionFields returns the physical positions hashed by the partitioner for a source.
func (info *Info) PartitionFields(source int) []int { return info.partitionFields[source] }

// GroupBy returns the group-by field names in depth order.
func (info *Info) GroupBy() []string { return info.groupBy }

// MaxDepth is the deepest group level, the number of group-by fields minus one.
func (info *Info) MaxDepth() int { return info.maxDepth }

// RollupBaseDepth is the first group level that gets open/close callbacks.
func (info *Info) RollupBaseDepth() int { return info.rollupBaseDepth }

// Rollup reports whether rollup is enabled.
func (info *Info) Rollup() bool { return info.rollup }

// SourceCriteria returns the ordering a source's tuples must be sorted by,
// expressed in that source's physical field names.
func (info *Info) SourceCriteria(source int) core.Criteria {
	out := make(core.Criteria, 0, len(info.commonCriteria)+len(info.specificCriteria[source]))
	translation := info.commonTranslation[source]
	for i, e := range info.commonCriteria {
		e.Field = info.physicalName(source, translation[i])
		out = append(out, e)
	}
	return append(out, info.specificCriteria[source]...)
}

func (info *Info) physicalName(source, pos int) string {
	return info.sourceSchemas[source].Field(pos).Name
}

// SourceSchema returns the physical schema of a source.
func (info *Info) SourceSchema(source int) *core.Schema { return info.sourceSchemas[source] }
