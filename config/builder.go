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

// Package config builds and validates co-grouping configurations.
//
// Example usage:
//
//	cfg, err := config.NewBuilder().
//	    AddSource("pages", pages).
//	    AddSource("visits", visits).
//	    SetAlias("visits", "url", "page").
//	    GroupBy("url").
//	    OrderBy(core.NewCriteria().Add("url", core.Asc).AddSourceOrder(core.Asc)).
//	    SpecificOrderBy("visits", core.NewCriteria().Add("ts", core.Desc)).
//	    Build()
//	if err != nil { log.Fatal(err) }
package config

import (
	"errors"
	"fmt"

	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aaronlmathis/gocogroup/registry"
	"github.com/go-logr/logr"
)

// Builder provides a fluent API for constructing a Config. Setters record
// their errors and Build reports all of them.
type Builder struct {
	reg *registry.Registry

	groupBy       []string
	order         core.Criteria
	explicitOrder bool
	specific      map[string]core.Criteria
	rollupFrom    string
	partitionBy   []string

	logger logr.Logger
	errs   []error
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		reg:      registry.New(),
		specific: make(map[string]core.Criteria),
		logger:   logr.Discard(),
	}
}

// WithLogger sets the logger used to report configuration warnings.
func (b *Builder) WithLogger(l logr.Logger) *Builder {
	b.logger = l
	return b
}

// AddSource registers a source schema under name. Sources get ids in call order.
func (b *Builder) AddSource(name string, schema *core.Schema) *Builder {
	if schema == nil {
		return b.fail(&core.ConfigError{Source: name, Reason: "schema is required"})
	}
	if _, err := b.reg.Register(name, schema); err != nil {
		return b.fail(err)
	}
	return b
}

// SetAlias maps a logical field name to a physical field of a source.
func (b *Builder) SetAlias(source, logical, physical string) *Builder {
	if err := b.reg.SetAlias(source, logical, physical); err != nil {
		return b.fail(err)
	}
	return b
}

// GroupBy sets the fields tuples are grouped by.
func (b *Builder) GroupBy(fields ...string) *Builder {
	if len(fields) == 0 {
		return b.fail(&core.ConfigError{Reason: "group-by requires at least one field"})
	}
	b.groupBy = append([]string(nil), fields...)
	return b
}

// OrderBy sets the common order. The group-by fields must come first and a
// source order, when present, must be last.
// Without it the common order is the group-by fields ascending.
func (b *Builder) OrderBy(c core.Criteria) *Builder {
	if len(c) == 0 {
		return b.fail(&core.ConfigError{Reason: "order-by requires at least one element"})
	}
	b.order = c.Clone()
	b.explicitOrder = true
	return b
}

// SpecificOrderBy sets the secondary order of one source, applied after the
// common order and the source tie-break.
func (b *Builder) SpecificOrderBy(source string, c core.Criteria) *Builder {
	if !b.explicitOrder || b.order.SourceOrderIndex() < 0 {
		return b.fail(&core.ConfigError{Source: source, Reason: "specific order requires a common order with a source order set first"})
	}
	if _, ok := b.reg.Source(source); !ok {
		return b.fail(&core.ConfigError{Source: source, Reason: "unknown source"})
	}
	if c.SourceOrderIndex() >= 0 {
		return b.fail(&core.ConfigError{Source: source, Reason: "source order is not allowed in a specific order"})
	}
	if _, dup := b.specific[source]; dup {
		return b.fail(&core.ConfigError{Source: source, Reason: "specific order is already set"})
	}
	b.specific[source] = c.Clone()
	return b
}

// RollupFrom enables rollup starting at a group-by field. It requires an
// explicit common order.
func (b *Builder) RollupFrom(field string) *Builder {
	if !b.explicitOrder {
		return b.fail(&core.ConfigError{Field: field, Reason: "rollup requires an explicit common order set first"})
	}
	b.rollupFrom = field
	return b
}

// PartitionBy overrides the fields tuples are partitioned by. Tuples of one
// group only co-locate when the fields are a subset of the rollup base fields;
// this is the caller's responsibility.
func (b *Builder) PartitionBy(fields ...string) *Builder {
	if len(fields) == 0 {
		return b.fail(&core.ConfigError{Reason: "partition-by requires at least one field"})
	}
	b.partitionBy = append([]string(nil), fields...)
	return b
}

func (b *Builder) fail(err error) *Builder {
	b.errs = append(b.errs, err)
	return b
}

// Build validates the configuration, derives its serialization info and
// returns the immutable Config.
func (b *Builder) Build() (*Config, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	cfg, err := b.validate()
	if err != nil {
		return nil, err
	}
	if _, err := cfg.Info(); err != nil {
		return nil, err
	}
	b.logger.V(1).Info("configuration built",
		"sources", cfg.reg.Names(),
		"groupBy", cfg.groupBy,
		"order", cfg.common.String(),
		"rollupFrom", cfg.rollupFrom)
	return cfg, nil
}

func (b *Builder) validate() (*Config, error) {
	if b.reg.Len() == 0 {
		return nil, &core.ConfigError{Reason: "at least one source is required"}
	}
	if len(b.groupBy) == 0 {
		return nil, &core.ConfigError{Reason: "group-by fields are required"}
	}
	multi := b.reg.Len() > 1

	var errs []error
	seen := make(map[string]bool)
	for _, g := range b.groupBy {
		if seen[g] {
			errs = append(errs, &core.ConfigError{Field: g, Reason: "duplicate group-by field"})
			continue
		}
		seen[g] = true
		if _, err := b.commonField(g); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	common := b.order.Clone()
	if !b.explicitOrder {
		common = core.NewCriteria()
		for _, g := range b.groupBy {
			common = common.Add(g, core.Asc)
		}
	}
	if err := b.validateCommon(common, multi); err != nil {
		return nil, err
	}
	if multi && common.SourceOrderIndex() < 0 {
		common = common.AddSourceOrder(core.Asc)
	}

	// Group-by fields listed in the order they are sorted by.
	groupBy := common.Fields()[:len(b.groupBy)]

	specific := make(map[string]core.Criteria, len(b.specific))
	for source, c := range b.specific {
		if err := b.validateSpecific(source, c, common); err != nil {
			errs = append(errs, err)
			continue
		}
		specific[source] = c
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	base := len(groupBy) - 1
	if b.rollupFrom != "" {
		base = indexOf(groupBy, b.rollupFrom)
		if base < 0 {
			return nil, &core.ConfigError{Field: b.rollupFrom, Reason: "rollup-from must be a group-by field"}
		}
	}

	for _, p := range b.partitionBy {
		if _, err := b.commonField(p); err != nil {
			errs = append(errs, err)
			continue
		}
		if indexOf(groupBy[:base+1], p) < 0 {
			b.logger.Info("partition field is not a group field; tuples of one group may land in different partitions",
				"field", p, "groupFields", groupBy[:base+1])
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	reg, err := snapshot(b.reg)
	if err != nil {
		return nil, err
	}
	return &Config{
		reg:           reg,
		groupBy:       groupBy,
		common:        common,
		explicitOrder: b.explicitOrder,
		specific:      specific,
		rollupFrom:    b.rollupFrom,
		partitionBy:   b.partitionBy,
	}, nil
}

// commonField resolves a logical field in every source and checks that its
// type is the same everywhere.
func (b *Builder) commonField(name string) (core.Field, error) {
	var ref core.Field
	for i, src := range b.reg.Sources() {
		f, _, err := src.Resolve(name)
		if err != nil {
			return core.Field{}, &core.ConfigError{Source: src.Name, Field: name, Reason: "field is not present in every source"}
		}
		if i == 0 {
			ref = f
			continue
		}
		if !ref.SameType(f) {
			return core.Field{}, &core.ConfigError{Source: src.Name, Field: name,
				Reason: fmt.Sprintf("type %s differs from %s in another source", f.TypeString(), ref.TypeString())}
		}
	}
	return ref, nil
}

func (b *Builder) validateCommon(c core.Criteria, multi bool) error {
	marker := -1
	seen := make(map[string]bool, len(c))
	for i, e := range c {
		if e.IsSourceOrder() {
			if !multi {
				return &core.ConfigError{Field: e.Field, Reason: "source order is only allowed with more than one source"}
			}
			if marker >= 0 {
				return &core.ConfigError{Field: e.Field, Reason: "source order is set more than once"}
			}
			if e.Comparator != "" {
				return &core.ConfigError{Field: e.Field, Reason: "source order cannot use a comparator"}
			}
			marker = i
			continue
		}
		if marker >= 0 {
			return &core.ConfigError{Field: e.Field, Reason: "common order fields must come before the source order; use a specific order instead"}
		}
		if seen[e.Field] {
			return &core.ConfigError{Field: e.Field, Reason: "duplicate order-by field"}
		}
		seen[e.Field] = true
		f, err := b.commonField(e.Field)
		if err != nil {
			return err
		}
		if e.Comparator != "" && f.Type != core.Object {
			return &core.ConfigError{Field: e.Field, Reason: "custom comparator is only allowed on object fields"}
		}
	}
	n := len(b.groupBy)
	if marker >= 0 && marker < n {
		return &core.ConfigError{Field: core.SourceOrderField, Reason: "source order must come after the group-by fields"}
	}
	if len(c) < n {
		return &core.ConfigError{Reason: "order-by must start with every group-by field"}
	}
	group := make(map[string]bool, n)
	for _, g := range b.groupBy {
		group[g] = true
	}
	for _, e := range c[:n] {
		if !group[e.Field] {
			return &core.ConfigError{Field: e.Field, Reason: "order-by must start with the group-by fields"}
		}
	}
	return nil
}

func (b *Builder) validateSpecific(source string, c core.Criteria, common core.Criteria) error {
	src, _ := b.reg.Source(source)
	taken := make(map[int]bool)
	for _, name := range common.Fields() {
		_, pos, err := src.Resolve(name)
		if err != nil {
			return &core.ConfigError{Source: source, Field: name, Reason: "common field is not present"}
		}
		taken[pos] = true
	}
	for _, e := range c {
		f, pos, err := src.Resolve(e.Field)
		if err != nil {
			return &core.ConfigError{Source: source, Field: e.Field, Reason: "specific order field is not present in the source"}
		}
		if taken[pos] {
			return &core.ConfigError{Source: source, Field: e.Field, Reason: "specific order field is already ordered by the common order"}
		}
		taken[pos] = true
		if e.Comparator != "" && f.Type != core.Object {
			return &core.ConfigError{Source: source, Field: e.Field, Reason: "custom comparator is only allowed on object fields"}
		}
	}
	return nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
