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

package config

import (
	"reflect"
	"slices"
	"sync"

	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aaronlmathis/gocogroup/registry"
	"github.com/aaronlmathis/gocogroup/serialization"
)

// Config is a validated, immutable co-grouping configuration.
type Config struct {
	reg *registry.Registry

	groupBy       []string
	common        core.Criteria
	explicitOrder bool
	specific      map[string]core.Criteria
	rollupFrom    string
	partitionBy   []string

	once    sync.Once
	info    *serialization.Info
	infoErr error
}

// Info returns the serialization info, derived on first use.
func (c *Config) Info() (*serialization.Info, error) {
	c.once.Do(func() {
		c.info, c.infoErr = serialization.Derive(c.Plan())
	})
	return c.info, c.infoErr
}

// Plan returns the derivation input of the configuration.
func (c *Config) Plan() serialization.Plan {
	specific := make(map[int]core.Criteria, len(c.specific))
	for name, crit := range c.specific {
		src, _ := c.reg.Source(name)
		specific[src.ID] = crit.Clone()
	}
	return serialization.Plan{
		Sources:         c.reg,
		GroupBy:         slices.Clone(c.groupBy),
		Common:          c.common.Clone(),
		Specific:        specific,
		RollupFrom:      c.rollupFrom,
		PartitionFields: slices.Clone(c.partitionBy),
	}
}

// Sources returns the registered sources in id order.
func (c *Config) Sources() []*registry.Source { return c.reg.Sources() }

// Source returns a source by name.
func (c *Config) Source(name string) (*registry.Source, bool) { return c.reg.Source(name) }

// GroupBy returns the group-by fields in the order they are sorted by.
func (c *Config) GroupBy() []string { return slices.Clone(c.groupBy) }

// CommonOrder returns the common order, including the source order of multi-source configurations.
func (c *Config) CommonOrder() core.Criteria { return c.common.Clone() }

// ExplicitOrder reports whether the common order was set explicitly.
func (c *Config) ExplicitOrder() bool { return c.explicitOrder }

// SpecificOrder returns the specific order of a source, or nil.
func (c *Config) SpecificOrder(source string) core.Criteria { return c.specific[source].Clone() }

// RollupFrom returns the rollup start field, or "" when rollup is disabled.
func (c *Config) RollupFrom() string { return c.rollupFrom }

// PartitionBy returns the custom partition fields, or nil.
func (c *Config) PartitionBy() []string { return slices.Clone(c.partitionBy) }

// Comparators returns the names of every custom comparator the configuration refers to.
func (c *Config) Comparators() []string {
	var names []string
	add := func(n string) {
		if n != "" && !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	for _, src := range c.reg.Sources() {
		for _, f := range src.Schema.Fields() {
			add(f.Comparator)
		}
	}
	for _, e := range c.common {
		add(e.Comparator)
	}
	for _, crit := range c.specific {
		for _, e := range crit {
			add(e.Comparator)
		}
	}
	slices.Sort(names)
	return names
}

// ObjectClasses returns the object classes used by any source field.
func (c *Config) ObjectClasses() []string {
	var classes []string
	for _, src := range c.reg.Sources() {
		for _, f := range src.Schema.Fields() {
			if f.Type == core.Object && !slices.Contains(classes, f.ObjectClass) {
				classes = append(classes, f.ObjectClass)
			}
		}
	}
	slices.Sort(classes)
	return classes
}

// Equal reports whether two configurations declare the same sources, aliases and orders.
func (c *Config) Equal(o *Config) bool {
	if c == o {
		return true
	}
	if c == nil || o == nil {
		return false
	}
	a, b := c.reg.Sources(), o.reg.Sources()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !a[i].Schema.Equal(b[i].Schema) ||
			!reflect.DeepEqual(a[i].AliasPairs(), b[i].AliasPairs()) {
			return false
		}
	}
	if len(c.specific) != len(o.specific) {
		return false
	}
	for name, crit := range c.specific {
		if !slices.Equal(crit, o.specific[name]) {
			return false
		}
	}
	return slices.Equal(c.groupBy, o.groupBy) &&
		slices.Equal(c.common, o.common) &&
		c.explicitOrder == o.explicitOrder &&
		c.rollupFrom == o.rollupFrom &&
		slices.Equal(c.partitionBy, o.partitionBy)
}

// snapshot copies a registry so that later builder calls cannot change a built Config.
func snapshot(reg *registry.Registry) (*registry.Registry, error) {
	out := registry.New()
	for _, src := range reg.Sources() {
		if _, err := out.Register(src.Name, src.Schema); err != nil {
			return nil, err
		}
		for _, pair := range src.AliasPairs() {
			if err := out.SetAlias(src.Name, pair[0], pair[1]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
