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
	"encoding/json"
	"fmt"

	"github.com/aaronlmathis/gocogroup/core"
	"github.com/go-logr/logr"
)

// PortableVersion is the version of the portable form written by ToPortable.
const PortableVersion = 1

// Portable is the value form of a Config shipped from the planner to workers.
// Comparators and object serializers are referenced by name only.
type Portable struct {
	Version       int                      `json:"version"`
	Sources       []PortableSource         `json:"sources"`
	GroupBy       []string                 `json:"groupBy"`
	OrderBy       core.Criteria            `json:"orderBy,omitempty"`
	SpecificOrder map[string]core.Criteria `json:"specificOrderBy,omitempty"`
	RollupFrom    string                   `json:"rollupFrom,omitempty"`
	PartitionBy   []string                 `json:"partitionBy,omitempty"`
}

// PortableSource is one source schema with its aliases.
type PortableSource struct {
	Name    string            `json:"name"`
	Schema  string            `json:"schema"`
	Fields  []core.Field      `json:"fields"`
	Aliases map[string]string `json:"aliases,omitempty"`
}

// ToPortable encodes a configuration as JSON.
func ToPortable(c *Config) ([]byte, error) {
	p := Portable{
		Version:     PortableVersion,
		GroupBy:     c.GroupBy(),
		RollupFrom:  c.rollupFrom,
		PartitionBy: c.PartitionBy(),
	}
	for _, src := range c.reg.Sources() {
		ps := PortableSource{Name: src.Name, Schema: src.Schema.Name(), Fields: src.Schema.Fields()}
		if aliases := src.Aliases(); len(aliases) > 0 {
			ps.Aliases = aliases
		}
		p.Sources = append(p.Sources, ps)
	}
	if c.explicitOrder {
		p.OrderBy = c.CommonOrder()
	}
	if len(c.specific) > 0 {
		p.SpecificOrder = make(map[string]core.Criteria, len(c.specific))
		for name, crit := range c.specific {
			p.SpecificOrder[name] = crit.Clone()
		}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("config: encode portable form: %w", err)
	}
	return data, nil
}

// FromPortable rebuilds and revalidates a configuration from its portable form.
func FromPortable(data []byte, logger logr.Logger) (*Config, error) {
	var p Portable
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: decode portable form: %w", err)
	}
	if p.Version != PortableVersion {
		return nil, fmt.Errorf("config: unsupported portable version %d", p.Version)
	}
	b := NewBuilder().WithLogger(logger)
	for _, ps := range p.Sources {
		schema, err := core.NewSchema(ps.Schema, ps.Fields...)
		if err != nil {
			return nil, err
		}
		b.AddSource(ps.Name, schema)
	}
	for _, ps := range p.Sources {
		for logical, physical := range ps.Aliases {
			b.SetAlias(ps.Name, logical, physical)
		}
	}
	b.GroupBy(p.GroupBy...)
	if len(p.OrderBy) > 0 {
		b.OrderBy(p.OrderBy)
	}
	for _, src := range p.Sources {
		if crit, ok := p.SpecificOrder[src.Name]; ok {
			b.SpecificOrderBy(src.Name, crit)
		}
	}
	if p.RollupFrom != "" {
		b.RollupFrom(p.RollupFrom)
	}
	if len(p.PartitionBy) > 0 {
		b.PartitionBy(p.PartitionBy...)
	}
	return b.Build()
}
