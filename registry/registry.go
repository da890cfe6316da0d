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

// Package registry resolves logical field names across sources.
//
// Each source is a schema registered under a unique name. Its id is the
// registration order. A source may declare aliases mapping a logical name,
// shared with the other sources, to one of its own physical fields.
package registry

import (
	"fmt"
	"sort"

	"github.com/aaronlmathis/gocogroup/core"
)

// Source describes one registered input.
type Source struct {
	ID      int
	Name    string
	Schema  *core.Schema
	aliases map[string]string // logical -> physical
}

// Aliases returns a copy of the source's alias map.
func (s *Source) Aliases() map[string]string {
	out := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out
}

// Physical returns the physical field name a logical name refers to.
func (s *Source) Physical(logical string) string {
	if p, ok := s.aliases[logical]; ok {
		return p
	}
	return logical
}

// Logical returns the logical name under which a physical field is known, if aliased.
func (s *Source) Logical(physical string) string {
	for l, p := range s.aliases {
		if p == physical {
			return l
		}
	}
	return physical
}

// Registry holds the registered sources.
type Registry struct {
	sources []*Source
	byName  map[string]*Source
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*Source)}
}

// Register adds a source and returns its id.
func (r *Registry) Register(name string, schema *core.Schema) (int, error) {
	if name == "" {
		return -1, &core.ConfigError{Reason: "source name is required"}
	}
	if schema == nil {
		return -1, &core.ConfigError{Source: name, Reason: "schema is required"}
	}
	if _, exists := r.byName[name]; exists {
		return -1, &core.DuplicateSourceError{Source: name}
	}
	src := &Source{
		ID:      len(r.sources),
		Name:    name,
		Schema:  schema,
		aliases: make(map[string]string),
	}
	r.sources = append(r.sources, src)
	r.byName[name] = src
	return src.ID, nil
}

// SetAlias declares that logical refers to the physical field of source.
func (r *Registry) SetAlias(source, logical, physical string) error {
	src, ok := r.byName[source]
	if !ok {
		return &core.ConfigError{Source: source, Reason: "unknown source"}
	}
	if logical == "" {
		return &core.ConfigError{Source: source, Reason: "alias name is required"}
	}
	if src.Schema.Has(logical) {
		return &core.ConfigError{Source: source, Field: logical,
			Reason: "alias collides with an existing field"}
	}
	if !src.Schema.Has(physical) {
		return &core.UnknownFieldError{Source: source, Field: physical}
	}
	if prev, exists := src.aliases[logical]; exists && prev != physical {
		return &core.ConfigError{Source: source, Field: logical,
			Reason: fmt.Sprintf("alias already refers to %q", prev)}
	}
	src.aliases[logical] = physical
	return nil
}

// Resolve returns the field and physical position that logical refers to in
// source. Aliases are consulted before direct names.
func (r *Registry) Resolve(source, logical string) (core.Field, int, error) {
	src, ok := r.byName[source]
	if !ok {
		return core.Field{}, -1, &core.ConfigError{Source: source, Reason: "unknown source"}
	}
	return src.Resolve(logical)
}

// Resolve returns the field and physical position that logical refers to.
func (s *Source) Resolve(logical string) (core.Field, int, error) {
	if physical, ok := s.aliases[logical]; ok {
		if i := s.Schema.Index(physical); i >= 0 {
			return s.Schema.Field(i), i, nil
		}
	}
	if i := s.Schema.Index(logical); i >= 0 {
		return s.Schema.Field(i), i, nil
	}
	return core.Field{}, -1, &core.UnknownFieldError{Source: s.Name, Field: logical}
}

// Source returns the named source.
func (r *Registry) Source(name string) (*Source, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// SourceByID returns the source with the given id.
func (r *Registry) SourceByID(id int) (*Source, bool) {
	if id < 0 || id >= len(r.sources) {
		return nil, false
	}
	return r.sources[id], true
}

// Sources returns all sources in id order.
func (r *Registry) Sources() []*Source {
	out := make([]*Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Len returns the number of registered sources.
func (r *Registry) Len() int { return len(r.sources) }

// Names returns the source names in id order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.sources))
	for i, s := range r.sources {
		out[i] = s.Name
	}
	return out
}

// sortedAliases returns alias keys in a stable order.
func (s *Source) sortedAliases() []string {
	keys := make([]string, 0, len(s.aliases))
	for k := range s.aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AliasPairs returns (logical, physical) pairs sorted by logical name.
func (s *Source) AliasPairs() [][2]string {
	keys := s.sortedAliases()
	out := make([][2]string, len(keys))
	for i, k := range keys {
		out[i] = [2]string{k, s.aliases[k]}
	}
	return out
}
