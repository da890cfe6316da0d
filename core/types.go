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
	"bytes"
	"fmt"
	"reflect"
	"strings"
)

// Package core defines the data model of the GoCogroup library.
//
// This file contains field types, fields, schemas and the reusable Tuple value holder.

// FieldType identifies the type of a schema field.
type FieldType int

const (
	Int32 FieldType = iota
	Int64
	Float32
	Float64
	Boolean
	Utf8String
	Bytes
	Enum
	Object
)

var fieldTypeNames = [...]string{
	Int32:      "int32",
	Int64:      "int64",
	Float32:    "float32",
	Float64:    "float64",
	Boolean:    "boolean",
	Utf8String: "string",
	Bytes:      "bytes",
	Enum:       "enum",
	Object:     "object",
}

// String returns the portable name of the type.
func (t FieldType) String() string {
	if t < 0 || int(t) >= len(fieldTypeNames) {
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
	return fieldTypeNames[t]
}

// ParseFieldType is the inverse of FieldType.String.
func ParseFieldType(name string) (FieldType, error) {
	for i, n := range fieldTypeNames {
		if n == name {
			return FieldType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (t FieldType) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(fieldTypeNames) {
		return nil, fmt.Errorf("invalid field type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *FieldType) UnmarshalText(text []byte) error {
	parsed, err := ParseFieldType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Field describes one named, typed schema field.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	// ObjectClass names the registered serializer of an Object field.
	ObjectClass string `json:"objectClass,omitempty"`
	// Symbols optionally lists the names of an Enum field, indexed by ordinal.
	Symbols []string `json:"symbols,omitempty"`
	// Comparator names a registered custom comparator. Only legal on Object fields.
	Comparator string `json:"comparator,omitempty"`
}

// NewField creates a field of a primitive type.
func NewField(name string, t FieldType) Field {
	return Field{Name: name, Type: t}
}

// NewObjectField creates an Object field serialized by the given class.
func NewObjectField(name, objectClass string) Field {
	return Field{Name: name, Type: Object, ObjectClass: objectClass}
}

// NewEnumField creates an Enum field with the given symbols.
func NewEnumField(name string, symbols ...string) Field {
	s := make([]string, len(symbols))
	copy(s, symbols)
	return Field{Name: name, Type: Enum, Symbols: s}
}

// SameType reports whether two fields carry values of the same type.
func (f Field) SameType(o Field) bool {
	if f.Type != o.Type {
		return false
	}
	if f.Type == Object && f.ObjectClass != o.ObjectClass {
		return false
	}
	return true
}

// TypeString renders the type, including the object class for Object fields.
func (f Field) TypeString() string {
	if f.Type == Object {
		return "object(" + f.ObjectClass + ")"
	}
	return f.Type.String()
}

// Schema is a named, ordered list of uniquely named fields.
// A Schema is immutable once created.
type Schema struct {
	name   string
	fields []Field
	index  map[string]int
}

// NewSchema validates and creates a schema.
func NewSchema(name string, fields ...Field) (*Schema, error) {
	if name == "" {
		return nil, &ConfigError{Reason: "schema name is required"}
	}
	s := &Schema{
		name:   name,
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, &ConfigError{Source: name, Reason: fmt.Sprintf("field %d has no name", i)}
		}
		if f.Name == SourceOrderField {
			return nil, &ConfigError{Source: name, Field: f.Name, Reason: "reserved field name"}
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, &ConfigError{Source: name, Field: f.Name, Reason: "duplicate field name"}
		}
		if f.Type < Int32 || f.Type > Object {
			return nil, &ConfigError{Source: name, Field: f.Name, Reason: fmt.Sprintf("invalid field type %d", int(f.Type))}
		}
		if f.Type == Object && f.ObjectClass == "" {
			return nil, &ConfigError{Source: name, Field: f.Name, Reason: "object field requires an object class"}
		}
		if f.Comparator != "" && f.Type != Object {
			return nil, &ConfigError{Source: name, Field: f.Name, Reason: "custom comparator is only allowed on object fields"}
		}
		if f.Symbols != nil {
			f.Symbols = append([]string(nil), f.Symbols...)
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error. Intended for tests and static schemas.
func MustSchema(name string, fields ...Field) *Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Field returns the field at position i.
func (s *Schema) Field(i int) Field { return s.fields[i] }

// Fields returns a copy of the field list.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Index returns the position of the field with the given name, or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Has reports whether a field with the given name exists.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Equal reports whether two schemas have the same name and fields.
func (s *Schema) Equal(o *Schema) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || s.name != o.name {
		return false
	}
	return reflect.DeepEqual(s.fields, o.fields)
}

func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.Name + ":" + f.TypeString()
	}
	return s.name + "{" + strings.Join(parts, ",") + "}"
}

// Tuple is an ordered, schema-typed record of field values.
//
// Tuples are reusable buffers: a tuple handed to a callback is only valid for
// the duration of that callback. Use Clone to keep one.
type Tuple struct {
	schema *Schema
	values []any
}

// NewTuple creates an empty tuple for the schema.
func NewTuple(s *Schema) *Tuple {
	return &Tuple{schema: s, values: make([]any, s.Len())}
}

// NewTupleOf creates a tuple and sets its values positionally.
func NewTupleOf(s *Schema, values ...any) (*Tuple, error) {
	if len(values) != s.Len() {
		return nil, fmt.Errorf("schema %s has %d fields, got %d values", s.Name(), s.Len(), len(values))
	}
	t := NewTuple(s)
	copy(t.values, values)
	return t, nil
}

// Schema returns the tuple's schema.
func (t *Tuple) Schema() *Schema { return t.schema }

// Len returns the number of fields.
func (t *Tuple) Len() int { return len(t.values) }

// Get returns the value at position i.
func (t *Tuple) Get(i int) any { return t.values[i] }

// Set stores the value at position i.
func (t *Tuple) Set(i int, v any) { t.values[i] = v }

// GetByName returns the value of the named field.
func (t *Tuple) GetByName(name string) (any, bool) {
	i := t.schema.Index(name)
	if i < 0 {
		return nil, false
	}
	return t.values[i], true
}

// SetByName stores the value of the named field.
func (t *Tuple) SetByName(name string, v any) error {
	i := t.schema.Index(name)
	if i < 0 {
		return &UnknownFieldError{Source: t.schema.Name(), Field: name}
	}
	t.values[i] = v
	return nil
}

// Values returns the underlying value slice. Callers must not retain it.
func (t *Tuple) Values() []any { return t.values }

// Clone returns a deep copy. Byte slices are copied, other values are copied by assignment.
func (t *Tuple) Clone() *Tuple {
	c := &Tuple{schema: t.schema, values: make([]any, len(t.values))}
	c.copyValues(t)
	return c
}

// CopyFrom overwrites t with a deep copy of src, reusing t's storage when possible.
func (t *Tuple) CopyFrom(src *Tuple) {
	t.schema = src.schema
	if cap(t.values) < len(src.values) {
		t.values = make([]any, len(src.values))
	}
	t.values = t.values[:len(src.values)]
	t.copyValues(src)
}

func (t *Tuple) copyValues(src *Tuple) {
	for i, v := range src.values {
		if b, ok := v.([]byte); ok {
			// Keep the destination buffer if it is large enough.
			if old, ok := t.values[i].([]byte); ok && cap(old) >= len(b) && len(b) > 0 {
				old = old[:len(b)]
				copy(old, b)
				t.values[i] = old
				continue
			}
			nb := make([]byte, len(b))
			copy(nb, b)
			t.values[i] = nb
			continue
		}
		t.values[i] = v
	}
}

// Equal reports whether two tuples have equal schemas and values.
func (t *Tuple) Equal(o *Tuple) bool {
	if !t.schema.Equal(o.schema) || len(t.values) != len(o.values) {
		return false
	}
	for i := range t.values {
		if !ValuesEqual(t.values[i], o.values[i]) {
			return false
		}
	}
	return true
}

func (t *Tuple) String() string {
	var sb strings.Builder
	sb.WriteString(t.schema.Name())
	sb.WriteByte('{')
	for i, v := range t.values {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%v", t.schema.fields[i].Name, v)
	}
	sb.WriteByte('}')
	return sb.String()
}

// ValuesEqual compares two field values for exact equality.
func ValuesEqual(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	return reflect.DeepEqual(a, b)
}
