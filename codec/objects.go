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

package codec

import (
	"fmt"
	"sync"

	"github.com/aaronlmathis/gocogroup/core"
	"go.mongodb.org/mongo-driver/bson"
)

// ObjectRegistry resolves Object serializers by class and custom comparators
// by name. Configurations only carry the names, so every worker builds its
// own registry with the same registrations.
type ObjectRegistry struct {
	mu          sync.RWMutex
	serializers map[string]core.ObjectSerializer
	comparators map[string]core.ObjectComparator
}

// NewObjectRegistry creates an empty registry.
func NewObjectRegistry() *ObjectRegistry {
	return &ObjectRegistry{
		serializers: make(map[string]core.ObjectSerializer),
		comparators: make(map[string]core.ObjectComparator),
	}
}

// RegisterSerializer registers the serializer of an object class.
func (r *ObjectRegistry) RegisterSerializer(class string, s core.ObjectSerializer) error {
	if class == "" || s == nil {
		return fmt.Errorf("object registry: class and serializer are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.serializers[class]; exists {
		return fmt.Errorf("object registry: serializer for class %q already registered", class)
	}
	r.serializers[class] = s
	return nil
}

// RegisterComparator registers a named custom comparator.
func (r *ObjectRegistry) RegisterComparator(name string, c core.ObjectComparator) error {
	if name == "" || c == nil {
		return fmt.Errorf("object registry: name and comparator are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.comparators[name]; exists {
		return fmt.Errorf("object registry: comparator %q already registered", name)
	}
	r.comparators[name] = c
	return nil
}

// Serializer returns the serializer of an object class.
func (r *ObjectRegistry) Serializer(class string) (core.ObjectSerializer, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.serializers[class]
	return s, ok
}

// Comparator returns a named comparator.
func (r *ObjectRegistry) Comparator(name string) (core.ObjectComparator, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.comparators[name]
	return c, ok
}

// bsonEnvelope wraps a value so that non-document values can be stored as BSON.
type bsonEnvelope[T any] struct {
	V T `bson:"v"`
}

// BSONSerializer encodes Object values of type T as BSON documents.
type BSONSerializer[T any] struct{}

// NewBSONSerializer returns a serializer for values of type T.
func NewBSONSerializer[T any]() BSONSerializer[T] { return BSONSerializer[T]{} }

// Marshal implements core.ObjectSerializer.
func (BSONSerializer[T]) Marshal(v any) ([]byte, error) {
	var typed T
	switch tv := v.(type) {
	case T:
		typed = tv
	case *T:
		if tv == nil {
			return nil, fmt.Errorf("bson serializer: nil %T", v)
		}
		typed = *tv
	default:
		return nil, fmt.Errorf("bson serializer: expected %T, got %T", typed, v)
	}
	return bson.Marshal(bsonEnvelope[T]{V: typed})
}

// Unmarshal implements core.ObjectSerializer.
func (BSONSerializer[T]) Unmarshal(data []byte) (any, error) {
	var env bsonEnvelope[T]
	if err := bson.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return env.V, nil
}
