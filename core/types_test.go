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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blobSchema() *Schema {
	return MustSchema("blobs",
		NewField("key", Utf8String),
		NewField("data", Bytes),
	)
}

// TestTuple_CloneDoesNotAlias tests that cloned byte fields own their storage
func TestTuple_CloneDoesNotAlias(t *testing.T) {
	src, err := NewTupleOf(blobSchema(), "a", []byte{1, 2, 3})
	require.NoError(t, err)

	c := src.Clone()
	require.True(t, c.Equal(src))
	src.Get(1).([]byte)[0] = 9
	src.Set(0, "b")

	assert.Equal(t, []byte{1, 2, 3}, c.Get(1))
	assert.Equal(t, "a", c.Get(0))
	assert.False(t, c.Equal(src))
}

// TestTuple_CopyFromReusesStorage tests that CopyFrom copies into the destination buffer
func TestTuple_CopyFromReusesStorage(t *testing.T) {
	schema := blobSchema()
	dst, err := NewTupleOf(schema, "old", make([]byte, 8))
	require.NoError(t, err)
	buf := dst.Get(1).([]byte)

	src, err := NewTupleOf(schema, "new", []byte{4, 5})
	require.NoError(t, err)
	dst.CopyFrom(src)
	require.True(t, dst.Equal(src))

	got := dst.Get(1).([]byte)
	assert.Same(t, &buf[0], &got[0], "destination buffer is reused")
	src.Get(1).([]byte)[0] = 7
	assert.Equal(t, []byte{4, 5}, dst.Get(1), "source changes do not leak into the copy")

	// A larger value needs a fresh buffer.
	big, err := NewTupleOf(schema, "big", make([]byte, 32))
	require.NoError(t, err)
	dst.CopyFrom(big)
	big.Get(1).([]byte)[0] = 1
	assert.Equal(t, byte(0), dst.Get(1).([]byte)[0])

	// An empty tuple adopts the source schema.
	empty := &Tuple{}
	empty.CopyFrom(src)
	assert.True(t, empty.Schema().Equal(schema))
	assert.Equal(t, 2, empty.Len())
}

// TestNewSchema_Validation tests rejected schema declarations
func TestNewSchema_Validation(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		fields []Field
	}{
		{"no name", "", []Field{NewField("a", Int32)}},
		{"unnamed field", "s", []Field{NewField("", Int32)}},
		{"reserved name", "s", []Field{NewField(SourceOrderField, Int32)}},
		{"duplicate field", "s", []Field{NewField("a", Int32), NewField("a", Int64)}},
		{"object without class", "s", []Field{NewField("o", Object)}},
		{"comparator on primitive", "s", []Field{{Name: "a", Type: Int32, Comparator: "c"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchema(tt.schema, tt.fields...)
			var ce *ConfigError
			assert.True(t, errors.As(err, &ce), "got %v", err)
		})
	}

	s := MustSchema("s", NewField("a", Int32), NewEnumField("e", "x", "y"))
	assert.Equal(t, 1, s.Index("e"))
	assert.Equal(t, -1, s.Index("z"))
	assert.Panics(t, func() { MustSchema("") })
}

// TestTuple_ByName tests named access and arity checks
func TestTuple_ByName(t *testing.T) {
	tup, err := NewTupleOf(blobSchema(), "k", []byte("v"))
	require.NoError(t, err)
	v, ok := tup.GetByName("key")
	assert.True(t, ok)
	assert.Equal(t, "k", v)
	_, ok = tup.GetByName("nope")
	assert.False(t, ok)

	require.NoError(t, tup.SetByName("key", "k2"))
	var ue *UnknownFieldError
	assert.ErrorAs(t, tup.SetByName("nope", 1), &ue)

	_, err = NewTupleOf(blobSchema(), "only one")
	assert.Error(t, err)
}
