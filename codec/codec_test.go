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
	"errors"
	"io"
	"math"
	"testing"

	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aaronlmathis/gocogroup/registry"
	"github.com/aaronlmathis/gocogroup/serialization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X int32 `bson:"x"`
	Y int32 `bson:"y"`
}

func allTypesSchema() *core.Schema {
	return core.MustSchema("all",
		core.NewField("i32", core.Int32),
		core.NewField("i64", core.Int64),
		core.NewField("f32", core.Float32),
		core.NewField("f64", core.Float64),
		core.NewField("b", core.Boolean),
		core.NewField("s", core.Utf8String),
		core.NewField("raw", core.Bytes),
		core.NewEnumField("color", "red", "green", "blue"),
		core.NewObjectField("pt", "point"),
	)
}

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	objects := NewObjectRegistry()
	require.NoError(t, objects.RegisterSerializer("point", NewBSONSerializer[point]()))
	return New(objects)
}

// TestVarInt_RoundTrip tests boundary values of the variable-length integer encoding
func TestVarInt_RoundTrip(t *testing.T) {
	values := []int64{
		0, 1, -1, 127, 128, -112, -113, 255, 256, -256, -257,
		math.MaxInt32, math.MinInt32, math.MaxInt64, math.MinInt64,
	}
	for _, v := range values {
		buf := AppendVarInt(nil, v)
		assert.Equal(t, VarIntLen(v), len(buf), "len of %d", v)
		assert.Equal(t, len(buf), VarIntSize(buf[0]), "announced size of %d", v)

		got, n, err := ReadVarInt(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(buf), n)
	}
}

// TestVarInt_SingleByteRange tests that small values use one byte
func TestVarInt_SingleByteRange(t *testing.T) {
	assert.Len(t, AppendVarInt(nil, -112), 1)
	assert.Len(t, AppendVarInt(nil, 127), 1)
	assert.Len(t, AppendVarInt(nil, -113), 2)
	assert.Len(t, AppendVarInt(nil, 128), 2)
	assert.Len(t, AppendVarInt(nil, math.MaxInt64), 9)
}

// TestVarInt_Truncated tests that a cut encoding is reported
func TestVarInt_Truncated(t *testing.T) {
	buf := AppendVarInt(nil, 1<<40)
	_, _, err := ReadVarInt(buf[:3], 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, _, err = ReadVarInt(nil, 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// TestCodec_RoundTrip tests that every type decodes to the encoded value
func TestCodec_RoundTrip(t *testing.T) {
	c := newTestCodec(t)
	schema := allTypesSchema()

	tests := []struct {
		name   string
		values []any
	}{
		{"typical", []any{int32(7), int64(-9000), float32(1.5), 3.25, true, "hello", []byte{1, 2, 3}, int32(2), point{X: 1, Y: -2}}},
		{"extremes", []any{int32(math.MinInt32), int64(math.MaxInt64), float32(-0.0), math.Inf(-1), false, "", []byte{}, int32(0), point{}}},
		{"min int64", []any{int32(math.MaxInt32), int64(math.MinInt64), float32(math.MaxFloat32), math.SmallestNonzeroFloat64, true, "héllo wörld 日本", []byte{0xff}, int32(1), point{X: math.MaxInt32}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := core.NewTupleOf(schema, tt.values...)
			require.NoError(t, err)

			buf, err := c.Encode([]byte{0xAA}, in, schema)
			require.NoError(t, err)
			assert.Equal(t, byte(0xAA), buf[0], "Encode must append")

			out, n, err := c.Decode(buf[1:], schema)
			require.NoError(t, err)
			assert.Equal(t, len(buf)-1, n)
			assert.True(t, in.Equal(out), "want %v got %v", in, out)
		})
	}
}

// TestCodec_ConsumesExactly tests that concatenated tuples decode one after the other
func TestCodec_ConsumesExactly(t *testing.T) {
	c := newTestCodec(t)
	schema := core.MustSchema("kv", core.NewField("k", core.Utf8String), core.NewField("v", core.Int64))

	a, _ := core.NewTupleOf(schema, "a", int64(1))
	b, _ := core.NewTupleOf(schema, "bb", int64(1<<33))
	buf, err := c.Encode(nil, a, schema)
	require.NoError(t, err)
	buf, err = c.Encode(buf, b, schema)
	require.NoError(t, err)

	first, n, err := c.Decode(buf, schema)
	require.NoError(t, err)
	assert.True(t, a.Equal(first))

	second, m, err := c.Decode(buf[n:], schema)
	require.NoError(t, err)
	assert.True(t, b.Equal(second))
	assert.Equal(t, len(buf), n+m)
}

// TestCodec_Truncated tests that every proper prefix of an encoding fails with a DecodeError
func TestCodec_Truncated(t *testing.T) {
	c := newTestCodec(t)
	schema := allTypesSchema()
	in, err := core.NewTupleOf(schema, int32(300), int64(1<<40), float32(2), 4.0, true, "abc", []byte{9}, int32(1), point{X: 3})
	require.NoError(t, err)
	buf, err := c.Encode(nil, in, schema)
	require.NoError(t, err)

	for cut := 0; cut < len(buf); cut++ {
		_, _, err := c.Decode(buf[:cut], schema)
		var de *core.DecodeError
		require.True(t, errors.As(err, &de), "cut at %d: %v", cut, err)
	}
}

// TestCodec_SkipField tests that skipping lands where decoding ends
func TestCodec_SkipField(t *testing.T) {
	c := newTestCodec(t)
	schema := allTypesSchema()
	in, _ := core.NewTupleOf(schema, int32(-5000), int64(12), float32(1), 2.0, false, "xyz", []byte("raw"), int32(2), point{Y: 4})
	buf, err := c.Encode(nil, in, schema)
	require.NoError(t, err)

	off := 0
	for i := 0; i < schema.Len(); i++ {
		_, readEnd, err := c.ReadField(buf, off, schema.Field(i))
		require.NoError(t, err)
		skipEnd, err := c.SkipField(buf, off, schema.Field(i))
		require.NoError(t, err)
		assert.Equal(t, readEnd, skipEnd, "field %s", schema.Field(i).Name)
		off = skipEnd
	}
	assert.Equal(t, len(buf), off)
}

// TestCodec_EncodeErrors tests rejected values
func TestCodec_EncodeErrors(t *testing.T) {
	c := New(nil)
	tests := []struct {
		name  string
		field core.Field
		value any
	}{
		{"nil int", core.NewField("n", core.Int32), nil},
		{"wrong type", core.NewField("n", core.Int64), int32(1)},
		{"enum out of range", core.NewEnumField("e", "a", "b"), int32(2)},
		{"negative enum", core.NewEnumField("e", "a"), int32(-1)},
		{"unregistered object", core.NewObjectField("o", "missing"), point{}},
		{"nil object", core.NewObjectField("o", "missing"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AppendField(nil, tt.field, tt.value)
			var ee *core.EncodeError
			require.True(t, errors.As(err, &ee), "got %v", err)
			assert.Equal(t, tt.field.Name, ee.Field)
		})
	}
}

// TestCodec_InvalidBoolean tests that a boolean byte other than 0 or 1 is corrupt input
func TestCodec_InvalidBoolean(t *testing.T) {
	_, _, err := New(nil).ReadField([]byte{2}, 0, core.NewField("b", core.Boolean))
	var de *core.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, de.Offset)
}

// TestObjectRegistry tests registration and lookup
func TestObjectRegistry(t *testing.T) {
	r := NewObjectRegistry()
	require.NoError(t, r.RegisterSerializer("point", NewBSONSerializer[point]()))
	assert.Error(t, r.RegisterSerializer("point", NewBSONSerializer[point]()))
	require.NoError(t, r.RegisterComparator("by-x", core.ObjectComparatorFunc(func(a, b any) int {
		return int(a.(point).X - b.(point).X)
	})))

	_, ok := r.Serializer("point")
	assert.True(t, ok)
	_, ok = r.Comparator("by-x")
	assert.True(t, ok)
	_, ok = r.Comparator("by-y")
	assert.False(t, ok)

	var nilRegistry *ObjectRegistry
	_, ok = nilRegistry.Serializer("point")
	assert.False(t, ok)
}

// TestBSONSerializer_PointerInput tests that pointers are accepted and values returned
func TestBSONSerializer_PointerInput(t *testing.T) {
	s := NewBSONSerializer[point]()
	data, err := s.Marshal(&point{X: 5, Y: 6})
	require.NoError(t, err)
	v, err := s.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, point{X: 5, Y: 6}, v)

	_, err = s.Marshal("not a point")
	assert.Error(t, err)
}

func twoSourceInfo(t *testing.T) *serialization.Info {
	t.Helper()
	reg := registry.New()
	_, err := reg.Register("users", core.MustSchema("users",
		core.NewField("name", core.Utf8String),
		core.NewField("id", core.Int64),
		core.NewField("age", core.Int32),
	))
	require.NoError(t, err)
	_, err = reg.Register("orders", core.MustSchema("orders",
		core.NewField("amount", core.Float64),
		core.NewField("user", core.Int64),
		core.NewField("sku", core.Utf8String),
	))
	require.NoError(t, err)
	require.NoError(t, reg.SetAlias("orders", "id", "user"))

	info, err := serialization.Derive(serialization.Plan{
		Sources:  reg,
		GroupBy:  []string{"id"},
		Common:   core.NewCriteria().Add("id", core.Asc).AddSourceOrder(core.Asc),
		Specific: map[int]core.Criteria{1: core.NewCriteria().Add("sku", core.Desc)},
	})
	require.NoError(t, err)
	return info
}

// TestTupleSerializer_RoundTrip tests the intermediate layout for both sources
func TestTupleSerializer_RoundTrip(t *testing.T) {
	info := twoSourceInfo(t)
	s := NewTupleSerializer(info, New(nil))

	user, _ := core.NewTupleOf(info.SourceSchema(0), "ann", int64(42), int32(30))
	order, _ := core.NewTupleOf(info.SourceSchema(1), 9.5, int64(42), "sku-1")

	for id, in := range []*core.Tuple{user, order} {
		buf, err := s.Serialize(nil, id, in)
		require.NoError(t, err)

		gotID, out, n, err := s.Deserialize(buf)
		require.NoError(t, err)
		assert.Equal(t, id, gotID)
		assert.Equal(t, len(buf), n)
		assert.True(t, in.Equal(out), "want %v got %v", in, out)

		into := core.NewTuple(info.SourceSchema(id))
		gotID, n, err = s.DeserializeInto(buf, into)
		require.NoError(t, err)
		assert.Equal(t, id, gotID)
		assert.Equal(t, len(buf), n)
		assert.True(t, in.Equal(into))
	}
}

// TestTupleSerializer_Layout tests that the common part comes first and the source id follows it
func TestTupleSerializer_Layout(t *testing.T) {
	info := twoSourceInfo(t)
	s := NewTupleSerializer(info, New(nil))
	order, _ := core.NewTupleOf(info.SourceSchema(1), 9.5, int64(42), "sku-1")

	buf, err := s.Serialize(nil, 1, order)
	require.NoError(t, err)

	// common = [id]: a single byte varint for 42, then the source id
	assert.Equal(t, byte(42), buf[0])
	assert.Equal(t, byte(1), buf[1])

	id, off, err := s.ReadSourceID(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Equal(t, 1, off)
}

// TestTupleSerializer_UnknownSource tests that out of range source ids are rejected
func TestTupleSerializer_UnknownSource(t *testing.T) {
	info := twoSourceInfo(t)
	s := NewTupleSerializer(info, New(nil))
	_, err := s.Serialize(nil, 5, core.NewTuple(info.SourceSchema(0)))
	assert.Error(t, err)

	_, _, _, err = s.Deserialize([]byte{42, 7})
	var de *core.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, core.SourceOrderField, de.Field)

	_, _, err = s.ReadSourceID([]byte{42, 7})
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 1, de.Offset)
}

// TestCodec_Text tests the text rendering used by CSV readers and writers
func TestCodec_Text(t *testing.T) {
	c := newTestCodec(t)
	schema := allTypesSchema()
	values := []any{int32(-7), int64(1 << 40), float32(0.1), 2.5e-9, true, "a,b", []byte{0, 1, 0xfe}, int32(1), point{X: 3, Y: 4}}

	var texts []string
	for i, v := range values {
		s, err := c.FormatText(schema.Field(i), v)
		require.NoError(t, err, schema.Field(i).Name)
		texts = append(texts, s)
	}
	assert.Equal(t, []string{"-7", "1099511627776", "0.1", "2.5e-09", "true", "a,b", "AAH+"}, texts[:7])
	assert.Equal(t, "green", texts[7])

	for i, s := range texts {
		v, err := c.ParseText(schema.Field(i), s)
		require.NoError(t, err, schema.Field(i).Name)
		assert.True(t, core.ValuesEqual(values[i], v), "%s: want %v got %v", schema.Field(i).Name, values[i], v)
	}

	color := schema.Field(7)
	v, err := c.ParseText(color, "2")
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)

	for _, bad := range []string{"purple", "3", "-1"} {
		_, err := c.ParseText(color, bad)
		var derr *core.DecodeError
		assert.ErrorAs(t, err, &derr, bad)
	}
	_, err = c.ParseText(schema.Field(0), "4294967296")
	assert.Error(t, err, "int32 overflow")
	_, err = c.FormatText(color, int32(5))
	assert.Error(t, err)
	_, err = c.FormatText(schema.Field(0), "7")
	assert.Error(t, err)
}
