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

// Package codec implements the order-preserving, self-delimiting binary tuple encoding.
//
// Field encodings:
//   - Int32, Int64, Enum: variable-length signed integer (see AppendVarInt).
//   - Float32, Float64: fixed-width big-endian IEEE 754.
//   - Boolean: one byte, 0 or 1.
//   - Utf8String, Bytes: varint length followed by the raw bytes.
//   - Object: varint length followed by the payload of the class serializer.
//
// Every encoding can be skipped without decoding its value, which lets the
// comparators stop reading as soon as an order is decided.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/aaronlmathis/gocogroup/core"
)

// ErrNegativeLength is returned when a length prefix decodes to a negative number.
var ErrNegativeLength = errors.New("negative length prefix")

// Codec encodes and decodes tuples. It is safe for concurrent use once its
// object registry is fully populated.
type Codec struct {
	objects *ObjectRegistry
}

// New creates a codec resolving Object serializers from objects. objects may be nil
// when no schema has Object fields.
func New(objects *ObjectRegistry) *Codec {
	if objects == nil {
		objects = NewObjectRegistry()
	}
	return &Codec{objects: objects}
}

// Objects returns the codec's object registry.
func (c *Codec) Objects() *ObjectRegistry { return c.objects }

// Encode appends the values of t, read positionally, encoded according to schema.
// Exactly schema.Len() values are written.
func (c *Codec) Encode(dst []byte, t *core.Tuple, schema *core.Schema) ([]byte, error) {
	if t.Len() < schema.Len() {
		return dst, fmt.Errorf("encode: tuple has %d values, schema %s needs %d", t.Len(), schema.Name(), schema.Len())
	}
	var err error
	for i := 0; i < schema.Len(); i++ {
		if dst, err = c.AppendField(dst, schema.Field(i), t.Get(i)); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// Decode reads one tuple of schema from src and returns it with the number of bytes consumed.
func (c *Codec) Decode(src []byte, schema *core.Schema) (*core.Tuple, int, error) {
	t := core.NewTuple(schema)
	n, err := c.DecodeInto(src, t)
	if err != nil {
		return nil, 0, err
	}
	return t, n, nil
}

// DecodeInto reads one tuple of t's schema from src into t.
func (c *Codec) DecodeInto(src []byte, t *core.Tuple) (int, error) {
	schema := t.Schema()
	off := 0
	for i := 0; i < schema.Len(); i++ {
		v, next, err := c.ReadField(src, off, schema.Field(i))
		if err != nil {
			return 0, err
		}
		t.Set(i, v)
		off = next
	}
	return off, nil
}

// AppendField appends the encoding of one value.
func (c *Codec) AppendField(dst []byte, f core.Field, v any) ([]byte, error) {
	switch f.Type {
	case core.Int32:
		i, ok := v.(int32)
		if !ok {
			return dst, typeError(f, v)
		}
		return AppendVarInt(dst, int64(i)), nil
	case core.Int64:
		i, ok := v.(int64)
		if !ok {
			return dst, typeError(f, v)
		}
		return AppendVarInt(dst, i), nil
	case core.Enum:
		i, ok := v.(int32)
		if !ok {
			return dst, typeError(f, v)
		}
		if i < 0 || (len(f.Symbols) > 0 && int(i) >= len(f.Symbols)) {
			return dst, &core.EncodeError{Field: f.Name, Err: fmt.Errorf("enum ordinal %d out of range", i)}
		}
		return AppendVarInt(dst, int64(i)), nil
	case core.Float32:
		x, ok := v.(float32)
		if !ok {
			return dst, typeError(f, v)
		}
		return binary.BigEndian.AppendUint32(dst, math.Float32bits(x)), nil
	case core.Float64:
		x, ok := v.(float64)
		if !ok {
			return dst, typeError(f, v)
		}
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(x)), nil
	case core.Boolean:
		b, ok := v.(bool)
		if !ok {
			return dst, typeError(f, v)
		}
		if b {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case core.Utf8String:
		s, ok := v.(string)
		if !ok {
			return dst, typeError(f, v)
		}
		dst = AppendVarInt(dst, int64(len(s)))
		return append(dst, s...), nil
	case core.Bytes:
		b, ok := v.([]byte)
		if !ok {
			return dst, typeError(f, v)
		}
		dst = AppendVarInt(dst, int64(len(b)))
		return append(dst, b...), nil
	case core.Object:
		if v == nil {
			return dst, &core.EncodeError{Field: f.Name, Err: errors.New("nil object")}
		}
		s, ok := c.objects.Serializer(f.ObjectClass)
		if !ok {
			return dst, &core.EncodeError{Field: f.Name, Err: fmt.Errorf("no serializer registered for class %q", f.ObjectClass)}
		}
		payload, err := s.Marshal(v)
		if err != nil {
			return dst, &core.EncodeError{Field: f.Name, Err: err}
		}
		dst = AppendVarInt(dst, int64(len(payload)))
		return append(dst, payload...), nil
	default:
		return dst, &core.EncodeError{Field: f.Name, Err: fmt.Errorf("unsupported type %s", f.Type)}
	}
}

// ReadField decodes one value starting at src[off] and returns it with the offset just past it.
func (c *Codec) ReadField(src []byte, off int, f core.Field) (any, int, error) {
	switch f.Type {
	case core.Int32, core.Enum:
		v, n, err := ReadVarInt(src, off)
		if err != nil {
			return nil, 0, decodeError(f, off, err)
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, 0, decodeError(f, off, fmt.Errorf("value %d overflows int32", v))
		}
		if f.Type == core.Enum && (v < 0 || (len(f.Symbols) > 0 && int(v) >= len(f.Symbols))) {
			return nil, 0, decodeError(f, off, fmt.Errorf("enum ordinal %d out of range", v))
		}
		return int32(v), off + n, nil
	case core.Int64:
		v, n, err := ReadVarInt(src, off)
		if err != nil {
			return nil, 0, decodeError(f, off, err)
		}
		return v, off + n, nil
	case core.Float32:
		if off+4 > len(src) {
			return nil, 0, decodeError(f, off, io.ErrUnexpectedEOF)
		}
		return math.Float32frombits(binary.BigEndian.Uint32(src[off:])), off + 4, nil
	case core.Float64:
		if off+8 > len(src) {
			return nil, 0, decodeError(f, off, io.ErrUnexpectedEOF)
		}
		return math.Float64frombits(binary.BigEndian.Uint64(src[off:])), off + 8, nil
	case core.Boolean:
		if off >= len(src) {
			return nil, 0, decodeError(f, off, io.ErrUnexpectedEOF)
		}
		switch src[off] {
		case 0:
			return false, off + 1, nil
		case 1:
			return true, off + 1, nil
		default:
			return nil, 0, decodeError(f, off, fmt.Errorf("invalid boolean byte %#x", src[off]))
		}
	case core.Utf8String:
		start, end, err := readPayload(src, off)
		if err != nil {
			return nil, 0, decodeError(f, off, err)
		}
		return string(src[start:end]), end, nil
	case core.Bytes:
		start, end, err := readPayload(src, off)
		if err != nil {
			return nil, 0, decodeError(f, off, err)
		}
		b := make([]byte, end-start)
		copy(b, src[start:end])
		return b, end, nil
	case core.Object:
		start, end, err := readPayload(src, off)
		if err != nil {
			return nil, 0, decodeError(f, off, err)
		}
		v, err := c.UnmarshalObject(f, src[start:end])
		if err != nil {
			return nil, 0, decodeError(f, off, err)
		}
		return v, end, nil
	default:
		return nil, 0, decodeError(f, off, fmt.Errorf("unsupported type %s", f.Type))
	}
}

// SkipField returns the offset just past the field starting at src[off] without decoding it.
func (c *Codec) SkipField(src []byte, off int, f core.Field) (int, error) {
	switch f.Type {
	case core.Int32, core.Int64, core.Enum:
		if off >= len(src) {
			return 0, decodeError(f, off, io.ErrUnexpectedEOF)
		}
		n := VarIntSize(src[off])
		if off+n > len(src) {
			return 0, decodeError(f, off, io.ErrUnexpectedEOF)
		}
		return off + n, nil
	case core.Float32, core.Float64, core.Boolean:
		n := FixedSize(f.Type)
		if off+n > len(src) {
			return 0, decodeError(f, off, io.ErrUnexpectedEOF)
		}
		return off + n, nil
	case core.Utf8String, core.Bytes, core.Object:
		_, end, err := readPayload(src, off)
		if err != nil {
			return 0, decodeError(f, off, err)
		}
		return end, nil
	default:
		return 0, decodeError(f, off, fmt.Errorf("unsupported type %s", f.Type))
	}
}

// Payload returns the [start, end) range of the length-prefixed payload of a
// string, bytes or object field starting at src[off].
func (c *Codec) Payload(src []byte, off int, f core.Field) (int, int, error) {
	start, end, err := readPayload(src, off)
	if err != nil {
		return 0, 0, decodeError(f, off, err)
	}
	return start, end, nil
}

// UnmarshalObject decodes an Object payload with the field's class serializer.
func (c *Codec) UnmarshalObject(f core.Field, payload []byte) (any, error) {
	s, ok := c.objects.Serializer(f.ObjectClass)
	if !ok {
		return nil, fmt.Errorf("no serializer registered for class %q", f.ObjectClass)
	}
	return s.Unmarshal(payload)
}

// MarshalObject encodes an Object value with the field's class serializer.
func (c *Codec) MarshalObject(f core.Field, v any) ([]byte, error) {
	s, ok := c.objects.Serializer(f.ObjectClass)
	if !ok {
		return nil, fmt.Errorf("no serializer registered for class %q", f.ObjectClass)
	}
	return s.Marshal(v)
}

// FixedSize returns the encoded size of fixed-width types, 0 otherwise.
func FixedSize(t core.FieldType) int {
	switch t {
	case core.Float32:
		return 4
	case core.Float64:
		return 8
	case core.Boolean:
		return 1
	default:
		return 0
	}
}

func readPayload(src []byte, off int) (int, int, error) {
	length, n, err := ReadVarInt(src, off)
	if err != nil {
		return 0, 0, err
	}
	if length < 0 {
		return 0, 0, ErrNegativeLength
	}
	start := off + n
	if int64(len(src)-start) < length {
		return 0, 0, io.ErrUnexpectedEOF
	}
	return start, start + int(length), nil
}

func typeError(f core.Field, v any) error {
	return &core.EncodeError{Field: f.Name, Err: fmt.Errorf("expected %s value, got %T", f.TypeString(), v)}
}

func decodeError(f core.Field, off int, err error) error {
	return &core.DecodeError{Field: f.Name, Offset: off, Err: err}
}
