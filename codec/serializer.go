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

	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aaronlmathis/gocogroup/serialization"
)

// TupleSerializer writes source tuples in the intermediate layout
// [common fields][source id, multi-source only][specific fields]
// and reads them back into tuples of the source's own schema.
type TupleSerializer struct {
	info  *serialization.Info
	codec *Codec
}

// NewTupleSerializer creates a serializer for the given layout.
func NewTupleSerializer(info *serialization.Info, c *Codec) *TupleSerializer {
	return &TupleSerializer{info: info, codec: c}
}

// Serialize appends the intermediate encoding of t, a tuple of the given source.
func (s *TupleSerializer) Serialize(dst []byte, sourceID int, t *core.Tuple) ([]byte, error) {
	if sourceID < 0 || sourceID >= s.info.NumSources() {
		return dst, fmt.Errorf("serialize: unknown source id %d", sourceID)
	}
	var err error
	common := s.info.CommonSchema()
	for i, pos := range s.info.CommonTranslation(sourceID) {
		if dst, err = s.codec.AppendField(dst, common.Field(i), t.Get(pos)); err != nil {
			return dst, err
		}
	}
	if !s.info.MultiSource() {
		return dst, nil
	}
	dst = AppendVarInt(dst, int64(sourceID))
	specific := s.info.SpecificSchema(sourceID)
	for i, pos := range s.info.SpecificTranslation(sourceID) {
		if dst, err = s.codec.AppendField(dst, specific.Field(i), t.Get(pos)); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// Deserialize reads one intermediate tuple. It returns the source id, a tuple of
// that source's schema and the number of bytes consumed.
func (s *TupleSerializer) Deserialize(src []byte) (int, *core.Tuple, int, error) {
	sourceID, off, err := s.ReadSourceID(src)
	if err != nil {
		return 0, nil, 0, err
	}
	t := core.NewTuple(s.info.SourceSchema(sourceID))
	n, err := s.decode(src, sourceID, off, t)
	if err != nil {
		return 0, nil, 0, err
	}
	return sourceID, t, n, nil
}

// DeserializeInto is like Deserialize but fills a caller-owned tuple, which must
// have the schema of the encoded source.
func (s *TupleSerializer) DeserializeInto(src []byte, t *core.Tuple) (int, int, error) {
	sourceID, off, err := s.ReadSourceID(src)
	if err != nil {
		return 0, 0, err
	}
	if !t.Schema().Equal(s.info.SourceSchema(sourceID)) {
		return 0, 0, fmt.Errorf("deserialize: tuple schema %s does not match source %q", t.Schema().Name(), s.info.SourceName(sourceID))
	}
	n, err := s.decode(src, sourceID, off, t)
	return sourceID, n, err
}

// ReadSourceID skips the common part and returns the source id together with
// the offset of the common part's end. Single-source layouts always report source 0.
func (s *TupleSerializer) ReadSourceID(src []byte) (int, int, error) {
	common := s.info.CommonSchema()
	off := 0
	var err error
	for i := 0; i < common.Len(); i++ {
		if off, err = s.codec.SkipField(src, off, common.Field(i)); err != nil {
			return 0, 0, err
		}
	}
	if !s.info.MultiSource() {
		return 0, off, nil
	}
	return s.sourceIDAt(src, off)
}

func (s *TupleSerializer) sourceIDAt(src []byte, off int) (int, int, error) {
	id, _, err := ReadVarInt(src, off)
	if err != nil {
		return 0, 0, &core.DecodeError{Field: core.SourceOrderField, Offset: off, Err: err}
	}
	if id < 0 || id >= int64(s.info.NumSources()) {
		return 0, 0, &core.DecodeError{Field: core.SourceOrderField, Offset: off, Err: fmt.Errorf("unknown source id %d", id)}
	}
	return int(id), off, nil
}

// decode fills t from src. idOff is the offset of the source id in multi-source
// layouts and the end of the common part otherwise.
func (s *TupleSerializer) decode(src []byte, sourceID, idOff int, t *core.Tuple) (int, error) {
	common := s.info.CommonSchema()
	off := 0
	for i, pos := range s.info.CommonTranslation(sourceID) {
		v, next, err := s.codec.ReadField(src, off, common.Field(i))
		if err != nil {
			return 0, err
		}
		t.Set(pos, v)
		off = next
	}
	if !s.info.MultiSource() {
		return off, nil
	}
	off = idOff + VarIntSize(src[idOff])
	specific := s.info.SpecificSchema(sourceID)
	for i, pos := range s.info.SpecificTranslation(sourceID) {
		v, next, err := s.codec.ReadField(src, off, specific.Field(i))
		if err != nil {
			return 0, err
		}
		t.Set(pos, v)
		off = next
	}
	return off, nil
}
