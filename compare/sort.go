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

package compare

import (
	"cmp"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aaronlmathis/gocogroup/serialization"
)

// SortComparator is the total order of the sorted supply: the common criteria,
// then the source id, then the specific criteria of the source.
type SortComparator struct {
	info *serialization.Info

	commonRaw    *Raw
	commonValues *Values

	specificRaw    []*Raw
	specificValues []*Values
}

// NewSortComparator creates the sort comparator of a layout.
func NewSortComparator(info *serialization.Info, c *codec.Codec) (*SortComparator, error) {
	s := &SortComparator{info: info}
	var err error
	if s.commonRaw, err = NewRaw(c, info.CommonSchema(), info.CommonCriteria()); err != nil {
		return nil, err
	}
	if s.commonValues, err = NewValues(c, info.CommonSchema(), info.CommonCriteria()); err != nil {
		return nil, err
	}
	if !info.MultiSource() {
		return s, nil
	}
	s.specificRaw = make([]*Raw, info.NumSources())
	s.specificValues = make([]*Values, info.NumSources())
	for i := 0; i < info.NumSources(); i++ {
		if s.specificRaw[i], err = NewRaw(c, info.SpecificSchema(i), info.SpecificCriteria(i)); err != nil {
			return nil, err
		}
		if s.specificValues[i], err = NewValues(c, info.SpecificSchema(i), info.SpecificCriteria(i)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CompareBytes orders two intermediate encodings.
func (s *SortComparator) CompareBytes(a, b []byte) (int, error) {
	c, oa, ob, err := s.commonRaw.Compare(a, 0, b, 0)
	if err != nil || c != 0 || !s.info.MultiSource() {
		return c, err
	}
	ida, na, err := codec.ReadVarInt(a, oa)
	if err != nil {
		return 0, &core.DecodeError{Field: core.SourceOrderField, Offset: oa, Err: err}
	}
	idb, nb, err := codec.ReadVarInt(b, ob)
	if err != nil {
		return 0, &core.DecodeError{Field: core.SourceOrderField, Offset: ob, Err: err}
	}
	if c := s.info.SourceOrder().Apply(cmp.Compare(ida, idb)); c != 0 {
		return c, nil
	}
	if ida < 0 || int(ida) >= len(s.specificRaw) {
		return 0, nil
	}
	c, _, _, err = s.specificRaw[ida].Compare(a, oa+na, b, ob+nb)
	return c, err
}

// Compare orders two source tuples.
func (s *SortComparator) Compare(aSource int, a *core.Tuple, bSource int, b *core.Tuple) (int, error) {
	c, err := s.commonValues.Compare(a, s.info.CommonTranslation(aSource), b, s.info.CommonTranslation(bSource))
	if err != nil || c != 0 || !s.info.MultiSource() {
		return c, err
	}
	if c := s.info.SourceOrder().Apply(cmp.Compare(aSource, bSource)); c != 0 {
		return c, nil
	}
	return s.specificValues[aSource].Compare(a, s.info.SpecificTranslation(aSource), b, s.info.SpecificTranslation(bSource))
}
