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

package filter

import (
	"context"

	"github.com/aaronlmathis/gocogroup/core"
)

// SourceStats counts the tuples seen by a filtered source.
type SourceStats struct {
	TuplesRead    int64
	TuplesDropped int64
}

// Source is a core.TupleSource passing through the tuples of its input that
// match a predicate.
type Source struct {
	src   core.TupleSource
	pred  Predicate
	stats SourceStats
}

// NewSource wraps src. Close closes src.
func NewSource(src core.TupleSource, pred Predicate) *Source {
	return &Source{src: src, pred: pred}
}

// Read implements core.TupleSource.
func (s *Source) Read(ctx context.Context) (*core.Tuple, error) {
	for {
		t, err := s.src.Read(ctx)
		if err != nil {
			return nil, err
		}
		s.stats.TuplesRead++
		ok, err := s.pred.Match(ctx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			return t, nil
		}
		s.stats.TuplesDropped++
	}
}

// Close implements core.TupleSource.
func (s *Source) Close() error { return s.src.Close() }

// Stats returns the read and drop counters.
func (s *Source) Stats() SourceStats { return s.stats }
