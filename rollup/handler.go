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

package rollup

import (
	"context"
	"iter"

	"github.com/aaronlmathis/gocogroup/core"
)

// Group identifies one group level boundary.
type Group struct {
	Depth int    // Group depth, 0 for the first group-by field
	Field string // Group-by field at Depth
	Value any    // Value of Field shared by every tuple of the group
	// SourceID and Tuple are the first tuple of the group on open and the
	// last one on close. Tuple is only valid during the callback.
	SourceID int
	Tuple    *core.Tuple
}

// Handler receives the nested group callbacks of one partition.
type Handler interface {
	// OpenGroup is called when a group starts at some depth.
	OpenGroup(ctx context.Context, g Group) error
	// Element is called once per distinct full group key. sourceID and t are
	// the first tuple of the run; run yields every tuple of the run, starting
	// with t. Tuples are valid until the iterator advances. Tuples the handler
	// does not consume are skipped by the engine.
	Element(ctx context.Context, sourceID int, t *core.Tuple, run iter.Seq2[int, *core.Tuple]) error
	// CloseGroup is called when a group ends at some depth.
	CloseGroup(ctx context.Context, g Group) error
}

// HandlerFuncs adapts functions to the Handler interface. Nil functions are no-ops.
type HandlerFuncs struct {
	OnOpen    func(ctx context.Context, g Group) error
	OnElement func(ctx context.Context, sourceID int, t *core.Tuple, run iter.Seq2[int, *core.Tuple]) error
	OnClose   func(ctx context.Context, g Group) error
}

// OpenGroup implements Handler.
func (h HandlerFuncs) OpenGroup(ctx context.Context, g Group) error {
	if h.OnOpen == nil {
		return nil
	}
	return h.OnOpen(ctx, g)
}

// Element implements Handler.
func (h HandlerFuncs) Element(ctx context.Context, sourceID int, t *core.Tuple, run iter.Seq2[int, *core.Tuple]) error {
	if h.OnElement == nil {
		return nil
	}
	return h.OnElement(ctx, sourceID, t, run)
}

// CloseGroup implements Handler.
func (h HandlerFuncs) CloseGroup(ctx context.Context, g Group) error {
	if h.OnClose == nil {
		return nil
	}
	return h.OnClose(ctx, g)
}
