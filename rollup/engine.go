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

// Package rollup turns one sorted partition into nested group callbacks.
//
// For group-by fields f0..fn, every distinct value of the prefix f0..fd gets
// exactly one OpenGroup and one CloseGroup at depth d, for every depth from the
// rollup base depth to n. Every run of tuples sharing the whole group key gets
// exactly one Element call.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aaronlmathis/gocogroup/compare"
	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aaronlmathis/gocogroup/serialization"
	"github.com/go-logr/logr"
)

// Engine runs the rollup state machine. An Engine holds no per-partition state
// and may run several partitions concurrently.
type Engine struct {
	info    *serialization.Info
	group   *compare.GroupComparator
	logger  logr.Logger
	metrics *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logr.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records engine activity in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine over a layout and its group comparator.
func NewEngine(info *serialization.Info, group *compare.GroupComparator, opts ...Option) *Engine {
	e := &Engine{info: info, group: group, logger: logr.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run consumes supply and drives h. It returns the first handler, supply or
// ordering error, or ctx.Err() when cancelled. Groups already opened are not
// closed on error.
func (e *Engine) Run(ctx context.Context, supply core.SortedSupply, h Handler) error {
	p := &pass{
		engine: e,
		ctx:    ctx,
		supply: supply,
		slots:  [2]slot{{tuple: new(core.Tuple)}, {tuple: new(core.Tuple)}},
	}
	err := p.run(h)
	var ordering *core.FatalOrderingError
	if errors.As(err, &ordering) {
		e.metrics.orderingError()
		e.logger.Error(err, "partition aborted", "tuples", p.tuples)
	}
	if err == nil {
		e.logger.V(1).Info("partition done", "tuples", p.tuples, "elements", p.elements)
	}
	return err
}

// slot owns a copy of one pulled tuple.
type slot struct {
	source int
	tuple  *core.Tuple
}

// pass is the state of one run over one partition. slots[cur] holds the most
// recently consumed tuple; when pending is set, slots[1-cur] holds the first
// tuple of the next run.
type pass struct {
	engine *Engine
	ctx    context.Context
	supply core.SortedSupply

	slots   [2]slot
	cur     int
	pending bool

	tuples   int64
	elements int64
}

func (p *pass) run(h Handler) error {
	info := p.engine.info
	base, last := info.RollupBaseDepth(), info.MaxDepth()

	ok, err := p.pull(p.cur)
	if err != nil || !ok {
		return err
	}
	if err := p.open(h, base, last); err != nil {
		return err
	}
	for {
		if err := p.element(h); err != nil {
			return err
		}
		if !p.pending {
			break
		}
		prev, next := p.slots[p.cur], p.slots[1-p.cur]
		depth, order, err := p.engine.group.Mismatch(prev.source, prev.tuple, next.source, next.tuple)
		if err != nil {
			return err
		}
		if depth < 0 {
			return p.orderingError(-1, prev, next, "consecutive runs share every group value; a custom comparator is inconsistent with equality")
		}
		if order > 0 {
			return p.orderingError(depth, prev, next, "group order decreased")
		}
		if depth < base {
			depth = base
		}
		if err := p.close(h, prev, depth, last); err != nil {
			return err
		}
		p.cur, p.pending = 1-p.cur, false
		if err := p.open(h, depth, last); err != nil {
			return err
		}
	}
	return p.close(h, p.slots[p.cur], base, last)
}

// element makes the Element call for the run starting at slots[cur] and
// consumes the rest of the run.
func (p *pass) element(h Handler) error {
	head := p.slots[p.cur]
	var (
		done   bool
		used   bool
		runErr error
	)
	advance := func() (bool, error) {
		ok, err := p.pull(1 - p.cur)
		if err != nil || !ok {
			done = true
			return false, err
		}
		prev, next := p.slots[p.cur], p.slots[1-p.cur]
		if !p.engine.group.SameGroup(prev.source, prev.tuple, next.source, next.tuple) {
			done, p.pending = true, true
			return false, nil
		}
		p.cur = 1 - p.cur
		return true, nil
	}
	run := func(yield func(int, *core.Tuple) bool) {
		if used {
			return
		}
		used = true
		if !yield(head.source, head.tuple) {
			return
		}
		for !done {
			ok, err := advance()
			if err != nil {
				runErr = err
				return
			}
			if !ok {
				return
			}
			s := p.slots[p.cur]
			if !yield(s.source, s.tuple) {
				return
			}
		}
	}

	p.elements++
	p.engine.metrics.element()
	if err := h.Element(p.ctx, head.source, head.tuple, run); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	for !done {
		if _, err := advance(); err != nil {
			return err
		}
	}
	return nil
}

// pull reads the next tuple into slots[into]. It reports false at the end of the supply.
func (p *pass) pull(into int) (bool, error) {
	if err := p.ctx.Err(); err != nil {
		return false, err
	}
	source, t, err := p.supply.Read(p.ctx)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("rollup: read supply: %w", err)
	}
	if source < 0 || source >= p.engine.info.NumSources() {
		return false, fmt.Errorf("rollup: supply returned unknown source id %d", source)
	}
	p.slots[into].source = source
	p.slots[into].tuple.CopyFrom(t)
	p.tuples++
	p.engine.metrics.tuple()
	return true, nil
}

func (p *pass) open(h Handler, from, to int) error {
	s := p.slots[p.cur]
	for d := from; d <= to; d++ {
		if err := h.OpenGroup(p.ctx, p.groupAt(d, s)); err != nil {
			return err
		}
		p.engine.metrics.opened(d)
	}
	return nil
}

func (p *pass) close(h Handler, s slot, downTo, from int) error {
	for d := from; d >= downTo; d-- {
		if err := h.CloseGroup(p.ctx, p.groupAt(d, s)); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) groupAt(depth int, s slot) Group {
	info := p.engine.info
	return Group{
		Depth:    depth,
		Field:    info.GroupBy()[depth],
		Value:    s.tuple.Get(info.CommonTranslation(s.source)[depth]),
		SourceID: s.source,
		Tuple:    s.tuple,
	}
}

func (p *pass) orderingError(depth int, prev, next slot, reason string) error {
	err := &core.FatalOrderingError{
		Depth:    depth,
		Previous: prev.tuple.String(),
		Current:  next.tuple.String(),
		Reason:   reason,
	}
	if depth >= 0 {
		err.Field = p.engine.info.GroupBy()[depth]
	}
	return err
}
