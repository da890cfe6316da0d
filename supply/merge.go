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

package supply

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aaronlmathis/gocogroup/compare"
	"github.com/aaronlmathis/gocogroup/core"
)

// Run is one sorted stream of a single source.
type Run struct {
	SourceID int
	Source   core.TupleSource
}

// Merge is a SortedSupply merging sorted runs with a loser tree.
//
// The tree stores M leaves at positions M..2M-1 and M-1 internal nodes at
// positions 1..M-1, node N having parent N/2. Internal nodes hold the loser of
// their game; node 0 holds the overall winner.
type Merge struct {
	sc    *compare.SortComparator
	runs  []Run
	nodes []node

	started bool
	err     error
}

type entry struct {
	leaf   int
	source int
	tuple  *core.Tuple
	done   bool
}

type node struct {
	index int   // loser for internal nodes, winner for node 0
	value entry // copied from the node at index
}

// NewMerge creates a merge over runs. Each run must be sorted by sc.
func NewMerge(sc *compare.SortComparator, runs ...Run) *Merge {
	return &Merge{sc: sc, runs: runs, nodes: make([]node, len(runs)*2)}
}

// Read implements core.SortedSupply. The returned tuple belongs to its run and
// is valid until the next Read.
func (m *Merge) Read(ctx context.Context) (int, *core.Tuple, error) {
	if m.err != nil {
		return 0, nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if len(m.runs) == 0 {
		return 0, nil, io.EOF
	}
	if !m.started {
		m.started = true
		for i := range m.runs {
			m.moveNext(ctx, i+len(m.runs))
		}
		m.initialize()
	} else {
		winner := m.nodes[0].index
		m.moveNext(ctx, winner)
		m.replayGames(winner)
	}
	if m.err != nil {
		return 0, nil, m.err
	}
	w := m.nodes[0].value
	if w.done {
		return 0, nil, io.EOF
	}
	return w.source, w.tuple, nil
}

// Close closes every run.
func (m *Merge) Close() error {
	var errs []error
	for _, r := range m.runs {
		if err := r.Source.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Merge) moveNext(ctx context.Context, pos int) {
	n := &m.nodes[pos]
	leaf := pos - len(m.runs)
	r := m.runs[leaf]
	t, err := r.Source.Read(ctx)
	switch {
	case err == io.EOF:
		n.value = entry{leaf: leaf, done: true}
	case err != nil:
		m.fail(fmt.Errorf("supply: read run %d of source %d: %w", leaf, r.SourceID, err))
		n.value = entry{leaf: leaf, done: true}
	default:
		n.value = entry{leaf: leaf, source: r.SourceID, tuple: t}
	}
}

func (m *Merge) initialize() {
	winner := m.playGame(1)
	m.nodes[0].index = winner
	m.nodes[0].value = m.nodes[winner].value
}

// playGame returns the winner below pos and stores the loser at internal nodes.
func (m *Merge) playGame(pos int) int {
	nodes := m.nodes
	if pos >= len(nodes)/2 {
		return pos
	}
	left := m.playGame(pos * 2)
	right := m.playGame(pos*2 + 1)
	loser, winner := left, right
	if m.less(nodes[left].value, nodes[right].value) {
		loser, winner = right, left
	}
	nodes[pos].index = loser
	nodes[pos].value = nodes[loser].value
	return winner
}

// replayGames walks from the leaf at pos, the previous winner, up to the root.
func (m *Merge) replayGames(pos int) {
	nodes := m.nodes
	winning := nodes[pos].value
	for n := pos >> 1; n != 0; n >>= 1 {
		nd := &nodes[n]
		if m.less(nd.value, winning) {
			nd.index, pos = pos, nd.index
			nd.value, winning = winning, nd.value
		}
	}
	nodes[0].index = pos
	nodes[0].value = winning
}

// less orders exhausted runs last and breaks ties by run position.
func (m *Merge) less(a, b entry) bool {
	if a.done || b.done {
		return !a.done
	}
	c, err := m.sc.Compare(a.source, a.tuple, b.source, b.tuple)
	if err != nil {
		m.fail(err)
		return false
	}
	if c != 0 {
		return c < 0
	}
	return a.leaf < b.leaf
}

func (m *Merge) fail(err error) {
	if m.err == nil {
		m.err = err
	}
}
