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
	"io"
	"testing"

	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aaronlmathis/gocogroup/supply"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var visits = core.MustSchema("visits",
	core.NewField("url", core.Utf8String),
	core.NewField("ts", core.Int64),
	core.NewEnumField("kind", "view", "click"),
)

func visit(t *testing.T, url string, ts int64, kind int32) *core.Tuple {
	t.Helper()
	tup, err := core.NewTupleOf(visits, url, ts, kind)
	require.NoError(t, err)
	return tup
}

// TestPredicates tests each predicate against a single tuple
func TestPredicates(t *testing.T) {
	ctx := context.Background()
	tup := visit(t, "/docs/intro", 42, 1)
	re, err := MatchesRegex("url", `^/docs/\w+$`)
	require.NoError(t, err)

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"equals", Equals("ts", int64(42)), true},
		{"equals other", Equals("ts", int64(41)), false},
		{"greater", GreaterThan("ts", int64(41)), true},
		{"less", LessThan("ts", int64(42)), false},
		{"between inclusive", Between("ts", int64(42), int64(50)), true},
		{"between below", Between("ts", int64(43), int64(50)), false},
		{"in enum", In("kind", int32(0), int32(1)), true},
		{"in none", In("kind"), false},
		{"prefix", HasPrefix("url", "/docs"), true},
		{"contains", Contains("url", "blog"), false},
		{"regex", re, true},
		{"and", And(HasPrefix("url", "/"), Equals("kind", int32(1))), true},
		{"or", Or(Equals("ts", int64(1)), Equals("ts", int64(42))), true},
		{"not", Not(Equals("kind", int32(1))), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.pred.Match(ctx, tup)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestPredicates_Errors tests unknown fields and mismatched values
func TestPredicates_Errors(t *testing.T) {
	ctx := context.Background()
	tup := visit(t, "/a", 1, 0)

	_, err := Equals("host", "x").Match(ctx, tup)
	var uerr *core.UnknownFieldError
	assert.ErrorAs(t, err, &uerr)

	_, err = Equals("ts", 1).Match(ctx, tup)
	assert.ErrorContains(t, err, "filter ts")

	_, err = HasPrefix("ts", "1").Match(ctx, tup)
	assert.Error(t, err)

	_, err = Not(Equals("ts", "1")).Match(ctx, tup)
	assert.Error(t, err)

	_, err = MatchesRegex("url", "(")
	assert.Error(t, err)
}

// TestSource tests that a filtered source keeps order and counts drops
func TestSource(t *testing.T) {
	src := NewSource(supply.NewTuples(
		visit(t, "/a", 1, 0),
		visit(t, "/a", 2, 1),
		visit(t, "/b", 3, 1),
		visit(t, "/c", 4, 0),
	), Equals("kind", int32(1)))

	var urls []string
	for {
		tup, err := src.Read(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		urls = append(urls, tup.Get(0).(string))
	}
	assert.Equal(t, []string{"/a", "/b"}, urls)
	assert.Equal(t, SourceStats{TuplesRead: 4, TuplesDropped: 2}, src.Stats())
	require.NoError(t, src.Close())
}
