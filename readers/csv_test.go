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

package readers

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aaronlmathis/gocogroup/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, src core.TupleSource) []*core.Tuple {
	t.Helper()
	var out []*core.Tuple
	for {
		tup, err := src.Read(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, tup)
	}
}

func nopCloser(s string) io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }

// TestCSVReader_Headers tests that columns are mapped by header name
func TestCSVReader_Headers(t *testing.T) {
	input := "kind,extra,url,ts\nclick,x,/a,10\n1,y,/b,20\n"
	r, err := NewCSVReader(nopCloser(input), visitsSchema())
	require.NoError(t, err)

	tuples := readAll(t, r)
	require.Len(t, tuples, 2)
	assert.Equal(t, []any{"/a", int64(10), int32(1)}, tuples[0].Values())
	assert.Equal(t, []any{"/b", int64(20), int32(1)}, tuples[1].Values(), "enums accept ordinals")
	assert.Equal(t, int64(2), r.Stats().TuplesRead)
	require.NoError(t, r.Close())
}

// TestCSVReader_Positional tests reading without headers
func TestCSVReader_Positional(t *testing.T) {
	input := "# sorted by url\n/a|1|view\n/b|2|click\n"
	r, err := NewCSVReader(nopCloser(input), visitsSchema(),
		WithCSVHasHeaders(false), WithCSVComma('|'), WithCSVComment('#'))
	require.NoError(t, err)
	tuples := readAll(t, r)
	require.Len(t, tuples, 2)
	assert.Equal(t, "/b", tuples[1].Get(0))

	r, err = NewCSVReader(nopCloser("/a|1\n"), visitsSchema(), WithCSVHasHeaders(false), WithCSVComma('|'))
	require.NoError(t, err)
	_, err = r.Read(context.Background())
	var cerr *CSVReaderError
	assert.ErrorAs(t, err, &cerr, "wrong number of fields")
}

// TestCSVReader_Errors tests header and value failures
func TestCSVReader_Errors(t *testing.T) {
	_, err := NewCSVReader(nopCloser("url,ts\n"), visitsSchema())
	assert.ErrorContains(t, err, `missing column "kind"`)

	_, err = NewCSVReader(nopCloser(""), visitsSchema())
	assert.Error(t, err, "no header row")

	r, err := NewCSVReader(nopCloser("url,ts,kind\n/a,1,view\n/b,soon,view\n"), visitsSchema())
	require.NoError(t, err)
	_, err = r.Read(context.Background())
	require.NoError(t, err)
	_, err = r.Read(context.Background())
	var derr *core.DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "ts", derr.Field)
	assert.ErrorContains(t, err, "line 3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
