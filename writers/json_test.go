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

package writers

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/aaronlmathis/gocogroup/aggregate"
	"github.com/aaronlmathis/gocogroup/readers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestJSONWriter_BasicFunctionality tests core write operations
func TestJSONWriter_BasicFunctionality(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer := NewJSONWriter(mock)

	tuples := visits(t, []any{"/a", int64(30), int32(1)})
	require.NoError(t, writer.Write(context.Background(), tuples[0]))
	require.NoError(t, writer.Close())

	output := mock.String()
	assert.Equal(t, `{"kind":"click","ts":30,"url":"/a"}`+"\n", output)
	assert.True(t, mock.IsClosed())
	assert.NoError(t, writer.Close(), "close is idempotent")
	assert.Error(t, writer.Write(context.Background(), tuples[0]))
}

// TestJSONWriter_RoundTrip tests every field type through the JSON reader
func TestJSONWriter_RoundTrip(t *testing.T) {
	c := testCodec(t)
	in := runTuples(t, 5)
	mock := newMockCSVWriteCloser()
	writer := NewJSONWriter(mock, WithJSONCodec(c))
	for _, tup := range in {
		require.NoError(t, writer.Write(context.Background(), tup))
	}
	require.NoError(t, writer.Close())

	reader := readers.NewJSONReader(io.NopCloser(strings.NewReader(mock.String())), runSchema(), c)
	for i, want := range in {
		got, err := reader.Read(context.Background())
		require.NoError(t, err, "line %d", i)
		assert.True(t, want.Equal(got), "line %d: want %v got %v", i, want, got)
	}
	_, err := reader.Read(context.Background())
	assert.Equal(t, io.EOF, err)
}

// TestJSONWriter_BatchedWrites tests batching behavior
func TestJSONWriter_BatchedWrites(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer := NewJSONWriter(mock, WithJSONBatchSize(3))
	ctx := context.Background()

	tuples := visits(t, []any{"/a", int64(1), int32(0)})
	for i := 0; i < 5; i++ {
		require.NoError(t, writer.Write(ctx, tuples[0]))
	}
	assert.Equal(t, 3, strings.Count(mock.String(), "\n"), "first batch is flushed")

	require.NoError(t, writer.Flush())
	assert.Equal(t, 5, strings.Count(mock.String(), "\n"))

	stats := writer.Stats()
	assert.Equal(t, int64(5), stats.RecordsWritten)
	assert.Equal(t, int64(2), stats.FlushCount)
}

// TestJSONWriter_FlushOnWrite tests immediate and deferred flush behavior
func TestJSONWriter_FlushOnWrite(t *testing.T) {
	tuples := visits(t, []any{"/a", int64(1), int32(0)})
	for _, flush := range []bool{true, false} {
		mock := newMockCSVWriteCloser()
		writer := NewJSONWriter(mock, WithFlushOnWrite(flush))
		require.NoError(t, writer.Write(context.Background(), tuples[0]))
		if flush {
			assert.Contains(t, mock.String(), `"url":"/a"`)
		} else {
			assert.Empty(t, mock.String())
		}
		require.NoError(t, writer.Flush())
		assert.Contains(t, mock.String(), `"url":"/a"`)
	}
}

// TestJSONWriter_WriteResult tests the layout of group results
func TestJSONWriter_WriteResult(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer := NewJSONWriter(mock)
	require.NoError(t, writer.WriteResult(context.Background(), aggregate.Result{
		Depth:  1,
		Fields: []string{"country", "city"},
		Key:    []any{"ES", "Madrid"},
		Values: map[string]any{"orders": int64(2), "total": 15.5},
	}))
	require.NoError(t, writer.Close())

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(mock.String()), &parsed))
	assert.Equal(t, float64(1), parsed["depth"])
	assert.Equal(t, map[string]any{"country": "ES", "city": "Madrid"}, parsed["key"])
	assert.Equal(t, map[string]any{"orders": float64(2), "total": 15.5}, parsed["values"])
}

// TestJSONWriter_ErrorHandling tests output failures and cancellation
func TestJSONWriter_ErrorHandling(t *testing.T) {
	tuples := visits(t, []any{"/a", int64(1), int32(0)})

	mock := newMockCSVWriteCloser()
	mock.failWrite = true
	writer := NewJSONWriter(mock, WithFlushOnWrite(true))
	assert.Error(t, writer.Write(context.Background(), tuples[0]))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewJSONWriter(newMockCSVWriteCloser()).Write(ctx, tuples[0]), context.Canceled)

	bad := tuples[0].Clone()
	bad.Set(2, int32(7))
	assert.Error(t, NewJSONWriter(newMockCSVWriteCloser()).Write(context.Background(), bad))
}
