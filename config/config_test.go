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

package config

import (
	"errors"
	"testing"

	"github.com/aaronlmathis/gocogroup/core"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pagesSchema() *core.Schema {
	return core.MustSchema("pages",
		core.NewField("url", core.Utf8String),
		core.NewField("canonicalUrl", core.Utf8String),
	)
}

func visitsSchema() *core.Schema {
	return core.MustSchema("visits",
		core.NewField("page", core.Utf8String),
		core.NewField("ts", core.Int64),
		core.NewField("ip", core.Utf8String),
	)
}

func twoSourceBuilder() *Builder {
	return NewBuilder().
		AddSource("pages", pagesSchema()).
		AddSource("visits", visitsSchema()).
		SetAlias("visits", "url", "page")
}

// TestBuilder_Defaults tests the implicit common order of single and multi-source configurations
func TestBuilder_Defaults(t *testing.T) {
	single, err := NewBuilder().
		AddSource("visits", visitsSchema()).
		GroupBy("page").
		Build()
	require.NoError(t, err)
	assert.Equal(t, core.NewCriteria().Add("page", core.Asc), single.CommonOrder())
	assert.False(t, single.ExplicitOrder())

	multi, err := twoSourceBuilder().GroupBy("url").Build()
	require.NoError(t, err)
	assert.Equal(t, core.NewCriteria().Add("url", core.Asc).AddSourceOrder(core.Asc), multi.CommonOrder())
}

// TestBuilder_MarkerAppended tests that a multi-source order without source order gets one
func TestBuilder_MarkerAppended(t *testing.T) {
	cfg, err := twoSourceBuilder().
		GroupBy("url").
		OrderBy(core.NewCriteria().Add("url", core.Desc)).
		Build()
	require.NoError(t, err)
	assert.Equal(t, core.NewCriteria().Add("url", core.Desc).AddSourceOrder(core.Asc), cfg.CommonOrder())
}

// TestBuilder_GroupByPermutation tests that group-by fields are kept in sort order
func TestBuilder_GroupByPermutation(t *testing.T) {
	schema := core.MustSchema("geo",
		core.NewField("country", core.Utf8String),
		core.NewField("city", core.Utf8String),
		core.NewField("n", core.Int32),
	)
	cfg, err := NewBuilder().
		AddSource("geo", schema).
		GroupBy("city", "country").
		OrderBy(core.NewCriteria().Add("country", core.Asc).Add("city", core.Asc).Add("n", core.Desc)).
		RollupFrom("country").
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"country", "city"}, cfg.GroupBy())

	info, err := cfg.Info()
	require.NoError(t, err)
	assert.Equal(t, 0, info.RollupBaseDepth())
	assert.Equal(t, 1, info.MaxDepth())
	assert.True(t, info.Rollup())
}

// TestBuilder_Validation tests that invariant violations are ConfigErrors
func TestBuilder_Validation(t *testing.T) {
	objSchema := core.MustSchema("objs",
		core.NewField("k", core.Utf8String),
		core.NewObjectField("o", "thing"),
	)
	tests := []struct {
		name  string
		build func() *Builder
	}{
		{"no sources", func() *Builder { return NewBuilder().GroupBy("url") }},
		{"no group by", func() *Builder { return twoSourceBuilder() }},
		{"group field missing in a source", func() *Builder { return twoSourceBuilder().GroupBy("ts") }},
		{"duplicate group field", func() *Builder { return twoSourceBuilder().GroupBy("url", "url") }},
		{"type mismatch", func() *Builder {
			return NewBuilder().
				AddSource("a", core.MustSchema("a", core.NewField("k", core.Int32))).
				AddSource("b", core.MustSchema("b", core.NewField("k", core.Int64))).
				GroupBy("k")
		}},
		{"order does not start with group fields", func() *Builder {
			return NewBuilder().AddSource("visits", visitsSchema()).
				GroupBy("page").
				OrderBy(core.NewCriteria().Add("ts", core.Asc).Add("page", core.Asc))
		}},
		{"marker before group fields", func() *Builder {
			return twoSourceBuilder().GroupBy("url").
				OrderBy(core.NewCriteria().AddSourceOrder(core.Asc).Add("url", core.Asc))
		}},
		{"field after marker", func() *Builder {
			return NewBuilder().
				AddSource("a", core.MustSchema("a", core.NewField("k", core.Utf8String), core.NewField("ts", core.Int64))).
				AddSource("b", core.MustSchema("b", core.NewField("k", core.Utf8String), core.NewField("ts", core.Int64))).
				GroupBy("k").
				OrderBy(core.NewCriteria().Add("k", core.Asc).AddSourceOrder(core.Asc).Add("ts", core.Asc))
		}},
		{"marker with one source", func() *Builder {
			return NewBuilder().AddSource("visits", visitsSchema()).GroupBy("page").
				OrderBy(core.NewCriteria().Add("page", core.Asc).AddSourceOrder(core.Asc))
		}},
		{"duplicate order field", func() *Builder {
			return NewBuilder().AddSource("visits", visitsSchema()).GroupBy("page").
				OrderBy(core.NewCriteria().Add("page", core.Asc).Add("page", core.Desc))
		}},
		{"specific order before common order", func() *Builder {
			return twoSourceBuilder().GroupBy("url").
				SpecificOrderBy("visits", core.NewCriteria().Add("ts", core.Asc))
		}},
		{"specific order overlaps common", func() *Builder {
			return twoSourceBuilder().GroupBy("url").
				OrderBy(core.NewCriteria().Add("url", core.Asc).AddSourceOrder(core.Asc)).
				SpecificOrderBy("visits", core.NewCriteria().Add("page", core.Asc))
		}},
		{"specific field missing", func() *Builder {
			return twoSourceBuilder().GroupBy("url").
				OrderBy(core.NewCriteria().Add("url", core.Asc).AddSourceOrder(core.Asc)).
				SpecificOrderBy("visits", core.NewCriteria().Add("nope", core.Asc))
		}},
		{"rollup without explicit order", func() *Builder {
			return twoSourceBuilder().GroupBy("url").RollupFrom("url")
		}},
		{"rollup from non group field", func() *Builder {
			return NewBuilder().AddSource("visits", visitsSchema()).GroupBy("page").
				OrderBy(core.NewCriteria().Add("page", core.Asc).Add("ts", core.Asc)).
				RollupFrom("ts")
		}},
		{"comparator on primitive", func() *Builder {
			return NewBuilder().AddSource("objs", objSchema).GroupBy("k").
				OrderBy(core.NewCriteria().AddWithComparator("k", core.Asc, "cmp"))
		}},
		{"partition field not common", func() *Builder {
			return twoSourceBuilder().GroupBy("url").PartitionBy("ts")
		}},
		{"duplicate source", func() *Builder {
			return NewBuilder().AddSource("visits", visitsSchema()).AddSource("visits", visitsSchema()).GroupBy("page")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Build()
			require.Error(t, err)
			var ce *core.ConfigError
			var dup *core.DuplicateSourceError
			assert.True(t, errors.As(err, &ce) || errors.As(err, &dup), "got %T: %v", err, err)
		})
	}
}

// TestBuilder_FieldAfterSourceOrder tests that the source tie-break cannot be followed by common fields
func TestBuilder_FieldAfterSourceOrder(t *testing.T) {
	schema := func(name string) *core.Schema {
		return core.MustSchema(name, core.NewField("k", core.Utf8String), core.NewField("ts", core.Int64))
	}
	_, err := NewBuilder().
		AddSource("a", schema("a")).
		AddSource("b", schema("b")).
		GroupBy("k").
		OrderBy(core.NewCriteria().Add("k", core.Asc).AddSourceOrder(core.Asc).Add("ts", core.Asc)).
		Build()
	var ce *core.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "ts", ce.Field)

	// The same ordering is expressed with a specific order per source.
	cfg, err := NewBuilder().
		AddSource("a", schema("a")).
		AddSource("b", schema("b")).
		GroupBy("k").
		OrderBy(core.NewCriteria().Add("k", core.Asc).AddSourceOrder(core.Asc)).
		SpecificOrderBy("a", core.NewCriteria().Add("ts", core.Asc)).
		SpecificOrderBy("b", core.NewCriteria().Add("ts", core.Asc)).
		Build()
	require.NoError(t, err)
	info, err := cfg.Info()
	require.NoError(t, err)
	assert.Equal(t, 1, info.CommonSchema().Len())
}

// TestBuilder_SpecificOrder tests that specific orders accept logical names
func TestBuilder_SpecificOrder(t *testing.T) {
	cfg, err := twoSourceBuilder().
		GroupBy("url").
		OrderBy(core.NewCriteria().Add("url", core.Asc).AddSourceOrder(core.Desc)).
		SpecificOrderBy("visits", core.NewCriteria().Add("ts", core.Desc)).
		Build()
	require.NoError(t, err)
	info, err := cfg.Info()
	require.NoError(t, err)
	assert.Equal(t, core.Desc, info.SourceOrder())
	assert.Equal(t, "ts", info.SpecificSchema(1).Field(0).Name)
	assert.Equal(t, core.NewCriteria().Add("page", core.Asc).Add("ts", core.Desc), info.SourceCriteria(1))
}

// TestBuilder_PartitionWarning tests that partition fields outside the group are reported
func TestBuilder_PartitionWarning(t *testing.T) {
	var messages []string
	logger := funcr.New(func(prefix, args string) { messages = append(messages, args) }, funcr.Options{})

	schema := core.MustSchema("geo",
		core.NewField("country", core.Utf8String),
		core.NewField("city", core.Utf8String),
	)
	_, err := NewBuilder().
		WithLogger(logger).
		AddSource("geo", schema).
		GroupBy("country", "city").
		OrderBy(core.NewCriteria().Add("country", core.Asc).Add("city", core.Asc)).
		RollupFrom("country").
		PartitionBy("city").
		Build()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "city")
}

// TestConfig_Immutable tests that builder calls after Build do not leak into the Config
func TestConfig_Immutable(t *testing.T) {
	b := NewBuilder().AddSource("pages", pagesSchema()).GroupBy("url")
	cfg, err := b.Build()
	require.NoError(t, err)

	b.SetAlias("pages", "link", "canonicalUrl")
	src, _ := cfg.Source("pages")
	assert.Empty(t, src.Aliases())
}

// TestPortable_RoundTrip tests that the portable form rebuilds an equal configuration
func TestPortable_RoundTrip(t *testing.T) {
	objSchema := core.MustSchema("objs",
		core.NewField("url", core.Utf8String),
		core.NewEnumField("kind", "a", "b"),
		core.Field{Name: "o", Type: core.Object, ObjectClass: "thing", Comparator: "by-size"},
	)
	tests := []struct {
		name    string
		builder *Builder
	}{
		{"implicit single", NewBuilder().AddSource("pages", pagesSchema()).GroupBy("url")},
		{"multi with specific", twoSourceBuilder().GroupBy("url").
			OrderBy(core.NewCriteria().Add("url", core.Desc).AddSourceOrder(core.Desc)).
			SpecificOrderBy("visits", core.NewCriteria().Add("ts", core.Asc).Add("ip", core.Desc))},
		{"rollup and partition", NewBuilder().AddSource("objs", objSchema).
			GroupBy("url", "kind").
			OrderBy(core.NewCriteria().Add("url", core.Asc).Add("kind", core.Asc).AddWithComparator("o", core.Desc, "by-size")).
			RollupFrom("url").
			PartitionBy("url")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.builder.Build()
			require.NoError(t, err)

			data, err := ToPortable(cfg)
			require.NoError(t, err)
			back, err := FromPortable(data, logr.Discard())
			require.NoError(t, err)
			assert.True(t, cfg.Equal(back))

			again, err := ToPortable(back)
			require.NoError(t, err)
			assert.JSONEq(t, string(data), string(again))
		})
	}
}

// TestConfig_Names tests comparator and object class discovery
func TestConfig_Names(t *testing.T) {
	schema := core.MustSchema("objs",
		core.NewField("k", core.Utf8String),
		core.Field{Name: "o", Type: core.Object, ObjectClass: "thing", Comparator: "by-size"},
		core.NewObjectField("p", "other"),
	)
	cfg, err := NewBuilder().AddSource("objs", schema).
		GroupBy("k").
		OrderBy(core.NewCriteria().Add("k", core.Asc).AddWithComparator("p", core.Asc, "by-name")).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"by-name", "by-size"}, cfg.Comparators())
	assert.Equal(t, []string{"other", "thing"}, cfg.ObjectClasses())
}

// TestFromPortable_Errors tests malformed input
func TestFromPortable_Errors(t *testing.T) {
	_, err := FromPortable([]byte("{"), logr.Discard())
	assert.Error(t, err)
	_, err = FromPortable([]byte(`{"version":99}`), logr.Discard())
	assert.Error(t, err)
	_, err = FromPortable([]byte(`{"version":1,"sources":[{"name":"a","schema":"a","fields":[{"name":"x","type":"nope"}]}],"groupBy":["x"]}`), logr.Discard())
	assert.Error(t, err)
}
