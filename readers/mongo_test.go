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
	"errors"
	"testing"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// TestSortDocument tests the ordered sort specification
func TestSortDocument(t *testing.T) {
	schema := visitsSchema()
	sort, err := SortDocument(schema, core.NewCriteria().
		Add("url", core.Asc).
		AddSourceOrder(core.Asc).
		Add("ts", core.Desc).
		Add("kind", core.Asc))
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "url", Value: 1}, {Key: "ts", Value: -1}, {Key: "kind", Value: 1}}, sort)

	_, err = SortDocument(schema, core.NewCriteria().Add("nope", core.Asc))
	var unknown *core.UnknownFieldError
	assert.True(t, errors.As(err, &unknown))

	blobs := core.MustSchema("blobs", core.NewField("data", core.Bytes))
	_, err = SortDocument(blobs, core.NewCriteria().Add("data", core.Asc))
	var cfgErr *core.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

// TestSortedPipeline tests that the projection and sort run after user stages
func TestSortedPipeline(t *testing.T) {
	schema := core.MustSchema("s", core.NewField("_id", core.Utf8String), core.NewField("n", core.Int32))
	sort := bson.D{{Key: "n", Value: 1}}
	got := SortedPipeline([]bson.M{{"$match": bson.M{"n": bson.M{"$gt": 1}}}}, schema, sort)
	assert.Equal(t, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"n": bson.M{"$gt": 1}}}},
		{{Key: "$project", Value: bson.D{{Key: "_id", Value: 1}, {Key: "n", Value: 1}}}},
		{{Key: "$sort", Value: sort}},
	}, got)
}

// TestDocumentTuple tests decoding of raw documents into tuples
func TestDocumentTuple(t *testing.T) {
	objects := codec.NewObjectRegistry()
	require.NoError(t, objects.RegisterSerializer("point", codec.NewBSONSerializer[point]()))
	c := codec.New(objects)

	schema := core.MustSchema("all",
		core.NewField("i32", core.Int32),
		core.NewField("i64", core.Int64),
		core.NewField("f32", core.Float32),
		core.NewField("f64", core.Float64),
		core.NewField("b", core.Boolean),
		core.NewField("s", core.Utf8String),
		core.NewField("raw", core.Bytes),
		core.NewEnumField("kind", "view", "click"),
		core.NewEnumField("kindName", "view", "click"),
		core.NewObjectField("native", "point"),
		core.NewObjectField("packed", "point"),
	)
	packed, err := c.MarshalObject(schema.Field(10), point{X: 3, Y: 4})
	require.NoError(t, err)

	data, err := bson.Marshal(bson.D{
		{Key: "_id", Value: "ignored"},
		{Key: "i32", Value: int32(1)},
		{Key: "i64", Value: int32(2)},
		{Key: "f32", Value: 1.5},
		{Key: "f64", Value: 2.5},
		{Key: "b", Value: true},
		{Key: "s", Value: "x"},
		{Key: "raw", Value: []byte{9}},
		{Key: "kind", Value: int32(1)},
		{Key: "kindName", Value: "view"},
		{Key: "native", Value: bson.D{{Key: "x", Value: int32(1)}, {Key: "y", Value: int32(2)}}},
		{Key: "packed", Value: packed},
	})
	require.NoError(t, err)

	tup, err := DocumentTuple(c, schema, bson.Raw(data))
	require.NoError(t, err)
	assert.Equal(t, []any{
		int32(1), int64(2), float32(1.5), 2.5, true, "x", []byte{9},
		int32(1), int32(0), point{X: 1, Y: 2}, point{X: 3, Y: 4},
	}, tup.Values())

	missing, err := bson.Marshal(bson.D{{Key: "i32", Value: int32(1)}})
	require.NoError(t, err)
	_, err = DocumentTuple(c, schema, bson.Raw(missing))
	assert.Error(t, err)

	wrong, err := bson.Marshal(bson.D{{Key: "n", Value: "one"}})
	require.NoError(t, err)
	_, err = DocumentTuple(c, core.MustSchema("n", core.NewField("n", core.Int32)), bson.Raw(wrong))
	assert.Error(t, err)
}

// TestNewMongoReader tests option validation and defaults
func TestNewMongoReader(t *testing.T) {
	schema := visitsSchema()
	criteria := core.NewCriteria().Add("url", core.Asc)

	_, err := NewMongoReader(schema, criteria, WithMongoCollection("visits"))
	var readerErr *MongoReaderError
	require.True(t, errors.As(err, &readerErr))
	assert.Equal(t, "validate", readerErr.Op)

	_, err = NewMongoReader(schema, criteria, WithMongoDB("db"))
	assert.Error(t, err)

	r, err := NewMongoReader(schema, criteria,
		WithMongoDB("db"),
		WithMongoCollection("visits"),
		WithMongoPipeline([]bson.M{{"$match": bson.M{}}}),
		WithMongoReadPreference("secondary"),
	)
	require.NoError(t, err)
	assert.Equal(t, ModeAggregate, r.opts.Mode)
	assert.Equal(t, int32(1000), r.opts.BatchSize)
	assert.Equal(t, bson.D{{Key: "url", Value: 1}}, r.sort)
	_, err = r.buildClientOptions()
	assert.NoError(t, err)
	require.NoError(t, r.Close())

	bad, err := NewMongoReader(schema, criteria, WithMongoDB("db"), WithMongoCollection("visits"), WithMongoReadConcern("eventual"))
	require.NoError(t, err)
	_, err = bad.buildClientOptions()
	assert.Error(t, err)
}
