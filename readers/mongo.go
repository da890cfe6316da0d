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
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// This file streams a MongoDB collection sorted by the source criteria.
//
// MongoDB compares strings bytewise under the simple collation, so no collation
// is ever set. Enum fields must be stored as int32 ordinals to be sorted; bytes
// and object fields cannot be sorted by the server. Object fields are stored
// either as binary payloads of their serializer or, for BSON serialized
// classes, as native BSON values.

// MongoReaderError provides structured error information for MongoDB reader operations
type MongoReaderError struct {
	Op         string // Operation that failed (e.g., "connect", "query", "decode", "aggregate")
	Collection string // Collection being accessed when error occurred
	Err        error  // Underlying error
}

func (e *MongoReaderError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo reader %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo reader %s: %v", e.Op, e.Err)
}

func (e *MongoReaderError) Unwrap() error {
	return e.Err
}

// MongoReaderStats holds statistics about the MongoDB reader's performance
type MongoReaderStats struct {
	TuplesRead      int64         // Total tuples read
	QueriesExecuted int64         // Total queries executed
	ReadDuration    time.Duration // Total time spent reading
	LastReadTime    time.Time     // Time of last read
	BytesRead       int64         // Raw document bytes read
}

// MongoReadMode defines how data should be read from MongoDB
type MongoReadMode string

const (
	ModeFind      MongoReadMode = "find"      // Find with a sort document
	ModeAggregate MongoReadMode = "aggregate" // Aggregation pipeline followed by a $sort stage
)

// MongoReaderOptions configures the MongoDB reader
type MongoReaderOptions struct {
	URI             string        // MongoDB connection URI
	Client          *mongo.Client // Existing client; URI is ignored when set
	Database        string        // Database name
	Collection      string        // Collection name
	Mode            MongoReadMode // Read mode
	Filter          bson.M        // Query filter for find operations
	Pipeline        []bson.M      // Aggregation stages run before the sort
	BatchSize       int32         // Batch size for cursor
	Timeout         time.Duration // Connect timeout
	MaxPoolSize     uint64        // Connection pool size
	MinPoolSize     uint64        // Minimum connections in pool
	ReadPreference  string        // Read preference: primary, secondary, etc.
	ReadConcern     string        // Read concern level
	AuthDatabase    string        // Authentication database
	Username        string        // Authentication username
	Password        string        // Authentication password
	TLS             bool          // Enable TLS
	TLSInsecure     bool          // Skip TLS verification
	AllowDiskUse    bool          // Allow sorts to spill to disk
	Hint            any           // Index hint for queries
	MaxTimeMS       int64         // Maximum execution time
	Comment         string        // Query comment for profiling
	Codec           *codec.Codec  // Deserializes Object fields
	MaxConnIdleTime time.Duration // Max idle time for connections
}

// ReaderOptionMongo is a functional option for MongoReaderOptions
type ReaderOptionMongo func(*MongoReaderOptions)

// WithMongoURI sets the connection URI.
func WithMongoURI(uri string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.URI = uri }
}

// WithMongoClient reads through an existing client. Close leaves it connected.
func WithMongoClient(client *mongo.Client) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Client = client }
}

// WithMongoDB sets the database name.
func WithMongoDB(database string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Database = database }
}

// WithMongoCollection sets the collection name.
func WithMongoCollection(collection string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Collection = collection }
}

// WithMongoFilter sets the find filter.
func WithMongoFilter(filter bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Filter = filter }
}

// WithMongoPipeline switches to aggregate mode with the given stages.
func WithMongoPipeline(pipeline []bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Pipeline = pipeline
		opts.Mode = ModeAggregate
	}
}

// WithMongoBatchSize sets the cursor batch size.
func WithMongoBatchSize(batchSize int32) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.BatchSize = batchSize }
}

// WithMongoTimeout sets the connect timeout.
func WithMongoTimeout(timeout time.Duration) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Timeout = timeout }
}

// WithMongoPoolSize sets the connection pool bounds.
func WithMongoPoolSize(min, max uint64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.MinPoolSize = min
		opts.MaxPoolSize = max
	}
}

// WithMongoReadPreference sets the read preference by name.
func WithMongoReadPreference(preference string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.ReadPreference = preference }
}

// WithMongoReadConcern sets the read concern level by name.
func WithMongoReadConcern(concern string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.ReadConcern = concern }
}

// WithMongoAuth sets credentials.
func WithMongoAuth(username, password, authDB string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Username = username
		opts.Password = password
		opts.AuthDatabase = authDB
	}
}

// WithMongoTLS enables TLS.
func WithMongoTLS(enabled, insecure bool) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.TLS = enabled
		opts.TLSInsecure = insecure
	}
}

// WithMongoHint sets an index hint, typically the index backing the sort.
func WithMongoHint(hint any) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Hint = hint }
}

// WithMongoAllowDiskUse lets the server spill large sorts to disk.
func WithMongoAllowDiskUse(allow bool) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.AllowDiskUse = allow }
}

// WithMongoMaxTime sets the maximum execution time.
func WithMongoMaxTime(maxTimeMS int64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.MaxTimeMS = maxTimeMS }
}

// WithMongoComment sets a query comment.
func WithMongoComment(comment string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Comment = comment }
}

// WithMongoCodec sets the codec used to deserialize Object fields.
func WithMongoCodec(c *codec.Codec) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Codec = c }
}

// MongoReader implements core.TupleSource over a sorted MongoDB cursor.
type MongoReader struct {
	client     *mongo.Client
	ownsClient bool
	collection *mongo.Collection
	cursor     *mongo.Cursor
	schema     *core.Schema
	sort       bson.D
	opts       *MongoReaderOptions
	stats      MongoReaderStats
}

// NewMongoReader creates a reader returning documents of the collection as
// tuples of schema, ordered by criteria. The connection is opened on first Read
// or by Connect.
func NewMongoReader(schema *core.Schema, criteria core.Criteria, options ...ReaderOptionMongo) (*MongoReader, error) {
	opts := (&MongoReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}
	if opts.Database == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("database name is required")}
	}
	if opts.Collection == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("collection name is required")}
	}
	sort, err := SortDocument(schema, criteria)
	if err != nil {
		return nil, &MongoReaderError{Op: "validate", Collection: opts.Collection, Err: err}
	}
	return &MongoReader{schema: schema, sort: sort, opts: opts}, nil
}

func (opts *MongoReaderOptions) withDefaults() *MongoReaderOptions {
	result := &MongoReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.URI == "" {
		result.URI = "mongodb://localhost:27017"
	}
	if result.Mode == "" {
		result.Mode = ModeFind
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.Timeout <= 0 {
		result.Timeout = 30 * time.Second
	}
	if result.MaxPoolSize == 0 {
		result.MaxPoolSize = 100
	}
	if result.MaxConnIdleTime <= 0 {
		result.MaxConnIdleTime = 10 * time.Minute
	}
	if result.ReadPreference == "" {
		result.ReadPreference = "primary"
	}
	if result.ReadConcern == "" {
		result.ReadConcern = "local"
	}
	if result.Codec == nil {
		result.Codec = codec.New(nil)
	}
	return result
}

// SortDocument builds the ordered sort specification of criteria.
func SortDocument(schema *core.Schema, criteria core.Criteria) (bson.D, error) {
	sort := bson.D{}
	for _, e := range criteria {
		if e.Field == core.SourceOrderField {
			continue
		}
		i := schema.Index(e.Field)
		if i < 0 {
			return nil, &core.UnknownFieldError{Source: schema.Name(), Field: e.Field}
		}
		switch f := schema.Field(i); f.Type {
		case core.Bytes, core.Object:
			return nil, &core.ConfigError{Source: schema.Name(), Field: f.Name, Reason: f.TypeString() + " fields cannot be sorted by the server"}
		}
		dir := 1
		if e.Order == core.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: e.Field, Value: dir})
	}
	return sort, nil
}

// Projection returns the projection selecting the schema fields.
func Projection(schema *core.Schema) bson.D {
	proj := bson.D{}
	if !schema.Has("_id") {
		proj = append(proj, bson.E{Key: "_id", Value: 0})
	}
	for _, f := range schema.Fields() {
		proj = append(proj, bson.E{Key: f.Name, Value: 1})
	}
	return proj
}

// Connect establishes connection to MongoDB
func (mr *MongoReader) Connect(ctx context.Context) error {
	if mr.collection != nil {
		return nil
	}
	client := mr.opts.Client
	if client == nil {
		clientOpts, err := mr.buildClientOptions()
		if err != nil {
			return &MongoReaderError{Op: "build_options", Err: err}
		}
		client, err = mongo.Connect(ctx, clientOpts)
		if err != nil {
			return &MongoReaderError{Op: "connect", Err: err}
		}
		if err := client.Ping(ctx, nil); err != nil {
			client.Disconnect(ctx)
			return &MongoReaderError{Op: "ping", Err: err}
		}
		mr.ownsClient = true
	}
	mr.client = client
	mr.collection = client.Database(mr.opts.Database).Collection(mr.opts.Collection)
	return nil
}

// buildClientOptions constructs MongoDB client options from reader configuration
func (mr *MongoReader) buildClientOptions() (*options.ClientOptions, error) {
	clientOpts := options.Client().ApplyURI(mr.opts.URI)
	clientOpts.SetMaxPoolSize(mr.opts.MaxPoolSize)
	if mr.opts.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(mr.opts.MinPoolSize)
	}
	clientOpts.SetMaxConnIdleTime(mr.opts.MaxConnIdleTime)
	clientOpts.SetConnectTimeout(mr.opts.Timeout)

	if mr.opts.Username != "" && mr.opts.Password != "" {
		auth := options.Credential{
			Username:   mr.opts.Username,
			Password:   mr.opts.Password,
			AuthSource: mr.opts.AuthDatabase,
		}
		if auth.AuthSource == "" {
			auth.AuthSource = mr.opts.Database
		}
		clientOpts.SetAuth(auth)
	}
	if mr.opts.TLS {
		clientOpts.SetTLSConfig(&tls.Config{InsecureSkipVerify: mr.opts.TLSInsecure})
	}

	var readPref *readpref.ReadPref
	switch mr.opts.ReadPreference {
	case "primary":
		readPref = readpref.Primary()
	case "primaryPreferred":
		readPref = readpref.PrimaryPreferred()
	case "secondary":
		readPref = readpref.Secondary()
	case "secondaryPreferred":
		readPref = readpref.SecondaryPreferred()
	case "nearest":
		readPref = readpref.Nearest()
	default:
		return nil, fmt.Errorf("invalid read preference: %s", mr.opts.ReadPreference)
	}
	clientOpts.SetReadPreference(readPref)

	var rc *readconcern.ReadConcern
	switch mr.opts.ReadConcern {
	case "local":
		rc = readconcern.Local()
	case "available":
		rc = readconcern.Available()
	case "majority":
		rc = readconcern.Majority()
	case "linearizable":
		rc = readconcern.Linearizable()
	case "snapshot":
		rc = readconcern.Snapshot()
	default:
		return nil, fmt.Errorf("invalid read concern: %s", mr.opts.ReadConcern)
	}
	clientOpts.SetReadConcern(rc)
	clientOpts.SetRetryReads(true)
	return clientOpts, nil
}

// Read returns the next tuple, or io.EOF when the cursor is exhausted.
func (mr *MongoReader) Read(ctx context.Context) (*core.Tuple, error) {
	start := time.Now()
	defer func() {
		mr.stats.ReadDuration += time.Since(start)
		mr.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &MongoReaderError{Op: "read", Collection: mr.opts.Collection, Err: ctx.Err()}
	default:
	}

	if err := mr.Connect(ctx); err != nil {
		return nil, err
	}
	if mr.cursor == nil {
		if err := mr.initializeCursor(ctx); err != nil {
			return nil, &MongoReaderError{Op: "init_cursor", Collection: mr.opts.Collection, Err: err}
		}
	}

	if !mr.cursor.Next(ctx) {
		if err := mr.cursor.Err(); err != nil {
			return nil, &MongoReaderError{Op: "cursor_next", Collection: mr.opts.Collection, Err: err}
		}
		return nil, io.EOF
	}
	t, err := DocumentTuple(mr.opts.Codec, mr.schema, mr.cursor.Current)
	if err != nil {
		return nil, &MongoReaderError{Op: "decode", Collection: mr.opts.Collection, Err: err}
	}
	mr.stats.TuplesRead++
	mr.stats.BytesRead += int64(len(mr.cursor.Current))
	return t, nil
}

// Close closes the cursor and disconnects a client the reader created.
func (mr *MongoReader) Close() error {
	ctx := context.Background()
	var errs []string
	if mr.cursor != nil {
		if err := mr.cursor.Close(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("cursor close: %v", err))
		}
		mr.cursor = nil
	}
	if mr.client != nil && mr.ownsClient {
		if err := mr.client.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("client disconnect: %v", err))
		}
	}
	mr.client, mr.collection = nil, nil
	if len(errs) > 0 {
		return &MongoReaderError{Op: "close", Err: fmt.Errorf("multiple errors: %s", strings.Join(errs, "; "))}
	}
	return nil
}

// Stats returns MongoDB reader performance statistics
func (mr *MongoReader) Stats() MongoReaderStats {
	return mr.stats
}

func (mr *MongoReader) initializeCursor(ctx context.Context) error {
	mr.stats.QueriesExecuted++
	switch mr.opts.Mode {
	case ModeFind:
		return mr.initializeFindCursor(ctx)
	case ModeAggregate:
		return mr.initializeAggregateCursor(ctx)
	default:
		return fmt.Errorf("unsupported read mode: %s", mr.opts.Mode)
	}
}

func (mr *MongoReader) initializeFindCursor(ctx context.Context) error {
	findOpts := options.Find().
		SetBatchSize(mr.opts.BatchSize).
		SetProjection(Projection(mr.schema)).
		SetSort(mr.sort).
		SetAllowDiskUse(mr.opts.AllowDiskUse)
	if mr.opts.Hint != nil {
		findOpts.SetHint(mr.opts.Hint)
	}
	if mr.opts.MaxTimeMS > 0 {
		findOpts.SetMaxTime(time.Duration(mr.opts.MaxTimeMS) * time.Millisecond)
	}
	if mr.opts.Comment != "" {
		findOpts.SetComment(mr.opts.Comment)
	}
	filter := mr.opts.Filter
	if filter == nil {
		filter = bson.M{}
	}
	cursor, err := mr.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return err
	}
	mr.cursor = cursor
	return nil
}

func (mr *MongoReader) initializeAggregateCursor(ctx context.Context) error {
	aggOpts := options.Aggregate().
		SetBatchSize(mr.opts.BatchSize).
		SetAllowDiskUse(mr.opts.AllowDiskUse)
	if mr.opts.MaxTimeMS > 0 {
		aggOpts.SetMaxTime(time.Duration(mr.opts.MaxTimeMS) * time.Millisecond)
	}
	if mr.opts.Comment != "" {
		aggOpts.SetComment(mr.opts.Comment)
	}
	if mr.opts.Hint != nil {
		aggOpts.SetHint(mr.opts.Hint)
	}
	cursor, err := mr.collection.Aggregate(ctx, SortedPipeline(mr.opts.Pipeline, mr.schema, mr.sort), aggOpts)
	if err != nil {
		return err
	}
	mr.cursor = cursor
	return nil
}

// SortedPipeline appends the projection and sort stages to pipeline.
func SortedPipeline(pipeline []bson.M, schema *core.Schema, sort bson.D) mongo.Pipeline {
	out := make(mongo.Pipeline, 0, len(pipeline)+2)
	for _, stage := range pipeline {
		d := bson.D{}
		for k, v := range stage {
			d = append(d, bson.E{Key: k, Value: v})
		}
		out = append(out, d)
	}
	out = append(out, bson.D{{Key: "$project", Value: Projection(schema)}})
	if len(sort) > 0 {
		out = append(out, bson.D{{Key: "$sort", Value: sort}})
	}
	return out
}

// DocumentTuple converts a raw document to a tuple of schema.
func DocumentTuple(c *codec.Codec, schema *core.Schema, doc bson.Raw) (*core.Tuple, error) {
	t := core.NewTuple(schema)
	for i, f := range schema.Fields() {
		rv, err := doc.LookupErr(f.Name)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		v, err := convertBSONValue(c, f, rv)
		if err != nil {
			return nil, err
		}
		t.Set(i, v)
	}
	return t, nil
}

func convertBSONValue(c *codec.Codec, f core.Field, rv bson.RawValue) (any, error) {
	switch f.Type {
	case core.Int32, core.Enum:
		switch rv.Type {
		case bson.TypeInt32:
			return rv.Int32(), nil
		case bson.TypeInt64:
			if v := rv.Int64(); v >= -1<<31 && v < 1<<31 {
				return int32(v), nil
			}
		case bson.TypeString:
			if f.Type == core.Enum {
				sym := rv.StringValue()
				for i, s := range f.Symbols {
					if s == sym {
						return int32(i), nil
					}
				}
				return nil, fmt.Errorf("field %s: unknown enum symbol %q", f.Name, sym)
			}
		}
	case core.Int64:
		switch rv.Type {
		case bson.TypeInt64:
			return rv.Int64(), nil
		case bson.TypeInt32:
			return int64(rv.Int32()), nil
		}
	case core.Float32:
		if rv.Type == bson.TypeDouble {
			return float32(rv.Double()), nil
		}
	case core.Float64:
		if rv.Type == bson.TypeDouble {
			return rv.Double(), nil
		}
	case core.Boolean:
		if rv.Type == bson.TypeBoolean {
			return rv.Boolean(), nil
		}
	case core.Utf8String:
		if rv.Type == bson.TypeString {
			return rv.StringValue(), nil
		}
	case core.Bytes:
		if rv.Type == bson.TypeBinary {
			_, data := rv.Binary()
			return append([]byte(nil), data...), nil
		}
	case core.Object:
		if rv.Type == bson.TypeBinary {
			_, data := rv.Binary()
			return c.UnmarshalObject(f, data)
		}
		// Native values are wrapped in the document shape of codec.BSONSerializer.
		payload, err := bson.Marshal(bson.D{{Key: "v", Value: rv}})
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return c.UnmarshalObject(f, payload)
	}
	return nil, fmt.Errorf("field %s: cannot convert BSON %s to %s", f.Name, rv.Type, f.TypeString())
}
