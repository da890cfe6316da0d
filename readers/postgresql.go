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
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
	"github.com/lib/pq"
)

// Package readers provides core.TupleSource implementations that stream one
// source's tuples in the order the sort comparator expects.
//
// This file streams a PostgreSQL table. The ORDER BY clause is derived from the
// source criteria: text columns sort with the "C" collation so the database
// orders strings bytewise, and enum columns hold symbols ordered by ordinal.

// PostgresReaderError provides structured error information for Postgres reader operations
type PostgresReaderError struct {
	Op  string // Operation that failed (e.g., "connect", "query", "scan", "read")
	Err error  // Underlying error
}

func (e *PostgresReaderError) Error() string {
	return fmt.Sprintf("postgres reader %s: %v", e.Op, e.Err)
}

func (e *PostgresReaderError) Unwrap() error {
	return e.Err
}

// PostgresReader implements core.TupleSource over an ordered PostgreSQL query.
type PostgresReader struct {
	mu         sync.Mutex
	db         *sql.DB
	ownsDB     bool
	tx         *sql.Tx
	rows       *sql.Rows
	schema     *core.Schema
	codec      *codec.Codec
	scanBuffer []any
	values     []any
	query      string
	params     []any
	fetched    int // rows returned by the current cursor fetch
	stats      PostgresReaderStats
	opts       *PostgresReaderOptions
	isFinished bool
}

// PostgresReaderStats holds statistics about the Postgres reader's performance
type PostgresReaderStats struct {
	TuplesRead     int64
	Fetches        int64
	QueryDuration  time.Duration
	ReadDuration   time.Duration
	LastReadTime   time.Time
	ConnectionTime time.Duration
}

// PostgresReaderOptions configures the Postgres reader
type PostgresReaderOptions struct {
	DSN             string        // Database connection string
	DB              *sql.DB       // Existing pool; DSN is ignored when set
	Table           string        // Table to read, optionally schema-qualified
	Where           string        // Optional filter without the WHERE keyword
	Params          []any         // Parameters of Where
	BatchSize       int           // Rows fetched per cursor round trip
	ConnMaxLifetime time.Duration // Maximum connection lifetime
	ConnMaxIdleTime time.Duration // Maximum connection idle time
	MaxOpenConns    int           // Maximum open connections
	MaxIdleConns    int           // Maximum idle connections
	QueryTimeout    time.Duration // Timeout of the initial connection check
	UseCursor       bool          // Use a server-side cursor for large results
	CursorName      string        // Name for the cursor (if UseCursor is true)
	Codec           *codec.Codec  // Deserializes Object columns
}

// PostgresReaderOption represents a configuration function for PostgresReaderOptions
type PostgresReaderOption func(*PostgresReaderOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresDB reads through an existing connection pool. Close leaves it open.
func WithPostgresDB(db *sql.DB) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DB = db
	}
}

// WithPostgresTable sets the table to read.
func WithPostgresTable(table string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Table = table
	}
}

// WithPostgresWhere sets a filter condition and its parameters.
func WithPostgresWhere(condition string, params ...any) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Where = condition
		opts.Params = make([]any, len(params))
		copy(opts.Params, params)
	}
}

// WithPostgresBatchSize sets the batch size for cursor fetches.
func WithPostgresBatchSize(size int) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.BatchSize = size
	}
}

// WithPostgresConnectionPool configures the connection pool.
func WithPostgresConnectionPool(maxOpen, maxIdle int) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
	}
}

// WithPostgresConnectionTimeout sets connection and idle timeouts.
func WithPostgresConnectionTimeout(lifetime, idleTime time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.ConnMaxLifetime = lifetime
		opts.ConnMaxIdleTime = idleTime
	}
}

// WithPostgresQueryTimeout sets the timeout of the initial connection check.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

// WithPostgresCursor enables or disables server-side cursor usage for large results.
func WithPostgresCursor(useCursor bool, cursorName string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.UseCursor = useCursor
		opts.CursorName = cursorName
	}
}

// WithPostgresCodec sets the codec used to deserialize Object columns.
func WithPostgresCodec(c *codec.Codec) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Codec = c
	}
}

// NewPostgresReader opens a reader returning the table's rows as tuples of schema,
// ordered by criteria. Criteria must name schema fields; pass the source
// criteria of the serialization info.
func NewPostgresReader(ctx context.Context, schema *core.Schema, criteria core.Criteria, options ...PostgresReaderOption) (*PostgresReader, error) {
	opts := (&PostgresReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}
	query, err := SortedQuery(opts.Table, schema, criteria, opts.Where)
	if err != nil {
		return nil, &PostgresReaderError{Op: "validate", Err: err}
	}
	if opts.UseCursor && !isValidCursorName(opts.CursorName) {
		return nil, &PostgresReaderError{Op: "validate_cursor", Err: fmt.Errorf("invalid cursor name: %s", opts.CursorName)}
	}

	startTime := time.Now()
	db, owns, err := opts.open()
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if owns {
			db.Close()
		}
		return nil, &PostgresReaderError{Op: "ping", Err: err}
	}

	reader := &PostgresReader{
		db:     db,
		ownsDB: owns,
		schema: schema,
		codec:  opts.Codec,
		query:  query,
		params: opts.Params,
		opts:   opts,
		stats:  PostgresReaderStats{ConnectionTime: time.Since(startTime)},
	}
	if err := reader.executeQuery(ctx); err != nil {
		reader.Close()
		return nil, err
	}
	return reader, nil
}

func (opts *PostgresReaderOptions) open() (*sql.DB, bool, error) {
	if opts.DB != nil {
		return opts.DB, false, nil
	}
	if opts.DSN == "" {
		return nil, false, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("dsn is required")}
	}
	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, false, &PostgresReaderError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	return db, true, nil
}

// withDefaults applies default values to PostgresReaderOptions
func (opts *PostgresReaderOptions) withDefaults() *PostgresReaderOptions {
	result := &PostgresReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.QueryTimeout <= 0 {
		result.QueryTimeout = 30 * time.Second
	}
	if result.ConnMaxLifetime <= 0 {
		result.ConnMaxLifetime = 5 * time.Minute
	}
	if result.ConnMaxIdleTime <= 0 {
		result.ConnMaxIdleTime = 1 * time.Minute
	}
	if result.MaxOpenConns <= 0 {
		result.MaxOpenConns = 10
	}
	if result.MaxIdleConns <= 0 {
		result.MaxIdleConns = 5
	}
	if result.CursorName == "" {
		result.CursorName = "gocogroup_cursor"
	}
	if result.Codec == nil {
		result.Codec = codec.New(nil)
	}
	return result
}

// SortedQuery builds a SELECT returning schema's columns in schema order,
// filtered by where and ordered by criteria. Object fields cannot be ordered by
// the database.
func SortedQuery(table string, schema *core.Schema, criteria core.Criteria, where string) (string, error) {
	if table == "" {
		return "", fmt.Errorf("table is required")
	}
	cols := make([]string, schema.Len())
	for i, f := range schema.Fields() {
		cols[i] = pq.QuoteIdentifier(f.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), quoteTable(table))
	if where != "" {
		fmt.Fprintf(&b, " WHERE %s", where)
	}
	if len(criteria) == 0 {
		return b.String(), nil
	}
	keys := make([]string, 0, len(criteria))
	for _, e := range criteria {
		if e.Field == core.SourceOrderField {
			continue
		}
		i := schema.Index(e.Field)
		if i < 0 {
			return "", &core.UnknownFieldError{Source: schema.Name(), Field: e.Field}
		}
		key, err := orderKey(schema.Field(i))
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if e.Order == core.Desc {
			dir = "DESC"
		}
		keys = append(keys, key+" "+dir)
	}
	if len(keys) > 0 {
		fmt.Fprintf(&b, " ORDER BY %s", strings.Join(keys, ", "))
	}
	return b.String(), nil
}

func orderKey(f core.Field) (string, error) {
	col := pq.QuoteIdentifier(f.Name)
	switch f.Type {
	case core.Utf8String:
		return col + ` COLLATE "C"`, nil
	case core.Enum:
		syms := make([]string, len(f.Symbols))
		for i, s := range f.Symbols {
			syms[i] = pq.QuoteLiteral(s)
		}
		return fmt.Sprintf("array_position(ARRAY[%s]::text[], %s::text)", strings.Join(syms, ", "), col), nil
	case core.Object:
		return "", &core.ConfigError{Field: f.Name, Reason: "object fields cannot be ordered by the database"}
	default:
		return col, nil
	}
}

func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// Stats returns statistics about the PostgreSQL reader's performance
func (p *PostgresReader) Stats() PostgresReaderStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Query returns the SQL statement the reader runs.
func (p *PostgresReader) Query() string { return p.query }

// Read returns the next tuple, or io.EOF after the last row.
func (p *PostgresReader) Read(ctx context.Context) (*core.Tuple, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
		p.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &PostgresReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if p.db == nil {
		return nil, &PostgresReaderError{Op: "read", Err: fmt.Errorf("reader is closed")}
	}
	if p.isFinished || p.rows == nil {
		return nil, io.EOF
	}

	for !p.rows.Next() {
		if err := p.rows.Err(); err != nil {
			return nil, &PostgresReaderError{Op: "read", Err: err}
		}
		if !p.opts.UseCursor || p.fetched < p.opts.BatchSize {
			p.isFinished = true
			return nil, io.EOF
		}
		if err := p.fetch(ctx); err != nil {
			return nil, err
		}
	}
	p.fetched++

	if err := p.rows.Scan(p.scanBuffer...); err != nil {
		return nil, &PostgresReaderError{Op: "scan", Err: err}
	}
	t := core.NewTuple(p.schema)
	for i, f := range p.schema.Fields() {
		v, err := convertSQLValue(p.codec, f, p.values[i])
		if err != nil {
			return nil, &PostgresReaderError{Op: "convert", Err: err}
		}
		t.Set(i, v)
	}
	p.stats.TuplesRead++
	return t, nil
}

// Close releases all resources held by the PostgreSQL reader
func (p *PostgresReader) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error

	if p.rows != nil {
		if err := p.rows.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing rows: %w", err))
		}
		p.rows = nil
	}
	if p.tx != nil {
		if err := p.tx.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("rolling back transaction: %w", err))
		}
		p.tx = nil
	}
	if p.db != nil && p.ownsDB {
		if err := p.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	p.db = nil

	if len(errs) > 0 {
		return &PostgresReaderError{Op: "close", Err: fmt.Errorf("multiple errors: %v", errs)}
	}
	return nil
}

// executeQuery starts the query and prepares the scan buffers.
func (p *PostgresReader) executeQuery(ctx context.Context) error {
	startTime := time.Now()
	if p.opts.UseCursor {
		if err := p.declareCursor(ctx); err != nil {
			return err
		}
	} else {
		rows, err := p.db.QueryContext(ctx, p.query, p.params...)
		if err != nil {
			return &PostgresReaderError{Op: "query", Err: err}
		}
		p.rows = rows
	}
	p.stats.QueryDuration = time.Since(startTime)

	columns, err := p.rows.Columns()
	if err != nil {
		return &PostgresReaderError{Op: "columns", Err: err}
	}
	if len(columns) != p.schema.Len() {
		return &PostgresReaderError{Op: "columns", Err: fmt.Errorf("query returned %d columns for schema %s", len(columns), p.schema)}
	}
	p.values = make([]any, len(columns))
	p.scanBuffer = make([]any, len(columns))
	for i := range p.scanBuffer {
		p.scanBuffer[i] = &p.values[i]
	}
	return nil
}

// declareCursor opens a transaction holding a server-side cursor and fetches the first batch.
func (p *PostgresReader) declareCursor(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return &PostgresReaderError{Op: "begin_transaction", Err: err}
	}
	p.tx = tx
	declareSQL := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", p.opts.CursorName, p.query)
	if _, err := tx.ExecContext(ctx, declareSQL, p.params...); err != nil {
		return &PostgresReaderError{Op: "declare_cursor", Err: err}
	}
	return p.fetch(ctx)
}

// fetch replaces the current rows with the next cursor batch.
func (p *PostgresReader) fetch(ctx context.Context) error {
	if p.rows != nil {
		if err := p.rows.Close(); err != nil {
			return &PostgresReaderError{Op: "fetch_cursor", Err: err}
		}
	}
	rows, err := p.tx.QueryContext(ctx, fmt.Sprintf("FETCH %d FROM %s", p.opts.BatchSize, p.opts.CursorName))
	if err != nil {
		p.rows = nil
		return &PostgresReaderError{Op: "fetch_cursor", Err: err}
	}
	p.rows = rows
	p.fetched = 0
	p.stats.Fetches++
	return nil
}

// isValidCursorName validates cursor name for SQL injection prevention
func isValidCursorName(name string) bool {
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_') {
			return false
		}
	}
	return len(name) > 0 && len(name) <= 63 // PostgreSQL identifier limit
}

// convertSQLValue converts a scanned driver value to the tuple value of f.
func convertSQLValue(c *codec.Codec, f core.Field, value any) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("field %s: null values are not supported", f.Name)
	}
	switch f.Type {
	case core.Int32:
		if v, ok := value.(int64); ok && v >= -1<<31 && v < 1<<31 {
			return int32(v), nil
		}
	case core.Int64:
		if v, ok := value.(int64); ok {
			return v, nil
		}
	case core.Float32:
		if v, ok := value.(float64); ok {
			return float32(v), nil
		}
	case core.Float64:
		if v, ok := value.(float64); ok {
			return v, nil
		}
	case core.Boolean:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case core.Utf8String:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case core.Bytes:
		if v, ok := value.([]byte); ok {
			return bytes.Clone(v), nil
		}
	case core.Enum:
		var sym string
		switch v := value.(type) {
		case string:
			sym = v
		case []byte:
			sym = string(v)
		default:
			return nil, fmt.Errorf("field %s: cannot convert %T to %s", f.Name, value, f.TypeString())
		}
		for i, s := range f.Symbols {
			if s == sym {
				return int32(i), nil
			}
		}
		return nil, fmt.Errorf("field %s: unknown enum symbol %q", f.Name, sym)
	case core.Object:
		if v, ok := value.([]byte); ok {
			return c.UnmarshalObject(f, v)
		}
	}
	return nil, fmt.Errorf("field %s: cannot convert %T to %s", f.Name, value, f.TypeString())
}
