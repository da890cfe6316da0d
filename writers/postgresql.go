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
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aaronlmathis/gocogroup/codec"
	"github.com/aaronlmathis/gocogroup/core"
	"github.com/lib/pq"
)

// Package writers provides sinks for sorted runs and group results.
//
// This file implements a batching PostgreSQL writer. Column values use the
// same mapping as readers.PostgresReader: enums are stored as their symbol and
// Object fields as their serialized payload, so a table written here can be
// read back as a sorted run.

// PostgresWriterError wraps PostgreSQL-specific write errors with context about the operation.
type PostgresWriterError struct {
	Op  string // The operation being performed (e.g., "write", "connect")
	Err error  // The underlying error
}

func (e *PostgresWriterError) Error() string {
	return fmt.Sprintf("postgres writer %s: %v", e.Op, e.Err)
}

func (e *PostgresWriterError) Unwrap() error {
	return e.Err
}

// PostgresWriterStats counts what the writer sent to PostgreSQL.
type PostgresWriterStats struct {
	TuplesWritten  int64
	BatchesWritten int64
	RowsSkipped    int64 // inserts that affected no row under ConflictIgnore
}

// ConflictResolution defines how to handle INSERT conflicts in PostgreSQL.
type ConflictResolution int

const (
	// ConflictError returns an error on conflict (default PostgreSQL behavior).
	ConflictError ConflictResolution = iota
	// ConflictIgnore ignores conflicting rows (ON CONFLICT DO NOTHING).
	ConflictIgnore
	// ConflictUpdate updates conflicting rows (ON CONFLICT DO UPDATE).
	ConflictUpdate
)

// PostgresWriterOptions configures the PostgreSQL writer.
type PostgresWriterOptions struct {
	DSN                string             // PostgreSQL connection string
	DB                 *sql.DB            // Existing pool; DSN is ignored when set
	TableName          string             // Target table name, optionally schema-qualified
	BatchSize          int                // Number of tuples per batch
	CreateTable        bool               // Create table if not exists
	TruncateTable      bool               // Truncate table before writing
	ConflictResolution ConflictResolution // Conflict handling strategy
	ConflictColumns    []string           // Columns that define uniqueness for conflict resolution
	UpdateColumns      []string           // Columns to update on conflict (for ConflictUpdate)
	TransactionMode    bool               // Wrap batches in transactions
	ConnMaxLifetime    time.Duration      // Max connection lifetime
	ConnMaxIdleTime    time.Duration      // Max idle connection time
	MaxOpenConns       int                // Max open connections
	MaxIdleConns       int                // Max idle connections
	QueryTimeout       time.Duration      // Timeout for queries
	Codec              *codec.Codec       // Serializes Object fields
}

// PostgresWriterOption represents a functional option for PostgresWriterOptions.
type PostgresWriterOption func(*PostgresWriterOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresDB writes through an existing connection pool. Close leaves it open.
func WithPostgresDB(db *sql.DB) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DB = db
	}
}

// WithTableName sets the target table name.
func WithTableName(tableName string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TableName = tableName
	}
}

// WithPostgresBatchSize sets the number of tuples per batch.
func WithPostgresBatchSize(size int) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCreateTable creates the table from the schema if it does not exist.
func WithCreateTable(create bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.CreateTable = create
	}
}

// WithTruncateTable truncates the table before the first write.
func WithTruncateTable(truncate bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TruncateTable = truncate
	}
}

// WithConflictResolution sets conflict handling and the columns involved.
func WithConflictResolution(resolution ConflictResolution, conflictCols, updateCols []string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.ConflictResolution = resolution
		opts.ConflictColumns = append([]string(nil), conflictCols...)
		opts.UpdateColumns = append([]string(nil), updateCols...)
	}
}

// WithTransactionMode wraps each batch in a transaction.
func WithTransactionMode(enabled bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TransactionMode = enabled
	}
}

// WithPostgresConnectionPool configures the connection pool.
func WithPostgresConnectionPool(maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
		opts.ConnMaxLifetime = maxLifetime
		opts.ConnMaxIdleTime = maxIdleTime
	}
}

// WithPostgresQueryTimeout sets the timeout of Flush and of the connection check.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.QueryTimeout = timeout
	}
}

// WithPostgresCodec sets the codec serializing Object fields.
func WithPostgresCodec(c *codec.Codec) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.Codec = c
	}
}

// PostgresWriter writes tuples of one schema to a PostgreSQL table.
// It supports batching, transactions, conflict resolution, and statistics.
type PostgresWriter struct {
	db          *sql.DB
	ownsDB      bool
	schema      *core.Schema
	options     PostgresWriterOptions
	rowBuf      [][]any
	stats       PostgresWriterStats
	prepared    *sql.Stmt
	initialized bool
	errorState  bool
	mu          sync.Mutex
}

// NewPostgresWriter validates the options against schema and connects.
func NewPostgresWriter(ctx context.Context, schema *core.Schema, opts ...PostgresWriterOption) (*PostgresWriter, error) {
	options := &PostgresWriterOptions{}
	for _, opt := range opts {
		opt(options)
	}
	options = options.withDefaults()

	if err := validateOptions(schema, options); err != nil {
		return nil, &PostgresWriterError{Op: "validate", Err: err}
	}

	writer := &PostgresWriter{
		schema:  schema,
		options: *options,
		rowBuf:  make([][]any, 0, options.BatchSize),
	}

	if err := writer.connect(ctx); err != nil {
		return nil, &PostgresWriterError{Op: "connect", Err: err}
	}

	return writer, nil
}

// Stats returns a copy of the current write statistics.
func (w *PostgresWriter) Stats() PostgresWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Write converts t to column values and buffers the row. Full batches are
// written before Write returns. Thread-safe.
func (w *PostgresWriter) Write(ctx context.Context, t *core.Tuple) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return &PostgresWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if !t.Schema().Equal(w.schema) {
		return &PostgresWriterError{Op: "write", Err: fmt.Errorf("tuple schema %q does not match writer schema %q", t.Schema().Name(), w.schema.Name())}
	}

	row, err := sqlValues(w.options.Codec, t)
	if err != nil {
		return &PostgresWriterError{Op: "convert", Err: err}
	}

	if !w.initialized {
		if err := w.initializeUnsafe(ctx); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "initialize", Err: err}
		}
	}

	w.rowBuf = append(w.rowBuf, row)
	w.stats.TuplesWritten++

	if len(w.rowBuf) >= w.options.BatchSize {
		if err := w.flushBufferUnsafe(ctx); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "flush_batch", Err: err}
		}
	}

	return nil
}

// Flush forces any buffered tuples to be written to PostgreSQL.
func (w *PostgresWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.rowBuf) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	if err := w.flushBufferUnsafe(ctx); err != nil {
		w.errorState = true
		return &PostgresWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close flushes and closes all resources.
func (w *PostgresWriter) Close() error {
	flushErr := w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.prepared != nil {
		w.prepared.Close()
		w.prepared = nil
	}
	if w.db != nil && w.ownsDB {
		if err := w.db.Close(); err != nil && flushErr == nil {
			flushErr = err
		}
	}
	w.db = nil
	return flushErr
}

// withDefaults applies default values to PostgresWriterOptions.
func (opts *PostgresWriterOptions) withDefaults() *PostgresWriterOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	if opts.ConnMaxIdleTime == 0 {
		opts.ConnMaxIdleTime = 1 * time.Minute
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.Codec == nil {
		opts.Codec = codec.New(nil)
	}
	return opts
}

// validateOptions validates the PostgreSQL writer options.
func validateOptions(schema *core.Schema, opts *PostgresWriterOptions) error {
	if schema == nil || schema.Len() == 0 {
		return fmt.Errorf("schema with at least one field is required")
	}
	if opts.DSN == "" && opts.DB == nil {
		return fmt.Errorf("dsn or db is required")
	}
	if opts.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	if opts.ConflictResolution == ConflictUpdate && len(opts.UpdateColumns) == 0 {
		return fmt.Errorf("update columns required for conflict update resolution")
	}
	if opts.ConflictResolution != ConflictError && len(opts.ConflictColumns) == 0 {
		return fmt.Errorf("conflict columns required for conflict resolution")
	}
	for _, col := range append(append([]string(nil), opts.ConflictColumns...), opts.UpdateColumns...) {
		if !schema.Has(col) {
			return &core.UnknownFieldError{Source: schema.Name(), Field: col}
		}
	}
	for _, f := range schema.Fields() {
		if f.Type == core.Enum && len(f.Symbols) == 0 {
			return &core.ConfigError{Field: f.Name, Reason: "enum fields need symbols to be stored as text"}
		}
	}
	return nil
}

// connect establishes the database connection and configures the connection pool.
func (w *PostgresWriter) connect(ctx context.Context) error {
	if w.options.DB != nil {
		w.db = w.options.DB
		return nil
	}

	db, err := sql.Open("postgres", w.options.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(w.options.MaxOpenConns)
	db.SetMaxIdleConns(w.options.MaxIdleConns)
	db.SetConnMaxLifetime(w.options.ConnMaxLifetime)
	db.SetConnMaxIdleTime(w.options.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, w.options.QueryTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	w.db = db
	w.ownsDB = true
	return nil
}

// initializeUnsafe performs one-time initialization (must hold mutex).
func (w *PostgresWriter) initializeUnsafe(ctx context.Context) error {
	if w.options.CreateTable {
		if _, err := w.db.ExecContext(ctx, CreateTableStatement(w.options.TableName, w.schema)); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if w.options.TruncateTable {
		if _, err := w.db.ExecContext(ctx, "TRUNCATE TABLE "+quoteTable(w.options.TableName)); err != nil {
			return fmt.Errorf("failed to truncate table: %w", err)
		}
	}

	query := InsertStatement(w.options.TableName, w.schema, w.options.ConflictResolution, w.options.ConflictColumns, w.options.UpdateColumns)
	stmt, err := w.db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	w.prepared = stmt

	w.initialized = true
	return nil
}

// flushBufferUnsafe writes buffered rows to PostgreSQL (must hold mutex).
func (w *PostgresWriter) flushBufferUnsafe(ctx context.Context) (err error) {
	if len(w.rowBuf) == 0 {
		return nil
	}

	var tx *sql.Tx
	if w.options.TransactionMode {
		tx, err = w.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			if err != nil {
				tx.Rollback()
			}
		}()
	}

	stmt := w.prepared
	if tx != nil {
		stmt = tx.StmtContext(ctx, w.prepared)
		defer stmt.Close()
	}
	for _, row := range w.rowBuf {
		result, execErr := stmt.ExecContext(ctx, row...)
		if execErr != nil {
			return fmt.Errorf("failed to execute insert: %w", execErr)
		}
		if rowsAffected, raErr := result.RowsAffected(); raErr == nil && rowsAffected == 0 {
			w.stats.RowsSkipped++
		}
	}

	if tx != nil {
		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}

	w.stats.BatchesWritten++
	w.rowBuf = w.rowBuf[:0]

	return nil
}

// CreateTableStatement returns a CREATE TABLE IF NOT EXISTS statement for schema.
func CreateTableStatement(table string, schema *core.Schema) string {
	columns := make([]string, schema.Len())
	for i, f := range schema.Fields() {
		columns[i] = fmt.Sprintf("%s %s NOT NULL", pq.QuoteIdentifier(f.Name), sqlType(f.Type))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteTable(table), strings.Join(columns, ", "))
}

// InsertStatement returns the parameterized INSERT for one tuple of schema.
func InsertStatement(table string, schema *core.Schema, resolution ConflictResolution, conflictCols, updateCols []string) string {
	columns := make([]string, schema.Len())
	placeholders := make([]string, schema.Len())
	for i, f := range schema.Fields() {
		columns[i] = pq.QuoteIdentifier(f.Name)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteTable(table), strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	quoteAll := func(cols []string) string {
		q := make([]string, len(cols))
		for i, c := range cols {
			q[i] = pq.QuoteIdentifier(c)
		}
		return strings.Join(q, ", ")
	}
	switch resolution {
	case ConflictIgnore:
		query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quoteAll(conflictCols))
	case ConflictUpdate:
		updateClauses := make([]string, len(updateCols))
		for i, col := range updateCols {
			q := pq.QuoteIdentifier(col)
			updateClauses[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
		}
		query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", quoteAll(conflictCols), strings.Join(updateClauses, ", "))
	}
	return query
}

func sqlType(t core.FieldType) string {
	switch t {
	case core.Int32:
		return "INTEGER"
	case core.Int64:
		return "BIGINT"
	case core.Float32:
		return "REAL"
	case core.Float64:
		return "DOUBLE PRECISION"
	case core.Boolean:
		return "BOOLEAN"
	case core.Bytes, core.Object:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

// sqlValues converts the values of t to driver values.
func sqlValues(c *codec.Codec, t *core.Tuple) ([]any, error) {
	row := make([]any, t.Len())
	for i, f := range t.Schema().Fields() {
		v := t.Get(i)
		switch f.Type {
		case core.Int32:
			x, ok := v.(int32)
			if !ok {
				return nil, &core.EncodeError{Field: f.Name, Err: fmt.Errorf("expected int32, got %T", v)}
			}
			row[i] = int64(x)
		case core.Float32:
			x, ok := v.(float32)
			if !ok {
				return nil, &core.EncodeError{Field: f.Name, Err: fmt.Errorf("expected float32, got %T", v)}
			}
			row[i] = float64(x)
		case core.Enum:
			s, err := c.FormatText(f, v)
			if err != nil {
				return nil, err
			}
			row[i] = s
		case core.Object:
			payload, err := c.MarshalObject(f, v)
			if err != nil {
				return nil, &core.EncodeError{Field: f.Name, Err: err}
			}
			row[i] = payload
		case core.Bytes:
			x, ok := v.([]byte)
			if !ok {
				return nil, &core.EncodeError{Field: f.Name, Err: fmt.Errorf("expected []byte, got %T", v)}
			}
			row[i] = append([]byte(nil), x...)
		default:
			if _, err := c.FormatText(f, v); err != nil {
				return nil, err
			}
			row[i] = v
		}
	}
	return row, nil
}

func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
