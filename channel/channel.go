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

// Package channel ships built configurations from the process that declares a
// job to the workers that run its partitions.
//
// A configuration travels in its portable JSON form, zstd-compressed, under a
// random key returned by Publish.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aaronlmathis/gocogroup/config"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// ErrNotFound is returned by Fetch for keys that were never published.
var ErrNotFound = errors.New("configuration not found")

// Channel publishes configurations and fetches them back by key.
type Channel interface {
	Publish(ctx context.Context, cfg *config.Config) (string, error)
	Fetch(ctx context.Context, key string) (*config.Config, error)
}

// ChannelError provides structured error information for channel operations
type ChannelError struct {
	Op  string // Operation that failed (e.g., "encode", "put_object", "decode")
	Key string // Configuration key, empty before one is assigned
	Err error  // Underlying error
}

func (e *ChannelError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("channel %s [%s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

var (
	encoder = sync.OnceValues(func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) })
	decoder = sync.OnceValues(func() (*zstd.Decoder, error) { return zstd.NewReader(nil) })
)

// Encode returns the compressed portable form of cfg.
func Encode(cfg *config.Config) ([]byte, error) {
	data, err := config.ToPortable(cfg)
	if err != nil {
		return nil, &ChannelError{Op: "encode", Err: err}
	}
	enc, err := encoder()
	if err != nil {
		return nil, &ChannelError{Op: "encode", Err: err}
	}
	return enc.EncodeAll(data, nil), nil
}

// Decode rebuilds a configuration from its compressed portable form.
func Decode(blob []byte, logger logr.Logger) (*config.Config, error) {
	dec, err := decoder()
	if err != nil {
		return nil, &ChannelError{Op: "decode", Err: err}
	}
	data, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, &ChannelError{Op: "decompress", Err: err}
	}
	cfg, err := config.FromPortable(data, logger)
	if err != nil {
		return nil, &ChannelError{Op: "decode", Err: err}
	}
	return cfg, nil
}

// NewKey returns a fresh configuration key.
func NewKey() string { return uuid.NewString() }

func validKey(key string) error {
	if _, err := uuid.Parse(key); err != nil {
		return &ChannelError{Op: "validate", Key: key, Err: fmt.Errorf("malformed key: %w", err)}
	}
	return nil
}

// Option configures a channel.
type Option func(*options)

type options struct {
	logger logr.Logger
	prefix string
}

// WithLogger sets the channel logger.
func WithLogger(l logr.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPrefix sets the key prefix of stored objects. Only the S3 channel uses it.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

func newOptions(opts []Option) options {
	o := options{logger: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Memory is an in-process Channel.
type Memory struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	logger logr.Logger
}

// NewMemory creates an empty in-process channel.
func NewMemory(opts ...Option) *Memory {
	o := newOptions(opts)
	return &Memory{blobs: make(map[string][]byte), logger: o.logger}
}

// Publish implements Channel.
func (m *Memory) Publish(ctx context.Context, cfg *config.Config) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	blob, err := Encode(cfg)
	if err != nil {
		return "", err
	}
	key := NewKey()
	m.mu.Lock()
	m.blobs[key] = blob
	m.mu.Unlock()
	m.logger.V(1).Info("published configuration", "key", key, "bytes", len(blob))
	return key, nil
}

// Fetch implements Channel.
func (m *Memory) Fetch(ctx context.Context, key string) (*config.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	blob, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, &ChannelError{Op: "fetch", Key: key, Err: ErrNotFound}
	}
	return Decode(blob, m.logger)
}
