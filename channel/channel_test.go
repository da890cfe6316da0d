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

package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/aaronlmathis/gocogroup/config"
	"github.com/aaronlmathis/gocogroup/core"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-logr/logr/funcr"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.NewBuilder().
		AddSource("users", core.MustSchema("users",
			core.NewField("id", core.Int64),
			core.NewField("name", core.Utf8String),
		)).
		AddSource("orders", core.MustSchema("orders",
			core.NewField("user", core.Int64),
			core.NewField("amount", core.Float64),
		)).
		SetAlias("orders", "id", "user").
		GroupBy("id").
		OrderBy(core.NewCriteria().Add("id", core.Asc).AddSourceOrder(core.Asc)).
		SpecificOrderBy("orders", core.NewCriteria().Add("amount", core.Desc)).
		Build()
	require.NoError(t, err)
	return cfg
}

// fakeS3 keeps objects in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	failPut error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

// TestEncode tests that blobs are compressed portable configurations
func TestEncode(t *testing.T) {
	cfg := testConfig(t)
	blob, err := Encode(cfg)
	require.NoError(t, err)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	data, err := dec.DecodeAll(blob, nil)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	back, err := Decode(blob, funcr.New(func(string, string) {}, funcr.Options{}))
	require.NoError(t, err)
	assert.True(t, cfg.Equal(back))

	_, err = Decode([]byte("not zstd"), funcr.New(func(string, string) {}, funcr.Options{}))
	var chErr *ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.Equal(t, "decompress", chErr.Op)
}

// TestChannels tests publish and fetch over every transport
func TestChannels(t *testing.T) {
	file, err := NewFile(t.TempDir())
	require.NoError(t, err)
	channels := map[string]Channel{
		"memory": NewMemory(),
		"file":   file,
		"s3":     NewS3(newFakeS3(), "configs", WithPrefix("jobs")),
	}
	ctx := context.Background()
	for name, ch := range channels {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			key, err := ch.Publish(ctx, cfg)
			require.NoError(t, err)
			assert.NoError(t, validKey(key))

			back, err := ch.Fetch(ctx, key)
			require.NoError(t, err)
			assert.True(t, cfg.Equal(back))

			info, err := back.Info()
			require.NoError(t, err)
			assert.Equal(t, 2, info.NumSources())

			_, err = ch.Fetch(ctx, NewKey())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

// TestFile_Layout tests the stored files and key validation
func TestFile_Layout(t *testing.T) {
	dir := t.TempDir()
	ch, err := NewFile(dir)
	require.NoError(t, err)
	ctx := context.Background()

	key, err := ch.Publish(ctx, testConfig(t))
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files are left behind")
	assert.Equal(t, key+".json.zst", entries[0].Name())

	_, err = ch.Fetch(ctx, "../etc/passwd")
	var chErr *ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.Equal(t, "validate", chErr.Op)
}

// TestS3_Objects tests object keys, metadata and client errors
func TestS3_Objects(t *testing.T) {
	fake := newFakeS3()
	var logs []string
	logger := funcr.New(func(prefix, args string) { logs = append(logs, args) }, funcr.Options{Verbosity: 1})
	ch := NewS3(fake, "configs", WithPrefix("jobs/daily"), WithLogger(logger))
	ctx := context.Background()

	key, err := ch.Publish(ctx, testConfig(t))
	require.NoError(t, err)
	require.Len(t, fake.puts, 1)
	put := fake.puts[0]
	assert.Equal(t, "jobs/daily/"+key+".json.zst", aws.ToString(put.Key))
	assert.Equal(t, "zstd", aws.ToString(put.ContentEncoding))
	assert.Equal(t, "application/json", aws.ToString(put.ContentType))
	require.Len(t, logs, 1)
	assert.True(t, strings.Contains(logs[0], key))

	fake.failPut = errors.New("access denied")
	_, err = ch.Publish(ctx, testConfig(t))
	var chErr *ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.Equal(t, "put_object", chErr.Op)
	assert.ErrorIs(t, err, fake.failPut)
}

// TestMemory_Cancelled tests that cancelled contexts are honored
func TestMemory_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()
	_, err := m.Publish(ctx, testConfig(t))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.Fetch(ctx, NewKey())
	assert.ErrorIs(t, err, context.Canceled)
}
