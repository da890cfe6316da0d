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
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aaronlmathis/gocogroup/config"
	"github.com/go-logr/logr"
)

const fileSuffix = ".json.zst"

// File is a Channel storing one file per configuration in a shared directory.
type File struct {
	dir    string
	logger logr.Logger
}

// NewFile creates a channel over dir, creating it if needed.
func NewFile(dir string, opts ...Option) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &ChannelError{Op: "create_directory", Err: err}
	}
	o := newOptions(opts)
	return &File{dir: dir, logger: o.logger}, nil
}

// Path returns the file holding key.
func (f *File) Path(key string) string {
	return filepath.Join(f.dir, key+fileSuffix)
}

// Publish implements Channel. The file is written under a temporary name and
// renamed so readers never see a partial configuration.
func (f *File) Publish(ctx context.Context, cfg *config.Config) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	blob, err := Encode(cfg)
	if err != nil {
		return "", err
	}
	key := NewKey()
	tmp, err := os.CreateTemp(f.dir, ".publish-*")
	if err != nil {
		return "", &ChannelError{Op: "write_file", Key: key, Err: err}
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", &ChannelError{Op: "write_file", Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", &ChannelError{Op: "write_file", Key: key, Err: err}
	}
	if err := os.Rename(tmp.Name(), f.Path(key)); err != nil {
		os.Remove(tmp.Name())
		return "", &ChannelError{Op: "rename_file", Key: key, Err: err}
	}
	f.logger.V(1).Info("published configuration", "key", key, "path", f.Path(key), "bytes", len(blob))
	return key, nil
}

// Fetch implements Channel.
func (f *File) Fetch(ctx context.Context, key string) (*config.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validKey(key); err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(f.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ChannelError{Op: "fetch", Key: key, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &ChannelError{Op: "read_file", Key: key, Err: err}
	}
	return Decode(blob, f.logger)
}
