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

package core

import "fmt"

// Package core defines the error types for the GoCogroup library.
//
// Every error carries enough field, source or offset context to diagnose a
// failure without re-running. None of them is retriable.

// ConfigError reports a violated configuration invariant. It is raised while
// building a configuration and aborts it.
type ConfigError struct {
	Source string // Source (schema) name, if the violation is source specific
	Field  string // Offending field, if any
	Reason string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Source != "" && e.Field != "":
		return fmt.Sprintf("config: source %q field %q: %s", e.Source, e.Field, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("config: field %q: %s", e.Field, e.Reason)
	case e.Source != "":
		return fmt.Sprintf("config: source %q: %s", e.Source, e.Reason)
	default:
		return "config: " + e.Reason
	}
}

// DuplicateSourceError is returned when a source name is registered twice.
type DuplicateSourceError struct {
	Source string
}

func (e *DuplicateSourceError) Error() string {
	return fmt.Sprintf("source %q is already registered", e.Source)
}

// UnknownFieldError is returned when a logical field name cannot be resolved in a source.
type UnknownFieldError struct {
	Source string
	Field  string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("source %q has no field %q", e.Source, e.Field)
}

// SchemaMismatchError reports that derivation could not locate a field that
// validation already accepted. It indicates an internal invariant bug.
type SchemaMismatchError struct {
	Schema string // Derived schema being built (e.g. "common", "specific")
	Source string
	Field  string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: %s schema field %q not found in source %q", e.Schema, e.Field, e.Source)
}

// FatalOrderingError reports that a sorted stream violated the expected order.
// It is fatal to the partition being processed.
type FatalOrderingError struct {
	Depth    int    // Group depth at which the violation was detected, -1 if none differed
	Field    string // Group field at that depth
	Previous string // Rendering of the previous tuple
	Current  string // Rendering of the offending tuple
	Reason   string
}

func (e *FatalOrderingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("fatal ordering violation at depth %d (%s): %s; previous=%s current=%s",
			e.Depth, e.Field, e.Reason, e.Previous, e.Current)
	}
	return fmt.Sprintf("fatal ordering violation: %s; previous=%s current=%s", e.Reason, e.Previous, e.Current)
}

// DecodeError reports truncated or corrupt encoded input.
type DecodeError struct {
	Field  string // Field being decoded
	Offset int    // Byte offset where decoding of the field started
	Err    error  // Underlying error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode field %q at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError reports a value that cannot be encoded for its field.
type EncodeError struct {
	Field string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode field %q: %v", e.Field, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
