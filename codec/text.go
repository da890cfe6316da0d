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

package codec

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/aaronlmathis/gocogroup/core"
)

// FormatText renders v, a value of f, for text formats such as CSV. Bytes and
// Object payloads are base64 encoded, enums render as their symbol when the
// field declares symbols.
func (c *Codec) FormatText(f core.Field, v any) (string, error) {
	switch f.Type {
	case core.Int32:
		if x, ok := v.(int32); ok {
			return strconv.FormatInt(int64(x), 10), nil
		}
	case core.Int64:
		if x, ok := v.(int64); ok {
			return strconv.FormatInt(x, 10), nil
		}
	case core.Float32:
		if x, ok := v.(float32); ok {
			return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
		}
	case core.Float64:
		if x, ok := v.(float64); ok {
			return strconv.FormatFloat(x, 'g', -1, 64), nil
		}
	case core.Boolean:
		if x, ok := v.(bool); ok {
			return strconv.FormatBool(x), nil
		}
	case core.Utf8String:
		if x, ok := v.(string); ok {
			return x, nil
		}
	case core.Bytes:
		if x, ok := v.([]byte); ok {
			return base64.StdEncoding.EncodeToString(x), nil
		}
	case core.Enum:
		if x, ok := v.(int32); ok {
			if len(f.Symbols) == 0 {
				return strconv.FormatInt(int64(x), 10), nil
			}
			if x < 0 || int(x) >= len(f.Symbols) {
				return "", &core.EncodeError{Field: f.Name, Err: fmt.Errorf("enum ordinal %d out of range", x)}
			}
			return f.Symbols[x], nil
		}
	case core.Object:
		payload, err := c.MarshalObject(f, v)
		if err != nil {
			return "", &core.EncodeError{Field: f.Name, Err: err}
		}
		return base64.StdEncoding.EncodeToString(payload), nil
	}
	return "", typeError(f, v)
}

// ParseText is the inverse of FormatText. Enums also accept their ordinal.
func (c *Codec) ParseText(f core.Field, s string) (any, error) {
	v, err := c.parseText(f, s)
	if err != nil {
		return nil, &core.DecodeError{Field: f.Name, Err: err}
	}
	return v, nil
}

func (c *Codec) parseText(f core.Field, s string) (any, error) {
	switch f.Type {
	case core.Int32:
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	case core.Int64:
		return strconv.ParseInt(s, 10, 64)
	case core.Float32:
		x, err := strconv.ParseFloat(s, 32)
		return float32(x), err
	case core.Float64:
		return strconv.ParseFloat(s, 64)
	case core.Boolean:
		return strconv.ParseBool(s)
	case core.Utf8String:
		return s, nil
	case core.Bytes:
		return base64.StdEncoding.DecodeString(s)
	case core.Enum:
		for i, sym := range f.Symbols {
			if sym == s {
				return int32(i), nil
			}
		}
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("unknown enum symbol %q", s)
		}
		if n < 0 || (len(f.Symbols) > 0 && int(n) >= len(f.Symbols)) {
			return nil, fmt.Errorf("enum ordinal %d out of range", n)
		}
		return int32(n), nil
	case core.Object:
		payload, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return c.UnmarshalObject(f, payload)
	default:
		return nil, fmt.Errorf("unsupported type %s", f.TypeString())
	}
}
