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

import "io"

// Variable-length signed integers.
//
// Values in [-112, 127] are stored in a single byte. Any other value is stored
// as a leading byte followed by 1 to 8 big-endian magnitude bytes. The leading
// byte in [-120, -113] announces a positive value of (-112 - b) bytes, and in
// [-128, -121] a negative value (stored as its one's complement) of (-120 - b)
// bytes. The total size is therefore known from the first byte alone.

// AppendVarInt appends the encoding of v to dst.
func AppendVarInt(dst []byte, v int64) []byte {
	if v >= -112 && v <= 127 {
		return append(dst, byte(int8(v)))
	}
	lead := -112
	if v < 0 {
		v = ^v
		lead = -120
	}
	n := 0
	for tmp := v; tmp != 0; tmp >>= 8 {
		n++
	}
	dst = append(dst, byte(int8(lead-n)))
	for i := n; i > 0; i-- {
		dst = append(dst, byte(v>>(uint(i-1)*8)))
	}
	return dst
}

// VarIntSize returns the total encoded size announced by a leading byte.
func VarIntSize(first byte) int {
	b := int(int8(first))
	switch {
	case b >= -112:
		return 1
	case b < -120:
		return -119 - b
	default:
		return -111 - b
	}
}

func varIntNegative(first byte) bool {
	b := int(int8(first))
	return b < -120 || (b >= -112 && b < 0)
}

// ReadVarInt decodes a value starting at src[off]. It returns the value and the
// number of bytes consumed.
func ReadVarInt(src []byte, off int) (int64, int, error) {
	if off >= len(src) {
		return 0, 0, io.ErrUnexpectedEOF
	}
	first := src[off]
	size := VarIntSize(first)
	if size == 1 {
		return int64(int8(first)), 1, nil
	}
	if off+size > len(src) {
		return 0, 0, io.ErrUnexpectedEOF
	}
	var v int64
	for _, b := range src[off+1 : off+size] {
		v = v<<8 | int64(b)
	}
	if varIntNegative(first) {
		v = ^v
	}
	return v, size, nil
}

// VarIntLen returns the encoded size of v.
func VarIntLen(v int64) int {
	if v >= -112 && v <= 127 {
		return 1
	}
	if v < 0 {
		v = ^v
	}
	n := 1
	for tmp := v; tmp != 0; tmp >>= 8 {
		n++
	}
	return n
}
