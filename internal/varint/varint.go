// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package varint reads and writes Lua's 7-bit "load-integer" encoding: a
// big-endian sequence of 7-bit groups where the last byte has its top bit
// set and every preceding byte has it clear.
package varint

import (
	"errors"
	"math"
	"slices"
)

// ErrExhausted is returned by [Read] when the source runs out of bytes
// before a terminal byte (top bit set) is seen.
var ErrExhausted = errors.New("varint: buffer exhausted before end of integer")

// ErrOverflow is returned by [Read] when the accumulated value would not fit
// in a non-negative 32-bit integer.
var ErrOverflow = errors.New("varint: integer overflow")

// byteSource is the minimal cursor-reading capability [Read] needs. It is
// satisfied by *[shadowluac.dev/pkg/internal/chunkbuf.Buffer].
type byteSource interface {
	ReadByte() (byte, bool)
}

// Read decodes one varint from r, advancing its cursor one byte at a time.
// It accumulates (result<<7) | (byte&0x7f) and stops on the first byte with
// the top bit set.
func Read(r byteSource) (uint32, error) {
	var x uint64
	for {
		b, ok := r.ReadByte()
		if !ok {
			return 0, ErrExhausted
		}
		if x > math.MaxUint32>>7 {
			return 0, ErrOverflow
		}
		x = x<<7 | uint64(b&0x7f)
		if b&0x80 != 0 {
			if x > math.MaxUint32 {
				return 0, ErrOverflow
			}
			return uint32(x), nil
		}
	}
}

// Append encodes n and appends it to dst, most-significant 7-bit group
// first, with 0x80 set only on the final (least-significant) byte. Append
// never emits an empty encoding: every value, including 0, occupies at
// least one byte.
func Append(dst []byte, n uint32) []byte {
	start := len(dst)
	for {
		dst = append(dst, byte(n&0x7f))
		n >>= 7
		if n == 0 {
			break
		}
	}
	slices.Reverse(dst[start:])
	dst[len(dst)-1] |= 0x80
	return dst
}

// Size reports the number of bytes [Append] would emit for n.
func Size(n uint32) int {
	size := 1
	for n >>= 7; n != 0; n >>= 7 {
		size++
	}
	return size
}
