// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package chunkbuf provides the mutable byte buffer with a cursor that the
// chunk walker decrypts in place.
//
// Every offset the walker computes is a byte offset into one [Buffer]. Unlike
// a general-purpose [io.ReadWriter], Buffer exposes the two operations the
// custom header strip (spec §6) needs beyond sequential reads: overwriting a
// byte range in place and deleting one, which shifts every later offset down.
package chunkbuf

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Buffer is a byte slice with a read cursor. The zero value is an empty
// buffer.
type Buffer struct {
	s []byte
	i int
}

// New returns a new [Buffer] reading from and mutating b.
// New takes ownership of b; callers should not retain a reference to it.
func New(b []byte) *Buffer {
	return &Buffer{s: b}
}

// Bytes returns the entire underlying slice, ignoring the cursor.
func (b *Buffer) Bytes() []byte { return b.s }

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int { return len(b.s) }

// Pos returns the current cursor position.
func (b *Buffer) Pos() int { return b.i }

// Seek moves the cursor to an absolute offset.
// Seek returns an error if pos is out of [0, Len()].
func (b *Buffer) Seek(pos int) error {
	if pos < 0 || pos > len(b.s) {
		return fmt.Errorf("chunkbuf.Buffer.Seek: offset %d out of range [0, %d]", pos, len(b.s))
	}
	b.i = pos
	return nil
}

// Skip advances the cursor by n bytes, which may be negative.
func (b *Buffer) Skip(n int) error {
	return b.Seek(b.i + n)
}

// ReadByte reads a single byte and advances the cursor.
func (b *Buffer) ReadByte() (byte, bool) {
	if b.i >= len(b.s) {
		return 0, false
	}
	v := b.s[b.i]
	b.i++
	return v, true
}

// Peek returns the next n bytes without advancing the cursor.
// Peek returns false if fewer than n bytes remain.
func (b *Buffer) Peek(n int) ([]byte, bool) {
	if n < 0 || b.i+n > len(b.s) {
		return nil, false
	}
	return b.s[b.i : b.i+n], true
}

// Read returns the next n bytes and advances the cursor.
// Read returns false if fewer than n bytes remain.
func (b *Buffer) Read(n int) ([]byte, bool) {
	p, ok := b.Peek(n)
	if !ok {
		return nil, false
	}
	b.i += n
	return p, true
}

// ReadAt returns an n-byte window at an absolute offset without moving the
// cursor.
func (b *Buffer) ReadAt(offset, n int) ([]byte, bool) {
	if offset < 0 || n < 0 || offset+n > len(b.s) {
		return nil, false
	}
	return b.s[offset : offset+n], true
}

// WriteAt overwrites len(p) bytes at an absolute offset in place. It does not
// grow the buffer and does not move the cursor.
func (b *Buffer) WriteAt(offset int, p []byte) error {
	if offset < 0 || offset+len(p) > len(b.s) {
		return fmt.Errorf("chunkbuf.Buffer.WriteAt: range [%d, %d) out of bounds (len %d)", offset, offset+len(p), len(b.s))
	}
	copy(b.s[offset:offset+len(p)], p)
	return nil
}

// Uint32At reads a little-endian uint32 at an absolute offset.
func (b *Buffer) Uint32At(offset int) (uint32, bool) {
	p, ok := b.ReadAt(offset, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(p), true
}

// PutUint32At overwrites the little-endian uint32 at an absolute offset.
func (b *Buffer) PutUint32At(offset int, v uint32) error {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], v)
	return b.WriteAt(offset, p[:])
}

// DeleteRange removes the byte range [start, end) from the buffer, shifting
// all subsequent bytes down and shrinking Len() by end-start. The cursor is
// adjusted so that it continues to refer to the same logical byte it did
// before the delete (clamped to start when it was inside the removed range).
func (b *Buffer) DeleteRange(start, end int) error {
	if start < 0 || end < start || end > len(b.s) {
		return fmt.Errorf("chunkbuf.Buffer.DeleteRange: invalid range [%d, %d) (len %d)", start, end, len(b.s))
	}
	b.s = append(b.s[:start], b.s[end:]...)
	switch {
	case b.i >= end:
		b.i -= end - start
	case b.i > start:
		b.i = start
	}
	return nil
}

// Truncate shrinks the buffer to n bytes. Truncate returns an error if n is
// out of [0, Len()].
func (b *Buffer) Truncate(n int) error {
	if n < 0 || n > len(b.s) {
		return errors.New("chunkbuf.Buffer.Truncate: invalid length")
	}
	b.s = b.s[:n]
	if b.i > n {
		b.i = n
	}
	return nil
}
