// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package chunkbuf

import "testing"

func TestSeekAndSkip(t *testing.T) {
	b := New([]byte{1, 2, 3, 4, 5})
	if err := b.Seek(3); err != nil {
		t.Fatalf("Seek(3) = %v", err)
	}
	if b.Pos() != 3 {
		t.Errorf("Pos() = %d; want 3", b.Pos())
	}
	if err := b.Skip(-2); err != nil {
		t.Fatalf("Skip(-2) = %v", err)
	}
	if b.Pos() != 1 {
		t.Errorf("Pos() = %d; want 1", b.Pos())
	}
	if err := b.Seek(99); err == nil {
		t.Error("Seek(99) on a 5-byte buffer = nil; want an error")
	}
}

func TestReadByteAndRead(t *testing.T) {
	b := New([]byte{0xAA, 0xBB, 0xCC})
	v, ok := b.ReadByte()
	if !ok || v != 0xAA {
		t.Fatalf("ReadByte() = %#02x, %v; want 0xaa, true", v, ok)
	}
	rest, ok := b.Read(2)
	if !ok || string(rest) != "\xBB\xCC" {
		t.Fatalf("Read(2) = %x, %v; want bbcc, true", rest, ok)
	}
	if _, ok := b.ReadByte(); ok {
		t.Error("ReadByte() at end of buffer = true; want false")
	}
}

func TestPeekDoesNotAdvance(t *testing.T) {
	b := New([]byte{1, 2, 3})
	p, ok := b.Peek(2)
	if !ok || len(p) != 2 {
		t.Fatalf("Peek(2) = %v, %v", p, ok)
	}
	if b.Pos() != 0 {
		t.Errorf("Pos() after Peek = %d; want 0", b.Pos())
	}
	if _, ok := b.Peek(10); ok {
		t.Error("Peek(10) on a 3-byte buffer = true; want false")
	}
}

func TestReadAtWriteAt(t *testing.T) {
	b := New([]byte{1, 2, 3, 4, 5})
	got, ok := b.ReadAt(1, 3)
	if !ok || string(got) != "\x02\x03\x04" {
		t.Fatalf("ReadAt(1, 3) = %x, %v", got, ok)
	}
	if err := b.WriteAt(1, []byte{0xFF, 0xFE}); err != nil {
		t.Fatalf("WriteAt(1, ...) = %v", err)
	}
	want := []byte{1, 0xFF, 0xFE, 4, 5}
	for i, w := range want {
		if b.Bytes()[i] != w {
			t.Errorf("Bytes()[%d] = %#02x; want %#02x", i, b.Bytes()[i], w)
		}
	}
	if err := b.WriteAt(4, []byte{1, 2}); err == nil {
		t.Error("WriteAt past end of buffer = nil; want an error")
	}
}

func TestUint32AtRoundTrip(t *testing.T) {
	b := New(make([]byte, 8))
	if err := b.PutUint32At(2, 0x11223344); err != nil {
		t.Fatalf("PutUint32At() = %v", err)
	}
	got, ok := b.Uint32At(2)
	if !ok || got != 0x11223344 {
		t.Fatalf("Uint32At(2) = %#08x, %v; want 0x11223344, true", got, ok)
	}
}

func TestDeleteRangeShiftsCursor(t *testing.T) {
	tests := []struct {
		name       string
		cursor     int
		start, end int
		wantCursor int
	}{
		{"cursor before removed range", 1, 3, 5, 1},
		{"cursor inside removed range", 4, 3, 5, 3},
		{"cursor after removed range", 6, 3, 5, 4},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := New([]byte{0, 1, 2, 3, 4, 5, 6, 7})
			if err := b.Seek(test.cursor); err != nil {
				t.Fatalf("Seek(%d) = %v", test.cursor, err)
			}
			if err := b.DeleteRange(test.start, test.end); err != nil {
				t.Fatalf("DeleteRange(%d, %d) = %v", test.start, test.end, err)
			}
			if b.Pos() != test.wantCursor {
				t.Errorf("Pos() = %d; want %d", b.Pos(), test.wantCursor)
			}
		})
	}

	b := New([]byte{0, 1, 2, 3, 4, 5})
	if err := b.DeleteRange(1, 3); err != nil {
		t.Fatalf("DeleteRange(1, 3) = %v", err)
	}
	want := []byte{0, 3, 4, 5}
	if b.Len() != len(want) {
		t.Fatalf("Len() = %d; want %d", b.Len(), len(want))
	}
	for i, w := range want {
		if b.Bytes()[i] != w {
			t.Errorf("Bytes()[%d] = %d; want %d", i, b.Bytes()[i], w)
		}
	}
	if err := b.DeleteRange(-1, 2); err == nil {
		t.Error("DeleteRange(-1, 2) = nil; want an error")
	}
}

func TestTruncate(t *testing.T) {
	b := New([]byte{1, 2, 3, 4, 5})
	if err := b.Seek(4); err != nil {
		t.Fatal(err)
	}
	if err := b.Truncate(2); err != nil {
		t.Fatalf("Truncate(2) = %v", err)
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d; want 2", b.Len())
	}
	if b.Pos() != 2 {
		t.Errorf("Pos() = %d; want 2 (clamped)", b.Pos())
	}
	if err := b.Truncate(99); err == nil {
		t.Error("Truncate(99) on a 2-byte buffer = nil; want an error")
	}
}
