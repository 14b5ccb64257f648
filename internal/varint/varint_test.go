// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package varint

import (
	"testing"

	"shadowluac.dev/pkg/internal/chunkbuf"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		n        uint32
		wantSize int
	}{
		{0, 1},
		{1, 1},
		{0x7f, 1},
		{0x80, 2},
		{0x3fff, 2},
		{0x4000, 3},
		{1 << 20, 3},
		{1 << 27, 4},
		{1 << 28, 5},
		{0xffffffff, 5},
	}
	for _, test := range tests {
		buf := Append(nil, test.n)
		if len(buf) != test.wantSize {
			t.Errorf("Append(nil, %#x) has length %d; want %d", test.n, len(buf), test.wantSize)
		}
		if got := Size(test.n); got != test.wantSize {
			t.Errorf("Size(%#x) = %d; want %d", test.n, got, test.wantSize)
		}
		got, err := Read(chunkbuf.New(buf))
		if err != nil {
			t.Errorf("Read(Append(nil, %#x)): %v", test.n, err)
			continue
		}
		if got != test.n {
			t.Errorf("Read(Append(nil, %#x)) = %#x; want %#x", test.n, got, test.n)
		}
	}
}

func TestLastByteHasTopBitSet(t *testing.T) {
	buf := Append(nil, 1<<20)
	for i, b := range buf {
		isLast := i == len(buf)-1
		if (b&0x80 != 0) != isLast {
			t.Errorf("byte %d = %#02x; top bit set = %v, want %v", i, b, b&0x80 != 0, isLast)
		}
	}
}

func TestReadExhausted(t *testing.T) {
	buf := []byte{0x01, 0x02} // no terminal byte
	if _, err := Read(chunkbuf.New(buf)); err != ErrExhausted {
		t.Errorf("Read(%v) error = %v; want %v", buf, err, ErrExhausted)
	}
}

func FuzzRoundTrip(f *testing.F) {
	for _, n := range []uint32{0, 1, 0x7f, 0x80, 1 << 20, 1 << 31, 0xffffffff} {
		f.Add(n)
	}
	f.Fuzz(func(t *testing.T, n uint32) {
		buf := Append(nil, n)
		got, err := Read(chunkbuf.New(buf))
		if err != nil {
			t.Fatalf("Read(Append(nil, %#x)): %v", n, err)
		}
		if got != n {
			t.Errorf("Read(Append(nil, %#x)) = %#x; want %#x", n, got, n)
		}
	})
}
