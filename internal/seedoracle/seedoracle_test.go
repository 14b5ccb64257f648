// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package seedoracle

import (
	"encoding/binary"
	"testing"

	"shadowluac.dev/pkg/internal/rc4"
)

// syntheticCode builds a plausible instruction stream: n words, each with a
// low opcode byte and pseudo-random upper bits, suitable as plaintext for
// brute-force round-trip tests.
func syntheticCode(n int) []byte {
	code := make([]byte, n*4)
	for i := 0; i < n; i++ {
		word := uint32(i%20) | uint32(i)<<7
		binary.LittleEndian.PutUint32(code[i*4:], word)
	}
	return code
}

func TestInnerSeedFitsUint16(t *testing.T) {
	for _, fileSeed := range []uint16{0, 1, 0xffff, 0x1234} {
		for _, ld := range []int32{0, 1, -1, 1 << 20} {
			got := InnerSeed(ld, fileSeed)
			if got < seedBias {
				t.Errorf("InnerSeed(%d, %#x) = %d; want >= %d", ld, fileSeed, got, seedBias)
			}
		}
	}
}

func TestBruteForceFindsPlantedSeed(t *testing.T) {
	const linedefined = 42
	const wantSeed = uint16(0xBEEF)

	plain := syntheticCode(16)
	encrypted := append([]byte(nil), plain...)
	inner := InnerSeed(linedefined, wantSeed)
	if err := rc4.DecryptCode(encrypted, inner); err != nil {
		t.Fatal(err)
	}
	// encrypted now holds what's "on disk"; DecryptCode is its own inverse.

	// Most wrong seeds pass the default 30% predicate, so the ascending search
	// would stop long before 0xBEEF; accept only the exact plaintext instead.
	exact := func(code []byte) bool { return string(code) == string(plain) }
	gotSeed, decrypted, err := BruteForce(encrypted, linedefined, exact)
	if err != nil {
		t.Fatal(err)
	}
	if gotSeed != wantSeed {
		t.Errorf("BruteForce seed = %#x; want %#x", gotSeed, wantSeed)
	}
	if string(decrypted) != string(plain) {
		t.Errorf("BruteForce decrypted mismatch")
	}

	// encryptedCode must be left untouched.
	reDecrypted, err := Verify(encrypted, linedefined, wantSeed)
	if err != nil {
		t.Fatal(err)
	}
	if string(reDecrypted) != string(plain) {
		t.Errorf("Verify after BruteForce mismatch, encryptedCode was likely mutated")
	}
}

func TestBruteForceFailsOnAllNoise(t *testing.T) {
	// Random-looking code whose opcode bytes are deliberately pushed out of
	// range for every candidate seed is vanishingly unlikely to occur in
	// practice, so instead we use a custom predicate that always rejects, to
	// exercise the ErrBruteForceFailed path deterministically.
	code := syntheticCode(8)
	rejectAll := func([]byte) bool { return false }
	_, _, err := BruteForce(code, 1, rejectAll)
	if err == nil {
		t.Fatal("BruteForce with always-false predicate succeeded; want error")
	}
}

func TestPlausibleEmptyCode(t *testing.T) {
	if Plausible(nil) {
		t.Error("Plausible(nil) = true; want false")
	}
}

func TestPlausibleThreshold(t *testing.T) {
	// 3 of 10 words with low opcodes meets the 30% floor exactly.
	code := make([]byte, 40)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(code[i*4:], 5)
	}
	for i := 3; i < 10; i++ {
		binary.LittleEndian.PutUint32(code[i*4:], 120)
	}
	if !Plausible(code) {
		t.Error("Plausible() = false at exactly the 30% threshold; want true")
	}
}
