// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package seedoracle recovers the per-file 16-bit seed that keys a function
// prototype's code-array RC4 stream, by brute-forcing every candidate and
// checking a plausibility predicate against the result.
//
// The format gives no direct signal for which seed is correct. The search
// runs in ascending order and stops at the first candidate that passes the
// predicate; the default [Plausible] check is loose, and many wrong seeds
// also pass it. The first instruction word is left in
// clear by [rc4.DecryptCode] (a known-plaintext anchor the format's author
// apparently didn't intend as one), so that word can't be used to
// discriminate seeds; the oracle instead looks at the opcode byte of each of
// the next few decrypted words.
package seedoracle

import (
	"encoding/binary"

	"shadowluac.dev/pkg/internal/chunkerr"
	"shadowluac.dev/pkg/internal/rc4"
)

const (
	// adler65521 is the modulus folded into the file seed before it's used as
	// the code-array RC4 key.
	adler65521 = 65521
	seedBias   = 15

	// plausibilitySample bounds how many leading instructions the
	// plausibility predicate inspects.
	plausibilitySample = 10
	// plausibilityMinFraction is the minimum fraction of the sampled
	// instructions that must decode to an in-range opcode.
	plausibilityMinFraction = 0.3
	// plausibilityOpMax is the opcode ceiling the predicate checks against.
	// This is deliberately the format's upstream opcode ceiling (82), one
	// below this table's actual maxOpCode (83): the predicate is a cheap
	// statistical filter, not a correctness check, and loosening it to 83
	// would let more wrong seeds slip through GAME_CUSTOM-shaped noise.
	plausibilityOpMax = 82
)

// InnerSeed derives the code-array RC4 seed for a prototype from the file
// seed and the prototype's linedefined, per the format's key-derivation
// step: XOR, fold into [0,adler65521) by modulus, then offset by a fixed
// bias. The result always fits in 16 bits, so no explicit mod-2^16 step is
// needed.
func InnerSeed(linedefined int32, fileSeed uint16) uint16 {
	mixed := uint32(linedefined) ^ uint32(fileSeed)
	return uint16(mixed%adler65521) + seedBias
}

// Plausible reports whether code, after decryption, looks like a real
// instruction stream: at least 30% of its first min(len(code)/4,10) words
// must carry an opcode byte no greater than plausibilityOpMax.
//
// code must already be decrypted; Plausible does not mutate it.
func Plausible(code []byte) bool {
	n := len(code) / 4
	if n > plausibilitySample {
		n = plausibilitySample
	}
	if n == 0 {
		return false
	}
	valid := 0
	for i := 0; i < n; i++ {
		word := binary.LittleEndian.Uint32(code[i*4 : i*4+4])
		if op := word & 0x7f; op <= plausibilityOpMax {
			valid++
		}
	}
	return float64(valid) >= plausibilityMinFraction*float64(n)
}

// Predicate is a plausibility test over already-decrypted code. Tests can
// substitute a stricter or looser predicate than [Plausible].
type Predicate func(code []byte) bool

// WithMinFraction returns a [Predicate] identical to [Plausible] except
// that it requires minFraction of the sampled leading instructions to carry
// an in-range opcode, instead of the default [plausibilityMinFraction].
// Raising minFraction trades brute-force recall for fewer false-positive
// seeds on short or unusual prototypes.
func WithMinFraction(minFraction float64) Predicate {
	return func(code []byte) bool {
		n := len(code) / 4
		if n > plausibilitySample {
			n = plausibilitySample
		}
		if n == 0 {
			return false
		}
		valid := 0
		for i := 0; i < n; i++ {
			word := binary.LittleEndian.Uint32(code[i*4 : i*4+4])
			if op := word & 0x7f; op <= plausibilityOpMax {
				valid++
			}
		}
		return float64(valid) >= minFraction*float64(n)
	}
}

// BruteForce searches seed16 in [0,65536) ascending for a value whose
// derived inner seed ([InnerSeed] with linedefined) decrypts encryptedCode
// into something plausible under predicate (or [Plausible] if nil).
//
// encryptedCode is never modified; BruteForce decrypts into a scratch copy
// per attempt and returns the winning seed along with that copy's decrypted
// bytes, ready to install as the prototype's code array. If no seed passes,
// it returns [chunkerr.ErrBruteForceFailed].
func BruteForce(encryptedCode []byte, linedefined int32, predicate Predicate) (fileSeed uint16, decrypted []byte, err error) {
	if predicate == nil {
		predicate = Plausible
	}
	scratch := make([]byte, len(encryptedCode))
	for candidate := 0; candidate <= 0xffff; candidate++ {
		copy(scratch, encryptedCode)
		inner := InnerSeed(linedefined, uint16(candidate))
		if err := rc4.DecryptCode(scratch, inner); err != nil {
			return 0, nil, err
		}
		if predicate(scratch) {
			return uint16(candidate), scratch, nil
		}
	}
	return 0, nil, chunkerr.ErrBruteForceFailed
}

// Verify decrypts encryptedCode under the inner seed derived from fileSeed
// and linedefined, returning the decrypted bytes without re-running the
// brute-force search. Used once a file's seed is already known (cached from
// its first prototype) to decrypt every subsequent prototype's code.
func Verify(encryptedCode []byte, linedefined int32, fileSeed uint16) (decrypted []byte, err error) {
	scratch := make([]byte, len(encryptedCode))
	copy(scratch, encryptedCode)
	inner := InnerSeed(linedefined, fileSeed)
	if err := rc4.DecryptCode(scratch, inner); err != nil {
		return nil, err
	}
	return scratch, nil
}
