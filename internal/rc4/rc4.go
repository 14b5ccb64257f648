// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package rc4 implements the two keying variants of RC4 the game's chunk
// format layers over string payloads and function code arrays.
//
// Both variants are standard RC4 (KSA + PRGA over a 256-byte S-box) with an
// 8-byte key; [crypto/rc4] implements exactly that KSA/PRGA pair for a
// variable-length key, so this package only has to derive the two keying
// schemes and manage which byte range of the target gets XORed.
package rc4

import "crypto/rc4"

// StringKey derives the 8-byte key for decrypting a string payload of the
// given length. All bytes are zero except key[6] and key[7], which are
// derived from length mod 254. length is the payload length (the number of
// bytes that actually get XORed), not the on-disk varint L that precedes it.
//
// If length mod 254 is zero, the string is considered already in clear form;
// ok is false and callers must not attempt decryption.
func StringKey(length int) (key [8]byte, ok bool) {
	mod := length % 254
	if mod == 0 {
		return key, false
	}
	key[6] = byte(mod)
	key[7] = byte(mod + 1)
	return key, true
}

// DecryptString decrypts a string payload in place using [StringKey]. It is
// a no-op (and returns false) when the payload's length indicates it is not
// encrypted under this scheme. length must be the payload length, not the
// on-disk varint that precedes it.
func DecryptString(payload []byte, length int) (decrypted bool, err error) {
	key, ok := StringKey(length)
	if !ok {
		return false, nil
	}
	c, err := rc4.NewCipher(key[:])
	if err != nil {
		return false, err
	}
	c.XORKeyStream(payload, payload)
	return true, nil
}

// CodeKey derives the 8-byte key for decrypting a function's code array
// under a candidate file seed. All bytes are zero except key[6] and key[7],
// the little-endian halves of seed.
func CodeKey(seed16 uint16) [8]byte {
	var key [8]byte
	key[6] = byte(seed16)
	key[7] = byte(seed16 >> 8)
	return key
}

// DecryptCode decrypts a function's instruction-code byte range in place
// under the given candidate seed. The first 4 bytes (the first instruction
// word) are left untouched as a known-plaintext anchor; no keystream is
// consumed for them, and the PRGA's first output byte is applied directly to
// code[4].
//
// code must be exactly sizecode*4 bytes; DecryptCode XORs the trailing
// len(code)-4 bytes.
func DecryptCode(code []byte, seed16 uint16) error {
	if len(code) < 4 {
		return nil
	}
	key := CodeKey(seed16)
	c, err := rc4.NewCipher(key[:])
	if err != nil {
		return err
	}
	c.XORKeyStream(code[4:], code[4:])
	return nil
}
