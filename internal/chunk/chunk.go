// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package chunk implements the top-level driver: it recognizes the game's
// custom chunk header, strips it back down to a standard Lua 5.4 header,
// and sits between the prototype walker and the canonical loader that
// produces the final artifact.
//
// Everything below the header is the walker's concern; everything above
// "a normalised standard-format buffer" is [shadowluac.dev/pkg/internal/luacode]'s.
// This package only owns the bytes in between: detecting which of the two
// header variants a file uses, and splicing the custom bytes back out once
// the walk is done.
package chunk

import (
	"bytes"
	"fmt"

	"shadowluac.dev/pkg/internal/chunkbuf"
	"shadowluac.dev/pkg/internal/chunkerr"
	"shadowluac.dev/pkg/internal/luacode"
	"shadowluac.dev/pkg/internal/seedoracle"
	"shadowluac.dev/pkg/internal/walker"
)

const (
	// standardHeaderLen is the size of a standard Lua 5.4 chunk header,
	// which is also the size of the custom header once its two extra flag
	// bytes have been stripped.
	standardHeaderLen = 31

	// customHeaderLen is the custom variant's header size with no RSA
	// block present: the standard 31 bytes plus flag1 and flag2.
	customHeaderLen = standardHeaderLen + 2

	// rsaBlockLen is the size of the opaque block some custom-header files
	// carry immediately after the 33-byte prefix.
	rsaBlockLen = 128

	// withRSAHeaderLen is the custom header size when the RSA block is
	// present.
	withRSAHeaderLen = customHeaderLen + rsaBlockLen

	// offsets into the custom header, per §6 of the format's external
	// interfaces: signature(0..3), version(4), flag1(5), flag2(6), format(7).
	offsetFlag1 = 5
	offsetFlag2 = 6

	// flag1Custom is the value that marks a chunk as using the custom
	// header layout (flag1/flag2 physically present at offsets 5 and 6).
	// Any other value — in practice only 0x00 — means the file already has
	// a plain standard Lua header with no extra bytes to strip, and byte 5
	// is simply the standard format byte (which happens to also be 0).
	flag1Custom = 0x30

	// rsaProbeOffset/rsaProbeMax implement the variant-detection heuristic:
	// a file is assumed to carry the 128-byte block when it's long enough
	// to hold one and the byte right after it looks like a plausible
	// upvalue count.
	rsaProbeOffset = withRSAHeaderLen
	rsaProbeMax    = 20
)

var signature = []byte{0x1B, 'L', 'u', 'a'}

const version = 0x54

// Result is what a successful [Decrypt] produces: the re-dumped standard
// Lua 5.4 chunk plus the facts the walker accumulated along the way, which
// callers use for logging (seed discovery) rather than anything the output
// bytes themselves need.
type Result struct {
	Output []byte
	walker.Result
}

// Decrypt normalises one chunk file: it detects the header variant,
// decrypts and repairs every prototype via a fresh [walker.State], strips
// the custom header bytes, and hands the result to the canonical loader to
// produce the final re-dumped artifact.
//
// Decrypt never mutates input; on any error the caller should treat input
// as the file to preserve (e.g. by copying it verbatim to a scratch
// directory), since the in-progress buffer this function builds is
// discarded along with the error.
func Decrypt(input []byte) (Result, error) {
	return DecryptWithPredicate(input, nil)
}

// DecryptWithPredicate is like [Decrypt], but substitutes predicate for
// [seedoracle.Plausible] in every prototype's seed brute-force search; a
// nil predicate behaves exactly like [Decrypt].
func DecryptWithPredicate(input []byte, predicate seedoracle.Predicate) (Result, error) {
	if len(input) < 6 || !bytes.Equal(input[:4], signature) {
		return Result{}, fmt.Errorf("decrypt chunk: %w", chunkerr.ErrMalformedHeader)
	}
	if input[4] != version {
		return Result{}, fmt.Errorf("decrypt chunk: %w", chunkerr.ErrMalformedHeader)
	}

	custom := input[offsetFlag1] == flag1Custom
	headerSize := standardHeaderLen
	encrypted := false
	hasRSA := false
	if custom {
		if len(input) < customHeaderLen {
			return Result{}, fmt.Errorf("decrypt chunk: %w", chunkerr.ErrMalformedHeader)
		}
		encrypted = input[offsetFlag2] != 0
		hasRSA = len(input) >= rsaProbeOffset+1 && input[rsaProbeOffset] <= rsaProbeMax
		if hasRSA {
			headerSize = withRSAHeaderLen
		} else {
			headerSize = customHeaderLen
		}
	}
	if len(input) < headerSize+1 {
		return Result{}, fmt.Errorf("decrypt chunk: %w", chunkerr.ErrMalformedHeader)
	}

	buf := chunkbuf.New(bytes.Clone(input))
	if err := buf.Seek(headerSize); err != nil {
		return Result{}, fmt.Errorf("decrypt chunk: %w", err)
	}
	if _, ok := buf.ReadByte(); !ok { // main upvalue count; re-verified by the loader below.
		return Result{}, fmt.Errorf("decrypt chunk: %w", chunkerr.ErrMalformedHeader)
	}

	w := walker.NewWithPredicate(predicate)
	if err := w.Walk(buf, encrypted, custom); err != nil {
		return Result{}, fmt.Errorf("decrypt chunk: %w", err)
	}

	if custom {
		if err := buf.DeleteRange(offsetFlag1, offsetFlag2+1); err != nil {
			return Result{}, fmt.Errorf("decrypt chunk: strip custom header: %w", err)
		}
		// The byte that was at the old format-field offset (7) now sits at
		// offset 5, in the position a standard header's format byte
		// occupies; luacFormat is 0, matching what a stock Lua 5.4 loader
		// expects there.
		if err := buf.WriteAt(offsetFlag1, []byte{0}); err != nil {
			return Result{}, fmt.Errorf("decrypt chunk: strip custom header: %w", err)
		}
		if hasRSA {
			// The RSA block sat right after the 33-byte custom prefix;
			// after the 2-byte delete above it sits right after the
			// (now-standard) 31-byte header.
			if err := buf.DeleteRange(standardHeaderLen, standardHeaderLen+rsaBlockLen); err != nil {
				return Result{}, fmt.Errorf("decrypt chunk: strip RSA block: %w", err)
			}
		}
	}
	// The encryption flag byte, if it ever existed in this output, was
	// offsetFlag2 above and is gone along with the rest of the stripped
	// header; a non-custom file never had one to begin with. Either way,
	// the buffer handed to the loader below carries no encryption flag.

	var proto luacode.Prototype
	if err := proto.UnmarshalBinary(buf.Bytes()); err != nil {
		return Result{}, fmt.Errorf("decrypt chunk: %w: %v", chunkerr.ErrLoaderRejected, err)
	}
	out, err := proto.MarshalBinary()
	if err != nil {
		return Result{}, fmt.Errorf("decrypt chunk: %w: %v", chunkerr.ErrLoaderRejected, err)
	}
	return Result{Output: out, Result: w.Result()}, nil
}
