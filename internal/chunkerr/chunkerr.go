// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package chunkerr holds the sentinel errors shared by the packages that
// decode the game's chunk format, so callers can use [errors.Is] regardless
// of which stage of the pipeline raised them.
package chunkerr

import "errors"

var (
	// ErrMalformedHeader is returned when a chunk's fixed header fields
	// (signature, version, LUAC_DATA, sizeof sentinels, int/float format
	// sentinels) don't match any recognized variant.
	ErrMalformedHeader = errors.New("chunkdecode: malformed header")

	// ErrVarintExhausted is returned when a varint-prefixed read runs out of
	// buffer before the terminal byte (top bit set) is seen.
	ErrVarintExhausted = errors.New("chunkdecode: varint ran past end of buffer")

	// ErrBruteForceFailed is returned when no seed16 in [0,65536) produces a
	// plausible decryption of a prototype's code array.
	ErrBruteForceFailed = errors.New("chunkdecode: no seed produced a plausible decryption")

	// ErrUnreasonableCount is returned when a length-prefixed count (constants,
	// upvalues, nested prototypes, locals, line info) exceeds the walker's
	// fixed ceiling, or when prototypes nest deeper than its depth limit,
	// guarding against runaway allocation on corrupt or misaligned input.
	ErrUnreasonableCount = errors.New("chunkdecode: implausible element count")

	// ErrNoForwardProgress is returned by the prototype walker when a
	// recursive descent re-reads the same buffer position it started from,
	// which would otherwise spin or recurse forever on malformed input, or
	// when a single prototype advances the cursor by an implausibly large
	// amount.
	ErrNoForwardProgress = errors.New("chunkdecode: walker made no forward progress")

	// ErrUnknownConstTag is returned when a constant's type tag byte doesn't
	// match any of the tags this format defines.
	ErrUnknownConstTag = errors.New("chunkdecode: unknown constant type tag")

	// ErrLoaderRejected is returned when the canonical loader refuses to
	// accept the repaired, re-encrypted-free bytecode it was handed, which
	// usually means an earlier repair stage left the bytecode inconsistent.
	ErrLoaderRejected = errors.New("chunkdecode: canonical loader rejected repaired chunk")
)
