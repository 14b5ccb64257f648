// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package chunk

import (
	"encoding/binary"
	"errors"
	"testing"

	"shadowluac.dev/pkg/internal/chunkerr"
	"shadowluac.dev/pkg/internal/luacode"
	"shadowluac.dev/pkg/internal/rc4"
	"shadowluac.dev/pkg/internal/seedoracle"
	"shadowluac.dev/pkg/internal/varint"
)

// buildCustom wraps a standard-format dump (as produced by
// [luacode.Prototype.MarshalBinary]) in the game's custom header, optionally
// padding it with the 128-byte opaque block. It returns a file chunk.Decrypt
// should normalise back to an equivalent standard dump.
func buildCustom(standard []byte, flag2 byte, withRSA bool) []byte {
	header := standard[:standardHeaderLen]
	mainUpvalueCount := standard[standardHeaderLen]
	body := standard[standardHeaderLen+1:]

	var out []byte
	out = append(out, header[:5]...) // signature + version
	out = append(out, flag1Custom, flag2)
	out = append(out, header[5:]...) // format + LUAC_DATA + sizes + sentinels
	if withRSA {
		out = append(out, make([]byte, rsaBlockLen)...)
	}
	out = append(out, mainUpvalueCount)
	out = append(out, body...)
	return out
}

// codeOffsetInStandard returns the absolute byte offset of the code array
// belonging to the outermost prototype in a dump built from a [Prototype]
// whose Source is empty and LineDefined/LastLineDefined are both 0, matching
// [luacode]'s dumpFunction field order: header(31) + mainUpvalueCount(1) +
// source-varint(1, null) + linedefined-varint(1) + lastlinedefined-varint(1)
// + numparams/isvararg/maxstacksize(3) + sizecode-varint.
func codeOffsetInStandard(numInstructions int) int {
	return standardHeaderLen + 1 + 1 + 1 + 1 + 3 + varint.Size(uint32(numInstructions))
}

func simpleMain(maxStack uint8, code []luacode.Instruction, consts []luacode.Value) *luacode.Prototype {
	return &luacode.Prototype{
		MaxStackSize: maxStack,
		Code:         code,
		Constants:    consts,
	}
}

func encryptMainCode(data []byte, codeOffset, numInstructions int, fileSeed uint16) {
	inner := seedoracle.InnerSeed(0, fileSeed) // LineDefined is 0 for simpleMain.
	if err := rc4.DecryptCode(data[codeOffset:codeOffset+numInstructions*4], inner); err != nil {
		panic(err)
	}
}

func protosEqual(t *testing.T, got, want *luacode.Prototype) {
	t.Helper()
	if got.NumParams != want.NumParams || got.IsVararg != want.IsVararg || got.MaxStackSize != want.MaxStackSize {
		t.Errorf("header fields: got %+v; want %+v", struct {
			NumParams, MaxStackSize uint8
			IsVararg                bool
		}{got.NumParams, got.MaxStackSize, got.IsVararg}, struct {
			NumParams, MaxStackSize uint8
			IsVararg                bool
		}{want.NumParams, want.MaxStackSize, want.IsVararg})
	}
	if len(got.Code) != len(want.Code) {
		t.Fatalf("len(Code) = %d; want %d", len(got.Code), len(want.Code))
	}
	for i := range want.Code {
		if got.Code[i] != want.Code[i] {
			t.Errorf("Code[%d] = %#08x; want %#08x", i, uint32(got.Code[i]), uint32(want.Code[i]))
		}
	}
	if len(got.Constants) != len(want.Constants) {
		t.Fatalf("len(Constants) = %d; want %d", len(got.Constants), len(want.Constants))
	}
	for i := range want.Constants {
		if !got.Constants[i].Equal(want.Constants[i]) {
			t.Errorf("Constants[%d] = %v; want %v", i, got.Constants[i], want.Constants[i])
		}
	}
	if len(got.Functions) != len(want.Functions) {
		t.Fatalf("len(Functions) = %d; want %d", len(got.Functions), len(want.Functions))
	}
}

func TestDecryptAlreadyStandardPassthrough(t *testing.T) {
	main := simpleMain(2, []luacode.Instruction{luacode.Instruction(0x00000000)}, nil) // OpMove-shaped (opcode <=54, unaffected by the opcode remap)
	standard, err := main.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() = %v", err)
	}

	result, err := Decrypt(standard)
	if err != nil {
		t.Fatalf("Decrypt() = %v", err)
	}
	var got luacode.Prototype
	if err := got.UnmarshalBinary(result.Output); err != nil {
		t.Fatalf("UnmarshalBinary(Decrypt output) = %v", err)
	}
	protosEqual(t, &got, main)
}

func TestDecryptCustomHeaderUnencrypted(t *testing.T) {
	main := simpleMain(2, []luacode.Instruction{luacode.Instruction(0x00000000)}, []luacode.Value{luacode.IntegerValue(7)})
	standard, err := main.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() = %v", err)
	}
	custom := buildCustom(standard, 0, false)

	result, err := Decrypt(custom)
	if err != nil {
		t.Fatalf("Decrypt() = %v", err)
	}
	var got luacode.Prototype
	if err := got.UnmarshalBinary(result.Output); err != nil {
		t.Fatalf("UnmarshalBinary(Decrypt output) = %v", err)
	}
	protosEqual(t, &got, main)
}

func TestDecryptCustomHeaderWithRSABlock(t *testing.T) {
	main := simpleMain(1, []luacode.Instruction{luacode.Instruction(0x00000000)}, nil)
	standard, err := main.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() = %v", err)
	}
	custom := buildCustom(standard, 0, true)

	result, err := Decrypt(custom)
	if err != nil {
		t.Fatalf("Decrypt() = %v", err)
	}
	var got luacode.Prototype
	if err := got.UnmarshalBinary(result.Output); err != nil {
		t.Fatalf("UnmarshalBinary(Decrypt output) = %v", err)
	}
	protosEqual(t, &got, main)
}

func TestDecryptEncryptedSinglePrototype(t *testing.T) {
	const fileSeed = uint16(0x2468)
	code := []luacode.Instruction{
		luacode.Instruction(0x00000183), // arbitrary LOADK-shaped word, A=3
		luacode.Instruction(0x00000000), // OpMove-shaped (opcode <=54, unaffected by the opcode remap)
	}
	main := simpleMain(3, code, []luacode.Value{luacode.IntegerValue(99)})
	standard, err := main.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() = %v", err)
	}
	custom := buildCustom(standard, 1, false)

	codeOffset := headerOffsetAdjust(custom) + codeOffsetInStandard(len(code)) - standardHeaderLen - 1
	encryptMainCode(custom, codeOffset, len(code), fileSeed)

	// The clear first word alone meets the default predicate's 30% floor on
	// two words, so seed 0 would win; accept only the exact plaintext.
	var plainBytes []byte
	for _, ins := range code {
		plainBytes = binary.LittleEndian.AppendUint32(plainBytes, uint32(ins))
	}
	result, err := DecryptWithPredicate(custom, func(b []byte) bool { return string(b) == string(plainBytes) })
	if err != nil {
		t.Fatalf("Decrypt() = %v", err)
	}
	var got luacode.Prototype
	if err := got.UnmarshalBinary(result.Output); err != nil {
		t.Fatalf("UnmarshalBinary(Decrypt output) = %v", err)
	}
	// LOADK's A=3 is within 5 of maxstacksize 3, so the register patch of an
	// encrypted prototype raises maxstacksize to 3+8.
	main.MaxStackSize = 11
	protosEqual(t, &got, main)
}

// headerOffsetAdjust returns the header size of custom (standard, custom or
// custom-with-RSA) plus the 1-byte main upvalue count, so callers can
// translate a standard-dump offset into the equivalent offset within a
// custom-wrapped file.
func headerOffsetAdjust(custom []byte) int {
	if custom[offsetFlag1] != flag1Custom {
		return standardHeaderLen + 1
	}
	hasRSA := len(custom) >= rsaProbeOffset+1 && custom[rsaProbeOffset] <= rsaProbeMax
	if hasRSA {
		return withRSAHeaderLen + 1
	}
	return customHeaderLen + 1
}

func TestDecryptMalformedSignature(t *testing.T) {
	data := []byte("not a lua chunk at all")
	if _, err := Decrypt(data); !errors.Is(err, chunkerr.ErrMalformedHeader) {
		t.Fatalf("Decrypt() = %v; want wrapping %v", err, chunkerr.ErrMalformedHeader)
	}
}

func TestDecryptMalformedVersion(t *testing.T) {
	main := simpleMain(1, []luacode.Instruction{luacode.Instruction(0x00000046)}, nil)
	standard, err := main.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() = %v", err)
	}
	standard[4] = 0x53 // wrong version
	if _, err := Decrypt(standard); !errors.Is(err, chunkerr.ErrMalformedHeader) {
		t.Fatalf("Decrypt() = %v; want wrapping %v", err, chunkerr.ErrMalformedHeader)
	}
}

func TestDecryptBruteForceFailureIsFatal(t *testing.T) {
	main := simpleMain(1, []luacode.Instruction{luacode.Instruction(0x7fffffff)}, nil)
	standard, err := main.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() = %v", err)
	}
	// Mark encrypted (flag2 != 0) without actually scrambling the code: no
	// seed will make this implausible word decrypt to a plausible one, since
	// DecryptCode never touches the first instruction.
	custom := buildCustom(standard, 1, false)

	if _, err := Decrypt(custom); !errors.Is(err, chunkerr.ErrBruteForceFailed) {
		t.Fatalf("Decrypt() = %v; want wrapping %v", err, chunkerr.ErrBruteForceFailed)
	}
}

// gameNumberCode converts the code array at codeOffset from upstream Lua
// opcode numbering to this format's numbering (the inverse of
// [instr.OpCode.ToStock]), simulating what a genuine game-compiled file
// would hold on disk for opcodes at or above CLOSE's slot.
func gameNumberCode(data []byte, codeOffset, numInstructions int) {
	for i := 0; i < numInstructions; i++ {
		off := codeOffset + i*4
		word := binary.LittleEndian.Uint32(data[off : off+4])
		op := byte(word & 0x7f)
		if op >= 54 {
			op++
			word = word&^0x7f | uint32(op)
		}
		binary.LittleEndian.PutUint32(data[off:off+4], word)
	}
}

func TestDecryptRemapsGameNumberedOpcodes(t *testing.T) {
	// RETURN0 is opcode 71 upstream; this format's numbering shifts it to 72.
	const stockReturn0 = 0x47
	main := simpleMain(1, []luacode.Instruction{luacode.Instruction(stockReturn0)}, nil)
	standard, err := main.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() = %v", err)
	}
	custom := buildCustom(standard, 0, false) // unencrypted: remap is independent of flag2.

	codeOffset := headerOffsetAdjust(custom) + codeOffsetInStandard(1) - standardHeaderLen - 1
	gameNumberCode(custom, codeOffset, 1)

	result, err := Decrypt(custom)
	if err != nil {
		t.Fatalf("Decrypt() = %v", err)
	}
	var got luacode.Prototype
	if err := got.UnmarshalBinary(result.Output); err != nil {
		t.Fatalf("UnmarshalBinary(Decrypt output) = %v", err)
	}
	protosEqual(t, &got, main)
}

func TestDecryptTruncatedHeader(t *testing.T) {
	data := []byte{0x1B, 'L', 'u', 'a', 0x54}
	if _, err := Decrypt(data); !errors.Is(err, chunkerr.ErrMalformedHeader) {
		t.Fatalf("Decrypt() = %v; want wrapping %v", err, chunkerr.ErrMalformedHeader)
	}
}
