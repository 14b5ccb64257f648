// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package walker implements the recursive descent over a chunk's prototype
// tree: it is the only piece of this module that understands the on-disk
// layout of a single prototype record (source name, line info, code,
// constants, upvalues, nested prototypes, debug info), and the only piece
// that decides, per prototype, whether the code array needs decrypting and
// repairing before the rest of the record can even be located. It is also
// responsible for translating each code array's opcodes from this format's
// numbering back to upstream Lua 5.4's, since that's a property of the
// custom header rather than of encryption.
//
// Every mutation happens in place on the [chunkbuf.Buffer] passed in; the
// walker never allocates a second copy of the file.
package walker

import (
	"encoding/binary"
	"fmt"
	"io"

	"shadowluac.dev/pkg/internal/chunkbuf"
	"shadowluac.dev/pkg/internal/chunkerr"
	"shadowluac.dev/pkg/internal/instr"
	"shadowluac.dev/pkg/internal/rc4"
	"shadowluac.dev/pkg/internal/reach"
	"shadowluac.dev/pkg/internal/registers"
	"shadowluac.dev/pkg/internal/repair"
	"shadowluac.dev/pkg/internal/seedoracle"
	"shadowluac.dev/pkg/internal/varint"
)

const (
	// maxDepth bounds prototype nesting.
	maxDepth = 50

	// maxAdvance bounds how far a single nested prototype's walk may move
	// the cursor forward, guarding against a corrupt length field reading
	// most of the file as one prototype.
	maxAdvance = 10 << 20

	// maxReasonableCount bounds any length-prefixed element count (constants,
	// upvalues, prototypes, locals, line info entries).
	maxReasonableCount = 10_000

	// constant type tags, matching internal/luacode's dump format.
	tagNil         = 0x00
	tagFalse       = 0x01
	tagTrue        = 0x11
	tagInt         = 0x03
	tagFloat       = 0x13
	tagShortString = 0x04
	tagLongString  = 0x14
)

// Result reports per-file facts the chunk driver needs after a walk
// completes, beyond the in-place buffer mutation.
type Result struct {
	// FileSeed is the seed16 the oracle discovered, valid only if Decrypted
	// is true.
	FileSeed uint16
	// Decrypted is true once the file's seed has been established and at
	// least one prototype's code array has been successfully decrypted.
	Decrypted bool
}

// State carries the one piece of cross-prototype state a file's walk
// shares: the discovered file seed. A State must not be reused across
// files; construct a fresh one per file.
type State struct {
	haveSeed  bool
	fileSeed  uint16
	predicate seedoracle.Predicate
}

// New returns a fresh walker [State] for one file, using
// [seedoracle.Plausible] as the brute-force plausibility predicate.
func New() *State {
	return &State{}
}

// NewWithPredicate is like [New] but substitutes predicate for
// [seedoracle.Plausible] in the seed brute-force search, letting a caller
// tighten or loosen how readily the oracle accepts a candidate seed.
func NewWithPredicate(predicate seedoracle.Predicate) *State {
	return &State{predicate: predicate}
}

// Result returns the facts accumulated so far.
func (s *State) Result() Result {
	return Result{
		FileSeed:  s.fileSeed,
		Decrypted: s.haveSeed,
	}
}

// Walk performs the recursive descent over one prototype and its nested
// prototypes, starting at buf's current cursor position. encrypted is the
// chunk's flag2 state: when false, no decryption or repair is attempted and
// the walk is purely structural (so the cursor ends up in the right place).
// customOpcodes is the chunk's flag1 state: when true, every code array's
// opcode field is translated from this format's numbering back to upstream
// Lua 5.4's before the walk moves on, regardless of encrypted — the custom
// opcode table and the RC4 layer are independent transformations the game's
// toolchain applies, and a file can carry one without the other.
func (s *State) Walk(buf *chunkbuf.Buffer, encrypted, customOpcodes bool) error {
	return s.walkPrototype(buf, encrypted, customOpcodes, 0)
}

func (s *State) walkPrototype(buf *chunkbuf.Buffer, encrypted, customOpcodes bool, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("walk prototype: %w", chunkerr.ErrUnreasonableCount)
	}

	// 1. Source name.
	if _, _, err := readMaybeString(buf, encrypted); err != nil {
		return fmt.Errorf("walk prototype: source name: %w", err)
	}

	// 2. linedefined, lastlinedefined, numparams, is_vararg, maxstacksize.
	lineDefined, err := readVarint(buf, "line defined")
	if err != nil {
		return err
	}
	if _, err := readVarint(buf, "last line defined"); err != nil {
		return err
	}
	if _, ok := buf.ReadByte(); !ok { // numparams
		return fmt.Errorf("walk prototype: number of parameters: %w", io.ErrUnexpectedEOF)
	}
	if _, ok := buf.ReadByte(); !ok { // is_vararg
		return fmt.Errorf("walk prototype: is vararg: %w", io.ErrUnexpectedEOF)
	}
	maxStackOffset := buf.Pos()
	maxStackByte, ok := buf.ReadByte()
	if !ok {
		return fmt.Errorf("walk prototype: max stack size: %w", io.ErrUnexpectedEOF)
	}

	// 3. sizecode.
	sizeCode, err := readVarint(buf, "instruction count")
	if err != nil {
		return err
	}
	if sizeCode > maxReasonableCount {
		return fmt.Errorf("walk prototype: instruction count: %w", chunkerr.ErrUnreasonableCount)
	}
	codeStart := buf.Pos()
	codeLen := sizeCode * 4

	// 4. Peek past the code region to learn num_consts (needed for repair)
	// without disturbing the cursor, which must resume at codeStart for
	// steps 5-6.
	if _, ok := buf.Peek(codeLen); !ok {
		return fmt.Errorf("walk prototype: instruction array: %w", io.ErrUnexpectedEOF)
	}
	if err := buf.Skip(codeLen); err != nil {
		return fmt.Errorf("walk prototype: %w", err)
	}
	numConsts, err := peekConstants(buf)
	if err != nil {
		return fmt.Errorf("walk prototype: %w", err)
	}
	if err := buf.Seek(codeStart); err != nil {
		return fmt.Errorf("walk prototype: %w", err)
	}

	// 5-6. Read the code region (this both retrieves it for decryption and
	// advances the cursor past it), and if encrypted, decrypt + repair.
	codeBytes, ok := buf.Read(codeLen)
	if !ok {
		return fmt.Errorf("walk prototype: instruction array: %w", io.ErrUnexpectedEOF)
	}
	if encrypted && sizeCode > 0 {
		if err := s.decryptAndRepair(codeBytes, lineDefined, numConsts); err != nil {
			return fmt.Errorf("walk prototype: %w", err)
		}
		if patched, needs := registerPatch(codeBytes, maxStackByte); needs {
			if err := buf.WriteAt(maxStackOffset, []byte{byte(patched)}); err != nil {
				return fmt.Errorf("walk prototype: %w", err)
			}
		}
	}
	if customOpcodes && sizeCode > 0 {
		remapToStock(codeBytes)
	}

	// 7. Constants, for real this time (decrypting string payloads).
	n, err := readVarint(buf, "constant count")
	if err != nil {
		return err
	}
	if n != numConsts {
		return fmt.Errorf("walk prototype: constant count changed between peek (%d) and read (%d)", numConsts, n)
	}
	for i := 0; i < n; i++ {
		if err := walkConstant(buf, encrypted); err != nil {
			return fmt.Errorf("walk prototype: constant [%d]: %w", i, err)
		}
	}

	// 8. Upvalue descriptors: 3 bytes each (InStack bool, Index byte, Kind byte).
	numUpvalues, err := readVarint(buf, "upvalue count")
	if err != nil {
		return err
	}
	if numUpvalues > maxReasonableCount {
		return fmt.Errorf("walk prototype: upvalue count: %w", chunkerr.ErrUnreasonableCount)
	}
	if err := buf.Skip(3 * numUpvalues); err != nil {
		return fmt.Errorf("walk prototype: upvalue descriptors: %w", err)
	}

	// 9. Nested prototypes.
	numProtos, err := readVarint(buf, "prototype count")
	if err != nil {
		return err
	}
	if numProtos > maxReasonableCount {
		return fmt.Errorf("walk prototype: prototype count: %w", chunkerr.ErrUnreasonableCount)
	}
	for i := 0; i < numProtos; i++ {
		before := buf.Pos()
		if err := s.walkPrototype(buf, encrypted, customOpcodes, depth+1); err != nil {
			return fmt.Errorf("walk prototype: nested prototype [%d]: %w", i, err)
		}
		advance := buf.Pos() - before
		if advance <= 0 || advance > maxAdvance {
			return fmt.Errorf("walk prototype: nested prototype [%d]: %w", i, chunkerr.ErrNoForwardProgress)
		}
	}

	// 10. Debug info: lineinfo, local variables, upvalue names. Read-only in
	// the sense that no varint here is ever re-encoded; only string payloads
	// may be decrypted in place.
	if err := skipLineInfo(buf); err != nil {
		return fmt.Errorf("walk prototype: line info: %w", err)
	}
	numLocals, err := readVarint(buf, "local variable count")
	if err != nil {
		return err
	}
	if numLocals > maxReasonableCount {
		return fmt.Errorf("walk prototype: local variable count: %w", chunkerr.ErrUnreasonableCount)
	}
	for i := 0; i < numLocals; i++ {
		if _, _, err := readMaybeString(buf, encrypted); err != nil {
			return fmt.Errorf("walk prototype: local variable [%d]: name: %w", i, err)
		}
		if _, err := readVarint(buf, "local variable start pc"); err != nil {
			return err
		}
		if _, err := readVarint(buf, "local variable end pc"); err != nil {
			return err
		}
	}
	numUpvalueNames, err := readVarint(buf, "upvalue name count")
	if err != nil {
		return err
	}
	if numUpvalueNames != 0 && numUpvalueNames != numUpvalues {
		return fmt.Errorf("walk prototype: upvalue name count (%d) does not match upvalue count (%d)", numUpvalueNames, numUpvalues)
	}
	for i := 0; i < numUpvalueNames; i++ {
		if _, _, err := readMaybeString(buf, encrypted); err != nil {
			return fmt.Errorf("walk prototype: upvalue name [%d]: %w", i, err)
		}
	}

	return nil
}

// decryptAndRepair decrypts codeBytes in place (discovering or reusing the
// file seed) and runs instruction repair. Brute-force failure is fatal for
// the whole file: it can only happen on the first encrypted prototype,
// since every later one reuses the established seed via [seedoracle.Verify]
// rather than searching. The caller (the chunk driver) is responsible for
// treating a failure here as a reason to discard the mutated buffer and
// keep the original file bytes.
func (s *State) decryptAndRepair(codeBytes []byte, lineDefined, numConsts int) error {
	var decrypted []byte
	if !s.haveSeed {
		seed, plain, err := seedoracle.BruteForce(codeBytes, int32(lineDefined), s.predicate)
		if err != nil {
			return err
		}
		s.fileSeed = seed
		s.haveSeed = true
		decrypted = plain
	} else {
		plain, err := seedoracle.Verify(codeBytes, int32(lineDefined), s.fileSeed)
		if err != nil {
			return err
		}
		decrypted = plain
	}
	copy(codeBytes, decrypted)

	insns := decodeInstructions(codeBytes)
	repair.Instructions(insns, numConsts)
	encodeInstructions(codeBytes, insns)
	return nil
}

// registerPatch decodes codeBytes (post-repair) to recompute the
// high-water register mark and decide whether maxstacksize needs patching.
func registerPatch(codeBytes []byte, currentMaxStack byte) (patched int, needs bool) {
	insns := decodeInstructions(codeBytes)
	reachable := reach.Analyze(insns)
	maxReg := registers.MaxRegister(insns, reachable)
	return registers.PatchMaxStack(int(currentMaxStack), maxReg)
}

func decodeInstructions(code []byte) []instr.Instruction {
	insns := make([]instr.Instruction, len(code)/4)
	for i := range insns {
		insns[i] = instr.Instruction(binary.LittleEndian.Uint32(code[i*4 : i*4+4]))
	}
	return insns
}

func encodeInstructions(code []byte, insns []instr.Instruction) {
	for i, ins := range insns {
		binary.LittleEndian.PutUint32(code[i*4:i*4+4], uint32(ins))
	}
}

// remapToStock rewrites every instruction's opcode field in place from this
// format's numbering to upstream Lua 5.4's, via [instr.OpCode.ToStock]. It
// runs after any decryption and repair, once codeBytes holds this format's
// real opcode numbering, and unconditionally for every prototype in a
// customized-header file regardless of whether that prototype was encrypted.
func remapToStock(code []byte) {
	for i := 0; i+4 <= len(code); i += 4 {
		ins := instr.Instruction(binary.LittleEndian.Uint32(code[i : i+4]))
		ins = ins.WithOpCode(ins.OpCode().ToStock())
		binary.LittleEndian.PutUint32(code[i:i+4], uint32(ins))
	}
}

// peekConstants walks the constants/upvalues/prototypes region starting at
// buf's current cursor purely to learn how many constants follow, without
// decrypting anything. Callers must restore the cursor afterward; peekConstants
// does not do so itself.
func peekConstants(buf *chunkbuf.Buffer) (numConsts int, err error) {
	numConsts, err = readVarint(buf, "constant count")
	if err != nil {
		return 0, err
	}
	if numConsts > maxReasonableCount {
		return 0, fmt.Errorf("constant count: %w", chunkerr.ErrUnreasonableCount)
	}
	for i := 0; i < numConsts; i++ {
		if err := walkConstant(buf, false); err != nil {
			return 0, fmt.Errorf("constant [%d]: %w", i, err)
		}
	}
	numUpvalues, err := readVarint(buf, "upvalue count")
	if err != nil {
		return 0, err
	}
	if err := buf.Skip(3 * numUpvalues); err != nil {
		return 0, fmt.Errorf("upvalue descriptors: %w", err)
	}
	if _, err := readVarint(buf, "prototype count"); err != nil {
		return 0, err
	}
	return numConsts, nil
}

// walkConstant reads one constant's tag and payload, advancing buf's
// cursor, optionally decrypting string payloads in place.
func walkConstant(buf *chunkbuf.Buffer, decrypt bool) error {
	tag, ok := buf.ReadByte()
	if !ok {
		return fmt.Errorf("tag: %w", io.ErrUnexpectedEOF)
	}
	switch tag {
	case tagNil, tagFalse, tagTrue:
		// No payload.
	case tagInt, tagFloat:
		if _, ok := buf.Read(8); !ok {
			return fmt.Errorf("value: %w", io.ErrUnexpectedEOF)
		}
	case tagShortString, tagLongString:
		if _, _, err := readMaybeString(buf, decrypt); err != nil {
			return err
		}
	default:
		return chunkerr.ErrUnknownConstTag
	}
	return nil
}

// skipLineInfo consumes the lineinfo record (varint count, that many raw
// int8 bytes, varint absolute-entry count, that many (pc, line) varint
// pairs) without interpreting it. No decryption applies to this section.
func skipLineInfo(buf *chunkbuf.Buffer) error {
	n, err := readVarint(buf, "line info length")
	if err != nil {
		return err
	}
	if n > maxReasonableCount {
		return fmt.Errorf("line info length: %w", chunkerr.ErrUnreasonableCount)
	}
	if err := buf.Skip(n); err != nil {
		return fmt.Errorf("line info: %w", err)
	}
	numAbs, err := readVarint(buf, "absolute line info count")
	if err != nil {
		return err
	}
	if numAbs > maxReasonableCount {
		return fmt.Errorf("absolute line info count: %w", chunkerr.ErrUnreasonableCount)
	}
	for i := 0; i < numAbs; i++ {
		if _, err := readVarint(buf, "absolute line info pc"); err != nil {
			return err
		}
		if _, err := readVarint(buf, "absolute line info line"); err != nil {
			return err
		}
	}
	return nil
}

// readMaybeString reads a length-prefixed string (varint L; L==0 is null,
// else L-1 payload bytes follow), decrypting the payload in place when
// decrypt is true. The length passed to the string cipher is the payload
// length (L-1, i.e. len(payload)), not L itself: the key derivation keys on
// how many bytes actually get XORed, matching the original decryptor.
func readMaybeString(buf *chunkbuf.Buffer, decrypt bool) (payload []byte, isNull bool, err error) {
	l, err := varint.Read(buf)
	if err != nil {
		return nil, false, fmt.Errorf("string length: %w", chunkerr.ErrVarintExhausted)
	}
	if l == 0 {
		return nil, true, nil
	}
	n := int(l) - 1
	data, ok := buf.Read(n)
	if !ok {
		return nil, false, fmt.Errorf("string payload: %w", io.ErrUnexpectedEOF)
	}
	if decrypt {
		if _, err := rc4.DecryptString(data, n); err != nil {
			return nil, false, fmt.Errorf("string payload: %w", err)
		}
	}
	return data, false, nil
}

func readVarint(buf *chunkbuf.Buffer, what string) (int, error) {
	n, err := varint.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("walk prototype: %s: %w", what, chunkerr.ErrVarintExhausted)
	}
	return int(n), nil
}
