// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package instr decodes and patches the 32-bit instruction words of the
// game's Lua 5.4 variant: bit-field accessors, the opcode table (84 entries,
// opcode 54 repurposed as [OpGameCustom]), and the argument-mode metadata the
// register analyser needs to tell a register field from a constant index, an
// immediate, or a jump offset.
//
// The bit layout matches upstream Lua 5.4's instruction format; see
// lopcodes.h in the Lua sources. What differs here is the opcode numbering:
// this format inserts [OpGameCustom] at the slot upstream Lua gives to CLOSE,
// which shifts every opcode from CLOSE onward up by one.
package instr

import "fmt"

// Instruction is a single 32-bit Lua 5.4 (or game-variant) VM instruction.
type Instruction uint32

const (
	sizeOp = 7
	posOp  = 0
	maskOp = 1<<sizeOp - 1

	posA   = posOp + sizeOp // 7
	sizeA  = 8
	maskA  = 1<<sizeA - 1

	posK = posA + sizeA // 15

	posB  = posK + 1 // 16
	sizeB = 8
	maskB = 1<<sizeB - 1

	posC  = posB + sizeB // 24
	sizeC = 8
	maskC = 1<<sizeC - 1

	posBx  = posK // 15
	sizeBx = sizeB + 1 + sizeC // 17
	maskBx = 1<<sizeBx - 1
	offsetBx = maskBx >> 1 // 65535

	sizeBx18 = sizeBx + 1 // 18, used by FORPREP/TFORPREP
	maskBx18 = 1<<sizeBx18 - 1
	offsetBx18 = maskBx18 >> 1

	posAx  = posA // 7
	sizeAx = 32 - posAx // 25
	maskAx = 1<<sizeAx - 1

	posJ  = posA // 7
	sizeJ = sizeAx
	maskJ = 1<<sizeJ - 1
)

// OpCode returns the instruction's opcode.
func (i Instruction) OpCode() OpCode {
	return OpCode(i & maskOp)
}

// WithOpCode returns a copy of i with its opcode field replaced.
func (i Instruction) WithOpCode(op OpCode) Instruction {
	return i&^maskOp | Instruction(op)&maskOp
}

// ArgA returns the instruction's A field (always present).
func (i Instruction) ArgA() uint8 {
	return uint8(i >> posA)
}

// K returns the instruction's k flag.
func (i Instruction) K() bool {
	return i>>posK&1 != 0
}

// ArgB returns the instruction's B field, valid for [ModeABC] instructions.
func (i Instruction) ArgB() uint8 {
	return uint8(i >> posB)
}

// ArgC returns the instruction's C field, valid for [ModeABC] instructions.
func (i Instruction) ArgC() uint8 {
	return uint8(i >> posC)
}

// SignedB interprets the B field as a signed byte (used by ADDI/SHRI/SHLI as
// an immediate).
func (i Instruction) SignedB() int8 {
	return int8(i.ArgB())
}

// SignedC interprets the C field as a signed, 127-offset byte (used by
// MMBINI as an immediate).
func (i Instruction) SignedC() int32 {
	return int32(i.ArgC()) - 127
}

// ArgBx returns the instruction's unsigned 17-bit Bx field, valid for
// [ModeABx] instructions (e.g. LOADK's constant index).
func (i Instruction) ArgBx() uint32 {
	return uint32(i>>posBx) & maskBx
}

// WithArgBx returns a copy of i with its Bx field replaced, masked to 17
// bits.
func (i Instruction) WithArgBx(bx uint32) Instruction {
	const mask = Instruction(maskBx) << posBx
	return i&^mask | Instruction(bx&maskBx)<<posBx
}

// SignedBx returns the instruction's signed Bx field, valid for [ModeAsBx]
// instructions.
func (i Instruction) SignedBx() int32 {
	return int32(i.ArgBx()) - offsetBx
}

// WithSignedBx returns a copy of i with its Bx field replaced by sbx+offsetBx.
func (i Instruction) WithSignedBx(sbx int32) Instruction {
	return i.WithArgBx(uint32(sbx + offsetBx))
}

// ArgBx18 returns the instruction's unsigned 18-bit Bx field used by
// FORPREP/TFORPREP, which overlaps the k-bit position.
func (i Instruction) ArgBx18() uint32 {
	return uint32(i>>posBx) & maskBx18
}

// SignedBx18 returns the instruction's signed 18-bit Bx field.
func (i Instruction) SignedBx18() int32 {
	return int32(i.ArgBx18()) - offsetBx18
}

// ArgAx returns the instruction's unsigned 25-bit Ax field, valid for
// [ModeAx] (EXTRAARG) instructions.
func (i Instruction) ArgAx() uint32 {
	return uint32(i>>posAx) & maskAx
}

// SJ returns the instruction's signed 25-bit jump offset, valid for [ModeJ]
// (JMP) instructions. Unlike the other fields, SJ is computed with an
// arithmetic shift so the sign bit of the 25-bit field propagates.
func (i Instruction) SJ() int32 {
	return int32(i) >> posJ
}

// WithSJ returns a copy of i with its sJ field replaced, wrapped to 25 bits.
func (i Instruction) WithSJ(sj int32) Instruction {
	const mask = Instruction(maskJ) << posJ
	return i&^mask | Instruction(uint32(sj)&maskJ)<<posJ
}

// Normalize applies the one opcode-range repair spec'd for this format: if
// the raw opcode byte is out of the valid [0,maxOpCode] range, it is XORed
// with 0x40 to "un-flip" a single known obfuscation bit. Normalize reports
// whether it changed the opcode, and whether the result (after the possible
// flip) is still out of range.
func (i Instruction) Normalize() (out Instruction, changed, stillInvalid bool) {
	op := i.OpCode()
	if op <= maxOpCode {
		return i, false, false
	}
	flipped := OpCode(byte(op) ^ 0x40)
	out = i.WithOpCode(flipped)
	return out, true, flipped > maxOpCode
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s A=%d k=%v B=%d C=%d Bx=%d sBx=%d", i.OpCode(), i.ArgA(), i.K(), i.ArgB(), i.ArgC(), i.ArgBx(), i.SignedBx())
}
