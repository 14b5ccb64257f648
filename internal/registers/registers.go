// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package registers recomputes a function prototype's register high-water
// mark from its (reachable) instruction stream, and decides whether the
// prototype's declared maxstacksize needs patching to match.
//
// The tampering this format applies can leave maxstacksize too small for
// the code it actually runs, since it was computed against the original
// uninstrumented bytecode. A canonical Lua loader enforces maxstacksize as
// a hard VM stack allocation, so an undersized value would panic or corrupt
// memory at run time rather than simply misbehave.
package registers

import "shadowluac.dev/pkg/internal/instr"

// excludedFromScan lists opcodes the high-water scan skips entirely, even
// though their B field is otherwise a register operand: these carry an
// immediate or constant-table operand that the original analyser's opcode
// dispatch never routed through its register-counting cases.
var excludedFromScan = map[instr.OpCode]bool{
	instr.OpGetI:  true,
	instr.OpAddI:  true,
	instr.OpAddK:  true,
	instr.OpSubK:  true,
	instr.OpMulK:  true,
	instr.OpModK:  true,
	instr.OpPowK:  true,
	instr.OpDivK:  true,
	instr.OpIDivK: true,
	instr.OpBAndK: true,
	instr.OpBOrK:  true,
	instr.OpBXorK: true,
	instr.OpSHRI:  true,
	instr.OpSHLI:  true,
	instr.OpLE:    true,
}

// maxScannedRegister is the exclusive upper bound on a register value the
// scan will count: a field at or above it is ignored, matching the
// original's "&& X < 250" gate on every counted field.
const maxScannedRegister = 250

// MaxRegister scans every reachable instruction's A field (always a
// register operand, except for the opcode modes that don't carry one) and
// its B/C fields when [instr.OpCode.BKind]/[instr.OpCode.CKind] mark them as
// register operands rather than constant indices, immediates, or proto/jump
// references, ignoring opcodes in [excludedFromScan] and any field value
// that isn't below [maxScannedRegister]. It returns -1 if code has no
// register operands at all.
func MaxRegister(code []instr.Instruction, reachable []bool) int {
	max := -1
	for pc, i := range code {
		if reachable != nil && !reachable[pc] {
			continue
		}
		op := i.OpCode()
		if excludedFromScan[op] {
			continue
		}
		mode := op.ArgMode()
		if mode != instr.ModeAx && mode != instr.ModeJ {
			if a := int(i.ArgA()); a < maxScannedRegister && a > max {
				max = a
			}
		}
		if mode != instr.ModeABC {
			continue
		}
		if op.BKind() == instr.ArgRegister {
			if b := int(i.ArgB()); b < maxScannedRegister && b > max {
				max = b
			}
		}
		if op.CKind() == instr.ArgRegister {
			if c := int(i.ArgC()); c < maxScannedRegister && c > max {
				max = c
			}
		}
	}
	return max
}

// needsPatch and patchedMaxStack implement this format's maxstacksize
// repair rule: a prototype's declared stack is considered unsafe once the
// observed high-water register comes within 5 of it (not just once it's
// actually exceeded), since a few VM opcodes push transient values above
// the highest addressed register.
const patchMargin = 5

// PatchMaxStack reports whether current (the prototype's declared
// maxstacksize) needs to grow to safely cover maxReg (the value
// [MaxRegister] returned), and if so, the new value to install.
func PatchMaxStack(current, maxReg int) (patched int, needsPatch bool) {
	if maxReg < 0 {
		return current, false
	}
	if maxReg+patchMargin < current {
		return current, false
	}
	if maxReg >= 240 {
		return 250, true
	}
	return maxReg + 8, true
}
