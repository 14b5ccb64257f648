// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package repair undoes the three forms of opcode-level tampering the
// game's toolchain applies on top of RC4 encryption: an out-of-range opcode
// byte, a LOADK constant index that no longer fits the constants table, and
// a JMP offset that no longer lands inside the function's code.
package repair

import "shadowluac.dev/pkg/internal/instr"

// Result reports what, if anything, [Instructions] changed about one
// instruction word.
type Result struct {
	OpcodeFlipped bool
	LoadKFixed    bool
	JMPFixed      bool
	// StillInvalid is set when an opcode remained out of range even after
	// the flip, which callers should treat as a decode failure for this
	// function rather than silently pressing on.
	StillInvalid bool
}

// Changed reports whether Instructions modified the instruction at all.
func (r Result) Changed() bool {
	return r.OpcodeFlipped || r.LoadKFixed || r.JMPFixed
}

// Instructions repairs code in place, given the function's constants-table
// size (for LOADK) and its instruction count (for JMP range wrapping). It
// returns one Result per instruction, in order.
func Instructions(code []instr.Instruction, numConsts int) []Result {
	results := make([]Result, len(code))
	for pc := range code {
		code[pc], results[pc] = one(code[pc], pc, len(code), numConsts)
	}
	return results
}

func one(i instr.Instruction, pc, sizeCode, numConsts int) (instr.Instruction, Result) {
	var r Result

	normalized, changed, stillInvalid := i.Normalize()
	if changed {
		r.OpcodeFlipped = true
		r.StillInvalid = stillInvalid
		i = normalized
	}
	if r.StillInvalid {
		return i, r
	}

	switch i.OpCode() {
	case instr.OpLoadK:
		if numConsts > 0 {
			if fixed, ok := fixLoadK(i, numConsts); ok {
				i = fixed
				r.LoadKFixed = true
			}
		}
	case instr.OpJMP:
		if sizeCode > 0 {
			if fixed, ok := fixJMP(i, pc, sizeCode); ok {
				i = fixed
				r.JMPFixed = true
			}
		}
	}
	return i, r
}

// fixLoadK wraps a LOADK instruction's constant index back into
// [0,numConsts) by taking it modulo the constants-table size. ok is false
// when the index was already in range, so callers don't record a spurious
// fix.
func fixLoadK(i instr.Instruction, numConsts int) (instr.Instruction, bool) {
	bx := i.ArgBx()
	if int(bx) < numConsts {
		return i, false
	}
	return i.WithArgBx(bx % uint32(numConsts)), true
}

// fixJMP wraps a JMP instruction's signed offset back into a target that
// lands inside [0,sizeCode), shifting by +/- sizeCode repeatedly (the
// tampering adds or subtracts a whole multiple of the function's
// instruction count). ok is false when the target was already in range.
func fixJMP(i instr.Instruction, pc, sizeCode int) (instr.Instruction, bool) {
	sj := int(i.SJ())
	target := pc + 1 + sj
	if target >= 0 && target < sizeCode {
		return i, false
	}
	for target < 0 {
		sj += sizeCode
		target += sizeCode
	}
	for target >= sizeCode {
		sj -= sizeCode
		target -= sizeCode
	}
	return i.WithSJ(int32(sj)), true
}
