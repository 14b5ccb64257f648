// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package reach computes which instructions in a repaired code array are
// actually reachable from pc 0, by walking the per-opcode successor model a
// stack-machine interpreter would follow rather than assuming straight-line
// fallthrough.
//
// This matters because the tampering [repair] undoes can leave behind
// instructions that decode cleanly but were never meant to execute — holes
// the original compiler's dead-code elimination would have removed, now
// exposed by a JMP or LOADK fix landing somewhere it shouldn't. Reachability
// is reported, not trimmed: per the format's observed behavior, disabled
// code is left in the stream rather than deleted, since deleting it would
// shift every later jump target.
package reach

import "shadowluac.dev/pkg/internal/instr"

// Analyze walks code from pc 0 and returns a reachable[pc] bitmap the same
// length as code.
func Analyze(code []instr.Instruction) []bool {
	reachable := make([]bool, len(code))
	if len(code) == 0 {
		return reachable
	}

	queue := []int{0}
	for len(queue) > 0 {
		pc := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if pc < 0 || pc >= len(code) || reachable[pc] {
			continue
		}
		reachable[pc] = true
		for _, next := range successors(code, pc) {
			if next >= 0 && next < len(code) && !reachable[next] {
				queue = append(queue, next)
			}
		}
	}
	return reachable
}

// successors returns the set of instruction indices that may execute
// immediately after code[pc], per this format's control-flow model.
func successors(code []instr.Instruction, pc int) []int {
	i := code[pc]
	switch i.OpCode() {
	case instr.OpReturn, instr.OpReturn0, instr.OpReturn1:
		return nil

	case instr.OpJMP:
		return []int{pc + 1 + int(i.SJ())}

	case instr.OpForPrep, instr.OpTForPrep:
		return []int{pc + 1 + int(i.SignedBx18())}

	case instr.OpForLoop, instr.OpTForLoop:
		return []int{pc + 1 + int(i.SignedBx()), pc + 1}

	case instr.OpGameCustom:
		return []int{pc + 1}

	case instr.OpMMBin, instr.OpMMBinI, instr.OpMMBinK, instr.OpSetList, instr.OpSelf:
		if followedByVarargPrep(code, pc) {
			return []int{pc + 1, pc + 2}
		}
		return []int{pc + 1}

	default:
		if i.OpCode().IsTest() || i.OpCode() == instr.OpLFalseSkip {
			return []int{pc + 1, pc + 2}
		}
		return []int{pc + 1}
	}
}

func followedByVarargPrep(code []instr.Instruction, pc int) bool {
	next := pc + 1
	return next < len(code) && code[next].OpCode() == instr.OpVarargPrep
}

// Holes returns the indices of instructions that decode without error but
// are unreachable from pc 0, in ascending order.
func Holes(reachable []bool) []int {
	var holes []int
	for pc, ok := range reachable {
		if !ok {
			holes = append(holes, pc)
		}
	}
	return holes
}
