// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package reach

import (
	"testing"

	"shadowluac.dev/pkg/internal/instr"
)

func TestAnalyzeStraightLine(t *testing.T) {
	code := []instr.Instruction{
		instr.Instruction(0).WithOpCode(instr.OpMove),
		instr.Instruction(0).WithOpCode(instr.OpMove),
		instr.Instruction(0).WithOpCode(instr.OpReturn0),
	}
	reachable := Analyze(code)
	for pc, ok := range reachable {
		if !ok {
			t.Errorf("pc %d not reachable; want reachable", pc)
		}
	}
}

func TestAnalyzeJMPSkipsDeadCode(t *testing.T) {
	code := []instr.Instruction{
		instr.Instruction(0).WithOpCode(instr.OpJMP).WithSJ(1), // jumps to pc 2
		instr.Instruction(0).WithOpCode(instr.OpMove),          // dead
		instr.Instruction(0).WithOpCode(instr.OpReturn0),
	}
	reachable := Analyze(code)
	if !reachable[0] || reachable[1] || !reachable[2] {
		t.Errorf("reachable = %v; want [true false true]", reachable)
	}
	holes := Holes(reachable)
	if len(holes) != 1 || holes[0] != 1 {
		t.Errorf("Holes() = %v; want [1]", holes)
	}
}

func TestAnalyzeTestFallsThroughBothTargets(t *testing.T) {
	code := []instr.Instruction{
		instr.Instruction(0).WithOpCode(instr.OpEQ),
		instr.Instruction(0).WithOpCode(instr.OpJMP).WithSJ(0), // pc 1 -> pc 2
		instr.Instruction(0).WithOpCode(instr.OpReturn0),       // pc 2, also reached via pc 0 -> pc 2
	}
	reachable := Analyze(code)
	for pc, ok := range reachable {
		if !ok {
			t.Errorf("pc %d not reachable; want all reachable for a TEST instruction", pc)
		}
	}
}

func TestAnalyzeForLoopBacktargetAndFallthrough(t *testing.T) {
	code := []instr.Instruction{
		instr.Instruction(0).WithOpCode(instr.OpForLoop).WithSignedBx(-1), // loops back to pc 0
		instr.Instruction(0).WithOpCode(instr.OpReturn0),
	}
	reachable := Analyze(code)
	if !reachable[0] || !reachable[1] {
		t.Errorf("reachable = %v; want both reachable", reachable)
	}
}

func TestAnalyzeMMBinSkipsExtraArgOnlyWhenFollowedByVarargPrep(t *testing.T) {
	withPrep := []instr.Instruction{
		instr.Instruction(0).WithOpCode(instr.OpMMBin),
		instr.Instruction(0).WithOpCode(instr.OpVarargPrep),
		instr.Instruction(0).WithOpCode(instr.OpReturn0),
	}
	reachable := Analyze(withPrep)
	for pc, ok := range reachable {
		if !ok {
			t.Errorf("withPrep: pc %d not reachable", pc)
		}
	}

	withoutPrep := []instr.Instruction{
		instr.Instruction(0).WithOpCode(instr.OpMMBin),
		instr.Instruction(0).WithOpCode(instr.OpReturn0), // not VARARGPREP and ends the flow, so pc 2 is unreachable
		instr.Instruction(0).WithOpCode(instr.OpReturn0),
	}
	reachable = Analyze(withoutPrep)
	if !reachable[0] || !reachable[1] || reachable[2] {
		t.Errorf("withoutPrep reachable = %v; want [true true false]", reachable)
	}
}

func TestAnalyzeEmptyCode(t *testing.T) {
	if got := Analyze(nil); len(got) != 0 {
		t.Errorf("Analyze(nil) = %v; want empty", got)
	}
}
