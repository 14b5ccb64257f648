// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package repair

import (
	"testing"

	"shadowluac.dev/pkg/internal/instr"
)

func TestInstructionsLeavesValidOpcodeAlone(t *testing.T) {
	code := []instr.Instruction{
		instr.Instruction(0).WithOpCode(instr.OpMove),
	}
	results := Instructions(code, 1)
	if results[0].Changed() {
		t.Errorf("Changed() = true for an already-valid instruction")
	}
}

func TestInstructionsFlipsOutOfRangeOpcode(t *testing.T) {
	flippedFromModK := instr.OpCode(byte(instr.OpModK) ^ 0x40)
	code := []instr.Instruction{
		instr.Instruction(0).WithOpCode(flippedFromModK),
	}
	results := Instructions(code, 1)
	if !results[0].OpcodeFlipped {
		t.Error("OpcodeFlipped = false; want true")
	}
	if results[0].StillInvalid {
		t.Error("StillInvalid = true; want false")
	}
	if code[0].OpCode() != instr.OpModK {
		t.Errorf("opcode after repair = %v; want %v", code[0].OpCode(), instr.OpModK)
	}
}

func TestInstructionsFixesLoadKOutOfRange(t *testing.T) {
	i := instr.Instruction(0).WithOpCode(instr.OpLoadK).WithArgBx(10)
	code := []instr.Instruction{i}
	const numConsts = 4
	results := Instructions(code, numConsts)
	if !results[0].LoadKFixed {
		t.Fatal("LoadKFixed = false; want true")
	}
	if got := code[0].ArgBx(); got != 10%numConsts {
		t.Errorf("ArgBx() = %d; want %d", got, 10%numConsts)
	}
}

func TestInstructionsLeavesInRangeLoadKAlone(t *testing.T) {
	i := instr.Instruction(0).WithOpCode(instr.OpLoadK).WithArgBx(2)
	code := []instr.Instruction{i}
	results := Instructions(code, 4)
	if results[0].LoadKFixed {
		t.Error("LoadKFixed = true for an already in-range constant index")
	}
}

func TestInstructionsFixesJMPOutOfRange(t *testing.T) {
	const sizeCode = 5
	// pc=0, sJ=-3 would target pc+1+sJ = -2, out of range.
	i := instr.Instruction(0).WithOpCode(instr.OpJMP).WithSJ(-3)
	code := make([]instr.Instruction, sizeCode)
	code[0] = i
	results := Instructions(code, 0)
	if !results[0].JMPFixed {
		t.Fatal("JMPFixed = false; want true")
	}
	target := 0 + 1 + int(code[0].SJ())
	if target < 0 || target >= sizeCode {
		t.Errorf("repaired JMP target = %d; want in [0,%d)", target, sizeCode)
	}
}

func TestInstructionsLeavesInRangeJMPAlone(t *testing.T) {
	const sizeCode = 5
	i := instr.Instruction(0).WithOpCode(instr.OpJMP).WithSJ(1)
	code := make([]instr.Instruction, sizeCode)
	code[1] = i
	results := Instructions(code, 0)
	if results[1].JMPFixed {
		t.Error("JMPFixed = true for an already in-range jump target")
	}
}

func TestInstructionsStillInvalidSkipsFurtherFixes(t *testing.T) {
	// 127 XOR 0x40 = 63, which happens to be in range in this table, so pick
	// an opcode byte whose flip is still out of range: 200 XOR 0x40 = 136.
	code := []instr.Instruction{
		instr.Instruction(0).WithOpCode(instr.OpCode(200)),
	}
	results := Instructions(code, 1)
	if !results[0].OpcodeFlipped || !results[0].StillInvalid {
		t.Fatalf("results[0] = %+v; want OpcodeFlipped and StillInvalid both true", results[0])
	}
}
