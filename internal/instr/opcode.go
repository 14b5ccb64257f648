// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package instr

// OpCode identifies an instruction's operation. Valid values are [0,
// maxOpCode].
type OpCode uint8

// ArgMode describes how an instruction's non-A fields are laid out.
type ArgMode int

const (
	// ModeABC instructions use three small fields, A, B, and C.
	ModeABC ArgMode = iota
	// ModeABx instructions use A and an unsigned 17-bit Bx.
	ModeABx
	// ModeAsBx instructions use A and a signed 17-bit Bx.
	ModeAsBx
	// ModeAx instructions use a single unsigned 25-bit Ax (EXTRAARG).
	ModeAx
	// ModeJ instructions use a single signed 25-bit sJ (JMP).
	ModeJ
)

// ArgKind describes what an ABC-mode instruction's B or C field means, which
// the register analyser (package registers) needs to tell an operand
// register apart from a constant-table index or an immediate value.
type ArgKind int

const (
	// ArgUnused means the field carries no meaningful value.
	ArgUnused ArgKind = iota
	// ArgRegister means the field is a register index.
	ArgRegister
	// ArgOther means the field is a constant index, immediate, proto
	// index, or jump distance rather than a register.
	ArgOther
)

// Defined [OpCode] values for the game's Lua 5.4 variant. The bit layout is
// upstream Lua 5.4's; the numbering differs from upstream starting at
// [OpGameCustom], which this format inserts where upstream Lua places CLOSE,
// shifting CLOSE and everything after it up by one slot.
const (
	OpMove       OpCode = 0
	OpLoadI      OpCode = 1
	OpLoadF      OpCode = 2
	OpLoadK      OpCode = 3
	OpLoadKX     OpCode = 4
	OpLoadFalse  OpCode = 5
	OpLFalseSkip OpCode = 6
	OpLoadTrue   OpCode = 7
	OpLoadNil    OpCode = 8
	OpGetUpval   OpCode = 9
	OpSetUpval   OpCode = 10

	OpGetTabUp OpCode = 11
	OpGetTable OpCode = 12
	OpGetI     OpCode = 13
	OpGetField OpCode = 14

	OpSetTabUp OpCode = 15
	OpSetTable OpCode = 16
	OpSetI     OpCode = 17
	OpSetField OpCode = 18

	OpNewTable OpCode = 19
	OpSelf     OpCode = 20

	OpAddI OpCode = 21

	OpAddK  OpCode = 22
	OpSubK  OpCode = 23
	OpMulK  OpCode = 24
	OpModK  OpCode = 25
	OpPowK  OpCode = 26
	OpDivK  OpCode = 27
	OpIDivK OpCode = 28

	OpBAndK OpCode = 29
	OpBOrK  OpCode = 30
	OpBXorK OpCode = 31

	OpSHRI OpCode = 32
	OpSHLI OpCode = 33

	OpAdd  OpCode = 34
	OpSub  OpCode = 35
	OpMul  OpCode = 36
	OpMod  OpCode = 37
	OpPow  OpCode = 38
	OpDiv  OpCode = 39
	OpIDiv OpCode = 40

	OpBAnd OpCode = 41
	OpBOr  OpCode = 42
	OpBXor OpCode = 43
	OpSHL  OpCode = 44
	OpSHR  OpCode = 45

	OpMMBin  OpCode = 46
	OpMMBinI OpCode = 47
	OpMMBinK OpCode = 48

	OpUNM    OpCode = 49
	OpBNot   OpCode = 50
	OpNot    OpCode = 51
	OpLen    OpCode = 52
	OpConcat OpCode = 53

	// OpGameCustom is the format's repurposing of upstream Lua's CLOSE
	// opcode slot. Its original semantics are unknown; spec treats it as
	// a non-branching fall-through and requires it be preserved byte for
	// byte (see [OpCode.ToStock], which leaves it unchanged).
	OpGameCustom OpCode = 54
	OpClose      OpCode = 55
	OpTBC        OpCode = 56
	OpJMP        OpCode = 57

	OpEQ  OpCode = 58
	OpLT  OpCode = 59
	OpLE  OpCode = 60
	OpEQK OpCode = 61
	OpEQI OpCode = 62
	OpLTI OpCode = 63
	OpLEI OpCode = 64
	OpGTI OpCode = 65
	OpGEI OpCode = 66

	OpTest    OpCode = 67
	OpTestSet OpCode = 68

	OpCall     OpCode = 69
	OpTailCall OpCode = 70

	OpReturn  OpCode = 71
	OpReturn0 OpCode = 72
	OpReturn1 OpCode = 73

	OpForLoop  OpCode = 74
	OpForPrep  OpCode = 75
	OpTForPrep OpCode = 76
	OpTForCall OpCode = 77
	OpTForLoop OpCode = 78

	OpSetList OpCode = 79
	OpClosure OpCode = 80
	OpVararg  OpCode = 81

	// OpVarargPrep doubles, when it appears immediately after certain
	// opcodes, as an EXTRAARG2 marker (see package reach).
	OpVarargPrep OpCode = 82
	OpExtraArg   OpCode = 83

	maxOpCode = OpExtraArg
)

type opInfo struct {
	name   string
	mode   ArgMode
	bKind  ArgKind
	cKind  ArgKind
	isTest bool
}

var opTable = [maxOpCode + 1]opInfo{
	OpMove:       {"MOVE", ModeABC, ArgRegister, ArgUnused, false},
	OpLoadI:      {"LOADI", ModeAsBx, ArgUnused, ArgUnused, false},
	OpLoadF:      {"LOADF", ModeAsBx, ArgUnused, ArgUnused, false},
	OpLoadK:      {"LOADK", ModeABx, ArgUnused, ArgUnused, false},
	OpLoadKX:     {"LOADKX", ModeABx, ArgUnused, ArgUnused, false},
	OpLoadFalse:  {"LOADFALSE", ModeABC, ArgUnused, ArgUnused, false},
	OpLFalseSkip: {"LFALSESKIP", ModeABC, ArgUnused, ArgUnused, false},
	OpLoadTrue:   {"LOADTRUE", ModeABC, ArgUnused, ArgUnused, false},
	OpLoadNil:    {"LOADNIL", ModeABC, ArgUnused, ArgUnused, false},
	OpGetUpval:   {"GETUPVAL", ModeABC, ArgUnused, ArgUnused, false},
	OpSetUpval:   {"SETUPVAL", ModeABC, ArgUnused, ArgUnused, false},

	OpGetTabUp: {"GETTABUP", ModeABC, ArgUnused, ArgOther, false},
	OpGetTable: {"GETTABLE", ModeABC, ArgRegister, ArgRegister, false},
	OpGetI:     {"GETI", ModeABC, ArgRegister, ArgOther, false},
	OpGetField: {"GETFIELD", ModeABC, ArgRegister, ArgOther, false},

	OpSetTabUp: {"SETTABUP", ModeABC, ArgOther, ArgOther, false},
	OpSetTable: {"SETTABLE", ModeABC, ArgRegister, ArgOther, false},
	OpSetI:     {"SETI", ModeABC, ArgOther, ArgOther, false},
	OpSetField: {"SETFIELD", ModeABC, ArgOther, ArgOther, false},

	OpNewTable: {"NEWTABLE", ModeABC, ArgUnused, ArgUnused, false},
	OpSelf:     {"SELF", ModeABC, ArgRegister, ArgOther, false},

	OpAddI: {"ADDI", ModeABC, ArgRegister, ArgOther, false},

	OpAddK:  {"ADDK", ModeABC, ArgRegister, ArgOther, false},
	OpSubK:  {"SUBK", ModeABC, ArgRegister, ArgOther, false},
	OpMulK:  {"MULK", ModeABC, ArgRegister, ArgOther, false},
	OpModK:  {"MODK", ModeABC, ArgRegister, ArgOther, false},
	OpPowK:  {"POWK", ModeABC, ArgRegister, ArgOther, false},
	OpDivK:  {"DIVK", ModeABC, ArgRegister, ArgOther, false},
	OpIDivK: {"IDIVK", ModeABC, ArgRegister, ArgOther, false},

	OpBAndK: {"BANDK", ModeABC, ArgRegister, ArgOther, false},
	OpBOrK:  {"BORK", ModeABC, ArgRegister, ArgOther, false},
	OpBXorK: {"BXORK", ModeABC, ArgRegister, ArgOther, false},

	OpSHRI: {"SHRI", ModeABC, ArgRegister, ArgOther, false},
	OpSHLI: {"SHLI", ModeABC, ArgRegister, ArgOther, false},

	OpAdd:  {"ADD", ModeABC, ArgRegister, ArgRegister, false},
	OpSub:  {"SUB", ModeABC, ArgRegister, ArgRegister, false},
	OpMul:  {"MUL", ModeABC, ArgRegister, ArgRegister, false},
	OpMod:  {"MOD", ModeABC, ArgRegister, ArgRegister, false},
	OpPow:  {"POW", ModeABC, ArgRegister, ArgRegister, false},
	OpDiv:  {"DIV", ModeABC, ArgRegister, ArgRegister, false},
	OpIDiv: {"IDIV", ModeABC, ArgRegister, ArgRegister, false},

	OpBAnd: {"BAND", ModeABC, ArgRegister, ArgRegister, false},
	OpBOr:  {"BOR", ModeABC, ArgRegister, ArgRegister, false},
	OpBXor: {"BXOR", ModeABC, ArgRegister, ArgRegister, false},
	OpSHL:  {"SHL", ModeABC, ArgRegister, ArgRegister, false},
	OpSHR:  {"SHR", ModeABC, ArgRegister, ArgRegister, false},

	OpMMBin:  {"MMBIN", ModeABC, ArgRegister, ArgOther, false},
	OpMMBinI: {"MMBINI", ModeABC, ArgOther, ArgOther, false},
	OpMMBinK: {"MMBINK", ModeABC, ArgOther, ArgOther, false},

	OpUNM:    {"UNM", ModeABC, ArgRegister, ArgUnused, false},
	OpBNot:   {"BNOT", ModeABC, ArgRegister, ArgUnused, false},
	OpNot:    {"NOT", ModeABC, ArgRegister, ArgUnused, false},
	OpLen:    {"LEN", ModeABC, ArgRegister, ArgUnused, false},
	OpConcat: {"CONCAT", ModeABC, ArgUnused, ArgUnused, false},

	OpGameCustom: {"GAME_CUSTOM", ModeABC, ArgUnused, ArgUnused, false},
	OpClose:      {"CLOSE", ModeABC, ArgUnused, ArgUnused, false},
	OpTBC:        {"TBC", ModeABC, ArgUnused, ArgUnused, false},
	OpJMP:        {"JMP", ModeJ, ArgUnused, ArgUnused, false},

	OpEQ:  {"EQ", ModeABC, ArgRegister, ArgUnused, true},
	OpLT:  {"LT", ModeABC, ArgRegister, ArgUnused, true},
	OpLE:  {"LE", ModeABC, ArgRegister, ArgUnused, true},
	OpEQK: {"EQK", ModeABC, ArgOther, ArgUnused, true},
	OpEQI: {"EQI", ModeABC, ArgOther, ArgUnused, true},
	OpLTI: {"LTI", ModeABC, ArgOther, ArgUnused, true},
	OpLEI: {"LEI", ModeABC, ArgOther, ArgUnused, true},
	OpGTI: {"GTI", ModeABC, ArgOther, ArgUnused, true},
	OpGEI: {"GEI", ModeABC, ArgOther, ArgUnused, true},

	OpTest:    {"TEST", ModeABC, ArgUnused, ArgUnused, true},
	OpTestSet: {"TESTSET", ModeABC, ArgRegister, ArgUnused, true},

	OpCall:     {"CALL", ModeABC, ArgUnused, ArgUnused, false},
	OpTailCall: {"TAILCALL", ModeABC, ArgUnused, ArgUnused, false},

	OpReturn:  {"RETURN", ModeABC, ArgUnused, ArgUnused, false},
	OpReturn0: {"RETURN0", ModeABC, ArgUnused, ArgUnused, false},
	OpReturn1: {"RETURN1", ModeABC, ArgUnused, ArgUnused, false},

	OpForLoop:  {"FORLOOP", ModeABx, ArgUnused, ArgUnused, false},
	OpForPrep:  {"FORPREP", ModeABx, ArgUnused, ArgUnused, false},
	OpTForPrep: {"TFORPREP", ModeABx, ArgUnused, ArgUnused, false},
	OpTForCall: {"TFORCALL", ModeABC, ArgUnused, ArgOther, false},
	OpTForLoop: {"TFORLOOP", ModeABx, ArgUnused, ArgUnused, false},

	OpSetList: {"SETLIST", ModeABC, ArgUnused, ArgOther, false},
	OpClosure: {"CLOSURE", ModeABx, ArgUnused, ArgUnused, false},
	OpVararg:  {"VARARG", ModeABC, ArgUnused, ArgUnused, false},

	OpVarargPrep: {"VARARGPREP", ModeABC, ArgUnused, ArgUnused, false},
	OpExtraArg:   {"EXTRAARG", ModeAx, ArgUnused, ArgUnused, false},
}

// valid reports whether op is a recognized opcode.
func (op OpCode) valid() bool {
	return op <= maxOpCode
}

func (op OpCode) info() opInfo {
	if !op.valid() {
		return opInfo{name: "?"}
	}
	return opTable[op]
}

// ArgMode returns op's argument layout.
func (op OpCode) ArgMode() ArgMode { return op.info().mode }

// BKind and CKind report what op's B and C fields mean; see [ArgKind].
func (op OpCode) BKind() ArgKind { return op.info().bKind }
func (op OpCode) CKind() ArgKind { return op.info().cKind }

// IsTest reports whether op is a conditional "test" instruction, which
// falls through to pc+1 or pc+2 depending on its k flag.
func (op OpCode) IsTest() bool { return op.info().isTest }

func (op OpCode) String() string {
	if !op.valid() {
		return "OpCode(?)"
	}
	return opTable[op].name
}

// MaxOpCode is the highest valid opcode value in this format's 84-entry
// table.
const MaxOpCode = maxOpCode

// ToStock undoes the GAME_CUSTOM insertion, converting one of this format's
// opcodes back to the numbering upstream Lua 5.4 uses: every opcode above
// [OpGameCustom]'s slot shifts down by one. OpGameCustom itself maps to
// upstream's CLOSE slot unchanged, which is the open ambiguity noted where
// it's defined; ToStock does not try to resolve it.
func (op OpCode) ToStock() OpCode {
	if op > OpGameCustom {
		return op - 1
	}
	return op
}
