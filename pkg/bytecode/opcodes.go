package bytecode

import "fmt"

// Opcode identifies an instruction's kind within the bytecode tree. The
// numbering is part of the persisted tuple form and must never change.
type Opcode uint8

const (
	OpText           Opcode = 0
	OpVariable       Opcode = 1
	OpSection        Opcode = 2
	OpEnd            Opcode = 3
	OpRepeated       Opcode = 4
	OpPredicate      Opcode = 5
	OpBindVar        Opcode = 6
	OpOrPredicate    Opcode = 7
	OpIf             Opcode = 8
	OpInject         Opcode = 9
	OpMacro          Opcode = 10
	OpComment        Opcode = 11
	OpMetaLeft       Opcode = 12
	OpMetaRight      Opcode = 13
	OpNewline        Opcode = 14
	OpSpace          Opcode = 15
	OpTab            Opcode = 16
	OpRoot           Opcode = 17
	OpEOF            Opcode = 18
	OpAlternatesWith Opcode = 19
	OpAtom           Opcode = 20
	OpCtxVar         Opcode = 21
	OpStruct         Opcode = 22
	OpEval           Opcode = 23
	OpInclude        Opcode = 24

	// NumOpcodes bounds the opcode space; dispatch tables are sized by it.
	NumOpcodes = 25
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name    string // Human-readable name
	Keyword string // Template keyword that produces it, "" if none
	Block   bool   // Opens a scope closed by {.end}
}

var opcodeInfoTable = [NumOpcodes]OpcodeInfo{
	OpText:           {"TEXT", "", false},
	OpVariable:       {"VARIABLE", "", false},
	OpSection:        {"SECTION", "section", true},
	OpEnd:            {"END", "end", false},
	OpRepeated:       {"REPEATED", "repeated section", true},
	OpPredicate:      {"PREDICATE", "", true},
	OpBindVar:        {"BINDVAR", "var", false},
	OpOrPredicate:    {"OR_PREDICATE", "or", false},
	OpIf:             {"IF", "if", true},
	OpInject:         {"INJECT", "inject", false},
	OpMacro:          {"MACRO", "macro", true},
	OpComment:        {"COMMENT", "", false},
	OpMetaLeft:       {"META_LEFT", "meta-left", false},
	OpMetaRight:      {"META_RIGHT", "meta-right", false},
	OpNewline:        {"NEWLINE", "newline", false},
	OpSpace:          {"SPACE", "space", false},
	OpTab:            {"TAB", "tab", false},
	OpRoot:           {"ROOT", "", false},
	OpEOF:            {"EOF", "", false},
	OpAlternatesWith: {"ALTERNATES_WITH", "alternates with", false},
	OpAtom:           {"ATOM", "", false},
	OpCtxVar:         {"CTXVAR", "ctx", false},
	OpStruct:         {"STRUCT", "", false},
	OpEval:           {"EVAL", "eval", false},
	OpInclude:        {"INCLUDE", "include", false},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo named "UNKNOWN(n)" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if op.Valid() {
		return opcodeInfoTable[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(%d)", uint8(op))}
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op < NumOpcodes
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsBlock reports whether op opens a scope that {.end} closes.
func (op Opcode) IsBlock() bool {
	return GetOpcodeInfo(op).Block
}

// AllOpcodes returns every defined opcode in numeric order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, NumOpcodes)
	for i := range ops {
		ops[i] = Opcode(i)
	}
	return ops
}

// Operator is one entry of an IF instruction's operator sequence.
type Operator uint8

const (
	LogicalOr  Operator = 0
	LogicalAnd Operator = 1
)

func (o Operator) String() string {
	if o == LogicalAnd {
		return "&&"
	}
	return "||"
}
