package compiler

import (
	"fmt"

	"github.com/chazu/stencil/pkg/bytecode"
	"github.com/chazu/stencil/pkg/diag"
)

// ---------------------------------------------------------------------------
// Assembler: grammar state machine
// ---------------------------------------------------------------------------

type state uint8

const (
	stateRoot state = iota
	stateSection
	stateRepeated
	stateRepeatedOr
	stateIf
	stateIfOr
	statePredicate
	statePredicateOr
	stateMacro
	stateEOF
)

var stateNames = [...]string{
	stateRoot:        "ROOT",
	stateSection:     "SECTION",
	stateRepeated:    "REPEATED",
	stateRepeatedOr:  "REPEATED_OR",
	stateIf:          "IF",
	stateIfOr:        "IF_OR",
	statePredicate:   "PREDICATE",
	statePredicateOr: "PREDICATE_OR",
	stateMacro:       "MACRO",
	stateEOF:         "EOF",
}

func (s state) String() string { return stateNames[s] }

// scope is one open block. block points at the child list currently being
// appended to; alt points at the Alternative slot the next {.or} fills.
type scope struct {
	state         state
	owner         bytecode.Instruction
	block         *[]bytecode.Instruction
	alt           *bytecode.Instruction
	unconditional bool
	altWith       bool
	line, col     int
}

// Assembler accepts a stream of instructions and builds the nested tree,
// validating block structure as it goes. Grammar violations are collected;
// the tree is always the best effort over everything accepted.
type Assembler struct {
	root   *bytecode.Root
	stack  []*scope
	errors []diag.Error
	eof    bool
}

// NewAssembler returns an assembler positioned at ROOT.
func NewAssembler() *Assembler {
	root := bytecode.NewRoot()
	return &Assembler{
		root:  root,
		stack: []*scope{{state: stateRoot, owner: root, block: &root.Block}},
	}
}

// Code returns the assembled tree.
func (a *Assembler) Code() *bytecode.Root { return a.root }

// Errors returns grammar errors in emission order.
func (a *Assembler) Errors() []diag.Error { return a.errors }

// Complete reports whether EOF was reached with every block closed and no
// errors recorded.
func (a *Assembler) Complete() bool {
	return a.eof && len(a.stack) == 1 && len(a.errors) == 0
}

func (a *Assembler) top() *scope { return a.stack[len(a.stack)-1] }

func (a *Assembler) state() state {
	if a.eof {
		return stateEOF
	}
	return a.top().state
}

func (a *Assembler) fail(line, col int, format string, args ...any) {
	a.errors = append(a.errors, diag.New(diag.Assembler, format, args...).At(line, col))
}

func (a *Assembler) push(s *scope) {
	a.stack = append(a.stack, s)
}

// pop closes the innermost block. Popping ROOT is caller misuse.
func (a *Assembler) pop() *scope {
	if len(a.stack) <= 1 {
		panic("compiler: assembler pop on empty scope stack")
	}
	s := a.top()
	a.stack = a.stack[:len(a.stack)-1]
	if s.alt != nil && *s.alt == nil {
		*s.alt = &bytecode.End{}
	}
	return s
}

// Accept feeds one instruction with no source position.
func (a *Assembler) Accept(inst bytecode.Instruction) {
	a.AcceptAt(inst, 0, 0)
}

// AcceptAt feeds one instruction found at line:col of the source.
func (a *Assembler) AcceptAt(inst bytecode.Instruction, line, col int) {
	if inst == nil {
		panic("compiler: assembler given nil instruction")
	}
	op := inst.Opcode()
	if op == bytecode.OpRoot {
		panic("compiler: assembler given ROOT instruction")
	}
	if a.eof {
		a.fail(line, col, "transition from EOF on %s", op)
		return
	}

	cur := a.top()
	switch op {
	case bytecode.OpEOF:
		a.finish(line, col)

	case bytecode.OpEnd:
		if cur.state == stateRoot {
			a.fail(line, col, "%s not allowed at root", op)
			return
		}
		a.pop()

	case bytecode.OpOrPredicate:
		a.acceptOr(inst.(*bytecode.OrPredicate), cur, line, col)

	case bytecode.OpAlternatesWith:
		switch {
		case cur.state == stateRoot:
			a.fail(line, col, "%s not allowed at root", op)
		case cur.state == stateRepeatedOr:
			a.fail(line, col, "%s not allowed after OR_PREDICATE", op)
		case cur.state != stateRepeated:
			a.fail(line, col, "%s not allowed in %s", op, cur.state)
		case cur.altWith:
			a.fail(line, col, "duplicate %s in REPEATED", op)
		default:
			cur.altWith = true
			cur.block = &cur.owner.(*bytecode.Repeated).AlternatesWith
		}

	case bytecode.OpSection:
		x := inst.(*bytecode.Section)
		a.open(inst, &scope{state: stateSection, owner: inst, block: &x.Block, alt: &x.Alternative, line: line, col: col})
	case bytecode.OpRepeated:
		x := inst.(*bytecode.Repeated)
		a.open(inst, &scope{state: stateRepeated, owner: inst, block: &x.Block, alt: &x.Alternative, line: line, col: col})
	case bytecode.OpPredicate:
		x := inst.(*bytecode.Predicate)
		a.open(inst, &scope{state: statePredicate, owner: inst, block: &x.Block, alt: &x.Alternative, line: line, col: col})
	case bytecode.OpIf:
		x := inst.(*bytecode.If)
		a.open(inst, &scope{state: stateIf, owner: inst, block: &x.Block, alt: &x.Alternative, line: line, col: col})
	case bytecode.OpMacro:
		x := inst.(*bytecode.Macro)
		a.open(inst, &scope{state: stateMacro, owner: inst, block: &x.Block, line: line, col: col})

	default:
		*cur.block = append(*cur.block, inst)
	}
}

// open appends a block instruction to the current child list and makes it
// the current scope.
func (a *Assembler) open(inst bytecode.Instruction, s *scope) {
	cur := a.top()
	*cur.block = append(*cur.block, inst)
	a.push(s)
}

func (a *Assembler) acceptOr(or *bytecode.OrPredicate, cur *scope, line, col int) {
	var next state
	switch cur.state {
	case stateRoot:
		a.fail(line, col, "%s not allowed at root", or.Opcode())
		return
	case stateMacro:
		a.fail(line, col, "%s not allowed in MACRO", or.Opcode())
		return
	case stateSection, statePredicate, statePredicateOr:
		next = statePredicateOr
	case stateRepeated, stateRepeatedOr:
		next = stateRepeatedOr
	case stateIf, stateIfOr:
		next = stateIfOr
	}
	if cur.unconditional {
		a.fail(line, col, "dead code: %s after unconditional {.or}", or.Opcode())
		return
	}
	*cur.alt = or
	cur.alt = &or.Alternative
	cur.block = &or.Block
	cur.state = next
	cur.unconditional = or.Unconditional()
}

// finish handles EOF: every still-open block is reported and closed so the
// tree stays usable.
func (a *Assembler) finish(line, col int) {
	if len(a.stack) > 1 {
		for i := len(a.stack) - 1; i > 0; i-- {
			s := a.stack[i]
			a.fail(s.line, s.col, "unclosed %s", s.owner.Opcode())
		}
		for len(a.stack) > 1 {
			a.pop()
		}
		a.fail(line, col, "state EOF not reached")
	}
	a.eof = true
}

// String describes the current state, for debugging.
func (a *Assembler) String() string {
	return fmt.Sprintf("Assembler{state=%s depth=%d errors=%d}", a.state(), len(a.stack)-1, len(a.errors))
}
