// Package diag defines the diagnostic record shared by the compiler, the
// engine and the expression evaluator. Diagnostics are collected, never
// thrown across a template boundary.
package diag

import "fmt"

// Kind classifies where a diagnostic originated.
type Kind string

const (
	// Assembler marks grammar errors: unclosed blocks, instructions that are
	// not allowed in the current state, dead code.
	Assembler Kind = "assembler"
	// Engine marks runtime errors raised while executing bytecode.
	Engine Kind = "engine"
	// Expression marks lexical, syntax and reduction errors of the inline
	// expression language.
	Expression Kind = "expression"
)

// Error is a single collected diagnostic.
type Error struct {
	Kind    Kind
	Message string

	// Line and Column locate the tag that produced an assembler error
	// (1-based). Both are zero when the position is unknown.
	Line   int
	Column int
}

// New creates an Error with no position.
func New(kind Kind, format string, args ...any) Error {
	return Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// At returns a copy of e positioned at line and column.
func (e Error) At(line, column int) Error {
	e.Line = line
	e.Column = column
	return e
}

// HasPosition reports whether the error carries a source position.
func (e Error) HasPosition() bool {
	return e.Line > 0
}

func (e Error) Error() string {
	if e.HasPosition() {
		return fmt.Sprintf("%s: line %d col %d: %s", e.Kind, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Messages returns just the message text of each error, in order.
func Messages(errs []Error) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Message
	}
	return out
}
