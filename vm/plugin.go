package vm

import (
	"github.com/chazu/stencil/pkg/node"
)

// ---------------------------------------------------------------------------
// Plugin contract
// ---------------------------------------------------------------------------

// Variable is the mutable wrapper a formatter chain operates on.
type Variable struct {
	node node.Node
}

// NewVariable wraps n.
func NewVariable(n node.Node) *Variable { return &Variable{node: n} }

// Node returns the current value.
func (v *Variable) Node() node.Node { return v.node }

// Set replaces the value with any JSON-like Go value.
func (v *Variable) Set(value any) { v.node = node.New(value) }

// SetNode replaces the value.
func (v *Variable) SetNode(n node.Node) { v.node = n }

// Formatter transforms the first variable in place, or writes straight to
// the context buffer and clears it.
type Formatter interface {
	Apply(ctx *Context, args []string, vars []*Variable)
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(ctx *Context, args []string, vars []*Variable)

func (f FormatterFunc) Apply(ctx *Context, args []string, vars []*Variable) { f(ctx, args, vars) }

// Predicate tests the current frame's value.
type Predicate interface {
	Apply(ctx *Context, args []string) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(ctx *Context, args []string) bool

func (f PredicateFunc) Apply(ctx *Context, args []string) bool { return f(ctx, args) }

// Formatters is a name-keyed formatter table.
type Formatters map[string]Formatter

// Predicates is a name-keyed predicate table. Names include the trailing '?'.
type Predicates map[string]Predicate

// Locale formats numbers for a language tag. A nil Locale means plain
// decimal output.
type Locale interface {
	Tag() string
	FormatNumber(f float64, decimals int) string
}
